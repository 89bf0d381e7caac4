package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCmd(t *testing.T) {
	c := GetVersionCmd().GetCmd()
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetArgs([]string{})
	if err := c.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), Version+"-"+CommitID) {
		t.Errorf("version output %q", out.String())
	}
}

func TestCommandFlags(t *testing.T) {
	if GetStartupCmd().GetCmd().Flags().Lookup("conf") == nil {
		t.Error("startup without conf flag")
	}
	reindex := GetReindexCmd().GetCmd()
	for _, name := range []string{"conf", "chain"} {
		if reindex.Flags().Lookup(name) == nil {
			t.Errorf("reindex without %s flag", name)
		}
	}
	status := GetStatusCmd().GetCmd()
	for _, name := range []string{"conf", "chain", "slots"} {
		if status.Flags().Lookup(name) == nil {
			t.Errorf("status without %s flag", name)
		}
	}
}
