package logs

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadLogConf(t *testing.T) {
	dir, err := ioutil.TempDir("", "logconf")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "log.yaml")
	data := "module: node\nlevel: warn\nasync: true\n"
	if err := ioutil.WriteFile(file, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadLogConf(file)
	if err != nil {
		t.Fatalf("load log config failed.err:%v", err)
	}
	if cfg.Module != "node" || cfg.Level != "warn" || !cfg.Async {
		t.Errorf("unexpected config %+v", cfg)
	}
	// untouched keys keep defaults
	if cfg.RotateBackups != GetDefLogConf().RotateBackups {
		t.Errorf("default lost: %+v", cfg)
	}

	if _, err := LoadLogConf(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Errorf("missing file should fail")
	}
}

func TestInitLogWithoutConfFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "logdir")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	if err := InitLog(filepath.Join(dir, "conf", "log.yaml"), dir); err != nil {
		t.Fatalf("init log without config file failed.err:%v", err)
	}
	if GetLogLevel() != GetDefLogConf().Level {
		t.Errorf("level %q", GetLogLevel())
	}
	lg, err := NewLogger("", "test")
	if err != nil {
		t.Fatal(err)
	}
	lg.Info("default log config in use")
	if !fileExists(filepath.Join(dir, GetDefLogConf().Filename+".log")) {
		t.Errorf("log file not created under %s", dir)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
