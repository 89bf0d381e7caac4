package xconfig

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvConf(t *testing.T) {
	dir, err := ioutil.TempDir("", "xconfig")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "env.yaml")
	data := []byte("rootPath: " + dir + "\ndataDir: chaindata\nunknownKey: 1\n")
	if err := ioutil.WriteFile(file, data, 0644); err != nil {
		t.Fatal(err)
	}
	envCfg, err := LoadEnvConf(file)
	if err != nil {
		t.Fatal(err)
	}
	if envCfg.GenDataAbsPath("x") != filepath.Join(dir, "chaindata", "x") {
		t.Errorf("data path %s", envCfg.GenDataAbsPath("x"))
	}
	if envCfg.GenConfFilePath(envCfg.LogConf) != filepath.Join(dir, "conf", "log.yaml") {
		t.Errorf("log conf %s", envCfg.GenConfFilePath(envCfg.LogConf))
	}
	if envCfg.GenChainDataPath("xgraph") != filepath.Join(dir, "chaindata", "blockchain", "xgraph") {
		t.Errorf("chain path %s", envCfg.GenChainDataPath("xgraph"))
	}
}

func TestMissingEnvConf(t *testing.T) {
	envCfg, err := LoadEnvConf(filepath.Join(os.TempDir(), "no-such-env.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if envCfg.EngineConf != "engine.yaml" || envCfg.ChainDir != "blockchain" {
		t.Fatalf("defaults not kept: %+v", envCfg)
	}
}
