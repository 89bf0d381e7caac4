package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadLedgerConf(t *testing.T) {
	dir, err := ioutil.TempDir("", "ledgerconf")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "ledger.yaml")
	if err := ioutil.WriteFile(file, []byte("kvEngineType: badger\nblockCacheSize: 8\n"), 0644); err != nil {
		t.Fatal(err)
	}
	ledgerCfg, err := LoadLedgerConf(file)
	if err != nil {
		t.Fatal(err)
	}
	if ledgerCfg.KVEngineType != "badger" || ledgerCfg.BlockCacheSize != 8 || ledgerCfg.MemCacheSize != 128 {
		t.Fatalf("ledger conf %+v", ledgerCfg)
	}
	param := ledgerCfg.KVParameter(dir)
	if param.DBPath != dir || param.KVEngineType != "badger" {
		t.Fatalf("kv parameter %+v", param)
	}
}

func TestDefaultLedgerConf(t *testing.T) {
	ledgerCfg, err := LoadLedgerConf("")
	if err != nil {
		t.Fatal(err)
	}
	if ledgerCfg.KVEngineType != "leveldb" {
		t.Fatalf("default engine %s", ledgerCfg.KVEngineType)
	}
}
