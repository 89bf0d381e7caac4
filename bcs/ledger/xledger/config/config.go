package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/xuperchain/xupergraph/lib/storage/kvdb"
	"github.com/xuperchain/xupergraph/lib/utils"
)

type XLedgerConf struct {
	// kv storage type: leveldb or badger
	KVEngineType string `yaml:"kvEngineType,omitempty"`
	// single, or memory to keep nothing on disk
	StorageType string `yaml:"storageType,omitempty"`
	// kv engine memory cache in MB
	MemCacheSize int `yaml:"memCacheSize,omitempty"`
	// open file handles of the kv engine
	FileHandlersCacheSize int `yaml:"fileHandlersCacheSize,omitempty"`
	// decoded blocks kept in memory
	BlockCacheSize int `yaml:"blockCacheSize,omitempty"`
}

func LoadLedgerConf(cfgFile string) (*XLedgerConf, error) {
	cfg := GetDefLedgerConf()
	err := cfg.loadConf(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load ledger config failed.err:%s", err)
	}

	return cfg, nil
}

func GetDefLedgerConf() *XLedgerConf {
	return &XLedgerConf{
		KVEngineType:          kvdb.KVEngineTypeLDB,
		StorageType:           kvdb.StorageTypeSingle,
		MemCacheSize:          128,
		FileHandlersCacheSize: 512,
		BlockCacheSize:        512,
	}
}

// KVParameter is the kv instance configuration for the store at path.
func (t *XLedgerConf) KVParameter(path string) *kvdb.KVParameter {
	return &kvdb.KVParameter{
		DBPath:                path,
		KVEngineType:          t.KVEngineType,
		StorageType:           t.StorageType,
		MemCacheSize:          t.MemCacheSize,
		FileHandlersCacheSize: t.FileHandlersCacheSize,
	}
}

func (t *XLedgerConf) loadConf(cfgFile string) error {
	if cfgFile == "" || !utils.FileIsExist(cfgFile) {
		return nil
	}

	viperObj := viper.New()
	viperObj.SetConfigFile(cfgFile)
	err := viperObj.ReadInConfig()
	if err != nil {
		return fmt.Errorf("read config failed.path:%s,err:%v", cfgFile, err)
	}

	if err = viperObj.Unmarshal(t); err != nil {
		return fmt.Errorf("unmatshal config failed.path:%s,err:%v", cfgFile, err)
	}

	return nil
}
