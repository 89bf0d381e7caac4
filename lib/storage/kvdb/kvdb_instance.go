package kvdb

import (
	"fmt"
	"sync"
)

// KVParameter structure for kv instance parameters
type KVParameter struct {
	DBPath                string
	KVEngineType          string
	StorageType           string
	MemCacheSize          int
	FileHandlersCacheSize int
}

const (
	KVEngineTypeLDB    = "leveldb"
	KVEngineTypeBadger = "badger"
)

const (
	StorageTypeSingle = "single"
	// StorageTypeMemory keeps everything in process memory, used by tests and --memory nodes
	StorageTypeMemory = "memory"
)

var (
	servsMu  sync.RWMutex
	services = make(map[string]NewStorageFunc)
)

type NewStorageFunc func(*KVParameter) (Database, error)

func Register(name string, f NewStorageFunc) {
	servsMu.Lock()
	defer servsMu.Unlock()

	if f == nil {
		panic("storage: Register new func is nil")
	}
	if _, dup := services[name]; dup {
		panic("storage: Register called twice for func " + name)
	}
	services[name] = f
}

func CreateKVInstance(kvParam *KVParameter) (Database, error) {
	servsMu.RLock()
	f, ok := services[kvParam.KVEngineType]
	servsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("kv engine %q not registered", kvParam.KVEngineType)
	}
	instance, err := f(kvParam)
	if err != nil {
		return nil, fmt.Errorf("create %s instance failed.err:%v", kvParam.KVEngineType, err)
	}
	return instance, nil
}

// IsMemory reports whether the instance should not touch the disk.
func (param *KVParameter) IsMemory() bool {
	return param.StorageType == StorageTypeMemory
}

func (param *KVParameter) GetDBPath() string {
	return param.DBPath
}

func (param *KVParameter) GetMemCacheSize() int {
	if param.MemCacheSize <= 0 {
		return 128
	}
	return param.MemCacheSize
}

func (param *KVParameter) GetFileHandlersCacheSize() int {
	if param.FileHandlersCacheSize <= 0 {
		return 512
	}
	return param.FileHandlersCacheSize
}
