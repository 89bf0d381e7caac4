// Package engines holds the registry of blockchain engines. An engine
// registers its constructor in init and the node picks it by name.
package engines

import (
	"fmt"
	"sort"
	"sync"

	xconf "github.com/xuperchain/xupergraph/kernel/common/xconfig"
	"github.com/xuperchain/xupergraph/lib/logs"
)

// 区块链引擎，只约束最基本接口
// 各引擎提供类型转换函数，使用方转换后调用扩展接口
type BCEngine interface {
	// 初始化引擎，加载所有链
	Init(*xconf.EnvConf) error
	// 启动引擎(阻塞)
	Run()
	// 退出引擎，需要幂等
	Exit()
}

type NewBCEngineFunc func() BCEngine

var (
	engineMu sync.RWMutex
	engines  = make(map[string]NewBCEngineFunc)
)

// Register panics on a nil constructor or a duplicate name.
func Register(name string, f NewBCEngineFunc) {
	engineMu.Lock()
	defer engineMu.Unlock()

	if f == nil {
		panic("engines: Register new func is nil")
	}
	if _, dup := engines[name]; dup {
		panic("engines: Register called twice for engine " + name)
	}
	engines[name] = f
}

// Engines lists the registered engine names, sorted.
func Engines() []string {
	engineMu.RLock()
	defer engineMu.RUnlock()
	list := make([]string, 0, len(engines))
	for name := range engines {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

func newBCEngine(name string) BCEngine {
	engineMu.RLock()
	defer engineMu.RUnlock()
	if f, ok := engines[name]; ok {
		return f()
	}
	return nil
}

// CreateBCEngine sets up logging from the env config, then creates and
// initializes the engine registered as egName.
func CreateBCEngine(egName string, envCfg *xconf.EnvConf) (BCEngine, error) {
	if egName == "" || envCfg == nil {
		return nil, fmt.Errorf("create bc engine failed because some param unset")
	}

	// 日志初始化是幂等的
	err := logs.InitLog(envCfg.GenConfFilePath(envCfg.LogConf), envCfg.GenDirAbsPath(envCfg.LogDir))
	if err != nil {
		return nil, fmt.Errorf("create bc engine failed because init log failed.err:%v", err)
	}

	engine := newBCEngine(egName)
	if engine == nil {
		return nil, fmt.Errorf("create bc engine failed because engine not exist. name:%s", egName)
	}
	if err := engine.Init(envCfg); err != nil {
		return nil, fmt.Errorf("init engine %s error: %v", egName, err)
	}
	return engine, nil
}
