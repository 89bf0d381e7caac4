package xuperos

import (
	"fmt"
	"io/ioutil"
	"os"
	"sync"

	xconf "github.com/xuperchain/xupergraph/kernel/common/xconfig"
	xctx "github.com/xuperchain/xupergraph/kernel/common/xcontext"
	"github.com/xuperchain/xupergraph/kernel/engines"
	engconf "github.com/xuperchain/xupergraph/kernel/engines/xuperos/config"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/def"
	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/lib/metrics"
)

// xuperos执行引擎
// 支持多链，根链必须存在，其余链从数据目录加载
type XuperOSEngine struct {
	// 引擎运行环境上下文
	engCtx *def.EngineCtx
	// 日志
	log logs.Logger
	// 链管理
	chainM ChainManagerImpl
	// 管理异步任务退出状态
	exitWG   sync.WaitGroup
	exitOnce sync.Once
}

var _ def.Engine = (*XuperOSEngine)(nil)

func NewEngine() engines.BCEngine {
	return &XuperOSEngine{}
}

// 向工厂注册自己的创建方法
func init() {
	engines.Register(def.BCEngineName, NewEngine)
}

// 转换引擎句柄类型
// 对外提供类型转义方法，以接口形式对外暴露
func EngineConvert(engine engines.BCEngine) (*XuperOSEngine, error) {
	if engine == nil {
		return nil, fmt.Errorf("transfer engine type failed because param is nil")
	}

	if v, ok := engine.(*XuperOSEngine); ok {
		return v, nil
	}

	return nil, fmt.Errorf("transfer engine type failed by type assert")
}

// 初始化执行引擎环境上下文
func (t *XuperOSEngine) Init(envCfg *xconf.EnvConf) error {
	engCtx, err := t.createEngCtx(envCfg)
	if err != nil {
		return fmt.Errorf("init engine failed because create engine ctx failed.err:%v", err)
	}
	t.engCtx = engCtx
	t.log = engCtx.XLog
	t.chainM = ChainManagerImpl{engCtx: engCtx, log: engCtx.XLog}
	t.log.Trace("init engine context succ")

	if envCfg.MetricSwitch {
		metrics.RegisterMetrics()
	}

	if err := t.loadChains(); err != nil {
		t.chainM.StopChains()
		return fmt.Errorf("init engine failed because load chain failed.err:%v", err)
	}
	t.log.Trace("init engine succ", "chains", t.chainM.GetChains())
	return nil
}

// 启动执行引擎，阻塞等待所有链退出
func (t *XuperOSEngine) Run() {
	t.chainM.StartChains(&t.exitWG)
	t.exitWG.Wait()
}

// 关闭执行引擎，需要幂等
func (t *XuperOSEngine) Exit() {
	t.exitOnce.Do(func() {
		t.chainM.StopChains()
		t.exitWG.Wait()
		t.log.Info("engine exit")
	})
}

func (t *XuperOSEngine) Get(name string) (*Chain, error) {
	return t.chainM.Get(name)
}

// UnloadChain stops a side chain. The root chain lives as long as the engine.
func (t *XuperOSEngine) UnloadChain(name string) error {
	if name == t.engCtx.EngCfg.RootChain {
		return fmt.Errorf("root chain %s can not be unloaded", name)
	}
	return t.chainM.UnloadChain(name)
}

func (t *XuperOSEngine) GetChains() []string {
	return t.chainM.GetChains()
}

// 获取执行引擎环境
func (t *XuperOSEngine) GetEngineCtx() *def.EngineCtx {
	return t.engCtx
}

// loadChains opens the root chain and every chain found under the chain
// data dir.
func (t *XuperOSEngine) loadChains() error {
	ecfg := t.engCtx.EnvCfg
	root := t.engCtx.EngCfg.RootChain
	names := []string{root}

	dataDir := ecfg.GenDataAbsPath(ecfg.ChainDir)
	dir, err := ioutil.ReadDir(dataDir)
	if err != nil && !os.IsNotExist(err) {
		t.log.Error("read chain data dir failed", "err", err, "data_dir", dataDir)
		return err
	}
	for _, fInfo := range dir {
		// 忽略非目录
		if fInfo.IsDir() && fInfo.Name() != root {
			names = append(names, fInfo.Name())
		}
	}

	for _, name := range names {
		t.log.Trace("start load chain", "chain", name)
		if err := t.chainM.LoadChain(name); err != nil {
			return err
		}
	}
	t.log.Trace("load chains succ", "chain_cnt", len(names))
	return nil
}

func (t *XuperOSEngine) createEngCtx(envCfg *xconf.EnvConf) (*def.EngineCtx, error) {
	if envCfg == nil {
		return nil, fmt.Errorf("create engine ctx failed because env config is nil")
	}

	// 加载引擎配置
	engCfg, err := engconf.LoadEngineConf(envCfg.GenConfFilePath(envCfg.EngineConf))
	if err != nil {
		return nil, fmt.Errorf("create engine ctx failed because engine config load err.err:%v", err)
	}

	base, err := xctx.NewBaseCtx(def.BCEngineName)
	if err != nil {
		return nil, err
	}
	return &def.EngineCtx{
		BaseCtx: base,
		EnvCfg:  envCfg,
		EngCfg:  engCfg,
	}, nil
}
