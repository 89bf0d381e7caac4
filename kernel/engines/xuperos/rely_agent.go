package xuperos

import (
	"fmt"

	"github.com/xuperchain/xupergraph/bcs/consensus/tdpos"
	"github.com/xuperchain/xupergraph/bcs/contract/lua"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/ledger"
	"github.com/xuperchain/xupergraph/bcs/market"
	"github.com/xuperchain/xupergraph/kernel/contract/proposal/propose"
	"github.com/xuperchain/xupergraph/kernel/contract/proposal/timer"
	"github.com/xuperchain/xupergraph/kernel/contract/sandbox"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/def"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/protos"
)

// 代理依赖组件实例化操作，方便mock单测和并行开发
type ChainRelyAgentImpl struct {
	engCtx *def.EngineCtx
	bcName string
}

func NewChainRelyAgent(engCtx *def.EngineCtx, bcName string) *ChainRelyAgentImpl {
	return &ChainRelyAgentImpl{engCtx: engCtx, bcName: bcName}
}

// 打开账本
func (t *ChainRelyAgentImpl) CreateLedger() (*ledger.Ledger, error) {
	lctx, err := ledger.NewLedgerCtx(t.engCtx.EnvCfg, t.bcName)
	if err != nil {
		return nil, fmt.Errorf("new ledger ctx failed.err:%v", err)
	}
	return ledger.OpenLedger(lctx)
}

// 读取创世配置
func (t *ChainRelyAgentImpl) CreateGenesis() (*ledger.GenesisState, error) {
	envCfg := t.engCtx.EnvCfg
	return ledger.LoadGenesis(envCfg.GenConfFilePath(envCfg.GenesisConf))
}

func (t *ChainRelyAgentImpl) CreateConsensus() (*tdpos.Tdpos, error) {
	ctx, err := tdpos.NewTdposCtx(t.bcName)
	if err != nil {
		return nil, err
	}
	return tdpos.NewTdpos(ctx)
}

// 创建合约虚拟机，过程值密钥由链id和配置密钥派生
func (t *ChainRelyAgentImpl) CreateContract(reg *evaluator.Registry, chainID protos.ChainID) (*lua.Manager, error) {
	cfg := t.engCtx.EngCfg.Contract
	cipher, err := sandbox.NewCipher(chainID, cfg.CipherKey)
	if err != nil {
		return nil, fmt.Errorf("create contract cipher failed.err:%v", err)
	}
	vmCfg := sandbox.DefaultVMConfig()
	if cfg.CallStackSize > 0 {
		vmCfg.CallStackSize = cfg.CallStackSize
	}
	if cfg.RegistrySize > 0 {
		vmCfg.RegistrySize = cfg.RegistrySize
	}
	if cfg.ProtoCacheSize > 0 {
		vmCfg.ProtoCacheSize = cfg.ProtoCacheSize
	}
	log, err := logs.NewLogger("", "sandbox")
	if err != nil {
		return nil, err
	}
	vm, err := sandbox.NewVM(vmCfg, cipher, log)
	if err != nil {
		return nil, fmt.Errorf("create contract vm failed.err:%v", err)
	}
	ctx, err := lua.NewLuaCtx(t.bcName, reg, vm)
	if err != nil {
		return nil, err
	}
	return lua.NewContractManager(ctx)
}

func (t *ChainRelyAgentImpl) CreateProposal(reg *evaluator.Registry) (propose.ProposeManager, error) {
	ctx, err := propose.NewProposeCtx(reg)
	if err != nil {
		return nil, err
	}
	return propose.NewProposeManager(ctx)
}

func (t *ChainRelyAgentImpl) CreateTimerTask(reg *evaluator.Registry) (timer.TimerManager, error) {
	ctx, err := timer.NewTimerCtx(reg)
	if err != nil {
		return nil, err
	}
	return timer.NewTimerTaskManager(ctx)
}

// 没有撮合引擎，到期的清算单直接撤销退款
func (t *ChainRelyAgentImpl) CreateMarket() (*market.Market, error) {
	log, err := logs.NewLogger("", "market")
	if err != nil {
		return nil, err
	}
	return market.NewMarket(market.CancelMatcher{}, log), nil
}
