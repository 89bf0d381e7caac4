// 统一管理系统引擎和链运行上下文
package def

import (
	"github.com/xuperchain/xupergraph/bcs/consensus/tdpos"
	"github.com/xuperchain/xupergraph/bcs/contract/lua"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/ledger"
	"github.com/xuperchain/xupergraph/bcs/market"
	xconf "github.com/xuperchain/xupergraph/kernel/common/xconfig"
	xctx "github.com/xuperchain/xupergraph/kernel/common/xcontext"
	"github.com/xuperchain/xupergraph/kernel/contract/proposal/propose"
	"github.com/xuperchain/xupergraph/kernel/contract/proposal/timer"
	engconf "github.com/xuperchain/xupergraph/kernel/engines/xuperos/config"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
)

// 引擎运行上下文环境
type EngineCtx struct {
	// 基础上下文
	xctx.BaseCtx
	// 运行环境配置
	EnvCfg *xconf.EnvConf
	// 引擎配置
	EngCfg *engconf.EngineConf
}

// 链级别上下文，每条链各有一个
type ChainCtx struct {
	// 基础上下文
	xctx.BaseCtx
	// 引擎上下文
	EngCtx *EngineCtx
	// 链名
	BCName string
	// 创世配置
	Genesis *ledger.GenesisState
	// 账本
	Ledger *ledger.Ledger
	// 操作执行器注册表
	Registry *evaluator.Registry
	// 共识
	Consensus *tdpos.Tdpos
	// 合约
	Contract *lua.Manager
	// 提案
	Proposal propose.ProposeManager
	// 定时任务
	TimerTask timer.TimerManager
	// 强制清算
	Market *market.Market
}
