// 面向接口编程
package def

import (
	"github.com/xuperchain/xupergraph/bcs/consensus/tdpos"
	"github.com/xuperchain/xupergraph/bcs/contract/lua"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/ledger"
	"github.com/xuperchain/xupergraph/bcs/market"
	"github.com/xuperchain/xupergraph/kernel/contract/proposal/propose"
	"github.com/xuperchain/xupergraph/kernel/contract/proposal/timer"
	"github.com/xuperchain/xupergraph/kernel/engines"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/protos"
)

// 定义xuperos引擎对外暴露接口
// 依赖接口而不是依赖具体实现
type Engine interface {
	engines.BCEngine
	GetChains() []string
	GetEngineCtx() *EngineCtx
}

// 代理链依赖的组件实例化，方便mock单测
type ChainRelyAgent interface {
	CreateLedger() (*ledger.Ledger, error)
	CreateGenesis() (*ledger.GenesisState, error)
	CreateConsensus() (*tdpos.Tdpos, error)
	// 合约组件向reg注册合约相关操作
	CreateContract(reg *evaluator.Registry, chainID protos.ChainID) (*lua.Manager, error)
	CreateProposal(reg *evaluator.Registry) (propose.ProposeManager, error)
	CreateTimerTask(reg *evaluator.Registry) (timer.TimerManager, error)
	CreateMarket() (*market.Market, error)
}
