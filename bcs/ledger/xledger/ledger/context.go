package ledger

import (
	"fmt"

	lconf "github.com/xuperchain/xupergraph/bcs/ledger/xledger/config"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/def"
	xconf "github.com/xuperchain/xupergraph/kernel/common/xconfig"
	xctx "github.com/xuperchain/xupergraph/kernel/common/xcontext"
	"github.com/xuperchain/xupergraph/lib/storage/kvdb"
)

// LedgerCtx is everything OpenLedger needs to find and open the block store
// of one chain.
type LedgerCtx struct {
	xctx.BaseCtx
	EnvCfg    *xconf.EnvConf
	LedgerCfg *lconf.XLedgerConf
	BCName    string
}

// NewLedgerCtx reads the ledger config named by envCfg. A missing file means
// defaults.
func NewLedgerCtx(envCfg *xconf.EnvConf, bcName string) (*LedgerCtx, error) {
	if envCfg == nil {
		return nil, fmt.Errorf("new ledger ctx of %s: env conf is nil", bcName)
	}
	if bcName == "" {
		return nil, fmt.Errorf("new ledger ctx: empty chain name")
	}
	lcfg, err := lconf.LoadLedgerConf(envCfg.GenConfFilePath(envCfg.LedgerConf))
	if err != nil {
		return nil, fmt.Errorf("new ledger ctx of %s: %v", bcName, err)
	}
	base, err := xctx.NewBaseCtx(def.LedgerSubModName)
	if err != nil {
		return nil, fmt.Errorf("new ledger ctx of %s: %v", bcName, err)
	}
	return &LedgerCtx{BaseCtx: base, EnvCfg: envCfg, LedgerCfg: lcfg, BCName: bcName}, nil
}

// DataPath is the directory of the kv store of the chain.
func (t *LedgerCtx) DataPath() string {
	return t.EnvCfg.GenChainDataPath(t.BCName)
}

// KVParameter opens the chain's store with the configured engine.
func (t *LedgerCtx) KVParameter() *kvdb.KVParameter {
	return t.LedgerCfg.KVParameter(t.DataPath())
}
