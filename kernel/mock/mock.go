package mock

import (
	"fmt"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/ledger"
	xconf "github.com/xuperchain/xupergraph/kernel/common/xconfig"
	"github.com/xuperchain/xupergraph/lib/storage/kvdb"
	// memory kv engine
	_ "github.com/xuperchain/xupergraph/lib/storage/kvdb/leveldb"
)

// NewEnvConfForTest returns the default env config rooted at root. Nothing
// is read from disk; pass a temp dir.
func NewEnvConfForTest(root string) *xconf.EnvConf {
	ecfg := xconf.GetDefEnvConf()
	ecfg.RootPath = root
	return ecfg
}

// NewMemoryLedger opens a ledger of bcName that keeps nothing on disk.
func NewMemoryLedger(ecfg *xconf.EnvConf, bcName string) (*ledger.Ledger, error) {
	lctx, err := ledger.NewLedgerCtx(ecfg, bcName)
	if err != nil {
		return nil, fmt.Errorf("new ledger ctx failed.err:%v", err)
	}
	lctx.LedgerCfg.StorageType = kvdb.StorageTypeMemory
	return ledger.OpenLedger(lctx)
}
