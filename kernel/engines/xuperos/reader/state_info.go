package reader

import (
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	xctx "github.com/xuperchain/xupergraph/kernel/common/xcontext"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/protos"
)

// StateReader 查询账户、资产和全局参数，返回的对象都是副本
type StateReader interface {
	GetObject(id protos.ObjectID) (objdb.Object, error)
	GetAccountByName(name string) (*objects.Account, error)
	GetAssetBySymbol(symbol string) (*objects.Asset, error)
	// 账户余额，含锁定部分
	GetBalance(account, symbol string) (protos.Share, error)
	// 可用余额
	GetAvailableBalance(account, symbol string) (protos.Share, error)
	GetGlobalProperties() (*objects.GlobalProperty, error)
	GetDynamicGlobalProperties() (*objects.DynamicGlobalProperty, error)
}

type stateReader struct {
	chain Chain
	log   logs.Logger
}

func NewStateReader(chain Chain, baseCtx xctx.XContext) StateReader {
	if chain == nil || baseCtx == nil {
		return nil
	}

	reader := &stateReader{
		chain: chain,
		log:   baseCtx.GetLog(),
	}

	return reader
}

func (t *stateReader) GetObject(id protos.ObjectID) (objdb.Object, error) {
	var out objdb.Object
	err := t.chain.View(func(db *objdb.Database) error {
		obj, err := db.Copy(id)
		if err != nil {
			return common.ErrObjectNotFound.More("%s", id)
		}
		out = obj
		return nil
	})
	if err != nil {
		return nil, common.CastError(err)
	}
	return out, nil
}

func (t *stateReader) GetAccountByName(name string) (*objects.Account, error) {
	var out *objects.Account
	err := t.chain.View(func(db *objdb.Database) error {
		acc, err := objects.AccountByName(db, name)
		if err != nil {
			return err
		}
		obj, err := db.Copy(acc.ID())
		if err != nil {
			return err
		}
		out = obj.(*objects.Account)
		return nil
	})
	if err != nil {
		return nil, common.CastErrorDefault(err, common.ErrObjectNotFound)
	}
	return out, nil
}

func (t *stateReader) GetAssetBySymbol(symbol string) (*objects.Asset, error) {
	var out *objects.Asset
	err := t.chain.View(func(db *objdb.Database) error {
		a, err := objects.AssetBySymbol(db, symbol)
		if err != nil {
			return err
		}
		obj, err := db.Copy(a.ID())
		if err != nil {
			return err
		}
		out = obj.(*objects.Asset)
		return nil
	})
	if err != nil {
		return nil, common.CastErrorDefault(err, common.ErrObjectNotFound)
	}
	return out, nil
}

func (t *stateReader) GetBalance(account, symbol string) (protos.Share, error) {
	return t.balance(account, symbol, objects.GetBalance)
}

func (t *stateReader) GetAvailableBalance(account, symbol string) (protos.Share, error) {
	return t.balance(account, symbol, objects.AvailableBalance)
}

func (t *stateReader) balance(account, symbol string,
	get func(db *objdb.Database, owner, asset protos.ObjectID) protos.Share) (protos.Share, error) {
	var out protos.Share
	err := t.chain.View(func(db *objdb.Database) error {
		acc, err := objects.AccountByName(db, account)
		if err != nil {
			return err
		}
		a, err := objects.AssetBySymbol(db, symbol)
		if err != nil {
			return err
		}
		out = get(db, acc.ID(), a.ID())
		return nil
	})
	if err != nil {
		t.log.Warn("get balance error", "account", account, "symbol", symbol, "err", err)
		return 0, common.CastErrorDefault(err, common.ErrObjectNotFound)
	}
	return out, nil
}

func (t *stateReader) GetGlobalProperties() (*objects.GlobalProperty, error) {
	var out objects.GlobalProperty
	t.chain.View(func(db *objdb.Database) error {
		out = *objects.GlobalProperties(db)
		return nil
	})
	return &out, nil
}

func (t *stateReader) GetDynamicGlobalProperties() (*objects.DynamicGlobalProperty, error) {
	var out objects.DynamicGlobalProperty
	t.chain.View(func(db *objdb.Database) error {
		out = *objects.DynamicGlobalProperties(db)
		return nil
	})
	return &out, nil
}
