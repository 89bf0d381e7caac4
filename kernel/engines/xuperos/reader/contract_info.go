package reader

import (
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	xctx "github.com/xuperchain/xupergraph/kernel/common/xcontext"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/protos"
)

type ContractReader interface {
	GetContractByName(name string) (*objects.Contract, error)
	// 账户在合约中的私有数据，没有时返回Lua nil
	GetAccountContractData(account, contract string) (protos.LuaValue, error)
}

type contractReader struct {
	chain Chain
	log   logs.Logger
}

func NewContractReader(chain Chain, baseCtx xctx.XContext) ContractReader {
	if chain == nil || baseCtx == nil {
		return nil
	}

	reader := &contractReader{
		chain: chain,
		log:   baseCtx.GetLog(),
	}

	return reader
}

func (t *contractReader) GetContractByName(name string) (*objects.Contract, error) {
	var out *objects.Contract
	err := t.chain.View(func(db *objdb.Database) error {
		c, err := objects.ContractByName(db, name)
		if err != nil {
			return err
		}
		obj, err := db.Copy(c.ID())
		if err != nil {
			return err
		}
		out = obj.(*objects.Contract)
		return nil
	})
	if err != nil {
		return nil, common.CastErrorDefault(err, common.ErrObjectNotFound)
	}
	return out, nil
}

func (t *contractReader) GetAccountContractData(account, contract string) (protos.LuaValue, error) {
	var out protos.LuaValue
	err := t.chain.View(func(db *objdb.Database) error {
		acc, err := objects.AccountByName(db, account)
		if err != nil {
			return err
		}
		c, err := objects.ContractByName(db, contract)
		if err != nil {
			return err
		}
		data := objects.FindAccountContractData(db, acc.ID(), c.ID())
		if data == nil {
			return nil
		}
		obj, err := db.Copy(data.ID())
		if err != nil {
			return err
		}
		out = obj.(*objects.AccountContractData).ContractData
		return nil
	})
	if err != nil {
		return protos.LuaValue{}, common.CastErrorDefault(err, common.ErrObjectNotFound)
	}
	return out, nil
}
