package objects

import (
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

type Contract struct {
	objdb.BaseObject
	Owner             protos.ObjectID
	Name              string
	ContractAuthority protos.PublicKey
	CreationDate      uint32
	IsRelease         bool
	CurrentVersion    protos.TxID
	LuaCode           string
	ContractABI       []string
	ContractData      protos.LuaValue
}

func (*Contract) ObjectType() (uint8, uint8) { return protos.ProtocolSpace, protos.ObjTypeContract }

func (c *Contract) HasFunction(name string) bool {
	for _, f := range c.ContractABI {
		if f == name {
			return true
		}
	}
	return false
}

// AccountContractData is one account's private data in one contract.
type AccountContractData struct {
	objdb.BaseObject
	AccountID    protos.ObjectID
	ContractID   protos.ObjectID
	ContractData protos.LuaValue
}

func (*AccountContractData) ObjectType() (uint8, uint8) {
	return protos.ImplementationSpace, protos.ImplTypeAccountContractData
}
