package mock

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/ledger"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/protos"
)

// GenesisTimestamp is a multiple of every block interval up to 30.
const GenesisTimestamp uint32 = 1600000020

// InitialBalance is the core balance of each generated genesis account.
const InitialBalance protos.Share = 100000000

// Key returns the deterministic key pair of name.
func Key(name string) (*ecdsa.PrivateKey, protos.PublicKey) {
	priv := protos.PrivateKeyFromSeed(name)
	return priv, protos.PublicKeyFromECDSA(&priv.PublicKey)
}

// WitnessName is the account name of the i-th generated witness.
func WitnessName(i int) string { return fmt.Sprintf("init%d", i) }

// NewGenesis returns a genesis with n witnesses that are also committee
// members, plus the accounts of extra. Every account is a lifetime member
// holding InitialBalance of core asset; keys come from Key(name).
func NewGenesis(n int, extra ...string) *ledger.GenesisState {
	gs := &ledger.GenesisState{
		InitialTimestamp: GenesisTimestamp,
		MaxCoreSupply:    protos.MaxShareSupply,
		CoreSymbol:       ledger.DefaultCoreSymbol,
		InitialParameters: map[string]interface{}{
			"block_interval":               3,
			"maintenance_interval":         3600,
			"witness_number_of_election":   n,
			"committee_number_of_election": n,
		},
		ImmutableParameters:    objects.ImmutableChainParameters{MinWitnessCount: 1, MinCommitteeMemberCount: 1},
		InitialActiveWitnesses: n,
	}
	add := func(name string) {
		_, pub := Key(name)
		gs.InitialAccounts = append(gs.InitialAccounts, ledger.InitialAccount{
			Name: name, OwnerKey: pub, ActiveKey: pub, IsLifetimeMember: true,
		})
		gs.InitialAccountBalances = append(gs.InitialAccountBalances, ledger.InitialBalance{
			OwnerName: name, AssetSymbol: ledger.DefaultCoreSymbol, Amount: InitialBalance,
		})
	}
	for i := 0; i < n; i++ {
		name := WitnessName(i)
		add(name)
		_, pub := Key(name)
		gs.InitialWitnessCandidates = append(gs.InitialWitnessCandidates, ledger.InitialWitness{OwnerName: name, BlockSigningKey: pub})
		gs.InitialCommitteeCandidates = append(gs.InitialCommitteeCandidates, ledger.InitialCommitteeMember{OwnerName: name})
	}
	for _, name := range extra {
		add(name)
	}
	return gs
}

// Chain is an evaluator.Chain over a bare object store. Authority checks
// pass unless VerifyFn is set.
type Chain struct {
	db       *objdb.Database
	log      logs.Logger
	chainID  protos.ChainID
	VerifyFn func(ops protos.OperationList, sigKeys []protos.PublicKey, active, owner []protos.ObjectID) error
}

// NewChain registers the object indexes on a fresh store and initializes gs
// with the evaluators of reg.
func NewChain(reg *evaluator.Registry, gs *ledger.GenesisState) (*Chain, error) {
	log, err := logs.NewLogger("", "mock")
	if err != nil {
		return nil, err
	}
	db := objdb.NewDatabase()
	objects.RegisterIndexes(db)
	c := &Chain{db: db, log: log}
	if err := ledger.InitGenesis(c, reg, gs); err != nil {
		return nil, err
	}
	c.chainID = objects.ChainProperties(db).ChainID
	return c, nil
}

func (c *Chain) DB() *objdb.Database     { return c.db }
func (c *Chain) ChainID() protos.ChainID { return c.chainID }
func (c *Chain) Logger() logs.Logger     { return c.log }

func (c *Chain) VerifyAuthority(ops protos.OperationList, sigKeys []protos.PublicKey, active, owner []protos.ObjectID) error {
	if c.VerifyFn == nil {
		return nil
	}
	return c.VerifyFn(ops, sigKeys, active, owner)
}

// SetTime moves the head block time.
func (c *Chain) SetTime(now uint32) error {
	dgp := objects.DynamicGlobalProperties(c.db)
	return c.db.Modify(dgp, func() { dgp.Time = now })
}

// Account returns the id of the named account, panicking when absent.
func (c *Chain) Account(name string) protos.ObjectID {
	acc, err := objects.AccountByName(c.db, name)
	if err != nil {
		panic(err)
	}
	return acc.ID()
}
