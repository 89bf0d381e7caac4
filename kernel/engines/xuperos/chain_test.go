package xuperos

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xuperchain/xupergraph/bcs/consensus/tdpos"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/ledger"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	xctx "github.com/xuperchain/xupergraph/kernel/common/xcontext"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/asyncworker"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	engconf "github.com/xuperchain/xupergraph/kernel/engines/xuperos/config"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/def"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/event"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/mock"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

const testChainName = "xgraph"

// 账本放在内存里，创世由mock生成，其余组件用正式实现
type mockRelyAgent struct {
	*ChainRelyAgentImpl
	genesis *ledger.GenesisState
}

func (a *mockRelyAgent) CreateLedger() (*ledger.Ledger, error) {
	return mock.NewMemoryLedger(a.engCtx.EnvCfg, a.bcName)
}

func (a *mockRelyAgent) CreateGenesis() (*ledger.GenesisState, error) {
	return a.genesis, nil
}

func newEngCtx(t *testing.T) *def.EngineCtx {
	base, err := xctx.NewBaseCtx(def.BCEngineName)
	require.NoError(t, err)
	return &def.EngineCtx{
		BaseCtx: base,
		EnvCfg:  mock.NewEnvConfForTest(t.TempDir()),
		EngCfg:  engconf.GetDefEngineConf(),
	}
}

func newTestChain(t *testing.T, extra ...string) *Chain {
	engCtx := newEngCtx(t)
	agent := &mockRelyAgent{
		ChainRelyAgentImpl: NewChainRelyAgent(engCtx, testChainName),
		genesis:            mock.NewGenesis(3, extra...),
	}
	c, err := NewChain(engCtx, testChainName, agent)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// produce generates the block of slot on top of the head of c, signed by
// the scheduled witness.
func produce(t *testing.T, c *Chain, slot uint32) *protos.SignedBlock {
	return produceWith(t, c, slot, 0)
}

func produceWith(t *testing.T, c *Chain, slot uint32, skip evaluator.Skip) *protos.SignedBlock {
	var (
		when    uint32
		witness protos.ObjectID
		key     *ecdsa.PrivateKey
	)
	require.NoError(t, c.View(func(db *objdb.Database) error {
		s := tdpos.NewSchedule(db)
		when = s.SlotTime(slot)
		var err error
		if witness, err = s.ScheduledWitness(slot); err != nil {
			return err
		}
		w, err := objects.GetWitness(db, witness)
		if err != nil {
			return err
		}
		acc, err := objects.GetAccount(db, w.WitnessAccount)
		if err != nil {
			return err
		}
		key, _ = mock.Key(acc.Name)
		return nil
	}))
	b, err := c.GenerateBlock(when, witness, key, skip)
	require.NoError(t, err)
	return b
}

func accountID(t *testing.T, c *Chain, name string) protos.ObjectID {
	var id protos.ObjectID
	require.NoError(t, c.View(func(db *objdb.Database) error {
		acc, err := objects.AccountByName(db, name)
		if err != nil {
			return err
		}
		id = acc.ID()
		return nil
	}))
	return id
}

func balance(t *testing.T, c *Chain, name string) protos.Share {
	id := accountID(t, c, name)
	var out protos.Share
	c.View(func(db *objdb.Database) error {
		out = objects.GetBalance(db, id, protos.CoreAssetID)
		return nil
	})
	return out
}

func transfer(t *testing.T, c *Chain, from, to string, amount protos.Share, signers ...string) *protos.SignedTransaction {
	trx := &protos.SignedTransaction{}
	trx.SetReferenceBlock(c.HeadBlockID())
	trx.Expiration = c.HeadBlockTime() + 60
	trx.Operations = protos.OperationList{&protos.TransferOperation{
		Fee:    protos.NewAsset(0, protos.CoreAssetID),
		From:   accountID(t, c, from),
		To:     accountID(t, c, to),
		Amount: protos.NewAsset(amount, protos.CoreAssetID),
	}}
	for _, name := range signers {
		key, _ := mock.Key(name)
		require.NoError(t, trx.Sign(key, c.ChainID()))
	}
	return trx
}

func TestGenerateBlocks(t *testing.T) {
	c := newTestChain(t)
	genesisTime := c.HeadBlockTime()
	require.Equal(t, mock.GenesisTimestamp, genesisTime)

	var applied []uint32
	c.SubscribeBlocks(nil, func(ev *event.AppliedBlockEvent) {
		applied = append(applied, ev.Block.BlockNum())
	})

	var last *protos.SignedBlock
	for i := 0; i < 3; i++ {
		last = produce(t, c, 1)
	}
	require.Equal(t, uint32(3), c.HeadBlockNum())
	require.Equal(t, last.ID(), c.HeadBlockID())
	// 创世的下次维护时间为0，第一块即触发维护，之后跳过maintenance_skip_slots个时隙
	var params protos.ChainParameters
	c.View(func(db *objdb.Database) error {
		params = objects.GlobalProperties(db).Parameters
		return nil
	})
	interval := uint32(params.BlockInterval)
	first := genesisTime + interval
	require.Equal(t, first+(1+uint32(params.MaintenanceSkipSlots))*interval+interval, c.HeadBlockTime())
	require.Equal(t, []uint32{1, 2, 3}, applied)
	b1, err := c.FetchBlockByNumber(1)
	require.NoError(t, err)
	require.Equal(t, first, b1.Timestamp)

	b, err := c.FetchBlockByNumber(2)
	require.NoError(t, err)
	require.Equal(t, uint32(2), b.BlockNum())
	var nextMaint uint32
	c.View(func(db *objdb.Database) error {
		nextMaint = objects.DynamicGlobalProperties(db).NextMaintenanceTime
		return nil
	})
	require.Greater(t, nextMaint, first)
	byID, err := c.FetchBlockByID(last.ID())
	require.NoError(t, err)
	require.Equal(t, last.ID(), byID.ID())

	// 三个见证人各出一块，第一块不可逆
	require.Equal(t, uint32(1), c.LastIrreversibleBlockNum())
	status := c.Status()
	require.Equal(t, uint32(3), status.HeadBlockNum)
	require.Len(t, status.ActiveWitnesses, 3)

	head, err := c.Reader().GetChainStatus()
	require.NoError(t, err)
	require.Equal(t, last.ID(), head.HeadBlockID)
	require.Equal(t, uint32(1), head.LastIrreversibleBlockNum)
	blk, err := c.Reader().QueryBlock(last.ID())
	require.NoError(t, err)
	require.Equal(t, uint32(3), blk.BlockNum())
}

func TestMissedSlots(t *testing.T) {
	c := newTestChain(t)
	produce(t, c, 3)
	require.Equal(t, uint32(1), c.HeadBlockNum())
	require.Equal(t, mock.GenesisTimestamp+9, c.HeadBlockTime())

	var dgp *objects.DynamicGlobalProperty
	c.View(func(db *objdb.Database) error {
		dgp = objects.DynamicGlobalProperties(db)
		return nil
	})
	require.Equal(t, uint64(3), dgp.CurrentAslot)
	// 第一块不计漏块
	require.Equal(t, uint32(0), dgp.RecentlyMissedCount)
}

func TestPushTransactionAndInclude(t *testing.T) {
	c := newTestChain(t, "alice", "bob")
	trx := transfer(t, c, "alice", "bob", 1000, "alice")

	var pendingEvents int
	c.Subscribe(event.PendingTransaction, func(ev interface{}) { pendingEvents++ })

	ptx, err := c.PushTransaction(trx, def.FromMe)
	require.NoError(t, err)
	require.Len(t, ptx.OperationResults, 1)
	require.Equal(t, 1, pendingEvents)
	require.True(t, c.IsKnownTransaction(trx.ID()))
	require.Len(t, c.PendingTransactions(), 1)
	require.Equal(t, mock.InitialBalance+1000, balance(t, c, "bob"))

	_, err = c.PushTransaction(trx, def.FromNet)
	require.True(t, common.Is(err, common.ErrTxAlreadyExist), "got %v", err)

	b := produce(t, c, 1)
	require.Len(t, b.Transactions, 1)
	require.Equal(t, trx.ID(), b.Transactions[0].Hash)
	require.Empty(t, c.PendingTransactions())
	require.Equal(t, mock.InitialBalance-1000, balance(t, c, "alice"))
	require.Equal(t, mock.InitialBalance+1000, balance(t, c, "bob"))

	info, err := c.GetTransactionInBlockInfo(trx.ID())
	require.NoError(t, err)
	require.Equal(t, uint32(1), info.BlockNum)
	require.Equal(t, uint32(0), info.TrxInBlock)

	stored, loc, err := c.FetchTransaction(trx.ID())
	require.NoError(t, err)
	require.Equal(t, uint32(1), loc.BlockNum)
	require.Equal(t, trx.ID(), stored.ID())

	// 已打包的交易不能再次推送
	_, err = c.PushTransaction(trx, def.FromNet)
	require.True(t, common.Is(err, common.ErrTxAlreadyExist), "got %v", err)
}

func TestValidateTransactionLeavesNoTrace(t *testing.T) {
	c := newTestChain(t, "alice", "bob")
	trx := transfer(t, c, "alice", "bob", 500, "alice")

	ptx, err := c.ValidateTransaction(trx)
	require.NoError(t, err)
	require.Len(t, ptx.OperationResults, 1)
	require.Empty(t, c.PendingTransactions())
	require.False(t, c.IsKnownTransaction(trx.ID()))
	require.Equal(t, mock.InitialBalance, balance(t, c, "bob"))
}

func TestPushTransactionAuthority(t *testing.T) {
	c := newTestChain(t, "alice", "bob")

	_, err := c.PushTransaction(transfer(t, c, "alice", "bob", 1, "bob"), def.FromNet)
	require.True(t, common.Is(err, common.ErrMissingActiveAuth), "got %v", err)

	_, err = c.PushTransaction(transfer(t, c, "alice", "bob", 1, "alice", "bob"), def.FromNet)
	require.True(t, common.Is(err, common.ErrIrrelevantSig), "got %v", err)

	_, err = c.PushTransaction(transfer(t, c, "alice", "bob", 1), def.FromNet)
	require.True(t, common.Is(err, common.ErrMissingActiveAuth), "got %v", err)

	_, err = c.PushTransaction(transfer(t, c, "alice", "bob", 1, "alice"), def.FromNet)
	require.NoError(t, err)
}

func TestPushTransactionTapos(t *testing.T) {
	c := newTestChain(t, "alice", "bob")
	produce(t, c, 1)

	expired := transfer(t, c, "alice", "bob", 1)
	expired.Expiration = c.HeadBlockTime() - 1
	key, _ := mock.Key("alice")
	require.NoError(t, expired.Sign(key, c.ChainID()))
	_, err := c.PushTransaction(expired, def.FromNet)
	require.True(t, common.Is(err, common.ErrTxExpired), "got %v", err)

	tooLate := transfer(t, c, "alice", "bob", 1)
	tooLate.Expiration = c.HeadBlockTime() + 86400 + 1
	require.NoError(t, tooLate.Sign(key, c.ChainID()))
	_, err = c.PushTransaction(tooLate, def.FromNet)
	require.True(t, common.Is(err, common.ErrTxExpirationLimit), "got %v", err)

	wrongRef := transfer(t, c, "alice", "bob", 1)
	wrongRef.RefBlockPrefix++
	require.NoError(t, wrongRef.Sign(key, c.ChainID()))
	_, err = c.PushTransaction(wrongRef, def.FromNet)
	require.True(t, common.Is(err, common.ErrTaposMismatch), "got %v", err)
}

func TestGenerateBlockSkipsExpiredAtBlockTime(t *testing.T) {
	c := newTestChain(t, "alice", "bob")
	produce(t, c, 1)

	// 在头部时间有效，到第二个时隙的出块时间已过期
	trx := transfer(t, c, "alice", "bob", 100)
	trx.Expiration = c.HeadBlockTime() + 1
	key, _ := mock.Key("alice")
	require.NoError(t, trx.Sign(key, c.ChainID()))
	_, err := c.PushTransaction(trx, def.FromMe)
	require.NoError(t, err)
	require.Len(t, c.PendingTransactions(), 1)

	b := produce(t, c, 2)
	require.Empty(t, b.Transactions)
	require.Equal(t, uint32(2), c.HeadBlockNum())
	require.Empty(t, c.PendingTransactions())
	require.Equal(t, mock.InitialBalance, balance(t, c, "bob"))
}

func TestPopBlockRestoresTransactions(t *testing.T) {
	c := newTestChain(t, "alice", "bob")
	produce(t, c, 1)
	trx := transfer(t, c, "alice", "bob", 1000, "alice")
	_, err := c.PushTransaction(trx, def.FromMe)
	require.NoError(t, err)
	b := produce(t, c, 1)
	require.Len(t, b.Transactions, 1)

	require.NoError(t, c.PopBlock())
	require.Equal(t, uint32(1), c.HeadBlockNum())
	pending := c.PendingTransactions()
	require.Len(t, pending, 1)
	require.Equal(t, trx.ID(), pending[0].ID())
	// 交易重新进入未确认状态
	require.Equal(t, mock.InitialBalance+1000, balance(t, c, "bob"))
	_, err = c.GetTransactionInBlockInfo(trx.ID())
	require.Error(t, err)

	// 重新出块后再次打包
	b = produce(t, c, 1)
	require.Len(t, b.Transactions, 1)
	require.Equal(t, uint32(2), c.HeadBlockNum())
}

func TestForkSwitch(t *testing.T) {
	a := newTestChain(t, "alice", "bob")
	b := newTestChain(t, "alice", "bob")
	require.Equal(t, a.ChainID(), b.ChainID())

	trx := transfer(t, a, "alice", "bob", 1000, "alice")
	_, err := a.PushTransaction(trx, def.FromMe)
	require.NoError(t, err)
	a1 := produce(t, a, 1)
	require.Len(t, a1.Transactions, 1)
	produce(t, a, 1)

	// b跳过第一个时隙，形成更长的分叉
	var fork []*protos.SignedBlock
	fork = append(fork, produce(t, b, 2))
	fork = append(fork, produce(t, b, 1))
	fork = append(fork, produce(t, b, 1))

	for _, blk := range fork[:2] {
		switched, err := a.PushBlock(blk, 0)
		require.NoError(t, err)
		require.False(t, switched)
		require.Equal(t, uint32(2), a.HeadBlockNum())
		require.True(t, a.IsKnownBlock(blk.ID()))
	}
	switched, err := a.PushBlock(fork[2], 0)
	require.NoError(t, err)
	require.True(t, switched)
	require.Equal(t, fork[2].ID(), a.HeadBlockID())
	require.Equal(t, uint32(3), a.HeadBlockNum())

	// 旧分叉上的交易回到未确认池
	pending := a.PendingTransactions()
	require.Len(t, pending, 1)
	require.Equal(t, trx.ID(), pending[0].ID())
	require.Equal(t, mock.InitialBalance+1000, balance(t, a, "bob"))

	// 已知区块再次推送被忽略
	switched, err = a.PushBlock(fork[2], 0)
	require.NoError(t, err)
	require.False(t, switched)

	ids, err := a.GetBlockIDsOnFork(a.HeadBlockID())
	require.NoError(t, err)
	require.Equal(t, []protos.BlockID{a.HeadBlockID()}, ids)
}

func TestForkSwitchBackOnInvalidBlock(t *testing.T) {
	a := newTestChain(t, "alice", "bob")
	b := newTestChain(t, "alice", "bob")

	_, err := a.PushTransaction(transfer(t, a, "alice", "bob", 1000, "alice"), def.FromMe)
	require.NoError(t, err)
	produce(t, a, 1)
	a2 := produce(t, a, 1)

	// b不校验签名，分叉中间块带一笔未签名的转账
	b.nodeSkip = evaluator.SkipTransactionSignatures
	var fork []*protos.SignedBlock
	fork = append(fork, produce(t, b, 2))
	_, err = b.PushTransaction(transfer(t, b, "alice", "bob", 5000), def.FromNet)
	require.NoError(t, err)
	fork = append(fork, produceWith(t, b, 1, evaluator.SkipTransactionSignatures))
	require.Len(t, fork[1].Transactions, 1)
	fork = append(fork, produce(t, b, 1))

	for _, blk := range fork[:2] {
		_, err := a.PushBlock(blk, 0)
		require.NoError(t, err)
	}
	_, err = a.PushBlock(fork[2], 0)
	require.True(t, common.Is(err, common.ErrMissingActiveAuth), "got %v", err)

	// 切回原分叉，状态不变
	require.Equal(t, a2.ID(), a.HeadBlockID())
	require.Equal(t, uint32(2), a.HeadBlockNum())
	require.Equal(t, mock.InitialBalance-1000, balance(t, a, "alice"))
	require.Equal(t, mock.InitialBalance+1000, balance(t, a, "bob"))
	require.False(t, a.IsKnownBlock(fork[2].ID()))

	next := produce(t, a, 1)
	require.Equal(t, a2.ID(), next.Previous)
	require.Equal(t, uint32(3), a.HeadBlockNum())
}

func TestForkSwitchKeepsIrreversibleBlock(t *testing.T) {
	a := newTestChain(t)
	b := newTestChain(t)

	var blocks []*protos.SignedBlock
	for i := 0; i < 6; i++ {
		blocks = append(blocks, produce(t, a, 1))
	}
	// 第4到6块来自同一轮的三个见证人
	lib := a.LastIrreversibleBlockNum()
	require.True(t, lib > 0 && lib <= 4, "lib %d", lib)

	for _, blk := range blocks[:4] {
		_, err := b.PushBlock(blk, 0)
		require.NoError(t, err)
	}
	var fork []*protos.SignedBlock
	fork = append(fork, produce(t, b, 2))
	fork = append(fork, produce(t, b, 1))
	fork = append(fork, produce(t, b, 1))

	for i, blk := range fork {
		switched, err := a.PushBlock(blk, 0)
		require.NoError(t, err)
		require.Equal(t, i == 2, switched)
		require.GreaterOrEqual(t, a.LastIrreversibleBlockNum(), lib)
	}
	require.Equal(t, fork[2].ID(), a.HeadBlockID())
	require.Equal(t, uint32(7), a.HeadBlockNum())

	produce(t, a, 1)
	require.GreaterOrEqual(t, a.LastIrreversibleBlockNum(), lib)
}

func TestMultiKeyAuthority(t *testing.T) {
	c := newTestChain(t, "alice", "bob")
	_, keyA := mock.Key("alice-a")
	_, keyB := mock.Key("alice-b")
	active := protos.NewKeyAuthority(2, keyA, keyB)

	upd := &protos.SignedTransaction{}
	upd.SetReferenceBlock(c.HeadBlockID())
	upd.Expiration = c.HeadBlockTime() + 60
	upd.Operations = protos.OperationList{&protos.AccountUpdateOperation{
		Fee:     protos.NewAsset(0, protos.CoreAssetID),
		Account: accountID(t, c, "alice"),
		Active:  &active,
	}}
	key, _ := mock.Key("alice")
	require.NoError(t, upd.Sign(key, c.ChainID()))
	_, err := c.PushTransaction(upd, def.FromMe)
	require.NoError(t, err)
	produce(t, c, 1)

	_, err = c.PushTransaction(transfer(t, c, "alice", "bob", 1, "alice-a"), def.FromNet)
	require.True(t, common.Is(err, common.ErrMissingActiveAuth), "got %v", err)
	_, err = c.PushTransaction(transfer(t, c, "alice", "bob", 1, "alice-b"), def.FromNet)
	require.True(t, common.Is(err, common.ErrMissingActiveAuth), "got %v", err)

	_, err = c.PushTransaction(transfer(t, c, "alice", "bob", 1, "alice-a", "alice-b"), def.FromNet)
	require.NoError(t, err)
	b := produce(t, c, 1)
	require.Len(t, b.Transactions, 1)
	require.Equal(t, mock.InitialBalance+1, balance(t, c, "bob"))
}

func TestPushBlockRejectsBadBlocks(t *testing.T) {
	a := newTestChain(t, "alice", "bob")
	b := newTestChain(t, "alice", "bob")
	blk := produce(t, b, 1)

	bad := *blk
	bad.TransactionMerkleRoot[0] ^= 1
	_, err := a.PushBlock(&bad, 0)
	require.Error(t, err)
	require.Equal(t, uint32(0), a.HeadBlockNum())

	// 签名与见证人不符
	forged := *blk
	key, _ := mock.Key("alice")
	require.NoError(t, forged.Sign(key))
	_, err = a.PushBlock(&forged, 0)
	require.True(t, common.Is(err, common.ErrWitnessSignature), "got %v", err)

	orphan := produce(t, b, 1)
	_, err = a.PushBlock(orphan, 0)
	require.True(t, common.Is(err, common.ErrUnlinkableBlock), "got %v", err)

	// 父块到达后，暂存的子块一起接上
	_, err = a.PushBlock(blk, 0)
	require.NoError(t, err)
	require.Equal(t, orphan.ID(), a.HeadBlockID())
	require.Equal(t, uint32(2), a.HeadBlockNum())
}

func TestConfirmationCallback(t *testing.T) {
	c := newTestChain(t, "alice", "bob")
	c.worker.Start()
	defer c.worker.Stop()

	trx := transfer(t, c, "alice", "bob", 10, "alice")
	done := make(chan *asyncworker.Confirmation, 1)
	require.NoError(t, c.SubscribeConfirmation(trx.ID(), trx.Expiration, func(conf *asyncworker.Confirmation) {
		done <- conf
	}))
	_, err := c.PushTransaction(trx, def.FromMe)
	require.NoError(t, err)
	produce(t, c, 1)

	select {
	case conf := <-done:
		require.Equal(t, uint32(1), conf.BlockNum)
		require.Equal(t, trx.ID(), conf.TxID)
	case <-time.After(5 * time.Second):
		t.Fatal("confirmation not delivered")
	}
}

func TestReindex(t *testing.T) {
	c := newTestChain(t, "alice", "bob")
	_, err := c.PushTransaction(transfer(t, c, "alice", "bob", 300, "alice"), def.FromMe)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		produce(t, c, 1)
	}
	head := c.HeadBlockID()

	require.NoError(t, c.Reindex())
	require.Equal(t, head, c.HeadBlockID())
	require.Equal(t, mock.InitialBalance+300, balance(t, c, "bob"))

	produce(t, c, 1)
	require.Equal(t, uint32(5), c.HeadBlockNum())
}

func TestClosedChain(t *testing.T) {
	c := newTestChain(t, "alice", "bob")
	require.NoError(t, c.Close())
	_, err := c.PushTransaction(&protos.SignedTransaction{}, def.FromMe)
	require.Equal(t, def.ErrChainClosed, err)
	_, err = c.PushBlock(&protos.SignedBlock{}, 0)
	require.Equal(t, def.ErrChainClosed, err)
	require.NoError(t, c.Close())
}
