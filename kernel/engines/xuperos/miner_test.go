package xuperos

import (
	"crypto/ecdsa"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xuperchain/xupergraph/bcs/consensus/tdpos"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/mock"
	"github.com/xuperchain/xupergraph/kernel/objdb"
)

func newTestMiner(c *Chain, names ...string) *miner {
	keys := make(map[string]*ecdsa.PrivateKey)
	for _, name := range names {
		keys[name], _ = mock.Key(name)
	}
	return &miner{chain: c, log: c.log, keys: keys, exit: make(chan struct{})}
}

// slotOwner returns the time of slot and the account name of its witness.
func slotOwner(t *testing.T, c *Chain, slot uint32) (uint32, string) {
	var (
		when uint32
		name string
	)
	require.NoError(t, c.View(func(db *objdb.Database) error {
		s := tdpos.NewSchedule(db)
		when = s.SlotTime(slot)
		id, err := s.ScheduledWitness(slot)
		if err != nil {
			return err
		}
		w, err := objects.GetWitness(db, id)
		if err != nil {
			return err
		}
		acc, err := objects.GetAccount(db, w.WitnessAccount)
		if err != nil {
			return err
		}
		name = acc.Name
		return nil
	}))
	return when, name
}

func TestMinerDueSlot(t *testing.T) {
	c := newTestChain(t)
	when, owner := slotOwner(t, c, 1)

	m := newTestMiner(c, owner)
	var task *slotTask
	due := func(now uint32) *slotTask {
		require.NoError(t, c.View(func(db *objdb.Database) error {
			var err error
			task, err = m.dueSlot(db, now)
			return err
		}))
		return task
	}

	require.Nil(t, due(when-1))
	require.Nil(t, due(when+1))
	got := due(when)
	require.NotNil(t, got)
	require.Equal(t, when, got.when)

	// 其他见证人的时隙不出块
	_, other := slotOwner(t, c, 2)
	require.NotEqual(t, owner, other)
	m = newTestMiner(c, other)
	require.Nil(t, due(when))
}

func TestMinerProduce(t *testing.T) {
	c := newTestChain(t)
	var names []string
	for i := 0; i < 3; i++ {
		names = append(names, mock.WitnessName(i))
	}
	m := newTestMiner(c, names...)

	when, _ := slotOwner(t, c, 1)
	m.tryProduce(when)
	require.Equal(t, uint32(1), c.HeadBlockNum())
	require.Equal(t, when, c.HeadBlockTime())

	// 同一时刻不会重复出块
	m.tryProduce(when)
	require.Equal(t, uint32(1), c.HeadBlockNum())

	when, _ = slotOwner(t, c, 1)
	m.tryProduce(when)
	require.Equal(t, uint32(2), c.HeadBlockNum())
}

func TestMinerLowParticipation(t *testing.T) {
	c := newTestChain(t)
	produce(t, c, 1)
	// 漏掉两个时隙，参与率降到 62/64
	produce(t, c, 3)
	require.Equal(t, uint32(2), c.HeadBlockNum())

	when, owner := slotOwner(t, c, 1)
	m := newTestMiner(c, owner)
	m.minParticipation = 10000
	m.tryProduce(when)
	require.Equal(t, uint32(2), c.HeadBlockNum())

	m.minParticipation = 9000
	m.tryProduce(when)
	require.Equal(t, uint32(3), c.HeadBlockNum())
}
