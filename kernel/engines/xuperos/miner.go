// 矿工
// 轮到本节点的见证人时打包出块
package xuperos

import (
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/xuperchain/xupergraph/bcs/consensus/tdpos"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	engconf "github.com/xuperchain/xupergraph/kernel/engines/xuperos/config"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/def"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/protos"
)

const minerTick = 250 * time.Millisecond

// 封装矿工这个角色的所有行为
type miner struct {
	chain *Chain
	log   logs.Logger
	// 见证人账户名 => 出块私钥
	keys map[string]*ecdsa.PrivateKey
	// 万分比
	minParticipation uint32

	exit   chan struct{}
	exitWG sync.WaitGroup
	once   sync.Once
}

func newMiner(c *Chain, cfg engconf.MinerConfig) (*miner, error) {
	if len(cfg.Witnesses) == 0 {
		return nil, fmt.Errorf("miner enabled without witnesses: %w", def.ErrNoWitnessKey)
	}
	keyDir := c.ctx.EngCtx.EnvCfg.GenDirAbsPath(cfg.KeyPath)
	keys, err := def.LoadWitnessKeys(keyDir, cfg.Witnesses)
	if err != nil {
		return nil, err
	}
	return &miner{
		chain:            c,
		log:              c.log,
		keys:             keys,
		minParticipation: cfg.MinParticipation * uint32(protos.FullPercent) / 100,
		exit:             make(chan struct{}),
	}, nil
}

// 启动矿工，阻塞直到stop
func (t *miner) start() {
	t.exitWG.Add(1)
	defer t.exitWG.Done()

	ticker := time.NewTicker(minerTick)
	defer ticker.Stop()
	t.log.Info("miner started", "witnesses", len(t.keys))
	for {
		select {
		case <-t.exit:
			t.log.Info("miner exit")
			return
		case now := <-ticker.C:
			t.tryProduce(uint32(now.Unix()))
		}
	}
}

// 停止矿工，需要幂等
func (t *miner) stop() {
	t.once.Do(func() { close(t.exit) })
	t.exitWG.Wait()
}

// slotTask is a slot this node may fill.
type slotTask struct {
	when    uint32
	witness protos.ObjectID
	key     *ecdsa.PrivateKey
}

func (t *miner) tryProduce(now uint32) {
	var task *slotTask
	err := t.chain.View(func(db *objdb.Database) error {
		var err error
		task, err = t.dueSlot(db, now)
		return err
	})
	if err != nil {
		t.log.Warn("miner check slot failed", "err", err)
		return
	}
	if task == nil {
		return
	}
	b, err := t.chain.GenerateBlock(task.when, task.witness, task.key, t.chain.nodeSkip)
	if err != nil {
		t.log.Warn("produce block failed", "when", task.when, "witness", task.witness, "err", err)
		return
	}
	t.log.Info("produced block", "num", b.BlockNum(), "id", b.ID(), "txs", len(b.Transactions))
}

// dueSlot returns the slot starting at now when it belongs to one of our
// witnesses, nil otherwise.
func (t *miner) dueSlot(db *objdb.Database, now uint32) (*slotTask, error) {
	s := tdpos.NewSchedule(db)
	slot := s.SlotAtTime(now)
	if slot == 0 {
		return nil, nil
	}
	// 错过的时隙不补
	when := s.SlotTime(slot)
	if when != now {
		return nil, nil
	}
	id, err := s.ScheduledWitness(slot)
	if err != nil {
		return nil, err
	}
	w, err := objects.GetWitness(db, id)
	if err != nil {
		return nil, err
	}
	acc, err := objects.GetAccount(db, w.WitnessAccount)
	if err != nil {
		return nil, err
	}
	key, ok := t.keys[acc.Name]
	if !ok {
		return nil, nil
	}
	if protos.PublicKeyFromECDSA(&key.PublicKey) != w.SigningKey {
		t.log.Warn("local key is not the signing key of witness", "witness", acc.Name)
		return nil, nil
	}
	if rate := s.ParticipationRate(); rate < t.minParticipation && objects.DynamicGlobalProperties(db).HeadBlockNumber > 0 {
		t.log.Warn("participation too low, not producing", "rate", rate, "min", t.minParticipation)
		return nil, nil
	}
	return &slotTask{when: when, witness: id, key: key}, nil
}
