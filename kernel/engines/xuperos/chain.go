package xuperos

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	bcsevaluator "github.com/xuperchain/xupergraph/bcs/evaluator"
	ledgerdef "github.com/xuperchain/xupergraph/bcs/ledger/xledger/def"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/ledger"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/tx"
	xctx "github.com/xuperchain/xupergraph/kernel/common/xcontext"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/asyncworker"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/def"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/event"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/forkdb"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/lib/metrics"
	"github.com/xuperchain/xupergraph/protos"
)

// 定义一条链的实例
// 所有修改链状态的调用由mutex串行化，事件在修改完成后按顺序分发
type Chain struct {
	// 链级上下文
	ctx *def.ChainCtx
	log logs.Logger

	mutex sync.Mutex
	// 持有期间分发事件，保证事件顺序与修改顺序一致
	pubMutex sync.Mutex
	events   []interface{}

	// 对象数据库，含未确认交易状态
	db *objdb.Database
	// 分叉数据库
	forkDB *forkdb.ForkDB
	// 未确认交易池
	pool *tx.Mempool
	// 未确认交易的撤销会话，新块到达前撤销
	pendingSession *objdb.Session

	router      *event.Router
	worker      *asyncworker.AsyncWorkerImpl
	rebroadcast *rate.Limiter
	miner       *miner

	chainID        protos.ChainID
	nodeSkip       evaluator.Skip
	maxBlockSize   int64
	maxUndoHistory uint32

	// 正在应用的区块内的位置
	appliedOps    []*event.OperationHistory
	curBlockNum   uint32
	curTrxInBlock uint32

	exit   chan struct{}
	closed bool
}

// LoadChain opens chain bcName with the components configured for the engine.
func LoadChain(engCtx *def.EngineCtx, bcName string) (*Chain, error) {
	return NewChain(engCtx, bcName, NewChainRelyAgent(engCtx, bcName))
}

// NewChain opens chain bcName with the components agent creates. The object
// store is loaded from the last snapshot when it is usable, rebuilt from the
// stored blocks otherwise.
func NewChain(engCtx *def.EngineCtx, bcName string, agent def.ChainRelyAgent) (*Chain, error) {
	if engCtx == nil || bcName == "" || agent == nil {
		return nil, fmt.Errorf("new chain failed because param error")
	}
	ctx, err := createChainCtx(engCtx, bcName, agent)
	if err != nil {
		return nil, err
	}

	engCfg := engCtx.EngCfg
	skip, err := ParseSkipFlags(engCfg.SkipFlags)
	if err != nil {
		ctx.Ledger.Close()
		return nil, err
	}
	maxBlockSize, err := engCfg.MaxBlockSizeBytes()
	if err != nil {
		ctx.Ledger.Close()
		return nil, err
	}
	chainID, _ := ctx.Genesis.ChainID()

	c := &Chain{
		ctx:            ctx,
		log:            ctx.XLog,
		db:             objdb.NewDatabase(),
		forkDB:         forkdb.New(),
		pool:           tx.NewMempool(ctx.XLog, engCfg.MaxPendingSize),
		router:         event.NewRouter(ctx.XLog),
		worker:         asyncworker.NewAsyncWorkerImpl(bcName, ctx.XLog),
		rebroadcast:    rate.NewLimiter(rate.Limit(engCfg.Rebroadcast.Rate), engCfg.Rebroadcast.Burst),
		chainID:        chainID,
		nodeSkip:       skip,
		maxBlockSize:   maxBlockSize,
		maxUndoHistory: engCfg.MaxUndoHistory,
		exit:           make(chan struct{}),
	}
	if c.maxUndoHistory == 0 {
		c.maxUndoHistory = protos.MaxUndoHistory
	}
	objects.RegisterIndexes(c.db)
	c.router.SubscribeBlocks(nil, c.worker.OnAppliedBlock)

	if err := c.open(); err != nil {
		ctx.Ledger.Close()
		return nil, fmt.Errorf("open chain %s failed.err:%v", bcName, err)
	}
	if engCfg.Miner.Enable {
		c.miner, err = newMiner(c, engCfg.Miner)
		if err != nil {
			ctx.Ledger.Close()
			return nil, err
		}
	}
	c.log.Info("chain opened", "bc", bcName, "head", c.headBlockNum(),
		"lib", objects.DynamicGlobalProperties(c.db).LastIrreversibleBlockNum)
	return c, nil
}

func createChainCtx(engCtx *def.EngineCtx, bcName string, agent def.ChainRelyAgent) (*def.ChainCtx, error) {
	base, err := xctx.NewBaseCtx(bcName)
	if err != nil {
		return nil, fmt.Errorf("new chain ctx failed because new logger error.err:%v", err)
	}
	ctx := &def.ChainCtx{BaseCtx: base, EngCtx: engCtx, BCName: bcName}

	// 1.创世配置
	ctx.Genesis, err = agent.CreateGenesis()
	if err != nil {
		return nil, fmt.Errorf("load genesis failed.err:%v", err)
	}
	chainID, err := ctx.Genesis.ChainID()
	if err != nil {
		return nil, fmt.Errorf("compute chain id failed.err:%v", err)
	}

	// 2.操作执行器
	ctx.Registry = evaluator.NewRegistry()
	bcsevaluator.RegisterAll(ctx.Registry)
	if ctx.Proposal, err = agent.CreateProposal(ctx.Registry); err != nil {
		return nil, fmt.Errorf("create proposal failed.err:%v", err)
	}
	if ctx.TimerTask, err = agent.CreateTimerTask(ctx.Registry); err != nil {
		return nil, fmt.Errorf("create timer task failed.err:%v", err)
	}
	if ctx.Contract, err = agent.CreateContract(ctx.Registry, chainID); err != nil {
		return nil, fmt.Errorf("create contract failed.err:%v", err)
	}

	// 3.共识和清算
	if ctx.Consensus, err = agent.CreateConsensus(); err != nil {
		return nil, fmt.Errorf("create consensus failed.err:%v", err)
	}
	if ctx.Market, err = agent.CreateMarket(); err != nil {
		return nil, fmt.Errorf("create market failed.err:%v", err)
	}

	// 4.账本最后打开，之后的错误需要关闭账本
	if ctx.Ledger, err = agent.CreateLedger(); err != nil {
		return nil, fmt.Errorf("open ledger failed.err:%v", err)
	}
	return ctx, nil
}

func (c *Chain) open() error {
	leg := c.ctx.Ledger
	version, err := leg.DBVersion()
	if err != nil {
		return err
	}
	if version == ledgerdef.DBVersion {
		ok, err := c.db.Load(leg.ObjectStore())
		switch {
		case err != nil:
			c.log.Warn("load object store failed, reindex", "err", err)
		case !ok:
			c.log.Info("no object store snapshot, reindex")
		case !c.snapshotUsable():
			c.log.Warn("object store snapshot does not match the ledger, reindex")
		default:
			if err := c.replay(c.headBlockNum() + 1); err != nil {
				return err
			}
			c.startForkDB()
			return nil
		}
	} else if version != "" {
		c.log.Warn("object store version changed, reindex", "have", version, "want", ledgerdef.DBVersion)
	}
	if err := c.reindex(); err != nil {
		return err
	}
	c.startForkDB()
	return nil
}

func (c *Chain) snapshotUsable() bool {
	props, ok := c.db.Find(protos.ChainPropertyID).(*objects.ChainProperty)
	if !ok || props.ChainID != c.chainID {
		return false
	}
	dgp, ok := c.db.Find(protos.DynamicGlobalPropertyID).(*objects.DynamicGlobalProperty)
	if !ok {
		return false
	}
	if dgp.HeadBlockNumber > c.ctx.Ledger.HeadNum() {
		return false
	}
	if dgp.HeadBlockNumber == 0 {
		return true
	}
	id, err := c.ctx.Ledger.BlockIDByNumber(dgp.HeadBlockNumber)
	return err == nil && id == dgp.HeadBlockID
}

// reindex rebuilds the object store from genesis and the stored blocks.
func (c *Chain) reindex() error {
	t := time.Now()
	leg := c.ctx.Ledger
	c.log.Info("reindex object store", "bc", c.ctx.BCName, "blocks", leg.HeadNum())
	c.db.Reset()
	if err := leg.WipeObjectStore(); err != nil {
		return err
	}
	if err := ledger.InitGenesis(c, c.ctx.Registry, c.ctx.Genesis); err != nil {
		return errors.Wrap(err, "init genesis")
	}
	if err := c.replay(1); err != nil {
		return err
	}
	c.log.Info("reindex done", "bc", c.ctx.BCName, "head", c.headBlockNum(), "cost", time.Since(t))
	return nil
}

// Reindex drops the object store and rebuilds it from the stored blocks.
func (c *Chain) Reindex() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return def.ErrChainClosed
	}
	c.clearPendingState()
	c.pool.DrainPending()
	c.pool.DrainPopped()
	if err := c.reindex(); err != nil {
		return err
	}
	c.forkDB.Reset()
	c.startForkDB()
	return nil
}

// replay applies the stored blocks from number from to the ledger head. The
// blocks were validated when first pushed, so signature, TaPoS and schedule
// checks are skipped. Agreed tasks still reproduce their recorded results.
func (c *Chain) replay(from uint32) error {
	leg := c.ctx.Ledger
	head := leg.HeadNum()
	skip := evaluator.ReplaySkip | evaluator.SkipForkDB | evaluator.SkipUndoHistoryCheck |
		evaluator.SkipMerkleCheck | evaluator.SkipBlockSizeCheck
	for num := from; num <= head; num++ {
		b, err := leg.FetchByNumber(num)
		if err != nil {
			return err
		}
		session := c.db.StartUndoSession(false)
		err = c.applyBlock(b, skip)
		if err != nil {
			session.Release()
			return errors.Wrapf(err, "replay block %d", num)
		}
		session.Commit()
		if num%10000 == 0 {
			c.log.Info("replaying blocks", "num", num, "head", head)
		}
	}
	// 重放不分发事件
	c.events = nil
	return nil
}

func (c *Chain) startForkDB() {
	dgp := objects.DynamicGlobalProperties(c.db)
	c.forkDB.SetMaxSize(dgp.HeadBlockNumber - dgp.LastIrreversibleBlockNum + 1)
	if dgp.HeadBlockNumber == 0 {
		return
	}
	last, err := c.ctx.Ledger.FetchByID(dgp.HeadBlockID)
	if err != nil {
		c.log.Warn("head block missing from ledger", "id", dgp.HeadBlockID, "err", err)
		return
	}
	c.forkDB.StartBlock(last)
}

// Start runs the background workers and blocks until Stop.
func (c *Chain) Start() {
	c.worker.Start()
	if c.miner != nil {
		go c.miner.start()
	}
	<-c.exit
}

// Stop 需要幂等
func (c *Chain) Stop() {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return
	}
	c.mutex.Unlock()

	if c.miner != nil {
		c.miner.stop()
	}
	c.worker.Stop()
	if err := c.Close(); err != nil {
		c.log.Error("close chain failed", "bc", c.ctx.BCName, "err", err)
	}
	close(c.exit)
}

// Close flushes the object store and closes the ledger. Pending transactions
// are dropped.
func (c *Chain) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.clearPendingState()

	leg := c.ctx.Ledger
	defer leg.Close()
	// 快照只保存头部状态
	c.db.Commit(c.db.Revision())
	if err := c.db.Flush(leg.ObjectStore()); err != nil {
		return err
	}
	return leg.SetDBVersion(ledgerdef.DBVersion)
}

func (c *Chain) GetChainCtx() *def.ChainCtx {
	return c.ctx
}

func (c *Chain) DB() *objdb.Database     { return c.db }
func (c *Chain) ChainID() protos.ChainID { return c.chainID }
func (c *Chain) Logger() logs.Logger     { return c.log }

func (c *Chain) headBlockNum() uint32 {
	return objects.DynamicGlobalProperties(c.db).HeadBlockNumber
}

func (c *Chain) headBlockID() protos.BlockID {
	return objects.DynamicGlobalProperties(c.db).HeadBlockID
}

func (c *Chain) queueEvent(ev interface{}) {
	c.events = append(c.events, ev)
}

// unlockAndPublish releases the chain and dispatches the events raised while
// it was held. Subscribers may call the read API.
func (c *Chain) unlockAndPublish() {
	evs := c.events
	c.events = nil
	c.pubMutex.Lock()
	c.mutex.Unlock()
	defer c.pubMutex.Unlock()
	for _, ev := range evs {
		if err := c.router.Publish(ev); err != nil {
			c.log.Warn("publish event failed", "err", err)
		}
	}
}

func (c *Chain) observe(method string, start time.Time) {
	metrics.CallMethodCounter.WithLabelValues(c.ctx.BCName, method).Inc()
	metrics.CallMethodHistogram.WithLabelValues(c.ctx.BCName, method).Observe(time.Since(start).Seconds())
}
