// Package ledger stores the blocks of the chain and the object store snapshot.
//
// Blocks are append-only, keyed by id. A number index points at the block
// currently on the main chain; popping a block only moves the head, the block
// stays fetchable by id until it is removed explicitly.
package ledger

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/def"
	"github.com/xuperchain/xupergraph/lib/metrics"
	"github.com/xuperchain/xupergraph/lib/storage/kvdb"
	"github.com/xuperchain/xupergraph/protos"
)

// TxLocation tells where a transaction sits in the stored chain.
type TxLocation struct {
	BlockNum   uint32
	TrxInBlock uint32
}

type Ledger struct {
	ctx *LedgerCtx

	baseDB      kvdb.Database
	blocksTable kvdb.Database // block id -> snappy(rlp(block))
	numTable    kvdb.Database // block number -> block id
	txTable     kvdb.Database // tx id -> TxLocation
	metaTable   kvdb.Database // head, db_version
	objTable    kvdb.Database // object store snapshot

	blockCache *lru.Cache

	mutex   sync.RWMutex
	headNum uint32
	closed  bool
}

// OpenLedger opens or creates the block store under the chain data path.
func OpenLedger(lctx *LedgerCtx) (*Ledger, error) {
	if lctx == nil {
		return nil, fmt.Errorf("open ledger failed because context set error")
	}
	kvParam := lctx.KVParameter()
	baseDB, err := kvdb.CreateKVInstance(kvParam)
	if err != nil {
		lctx.XLog.Warn("fail to open kv instance", "path", kvParam.DBPath, "err", err)
		return nil, err
	}
	return newLedger(lctx, baseDB)
}

func newLedger(lctx *LedgerCtx, baseDB kvdb.Database) (*Ledger, error) {
	cacheSize := lctx.LedgerCfg.BlockCacheSize
	if cacheSize <= 0 {
		cacheSize = def.DefaultBlockCacheLen
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		ctx:         lctx,
		baseDB:      baseDB,
		blocksTable: kvdb.NewTable(baseDB, def.BlocksTablePrefix),
		numTable:    kvdb.NewTable(baseDB, def.BlockNumTablePrefix),
		txTable:     kvdb.NewTable(baseDB, def.TxIndexTablePrefix),
		metaTable:   kvdb.NewTable(baseDB, def.MetaTablePrefix),
		objTable:    kvdb.NewTable(baseDB, def.ObjectDBTablePrefix),
		blockCache:  cache,
	}
	raw, err := l.metaTable.Get([]byte(def.MetaKeyHead))
	switch err = def.NormalizedKVError(err); err {
	case nil:
		if len(raw) != 4 {
			return nil, fmt.Errorf("corrupted ledger head record")
		}
		l.headNum = binary.BigEndian.Uint32(raw)
	case def.ErrKVNotFound:
	default:
		return nil, err
	}
	lctx.XLog.Info("ledger opened", "bc", lctx.BCName, "head", l.headNum)
	return l, nil
}

func numKey(num uint32) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], num)
	return k[:]
}

// HeadNum is the number of the last block on the main chain, zero when empty.
func (l *Ledger) HeadNum() uint32 {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.headNum
}

// Store appends b to the main chain. b must be the block after the head.
func (l *Ledger) Store(b *protos.SignedBlock) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return def.ErrLedgerClosed
	}
	num := b.BlockNum()
	if num != l.headNum+1 {
		return errors.Wrapf(def.ErrBlockNotLinked, "block %d, head %d", num, l.headNum)
	}
	enc, err := b.Encode()
	if err != nil {
		return err
	}
	id := b.ID()

	batch := l.baseDB.NewBatch()
	blocks := kvdb.NewTableBatch(batch, def.BlocksTablePrefix)
	blocks.Put(id[:], snappy.Encode(nil, enc))
	kvdb.NewTableBatch(batch, def.BlockNumTablePrefix).Put(numKey(num), id[:])
	txs := kvdb.NewTableBatch(batch, def.TxIndexTablePrefix)
	for i := range b.Transactions {
		loc, err := rlp.EncodeToBytes(&TxLocation{BlockNum: num, TrxInBlock: uint32(i)})
		if err != nil {
			return err
		}
		txs.Put(b.Transactions[i].Hash[:], loc)
	}
	kvdb.NewTableBatch(batch, def.MetaTablePrefix).Put([]byte(def.MetaKeyHead), numKey(num))
	if err := batch.Write(); err != nil {
		return err
	}
	l.headNum = num
	l.blockCache.Add(id, b)
	metrics.LedgerBlockCounter.WithLabelValues(l.ctx.BCName).Inc()
	return nil
}

// PopHead moves the main chain head back by one block. The block stays
// fetchable by id.
func (l *Ledger) PopHead() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.headNum == 0 {
		return def.ErrBlockNotExist
	}
	batch := l.baseDB.NewBatch()
	kvdb.NewTableBatch(batch, def.BlockNumTablePrefix).Delete(numKey(l.headNum))
	kvdb.NewTableBatch(batch, def.MetaTablePrefix).Put([]byte(def.MetaKeyHead), numKey(l.headNum-1))
	if err := batch.Write(); err != nil {
		return err
	}
	l.headNum--
	return nil
}

// Remove forgets the block with id. Main chain blocks cannot be removed.
func (l *Ledger) Remove(id protos.BlockID) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if onChain, err := l.blockIDByNumber(id.Num()); err == nil && onChain == id {
		return fmt.Errorf("block %d is on the main chain", id.Num())
	}
	l.blockCache.Remove(id)
	return l.blocksTable.Delete(id[:])
}

func (l *Ledger) IsKnownBlock(id protos.BlockID) bool {
	if l.blockCache.Contains(id) {
		return true
	}
	ok, err := l.blocksTable.Has(id[:])
	return err == nil && ok
}

// FetchByID returns the block with id, on the main chain or not.
func (l *Ledger) FetchByID(id protos.BlockID) (*protos.SignedBlock, error) {
	if v, ok := l.blockCache.Get(id); ok {
		return v.(*protos.SignedBlock), nil
	}
	raw, err := l.blocksTable.Get(id[:])
	if err = def.NormalizedKVError(err); err != nil {
		if err == def.ErrKVNotFound {
			return nil, errors.Wrapf(def.ErrBlockNotExist, "id %s", id)
		}
		return nil, err
	}
	enc, err := snappy.Decode(nil, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress block %s", id)
	}
	b, err := protos.DecodeBlock(enc)
	if err != nil {
		return nil, errors.Wrapf(err, "decode block %s", id)
	}
	l.blockCache.Add(id, b)
	return b, nil
}

func (l *Ledger) blockIDByNumber(num uint32) (protos.BlockID, error) {
	var id protos.BlockID
	if num == 0 || num > l.headNum {
		return id, errors.Wrapf(def.ErrBlockNotExist, "number %d, head %d", num, l.headNum)
	}
	raw, err := l.numTable.Get(numKey(num))
	if err = def.NormalizedKVError(err); err != nil {
		if err == def.ErrKVNotFound {
			return id, errors.Wrapf(def.ErrBlockNotExist, "number %d", num)
		}
		return id, err
	}
	copy(id[:], raw)
	return id, nil
}

// BlockIDByNumber returns the id of main chain block num.
func (l *Ledger) BlockIDByNumber(num uint32) (protos.BlockID, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.blockIDByNumber(num)
}

func (l *Ledger) FetchByNumber(num uint32) (*protos.SignedBlock, error) {
	id, err := l.BlockIDByNumber(num)
	if err != nil {
		return nil, err
	}
	return l.FetchByID(id)
}

// Last returns the head block, nil on an empty ledger.
func (l *Ledger) Last() (*protos.SignedBlock, error) {
	num := l.HeadNum()
	if num == 0 {
		return nil, nil
	}
	return l.FetchByNumber(num)
}

// FetchTransaction looks a transaction up in the main chain.
func (l *Ledger) FetchTransaction(txID protos.TxID) (*protos.ProcessedTransaction, *TxLocation, error) {
	raw, err := l.txTable.Get(txID[:])
	if err = def.NormalizedKVError(err); err != nil {
		if err == def.ErrKVNotFound {
			return nil, nil, errors.Wrapf(def.ErrTxNotFound, "%s", txID)
		}
		return nil, nil, err
	}
	loc := new(TxLocation)
	if err := rlp.DecodeBytes(raw, loc); err != nil {
		return nil, nil, err
	}
	b, err := l.FetchByNumber(loc.BlockNum)
	if errors.Cause(err) == def.ErrBlockNotExist {
		return nil, nil, errors.Wrapf(def.ErrTxNotFound, "%s, block %d popped", txID, loc.BlockNum)
	}
	if err != nil {
		return nil, nil, err
	}
	if int(loc.TrxInBlock) >= len(b.Transactions) || b.Transactions[loc.TrxInBlock].Hash != txID {
		// indexed on a block that was popped since
		return nil, nil, errors.Wrapf(def.ErrTxNotFound, "%s", txID)
	}
	return &b.Transactions[loc.TrxInBlock].Trx, loc, nil
}

// DBVersion returns the recorded object store version, empty if none.
func (l *Ledger) DBVersion() (string, error) {
	raw, err := l.metaTable.Get([]byte(def.MetaKeyDBVersion))
	if err = def.NormalizedKVError(err); err != nil {
		if err == def.ErrKVNotFound {
			return "", nil
		}
		return "", err
	}
	return string(raw), nil
}

func (l *Ledger) SetDBVersion(v string) error {
	return l.metaTable.Put([]byte(def.MetaKeyDBVersion), []byte(v))
}

// ObjectStore is the table the object store snapshot is flushed to.
func (l *Ledger) ObjectStore() kvdb.Database {
	return l.objTable
}

// WipeObjectStore deletes the object store snapshot and its version marker.
func (l *Ledger) WipeObjectStore() error {
	it := l.objTable.NewIteratorWithPrefix(nil)
	defer it.Release()
	batch := l.objTable.NewBatch()
	for it.Next() {
		key := append([]byte(nil), it.Key()...)
		if err := batch.Delete(key); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return err
	}
	return l.metaTable.Delete([]byte(def.MetaKeyDBVersion))
}

func (l *Ledger) Close() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.baseDB.Close()
	l.ctx.XLog.Info("ledger closed", "bc", l.ctx.BCName, "head", l.headNum)
}
