// Package def holds the names and errors shared by the ledger packages.
package def

import (
	"errors"
	"strings"

	"github.com/xuperchain/xupergraph/lib/storage/kvdb"
)

const (
	LedgerSubModName = "ledger"

	// table prefixes of the block store
	BlocksTablePrefix    = "B"
	BlockNumTablePrefix  = "N"
	TxIndexTablePrefix   = "T"
	MetaTablePrefix      = "M"
	ObjectDBTablePrefix  = "O"
	MetaKeyHead          = "head"
	MetaKeyDBVersion     = "db_version"
	DefaultBlockCacheLen = 512
)

// DBVersion gates reuse of a stored object store: a different value wipes it
// and replays every stored block.
const DBVersion = "xgraph-objdb-1"

var (
	ErrKVNotFound       = kvdb.ErrNotFound
	ErrBlockNotExist    = errors.New("block not exist in ledger")
	ErrTxNotFound       = errors.New("transaction not found in ledger")
	ErrBlockNotLinked   = errors.New("block does not extend the stored head")
	ErrLedgerClosed     = errors.New("ledger closed")
	ErrDBVersionChanged = errors.New("object store version changed")
)

// NormalizedKVError maps the not-found errors of every kv engine to
// ErrKVNotFound.
func NormalizedKVError(err error) error {
	if err == nil || err == ErrKVNotFound {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not found") {
		return ErrKVNotFound
	}
	return err
}
