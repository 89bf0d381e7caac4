package def

import "errors"

var (
	ErrBlockChainNotExist = errors.New("blockchain not exist")
	ErrBlockChainExist    = errors.New("blockchain already exist")
	ErrChainClosed        = errors.New("chain closed")
	ErrNoWitnessKey       = errors.New("no signing key for the scheduled witness")
)
