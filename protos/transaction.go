package protos

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

var (
	ErrDuplicateSignature = errors.New("duplicate signature")
	ErrBadSignature       = errors.New("bad signature")
)

// Transaction is the signed payload. RefBlockNum and RefBlockPrefix bind it to
// a recent block so it cannot be replayed on another fork.
type Transaction struct {
	RefBlockNum    uint16
	RefBlockPrefix uint32
	Expiration     uint32
	Operations     OperationList
}

func (t *Transaction) encode() []byte {
	b, err := rlp.EncodeToBytes(t)
	if err != nil {
		panic(err)
	}
	return b
}

// Digest is what signers sign: keccak256(chain id || rlp(tx)).
func (t *Transaction) Digest(chainID ChainID) [32]byte {
	var d [32]byte
	copy(d[:], crypto.Keccak256(chainID[:], t.encode()))
	return d
}

func (t *Transaction) SetReferenceBlock(id BlockID) {
	t.RefBlockNum = uint16(id.Num())
	t.RefBlockPrefix = id.Prefix()
}

func (t *Transaction) Validate() error {
	return t.Operations.Validate()
}

func (t *Transaction) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	t.Operations.RequiredAuthorities(active, owner, other)
}

// AgreedTask marks a transaction executed on behalf of a proposal or crontab.
type AgreedTask struct {
	TaskHash TxID
	TaskID   ObjectID
}

type SignedTransaction struct {
	Transaction
	Signatures [][]byte
	AgreedTask *AgreedTask `rlp:"nil"`
}

// TaskID is the identity of the unsigned body, used to bind agreed tasks.
func (t *Transaction) TaskID() TxID {
	var id TxID
	copy(id[:], crypto.Keccak256(t.encode()))
	return id
}

// ID identifies the transaction for dedup and lookup. Agreed tasks mix in the
// task object so two tasks with equal bodies stay distinct.
func (t *SignedTransaction) ID() TxID {
	if t.AgreedTask == nil {
		return t.TaskID()
	}
	task, err := rlp.EncodeToBytes(t.AgreedTask)
	if err != nil {
		panic(err)
	}
	var id TxID
	copy(id[:], crypto.Keccak256(t.encode(), task))
	return id
}

func (t *SignedTransaction) IsAgreedTask() bool { return t.AgreedTask != nil }

func (t *SignedTransaction) Sign(key *ecdsa.PrivateKey, chainID ChainID) error {
	d := t.Digest(chainID)
	sig, err := crypto.Sign(d[:], key)
	if err != nil {
		return err
	}
	t.Signatures = append(t.Signatures, sig)
	return nil
}

// SignatureKeys recovers the public key of every signature.
func (t *SignedTransaction) SignatureKeys(chainID ChainID) ([]PublicKey, error) {
	d := t.Digest(chainID)
	keys := make([]PublicKey, 0, len(t.Signatures))
	seen := make(map[PublicKey]struct{}, len(t.Signatures))
	for _, sig := range t.Signatures {
		pub, err := crypto.SigToPub(d[:], sig)
		if err != nil {
			return nil, errors.Wrap(ErrBadSignature, err.Error())
		}
		k := PublicKeyFromECDSA(pub)
		if _, dup := seen[k]; dup {
			return nil, ErrDuplicateSignature
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys, nil
}

func (t *SignedTransaction) Size() int {
	b, err := rlp.EncodeToBytes(t)
	if err != nil {
		return 0
	}
	return len(b)
}

// ProcessedTransaction is a transaction with the results of its operations.
type ProcessedTransaction struct {
	SignedTransaction
	OperationResults OperationResultList
}

func (t *ProcessedTransaction) MerkleDigest() [32]byte {
	b, err := rlp.EncodeToBytes(t)
	if err != nil {
		panic(err)
	}
	var d [32]byte
	copy(d[:], crypto.Keccak256(b))
	return d
}
