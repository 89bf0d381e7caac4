package protos

import (
	"crypto/ecdsa"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

type BlockHeader struct {
	Previous              BlockID
	Timestamp             uint32
	Witness               ObjectID
	TransactionMerkleRoot [32]byte
}

func (h *BlockHeader) BlockNum() uint32 { return h.Previous.Num() + 1 }

// Digest is what the witness signs.
func (h *BlockHeader) Digest() [32]byte {
	b, err := rlp.EncodeToBytes(h)
	if err != nil {
		panic(err)
	}
	var d [32]byte
	copy(d[:], crypto.Keccak256(b))
	return d
}

type SignedBlockHeader struct {
	BlockHeader
	WitnessSignature []byte
}

// ID hashes the signed header and stamps the block number into the first four bytes.
func (h *SignedBlockHeader) ID() BlockID {
	b, err := rlp.EncodeToBytes(h)
	if err != nil {
		panic(err)
	}
	var id BlockID
	copy(id[:], crypto.Keccak256(b))
	binary.BigEndian.PutUint32(id[:4], h.BlockNum())
	return id
}

func (h *SignedBlockHeader) Sign(key *ecdsa.PrivateKey) error {
	d := h.Digest()
	sig, err := crypto.Sign(d[:], key)
	if err != nil {
		return err
	}
	h.WitnessSignature = sig
	return nil
}

func (h *SignedBlockHeader) Signee() (PublicKey, error) {
	d := h.Digest()
	pub, err := crypto.SigToPub(d[:], h.WitnessSignature)
	if err != nil {
		return PublicKey{}, ErrBadSignature
	}
	return PublicKeyFromECDSA(pub), nil
}

func (h *SignedBlockHeader) ValidateSignee(expected PublicKey) bool {
	k, err := h.Signee()
	return err == nil && k == expected
}

// BlockTrx pairs a processed transaction with its id.
type BlockTrx struct {
	Hash TxID
	Trx  ProcessedTransaction
}

type SignedBlock struct {
	SignedBlockHeader
	Transactions []BlockTrx
}

// CalculateMerkleRoot hashes the transaction merkle digests pairwise; an odd
// trailing node is carried up unchanged.
func (b *SignedBlock) CalculateMerkleRoot() [32]byte {
	var root [32]byte
	if len(b.Transactions) == 0 {
		return root
	}
	ids := make([][32]byte, len(b.Transactions))
	for i := range b.Transactions {
		ids[i] = b.Transactions[i].Trx.MerkleDigest()
	}
	for n := len(ids); n > 1; n = (n + 1) / 2 {
		for i := 0; i < n; i += 2 {
			if i+1 < n {
				copy(ids[i/2][:], crypto.Keccak256(ids[i][:], ids[i+1][:]))
			} else {
				ids[i/2] = ids[i]
			}
		}
	}
	return ids[0]
}

func (b *SignedBlock) Size() int {
	enc, err := rlp.EncodeToBytes(b)
	if err != nil {
		return 0
	}
	return len(enc)
}

func (b *SignedBlock) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(b)
}

func DecodeBlock(data []byte) (*SignedBlock, error) {
	b := new(SignedBlock)
	if err := rlp.DecodeBytes(data, b); err != nil {
		return nil, err
	}
	return b, nil
}
