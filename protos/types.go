package protos

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/tmthrgd/go-hex"
)

// Object spaces
const (
	ProtocolSpace       uint8 = 1
	ImplementationSpace uint8 = 2
	NHAssetSpace        uint8 = 4
)

// Protocol object types
const (
	ObjTypeAccount            uint8 = 2
	ObjTypeAsset              uint8 = 3
	ObjTypeForceSettlement    uint8 = 4
	ObjTypeCommitteeMember    uint8 = 5
	ObjTypeWitness            uint8 = 6
	ObjTypeProposal           uint8 = 10
	ObjTypeContract           uint8 = 14
	ObjTypeCrontab            uint8 = 15
	ObjTypeTemporaryAuthority uint8 = 16
)

// Non homogeneous asset object types
const (
	ObjTypeNHAssetCreator uint8 = 0
	ObjTypeWorldView      uint8 = 1
	ObjTypeNHAsset        uint8 = 2
)

// Implementation object types
const (
	ImplTypeGlobalProperty         uint8 = 0
	ImplTypeDynamicGlobalProperty  uint8 = 1
	ImplTypeAssetDynamicData       uint8 = 3
	ImplTypeAssetBitassetData      uint8 = 4
	ImplTypeAccountBalance         uint8 = 5
	ImplTypeAccountStatistics      uint8 = 6
	ImplTypeTransaction            uint8 = 7
	ImplTypeBlockSummary           uint8 = 8
	ImplTypeWitnessSchedule        uint8 = 10
	ImplTypeBudgetRecord           uint8 = 11
	ImplTypeUnsuccessfulCandidates uint8 = 12
	ImplTypeAccountContractData    uint8 = 13
	ImplTypeTransactionInBlockInfo uint8 = 14
	ImplTypeChainProperty          uint8 = 15
)

// ObjectID is the (space, type, instance) identity of every stored object.
type ObjectID struct {
	Space    uint8
	Type     uint8
	Instance uint64
}

func NewObjectID(space, typ uint8, instance uint64) ObjectID {
	return ObjectID{Space: space, Type: typ, Instance: instance}
}

// Valid is false for the zero id, space 0 is never allocated.
func (id ObjectID) Valid() bool {
	return id.Space != 0
}

func (id ObjectID) Is(space, typ uint8) bool {
	return id.Space == space && id.Type == typ
}

func (id ObjectID) String() string {
	return fmt.Sprintf("%d.%d.%d", id.Space, id.Type, id.Instance)
}

// Less orders ids by space, type then instance.
func (id ObjectID) Less(o ObjectID) bool {
	if id.Space != o.Space {
		return id.Space < o.Space
	}
	if id.Type != o.Type {
		return id.Type < o.Type
	}
	return id.Instance < o.Instance
}

// Bytes is a 10 byte big endian form that sorts like Less.
func (id ObjectID) Bytes() []byte {
	b := make([]byte, 10)
	b[0], b[1] = id.Space, id.Type
	binary.BigEndian.PutUint64(b[2:], id.Instance)
	return b
}

func (id ObjectID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ObjectID) UnmarshalText(text []byte) error {
	parsed, err := ParseObjectID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseObjectID parses "space.type.instance".
func ParseObjectID(s string) (ObjectID, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return ObjectID{}, fmt.Errorf("invalid object id %q", s)
	}
	space, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return ObjectID{}, fmt.Errorf("invalid object id %q", s)
	}
	typ, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return ObjectID{}, fmt.Errorf("invalid object id %q", s)
	}
	instance, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return ObjectID{}, fmt.Errorf("invalid object id %q", s)
	}
	return NewObjectID(uint8(space), uint8(typ), instance), nil
}

// Well known ids
var (
	CoreAssetID               = NewObjectID(ProtocolSpace, ObjTypeAsset, 0)
	CommitteeAccountID        = NewObjectID(ProtocolSpace, ObjTypeAccount, 0)
	WitnessAccountID          = NewObjectID(ProtocolSpace, ObjTypeAccount, 1)
	RelaxedCommitteeAccountID = NewObjectID(ProtocolSpace, ObjTypeAccount, 2)
	NullAccountID             = NewObjectID(ProtocolSpace, ObjTypeAccount, 3)
	TempAccountID             = NewObjectID(ProtocolSpace, ObjTypeAccount, 4)

	GlobalPropertyID         = NewObjectID(ImplementationSpace, ImplTypeGlobalProperty, 0)
	DynamicGlobalPropertyID  = NewObjectID(ImplementationSpace, ImplTypeDynamicGlobalProperty, 0)
	WitnessScheduleID        = NewObjectID(ImplementationSpace, ImplTypeWitnessSchedule, 0)
	UnsuccessfulCandidatesID = NewObjectID(ImplementationSpace, ImplTypeUnsuccessfulCandidates, 0)
	ChainPropertyID          = NewObjectID(ImplementationSpace, ImplTypeChainProperty, 0)
)

// Share is a signed amount. RLP has no signed integers so it travels zigzag encoded.
type Share int64

func (s Share) EncodeRLP(w io.Writer) error {
	v := int64(s)
	return rlp.Encode(w, uint64((v<<1)^(v>>63)))
}

func (s *Share) DecodeRLP(st *rlp.Stream) error {
	u, err := st.Uint64()
	if err != nil {
		return err
	}
	*s = Share(int64(u>>1) ^ -int64(u&1))
	return nil
}

// TxID is the keccak256 of the unsigned transaction.
type TxID [32]byte

func (t TxID) String() string { return hex.EncodeToString(t[:]) }

func (t TxID) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TxID) UnmarshalText(text []byte) error {
	return decodeFixed(t[:], string(text))
}

// BlockID carries the block number in its first four bytes.
type BlockID [32]byte

func (b BlockID) Num() uint32 {
	return binary.BigEndian.Uint32(b[:4])
}

// Prefix is the ref_block_prefix used by TaPoS, the second little endian word.
func (b BlockID) Prefix() uint32 {
	return binary.LittleEndian.Uint32(b[4:8])
}

func (b BlockID) IsZero() bool { return b == BlockID{} }

func (b BlockID) String() string { return hex.EncodeToString(b[:]) }

func (b BlockID) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *BlockID) UnmarshalText(text []byte) error {
	return decodeFixed(b[:], string(text))
}

// ChainID is the digest of the genesis state, mixed into every signature.
type ChainID [32]byte

func (c ChainID) String() string { return hex.EncodeToString(c[:]) }

func (c ChainID) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *ChainID) UnmarshalText(text []byte) error {
	return decodeFixed(c[:], string(text))
}

func decodeFixed(dst []byte, s string) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("expect %d bytes, got %d", len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}

// VoteID packs (instance << 8 | type).
type VoteID uint32

const (
	VoteTypeCommittee uint8 = 0
	VoteTypeWitness   uint8 = 1
)

func NewVoteID(typ uint8, instance uint32) VoteID {
	return VoteID(instance<<8 | uint32(typ))
}

func (v VoteID) Type() uint8 { return uint8(v & 0xff) }

func (v VoteID) Instance() uint32 { return uint32(v) >> 8 }

func (v VoteID) String() string { return fmt.Sprintf("%d:%d", v.Type(), v.Instance()) }

// Time values are seconds since epoch.
const MaxTime uint32 = 0xffffffff
