package objdb

import (
	"encoding/binary"
	"fmt"

	"github.com/xuperchain/xupergraph/protos"
)

// Object is anything stored in the database. Implementations embed BaseObject
// and report their (space, type).
type Object interface {
	ID() protos.ObjectID
	SetID(protos.ObjectID)
	ObjectType() (space, typ uint8)
}

type BaseObject struct {
	Id protos.ObjectID `json:"id"`
}

func (b *BaseObject) ID() protos.ObjectID { return b.Id }

func (b *BaseObject) SetID(id protos.ObjectID) { b.Id = id }

// SecondaryIndex derives an ordered key from an object. Non unique keys are
// suffixed with the instance so equal keys iterate in creation order.
type SecondaryIndex struct {
	Name   string
	Unique bool
	Key    func(Object) []byte
}

// IndexSpec registers one object type.
type IndexSpec struct {
	Space     uint8
	Type      uint8
	New       func() Object
	Secondary []SecondaryIndex
}

func indexKey(space, typ uint8) uint16 {
	return uint16(space)<<8 | uint16(typ)
}

// Descending flips v so larger values sort first.
type Descending uint64

// Key concatenates parts into an order preserving byte key. Strings are zero
// terminated so a shorter string sorts before its extensions.
func Key(parts ...interface{}) []byte {
	out := make([]byte, 0, 32)
	var buf [8]byte
	for _, p := range parts {
		switch v := p.(type) {
		case uint8:
			out = append(out, v)
		case bool:
			if v {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		case uint16:
			binary.BigEndian.PutUint16(buf[:2], v)
			out = append(out, buf[:2]...)
		case uint32:
			binary.BigEndian.PutUint32(buf[:4], v)
			out = append(out, buf[:4]...)
		case uint64:
			binary.BigEndian.PutUint64(buf[:], v)
			out = append(out, buf[:]...)
		case Descending:
			binary.BigEndian.PutUint64(buf[:], ^uint64(v))
			out = append(out, buf[:]...)
		case int64:
			binary.BigEndian.PutUint64(buf[:], uint64(v)^(1<<63))
			out = append(out, buf[:]...)
		case protos.Share:
			binary.BigEndian.PutUint64(buf[:], uint64(v)^(1<<63))
			out = append(out, buf[:]...)
		case protos.VoteID:
			binary.BigEndian.PutUint32(buf[:4], uint32(v))
			out = append(out, buf[:4]...)
		case string:
			out = append(out, v...)
			out = append(out, 0)
		case []byte:
			out = append(out, v...)
		case protos.ObjectID:
			out = append(out, v.Bytes()...)
		case protos.PublicKey:
			out = append(out, v[:]...)
		case protos.TxID:
			out = append(out, v[:]...)
		default:
			panic(fmt.Sprintf("objdb: unsupported key part %T", p))
		}
	}
	return out
}
