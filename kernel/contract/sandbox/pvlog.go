package sandbox

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/xuperchain/xupergraph/protos"
)

// DefaultProcessCipher is mixed with the chain id into the process value key.
const DefaultProcessCipher = "xupergraph.contract.process"

var ErrProcessValueExhausted = errors.New("process value log exhausted")

// ProcessLog hands out non deterministic values. Fresh logs draw and record
// them, replay logs return the recorded values by call ordinal.
type ProcessLog struct {
	pv      protos.ProcessValue
	replay  bool
	nextRnd int
	nextTm  int
	used    bool
}

func NewProcessLog() *ProcessLog {
	return &ProcessLog{}
}

// ReplayProcessLog returns a log reading back pv.
func ReplayProcessLog(pv protos.ProcessValue) *ProcessLog {
	return &ProcessLog{pv: pv, replay: true}
}

// Random returns the next pseudo random draw, a non negative 31 bit value.
func (l *ProcessLog) Random() (uint64, error) {
	l.used = true
	if l.replay {
		if l.nextRnd >= len(l.pv.Random) {
			return 0, ErrProcessValueExhausted
		}
		v := l.pv.Random[l.nextRnd]
		l.nextRnd++
		return v, nil
	}
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	v := uint64(binary.BigEndian.Uint32(b[:]) & 0x7fffffff)
	l.pv.Random = append(l.pv.Random, v)
	return v, nil
}

// RealTime returns the next wall clock reading in microseconds.
func (l *ProcessLog) RealTime() (uint64, error) {
	l.used = true
	if l.replay {
		if l.nextTm >= len(l.pv.TimeTable) {
			return 0, ErrProcessValueExhausted
		}
		v := l.pv.TimeTable[l.nextTm]
		l.nextTm++
		return v, nil
	}
	v := uint64(time.Now().UnixNano() / int64(time.Microsecond))
	l.pv.TimeTable = append(l.pv.TimeTable, v)
	return v, nil
}

// Used reports whether the call touched a non deterministic primitive.
func (l *ProcessLog) Used() bool { return l.used }

func (l *ProcessLog) Value() protos.ProcessValue { return l.pv }

// Cipher seals process value logs before they go into a persisted result.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the key from the chain id and a node wide secret, so every
// node of one chain opens what any other sealed.
func NewCipher(chainID protos.ChainID, secret string) (*Cipher, error) {
	if secret == "" {
		secret = DefaultProcessCipher
	}
	key := crypto.Keccak256(chainID[:], []byte(secret))
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errors.Wrap(err, "new process value cipher")
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts pv. The nonce is derived from the plaintext so that sealing
// the same log twice gives the same bytes.
func (c *Cipher) Seal(pv protos.ProcessValue) ([]byte, error) {
	plain, err := rlp.EncodeToBytes(pv)
	if err != nil {
		return nil, err
	}
	nonce := crypto.Keccak256(plain)[:c.aead.NonceSize()]
	out := make([]byte, 0, len(nonce)+len(plain)+c.aead.Overhead())
	out = append(out, nonce...)
	return c.aead.Seal(out, nonce, plain, nil), nil
}

func (c *Cipher) Open(sealed []byte) (protos.ProcessValue, error) {
	var pv protos.ProcessValue
	n := c.aead.NonceSize()
	if len(sealed) < n+c.aead.Overhead() {
		return pv, errors.New("sealed process value too short")
	}
	plain, err := c.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return pv, errors.Wrap(err, "open process value")
	}
	return pv, rlp.DecodeBytes(plain, &pv)
}
