package protos

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/crypto"
)

// PublicKeyPrefix starts every printable public key.
const PublicKeyPrefix = "XGR"

var ErrInvalidPublicKey = errors.New("invalid public key")

// PublicKey is a compressed secp256k1 key.
type PublicKey [33]byte

func PublicKeyFromECDSA(pub *ecdsa.PublicKey) PublicKey {
	var k PublicKey
	copy(k[:], crypto.CompressPubkey(pub))
	return k
}

func (k PublicKey) IsZero() bool { return k == PublicKey{} }

func (k PublicKey) String() string {
	sum := crypto.Keccak256(k[:])
	return PublicKeyPrefix + base58.Encode(append(k[:], sum[:4]...))
}

func (k PublicKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParsePublicKey reverses PublicKey.String.
func ParsePublicKey(s string) (PublicKey, error) {
	var k PublicKey
	if !strings.HasPrefix(s, PublicKeyPrefix) {
		return k, ErrInvalidPublicKey
	}
	raw := base58.Decode(s[len(PublicKeyPrefix):])
	if len(raw) != len(k)+4 {
		return k, ErrInvalidPublicKey
	}
	sum := crypto.Keccak256(raw[:len(k)])
	if !bytes.Equal(sum[:4], raw[len(k):]) {
		return k, ErrInvalidPublicKey
	}
	copy(k[:], raw[:len(k)])
	// 未设置的公钥
	if k.IsZero() {
		return k, nil
	}
	if _, err := crypto.DecompressPubkey(k[:]); err != nil {
		return k, ErrInvalidPublicKey
	}
	return k, nil
}

type AccountAuth struct {
	Account ObjectID
	Weight  uint16
}

type KeyAuth struct {
	Key    PublicKey
	Weight uint16
}

// Authority is a weighted threshold over keys and other accounts.
type Authority struct {
	WeightThreshold uint32
	AccountAuths    []AccountAuth
	KeyAuths        []KeyAuth
}

func NewKeyAuthority(threshold uint32, keys ...PublicKey) Authority {
	a := Authority{WeightThreshold: threshold}
	for _, k := range keys {
		a.AddKey(k, 1)
	}
	return a
}

// AddKey sets the weight of key, keeping KeyAuths sorted.
func (a *Authority) AddKey(k PublicKey, w uint16) {
	for i := range a.KeyAuths {
		if a.KeyAuths[i].Key == k {
			a.KeyAuths[i].Weight = w
			return
		}
	}
	a.KeyAuths = append(a.KeyAuths, KeyAuth{Key: k, Weight: w})
	sort.Slice(a.KeyAuths, func(i, j int) bool {
		return bytes.Compare(a.KeyAuths[i].Key[:], a.KeyAuths[j].Key[:]) < 0
	})
}

// AddAccount sets the weight of account, keeping AccountAuths sorted.
func (a *Authority) AddAccount(id ObjectID, w uint16) {
	for i := range a.AccountAuths {
		if a.AccountAuths[i].Account == id {
			a.AccountAuths[i].Weight = w
			return
		}
	}
	a.AccountAuths = append(a.AccountAuths, AccountAuth{Account: id, Weight: w})
	sort.Slice(a.AccountAuths, func(i, j int) bool {
		return a.AccountAuths[i].Account.Less(a.AccountAuths[j].Account)
	})
}

func (a Authority) NumAuths() int {
	return len(a.AccountAuths) + len(a.KeyAuths)
}

// IsImpossible reports that even every member together cannot reach the threshold.
func (a Authority) IsImpossible() bool {
	var total uint64
	for _, k := range a.KeyAuths {
		total += uint64(k.Weight)
	}
	for _, acc := range a.AccountAuths {
		total += uint64(acc.Weight)
	}
	return total < uint64(a.WeightThreshold)
}

func (a Authority) Validate() error {
	seenKeys := make(map[PublicKey]struct{}, len(a.KeyAuths))
	for _, k := range a.KeyAuths {
		if _, dup := seenKeys[k.Key]; dup {
			return fmt.Errorf("duplicate key %s in authority", k.Key)
		}
		seenKeys[k.Key] = struct{}{}
	}
	seenAccounts := make(map[ObjectID]struct{}, len(a.AccountAuths))
	for _, acc := range a.AccountAuths {
		if !acc.Account.Is(ProtocolSpace, ObjTypeAccount) {
			return fmt.Errorf("%s is not an account id", acc.Account)
		}
		if _, dup := seenAccounts[acc.Account]; dup {
			return fmt.Errorf("duplicate account %s in authority", acc.Account)
		}
		seenAccounts[acc.Account] = struct{}{}
	}
	return nil
}

// PrivateKeyFromSeed derives a deterministic key, used by genesis tooling and tests.
func PrivateKeyFromSeed(seed string) *ecdsa.PrivateKey {
	key, err := crypto.ToECDSA(crypto.Keccak256([]byte(seed)))
	if err != nil {
		panic(err)
	}
	return key
}
