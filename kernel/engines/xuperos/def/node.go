package def

import (
	"crypto/ecdsa"
	"fmt"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
)

// LoadWitnessKeys reads the block signing key of each witness account from
// keyDir. Key files are named after the account and hold a hex secp256k1
// private key.
func LoadWitnessKeys(keyDir string, names []string) (map[string]*ecdsa.PrivateKey, error) {
	keys := make(map[string]*ecdsa.PrivateKey, len(names))
	for _, name := range names {
		key, err := crypto.LoadECDSA(filepath.Join(keyDir, name+KeyFileSuffix))
		if err != nil {
			return nil, fmt.Errorf("load signing key of %s error: %v", name, err)
		}
		keys[name] = key
	}
	return keys, nil
}
