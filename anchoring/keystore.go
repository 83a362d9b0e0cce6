package anchoring

import (
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
)

// KeyStore binds anchoring addresses to this validator's private keys. It is
// a process-local capability: nothing is shared across validators, all
// cross-validator coordination happens through the ledger. Rotation is
// atomic with respect to a concurrent signing attempt within the same
// process, so a signer never observes a half-rotated mapping.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[string]*btcec.PrivateKey
}

func NewKeyStore() *KeyStore {
	return &KeyStore{keys: map[string]*btcec.PrivateKey{}}
}

// Add : binds a private key to an anchoring address
func (ks *KeyStore) Add(address string, key *btcec.PrivateKey) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys[address] = key
}

// Lookup : returns the private key bound to the given address, if any
func (ks *KeyStore) Lookup(address string) (*btcec.PrivateKey, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.keys[address]
	return key, ok
}

// Rotate associates the key bound to the old address with the new address as
// well. The old binding stays: during a transition the old address remains
// spendable until the chain output migrates. Returns false if no key is
// bound to the old address.
func (ks *KeyStore) Rotate(oldAddr string, newAddr string) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	key, ok := ks.keys[oldAddr]
	if !ok {
		return false
	}
	ks.keys[newAddr] = key
	return true
}
