package btc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
)

// PublicKey is a compressed secp256k1 validator key. Wherever a slice of
// these appears the order is significant: it fixes the redeem script layout
// and the signer indexing.
type PublicKey struct {
	key *btcec.PublicKey
}

// ParsePublicKey : decodes a hex-encoded compressed public key
func ParsePublicKey(hexKey string) (PublicKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return PublicKey{}, err
	}
	key, err := btcec.ParsePubKey(raw)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKey{key: key}, nil
}

// NewPublicKey : wraps an already-parsed btcec key
func NewPublicKey(key *btcec.PublicKey) PublicKey {
	return PublicKey{key: key}
}

// Bytes : the 33-byte compressed encoding used inside redeem scripts
func (pk PublicKey) Bytes() []byte {
	return pk.key.SerializeCompressed()
}

func (pk PublicKey) Hex() string {
	return hex.EncodeToString(pk.Bytes())
}

// Key : the underlying btcec key for signature verification
func (pk PublicKey) Key() *btcec.PublicKey {
	return pk.key
}

func (pk PublicKey) Equal(other PublicKey) bool {
	if pk.key == nil || other.key == nil {
		return pk.key == other.key
	}
	return bytes.Equal(pk.Bytes(), other.Bytes())
}

func (pk PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(pk.Hex())
}

func (pk *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePublicKey(s)
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}
