package btc

import (
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

var (
	// ErrEmptyKeySet : a redeem script cannot be derived from zero keys
	ErrEmptyKeySet = errors.New("redeem script requires at least one public key")
	// ErrInvalidThreshold : the threshold must lie in [1, len(keys)]
	ErrInvalidThreshold = errors.New("redeem script threshold must be between 1 and the number of keys")
)

// RedeemScript is the m-of-n CHECKMULTISIG witness script over an ordered
// validator key set.
type RedeemScript []byte

// BuildRedeemScript : assembles the canonical m-of-n multisig script from the
// given keys in the given order. The same keys in a different order produce a
// different script and therefore a different anchoring address.
func BuildRedeemScript(keys []PublicKey, threshold int) (RedeemScript, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyKeySet
	}
	if threshold < 1 || threshold > len(keys) {
		return nil, ErrInvalidThreshold
	}
	builder := txscript.NewScriptBuilder()
	builder.AddInt64(int64(threshold))
	for _, key := range keys {
		builder.AddData(key.Bytes())
	}
	builder.AddInt64(int64(len(keys)))
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	script, err := builder.Script()
	if err != nil {
		return nil, err
	}
	return RedeemScript(script), nil
}

// Address : derives the P2WSH address committing to this script on the given
// network. Deterministic: identical scripts always yield identical addresses.
func (rs RedeemScript) Address(network Network) (btcutil.Address, error) {
	program := sha256.Sum256(rs)
	return btcutil.NewAddressWitnessScriptHash(program[:], network.Params())
}

// PayScript : the output script paying to this redeem script's address
func (rs RedeemScript) PayScript(network Network) ([]byte, error) {
	addr, err := rs.Address(network)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}
