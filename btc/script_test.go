package btc

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
)

func testKeys(t *testing.T, n int) []PublicKey {
	keys := []PublicKey{}
	for i := 0; i < n; i++ {
		priv, err := btcec.NewPrivateKey()
		assert.NoError(t, err, "key generation should not fail")
		keys = append(keys, NewPublicKey(priv.PubKey()))
	}
	return keys
}

func TestBuildRedeemScriptDeterminism(t *testing.T) {
	keys := testKeys(t, 4)
	first, err := BuildRedeemScript(keys, 3)
	assert.NoError(t, err, "redeem script derivation should succeed")
	second, err := BuildRedeemScript(keys, 3)
	assert.NoError(t, err, "redeem script derivation should succeed")
	assert.Equal(t, []byte(first), []byte(second), "identical key sets should derive identical scripts")
}

func TestBuildRedeemScriptKeyOrder(t *testing.T) {
	keys := testKeys(t, 3)
	forward, err := BuildRedeemScript(keys, 2)
	assert.NoError(t, err, "redeem script derivation should succeed")
	reversed, err := BuildRedeemScript([]PublicKey{keys[2], keys[1], keys[0]}, 2)
	assert.NoError(t, err, "redeem script derivation should succeed")
	assert.NotEqual(t, []byte(forward), []byte(reversed), "key order should change the script")
}

func TestBuildRedeemScriptRejectsBadInput(t *testing.T) {
	keys := testKeys(t, 3)
	if _, err := BuildRedeemScript([]PublicKey{}, 1); err != ErrEmptyKeySet {
		t.Errorf("empty key set should fail with ErrEmptyKeySet, got %v", err)
	}
	if _, err := BuildRedeemScript(keys, 0); err != ErrInvalidThreshold {
		t.Errorf("zero threshold should fail with ErrInvalidThreshold, got %v", err)
	}
	if _, err := BuildRedeemScript(keys, 4); err != ErrInvalidThreshold {
		t.Errorf("threshold above key count should fail with ErrInvalidThreshold, got %v", err)
	}
}

func TestRedeemScriptAddressNetworks(t *testing.T) {
	keys := testKeys(t, 3)
	script, err := BuildRedeemScript(keys, 3)
	assert.NoError(t, err, "redeem script derivation should succeed")

	mainnet, err := script.Address(Bitcoin)
	assert.NoError(t, err, "mainnet address derivation should succeed")
	assert.True(t, strings.HasPrefix(mainnet.EncodeAddress(), "bc1"), "mainnet p2wsh address should be bech32 bc1")

	testnet, err := script.Address(Testnet)
	assert.NoError(t, err, "testnet address derivation should succeed")
	assert.True(t, strings.HasPrefix(testnet.EncodeAddress(), "tb1"), "testnet p2wsh address should be bech32 tb1")

	again, err := script.Address(Testnet)
	assert.NoError(t, err, "testnet address derivation should succeed")
	assert.Equal(t, testnet.EncodeAddress(), again.EncodeAddress(), "address derivation should be deterministic")
}

func TestPayScriptMatchesAddress(t *testing.T) {
	keys := testKeys(t, 2)
	script, err := BuildRedeemScript(keys, 2)
	assert.NoError(t, err, "redeem script derivation should succeed")
	payScript, err := script.PayScript(Testnet)
	assert.NoError(t, err, "pay script derivation should succeed")
	// OP_0 <32-byte witness program>
	assert.Equal(t, 34, len(payScript), "p2wsh output script should be 34 bytes")
}
