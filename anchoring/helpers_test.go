package anchoring

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/SINHASantos/exonum-btc-anchoring/btc"
)

// deterministic test keys so failures reproduce
func testPrivKeys(n int) []*btcec.PrivateKey {
	keys := make([]*btcec.PrivateKey, n)
	for i := range keys {
		seed := make([]byte, 32)
		seed[31] = byte(i + 1)
		keys[i], _ = btcec.PrivKeyFromBytes(seed)
	}
	return keys
}

func testValidators(keys []*btcec.PrivateKey) []btc.PublicKey {
	validators := make([]btc.PublicKey, len(keys))
	for i, key := range keys {
		validators[i] = btc.NewPublicKey(key.PubKey())
	}
	return validators
}

func testConfig(t *testing.T, keys []*btcec.PrivateKey) Config {
	cfg := DefaultConfig()
	cfg.Validators = testValidators(keys)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config should be valid: %s", err)
	}
	return cfg
}

// fundingTxFor pays the configuration's anchoring address the given amount
func fundingTxFor(t *testing.T, cfg Config, value int64) *btc.FundingTx {
	script, _, err := cfg.RedeemScript()
	if err != nil {
		t.Fatalf("redeem script derivation failed: %s", err)
	}
	payScript, err := script.PayScript(cfg.Network)
	if err != nil {
		t.Fatalf("pay script derivation failed: %s", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(value, payScript))
	return btc.NewFundingTx(tx)
}
