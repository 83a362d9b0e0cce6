package anchoring

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SINHASantos/exonum-btc-anchoring/btc"
)

func TestMajorityCount(t *testing.T) {
	expected := map[int]int{1: 1, 2: 2, 3: 3, 4: 3, 5: 4, 6: 5, 7: 5, 8: 6, 9: 7, 10: 7}
	for n := 1; n <= 10; n++ {
		m := MajorityCount(n)
		assert.Equal(t, expected[n], m, "majority for %d validators", n)
		if m < 1 || m > n {
			t.Errorf("majority %d for %d validators is out of range", m, n)
		}
	}
}

func TestLatestAnchoringHeight(t *testing.T) {
	cfg := DefaultConfig() // frequency 500
	assert.Equal(t, uint64(1000), cfg.LatestAnchoringHeight(1200), "height 1200 should round down to 1000")
	assert.Equal(t, uint64(1000), cfg.LatestAnchoringHeight(1000), "interval boundaries anchor themselves")
	assert.Equal(t, uint64(0), cfg.LatestAnchoringHeight(499), "heights below the first interval round to zero")
}

func TestFundingTxMissing(t *testing.T) {
	cfg := testConfig(t, testPrivKeys(3))
	_, err := cfg.FundingTx()
	if !errors.Is(err, ErrMissingFundingTx) {
		t.Errorf("missing funding tx should fail with ErrMissingFundingTx, got %v", err)
	}

	cfg.FundingTransaction = fundingTxFor(t, cfg, 100000)
	funding, err := cfg.FundingTx()
	assert.NoError(t, err, "configured funding tx should be returned")
	assert.NotNil(t, funding, "configured funding tx should be returned")
}

func TestNewConfigBootstrap(t *testing.T) {
	keys := testPrivKeys(1)
	cfg := NewConfig(btc.Testnet, btc.NewPublicKey(keys[0].PubKey()))
	assert.NoError(t, cfg.Validate(), "bootstrap config should be valid without a funding tx")
	assert.Equal(t, 1, cfg.MajorityCount(), "single validator majority is 1")
	assert.Nil(t, cfg.FundingTransaction, "bootstrap config carries no funding tx")
}

func TestValidateRejects(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrNoValidators) {
		t.Errorf("empty validator set should fail with ErrNoValidators, got %v", err)
	}

	cfg = testConfig(t, testPrivKeys(2))
	cfg.Frequency = 0
	if err := cfg.Validate(); !errors.Is(err, ErrZeroFrequency) {
		t.Errorf("zero frequency should fail with ErrZeroFrequency, got %v", err)
	}

	cfg = testConfig(t, testPrivKeys(2))
	cfg.Network = btc.Network("regtest")
	if err := cfg.Validate(); !errors.Is(err, btc.ErrInvalidNetworkLiteral) {
		t.Errorf("unknown network literal should be rejected, got %v", err)
	}
}

func TestValidatorIndex(t *testing.T) {
	keys := testPrivKeys(3)
	cfg := testConfig(t, keys)
	for i, key := range keys {
		idx, ok := cfg.ValidatorIndex(btc.NewPublicKey(key.PubKey()))
		assert.True(t, ok, "validator key %d should be found", i)
		assert.Equal(t, i, idx, "validator index should follow the key order")
	}
	outsider := testPrivKeys(4)[3]
	if _, ok := cfg.ValidatorIndex(btc.NewPublicKey(outsider.PubKey())); ok {
		t.Error("a key outside the validator set should not resolve to an index")
	}
}

func TestConfigJSONRoundTrip(t *testing.T) {
	cfg := testConfig(t, testPrivKeys(4))
	cfg.FundingTransaction = fundingTxFor(t, cfg, 250000)

	raw, err := json.Marshal(cfg)
	assert.NoError(t, err, "config should marshal")

	var decoded Config
	assert.NoError(t, json.Unmarshal(raw, &decoded), "config should unmarshal")
	assert.Equal(t, len(cfg.Validators), len(decoded.Validators), "validator count should survive")
	for i := range cfg.Validators {
		assert.True(t, cfg.Validators[i].Equal(decoded.Validators[i]), "validator %d should survive in order", i)
	}
	assert.Equal(t, cfg.FundingTransaction.TxID(), decoded.FundingTransaction.TxID(), "funding txid should survive")
	assert.Equal(t, cfg.Network, decoded.Network, "network literal should survive")
}
