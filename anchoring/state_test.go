package anchoring

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"

	"github.com/SINHASantos/exonum-btc-anchoring/btc"
)

// anchoringTxPaying builds a chain transaction whose multisig output pays the
// given configuration's anchoring address
func anchoringTxPaying(t *testing.T, cfg Config, value int64) *btc.AnchoringTx {
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
	return btc.NewAnchoringTx(tx)
}

func TestStateWithoutFollowing(t *testing.T) {
	cfg := testConfig(t, testPrivKeys(3))
	state, err := StateFor(cfg, nil, nil)
	assert.NoError(t, err, "projection should succeed")
	assert.False(t, state.InTransition(), "no following config means no transition")
	assert.Equal(t, cfg.MajorityCount(), state.TargetConfig().MajorityCount(), "target is the actual config")
}

func TestStateTransitionResolution(t *testing.T) {
	keys := testPrivKeys(4)
	oldCfg := testConfig(t, keys[:3])
	newCfg := testConfig(t, keys)

	// transition begins: committed but no chain tx pays the new address yet
	state, err := StateFor(oldCfg, &newCfg, nil)
	assert.NoError(t, err, "projection should succeed")
	assert.True(t, state.InTransition(), "empty chain keeps the transition pending")
	assert.Equal(t, 4, len(state.TargetConfig().Validators), "proposals must already target the new address")

	// a tip still paying the old address does not resolve it
	oldTip := anchoringTxPaying(t, oldCfg, 90000)
	state, err = StateFor(oldCfg, &newCfg, oldTip)
	assert.NoError(t, err, "projection should succeed")
	assert.True(t, state.InTransition(), "old-address tip keeps the transition pending")

	// once the tip pays the new address the new config becomes actual
	newTip := anchoringTxPaying(t, newCfg, 89000)
	state, err = StateFor(oldCfg, &newCfg, newTip)
	assert.NoError(t, err, "projection should succeed")
	assert.False(t, state.InTransition(), "new-address tip resolves the transition")
	assert.Equal(t, 4, len(state.Actual.Validators), "the following config is actual after resolution")
}
