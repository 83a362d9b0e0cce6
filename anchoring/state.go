package anchoring

import (
	"github.com/SINHASantos/exonum-btc-anchoring/btc"
)

// State is the configuration transition view derived from the ledger's
// committed configuration epochs and the anchoring chain tip. It is never
// persisted or mutated directly; it is recomputed as a pure projection on
// every query.
//
// Actual: the active configuration's address is final, no transition pending.
// Transition: a following configuration has been committed but the chain
// output has not yet moved to its address, so both addresses remain relevant.
type State struct {
	Actual    Config
	Following *Config
}

// InTransition : reports whether a committed configuration change is still
// waiting for funds to migrate to the new address
func (s State) InTransition() bool {
	return s.Following != nil
}

// TargetConfig returns the configuration whose address the next anchoring
// output must pay: the following configuration during a transition, the
// actual one otherwise.
func (s State) TargetConfig() Config {
	if s.Following != nil {
		return *s.Following
	}
	return s.Actual
}

// StateFor projects the transition state from the last committed
// configuration epochs and the current chain tip. The transition resolves
// back to Actual only once a chain transaction pays the following
// configuration's derived address.
func StateFor(actual Config, following *Config, tip *btc.AnchoringTx) (State, error) {
	if following == nil {
		return State{Actual: actual}, nil
	}
	script, _, err := following.RedeemScript()
	if err != nil {
		return State{}, err
	}
	payScript, err := script.PayScript(following.Network)
	if err != nil {
		return State{}, err
	}
	if tip != nil {
		if _, _, err := tip.FindOutput(payScript); err == nil {
			// funds have migrated, the epoch change is complete
			return State{Actual: *following}, nil
		}
	}
	return State{Actual: actual, Following: following}, nil
}
