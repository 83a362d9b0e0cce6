package anchoring

// ShouldAnchor decides whether a new anchoring point is due at the given
// ledger height. It returns the height that must be anchored and true when
// that height has not been anchored yet. Pure: every replica evaluates it
// once per committed block against the same snapshot and reaches the same
// decision, so all validators propose anchoring at the same heights.
//
// hasAnchored is false while the chain is empty; afterwards lastAnchored is
// the height committed by the chain tip. Re-invoking at the same height is
// idempotent: once lastAnchored covers the target no new proposal is due.
func ShouldAnchor(cfg Config, height uint64, lastAnchored uint64, hasAnchored bool) (uint64, bool) {
	target := cfg.LatestAnchoringHeight(height)
	if hasAnchored && lastAnchored >= target {
		return target, false
	}
	return target, true
}
