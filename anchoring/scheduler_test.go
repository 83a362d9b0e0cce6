package anchoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldAnchorFirstTime(t *testing.T) {
	cfg := testConfig(t, testPrivKeys(1))
	target, due := ShouldAnchor(cfg, 1200, 0, false)
	assert.Equal(t, uint64(1000), target, "height 1200 with frequency 500 targets 1000")
	assert.True(t, due, "an empty chain always owes an anchor")
}

func TestShouldAnchorIdempotence(t *testing.T) {
	cfg := testConfig(t, testPrivKeys(1))

	// the target was just anchored: re-evaluating at the same height is a no-op
	_, due := ShouldAnchor(cfg, 1200, 1000, true)
	assert.False(t, due, "an already anchored target is not due again")

	// heights within the same interval stay quiet
	_, due = ShouldAnchor(cfg, 1499, 1000, true)
	assert.False(t, due, "no new interval boundary has passed")

	// the next boundary owes a new anchor
	target, due := ShouldAnchor(cfg, 1500, 1000, true)
	assert.Equal(t, uint64(1500), target, "the next interval boundary is the target")
	assert.True(t, due, "a new interval boundary is due")
}
