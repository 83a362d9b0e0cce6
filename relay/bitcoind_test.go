package relay

import (
	"testing"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/stretchr/testify/assert"
	"github.com/tendermint/tendermint/libs/log"
)

var _ BtcRelay = (*BitcoindRelay)(nil)

func TestNewBitcoindRelay(t *testing.T) {
	r, err := NewBitcoindRelay("127.0.0.1:18332", "user", "pass", log.NewNopLogger())
	assert.NoError(t, err, "constructing a relay must not dial the node")
	assert.NotNil(t, r, "relay should construct")
}

func TestDuplicateBroadcastErrorCode(t *testing.T) {
	// bitcoind reports an already-mined tx with -27; broadcast treats it as success
	assert.Equal(t, btcjson.RPCErrorCode(-27), btcjson.ErrRPCTxAlreadyInChain, "duplicate broadcast code")
}
