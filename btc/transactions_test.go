package btc

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
)

func TestPayloadScriptRoundTrip(t *testing.T) {
	var hash [32]byte
	for i := range hash {
		hash[i] = byte(i)
	}
	payload := Payload{BlockHeight: 128500, StateHash: hash}
	script, err := payload.Script()
	assert.NoError(t, err, "payload script derivation should succeed")

	parsed, err := ParsePayloadScript(script)
	assert.NoError(t, err, "well-formed payload script should parse")
	assert.Equal(t, payload.BlockHeight, parsed.BlockHeight, "anchored height should survive the round trip")
	assert.Equal(t, payload.StateHash, parsed.StateHash, "state hash should survive the round trip")
}

func TestParsePayloadScriptRejectsMalformed(t *testing.T) {
	if _, err := ParsePayloadScript([]byte{}); err != ErrMalformedPayload {
		t.Errorf("empty script should fail with ErrMalformedPayload, got %v", err)
	}
	if _, err := ParsePayloadScript([]byte{0x6a, 0x04, 0x01, 0x02, 0x03, 0x04}); err != ErrMalformedPayload {
		t.Errorf("short OP_RETURN push should fail with ErrMalformedPayload, got %v", err)
	}
}

func TestRawTxRoundTrip(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(50000, []byte{0x00, 0x14}))
	parsed, err := ParseRawTx(TxToHex(tx))
	assert.NoError(t, err, "serialized transaction should parse")
	assert.Equal(t, tx.TxHash(), parsed.TxHash(), "txid should survive the round trip")

	if _, err := ParseRawTx("zz"); err == nil {
		t.Error("non-hex input should fail to parse")
	}
}

func TestFindOutput(t *testing.T) {
	payScript := []byte{0x51, 0x52, 0x53}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x00}))
	tx.AddTxOut(wire.NewTxOut(7777, payScript))

	vout, value, err := FindOutput(tx, payScript)
	assert.NoError(t, err, "output paying the script should be found")
	assert.Equal(t, uint32(1), vout, "the second output pays the script")
	assert.Equal(t, int64(7777), value, "output value should be reported")

	if _, _, err := FindOutput(tx, []byte{0x99}); err != ErrOutputNotFound {
		t.Errorf("missing output should fail with ErrOutputNotFound, got %v", err)
	}
}

func TestAnchoringTxPayloadExtraction(t *testing.T) {
	var hash [32]byte
	hash[0] = 0xab
	payloadScript, err := Payload{BlockHeight: 500, StateHash: hash}.Script()
	assert.NoError(t, err, "payload script derivation should succeed")

	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.AddTxOut(wire.NewTxOut(90000, []byte{0x00, 0x01}))
	msgTx.AddTxOut(wire.NewTxOut(0, payloadScript))
	atx := NewAnchoringTx(msgTx)

	payload, err := atx.Payload()
	assert.NoError(t, err, "anchoring tx should expose its commitment")
	assert.Equal(t, uint64(500), payload.BlockHeight, "anchored height should match")
	assert.Equal(t, hash, payload.StateHash, "state hash should match")

	bare := NewAnchoringTx(wire.NewMsgTx(wire.TxVersion))
	if _, err := bare.Payload(); err != ErrMalformedPayload {
		t.Errorf("tx without OP_RETURN should fail with ErrMalformedPayload, got %v", err)
	}
}
