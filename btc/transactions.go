package btc

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const payloadLen = 40

var (
	// ErrMalformedPayload : the OP_RETURN output does not carry a valid anchoring commitment
	ErrMalformedPayload = errors.New("anchoring payload must be an OP_RETURN push of height and state hash")
	// ErrOutputNotFound : the transaction has no output paying the requested script
	ErrOutputNotFound = errors.New("transaction pays no output to the given script")
)

// Payload is the ledger commitment embedded in every anchoring transaction:
// the anchored ledger height followed by the state hash at that height.
type Payload struct {
	BlockHeight uint64
	StateHash   [32]byte
}

// Script : encodes the payload as an OP_RETURN output script.
// Layout is fixed at 8 bytes big-endian height plus the 32-byte hash, so
// every honest validator emits byte-identical commitments.
func (p Payload) Script() ([]byte, error) {
	data := make([]byte, payloadLen)
	binary.BigEndian.PutUint64(data[:8], p.BlockHeight)
	copy(data[8:], p.StateHash[:])
	return txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).AddData(data).Script()
}

// ParsePayloadScript : decodes an OP_RETURN output script back into a Payload
func ParsePayloadScript(script []byte) (Payload, error) {
	// OP_RETURN, direct push opcode, 40 bytes of data
	if len(script) != payloadLen+2 || script[0] != txscript.OP_RETURN || script[1] != txscript.OP_DATA_40 {
		return Payload{}, ErrMalformedPayload
	}
	var p Payload
	p.BlockHeight = binary.BigEndian.Uint64(script[2:10])
	copy(p.StateHash[:], script[10:])
	return p, nil
}

// ParseRawTx : deserializes a hex-encoded bitcoin transaction
func ParseRawTx(rawHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, err
	}
	var msgTx wire.MsgTx
	if err := msgTx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return &msgTx, nil
}

// TxToHex : serializes a bitcoin transaction to hex
func TxToHex(tx *wire.MsgTx) string {
	var buf bytes.Buffer
	tx.Serialize(&buf)
	return hex.EncodeToString(buf.Bytes())
}

// FindOutput : returns the index and value of the first output paying payScript
func FindOutput(tx *wire.MsgTx, payScript []byte) (uint32, int64, error) {
	for i, out := range tx.TxOut {
		if bytes.Equal(out.PkScript, payScript) {
			return uint32(i), out.Value, nil
		}
	}
	return 0, 0, ErrOutputNotFound
}

// FundingTx is the external bitcoin transaction that seeds the first
// anchoring output. It is persisted inside the anchoring configuration as a
// hex string.
type FundingTx struct {
	MsgTx *wire.MsgTx
}

// NewFundingTx : wraps a deserialized funding transaction
func NewFundingTx(tx *wire.MsgTx) *FundingTx {
	return &FundingTx{MsgTx: tx}
}

// ParseFundingTx : decodes a funding transaction from its hex form
func ParseFundingTx(rawHex string) (*FundingTx, error) {
	tx, err := ParseRawTx(rawHex)
	if err != nil {
		return nil, fmt.Errorf("malformed funding transaction: %w", err)
	}
	return &FundingTx{MsgTx: tx}, nil
}

func (ftx *FundingTx) TxID() string {
	return ftx.MsgTx.TxHash().String()
}

// FindOutput : locates the funding output paying the anchoring address
func (ftx *FundingTx) FindOutput(payScript []byte) (uint32, int64, error) {
	return FindOutput(ftx.MsgTx, payScript)
}

func (ftx *FundingTx) MarshalJSON() ([]byte, error) {
	return json.Marshal(TxToHex(ftx.MsgTx))
}

func (ftx *FundingTx) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseFundingTx(s)
	if err != nil {
		return err
	}
	*ftx = *parsed
	return nil
}

// AnchoringTx is one link of the anchoring chain: it spends the previous
// multisig output (or the funding output for the first link) and commits a
// ledger state hash via OP_RETURN.
type AnchoringTx struct {
	MsgTx *wire.MsgTx
}

// NewAnchoringTx : wraps a constructed anchoring transaction
func NewAnchoringTx(tx *wire.MsgTx) *AnchoringTx {
	return &AnchoringTx{MsgTx: tx}
}

// ParseAnchoringTx : decodes an anchoring transaction from its hex form
func ParseAnchoringTx(rawHex string) (*AnchoringTx, error) {
	tx, err := ParseRawTx(rawHex)
	if err != nil {
		return nil, fmt.Errorf("malformed anchoring transaction: %w", err)
	}
	return &AnchoringTx{MsgTx: tx}, nil
}

func (atx *AnchoringTx) TxID() string {
	return atx.MsgTx.TxHash().String()
}

func (atx *AnchoringTx) Hex() string {
	return TxToHex(atx.MsgTx)
}

// Payload : extracts the ledger commitment from the OP_RETURN output
func (atx *AnchoringTx) Payload() (Payload, error) {
	for _, out := range atx.MsgTx.TxOut {
		if len(out.PkScript) > 0 && out.PkScript[0] == txscript.OP_RETURN {
			return ParsePayloadScript(out.PkScript)
		}
	}
	return Payload{}, ErrMalformedPayload
}

// FindOutput : locates the multisig output paying payScript
func (atx *AnchoringTx) FindOutput(payScript []byte) (uint32, int64, error) {
	return FindOutput(atx.MsgTx, payScript)
}
