package anchoring

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/SINHASantos/exonum-btc-anchoring/btc"
)

var (
	// ErrNoFundingTransaction : the chain is empty and no funding transaction is configured
	ErrNoFundingTransaction = errors.New("anchoring chain is empty and no funding transaction is configured")
	// ErrInsufficientConfirmations : the spendable output is too fresh to spend safely
	ErrInsufficientConfirmations = errors.New("spendable output has fewer confirmations than required")
	// ErrInsufficientFunds : the spendable output cannot cover the configured fee
	ErrInsufficientFunds = errors.New("spendable output does not cover the anchoring fee")
)

// ProposalInput describes the single spendable multisig output the next
// anchoring transaction must consume: the chain tip's output, or the funding
// transaction's output when the chain is empty.
type ProposalInput struct {
	TxID          string
	Vout          uint32
	Value         int64
	Confirmations uint64
}

// ProposalInputFrom locates the spendable output for the next proposal. The
// tip's confirmations are supplied by chain bookkeeping; the funding output
// inherits them from the relay's view of the funding transaction.
func ProposalInputFrom(state State, tip *btc.AnchoringTx, confirmations uint64) (ProposalInput, error) {
	script, _, err := state.Actual.RedeemScript()
	if err != nil {
		return ProposalInput{}, err
	}
	payScript, err := script.PayScript(state.Actual.Network)
	if err != nil {
		return ProposalInput{}, err
	}
	if tip != nil {
		vout, value, err := tip.FindOutput(payScript)
		if err != nil {
			return ProposalInput{}, fmt.Errorf("chain tip %s: %w", tip.TxID(), err)
		}
		return ProposalInput{TxID: tip.TxID(), Vout: vout, Value: value, Confirmations: confirmations}, nil
	}
	funding, err := state.Actual.FundingTx()
	if err != nil {
		return ProposalInput{}, ErrNoFundingTransaction
	}
	vout, value, err := funding.FindOutput(payScript)
	if err != nil {
		return ProposalInput{}, fmt.Errorf("funding tx %s: %w", funding.TxID(), err)
	}
	return ProposalInput{TxID: funding.TxID(), Vout: vout, Value: value, Confirmations: confirmations}, nil
}

// BuildProposal constructs the next unsigned anchoring transaction: one
// input spending the given output, one multisig output paying the target
// address minus the fee, and one OP_RETURN output committing the ledger
// state hash at the anchored height.
//
// Determinism requirement: every honest validator observing the same ledger
// snapshot must construct byte-identical proposals, so nothing here may
// depend on wall-clock time, randomness or local ordering.
func BuildProposal(state State, input ProposalInput, payload btc.Payload) (*btc.AnchoringTx, error) {
	cfg := state.Actual
	if input.Confirmations < cfg.UtxoConfirmations {
		return nil, ErrInsufficientConfirmations
	}
	value := input.Value - int64(cfg.Fee)
	if value <= 0 {
		return nil, ErrInsufficientFunds
	}

	target := state.TargetConfig()
	script, _, err := target.RedeemScript()
	if err != nil {
		return nil, err
	}
	payScript, err := script.PayScript(target.Network)
	if err != nil {
		return nil, err
	}
	payloadScript, err := payload.Script()
	if err != nil {
		return nil, err
	}
	prevHash, err := chainhash.NewHashFromStr(input.TxID)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(prevHash, input.Vout), nil, nil))
	tx.AddTxOut(wire.NewTxOut(value, payScript))
	tx.AddTxOut(wire.NewTxOut(0, payloadScript))
	return btc.NewAnchoringTx(tx), nil
}
