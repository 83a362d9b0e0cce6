package abci

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SINHASantos/exonum-btc-anchoring/anchoring"
	"github.com/SINHASantos/exonum-btc-anchoring/btc"
	"github.com/SINHASantos/exonum-btc-anchoring/types"
)

// StartAnchoring runs once per committed block. It checks the anchoring
// schedule, materializes the proposal for the due height if this replica
// hasn't yet, and submits this validator's signatures through consensus.
// Nothing here writes consensus state directly; the ledger only changes
// when the resulting service transactions are delivered.
func (app *AnchorApplication) StartAnchoring() {
	count, err := app.Schema.ConfigCount()
	if app.LogError(err) != nil || count == 0 {
		return
	}
	state, err := app.anchoringState()
	if app.LogError(err) != nil {
		return
	}
	lastAnchored, hasAnchored, err := app.Schema.LastAnchoredHeight()
	if app.LogError(err) != nil {
		return
	}
	target, due := anchoring.ShouldAnchor(state.Actual, uint64(app.state.Height), lastAnchored, hasAnchored)
	if !due {
		return
	}
	proposal, ok, err := app.Schema.Proposal(target)
	if app.LogError(err) != nil {
		return
	}
	if !ok {
		proposal, err = app.buildProposal(state, target, false)
		if err != nil {
			// not fatal: a missing funding tx or a shallow output resolves
			// itself on a later block
			app.logger.Info(fmt.Sprintf("No anchoring proposal for height %d yet: %s", target, err.Error()))
			return
		}
		if app.LogError(app.Schema.AddProposal(target, proposal)) != nil {
			return
		}
		app.logger.Info(fmt.Sprintf("Built anchoring proposal %s for height %d", proposal.TxID(), target))
	}
	app.signProposal(state, proposal, target)
}

func (app *AnchorApplication) anchoringState() (anchoring.State, error) {
	return app.Schema.TransitionState()
}

// anchorPayload derives the ledger commitment for a target height. It is a
// pure function of the committed anchoring state, so every replica embeds
// the same commitment in its proposal.
func (app *AnchorApplication) anchorPayload(target uint64) (btc.Payload, error) {
	schemaHash, err := app.Schema.StateHash()
	if err != nil {
		return btc.Payload{}, err
	}
	heightBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(heightBytes, target)
	return btc.Payload{
		BlockHeight: target,
		StateHash:   sha256.Sum256(append(schemaHash, heightBytes...)),
	}, nil
}

// buildProposal derives the unsigned anchoring transaction for a target
// height. With trustChain set the relay's confirmation gate is skipped;
// that path is used when re-deriving a proposal deterministically during
// block replay, where live confirmation counts are unavailable.
func (app *AnchorApplication) buildProposal(state anchoring.State, target uint64, trustChain bool) (*btc.AnchoringTx, error) {
	tip, err := app.Schema.LastChainTx()
	if err != nil {
		return nil, err
	}
	confirmations := state.Actual.UtxoConfirmations
	if !trustChain {
		confirmations, err = app.spendableConfirmations(state, tip)
		if err != nil {
			return nil, err
		}
	}
	input, err := anchoring.ProposalInputFrom(state, tip, confirmations)
	if err != nil {
		return nil, err
	}
	payload, err := app.anchorPayload(target)
	if err != nil {
		return nil, err
	}
	return anchoring.BuildProposal(state, input, payload)
}

// spendableConfirmations asks the relay how deep the spendable output is
func (app *AnchorApplication) spendableConfirmations(state anchoring.State, tip *btc.AnchoringTx) (uint64, error) {
	if app.Relay == nil {
		// no relay configured, trust the chain bookkeeping
		return state.Actual.UtxoConfirmations, nil
	}
	var txid string
	if tip != nil {
		txid = tip.TxID()
	} else {
		funding, err := state.Actual.FundingTx()
		if err != nil {
			return 0, anchoring.ErrNoFundingTransaction
		}
		txid = funding.TxID()
	}
	confirmations, err := app.Relay.TxConfirmations(txid)
	if err != nil || confirmations < 0 {
		return 0, err
	}
	return uint64(confirmations), nil
}

// signProposal submits this validator's signature for every proposal input
// through the consensus engine. Signatures never touch the local ledger here;
// they come back through DeliverTx like everyone else's, keeping replicas
// identical. A height this validator already signed for a different proposal
// is refused outright.
func (app *AnchorApplication) signProposal(state anchoring.State, proposal *btc.AnchoringTx, target uint64) {
	script, addr, err := state.Actual.RedeemScript()
	if app.LogError(err) != nil {
		return
	}
	key, ok := app.Keys.Lookup(addr.EncodeAddress())
	if !ok {
		return // this node holds no key for the anchoring address
	}
	idx, ok := state.Actual.ValidatorIndex(btc.NewPublicKey(key.PubKey()))
	if !ok {
		return
	}
	txid := proposal.TxID()
	if err := app.Schema.RecordSignedHeight(idx, target, txid); app.LogError(err) != nil {
		return
	}
	tip, err := app.Schema.LastChainTx()
	if app.LogError(err) != nil {
		return
	}
	input, err := anchoring.ProposalInputFrom(state, tip, state.Actual.UtxoConfirmations)
	if app.LogError(err) != nil {
		return
	}
	for i := range proposal.MsgTx.TxIn {
		committed, err := app.Schema.HasSignature(txid, idx, uint32(i))
		if app.LogError(err) != nil || committed {
			continue
		}
		sig, err := anchoring.SignInput(proposal.MsgTx, i, input.Value, script, key)
		if app.LogError(err) != nil {
			continue
		}
		rec := anchoring.SignatureRecord{
			ValidatorIndex: idx,
			ProposalTxID:   txid,
			Input:          uint32(i),
			Signature:      hex.EncodeToString(sig),
		}
		data, err := json.Marshal(rec)
		if app.LogError(err) != nil {
			continue
		}
		go app.rpc.BroadcastTx(types.TxTypeSignature, string(data), 2, time.Now().Unix(), app.ID, app.config.ECPrivateKey)
	}
}

// applySignature validates and commits one delivered signature record, then
// finalizes the proposal once every input holds a signature majority. Runs
// inside DeliverTx, so each step depends only on committed state.
func (app *AnchorApplication) applySignature(rec anchoring.SignatureRecord) (bool, error) {
	state, err := app.anchoringState()
	if err != nil {
		return false, err
	}
	lastAnchored, hasAnchored, err := app.Schema.LastAnchoredHeight()
	if err != nil {
		return false, err
	}
	target, due := anchoring.ShouldAnchor(state.Actual, uint64(app.state.Height), lastAnchored, hasAnchored)
	if !due {
		return false, errors.New("no anchoring proposal is pending")
	}
	proposal, ok, err := app.Schema.Proposal(target)
	if err != nil {
		return false, err
	}
	if !ok {
		// replaying replicas re-derive the proposal from committed state
		proposal, err = app.buildProposal(state, target, true)
		if err != nil {
			return false, err
		}
		if err := app.Schema.AddProposal(target, proposal); err != nil {
			return false, err
		}
	}
	if rec.ProposalTxID != proposal.TxID() {
		return false, fmt.Errorf("signature references unknown proposal %s", rec.ProposalTxID)
	}
	if rec.ValidatorIndex < 0 || rec.ValidatorIndex >= len(state.Actual.Validators) {
		return false, fmt.Errorf("validator index %d out of range", rec.ValidatorIndex)
	}
	if int(rec.Input) >= len(proposal.MsgTx.TxIn) {
		return false, fmt.Errorf("input index %d out of range", rec.Input)
	}
	sig, err := hex.DecodeString(rec.Signature)
	if err != nil {
		return false, err
	}
	tip, err := app.Schema.LastChainTx()
	if err != nil {
		return false, err
	}
	input, err := anchoring.ProposalInputFrom(state, tip, state.Actual.UtxoConfirmations)
	if err != nil {
		return false, err
	}
	script, _, err := state.Actual.RedeemScript()
	if err != nil {
		return false, err
	}
	signer := state.Actual.Validators[rec.ValidatorIndex]
	if !anchoring.VerifyInputSignature(proposal.MsgTx, int(rec.Input), input.Value, script, sig, signer) {
		return false, fmt.Errorf("invalid signature from validator %d", rec.ValidatorIndex)
	}
	if err := app.Schema.AddSignature(rec); err != nil {
		return false, err
	}
	return app.tryFinalize(state, proposal, script)
}

// tryFinalize assembles and commits the fully signed transaction once every
// input has reached the signature threshold
func (app *AnchorApplication) tryFinalize(state anchoring.State, proposal *btc.AnchoringTx, script btc.RedeemScript) (bool, error) {
	records, err := app.Schema.Signatures(proposal.TxID())
	if err != nil {
		return false, err
	}
	majority := state.Actual.MajorityCount()
	if !anchoring.Finalizable(records, len(proposal.MsgTx.TxIn), majority) {
		return false, nil
	}
	signed, err := anchoring.Assemble(proposal, records, script, majority)
	if err != nil {
		return false, err
	}
	if err := app.Schema.AppendToChain(signed); err != nil {
		return false, err
	}
	payload, err := signed.Payload()
	if err != nil {
		return false, err
	}
	app.stateMtx.Lock()
	app.state.LatestAnchoredHeight = payload.BlockHeight
	app.state.LatestAnchorTx = signed.TxID()
	app.state.LatestAnchorRelayed = false
	app.stateMtx.Unlock()
	app.logger.Info(fmt.Sprintf("Finalized anchoring tx %s for height %d", signed.TxID(), payload.BlockHeight))
	if app.Relay != nil && app.chainSynced() {
		go app.relayTx(signed)
	}
	return true, nil
}

// relayTx is fire and forget; an unconfirmed tip is retried from
// MonitorConfirmedTx on later blocks
func (app *AnchorApplication) relayTx(tx *btc.AnchoringTx) {
	if _, err := app.Relay.BroadcastTx(tx); err != nil {
		app.logger.Info(fmt.Sprintf("Relay broadcast of %s failed, will retry: %s", tx.TxID(), err.Error()))
		return
	}
	app.setAnchorRelayed(true)
}

// MonitorConfirmedTx rebroadcasts the chain tip until the relay reports it
// confirmed. Runs outside consensus; every validator may rebroadcast the same
// transaction and the bitcoin network deduplicates.
func (app *AnchorApplication) MonitorConfirmedTx() {
	app.stateMtx.Lock()
	latestTx := app.state.LatestAnchorTx
	relayed := app.state.LatestAnchorRelayed
	app.stateMtx.Unlock()
	if app.Relay == nil || latestTx == "" || relayed {
		return
	}
	confirmations, err := app.Relay.TxConfirmations(latestTx)
	if err == nil && confirmations > 0 {
		app.setAnchorRelayed(true)
		return
	}
	tip, err := app.Schema.LastChainTx()
	if err != nil || tip == nil {
		return
	}
	app.relayTx(tip)
}
