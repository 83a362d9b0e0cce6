package anchoring

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/assert"

	"github.com/SINHASantos/exonum-btc-anchoring/btc"
)

// signedProposal builds a funded 3-validator proposal and returns everything
// needed to sign and verify it
func signedProposal(t *testing.T, keys []*btcec.PrivateKey, fundingValue int64) (*btc.AnchoringTx, btc.RedeemScript, State, int64) {
	cfg := testConfig(t, keys)
	cfg.FundingTransaction = fundingTxFor(t, cfg, fundingValue)
	state := State{Actual: cfg}

	input, err := ProposalInputFrom(state, nil, 6)
	assert.NoError(t, err, "funding output should be found")
	proposal, err := BuildProposal(state, input, testPayload(1000))
	assert.NoError(t, err, "proposal construction should succeed")

	script, _, err := cfg.RedeemScript()
	assert.NoError(t, err, "redeem script derivation should succeed")
	return proposal, script, state, input.Value
}

func TestSignAndVerifyInput(t *testing.T) {
	keys := testPrivKeys(3)
	proposal, script, state, amount := signedProposal(t, keys, 100000)

	sig, err := SignInput(proposal.MsgTx, 0, amount, script, keys[0])
	assert.NoError(t, err, "signing should succeed")

	signer := state.Actual.Validators[0]
	assert.True(t, VerifyInputSignature(proposal.MsgTx, 0, amount, script, sig, signer),
		"a signature should verify against its own key")
	assert.False(t, VerifyInputSignature(proposal.MsgTx, 0, amount, script, sig, state.Actual.Validators[1]),
		"a signature must not verify against another validator's key")
	assert.False(t, VerifyInputSignature(proposal.MsgTx, 0, amount, script, []byte{0x01}, signer),
		"garbage bytes must not verify")
}

func TestFinalizableThreshold(t *testing.T) {
	records := []SignatureRecord{
		{ValidatorIndex: 0, ProposalTxID: "aa", Input: 0, Signature: "00"},
		{ValidatorIndex: 2, ProposalTxID: "aa", Input: 0, Signature: "00"},
	}
	assert.False(t, Finalizable(records, 1, 3), "two of four signers is below the majority of three")

	records = append(records, SignatureRecord{ValidatorIndex: 3, ProposalTxID: "aa", Input: 0, Signature: "00"})
	assert.True(t, Finalizable(records, 1, 3), "three distinct signers reach the majority")

	// the same validator repeating itself does not count twice
	duplicated := []SignatureRecord{
		{ValidatorIndex: 1, Input: 0}, {ValidatorIndex: 1, Input: 0}, {ValidatorIndex: 1, Input: 0},
	}
	assert.False(t, Finalizable(duplicated, 1, 3), "duplicate signers must not inflate the count")
}

func TestAssembleWitnessStructure(t *testing.T) {
	keys := testPrivKeys(3)
	proposal, script, _, amount := signedProposal(t, keys, 100000)
	majority := 3 // floor(2*3/3)+1

	records := []SignatureRecord{}
	// deliver out of index order to prove assembly reorders deterministically
	for _, idx := range []int{2, 0, 1} {
		sig, err := SignInput(proposal.MsgTx, 0, amount, script, keys[idx])
		assert.NoError(t, err, "signing should succeed")
		records = append(records, SignatureRecord{
			ValidatorIndex: idx,
			ProposalTxID:   proposal.TxID(),
			Input:          0,
			Signature:      hex.EncodeToString(sig),
		})
	}

	signed, err := Assemble(proposal, records, script, majority)
	assert.NoError(t, err, "assembly should succeed at threshold")

	witness := signed.MsgTx.TxIn[0].Witness
	assert.Equal(t, majority+2, len(witness), "witness is dummy, majority signatures, redeem script")
	assert.Equal(t, 0, len(witness[0]), "CHECKMULTISIG dummy element must be empty")
	assert.Equal(t, []byte(script), witness[len(witness)-1], "the redeem script closes the witness")

	// signatures sit in ascending validator order regardless of arrival order
	for i, idx := range []int{0, 1, 2} {
		sig, err := SignInput(proposal.MsgTx, 0, amount, script, keys[idx])
		assert.NoError(t, err, "signing should succeed")
		assert.Equal(t, sig, []byte(witness[1+i]), "witness slot %d should carry validator %d's signature", 1+i, idx)
	}

	// assembly must not touch the unsigned proposal
	assert.Equal(t, 0, len(proposal.MsgTx.TxIn[0].Witness), "the proposal itself stays unsigned")

	// the finished transaction actually spends the multisig output
	payScript, err := script.PayScript(btc.Testnet)
	assert.NoError(t, err, "pay script derivation should succeed")
	fetcher := txscript.NewCannedPrevOutputFetcher(payScript, amount)
	sigHashes := txscript.NewTxSigHashes(signed.MsgTx, fetcher)
	vm, err := txscript.NewEngine(payScript, signed.MsgTx, 0, txscript.StandardVerifyFlags, nil, sigHashes, amount, fetcher)
	assert.NoError(t, err, "script engine should initialize")
	assert.NoError(t, vm.Execute(), "the assembled witness should satisfy the multisig script")
}

func TestAssembleBelowThreshold(t *testing.T) {
	keys := testPrivKeys(3)
	proposal, script, _, amount := signedProposal(t, keys, 100000)

	sig, err := SignInput(proposal.MsgTx, 0, amount, script, keys[0])
	assert.NoError(t, err, "signing should succeed")
	records := []SignatureRecord{{
		ValidatorIndex: 0,
		ProposalTxID:   proposal.TxID(),
		Input:          0,
		Signature:      hex.EncodeToString(sig),
	}}
	if _, err := Assemble(proposal, records, script, 3); err != ErrNotFinalizable {
		t.Errorf("assembly below threshold should fail with ErrNotFinalizable, got %v", err)
	}
}

func TestKeyStoreRotate(t *testing.T) {
	keys := testPrivKeys(1)
	store := NewKeyStore()
	store.Add("addr-old", keys[0])

	key, ok := store.Lookup("addr-old")
	assert.True(t, ok, "bound address should resolve")
	assert.Equal(t, keys[0], key, "lookup should return the bound key")

	assert.True(t, store.Rotate("addr-old", "addr-new"), "rotation from a bound address should succeed")
	if _, ok := store.Lookup("addr-new"); !ok {
		t.Error("the new address should be bound after rotation")
	}
	if _, ok := store.Lookup("addr-old"); !ok {
		t.Error("the old address stays bound until the transition resolves")
	}

	assert.False(t, store.Rotate("addr-unknown", "addr-x"), "rotation from an unbound address should fail")
}
