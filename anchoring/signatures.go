package anchoring

import (
	"encoding/hex"
	"errors"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/SINHASantos/exonum-btc-anchoring/btc"
)

var (
	// ErrDuplicateProposalSignature : a validator asked to sign a second,
	// different proposal for a height it has already signed. Signing both
	// would let an adversary fork the anchoring chain.
	ErrDuplicateProposalSignature = errors.New("validator already signed a different proposal for this height")
	// ErrNotFinalizable : not every input has reached the signature threshold
	ErrNotFinalizable = errors.New("proposal lacks a signature majority on every input")
)

// SignatureRecord is one validator's signature over one input of a proposed
// anchoring transaction. Records for the same (proposal, input) from
// different signers accumulate in the ledger until threshold.
type SignatureRecord struct {
	ValidatorIndex int    `json:"validator"`
	ProposalTxID   string `json:"proposal_txid"`
	Input          uint32 `json:"input"`
	Signature      string `json:"signature"`
}

// SignInput computes this validator's BIP143 witness signature for one input
// of a proposal. The returned bytes include the sighash type byte, ready for
// the multisig witness.
func SignInput(tx *wire.MsgTx, idx int, amount int64, redeemScript btc.RedeemScript, key *btcec.PrivateKey) ([]byte, error) {
	fetcher := txscript.NewCannedPrevOutputFetcher(redeemScript, amount)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	return txscript.RawTxInWitnessSignature(tx, sigHashes, idx, amount, redeemScript, txscript.SigHashAll, key)
}

// VerifyInputSignature checks a signature record's bytes against a validator
// public key for the given proposal input.
func VerifyInputSignature(tx *wire.MsgTx, idx int, amount int64, redeemScript btc.RedeemScript, sig []byte, key btc.PublicKey) bool {
	if len(sig) < 2 {
		return false
	}
	fetcher := txscript.NewCannedPrevOutputFetcher(redeemScript, amount)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	hash, err := txscript.CalcWitnessSigHash(redeemScript, sigHashes, txscript.SigHashAll, tx, idx, amount)
	if err != nil {
		return false
	}
	// strip the trailing sighash type byte before DER parsing
	parsed, err := ecdsa.ParseDERSignature(sig[:len(sig)-1])
	if err != nil {
		return false
	}
	return parsed.Verify(hash, key.Key())
}

// Finalizable reports whether every input of a proposal with the given input
// count has signatures from at least majority distinct validators.
func Finalizable(records []SignatureRecord, inputs int, majority int) bool {
	signers := make(map[uint32]map[int]bool)
	for _, rec := range records {
		if signers[rec.Input] == nil {
			signers[rec.Input] = map[int]bool{}
		}
		signers[rec.Input][rec.ValidatorIndex] = true
	}
	for i := 0; i < inputs; i++ {
		if len(signers[uint32(i)]) < majority {
			return false
		}
	}
	return true
}

// Assemble builds the fully signed anchoring transaction from the collected
// records. For each input it takes the majority subset with the lowest
// validator indexes, in ascending index order, so every validator assembles
// an identical transaction. Records must already have been verified on
// acceptance; any one of them failing to decode here aborts assembly.
func Assemble(proposal *btc.AnchoringTx, records []SignatureRecord, redeemScript btc.RedeemScript, majority int) (*btc.AnchoringTx, error) {
	byInput := make(map[uint32][]SignatureRecord)
	for _, rec := range records {
		byInput[rec.Input] = append(byInput[rec.Input], rec)
	}

	signed := proposal.MsgTx.Copy()
	for idx := range signed.TxIn {
		recs := byInput[uint32(idx)]
		sort.Slice(recs, func(i, j int) bool { return recs[i].ValidatorIndex < recs[j].ValidatorIndex })
		recs = dedupeByValidator(recs)
		if len(recs) < majority {
			return nil, ErrNotFinalizable
		}
		// CHECKMULTISIG consumes one extra stack element
		witness := wire.TxWitness{[]byte{}}
		for _, rec := range recs[:majority] {
			sig, err := hex.DecodeString(rec.Signature)
			if err != nil {
				return nil, err
			}
			witness = append(witness, sig)
		}
		witness = append(witness, redeemScript)
		signed.TxIn[idx].Witness = witness
	}
	return btc.NewAnchoringTx(signed), nil
}

func dedupeByValidator(recs []SignatureRecord) []SignatureRecord {
	out := recs[:0:0]
	seen := map[int]bool{}
	for _, rec := range recs {
		if seen[rec.ValidatorIndex] {
			continue
		}
		seen[rec.ValidatorIndex] = true
		out = append(out, rec)
	}
	return out
}
