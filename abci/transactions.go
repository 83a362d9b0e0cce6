package abci

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/abci/example/code"
	types2 "github.com/tendermint/tendermint/abci/types"
	"github.com/tendermint/tendermint/libs/kv"

	"github.com/SINHASantos/exonum-btc-anchoring/anchoring"
	"github.com/SINHASantos/exonum-btc-anchoring/types"
	"github.com/SINHASantos/exonum-btc-anchoring/util"
)

// envelopeKeys maps each committed validator's compressed public key to the
// ecdsa key its service tx envelopes are signed with
func (app *AnchorApplication) envelopeKeys() (map[string]ecdsa.PublicKey, error) {
	actual, err := app.Schema.ActualConfig()
	if err != nil {
		return nil, err
	}
	keys := make(map[string]ecdsa.PublicKey, len(actual.Validators))
	for _, validator := range actual.Validators {
		keys[validator.Hex()] = *validator.Key().ToECDSA()
	}
	return keys, nil
}

// authenticateTx decodes a service transaction and verifies the submitter's
// envelope signature against the committed validator set. Only current
// validators may move the anchoring ledger.
func (app *AnchorApplication) authenticateTx(rawTx []byte) (types.Tx, uint32) {
	if _, err := util.DecodeTx(rawTx); app.LogError(err) != nil {
		return types.Tx{}, code.CodeTypeEncodingError
	}
	envelopeKeys, err := app.envelopeKeys()
	if app.LogError(err) != nil {
		return types.Tx{}, code.CodeTypeUnauthorized
	}
	tx, err := util.DecodeTxAndVerifySig(rawTx, envelopeKeys)
	if app.LogError(err) != nil {
		return types.Tx{}, code.CodeTypeUnauthorized
	}
	return tx, code.CodeTypeOK
}

// validateTx : pre-gossip envelope and shape checks. Anything that can only
// be judged against the committed ledger (duplicate signatures, unknown
// proposals) is left to DeliverTx so every replica makes the same call.
func (app *AnchorApplication) validateTx(rawTx []byte) types2.ResponseCheckTx {
	tx, authCode := app.authenticateTx(rawTx)
	if authCode != code.CodeTypeOK {
		return types2.ResponseCheckTx{Code: authCode, GasWanted: 1}
	}
	switch tx.TxType {
	case types.TxTypeConfig:
		var cfg anchoring.Config
		if err := json.Unmarshal([]byte(tx.Data), &cfg); app.LogError(err) != nil {
			return types2.ResponseCheckTx{Code: code.CodeTypeEncodingError, GasWanted: 1}
		}
		if err := cfg.Validate(); app.LogError(err) != nil {
			return types2.ResponseCheckTx{Code: code.CodeTypeUnauthorized, GasWanted: 1}
		}
	case types.TxTypeSignature:
		var rec anchoring.SignatureRecord
		if err := json.Unmarshal([]byte(tx.Data), &rec); app.LogError(err) != nil {
			return types2.ResponseCheckTx{Code: code.CodeTypeEncodingError, GasWanted: 1}
		}
		if err := checkSignatureShape(rec); app.LogError(err) != nil {
			return types2.ResponseCheckTx{Code: code.CodeTypeEncodingError, GasWanted: 1}
		}
	default:
		app.LogError(errors.New(fmt.Sprintf("Unknown service tx type %s", tx.TxType)))
		return types2.ResponseCheckTx{Code: code.CodeTypeEncodingError, GasWanted: 1}
	}
	return types2.ResponseCheckTx{Code: code.CodeTypeOK, GasWanted: 1}
}

// checkSignatureShape rejects structurally malformed signature records
func checkSignatureShape(rec anchoring.SignatureRecord) error {
	if rec.ValidatorIndex < 0 {
		return errors.New("negative validator index")
	}
	if raw, err := hex.DecodeString(rec.ProposalTxID); err != nil || len(raw) != 32 {
		return errors.New("proposal txid is not a 32 byte hex hash")
	}
	if raw, err := hex.DecodeString(rec.Signature); err != nil || len(raw) == 0 {
		return errors.New("signature is not a hex der blob")
	}
	return nil
}

// updateStateFromTx : applies a committed service transaction to the
// anchoring ledger. Every branch here must be deterministic.
func (app *AnchorApplication) updateStateFromTx(rawTx []byte) types2.ResponseDeliverTx {
	tx, authCode := app.authenticateTx(rawTx)
	if authCode != code.CodeTypeOK {
		return types2.ResponseDeliverTx{Code: authCode}
	}
	tags := []kv.Pair{
		{Key: []byte("TxType"), Value: []byte(tx.TxType)},
		{Key: []byte("CoreID"), Value: []byte(tx.CoreID)},
		{Key: []byte("Height"), Value: util.Int64ToByte(app.state.Height)},
	}
	resp := types2.ResponseDeliverTx{Code: code.CodeTypeUnauthorized}
	switch tx.TxType {
	case types.TxTypeConfig:
		var cfg anchoring.Config
		if err := json.Unmarshal([]byte(tx.Data), &cfg); app.LogError(err) != nil {
			resp = types2.ResponseDeliverTx{Code: code.CodeTypeEncodingError}
			break
		}
		if err := app.applyConfig(cfg); app.LogError(err) == nil {
			tags = append(tags, kv.Pair{Key: []byte("CONFIG"), Value: []byte("NEW")})
			resp = types2.ResponseDeliverTx{Code: code.CodeTypeOK}
		}
	case types.TxTypeSignature:
		var rec anchoring.SignatureRecord
		if err := json.Unmarshal([]byte(tx.Data), &rec); app.LogError(err) != nil {
			resp = types2.ResponseDeliverTx{Code: code.CodeTypeEncodingError}
			break
		}
		finalized, err := app.applySignature(rec)
		if app.LogError(err) == nil {
			if finalized {
				tags = append(tags, kv.Pair{Key: []byte("ANCHOR"), Value: []byte(app.state.LatestAnchorTx)})
			}
			resp = types2.ResponseDeliverTx{Code: code.CodeTypeOK}
		}
	default:
		resp = types2.ResponseDeliverTx{Code: code.CodeTypeEncodingError}
	}
	resp.Events = []types2.Event{
		{
			Type:       "anchoring",
			Attributes: tags,
		},
	}
	return resp
}

// applyConfig appends a new configuration epoch and rebinds this
// validator's key to the new anchoring address
func (app *AnchorApplication) applyConfig(cfg anchoring.Config) error {
	var oldAddr string
	if latest, _, err := app.Schema.LatestConfigs(); err == nil {
		if _, addr, err := latest.RedeemScript(); err == nil {
			oldAddr = addr.EncodeAddress()
		}
	}
	if err := app.Schema.AddConfig(cfg); err != nil {
		return err
	}
	if _, newAddr, err := cfg.RedeemScript(); err == nil {
		if oldAddr != "" {
			app.Keys.Rotate(oldAddr, newAddr.EncodeAddress())
		}
		if app.Relay != nil {
			go app.Relay.WatchAddress(newAddr.EncodeAddress())
		}
	}
	app.logger.Info(fmt.Sprintf("Committed anchoring config with %d validators", len(cfg.Validators)))
	return nil
}
