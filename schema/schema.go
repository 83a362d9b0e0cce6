package schema

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/tendermint/tendermint/libs/log"
	dbm "github.com/tendermint/tm-db"

	"github.com/SINHASantos/exonum-btc-anchoring/anchoring"
	"github.com/SINHASantos/exonum-btc-anchoring/btc"
)

// key prefixes for the ledger-resident anchoring records
const (
	configCountKey = "config:count"
	chainLenKey    = "chain:len"
)

func configKey(index uint64) []byte {
	return []byte(fmt.Sprintf("config:%d", index))
}

func chainKey(index uint64) []byte {
	return []byte(fmt.Sprintf("chain:%d", index))
}

func proposalKey(height uint64) []byte {
	return []byte(fmt.Sprintf("proposal:%d", height))
}

func signaturesKey(txid string) []byte {
	return []byte("sigs:" + txid)
}

func signedHeightKey(validator int, height uint64) []byte {
	return []byte(fmt.Sprintf("signed:%d:%d", validator, height))
}

// Schema holds the anchoring service's ledger-resident state: the
// append-only configuration epoch log, proposed transactions, collected
// signature records and the finalized transaction chain.
type Schema struct {
	db     dbm.DB
	logger log.Logger
}

func New(db dbm.DB, logger log.Logger) *Schema {
	return &Schema{db: db, logger: logger}
}

func (s *Schema) getUint64(key string) (uint64, error) {
	raw, err := s.db.Get([]byte(key))
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (s *Schema) setUint64(key string, value uint64) error {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, value)
	return s.db.Set([]byte(key), raw)
}

// AddConfig appends a configuration epoch to the log. Invalid configurations
// are rejected here so that later projections never observe an empty
// validator set or a zero frequency.
func (s *Schema) AddConfig(cfg anchoring.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	count, err := s.ConfigCount()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := s.db.Set(configKey(count), raw); err != nil {
		return err
	}
	return s.setUint64(configCountKey, count+1)
}

// ConfigCount : the number of committed configuration epochs
func (s *Schema) ConfigCount() (uint64, error) {
	return s.getUint64(configCountKey)
}

// ConfigByIndex : reads one epoch from the append-only log
func (s *Schema) ConfigByIndex(index uint64) (anchoring.Config, error) {
	raw, err := s.db.Get(configKey(index))
	if err != nil {
		return anchoring.Config{}, err
	}
	if len(raw) == 0 {
		return anchoring.Config{}, fmt.Errorf("no configuration epoch at index %d", index)
	}
	var cfg anchoring.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return anchoring.Config{}, err
	}
	return cfg, nil
}

// LatestConfigs returns the last two committed epochs: the latest and, when
// more than one epoch exists, its predecessor. The transition projection
// decides which of the two is actual.
func (s *Schema) LatestConfigs() (latest anchoring.Config, previous *anchoring.Config, err error) {
	count, err := s.ConfigCount()
	if err != nil {
		return anchoring.Config{}, nil, err
	}
	if count == 0 {
		return anchoring.Config{}, nil, fmt.Errorf("no configuration epochs committed")
	}
	latest, err = s.ConfigByIndex(count - 1)
	if err != nil {
		return anchoring.Config{}, nil, err
	}
	if count > 1 {
		prev, err := s.ConfigByIndex(count - 2)
		if err != nil {
			return anchoring.Config{}, nil, err
		}
		previous = &prev
	}
	return latest, previous, nil
}

// TransitionState projects the actual/following configuration view from the
// committed epoch log and the current chain tip.
func (s *Schema) TransitionState() (anchoring.State, error) {
	latest, previous, err := s.LatestConfigs()
	if err != nil {
		return anchoring.State{}, err
	}
	tip, err := s.LastChainTx()
	if err != nil {
		return anchoring.State{}, err
	}
	if previous != nil {
		return anchoring.StateFor(*previous, &latest, tip)
	}
	return anchoring.StateFor(latest, nil, tip)
}

// ActualConfig : the configuration currently in force
func (s *Schema) ActualConfig() (anchoring.Config, error) {
	state, err := s.TransitionState()
	if err != nil {
		return anchoring.Config{}, err
	}
	return state.Actual, nil
}

// FollowingConfig : the committed successor configuration, nil outside a transition
func (s *Schema) FollowingConfig() (*anchoring.Config, error) {
	state, err := s.TransitionState()
	if err != nil {
		return nil, err
	}
	return state.Following, nil
}

// AddProposal stores the unsigned proposal for an anchored height. Every
// replica derives the same proposal bytes, so this is a local materialization
// of shared data rather than a consensus write.
func (s *Schema) AddProposal(height uint64, tx *btc.AnchoringTx) error {
	return s.db.Set(proposalKey(height), []byte(tx.Hex()))
}

// Proposal : loads the proposal for an anchored height, if one exists
func (s *Schema) Proposal(height uint64) (*btc.AnchoringTx, bool, error) {
	raw, err := s.db.Get(proposalKey(height))
	if err != nil {
		return nil, false, err
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	tx, err := btc.ParseAnchoringTx(string(raw))
	if err != nil {
		return nil, false, err
	}
	return tx, true, nil
}

// AddSignature appends a signature record for a proposal input. Records from
// the same validator for the same (proposal, input) are collapsed: replays
// are benign.
func (s *Schema) AddSignature(rec anchoring.SignatureRecord) error {
	records, err := s.Signatures(rec.ProposalTxID)
	if err != nil {
		return err
	}
	for _, existing := range records {
		if existing.ValidatorIndex == rec.ValidatorIndex && existing.Input == rec.Input {
			return nil
		}
	}
	records = append(records, rec)
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return s.db.Set(signaturesKey(rec.ProposalTxID), raw)
}

// Signatures : all collected records for a proposal
func (s *Schema) Signatures(txid string) ([]anchoring.SignatureRecord, error) {
	raw, err := s.db.Get(signaturesKey(txid))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []anchoring.SignatureRecord{}, nil
	}
	var records []anchoring.SignatureRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// HasSignature : whether a validator's record for one input is already committed
func (s *Schema) HasSignature(txid string, validator int, input uint32) (bool, error) {
	records, err := s.Signatures(txid)
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		if rec.ValidatorIndex == validator && rec.Input == input {
			return true, nil
		}
	}
	return false, nil
}

// RecordSignedHeight marks that a validator signed the proposal with the
// given txid for the given height. Attempting to record a different txid for
// an already-signed height is equivocation and fails with
// ErrDuplicateProposalSignature.
func (s *Schema) RecordSignedHeight(validator int, height uint64, txid string) error {
	key := signedHeightKey(validator, height)
	existing, err := s.db.Get(key)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		if string(existing) != txid {
			return anchoring.ErrDuplicateProposalSignature
		}
		return nil
	}
	return s.db.Set(key, []byte(txid))
}

// SignedProposal : the proposal txid a validator signed for a height, if any
func (s *Schema) SignedProposal(validator int, height uint64) (string, bool, error) {
	raw, err := s.db.Get(signedHeightKey(validator, height))
	if err != nil {
		return "", false, err
	}
	if len(raw) == 0 {
		return "", false, nil
	}
	return string(raw), true, nil
}

// AppendToChain records a finalized anchoring transaction as the new chain
// tip. The chain never forks: exactly one fully signed transaction per spend
// is appended, in commit order.
func (s *Schema) AppendToChain(tx *btc.AnchoringTx) error {
	length, err := s.ChainLength()
	if err != nil {
		return err
	}
	if err := s.db.Set(chainKey(length), []byte(tx.Hex())); err != nil {
		return err
	}
	return s.setUint64(chainLenKey, length+1)
}

// ChainLength : the number of finalized anchoring transactions
func (s *Schema) ChainLength() (uint64, error) {
	return s.getUint64(chainLenKey)
}

// ChainTx : one finalized link of the chain
func (s *Schema) ChainTx(index uint64) (*btc.AnchoringTx, error) {
	raw, err := s.db.Get(chainKey(index))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no anchoring transaction at chain index %d", index)
	}
	return btc.ParseAnchoringTx(string(raw))
}

// LastChainTx : the chain tip, or nil while the chain is empty
func (s *Schema) LastChainTx() (*btc.AnchoringTx, error) {
	length, err := s.ChainLength()
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}
	return s.ChainTx(length - 1)
}

// LastAnchoredHeight : the ledger height committed by the chain tip
func (s *Schema) LastAnchoredHeight() (uint64, bool, error) {
	tip, err := s.LastChainTx()
	if err != nil || tip == nil {
		return 0, false, err
	}
	payload, err := tip.Payload()
	if err != nil {
		return 0, false, err
	}
	return payload.BlockHeight, true, nil
}

// StateHash folds the anchoring service's ledger-resident state into a
// single hash for the host's overall state commitment.
func (s *Schema) StateHash() ([]byte, error) {
	configCount, err := s.ConfigCount()
	if err != nil {
		return nil, err
	}
	chainLength, err := s.ChainLength()
	if err != nil {
		return nil, err
	}
	hasher := sha256.New()
	counts := make([]byte, 16)
	binary.BigEndian.PutUint64(counts[:8], configCount)
	binary.BigEndian.PutUint64(counts[8:], chainLength)
	hasher.Write(counts)
	if tip, err := s.LastChainTx(); err == nil && tip != nil {
		hasher.Write([]byte(tip.TxID()))
	}
	return hasher.Sum(nil), nil
}
