package anchoring

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/SINHASantos/exonum-btc-anchoring/btc"
)

var (
	// ErrMissingFundingTx : the configuration has no funding transaction yet.
	// A suitable funding transaction must be specified before the first
	// anchoring transaction of a fresh chain can be built.
	ErrMissingFundingTx = errors.New("no funding transaction configured")
	// ErrNoValidators : a configuration with an empty validator set can never anchor
	ErrNoValidators = errors.New("anchoring configuration requires at least one validator")
	// ErrZeroFrequency : the anchoring interval must be positive
	ErrZeroFrequency = errors.New("anchoring frequency must be greater than zero")
)

// Config is the public anchoring configuration committed to the ledger, one
// per configuration epoch. The validator order is significant: it fixes the
// redeem script layout and signer indexing.
type Config struct {
	Validators         []btc.PublicKey `json:"validators"`
	FundingTransaction *btc.FundingTx  `json:"funding_tx,omitempty"`
	Fee                uint64          `json:"fee"`
	Frequency          uint64          `json:"frequency"`
	UtxoConfirmations  uint64          `json:"utxo_confirmations"`
	Network            btc.Network     `json:"network"`
}

// DefaultConfig : deployment defaults for fee, interval and confirmation depth
func DefaultConfig() Config {
	return Config{
		Fee:               1000,
		Frequency:         500,
		UtxoConfirmations: 5,
		Network:           btc.Testnet,
	}
}

// NewConfig creates a bootstrap configuration with a single validator and no
// funding transaction. Used during the key-exchange phase before launch,
// when participants trade public configurations and no funds exist yet.
func NewConfig(network btc.Network, key btc.PublicKey) Config {
	cfg := DefaultConfig()
	cfg.Network = network
	cfg.Validators = []btc.PublicKey{key}
	return cfg
}

// NewConfigWithFundingTx creates a ready-to-anchor configuration from a
// validator set and a funding transaction created earlier.
func NewConfigWithFundingTx(network btc.Network, validators []btc.PublicKey, tx *btc.FundingTx) Config {
	cfg := DefaultConfig()
	cfg.Network = network
	cfg.Validators = validators
	cfg.FundingTransaction = tx
	return cfg
}

// MajorityCount returns the BFT supermajority threshold floor(2n/3)+1.
// Preserved exactly for consensus compatibility; this is not n/2+1.
func MajorityCount(validators int) int {
	return validators*2/3 + 1
}

// MajorityCount : the signature threshold for this configuration's validator set
func (cfg Config) MajorityCount() int {
	return MajorityCount(len(cfg.Validators))
}

// LatestAnchoringHeight returns the largest height at or below the given
// height that falls on an anchoring interval boundary. The frequency must
// have been validated as nonzero at configuration-acceptance time.
func (cfg Config) LatestAnchoringHeight(height uint64) uint64 {
	return height - height%cfg.Frequency
}

// FundingTx returns the configured funding transaction. Callers must treat
// ErrMissingFundingTx as a deployment precondition failure, not retry it.
func (cfg Config) FundingTx() (*btc.FundingTx, error) {
	if cfg.FundingTransaction == nil {
		return nil, ErrMissingFundingTx
	}
	return cfg.FundingTransaction, nil
}

// RedeemScript derives the multisig script and its address as a bound pair.
// Recomputing one without the other risks inconsistency, so they are always
// returned together.
func (cfg Config) RedeemScript() (btc.RedeemScript, btcutil.Address, error) {
	script, err := btc.BuildRedeemScript(cfg.Validators, cfg.MajorityCount())
	if err != nil {
		return nil, nil, err
	}
	addr, err := script.Address(cfg.Network)
	if err != nil {
		return nil, nil, err
	}
	return script, addr, nil
}

// Validate rejects configurations that could never anchor. Run at
// configuration-acceptance time so that division by a zero frequency or an
// underivable address can never be reached later.
func (cfg Config) Validate() error {
	if len(cfg.Validators) == 0 {
		return ErrNoValidators
	}
	if cfg.Frequency == 0 {
		return ErrZeroFrequency
	}
	if _, err := btc.ParseNetwork(string(cfg.Network)); err != nil {
		return err
	}
	return nil
}

// ValidatorIndex returns the position of the given key in this
// configuration's validator set.
func (cfg Config) ValidatorIndex(key btc.PublicKey) (int, bool) {
	for i, validator := range cfg.Validators {
		if validator.Equal(key) {
			return i, true
		}
	}
	return -1, false
}
