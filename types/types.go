package types

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/privval"

	"github.com/SINHASantos/exonum-btc-anchoring/anchoring"
)

// service transaction kinds; this is a closed set, anything else is rejected
// at decode time
const (
	// TxTypeConfig proposes a new anchoring configuration epoch
	TxTypeConfig = "CFG"
	// TxTypeSignature carries one validator's signature for one proposal input
	TxTypeSignature = "SIG"
)

// Tx : the service transaction envelope gossiped through the consensus engine
type Tx struct {
	TxType  string `json:"type"`
	Data    string `json:"data"`
	Version int64  `json:"version"`
	Time    int64  `json:"time"`
	CoreID  string `json:"core_id"`
	Sig     string `json:"sig"`
}

// EcdsaSignature : asn1 signature layout for envelope verification
type EcdsaSignature struct {
	R, S *big.Int
}

// TendermintConfig : holds tendermint node initialization state
type TendermintConfig struct {
	Config   *cfg.Config
	FilePV   privval.FilePV
	NodeKey  *p2p.NodeKey
	Logger   log.Logger
	TMServer string
	TMPort   string
}

// AnchorConfig : process-level configuration assembled from flags and env
type AnchorConfig struct {
	HomePath         string
	APIPort          string
	DBType           string
	BitcoinNetwork   string
	ChainId          string
	AnchoringConfig  anchoring.Config
	BtcRPCHost       string
	BtcRPCUser       string
	BtcRPCPass       string
	PrivateKey       *btcec.PrivateKey
	ECPrivateKey     *ecdsa.PrivateKey
	TendermintConfig TendermintConfig
	Logger           *log.Logger
	DoAnchor         bool
}

// AnchorState : portion of the app state persisted between blocks
type AnchorState struct {
	Height               int64  `json:"height"`
	AppHash              []byte `json:"app_hash"`
	LatestAnchoredHeight uint64 `json:"latest_anchored_height"`
	LatestAnchorTx       string `json:"latest_anchor_tx"`
	LatestAnchorRelayed  bool   `json:"latest_anchor_relayed"`
	ChainSynced          bool   `json:"chain_synced"`
	ID                   string `json:"id"`
}

// StatusResponse : response from the status API endpoint
type StatusResponse struct {
	Network              string `json:"network"`
	Height               int64  `json:"height"`
	LatestAnchoredHeight uint64 `json:"latest_anchored_height"`
	LatestAnchorTx       string `json:"latest_anchor_tx"`
	AnchoringAddress     string `json:"anchoring_address"`
	InTransition         bool   `json:"in_transition"`
	ChainLength          uint64 `json:"chain_length"`
}

// ChainResponse : one finalized anchoring transaction in the chain API
type ChainResponse struct {
	Index          uint64 `json:"index"`
	TxID           string `json:"txid"`
	AnchoredHeight uint64 `json:"anchored_height"`
	StateHash      string `json:"state_hash"`
}
