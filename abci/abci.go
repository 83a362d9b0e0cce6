package abci

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	types2 "github.com/tendermint/tendermint/abci/types"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/version"
	dbm "github.com/tendermint/tm-db"

	"github.com/SINHASantos/exonum-btc-anchoring/anchoring"
	"github.com/SINHASantos/exonum-btc-anchoring/btc"
	"github.com/SINHASantos/exonum-btc-anchoring/relay"
	"github.com/SINHASantos/exonum-btc-anchoring/schema"
	"github.com/SINHASantos/exonum-btc-anchoring/tmrpc"
	"github.com/SINHASantos/exonum-btc-anchoring/types"
	"github.com/SINHASantos/exonum-btc-anchoring/util"
)

// variables for protocol version and main db state key
var (
	stateKey                         = []byte("anchoring")
	ProtocolVersion version.Protocol = 0x1
)

// loadState loads the AnchorState struct from a database instance
func loadState(db dbm.DB) types.AnchorState {
	stateBytes, err := db.Get(stateKey)
	if util.LogError(err) != nil {
		panic(err)
	}
	var state types.AnchorState
	if len(stateBytes) != 0 {
		err := json.Unmarshal(stateBytes, &state)
		if err != nil {
			panic(err)
		}
	}
	return state
}

// saveState saves the AnchorState struct to disk
func saveState(db dbm.DB, state types.AnchorState) {
	stateBytes, err := json.Marshal(state)
	if err != nil {
		panic(err)
	}
	db.Set(stateKey, stateBytes)
}

//---------------------------------------------------

var _ types2.Application = (*AnchorApplication)(nil)

// AnchorApplication : state and config variables for the anchoring abci app
type AnchorApplication struct {
	types2.BaseApplication
	Db       dbm.DB
	Schema   *schema.Schema
	Keys     *anchoring.KeyStore
	Relay    relay.BtcRelay
	state    *types.AnchorState
	stateMtx sync.Mutex // guards state against the monitor goroutines
	config   types.AnchorConfig
	logger   log.Logger
	rpc      *tmrpc.RPC
	ID       string
}

// NewAnchorApplication is the abci app constructor
func NewAnchorApplication(config types.AnchorConfig) *AnchorApplication {
	// Load state from disk
	db := dbm.NewDB("anchoring", dbm.BackendType(config.DBType), config.HomePath+"/data")
	loadedState := loadState(db)
	state := &loadedState
	state.ChainSynced = false // False until we finish syncing

	// service txs identify their submitter by validator bitcoin public key,
	// so peers can check envelope signatures against the committed config
	id := ""
	if config.PrivateKey != nil {
		id = btc.NewPublicKey(config.PrivateKey.PubKey()).Hex()
	} else if config.TendermintConfig.NodeKey != nil {
		id = string(config.TendermintConfig.NodeKey.ID())
	}
	state.ID = id

	var btcRelay relay.BtcRelay
	if config.BtcRPCHost != "" {
		r, err := relay.NewBitcoindRelay(config.BtcRPCHost, config.BtcRPCUser, config.BtcRPCPass, *config.Logger)
		if util.LoggerError(*config.Logger, err) == nil {
			btcRelay = r
		}
	}

	app := AnchorApplication{
		Db:     db,
		Schema: schema.New(db, *config.Logger),
		Keys:   anchoring.NewKeyStore(),
		Relay:  btcRelay,
		state:  state,
		config: config,
		logger: *config.Logger,
		rpc:    tmrpc.NewRPCClient(config.TendermintConfig, *config.Logger),
		ID:     id,
	}

	app.bindKnownAddresses()

	app.logger.Info(fmt.Sprintf("Anchoring app starting at height %d", app.state.Height))

	go app.SyncMonitor() // don't relay until the chain is caught up
	go app.registerWithRelay()

	return &app
}

// registerWithRelay imports the anchoring address into the relay's wallet and
// checks the configured funding transaction is visible on the bitcoin network
func (app *AnchorApplication) registerWithRelay() {
	if app.Relay == nil {
		return
	}
	if _, addr, err := app.config.AnchoringConfig.RedeemScript(); err == nil {
		app.LogError(app.Relay.WatchAddress(addr.EncodeAddress()))
	}
	if funding, err := app.config.AnchoringConfig.FundingTx(); err == nil {
		if _, err := app.Relay.GetRawTx(funding.TxID()); err != nil {
			app.logger.Info(fmt.Sprintf("Funding tx %s is not visible on the bitcoin network yet", funding.TxID()))
		}
	}
}

// bindKnownAddresses seeds the keystore with this validator's bitcoin key for
// every committed configuration address, so signing keeps working across a
// restart that lands mid-transition.
func (app *AnchorApplication) bindKnownAddresses() {
	if app.config.PrivateKey == nil {
		return
	}
	bind := func(cfg anchoring.Config) {
		_, addr, err := cfg.RedeemScript()
		if err != nil {
			return
		}
		app.Keys.Add(addr.EncodeAddress(), app.config.PrivateKey)
	}
	if app.config.AnchoringConfig.Validate() == nil {
		bind(app.config.AnchoringConfig)
	}
	latest, previous, err := app.Schema.LatestConfigs()
	if err != nil {
		return
	}
	bind(latest)
	if previous != nil {
		bind(*previous)
	}
}

// SetOption : Method for runtime data transfer between other apps and ABCI
func (app *AnchorApplication) SetOption(req types2.RequestSetOption) (res types2.ResponseSetOption) {
	return
}

// InitChain : seeds the genesis anchoring configuration into the ledger
func (app *AnchorApplication) InitChain(req types2.RequestInitChain) types2.ResponseInitChain {
	count, err := app.Schema.ConfigCount()
	if app.LogError(err) != nil {
		return types2.ResponseInitChain{}
	}
	if count == 0 {
		if err := app.Schema.AddConfig(app.config.AnchoringConfig); app.LogError(err) == nil {
			app.logger.Info(fmt.Sprintf("Seeded genesis anchoring config: %d validators on %s",
				len(app.config.AnchoringConfig.Validators), app.config.AnchoringConfig.Network))
		}
	}
	return types2.ResponseInitChain{}
}

// setChainSynced / chainSynced : the relay gate, flipped by SyncMonitor
// while the consensus thread keeps committing
func (app *AnchorApplication) setChainSynced(synced bool) {
	app.stateMtx.Lock()
	app.state.ChainSynced = synced
	app.stateMtx.Unlock()
}

func (app *AnchorApplication) chainSynced() bool {
	app.stateMtx.Lock()
	defer app.stateMtx.Unlock()
	return app.state.ChainSynced
}

func (app *AnchorApplication) setAnchorRelayed(relayed bool) {
	app.stateMtx.Lock()
	app.state.LatestAnchorRelayed = relayed
	app.stateMtx.Unlock()
}

// Info : Return the state of the current application in JSON
func (app *AnchorApplication) Info(req types2.RequestInfo) (resInfo types2.ResponseInfo) {
	app.stateMtx.Lock()
	infoJSON, err := json.Marshal(app.state)
	app.stateMtx.Unlock()
	if err != nil {
		app.LogError(err)
		infoJSON = []byte("{}")
	}
	return types2.ResponseInfo{
		Data:             string(infoJSON),
		Version:          version.ABCIVersion,
		AppVersion:       ProtocolVersion.Uint64(),
		LastBlockHeight:  app.state.Height,
		LastBlockAppHash: app.state.AppHash,
	}
}

// DeliverTx : tx is a base64 encoded json service transaction
func (app *AnchorApplication) DeliverTx(tx types2.RequestDeliverTx) types2.ResponseDeliverTx {
	return app.updateStateFromTx(tx.Tx)
}

// CheckTx : Pre-gossip validation of service transactions
func (app *AnchorApplication) CheckTx(rawTx types2.RequestCheckTx) types2.ResponseCheckTx {
	return app.validateTx(rawTx.Tx)
}

// BeginBlock : Handler that runs at the beginning of every block
func (app *AnchorApplication) BeginBlock(req types2.RequestBeginBlock) types2.ResponseBeginBlock {
	return types2.ResponseBeginBlock{}
}

// EndBlock : Handler that runs at the end of every block, drives the
// anchoring schedule against the freshly updated ledger state
func (app *AnchorApplication) EndBlock(req types2.RequestEndBlock) types2.ResponseEndBlock {
	if app.config.DoAnchor {
		app.StartAnchoring()
	}
	if app.chainSynced() {
		go app.MonitorConfirmedTx()
	}
	return types2.ResponseEndBlock{}
}

// Commit : folds the anchoring schema hash into the app hash and persists state
func (app *AnchorApplication) Commit() types2.ResponseCommit {
	schemaHash, err := app.Schema.StateHash()
	if app.LogError(err) != nil {
		schemaHash = []byte{}
	}
	app.stateMtx.Lock()
	defer app.stateMtx.Unlock()
	heightBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(heightBytes, uint64(app.state.Height))
	hasher := sha256.New()
	hasher.Write(heightBytes)
	hasher.Write(schemaHash)
	app.state.AppHash = hasher.Sum(nil)
	app.state.Height++
	saveState(app.Db, *app.state)

	return types2.ResponseCommit{Data: app.state.AppHash}
}

// Query : Custom ABCI query method, unused by the anchoring service
func (app *AnchorApplication) Query(reqQuery types2.RequestQuery) (resQuery types2.ResponseQuery) {
	return
}

// SyncMonitor : turns on relaying once the consensus engine reports it has
// caught up, so a replaying node doesn't rebroadcast historical anchors
func (app *AnchorApplication) SyncMonitor() {
	for !app.chainSynced() {
		status, err := app.rpc.GetStatus()
		if err == nil && !status.SyncInfo.CatchingUp {
			app.setChainSynced(true)
			app.logger.Info("Chain sync complete, relaying enabled")
			break
		}
		time.Sleep(30 * time.Second)
	}
}

// LogError : log abci errors
func (app *AnchorApplication) LogError(err error) error {
	if err != nil {
		app.logger.Error(fmt.Sprintf("Error in %s: %s", util.GetCurrentFuncName(2), err.Error()))
	}
	return err
}
