package abci

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jacohend/flag"
	"github.com/spf13/viper"
	cfg "github.com/tendermint/tendermint/config"
	tmflags "github.com/tendermint/tendermint/libs/cli/flags"
	"github.com/tendermint/tendermint/libs/log"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/privval"
	types2 "github.com/tendermint/tendermint/types"
	tmtime "github.com/tendermint/tendermint/types/time"

	"github.com/SINHASantos/exonum-btc-anchoring/anchoring"
	"github.com/SINHASantos/exonum-btc-anchoring/btc"
	"github.com/SINHASantos/exonum-btc-anchoring/tmrpc"
	"github.com/SINHASantos/exonum-btc-anchoring/types"
	"github.com/SINHASantos/exonum-btc-anchoring/util"
)

// InitConfig : receives flags and ENV variables and initializes the app config struct
func InitConfig(home string) types.AnchorConfig {
	var bitcoinNetwork, fundingTxHex, validatorKeysStr, btcPrivateKeyWIF string
	var btcRPCHost, btcRPCUser, btcRPCPass string
	var tmServer, tmPort, apiPort, logLevel, dbType string
	var listenAddr, tendermintPeers, tendermintSeeds, tendermintLogFilter string
	var anchorFrequency, anchorFee, utxoConfirmations uint64
	var doAnchor bool
	flag.String(flag.DefaultConfigFlagname, "", "path to config file")
	flag.StringVar(&bitcoinNetwork, "network", "testnet", "bitcoin network")
	flag.BoolVar(&doAnchor, "anchor", true, "whether to participate in bitcoin anchoring")
	flag.Uint64Var(&anchorFrequency, "anchor_frequency", 500, "interval in blocks between anchored heights")
	flag.Uint64Var(&anchorFee, "anchor_fee", 1000, "fee in satoshis paid by each anchoring transaction")
	flag.Uint64Var(&utxoConfirmations, "utxo_confirmations", 5, "confirmations required before spending an anchoring output")
	flag.StringVar(&fundingTxHex, "funding_tx", "", "hex of the funding transaction paying the anchoring address")
	flag.StringVar(&validatorKeysStr, "validator_keys", "", "comma-delimited compressed public keys of the anchoring validators")
	flag.StringVar(&btcPrivateKeyWIF, "btc_private_key", "", "this validator's anchoring private key in WIF")
	flag.StringVar(&btcRPCHost, "btc_rpc_host", "", "bitcoind json-rpc host:port")
	flag.StringVar(&btcRPCUser, "btc_rpc_user", "", "bitcoind json-rpc username")
	flag.StringVar(&btcRPCPass, "btc_rpc_pass", "", "bitcoind json-rpc password")
	flag.StringVar(&dbType, "db", "goleveldb", "backend for the anchoring database")
	flag.StringVar(&tmServer, "tendermint_host", "127.0.0.1", "tendermint api url")
	flag.StringVar(&tmPort, "tendermint_port", "26657", "tendermint api port")
	flag.StringVar(&apiPort, "api_port", "80", "anchoring api port")
	flag.StringVar(&logLevel, "log_level", "info", "log level")
	flag.StringVar(&listenAddr, "anchoring_base_uri", "http://0.0.0.0:26656", "tendermint base uri")
	flag.StringVar(&tendermintPeers, "peers", "", "comma-delimited list of peers")
	flag.StringVar(&tendermintSeeds, "seeds", "", "comma-delimited list of seeds")
	flag.StringVar(&tendermintLogFilter, "log_filter", "main:debug,state:info,*:error", "log level for tendermint")
	flag.Parse()

	network, err := btc.ParseNetwork(bitcoinNetwork)
	if util.LogError(err) != nil {
		panic(err)
	}

	tmConfig, err := initTendermintConfig(home, bitcoinNetwork, listenAddr, tendermintSeeds, tendermintPeers, tendermintLogFilter)
	if util.LogError(err) != nil {
		panic(err)
	}
	tmConfig.TMServer = tmServer
	tmConfig.TMPort = tmPort

	allowLevel, _ := log.AllowLevel(strings.ToLower(logLevel))
	tmLogger := log.NewFilter(log.NewTMLogger(log.NewSyncWriter(os.Stdout)), allowLevel)

	anchorConfig := anchoring.DefaultConfig()
	anchorConfig.Network = network
	anchorConfig.Frequency = anchorFrequency
	anchorConfig.Fee = anchorFee
	anchorConfig.UtxoConfirmations = utxoConfirmations

	config := types.AnchorConfig{
		HomePath:         home,
		APIPort:          apiPort,
		DBType:           dbType,
		BitcoinNetwork:   bitcoinNetwork,
		AnchoringConfig:  anchorConfig,
		BtcRPCHost:       btcRPCHost,
		BtcRPCUser:       btcRPCUser,
		BtcRPCPass:       btcRPCPass,
		TendermintConfig: tmConfig,
		Logger:           &tmLogger,
		DoAnchor:         doAnchor,
	}

	if btcPrivateKeyWIF != "" {
		wif, err := btcutil.DecodeWIF(btcPrivateKeyWIF)
		if util.LogError(err) != nil {
			panic(err)
		}
		config.PrivateKey = wif.PrivKey
		config.ECPrivateKey = wif.PrivKey.ToECDSA()
	}

	validators, err := parseValidatorKeys(validatorKeysStr)
	if util.LogError(err) != nil {
		panic(err)
	}
	if len(validators) == 0 && config.PrivateKey != nil {
		// bootstrap: a single-validator configuration from our own key
		validators = []btc.PublicKey{btc.NewPublicKey(config.PrivateKey.PubKey())}
	}
	config.AnchoringConfig.Validators = validators

	if fundingTxHex != "" {
		funding, err := btc.ParseFundingTx(fundingTxHex)
		if util.LogError(err) != nil {
			panic(err)
		}
		config.AnchoringConfig.FundingTransaction = funding
	}

	return config
}

// parseValidatorKeys : decodes a comma-delimited list of compressed public keys
func parseValidatorKeys(list string) ([]btc.PublicKey, error) {
	if list == "" {
		return nil, nil
	}
	keys := []btc.PublicKey{}
	seen := []string{}
	for _, item := range strings.Split(list, ",") {
		key, err := btc.ParsePublicKey(strings.TrimSpace(item))
		if err != nil {
			return nil, fmt.Errorf("validator key %q: %w", item, err)
		}
		if util.ArrayContains(seen, key.Hex()) {
			return nil, fmt.Errorf("validator key %q listed twice", item)
		}
		seen = append(seen, key.Hex())
		keys = append(keys, key)
	}
	return keys, nil
}

// initTendermintConfig : imports tendermint config.toml and initializes config variables
func initTendermintConfig(home string, network string, listenAddr string, tendermintSeeds string, tendermintPeers string, tendermintLogFilter string) (types.TendermintConfig, error) {
	var TMConfig types.TendermintConfig
	initEnv("TM")
	homeFlag := os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultTendermintDir))
	homeDir := home
	viper.Set(homeFlag, homeDir)
	viper.SetConfigName("config")            // name of config file (without extension)
	viper.AddConfigPath(homeDir + "/config") // search root directory /config

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		// stderr, so if we redirect output to json file, this doesn't appear
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
		// ignore not found error, return other errors
		return TMConfig, err
	}
	defaultConfig := cfg.DefaultConfig()
	err := viper.Unmarshal(defaultConfig)
	if err != nil {
		return TMConfig, err
	}
	defaultConfig.SetRoot(homeDir)
	defaultConfig.DBPath = homeDir + "/data"
	defaultConfig.DBBackend = "goleveldb"
	defaultConfig.Consensus.TimeoutCommit = time.Duration(10 * time.Second)
	defaultConfig.RPC.TimeoutBroadcastTxCommit = time.Duration(65 * time.Second) // wait for tx to commit + 5 sec latency margin
	defaultConfig.RPC.ListenAddress = "tcp://0.0.0.0:26657"
	defaultConfig.P2P.ListenAddress = "tcp://0.0.0.0:26656"

	ipOnly := util.GetIPOnly(listenAddr)
	defaultConfig.P2P.ExternalAddress = ipOnly + ":26656"
	defaultConfig.TxIndex.IndexAllKeys = true
	peers := []string{}
	if tendermintPeers != "" {
		peers = strings.Split(tendermintPeers, ",")
		defaultConfig.P2P.PersistentPeers = tendermintPeers
	}
	if tendermintSeeds != "" {
		peers = strings.Split(tendermintSeeds, ",")
		defaultConfig.P2P.Seeds = tendermintSeeds
	}
	cfg.EnsureRoot(defaultConfig.RootDir)

	//initialize logger
	tmlogger := log.NewTMLogger(log.NewSyncWriter(os.Stdout))
	if defaultConfig.LogFormat == cfg.LogFormatJSON {
		tmlogger = log.NewTMJSONLogger(log.NewSyncWriter(os.Stdout))
	}
	logger, err := tmflags.ParseLogLevel(tendermintLogFilter, tmlogger, cfg.DefaultLogLevel())
	if err != nil {
		panic(err)
	}
	logger = logger.With("module", "main")
	TMConfig.Logger = logger
	peerGenesisFound := false
	peersOrSeedsExist := len(peers) != 0
	// The following initializes an rpc client for a peer and pulls its genesis file
	if peersOrSeedsExist {
		peer := peers[0]                    // get first peer
		nodeUri := strings.Split(peer, "@") // separate to get IP
		if len(nodeUri) == 2 {
			peerUri := strings.Split(nodeUri[1], ":") // split port from IP
			if len(peerUri) == 2 {
				peerIP := peerUri[0]
				peerRPC := types.TendermintConfig{
					TMServer: peerIP,
					TMPort:   "26657",
				}
				rpc := tmrpc.NewRPCClient(peerRPC, logger)
				// Pull and save genesis file
				genesis, err := rpc.GetGenesis()
				if err == nil {
					genFile := defaultConfig.GenesisFile()
					genDoc := types2.GenesisDoc{
						ChainID:         genesis.Genesis.ChainID,
						GenesisTime:     genesis.Genesis.GenesisTime,
						ConsensusParams: genesis.Genesis.ConsensusParams,
					}
					genDoc.Validators = genesis.Genesis.Validators
					if err := genDoc.SaveAs(genFile); err != nil {
						panic(err)
					} else {
						peerGenesisFound = true
					}
					logger.Info("Saved genesis file from peer", "path", genFile)
				}
			}
		}
	}

	// initialize private validator key
	newPrivValKey := defaultConfig.PrivValidatorKeyFile()
	newPrivValState := defaultConfig.PrivValidatorStateFile()
	if !tmos.FileExists(newPrivValState) {
		filePV := privval.GenFilePV(newPrivValKey, newPrivValState)
		filePV.LastSignState.Save()
	}
	TMConfig.FilePV = *privval.LoadOrGenFilePV(newPrivValKey, newPrivValState)

	//initialize this node's keys
	nodeKey, err := p2p.LoadOrGenNodeKey(defaultConfig.NodeKeyFile())
	TMConfig.NodeKey = nodeKey

	// initialize genesis file
	genFile := defaultConfig.GenesisFile()
	if tmos.FileExists(genFile) || peerGenesisFound {
		logger.Info("Found genesis file", "path", genFile)
	} else if peersOrSeedsExist {
		panic(errors.New("Can't retrieve Genesis File from Seed- check firewall on both ends"))
	} else {
		genDoc := types2.GenesisDoc{
			ChainID:         fmt.Sprintf(network+"-anchoring-%d", time.Now().Second()),
			GenesisTime:     tmtime.Now(),
			ConsensusParams: types2.DefaultConsensusParams(),
		}
		key, _ := TMConfig.FilePV.GetPubKey()
		genDoc.Validators = []types2.GenesisValidator{{
			Address: key.Address(),
			PubKey:  key,
			Power:   10,
		}}
		if err := genDoc.SaveAs(genFile); err != nil {
			panic(err)
		}
		logger.Info("Generated genesis file", "path", genFile)
	}
	TMConfig.Config = defaultConfig

	return TMConfig, nil
}

// initEnv sets to use ENV variables if set.
func initEnv(prefix string) {
	copyEnvVars(prefix)

	// env variables with TM prefix (eg. TM_ROOT)
	viper.SetEnvPrefix(prefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// This copies all variables like TMROOT to TM_ROOT,
// so we can support both formats for the user
func copyEnvVars(prefix string) {
	prefix = strings.ToUpper(prefix)
	ps := prefix + "_"
	for _, e := range os.Environ() {
		kv := strings.SplitN(e, "=", 2)
		if len(kv) == 2 {
			k, v := kv[0], kv[1]
			if strings.HasPrefix(k, prefix) && !strings.HasPrefix(k, ps) {
				k2 := strings.Replace(k, prefix, ps, 1)
				os.Setenv(k2, v)
			}
		}
	}
}
