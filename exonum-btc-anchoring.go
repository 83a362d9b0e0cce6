package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/tendermint/tendermint/node"
	"github.com/tendermint/tendermint/proxy"

	tmos "github.com/tendermint/tendermint/libs/os"

	"github.com/SINHASantos/exonum-btc-anchoring/abci"
	"github.com/SINHASantos/exonum-btc-anchoring/util"
)

var home string

func main() {
	figure.NewColorFigure("BTC Anchoring", "colossal", "red", false).Print()
	homedirname, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	home = fmt.Sprintf("%s/.anchoring", homedirname)

	if _, err := os.Stat(home); os.IsNotExist(err) {
		os.MkdirAll(home, os.ModePerm)
	}

	//Instantiate ABCI application
	config := abci.InitConfig(home)
	logger := config.TendermintConfig.Logger

	app := abci.NewAnchorApplication(config)

	//declare connection to abci app
	appProxy := proxy.NewLocalClientCreator(app)

	/* Instantiate Tendermint Node with given config and abci app */
	n, err := node.NewNode(config.TendermintConfig.Config,
		&config.TendermintConfig.FilePV,
		config.TendermintConfig.NodeKey,
		appProxy,
		node.DefaultGenesisDocProviderFunc(config.TendermintConfig.Config),
		node.DefaultDBProvider,
		node.DefaultMetricsProvider(config.TendermintConfig.Config.Instrumentation),
		logger,
	)
	if err != nil {
		panic(err)
	}

	// Wait forever, shutdown gracefully upon
	tmos.TrapSignal(*config.Logger, func() {
		if n.IsRunning() {
			logger.Info("Shutting down anchoring service...")
			n.Stop()
		}
	})

	// Start Tendermint Node
	if err := n.Start(); err != nil {
		panic(err)
	}
	logger.Info("Started node", "nodeInfo", n.Switch().NodeInfo())

	time.Sleep(10 * time.Second) //prevent API from blocking tendermint init

	server := &http.Server{
		Handler:      app.Router(),
		Addr:         ":" + config.APIPort,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	util.LogError(server.ListenAndServe())
}
