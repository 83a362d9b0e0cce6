package tmrpc

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/libs/log"
	rpchttp "github.com/tendermint/tendermint/rpc/client/http"
	core_types "github.com/tendermint/tendermint/rpc/core/types"

	"github.com/SINHASantos/exonum-btc-anchoring/types"
	"github.com/SINHASantos/exonum-btc-anchoring/util"
)

// RPC : hold abstract http client for mocking purposes
type RPC struct {
	client *rpchttp.HTTP
	logger log.Logger
}

// NewRPCClient : creates a new client connected to a tendermint instance
func NewRPCClient(config types.TendermintConfig, logger log.Logger) *RPC {
	c, _ := rpchttp.NewWithTimeout(fmt.Sprintf("http://%s:%s", config.TMServer, config.TMPort), "/websocket", 2)
	return &RPC{
		client: c,
		logger: logger,
	}
}

// LogError : log rpc errors
func (rpc *RPC) LogError(err error) error {
	if err != nil {
		rpc.logger.Error(fmt.Sprintf("Error in %s: %s", util.GetCurrentFuncName(2), err.Error()))
	}
	return err
}

// BroadcastTx : asynchronously broadcasts a service transaction to the local tendermint node
func (rpc *RPC) BroadcastTx(txType string, data string, version int64, time int64, coreID string, privateKey *ecdsa.PrivateKey) (core_types.ResultBroadcastTx, error) {
	tx := types.Tx{TxType: txType, Data: data, Version: version, Time: time, CoreID: coreID}
	result, err := rpc.client.BroadcastTxSync([]byte(util.EncodeTxWithKey(tx, privateKey)))
	if rpc.LogError(err) != nil {
		return core_types.ResultBroadcastTx{}, err
	}
	return *result, nil
}

// GetStatus : retrieves status of our node
func (rpc *RPC) GetStatus() (core_types.ResultStatus, error) {
	if rpc == nil {
		return core_types.ResultStatus{}, errors.New("rpc failure")
	}
	status, err := rpc.client.Status()
	if rpc.LogError(err) != nil {
		return core_types.ResultStatus{}, err
	}
	return *status, err
}

// GetGenesis : retrieves the genesis file of a peer
func (rpc *RPC) GetGenesis() (core_types.ResultGenesis, error) {
	genesis, err := rpc.client.Genesis()
	if rpc.LogError(err) != nil {
		return core_types.ResultGenesis{}, err
	}
	return *genesis, err
}

// GetTxByHash : retrieves a service tx by its hash
func (rpc *RPC) GetTxByHash(txid string) (core_types.ResultTx, error) {
	hash, err := hex.DecodeString(txid)
	if rpc.LogError(err) != nil {
		return core_types.ResultTx{}, err
	}
	txResult, err := rpc.client.Tx(hash, false)
	if rpc.LogError(err) != nil {
		return core_types.ResultTx{}, err
	}
	return *txResult, err
}
