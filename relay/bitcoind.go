package relay

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/SINHASantos/exonum-btc-anchoring/btc"
	"github.com/SINHASantos/exonum-btc-anchoring/util"
)

// BitcoindRelay talks to a bitcoind node over JSON-RPC. The node needs
// txindex enabled for confirmation queries on arbitrary transactions.
type BitcoindRelay struct {
	client *rpcclient.Client
	logger log.Logger
}

// NewBitcoindRelay : connects to bitcoind over HTTP POST JSON-RPC
func NewBitcoindRelay(host string, user string, pass string, logger log.Logger) (*BitcoindRelay, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         host,
		User:         user,
		Pass:         pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, err
	}
	return &BitcoindRelay{client: client, logger: logger}, nil
}

func (r *BitcoindRelay) LogError(err error) error {
	if err != nil {
		r.logger.Error(fmt.Sprintf("Error in %s: %s", util.GetCurrentFuncName(2), err.Error()))
	}
	return err
}

// BroadcastTx : relays a finalized anchoring transaction. A transaction the
// network already knows is reported as success, so duplicate broadcasts
// from several validators are harmless.
func (r *BitcoindRelay) BroadcastTx(tx *btc.AnchoringTx) (string, error) {
	hash, err := r.client.SendRawTransaction(tx.MsgTx, false)
	if err != nil {
		var rpcErr *btcjson.RPCError
		if errors.As(err, &rpcErr) {
			// -27, raised for a tx the chain already contains
			if rpcErr.Code == btcjson.ErrRPCTxAlreadyInChain {
				return tx.TxID(), nil
			}
		}
		return "", r.LogError(err)
	}
	return hash.String(), nil
}

// TxConfirmations : confirmation depth of a transaction, zero if unconfirmed
func (r *BitcoindRelay) TxConfirmations(txid string) (int64, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return 0, err
	}
	result, err := r.client.GetRawTransactionVerbose(hash)
	if err != nil {
		return 0, r.LogError(err)
	}
	return int64(result.Confirmations), nil
}

// GetRawTx : fetches a transaction by id
func (r *BitcoindRelay) GetRawTx(txid string) (*wire.MsgTx, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, err
	}
	tx, err := r.client.GetRawTransaction(hash)
	if err != nil {
		return nil, r.LogError(err)
	}
	return tx.MsgTx(), nil
}

// WatchAddress : imports an anchoring address into the bitcoind wallet
// without rescan so its balance can be queried
func (r *BitcoindRelay) WatchAddress(address string) error {
	return r.LogError(r.client.ImportAddressRescan(address, "anchoring", false))
}
