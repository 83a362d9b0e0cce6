package relay

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/SINHASantos/exonum-btc-anchoring/btc"
)

// BtcRelay is the bitcoin network surface the anchoring service needs:
// broadcast a finalized transaction, query confirmation depth, fetch a raw
// transaction and register an address for tracking. Calls may fail
// transiently; callers retry on a later block cycle instead of blocking,
// and never assume synchronous confirmation.
type BtcRelay interface {
	// BroadcastTx relays a fully signed anchoring transaction. Broadcasting
	// a transaction that is already known or confirmed is a benign no-op.
	BroadcastTx(tx *btc.AnchoringTx) (string, error)
	// TxConfirmations returns the confirmation depth of a transaction,
	// zero while it is still unconfirmed.
	TxConfirmations(txid string) (int64, error)
	// GetRawTx fetches a transaction by id.
	GetRawTx(txid string) (*wire.MsgTx, error)
	// WatchAddress registers an anchoring address with the relay's wallet
	// so balance queries cover it.
	WatchAddress(address string) error
}
