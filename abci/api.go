package abci

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/SINHASantos/exonum-btc-anchoring/types"
	"github.com/SINHASantos/exonum-btc-anchoring/util"
)

// respondJSON makes the response with payload as json format
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if util.LogError(err) != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(response))
}

func (app *AnchorApplication) HomeHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
	fmt.Fprintf(w, "This is the anchoring service API endpoint.")
}

// StatusHandler : reports the anchoring service's view of the world
func (app *AnchorApplication) StatusHandler(w http.ResponseWriter, r *http.Request) {
	app.stateMtx.Lock()
	status := types.StatusResponse{
		Network:              app.config.BitcoinNetwork,
		Height:               app.state.Height,
		LatestAnchoredHeight: app.state.LatestAnchoredHeight,
		LatestAnchorTx:       app.state.LatestAnchorTx,
	}
	app.stateMtx.Unlock()
	if length, err := app.Schema.ChainLength(); err == nil {
		status.ChainLength = length
	}
	if state, err := app.anchoringState(); err == nil {
		status.InTransition = state.InTransition()
		if _, addr, err := state.TargetConfig().RedeemScript(); err == nil {
			status.AnchoringAddress = addr.EncodeAddress()
		}
	}
	respondJSON(w, http.StatusOK, status)
}

// ConfigHandler : returns the actual committed anchoring configuration
func (app *AnchorApplication) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	state, err := app.anchoringState()
	if app.LogError(err) != nil {
		respondJSON(w, http.StatusNotFound, map[string]interface{}{"error": "No anchoring configuration committed"})
		return
	}
	respondJSON(w, http.StatusOK, state.Actual)
}

// ChainHandler : lists the finalized anchoring transaction chain
func (app *AnchorApplication) ChainHandler(w http.ResponseWriter, r *http.Request) {
	length, err := app.Schema.ChainLength()
	if app.LogError(err) != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "Could not read anchoring chain"})
		return
	}
	chain := []types.ChainResponse{}
	for i := uint64(0); i < length; i++ {
		tx, err := app.Schema.ChainTx(i)
		if app.LogError(err) != nil {
			respondJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "Could not read anchoring chain"})
			return
		}
		item := types.ChainResponse{Index: i, TxID: tx.TxID()}
		if payload, err := tx.Payload(); err == nil {
			item.AnchoredHeight = payload.BlockHeight
			item.StateHash = hex.EncodeToString(payload.StateHash[:])
		}
		chain = append(chain, item)
	}
	respondJSON(w, http.StatusOK, chain)
}

// ChainTxHandler : returns the raw hex of one finalized anchoring transaction
func (app *AnchorApplication) ChainTxHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := strconv.ParseUint(vars["index"], 10, 64)
	if app.LogError(err) != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Invalid chain index"})
		return
	}
	tx, err := app.Schema.ChainTx(index)
	if app.LogError(err) != nil {
		respondJSON(w, http.StatusNotFound, map[string]interface{}{"error": "No anchoring transaction at that index"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"txid": tx.TxID(), "raw": tx.Hex()})
}

// TxHandler : looks up a committed service transaction by consensus hash
func (app *AnchorApplication) TxHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	result, err := app.rpc.GetTxByHash(vars["hash"])
	if app.LogError(err) != nil {
		respondJSON(w, http.StatusNotFound, map[string]interface{}{"error": "No transaction with that hash"})
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Router : sets up the anchoring service's http api
func (app *AnchorApplication) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", app.HomeHandler)
	r.HandleFunc("/status", app.StatusHandler).Methods("GET")
	r.HandleFunc("/config", app.ConfigHandler).Methods("GET")
	r.HandleFunc("/chain", app.ChainHandler).Methods("GET")
	r.HandleFunc("/chain/{index}", app.ChainTxHandler).Methods("GET")
	r.HandleFunc("/tx/{hash}", app.TxHandler).Methods("GET")
	return r
}
