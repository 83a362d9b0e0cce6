package btc

import (
	"encoding/json"
	"errors"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network selects the bitcoin chain used for address encoding.
type Network string

const (
	// Bitcoin is the production bitcoin network.
	Bitcoin Network = "bitcoin"
	// Testnet is bitcoin testnet3.
	Testnet Network = "testnet"
)

// ErrInvalidNetworkLiteral : returned when a persisted network string is neither "bitcoin" nor "testnet"
var ErrInvalidNetworkLiteral = errors.New("network must be either \"bitcoin\" or \"testnet\"")

// ParseNetwork : converts a persisted network literal into a Network
func ParseNetwork(s string) (Network, error) {
	switch s {
	case "bitcoin":
		return Bitcoin, nil
	case "testnet":
		return Testnet, nil
	}
	return "", ErrInvalidNetworkLiteral
}

// Params : returns the chaincfg parameters for address encoding on this network
func (n Network) Params() *chaincfg.Params {
	if n == Bitcoin {
		return &chaincfg.MainNetParams
	}
	return &chaincfg.TestNet3Params
}

func (n Network) MarshalJSON() ([]byte, error) {
	if _, err := ParseNetwork(string(n)); err != nil {
		return nil, err
	}
	return json.Marshal(string(n))
}

func (n *Network) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseNetwork(s)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
