package util

import (
	"crypto/ecdsa"
	random "crypto/rand"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/SINHASantos/exonum-btc-anchoring/types"
)

// LogError : Log error if it exists
func LogError(err error) error {
	if err != nil {
		fmt.Println(err)
	}
	return err
}

// LoggerError : Log error if it exists using a logger
func LoggerError(logger log.Logger, err error) error {
	if err != nil {
		logger.Error(fmt.Sprintf("Error in %s: %s", GetCurrentFuncName(2), err.Error()))
	}
	return err
}

// Int64ToByte : Convert an int64 to a byte for use in the Tendermint tagging system
func Int64ToByte(num int64) []byte {
	return []byte(strconv.FormatInt(num, 10))
}

// GetEnv : Get an env var but with a default. Untyped, defaults to string.
func GetEnv(key string, def string) string {
	value := os.Getenv(key)
	if len(value) == 0 {
		return def
	}
	return value
}

// GetIPOnly : strips scheme and port from a listen address
func GetIPOnly(ip string) string {
	listenAddr := ip
	if strings.Contains(listenAddr, "//") {
		listenAddr = listenAddr[strings.LastIndex(listenAddr, "/")+1:]
	}
	if strings.Contains(listenAddr, ":") {
		listenAddr = listenAddr[:strings.LastIndex(listenAddr, ":")]
	}
	return listenAddr
}

// DecodeTx accepts a service transaction in base64 and decodes it into a Tx struct
func DecodeTx(incoming []byte) (types.Tx, error) {
	decoded, err := base64.StdEncoding.DecodeString(string(incoming))
	var tx types.Tx
	if err != nil {
		return types.Tx{}, err
	}
	err = json.Unmarshal(decoded, &tx)
	return tx, err
}

// DecodeTxAndVerifySig decodes a service transaction and verifies the
// submitter's envelope signature against the known validator keys
func DecodeTxAndVerifySig(incoming []byte, coreKeys map[string]ecdsa.PublicKey) (types.Tx, error) {
	tx, err := DecodeTx(incoming)
	if err != nil {
		return types.Tx{}, err
	}
	pubKey, keyExists := coreKeys[tx.CoreID]
	if !keyExists {
		return types.Tx{}, errors.New(fmt.Sprintf("Can't find corresponding key for message from core: %s", tx.CoreID))
	}
	oldSig := tx.Sig
	der, err := base64.StdEncoding.DecodeString(tx.Sig)
	if LogError(err) != nil {
		return types.Tx{}, err
	}
	sig := &types.EcdsaSignature{}
	_, err = asn1.Unmarshal(der, sig)
	if LogError(err) != nil {
		return types.Tx{}, err
	}
	tx.Sig = ""
	txNoSig, err := json.Marshal(tx)
	if LogError(err) != nil {
		return types.Tx{}, err
	}
	hash := sha256.Sum256(txNoSig)
	if !ecdsa.Verify(&pubKey, hash[:], sig.R, sig.S) {
		err := LogError(errors.New(fmt.Sprintf("Can't validate signature of Tx from core %s", tx.CoreID)))
		return types.Tx{}, err
	}
	tx.Sig = oldSig
	return tx, nil
}

// EncodeTx : encode a tx to base64
func EncodeTx(outgoing types.Tx) string {
	txJSON, _ := json.Marshal(outgoing)
	return base64.StdEncoding.EncodeToString(txJSON)
}

// EncodeTxWithKey : encodes a service transaction to base64 with an envelope signature
func EncodeTxWithKey(outgoing types.Tx, privateKey *ecdsa.PrivateKey) string {
	txNoSig, err := json.Marshal(outgoing)
	if LogError(err) != nil {
		return ""
	}
	hash := sha256.Sum256(txNoSig)
	sig, err := privateKey.Sign(random.Reader, hash[:], nil)
	if LogError(err) != nil {
		return ""
	}
	outgoing.Sig = base64.StdEncoding.EncodeToString(sig)
	txJSON, _ := json.Marshal(outgoing)
	return base64.StdEncoding.EncodeToString(txJSON)
}

// GetCurrentFuncName : get name of function being called
func GetCurrentFuncName(numCallStack int) string {
	pc, _, _, _ := runtime.Caller(numCallStack)
	return fmt.Sprintf("%s", runtime.FuncForPC(pc).Name())
}

// ArrayContains : whether an array contains a particular string
func ArrayContains(arr []string, item string) bool {
	for _, v := range arr {
		if v == item {
			return true
		}
	}
	return false
}
