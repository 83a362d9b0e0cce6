package util

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	random "crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SINHASantos/exonum-btc-anchoring/types"
)

func TestInt64ToByte(t *testing.T) {
	assert.Equal(t, []byte("9223372036854775806"), Int64ToByte(9223372036854775806), "tag bytes are the decimal form")
}

func TestGetIPOnly(t *testing.T) {
	assert.Equal(t, "10.0.0.1", GetIPOnly("http://10.0.0.1:26656"), "scheme and port should strip")
	assert.Equal(t, "10.0.0.1", GetIPOnly("10.0.0.1:26656"), "port should strip")
}

func TestEncodeDecodeTx(t *testing.T) {
	tx := types.Tx{TxType: "SIG", Data: "payload", Version: 2, Time: time.Now().Unix(), CoreID: "node0"}
	decoded, err := DecodeTx([]byte(EncodeTx(tx)))
	assert.NoError(t, err, "encoded tx should decode")
	assert.Equal(t, tx.TxType, decoded.TxType, "tx type should survive")
	assert.Equal(t, tx.Data, decoded.Data, "tx data should survive")

	if _, err := DecodeTx([]byte("not-base64!!")); err == nil {
		t.Error("garbage input should fail to decode")
	}
}

func TestEncodeTxWithKeyVerifies(t *testing.T) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), random.Reader)
	assert.NoError(t, err, "key generation should succeed")

	tx := types.Tx{TxType: "CFG", Data: "payload", Version: 2, Time: time.Now().Unix(), CoreID: "node0"}
	encoded := EncodeTxWithKey(tx, privateKey)
	assert.NotEmpty(t, encoded, "signed encoding should succeed")

	coreKeys := map[string]ecdsa.PublicKey{"node0": privateKey.PublicKey}
	verified, err := DecodeTxAndVerifySig([]byte(encoded), coreKeys)
	assert.NoError(t, err, "a signed envelope should verify against the submitter's key")
	assert.Equal(t, tx.Data, verified.Data, "tx data should survive")

	// an unknown submitter is refused
	if _, err := DecodeTxAndVerifySig([]byte(encoded), map[string]ecdsa.PublicKey{}); err == nil {
		t.Error("an envelope from an unknown core should be refused")
	}
}

func TestArrayContains(t *testing.T) {
	arr := []string{"a", "b"}
	assert.True(t, ArrayContains(arr, "a"), "present item should be found")
	assert.False(t, ArrayContains(arr, "c"), "absent item should not be found")
}
