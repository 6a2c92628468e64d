package derivation

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveDeterministic(t *testing.T) {
	accountID := make([]byte, accountIDLen)
	for i := range accountID {
		accountID[i] = byte(i + 1)
	}
	bech, err := bech32Encode(AccountIDHRP, accountID)
	require.NoError(t, err)

	secret := "0x" + hex.EncodeToString(make([]byte, SecretLen))

	h1, err := Derive(nil, bech, secret)
	require.NoError(t, err)
	h2, err := Derive(nil, bech, secret)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "derivation must be deterministic")
}

func TestDeriveBech32AndHexAgree(t *testing.T) {
	accountID := make([]byte, accountIDLen)
	for i := range accountID {
		accountID[i] = byte(2 * i)
	}
	bech, err := bech32Encode(AccountIDHRP, accountID)
	require.NoError(t, err)
	hexID := hex.EncodeToString(accountID)

	secret := hex.EncodeToString(make([]byte, SecretLen))

	hBech, err := Derive(nil, bech, secret)
	require.NoError(t, err)
	hHex, err := Derive(nil, "0x"+hexID, secret)
	require.NoError(t, err)

	assert.Equal(t, hBech, hHex)
}

func TestDecodeAccountIDRejectsWrongLength(t *testing.T) {
	_, err := DecodeAccountID("0x" + hex.EncodeToString(make([]byte, 10)))
	require.Error(t, err)
}

func TestDecodeSecretRejectsWrongLength(t *testing.T) {
	_, err := DecodeSecret("0xabcd")
	require.Error(t, err)
}

func TestDecodeAccountIDRejectsGarbage(t *testing.T) {
	_, err := DecodeAccountID("not-an-account-id!!")
	require.Error(t, err)
}
