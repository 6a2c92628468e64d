// Package derivation computes the recipient_hash commitment used to
// hash-lock a P2IDH mint note to a specific (account_id, secret) pair.
//
// The function is pure and side-effect free: it performs no I/O and holds
// no state beyond the injected HashFunc, so it can run identically on the
// HTTP facade (deposit-hash request) and inside the Miden client's consume
// step (withdrawal proving).
package derivation

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/chainsafe/zcash-miden-bridge/pkg/bridgeerr"
)

// AccountIDHRP is the bech32 human-readable part for Miden testnet
// account ids accepted by DecodeAccountID.
const AccountIDHRP = "mtst"

// accountIDLen is the canonical binary length of a Miden account id.
const accountIDLen = 15

// SecretLen is the required length of the deposit secret.
const SecretLen = 32

// hashDomain is a fixed domain-separation key for the default HashFunc.
// It is not a secret; it only prevents collisions with other BLAKE2b
// commitments the engine or rollup might compute.
var hashDomain = []byte("zcash-miden-bridge/recipient_hash/v1")

// HashFunc computes H over the concatenation encode(account_id) || secret.
// The default is keyed BLAKE2b-256 (see SPEC_FULL.md Open Question (c));
// callers may inject the rollup's native Rescue/Poseidon hash instead
// without touching any call site.
type HashFunc func(data []byte) [32]byte

// DefaultHashFunc is keyed BLAKE2b-256, domain-separated from any other
// commitment the engine computes.
func DefaultHashFunc(data []byte) [32]byte {
	h, err := blake2b.New256(hashDomain)
	if err != nil {
		// blake2b.New256 only errors on an oversized key; hashDomain is
		// fixed and well within bounds.
		panic(err)
	}
	_, _ = h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// RecipientHash computes H(accountID || secret) for an already-decoded
// 15-byte account id and 32-byte secret. It never fails: malformed input
// is rejected earlier, by DecodeAccountID/DecodeSecret.
func RecipientHash(hashFunc HashFunc, accountID []byte, secret [32]byte) [32]byte {
	if hashFunc == nil {
		hashFunc = DefaultHashFunc
	}
	buf := make([]byte, 0, len(accountID)+SecretLen)
	buf = append(buf, accountID...)
	buf = append(buf, secret[:]...)
	return hashFunc(buf)
}

// Derive parses accountIDStr (bech32 or hex) and secretStr (hex, optional
// 0x prefix) and returns their recipient_hash. hashFunc may be nil to use
// DefaultHashFunc.
func Derive(hashFunc HashFunc, accountIDStr, secretStr string) ([32]byte, error) {
	accountID, err := DecodeAccountID(accountIDStr)
	if err != nil {
		return [32]byte{}, err
	}
	secret, err := DecodeSecret(secretStr)
	if err != nil {
		return [32]byte{}, err
	}
	return RecipientHash(hashFunc, accountID, secret), nil
}

// DecodeAccountID decodes account_id input accepted in either bech32
// (hrp "mtst") or plain/0x-prefixed hex, returning the canonical 15-byte
// binary account id.
func DecodeAccountID(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, bridgeerr.New(bridgeerr.KindMalformedAccountID, "account_id is empty", nil)
	}

	if strings.Contains(s, "1") && !isHexLike(s) {
		raw, err := bech32Decode(s)
		if err != nil {
			return nil, bridgeerr.New(bridgeerr.KindMalformedAccountID, "invalid bech32 account_id", err)
		}
		if strings.ToLower(s[:strings.LastIndex(s, "1")]) != AccountIDHRP {
			return nil, bridgeerr.New(bridgeerr.KindMalformedAccountID, "unexpected bech32 account_id prefix", nil)
		}
		if len(raw) != accountIDLen {
			return nil, bridgeerr.New(bridgeerr.KindMalformedAccountID, "account_id has wrong length", nil)
		}
		return raw, nil
	}

	raw, err := decodeHex(s)
	if err != nil {
		return nil, bridgeerr.New(bridgeerr.KindMalformedAccountID, "invalid hex account_id", err)
	}
	if len(raw) != accountIDLen {
		return nil, bridgeerr.New(bridgeerr.KindMalformedAccountID, "account_id has wrong length", nil)
	}
	return raw, nil
}

// EncodeAccountID bech32-encodes a canonical 15-byte account id using
// AccountIDHRP, for responses that hand a freshly allocated account id
// back to a caller in human-readable form.
func EncodeAccountID(raw []byte) (string, error) {
	if len(raw) != accountIDLen {
		return "", bridgeerr.New(bridgeerr.KindMalformedAccountID, "account_id has wrong length", nil)
	}
	return bech32Encode(AccountIDHRP, raw)
}

// DecodeSecret decodes secret input accepted with or without a 0x prefix,
// requiring exactly 32 bytes once decoded.
func DecodeSecret(s string) ([32]byte, error) {
	raw, err := decodeHex(strings.TrimSpace(s))
	if err != nil {
		return [32]byte{}, bridgeerr.New(bridgeerr.KindMalformedSecret, "invalid hex secret", err)
	}
	if len(raw) != SecretLen {
		return [32]byte{}, bridgeerr.New(bridgeerr.KindMalformedSecret, "secret must be 32 bytes", nil)
	}
	var out [32]byte
	copy(out[:], raw)
	return out, nil
}

func isHexLike(s string) bool {
	t := strings.TrimPrefix(strings.ToLower(s), "0x")
	if t == "" {
		return false
	}
	for _, r := range t {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return len(t)%2 == 0
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	return hex.DecodeString(s)
}
