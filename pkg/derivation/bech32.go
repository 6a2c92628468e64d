package derivation

import (
	"fmt"
	"strings"
)

// Minimal BIP-173 bech32 codec. No third-party implementation of bech32
// surfaced anywhere in the retrieval pack (see DESIGN.md); this is the
// standard reference algorithm, not an ad-hoc replacement for a library
// concern like logging or config.

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var bech32CharsetRev = func() [128]int8 {
	var rev [128]int8
	for i := range rev {
		rev[i] = -1
	}
	for i, c := range bech32Charset {
		rev[c] = int8(i)
	}
	return rev
}()

func bech32Polymod(values []byte) uint32 {
	gen := [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func bech32HRPExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for _, c := range hrp {
		out = append(out, byte(c)>>5)
	}
	out = append(out, 0)
	for _, c := range hrp {
		out = append(out, byte(c)&31)
	}
	return out
}

func bech32VerifyChecksum(hrp string, data []byte) bool {
	values := append(bech32HRPExpand(hrp), data...)
	return bech32Polymod(values) == 1
}

// bech32Decode verifies s's checksum against its own hrp and returns the
// raw (non-bech32-grouped) byte payload, converting the 5-bit groups back
// to 8-bit bytes. The hrp itself is not returned.
func bech32Decode(s string) ([]byte, error) {
	if len(s) < 8 || len(s) > 90 {
		return nil, fmt.Errorf("invalid bech32 string length")
	}
	lower := strings.ToLower(s)
	upper := strings.ToUpper(s)
	if s != lower && s != upper {
		return nil, fmt.Errorf("mixed-case bech32 string")
	}
	s = lower

	pos := strings.LastIndex(s, "1")
	if pos < 1 || pos+7 > len(s) {
		return nil, fmt.Errorf("invalid bech32 separator position")
	}

	hrp := s[:pos]
	dataPart := s[pos+1:]

	data := make([]byte, len(dataPart))
	for i, c := range dataPart {
		if c > 127 || bech32CharsetRev[c] == -1 {
			return nil, fmt.Errorf("invalid bech32 character %q", c)
		}
		data[i] = byte(bech32CharsetRev[c])
	}

	if !bech32VerifyChecksum(hrp, data) {
		return nil, fmt.Errorf("invalid bech32 checksum")
	}

	return convertBits(data[:len(data)-6], 5, 8, false)
}

// bech32Encode encodes hrp and an 8-bit payload into a bech32 string.
func bech32Encode(hrp string, payload []byte) (string, error) {
	data, err := convertBits(payload, 8, 5, true)
	if err != nil {
		return "", err
	}

	values := append(bech32HRPExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	mod := bech32Polymod(values) ^ 1

	checksum := make([]byte, 6)
	for i := range checksum {
		checksum[i] = byte((mod >> uint(5*(5-i))) & 31)
	}

	combined := append(data, checksum...)
	var sb strings.Builder
	sb.WriteString(hrp)
	sb.WriteString("1")
	for _, b := range combined {
		sb.WriteByte(bech32Charset[b])
	}
	return sb.String(), nil
}

// convertBits regroups a slice of fromBits-wide values into toBits-wide
// values, padding the final group with zero bits when pad is true.
func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	var acc uint32
	var bits uint
	maxv := uint32(1<<toBits) - 1
	out := make([]byte, 0, len(data)*int(fromBits)/int(toBits)+1)

	for _, value := range data {
		if uint32(value)>>fromBits != 0 {
			return nil, fmt.Errorf("invalid data value for base conversion")
		}
		acc = (acc << fromBits) | uint32(value)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			out = append(out, byte((acc>>bits)&maxv))
		}
	}

	if pad {
		if bits > 0 {
			out = append(out, byte((acc<<(toBits-bits))&maxv))
		}
	} else if bits >= fromBits || ((acc<<(toBits-bits))&maxv) != 0 {
		return nil, fmt.Errorf("invalid padding in base conversion")
	}

	return out, nil
}
