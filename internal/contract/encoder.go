package contract

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"golang.org/x/crypto/sha3"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// EncodeConstructorParams ABI-encodes raw as the template's single
// constructor argument. Templates without input return an empty slice.
func EncodeConstructorParams(t Template, raw string) ([]byte, error) {
	switch t.Input.(type) {
	case StringInput:
		if len(raw) > config.MaxStringInputBytes {
			return nil, fmt.Errorf("%w: %d bytes, max %d", ErrInputTooLarge, len(raw), config.MaxStringInputBytes)
		}
		return encodeString(raw), nil
	case NumberInput:
		n, err := ParseUint256(raw)
		if err != nil {
			return nil, err
		}
		return word(n), nil
	default:
		return []byte{}, nil
	}
}

// DeploymentBytecode returns creation bytecode followed by the encoded
// constructor argument.
func DeploymentBytecode(t Template, raw string) ([]byte, error) {
	params, err := EncodeConstructorParams(t, raw)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(t.Bytecode)+len(params))
	out = append(out, t.Bytecode...)
	return append(out, params...), nil
}

// ParseUint256 parses a strict non-negative decimal integer.
func ParseUint256(raw string) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, &InvalidNumberError{Value: raw, Reason: "empty"}
	}
	if strings.HasPrefix(s, "-") {
		return nil, &InvalidNumberError{Value: raw, Reason: "negative"}
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, &InvalidNumberError{Value: raw, Reason: "not a decimal integer"}
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, &InvalidNumberError{Value: raw, Reason: "not a decimal integer"}
	}
	if n.Cmp(maxUint256) > 0 {
		return nil, &InvalidNumberError{Value: raw, Reason: "exceeds uint256"}
	}
	return n, nil
}

// encodeString lays out a lone dynamic string: offset word (0x20), length
// word, then the bytes right-padded to a 32-byte boundary.
func encodeString(s string) []byte {
	data := []byte(s)
	padded := (len(data) + 31) / 32 * 32
	out := make([]byte, 64+padded)
	out[31] = 0x20
	binary.BigEndian.PutUint64(out[56:64], uint64(len(data)))
	copy(out[64:], data)
	return out
}

func word(n *big.Int) []byte {
	out := make([]byte, 32)
	n.FillBytes(out)
	return out
}

// Selector returns the 4-byte function selector for a canonical signature
// such as "add(uint256,uint256)".
func Selector(sig string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(sig))
	return h.Sum(nil)[:4]
}

// CalculatorCalldata builds add(a,b) calldata for the calculator template.
func CalculatorCalldata(a, b *big.Int) string {
	data := append(Selector("add(uint256,uint256)"), word(a)...)
	data = append(data, word(b)...)
	return "0x" + hex.EncodeToString(data)
}
