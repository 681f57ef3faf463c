package contract

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// referencePack encodes v as a single constructor argument of type typ with
// go-ethereum's ABI encoder.
func referencePack(t *testing.T, typ string, v any) []byte {
	t.Helper()
	ty, err := abi.NewType(typ, "", nil)
	require.NoError(t, err)
	out, err := abi.Arguments{{Type: ty}}.Pack(v)
	require.NoError(t, err)
	return out
}

func mustLookup(t *testing.T, id string) Template {
	t.Helper()
	tpl, err := Lookup(id)
	require.NoError(t, err)
	return tpl
}

// ---------------------------------------------------------------------------
// String arguments
// ---------------------------------------------------------------------------

func TestEncodeStringHi(t *testing.T) {
	got, err := EncodeConstructorParams(mustLookup(t, "string"), "hi")
	require.NoError(t, err)

	want := strings.Repeat("0", 62) + "20" +
		strings.Repeat("0", 62) + "02" +
		"6869" + strings.Repeat("0", 60)
	assert.Equal(t, want, hex.EncodeToString(got))
}

func TestEncodeStringMatchesReference(t *testing.T) {
	tpl := mustLookup(t, "greeter")
	for _, n := range []int{0, 1, 31, 32, 33, 65} {
		s := strings.Repeat("a", n)
		got, err := EncodeConstructorParams(tpl, s)
		require.NoError(t, err)
		assert.Equal(t, referencePack(t, "string", s), got, "length %d", n)
		assert.Zero(t, len(got)%32)
	}
}

func TestEncodeStringUTF8(t *testing.T) {
	s := "gm ☀️ base"
	got, err := EncodeConstructorParams(mustLookup(t, "messageboard"), s)
	require.NoError(t, err)
	assert.Equal(t, referencePack(t, "string", s), got)
}

func TestEncodeStringTooLarge(t *testing.T) {
	_, err := EncodeConstructorParams(mustLookup(t, "string"), strings.Repeat("x", 257))
	assert.ErrorIs(t, err, ErrInputTooLarge)

	_, err = EncodeConstructorParams(mustLookup(t, "string"), strings.Repeat("x", 256))
	assert.NoError(t, err)
}

// ---------------------------------------------------------------------------
// Number arguments
// ---------------------------------------------------------------------------

func TestEncodeNumberMatchesReference(t *testing.T) {
	near := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	maxU := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	tpl := mustLookup(t, "numberstore")
	for _, n := range []*big.Int{big.NewInt(0), big.NewInt(1), big.NewInt(42), near, maxU} {
		got, err := EncodeConstructorParams(tpl, n.String())
		require.NoError(t, err)
		assert.Equal(t, referencePack(t, "uint256", n), got, "value %s", n)
	}
}

func TestEncodeNumberRejectsBadInput(t *testing.T) {
	tpl := mustLookup(t, "numberstore")
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256).String()

	for _, in := range []string{"", "  ", "-1", "abc", "1.5", "0x10", "1e3", tooBig} {
		_, err := EncodeConstructorParams(tpl, in)
		var invalid *InvalidNumberError
		assert.True(t, errors.As(err, &invalid), "input %q should fail, got %v", in, err)
	}
}

func TestParseUint256TrimsWhitespace(t *testing.T) {
	n, err := ParseUint256(" 7 ")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n.Int64())
}

// ---------------------------------------------------------------------------
// Payload assembly
// ---------------------------------------------------------------------------

func TestNoInputTemplateEncodesNothing(t *testing.T) {
	for _, id := range []string{"counter", "calculator"} {
		got, err := EncodeConstructorParams(mustLookup(t, id), "ignored")
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

func TestDeploymentBytecodeAppendsParams(t *testing.T) {
	tpl := mustLookup(t, "string")
	payload, err := DeploymentBytecode(tpl, "hi")
	require.NoError(t, err)

	require.Len(t, payload, len(tpl.Bytecode)+96)
	assert.Equal(t, tpl.Bytecode, payload[:len(tpl.Bytecode)])
	assert.Equal(t, referencePack(t, "string", "hi"), payload[len(tpl.Bytecode):])
}

func TestDeploymentBytecodeDoesNotAliasTemplate(t *testing.T) {
	tpl := mustLookup(t, "string")
	before := append([]byte(nil), tpl.Bytecode...)
	_, err := DeploymentBytecode(tpl, "hello")
	require.NoError(t, err)
	assert.Equal(t, before, mustLookup(t, "string").Bytecode)
}

func TestSelector(t *testing.T) {
	assert.Equal(t, "771602f7", hex.EncodeToString(Selector("add(uint256,uint256)")))
	assert.Equal(t, "a9059cbb", hex.EncodeToString(Selector("transfer(address,uint256)")))
}

func TestCalculatorCalldata(t *testing.T) {
	got := CalculatorCalldata(big.NewInt(2), big.NewInt(3))
	require.True(t, strings.HasPrefix(got, "0x771602f7"))
	assert.Len(t, got, 2+8+128)
	assert.True(t, strings.HasSuffix(got, strings.Repeat("0", 63)+"3"))
}
