package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Mohsinsiddi/w3deploy/internal/chain"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// nodeMock answers the RPC methods the provider needs and records the last
// raw transaction it was asked to broadcast.
type nodeMock struct {
	*httptest.Server
	mu    sync.Mutex
	rawTx string
}

func newNodeMock(t *testing.T) *nodeMock {
	t.Helper()
	m := &nodeMock{}
	responses := map[string]any{
		"eth_getTransactionCount":  "0x7",
		"eth_gasPrice":             "0x3b9aca00",
		"eth_maxPriorityFeePerGas": "0x5f5e100",
		"eth_estimateGas":          "0x5208",
		"eth_sendRawTransaction":   "0x" + fmt.Sprintf("%064x", 1),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			ID     int               `json:"id"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Method == "eth_sendRawTransaction" {
			m.mu.Lock()
			json.Unmarshal(req.Params[0], &m.rawTx) //nolint:errcheck
			m.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		if result, ok := responses[req.Method]; ok {
			json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}) //nolint:errcheck
			return
		}
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"jsonrpc": "2.0", "id": req.ID,
			"error": map[string]any{"code": -32601, "message": "method not found"},
		})
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *nodeMock) sentTx(t *testing.T) *types.Transaction {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := hexutil.Decode(m.rawTx)
	require.NoError(t, err)
	var tx types.Transaction
	require.NoError(t, tx.UnmarshalBinary(raw))
	return &tx
}

func newTestProvider(t *testing.T, approve Approver, chains ...int64) (*LocalProvider, *nodeMock) {
	t.Helper()
	node := newNodeMock(t)
	known := map[int64]bool{8453: true}
	for _, id := range chains {
		known[id] = true
	}
	resolve := func(id int64) (*chain.EVMClient, error) {
		if !known[id] {
			return nil, fmt.Errorf("unknown chain %d", id)
		}
		return chain.NewEVMClient(node.URL), nil
	}
	p, err := NewLocalProvider(testSigner(t), 8453, resolve, approve)
	require.NoError(t, err)
	return p, node
}

var ctx = context.Background()

// ---------------------------------------------------------------------------
// Accounts and chain
// ---------------------------------------------------------------------------

func TestProviderAccountsRequireConnection(t *testing.T) {
	p, _ := newTestProvider(t, nil)

	raw, err := p.Request(ctx, "eth_accounts")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))

	var changed []string
	p.On(EventAccountsChanged, func(v any) { changed = v.([]string) })

	raw, err = p.Request(ctx, "eth_requestAccounts")
	require.NoError(t, err)
	var accounts []string
	require.NoError(t, json.Unmarshal(raw, &accounts))
	assert.Equal(t, []string{"0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"}, accounts)
	assert.Equal(t, accounts, changed)

	raw, err = p.Request(ctx, "eth_accounts")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
}

func TestProviderChainID(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	raw, err := p.Request(ctx, "eth_chainId")
	require.NoError(t, err)
	assert.JSONEq(t, `"0x2105"`, string(raw))
}

func TestProviderSwitchChain(t *testing.T) {
	p, _ := newTestProvider(t, nil, 84532)

	var events []any
	unsubscribe := p.On(EventChainChanged, func(v any) { events = append(events, v) })

	_, err := p.Request(ctx, "wallet_switchEthereumChain", map[string]string{"chainId": "0x14a34"})
	require.NoError(t, err)
	assert.Equal(t, int64(84532), p.ChainID())
	assert.Equal(t, []any{"0x14a34"}, events)

	// Switching to the current chain is a no-op.
	_, err = p.Request(ctx, "wallet_switchEthereumChain", map[string]string{"chainId": "0x14a34"})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	unsubscribe()
	_, err = p.Request(ctx, "wallet_switchEthereumChain", map[string]string{"chainId": "0x2105"})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestProviderSwitchUnknownChain(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	_, err := p.Request(ctx, "wallet_switchEthereumChain", map[string]string{"chainId": "0x1"})

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, CodeUnrecognizedChain, pe.Code)
	assert.Equal(t, int64(8453), p.ChainID())
}

func TestProviderAddThenSwitchChain(t *testing.T) {
	p, node := newTestProvider(t, nil)
	_, err := p.Request(ctx, "wallet_addEthereumChain", map[string]any{
		"chainId": "0x1",
		"rpcUrls": []string{node.URL},
	})
	require.NoError(t, err)

	_, err = p.Request(ctx, "wallet_switchEthereumChain", map[string]string{"chainId": "0x1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ChainID())
}

func TestProviderUnsupportedMethod(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	_, err := p.Request(ctx, "eth_signTypedData_v4")

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, CodeUnsupported, pe.Code)
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

func TestProviderSendTransaction(t *testing.T) {
	p, node := newTestProvider(t, nil)

	raw, err := p.Request(ctx, "eth_sendTransaction", TxRequest{
		From:  testSignerAddr,
		To:    "0x00000000000000000000000000000000000000aa",
		Data:  "0xdeadbeef",
		Gas:   "0x30d40",
		Value: "0x0",
	})
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`"0x%064x"`, 1), string(raw))

	tx := node.sentTx(t)
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(200_000), tx.Gas())
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", strings.ToLower(tx.To().Hex()))
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, tx.Data())
	assert.Equal(t, int64(2_000_000_000), tx.GasFeeCap().Int64())
	assert.Equal(t, int64(100_000_000), tx.GasTipCap().Int64())

	from, err := types.Sender(types.NewLondonSigner(tx.ChainId()), tx)
	require.NoError(t, err)
	assert.Equal(t, testSignerAddr, from.Hex())
}

func TestProviderSendTransactionEstimatesWhenGasMissing(t *testing.T) {
	p, node := newTestProvider(t, nil)
	_, err := p.Request(ctx, "eth_sendTransaction", map[string]string{
		"from": testSignerAddr,
		"to":   "0x00000000000000000000000000000000000000aa",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(21_000), node.sentTx(t).Gas())
}

func TestProviderUserRejection(t *testing.T) {
	reject := func(context.Context, TxRequest) (bool, error) { return false, nil }
	p, _ := newTestProvider(t, reject)

	_, err := p.Request(ctx, "eth_sendTransaction", TxRequest{From: testSignerAddr, To: "0x00000000000000000000000000000000000000aa"})
	assert.True(t, IsUserRejection(err))
}

func TestProviderRejectsForeignFrom(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	_, err := p.Request(ctx, "eth_sendTransaction", TxRequest{From: "0x00000000000000000000000000000000000000bb"})

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, CodeUnauthorized, pe.Code)
}

func TestProviderEstimateGas(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	raw, err := p.Request(ctx, "eth_estimateGas", TxRequest{From: testSignerAddr, To: "0x00000000000000000000000000000000000000aa"})
	require.NoError(t, err)
	assert.JSONEq(t, `"0x5208"`, string(raw))
}

func TestProviderPersonalSign(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	raw, err := p.Request(ctx, "personal_sign", hexutil.Encode([]byte("gm")), testSignerAddr)
	require.NoError(t, err)

	var sigHex string
	require.NoError(t, json.Unmarshal(raw, &sigHex))
	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)

	addr, err := VerifyMessage([]byte("gm"), sig)
	require.NoError(t, err)
	assert.Equal(t, testSignerAddr, addr.Hex())
}
