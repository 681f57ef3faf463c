package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// EVMClient is a minimal JSON-RPC client for EVM chains.
type EVMClient struct {
	url    string
	client *http.Client
}

// Balance holds a native balance result.
type Balance struct {
	Wei *big.Int
	ETH string
	USD float64
}

// Transaction holds a simplified transaction record.
type Transaction struct {
	Hash     string
	From     string
	To       string // empty for contract creation
	Value    *big.Int
	ValueETH string
	Gas      uint64
	GasPrice *big.Int
	Nonce    uint64
	BlockNum uint64
	Input    string
}

// NewEVMClient creates a new EVM JSON-RPC client pointed at url.
func NewEVMClient(url string) *EVMClient {
	return &EVMClient{
		url: url,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// URL returns the endpoint the client talks to.
func (c *EVMClient) URL() string { return c.url }

// Call performs a raw JSON-RPC call and returns the undecoded result.
// A JSON null result comes back as nil, nil.
func (c *EVMClient) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	raw, err := c.call(ctx, method, params...)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	return raw, nil
}

// GetBalance returns the native balance for an address.
func (c *EVMClient) GetBalance(ctx context.Context, address string) (*Balance, error) {
	wei, err := c.callBig(ctx, "eth_getBalance", address, "latest")
	if err != nil {
		return nil, err
	}
	return &Balance{Wei: wei, ETH: weiToETH(wei)}, nil
}

// GetBlockNumber returns the latest block number.
func (c *EVMClient) GetBlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.callBig(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// SendRawTransaction broadcasts a signed raw transaction.
func (c *EVMClient) SendRawTransaction(ctx context.Context, rawTx string) (string, error) {
	return c.callString(ctx, "eth_sendRawTransaction", rawTx)
}

// CallMsg is the subset of transaction fields used by eth_call and
// eth_estimateGas.
type CallMsg struct {
	From  string   `json:"from,omitempty"`
	To    string   `json:"to,omitempty"`
	Data  string   `json:"data,omitempty"`
	Value *big.Int `json:"-"`
}

func (m CallMsg) params() map[string]string {
	p := map[string]string{}
	if m.From != "" {
		p["from"] = m.From
	}
	if m.To != "" {
		p["to"] = m.To
	}
	if m.Data != "" {
		p["data"] = m.Data
	}
	if m.Value != nil && m.Value.Sign() > 0 {
		p["value"] = "0x" + m.Value.Text(16)
	}
	return p
}

// EstimateGas estimates gas for a transaction.
func (c *EVMClient) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	n, err := c.callBig(ctx, "eth_estimateGas", msg.params())
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// GasPrice returns the current gas price.
func (c *EVMClient) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "eth_gasPrice")
}

// MaxPriorityFee returns eth_maxPriorityFeePerGas.
func (c *EVMClient) MaxPriorityFee(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "eth_maxPriorityFeePerGas")
}

// ChainID returns the chain's ID.
func (c *EVMClient) ChainID(ctx context.Context) (int64, error) {
	id, err := c.callBig(ctx, "eth_chainId")
	if err != nil {
		return 0, err
	}
	return id.Int64(), nil
}

// GetNonce returns the pending transaction count for an address.
func (c *EVMClient) GetNonce(ctx context.Context, address string) (uint64, error) {
	n, err := c.callBig(ctx, "eth_getTransactionCount", address, "pending")
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// CallContract runs eth_call against the latest block and returns the raw
// return data.
func (c *EVMClient) CallContract(ctx context.Context, msg CallMsg) ([]byte, error) {
	s, err := c.callString(ctx, "eth_call", msg.params(), "latest")
	if err != nil {
		return nil, err
	}
	return hexutil.Decode(normalizeHex(s))
}

// GetCode returns the bytecode at an address. Empty means EOA (no code).
func (c *EVMClient) GetCode(ctx context.Context, address string) ([]byte, error) {
	s, err := c.callString(ctx, "eth_getCode", address, "latest")
	if err != nil {
		return nil, err
	}
	return hexutil.Decode(normalizeHex(s))
}

// GetTransactionByHash returns a transaction by hash, or nil, nil if the node
// does not know it.
func (c *EVMClient) GetTransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	raw, err := c.call(ctx, "eth_getTransactionByHash", hash)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	var rt rawTx
	if err := json.Unmarshal(raw, &rt); err != nil {
		return nil, fmt.Errorf("parsing transaction: %w", err)
	}
	return rt.toTx(), nil
}

// Receipt is the on-chain outcome of a mined transaction.
type Receipt struct {
	TxHash            string
	Status            uint64 // 1 = success, 0 = reverted
	From              string
	To                string
	BlockNumber       uint64
	GasUsed           *big.Int
	EffectiveGasPrice *big.Int
	ContractAddress   string
	Logs              []*types.Log
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool { return r.Status == 1 }

// GasSpent returns gasUsed * effectiveGasPrice, or nil if either is missing.
func (r *Receipt) GasSpent() *big.Int {
	if r.GasUsed == nil || r.EffectiveGasPrice == nil {
		return nil
	}
	return new(big.Int).Mul(r.GasUsed, r.EffectiveGasPrice)
}

// GetTransactionReceipt fetches the receipt for hash.
// Returns nil, nil if the transaction is still pending.
func (c *EVMClient) GetTransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	raw, err := c.call(ctx, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil // still pending
	}

	var r rawReceipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parsing receipt: %w", err)
	}
	return r.toReceipt(hash)
}

// Ping tests the RPC endpoint and returns latency + block number.
func (c *EVMClient) Ping(ctx context.Context) (latency time.Duration, blockNum uint64, err error) {
	start := time.Now()
	n, err := c.callBig(ctx, "eth_blockNumber")
	latency = time.Since(start)
	if err != nil {
		return latency, 0, err
	}
	return latency, n.Uint64(), nil
}

// --- internal JSON-RPC plumbing ---

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

func (c *EVMClient) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("RPC request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func (c *EVMClient) callString(ctx context.Context, method string, params ...any) (string, error) {
	raw, err := c.call(ctx, method, params...)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("unexpected %s result: %s", method, string(raw))
	}
	return s, nil
}

func (c *EVMClient) callBig(ctx context.Context, method string, params ...any) (*big.Int, error) {
	s, err := c.callString(ctx, method, params...)
	if err != nil {
		return nil, err
	}
	n, ok := parseBigHex(s)
	if !ok {
		return nil, fmt.Errorf("could not parse %s result: %s", method, s)
	}
	return n, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

type rawTx struct {
	Hash     string `json:"hash"`
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice"`
	Nonce    string `json:"nonce"`
	BlockNum string `json:"blockNumber"`
	Input    string `json:"input"`
}

func (rt *rawTx) toTx() *Transaction {
	tx := &Transaction{
		Hash:  rt.Hash,
		From:  rt.From,
		To:    rt.To,
		Input: rt.Input,
	}
	if v, ok := parseBigHex(rt.Value); ok {
		tx.Value = v
		tx.ValueETH = weiToETH(v)
	}
	if g, ok := parseBigHex(rt.Gas); ok {
		tx.Gas = g.Uint64()
	}
	if gp, ok := parseBigHex(rt.GasPrice); ok {
		tx.GasPrice = gp
	}
	if n, ok := parseBigHex(rt.Nonce); ok {
		tx.Nonce = n.Uint64()
	}
	if bn, ok := parseBigHex(rt.BlockNum); ok {
		tx.BlockNum = bn.Uint64()
	}
	return tx
}

type rawLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
	TxHash  string   `json:"transactionHash"`
	Index   string   `json:"logIndex"`
}

type rawReceipt struct {
	Status            string   `json:"status"`
	From              string   `json:"from"`
	To                string   `json:"to"`
	BlockNumber       string   `json:"blockNumber"`
	GasUsed           string   `json:"gasUsed"`
	EffectiveGasPrice string   `json:"effectiveGasPrice"`
	ContractAddress   string   `json:"contractAddress"`
	Logs              []rawLog `json:"logs"`
}

func (r *rawReceipt) toReceipt(hash string) (*Receipt, error) {
	receipt := &Receipt{
		TxHash:          hash,
		From:            r.From,
		To:              r.To,
		ContractAddress: r.ContractAddress,
	}
	if s, ok := parseBigHex(r.Status); ok {
		receipt.Status = s.Uint64()
	}
	if bn, ok := parseBigHex(r.BlockNumber); ok {
		receipt.BlockNumber = bn.Uint64()
	}
	if gu, ok := parseBigHex(r.GasUsed); ok {
		receipt.GasUsed = gu
	}
	if gp, ok := parseBigHex(r.EffectiveGasPrice); ok {
		receipt.EffectiveGasPrice = gp
	}
	for i, l := range r.Logs {
		data, err := hexutil.Decode(normalizeHex(l.Data))
		if err != nil {
			return nil, fmt.Errorf("log %d data: %w", i, err)
		}
		log := &types.Log{
			Address: common.HexToAddress(l.Address),
			Data:    data,
			TxHash:  common.HexToHash(hash),
		}
		if idx, ok := parseBigHex(l.Index); ok {
			log.Index = uint(idx.Uint64())
		}
		log.BlockNumber = receipt.BlockNumber
		for _, t := range l.Topics {
			log.Topics = append(log.Topics, common.HexToHash(t))
		}
		receipt.Logs = append(receipt.Logs, log)
	}
	return receipt, nil
}

// --- math helpers ---

var eth1 = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// WeiToETH converts a wei amount to an ETH decimal string.
func WeiToETH(wei *big.Int) string { return weiToETH(wei) }

func weiToETH(wei *big.Int) string {
	f := new(big.Float).SetInt(wei)
	f.Quo(f, eth1)
	return f.Text('f', 18)
}

// WeiToGwei converts a Wei value to Gwei as float64.
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetFloat64(1e9),
	).Float64()
	return f
}

func parseBigHex(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return new(big.Int), true
	}
	return new(big.Int).SetString(s, 16)
}

// normalizeHex turns "" and "0x" into a form hexutil accepts.
func normalizeHex(s string) string {
	if s == "" {
		return "0x"
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "0x" + s
	}
	return s
}
