package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/Mohsinsiddi/w3deploy/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Provider is a wallet connection that answers JSON-RPC style requests.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// Provider error codes (EIP-1193 / EIP-3326).
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupported       = 4200
	CodeDisconnected      = 4900
	CodeUnrecognizedChain = 4902
)

// ProviderError is a wallet-level error with an EIP-1193 code.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// IsUserRejection reports whether err is a user rejection from the wallet.
func IsUserRejection(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == CodeUserRejected
}

// Provider events.
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
)

// TxRequest is the eth_sendTransaction / eth_estimateGas parameter object.
// Quantities are 0x-prefixed hex.
type TxRequest struct {
	From  string `json:"from"`
	To    string `json:"to,omitempty"`
	Data  string `json:"data,omitempty"`
	Gas   string `json:"gas,omitempty"`
	Value string `json:"value,omitempty"`
}

// Approver is asked before every transaction is signed. Returning false
// rejects it with CodeUserRejected.
type Approver func(ctx context.Context, tx TxRequest) (bool, error)

// AutoApprove approves everything (for --yes and tests).
func AutoApprove(context.Context, TxRequest) (bool, error) { return true, nil }

// ClientResolver returns a node client for a chain ID.
type ClientResolver func(chainID int64) (*chain.EVMClient, error)

// LocalProvider is a Provider backed by a locally stored signing key.
type LocalProvider struct {
	signer  *Signer
	approve Approver
	resolve ClientResolver

	mu        sync.Mutex
	chainID   int64
	client    *chain.EVMClient
	connected bool
	added     map[int64]*chain.EVMClient
	listeners map[string]map[int]func(any)
	nextID    int
}

// NewLocalProvider creates a provider for signer on chainID.
func NewLocalProvider(signer *Signer, chainID int64, resolve ClientResolver, approve Approver) (*LocalProvider, error) {
	if approve == nil {
		approve = AutoApprove
	}
	client, err := resolve(chainID)
	if err != nil {
		return nil, err
	}
	return &LocalProvider{
		signer:    signer,
		approve:   approve,
		resolve:   resolve,
		chainID:   chainID,
		client:    client,
		added:     make(map[int64]*chain.EVMClient),
		listeners: make(map[string]map[int]func(any)),
	}, nil
}

// On subscribes fn to event and returns a function that unsubscribes it.
func (p *LocalProvider) On(event string, fn func(payload any)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listeners[event] == nil {
		p.listeners[event] = make(map[int]func(any))
	}
	id := p.nextID
	p.nextID++
	p.listeners[event][id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners[event], id)
	}
}

func (p *LocalProvider) emit(event string, payload any) {
	p.mu.Lock()
	fns := make([]func(any), 0, len(p.listeners[event]))
	for _, fn := range p.listeners[event] {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(payload)
	}
}

// ChainID returns the currently selected chain.
func (p *LocalProvider) ChainID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID
}

// Request dispatches a wallet RPC method.
func (p *LocalProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case "eth_requestAccounts":
		p.mu.Lock()
		first := !p.connected
		p.connected = true
		p.mu.Unlock()
		accounts := []string{p.address()}
		if first {
			p.emit(EventAccountsChanged, accounts)
		}
		return json.Marshal(accounts)

	case "eth_accounts":
		p.mu.Lock()
		connected := p.connected
		p.mu.Unlock()
		if !connected {
			return json.Marshal([]string{})
		}
		return json.Marshal([]string{p.address()})

	case "eth_chainId":
		return json.Marshal(hexutil.EncodeBig(big.NewInt(p.ChainID())))

	case "eth_estimateGas":
		tx, err := decodeParam[TxRequest](params)
		if err != nil {
			return nil, err
		}
		gas, err := p.currentClient().EstimateGas(ctx, chain.CallMsg{From: tx.From, To: tx.To, Data: tx.Data})
		if err != nil {
			return nil, err
		}
		return json.Marshal(hexutil.EncodeUint64(gas))

	case "eth_sendTransaction":
		tx, err := decodeParam[TxRequest](params)
		if err != nil {
			return nil, err
		}
		hash, err := p.sendTransaction(ctx, tx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(hash)

	case "personal_sign":
		return p.personalSign(params)

	case "wallet_switchEthereumChain":
		req, err := decodeParam[struct {
			ChainID string `json:"chainId"`
		}](params)
		if err != nil {
			return nil, err
		}
		return nil, p.switchChain(req.ChainID)

	case "wallet_addEthereumChain":
		req, err := decodeParam[struct {
			ChainID string   `json:"chainId"`
			RPCURLs []string `json:"rpcUrls"`
		}](params)
		if err != nil {
			return nil, err
		}
		id, err := hexutil.DecodeBig(req.ChainID)
		if err != nil {
			return nil, &ProviderError{Code: -32602, Message: "invalid chainId"}
		}
		if len(req.RPCURLs) == 0 {
			return nil, &ProviderError{Code: -32602, Message: "rpcUrls is required"}
		}
		p.mu.Lock()
		p.added[id.Int64()] = chain.NewEVMClient(req.RPCURLs[0])
		p.mu.Unlock()
		return json.RawMessage("null"), nil
	}

	return nil, &ProviderError{Code: CodeUnsupported, Message: "unsupported method " + method}
}

func (p *LocalProvider) address() string {
	return strings.ToLower(p.signer.Address().Hex())
}

func (p *LocalProvider) currentClient() *chain.EVMClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client
}

func (p *LocalProvider) switchChain(hexID string) error {
	id, err := hexutil.DecodeBig(hexID)
	if err != nil {
		return &ProviderError{Code: -32602, Message: "invalid chainId"}
	}
	target := id.Int64()

	p.mu.Lock()
	if target == p.chainID {
		p.mu.Unlock()
		return nil
	}
	client, ok := p.added[target]
	p.mu.Unlock()
	if !ok {
		client, err = p.resolve(target)
		if err != nil {
			return &ProviderError{Code: CodeUnrecognizedChain, Message: fmt.Sprintf("unrecognized chain %s", hexID)}
		}
	}

	p.mu.Lock()
	p.chainID = target
	p.client = client
	p.mu.Unlock()
	p.emit(EventChainChanged, hexutil.EncodeBig(id))
	return nil
}

func (p *LocalProvider) sendTransaction(ctx context.Context, req TxRequest) (string, error) {
	if req.From != "" && !strings.EqualFold(req.From, p.signer.Address().Hex()) {
		return "", &ProviderError{Code: CodeUnauthorized, Message: "from is not the connected account"}
	}
	ok, err := p.approve(ctx, req)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &ProviderError{Code: CodeUserRejected, Message: "user rejected the request"}
	}

	client := p.currentClient()
	chainID := big.NewInt(p.ChainID())

	data, err := hexutil.Decode(orEmptyHex(req.Data))
	if err != nil {
		return "", &ProviderError{Code: -32602, Message: "invalid data"}
	}
	value := new(big.Int)
	if req.Value != "" {
		if value, err = hexutil.DecodeBig(req.Value); err != nil {
			return "", &ProviderError{Code: -32602, Message: "invalid value"}
		}
	}

	from := p.signer.Address().Hex()
	gas := uint64(0)
	if req.Gas != "" {
		if gas, err = hexutil.DecodeUint64(req.Gas); err != nil {
			return "", &ProviderError{Code: -32602, Message: "invalid gas"}
		}
	} else {
		if gas, err = client.EstimateGas(ctx, chain.CallMsg{From: from, To: req.To, Data: req.Data, Value: value}); err != nil {
			return "", fmt.Errorf("estimating gas: %w", err)
		}
	}

	nonce, err := client.GetNonce(ctx, from)
	if err != nil {
		return "", fmt.Errorf("getting nonce: %w", err)
	}
	gasPrice, err := client.GasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("getting gas price: %w", err)
	}
	tip, err := client.MaxPriorityFee(ctx)
	if err != nil || tip.Cmp(gasPrice) > 0 {
		tip = gasPrice
	}

	var to *common.Address
	if req.To != "" {
		addr := common.HexToAddress(req.To)
		to = &addr
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: new(big.Int).Mul(gasPrice, big.NewInt(2)),
		Gas:       gas,
		To:        to,
		Value:     value,
		Data:      data,
	})

	raw, err := p.signer.SignTx(tx, chainID)
	if err != nil {
		return "", err
	}
	hash, err := client.SendRawTransaction(ctx, hexutil.Encode(raw))
	if err != nil {
		return "", fmt.Errorf("broadcasting transaction: %w", err)
	}
	return hash, nil
}

func (p *LocalProvider) personalSign(params []any) (json.RawMessage, error) {
	if len(params) == 0 {
		return nil, &ProviderError{Code: -32602, Message: "missing message"}
	}
	msgHex, ok := params[0].(string)
	if !ok {
		return nil, &ProviderError{Code: -32602, Message: "message must be a hex string"}
	}
	msg, err := hexutil.Decode(msgHex)
	if err != nil {
		msg = []byte(msgHex)
	}
	sig, err := p.signer.SignMessage(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(hexutil.Encode(sig))
}

// decodeParam decodes the first request parameter into T, accepting either a
// T value or anything that JSON-encodes to the same shape.
func decodeParam[T any](params []any) (T, error) {
	var out T
	if len(params) == 0 {
		return out, &ProviderError{Code: -32602, Message: "missing params"}
	}
	if v, ok := params[0].(T); ok {
		return v, nil
	}
	raw, err := json.Marshal(params[0])
	if err != nil {
		return out, &ProviderError{Code: -32602, Message: err.Error()}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &ProviderError{Code: -32602, Message: err.Error()}
	}
	return out, nil
}

func orEmptyHex(s string) string {
	if s == "" {
		return "0x"
	}
	return s
}
