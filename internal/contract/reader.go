package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/w3deploy/internal/chain"
)

// ContractCaller is the read side of a node client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg chain.CallMsg) ([]byte, error)
	GetCode(ctx context.Context, address string) ([]byte, error)
}

// Reader queries contracts deployed from the template catalog.
type Reader struct {
	client ContractCaller
}

// NewReader creates a Reader.
func NewReader(client ContractCaller) *Reader {
	return &Reader{client: client}
}

// IsDeployed reports whether addr has code.
func (r *Reader) IsDeployed(ctx context.Context, addr string) (bool, error) {
	code, err := r.client.GetCode(ctx, addr)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// Value calls a deployed template and decodes what it returns. For input
// templates that is the constructor argument; for the counter it is the value
// the next increment would produce.
func (r *Reader) Value(ctx context.Context, addr string, t Template) (string, error) {
	if t.ID == "calculator" {
		sum, err := r.Add(ctx, addr, big.NewInt(0), big.NewInt(0))
		if err != nil {
			return "", err
		}
		return sum.String(), nil
	}
	out, err := r.client.CallContract(ctx, chain.CallMsg{To: addr})
	if err != nil {
		return "", fmt.Errorf("calling %s: %w", addr, err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("%s returned no data (not deployed yet?)", addr)
	}
	return DecodeStoredValue(t, out)
}

// Add calls add(a,b) on a calculator deployment.
func (r *Reader) Add(ctx context.Context, addr string, a, b *big.Int) (*big.Int, error) {
	out, err := r.client.CallContract(ctx, chain.CallMsg{To: addr, Data: CalculatorCalldata(a, b)})
	if err != nil {
		return nil, fmt.Errorf("calling add on %s: %w", addr, err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("short return from %s: %d bytes", addr, len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}
