package rpc

import (
	"context"
	"errors"
	"sync"

	"github.com/Mohsinsiddi/w3deploy/internal/chain"
)

// Pool spreads receipt lookups over several nodes. Each call starts at the
// next node in turn and moves on when one errors.
type Pool struct {
	clients []chain.ReceiptGetter

	mu   sync.Mutex
	next int
}

// NewPool builds a Pool over urls.
func NewPool(urls []string) (*Pool, error) {
	if len(urls) == 0 {
		return nil, ErrNoHealthyRPC
	}
	clients := make([]chain.ReceiptGetter, len(urls))
	for i, u := range urls {
		clients[i] = chain.NewEVMClient(u)
	}
	return &Pool{clients: clients}, nil
}

// GetTransactionReceipt implements chain.ReceiptGetter. A nil receipt from
// a healthy node is returned as is.
func (p *Pool) GetTransactionReceipt(ctx context.Context, hash string) (*chain.Receipt, error) {
	p.mu.Lock()
	start := p.next
	p.next = (p.next + 1) % len(p.clients)
	p.mu.Unlock()

	var errs []error
	for i := range p.clients {
		c := p.clients[(start+i)%len(p.clients)]
		r, err := c.GetTransactionReceipt(ctx, hash)
		if err == nil {
			return r, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}
