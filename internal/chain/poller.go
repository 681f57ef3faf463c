package chain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBadInterval is returned for a zero or negative poll interval.
var ErrBadInterval = errors.New("poll interval must be positive")

// PollState is the state of a receipt wait.
type PollState int

const (
	Pending PollState = iota
	Confirmed
	Failed
	TimedOut
)

func (s PollState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed out"
	}
	return "unknown"
}

// ReceiptGetter fetches a receipt; nil, nil means not mined yet.
type ReceiptGetter interface {
	GetTransactionReceipt(ctx context.Context, hash string) (*Receipt, error)
}

// ReceiptTimeoutError means no receipt appeared within the attempt budget.
// The transaction may still land; it has to be checked on the explorer.
type ReceiptTimeoutError struct {
	TxHash   string
	Attempts int
}

func (e *ReceiptTimeoutError) Error() string {
	return fmt.Sprintf("no receipt for %s after %d attempts, check the explorer manually", e.TxHash, e.Attempts)
}

// TxFailedError means the transaction was mined but reverted.
type TxFailedError struct {
	TxHash string
	URL    string
}

func (e *TxFailedError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("transaction %s reverted: %s", e.TxHash, e.URL)
	}
	return fmt.Sprintf("transaction %s reverted", e.TxHash)
}

// Poller waits for a receipt by polling at a fixed interval for a bounded
// number of attempts. RPC errors while polling count as "not mined yet".
type Poller struct {
	Client      ReceiptGetter
	Interval    time.Duration
	MaxAttempts int
	// OnAttempt, if set, is called after every query with the attempt number
	// (1-based), the resulting state and the RPC error, if any.
	OnAttempt func(attempt int, state PollState, err error)
}

// NewPoller returns a Poller with the given interval and attempt budget.
func NewPoller(client ReceiptGetter, interval time.Duration, maxAttempts int) *Poller {
	return &Poller{Client: client, Interval: interval, MaxAttempts: maxAttempts}
}

// Wait polls until a receipt is returned, the attempts run out or ctx ends.
// A reverted receipt is returned together with a *TxFailedError.
func (p *Poller) Wait(ctx context.Context, hash string) (*Receipt, error) {
	if p.Interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrBadInterval, p.Interval)
	}
	if p.MaxAttempts <= 0 {
		return nil, &ReceiptTimeoutError{TxHash: hash}
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		receipt, err := p.Client.GetTransactionReceipt(ctx, hash)
		state := Pending
		if err == nil && receipt != nil {
			state = Confirmed
			if !receipt.Succeeded() {
				state = Failed
			}
		}
		if state == Pending && attempt >= p.MaxAttempts {
			state = TimedOut
		}
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, state, err)
		}

		switch state {
		case Confirmed:
			return receipt, nil
		case Failed:
			return receipt, &TxFailedError{TxHash: hash}
		case TimedOut:
			return nil, &ReceiptTimeoutError{TxHash: hash, Attempts: attempt}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
