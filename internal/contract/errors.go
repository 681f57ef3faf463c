package contract

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTemplate is returned by Lookup for IDs not in the catalog.
	ErrUnknownTemplate = errors.New("unknown contract template")
	// ErrInputTooLarge rejects string arguments over the size limit.
	ErrInputTooLarge = errors.New("constructor input too large")
	// ErrUserRejected means the wallet declined the transaction.
	ErrUserRejected = errors.New("transaction rejected in wallet")
	// ErrNoFactory means no factory address is configured.
	ErrNoFactory = errors.New("factory address not configured")
)

// InvalidNumberError is returned when a number argument is not a non-negative
// decimal integer that fits in uint256.
type InvalidNumberError struct {
	Value  string
	Reason string
}

func (e *InvalidNumberError) Error() string {
	return fmt.Sprintf("invalid number %q: %s", e.Value, e.Reason)
}

// EventNotFoundError means the transaction succeeded but no log decoded as
// ContractDeployed. To is the address the transaction actually targeted.
type EventNotFoundError struct {
	TxHash string
	To     string
}

func (e *EventNotFoundError) Error() string {
	to := e.To
	if to == "" {
		to = "unknown"
	}
	return fmt.Sprintf("deployment event not found in tx %s (transaction was sent to %s)", e.TxHash, to)
}
