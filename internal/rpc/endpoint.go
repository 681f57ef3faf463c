// Package rpc chooses which JSON-RPC node a command talks to.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mohsinsiddi/w3deploy/internal/chain"
)

// ErrNoHealthyRPC is returned when no candidate answered.
var ErrNoHealthyRPC = errors.New("no healthy RPC endpoint available")

// Algorithm names how an endpoint is chosen among healthy candidates.
type Algorithm string

const (
	AlgorithmFastest    Algorithm = "fastest"
	AlgorithmRoundRobin Algorithm = "round-robin"
	AlgorithmFailover   Algorithm = "failover"
)

// Nodes this many blocks behind the highest head seen are treated as down.
const staleBlocks = 3

// ParseAlgorithm accepts the config values; empty means fastest.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(s); a {
	case "":
		return AlgorithmFastest, nil
	case AlgorithmFastest, AlgorithmRoundRobin, AlgorithmFailover:
		return a, nil
	}
	return "", fmt.Errorf("invalid algorithm %q, choose: fastest, round-robin, failover", s)
}

// Endpoint is one probed node.
type Endpoint struct {
	URL     string
	Latency time.Duration
	Block   uint64
	Err     error
}

// Healthy reports whether the probe succeeded.
func (e Endpoint) Healthy() bool { return e.Err == nil }

// ProbeFunc measures one node: round-trip latency and head block.
type ProbeFunc func(ctx context.Context, url string) (time.Duration, uint64, error)

// PingEVM probes with eth_blockNumber.
func PingEVM(ctx context.Context, url string) (time.Duration, uint64, error) {
	return chain.NewEVMClient(url).Ping(ctx)
}
