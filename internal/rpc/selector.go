package rpc

import (
	"context"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
)

// Selector hands out one endpoint per call according to its algorithm.
// Round-robin state lives in the Selector, so reuse one per chain.
type Selector struct {
	algo  Algorithm
	probe ProbeFunc
	log   logrus.FieldLogger

	mu   sync.Mutex
	next int
}

// Option configures a Selector.
type Option func(*Selector)

// WithProbe replaces the eth_blockNumber probe.
func WithProbe(p ProbeFunc) Option { return func(s *Selector) { s.probe = p } }

// WithLogger sets the logger used for probe failures.
func WithLogger(l logrus.FieldLogger) Option { return func(s *Selector) { s.log = l } }

// NewSelector returns a Selector using algo.
func NewSelector(algo Algorithm, opts ...Option) *Selector {
	s := &Selector{algo: algo, probe: PingEVM, log: logrus.StandardLogger()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Pick returns the endpoint to use from urls. A single candidate is returned
// without probing.
func (s *Selector) Pick(ctx context.Context, urls []string) (string, error) {
	switch len(urls) {
	case 0:
		return "", ErrNoHealthyRPC
	case 1:
		return urls[0], nil
	}
	if s.algo == AlgorithmFailover {
		return s.failover(ctx, urls)
	}

	eps := Probe(ctx, urls, s.probe)
	healthy := make([]Endpoint, 0, len(eps))
	for _, e := range eps {
		if !e.Healthy() {
			s.log.WithField("url", e.URL).WithError(e.Err).Debug("rpc probe failed")
			continue
		}
		healthy = append(healthy, e)
	}
	if len(healthy) == 0 {
		return "", ErrNoHealthyRPC
	}

	if s.algo == AlgorithmRoundRobin {
		s.mu.Lock()
		e := healthy[s.next%len(healthy)]
		s.next++
		s.mu.Unlock()
		return e.URL, nil
	}
	return fastest(healthy).URL, nil
}

// failover probes in order and stops at the first node that answers.
func (s *Selector) failover(ctx context.Context, urls []string) (string, error) {
	for _, u := range urls {
		e := probeOne(ctx, u, s.probe)
		if e.Healthy() {
			return u, nil
		}
		s.log.WithField("url", u).WithError(e.Err).Debug("rpc failover")
		if ctx.Err() != nil {
			break
		}
	}
	return "", ErrNoHealthyRPC
}

// fastest is the lowest latency; the higher head breaks ties.
func fastest(eps []Endpoint) Endpoint {
	return slices.MinFunc(eps, func(a, b Endpoint) int {
		if a.Latency != b.Latency {
			if a.Latency < b.Latency {
				return -1
			}
			return 1
		}
		switch {
		case a.Block > b.Block:
			return -1
		case a.Block < b.Block:
			return 1
		}
		return 0
	})
}

// SelectBest picks from urls with the named algorithm.
func SelectBest(ctx context.Context, urls []string, algorithm string) (string, error) {
	algo, err := ParseAlgorithm(algorithm)
	if err != nil {
		return "", err
	}
	return NewSelector(algo).Pick(ctx, urls)
}

// Candidates lists user-configured RPCs first, then the chain's built-in
// ones, without duplicates.
func Candidates(custom, builtin []string) []string {
	out := make([]string, 0, len(custom)+len(builtin))
	for _, u := range append(slices.Clone(custom), builtin...) {
		if u != "" && !slices.Contains(out, u) {
			out = append(out, u)
		}
	}
	return out
}

// ReceiptEndpoint returns the endpoint used for receipt polling: the
// configured override, or the first candidate. It is never benchmarked so a
// flaky fastest node cannot stall a deployment.
func ReceiptEndpoint(override string, candidates []string) (string, error) {
	if override != "" {
		return override, nil
	}
	if len(candidates) == 0 {
		return "", ErrNoHealthyRPC
	}
	return candidates[0], nil
}
