package rpc

import (
	"context"
	"fmt"

	"github.com/Mohsinsiddi/w3deploy/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const maxParallelProbes = 8

// Probe measures every url concurrently and returns the results in input
// order. Nodes lagging the best head by more than staleBlocks get an error.
func Probe(ctx context.Context, urls []string, probe ProbeFunc) []Endpoint {
	out := make([]Endpoint, len(urls))
	var g errgroup.Group
	g.SetLimit(maxParallelProbes)
	for i, u := range urls {
		g.Go(func() error {
			out[i] = probeOne(ctx, u, probe)
			return nil
		})
	}
	_ = g.Wait()
	markStale(out)
	return out
}

func probeOne(ctx context.Context, url string, probe ProbeFunc) Endpoint {
	latency, block, err := probe(ctx, url)
	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError
	}
	metrics.RPCProbes.WithLabelValues(result).Inc()
	return Endpoint{URL: url, Latency: latency, Block: block, Err: err}
}

func markStale(eps []Endpoint) {
	var head uint64
	for _, e := range eps {
		if e.Healthy() && e.Block > head {
			head = e.Block
		}
	}
	for i, e := range eps {
		if e.Healthy() && head-e.Block > staleBlocks {
			eps[i].Err = fmt.Errorf("%d blocks behind head %d", head-e.Block, head)
		}
	}
}
