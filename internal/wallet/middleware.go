package wallet

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
)

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, method string, params ...any) (json.RawMessage, error)

// Request calls f.
func (f ProviderFunc) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	return f(ctx, method, params...)
}

// Middleware decorates a Provider.
type Middleware func(next Provider) Provider

// Wrap applies mws to p. The first middleware is the outermost.
func Wrap(p Provider, mws ...Middleware) Provider {
	for i := len(mws) - 1; i >= 0; i-- {
		p = mws[i](p)
	}
	return p
}

// BlockMethods rejects the listed methods with CodeUnsupported before they
// reach the wrapped provider.
func BlockMethods(methods ...string) Middleware {
	return func(next Provider) Provider {
		return ProviderFunc(func(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
			if slices.Contains(methods, method) {
				return nil, &ProviderError{Code: CodeUnsupported, Message: method + " is blocked"}
			}
			return next.Request(ctx, method, params...)
		})
	}
}

// BlockContractCreation rejects eth_sendTransaction without a to address.
// Deployments have to go through the factory contract instead.
func BlockContractCreation() Middleware {
	return func(next Provider) Provider {
		return ProviderFunc(func(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
			if method == "eth_sendTransaction" {
				tx, err := decodeParam[TxRequest](params)
				if err != nil {
					return nil, err
				}
				if tx.To == "" {
					return nil, &ProviderError{Code: CodeUnsupported, Message: "direct contract creation is blocked, deploy through the factory"}
				}
			}
			return next.Request(ctx, method, params...)
		})
	}
}

// WithLogging logs every request at debug level, and failures at warn.
func WithLogging(log logrus.FieldLogger) Middleware {
	return func(next Provider) Provider {
		return ProviderFunc(func(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
			start := time.Now()
			res, err := next.Request(ctx, method, params...)
			entry := log.WithFields(logrus.Fields{
				"method":   method,
				"duration": time.Since(start).Round(time.Millisecond),
			})
			if err != nil {
				entry.WithError(err).Warn("wallet request failed")
			} else {
				entry.Debug("wallet request")
			}
			return res, err
		})
	}
}
