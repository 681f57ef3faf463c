// Package store persists per-wallet user records and referral records.
//
// Every backend merges on write: a Patch replaces only the top-level fields it
// sets and leaves the rest of the stored record alone.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"github.com/Mohsinsiddi/w3deploy/internal/records"
)

// ErrUnknownBackend is returned by Open for an unsupported store_backend.
var ErrUnknownBackend = errors.New("unknown store backend")

// Store holds user records keyed by lowercase wallet address.
type Store interface {
	// Get returns the wallet's record, or an empty record if none exists.
	Get(ctx context.Context, wallet string) (*records.UserRecord, error)
	// Merge writes the fields set in p over the stored record.
	Merge(ctx context.Context, wallet string, p records.Patch) error
	// All returns every record keyed by wallet.
	All(ctx context.Context) (map[string]*records.UserRecord, error)
}

// ReferralStore holds referral records keyed by FID.
type ReferralStore interface {
	// GetReferral returns nil, nil when the FID has no referral record.
	GetReferral(ctx context.Context, fid string) (*records.ReferralRecord, error)
	PutReferral(ctx context.Context, rec *records.ReferralRecord) error
}

// Backend is a Store that also keeps referrals and owns resources.
type Backend interface {
	Store
	ReferralStore
	Close() error
}

// Open returns the backend selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendFile, "":
		return NewFileStore(cfg), nil
	case config.BackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres_dsn is required for the postgres backend")
		}
		if err := Migrate(cfg.PostgresDSN); err != nil {
			return nil, err
		}
		return OpenPostgres(ctx, cfg.PostgresDSN)
	case config.BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.New("redis_addr is required for the redis backend")
		}
		return OpenRedis(ctx, cfg.RedisAddr)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.StoreBackend)
}
