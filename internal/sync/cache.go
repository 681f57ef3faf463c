package sync

import (
	"path/filepath"

	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"github.com/Mohsinsiddi/w3deploy/internal/records"
)

// LocalCache is the on-disk tier: one JSON file per wallet under the config
// cache directory.
type LocalCache struct {
	cfg *config.Config
}

// NewLocalCache creates a cache under cfg.CacheDir().
func NewLocalCache(cfg *config.Config) *LocalCache {
	return &LocalCache{cfg: cfg}
}

func cacheDoc(wallet string) string {
	return filepath.Join("cache", records.NormalizeWallet(wallet)+".json")
}

// Get returns the cached record, or nil if nothing is cached.
func (c *LocalCache) Get(wallet string) (*records.UserRecord, error) {
	rec, err := config.LoadJSON[records.UserRecord](c.cfg, cacheDoc(wallet))
	if err != nil {
		return nil, err
	}
	if rec.LastUpdated == 0 && rec.IsEmpty() && rec.Clicks == 0 {
		return nil, nil
	}
	return rec, nil
}

// Put overwrites the cached record.
func (c *LocalCache) Put(wallet string, rec *records.UserRecord) error {
	return config.SaveJSON(c.cfg, cacheDoc(wallet), rec)
}
