package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"github.com/Mohsinsiddi/w3deploy/internal/records"
)

// FileStore keeps one JSON document per wallet and per FID under the config
// directory. It is the default backend for single-machine use.
type FileStore struct {
	mu  sync.Mutex
	cfg *config.Config
}

// NewFileStore creates a FileStore under cfg's directory.
func NewFileStore(cfg *config.Config) *FileStore {
	return &FileStore{cfg: cfg}
}

func userDoc(wallet string) string {
	return filepath.Join("records", records.NormalizeWallet(wallet)+".json")
}

func referralDoc(fid string) string {
	return filepath.Join("referrals", filepath.Base(fid)+".json")
}

func (s *FileStore) Get(_ context.Context, wallet string) (*records.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return config.LoadJSON[records.UserRecord](s.cfg, userDoc(wallet))
}

func (s *FileStore) Merge(_ context.Context, wallet string, p records.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := config.LoadJSON[records.UserRecord](s.cfg, userDoc(wallet))
	if err != nil {
		return err
	}
	return config.SaveJSON(s.cfg, userDoc(wallet), cur.Apply(p))
}

func (s *FileStore) All(context.Context) (map[string]*records.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := filepath.Join(s.cfg.Dir(), "records")
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]*records.UserRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make(map[string]*records.UserRecord, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		rec, err := config.LoadJSON[records.UserRecord](s.cfg, filepath.Join("records", name))
		if err != nil {
			return nil, err
		}
		out[strings.TrimSuffix(name, ".json")] = rec
	}
	return out, nil
}

func (s *FileStore) GetReferral(_ context.Context, fid string) (*records.ReferralRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := config.LoadJSON[records.ReferralRecord](s.cfg, referralDoc(fid))
	if err != nil || rec.FID == "" {
		return nil, err
	}
	return rec, nil
}

func (s *FileStore) PutReferral(_ context.Context, rec *records.ReferralRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return config.SaveJSON(s.cfg, referralDoc(rec.FID), rec)
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
