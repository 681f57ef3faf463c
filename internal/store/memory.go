package store

import (
	"context"
	"sync"

	"github.com/Mohsinsiddi/w3deploy/internal/records"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]*records.UserRecord
	referrals map[string]*records.ReferralRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*records.UserRecord),
		referrals: make(map[string]*records.ReferralRecord),
	}
}

func (s *MemoryStore) Get(_ context.Context, wallet string) (*records.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[records.NormalizeWallet(wallet)].Clone(), nil
}

func (s *MemoryStore) Merge(_ context.Context, wallet string, p records.Patch) error {
	key := records.NormalizeWallet(wallet)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[key] = s.users[key].Apply(p)
	return nil
}

func (s *MemoryStore) All(context.Context) (map[string]*records.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*records.UserRecord, len(s.users))
	for k, v := range s.users {
		out[k] = v.Clone()
	}
	return out, nil
}

func (s *MemoryStore) GetReferral(_ context.Context, fid string) (*records.ReferralRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.referrals[fid]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

func (s *MemoryStore) PutReferral(_ context.Context, rec *records.ReferralRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referrals[rec.FID] = rec.Clone()
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
