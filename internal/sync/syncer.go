// Package sync keeps a wallet's record consistent across the local cache, the
// in-process session and the remote store.
package sync

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	gosync "sync"
	"time"

	"github.com/Mohsinsiddi/w3deploy/internal/chain"
	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"github.com/Mohsinsiddi/w3deploy/internal/metrics"
	"github.com/Mohsinsiddi/w3deploy/internal/records"
	"github.com/Mohsinsiddi/w3deploy/internal/store"
	"github.com/sirupsen/logrus"
)

var (
	// ErrRemoteUnavailable is returned alongside a usable record when the
	// remote store could not be read.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	ErrBadInterval = errors.New("watch interval must be positive")
)

// Syncer reconciles the three tiers. Remote pushes run in the background,
// one at a time per wallet, and always write the latest session state merged
// with what the remote holds, so contracts converge by address whatever order
// pushes finish in. Scalar fields written by another device between the read
// and the write of a push can still be lost.
type Syncer struct {
	remote store.Store
	local  *LocalCache

	mu      gosync.Mutex
	session map[string]*records.UserRecord
	pushMu  map[string]*gosync.Mutex
	wg      gosync.WaitGroup

	timeout time.Duration
	now     func() time.Time
	log     logrus.FieldLogger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Syncer) { s.log = log }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// WithRemoteTimeout bounds each background push.
func WithRemoteTimeout(d time.Duration) Option {
	return func(s *Syncer) { s.timeout = d }
}

// New creates a Syncer.
func New(remote store.Store, local *LocalCache, opts ...Option) *Syncer {
	s := &Syncer{
		remote:  remote,
		local:   local,
		session: make(map[string]*records.UserRecord),
		pushMu:  make(map[string]*gosync.Mutex),
		timeout: config.RemoteSyncTimeout,
		now:     time.Now,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Syncer) nowMillis() int64 { return s.now().UnixMilli() }

// Load reconciles the wallet's record from the remote store and the local
// cache. Once the remote has contracts it is the authority and local-only
// contracts are merged in by address; an empty remote is seeded from the
// local cache. If the remote cannot be read, the local view is returned
// together with ErrRemoteUnavailable.
func (s *Syncer) Load(ctx context.Context, wallet string) (*records.UserRecord, error) {
	w := records.NormalizeWallet(wallet)
	log := s.log.WithField("wallet", w)

	local, err := s.local.Get(w)
	if err != nil {
		log.WithError(err).Warn("reading local cache failed")
		local = nil
	}

	remote, rerr := s.remote.Get(ctx, w)
	if rerr != nil {
		metrics.RemoteSync.WithLabelValues("pull", metrics.ResultError).Inc()
		log.WithError(rerr).Warn("remote read failed, using local state")
		rec := s.fallback(w, local)
		return rec.Clone(), fmt.Errorf("%w: %v", ErrRemoteUnavailable, rerr)
	}
	metrics.RemoteSync.WithLabelValues("pull", metrics.ResultOK).Inc()

	var (
		rec  *records.UserRecord
		push bool
	)
	switch {
	case !remote.IsEmpty():
		rec = remote.Clone()
		if local != nil {
			rec.Contracts = records.MergeContracts(remote.Contracts, local.Contracts)
		}
		push = len(rec.Contracts) > len(remote.Contracts)
	case !local.IsEmpty():
		log.WithField("contracts", len(local.Contracts)).Info("seeding remote from local cache")
		rec = local.Clone()
		rec.ReferralPoints = max(rec.ReferralPoints, remote.ReferralPoints)
		rec.Clicks = max(rec.Clicks, remote.Clicks)
		if remote.ReferredBy != "" {
			rec.ReferredBy = remote.ReferredBy
		}
		if remote.FID != "" {
			rec.FID = remote.FID
		}
		push = true
	default:
		rec = remote.Clone()
		if local != nil {
			rec.Clicks = max(rec.Clicks, local.Clicks)
		}
	}

	rec.Achievements = records.RecomputeAchievements(rec.Achievements, len(rec.Contracts), s.nowMillis())

	s.mu.Lock()
	s.session[w] = rec
	s.mu.Unlock()
	if err := s.local.Put(w, rec); err != nil {
		log.WithError(err).Warn("writing local cache failed")
	}
	if push {
		s.push(w)
	}
	return rec.Clone(), nil
}

func (s *Syncer) fallback(w string, local *records.UserRecord) *records.UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.session[w]; ok {
		return rec
	}
	rec := local
	if rec == nil {
		rec = &records.UserRecord{}
	}
	rec.Achievements = records.RecomputeAchievements(rec.Achievements, len(rec.Contracts), s.nowMillis())
	s.session[w] = rec
	return rec
}

// current returns the session record, falling back to the local cache.
// Callers hold s.mu.
func (s *Syncer) current(w string) *records.UserRecord {
	if rec, ok := s.session[w]; ok {
		return rec
	}
	rec, err := s.local.Get(w)
	if err != nil || rec == nil {
		rec = &records.UserRecord{}
	}
	s.session[w] = rec
	return rec
}

// Snapshot returns a copy of the wallet's session record.
func (s *Syncer) Snapshot(wallet string) *records.UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current(records.NormalizeWallet(wallet)).Clone()
}

// RecordDeployment appends dc, recomputes achievements and persists the local
// cache before returning. The remote push happens in the background. A
// contract whose address is already recorded is a no-op.
func (s *Syncer) RecordDeployment(_ context.Context, wallet string, dc records.DeployedContract) (*records.UserRecord, []records.Achievement, error) {
	w := records.NormalizeWallet(wallet)

	s.mu.Lock()
	cur := s.current(w)
	if cur.HasContract(dc.Address) {
		out := cur.Clone()
		s.mu.Unlock()
		return out, nil, nil
	}
	next := cur.Clone()
	next.Contracts = records.MergeContracts(next.Contracts, []records.DeployedContract{dc})
	next.Achievements = records.RecomputeAchievements(cur.Achievements, len(next.Contracts), s.nowMillis())
	next.LastUpdated = s.nowMillis()
	unlocked := records.NewlyUnlocked(cur.Achievements, next.Achievements)
	s.session[w] = next
	err := s.local.Put(w, next)
	s.mu.Unlock()

	if err != nil {
		return next.Clone(), unlocked, fmt.Errorf("writing local cache: %w", err)
	}
	s.log.WithFields(logrus.Fields{"wallet": w, "address": dc.Address, "contracts": len(next.Contracts)}).Info("deployment recorded")

	s.push(w)
	return next.Clone(), unlocked, nil
}

// RecordClick bumps the wallet's click counter.
func (s *Syncer) RecordClick(_ context.Context, wallet string) (int, error) {
	w := records.NormalizeWallet(wallet)

	s.mu.Lock()
	next := s.current(w).Clone()
	next.Clicks++
	next.LastUpdated = s.nowMillis()
	s.session[w] = next
	err := s.local.Put(w, next)
	s.mu.Unlock()

	if err != nil {
		return next.Clicks, fmt.Errorf("writing local cache: %w", err)
	}
	s.push(w)
	return next.Clicks, nil
}

// push writes the wallet's session state to the remote store in the
// background.
func (s *Syncer) push(w string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.pushNow(ctx, w); err != nil {
			s.log.WithField("wallet", w).WithError(err).Warn("remote push failed")
		}
	}()
}

func (s *Syncer) walletLock(w string) *gosync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.pushMu[w]
	if !ok {
		l = new(gosync.Mutex)
		s.pushMu[w] = l
	}
	return l
}

// pushNow reads the remote record, merges the session into it, writes the
// result and adopts the re-fetched record.
func (s *Syncer) pushNow(ctx context.Context, w string) error {
	l := s.walletLock(w)
	l.Lock()
	defer l.Unlock()

	remote, err := s.remote.Get(ctx, w)
	if err != nil {
		metrics.RemoteSync.WithLabelValues("push", metrics.ResultError).Inc()
		return fmt.Errorf("reading remote record: %w", err)
	}
	merged := combine(remote, s.Snapshot(w), s.nowMillis())
	if err := s.remote.Merge(ctx, w, pushPatch(remote, merged)); err != nil {
		metrics.RemoteSync.WithLabelValues("push", metrics.ResultError).Inc()
		return fmt.Errorf("writing remote record: %w", err)
	}
	metrics.RemoteSync.WithLabelValues("push", metrics.ResultOK).Inc()

	fresh, err := s.remote.Get(ctx, w)
	if err != nil {
		return fmt.Errorf("re-fetching remote record: %w", err)
	}
	s.adopt(w, fresh)
	return nil
}

// adopt folds the remote record into the session and the local cache.
// Contracts are merged by address, so nothing recorded locally is dropped.
func (s *Syncer) adopt(w string, remote *records.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := combine(remote, s.session[w], s.nowMillis())
	s.session[w] = rec
	if err := s.local.Put(w, rec); err != nil {
		s.log.WithField("wallet", w).WithError(err).Warn("writing local cache failed")
	}
}

// combine merges a session record into a remote one. Remote wins on
// conflicting contracts, unlocks are unioned, counters take the larger value
// and set-once fields keep the remote value when it has one.
func combine(remote, session *records.UserRecord, now int64) *records.UserRecord {
	out := remote.Clone()
	if session == nil {
		session = &records.UserRecord{}
	}
	out.Contracts = records.MergeContracts(remote.Contracts, session.Contracts)
	out.Achievements = records.RecomputeAchievements(
		records.MergeAchievements(out.Achievements, session.Achievements), len(out.Contracts), now)
	out.Clicks = max(out.Clicks, session.Clicks)
	out.ReferralPoints = max(out.ReferralPoints, session.ReferralPoints)
	out.LastUpdated = max(out.LastUpdated, session.LastUpdated)
	if out.ReferredBy == "" {
		out.ReferredBy = session.ReferredBy
	}
	if out.FID == "" {
		out.FID = session.FID
	}
	return out
}

// pushPatch writes contracts and achievements, plus the scalar fields that
// differ from what the remote already holds.
func pushPatch(remote, merged *records.UserRecord) records.Patch {
	p := records.SnapshotPatch(merged)
	if merged.Clicks == remote.Clicks {
		p.Clicks = nil
	}
	if merged.ReferralPoints == remote.ReferralPoints {
		p.ReferralPoints = nil
	}
	if merged.ReferredBy == remote.ReferredBy {
		p.ReferredBy = nil
	}
	if merged.FID == remote.FID {
		p.FID = nil
	}
	return p
}

// Wait blocks until every background push has finished.
func (s *Syncer) Wait() {
	s.wg.Wait()
}

// BackfillGas fills in gasSpent for contracts recorded without it, reading
// each receipt from getter. It returns how many entries were filled.
func (s *Syncer) BackfillGas(ctx context.Context, wallet string, getter chain.ReceiptGetter) (int, error) {
	w := records.NormalizeWallet(wallet)

	spent := make(map[string]string)
	for _, c := range s.Snapshot(w).Contracts {
		if c.GasSpent != "" || c.TxHash == "" {
			continue
		}
		r, err := getter.GetTransactionReceipt(ctx, c.TxHash)
		if err != nil {
			s.log.WithFields(logrus.Fields{"wallet": w, "tx_hash": c.TxHash}).WithError(err).Warn("receipt lookup failed")
			continue
		}
		if r == nil {
			continue
		}
		if g := r.GasSpent(); g != nil {
			spent[c.Key()] = g.String()
		}
	}
	if len(spent) == 0 {
		return 0, nil
	}

	// Applied to the current session so deployments recorded meanwhile stay.
	s.mu.Lock()
	next := s.current(w).Clone()
	filled := 0
	for i, c := range next.Contracts {
		if g, ok := spent[c.Key()]; ok && c.GasSpent == "" {
			next.Contracts[i].GasSpent = g
			filled++
		}
	}
	next.LastUpdated = s.nowMillis()
	s.session[w] = next
	err := s.local.Put(w, next)
	s.mu.Unlock()
	if err != nil {
		return filled, fmt.Errorf("writing local cache: %w", err)
	}
	if err := s.pushNow(ctx, w); err != nil {
		return filled, fmt.Errorf("pushing backfilled gas: %w", err)
	}
	return filled, nil
}

// Watch re-pulls the remote record every interval until ctx is done and
// calls onChange whenever it differs from the session copy.
func (s *Syncer) Watch(ctx context.Context, wallet string, interval time.Duration, onChange func(*records.UserRecord)) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrBadInterval, interval)
	}
	w := records.NormalizeWallet(wallet)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			remote, err := s.remote.Get(ctx, w)
			if err != nil {
				s.log.WithField("wallet", w).WithError(err).Debug("watch pull failed")
				continue
			}
			cur := s.Snapshot(w)
			if sameSummary(cur, combine(remote, cur, s.nowMillis())) {
				continue
			}
			s.adopt(w, remote)
			if onChange != nil {
				onChange(s.Snapshot(w))
			}
		}
	}
}

func sameSummary(a, b *records.UserRecord) bool {
	return len(a.Contracts) == len(b.Contracts) &&
		a.LastUpdated == b.LastUpdated &&
		a.Clicks == b.Clicks &&
		a.ReferralPoints == b.ReferralPoints &&
		len(records.Unlocked(a.Achievements)) == len(records.Unlocked(b.Achievements))
}

// Stats is the derived summary shown by `stats` and the resume card.
type Stats struct {
	Wallet         string                `json:"wallet"`
	Contracts      int                   `json:"contracts"`
	GasSpentWei    string                `json:"gasSpentWei"`
	GasSpentETH    string                `json:"gasSpentEth"`
	MissingGas     int                   `json:"missingGas"`
	Tier           string                `json:"tier"`
	Achievements   []records.Achievement `json:"achievements"`
	Rank           int                   `json:"rank"`
	ReferralPoints int                   `json:"referralPoints"`
	Clicks         int                   `json:"clicks"`
}

// ComputeStats derives Stats from a record and an optional leaderboard.
func ComputeStats(wallet string, rec *records.UserRecord, board []records.LeaderboardEntry) Stats {
	if rec == nil {
		rec = &records.UserRecord{}
	}
	gas, missing := records.TotalGasSpent(rec.Contracts)
	unlocked := records.Unlocked(rec.Achievements)
	if unlocked == nil {
		unlocked = []records.Achievement{}
	}
	return Stats{
		Wallet:         records.NormalizeWallet(wallet),
		Contracts:      len(rec.Contracts),
		GasSpentWei:    gas.String(),
		GasSpentETH:    chain.WeiToETH(new(big.Int).Set(gas)),
		MissingGas:     missing,
		Tier:           records.Tier(len(rec.Contracts)),
		Achievements:   unlocked,
		Rank:           records.RankOf(board, wallet),
		ReferralPoints: rec.ReferralPoints,
		Clicks:         rec.Clicks,
	}
}

// Stats summarises the wallet's session record. The leaderboard rank is 0
// when the remote store cannot be listed.
func (s *Syncer) Stats(ctx context.Context, wallet string) Stats {
	rec := s.Snapshot(wallet)
	var board []records.LeaderboardEntry
	if all, err := s.remote.All(ctx); err == nil {
		all[records.NormalizeWallet(wallet)] = rec
		board = records.Leaderboard(all)
	} else {
		s.log.WithError(err).Debug("listing records for rank failed")
	}
	return ComputeStats(wallet, rec, board)
}
