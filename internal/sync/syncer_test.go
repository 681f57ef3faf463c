package sync

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Mohsinsiddi/w3deploy/internal/chain"
	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"github.com/Mohsinsiddi/w3deploy/internal/records"
	"github.com/Mohsinsiddi/w3deploy/internal/store"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

const wallet = "0xAAAA00000000000000000000000000000000aaaa"

var ctx = context.Background()

func contractN(i int) records.DeployedContract {
	return records.DeployedContract{
		Address:      fmt.Sprintf("0x%040x", i),
		ContractType: "counter",
		ContractName: "Counter",
		TxHash:       fmt.Sprintf("0x%064x", i),
		Timestamp:    int64(1000 + i),
	}
}

func contracts(ids ...int) []records.DeployedContract {
	out := make([]records.DeployedContract, len(ids))
	for i, id := range ids {
		out[i] = contractN(id)
	}
	return out
}

func testSyncer(t *testing.T, remote store.Store) (*Syncer, *LocalCache) {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	local := NewLocalCache(cfg)
	log, _ := test.NewNullLogger()
	s := New(remote, local,
		WithLogger(log),
		WithClock(func() time.Time { return time.UnixMilli(1_700_000_000_000) }),
		WithRemoteTimeout(time.Second),
	)
	return s, local
}

type brokenStore struct{ store.Store }

func (brokenStore) Get(context.Context, string) (*records.UserRecord, error) {
	return nil, errors.New("firestore down")
}

func (brokenStore) Merge(context.Context, string, records.Patch) error {
	return errors.New("firestore down")
}

func (brokenStore) All(context.Context) (map[string]*records.UserRecord, error) {
	return nil, errors.New("firestore down")
}

// gatedStore holds the first Merge until release is closed.
type gatedStore struct {
	*store.MemoryStore
	once    gosync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		MemoryStore: store.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (g *gatedStore) Merge(ctx context.Context, w string, p records.Patch) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.MemoryStore.Merge(ctx, w, p)
}

// flakyStore fails reads while down is set.
type flakyStore struct {
	*store.MemoryStore
	down atomic.Bool
}

func (f *flakyStore) Get(ctx context.Context, w string) (*records.UserRecord, error) {
	if f.down.Load() {
		return nil, errors.New("connection refused")
	}
	return f.MemoryStore.Get(ctx, w)
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestLoadMergesRemoteAndLocal(t *testing.T) {
	remote := store.NewMemoryStore()
	require.NoError(t, remote.Merge(ctx, wallet, records.Patch{Contracts: contracts(1, 2, 3, 4, 5)}))

	s, local := testSyncer(t, remote)
	require.NoError(t, local.Put(wallet, &records.UserRecord{Contracts: contracts(5, 6, 7), LastUpdated: 1}))

	rec, err := s.Load(ctx, wallet)
	require.NoError(t, err)
	assert.Len(t, rec.Contracts, 7)
	s.Wait()

	// Local-only contracts are pushed up.
	got, err := remote.Get(ctx, wallet)
	require.NoError(t, err)
	assert.Len(t, got.Contracts, 7)
}

func TestLoadRemoteWinsOnConflict(t *testing.T) {
	remoteVersion := contractN(1)
	remoteVersion.GasSpent = "42"
	remote := store.NewMemoryStore()
	require.NoError(t, remote.Merge(ctx, wallet, records.Patch{Contracts: []records.DeployedContract{remoteVersion}}))

	s, local := testSyncer(t, remote)
	localVersion := contractN(1)
	localVersion.GasSpent = "7"
	require.NoError(t, local.Put(wallet, &records.UserRecord{Contracts: []records.DeployedContract{localVersion}}))

	rec, err := s.Load(ctx, wallet)
	require.NoError(t, err)
	require.Len(t, rec.Contracts, 1)
	assert.Equal(t, "42", rec.Contracts[0].GasSpent)
}

func TestLoadSeedsEmptyRemoteFromLocal(t *testing.T) {
	remote := store.NewMemoryStore()
	s, local := testSyncer(t, remote)
	require.NoError(t, local.Put(wallet, &records.UserRecord{Contracts: contracts(1, 2), Clicks: 4}))

	rec, err := s.Load(ctx, wallet)
	require.NoError(t, err)
	assert.Len(t, rec.Contracts, 2)
	assert.True(t, rec.Achievements[0].Unlocked)
	s.Wait()

	got, err := remote.Get(ctx, wallet)
	require.NoError(t, err)
	assert.Len(t, got.Contracts, 2)
	assert.Equal(t, 4, got.Clicks)
}

func TestLoadEmptyEverywhere(t *testing.T) {
	s, _ := testSyncer(t, store.NewMemoryStore())
	rec, err := s.Load(ctx, wallet)
	require.NoError(t, err)
	assert.Empty(t, rec.Contracts)
	assert.Len(t, rec.Achievements, len(records.Catalog()))
	assert.Empty(t, records.Unlocked(rec.Achievements))
}

func TestLoadFallsBackWhenRemoteDown(t *testing.T) {
	s, local := testSyncer(t, brokenStore{})
	require.NoError(t, local.Put(wallet, &records.UserRecord{Contracts: contracts(1)}))

	rec, err := s.Load(ctx, wallet)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
	require.NotNil(t, rec)
	assert.Len(t, rec.Contracts, 1)
}

// ---------------------------------------------------------------------------
// RecordDeployment
// ---------------------------------------------------------------------------

func TestRecordDeploymentIncrementsByOne(t *testing.T) {
	remote := store.NewMemoryStore()
	s, local := testSyncer(t, remote)
	_, err := s.Load(ctx, wallet)
	require.NoError(t, err)

	rec, unlocked, err := s.RecordDeployment(ctx, wallet, contractN(1))
	require.NoError(t, err)
	assert.Len(t, rec.Contracts, 1)
	require.Len(t, unlocked, 1)
	assert.Equal(t, "first-deploy", unlocked[0].ID)

	// Local cache is written before RecordDeployment returns.
	cached, err := local.Get(wallet)
	require.NoError(t, err)
	assert.Len(t, cached.Contracts, 1)

	s.Wait()
	got, err := remote.Get(ctx, wallet)
	require.NoError(t, err)
	assert.Len(t, got.Contracts, 1)
	assert.True(t, got.Achievements[0].Unlocked)
}

func TestRecordDeploymentIsIdempotentOnAddress(t *testing.T) {
	s, _ := testSyncer(t, store.NewMemoryStore())

	_, _, err := s.RecordDeployment(ctx, wallet, contractN(1))
	require.NoError(t, err)

	dup := contractN(1)
	dup.Address = "0x" + fmt.Sprintf("%040X", 1)
	rec, unlocked, err := s.RecordDeployment(ctx, wallet, dup)
	require.NoError(t, err)
	assert.Len(t, rec.Contracts, 1)
	assert.Empty(t, unlocked)
	s.Wait()
}

func TestRecordDeploymentUnlocksMilestones(t *testing.T) {
	s, _ := testSyncer(t, store.NewMemoryStore())
	var all []records.Achievement
	for i := 1; i <= 5; i++ {
		_, unlocked, err := s.RecordDeployment(ctx, wallet, contractN(i))
		require.NoError(t, err)
		all = append(all, unlocked...)
		s.Wait()
	}
	require.Len(t, all, 2)
	assert.Equal(t, "deploy-5", all[1].ID)
}

func TestRecordDeploymentPushFailureKeepsLocal(t *testing.T) {
	s, local := testSyncer(t, brokenStore{})
	rec, _, err := s.RecordDeployment(ctx, wallet, contractN(1))
	require.NoError(t, err)
	s.Wait()

	assert.Len(t, rec.Contracts, 1)
	cached, err := local.Get(wallet)
	require.NoError(t, err)
	assert.Len(t, cached.Contracts, 1)
	assert.Len(t, s.Snapshot(wallet).Contracts, 1)
}

func TestRemoteStateIsAdoptedAfterPush(t *testing.T) {
	remote := store.NewMemoryStore()
	s, _ := testSyncer(t, remote)

	// Another device wrote referral points the session has not seen.
	require.NoError(t, remote.Merge(ctx, wallet, records.Patch{ReferralPoints: ptr(300)}))

	_, _, err := s.RecordDeployment(ctx, wallet, contractN(1))
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, 300, s.Snapshot(wallet).ReferralPoints)
}

func TestSlowFirstPushKeepsBothDeployments(t *testing.T) {
	remote := newGatedStore()
	s, local := testSyncer(t, remote)

	_, _, err := s.RecordDeployment(ctx, wallet, contractN(1))
	require.NoError(t, err)
	select {
	case <-remote.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first push never reached the store")
	}

	_, _, err = s.RecordDeployment(ctx, wallet, contractN(2))
	require.NoError(t, err)
	close(remote.release)
	s.Wait()

	got, err := remote.Get(ctx, wallet)
	require.NoError(t, err)
	assert.Len(t, got.Contracts, 2, "remote")
	assert.Len(t, s.Snapshot(wallet).Contracts, 2, "session")
	cached, err := local.Get(wallet)
	require.NoError(t, err)
	assert.Len(t, cached.Contracts, 2, "local cache")
}

func TestPushAfterOutageKeepsRemoteContracts(t *testing.T) {
	remote := &flakyStore{MemoryStore: store.NewMemoryStore()}
	require.NoError(t, remote.Merge(ctx, wallet, records.Patch{Contracts: contracts(1, 2)}))
	s, local := testSyncer(t, remote)
	require.NoError(t, local.Put(wallet, &records.UserRecord{Contracts: contracts(3)}))

	remote.down.Store(true)
	rec, err := s.Load(ctx, wallet)
	require.ErrorIs(t, err, ErrRemoteUnavailable)
	require.Len(t, rec.Contracts, 1)

	remote.down.Store(false)
	_, _, err = s.RecordDeployment(ctx, wallet, contractN(4))
	require.NoError(t, err)
	s.Wait()

	got, err := remote.Get(ctx, wallet)
	require.NoError(t, err)
	assert.Len(t, got.Contracts, 4)
	assert.Len(t, s.Snapshot(wallet).Contracts, 4)
	assert.True(t, s.Snapshot(wallet).Achievements[0].Unlocked)
}

func TestAdoptKeepsUnpushedLocalContracts(t *testing.T) {
	remote := store.NewMemoryStore()
	s, _ := testSyncer(t, remote)
	_, _, err := s.RecordDeployment(ctx, wallet, contractN(1))
	require.NoError(t, err)
	s.Wait()

	// A re-fetch that predates the deployment must not erase it.
	s.adopt(wallet, &records.UserRecord{Contracts: contracts(9)})
	assert.Len(t, s.Snapshot(wallet).Contracts, 2)
}

func TestPushPatchOnlyWritesChangedScalars(t *testing.T) {
	remote := &records.UserRecord{Clicks: 3, ReferralPoints: 100, FID: "42"}
	merged := &records.UserRecord{Clicks: 4, ReferralPoints: 100, FID: "42", Contracts: contracts(1)}

	p := pushPatch(remote, merged)
	require.NotNil(t, p.Clicks)
	assert.Equal(t, 4, *p.Clicks)
	assert.Nil(t, p.ReferralPoints)
	assert.Nil(t, p.FID)
	assert.Nil(t, p.ReferredBy)
	assert.Len(t, p.Contracts, 1)
}

func TestRecordClick(t *testing.T) {
	remote := store.NewMemoryStore()
	s, _ := testSyncer(t, remote)

	n, err := s.RecordClick(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	s.Wait()
	n, err = s.RecordClick(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	s.Wait()

	got, err := remote.Get(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Clicks)
}

// ---------------------------------------------------------------------------
// BackfillGas / Watch / Stats
// ---------------------------------------------------------------------------

type receiptMap map[string]*chain.Receipt

func (m receiptMap) GetTransactionReceipt(_ context.Context, hash string) (*chain.Receipt, error) {
	return m[hash], nil
}

func TestBackfillGas(t *testing.T) {
	remote := store.NewMemoryStore()
	s, _ := testSyncer(t, remote)
	withGas := contractN(2)
	withGas.GasSpent = "5"
	require.NoError(t, remote.Merge(ctx, wallet, records.Patch{Contracts: []records.DeployedContract{contractN(1), withGas}}))
	_, err := s.Load(ctx, wallet)
	require.NoError(t, err)

	receipts := receiptMap{
		contractN(1).TxHash: {Status: 1, GasUsed: big.NewInt(100_000), EffectiveGasPrice: big.NewInt(3_000_000_000)},
	}
	filled, err := s.BackfillGas(ctx, wallet, receipts)
	require.NoError(t, err)
	assert.Equal(t, 1, filled)

	got, err := remote.Get(ctx, wallet)
	require.NoError(t, err)
	total, missing := records.TotalGasSpent(got.Contracts)
	assert.Equal(t, "300000000000005", total.String())
	assert.Zero(t, missing)
}

func TestBackfillGasOverRemoteOnlyContract(t *testing.T) {
	remote := store.NewMemoryStore()
	s, _ := testSyncer(t, remote)
	_, _, err := s.RecordDeployment(ctx, wallet, contractN(1))
	require.NoError(t, err)
	s.Wait()

	// Another device added contract 2 after our last pull.
	cur, err := remote.Get(ctx, wallet)
	require.NoError(t, err)
	require.NoError(t, remote.Merge(ctx, wallet, records.Patch{Contracts: append(cur.Contracts, contractN(2))}))

	receipts := receiptMap{
		contractN(1).TxHash: {Status: 1, GasUsed: big.NewInt(21_000), EffectiveGasPrice: big.NewInt(1)},
	}
	filled, err := s.BackfillGas(ctx, wallet, receipts)
	require.NoError(t, err)
	assert.Equal(t, 1, filled)

	got, err := remote.Get(ctx, wallet)
	require.NoError(t, err)
	assert.Len(t, got.Contracts, 2)
	total, _ := records.TotalGasSpent(got.Contracts)
	assert.Equal(t, "21000", total.String())
}

func TestWatchRejectsNonPositiveInterval(t *testing.T) {
	s, _ := testSyncer(t, store.NewMemoryStore())
	assert.ErrorIs(t, s.Watch(ctx, wallet, 0, nil), ErrBadInterval)
	assert.ErrorIs(t, s.Watch(ctx, wallet, -time.Second, nil), ErrBadInterval)
}

func TestWatchAdoptsRemoteChanges(t *testing.T) {
	remote := store.NewMemoryStore()
	s, _ := testSyncer(t, remote)
	_, err := s.Load(ctx, wallet)
	require.NoError(t, err)

	require.NoError(t, remote.Merge(ctx, wallet, records.Patch{Contracts: contracts(1, 2), LastUpdated: 99}))

	wctx, cancel := context.WithCancel(ctx)
	changed := make(chan *records.UserRecord, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(wctx, wallet, 5*time.Millisecond, func(r *records.UserRecord) {
			select {
			case changed <- r:
			default:
			}
		})
	}()

	select {
	case r := <-changed:
		assert.Len(t, r.Contracts, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("watch never reported the remote change")
	}
	cancel()
	assert.NoError(t, <-done)
}

func TestStats(t *testing.T) {
	remote := store.NewMemoryStore()
	require.NoError(t, remote.Merge(ctx, "0xbbbb", records.Patch{Contracts: contracts(10, 11, 12)}))
	s, _ := testSyncer(t, remote)

	c := contractN(1)
	c.GasSpent = "1000000000000000000"
	_, _, err := s.RecordDeployment(ctx, wallet, c)
	require.NoError(t, err)
	s.Wait()

	st := s.Stats(ctx, wallet)
	assert.Equal(t, 1, st.Contracts)
	assert.Equal(t, "1000000000000000000", st.GasSpentWei)
	assert.Contains(t, st.GasSpentETH, "1.0")
	assert.Equal(t, "Deployer", st.Tier)
	assert.Equal(t, 2, st.Rank)
	assert.Len(t, st.Achievements, 1)
}

func TestStatsWithoutRemote(t *testing.T) {
	s, _ := testSyncer(t, brokenStore{})
	st := s.Stats(ctx, wallet)
	assert.Zero(t, st.Rank)
	assert.Equal(t, "Newcomer", st.Tier)
	assert.NotNil(t, st.Achievements)
}

func ptr[T any](v T) *T { return &v }
