package records_test

import (
	"encoding/json"
	"testing"

	"github.com/Mohsinsiddi/w3deploy/internal/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonMarshal(v any) ([]byte, error) { return json.Marshal(v) }

func unlockedIDs(as []records.Achievement) map[string]bool {
	m := map[string]bool{}
	for _, a := range records.Unlocked(as) {
		m[a.ID] = true
	}
	return m
}

func TestCatalogMilestones(t *testing.T) {
	var milestones []int
	for _, a := range records.Catalog() {
		milestones = append(milestones, a.Milestone)
		assert.False(t, a.Unlocked)
	}
	assert.Equal(t, []int{1, 5, 10, 25, 50, 100}, milestones)
}

func TestRecomputeUnlocksReachedMilestones(t *testing.T) {
	got := records.RecomputeAchievements(nil, 5, 1000)
	ids := unlockedIDs(got)
	assert.True(t, ids["first-deploy"])
	assert.True(t, ids["deploy-5"])
	assert.False(t, ids["deploy-10"])
	for _, a := range records.Unlocked(got) {
		assert.Equal(t, int64(1000), a.UnlockedAt)
	}
}

func TestRecomputeIdempotent(t *testing.T) {
	once := records.RecomputeAchievements(nil, 10, 1000)
	twice := records.RecomputeAchievements(once, 10, 2000)
	assert.Equal(t, once, twice, "second run must not touch unlockedAt")
}

func TestRecomputeMonotonicInCount(t *testing.T) {
	for c1 := 0; c1 <= 120; c1++ {
		for _, c2 := range []int{c1, c1 + 1, c1 + 4, c1 + 50} {
			low := unlockedIDs(records.RecomputeAchievements(nil, c1, 1))
			high := unlockedIDs(records.RecomputeAchievements(nil, c2, 1))
			for id := range low {
				assert.True(t, high[id], "%s unlocked at %d but not at %d", id, c1, c2)
			}
		}
	}
}

func TestRecomputeNeverRelocks(t *testing.T) {
	prev := records.RecomputeAchievements(nil, 25, 1000)
	// Count drops, e.g. a remote record that lost contracts: nothing relocks.
	got := records.RecomputeAchievements(prev, 0, 2000)
	assert.Equal(t, unlockedIDs(prev), unlockedIDs(got))
}

func TestNewlyUnlocked(t *testing.T) {
	prev := records.RecomputeAchievements(nil, 4, 1)
	next := records.RecomputeAchievements(prev, 5, 2)

	fresh := records.NewlyUnlocked(prev, next)
	require.Len(t, fresh, 1)
	assert.Equal(t, "deploy-5", fresh[0].ID)
	assert.Empty(t, records.NewlyUnlocked(next, next))
}

func TestMergeAchievementsUnionsUnlocks(t *testing.T) {
	a := records.RecomputeAchievements(nil, 1, 3000)
	b := records.RecomputeAchievements(nil, 5, 2000)

	got := records.MergeAchievements(a, b)
	require.Len(t, got, len(records.Catalog()))
	ids := unlockedIDs(got)
	assert.True(t, ids["first-deploy"])
	assert.True(t, ids["deploy-5"])
	assert.False(t, ids["deploy-10"])
	assert.Equal(t, "first-deploy", got[0].ID)
	assert.Equal(t, int64(2000), got[0].UnlockedAt, "earliest unlock time wins")
}

func TestEarnedDropsUnreachedAndUnknown(t *testing.T) {
	claimed := []records.Achievement{
		{ID: "first-deploy", Unlocked: true, UnlockedAt: 10},
		{ID: "deploy-100", Unlocked: true, UnlockedAt: 10},
		{ID: "made-up", Unlocked: true},
		{ID: "deploy-5", Unlocked: false},
	}

	got := records.Earned(claimed, 3)
	require.Len(t, got, 1)
	assert.Equal(t, "first-deploy", got[0].ID)
	assert.Equal(t, int64(10), got[0].UnlockedAt)
	assert.Empty(t, records.Earned(claimed, 0))
}
