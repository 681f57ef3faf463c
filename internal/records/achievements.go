package records

import "slices"

// Achievement is a catalog entry plus its unlock state for one wallet.
type Achievement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Milestone   int    `json:"milestone"`
	Unlocked    bool   `json:"unlocked"`
	UnlockedAt  int64  `json:"unlockedAt,omitempty"` // unix milliseconds
}

var catalog = []Achievement{
	{ID: "first-deploy", Name: "First Deploy", Description: "Deploy your first contract", Milestone: 1},
	{ID: "deploy-5", Name: "Getting Started", Description: "Deploy 5 contracts", Milestone: 5},
	{ID: "deploy-10", Name: "Builder", Description: "Deploy 10 contracts", Milestone: 10},
	{ID: "deploy-25", Name: "Power Builder", Description: "Deploy 25 contracts", Milestone: 25},
	{ID: "deploy-50", Name: "Contract Factory", Description: "Deploy 50 contracts", Milestone: 50},
	{ID: "deploy-100", Name: "Centurion", Description: "Deploy 100 contracts", Milestone: 100},
}

// Catalog returns a fresh, all-locked copy of the achievement catalog ordered
// by milestone.
func Catalog() []Achievement {
	out := make([]Achievement, len(catalog))
	copy(out, catalog)
	return out
}

// RecomputeAchievements returns the achievement set for count contracts.
// Entries in prev keep their unlock state; anything whose milestone is reached
// and that is still locked flips to unlocked at now (unix ms). Unlocked entries
// never revert, so the function is monotonic in count and idempotent.
func RecomputeAchievements(prev []Achievement, count int, now int64) []Achievement {
	state := make(map[string]Achievement, len(prev))
	for _, a := range prev {
		state[a.ID] = a
	}

	out := Catalog()
	for i := range out {
		if p, ok := state[out[i].ID]; ok && p.Unlocked {
			out[i].Unlocked = true
			out[i].UnlockedAt = p.UnlockedAt
			continue
		}
		if count >= out[i].Milestone {
			out[i].Unlocked = true
			out[i].UnlockedAt = now
		}
	}
	return out
}

// MergeAchievements unions the unlock state of a and b. An entry unlocked on
// either side stays unlocked with the earliest known unlock time.
func MergeAchievements(a, b []Achievement) []Achievement {
	byID := make(map[string]Achievement, len(a)+len(b))
	order := make([]string, 0, len(a)+len(b))
	for _, x := range slices.Concat(a, b) {
		cur, ok := byID[x.ID]
		if !ok {
			order = append(order, x.ID)
			byID[x.ID] = x
			continue
		}
		switch {
		case x.Unlocked && !cur.Unlocked:
			byID[x.ID] = x
		case x.Unlocked && cur.Unlocked && x.UnlockedAt != 0 && (cur.UnlockedAt == 0 || x.UnlockedAt < cur.UnlockedAt):
			cur.UnlockedAt = x.UnlockedAt
			byID[x.ID] = cur
		}
	}
	out := make([]Achievement, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// Earned drops entries that are unknown to the catalog or claim an unlock
// the contract count has not reached.
func Earned(as []Achievement, count int) []Achievement {
	milestones := make(map[string]int)
	for _, c := range Catalog() {
		milestones[c.ID] = c.Milestone
	}
	var out []Achievement
	for _, a := range as {
		m, ok := milestones[a.ID]
		if !ok || !a.Unlocked || count < m {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Unlocked filters to the unlocked entries.
func Unlocked(as []Achievement) []Achievement {
	var out []Achievement
	for _, a := range as {
		if a.Unlocked {
			out = append(out, a)
		}
	}
	return out
}

// NewlyUnlocked lists achievements unlocked in next but not in prev.
func NewlyUnlocked(prev, next []Achievement) []Achievement {
	was := make(map[string]bool, len(prev))
	for _, a := range prev {
		was[a.ID] = a.Unlocked
	}
	var out []Achievement
	for _, a := range next {
		if a.Unlocked && !was[a.ID] {
			out = append(out, a)
		}
	}
	return out
}
