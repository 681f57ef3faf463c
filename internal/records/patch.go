package records

import (
	"encoding/json"
	"fmt"
)

// Patch is a partial update of a UserRecord. Only the fields that are set are
// written; each one replaces the stored top-level field wholesale, which is
// how the record store's merge-on-write behaves.
type Patch struct {
	Contracts      []DeployedContract
	Achievements   []Achievement
	ReferralPoints *int
	Clicks         *int
	ReferredBy     *string
	FID            *string
	LastUpdated    int64
}

// Top-level field names, shared with the stores.
const (
	FieldContracts      = "contracts"
	FieldAchievements   = "achievements"
	FieldReferralPoints = "referralPoints"
	FieldClicks         = "clicks"
	FieldReferredBy     = "referredBy"
	FieldFID            = "fid"
	FieldLastUpdated    = "lastUpdated"
)

// SnapshotPatch returns a patch that writes every field of r.
func SnapshotPatch(r *UserRecord) Patch {
	p := Patch{
		Contracts:      nonNil(r.Contracts),
		Achievements:   nonNilAch(r.Achievements),
		ReferralPoints: ptr(r.ReferralPoints),
		Clicks:         ptr(r.Clicks),
		LastUpdated:    r.LastUpdated,
	}
	if r.ReferredBy != "" {
		p.ReferredBy = ptr(r.ReferredBy)
	}
	if r.FID != "" {
		p.FID = ptr(r.FID)
	}
	return p
}

// Apply returns a copy of r with p's fields written over it.
func (r *UserRecord) Apply(p Patch) *UserRecord {
	out := r.Clone()
	if p.Contracts != nil {
		out.Contracts = append([]DeployedContract(nil), p.Contracts...)
	}
	if p.Achievements != nil {
		out.Achievements = append([]Achievement(nil), p.Achievements...)
	}
	if p.ReferralPoints != nil {
		out.ReferralPoints = *p.ReferralPoints
	}
	if p.Clicks != nil {
		out.Clicks = *p.Clicks
	}
	if p.ReferredBy != nil {
		out.ReferredBy = *p.ReferredBy
	}
	if p.FID != nil {
		out.FID = *p.FID
	}
	if p.LastUpdated != 0 {
		out.LastUpdated = p.LastUpdated
	}
	return out
}

// Fields returns the set fields keyed by their JSON name.
func (p Patch) Fields() map[string]any {
	m := make(map[string]any)
	if p.Contracts != nil {
		m[FieldContracts] = p.Contracts
	}
	if p.Achievements != nil {
		m[FieldAchievements] = p.Achievements
	}
	if p.ReferralPoints != nil {
		m[FieldReferralPoints] = *p.ReferralPoints
	}
	if p.Clicks != nil {
		m[FieldClicks] = *p.Clicks
	}
	if p.ReferredBy != nil {
		m[FieldReferredBy] = *p.ReferredBy
	}
	if p.FID != nil {
		m[FieldFID] = *p.FID
	}
	if p.LastUpdated != 0 {
		m[FieldLastUpdated] = p.LastUpdated
	}
	return m
}

// MarshalJSON encodes only the set fields.
func (p Patch) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Fields())
}

// FromFields rebuilds a record from per-field JSON values, as stored by
// backends that keep one entry per top-level field.
func FromFields(fields map[string]string) (*UserRecord, error) {
	r := &UserRecord{}
	targets := map[string]any{
		FieldContracts:      &r.Contracts,
		FieldAchievements:   &r.Achievements,
		FieldReferralPoints: &r.ReferralPoints,
		FieldClicks:         &r.Clicks,
		FieldReferredBy:     &r.ReferredBy,
		FieldFID:            &r.FID,
		FieldLastUpdated:    &r.LastUpdated,
	}
	for name, raw := range fields {
		dst, ok := targets[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return nil, fmt.Errorf("decoding field %s: %w", name, err)
		}
	}
	return r, nil
}

func ptr[T any](v T) *T { return &v }

func nonNil(cs []DeployedContract) []DeployedContract {
	if cs == nil {
		return []DeployedContract{}
	}
	return cs
}

func nonNilAch(as []Achievement) []Achievement {
	if as == nil {
		return []Achievement{}
	}
	return as
}
