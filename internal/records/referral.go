package records

import "slices"

// ReferralRecord tracks a referrer's credited members, keyed by FID.
type ReferralRecord struct {
	FID                 string   `json:"fid"`
	ReferralCount       int      `json:"referralCount"`
	TotalPoints         int      `json:"totalPoints"`
	ReferredUsers       []string `json:"referredUsers"`
	HasDeployedContract bool     `json:"hasDeployedContract"`
	Wallet              string   `json:"wallet,omitempty"`
	LastUpdated         int64    `json:"lastUpdated"`
}

// HasReferred reports whether fid is already in the referred set.
func (r *ReferralRecord) HasReferred(fid string) bool {
	return slices.Contains(r.ReferredUsers, fid)
}

// Clone returns a deep copy of r.
func (r *ReferralRecord) Clone() *ReferralRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.ReferredUsers = slices.Clone(r.ReferredUsers)
	return &c
}
