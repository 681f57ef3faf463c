// Package records holds the per-wallet deployment record model and the pure
// functions that derive achievements, merges and rankings from it.
package records

import (
	"math/big"
	"slices"
	"strings"
	"time"
)

// DeployedContract is one successful on-chain deployment.
type DeployedContract struct {
	Address      string `json:"address"`
	ContractType string `json:"contractType"`
	ContractName string `json:"contractName"`
	TxHash       string `json:"txHash"`
	Timestamp    int64  `json:"timestamp"` // unix milliseconds
	InputValue   string `json:"inputValue,omitempty"`
	GasSpent     string `json:"gasSpent,omitempty"` // decimal wei
}

// Key is the merge key of a contract: its lowercase address.
func (d DeployedContract) Key() string {
	return strings.ToLower(d.Address)
}

// Time returns the deployment time.
func (d DeployedContract) Time() time.Time {
	return time.UnixMilli(d.Timestamp)
}

// UserRecord is the persisted envelope for a wallet.
type UserRecord struct {
	Contracts      []DeployedContract `json:"contracts"`
	Achievements   []Achievement      `json:"achievements"`
	ReferralPoints int                `json:"referralPoints"`
	Clicks         int                `json:"clicks"`
	ReferredBy     string             `json:"referredBy,omitempty"`
	LastUpdated    int64              `json:"lastUpdated"`
	FID            string             `json:"fid,omitempty"`
}

// IsEmpty reports whether the record has no contracts.
func (r *UserRecord) IsEmpty() bool {
	return r == nil || len(r.Contracts) == 0
}

// Clone returns a deep copy of r.
func (r *UserRecord) Clone() *UserRecord {
	if r == nil {
		return &UserRecord{}
	}
	c := *r
	c.Contracts = slices.Clone(r.Contracts)
	c.Achievements = slices.Clone(r.Achievements)
	return &c
}

// HasContract reports whether addr is already in the record.
func (r *UserRecord) HasContract(addr string) bool {
	key := strings.ToLower(addr)
	return slices.ContainsFunc(r.Contracts, func(d DeployedContract) bool { return d.Key() == key })
}

// NormalizeWallet lowercases a wallet address for use as a store key.
func NormalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

// MergeContracts merges two contract sets keyed by lowercase address. Entries
// from remote replace local entries with the same address, except that a
// gasSpent known only locally is kept. The result is sorted newest first.
func MergeContracts(remote, local []DeployedContract) []DeployedContract {
	byAddr := make(map[string]DeployedContract, len(remote)+len(local))
	for _, c := range local {
		c.Address = c.Key()
		byAddr[c.Address] = c
	}
	for _, c := range remote {
		c.Address = c.Key()
		if prev, ok := byAddr[c.Address]; ok && c.GasSpent == "" {
			c.GasSpent = prev.GasSpent
		}
		byAddr[c.Address] = c
	}
	out := make([]DeployedContract, 0, len(byAddr))
	for _, c := range byAddr {
		out = append(out, c)
	}
	SortByTimestamp(out)
	return out
}

// SortByTimestamp sorts newest first; ties break on address so the order is
// deterministic.
func SortByTimestamp(cs []DeployedContract) {
	slices.SortFunc(cs, func(a, b DeployedContract) int {
		if a.Timestamp != b.Timestamp {
			if a.Timestamp > b.Timestamp {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Address, b.Address)
	})
}

// TotalGasSpent sums gasSpent across contracts. Entries with no or malformed
// gasSpent are skipped and counted in missing.
func TotalGasSpent(cs []DeployedContract) (total *big.Int, missing int) {
	total = new(big.Int)
	for _, c := range cs {
		if c.GasSpent == "" {
			missing++
			continue
		}
		v, ok := new(big.Int).SetString(c.GasSpent, 10)
		if !ok {
			missing++
			continue
		}
		total.Add(total, v)
	}
	return total, missing
}

// Tier names the builder level for a contract count.
func Tier(count int) string {
	switch {
	case count >= 100:
		return "Legend"
	case count >= 50:
		return "Architect"
	case count >= 25:
		return "Master Builder"
	case count >= 10:
		return "Builder"
	case count >= 5:
		return "Apprentice"
	case count >= 1:
		return "Deployer"
	default:
		return "Newcomer"
	}
}
