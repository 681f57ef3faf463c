package records

import (
	"math/big"
	"slices"
	"strings"
)

// LeaderboardEntry is one ranked wallet.
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	Wallet    string `json:"wallet"`
	Contracts int    `json:"contracts"`
	GasSpent  string `json:"gasSpent"`
	Tier      string `json:"tier"`
}

// Leaderboard ranks wallets by contract count desc, then total gas desc, then
// wallet address asc. Wallets with no contracts are left out.
func Leaderboard(all map[string]*UserRecord) []LeaderboardEntry {
	type row struct {
		wallet string
		count  int
		gas    *big.Int
	}
	rows := make([]row, 0, len(all))
	for wallet, rec := range all {
		if rec.IsEmpty() {
			continue
		}
		gas, _ := TotalGasSpent(rec.Contracts)
		rows = append(rows, row{wallet: strings.ToLower(wallet), count: len(rec.Contracts), gas: gas})
	}
	slices.SortFunc(rows, func(a, b row) int {
		if a.count != b.count {
			return b.count - a.count
		}
		if c := b.gas.Cmp(a.gas); c != 0 {
			return c
		}
		return strings.Compare(a.wallet, b.wallet)
	})

	out := make([]LeaderboardEntry, len(rows))
	for i, r := range rows {
		out[i] = LeaderboardEntry{
			Rank:      i + 1,
			Wallet:    r.wallet,
			Contracts: r.count,
			GasSpent:  r.gas.String(),
			Tier:      Tier(r.count),
		}
	}
	return out
}

// RankOf returns the 1-based rank of wallet, or 0 if it is not on the board.
func RankOf(board []LeaderboardEntry, wallet string) int {
	w := strings.ToLower(wallet)
	for _, e := range board {
		if e.Wallet == w {
			return e.Rank
		}
	}
	return 0
}
