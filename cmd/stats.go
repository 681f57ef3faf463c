package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Mohsinsiddi/w3deploy/internal/api"
	"github.com/Mohsinsiddi/w3deploy/internal/price"
	"github.com/Mohsinsiddi/w3deploy/internal/records"
	"github.com/Mohsinsiddi/w3deploy/internal/referral"
	"github.com/Mohsinsiddi/w3deploy/internal/store"
	"github.com/Mohsinsiddi/w3deploy/internal/ui"
	"github.com/spf13/cobra"
)

var (
	statsWallet  string
	statsNetwork string

	resumeWallet string
	resumeJSON   bool

	leaderboardLimit int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show deployment stats for a wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := resolveAddress(statsWallet)
		if err != nil {
			return err
		}
		c, err := resolveChain(statsNetwork)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		syncer, backend, err := openSyncer(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		spin := ui.NewSpinner("Computing stats...")
		spin.Start()
		_, err = syncer.Load(ctx, addr)
		if err != nil && warnRemote(err) != nil {
			spin.Stop()
			return err
		}
		st := syncer.Stats(ctx, addr)
		gasValue := ""
		if q, err := newPriceQuoter(backend).Quote(ctx, c.Name); err == nil {
			gasValue = fiatValue(st.GasSpentETH, q)
		} else {
			log.WithError(err).Debug("price lookup failed")
		}
		spin.Stop()
		syncer.Wait()

		rank := "-"
		if st.Rank > 0 {
			rank = fmt.Sprintf("#%d", st.Rank)
		}
		gas := ui.FormatWei(st.GasSpentWei) + " ETH"
		if gasValue != "" {
			gas += ui.Meta(" ≈ " + gasValue)
		}
		if st.MissingGas > 0 {
			gas += ui.Meta(fmt.Sprintf(" (%d without gas data, run `w3deploy backfill`)", st.MissingGas))
		}
		pairs := [][2]string{
			{"Wallet", ui.Addr(st.Wallet)},
			{"Contracts", fmt.Sprintf("%d", st.Contracts)},
			{"Tier", st.Tier},
			{"Gas spent", gas},
			{"Rank", rank},
			{"Referral points", fmt.Sprintf("%d", st.ReferralPoints)},
			{"Achievements", fmt.Sprintf("%d/%d", len(st.Achievements), len(records.Catalog()))},
		}
		fmt.Println(ui.KeyValueBlock("Stats", pairs))
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Render the wallet's on-chain resume card",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := resolveAddress(resumeWallet)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		syncer, backend, err := openSyncer(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		rec, err := syncer.Load(ctx, addr)
		if err := warnRemote(err); err != nil {
			return err
		}
		st := syncer.Stats(ctx, addr)
		syncer.Wait()

		code := ""
		if rec.FID != "" {
			code = referral.CodeFor(rec.FID)
		}
		contracts := rec.Clone().Contracts
		records.SortByTimestamp(contracts)

		if resumeJSON {
			data, err := json.MarshalIndent(api.ResumeResponse{
				Success:      true,
				Wallet:       st.Wallet,
				Stats:        st,
				Contracts:    contracts,
				ReferralCode: code,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		if len(contracts) == 0 {
			fmt.Println(ui.Info("Nothing to show yet: deploy a contract first."))
			return nil
		}
		fmt.Println(ui.ResumeCard(st, contracts, code, time.Now()))
		return nil
	},
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the top deployers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(); err != nil {
			return err
		}
		backend, err := store.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("opening record store: %w", err)
		}
		defer backend.Close()

		all, err := backend.All(ctx)
		if err != nil {
			return fmt.Errorf("listing records: %w", err)
		}
		board := records.Leaderboard(all)
		if len(board) == 0 {
			fmt.Println(ui.Info("No deployments recorded yet."))
			return nil
		}

		me, _ := resolveAddress("")
		fmt.Println(leaderboardTable(board, leaderboardLimit, me).Render())
		if rank := records.RankOf(board, me); rank > leaderboardLimit {
			fmt.Println(ui.Meta(fmt.Sprintf("You are #%d of %d", rank, len(board))))
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsWallet, "wallet", "", "wallet name or address (default: config)")
	statsCmd.Flags().StringVar(&statsNetwork, "network", "", "chain whose native token prices the gas (default: config)")
	resumeCmd.Flags().StringVar(&resumeWallet, "wallet", "", "wallet name or address (default: config)")
	resumeCmd.Flags().BoolVar(&resumeJSON, "json", false, "print the resume as JSON")
	leaderboardCmd.Flags().IntVarP(&leaderboardLimit, "limit", "n", 10, "number of entries to show")
}

func leaderboardTable(board []records.LeaderboardEntry, limit int, me string) *ui.Table {
	t := ui.NewTable([]ui.Column{
		{Title: "#", Width: 4, Right: true},
		{Title: "Wallet", Width: 14},
		{Title: "Contracts", Width: 10, Right: true},
		{Title: "Gas (ETH)", Width: 12, Right: true},
		{Title: "Tier", Width: 10},
	})
	if limit <= 0 || limit > len(board) {
		limit = len(board)
	}
	for _, e := range board[:limit] {
		wallet := ui.Addr(ui.TruncateAddr(e.Wallet))
		if e.Wallet == me {
			wallet = ui.StyleSuccess.Render(ui.TruncateAddr(e.Wallet))
		}
		t.AddRow(ui.Row{
			fmt.Sprintf("%d", e.Rank),
			wallet,
			fmt.Sprintf("%d", e.Contracts),
			ui.FormatWei(e.GasSpent),
			e.Tier,
		})
	}
	return t
}

// newPriceQuoter shares the Redis connection when the record store is Redis
// and keeps quotes in memory otherwise.
func newPriceQuoter(backend store.Backend) *price.CachedFetcher {
	var cache price.Cache = price.NewMemoryCache()
	if rs, ok := backend.(*store.RedisStore); ok {
		cache = price.NewRedisCache(rs.Client())
	}
	ttl := time.Duration(cfg.PriceTTLSeconds) * time.Second
	return price.NewCachedFetcher(newPriceFetcher(), cache, cfg.PriceCurrency, ttl, log)
}

func newPriceFetcher() *price.Fetcher {
	return price.NewFetcher(cfg.PriceCurrency, price.WithAPIKey(cfg.PriceAPIKey))
}

// fiatValue converts an ETH amount to the quote currency.
func fiatValue(eth string, q price.Quote) string {
	f, err := strconv.ParseFloat(eth, 64)
	if err != nil || q.Price == 0 {
		return ""
	}
	return fmt.Sprintf("%.2f %s", f*q.Price, strings.ToUpper(q.Currency))
}
