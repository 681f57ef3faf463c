package cmd

import (
	"errors"
	"testing"
	"time"

	"github.com/Mohsinsiddi/w3deploy/internal/contract"
	"github.com/Mohsinsiddi/w3deploy/internal/price"
	"github.com/Mohsinsiddi/w3deploy/internal/records"
	"github.com/Mohsinsiddi/w3deploy/internal/referral"
	"github.com/Mohsinsiddi/w3deploy/internal/ui"
	"github.com/Mohsinsiddi/w3deploy/internal/wallet"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Command tree
// ---------------------------------------------------------------------------

func TestRootRegistersCommands(t *testing.T) {
	want := []string{
		"init", "templates", "deploy", "inspect", "history", "stats", "resume",
		"leaderboard", "referral", "backfill", "sync", "serve", "wallet",
		"network", "config", "rpc", "balance",
	}
	got := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, got[name], "missing command %q", name)
	}
}

func TestConfigSettingsRegistered(t *testing.T) {
	for _, s := range settings {
		c, _, err := configCmd.Find([]string{s.command().Name()})
		require.NoError(t, err)
		assert.Equal(t, s.short, c.Short)
	}
	c, _, err := configCmd.Find([]string{"set-store"})
	require.NoError(t, err)
	assert.NotNil(t, c.Flags().Lookup("dsn"))
	assert.NotNil(t, c.Flags().Lookup("redis-addr"))
}

func TestReferralSubcommands(t *testing.T) {
	for _, name := range []string{"validate", "track", "code"} {
		_, _, err := referralCmd.Find([]string{name})
		assert.NoError(t, err, name)
	}
}

func TestModeFlagsAreExclusive(t *testing.T) {
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("testnet"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("mainnet"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("verbose"))
}

// ---------------------------------------------------------------------------
// Validation helpers
// ---------------------------------------------------------------------------

func TestIsHexAddress(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045", true},
		{"0xd8da6bf26964af9d7eed9e03e53415d37aa96045", true},
		{"d8da6bf26964af9d7eed9e03e53415d37aa96045", false},
		{"0xd8da6bf26964af9d7eed9e03e53415d37aa9604", false},
		{"0xzzda6bf26964af9d7eed9e03e53415d37aa96045", false},
		{"deployer", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isHexAddress(tt.in), tt.in)
	}
}

func TestOneOf(t *testing.T) {
	check := oneOf("mainnet", "testnet")
	assert.NoError(t, check("testnet"))
	err := check("devnet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mainnet, testnet")
}

func TestHTTPURL(t *testing.T) {
	assert.NoError(t, httpURL("https://mainnet.base.org"))
	assert.NoError(t, httpURL("http://localhost:8545"))
	assert.Error(t, httpURL("wss://mainnet.base.org"))
	assert.Error(t, httpURL("mainnet.base.org"))
	assert.Error(t, httpURL("https://"))
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "postgres://app:xxxxx@db:5432/w3deploy", redactDSN("postgres://app:secret@db:5432/w3deploy"))
	assert.Equal(t, "postgres://db:5432/w3deploy", redactDSN("postgres://db:5432/w3deploy"))
	assert.Equal(t, "", redactDSN(""))
}

func TestConfigureLogger(t *testing.T) {
	l := logrus.New()

	require.NoError(t, configureLogger(l, "", false))
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())

	require.NoError(t, configureLogger(l, "warn", false))
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())

	require.NoError(t, configureLogger(l, "warn", true))
	assert.Equal(t, logrus.DebugLevel, l.GetLevel(), "--verbose wins over log_level")

	assert.Error(t, configureLogger(l, "loud", false))
}

func TestWalletTypeLabel(t *testing.T) {
	assert.Equal(t, "read-write", walletTypeLabel("signing"))
	assert.Equal(t, "watch-only", walletTypeLabel("watch-only"))
}

// ---------------------------------------------------------------------------
// Referral errors
// ---------------------------------------------------------------------------

func TestReferralErrorHints(t *testing.T) {
	tests := []struct {
		err  error
		hint string
	}{
		{referral.ErrInvalidCode, "codes look like " + referral.CodePrefix},
		{referral.ErrReferrerIneligible, "must deploy a contract"},
		{referral.ErrDuplicateReferral, "only be claimed once"},
		{referral.ErrAlreadyReferred, "only be claimed once"},
	}
	for _, tt := range tests {
		got := referralError(tt.err)
		assert.ErrorIs(t, got, tt.err)
		assert.Contains(t, got.Error(), tt.hint)
	}

	other := errors.New("connection refused")
	assert.Same(t, other, referralError(other))
}

// ---------------------------------------------------------------------------
// Tables and values
// ---------------------------------------------------------------------------

func TestFiatValue(t *testing.T) {
	q := price.Quote{Chain: "base", Currency: "usd", Price: 3000}
	assert.Equal(t, "0.45 USD", fiatValue("0.00015", q))
	assert.Equal(t, "", fiatValue("not-a-number", q))
	assert.Equal(t, "", fiatValue("1", price.Quote{Currency: "usd"}))
}

func TestLeaderboardTableLimit(t *testing.T) {
	board := []records.LeaderboardEntry{
		{Rank: 1, Wallet: "0x0000000000000000000000000000000000000001", Contracts: 5, GasSpent: "0", Tier: "Builder"},
		{Rank: 2, Wallet: "0x0000000000000000000000000000000000000002", Contracts: 3, GasSpent: "0", Tier: "Starter"},
		{Rank: 3, Wallet: "0x0000000000000000000000000000000000000003", Contracts: 1, GasSpent: "0", Tier: "Starter"},
	}

	tbl := leaderboardTable(board, 2, "")
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "1", tbl.Rows[0][0])
	assert.Equal(t, "5", tbl.Rows[0][2])
	assert.Equal(t, "Builder", tbl.Rows[0][4])

	assert.Len(t, leaderboardTable(board, 0, "").Rows, 3, "zero limit shows everything")
	assert.Len(t, leaderboardTable(board, 50, "").Rows, 3)
	assert.Empty(t, leaderboardTable(nil, 10, "").Rows)
}

func TestTemplatesTableListsEveryTemplate(t *testing.T) {
	tbl := templatesTable()
	require.Len(t, tbl.Rows, len(contract.All()))
	assert.Contains(t, tbl.Render(), "Greeter")
}

func TestTemplateItemsShowInputLabel(t *testing.T) {
	items := templateItems()
	require.Len(t, items, len(contract.All()))
	for i, tpl := range contract.All() {
		assert.Equal(t, tpl.ID, items[i].Value)
		if tpl.HasInput() {
			assert.Contains(t, items[i].SubLabel, tpl.Label())
		}
	}
}

func TestOrNone(t *testing.T) {
	assert.Equal(t, "none", orNone(""))
	assert.NotEqual(t, "none", orNone("0x000000000000000000000000000000000000fAc7"))
}

func TestMarkCurrent(t *testing.T) {
	items := markCurrent("testnet", []ui.PickerItem{
		{Label: "Mainnet", Value: "mainnet", Current: true},
		{Label: "Testnet", Value: "testnet"},
	})
	assert.False(t, items[0].Current)
	assert.True(t, items[1].Current)

	assert.False(t, markCurrent("", items)[1].Current)
}

func TestWalletsTableAndDetails(t *testing.T) {
	watch := &wallet.Wallet{
		Name:      "friend",
		Address:   "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045",
		Type:      wallet.TypeWatchOnly,
		IsDefault: true,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	tbl := walletsTable([]*wallet.Wallet{watch, {Name: "old", Address: watch.Address, Type: wallet.TypeSigning}})
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "-", tbl.Rows[1][4], "wallets saved before timestamps show a dash")

	details := map[string]string{}
	for _, kv := range walletDetails(watch) {
		details[kv[0]] = kv[1]
	}
	assert.Equal(t, "no", details["Can sign"])
	assert.Equal(t, "watch-only", details["Type"])
	assert.Contains(t, details["Records key"], "0xd8da6bf26964af9d7eed9e03e53415d37aa96045")
}
