package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"github.com/Mohsinsiddi/w3deploy/internal/ui"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	storeDSN       string
	storeRedisAddr string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"list"},
	Short:   "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		shown.PostgresDSN = redactDSN(shown.PostgresDSN)
		if shown.PriceAPIKey != "" {
			shown.PriceAPIKey = "xxxxx"
		}
		data, err := json.MarshalIndent(shown, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("%s\n\n", ui.StyleTitle.Render("Current Configuration"))
		fmt.Println(string(data))
		fmt.Println(ui.Meta("Config directory: " + cfg.Dir()))
		return nil
	},
}

var configSetStoreCmd = &cobra.Command{
	Use:   "set-store <file|memory|postgres|redis>",
	Short: "Choose where user and referral records are kept",
	Long: `Choose the record store backend.

  w3deploy config set-store file
  w3deploy config set-store postgres --dsn postgres://user:pass@db:5432/w3deploy
  w3deploy config set-store redis --redis-addr localhost:6379`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.StoreBackend = args[0]
		if storeDSN != "" {
			cfg.PostgresDSN = storeDSN
		}
		if storeRedisAddr != "" {
			cfg.RedisAddr = storeRedisAddr
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Record store set to %q", args[0])))
		return nil
	},
}

// setting is one `config set-*` command over a single string field.
type setting struct {
	use, short string
	field      func(*config.Config) *string
	check      func(string) error
}

var settings = []setting{
	{
		use: "set-default-wallet <name>", short: "Set the default wallet",
		field: func(c *config.Config) *string { return &c.DefaultWallet },
		check: func(v string) error {
			_, err := newWalletManager().Get(v)
			return err
		},
	},
	{
		use: "set-default-network <chain>", short: "Set the default network",
		field: func(c *config.Config) *string { return &c.DefaultNetwork },
		check: func(v string) error {
			_, err := resolveChain(v)
			return err
		},
	},
	{
		use: "set-network-mode <mainnet|testnet>", short: "Persist the network mode",
		field: func(c *config.Config) *string { return &c.NetworkMode },
		check: oneOf("mainnet", "testnet"),
	},
	{
		use: "set-factory <address>", short: "Set the factory contract deployments go through",
		field: func(c *config.Config) *string { return &c.FactoryAddress },
		check: func(v string) error {
			if !common.IsHexAddress(v) {
				return fmt.Errorf("invalid address %q", v)
			}
			return nil
		},
	},
	{
		use: "set-receipt-rpc <url>", short: "Set the public endpoint used to poll receipts",
		field: func(c *config.Config) *string { return &c.ReceiptRPC },
		check: httpURL,
	},
	{
		use: "set-currency <code>", short: "Set the currency prices are quoted in",
		field: func(c *config.Config) *string { return &c.PriceCurrency },
	},
	{
		use: "set-log-level <level>", short: "Set the log level",
		field: func(c *config.Config) *string { return &c.LogLevel },
		check: func(v string) error {
			_, err := logrus.ParseLevel(v)
			return err
		},
	},
	{
		use: "set-listen <addr>", short: "Set the address `serve` listens on",
		field: func(c *config.Config) *string { return &c.ListenAddr },
	},
}

func (s setting) command() *cobra.Command {
	name := strings.Fields(s.use)[0]
	return &cobra.Command{
		Use:   s.use,
		Short: s.short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := args[0]
			if s.check != nil {
				if err := s.check(v); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}
			*s.field(cfg) = v
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Println(ui.Success(fmt.Sprintf("%s → %s", strings.TrimPrefix(name, "set-"), v)))
			return nil
		},
	}
}

func init() {
	configSetStoreCmd.Flags().StringVar(&storeDSN, "dsn", "", "postgres connection string")
	configSetStoreCmd.Flags().StringVar(&storeRedisAddr, "redis-addr", "", "redis host:port")

	configCmd.AddCommand(configShowCmd, configSetStoreCmd)
	for _, s := range settings {
		configCmd.AddCommand(s.command())
	}
}

func oneOf(allowed ...string) func(string) error {
	return func(v string) error {
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("invalid value %q, choose: %s", v, strings.Join(allowed, ", "))
	}
}

func httpURL(v string) error {
	u, err := url.Parse(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid URL %q", v)
	}
	return nil
}

// redactDSN hides the password in a connection URL.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
