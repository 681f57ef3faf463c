package cmd

import (
	"fmt"
	"os"

	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"github.com/Mohsinsiddi/w3deploy/internal/ui"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgDir  string
	cfg     *config.Config
	log     = logrus.New()
	verbose bool
	testnet bool
	mainnet bool
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "w3deploy",
	Short: "One-click contract deployment on Base",
	Long: `w3deploy deploys small template contracts through a factory on Base,
keeps a per-wallet history in sync with a shared record store, and tracks
achievements, referrals and leaderboard rank.

Global flags --testnet and --mainnet override the configured network mode
for a single invocation. Without either flag the persisted mode is used
(default: mainnet). Persist with: w3deploy config set-network-mode <mode>`,
	Version:       ui.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if testnet {
			cfg.NetworkMode = "testnet"
		}
		if mainnet {
			cfg.NetworkMode = "mainnet"
		}
		return configureLogger(log, cfg.LogLevel, verbose)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Err(err.Error()))
		os.Exit(1)
	}
}

// configureLogger applies the level. --verbose always wins.
func configureLogger(l *logrus.Logger, level string, verbose bool) error {
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
		return nil
	}
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log_level %q: %w", level, err)
	}
	l.SetLevel(lvl)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", "", "config directory (default: $W3DEPLOY_CONFIG_DIR or ~/.w3deploy)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&testnet, "testnet", false, "use testnet instead of mainnet")
	rootCmd.PersistentFlags().BoolVar(&mainnet, "mainnet", false, "use mainnet instead of testnet")
	rootCmd.MarkFlagsMutuallyExclusive("testnet", "mainnet")

	rootCmd.AddCommand(
		initCmd,
		templatesCmd,
		deployCmd,
		inspectCmd,
		historyCmd,
		statsCmd,
		resumeCmd,
		leaderboardCmd,
		referralCmd,
		backfillCmd,
		syncCmd,
		serveCmd,
		walletCmd,
		networkCmd,
		configCmd,
		rpcCmd,
		balanceCmd,
	)
}
