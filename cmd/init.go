package cmd

import (
	"fmt"
	"os"

	"github.com/Mohsinsiddi/w3deploy/internal/chain"
	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"github.com/Mohsinsiddi/w3deploy/internal/ui"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive setup",
	Long:  "Pick the deploy network, the factory contract and the record store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(ui.Banner())

		var networks []ui.PickerItem
		for _, c := range chain.NewRegistry().All() {
			networks = append(networks, ui.PickerItem{
				Label: c.DisplayName, SubLabel: c.TestnetName, Value: c.Name, Current: c.Name == cfg.DefaultNetwork,
			})
		}
		if v, err := ui.PickItem("Deploy network", networks); err != nil {
			return err
		} else if v != "" {
			cfg.DefaultNetwork = v
		}

		if v, err := ui.PickItem("Network mode", markCurrent(cfg.NetworkMode, []ui.PickerItem{
			{Label: "mainnet", Value: "mainnet"},
			{Label: "testnet", SubLabel: "free test ETH from a faucet", Value: "testnet"},
		})); err != nil {
			return err
		} else if v != "" {
			cfg.NetworkMode = v
		}

		if v := promptLine(os.Stdin, os.Stdout, "Factory address (blank to keep "+orNone(cfg.FactoryAddress)+")"); v != "" {
			if !common.IsHexAddress(v) {
				return fmt.Errorf("invalid factory address %q", v)
			}
			cfg.FactoryAddress = v
		}

		if v, err := ui.PickItem("Record store", markCurrent(cfg.StoreBackend, []ui.PickerItem{
			{Label: "file", SubLabel: "JSON files in the config directory", Value: config.BackendFile},
			{Label: "postgres", SubLabel: "shared, needs postgres_dsn", Value: config.BackendPostgres},
			{Label: "redis", SubLabel: "shared, needs redis_addr", Value: config.BackendRedis},
		})); err != nil {
			return err
		} else if v != "" {
			cfg.StoreBackend = v
		}
		switch cfg.StoreBackend {
		case config.BackendPostgres:
			if v := promptLine(os.Stdin, os.Stdout, "Postgres DSN"); v != "" {
				cfg.PostgresDSN = v
			}
		case config.BackendRedis:
			if v := promptLine(os.Stdin, os.Stdout, "Redis address (host:port)"); v != "" {
				cfg.RedisAddr = v
			}
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Println(ui.Success("w3deploy configured!"))
		if len(newWalletManager().List()) == 0 {
			fmt.Println(ui.Hint("Add a deployer wallet: w3deploy wallet add deployer --key <private-key>"))
		}
		fmt.Println(ui.Hint("Then deploy: w3deploy deploy"))
		return nil
	},
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return ui.TruncateAddr(s)
}

func markCurrent(current string, items []ui.PickerItem) []ui.PickerItem {
	for i := range items {
		items[i].Current = items[i].Value == current
	}
	return items
}
