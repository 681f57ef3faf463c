package cmd

import (
	"fmt"
	"time"

	"github.com/Mohsinsiddi/w3deploy/internal/chain"
	"github.com/Mohsinsiddi/w3deploy/internal/price"
	"github.com/Mohsinsiddi/w3deploy/internal/ui"
	"github.com/spf13/cobra"
)

var (
	balanceWallet  string
	balanceNetwork string
)

var balanceCmd = &cobra.Command{
	Use:   "balance [wallet-name-or-address]",
	Short: "Check that a wallet can pay for deployments",
	Long: `Show the native balance of a wallet on the deploy network.

Examples:
  w3deploy balance
  w3deploy balance deployer --testnet
  w3deploy balance 0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 && balanceWallet == "" {
			balanceWallet = args[0]
		}
		addr, err := resolveAddress(balanceWallet)
		if err != nil {
			return err
		}
		c, err := resolveChain(balanceNetwork)
		if err != nil {
			return err
		}
		mode := cfg.NetworkMode

		spin := ui.NewSpinner(fmt.Sprintf("Fetching balance on %s (%s)...", ui.ChainName(c.Name), mode))
		spin.Start()
		ctx := cmd.Context()
		url, err := pickBestRPC(ctx, c)
		if err != nil {
			spin.Stop()
			return err
		}
		bal, err := chain.NewEVMClient(url).GetBalance(ctx, addr)
		if err != nil {
			spin.Stop()
			return err
		}
		value := ""
		if mode == "mainnet" {
			prices := price.NewCachedFetcher(newPriceFetcher(), price.NewMemoryCache(),
				cfg.PriceCurrency, time.Duration(cfg.PriceTTLSeconds)*time.Second, log)
			if q, err := prices.Quote(ctx, c.Name); err == nil {
				value = fiatValue(bal.ETH, q)
			}
		}
		spin.Stop()

		pairs := [][2]string{
			{"Wallet", ui.Addr(addr)},
			{"Network", c.NetworkName(mode)},
			{"Balance", ui.Val(ui.FormatWei(bal.Wei.String()) + " " + c.NativeCurrency)},
		}
		if value != "" {
			pairs = append(pairs, [2]string{"Value", value})
		}
		fmt.Println(ui.KeyValueBlock("Balance", pairs))
		if bal.Wei.Sign() == 0 {
			fmt.Println(ui.Warn("This wallet cannot pay for gas yet."))
		}
		return nil
	},
}

func init() {
	balanceCmd.Flags().StringVar(&balanceWallet, "wallet", "", "wallet name or address")
	balanceCmd.Flags().StringVar(&balanceNetwork, "network", "", "chain to query (default: config)")
}
