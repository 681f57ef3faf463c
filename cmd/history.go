package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/w3deploy/internal/ui"
	"github.com/spf13/cobra"
)

var (
	historyWallet  string
	historyNetwork string
	historyTable   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse the contracts a wallet has deployed",
	Long: `Show the wallet's deployments, newest first. In the interactive view
press o to open a contract in the explorer and c to copy its address.

  w3deploy history
  w3deploy history --wallet 0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045 --table`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := resolveAddress(historyWallet)
		if err != nil {
			return err
		}
		c, err := resolveChain(historyNetwork)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		syncer, backend, err := openSyncer(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		spin := ui.NewSpinner("Loading history...")
		spin.Start()
		rec, err := syncer.Load(ctx, addr)
		spin.Stop()
		if err := warnRemote(err); err != nil {
			return err
		}
		defer syncer.Wait()

		if len(rec.Contracts) == 0 {
			fmt.Println(ui.Info("No contracts deployed from " + ui.TruncateAddr(addr) + " yet."))
			fmt.Println(ui.Hint("Deploy one with: w3deploy deploy"))
			return nil
		}

		title := fmt.Sprintf("Deployments · %s · %d contract(s)", ui.TruncateAddr(addr), len(rec.Contracts))
		if historyTable {
			fmt.Println(ui.StyleTitle.Render(title))
			fmt.Println(ui.HistoryTable(rec.Contracts).Render())
			return nil
		}
		return ui.RunHistory(title, rec.Contracts, func(a string) string {
			return c.AddressURL(cfg.NetworkMode, a)
		})
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyWallet, "wallet", "", "wallet name or address (default: config)")
	historyCmd.Flags().StringVar(&historyNetwork, "network", "", "chain used for explorer links (default: config)")
	historyCmd.Flags().BoolVar(&historyTable, "table", false, "print a static table instead of the interactive view")
}
