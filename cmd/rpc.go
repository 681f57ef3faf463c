package cmd

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"github.com/Mohsinsiddi/w3deploy/internal/rpc"
	"github.com/Mohsinsiddi/w3deploy/internal/ui"
	"github.com/spf13/cobra"
)

var rpcCmd = &cobra.Command{
	Use:   "rpc",
	Short: "Manage RPC endpoints",
	Long: `Custom RPCs are tried before the built-in ones. Deploys pick one with
the configured algorithm; receipts are polled from receipt_rpc, or the first
candidate when it is unset.`,
}

var rpcAddCmd = &cobra.Command{
	Use:   "add <chain> <url>",
	Short: "Add a custom RPC URL for a chain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := resolveChain(args[0])
		if err != nil {
			return err
		}
		url := args[1]
		if err := httpURL(url); err != nil {
			return err
		}
		if err := cfg.AddRPC(c.Name, url); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Added RPC for %s: %s", ui.ChainName(c.Name), url)))
		return nil
	},
}

var rpcRemoveCmd = &cobra.Command{
	Use:   "remove <chain> <url>",
	Short: "Remove a custom RPC URL",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := resolveChain(args[0])
		if err != nil {
			return err
		}
		if err := cfg.RemoveRPC(c.Name, args[1]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Removed RPC for %s: %s", ui.ChainName(c.Name), args[1])))
		return nil
	},
}

var rpcListCmd = &cobra.Command{
	Use:   "list [chain]",
	Short: "List the RPCs a chain's commands choose from",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		c, err := resolveChain(name)
		if err != nil {
			return err
		}
		custom := cfg.GetRPCs(c.Name)
		receipt, _ := rpc.ReceiptEndpoint(cfg.ReceiptRPC, rpcCandidates(c))

		fmt.Println(ui.StyleTitle.Render(fmt.Sprintf("RPCs for %s (%s)", c.NetworkName(cfg.NetworkMode), cfg.RPCAlgorithm)))
		for _, u := range rpcCandidates(c) {
			var tags []string
			if slices.Contains(custom, u) {
				tags = append(tags, "custom")
			}
			if u == receipt {
				tags = append(tags, "receipts")
			}
			line := "  " + u
			if len(tags) > 0 {
				line += " " + ui.Meta("("+strings.Join(tags, ", ")+")")
			}
			fmt.Println(line)
		}
		if cfg.ReceiptRPC != "" && !slices.Contains(rpcCandidates(c), cfg.ReceiptRPC) {
			fmt.Println("  " + cfg.ReceiptRPC + " " + ui.Meta("(receipts)"))
		}
		return nil
	},
}

var rpcBenchmarkCmd = &cobra.Command{
	Use:   "benchmark [chain]",
	Short: "Probe every RPC for a chain and show which one deploys would use",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		c, err := resolveChain(name)
		if err != nil {
			return err
		}
		urls := rpcCandidates(c)

		ctx, cancel := context.WithTimeout(cmd.Context(), config.RPCSelectTimeout)
		defer cancel()

		spin := ui.NewSpinner(fmt.Sprintf("Probing %d %s RPCs...", len(urls), c.DisplayName))
		spin.Start()
		eps := rpc.Probe(ctx, urls, rpc.PingEVM)
		spin.Stop()

		t := ui.NewTable([]ui.Column{
			{Title: "RPC URL", Width: 40},
			{Title: "Latency", Width: 10, Right: true},
			{Title: "Block #", Width: 12, Right: true},
			{Title: "Status", Width: 24},
		})
		healthy := 0
		for _, e := range eps {
			latency, block, status := "-", "-", ui.Err("down")
			if e.Healthy() {
				healthy++
				latency = fmt.Sprintf("%dms", e.Latency.Milliseconds())
				block = fmt.Sprintf("%d", e.Block)
				status = ui.Success("healthy")
			} else if e.Block > 0 {
				block = fmt.Sprintf("%d", e.Block)
				status = ui.Warn("stale")
			}
			t.AddRow(ui.Row{e.URL, latency, block, status})
		}
		fmt.Println(t.Render())
		fmt.Println(ui.Meta(fmt.Sprintf("%d/%d healthy", healthy, len(eps))))
		return nil
	},
}

var rpcAlgorithmCmd = &cobra.Command{
	Use:   "algorithm",
	Short: "Choose how commands pick among RPCs",
}

var rpcAlgorithmSetCmd = &cobra.Command{
	Use:   "set <fastest|round-robin|failover>",
	Short: "Set the RPC selection algorithm",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		algo, err := rpc.ParseAlgorithm(args[0])
		if err != nil {
			return err
		}
		cfg.RPCAlgorithm = string(algo)
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("RPC algorithm set to %q", algo)))
		return nil
	},
}

func init() {
	rpcAlgorithmCmd.AddCommand(rpcAlgorithmSetCmd)
	rpcCmd.AddCommand(rpcAddCmd, rpcRemoveCmd, rpcListCmd, rpcBenchmarkCmd, rpcAlgorithmCmd)
}
