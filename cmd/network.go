package cmd

import (
	"context"
	"fmt"

	"github.com/Mohsinsiddi/w3deploy/internal/chain"
	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"github.com/Mohsinsiddi/w3deploy/internal/rpc"
	"github.com/Mohsinsiddi/w3deploy/internal/ui"
	"github.com/spf13/cobra"
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Manage networks",
}

var networkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the chains contracts can be deployed to",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := chain.NewRegistry()
		t := ui.NewTable([]ui.Column{
			{Title: "Name", Width: 10},
			{Title: "Display", Width: 14},
			{Title: "Chain ID", Width: 10, Right: true},
			{Title: "Testnet", Width: 18},
			{Title: "Testnet ID", Width: 10, Right: true},
		})
		for _, c := range reg.All() {
			name := ui.ChainName(c.Name)
			if c.Name == cfg.DefaultNetwork {
				name += ui.Meta(" *")
			}
			t.AddRow(ui.Row{
				name,
				c.DisplayName,
				fmt.Sprintf("%d", c.ChainID),
				c.TestnetName,
				fmt.Sprintf("%d", c.TestnetChainID),
			})
		}
		fmt.Println(t.Render())
		fmt.Println(ui.Meta(fmt.Sprintf("%d chains, mode: %s", len(reg.All()), cfg.NetworkMode)))
		return nil
	},
}

var networkUseCmd = &cobra.Command{
	Use:   "use <chain>",
	Short: "Set the default network",
	Long: `Set the default chain and persist it to config.

Examples:
  w3deploy network use base
  w3deploy network use base --testnet    # also deploy to Base Sepolia by default`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := resolveChain(args[0])
		if err != nil {
			return err
		}
		cfg.DefaultNetwork = c.Name
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Default network set to %s (%s)", ui.ChainName(c.Name), cfg.NetworkMode)))
		return nil
	},
}

func init() {
	networkCmd.AddCommand(networkListCmd, networkUseCmd)
}

// resolveChain looks up a chain by name, falling back to the configured
// default network.
func resolveChain(name string) (*chain.Chain, error) {
	if name == "" {
		name = cfg.DefaultNetwork
	}
	c, err := chain.NewRegistry().GetByName(name)
	if err != nil {
		return nil, fmt.Errorf("unknown chain %q: run `w3deploy network list` to see all chains", name)
	}
	return c, nil
}

// rpcCandidates lists the custom RPCs for c followed by its built-in ones for
// the active mode.
func rpcCandidates(c *chain.Chain) []string {
	return rpc.Candidates(cfg.GetRPCs(c.Name), c.RPCs(cfg.NetworkMode))
}

// pickBestRPC benchmarks the candidates with the configured algorithm.
func pickBestRPC(ctx context.Context, c *chain.Chain) (string, error) {
	urls := rpcCandidates(c)
	if len(urls) == 0 {
		return "", fmt.Errorf("no RPCs configured for %s (%s): add one with `w3deploy rpc add %s <url>`", c.Name, cfg.NetworkMode, c.Name)
	}
	ctx, cancel := context.WithTimeout(ctx, config.RPCSelectTimeout)
	defer cancel()
	return rpc.SelectBest(ctx, urls, cfg.RPCAlgorithm)
}

// receiptClient is the public endpoint used to poll receipts. It skips
// benchmarking.
func receiptClient(c *chain.Chain) (*chain.EVMClient, error) {
	url, err := rpc.ReceiptEndpoint(cfg.ReceiptRPC, rpcCandidates(c))
	if err != nil {
		return nil, err
	}
	return chain.NewEVMClient(url), nil
}
