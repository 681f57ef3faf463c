package cmd

import (
	"fmt"
	"strings"

	"github.com/Mohsinsiddi/w3deploy/internal/chain"
	"github.com/Mohsinsiddi/w3deploy/internal/contract"
	"github.com/Mohsinsiddi/w3deploy/internal/records"
	"github.com/Mohsinsiddi/w3deploy/internal/ui"
	"github.com/spf13/cobra"
)

var (
	inspectTemplate string
	inspectNetwork  string
	inspectWallet   string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <address>",
	Short: "Read the value a deployed template contract holds",
	Long: `Call a contract deployed from one of the templates and decode its value.
The template is looked up in your history; pass --template for contracts
deployed from another wallet.

  w3deploy inspect 0x1234...
  w3deploy inspect 0x1234... --template string --network base`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := args[0]
		if !isHexAddress(addr) {
			return fmt.Errorf("invalid address %q", addr)
		}
		c, err := resolveChain(inspectNetwork)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		id := inspectTemplate
		var entry *records.DeployedContract
		if owner, err := resolveAddress(inspectWallet); err == nil {
			syncer, backend, err := openSyncer(ctx)
			if err != nil {
				return err
			}
			defer backend.Close()
			rec, lerr := syncer.Load(ctx, owner)
			if lerr == nil || warnRemote(lerr) == nil {
				for i := range rec.Contracts {
					if strings.EqualFold(rec.Contracts[i].Address, addr) {
						entry = &rec.Contracts[i]
						break
					}
				}
			}
			syncer.Wait()
		}
		if id == "" && entry != nil {
			id = entry.ContractType
		}
		if id == "" {
			return fmt.Errorf("%s is not in your history: pass --template <id>", ui.TruncateAddr(addr))
		}
		tpl, err := contract.Lookup(id)
		if err != nil {
			return err
		}

		url, err := pickBestRPC(ctx, c)
		if err != nil {
			return err
		}
		reader := contract.NewReader(chain.NewEVMClient(url))

		spin := ui.NewSpinner("Reading contract...")
		spin.Start()
		ok, err := reader.IsDeployed(ctx, addr)
		if err != nil || !ok {
			spin.Stop()
			if err != nil {
				return err
			}
			return fmt.Errorf("no code at %s on %s", addr, c.NetworkName(cfg.NetworkMode))
		}
		value, err := reader.Value(ctx, addr, tpl)
		spin.Stop()
		if err != nil {
			return err
		}

		pairs := [][2]string{
			{"Address", ui.Addr(addr)},
			{"Template", tpl.Name},
			{"Value", ui.Val(value)},
			{"Explorer", c.AddressURL(cfg.NetworkMode, addr)},
		}
		if entry != nil {
			pairs = append(pairs, [2]string{"Deployed", entry.Time().Format("2006-01-02 15:04")})
		}
		fmt.Println(ui.KeyValueBlock("Contract", pairs))
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectTemplate, "template", "", "template ID the contract was deployed from")
	inspectCmd.Flags().StringVar(&inspectNetwork, "network", "", "chain the contract lives on (default: config)")
	inspectCmd.Flags().StringVar(&inspectWallet, "wallet", "", "wallet whose history to search (default: config)")
}
