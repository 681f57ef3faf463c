package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Mohsinsiddi/w3deploy/internal/ui"
	"github.com/Mohsinsiddi/w3deploy/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var walletKeyFlag string

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage wallets",
}

var walletAddCmd = &cobra.Command{
	Use:   "add <name> [address]",
	Short: "Add a wallet",
	Long: `Add a signing wallet (private key stored in the OS keychain) or a
watch-only wallet (address only, usable for history, stats and resume).

  w3deploy wallet add deployer --key 0x...
  w3deploy wallet add friend 0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		mgr := newWalletManager()

		if walletKeyFlag != "" {
			if err := mgr.AddWithKey(name, walletKeyFlag); err != nil {
				return err
			}
			w, _ := mgr.Get(name)
			fmt.Println(ui.Success(fmt.Sprintf("Signing wallet %q added: %s", name, ui.Addr(w.Address))))
			fmt.Println(ui.Hint(fmt.Sprintf("Set as default with: w3deploy wallet use %s", name)))
			return nil
		}

		if len(args) < 2 {
			return errors.New("address required for watch-only wallet\n  Usage: w3deploy wallet add <name> <address>\n  Or for signing: w3deploy wallet add <name> --key <private-key>")
		}
		if err := mgr.Add(name, &wallet.Wallet{
			Name:    name,
			Address: args[1],
			Type:    wallet.TypeWatchOnly,
		}); err != nil {
			return err
		}
		w, _ := mgr.Get(name)
		fmt.Println(ui.Success(fmt.Sprintf("Watch-only wallet %q added: %s", name, ui.Addr(w.Address))))
		fmt.Println(ui.Hint(fmt.Sprintf("Set as default with: w3deploy wallet use %s", name)))
		return nil
	},
}

var walletListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List configured wallets",
	RunE: func(cmd *cobra.Command, args []string) error {
		wallets := newWalletManager().List()
		if len(wallets) == 0 {
			fmt.Println(ui.Info("No wallets yet."))
			fmt.Println(ui.Hint("Add one with: w3deploy wallet add deployer --key <private-key>"))
			return nil
		}
		fmt.Println(walletsTable(wallets).Render())
		fmt.Println(ui.Meta(fmt.Sprintf("%d wallet(s), default: %s", len(wallets), orNone(cfg.DefaultWallet))))
		return nil
	},
}

var walletShowCmd = &cobra.Command{
	Use:   "show [name|address]",
	Short: "Show one wallet (the default when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := cfg.DefaultWallet
		if len(args) == 1 {
			ref = args[0]
		}
		w, err := newWalletManager().Resolve(ref)
		if err != nil {
			return err
		}
		fmt.Println(ui.KeyValueBlock(w.Name, walletDetails(w)))
		return nil
	},
}

func walletsTable(wallets []*wallet.Wallet) *ui.Table {
	t := ui.NewTable([]ui.Column{
		{Title: "", Width: 2},
		{Title: "Name", Width: 16},
		{Title: "Address", Width: 42},
		{Title: "Type", Width: 10},
		{Title: "Added", Width: 10, Right: true},
	})
	for _, w := range wallets {
		mark := ""
		if w.IsDefault || w.Name == cfg.DefaultWallet {
			mark = ui.StyleSuccess.Render("*")
		}
		t.AddRow(ui.Row{mark, ui.Val(w.Name), ui.Addr(w.Address), ui.Meta(walletTypeLabel(w.Type)), addedOn(w)})
	}
	return t
}

func walletDetails(w *wallet.Wallet) [][2]string {
	sign := "no"
	if w.CanSign() {
		sign = "yes, keychain entry " + w.KeyRef
	}
	return [][2]string{
		{"Address", ui.Addr(w.Address)},
		{"Records key", ui.Meta(w.Owner())},
		{"Type", walletTypeLabel(w.Type)},
		{"Can sign", sign},
		{"Added", addedOn(w)},
	}
}

func addedOn(w *wallet.Wallet) string {
	if w.CreatedAt.IsZero() {
		return "-"
	}
	return w.CreatedAt.Local().Format("2006-01-02")
}

var walletRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a wallet and its stored key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !ui.ConfirmDanger(fmt.Sprintf("Remove wallet %q?", name)) {
			fmt.Println(ui.Meta("Cancelled."))
			return nil
		}
		if err := newWalletManager().Remove(name); err != nil {
			return err
		}
		if cfg.DefaultWallet == name {
			cfg.DefaultWallet = ""
			if err := cfg.Save(); err != nil {
				return err
			}
		}
		fmt.Println(ui.Success(fmt.Sprintf("Wallet %q removed.", name)))
		return nil
	},
}

var walletUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the default wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := newWalletManager().SetDefault(name); err != nil {
			return err
		}
		cfg.DefaultWallet = name
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Default wallet set to %q", name)))
		return nil
	},
}

func init() {
	walletAddCmd.Flags().StringVar(&walletKeyFlag, "key", "", "private key for a signing wallet (stored in the OS keychain)")
	walletCmd.AddCommand(walletAddCmd, walletListCmd, walletShowCmd, walletRemoveCmd, walletUseCmd)
}

// walletTypeLabel converts an internal wallet type to a user-friendly label.
func walletTypeLabel(t string) string {
	switch t {
	case wallet.TypeSigning:
		return "read-write"
	default:
		return t
	}
}

// newWalletManager creates a Manager backed by the config-dir JSON store and
// the OS keychain.
func newWalletManager() *wallet.Manager {
	return wallet.NewManager(
		wallet.WithStore(wallet.NewJSONStore(cfg.WalletsPath())),
		wallet.WithKeystore(wallet.DefaultKeystore(cfg.Dir())),
	)
}

// loadSigningWallet loads a wallet (the default when name is empty) and
// verifies it can sign transactions.
func loadSigningWallet(mgr *wallet.Manager, name string) (*wallet.Wallet, error) {
	if name == "" {
		name = cfg.DefaultWallet
	}
	w, err := mgr.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf(
			"no wallet to deploy from: run `w3deploy wallet list` or set a default with `w3deploy wallet use <name>`: %w", err)
	}
	if !w.CanSign() {
		return nil, fmt.Errorf(
			"wallet %q is watch-only and cannot sign transactions\n  To add a signing wallet: w3deploy wallet add <name> --key <private-key>",
			w.Name)
	}
	return w, nil
}

// resolveAddress returns the wallet address for a name, a raw 0x address, or
// the default wallet when arg is empty.
func resolveAddress(arg string) (string, error) {
	if isHexAddress(arg) {
		return strings.ToLower(arg), nil
	}
	name := arg
	if name == "" {
		name = cfg.DefaultWallet
	}
	w, err := newWalletManager().Resolve(name)
	if err != nil {
		if arg == "" {
			return "", errors.New("no wallet specified: use --wallet <name|address> or set a default with `w3deploy wallet use <name>`")
		}
		return "", fmt.Errorf("wallet %q not found: run `w3deploy wallet list` or pass an address directly", arg)
	}
	return w.Owner(), nil
}

// isHexAddress accepts 0x-prefixed addresses only so wallet names that
// happen to be 40 hex characters still resolve as names.
func isHexAddress(s string) bool {
	return (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) && common.IsHexAddress(s)
}
