package cmd

import (
	"errors"
	"fmt"

	"github.com/Mohsinsiddi/w3deploy/internal/referral"
	"github.com/Mohsinsiddi/w3deploy/internal/store"
	"github.com/Mohsinsiddi/w3deploy/internal/ui"
	"github.com/spf13/cobra"
)

var referralWallet string

var referralCmd = &cobra.Command{
	Use:   "referral",
	Short: "Validate and claim referral codes",
}

var referralValidateCmd = &cobra.Command{
	Use:   "validate <code>",
	Short: "Check that a referral code belongs to an eligible referrer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, backend, err := openReferrals(cmd)
		if err != nil {
			return err
		}
		defer backend.Close()

		v, err := svc.Validate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !v.Valid {
			fmt.Println(ui.Err(fmt.Sprintf("%s is not valid: %s", args[0], v.Error)))
			return nil
		}
		fmt.Println(ui.Success(fmt.Sprintf("%s is valid (referrer FID %s)", args[0], v.FID)))
		return nil
	},
}

var referralTrackCmd = &cobra.Command{
	Use:   "track <code> <your-fid>",
	Short: "Credit the referrer behind code for bringing you in",
	Long: `Attribute your FID to the referrer who owns code. Each FID can be
referred once; the referrer earns points for every new member.

  w3deploy referral track W3D-1234 5678`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := resolveAddress(referralWallet)
		if err != nil {
			return err
		}
		svc, backend, err := openReferrals(cmd)
		if err != nil {
			return err
		}
		defer backend.Close()

		rec, err := svc.Attribute(cmd.Context(), args[0], args[1], addr)
		if err != nil {
			return referralError(err)
		}
		fmt.Println(ui.Success(fmt.Sprintf("Referral recorded: FID %s now has %d referral(s), %d point(s)",
			rec.FID, rec.ReferralCount, rec.TotalPoints)))
		return nil
	},
}

var referralCodeCmd = &cobra.Command{
	Use:   "code <fid>",
	Short: "Print the referral code for an FID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code := referral.CodeFor(args[0])
		if _, err := referral.ParseCode(code); err != nil {
			return fmt.Errorf("FID must be a decimal number without leading zeros: %w", err)
		}
		fmt.Println(ui.Val(code))
		return nil
	},
}

func init() {
	referralTrackCmd.Flags().StringVar(&referralWallet, "wallet", "", "your wallet name or address (default: config)")
	referralCmd.AddCommand(referralValidateCmd, referralTrackCmd, referralCodeCmd)
}

func openReferrals(cmd *cobra.Command) (*referral.Service, store.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	backend, err := store.Open(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening record store: %w", err)
	}
	return referral.NewService(backend, backend, log), backend, nil
}

// referralError maps attribution failures to messages a user can act on.
func referralError(err error) error {
	switch {
	case errors.Is(err, referral.ErrInvalidCode):
		return fmt.Errorf("%w: codes look like %s1234", err, referral.CodePrefix)
	case errors.Is(err, referral.ErrInvalidFID):
		return fmt.Errorf("%w: give your FID without leading zeros", err)
	case errors.Is(err, referral.ErrReferrerIneligible):
		return fmt.Errorf("%w: the referrer must deploy a contract before their code works", err)
	case errors.Is(err, referral.ErrDuplicateReferral), errors.Is(err, referral.ErrAlreadyReferred):
		return fmt.Errorf("%w: a referral can only be claimed once", err)
	}
	return err
}
