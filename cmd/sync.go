package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mohsinsiddi/w3deploy/internal/records"
	"github.com/Mohsinsiddi/w3deploy/internal/rpc"
	"github.com/Mohsinsiddi/w3deploy/internal/store"
	rsync "github.com/Mohsinsiddi/w3deploy/internal/sync"
	"github.com/Mohsinsiddi/w3deploy/internal/ui"
	"github.com/spf13/cobra"
)

var (
	syncWallet   string
	syncWatch    bool
	syncInterval time.Duration

	backfillWallet  string
	backfillNetwork string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the local record cache with the record store",
	Long: `Load the wallet's record from the configured store, merge it with the
local cache and write the result back to both.

  w3deploy sync
  w3deploy sync --watch --interval 30s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncWatch && syncInterval <= 0 {
			return fmt.Errorf("--interval must be positive, got %s", syncInterval)
		}
		addr, err := resolveAddress(syncWallet)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		syncer, backend, err := openSyncer(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		spin := ui.NewSpinner("Syncing records...")
		spin.Start()
		rec, err := syncer.Load(ctx, addr)
		spin.Stop()
		if err := warnRemote(err); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("%s: %d contract(s), %d referral point(s)",
			ui.TruncateAddr(addr), len(rec.Contracts), rec.ReferralPoints)))

		if !syncWatch {
			return nil
		}
		fmt.Println(ui.Meta(fmt.Sprintf("Watching for changes every %s. Press Ctrl+C to stop.", syncInterval)))
		return syncer.Watch(ctx, addr, syncInterval, func(r *records.UserRecord) {
			fmt.Println(ui.Info(fmt.Sprintf("record changed: %d contract(s)", len(r.Contracts))))
		})
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fill in missing gas figures from transaction receipts",
	Long: `Contracts recorded before gas tracking have no gasSpent. backfill fetches
their receipts from the chain and stores gasUsed × effectiveGasPrice.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := resolveAddress(backfillWallet)
		if err != nil {
			return err
		}
		c, err := resolveChain(backfillNetwork)
		if err != nil {
			return err
		}
		// Spread lookups over every node; a wallet can have many contracts.
		pool, err := rpc.NewPool(rpc.Candidates([]string{cfg.ReceiptRPC}, rpcCandidates(c)))
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		syncer, backend, err := openSyncer(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		_, err = syncer.Load(ctx, addr)
		if err := warnRemote(err); err != nil {
			return err
		}

		spin := ui.NewSpinner("Fetching receipts...")
		spin.Start()
		n, err := syncer.BackfillGas(ctx, addr, pool)
		spin.Stop()
		syncer.Wait()
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Println(ui.Meta("Nothing to backfill."))
			return nil
		}
		fmt.Println(ui.Success(fmt.Sprintf("Backfilled gas for %d contract(s).", n)))
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncWallet, "wallet", "", "wallet name or address (default: config)")
	syncCmd.Flags().BoolVar(&syncWatch, "watch", false, "keep polling the store for changes")
	syncCmd.Flags().DurationVar(&syncInterval, "interval", 30*time.Second, "poll interval for --watch")

	backfillCmd.Flags().StringVar(&backfillWallet, "wallet", "", "wallet name or address (default: config)")
	backfillCmd.Flags().StringVar(&backfillNetwork, "network", "", "chain the contracts live on (default: config)")
}

// openSyncer opens the configured record store and wraps it with the local
// cache. The caller closes the backend.
func openSyncer(ctx context.Context) (*rsync.Syncer, store.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	backend, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening record store: %w", err)
	}
	syncer := rsync.New(backend, rsync.NewLocalCache(cfg), rsync.WithLogger(log))
	return syncer, backend, nil
}

// warnRemote turns ErrRemoteUnavailable into a warning: the returned record
// is still usable. Other errors pass through.
func warnRemote(err error) error {
	if errors.Is(err, rsync.ErrRemoteUnavailable) {
		fmt.Println(ui.Warn("Record store unreachable, showing the local copy."))
		return nil
	}
	return err
}
