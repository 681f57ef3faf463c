package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Mohsinsiddi/w3deploy/internal/api"
	"github.com/Mohsinsiddi/w3deploy/internal/referral"
	"github.com/Mohsinsiddi/w3deploy/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the records, referral and price HTTP API",
	Long: `Serve the JSON API used by the mini app front end:

  GET  /health
  GET  /metrics
  GET  /api/records/{wallet}          POST /api/records/{wallet}
  POST /api/records/{wallet}/clicks
  GET  /api/leaderboard?limit=
  POST /api/referral/validate         POST /api/referral/track
  GET  /api/price?chain=
  GET  /api/resume/{wallet}

The record store is chosen by store_backend (file, memory, postgres, redis).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.SetFormatter(&logrus.JSONFormatter{})
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		backend, err := store.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("opening record store: %w", err)
		}
		defer backend.Close()

		addr := serveAddr
		if addr == "" {
			addr = cfg.ListenAddr
		}
		log.WithFields(logrus.Fields{"store": cfg.StoreBackend, "addr": addr}).Info("starting w3deploy api")

		srv := api.New(api.Deps{
			Store:          backend,
			Referrals:      referral.NewService(backend, backend, log),
			Prices:         newPriceQuoter(backend),
			Logger:         log,
			AllowedOrigins: serveOrigins,
		})
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: listen_addr from config)")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "origin", nil, "allowed CORS origin (repeatable, default: any)")
}
