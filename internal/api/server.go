// Package api serves deployment records, leaderboards, referrals and price
// quotes over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"github.com/Mohsinsiddi/w3deploy/internal/price"
	"github.com/Mohsinsiddi/w3deploy/internal/referral"
	"github.com/Mohsinsiddi/w3deploy/internal/store"
)

// Quoter prices a chain's native token.
type Quoter interface {
	Quote(ctx context.Context, chainName string) (price.Quote, error)
}

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Store     store.Store
	Referrals *referral.Service
	Prices    Quoter
	Logger    logrus.FieldLogger

	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
}

// Server holds the handlers.
type Server struct {
	store     store.Store
	referrals *referral.Service
	prices    Quoter
	log       logrus.FieldLogger
	validate  *validator.Validate
	origins   []string
	now       func() time.Time
}

// New creates a Server.
func New(d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		store:     d.Store,
		referrals: d.Referrals,
		prices:    d.Prices,
		log:       log,
		validate:  newValidator(),
		origins:   origins,
		now:       time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("fid", func(fl validator.FieldLevel) bool {
		return referral.ValidFID(fl.Field().String())
	})
	return v
}

// Routes returns the full router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))
	r.Use(s.accessLog)

	r.Get("/health", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/records/{wallet}", s.GetRecord)
		r.Post("/records/{wallet}", s.SaveRecord)
		r.Post("/records/{wallet}/clicks", s.RecordClick)
		r.Get("/leaderboard", s.Leaderboard)
		r.Post("/referral/validate", s.ValidateReferral)
		r.Post("/referral/track", s.TrackReferral)
		r.Get("/price", s.Price)
		r.Get("/resume/{wallet}", s.Resume)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.HTTPShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
