// Package bridgeserver implements app.Runner for the relayer process: it
// wires config, store, chain clients, both relayer loops, and the HTTP
// facade together and runs them until an OS shutdown signal arrives.
package bridgeserver

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/chainsafe/zcash-miden-bridge/pkg/app/http"
	"github.com/chainsafe/zcash-miden-bridge/pkg/config"
	"github.com/chainsafe/zcash-miden-bridge/pkg/derivation"
	"github.com/chainsafe/zcash-miden-bridge/pkg/facade"
	"github.com/chainsafe/zcash-miden-bridge/pkg/miden"
	"github.com/chainsafe/zcash-miden-bridge/pkg/relayer"
	"github.com/chainsafe/zcash-miden-bridge/pkg/store"
	"github.com/chainsafe/zcash-miden-bridge/pkg/zcash"
)

const defaultHTTPMiddlewareTimeout = 60 * time.Second

// Server holds configuration for the relayer process.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new relayer Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run starts both relayer loops and the operational/facade HTTP server.
// It blocks until an OS shutdown signal is received or a component fails.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting zcash-miden bridge relayer")

	st, err := store.NewStore(cfg.Database.GetConnectionString())
	if err != nil {
		return fmt.Errorf("connect bridge db: %w", err)
	}
	defer func() { _ = st.Close() }()
	logger.Info("database connection established")

	zcashClient, err := zcash.New(&cfg.Zcash, logger)
	if err != nil {
		return fmt.Errorf("initialize zcash client: %w", err)
	}

	midenClient, err := miden.New(&cfg.Miden, logger)
	if err != nil {
		return fmt.Errorf("initialize miden client: %w", err)
	}

	zToM := relayer.NewZcashToMidenProcessor(
		zcashClient, midenClient, st, logger,
		cfg.Miden.FaucetID, cfg.Bridge.MaxMintAttempts, cfg.Bridge.MintBackoffBase, cfg.Bridge.FanOut,
	)
	mToZ := relayer.NewMidenToZcashProcessor(
		midenClient, zcashClient, st, logger,
		cfg.Miden.BridgeAccountID, cfg.Bridge.FanOut,
	)

	var wg sync.WaitGroup
	stopCh := make(chan struct{})
	wg.Add(2)
	go func() { defer wg.Done(); zToM.Run(ctx, cfg.Zcash.RelayerInterval, stopCh) }()
	go func() { defer wg.Done(); mToZ.Run(ctx, cfg.Miden.RelayerInterval, stopCh) }()
	defer func() { close(stopCh); wg.Wait() }()

	facadeSvc := facade.NewService(cfg, st, midenClient, logger, derivation.DefaultHashFunc)
	router := s.newRouter(facadeSvc, logger)

	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)
}

func (s *Server) newRouter(svc *facade.Service, logger *zap.Logger) http.Handler {
	cfg := s.cfg

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultHTTPMiddlewareTimeout))
	r.Use(middleware.Logger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics enabled", zap.String("path", "/metrics"))
	}

	r.Route("/api/v1", func(r chi.Router) {
		facade.RegisterRoutes(r, svc, logger)
	})

	return r
}
