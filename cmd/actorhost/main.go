package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/statedge/actorhost/connection"
	"github.com/statedge/actorhost/coordinate"
	"github.com/statedge/actorhost/coordinate/etcddriver"
	"github.com/statedge/actorhost/coordinate/memdriver"
	"github.com/statedge/actorhost/driver"
	"github.com/statedge/actorhost/driver/memstore"
	"github.com/statedge/actorhost/driver/sqlstore"
	"github.com/statedge/actorhost/manager"
	"github.com/statedge/actorhost/registry"
	"github.com/statedge/actorhost/scheduler"
	"github.com/statedge/actorhost/serde"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr          string
	logLevel          string
	persistenceDriver string
	sqliteDSN         string
	coordinateDriver  string
	etcdEndpoints     string
	nodeID            string
	defaultEncoding   string
	alarmSweepEvery   time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "actorhost",
		Short: "actorhost — stateful actor runtime server",
		Long: `actorhost runs the Manager/Router, Coordinate Topology, Connection
Layer and Scheduler for a set of registered actor types in a single
process (or a fleet of processes sharing a coordinate backend).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("ACTORHOST_HTTP_ADDR", ":8080"), "HTTP/WebSocket/SSE listen address")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("ACTORHOST_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.persistenceDriver, "persistence-driver", envOrDefault("ACTORHOST_PERSISTENCE_DRIVER", "memory"), "Persistence driver (memory or sqlite)")
	root.PersistentFlags().StringVar(&cfg.sqliteDSN, "sqlite-dsn", envOrDefault("ACTORHOST_SQLITE_DSN", "./actorhost.db"), "SQLite DSN when --persistence-driver=sqlite")
	root.PersistentFlags().StringVar(&cfg.coordinateDriver, "coordinate-driver", envOrDefault("ACTORHOST_COORDINATE_DRIVER", "memory"), "Coordinate lease driver (memory or etcd)")
	root.PersistentFlags().StringVar(&cfg.etcdEndpoints, "etcd-endpoints", envOrDefault("ACTORHOST_ETCD_ENDPOINTS", "localhost:2379"), "Comma-separated etcd endpoints when --coordinate-driver=etcd")
	root.PersistentFlags().StringVar(&cfg.nodeID, "node-id", envOrDefault("ACTORHOST_NODE_ID", hostnameOrDefault()), "This node's id, used for lease ownership")
	root.PersistentFlags().StringVar(&cfg.defaultEncoding, "default-encoding", envOrDefault("ACTORHOST_DEFAULT_ENCODING", "json"), "Default wire encoding (json, cbor, bare)")
	root.PersistentFlags().DurationVar(&cfg.alarmSweepEvery, "alarm-sweep-interval", 10*time.Second, "How often to sweep sleeping actors for a due alarm")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("actorhost %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// run wires every runtime component together and blocks until a shutdown
// signal arrives, then drains live actors before exiting. Callers wanting
// to register their own actor.Definition values should fork this function
// (or call the constituent packages directly) — this binary's registry is
// deliberately empty, since actor types are an application concern, not a
// runtime one.
func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	enc := serde.Encoding(cfg.defaultEncoding)
	if !enc.Valid() {
		return fmt.Errorf("invalid --default-encoding %q", cfg.defaultEncoding)
	}

	logger.Info("starting actorhost",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("persistence_driver", cfg.persistenceDriver),
		zap.String("coordinate_driver", cfg.coordinateDriver),
		zap.String("node_id", cfg.nodeID),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Persistence driver ---
	persistStore, closeStore, err := buildPersistenceDriver(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize persistence driver: %w", err)
	}
	if closeStore != nil {
		defer closeStore()
	}

	// --- 2. Coordinate driver ---
	coordDriver, coordinateCheck, closeCoord, err := buildCoordinateDriver(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize coordinate driver: %w", err)
	}
	if closeCoord != nil {
		defer closeCoord()
	}

	// --- 3. Registry, manager driver, actor driver ---
	reg := registry.New() // application actor.Definitions are registered by embedders before calling run's constituent pieces
	managerDriver := driver.NewMemManagerDriver()
	codec := serde.MustForEncoding(serde.BARE)
	localDriver := driver.NewLocalActorDriver(reg, persistStore, codec, logger)
	actorDriver := driver.NewCoordinatedActorDriver(localDriver, cfg.nodeID, coordDriver, coordinate.DefaultTiming(), logger)

	connection.Init()

	mgr := manager.New(manager.Config{
		ManagerDriver:   managerDriver,
		ActorDriver:     actorDriver,
		Registry:        reg,
		DefaultEncoding: enc,
		Logger:          logger,
	})
	gw := manager.NewGateway(mgr, logger)

	// --- 4. Alarm sweep ---
	sweeper, err := scheduler.New(managerDriver, actorDriver, persistStore, codec, logger)
	if err != nil {
		return fmt.Errorf("failed to create alarm sweeper: %w", err)
	}
	if err := sweeper.Start(ctx, cfg.alarmSweepEvery); err != nil {
		return fmt.Errorf("failed to start alarm sweeper: %w", err)
	}
	defer func() {
		if err := sweeper.Stop(); err != nil {
			logger.Warn("alarm sweeper shutdown error", zap.Error(err))
		}
	}()

	// --- 5. Metrics ---
	metricsReg := prometheus.NewRegistry()
	_ = manager.NewMetrics(metricsReg)

	// --- 6. HTTP server ---
	router := manager.NewRouter(manager.RouterConfig{
		Manager:         mgr,
		Gateway:         gw,
		Logger:          logger,
		CoordinateCheck: coordinateCheck,
	})
	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.Handle("/metrics", manager.Handler(metricsReg))

	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // long-lived WebSocket/SSE connections must not be cut off
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down actorhost")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}
	if err := actorDriver.Drain(shutdownCtx); err != nil {
		logger.Warn("actor drain error", zap.Error(err))
	}

	logger.Info("actorhost stopped")
	return nil
}

func buildPersistenceDriver(cfg *config, logger *zap.Logger) (driver.PersistenceDriver, func(), error) {
	switch cfg.persistenceDriver {
	case "sqlite":
		store, err := sqlstore.Open(sqlstore.Config{DSN: cfg.sqliteDSN, Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "memory", "":
		return memstore.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown persistence driver %q", cfg.persistenceDriver)
	}
}

// buildCoordinateDriver returns the coordinate.Driver selected by
// --coordinate-driver, plus a health-check closure GET /health uses to
// report connectivity (spec §4.2 table names /health; reporting
// coordinate connectivity there is this implementation's addition).
func buildCoordinateDriver(cfg *config) (coordinate.Driver, func(ctx context.Context) error, func(), error) {
	switch cfg.coordinateDriver {
	case "etcd":
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   splitEndpoints(cfg.etcdEndpoints),
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		check := func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			_, err := client.Status(ctx, client.Endpoints()[0])
			return err
		}
		return etcddriver.New(client), check, func() { _ = client.Close() }, nil
	case "memory", "":
		return memdriver.New(), func(context.Context) error { return nil }, nil, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown coordinate driver %q", cfg.coordinateDriver)
	}
}

func splitEndpoints(raw string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func hostnameOrDefault() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "node-1"
	}
	return h
}
