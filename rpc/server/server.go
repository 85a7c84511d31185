package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/db/engines/bolt"
	"github.com/ValentinKolb/rKV/lib/db/engines/memory"
	"github.com/ValentinKolb/rKV/lib/replication"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/lib/store/cache"
	"github.com/ValentinKolb/rKV/lib/store/vstore"
	"github.com/ValentinKolb/rKV/rpc/client"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// shutdownTimeout bounds the graceful shutdown of the http server
const shutdownTimeout = 10 * time.Second

// Server is a single rKV node: the HTTP API on top of the versioned store,
// the replication coordinator and the health monitor.
type Server struct {
	config     common.ServerConfig
	table      db.ITable
	store      store.IStore
	health     *replication.HealthMonitor
	httpServer *http.Server
}

// NewServer opens the table and wires all components of a node.
//
// Usage:
//
//	s, err := server.NewServer(*config)
//	if err != nil {
//		panic(err)
//	}
//	if err := s.Serve(context.Background()); err != nil {
//		panic(err)
//	}
func NewServer(config common.ServerConfig) (*Server, error) {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	// Init logger
	common.InitLoggers(config.LogLevel)

	Logger.Infof("Created rKV Server")
	Logger.Infof(config.String())

	table, err := openTable(config)
	if err != nil {
		return nil, err
	}

	peers := client.NewPeerClient(client.NewHTTPClient(90 * time.Second))
	health := replication.NewHealthMonitor(config.Peers, peers, replication.HealthOptions{
		TTL:           config.HealthTTL,
		ProbeTimeout:  config.ProbeTimeout,
		RetryAttempts: config.RetryAttempts,
		FanOut:        config.FanOut,
	})
	coordinator := replication.NewCoordinator(peers, health, replication.Options{
		Attempts:     config.RetryAttempts,
		RetryDelay:   config.RetryDelay,
		PointTimeout: config.PointTimeout,
		BatchTimeout: config.BatchTimeout,
		FanOut:       config.FanOut,
	})

	var entryCache cache.ICache
	if config.CacheSize > 0 {
		entryCache = cache.NewLRUCache(cache.Options{Size: config.CacheSize, TTL: config.CacheTTL})
	} else {
		entryCache = cache.NewNoopCache()
	}

	s := &Server{
		config: config,
		table:  table,
		store: vstore.NewVersionedStore(table, coordinator, entryCache, vstore.Options{
			MaxPageSize:         config.MaxPageSize,
			MaxBatchSize:        config.MaxBatchSize,
			StrictBatchRollback: config.StrictBatchRollback,
		}),
		health: health,
	}
	s.httpServer = &http.Server{
		Addr:              config.Endpoint,
		Handler:           NewHandler(s.store, s.health, strings.EqualFold(config.LogLevel, "debug")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	Logger.Infof("rKV setup completed successfully")
	return s, nil
}

// openTable creates the table for the configured engine
func openTable(config common.ServerConfig) (db.ITable, error) {
	switch config.Engine {
	case db.ImplMemory:
		return memory.NewMemoryTable(), nil
	case db.ImplBolt:
		table, err := bolt.NewBoltTable(config.DataDir, &bolt.Options{NoSync: config.NoSync, OpenTimeout: 5 * time.Second})
		if err != nil {
			return nil, errors.Wrapf(err, "opening table in %s", config.DataDir)
		}
		return table, nil
	default:
		return nil, errors.Newf("unknown engine %q", config.Engine)
	}
}

// NewHandler creates the http.Handler of the API for st and health.
// With logRequests every request is logged at debug level.
func NewHandler(st store.IStore, health *replication.HealthMonitor, logRequests bool) http.Handler {
	mux := http.NewServeMux()

	wrap := func(route string, h http.HandlerFunc) http.HandlerFunc {
		h = instrument(route, h)
		if logRequests {
			h = loggerMiddleware(h)
		}
		return h
	}

	adapter := &iStoreAdapter{store: st, health: health}
	adapter.register(mux, wrap)

	mux.HandleFunc("GET "+common.PathMetrics, func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	return mux
}

// Store returns the store of the node.
func (s *Server) Store() store.IStore {
	return s.store
}

// Serve starts the HTTP server and blocks until ctx is done, SIGINT or SIGTERM
// is received or the server fails. The table is closed before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		Logger.Infof("Starting HTTP server on %s", s.config.Endpoint)
		errCh <- s.httpServer.ListenAndServe()
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		Logger.Infof("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		serveErr = s.httpServer.Shutdown(shutdownCtx)
		cancel()
	}
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}
	return errors.CombineErrors(serveErr, s.Close())
}

// Close closes the table of the node.
func (s *Server) Close() error {
	if err := s.table.Close(); err != nil && !errors.Is(err, db.ErrClosed) {
		return errors.Wrap(err, "closing table")
	}
	return nil
}
