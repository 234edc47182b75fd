package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zonewatch/internal/api"
	routes "zonewatch/internal/api/handlers"
	"zonewatch/internal/config"
	"zonewatch/internal/logger"
	"zonewatch/internal/postgres"
	"zonewatch/internal/redis"
	"zonewatch/internal/service/auth"
	"zonewatch/internal/service/cluster"
	"zonewatch/internal/service/dataset"
	"zonewatch/internal/service/location"
	"zonewatch/internal/service/proximity"
	"zonewatch/internal/service/storage"
	"zonewatch/internal/service/visit"
	"zonewatch/internal/service/zone"
	"zonewatch/internal/sqlite"
	"zonewatch/internal/worker"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// connections holds whichever blob backend was opened so it can be closed on exit
type connections struct {
	sqlite   *sql.DB
	redis    *goredis.Client
	postgres *gorm.DB
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	_, logCloser, err := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, conns, err := initializeBlobStore(cfg)
	if err != nil {
		logger.L().Error("blob_store_init_failed", "backend", cfg.CacheBackend, "err", err)
		os.Exit(1)
	}
	defer closeConnections(conns)

	deps, err := initializeServices(ctx, cfg, blobs)
	if err != nil {
		logger.L().Error("services_init_failed", "err", err)
		os.Exit(1)
	}
	defer deps.Recorder.Stop()

	startWorkers(ctx, cfg, deps)
	initialSync(ctx, deps.Syncer)

	runAPIServer(ctx, cfg, deps)
	deps.Tracker.Stop()
}

func initializeBlobStore(cfg config.Config) (storage.BlobStore, connections, error) {
	var conns connections
	switch cfg.CacheBackend {
	case config.CacheBackendSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, conns, err
		}
		conns.sqlite = db
		return sqlite.NewBlobStore(db), conns, nil
	case config.CacheBackendRedis:
		client, err := redis.Init(cfg.RedisUrl)
		if err != nil {
			return nil, conns, err
		}
		conns.redis = client
		return redis.NewBlobStore(client), conns, nil
	case config.CacheBackendPostgres:
		db, err := postgres.Init(cfg.DBUrl)
		if err != nil {
			return nil, conns, err
		}
		conns.postgres = db
		return postgres.NewBlobStore(db), conns, nil
	}
	return storage.NewMemoryBlobStore(), conns, nil
}

func initializeServices(ctx context.Context, cfg config.Config, blobs storage.BlobStore) (*routes.Deps, error) {
	store := zone.NewStore()
	syncer := dataset.NewSyncer(store, blobs, dataset.NewHTTPSource(cfg.ZoneSourceURL, cfg.HTTPTimeout), cfg.ZonePageSize)

	session := auth.NewSession(cfg.BackendURL, cfg.HTTPTimeout, blobs)
	if u, err := session.Restore(ctx); err == nil {
		logger.L().Info("session_restored", "user_id", u.ID)
	} else {
		logger.L().Info("session_not_restored", "err", err)
	}

	recorder := visit.NewRecorder(cfg.BackendURL, cfg.HTTPTimeout, session, cfg.VisitQueueSize)
	recorder.OnResult(func(res visit.Result) {
		if res.Err != nil {
			logger.L().Warn("visit_not_recorded", "zone_id", res.Report.ZoneID, "err", res.Err)
		}
	})
	// stopped explicitly after the tracker so the final exit is still submitted
	recorder.Start(context.Background())

	bus := proximity.NewBus(64)
	engine := proximity.NewEngine(store, recorder, bus)

	deps := &routes.Deps{
		Ctx:      ctx,
		Store:    store,
		Syncer:   syncer,
		Engine:   engine,
		Bus:      bus,
		Clusters: cluster.NewEngine(cfg.ClusterK),
		Recorder: recorder,
		Session:  session,
	}

	var provider location.Provider
	switch cfg.LocationSource {
	case config.LocationSourceSimulated:
		sim, err := location.NewRouteSimulator(cfg.SimRoute, cfg.SimSpeedMps)
		if err != nil {
			recorder.Stop()
			return nil, err
		}
		provider = sim
	default:
		deps.Push = location.NewPushProvider(64)
		provider = deps.Push
	}
	deps.Tracker = worker.NewTracker(provider, engine, location.DefaultOptions())

	return deps, nil
}

func startWorkers(ctx context.Context, cfg config.Config, deps *routes.Deps) {
	worker.StartAllWorkers(ctx, worker.Workers{
		Tracker:        deps.Tracker,
		Syncer:         deps.Syncer,
		ResyncInterval: cfg.ResyncInterval,
	})
}

// initialSync loads the dataset in the background; the API serves an empty store until it lands
func initialSync(ctx context.Context, syncer *dataset.Syncer) {
	go func() {
		out, err := syncer.Sync(ctx)
		if err != nil {
			logger.L().Error("initial_sync_failed", "err", err)
			return
		}
		logger.L().Info("initial_sync_done", "source", out.Source, "count", out.Count, "rejected", out.Rejected)
	}()
}

func runAPIServer(ctx context.Context, cfg config.Config, deps *routes.Deps) {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if gin.Mode() == gin.DebugMode {
		r.Use(gin.Logger())
	}
	api.SetupRouter(r, deps)

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.L().Info("http_listening", "addr", cfg.Port)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Error("http_server_failed", "err", err)
		}
		return
	case <-ctx.Done():
	}

	logger.L().Info("shutdown_signal_received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L().Error("http_shutdown_failed", "err", err)
	}
}

func closeConnections(c connections) {
	if c.sqlite != nil {
		if err := c.sqlite.Close(); err != nil {
			logger.L().Error("sqlite_close_failed", "err", err)
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			logger.L().Error("redis_close_failed", "err", err)
		}
	}
	if c.postgres != nil {
		if err := postgres.Close(c.postgres); err != nil {
			logger.L().Error("postgres_close_failed", "err", err)
		}
	}
	logger.L().Info("connections_closed")
}
