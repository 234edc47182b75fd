// Command osm-zone-import seeds the zone cache from an OpenStreetMap PBF extract,
// so the service can start without reaching the dataset provider.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"zonewatch/internal/config"
	"zonewatch/internal/logger"
	"zonewatch/internal/osmimport"
	"zonewatch/internal/postgres"
	"zonewatch/internal/redis"
	"zonewatch/internal/service/storage"
	"zonewatch/internal/sqlite"
)

func main() {
	out := flag.String("out", "", "write records to this JSON file instead of the configured cache backend")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-out file.json] <path-to-osm.pbf>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if _, closer, err := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}); err == nil {
		defer closer.Close()
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to open file: %v", err)
	}
	defer f.Close()

	ctx := context.Background()
	start := time.Now()
	records, stats, err := osmimport.Extract(ctx, f)
	if err != nil {
		log.Fatalf("Failed to extract cameras: %v", err)
	}
	logger.L().Info("osm_import_extracted",
		"nodes", stats.Nodes,
		"cameras", stats.Cameras,
		"skipped", stats.Skipped,
		"without_limit", stats.NoLimits,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	payload, err := json.Marshal(records)
	if err != nil {
		log.Fatalf("Failed to encode records: %v", err)
	}

	if *out != "" {
		if err := os.WriteFile(*out, payload, 0o644); err != nil {
			log.Fatalf("Failed to write %s: %v", *out, err)
		}
		logger.L().Info("osm_import_written", "file", *out, "records", len(records))
		return
	}

	blobs, closeFn, err := openBlobStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open %s cache: %v", cfg.CacheBackend, err)
	}
	defer closeFn()

	if err := blobs.Set(ctx, config.ZoneCacheKey, payload); err != nil {
		log.Fatalf("Failed to store records: %v", err)
	}
	logger.L().Info("osm_import_cached", "backend", cfg.CacheBackend, "key", config.ZoneCacheKey, "records", len(records))
}

func openBlobStore(cfg config.Config) (storage.BlobStore, func(), error) {
	switch cfg.CacheBackend {
	case config.CacheBackendSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewBlobStore(db), func() { db.Close() }, nil
	case config.CacheBackendRedis:
		client, err := redis.Init(cfg.RedisUrl)
		if err != nil {
			return nil, nil, err
		}
		return redis.NewBlobStore(client), func() { client.Close() }, nil
	case config.CacheBackendPostgres:
		db, err := postgres.Init(cfg.DBUrl)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewBlobStore(db), func() { postgres.Close(db) }, nil
	}
	return nil, nil, fmt.Errorf("cache backend %q does not persist, use -out", cfg.CacheBackend)
}
