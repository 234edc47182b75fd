// Package dataset keeps the local zone store populated from the cache blob
// or, on a cache miss, from the paginated remote dataset.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"zonewatch/internal/config"
	"zonewatch/internal/logger"
	"zonewatch/internal/metrics"
	"zonewatch/internal/model"
	"zonewatch/internal/service/storage"
	"zonewatch/internal/service/zone"

	"golang.org/x/sync/singleflight"
)

// Source tells where a sync got its data from
type Source string

const (
	SourceCache  Source = "cache"
	SourceRemote Source = "remote"
)

// SyncOutcome summarizes a successful sync
type SyncOutcome struct {
	Source   Source `json:"source"`
	Count    int    `json:"count"`
	Rejected int    `json:"rejected"`
}

// Syncer owns writes to the zone store
type Syncer struct {
	store    *zone.Store
	cache    storage.BlobStore
	source   PageSource
	pageSize int
	cacheKey string

	group singleflight.Group
	runMu sync.Mutex
}

func NewSyncer(store *zone.Store, cache storage.BlobStore, source PageSource, pageSize int) *Syncer {
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize
	}
	return &Syncer{
		store:    store,
		cache:    cache,
		source:   source,
		pageSize: pageSize,
		cacheKey: config.ZoneCacheKey,
	}
}

// LoadFromCache returns the cached zone list. Absent, unreadable or malformed blobs are misses.
func (s *Syncer) LoadFromCache(ctx context.Context) ([]model.Zone, bool) {
	raw, err := s.cache.Get(ctx, s.cacheKey)
	if errors.Is(err, storage.ErrNotFound) {
		logger.L().Debug("dataset_cache_miss", "key", s.cacheKey)
		return nil, false
	}
	if err != nil {
		logger.L().Warn("dataset_cache_read_error", "key", s.cacheKey, "err", err)
		return nil, false
	}

	var records []model.ZoneRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		logger.L().Warn("dataset_cache_malformed", "key", s.cacheKey, "bytes", len(raw), "err", err)
		return nil, false
	}
	if records == nil {
		logger.L().Warn("dataset_cache_malformed", "key", s.cacheKey, "err", "null payload")
		return nil, false
	}
	return model.ZonesFromRecords(records), true
}

// FetchAll requests pages 1, 2, ... sequentially until the accumulated count reaches meta.total.
// Any page failure discards everything fetched so far.
func (s *Syncer) FetchAll(ctx context.Context, pageSize int) ([]model.Zone, error) {
	zones, _, err := s.fetchAll(ctx, pageSize)
	return zones, err
}

// fetchAll also returns the total advertised by the last page
func (s *Syncer) fetchAll(ctx context.Context, pageSize int) ([]model.Zone, int, error) {
	if pageSize <= 0 {
		pageSize = s.pageSize
	}

	var records []model.ZoneRecord
	total := 0
	for page := 1; ; page++ {
		p, err := s.source.FetchPage(ctx, page, pageSize)
		if err != nil {
			var se *SyncError
			if errors.As(err, &se) {
				return nil, 0, err
			}
			return nil, 0, &SyncError{Kind: ErrNetwork, Page: page, Err: err}
		}
		if p.Meta.Total < 0 {
			return nil, 0, &SyncError{Kind: ErrMalformed, Page: page, Err: fmt.Errorf("negative total %d", p.Meta.Total)}
		}
		total = p.Meta.Total

		if len(p.Data) == 0 && len(records) < total {
			return nil, 0, &SyncError{
				Kind: ErrMalformed,
				Page: page,
				Err:  fmt.Errorf("empty page with %d of %d records fetched", len(records), total),
			}
		}
		records = append(records, p.Data...)

		if len(records) >= total {
			break
		}
	}

	logger.L().Info("dataset_fetch_done", "records", len(records), "total", total, "page_size", pageSize)
	return model.ZonesFromRecords(records), total, nil
}

// Sync loads zones from the cache, or from the remote source on a miss, and replaces the store
// contents. On failure the store is left untouched. Concurrent calls share one run.
func (s *Syncer) Sync(ctx context.Context) (SyncOutcome, error) {
	v, err, _ := s.group.Do("sync", func() (interface{}, error) {
		return s.run(ctx, false)
	})
	if err != nil {
		return SyncOutcome{}, err
	}
	return v.(SyncOutcome), nil
}

// Refresh syncs from the remote source without consulting the cache. The cache blob is
// only overwritten once the fetch succeeds, so a failed refresh keeps the last good copy.
func (s *Syncer) Refresh(ctx context.Context) (SyncOutcome, error) {
	v, err, _ := s.group.Do("refresh", func() (interface{}, error) {
		return s.run(ctx, true)
	})
	if err != nil {
		return SyncOutcome{}, err
	}
	return v.(SyncOutcome), nil
}

func (s *Syncer) run(ctx context.Context, invalidate bool) (SyncOutcome, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()

	if !invalidate {
		if zones, ok := s.LoadFromCache(ctx); ok {
			res := s.store.Replace(zones, len(zones))
			out := SyncOutcome{Source: SourceCache, Count: res.Accepted, Rejected: res.Rejected}
			s.observe(out, nil, start)
			return out, nil
		}
	}

	zones, total, err := s.fetchAll(ctx, s.pageSize)
	if err != nil {
		s.observe(SyncOutcome{Source: SourceRemote}, err, start)
		return SyncOutcome{}, fmt.Errorf("error fetching zone dataset: %w", err)
	}

	if payload, err := json.Marshal(model.ZonesToRecords(zones)); err != nil {
		logger.L().Error("dataset_cache_encode_error", "err", err)
	} else if err := s.cache.Set(ctx, s.cacheKey, payload); err != nil {
		logger.L().Warn("dataset_cache_write_error", "key", s.cacheKey, "err", err)
	}

	res := s.store.Replace(zones, total)
	out := SyncOutcome{Source: SourceRemote, Count: res.Accepted, Rejected: res.Rejected}
	s.observe(out, nil, start)
	return out, nil
}

func (s *Syncer) observe(out SyncOutcome, err error, start time.Time) {
	dur := time.Since(start).Milliseconds()
	metrics.SyncDurationMs.Observe(float64(dur))

	if err != nil {
		metrics.SyncTotal.WithLabelValues(string(out.Source), "error").Inc()
		logger.L().Error("dataset_sync_failed", "source", out.Source, "duration_ms", dur, "err", err)
		return
	}
	metrics.SyncTotal.WithLabelValues(string(out.Source), "ok").Inc()
	logger.L().Info("dataset_sync_done",
		"source", out.Source,
		"count", out.Count,
		"rejected", out.Rejected,
		"duration_ms", dur,
	)
}
