// Package strategy implements the cache strategy engine for static resources
// and pass-through API traffic: resource classification, the three named
// strategies (cache-first, network-first, stale-while-revalidate), and
// generational cache cleanup.
package strategy

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weathercache/internal/observability"
)

// Result is one fetched or cached response. Unavailable marks the
// synthesized failure result network-first produces when both network and
// cache come up empty; it is distinguishable from any real payload.
type Result struct {
	StatusCode  int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
	FromCache   bool   `json:"-"`
	Unavailable bool   `json:"-"`
}

// OK reports whether the result carries a 2xx status.
func (r *Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher retrieves a URL from the network. Implementations classify nothing;
// the engine owns strategy selection.
type Fetcher func(ctx context.Context, url string) (*Result, error)

// Engine executes the per-class cache strategy against a bucket store.
type Engine struct {
	buckets    BucketStore
	fetch      Fetcher
	classifier *Classifier
	gens       Generations
	logger     *zap.Logger

	revalidations sync.WaitGroup
}

// NewEngine creates an Engine. apiBases configure API-host classification.
func NewEngine(buckets BucketStore, fetch Fetcher, version string, apiBases []string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		buckets:    buckets,
		fetch:      fetch,
		classifier: NewClassifier(apiBases...),
		gens:       NewGenerations(version),
		logger:     logger,
	}
}

// Generations returns the engine's generation registry.
func (e *Engine) Generations() Generations {
	return e.gens
}

// Activate purges every cache generation whose name is not in the current
// known set. This is the only garbage collection: there is no per-entry
// eviction. Call once per process start.
func (e *Engine) Activate(ctx context.Context) error {
	existing, err := e.buckets.Buckets(ctx)
	if err != nil {
		return err
	}
	for _, name := range StaleGenerations(existing, e.gens.Known()) {
		if err := e.buckets.DeleteBucket(ctx, name); err != nil {
			return err
		}
		e.logger.Info("purged stale cache generation", zap.String("generation", name))
	}
	return nil
}

// Do executes the strategy selected for the URL's resource class.
// Documents and API calls go network-first; enumerated static assets and
// everything unclassified go stale-while-revalidate.
func (e *Engine) Do(ctx context.Context, url string) (*Result, error) {
	switch e.classifier.Classify(url) {
	case ClassDocument:
		return e.networkFirst(ctx, e.gens.Static, url)
	case ClassAPI:
		return e.networkFirst(ctx, e.gens.API, url)
	case ClassStatic:
		return e.staleWhileRevalidate(ctx, e.gens.Static, url)
	default:
		return e.staleWhileRevalidate(ctx, e.gens.Runtime, url)
	}
}

// Precache fills the static generation with the given URLs using the
// cache-first strategy: anything already cached is kept, misses are fetched
// and stored. Called once at startup to prime the app shell.
func (e *Engine) Precache(ctx context.Context, urls []string) {
	for _, u := range urls {
		if _, err := e.cacheFirst(ctx, e.gens.Static, u); err != nil {
			e.logger.Debug("precache skipped", zap.String("url", u), zap.Error(err))
		}
	}
}

// Drain waits for in-flight background revalidations. Call at teardown so
// detached tasks do not outlive the process resources they touch.
func (e *Engine) Drain() {
	e.revalidations.Wait()
}

// cacheFirst serves from cache when possible and fills the cache from the
// network otherwise. On network failure the cache is checked once more,
// covering the race where a concurrent fill landed after the first miss.
func (e *Engine) cacheFirst(ctx context.Context, bucket, url string) (*Result, error) {
	if res, ok := e.lookup(ctx, bucket, url); ok {
		observability.StrategyResultsTotal.WithLabelValues("cache_first", "cache").Inc()
		return res, nil
	}

	res, err := e.fetch(ctx, url)
	if err == nil {
		if res.OK() {
			e.put(ctx, bucket, url, res)
		}
		observability.StrategyResultsTotal.WithLabelValues("cache_first", "network").Inc()
		return res, nil
	}

	if res, ok := e.lookup(ctx, bucket, url); ok {
		observability.StrategyResultsTotal.WithLabelValues("cache_first", "cache").Inc()
		return res, nil
	}
	observability.StrategyResultsTotal.WithLabelValues("cache_first", "error").Inc()
	return nil, err
}

// networkFirst prefers fresh network data, falls back to the cache, and as a
// last resort synthesizes an unavailable result instead of failing: the
// consuming view must always have something to render.
func (e *Engine) networkFirst(ctx context.Context, bucket, url string) (*Result, error) {
	res, err := e.fetch(ctx, url)
	if err == nil {
		if res.OK() {
			e.put(ctx, bucket, url, res)
		}
		observability.StrategyResultsTotal.WithLabelValues("network_first", "network").Inc()
		return res, nil
	}

	if cached, ok := e.lookup(ctx, bucket, url); ok {
		observability.StrategyResultsTotal.WithLabelValues("network_first", "cache").Inc()
		return cached, nil
	}

	e.logger.Debug("network-first unavailable", zap.String("url", url), zap.Error(err))
	observability.StrategyResultsTotal.WithLabelValues("network_first", "unavailable").Inc()
	return unavailableResult(), nil
}

// staleWhileRevalidate returns the cached entry immediately when present and
// refreshes it from the network in a detached task whose failure is caught
// and discarded. With an empty cache the caller waits on the network.
func (e *Engine) staleWhileRevalidate(ctx context.Context, bucket, url string) (*Result, error) {
	if cached, ok := e.lookup(ctx, bucket, url); ok {
		e.revalidate(bucket, url)
		observability.StrategyResultsTotal.WithLabelValues("swr", "cache").Inc()
		return cached, nil
	}

	res, err := e.fetch(ctx, url)
	if err != nil {
		observability.StrategyResultsTotal.WithLabelValues("swr", "error").Inc()
		return nil, err
	}
	if res.OK() {
		e.put(ctx, bucket, url, res)
	}
	observability.StrategyResultsTotal.WithLabelValues("swr", "network").Inc()
	return res, nil
}

// revalidate refreshes one cache entry in the background. The task is
// detached from the caller's context and its errors are dropped: a failed
// refresh leaves the stale entry in place, which is the contract.
func (e *Engine) revalidate(bucket, url string) {
	e.revalidations.Add(1)
	go func() {
		defer e.revalidations.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		res, err := e.fetch(ctx, url)
		if err != nil || !res.OK() {
			e.logger.Debug("background revalidation discarded", zap.String("url", url), zap.Error(err))
			return
		}
		e.put(ctx, bucket, url, res)
	}()
}

func (e *Engine) lookup(ctx context.Context, bucket, url string) (*Result, bool) {
	raw, ok, err := e.buckets.Get(ctx, bucket, url)
	if err != nil || !ok {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false
	}
	res.FromCache = true
	return &res, true
}

func (e *Engine) put(ctx context.Context, bucket, url string, res *Result) {
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := e.buckets.Set(ctx, bucket, url, raw); err != nil {
		observability.StoreErrorsTotal.WithLabelValues("cache_put").Inc()
		e.logger.Warn("cache write failed", zap.String("url", url), zap.Error(err))
	}
}

func unavailableResult() *Result {
	return &Result{
		StatusCode:  http.StatusServiceUnavailable,
		ContentType: "application/json",
		Body:        []byte(`{"error":"unavailable","offline":true}`),
		Unavailable: true,
	}
}
