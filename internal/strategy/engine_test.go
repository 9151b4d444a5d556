package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
)

func okResult(body string) *Result {
	return &Result{StatusCode: http.StatusOK, ContentType: "application/json", Body: []byte(body)}
}

func fetchReturning(body string) Fetcher {
	return func(ctx context.Context, url string) (*Result, error) {
		return okResult(body), nil
	}
}

func fetchFailing() Fetcher {
	return func(ctx context.Context, url string) (*Result, error) {
		return nil, errors.New("connection refused")
	}
}

func seed(t *testing.T, buckets BucketStore, bucket, url, body string) {
	t.Helper()
	raw, err := json.Marshal(okResult(body))
	if err != nil {
		t.Fatal(err)
	}
	if err := buckets.Set(context.Background(), bucket, url, raw); err != nil {
		t.Fatal(err)
	}
}

const apiBase = "https://api.example.com/data/2.5"

func newEngine(buckets BucketStore, fetch Fetcher) *Engine {
	return NewEngine(buckets, fetch, "v1", []string{apiBase}, nil)
}

func TestNetworkFirst_SuccessOverwritesCache(t *testing.T) {
	ctx := context.Background()
	buckets := NewMemoryBuckets()
	e := newEngine(buckets, fetchReturning(`{"temp":15}`))
	url := apiBase + "/weather?lat=1&lon=2"
	seed(t, buckets, e.Generations().API, url, `{"temp":10}`)

	res, err := e.Do(ctx, url)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if string(res.Body) != `{"temp":15}` {
		t.Errorf("Do() body = %s, want fresh {\"temp\":15}", res.Body)
	}
	if res.FromCache {
		t.Error("Do() FromCache = true, want network result")
	}

	cached, ok := e.lookup(ctx, e.Generations().API, url)
	if !ok || string(cached.Body) != `{"temp":15}` {
		t.Errorf("cache slot = %v %s, want updated to {\"temp\":15}", ok, cached.Body)
	}
}

func TestNetworkFirst_FailureFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	buckets := NewMemoryBuckets()
	e := newEngine(buckets, fetchFailing())
	url := apiBase + "/weather?lat=1&lon=2"
	seed(t, buckets, e.Generations().API, url, `{"temp":10}`)

	res, err := e.Do(ctx, url)
	if err != nil {
		t.Fatalf("Do() error = %v, want cache fallback without error", err)
	}
	if string(res.Body) != `{"temp":10}` || !res.FromCache {
		t.Errorf("Do() = %s fromCache=%v, want cached {\"temp\":10}", res.Body, res.FromCache)
	}
}

func TestNetworkFirst_FailureEmptyCacheSynthesizesUnavailable(t *testing.T) {
	ctx := context.Background()
	e := newEngine(NewMemoryBuckets(), fetchFailing())

	res, err := e.Do(ctx, apiBase+"/weather?lat=1&lon=2")
	if err != nil {
		t.Fatalf("Do() error = %v, want synthesized result instead of error", err)
	}
	if !res.Unavailable {
		t.Error("Do() Unavailable = false, want synthesized unavailable result")
	}
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Do() status = %d, want 503", res.StatusCode)
	}
}

func TestNetworkFirst_Non2xxNotCached(t *testing.T) {
	ctx := context.Background()
	buckets := NewMemoryBuckets()
	e := newEngine(buckets, func(ctx context.Context, url string) (*Result, error) {
		return &Result{StatusCode: http.StatusInternalServerError, Body: []byte("boom")}, nil
	})
	url := apiBase + "/weather"

	res, err := e.Do(ctx, url)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if res.StatusCode != http.StatusInternalServerError {
		t.Errorf("Do() status = %d, want 500 passed through", res.StatusCode)
	}
	if _, ok := e.lookup(ctx, e.Generations().API, url); ok {
		t.Error("non-2xx response was cached")
	}
}

func TestStaleWhileRevalidate_ServesCachedThenUpdates(t *testing.T) {
	ctx := context.Background()
	buckets := NewMemoryBuckets()

	var calls int32
	fetch := func(ctx context.Context, url string) (*Result, error) {
		atomic.AddInt32(&calls, 1)
		return okResult(`"Y"`), nil
	}
	e := newEngine(buckets, fetch)
	url := "https://app.example.com/static/app.js"
	seed(t, buckets, e.Generations().Static, url, `"X"`)

	res, err := e.Do(ctx, url)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if string(res.Body) != `"X"` || !res.FromCache {
		t.Errorf("Do() = %s fromCache=%v, want cached \"X\" immediately", res.Body, res.FromCache)
	}

	e.Drain()
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("background fetches = %d, want 1", calls)
	}

	res2, err := e.Do(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	if string(res2.Body) != `"Y"` {
		t.Errorf("Do() after revalidation = %s, want \"Y\"", res2.Body)
	}
	e.Drain()
}

func TestStaleWhileRevalidate_EmptyCacheWaitsOnNetwork(t *testing.T) {
	ctx := context.Background()
	buckets := NewMemoryBuckets()
	e := newEngine(buckets, fetchReturning(`"fresh"`))
	url := "https://app.example.com/static/app.css"

	res, err := e.Do(ctx, url)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if string(res.Body) != `"fresh"` || res.FromCache {
		t.Errorf("Do() = %s fromCache=%v, want network result", res.Body, res.FromCache)
	}
	if _, ok := e.lookup(ctx, e.Generations().Static, url); !ok {
		t.Error("network result not stored")
	}
}

func TestStaleWhileRevalidate_BackgroundFailureKeepsStaleEntry(t *testing.T) {
	ctx := context.Background()
	buckets := NewMemoryBuckets()
	e := newEngine(buckets, fetchFailing())
	url := "https://app.example.com/static/logo.svg"
	seed(t, buckets, e.Generations().Static, url, `"old"`)

	res, err := e.Do(ctx, url)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if string(res.Body) != `"old"` {
		t.Errorf("Do() = %s, want stale entry", res.Body)
	}
	e.Drain()

	if cached, ok := e.lookup(ctx, e.Generations().Static, url); !ok || string(cached.Body) != `"old"` {
		t.Error("stale entry lost after failed revalidation")
	}
}

func TestCacheFirst_HitSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	buckets := NewMemoryBuckets()
	var calls int32
	fetch := func(ctx context.Context, url string) (*Result, error) {
		atomic.AddInt32(&calls, 1)
		return okResult(`"net"`), nil
	}
	e := newEngine(buckets, fetch)
	url := "https://app.example.com/icons/icon.png"
	seed(t, buckets, e.Generations().Static, url, `"hit"`)

	res, err := e.cacheFirst(ctx, e.Generations().Static, url)
	if err != nil {
		t.Fatalf("cacheFirst() error = %v", err)
	}
	if string(res.Body) != `"hit"` || atomic.LoadInt32(&calls) != 0 {
		t.Errorf("cacheFirst() = %s, network calls = %d", res.Body, calls)
	}
}

func TestCacheFirst_MissRechecksCacheAfterNetworkFailure(t *testing.T) {
	ctx := context.Background()
	buckets := NewMemoryBuckets()
	url := "https://app.example.com/icons/icon.png"

	var e *Engine
	// Fetch fails, but a concurrent fill lands before the failure returns.
	fetch := func(ctx context.Context, u string) (*Result, error) {
		seed(t, buckets, e.Generations().Static, u, `"raced"`)
		return nil, errors.New("offline")
	}
	e = newEngine(buckets, fetch)

	res, err := e.cacheFirst(ctx, e.Generations().Static, url)
	if err != nil {
		t.Fatalf("cacheFirst() error = %v, want raced cache entry", err)
	}
	if string(res.Body) != `"raced"` {
		t.Errorf("cacheFirst() = %s, want raced entry", res.Body)
	}
}

func TestCacheFirst_MissAndFailurePropagates(t *testing.T) {
	ctx := context.Background()
	e := newEngine(NewMemoryBuckets(), fetchFailing())

	if _, err := e.cacheFirst(ctx, e.Generations().Static, "https://x/icon.png"); err == nil {
		t.Error("cacheFirst() error = nil, want propagated failure")
	}
}

func TestPrecache_FillsMissesKeepsHits(t *testing.T) {
	ctx := context.Background()
	buckets := NewMemoryBuckets()
	var calls int32
	fetch := func(ctx context.Context, url string) (*Result, error) {
		atomic.AddInt32(&calls, 1)
		return okResult(`"fetched"`), nil
	}
	e := newEngine(buckets, fetch)
	cached := "https://app.example.com/app.js"
	missing := "https://app.example.com/style.css"
	seed(t, buckets, e.Generations().Static, cached, `"kept"`)

	e.Precache(ctx, []string{cached, missing})

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("network calls = %d, want 1 (only the miss)", calls)
	}
	if res, ok := e.lookup(ctx, e.Generations().Static, cached); !ok || string(res.Body) != `"kept"` {
		t.Error("cached entry replaced during precache")
	}
	if res, ok := e.lookup(ctx, e.Generations().Static, missing); !ok || string(res.Body) != `"fetched"` {
		t.Error("missing entry not filled during precache")
	}
}

func TestClassifier(t *testing.T) {
	c := NewClassifier(apiBase, "https://api.example.com/geo/1.0")
	tests := []struct {
		url  string
		want Class
	}{
		{apiBase + "/weather?lat=1", ClassAPI},
		{"https://api.example.com/geo/1.0/direct?q=x", ClassAPI},
		{"https://app.example.com/", ClassDocument},
		{"https://app.example.com/index.html", ClassDocument},
		{"https://app.example.com/forecast", ClassDocument},
		{"https://app.example.com/js/app.js", ClassStatic},
		{"https://app.example.com/css/style.css", ClassStatic},
		{"https://app.example.com/icons/icon-192.png", ClassStatic},
		{"https://app.example.com/manifest.json", ClassStatic},
		{"https://app.example.com/data/export.csv", ClassOther},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.url); got != tt.want {
			t.Errorf("Classify(%s) = %s, want %s", tt.url, got, tt.want)
		}
	}
}

func TestStaleGenerations(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		known    []string
		want     []string
	}{
		{"all current", []string{"static-v2", "api-v2"}, []string{"static-v2", "api-v2", "runtime-v2"}, nil},
		{"old build purged", []string{"static-v1", "static-v2", "api-v1"}, []string{"static-v2", "api-v2"}, []string{"static-v1", "api-v1"}},
		{"empty existing", nil, []string{"static-v2"}, nil},
		{"empty known purges all", []string{"static-v1"}, nil, []string{"static-v1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StaleGenerations(tt.existing, tt.known)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("StaleGenerations(%v, %v) = %v, want %v", tt.existing, tt.known, got, tt.want)
			}
		})
	}
}

func TestEngine_ActivatePurgesStaleGenerations(t *testing.T) {
	ctx := context.Background()
	buckets := NewMemoryBuckets()
	seed(t, buckets, "static-v0", "https://x/app.js", `"old"`)
	seed(t, buckets, "api-v0", "https://x/weather", `"old"`)

	e := newEngine(buckets, fetchReturning(`"x"`))
	seed(t, buckets, e.Generations().Static, "https://x/app.js", `"current"`)

	if err := e.Activate(ctx); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	names, err := buckets.Buckets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if name == "static-v0" || name == "api-v0" {
			t.Errorf("stale generation %s survived activation", name)
		}
	}
	if _, ok, _ := buckets.Get(ctx, e.Generations().Static, "https://x/app.js"); !ok {
		t.Error("current generation entry purged")
	}
}

func TestFileBuckets(t *testing.T) {
	ctx := context.Background()
	fb, err := NewFileBuckets(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := fb.Set(ctx, "static-v1", "https://x/app.js", []byte(`{"status":200}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := fb.Get(ctx, "static-v1", "https://x/app.js")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v err %v", ok, err)
	}
	if string(got) != `{"status":200}` {
		t.Errorf("Get() = %s", got)
	}

	names, err := fb.Buckets(ctx)
	if err != nil || len(names) != 1 || names[0] != "static-v1" {
		t.Errorf("Buckets() = %v, %v", names, err)
	}

	if err := fb.DeleteBucket(ctx, "static-v1"); err != nil {
		t.Fatalf("DeleteBucket() error = %v", err)
	}
	if _, ok, _ := fb.Get(ctx, "static-v1", "https://x/app.js"); ok {
		t.Error("entry survived bucket purge")
	}
}
