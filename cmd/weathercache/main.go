package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weathercache/internal/config"
	"github.com/kjstillabower/weathercache/internal/coord"
	"github.com/kjstillabower/weathercache/internal/httpapi"
	"github.com/kjstillabower/weathercache/internal/lifecycle"
	"github.com/kjstillabower/weathercache/internal/observability"
	"github.com/kjstillabower/weathercache/internal/ratelimit"
	"github.com/kjstillabower/weathercache/internal/refresh"
	"github.com/kjstillabower/weathercache/internal/service"
	"github.com/kjstillabower/weathercache/internal/store"
	"github.com/kjstillabower/weathercache/internal/strategy"
)

const maxAssetBytes = 8 << 20

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	limiter := ratelimit.New(cfg.RateLimitMaxRequests, cfg.RateLimitWindow)
	coordinator, err := coord.New(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.GeoAPIURL, cfg.WeatherAPITimeout, limiter, logger)
	if err != nil {
		logger.Fatal("coordinator", zap.Error(err))
	}

	var backend store.Store
	var storePing func() error
	var storeClose func() error
	switch cfg.StoreBackend {
	case "redis":
		rs, err := store.NewRedisStore(context.Background(), cfg.RedisAddr, "", 0)
		if err != nil {
			logger.Fatal("redis store", zap.Error(err))
		}
		backend = rs
		storePing = func() error { return rs.Ping(context.Background()) }
		storeClose = rs.Close
		logger.Info("store backend: redis", zap.String("addr", cfg.RedisAddr))
	case "memcached":
		ms, err := store.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached store", zap.Error(err))
		}
		backend = ms
		storePing = ms.Ping
		storeClose = ms.Close
		logger.Info("store backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "memory":
		backend = store.NewMemoryStore()
		logger.Info("store backend: memory")
	default:
		fs, err := store.NewFileStore(cfg.FileDir)
		if err != nil {
			logger.Fatal("file store", zap.Error(err))
		}
		backend = fs
		logger.Info("store backend: file", zap.String("dir", cfg.FileDir))
	}

	domainCache := store.NewDomainCache(backend, store.MaxAges{
		Current:      cfg.CurrentMaxAge,
		Forecast:     cfg.ForecastMaxAge,
		LastLocation: cfg.LastLocationMaxAge,
	})

	weatherService := service.NewWeatherService(coordinator, domainCache, cfg.DefaultLocation, logger)

	// Asset URLs from config are origin-relative paths; the engine and the
	// refresh sweep want absolute URLs.
	assetURLs := make([]string, 0, len(cfg.AssetURLs))
	for _, p := range cfg.AssetURLs {
		if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
			assetURLs = append(assetURLs, p)
		} else {
			assetURLs = append(assetURLs, cfg.AssetOrigin+p)
		}
	}

	var engine *strategy.Engine
	if cfg.AssetOrigin != "" {
		buckets, err := strategy.NewFileBuckets(cfg.AssetCacheDir)
		if err != nil {
			logger.Fatal("asset buckets", zap.Error(err))
		}
		assetClient := &http.Client{Timeout: cfg.WeatherAPITimeout}
		fetchAsset := func(ctx context.Context, url string) (*strategy.Result, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			resp, err := assetClient.Do(req)
			if err != nil {
				return nil, err
			}
			defer func() { _ = resp.Body.Close() }()
			body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes))
			if err != nil {
				return nil, err
			}
			return &strategy.Result{
				StatusCode:  resp.StatusCode,
				ContentType: resp.Header.Get("Content-Type"),
				Body:        body,
			}, nil
		}
		engine = strategy.NewEngine(buckets, fetchAsset, cfg.Version, []string{cfg.WeatherAPIURL, cfg.GeoAPIURL}, logger)
		if err := engine.Activate(context.Background()); err != nil {
			logger.Warn("stale generation purge failed", zap.Error(err))
		}
		if len(assetURLs) > 0 {
			precacheCtx, precacheCancel := context.WithTimeout(context.Background(), 30*time.Second)
			engine.Precache(precacheCtx, assetURLs)
			precacheCancel()
		}
	}

	if cfg.WarmAtStartup {
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		weatherService.WarmSnapshots(warmCtx)
		warmCancel()
	}

	runner := refresh.New(weatherService, coordinator, domainCache, engine, nil,
		cfg.AlertInterval, cfg.AssetSweepInterval, assetURLs, logger)
	if err := runner.Start(); err != nil {
		logger.Fatal("refresh scheduler", zap.Error(err))
	}

	healthConfig := &httpapi.HealthConfig{
		Version:   cfg.Version,
		StartTime: time.Now(),
		StorePing: storePing,
	}
	handler := httpapi.NewHandler(weatherService, domainCache, engine, coordinator, cfg.AssetOrigin, healthConfig, logger)

	inbound := rate.NewLimiter(rate.Limit(cfg.InboundRPS), cfg.InboundBurst)

	router := mux.NewRouter()
	router.Use(httpapi.CorrelationIDMiddleware(logger))
	router.Use(httpapi.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(httpapi.RateLimitMiddleware(inbound))
	api.Use(httpapi.TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/weather/current", handler.GetCurrent).Methods("GET")
	api.HandleFunc("/weather/forecast", handler.GetForecast).Methods("GET")
	api.HandleFunc("/geocode", handler.Geocode).Methods("GET")
	api.HandleFunc("/locations", handler.ListLocations).Methods("GET")
	api.HandleFunc("/locations", handler.AddLocation).Methods("POST")
	api.HandleFunc("/locations/{id}", handler.DeleteLocation).Methods("DELETE")
	api.HandleFunc("/requests/cancel", handler.CancelRequests).Methods("POST")

	if engine != nil {
		router.PathPrefix("/assets/").HandlerFunc(handler.GetAsset).Methods("GET")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	runner.Stop()
	coordinator.CancelAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	if engine != nil {
		engine.Drain()
	}
	if storeClose != nil {
		if err := storeClose(); err != nil {
			logger.Error("store close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
