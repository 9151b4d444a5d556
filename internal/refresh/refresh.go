// Package refresh runs the background jobs: the recurring severe-weather
// check over saved locations and the static-asset revalidation sweep. Both
// are best-effort; a failed tick leaves existing state untouched.
package refresh

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weathercache/internal/models"
	"github.com/kjstillabower/weathercache/internal/service"
	"github.com/kjstillabower/weathercache/internal/store"
	"github.com/kjstillabower/weathercache/internal/strategy"
)

// Notifier receives severe-weather events. The HTTP layer exposes them to
// the UI; the default implementation just logs.
type Notifier interface {
	Notify(loc models.Location, event string)
}

// LogNotifier logs alerts through zap.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Notify(loc models.Location, event string) {
	n.Logger.Warn("severe weather alert",
		zap.String("location", loc.Name),
		zap.String("event", event))
}

// Runner schedules the periodic jobs.
type Runner struct {
	scheduler *gocron.Scheduler
	svc       *service.WeatherService
	fetcher   service.Fetcher
	cache     *store.DomainCache
	engine    *strategy.Engine
	notifier  Notifier
	logger    *zap.Logger

	alertInterval time.Duration
	assetInterval time.Duration
	assetURLs     []string
	jobTimeout    time.Duration
}

// New creates a Runner. assetURLs are the static resources revalidated each
// tick; alertInterval defaults to hourly, assetInterval to one minute.
func New(svc *service.WeatherService, fetcher service.Fetcher, cache *store.DomainCache, engine *strategy.Engine,
	notifier Notifier, alertInterval, assetInterval time.Duration, assetURLs []string, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	if alertInterval <= 0 {
		alertInterval = time.Hour
	}
	if assetInterval <= 0 {
		assetInterval = time.Minute
	}
	return &Runner{
		scheduler:     gocron.NewScheduler(time.UTC),
		svc:           svc,
		fetcher:       fetcher,
		cache:         cache,
		engine:        engine,
		notifier:      notifier,
		logger:        logger,
		alertInterval: alertInterval,
		assetInterval: assetInterval,
		assetURLs:     assetURLs,
		jobTimeout:    30 * time.Second,
	}
}

// Start schedules the jobs and starts the scheduler asynchronously.
func (r *Runner) Start() error {
	if _, err := r.scheduler.Every(r.alertInterval).Do(r.alertTick); err != nil {
		return err
	}
	if r.engine != nil && len(r.assetURLs) > 0 {
		if _, err := r.scheduler.Every(r.assetInterval).Do(r.assetTick); err != nil {
			return err
		}
	}
	r.scheduler.StartAsync()
	return nil
}

// Stop cancels all future ticks. In-flight ticks finish on their own timeout.
func (r *Runner) Stop() {
	r.scheduler.Stop()
}

// alertTick refreshes the domain-cache slots for the active location and
// checks every saved location for severe conditions.
func (r *Runner) alertTick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.jobTimeout)
	defer cancel()

	r.svc.WarmSnapshots(ctx)
	r.CheckAlerts(ctx)
}

// CheckAlerts fetches current conditions for each saved location and fires
// the notifier for severe ones. Fetch failures skip the location; alerting
// is opportunistic by design.
func (r *Runner) CheckAlerts(ctx context.Context) {
	for _, loc := range r.cache.SavedLocations(ctx) {
		payload, err := r.fetcher.FetchWeather(ctx, loc.Lat, loc.Lon, models.KindCurrent)
		if err != nil {
			r.logger.Debug("alert check fetch failed", zap.String("location", loc.Name), zap.Error(err))
			continue
		}
		if event, severe := severeEvent(payload); severe {
			r.notifier.Notify(loc, event)
		}
	}
}

// assetTick revalidates each configured static asset through the strategy
// engine; stale-while-revalidate does the actual refreshing.
func (r *Runner) assetTick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.jobTimeout)
	defer cancel()

	for _, url := range r.assetURLs {
		if _, err := r.engine.Do(ctx, url); err != nil {
			r.logger.Debug("asset revalidation failed", zap.String("url", url), zap.Error(err))
		}
	}
}

// severeEvent inspects the leading weather condition of a current-weather
// payload. Condition ids follow the provider's grouping: 2xx thunderstorm,
// plus the extreme atmosphere codes.
func severeEvent(payload json.RawMessage) (string, bool) {
	var p struct {
		Weather []struct {
			ID          int    `json:"id"`
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || len(p.Weather) == 0 {
		return "", false
	}
	w := p.Weather[0]
	if !severeConditionID(w.ID) {
		return "", false
	}
	if w.Description != "" {
		return w.Description, true
	}
	return w.Main, true
}

func severeConditionID(id int) bool {
	if id >= 200 && id < 300 {
		return true
	}
	switch id {
	case 762, 771, 781: // volcanic ash, squalls, tornado
		return true
	}
	return false
}
