// Package harvest drives one full run: category discovery, deduplication,
// semaphore-bounded fetch waves with shrinking concurrency, and result
// aggregation.
package harvest

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/user/priceharvest/internal/domain"
	"github.com/user/priceharvest/internal/monitoring"
	"github.com/user/priceharvest/internal/scrapeerr"
)

// Discoverer enumerates product URLs for one category.
type Discoverer interface {
	Discover(ctx context.Context, categoryURL string) ([]domain.ProductURL, error)
}

// Fetcher loads and extracts one product page.
type Fetcher interface {
	FetchProduct(ctx context.Context, pu domain.ProductURL) ([]domain.RetailerRecord, error)
}

// Config holds every knob of a run. It is passed in at construction so
// parallel runs and tests carry independent settings.
type Config struct {
	Categories []string

	// MaxWorkers bounds wave 1; RetryWorkers bounds every later wave, since
	// failures usually indicate rate sensitivity.
	MaxWorkers   int
	RetryWorkers int
	MaxWaves     int

	DiscoveryAttempts   int
	DiscoveryRetryDelay time.Duration
	RetryCooldown       time.Duration

	// JitterMin/JitterMax delay each fetch by a random amount to avoid
	// request bursts when a wave starts.
	JitterMin time.Duration
	JitterMax time.Duration

	// FailedPreview caps how many permanently failed URLs are logged.
	FailedPreview int
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 10
	}
	if c.RetryWorkers <= 0 {
		c.RetryWorkers = 5
	}
	if c.MaxWaves <= 0 {
		c.MaxWaves = 5
	}
	if c.DiscoveryAttempts <= 0 {
		c.DiscoveryAttempts = 3
	}
	if c.DiscoveryRetryDelay <= 0 {
		c.DiscoveryRetryDelay = 3 * time.Second
	}
	if c.RetryCooldown <= 0 {
		c.RetryCooldown = 5 * time.Second
	}
	if c.JitterMin <= 0 {
		c.JitterMin = time.Second
	}
	if c.JitterMax < c.JitterMin {
		c.JitterMax = c.JitterMin + 500*time.Millisecond
	}
	if c.FailedPreview <= 0 {
		c.FailedPreview = 5
	}
	return c
}

// State names the orchestrator's current phase.
type State string

const (
	StateIdle          State = "idle"
	StateDiscovering   State = "discovering"
	StateDeduplicating State = "deduplicating"
	StateFetching      State = "fetching"
	StateRetrying      State = "retrying"
	StateDone          State = "done"
)

// Progress is a point-in-time snapshot of a running harvest.
type Progress struct {
	State     State `json:"state"`
	Wave      int   `json:"wave"`
	Total     int   `json:"total"`
	Completed int   `json:"completed"`
	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
}

// Harvester owns the retry queues and the aggregated result set for the
// duration of a run.
type Harvester struct {
	cfg     Config
	disc    Discoverer
	fetcher Fetcher
	log     *zap.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	progress Progress
}

func New(cfg Config, disc Discoverer, fetcher Fetcher, log *zap.Logger, metrics *monitoring.Metrics) *Harvester {
	if log == nil {
		log = zap.NewNop()
	}
	return &Harvester{
		cfg:      cfg.withDefaults(),
		disc:     disc,
		fetcher:  fetcher,
		log:      log,
		metrics:  metrics,
		progress: Progress{State: StateIdle},
	}
}

// Progress returns the current snapshot. Safe for concurrent use.
func (h *Harvester) Progress() Progress {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progress
}

func (h *Harvester) setProgress(update func(*Progress)) {
	h.mu.Lock()
	update(&h.progress)
	h.mu.Unlock()
}

// Run executes one full harvest. A discovery failure aborts the whole run;
// fetch failures are retried across waves and reported, never hidden.
func (h *Harvester) Run(ctx context.Context) (*domain.HarvestResult, error) {
	defer h.metrics.SetWave(0)

	all, err := h.discover(ctx)
	if err != nil {
		h.setProgress(func(p *Progress) { p.State = StateDone })
		return nil, err
	}

	h.setProgress(func(p *Progress) { p.State = StateDeduplicating })
	unique, duplicates := dedupe(all)
	if duplicates > 0 {
		h.log.Info("cross-category duplicates collapsed",
			zap.Int("duplicates", duplicates),
			zap.Int("unique", len(unique)))
	}
	h.log.Info("product pages to harvest", zap.Int("count", len(unique)))

	h.setProgress(func(p *Progress) {
		p.Total = len(unique)
		p.Completed, p.Succeeded, p.Failed = 0, 0, 0
	})

	var products [][]domain.RetailerRecord
	pending := unique
	waves := 0

	for wave := 1; wave <= h.cfg.MaxWaves && len(pending) > 0; wave++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		workers := h.cfg.MaxWorkers
		state := StateFetching
		if wave > 1 {
			workers = h.cfg.RetryWorkers
			state = StateRetrying
			h.log.Info("cooling down before retry wave",
				zap.Int("wave", wave),
				zap.Duration("cooldown", h.cfg.RetryCooldown))
			if err := sleepCtx(ctx, h.cfg.RetryCooldown); err != nil {
				return nil, err
			}
		}

		h.setProgress(func(p *Progress) { p.State = state; p.Wave = wave })
		h.metrics.SetWave(wave)
		h.log.Info("starting wave",
			zap.Int("wave", wave),
			zap.Int("urls", len(pending)),
			zap.Int("workers", workers))

		succeeded, failed := h.runWave(ctx, pending, workers)
		products = append(products, succeeded...)
		pending = failed
		waves = wave

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if len(failed) > 0 {
			h.log.Warn("wave finished with failures",
				zap.Int("wave", wave),
				zap.Int("failed", len(failed)))
		}
	}

	result := &domain.HarvestResult{
		Products:   products,
		Attempted:  len(unique),
		Duplicates: duplicates,
		Waves:      waves,
		FailedURLs: pending,
	}
	if result.Attempted > 0 {
		result.SuccessRatio = float64(len(products)) / float64(result.Attempted)
	}

	h.setProgress(func(p *Progress) { p.State = StateDone })
	h.logOutcome(result)
	return result, nil
}

// discover runs the paginator over every configured category, re-attempting
// each a fixed number of times. Partial category coverage is not acceptable
// output, so exhausted attempts abort the run.
func (h *Harvester) discover(ctx context.Context) ([]domain.ProductURL, error) {
	h.setProgress(func(p *Progress) { p.State = StateDiscovering })

	var all []domain.ProductURL
	for _, category := range h.cfg.Categories {
		var urls []domain.ProductURL
		var lastErr error

		for attempt := 1; attempt <= h.cfg.DiscoveryAttempts; attempt++ {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			urls, lastErr = h.disc.Discover(ctx, category)
			if lastErr == nil && len(urls) > 0 {
				break
			}
			if lastErr == nil {
				lastErr = scrapeerr.Discovery(category, "category yielded no products", nil)
			}
			h.metrics.IncError(string(scrapeerr.KindDiscovery))
			h.log.Warn("category discovery attempt failed",
				zap.String("category", category),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			if attempt < h.cfg.DiscoveryAttempts {
				if err := sleepCtx(ctx, h.cfg.DiscoveryRetryDelay); err != nil {
					return nil, err
				}
			}
		}

		if lastErr != nil && len(urls) == 0 {
			return nil, scrapeerr.Discovery(category, "cannot continue without all categories", lastErr)
		}
		all = append(all, urls...)
	}
	return all, nil
}

// dedupe collapses ProductURLs by URL string. The first category seen wins,
// deterministically.
func dedupe(urls []domain.ProductURL) ([]domain.ProductURL, int) {
	seen := make(map[string]bool, len(urls))
	unique := make([]domain.ProductURL, 0, len(urls))
	for _, u := range urls {
		if seen[u.URL] {
			continue
		}
		seen[u.URL] = true
		unique = append(unique, u)
	}
	return unique, len(urls) - len(unique)
}

// runWave fans the URLs out across a counting admission limiter. The slot is
// held for the whole unit of work, jitter included, and outcomes funnel
// through a single channel into this goroutine.
func (h *Harvester) runWave(ctx context.Context, urls []domain.ProductURL, workers int) ([][]domain.RetailerRecord, []domain.ProductURL) {
	sem := semaphore.NewWeighted(int64(workers))
	outcomes := make(chan domain.FetchOutcome)

	var wg sync.WaitGroup
	for _, pu := range urls {
		wg.Add(1)
		go func(pu domain.ProductURL) {
			defer wg.Done()
			outcomes <- h.fetchOne(ctx, pu, sem)
		}(pu)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var succeeded [][]domain.RetailerRecord
	var failed []domain.ProductURL
	remaining := len(urls)

	for outcome := range outcomes {
		remaining--
		h.metrics.SetQueued(remaining)

		if outcome.Success() {
			succeeded = append(succeeded, outcome.Records)
			h.metrics.IncProcessed("success")
			h.setProgress(func(p *Progress) { p.Completed++; p.Succeeded++ })
			continue
		}

		failed = append(failed, outcome.URL)
		h.metrics.IncProcessed("failure")
		if outcome.Err != nil {
			h.metrics.IncError(errKind(outcome.Err))
		}
		h.setProgress(func(p *Progress) { p.Completed++; p.Failed++ })
		h.log.Debug("product fetch failed",
			zap.String("url", outcome.URL.URL),
			zap.Error(outcome.Err))
	}
	return succeeded, failed
}

// fetchOne acquires a concurrency slot, applies the politeness jitter, and
// attempts one product. The slot is released only after the whole unit of
// work completes.
func (h *Harvester) fetchOne(ctx context.Context, pu domain.ProductURL, sem *semaphore.Weighted) domain.FetchOutcome {
	if err := sem.Acquire(ctx, 1); err != nil {
		return domain.FetchOutcome{URL: pu, Err: err}
	}
	defer sem.Release(1)

	if err := sleepCtx(ctx, h.jitter()); err != nil {
		return domain.FetchOutcome{URL: pu, Err: err}
	}

	records, err := h.fetcher.FetchProduct(ctx, pu)
	if err != nil {
		return domain.FetchOutcome{URL: pu, Err: err}
	}
	if len(records) == 0 {
		// A product page without retailer panels usually rendered wrong;
		// worth another look next wave.
		return domain.FetchOutcome{URL: pu, Err: scrapeerr.New(scrapeerr.KindFetch, pu.URL, "no retailer records extracted", nil)}
	}
	return domain.FetchOutcome{URL: pu, Records: records}
}

func (h *Harvester) jitter() time.Duration {
	window := h.cfg.JitterMax - h.cfg.JitterMin
	if window <= 0 {
		return h.cfg.JitterMin
	}
	return h.cfg.JitterMin + time.Duration(rand.Int63n(int64(window)))
}

func (h *Harvester) logOutcome(result *domain.HarvestResult) {
	h.log.Info("harvest finished",
		zap.Int("products", len(result.Products)),
		zap.Int("attempted", result.Attempted),
		zap.Int("waves", result.Waves),
		zap.Float64("success_ratio", result.SuccessRatio))

	if len(result.FailedURLs) == 0 {
		return
	}
	preview := result.FailedURLs
	if len(preview) > h.cfg.FailedPreview {
		preview = preview[:h.cfg.FailedPreview]
	}
	for _, pu := range preview {
		h.log.Error("permanently failed", zap.String("url", pu.URL), zap.String("category", pu.Category))
	}
	h.log.Error("URLs failed after all waves",
		zap.Int("failed", len(result.FailedURLs)),
		zap.Int("previewed", len(preview)))
}

func errKind(err error) string {
	var serr *scrapeerr.Error
	if errors.As(err, &serr) {
		return string(serr.Kind)
	}
	return "fetch"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
