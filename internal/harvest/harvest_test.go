package harvest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/priceharvest/internal/domain"
	"github.com/user/priceharvest/internal/scrapeerr"
)

// fastConfig keeps waves snappy in tests.
func fastConfig(categories ...string) Config {
	return Config{
		Categories:          categories,
		MaxWorkers:          3,
		RetryWorkers:        2,
		MaxWaves:            5,
		DiscoveryAttempts:   3,
		DiscoveryRetryDelay: time.Millisecond,
		RetryCooldown:       time.Millisecond,
		JitterMin:           time.Microsecond,
		JitterMax:           2 * time.Microsecond,
	}
}

// mockDiscoverer returns canned URL sets per category, optionally failing a
// number of times first.
type mockDiscoverer struct {
	mu        sync.Mutex
	urls      map[string][]domain.ProductURL
	failFirst map[string]int
	calls     map[string]int
}

var _ Discoverer = (*mockDiscoverer)(nil)

func (m *mockDiscoverer) Discover(_ context.Context, category string) ([]domain.ProductURL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[category]++
	if m.failFirst[category] >= m.calls[category] {
		return nil, scrapeerr.Discovery(category, "transient discovery failure", nil)
	}
	return m.urls[category], nil
}

// mockFetcher records one dummy retailer record per URL, failing each URL a
// configured number of times before succeeding.
type mockFetcher struct {
	mu        sync.Mutex
	failures  map[string]int
	attempts  map[string]int
	inFlight  int64
	maxSeen   int64
	emptyURLs map[string]bool
}

var _ Fetcher = (*mockFetcher)(nil)

func (m *mockFetcher) FetchProduct(_ context.Context, pu domain.ProductURL) ([]domain.RetailerRecord, error) {
	cur := atomic.AddInt64(&m.inFlight, 1)
	defer atomic.AddInt64(&m.inFlight, -1)
	for {
		seen := atomic.LoadInt64(&m.maxSeen)
		if cur <= seen || atomic.CompareAndSwapInt64(&m.maxSeen, seen, cur) {
			break
		}
	}

	m.mu.Lock()
	if m.attempts == nil {
		m.attempts = make(map[string]int)
	}
	m.attempts[pu.URL]++
	attempt := m.attempts[pu.URL]
	failures := m.failures[pu.URL]
	empty := m.emptyURLs[pu.URL]
	m.mu.Unlock()

	if attempt <= failures {
		return nil, scrapeerr.Fetch(pu.URL, errors.New("injected failure"))
	}
	if empty {
		return nil, nil
	}
	return []domain.RetailerRecord{{Retailer: "Lidl", ProductURL: pu.URL, Category: pu.Category}}, nil
}

func urlsFor(category string, urls ...string) []domain.ProductURL {
	out := make([]domain.ProductURL, 0, len(urls))
	for _, u := range urls {
		out = append(out, domain.ProductURL{URL: u, Category: category})
	}
	return out
}

func TestRunHappyPath(t *testing.T) {
	disc := &mockDiscoverer{urls: map[string][]domain.ProductURL{
		"bread": urlsFor("bread", "u1", "u2", "u3"),
	}}
	fetcher := &mockFetcher{}

	h := New(fastConfig("bread"), disc, fetcher, nil, nil)
	result, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Products, 3)
	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 1, result.Waves)
	assert.Equal(t, 1.0, result.SuccessRatio)
	assert.Empty(t, result.FailedURLs)
	assert.Equal(t, StateDone, h.Progress().State)
}

func TestRunDeduplicatesAcrossCategories(t *testing.T) {
	disc := &mockDiscoverer{urls: map[string][]domain.ProductURL{
		"bread": urlsFor("bread", "u1"),
		"dairy": urlsFor("dairy", "u2", "u1"),
	}}
	fetcher := &mockFetcher{}

	h := New(fastConfig("bread", "dairy"), disc, fetcher, nil, nil)
	result, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Attempted, "u1 appears once, not twice")
	assert.Equal(t, 1, result.Duplicates)

	// First-seen category wins for the deduplicated URL.
	categories := map[string]string{}
	for _, records := range result.Products {
		categories[records[0].ProductURL] = records[0].Category
	}
	assert.Equal(t, "bread", categories["u1"])
	assert.Equal(t, "dairy", categories["u2"])
}

func TestRunRetriesConvergeInTwoWaves(t *testing.T) {
	urls := urlsFor("bread", "u1", "u2", "u3", "u4", "u5")
	disc := &mockDiscoverer{urls: map[string][]domain.ProductURL{"bread": urls}}
	// Every URL fails exactly once.
	fetcher := &mockFetcher{failures: map[string]int{
		"u1": 1, "u2": 1, "u3": 1, "u4": 1, "u5": 1,
	}}

	h := New(fastConfig("bread"), disc, fetcher, nil, nil)
	result, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Waves, "fail-once URLs converge in exactly two waves")
	assert.Equal(t, 1.0, result.SuccessRatio)
	assert.Empty(t, result.FailedURLs)
	assert.Len(t, result.Products, 5)
}

func TestRunReportsPermanentFailures(t *testing.T) {
	disc := &mockDiscoverer{urls: map[string][]domain.ProductURL{
		"bread": urlsFor("bread", "u1", "u2"),
	}}
	fetcher := &mockFetcher{failures: map[string]int{"u2": 100}}

	cfg := fastConfig("bread")
	cfg.MaxWaves = 3
	h := New(cfg, disc, fetcher, nil, nil)
	result, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Waves)
	assert.Len(t, result.Products, 1)
	require.Len(t, result.FailedURLs, 1)
	assert.Equal(t, "u2", result.FailedURLs[0].URL)
	assert.InDelta(t, 0.5, result.SuccessRatio, 1e-9, "ratio reflects partial data, never a silent 100%")
}

func TestRunTreatsEmptyExtractionAsFailure(t *testing.T) {
	disc := &mockDiscoverer{urls: map[string][]domain.ProductURL{
		"bread": urlsFor("bread", "u1"),
	}}
	fetcher := &mockFetcher{emptyURLs: map[string]bool{"u1": true}}

	cfg := fastConfig("bread")
	cfg.MaxWaves = 2
	result, err := New(cfg, disc, fetcher, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Products)
	assert.Len(t, result.FailedURLs, 1)
}

func TestRunBoundsConcurrency(t *testing.T) {
	urls := make([]string, 30)
	for i := range urls {
		urls[i] = string(rune('a' + i%26)) + string(rune('0'+i/26))
	}
	disc := &mockDiscoverer{urls: map[string][]domain.ProductURL{
		"bread": urlsFor("bread", urls...),
	}}
	fetcher := &mockFetcher{}

	cfg := fastConfig("bread")
	cfg.MaxWorkers = 4
	_, err := New(cfg, disc, fetcher, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, fetcher.maxSeen, int64(4), "in-flight fetches must respect the wave ceiling")
}

func TestRunAbortsWhenDiscoveryExhausted(t *testing.T) {
	disc := &mockDiscoverer{
		urls:      map[string][]domain.ProductURL{"bread": urlsFor("bread", "u1")},
		failFirst: map[string]int{"dairy": 100},
	}
	fetcher := &mockFetcher{}

	h := New(fastConfig("bread", "dairy"), disc, fetcher, nil, nil)
	_, err := h.Run(context.Background())
	require.Error(t, err, "partial category coverage is not acceptable output")

	var serr *scrapeerr.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, scrapeerr.KindDiscovery, serr.Kind)
	assert.Equal(t, 3, disc.calls["dairy"], "discovery re-attempted the configured number of times")
}

func TestRunDiscoveryRecoversWithinAttempts(t *testing.T) {
	disc := &mockDiscoverer{
		urls:      map[string][]domain.ProductURL{"bread": urlsFor("bread", "u1")},
		failFirst: map[string]int{"bread": 2},
	}
	fetcher := &mockFetcher{}

	result, err := New(fastConfig("bread"), disc, fetcher, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempted)
	assert.Equal(t, 3, disc.calls["bread"])
}

func TestRunStopsOnCancellation(t *testing.T) {
	urls := make([]string, 50)
	for i := range urls {
		urls[i] = string(rune('a'+i%26)) + string(rune('0'+i/26))
	}
	disc := &mockDiscoverer{urls: map[string][]domain.ProductURL{
		"bread": urlsFor("bread", urls...),
	}}
	fetcher := &mockFetcher{}

	cfg := fastConfig("bread")
	cfg.MaxWorkers = 1
	cfg.JitterMin = 50 * time.Millisecond
	cfg.JitterMax = 51 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := New(cfg, disc, fetcher, nil, nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
