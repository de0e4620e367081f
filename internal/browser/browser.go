// Package browser wraps chromedp behind the loader contract the pipeline
// consumes: navigate, wait for the expected selector to attach, expand
// accordion panels where needed, and hand back an HTML snapshot.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/priceharvest/internal/scrapeerr"
	"github.com/user/priceharvest/internal/site"
)

const userAgent = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36`

// Loader is the document query capability the paginator and the harvest
// workers depend on.
type Loader interface {
	// LoadCategoryPage navigates to a category listing page and returns its
	// HTML once the product grid has attached.
	LoadCategoryPage(ctx context.Context, url string) (string, error)
	// LoadProductPage navigates to a product detail page, expands every
	// retailer panel and returns the HTML snapshot.
	LoadProductPage(ctx context.Context, url string) (string, error)
}

// Options tunes the Chrome session.
type Options struct {
	Headless        bool
	NavTimeout      time.Duration
	SelectorTimeout time.Duration
}

// Chrome is the chromedp-backed Loader. One exec allocator (browser process)
// is shared across the run; every load opens its own browser context, so
// concurrent workers never share navigation state.
type Chrome struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	opts        Options
	log         *zap.Logger
}

// expandPanelsJS clicks every retailer button when more than one exists.
// With a single retailer the panel is already expanded by default.
const expandPanelsJS = `(() => {
	const buttons = document.querySelectorAll(%q);
	if (buttons.length > 1) {
		buttons.forEach(b => b.click());
	}
	return buttons.length;
})()`

// NewChrome starts the shared browser allocator.
func NewChrome(opts Options, log *zap.Logger) *Chrome {
	if log == nil {
		log = zap.NewNop()
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	return &Chrome{allocCtx: allocCtx, allocCancel: cancel, opts: opts, log: log}
}

// Close tears down the browser process.
func (c *Chrome) Close() {
	c.allocCancel()
}

func (c *Chrome) LoadCategoryPage(ctx context.Context, url string) (string, error) {
	html, err := c.run(ctx, url,
		chromedp.Navigate(url),
		c.waitAttached(site.SelProductImage),
	)
	if err != nil {
		return "", scrapeerr.Discovery(url, "category page failed to load", err)
	}
	return html, nil
}

func (c *Chrome) LoadProductPage(ctx context.Context, url string) (string, error) {
	var panelCount int
	html, err := c.run(ctx, url,
		chromedp.Navigate(url),
		c.waitAttached(site.SelAccordionContainer),
		chromedp.Evaluate(fmt.Sprintf(expandPanelsJS, site.SelRetailerButton), &panelCount),
		c.waitAttached(site.SelProductDetails),
	)
	if err != nil {
		return "", scrapeerr.Fetch(url, err)
	}
	return html, nil
}

// waitAttached waits for a selector to attach under the selector timeout,
// which is tighter than the whole-navigation budget.
func (c *Chrome) waitAttached(sel string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		timeout := c.opts.SelectorTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := chromedp.WaitReady(sel, chromedp.ByQuery).Do(waitCtx); err != nil {
			return fmt.Errorf("selector %s never attached: %w", sel, err)
		}
		return nil
	}
}

// run executes the actions plus a final OuterHTML snapshot in a fresh
// browser context bounded by the navigation timeout.
func (c *Chrome) run(ctx context.Context, url string, actions ...chromedp.Action) (string, error) {
	// Each load gets its own tab; the parent ctx carries run cancellation.
	taskCtx, cancel := chromedp.NewContext(c.allocCtx)
	defer cancel()

	timeout := c.opts.NavTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, timeout)
	defer timeoutCancel()

	// Stop the tab promptly when the run is aborted.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html))

	start := time.Now()
	err := chromedp.Run(taskCtx, actions...)
	c.log.Debug("page loaded",
		zap.String("url", url),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return html, nil
}
