// Package paginate discovers every product URL under a category by walking
// its paginated listing pages.
package paginate

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/priceharvest/internal/browser"
	"github.com/user/priceharvest/internal/domain"
	"github.com/user/priceharvest/internal/monitoring"
	"github.com/user/priceharvest/internal/scrapeerr"
	"github.com/user/priceharvest/internal/site"
)

// ErrNotPaginated signals that the category page rendered without a
// pagination control. Distinct from a page with zero products: the caller
// must retry or abort, never silently accept an empty category.
var ErrNotPaginated = errors.New("category page has no pagination control")

// Paginator enumerates product URLs for one category at a time. Discovery is
// sequential and may reuse the loader's browsing session.
type Paginator struct {
	loader  browser.Loader
	log     *zap.Logger
	metrics *monitoring.Metrics
}

func New(loader browser.Loader, log *zap.Logger, metrics *monitoring.Metrics) *Paginator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Paginator{loader: loader, log: log, metrics: metrics}
}

// Discover loads the category's first page, determines the total page count
// and collects one ProductURL per listed product across all pages, tagged
// with the category identifier.
func (p *Paginator) Discover(ctx context.Context, categoryURL string) ([]domain.ProductURL, error) {
	category := site.CategoryID(categoryURL)

	html, err := p.loader.LoadCategoryPage(ctx, categoryURL)
	if err != nil {
		return nil, err
	}

	totalPages, err := PageCount(html)
	if err != nil {
		if errors.Is(err, ErrNotPaginated) {
			return nil, err
		}
		return nil, scrapeerr.Discovery(categoryURL, "pagination control unreadable", err)
	}

	var urls []domain.ProductURL
	// Pages are walked in increasing order; the per-page URL rewrite relies
	// on a stable base URL.
	for page := 1; page <= totalPages; page++ {
		pageURL := site.PageURL(categoryURL, page)
		pageHTML, err := p.loader.LoadCategoryPage(ctx, pageURL)
		if err != nil {
			return nil, err
		}

		links := ProductLinks(pageHTML)
		for _, link := range links {
			urls = append(urls, domain.ProductURL{URL: link, Category: category})
		}
		p.log.Debug("category page discovered",
			zap.String("category", category),
			zap.Int("page", page),
			zap.Int("products", len(links)))
	}

	p.metrics.AddPages(totalPages)
	p.log.Info("category discovered",
		zap.String("category", category),
		zap.Int("pages", totalPages),
		zap.Int("products", len(urls)))
	return urls, nil
}

// PageCount reads the pagination control and returns the highest page index
// found across its labeled buttons. Button order in the DOM is not trusted.
func PageCount(html string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, err
	}

	buttons := doc.Find(site.SelPaginationButton)
	if buttons.Length() == 0 {
		return 0, ErrNotPaginated
	}

	max := 0
	buttons.Each(func(_ int, b *goquery.Selection) {
		label := b.AttrOr("aria-label", "")
		m := site.PageLabelPattern.FindStringSubmatch(label)
		if m == nil {
			return
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	})
	if max == 0 {
		return 0, errors.New("no pagination label parsed into a page number")
	}
	return max, nil
}

// ProductLinks extracts the product detail URLs from a listing page,
// resolved against the site origin.
func ProductLinks(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var links []string
	doc.Find(site.SelProductImage).Each(func(_ int, img *goquery.Selection) {
		href, ok := img.Parent().Find(site.SelProductLink).First().Attr("href")
		if !ok || href == "" {
			return
		}
		abs, err := site.AbsoluteURL(href)
		if err != nil {
			return
		}
		links = append(links, abs)
	})
	return links
}
