package harvest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/user/priceharvest/internal/browser"
	"github.com/user/priceharvest/internal/domain"
	"github.com/user/priceharvest/internal/extract"
	"github.com/user/priceharvest/internal/monitoring"
)

// ProductFetcher loads a product page through the browser and runs the
// extractor over the snapshot. It is the production Fetcher.
type ProductFetcher struct {
	loader  browser.Loader
	log     *zap.Logger
	metrics *monitoring.Metrics
}

var _ Fetcher = (*ProductFetcher)(nil)

func NewProductFetcher(loader browser.Loader, log *zap.Logger, metrics *monitoring.Metrics) *ProductFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductFetcher{loader: loader, log: log, metrics: metrics}
}

func (f *ProductFetcher) FetchProduct(ctx context.Context, pu domain.ProductURL) ([]domain.RetailerRecord, error) {
	start := time.Now()
	html, err := f.loader.LoadProductPage(ctx, pu.URL)
	if err != nil {
		return nil, err
	}

	records, err := extract.ProductRecords(html, pu, f.log)
	f.metrics.ObserveFetch(time.Since(start))
	if err != nil {
		return nil, err
	}
	return records, nil
}
