package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/user/priceharvest/internal/domain"
	"github.com/user/priceharvest/internal/scrapeerr"
	"github.com/user/priceharvest/internal/site"
)

// PostgresStore is the persistence gateway for products and price records.
type PostgresStore struct {
	db  *pgxpool.Pool
	log *zap.Logger

	mu          sync.Mutex
	retailerIDs map[string]int
}

func NewPostgresStore(ctx context.Context, connString string, log *zap.Logger) (*PostgresStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db, log: log, retailerIDs: make(map[string]int)}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// ResolveRetailerID maps a scraped retailer name, case-insensitively, to its
// database id. Resolved ids are cached for the lifetime of the store since
// the retailer table is fixed.
func (s *PostgresStore) ResolveRetailerID(ctx context.Context, name string) (int, error) {
	canonical, ok := site.CanonicalRetailer(name)
	if !ok {
		return 0, scrapeerr.Persistence("retailer "+name+" not recognized", nil)
	}

	s.mu.Lock()
	if id, ok := s.retailerIDs[canonical]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	var id int
	err := s.db.QueryRow(ctx, `SELECT id FROM retailers WHERE name = $1`, canonical).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, scrapeerr.Persistence("retailer "+canonical+" not found in database", nil)
	}
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.retailerIDs[canonical] = id
	s.mu.Unlock()
	return id, nil
}

// UpsertProduct returns the product id for a URL, creating the row on first
// sight. An existing row keeps its originally recorded category and only has
// its last_seen timestamp touched.
func (s *PostgresStore) UpsertProduct(ctx context.Context, rec domain.RetailerRecord) (int, error) {
	var id int
	err := s.db.QueryRow(ctx, `SELECT id FROM products WHERE product_url = $1`, rec.ProductURL).Scan(&id)
	switch err {
	case nil:
		_, err = s.db.Exec(ctx,
			`UPDATE products SET last_seen = CURRENT_TIMESTAMP WHERE id = $1`, id)
		return id, err
	case pgx.ErrNoRows:
		// fall through to insert
	default:
		return 0, err
	}

	origin := ""
	if rec.Origin != "" {
		origin = string(rec.Origin)
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO products
		   (product_url, name, category, package_size, country_of_origin, producer, distributor)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		rec.ProductURL, rec.ProductName, rec.Category, nullable(rec.PackageSize),
		nullable(origin), nullable(rec.Producer), nullable(rec.Distributor),
	).Scan(&id)
	return id, err
}

// UpsertPrice writes one price row per (product, retailer, day); a second
// call for the same day overwrites rather than appends.
func (s *PostgresStore) UpsertPrice(ctx context.Context, productID, retailerID int, rec domain.RetailerRecord, day time.Time) (int, error) {
	var id int
	err := s.db.QueryRow(ctx,
		`INSERT INTO prices
		   (product_id, retailer_id,
		    price_with_vat, price_without_vat, unit_price, unit,
		    price_with_vat_min, price_without_vat_min, unit_price_min,
		    price_with_vat_max, price_without_vat_max, unit_price_max,
		    vat_rate, discount_end_date, date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (product_id, retailer_id, date)
		 DO UPDATE SET
		   price_with_vat = EXCLUDED.price_with_vat,
		   price_without_vat = EXCLUDED.price_without_vat,
		   unit_price = EXCLUDED.unit_price,
		   unit = EXCLUDED.unit,
		   price_with_vat_min = EXCLUDED.price_with_vat_min,
		   price_without_vat_min = EXCLUDED.price_without_vat_min,
		   unit_price_min = EXCLUDED.unit_price_min,
		   price_with_vat_max = EXCLUDED.price_with_vat_max,
		   price_without_vat_max = EXCLUDED.price_without_vat_max,
		   unit_price_max = EXCLUDED.unit_price_max,
		   vat_rate = EXCLUDED.vat_rate,
		   discount_end_date = EXCLUDED.discount_end_date,
		   created_at = CURRENT_TIMESTAMP
		 RETURNING id`,
		productID, retailerID,
		rec.PriceWithVAT.Single, rec.PriceWithoutVAT.Single, rec.UnitPrice.Single, nullable(rec.Unit),
		rec.PriceWithVAT.Min, rec.PriceWithoutVAT.Min, rec.UnitPrice.Min,
		rec.PriceWithVAT.Max, rec.PriceWithoutVAT.Max, rec.UnitPrice.Max,
		rec.VATRate, rec.DiscountEndDate, day,
	).Scan(&id)
	return id, err
}

// SaveHarvest persists every harvested product with all its retailer prices.
// Per-record failures are logged and skipped; the batch continues. Returns
// the number of price rows written.
func (s *PostgresStore) SaveHarvest(ctx context.Context, products [][]domain.RetailerRecord) (int, error) {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	saved := 0

	for _, records := range products {
		if len(records) == 0 {
			continue
		}

		productID, err := s.UpsertProduct(ctx, records[0])
		if err != nil {
			if ctx.Err() != nil {
				return saved, ctx.Err()
			}
			s.log.Error("product upsert failed",
				zap.String("url", records[0].ProductURL),
				zap.Error(err))
			continue
		}

		for _, rec := range records {
			retailerID, err := s.ResolveRetailerID(ctx, rec.Retailer)
			if err == nil {
				_, err = s.UpsertPrice(ctx, productID, retailerID, rec, day)
			}
			if err != nil {
				if ctx.Err() != nil {
					return saved, ctx.Err()
				}
				s.log.Error("price upsert failed",
					zap.String("url", rec.ProductURL),
					zap.String("retailer", rec.Retailer),
					zap.Error(err))
				continue
			}
			saved++
		}
	}
	return saved, nil
}

// nullable maps empty strings to NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
