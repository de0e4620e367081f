// Package normalize turns the raw strings scraped from retailer panels into
// typed values. All functions are pure; absent or unrecognized input
// degrades to nil fields, and only a malformed numeric token in a price
// field is an error.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/user/priceharvest/internal/domain"
	"github.com/user/priceharvest/internal/scrapeerr"
	"github.com/user/priceharvest/internal/site"
)

// noDiscountSentinel is the literal the site renders when no discount is
// active.
const noDiscountSentinel = "– –"

var datePattern = regexp.MustCompile(`(\d{2}\.\d{2}\.\d{4})`)

// stripPrice removes non-breaking spaces, the currency symbol and the
// "(bez DPH)" qualifier from a price string.
func stripPrice(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "€", "")
	s = strings.ReplaceAll(s, "(bez DPH)", "")
	return strings.TrimSpace(s)
}

// parseDecimal parses a comma-decimal numeric token.
func parseDecimal(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, ",", ".")), 64)
}

// Price normalizes a price string into a single value or a min–max range.
// Empty input after stripping yields the zero Price, not zero euros.
func Price(raw string) (domain.Price, error) {
	s := stripPrice(raw)
	if s == "" {
		return domain.Price{}, nil
	}

	sep := ""
	switch {
	case strings.Contains(s, "–"):
		sep = "–"
	case strings.Contains(s, "-"):
		sep = "-"
	}

	if sep != "" {
		parts := strings.SplitN(s, sep, 2)
		min, err := parseDecimal(parts[0])
		if err != nil {
			return domain.Price{}, scrapeerr.Normalization("malformed range minimum "+strconv.Quote(raw), err)
		}
		max, err := parseDecimal(parts[1])
		if err != nil {
			return domain.Price{}, scrapeerr.Normalization("malformed range maximum "+strconv.Quote(raw), err)
		}
		return domain.Price{Min: &min, Max: &max}, nil
	}

	v, err := parseDecimal(s)
	if err != nil {
		return domain.Price{}, scrapeerr.Normalization("malformed price "+strconv.Quote(raw), err)
	}
	return domain.Price{Single: &v}, nil
}

// UnitPrice normalizes a unit-price string, extracting the unit-of-measure
// after "/" separately so it is excluded from the numeric parse.
func UnitPrice(raw string) (domain.Price, string, error) {
	s := stripPrice(raw)
	unit := ""
	if i := strings.Index(s, "/"); i >= 0 {
		unit = strings.TrimSpace(s[i+1:])
		s = strings.TrimSpace(s[:i])
	}
	price, err := Price(s)
	return price, unit, err
}

// VATRate parses a percentage string ("19 %" -> 19.0). Absent or
// unparsable input degrades to nil.
func VATRate(raw string) *float64 {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if s == "" {
		return nil
	}
	v, err := parseDecimal(s)
	if err != nil {
		return nil
	}
	return &v
}

// DiscountEndDate extracts the first dd.mm.yyyy date from the discount text.
// The no-discount sentinel and text without a date both yield nil.
func DiscountEndDate(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" || s == noDiscountSentinel {
		return nil
	}
	match := datePattern.FindString(s)
	if match == "" {
		return nil
	}
	t, err := time.Parse("02.01.2006", match)
	if err != nil {
		return nil
	}
	return &t
}

// Origin classifies free-text country-of-origin: any string containing the
// domestic country name, in any case, is domestic; everything else,
// including the empty string, is foreign.
func Origin(raw string) domain.Origin {
	if strings.Contains(strings.ToLower(raw), site.DomesticCountry) {
		return domain.OriginDomestic
	}
	return domain.OriginForeign
}

// Record normalizes a full raw retailer record. It errors only when a price
// field carries a malformed numeric token; every other absence degrades to
// a nil or empty field.
func Record(raw domain.RawRetailerRecord) (domain.RetailerRecord, error) {
	rec := domain.RetailerRecord{
		Retailer:    raw.Retailer,
		ProductName: raw.ProductName,
		ProductURL:  raw.ProductURL,
		Category:    raw.Category,
		PackageSize: strings.TrimSpace(raw.PackageSize),
		Producer:    strings.TrimSpace(raw.Producer),
		Distributor: strings.TrimSpace(raw.Distributor),
	}

	var err error
	if rec.PriceWithVAT, err = Price(raw.PriceWithVAT); err != nil {
		return domain.RetailerRecord{}, err
	}
	if rec.PriceWithoutVAT, err = Price(raw.PriceWithoutVAT); err != nil {
		return domain.RetailerRecord{}, err
	}
	if rec.UnitPrice, rec.Unit, err = UnitPrice(raw.UnitPrice); err != nil {
		return domain.RetailerRecord{}, err
	}

	rec.VATRate = VATRate(raw.VATRate)
	rec.DiscountEndDate = DiscountEndDate(raw.DiscountText)
	if raw.CountryOfOrigin != "" {
		rec.Origin = Origin(raw.CountryOfOrigin)
	}
	return rec, nil
}
