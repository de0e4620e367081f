// Package site describes the cenyslovensko.sk page structure: the CSS
// selectors the scraper navigates by, the attribute labels it recognizes,
// and the retailer names it accepts. Everything that would break on a site
// redesign lives here.
package site

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Origin is the site origin used to resolve relative product hrefs.
const Origin = "https://cenyslovensko.sk"

// Category page selectors.
const (
	SelProductImage     = `img[alt^="Obrázok produktu"]`
	SelProductLink      = `a[href^="/detail/"]`
	SelPaginationButton = `button[aria-label^="Stránka"]`
)

// Product detail page selectors.
const (
	SelAccordionContainer = `div[role="region"][data-orientation="vertical"]`
	SelRetailerButton     = `button[data-orientation="vertical"]:has(img[alt])`
	SelProductName        = `div > h3`
	SelProductDetails     = `dl`
	SelRetailerLogo       = `img[alt]`
)

// Price selectors, scoped to a collapsed retailer button.
const (
	SelPriceWithVAT    = `div[aria-labelledby="header_price"] p strong`
	SelPriceWithoutVAT = `div[aria-labelledby="header_priceWithoutTax"] p`
	SelUnitPrice       = `div[aria-labelledby="header_unitPrice"] p:not(.govuk-visually-hidden)`
	SelDiscountInfo    = `div[aria-labelledby="header_discount"] p`
)

// FieldLabels is the closed mapping from the dl labels on a retailer panel
// to record fields. Labels outside this map are ignored.
var FieldLabels = map[string]string{
	"Veľkosť balenia": "package_size",
	"DPH":             "vat_rate",
	"Krajina pôvodu":  "country_of_origin",
	"Výrobca":         "producer",
	"Distribútor":     "distributor",
}

// MultiLineLabels are labels whose value may span several paragraphs; the
// lines are joined with "; " before normalization.
var MultiLineLabels = map[string]bool{
	"Krajina pôvodu": true,
	"Výrobca":        true,
	"Distribútor":    true,
}

// DomesticCountry is the native-language country name used for the
// domestic/foreign origin classification.
const DomesticCountry = "slovensko"

// retailers maps lowercased scraped retailer names to their canonical form.
var retailers = map[string]string{
	"lidl":       "Lidl",
	"kaufland":   "Kaufland",
	"tesco":      "Tesco",
	"billa":      "Billa",
	"fresh plus": "Fresh Plus",
	"terno":      "Terno",
}

// CanonicalRetailer resolves a scraped retailer name case-insensitively.
func CanonicalRetailer(name string) (string, bool) {
	canonical, ok := retailers[strings.ToLower(strings.TrimSpace(name))]
	return canonical, ok
}

// DefaultCategories are the category listing URLs harvested when no override
// is configured.
var DefaultCategories = []string{
	Origin + "/vysledky-potraviny/chlieb-a-pecivo",
	Origin + "/vysledky-potraviny/mlieko-a-mliecne-vyrobky",
	Origin + "/vysledky-potraviny/maso-a-udeniny",
	Origin + "/vysledky-potraviny/ovocie-a-zelenina",
	Origin + "/vysledky-potraviny/trvanlive-potraviny",
	Origin + "/vysledky-potraviny/mrazene-potraviny",
	Origin + "/vysledky-potraviny/napoje",
}

// PageLabelPattern extracts the page number from a pagination button's
// aria-label ("Stránka 12").
var PageLabelPattern = regexp.MustCompile(`Stránka (\d+)`)

var currentPagePattern = regexp.MustCompile(`currentPage=\d+`)

// PageURL rewrites or appends the currentPage query parameter on a category
// URL. The rewrite is textual so the rest of the URL stays byte-identical
// across pages.
func PageURL(categoryURL string, page int) string {
	param := fmt.Sprintf("currentPage=%d", page)
	if currentPagePattern.MatchString(categoryURL) {
		return currentPagePattern.ReplaceAllString(categoryURL, param)
	}
	sep := "?"
	if strings.Contains(categoryURL, "?") {
		sep = "&"
	}
	return categoryURL + sep + param
}

// CategoryID derives the category identifier from a category URL: the last
// path segment, query stripped.
func CategoryID(categoryURL string) string {
	trimmed := strings.TrimRight(categoryURL, "/")
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-1]
}

// AbsoluteURL resolves a product href against the site origin.
func AbsoluteURL(href string) (string, error) {
	if strings.HasPrefix(href, "http") {
		return href, nil
	}
	base, err := url.Parse(Origin)
	if err != nil {
		return "", err
	}
	rel, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(rel).String(), nil
}
