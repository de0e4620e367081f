// Package extract assembles retailer price records from a rendered product
// page. The browser layer has already expanded every accordion panel, so the
// walk here is a pure parse over the HTML snapshot.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/priceharvest/internal/domain"
	"github.com/user/priceharvest/internal/normalize"
	"github.com/user/priceharvest/internal/scrapeerr"
	"github.com/user/priceharvest/internal/site"
)

// ProductRecords parses the rendered product page HTML and returns one
// normalized record per retailer panel. A panel that fails to parse or
// normalize is logged and skipped; the call itself errors only when the
// retailer container or the canonical product name cannot be located.
func ProductRecords(html string, pu domain.ProductURL, log *zap.Logger) ([]domain.RetailerRecord, error) {
	if log == nil {
		log = zap.NewNop()
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, scrapeerr.Extraction(pu.URL, "unparsable product document", err)
	}

	container := doc.Find(site.SelAccordionContainer).First()
	if container.Length() == 0 {
		return nil, scrapeerr.Extraction(pu.URL, "retailer container not found", nil)
	}

	buttons := container.Find(site.SelRetailerButton)
	if buttons.Length() == 0 {
		return nil, nil
	}

	var records []domain.RetailerRecord
	productName := ""

	var walkErr error
	buttons.EachWithBreak(func(idx int, button *goquery.Selection) bool {
		raw, err := retailerPanel(doc, button, pu)
		if err != nil {
			// Panel 0 carries the canonical product name; without it no
			// sibling record can be assembled.
			if idx == 0 {
				walkErr = scrapeerr.Extraction(pu.URL, "canonical panel unreadable", err)
				return false
			}
			log.Warn("skipping retailer panel",
				zap.String("url", pu.URL),
				zap.Int("panel", idx),
				zap.Error(err))
			return true
		}

		// Panel 0 is canonical for the product name; every retailer panel
		// on a page shares one product title.
		if idx == 0 {
			productName = raw.name
			if productName == "" {
				walkErr = scrapeerr.Extraction(pu.URL, "product name not found", nil)
				return false
			}
		}
		raw.record.ProductName = productName

		rec, err := normalize.Record(raw.record)
		if err != nil {
			log.Warn("skipping retailer record",
				zap.String("url", pu.URL),
				zap.String("retailer", raw.record.Retailer),
				zap.Error(err))
			return true
		}
		records = append(records, rec)
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return records, nil
}

// rawPanel couples an assembled raw record with the product name found on
// its panel.
type rawPanel struct {
	record domain.RawRetailerRecord
	name   string
}

// retailerPanel reads one retailer's collapsed summary fields and the
// attribute list on its referenced detail panel.
func retailerPanel(doc *goquery.Document, button *goquery.Selection, pu domain.ProductURL) (rawPanel, error) {
	raw := domain.RawRetailerRecord{
		Retailer:        strings.TrimSpace(button.Find(site.SelRetailerLogo).First().AttrOr("alt", "")),
		PriceWithVAT:    firstText(button, site.SelPriceWithVAT),
		PriceWithoutVAT: firstText(button, site.SelPriceWithoutVAT),
		UnitPrice:       firstText(button, site.SelUnitPrice),
		DiscountText:    firstText(button, site.SelDiscountInfo),
		ProductURL:      pu.URL,
		Category:        pu.Category,
	}
	if raw.Retailer == "" {
		return rawPanel{}, scrapeerr.Extraction(pu.URL, "retailer name missing on panel button", nil)
	}

	// The detail panel is referenced by id, never assumed positional.
	panelID, ok := button.Attr("aria-controls")
	if !ok || panelID == "" {
		return rawPanel{}, scrapeerr.Extraction(pu.URL, "panel reference missing for "+raw.Retailer, nil)
	}
	panel := doc.Find(fmt.Sprintf("[id=%q]", panelID)).First()
	if panel.Length() == 0 {
		return rawPanel{}, scrapeerr.Extraction(pu.URL, "panel "+panelID+" not attached", nil)
	}

	name := firstText(panel, site.SelProductName)

	panel.Find(site.SelProductDetails).First().Find("dt").Each(func(_ int, dt *goquery.Selection) {
		label := strings.TrimSpace(dt.Find("strong").First().Text())
		field, ok := site.FieldLabels[label]
		if !ok {
			return
		}

		parent := dt.Parent()
		var value string
		if site.MultiLineLabels[label] {
			var lines []string
			parent.Find("dd p").Each(func(_ int, p *goquery.Selection) {
				lines = append(lines, strings.TrimSpace(p.Text()))
			})
			value = strings.Join(lines, "; ")
		} else {
			value = firstText(parent, "dd p")
		}

		switch field {
		case "package_size":
			raw.PackageSize = value
		case "vat_rate":
			raw.VATRate = value
		case "country_of_origin":
			raw.CountryOfOrigin = value
		case "producer":
			raw.Producer = value
		case "distributor":
			raw.Distributor = value
		}
	})

	return rawPanel{record: raw, name: name}, nil
}

func firstText(s *goquery.Selection, selector string) string {
	return strings.TrimSpace(s.Find(selector).First().Text())
}
