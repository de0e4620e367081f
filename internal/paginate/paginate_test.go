package paginate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/priceharvest/internal/browser"
)

// fakeLoader serves canned HTML per URL.
type fakeLoader struct {
	pages map[string]string
}

var _ browser.Loader = (*fakeLoader)(nil)

func (f *fakeLoader) LoadCategoryPage(_ context.Context, url string) (string, error) {
	html, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("unexpected category page %s", url)
	}
	return html, nil
}

func (f *fakeLoader) LoadProductPage(_ context.Context, url string) (string, error) {
	return "", errors.New("not a product loader")
}

func paginationButtons(labels ...string) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteString(`<button aria-label="` + l + `">x</button>`)
	}
	return b.String()
}

func listing(pagination string, hrefs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	b.WriteString(pagination)
	for _, href := range hrefs {
		b.WriteString(`<div><img alt="Obrázok produktu X"/><a href="` + href + `">X</a></div>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func TestPageCountTakesMaximumLabel(t *testing.T) {
	// Highest-indexed button is deliberately not last in the DOM.
	html := listing(paginationButtons("Stránka 2", "Stránka 14", "Stránka 3"))
	n, err := PageCount(html)
	require.NoError(t, err)
	assert.Equal(t, 14, n)
}

func TestPageCountIgnoresUnparsableLabels(t *testing.T) {
	html := listing(paginationButtons("Ďalšia strana", "Stránka 4"))
	n, err := PageCount(html)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestPageCountNotPaginated(t *testing.T) {
	_, err := PageCount(listing(""))
	assert.ErrorIs(t, err, ErrNotPaginated)
}

func TestPageCountAllLabelsUnparsable(t *testing.T) {
	_, err := PageCount(listing(paginationButtons("Predchádzajúca", "Ďalšia")))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotPaginated)
}

func TestProductLinks(t *testing.T) {
	html := listing(paginationButtons("Stránka 1"),
		"/detail/123", "https://cenyslovensko.sk/detail/456")
	links := ProductLinks(html)
	assert.Equal(t, []string{
		"https://cenyslovensko.sk/detail/123",
		"https://cenyslovensko.sk/detail/456",
	}, links)
}

func TestProductLinksSkipsImagesWithoutAnchor(t *testing.T) {
	html := `<html><body><div><img alt="Obrázok produktu X"/></div></body></html>`
	assert.Empty(t, ProductLinks(html))
}

func TestDiscover(t *testing.T) {
	category := "https://cenyslovensko.sk/vysledky-potraviny/chlieb-a-pecivo"
	loader := &fakeLoader{pages: map[string]string{
		category:                     listing(paginationButtons("Stránka 1", "Stránka 2")),
		category + "?currentPage=1":  listing(paginationButtons("Stránka 1", "Stránka 2"), "/detail/1", "/detail/2"),
		category + "?currentPage=2":  listing(paginationButtons("Stránka 1", "Stránka 2"), "/detail/3"),
	}}

	urls, err := New(loader, nil, nil).Discover(context.Background(), category)
	require.NoError(t, err)
	require.Len(t, urls, 3)
	for _, u := range urls {
		assert.Equal(t, "chlieb-a-pecivo", u.Category)
	}
	assert.Equal(t, "https://cenyslovensko.sk/detail/1", urls[0].URL)
	assert.Equal(t, "https://cenyslovensko.sk/detail/3", urls[2].URL)
}

func TestDiscoverPropagatesNotPaginated(t *testing.T) {
	category := "https://cenyslovensko.sk/vysledky-potraviny/napoje"
	loader := &fakeLoader{pages: map[string]string{
		category: listing("", "/detail/1"),
	}}
	_, err := New(loader, nil, nil).Discover(context.Background(), category)
	assert.ErrorIs(t, err, ErrNotPaginated)
}
