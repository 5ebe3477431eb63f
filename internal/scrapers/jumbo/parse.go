package jumbo

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	pageSize = 24

	tileSelector  = "article.product-container"
	titleSelector = ".title-link"
	priceSelector = ".current-price"
	unitSelector  = ".price-per-unit"
)

// Product is one row of the scraper output.
type Product struct {
	Title string
	Price string
	Unit  string
	Link  string
}

func (p Product) record() []string {
	return []string{p.Title, p.Price, p.Unit, p.Link}
}

var csvHeader = []string{"title", "price", "unit", "link"}

// ParseProducts extracts the product tiles of one listing page. Relative
// links are resolved against base.
func ParseProducts(r io.Reader, base *url.URL) ([]Product, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	var products []Product
	doc.Find(tileSelector).Each(func(_ int, tile *goquery.Selection) {
		title := tile.Find(titleSelector).First()
		name := clean(title.Text())
		if name == "" {
			return
		}
		link, _ := title.Attr("href")
		if ref, err := url.Parse(strings.TrimSpace(link)); err == nil && link != "" && base != nil {
			link = base.ResolveReference(ref).String()
		}
		products = append(products, Product{
			Title: name,
			Price: clean(tile.Find(priceSelector).First().Text()),
			Unit:  clean(tile.Find(unitSelector).First().Text()),
			Link:  link,
		})
	})
	return products, nil
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
