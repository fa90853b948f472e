package crawler

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"catalogcrawler/internal/model"
)

// Field names, also used as metric labels for misses.
const (
	fieldExternalID    = "external_id"
	fieldTitle         = "title"
	fieldBrand         = "brand"
	fieldPromoLabel    = "promo_label"
	fieldBreadcrumbs   = "breadcrumb_path"
	fieldSpecialPrice  = "special_price"
	fieldOriginalPrice = "original_price"
	fieldDescription   = "description"
	fieldAttributes    = "attributes"
	fieldPrimaryImage  = "primary_image"
	fieldGalleryImages = "gallery_images"
	fieldZoomImages    = "zoom_images"
)

const (
	specialPriceMarker = "specialPrice"
	discountFormat     = "Скидка %.2f%%"
)

var (
	specialPriceBlock = regexp.MustCompile(`specialPrice:(\{.*?\})`)
	specialPriceValue = regexp.MustCompile(`price:"([^"]+)"`)
)

// fieldStep fills one part of ProductFields and reports whether it found it.
type fieldStep struct {
	name string
	run  func(doc *goquery.Document, f *ProductFields) bool
}

var productSteps = []fieldStep{
	{fieldExternalID, func(doc *goquery.Document, f *ProductFields) bool {
		// Same selector the catalog's generic property values use; kept as is,
		// so the first value on the page with text of its own wins.
		f.ExternalID = firstText(doc.Find("span.value"))
		return f.ExternalID != ""
	}},
	{fieldTitle, func(doc *goquery.Document, f *ProductFields) bool {
		f.Title = firstText(doc.Find("h1.title"))
		return f.Title != ""
	}},
	{fieldBrand, func(doc *goquery.Document, f *ProductFields) bool {
		f.Brand = firstText(doc.Find(".properties p:nth-child(1) .value a"))
		return f.Brand != ""
	}},
	{fieldPromoLabel, func(doc *goquery.Document, f *ProductFields) bool {
		f.PromoLabel = firstText(doc.Find("p.special-auth"))
		return f.PromoLabel != ""
	}},
	{fieldBreadcrumbs, func(doc *goquery.Document, f *ProductFields) bool {
		f.Breadcrumbs = textNodes(doc.Find("div.breadcrumbs span"))
		return len(f.Breadcrumbs) > 0
	}},
	{fieldSpecialPrice, func(doc *goquery.Document, f *ProductFields) bool {
		v, ok := specialPrice(doc)
		if ok {
			f.SpecialPrice = &v
		}
		return ok
	}},
	{fieldOriginalPrice, func(doc *goquery.Document, f *ProductFields) bool {
		v, ok := originalPrice(doc)
		if ok {
			f.OriginalPrice = &v
		}
		return ok
	}},
	{fieldDescription, func(doc *goquery.Document, f *ProductFields) bool {
		f.Description = firstText(doc.Find(".product-details .description"))
		return f.Description != ""
	}},
	{fieldAttributes, func(doc *goquery.Document, f *ProductFields) bool {
		f.Properties = properties(doc)
		return len(f.Properties) > 0
	}},
	{fieldPrimaryImage, func(doc *goquery.Document, f *ProductFields) bool {
		f.MainImage = strings.TrimSpace(doc.Find("div.product-images img.normal[src]").First().AttrOr("src", ""))
		return f.MainImage != ""
	}},
	{fieldGalleryImages, func(doc *goquery.Document, f *ProductFields) bool {
		f.SetImages = attrValues(doc.Find("div.product-images link[itemprop='contentUrl'][href]"), "href")
		return len(f.SetImages) > 0
	}},
	{fieldZoomImages, func(doc *goquery.Document, f *ProductFields) bool {
		f.ZoomImages = attrValues(doc.Find("div.product-images img.zoom[src]"), "src")
		return len(f.ZoomImages) > 0
	}},
}

// specialPrice digs the sale price out of the inline state script.
func specialPrice(doc *goquery.Document) (float64, bool) {
	var script string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := s.Text(); strings.Contains(t, specialPriceMarker) {
			script = t
			return false
		}
		return true
	})
	if script == "" {
		return 0, false
	}
	block := specialPriceBlock.FindStringSubmatch(script)
	if block == nil {
		return 0, false
	}
	m := specialPriceValue.FindStringSubmatch(block[1])
	if m == nil {
		return 0, false
	}
	return parsePrice(m[1])
}

func originalPrice(doc *goquery.Document) (float64, bool) {
	content, ok := doc.Find("div.price-quantity-block > div > meta[itemprop='price']").First().Attr("content")
	if !ok {
		return 0, false
	}
	return parsePrice(content)
}

// parsePrice treats malformed and non-finite numbers as absent.
func parsePrice(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// properties pairs each property title with its value. Blocks missing either
// side are skipped, and the reserved description key cannot be overwritten.
func properties(doc *goquery.Document) map[string]string {
	props := make(map[string]string)
	doc.Find("div.properties p.property").Each(func(_ int, p *goquery.Selection) {
		key := firstText(p.Find("span.title"))
		value := firstText(p.Find("span.value"))
		if key == "" || value == "" || key == model.DescriptionKey {
			return
		}
		props[key] = value
	})
	return props
}

// computePricing derives the current price and the discount label. A zero or
// missing original price leaves the label unset.
func computePricing(special, original *float64) (current *float64, label *string) {
	switch {
	case special != nil:
		current = float64Ptr(*special)
	case original != nil:
		current = float64Ptr(*original)
	}
	if special == nil || original == nil || *original <= 0 {
		return current, nil
	}
	pct := (*original - *special) / *original * 100
	l := fmt.Sprintf(discountFormat, pct)
	return current, &l
}

func float64Ptr(v float64) *float64 { return &v }
