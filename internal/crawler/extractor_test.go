package crawler_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogcrawler/internal/crawler"
	"catalogcrawler/internal/model"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func loadPage(t *testing.T, name, url string) model.FetchedPage {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return model.FetchedPage{URL: url, Status: 200, Body: body}
}

func htmlPage(url, body string) model.FetchedPage {
	return model.FetchedPage{URL: url, Status: 200, Body: []byte(body)}
}

type missRecorder struct {
	fields []string
}

func (m *missRecorder) FieldMissing(field string) { m.fields = append(m.fields, field) }

func newExtractor(opts ...crawler.ExtractorOption) *crawler.Extractor {
	opts = append([]crawler.ExtractorOption{crawler.WithClock(func() time.Time { return fixedNow })}, opts...)
	return crawler.NewExtractor(opts...)
}

func TestExtractProduct_FullPage(t *testing.T) {
	misses := &missRecorder{}
	x := newExtractor(crawler.WithFieldObserver(misses))
	page := loadPage(t, "detail.html", "https://fix-price.com/catalog/kosmetika/p-1-zubnaya-pasta")

	rec := x.ExtractProduct(page)

	assert.Equal(t, fixedNow.Unix(), rec.CapturedAt)
	assert.Equal(t, "123-456", rec.ExternalID)
	assert.Equal(t, page.URL, rec.SourceURL)
	assert.Equal(t, "Зубная паста отбеливающая", rec.Title)
	assert.Equal(t, "Colgate", rec.Brand)
	assert.Equal(t, "Цена для авторизованных", rec.PromoLabel)
	assert.Equal(t, []string{"Главная", "Косметика и гигиена", "Уход за полостью рта"}, rec.BreadcrumbPath)

	require.NotNil(t, rec.Pricing.Current)
	require.NotNil(t, rec.Pricing.Original)
	require.NotNil(t, rec.Pricing.DiscountLabel)
	assert.InDelta(t, 750.0, *rec.Pricing.Current, 1e-9)
	assert.InDelta(t, 1000.0, *rec.Pricing.Original, 1e-9)
	assert.Equal(t, "Скидка 25.00%", *rec.Pricing.DiscountLabel)

	assert.Equal(t, "https://img.fix-price.com/1.jpg", rec.Media.PrimaryImage)
	assert.Equal(t, []string{"https://img.fix-price.com/1.jpg", "https://img.fix-price.com/2.jpg"}, rec.Media.GalleryImages)
	assert.Equal(t, []string{"https://img.fix-price.com/zoom/1.jpg", "https://img.fix-price.com/zoom/2.jpg"}, rec.Media.ZoomImages)

	assert.Equal(t, map[string]string{
		model.DescriptionKey: "Паста для ежедневного ухода.",
		"Вес":                "100 г",
		"Страна":             "Китай",
	}, rec.Attributes)
	assert.Empty(t, misses.fields)
}

func TestExtractProduct_EmptyPage(t *testing.T) {
	misses := &missRecorder{}
	x := newExtractor(crawler.WithFieldObserver(misses))

	rec := x.ExtractProduct(htmlPage("https://fix-price.com/p/empty", "<html><body></body></html>"))

	assert.Equal(t, "https://fix-price.com/p/empty", rec.SourceURL)
	assert.Empty(t, rec.ExternalID)
	assert.Empty(t, rec.Title)
	assert.Empty(t, rec.Brand)
	assert.Empty(t, rec.PromoLabel)
	assert.NotNil(t, rec.BreadcrumbPath)
	assert.Empty(t, rec.BreadcrumbPath)
	assert.Nil(t, rec.Pricing.Current)
	assert.Nil(t, rec.Pricing.Original)
	assert.Nil(t, rec.Pricing.DiscountLabel)
	assert.Empty(t, rec.Media.PrimaryImage)
	assert.NotNil(t, rec.Media.GalleryImages)
	assert.NotNil(t, rec.Media.ZoomImages)
	assert.Equal(t, map[string]string{model.DescriptionKey: ""}, rec.Attributes)

	sort.Strings(misses.fields)
	assert.Equal(t, []string{
		"attributes", "brand", "breadcrumb_path", "description", "external_id",
		"gallery_images", "original_price", "primary_image", "promo_label",
		"special_price", "title", "zoom_images",
	}, misses.fields)
}

func TestExtractProduct_GarbageBody(t *testing.T) {
	x := newExtractor()

	assert.NotPanics(t, func() {
		rec := x.ExtractProduct(model.FetchedPage{URL: "https://fix-price.com/p/bin", Body: []byte{0xff, 0x00, '<', '<', '>'}})
		assert.Equal(t, map[string]string{model.DescriptionKey: ""}, rec.Attributes)
	})
}

func TestExtractProduct_Pricing(t *testing.T) {
	const original = `<div class="price-quantity-block"><div><meta itemprop="price" content="%s"></div></div>`
	const special = `<script>window.__S__={specialPrice:{price:"%s"}}</script>`

	tests := []struct {
		name      string
		body      string
		current   *float64
		original  *float64
		wantLabel string
	}{
		{
			name:     "no special price script",
			body:     sprintf(original, "199.9"),
			current:  ptr(199.9),
			original: ptr(199.9),
		},
		{
			name:      "special and original",
			body:      sprintf(special, "750") + sprintf(original, "1000"),
			current:   ptr(750),
			original:  ptr(1000),
			wantLabel: "Скидка 25.00%",
		},
		{
			name:     "zero original",
			body:     sprintf(special, "50") + sprintf(original, "0"),
			current:  ptr(50),
			original: ptr(0),
		},
		{
			name:    "special without original",
			body:    sprintf(special, "50"),
			current: ptr(50),
		},
		{
			name:     "malformed special",
			body:     sprintf(special, "12,50") + sprintf(original, "100"),
			current:  ptr(100),
			original: ptr(100),
		},
		{
			name: "malformed original",
			body: sprintf(original, "n/a"),
		},
		{
			name:     "marker without price block",
			body:     `<script>var specialPrice = null;</script>` + sprintf(original, "100"),
			current:  ptr(100),
			original: ptr(100),
		},
	}

	x := newExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := x.ExtractProduct(htmlPage("https://fix-price.com/p/1", "<html><head></head><body>"+tt.body+"</body></html>"))

			assertFloatPtr(t, tt.current, rec.Pricing.Current)
			assertFloatPtr(t, tt.original, rec.Pricing.Original)
			if tt.wantLabel == "" {
				assert.Nil(t, rec.Pricing.DiscountLabel)
				return
			}
			require.NotNil(t, rec.Pricing.DiscountLabel)
			assert.Equal(t, tt.wantLabel, *rec.Pricing.DiscountLabel)
		})
	}
}

func TestExtractProduct_ExternalIDSkipsLinkedValue(t *testing.T) {
	x := newExtractor()
	body := `<div class="properties">
		<p class="property"><span class="title">Бренд</span><span class="value"><a href="/brand/colgate">Colgate</a></span></p>
		<p class="property"><span class="title">Артикул</span><span class="value">123-456</span></p>
	</div>`

	rec := x.ExtractProduct(htmlPage("https://fix-price.com/p/1", body))

	assert.Equal(t, "123-456", rec.ExternalID)
	assert.Equal(t, "Colgate", rec.Brand)
	assert.Equal(t, map[string]string{model.DescriptionKey: "", "Артикул": "123-456"}, rec.Attributes)
}

func TestExtractProduct_FirstTextNodeOnly(t *testing.T) {
	x := newExtractor()
	body := `<h1 class="title">Паста <b>x</b> мятная</h1>
		<p class="special-auth"><i>!</i> Акция <b>дня</b></p>
		<div class="product-details"><div class="description"> Первый абзац <br> второй абзац</div></div>`

	rec := x.ExtractProduct(htmlPage("https://fix-price.com/p/1", body))

	assert.Equal(t, "Паста", rec.Title)
	assert.Equal(t, "Акция", rec.PromoLabel)
	assert.Equal(t, "Первый абзац", rec.Attributes[model.DescriptionKey])
}

func TestExtractProduct_PropertyKeysTrimmed(t *testing.T) {
	x := newExtractor()
	body := `<div class="properties">
		<p class="property"><span class="title">  Цвет
		</span><span class="value">белый</span></p>
		<p class="property"><span class="title">Объем</span><span class="value">   </span></p>
	</div>`

	rec := x.ExtractProduct(htmlPage("https://fix-price.com/p/1", body))

	assert.Equal(t, map[string]string{model.DescriptionKey: "", "Цвет": "белый"}, rec.Attributes)
}

func TestExtractProduct_BreadcrumbOrder(t *testing.T) {
	x := newExtractor()
	body := `<div class="breadcrumbs"><span> a </span><span></span><span>b<i>skip</i> c </span><span>
	</span><span>d</span></div>`

	rec := x.ExtractProduct(htmlPage("https://fix-price.com/p/1", body))

	assert.Equal(t, []string{"a", "b", "c", "d"}, rec.BreadcrumbPath)
}

func TestDiscoverLinks(t *testing.T) {
	x := newExtractor()
	page := loadPage(t, "listing.html", "https://fix-price.com/catalog/kosmetika?sort=sold&page=1")

	details, pages := x.DiscoverLinks(page)

	assert.Equal(t, []string{
		"https://fix-price.com/catalog/kosmetika/p-1-zubnaya-pasta",
		"https://fix-price.com/catalog/kosmetika/p-2-shchetka",
	}, details)
	assert.Equal(t, []string{
		"https://fix-price.com/catalog/kosmetika?sort=sold&page=2",
		"https://fix-price.com/catalog/kosmetika?sort=sold&page=3",
	}, pages)
}

func TestDiscoverLinks_LastPage(t *testing.T) {
	x := newExtractor()
	page := htmlPage("https://fix-price.com/catalog/x?page=9",
		`<a class="title" href="/catalog/p-9">p</a><div class="pagination"></div>`)

	details, pages := x.DiscoverLinks(page)

	assert.Equal(t, []string{"https://fix-price.com/catalog/p-9"}, details)
	assert.NotNil(t, pages)
	assert.Empty(t, pages)
}

func TestDiscoverLinks_BaseHref(t *testing.T) {
	x := newExtractor()
	page := htmlPage("https://fix-price.com/catalog/x",
		`<html><head><base href="https://m.fix-price.com/shop/"></head><body><a class="title" href="p-9">p</a></body></html>`)

	details, _ := x.DiscoverLinks(page)

	assert.Equal(t, []string{"https://m.fix-price.com/shop/p-9"}, details)
}

func sprintf(format, v string) string {
	return fmt.Sprintf(format, v)
}

func ptr(v float64) *float64 { return &v }

func assertFloatPtr(t *testing.T, want, got *float64) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	assert.InDelta(t, *want, *got, 1e-9)
}
