package crawler

import (
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"catalogcrawler/internal/logger"
	"catalogcrawler/internal/model"
)

// FieldObserver is told about every field a detail page did not yield.
type FieldObserver interface {
	FieldMissing(field string)
}

// ProductFields is the raw result of a detail page, before it is packed into
// a model.ProductRecord.
type ProductFields struct {
	CapturedAt    time.Time
	URL           string
	ExternalID    string
	Title         string
	Brand         string
	PromoLabel    string
	Breadcrumbs   []string
	SpecialPrice  *float64
	OriginalPrice *float64
	CurrentPrice  *float64
	SaleTag       *string
	Description   string
	Properties    map[string]string
	MainImage     string
	SetImages     []string
	ZoomImages    []string
}

// Extractor turns fetched pages into links and product fields. It holds no
// per-page state and is safe for concurrent use.
type Extractor struct {
	now      func() time.Time
	observer FieldObserver
	log      logger.Logger
}

type ExtractorOption func(*Extractor)

// WithClock replaces time.Now as the source of CapturedAt.
func WithClock(now func() time.Time) ExtractorOption {
	return func(x *Extractor) { x.now = now }
}

func WithFieldObserver(o FieldObserver) ExtractorOption {
	return func(x *Extractor) { x.observer = o }
}

func WithExtractorLogger(l logger.Logger) ExtractorOption {
	return func(x *Extractor) { x.log = l }
}

func NewExtractor(opts ...ExtractorOption) *Extractor {
	x := &Extractor{
		now: time.Now,
		log: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// DiscoverLinks returns the absolute product and pagination links of a
// listing page. An empty pagination slice ends that branch of the crawl.
func (x *Extractor) DiscoverLinks(page model.FetchedPage) (detailURLs, paginationURLs []string) {
	doc := parseDocument(page.Body)
	base := baseURL(doc, page.URL)
	return resolveLinks(doc.Find(productLinkSelector), base),
		resolveLinks(doc.Find(paginationLinkSelector), base)
}

// ExtractProduct always returns a record; absent markup yields empty values.
func (x *Extractor) ExtractProduct(page model.FetchedPage) model.ProductRecord {
	return BuildRecord(x.Fields(page))
}

// Fields runs every field step independently against the page.
func (x *Extractor) Fields(page model.FetchedPage) ProductFields {
	doc := parseDocument(page.Body)
	f := ProductFields{
		CapturedAt: x.now(),
		URL:        page.URL,
	}
	for _, step := range productSteps {
		x.runStep(step, doc, &f)
	}
	f.CurrentPrice, f.SaleTag = computePricing(f.SpecialPrice, f.OriginalPrice)
	return f
}

func (x *Extractor) runStep(step fieldStep, doc *goquery.Document, f *ProductFields) {
	defer func() {
		if r := recover(); r != nil {
			x.log.Warn("Field extraction failed",
				logger.String("field", step.name),
				logger.URL(f.URL),
				logger.String("panic", fmt.Sprint(r)),
			)
			x.missing(step.name)
		}
	}()
	if !step.run(doc, f) {
		x.missing(step.name)
	}
}

func (x *Extractor) missing(field string) {
	if x.observer != nil {
		x.observer.FieldMissing(field)
	}
}
