package crawler

import (
	"context"
	"fmt"

	"catalogcrawler/internal/logger"
	"catalogcrawler/internal/model"
)

// Traversal walks a catalog: listing pages fan out into product and
// pagination requests, product pages end in a record. It keeps no visited
// set; duplicate URLs are dropped by the fetch engine.
type Traversal struct {
	seeds     []string
	extractor *Extractor
	emitter   *Emitter
	log       logger.Logger
}

func NewTraversal(seeds []string, x *Extractor, em *Emitter, log logger.Logger) *Traversal {
	return &Traversal{
		seeds:     seeds,
		extractor: x,
		emitter:   em,
		log:       log,
	}
}

// Seeds returns one listing request per start URL.
func (t *Traversal) Seeds() []Request {
	reqs := make([]Request, 0, len(t.seeds))
	for _, u := range t.seeds {
		reqs = append(reqs, Request{URL: u, Kind: ListingFetch})
	}
	return reqs
}

// HandleListing returns the product requests of the page followed by its
// pagination requests.
func (t *Traversal) HandleListing(page model.FetchedPage) []Request {
	details, pages := t.extractor.DiscoverLinks(page)
	if len(pages) == 0 {
		t.log.Info("No pagination links found", logger.URL(page.URL))
	}

	reqs := make([]Request, 0, len(details)+len(pages))
	for _, u := range details {
		reqs = append(reqs, Request{URL: u, Kind: DetailFetch})
	}
	for _, u := range pages {
		reqs = append(reqs, Request{URL: u, Kind: ListingFetch})
	}
	return reqs
}

// HandleDetail extracts the product on page and emits it.
func (t *Traversal) HandleDetail(ctx context.Context, page model.FetchedPage) error {
	return t.emitter.Emit(ctx, t.extractor.ExtractProduct(page))
}

// Handle routes page to the handler its request was tagged with.
func (t *Traversal) Handle(ctx context.Context, kind Kind, page model.FetchedPage) ([]Request, error) {
	switch kind {
	case ListingFetch:
		return t.HandleListing(page), nil
	case DetailFetch:
		return nil, t.HandleDetail(ctx, page)
	default:
		return nil, fmt.Errorf("page %s: unknown request kind %d", page.URL, int(kind))
	}
}
