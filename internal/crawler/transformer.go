package crawler

import (
	"context"
	"fmt"

	"catalogcrawler/internal/logger"
	"catalogcrawler/internal/model"
	"catalogcrawler/internal/sink"
)

// BuildRecord packs extracted fields into the output schema.
func BuildRecord(f ProductFields) model.ProductRecord {
	attrs := make(map[string]string, len(f.Properties)+1)
	attrs[model.DescriptionKey] = f.Description
	for k, v := range f.Properties {
		attrs[k] = v
	}

	return model.ProductRecord{
		CapturedAt:     f.CapturedAt.Unix(),
		ExternalID:     f.ExternalID,
		SourceURL:      f.URL,
		Title:          f.Title,
		Brand:          f.Brand,
		PromoLabel:     f.PromoLabel,
		BreadcrumbPath: nonNil(f.Breadcrumbs),
		Pricing: model.Pricing{
			Current:       f.CurrentPrice,
			Original:      f.OriginalPrice,
			DiscountLabel: f.SaleTag,
		},
		Media: model.Media{
			PrimaryImage:  f.MainImage,
			GalleryImages: nonNil(f.SetImages),
			ZoomImages:    nonNil(f.ZoomImages),
		},
		Attributes: attrs,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Emitter hands finished records to the sink.
type Emitter struct {
	sink sink.Sink
	log  logger.Logger
}

func NewEmitter(s sink.Sink, log logger.Logger) *Emitter {
	return &Emitter{sink: s, log: log}
}

func (e *Emitter) Emit(ctx context.Context, rec model.ProductRecord) error {
	if err := e.sink.Write(ctx, rec); err != nil {
		return fmt.Errorf("emit %s: %w", rec.SourceURL, err)
	}
	e.log.Debug("Scraped product",
		logger.URL(rec.SourceURL),
		logger.String("title", rec.Title),
	)
	return nil
}
