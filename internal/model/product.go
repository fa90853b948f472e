package model

// DescriptionKey is the reserved Attributes entry holding the free-text description.
const DescriptionKey = "__description"

// FetchedPage is a completed fetch handed to the crawler by the fetch engine.
type FetchedPage struct {
	URL    string
	Status int
	Body   []byte
}

type ProductRecord struct {
	CapturedAt     int64             `json:"captured_at"`
	ExternalID     string            `json:"external_id"`
	SourceURL      string            `json:"source_url"`
	Title          string            `json:"title"`
	Brand          string            `json:"brand"`
	PromoLabel     string            `json:"promo_label"`
	BreadcrumbPath []string          `json:"breadcrumb_path"`
	Pricing        Pricing           `json:"pricing"`
	Media          Media             `json:"media"`
	Attributes     map[string]string `json:"attributes"`
}

// Pricing holds nil for values that could not be extracted.
type Pricing struct {
	Current       *float64 `json:"current"`
	Original      *float64 `json:"original"`
	DiscountLabel *string  `json:"discount_label"`
}

type Media struct {
	PrimaryImage  string   `json:"primary_image"`
	GalleryImages []string `json:"gallery_images"`
	ZoomImages    []string `json:"zoom_images"`
}
