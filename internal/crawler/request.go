package crawler

// Kind tags an outbound request with the handler its page is routed to.
type Kind int

const (
	// ListingFetch pages are catalog listings: they yield more requests.
	ListingFetch Kind = iota + 1
	// DetailFetch pages are single products: they yield one record.
	DetailFetch
)

func (k Kind) String() string {
	switch k {
	case ListingFetch:
		return "listing"
	case DetailFetch:
		return "detail"
	default:
		return "unknown"
	}
}

// Request is a follow-up fetch emitted by the traversal.
type Request struct {
	URL   string
	Kind  Kind
	Proxy string
}

func (r *Request) ProxyURL() string { return r.Proxy }

func (r *Request) SetProxyURL(endpoint string) { r.Proxy = endpoint }
