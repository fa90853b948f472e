// Package proxy attaches the configured outbound proxy to crawl requests.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	colly "github.com/gocolly/colly/v2"
)

// Config holds the proxy credentials. Values are read once at startup.
type Config struct {
	Login    string
	Password string
	Host     string
	Port     string
}

// Target is an outbound request that can carry a proxy endpoint.
type Target interface {
	ProxyURL() string
	SetProxyURL(endpoint string)
}

// Resolver builds a single endpoint and hands it to every request.
// It is immutable after New and safe for concurrent use.
type Resolver struct {
	endpoint string
}

// New builds the endpoint from cfg. Empty values are interpolated as-is;
// there is no validation.
func New(cfg Config) *Resolver {
	return &Resolver{
		endpoint: fmt.Sprintf("http://%s:%s@%s:%s", cfg.Login, cfg.Password, cfg.Host, cfg.Port),
	}
}

// Resolve returns the endpoint URL string.
func (r *Resolver) Resolve() string {
	return r.endpoint
}

// Apply sets the endpoint on t unless t already carries a proxy.
func (r *Resolver) Apply(t Target) {
	if t.ProxyURL() != "" {
		return
	}
	t.SetProxyURL(r.endpoint)
}

// ProxyFunc adapts the resolver to the HTTP transport. lookup returns the
// proxy chosen for a request (empty when unknown, e.g. after a redirect), in
// which case the resolved endpoint is used.
func (r *Resolver) ProxyFunc(lookup func(*http.Request) string) colly.ProxyFunc {
	return func(req *http.Request) (*url.URL, error) {
		endpoint := ""
		if lookup != nil {
			endpoint = lookup(req)
		}
		if endpoint == "" {
			endpoint = r.endpoint
		}
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse proxy endpoint: %w", err)
		}
		// colly reads this back into Response.Request.ProxyURL.
		*req = *req.WithContext(context.WithValue(req.Context(), colly.ProxyURLKey, u.String()))
		return u, nil
	}
}
