package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	colly "github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/storage"

	"catalogcrawler/internal/logger"
	"catalogcrawler/internal/model"
	"catalogcrawler/internal/observability"
	"catalogcrawler/internal/proxy"
)

const (
	kindKey       = "kind"
	proxyKey      = "proxy"
	retryCountKey = "retry_count"
	// requestURLKey remembers the proxies entry of a request; redirects
	// change the request URL before OnScraped runs.
	requestURLKey = "request_url"
)

// EngineConfig tunes the fetch engine.
type EngineConfig struct {
	AllowedDomains       []string
	UserAgent            string
	Concurrency          int
	ConcurrencyPerDomain int
	RequestTimeout       time.Duration
	RetryTimes           int
	RetryDelay           time.Duration
}

// Engine drives a Traversal over colly: it schedules requests, drops
// duplicates, retries failures and routes each response by its Kind.
type Engine struct {
	cfg       EngineConfig
	traversal *Traversal
	resolver  *proxy.Resolver
	storage   storage.Storage
	metrics   *observability.Metrics
	log       logger.Logger

	collector *colly.Collector
	// proxies maps an in-flight request URL to the proxy chosen for it.
	proxies sync.Map
}

type EngineOption func(*Engine)

// WithProxy routes every request through r.
func WithProxy(r *proxy.Resolver) EngineOption {
	return func(e *Engine) { e.resolver = r }
}

// WithVisitedStorage replaces colly's in-memory visited set.
func WithVisitedStorage(s storage.Storage) EngineOption {
	return func(e *Engine) { e.storage = s }
}

func WithMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

func NewEngine(cfg EngineConfig, t *Traversal, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:       cfg,
		traversal: t,
		log:       logger.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run crawls from the traversal seeds until no request is pending or ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	c, err := e.newCollector(ctx)
	if err != nil {
		return err
	}
	e.collector = c

	seeds := e.traversal.Seeds()
	e.log.Info("Spider opened",
		logger.Int("seeds", len(seeds)),
		logger.Bool("proxy", e.resolver != nil),
	)
	start := time.Now()

	for _, req := range seeds {
		e.enqueue(req)
	}
	c.Wait()

	e.log.Info("Spider closed", logger.Duration("elapsed", time.Since(start)))
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("crawl interrupted: %w", err)
	}
	return nil
}

func (e *Engine) newCollector(ctx context.Context) (*colly.Collector, error) {
	opts := []colly.CollectorOption{
		colly.Async(true),
		colly.StdlibContext(ctx),
		colly.IgnoreRobotsTxt(),
	}
	if e.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(e.cfg.UserAgent))
	}
	if filters := domainFilters(e.cfg.AllowedDomains); len(filters) > 0 {
		opts = append(opts, colly.URLFilters(filters...))
	}
	c := colly.NewCollector(opts...)

	if err := c.Limits(e.limitRules()); err != nil {
		return nil, fmt.Errorf("set crawl limits: %w", err)
	}
	if e.cfg.RequestTimeout > 0 {
		c.SetRequestTimeout(e.cfg.RequestTimeout)
	}
	if e.storage != nil {
		if err := c.SetStorage(e.storage); err != nil {
			return nil, fmt.Errorf("init visited storage: %w", err)
		}
	}
	if e.resolver != nil {
		c.SetProxyFunc(e.resolver.ProxyFunc(e.lookupProxy))
	}

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if p, ok := r.Ctx.GetAny(proxyKey).(string); ok && p != "" {
			e.proxies.Store(r.URL.String(), p)
			r.Ctx.Put(requestURLKey, r.URL.String())
		}
		e.log.Debug("Fetching page",
			logger.URL(r.URL.String()),
			logger.String("kind", requestKind(r).String()),
		)
	})
	c.OnResponse(func(r *colly.Response) { e.handleResponse(ctx, r) })
	c.OnError(e.handleError)
	c.OnScraped(func(r *colly.Response) { e.forgetProxy(r.Request) })
	return c, nil
}

// limitRules caps parallelism per allowed domain, then globally.
// colly applies the first matching rule only, matched against host:port.
func (e *Engine) limitRules() []*colly.LimitRule {
	global := e.cfg.Concurrency
	if global <= 0 {
		global = 1
	}
	perDomain := e.cfg.ConcurrencyPerDomain
	if perDomain <= 0 || perDomain > global {
		perDomain = global
	}

	rules := make([]*colly.LimitRule, 0, len(e.cfg.AllowedDomains)+1)
	for _, d := range e.cfg.AllowedDomains {
		rules = append(rules, &colly.LimitRule{DomainGlob: "*" + d + "*", Parallelism: perDomain})
	}
	return append(rules, &colly.LimitRule{DomainGlob: "*", Parallelism: global})
}

// domainFilters accepts each domain and its subdomains. The host part may
// not contain userinfo, a query or a fragment.
func domainFilters(domains []string) []*regexp.Regexp {
	filters := make([]*regexp.Regexp, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		filters = append(filters, regexp.MustCompile(`^https?://([^/?#@]+\.)?`+regexp.QuoteMeta(d)+`(:\d+)?([/?#]|$)`))
	}
	return filters
}

func (e *Engine) lookupProxy(req *http.Request) string {
	if v, ok := e.proxies.Load(req.URL.String()); ok {
		return v.(string)
	}
	return ""
}

func (e *Engine) forgetProxy(r *colly.Request) {
	if key := r.Ctx.Get(requestURLKey); key != "" {
		e.proxies.Delete(key)
	}
}

// enqueue schedules req. Already visited and offsite URLs are dropped.
func (e *Engine) enqueue(req Request) {
	if e.resolver != nil {
		e.resolver.Apply(&req)
	}

	rctx := colly.NewContext()
	rctx.Put(kindKey, req.Kind)
	if req.Proxy != "" {
		rctx.Put(proxyKey, req.Proxy)
	}

	target := req.URL
	err := e.collector.Request(http.MethodGet, target, nil, rctx, nil)
	if err == nil {
		return
	}

	var visited *colly.AlreadyVisitedError
	switch {
	case errors.As(err, &visited):
		e.log.Debug("Duplicate request dropped", logger.URL(target))
	case errors.Is(err, colly.ErrForbiddenDomain), errors.Is(err, colly.ErrNoURLFiltersMatch):
		e.log.Debug("Offsite request dropped", logger.URL(target))
	default:
		e.log.Error("Failed to schedule request",
			logger.URL(target),
			logger.String("kind", req.Kind.String()),
			logger.Error(err),
		)
	}
}

func (e *Engine) handleResponse(ctx context.Context, r *colly.Response) {
	kind := requestKind(r.Request)
	page := model.FetchedPage{
		URL:    r.Request.URL.String(),
		Status: r.StatusCode,
		Body:   r.Body,
	}
	e.metrics.PageFetched(kind.String())

	next, err := e.traversal.Handle(ctx, kind, page)
	if err != nil {
		e.log.Error("Failed to handle page",
			logger.URL(page.URL),
			logger.String("kind", kind.String()),
			logger.Error(err),
		)
		return
	}

	if kind == ListingFetch && !hasListing(next) {
		e.metrics.PaginationEnded()
	}
	for _, req := range next {
		e.enqueue(req)
	}
}

// handleError retries a failed fetch up to RetryTimes, then gives up on it.
func (e *Engine) handleError(r *colly.Response, fetchErr error) {
	kind := requestKind(r.Request)
	u := r.Request.URL.String()

	count := 0
	if n, ok := r.Request.Ctx.GetAny(retryCountKey).(int); ok {
		count = n
	}
	if count < e.cfg.RetryTimes && !errors.Is(fetchErr, context.Canceled) {
		r.Request.Ctx.Put(retryCountKey, count+1)
		e.log.Warn("Retrying request",
			logger.URL(u),
			logger.Int("status", r.StatusCode),
			logger.Int("attempt", count+1),
			logger.Error(fetchErr),
		)
		time.Sleep(e.cfg.RetryDelay)
		err := r.Request.Retry()
		if err == nil {
			return
		}
		fetchErr = err
	}

	e.forgetProxy(r.Request)
	e.metrics.FetchFailed(kind.String())
	e.log.Error("Gave up on request",
		logger.URL(u),
		logger.String("kind", kind.String()),
		logger.Int("status", r.StatusCode),
		logger.Int("retries", count),
		logger.Error(fetchErr),
	)
}

func requestKind(r *colly.Request) Kind {
	if k, ok := r.Ctx.GetAny(kindKey).(Kind); ok {
		return k
	}
	return 0
}

func hasListing(reqs []Request) bool {
	for _, r := range reqs {
		if r.Kind == ListingFetch {
			return true
		}
	}
	return false
}
