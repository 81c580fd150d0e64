package safety

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrNoURLs is returned when CheckURLSafety is called with an empty list.
var ErrNoURLs = errors.New("at least one url is required")

// ThreatMatch is one URL reported by the threat-matching endpoint.
type ThreatMatch struct {
	URL        string     `json:"url"`
	ThreatType ThreatType `json:"threatType"`
}

// DomainInfo groups WHOIS results by partition.
type DomainInfo struct {
	Unsafe []DomainInfoResult `json:"unsafe"`
	Safe   []DomainInfoResult `json:"safe"`
}

// SafetyResult is the safe/unsafe partition of a batch of URLs.
type SafetyResult struct {
	Unsafe     []ThreatMatch `json:"unsafe"`
	Safe       []string      `json:"safe"`
	DomainInfo DomainInfo    `json:"domainInfo"`
}

// Options selects which partitions get WHOIS enrichment. DomainInfoRequired
// covers both partitions; the other two flags add one partition each.
type Options struct {
	DomainInfoRequired  bool `json:"domainInfoRequired"`
	UnsafeURLDomainInfo bool `json:"unsafeUrlDomainInfo"`
	SafeURLDomainInfo   bool `json:"safeUrlDomainInfo"`
}

// DefaultOptions enables WHOIS for both partitions.
func DefaultOptions() Options {
	return Options{DomainInfoRequired: true}
}

func (o Options) wantUnsafe() bool { return o.DomainInfoRequired || o.UnsafeURLDomainInfo }
func (o Options) wantSafe() bool { return o.DomainInfoRequired || o.SafeURLDomainInfo }

// Checker classifies URLs against the threat-matching endpoint and enriches
// them with WHOIS data. A Checker holds no per-call state and may be shared.
type Checker struct {
	endpoint    string
	httpClient  *http.Client
	whois       WhoisClient
	whoisServer string
	logger      zerolog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithEndpoint overrides the threat-matching endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Checker) { c.endpoint = endpoint }
}

// WithHTTPClient sets the client used for the threat-matching request.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) { c.httpClient = client }
}

// WithWhoisClient replaces the WHOIS client, mostly for tests.
func WithWhoisClient(client WhoisClient) Option {
	return func(c *Checker) { c.whois = client }
}

// WithWhoisServer pins every lookup to one WHOIS server instead of following
// referrals.
func WithWhoisServer(server string) Option {
	return func(c *Checker) { c.whoisServer = server }
}

// WithLogger sets the logger; the global zerolog logger is the default.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Checker) { c.logger = logger }
}

// NewChecker builds a Checker. Unset collaborators get production defaults.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		endpoint: defaultEndpoint,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if c.whois == nil {
		c.whois = NewWhoisClient(defaultWhoisTimeout)
	}
	return c
}

// NewCheckerFromConfig builds a Checker from environment settings.
func NewCheckerFromConfig(cfg Config, logger zerolog.Logger) *Checker {
	return NewChecker(
		WithEndpoint(cfg.Endpoint),
		WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		WithWhoisClient(NewWhoisClient(cfg.WhoisTimeout)),
		WithWhoisServer(cfg.WhoisServer),
		WithLogger(logger),
	)
}

var (
	defaultChecker     *Checker
	defaultCheckerOnce sync.Once
)

// Default returns a process-wide Checker built with NewChecker defaults.
func Default() *Checker {
	defaultCheckerOnce.Do(func() {
		defaultChecker = NewChecker()
	})
	return defaultChecker
}

// CheckURLSafety runs CheckURLSafety on the default checker.
func CheckURLSafety(ctx context.Context, urls []string, apiKey string, opts Options) (*SafetyResult, error) {
	return Default().CheckURLSafety(ctx, urls, apiKey, opts)
}

// CheckURLSafety submits urls to the threat-matching endpoint in one request
// and partitions them into safe and unsafe sets. Only a failure of that
// request (or an unusable input URL) aborts the call; WHOIS failures are
// recorded per result.
func (c *Checker) CheckURLSafety(ctx context.Context, urls []string, apiKey string, opts Options) (*SafetyResult, error) {
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}

	start := time.Now()

	matches, err := c.findThreatMatches(ctx, urls, apiKey)
	if err != nil {
		c.logger.Error().
			Str("component", "safebrowsing").
			Int("urls", len(urls)).
			Err(err).
			Msg("threat match request failed")
		return nil, err
	}

	result := partition(urls, matches, c.logger)

	c.logger.Info().
		Str("component", "safebrowsing").
		Int("urls", len(urls)).
		Int("unsafe", len(result.Unsafe)).
		Int("safe", len(result.Safe)).
		Msg("urls classified")

	if opts.wantUnsafe() {
		unsafeURLs := make([]string, len(result.Unsafe))
		for i, m := range result.Unsafe {
			unsafeURLs[i] = m.URL
		}
		result.DomainInfo.Unsafe, err = c.fetchAll(ctx, unsafeURLs, LabelUnsafe)
		if err != nil {
			return nil, err
		}
	}

	if opts.wantSafe() {
		result.DomainInfo.Safe, err = c.fetchAll(ctx, result.Safe, LabelSafe)
		if err != nil {
			return nil, err
		}
	}

	c.logger.Debug().
		Str("component", "safebrowsing").
		Dur("duration", time.Since(start)).
		Msg("safety check completed")

	return result, nil
}

// partition splits urls by exact string match against the reported threats.
// Matches for URLs that were never submitted are dropped.
func partition(urls []string, matches []ThreatMatch, logger zerolog.Logger) *SafetyResult {
	submitted := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		submitted[u] = struct{}{}
	}

	result := &SafetyResult{
		Unsafe: make([]ThreatMatch, 0, len(matches)),
		Safe:   make([]string, 0, len(urls)),
		DomainInfo: DomainInfo{
			Unsafe: []DomainInfoResult{},
			Safe:   []DomainInfoResult{},
		},
	}

	matched := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, ok := submitted[m.URL]; !ok {
			logger.Warn().
				Str("component", "safebrowsing").
				Str("url", m.URL).
				Str("threat_type", string(m.ThreatType)).
				Msg("ignoring match for url that was not submitted")
			continue
		}
		matched[m.URL] = struct{}{}
		result.Unsafe = append(result.Unsafe, m)
	}

	for _, u := range urls {
		if _, ok := matched[u]; !ok {
			result.Safe = append(result.Safe, u)
		}
	}
	return result
}

// fetchAll runs FetchDomainInfo for every url concurrently and waits for all
// of them. Results keep the order of urls. Once one lookup fails with an
// unusable URL, lookups that have not started yet are skipped and the first
// error is returned.
func (c *Checker) fetchAll(ctx context.Context, urls []string, label string) ([]DomainInfoResult, error) {
	results := make([]DomainInfoResult, len(urls))
	if len(urls) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := c.FetchDomainInfo(u, label)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.logger.Error().
			Str("component", "whois").
			Str("label", label).
			Err(err).
			Msg("domain info wave failed")
		return nil, err
	}

	c.logger.Debug().
		Str("component", "whois").
		Str("label", label).
		Int("lookups", len(urls)).
		Msg("domain info wave completed")

	return results, nil
}
