package safety

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	whois "github.com/likexian/whois"
)

const (
	LabelUnsafe = "UNSAFE"
	LabelSafe   = "SAFE"
)

// DomainInfoResult is the outcome of one WHOIS lookup. Exactly one of Data
// and Error is set.
type DomainInfoResult struct {
	Label  string `json:"label"`
	Domain string `json:"domain"`
	Data   string `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ErrEmptyWhois is recorded when a WHOIS server answers with no data.
var ErrEmptyWhois = errors.New("whois: empty response")

// WhoisClient queries WHOIS for a domain and returns the raw record.
// *whois.Client satisfies it.
type WhoisClient interface {
	Whois(domain string, servers ...string) (string, error)
}

// InvalidURLError is returned when a URL has no usable hostname.
type InvalidURLError struct {
	URL string
	Err error
}

func (e *InvalidURLError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid url %q: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("invalid url %q", e.URL)
}

func (e *InvalidURLError) Unwrap() error { return e.Err }

// NewWhoisClient returns a likexian WHOIS client with the given timeout.
func NewWhoisClient(timeout time.Duration) *whois.Client {
	return whois.NewClient().SetTimeout(timeout)
}

// Hostname extracts the hostname of rawURL.
func Hostname(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &InvalidURLError{URL: rawURL, Err: err}
	}
	// url.Parse accepts bare paths like "not a url"
	if u.Scheme == "" || u.Hostname() == "" {
		return "", &InvalidURLError{URL: rawURL}
	}
	return u.Hostname(), nil
}

// FetchDomainInfo looks up WHOIS data for the host of rawURL. Lookup
// failures are recorded in the result; only an unparsable URL is returned
// as an error.
func (c *Checker) FetchDomainInfo(rawURL, label string) (DomainInfoResult, error) {
	domain, err := Hostname(rawURL)
	if err != nil {
		return DomainInfoResult{}, err
	}

	var servers []string
	if c.whoisServer != "" {
		servers = append(servers, c.whoisServer)
	}

	raw, err := c.whois.Whois(domain, servers...)
	if err == nil && strings.TrimSpace(raw) == "" {
		err = ErrEmptyWhois
	}
	if err != nil {
		c.logger.Warn().
			Str("component", "whois").
			Str("domain", domain).
			Str("label", label).
			Err(err).
			Msg("whois lookup failed")
		return DomainInfoResult{Label: label, Domain: domain, Error: err.Error()}, nil
	}

	return DomainInfoResult{Label: label, Domain: domain, Data: raw}, nil
}

// FetchDomainInfo runs FetchDomainInfo on the default checker.
func FetchDomainInfo(rawURL, label string) (DomainInfoResult, error) {
	return Default().FetchDomainInfo(rawURL, label)
}
