package safety

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// fakeWhois answers from a fixed table and records every query.
type fakeWhois struct {
	mu       sync.Mutex
	records  map[string]string
	failures map[string]string
	queries  []string
	servers  [][]string
}

func newFakeWhois() *fakeWhois {
	return &fakeWhois{
		records:  map[string]string{},
		failures: map[string]string{},
	}
}

func (f *fakeWhois) Whois(domain string, servers ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, domain)
	f.servers = append(f.servers, servers)
	if msg, ok := f.failures[domain]; ok {
		return "", errors.New(msg)
	}
	if rec, ok := f.records[domain]; ok {
		return rec, nil
	}
	return "Domain Name: " + domain, nil
}

func (f *fakeWhois) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// captured is what the fake threat endpoint saw.
type captured struct {
	mu   sync.Mutex
	key  string
	body findRequest
	hits int
}

func (c *captured) snapshot() (string, findRequest, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key, c.body, c.hits
}

// newThreatServer serves status and body for every request.
func newThreatServer(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()
	seen := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.mu.Lock()
		seen.hits++
		seen.key = r.URL.Query().Get("key")
		_ = json.NewDecoder(r.Body).Decode(&seen.body)
		seen.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func newTestChecker(endpoint string, w WhoisClient) *Checker {
	return NewChecker(
		WithEndpoint(endpoint),
		WithHTTPClient(&http.Client{}),
		WithWhoisClient(w),
		WithLogger(zerolog.Nop()),
	)
}
