package safety

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostname(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{name: "http with path", url: "http://evil.example/a", want: "evil.example"},
		{name: "https with port", url: "https://good.example:8443/x?y=1", want: "good.example"},
		{name: "uppercase kept", url: "http://Sub.Example.COM/", want: "Sub.Example.COM"},
		{name: "ipv6", url: "http://[::1]:80/", want: "::1"},
		{name: "free text", url: "not a url", wantErr: true},
		{name: "empty", url: "", wantErr: true},
		{name: "no scheme", url: "example.com/path", wantErr: true},
		{name: "bad escape", url: "http://%zz/", wantErr: true},
		{name: "scheme only", url: "mailto:someone", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Hostname(tt.url)
			if tt.wantErr {
				var urlErr *InvalidURLError
				require.ErrorAs(t, err, &urlErr)
				assert.Equal(t, tt.url, urlErr.URL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetchDomainInfo_Success(t *testing.T) {
	w := newFakeWhois()
	w.records["evil.example"] = "Registrar: Example Registrar"
	c := newTestChecker("http://unused.invalid", w)

	res, err := c.FetchDomainInfo("http://evil.example/a", "UNSAFE")
	require.NoError(t, err)

	assert.Equal(t, DomainInfoResult{
		Label:  "UNSAFE",
		Domain: "evil.example",
		Data:   "Registrar: Example Registrar",
	}, res)
	assert.Equal(t, []string{"evil.example"}, w.calls())
}

func TestFetchDomainInfo_LookupFailureCaptured(t *testing.T) {
	w := newFakeWhois()
	w.failures["down.example"] = "whois: connect timeout"
	c := newTestChecker("http://unused.invalid", w)

	res, err := c.FetchDomainInfo("https://down.example/", "SAFE")
	require.NoError(t, err)

	assert.Equal(t, "SAFE", res.Label)
	assert.Equal(t, "down.example", res.Domain)
	assert.Empty(t, res.Data)
	assert.Equal(t, "whois: connect timeout", res.Error)
}

func TestFetchDomainInfo_InvalidURLBeforeLookup(t *testing.T) {
	w := newFakeWhois()
	c := newTestChecker("http://unused.invalid", w)

	_, err := c.FetchDomainInfo("not a url", "X")

	var urlErr *InvalidURLError
	require.True(t, errors.As(err, &urlErr))
	assert.Empty(t, w.calls(), "no whois query for an invalid url")
}

func TestFetchDomainInfo_PinnedServer(t *testing.T) {
	w := newFakeWhois()
	c := NewChecker(WithWhoisClient(w), WithWhoisServer("whois.verisign-grs.com"))

	_, err := c.FetchDomainInfo("http://good.example/b", "SAFE")
	require.NoError(t, err)

	require.Len(t, w.servers, 1)
	assert.Equal(t, []string{"whois.verisign-grs.com"}, w.servers[0])
}

func TestFetchDomainInfo_EmptyPayloadIsError(t *testing.T) {
	for name, payload := range map[string]string{"empty": "", "whitespace": " \r\n"} {
		t.Run(name, func(t *testing.T) {
			w := newFakeWhois()
			w.records["blank.example"] = payload
			c := newTestChecker("http://unused.invalid", w)

			res, err := c.FetchDomainInfo("http://blank.example/", "SAFE")
			require.NoError(t, err)

			assert.Empty(t, res.Data)
			assert.Equal(t, ErrEmptyWhois.Error(), res.Error)

			encoded, err := json.Marshal(res)
			require.NoError(t, err)
			assert.JSONEq(t, `{"label":"SAFE","domain":"blank.example","error":"whois: empty response"}`, string(encoded))
		})
	}
}
