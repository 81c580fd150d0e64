package safety

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	clientID      = "safe-browsing-api"
	clientVersion = "1.0.0"
)

// ThreatType is a Safe Browsing threat category.
type ThreatType string

const (
	ThreatMalware           ThreatType = "MALWARE"
	ThreatSocialEngineering ThreatType = "SOCIAL_ENGINEERING"
	ThreatUnwantedSoftware  ThreatType = "UNWANTED_SOFTWARE"
)

var (
	threatTypes      = []ThreatType{ThreatMalware, ThreatSocialEngineering, ThreatUnwantedSoftware}
	platformTypes    = []string{"ANY_PLATFORM"}
	threatEntryTypes = []string{"URL"}
)

type findRequest struct {
	Client     clientInfo `json:"client"`
	ThreatInfo threatInfo `json:"threatInfo"`
}

type clientInfo struct {
	ClientID      string `json:"clientId"`
	ClientVersion string `json:"clientVersion"`
}

type threatInfo struct {
	ThreatTypes      []ThreatType  `json:"threatTypes"`
	PlatformTypes    []string      `json:"platformTypes"`
	ThreatEntryTypes []string      `json:"threatEntryTypes"`
	ThreatEntries    []threatEntry `json:"threatEntries"`
}

type threatEntry struct {
	URL string `json:"url"`
}

type findResponse struct {
	Matches []struct {
		Threat     threatEntry `json:"threat"`
		ThreatType ThreatType  `json:"threatType"`
	} `json:"matches"`
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ThreatAPIError reports a failed call to the threat-matching endpoint.
// Error returns the API's own message when it sent one.
type ThreatAPIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ThreatAPIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("threat api returned status %d", e.StatusCode)
}

func (e *ThreatAPIError) Unwrap() error { return e.Err }

func newFindRequest(urls []string) findRequest {
	entries := make([]threatEntry, len(urls))
	for i, u := range urls {
		entries[i] = threatEntry{URL: u}
	}
	return findRequest{
		Client: clientInfo{ClientID: clientID, ClientVersion: clientVersion},
		ThreatInfo: threatInfo{
			ThreatTypes:      threatTypes,
			PlatformTypes:    platformTypes,
			ThreatEntryTypes: threatEntryTypes,
			ThreatEntries:    entries,
		},
	}
}

// findThreatMatches posts urls to the endpoint and returns the decoded
// matches in response order.
func (c *Checker) findThreatMatches(ctx context.Context, urls []string, apiKey string) ([]ThreatMatch, error) {
	body, err := json.Marshal(newFindRequest(urls))
	if err != nil {
		return nil, &ThreatAPIError{Err: err}
	}

	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, &ThreatAPIError{Err: err}
	}
	q := endpoint.Query()
	q.Set("key", apiKey)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, &ThreatAPIError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ThreatAPIError{Err: redactURLError(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ThreatAPIError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &ThreatAPIError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("threat api returned %s", resp.Status),
		}
		var eb apiErrorBody
		if json.Unmarshal(raw, &eb) == nil {
			apiErr.Message = eb.Error.Message
		}
		return nil, apiErr
	}

	var fr findResponse
	if len(bytes.TrimSpace(raw)) == 0 {
		return []ThreatMatch{}, nil
	}
	if err := json.Unmarshal(raw, &fr); err != nil {
		return nil, &ThreatAPIError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode threat matches: %w", err)}
	}

	matches := make([]ThreatMatch, 0, len(fr.Matches))
	for _, m := range fr.Matches {
		matches = append(matches, ThreatMatch{URL: m.Threat.URL, ThreatType: m.ThreatType})
	}
	return matches, nil
}

// redactURLError strips the query string, which carries the API key, from
// the URL that net/http puts into transport errors.
func redactURLError(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	redacted := ue.URL
	if u, perr := url.Parse(ue.URL); perr == nil {
		u.RawQuery = ""
		u.ForceQuery = false
		redacted = u.String()
	} else if i := strings.IndexByte(redacted, '?'); i >= 0 {
		redacted = redacted[:i]
	}
	return &url.Error{Op: ue.Op, URL: redacted, Err: ue.Err}
}
