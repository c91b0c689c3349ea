package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const defaultEndpointTimeout = 10 * time.Second

// EndpointConfig describes one HTTP verification source.
type EndpointConfig struct {
	Name    string
	URL     string
	APIKey  string
	IDField string
	Timeout time.Duration
}

// EndpointVerifier looks a record up by identifier at a reference source
// (GET <url>?id=<id>) and compares the item's scalar fields with the
// source's copy. The item is valid when every compared field matches.
type EndpointVerifier struct {
	cfg        EndpointConfig
	httpClient *http.Client
}

// NewEndpointVerifier constructs an endpoint verifier.
func NewEndpointVerifier(cfg EndpointConfig, client *http.Client) *EndpointVerifier {
	if cfg.IDField == "" {
		cfg.IDField = "id"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultEndpointTimeout
	}
	if cfg.Name == "" {
		cfg.Name = endpointName(cfg.URL)
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &EndpointVerifier{cfg: cfg, httpClient: client}
}

func (e *EndpointVerifier) Name() string {
	return e.cfg.Name
}

func (e *EndpointVerifier) Verify(ctx context.Context, item map[string]any) (Verdict, error) {
	rawID, ok := item[e.cfg.IDField]
	if !ok || rawID == nil || fmt.Sprint(rawID) == "" {
		return Verdict{}, ErrNotApplicable
	}

	target, err := url.Parse(e.cfg.URL)
	if err != nil {
		return Verdict{}, NewError(CategoryInternal, e.Name(), "parse endpoint url", err)
	}
	q := target.Query()
	q.Set(e.cfg.IDField, fmt.Sprint(rawID))
	target.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Verdict{}, NewError(CategoryInternal, e.Name(), "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Verdict{}, transportError(e.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Verdict{}, transportError(e.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return Verdict{}, statusError(e.Name(), resp.StatusCode, snippet(body))
	}

	var source map[string]any
	if err := json.Unmarshal(body, &source); err != nil {
		return Verdict{}, NewError(CategoryBadData, e.Name(), "decode response", err)
	}
	return compareWithSource(e.Name(), item, source), nil
}

func compareWithSource(verifier string, item, source map[string]any) Verdict {
	compared, matched := 0, 0
	var mismatched []string
	for key, value := range item {
		if !isScalar(value) {
			continue
		}
		compared++
		if sameScalar(value, source[key]) {
			matched++
			continue
		}
		mismatched = append(mismatched, key)
	}
	verdict := Verdict{Verifier: verifier, Valid: true, Confidence: 1}
	if compared > 0 {
		verdict.Confidence = float64(matched) / float64(compared)
		verdict.Valid = matched == compared
	}
	if len(mismatched) > 0 {
		sort.Strings(mismatched)
		verdict.Reason = "fields differ from source: " + strings.Join(mismatched, ", ")
	}
	return verdict
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	default:
		return false
	}
}

func sameScalar(a, b any) bool {
	if af, ok := number(a); ok {
		bf, ok := number(b)
		return ok && af == bf
	}
	return a == b
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func endpointName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "endpoint"
	}
	return u.Host
}
