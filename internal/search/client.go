// Package search talks to an external web-search endpoint. It is the last
// retrieval tier: when neither memory tier answers, a handful of snippets
// stand in for context. Failures degrade to an empty result set.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"nexus/internal/logging"
)

// Result is one hit from the search endpoint.
type Result struct {
	Title   string
	Link    string
	Snippet string
}

// Client queries a DuckDuckGo-style JSON endpoint:
//
//	GET {endpoint}?query=...&limit=N  ->  [{"title","link","snippet"}, ...]
type Client struct {
	endpoint   string
	maxResults int
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(endpoint string, maxResults int, timeout time.Duration) *Client {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &Client{
		endpoint:   endpoint,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
		log:        logging.L("search"),
	}
}

// Search returns up to maxResults hits for query. Network and decoding
// errors are returned to the caller; callers higher up treat an error the
// same as no results.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("query", query)
	q.Set("limit", fmt.Sprintf("%d", c.maxResults))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("search response: %w", err)
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		// Some deployments wrap hits in {"results": [...]}.
		parsed = parsed.Get("results")
		if !parsed.IsArray() {
			return nil, fmt.Errorf("search response is not a result array")
		}
	}

	var results []Result
	parsed.ForEach(func(_, hit gjson.Result) bool {
		r := Result{
			Title:   hit.Get("title").String(),
			Link:    hit.Get("link").String(),
			Snippet: hit.Get("snippet").String(),
		}
		if r.Title == "" && r.Snippet == "" {
			return true
		}
		results = append(results, r)
		return len(results) < c.maxResults
	})

	c.log.Debug("web search",
		zap.String("query", query),
		zap.Int("results", len(results)))
	return results, nil
}
