package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/bookdrop/pkg/identify"
	"github.com/shishobooks/bookdrop/pkg/mediafile"
)

const (
	// DefaultEndpoint is the Google Books volume search endpoint.
	DefaultEndpoint = "https://www.googleapis.com/books/v1/volumes"

	defaultHTTPTimeout = 15 * time.Second
	defaultMaxAttempts = 3
	defaultBaseDelay   = 1 * time.Second
)

// Result is a successful catalog resolution: the display name used for the
// destination file plus the metadata bundle handed to the metadata writer.
type Result struct {
	DisplayName string
	Metadata    mediafile.Metadata
}

// Client resolves identifiers against the catalog with bounded
// exponential-backoff retry. A nil Result with a nil error means "no result":
// exhausted retries and empty/malformed responses are not fatal.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client

	maxAttempts int
	baseDelay   time.Duration
	sleeper     func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sets the optional API key appended to lookups.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithRetry overrides the retry schedule (attempts total, initial delay).
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if baseDelay >= 0 {
			c.baseDelay = baseDelay
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a catalog client for the given endpoint. An empty
// endpoint uses the Google Books default.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:    strings.TrimSpace(endpoint),
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	Items []struct {
		VolumeInfo struct {
			Title         string   `json:"title"`
			Authors       []string `json:"authors"`
			Categories    []string `json:"categories"`
			Publisher     string   `json:"publisher"`
			PublishedDate string   `json:"publishedDate"`
			Language      string   `json:"language"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// Resolve looks the identifier up. The query is `isbn:<v>` for ISBNs and
// `intitle:<v>` for titles. Transport failures are retried with doubling
// delays (1s, 2s by default) up to maxAttempts total; exhaustion and
// missing/malformed response shapes both yield (nil, nil).
func (c *Client) Resolve(ctx context.Context, id identify.Identifier) (*Result, error) {
	log := logger.FromContext(ctx)

	query := "intitle:" + id.Value
	if id.Kind == identify.KindISBN {
		query = "isbn:" + id.Value
	}

	requestURL := c.endpoint + "?q=" + url.QueryEscape(query)
	if c.apiKey != "" {
		requestURL += "&key=" + url.QueryEscape(c.apiKey)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, err := c.fetchOnce(ctx, requestURL)
		if err == nil {
			return parseResult(body), nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err

		if attempt < c.maxAttempts {
			if err := c.sleep(ctx, c.backoffDelay(attempt)); err != nil {
				return nil, err
			}
		}
	}

	log.Err(lastErr).Warn("catalog lookup exhausted retries", logger.Data{"query": query, "attempts": c.maxAttempts})
	return nil, nil
}

func (c *Client) fetchOnce(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "catalog request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "catalog response read")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("catalog request: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// parseResult turns a response body into a Result. Anything missing or
// malformed (no items, no title) is "no result", not an error.
func parseResult(body []byte) *Result {
	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil
	}
	if len(parsed.Items) == 0 {
		return nil
	}

	info := parsed.Items[0].VolumeInfo
	if info.Title == "" {
		return nil
	}

	authors := info.Authors
	if len(authors) == 0 {
		authors = []string{"Unknown Author"}
	}

	extra := map[string]string{}
	if info.Publisher != "" {
		extra["publisher"] = info.Publisher
	}
	if info.PublishedDate != "" {
		extra["publishedDate"] = info.PublishedDate
	}
	if info.Language != "" {
		extra["language"] = info.Language
	}

	meta := mediafile.Metadata{
		Title:      info.Title,
		Authors:    authors,
		Categories: info.Categories,
		Extra:      extra,
	}
	return &Result{
		DisplayName: fmt.Sprintf("%s - %s", info.Title, strings.Join(authors, ", ")),
		Metadata:    meta,
	}
}

// backoffDelay doubles per attempt: attempt 1 -> base, attempt 2 -> base*2.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
