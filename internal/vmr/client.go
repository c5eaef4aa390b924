package vmr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FocuswithJustin/vmr2tei/core/cache"
	"github.com/FocuswithJustin/vmr2tei/core/record"
	"github.com/FocuswithJustin/vmr2tei/core/xml"
)

// DefaultBaseURL is the NTVMR apparatus endpoint.
const DefaultBaseURL = "https://ntvmr.uni-muenster.de/community/vmr/api/variant/apparatus/get/"

// MaxResponseBytes bounds the size of a fetched apparatus.
const MaxResponseBytes = 256 << 20

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error fetching %s: %s", e.URL, e.Status)
}

// IsNotFound returns true if this is a 404 error.
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Client fetches apparatus data from the NTVMR.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	cache      *cache.Bytes
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithCache keeps up to n responses in memory, keyed by request URL.
func WithCache(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.cache = cache.New(cache.Config{MaxEntries: n})
		}
	}
}

// NewClient creates a client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    DefaultBaseURL,
		userAgent:  "vmr2tei/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the request URL for an index.
func (c *Client) URL(idx Index) string {
	q := url.Values{}
	q.Set("indexContent", idx.String())
	q.Set("positiveConversion", "true")
	q.Set("buildA", "false")
	q.Set("format", "xml")
	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	return c.baseURL + sep + q.Encode()
}

// Fetch downloads the apparatus XML for a content index.
func (c *Client) Fetch(ctx context.Context, index string) ([]byte, error) {
	idx, err := ParseIndex(index)
	if err != nil {
		return nil, err
	}
	u := c.URL(idx)
	if c.cache != nil {
		if data, ok := c.cache.Get(u); ok {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, URL: u}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if len(data) > MaxResponseBytes {
		return nil, fmt.Errorf("response for %s exceeds %d bytes", idx, MaxResponseBytes)
	}
	if c.cache != nil {
		c.cache.Put(u, data)
	}
	return data, nil
}

// Records fetches an index and decodes its variation units. The batch book
// and title default to the index's book.
func (c *Client) Records(ctx context.Context, index string) (*record.Batch, error) {
	idx, err := ParseIndex(index)
	if err != nil {
		return nil, err
	}
	data, err := c.Fetch(ctx, index)
	if err != nil {
		return nil, err
	}
	batch, err := xml.Records(data)
	if err != nil {
		return nil, err
	}
	if batch.Book == "" {
		batch.Book = idx.Book
	}
	if batch.Title == "" {
		batch.Title = idx.Title()
	}
	return batch, nil
}
