package finnhub

import (
	"errors"
	"net/http"
	"net/url"
	"time"
)

const baseURL = "https://finnhub.io/api/v1"

// ErrMissingAPIKey is returned by NewClient when no token is configured.
var ErrMissingAPIKey = errors.New("finnhub: missing api key")

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=finnhub_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the Finnhub quote API.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	header     http.Header
	query      url.Values // token plus any fixed parameters
	now        func() time.Time
}

// Option is a configuration option for the Finnhub client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithClock overrides the clock used for Quote.ObservedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new Finnhub client authenticated with key.
func NewClient(key string, options ...Option) (*Client, error) {
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	var client = &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
		now:        time.Now,
	}
	// Finnhub accepts the key as a query parameter or X-Finnhub-Token header.
	// https://finnhub.io/docs/api/authentication
	client.query.Set("token", key)
	for _, option := range options {
		option(client)
	}
	return client, nil
}
