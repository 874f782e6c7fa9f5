// Package hub fetches model artifacts from a remote model hub.
//
// A model is a fixed set of files resolved under
// <base>/<id>/resolve/main/<file>. Acquisition is idempotent at the file
// level: files already on disk are skipped, and fetched files are written to
// a temporary location and renamed into place so a partially written file is
// never observable.
package hub

import (
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://huggingface.co"
	defaultUserAgent = "llmd"
)

// MarkerFile is the descriptor whose presence defines "model available" for
// a directory. No other signal is consulted.
const MarkerFile = "config.json"

// RequiredFiles is the fixed set fetched for every model: descriptor,
// tokenizer descriptor, tokenizer configuration, weights archive.
var RequiredFiles = []string{
	MarkerFile,
	"tokenizer.json",
	"tokenizer_config.json",
	"model.safetensors",
}

// Client downloads model files from the hub.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom hub base URL (useful for testing).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithToken sets a bearer token for authenticated repositories.
func WithToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.token = token
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a hub client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
			// No client timeout: weights downloads are long-running and are
			// bounded by the request context instead.
			Timeout: 0,
		},
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// resolveURL builds the download URL for one file of a model.
func (c *Client) resolveURL(id, file string) string {
	return c.baseURL + "/" + id + "/resolve/main/" + file
}
