// Package store is the document-store client used by ingestion and queries.
//
// A Client owns its connection state. Connect builds the underlying
// Elasticsearch client once and caches it; Close releases idle transport
// connections and resets the handle so the next Connect starts fresh.
package store

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	sderrors "github.com/sheetdex/sheetdex/pkg/errors"
)

// DefaultAddress is used when no address is configured.
const DefaultAddress = "http://localhost:9200"

// Config holds document-store connection settings.
type Config struct {
	Addresses          []string `yaml:"addresses"`
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
	APIKey             string   `yaml:"api_key"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`

	// Timeout bounds the wait for response headers. Zero means no limit;
	// callers bound calls through their context instead.
	Timeout time.Duration `yaml:"timeout"`

	// Refresh is passed to write calls ("", "true", "false", "wait_for").
	Refresh string `yaml:"-"`
}

// DefaultConfig returns a config for a local single-node store.
func DefaultConfig() Config {
	return Config{
		Addresses: []string{DefaultAddress},
	}
}

// Client is a lazily connected document-store client. It is safe for
// concurrent use.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	es        *elasticsearch.Client
	transport *http.Transport
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client. No connection is made until first use.
func New(cfg Config, opts ...Option) *Client {
	if len(cfg.Addresses) == 0 {
		cfg.Addresses = []string{DefaultAddress}
	}
	c := &Client{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Addresses returns the configured node addresses.
func (c *Client) Addresses() []string {
	return append([]string(nil), c.cfg.Addresses...)
}

// Connect builds the underlying client if needed. Repeated calls return the
// cached handle.
func (c *Client) Connect(ctx context.Context) (*elasticsearch.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, sderrors.ContextCanceled("connect", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.es != nil {
		return c.es, nil
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: c.cfg.Timeout,
	}
	if c.cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: c.cfg.Addresses,
		Username:  c.cfg.Username,
		Password:  c.cfg.Password,
		APIKey:    c.cfg.APIKey,
		Transport: transport,
	})
	if err != nil {
		return nil, sderrors.TransportFailure("connect", err)
	}

	c.es = es
	c.transport = transport
	c.logger.Debug("document store client created", "addresses", c.cfg.Addresses)
	return es, nil
}

// Connected reports whether a handle is cached.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.es != nil
}

// Close releases transport resources. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	c.es = nil
	c.transport = nil
	return nil
}

// decode checks a response and decodes its JSON body into out.
func decode(op string, res *esapi.Response, err error, out any) error {
	if err != nil {
		return sderrors.TransportFailure(op, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return sderrors.StoreResponse(op, res.StatusCode, string(body))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return sderrors.Wrap(err, sderrors.CodeStoreResponse, fmt.Sprintf("%s: malformed response", op))
	}
	return nil
}
