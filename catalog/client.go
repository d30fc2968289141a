package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/ragsync/core"
)

const (
	// DefaultPageSize is the number of catalog entries requested per page.
	DefaultPageSize = 100

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second

	// maxBodySize caps response bodies read into memory.
	maxBodySize = 32 << 20
)

// Config holds connection settings for the remote catalog.
type Config struct {
	// BaseURL is the API root, e.g. "https://docs.example.com/api".
	BaseURL string

	// PageSize is the listing page size. Default: DefaultPageSize.
	PageSize int

	// Timeout bounds each request when no custom HTTP client is supplied.
	// Default: DefaultTimeout.
	Timeout time.Duration
}

// Item is a fetched catalog item with its parsed content.
type Item struct {
	ID        string
	Title     string
	UpdatedAt int64
	Content   core.RichDocument
}

// Client talks to the remote catalog over HTTP.
type Client struct {
	baseURL  string
	pageSize int
	http     *http.Client
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc != nil {
			c.http = hc
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewClient creates a catalog client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid catalog base URL: %w", err)
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageSize < 0 {
		return nil, ErrInvalidPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		pageSize: cfg.PageSize,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "catalog")

	return c, nil
}

// FetchCatalog lists every item under rootID, following pagination.
// Items are returned in the order the catalog serves them.
func (c *Client) FetchCatalog(ctx context.Context, rootID string) ([]core.CatalogItem, error) {
	if rootID == "" {
		return nil, ErrRootIDRequired
	}

	var items []core.CatalogItem
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("page_size", strconv.Itoa(c.pageSize))
		endpoint := fmt.Sprintf("%s/catalogs/%s/items?%s", c.baseURL, url.PathEscape(rootID), q.Encode())

		body, err := c.get(ctx, endpoint)
		if err != nil {
			return nil, err
		}

		var p catalogPage
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("%w: decoding catalog page %d: %w", core.ErrParse, page, err)
		}

		for _, entry := range p.Items {
			item := entry.toCatalogItem()
			if err := core.ValidateCatalogItem(&item); err != nil {
				return nil, fmt.Errorf("%w: catalog page %d: %w", core.ErrParse, page, err)
			}
			items = append(items, item)
		}

		c.logger.Debug("fetched catalog page", "page", page, "items", len(p.Items), "hasMore", p.HasMore)

		// An empty page ends the listing even if the server claims more.
		if !p.HasMore || len(p.Items) == 0 {
			break
		}
	}

	c.logger.Info("fetched catalog", "root", rootID, "items", len(items))
	return items, nil
}

// FetchItem retrieves one item and parses its rich-text content.
func (c *Client) FetchItem(ctx context.Context, id string) (*Item, error) {
	if id == "" {
		return nil, ErrItemIDRequired
	}

	body, err := c.get(ctx, c.ItemURL(id))
	if err != nil {
		return nil, err
	}

	var p itemPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: decoding item %s: %w", core.ErrParse, id, err)
	}

	doc, err := ParseRichDocument(p.Content)
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", id, err)
	}

	item := &Item{
		ID:        p.ID,
		Title:     p.Title,
		UpdatedAt: p.UpdatedAt,
		Content:   doc,
	}
	if item.ID == "" {
		item.ID = id
	}
	return item, nil
}

// ItemURL returns the URL an item is fetched from. It doubles as the
// source URL recorded for ingested documents.
func (c *Client) ItemURL(id string) string {
	return fmt.Sprintf("%s/items/%s", c.baseURL, url.PathEscape(id))
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTransientFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: endpoint, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", core.ErrTransientFetch, err)
	}
	return body, nil
}
