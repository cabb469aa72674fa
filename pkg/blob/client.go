package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Client is a minimal object-storage client speaking the Vercel Blob HTTP
// API: put an object, list objects by key prefix, fetch an object body by
// its public URL.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	logger  *zap.Logger
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Object describes one stored blob as reported by the storage service.
type Object struct {
	URL        string `json:"url"`
	Pathname   string `json:"pathname"`
	UploadedAt string `json:"uploadedAt"`
	Size       int64  `json:"size,omitempty"`
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Put uploads body under the given pathname and returns the stored object.
func (c *Client) Put(ctx context.Context, pathname string, body []byte, contentType string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/"+pathname, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build put request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Content-Type", contentType)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to put blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("blob put failed with status %d", resp.StatusCode)
	}

	var obj Object
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return nil, fmt.Errorf("failed to decode put response: %w", err)
	}

	c.logger.Debug("Blob stored",
		zap.String("pathname", pathname),
		zap.String("url", obj.URL),
	)

	return &obj, nil
}

// List returns up to limit objects whose pathname starts with prefix, in
// whatever order the storage service reports them.
func (c *Client) List(ctx context.Context, prefix string, limit int) ([]Object, error) {
	query := url.Values{}
	query.Set("prefix", prefix)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build list request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blob list failed with status %d", resp.StatusCode)
	}

	var result struct {
		Blobs []Object `json:"blobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode list response: %w", err)
	}

	c.logger.Debug("Blobs listed",
		zap.String("prefix", prefix),
		zap.Int("count", len(result.Blobs)),
	)

	return result.Blobs, nil
}

// Fetch downloads one object body by its URL.
func (c *Client) Fetch(ctx context.Context, blobURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, blobURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blob fetch failed with status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
