// Package notion is a minimal client for the Notion API, covering only the
// operations the webhook gateway needs: fetching pages and databases,
// querying a database, and creating/updating pages.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/finhooks/ledgerlink/internal/log"
)

// ClientConfig holds Notion API access settings.
type ClientConfig struct {
	// Token is the integration token (Bearer auth).
	Token string

	// BaseURL is the API root, e.g. "https://api.notion.com/v1".
	BaseURL string

	// Version is sent as the Notion-Version header.
	Version string

	// HTTPClient overrides the default http.Client. Optional.
	HTTPClient *http.Client
}

// Client performs Notion API calls.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	version    string
	logger     *slog.Logger
}

// APIError is a non-2xx response from the Notion API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion api: %d %s", e.StatusCode, e.Message)
}

// NewClient creates a Notion API client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		version:    cfg.Version,
		logger:     log.WithComponent("notion"),
	}
}

// GetPage retrieves a page by id.
func (c *Client) GetPage(ctx context.Context, pageID string) (*Page, error) {
	var page Page
	if err := c.do(ctx, http.MethodGet, "/pages/"+pageID, nil, &page); err != nil {
		return nil, fmt.Errorf("fetch page %s: %w", pageID, err)
	}
	return &page, nil
}

// GetDatabase retrieves a database by id.
func (c *Client) GetDatabase(ctx context.Context, databaseID string) (*Database, error) {
	var db Database
	if err := c.do(ctx, http.MethodGet, "/databases/"+databaseID, nil, &db); err != nil {
		return nil, fmt.Errorf("fetch database %s: %w", databaseID, err)
	}
	return &db, nil
}

// QueryDatabase runs a filtered query and returns the matching pages.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, filter map[string]any) ([]Page, error) {
	body := map[string]any{}
	if filter != nil {
		body["filter"] = filter
	}

	var result struct {
		Results []Page `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "/databases/"+databaseID+"/query", body, &result); err != nil {
		return nil, fmt.Errorf("query database %s: %w", databaseID, err)
	}
	return result.Results, nil
}

// CreatePage creates a page in the given database and returns its id.
func (c *Client) CreatePage(ctx context.Context, databaseID string, properties map[string]any) (string, error) {
	body := map[string]any{
		"parent":     map[string]any{"database_id": databaseID},
		"properties": properties,
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/pages", body, &result); err != nil {
		return "", fmt.Errorf("create page in %s: %w", databaseID, err)
	}
	return result.ID, nil
}

// UpdatePage patches properties on an existing page.
func (c *Client) UpdatePage(ctx context.Context, pageID string, properties map[string]any) error {
	body := map[string]any{
		"properties": properties,
	}
	if err := c.do(ctx, http.MethodPatch, "/pages/"+pageID, body, nil); err != nil {
		return fmt.Errorf("update page %s: %w", pageID, err)
	}
	return nil
}

// do executes one API call and decodes the response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil {
			apiErr.Message = errBody.Message
		}
		c.logger.Warn("api call failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
		)
		return apiErr
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
