// Package client implements the HTTP client the CLI uses against the
// operator API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/blindspot-sh/blindspot/internal/api"
)

type Client struct {
	BaseURL  string
	APIToken string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func NewClient(baseURL, apiToken string) *Client {
	return &Client{
		BaseURL:  baseURL,
		APIToken: apiToken,
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient().Do(req)
}

// Track registers an injection attempt and returns the beacon URLs.
func (c *Client) Track(ctx context.Context, treq *api.TrackRequest) (*api.TrackResponse, error) {
	body, err := json.Marshal(treq)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1/track", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp)
	}

	var result api.TrackResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListAlerts returns all alert summaries, newest first.
func (c *Client) ListAlerts(ctx context.Context) (*api.ListAlertsResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/alerts", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp)
	}

	var result api.ListAlertsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetAlert returns the full detail of one alert.
func (c *Client) GetAlert(ctx context.Context, id int64) (*api.AlertDetail, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/alerts/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp)
	}

	var result api.AlertDetail
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetScreenshot returns the raw PNG bytes and the stored filename.
func (c *Client) GetScreenshot(ctx context.Context, id int64) ([]byte, string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/alerts/"+strconv.FormatInt(id, 10)+"/screenshot", nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", parseError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, filenameFromDisposition(resp.Header.Get("Content-Disposition")), nil
}

// DeleteAlert removes an alert and its nested records.
func (c *Client) DeleteAlert(ctx context.Context, id int64) error {
	resp, err := c.do(ctx, http.MethodDelete, "/v1/alerts/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}
	return nil
}

func filenameFromDisposition(disposition string) string {
	const marker = `filename="`
	idx := strings.Index(disposition, marker)
	if idx == -1 {
		return ""
	}
	rest := disposition[idx+len(marker):]
	if end := strings.IndexByte(rest, '"'); end != -1 {
		return rest[:end]
	}
	return ""
}

func parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return fmt.Errorf("%s", errResp.Error)
}
