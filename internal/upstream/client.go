// Package upstream is the synchronous client for the event-catalog service.
// It is consulted only as a fallback when the local replica lacks data; the
// core never mutates the catalog.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"ms-registration/internal/apperr"
	"ms-registration/internal/models"
	"net/http"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{BaseURL: baseURL, HTTP: httpClient}
}

// GetEvent looks up a single event. Transport and non-200 failures come
// back as ErrUpstreamUnavailable so callers fall back rather than surface
// the outage; a 404 is a plain ErrNotFound.
func (c *Client) GetEvent(ctx context.Context, eventID string) (*models.UpstreamEvent, error) {
	url := fmt.Sprintf("%s/api/events/%s", c.BaseURL, eventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperr.NotFoundf("event %s not known upstream", eventID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: catalog returned status %d", apperr.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var event models.UpstreamEvent
	if err := json.NewDecoder(resp.Body).Decode(&event); err != nil {
		return nil, fmt.Errorf("%w: decode catalog response: %v", apperr.ErrUpstreamUnavailable, err)
	}
	return &event, nil
}
