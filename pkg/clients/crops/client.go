// Package crops is a client for the crop reference catalog.
package crops

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
)

// Client is a resty-backed crop catalog client. Profiles are cached for the
// lifetime of the client since catalog entries change rarely.
type Client struct {
	httpClient *resty.Client

	mu    sync.RWMutex
	cache map[string]models.CropProfile
}

// NewClient builds a catalog client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{
		httpClient: restyClient,
		cache:      map[string]models.CropProfile{},
	}
}

type apiError struct {
	Error string `json:"error"`
}

// GetCropProfile fetches the profile for cropID. An unknown crop returns an
// error wrapping models.ErrNotFound.
func (c *Client) GetCropProfile(ctx context.Context, cropID string) (*models.CropProfile, error) {
	c.mu.RLock()
	cached, ok := c.cache[cropID]
	c.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	result := new(models.CropProfile)
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("id", cropID).
		SetResult(result).
		SetError(apiErr).
		Get("/crops/{id}")
	if err != nil {
		return nil, fmt.Errorf("fetch crop profile %s: %w: %w", cropID, models.ErrRepositoryUnavailable, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("crop %s: %w", cropID, models.ErrNotFound)
	case resp.StatusCode() >= http.StatusInternalServerError:
		return nil, fmt.Errorf("crop catalog status %d: %w", resp.StatusCode(), models.ErrRepositoryUnavailable)
	case resp.StatusCode() >= http.StatusBadRequest:
		return nil, fmt.Errorf("crop catalog error: code=%d, message=%s", resp.StatusCode(), apiErr.Error)
	}

	if result.ID == "" {
		result.ID = cropID
	}

	c.mu.Lock()
	c.cache[cropID] = *result
	c.mu.Unlock()

	return result, nil
}

// StaticCatalog serves profiles from memory. It backs the memory storage
// driver and tests.
type StaticCatalog map[string]models.CropProfile

// GetCropProfile returns the stored profile or models.ErrNotFound.
func (s StaticCatalog) GetCropProfile(_ context.Context, cropID string) (*models.CropProfile, error) {
	profile, ok := s[cropID]
	if !ok {
		return nil, fmt.Errorf("crop %s: %w", cropID, models.ErrNotFound)
	}
	return &profile, nil
}
