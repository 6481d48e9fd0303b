package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/LibraryBookingSystem/booking-service/internal/repository"
)

// Catalog resolves resource IDs against the resource-catalog service.
// The name lookup is display-only and fails open to a fallback label;
// an affirmative "not found" from the catalog, however, rejects the
// booking because the resource genuinely does not exist.
type Catalog struct {
	baseURL string
	http    *http.Client
}

// NewCatalog returns a Catalog client for the given base URL.
func NewCatalog(baseURL string) *Catalog {
	return &Catalog{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 3 * time.Second},
	}
}

// FallbackName is the display label used when the catalog cannot be
// reached.
func FallbackName(resourceID uint64) string {
	return fmt.Sprintf("resource-%d", resourceID)
}

// ResourceName verifies the resource exists and returns its display
// name.  A 404 from the catalog maps to repository.ErrNotFound; any
// transport failure degrades to the fallback label with a logged
// warning.
func (c *Catalog) ResourceName(ctx context.Context, resourceID uint64) (string, error) {
	url := fmt.Sprintf("%s/api/resources/%d", c.baseURL, resourceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FallbackName(resourceID), nil
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("catalog: lookup of resource %d failed, using fallback name: %v", resourceID, err)
		return FallbackName(resourceID), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("resource %d: %w", resourceID, repository.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("catalog: lookup of resource %d returned status %d, using fallback name", resourceID, resp.StatusCode)
		return FallbackName(resourceID), nil
	}
	var out struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Name == "" {
		return FallbackName(resourceID), nil
	}
	return out.Name, nil
}
