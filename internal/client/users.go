package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Users queries the user-restriction endpoint of the user service.
type Users struct {
	baseURL string
	http    *http.Client
}

// NewUsers returns a Users client for the given base URL.
func NewUsers(baseURL string) *Users {
	return &Users{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 3 * time.Second},
	}
}

// IsRestricted reports whether the user is barred from creating
// bookings.  When the user service is unreachable the user is treated
// as unrestricted (fail open) and the degradation is logged.
func (u *Users) IsRestricted(ctx context.Context, userID uint64) (bool, error) {
	url := fmt.Sprintf("%s/api/users/%d/restricted", u.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, nil
	}
	resp, err := u.http.Do(req)
	if err != nil {
		log.Printf("users: failed to verify restriction for user %d, continuing: %v", userID, err)
		return false, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("users: restriction check for user %d returned status %d, continuing", userID, resp.StatusCode)
		return false, nil
	}
	var out struct {
		Restricted bool `json:"restricted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, nil
	}
	return out.Restricted, nil
}
