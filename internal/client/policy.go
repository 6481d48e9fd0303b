// Package client contains thin HTTP clients for the collaborating
// services (policy validation, resource catalog, user directory).  The
// policy and user clients fail open: when the remote side is
// unreachable or misbehaves, the degradation is logged and a
// permissive default is returned so the booking path stays available.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// DefaultGracePeriod is used whenever the policy service cannot supply
// a grace period.
const DefaultGracePeriod = 15 * time.Minute

// Policy validates prospective bookings against externally configured
// rules and exposes the current check-in grace period.
type Policy struct {
	baseURL string
	http    *http.Client
}

// NewPolicy returns a Policy client for the given base URL.  Calls are
// bounded by a short timeout so a slow policy service cannot stall the
// booking path.
func NewPolicy(baseURL string) *Policy {
	return &Policy{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 3 * time.Second},
	}
}

type policyValidateRequest struct {
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	UserID       uint64 `json:"userId"`
	BookingCount int    `json:"currentBookingCount"`
}

type policyValidateResponse struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
}

// Validate submits the candidate window and the user's active booking
// count for policy evaluation.  Transport failures and non-200
// responses are treated as approval (fail open) with a logged warning.
func (p *Policy) Validate(ctx context.Context, start, end time.Time, userID uint64, activeCount int) (bool, []string, error) {
	body, err := json.Marshal(policyValidateRequest{
		StartTime:    start.UTC().Format(time.RFC3339),
		EndTime:      end.UTC().Format(time.RFC3339),
		UserID:       userID,
		BookingCount: activeCount,
	})
	if err != nil {
		return true, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/policies/validate", bytes.NewReader(body))
	if err != nil {
		return true, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.http.Do(req)
	if err != nil {
		log.Printf("policy: validate unreachable, continuing with validation passed: %v", err)
		return true, nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("policy: validate returned status %d, continuing with validation passed", resp.StatusCode)
		return true, nil, nil
	}
	var out policyValidateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Printf("policy: decode validate response failed, continuing with validation passed: %v", err)
		return true, nil, nil
	}
	return out.Valid, out.Violations, nil
}

// GracePeriod returns the check-in grace period currently configured in
// the policy service, falling back to DefaultGracePeriod on any
// failure.
func (p *Policy) GracePeriod(ctx context.Context) time.Duration {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/policies/grace-period", nil)
	if err != nil {
		return DefaultGracePeriod
	}
	resp, err := p.http.Do(req)
	if err != nil {
		log.Printf("policy: grace period unreachable, using default %s: %v", DefaultGracePeriod, err)
		return DefaultGracePeriod
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("policy: grace period returned status %d, using default %s", resp.StatusCode, DefaultGracePeriod)
		return DefaultGracePeriod
	}
	var out struct {
		Minutes int `json:"gracePeriodMinutes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Minutes <= 0 {
		log.Printf("policy: invalid grace period payload, using default %s", DefaultGracePeriod)
		return DefaultGracePeriod
	}
	return time.Duration(out.Minutes) * time.Minute
}
