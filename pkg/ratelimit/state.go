// Package ratelimit tracks Graph API usage headers.
//
// Every Graph API response reports how much of the app's and the ad
// account's rolling quota has been used, as JSON in the X-App-Usage and
// X-Ad-Account-Usage headers. The tracker records the latest values so they
// can be logged, exported as metrics and shown on the health endpoint.
// It never blocks requests; throttling is handled by retries on the
// rate-limit error codes.
package ratelimit

import "time"

// Header names carrying usage information.
const (
	HeaderAppUsage       = "X-App-Usage"
	HeaderAdAccountUsage = "X-Ad-Account-Usage"
)

// Thresholds, in percent of quota, for usage log levels.
const (
	// UsageThresholdWarning logs at warn level when any usage reaches it.
	UsageThresholdWarning = 75.0

	// UsageThresholdCritical logs at error level when any usage reaches it.
	UsageThresholdCritical = 90.0
)

// StaleAfter is the age after which the latest usage no longer reflects
// the quota window.
const StaleAfter = 5 * time.Minute

// AppUsage is the X-App-Usage payload (percent of quota).
type AppUsage struct {
	CallCount    float64 `json:"call_count"`
	TotalCPUTime float64 `json:"total_cputime"`
	TotalTime    float64 `json:"total_time"`
}

// AdAccountUsage is the X-Ad-Account-Usage payload.
type AdAccountUsage struct {
	// UtilPct is the percentage of the ad account's quota used.
	UtilPct float64 `json:"acc_id_util_pct"`

	// ResetTimeSeconds is the time until the quota resets.
	ResetTimeSeconds int `json:"reset_time_duration"`
}

// UsageState is the latest observed usage.
type UsageState struct {
	App        AppUsage       `json:"app"`
	AdAccount  AdAccountUsage `json:"ad_account"`
	LastUpdate time.Time      `json:"last_update"`
	IsHealthy  bool           `json:"is_healthy"`
}

// Peak returns the highest usage percentage across all dimensions.
func (s *UsageState) Peak() float64 {
	peak := s.App.CallCount
	for _, v := range []float64{s.App.TotalCPUTime, s.App.TotalTime, s.AdAccount.UtilPct} {
		if v > peak {
			peak = v
		}
	}
	return peak
}

// IsCritical returns true if any usage reached the critical threshold.
func (s *UsageState) IsCritical() bool {
	return s.Peak() >= UsageThresholdCritical
}

// IsWarning returns true if usage is between the warning and critical thresholds.
func (s *UsageState) IsWarning() bool {
	return s.Peak() >= UsageThresholdWarning && !s.IsCritical()
}

// IsStale returns true if the state data is older than maxAge or was never
// updated.
func (s *UsageState) IsStale(maxAge time.Duration) bool {
	return s.LastUpdate.IsZero() || time.Since(s.LastUpdate) > maxAge
}

// UpdateHealth updates IsHealthy from the current usage.
func (s *UsageState) UpdateHealth() {
	s.IsHealthy = s.Peak() < UsageThresholdWarning
}
