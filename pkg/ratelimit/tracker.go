package ratelimit

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for usage tracking.
var (
	graphAppUsagePercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "graph_app_usage_percent",
		Help: "Latest X-App-Usage value by dimension",
	}, []string{"dimension"})

	graphAdAccountUsagePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graph_ad_account_usage_percent",
		Help: "Latest X-Ad-Account-Usage acc_id_util_pct value",
	})

	graphUsageWarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graph_usage_warnings_total",
		Help: "Total number of responses reporting usage above a threshold",
	}, []string{"level"})
)

// Tracker keeps the latest usage reported by the Graph API.
type Tracker struct {
	mu     sync.RWMutex
	state  UsageState
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a new usage tracker. Until a response is observed the
// state is healthy with zero usage.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		state:  UsageState{IsHealthy: true},
		logger: logger,
		now:    time.Now,
	}
}

// State returns a copy of the latest usage state.
func (t *Tracker) State() UsageState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// UpdateFromHeaders parses usage headers and updates the state. Responses
// without usage headers leave the state untouched.
func (t *Tracker) UpdateFromHeaders(headers http.Header) error {
	appRaw := headers.Get(HeaderAppUsage)
	accountRaw := headers.Get(HeaderAdAccountUsage)
	if appRaw == "" && accountRaw == "" {
		return nil
	}

	t.mu.Lock()
	state := t.state

	if appRaw != "" {
		var app AppUsage
		if err := json.Unmarshal([]byte(appRaw), &app); err != nil {
			t.mu.Unlock()
			return fmt.Errorf("parse %s header: %w", HeaderAppUsage, err)
		}
		state.App = app
	}

	if accountRaw != "" {
		var account AdAccountUsage
		if err := json.Unmarshal([]byte(accountRaw), &account); err != nil {
			t.mu.Unlock()
			return fmt.Errorf("parse %s header: %w", HeaderAdAccountUsage, err)
		}
		state.AdAccount = account
	}

	state.LastUpdate = t.now()
	state.UpdateHealth()
	t.state = state
	t.mu.Unlock()

	graphAppUsagePercent.WithLabelValues("call_count").Set(state.App.CallCount)
	graphAppUsagePercent.WithLabelValues("total_cputime").Set(state.App.TotalCPUTime)
	graphAppUsagePercent.WithLabelValues("total_time").Set(state.App.TotalTime)
	graphAdAccountUsagePercent.Set(state.AdAccount.UtilPct)

	switch {
	case state.IsCritical():
		graphUsageWarningsTotal.WithLabelValues("critical").Inc()
		t.logger.Error().
			Float64("peak_usage_pct", state.Peak()).
			Int("reset_in_seconds", state.AdAccount.ResetTimeSeconds).
			Msg("Graph API usage CRITICAL - throttling imminent")
	case state.IsWarning():
		graphUsageWarningsTotal.WithLabelValues("warning").Inc()
		t.logger.Warn().
			Float64("peak_usage_pct", state.Peak()).
			Msg("Graph API usage WARNING")
	default:
		t.logger.Debug().
			Float64("peak_usage_pct", state.Peak()).
			Msg("Graph API usage updated")
	}

	return nil
}
