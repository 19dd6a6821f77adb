package ratelimit

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestTracker(buf *bytes.Buffer) *Tracker {
	tracker := NewTracker(zerolog.New(buf))
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tracker.now = func() time.Time { return fixed }
	return tracker
}

func TestNewTracker_DefaultState(t *testing.T) {
	state := NewTracker(zerolog.Nop()).State()

	if !state.IsHealthy {
		t.Error("initial state should be healthy")
	}
	if state.Peak() != 0 {
		t.Errorf("initial Peak() = %v, want 0", state.Peak())
	}
}

func TestUpdateFromHeaders_ValidHeaders(t *testing.T) {
	tests := []struct {
		name         string
		appHeader    string
		accHeader    string
		expectedPeak float64
		healthy      bool
		logContains  string
	}{
		{
			name:         "healthy app usage",
			appHeader:    `{"call_count":28,"total_cputime":25,"total_time":25}`,
			expectedPeak: 28,
			healthy:      true,
		},
		{
			name:         "warning from ad account usage",
			appHeader:    `{"call_count":10,"total_cputime":5,"total_time":5}`,
			accHeader:    `{"acc_id_util_pct":78.2,"reset_time_duration":120}`,
			expectedPeak: 78.2,
			healthy:      false,
			logContains:  "WARNING",
		},
		{
			name:         "critical app usage",
			appHeader:    `{"call_count":99,"total_cputime":40,"total_time":41}`,
			expectedPeak: 99,
			healthy:      false,
			logContains:  "CRITICAL",
		},
		{
			name:         "ad account header only",
			accHeader:    `{"acc_id_util_pct":12.5,"reset_time_duration":0}`,
			expectedPeak: 12.5,
			healthy:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tracker := newTestTracker(buf)

			headers := http.Header{}
			if tt.appHeader != "" {
				headers.Set(HeaderAppUsage, tt.appHeader)
			}
			if tt.accHeader != "" {
				headers.Set(HeaderAdAccountUsage, tt.accHeader)
			}

			if err := tracker.UpdateFromHeaders(headers); err != nil {
				t.Fatalf("UpdateFromHeaders() error = %v", err)
			}

			state := tracker.State()
			if state.Peak() != tt.expectedPeak {
				t.Errorf("Peak() = %v, want %v", state.Peak(), tt.expectedPeak)
			}
			if state.IsHealthy != tt.healthy {
				t.Errorf("IsHealthy = %v, want %v", state.IsHealthy, tt.healthy)
			}
			if state.LastUpdate.IsZero() {
				t.Error("LastUpdate should be set")
			}
			if tt.logContains != "" && !strings.Contains(buf.String(), tt.logContains) {
				t.Errorf("log output %q does not contain %q", buf.String(), tt.logContains)
			}
		})
	}
}

func TestUpdateFromHeaders_NoHeaders(t *testing.T) {
	tracker := newTestTracker(&bytes.Buffer{})

	if err := tracker.UpdateFromHeaders(http.Header{}); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
	if !tracker.State().LastUpdate.IsZero() {
		t.Error("state should not change without usage headers")
	}
}

func TestUpdateFromHeaders_InvalidJSON(t *testing.T) {
	tracker := newTestTracker(&bytes.Buffer{})

	headers := http.Header{}
	headers.Set(HeaderAppUsage, `{"call_count":`)

	if err := tracker.UpdateFromHeaders(headers); err == nil {
		t.Error("expected error for malformed header")
	}
	if !tracker.State().IsHealthy {
		t.Error("state should be unchanged after a parse error")
	}
}

func TestUpdateFromHeaders_KeepsOtherDimension(t *testing.T) {
	tracker := newTestTracker(&bytes.Buffer{})

	first := http.Header{}
	first.Set(HeaderAdAccountUsage, `{"acc_id_util_pct":40}`)
	if err := tracker.UpdateFromHeaders(first); err != nil {
		t.Fatal(err)
	}

	second := http.Header{}
	second.Set(HeaderAppUsage, `{"call_count":3}`)
	if err := tracker.UpdateFromHeaders(second); err != nil {
		t.Fatal(err)
	}

	state := tracker.State()
	if state.AdAccount.UtilPct != 40 || state.App.CallCount != 3 {
		t.Errorf("state = %+v, want both dimensions kept", state)
	}
}
