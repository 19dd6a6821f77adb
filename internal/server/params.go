package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Sternrassler/meta-ads-proxy/pkg/ads"
	"github.com/goccy/go-json"
)

// splitFields parses a comma-separated field list, dropping blanks.
func splitFields(raw string) []string {
	if raw == "" {
		return nil
	}
	var fields []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// parseInsightsQuery reads the insights query parameters. filtering and
// time_range are JSON documents; a time_range drops date_preset.
func parseInsightsQuery(r *http.Request) (ads.InsightsQuery, error) {
	values := r.URL.Query()

	q := ads.InsightsQuery{
		Level:         strings.TrimSpace(values.Get("level")),
		Fields:        splitFields(values.Get("fields")),
		DatePreset:    strings.TrimSpace(values.Get("date_preset")),
		TimeIncrement: strings.TrimSpace(values.Get("time_increment")),
	}

	if raw := values.Get("filtering"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q.Filtering); err != nil {
			return ads.InsightsQuery{}, fmt.Errorf("invalid filtering: %w", err)
		}
	}

	if raw := values.Get("time_range"); raw != "" {
		var tr ads.TimeRange
		if err := json.Unmarshal([]byte(raw), &tr); err != nil {
			return ads.InsightsQuery{}, fmt.Errorf("invalid time_range: %w", err)
		}
		q.TimeRange = &tr
		q.DatePreset = ""
	}

	return q, nil
}
