package ads

import (
	"strings"

	"github.com/Sternrassler/meta-ads-proxy/pkg/query"
)

// Insights defaults.
const (
	DefaultLevel      = "campaign"
	DefaultDatePreset = "last_7d"
)

// Filter is one entry of the "filtering" parameter, e.g.
// {Field: "ad.effective_status", Operator: "IN", Value: []string{"ACTIVE"}}.
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// TimeRange is an explicit reporting window (YYYY-MM-DD).
type TimeRange struct {
	Since string `json:"since"`
	Until string `json:"until"`
}

// InsightsQuery selects account insights. Zero fields take the defaults.
type InsightsQuery struct {
	// Level is campaign, adset, ad or account.
	Level string

	Fields []string

	// DatePreset is ignored when TimeRange is set.
	DatePreset string

	// TimeRange overrides DatePreset.
	TimeRange *TimeRange

	// TimeIncrement splits results per period ("1" for daily, "monthly", "all_days").
	TimeIncrement string

	Filtering []Filter
}

func (q InsightsQuery) level() string {
	if q.Level == "" {
		return DefaultLevel
	}
	return q.Level
}

// Params returns the Graph API parameters for q.
func (q InsightsQuery) Params() *query.Params {
	p := query.New(
		"level", query.String(q.level()),
		"fields", fieldsParam(q.Fields, AccountInsightsFields),
	)

	if q.TimeRange != nil {
		p.Set("time_range", query.Structured(q.TimeRange))
	} else {
		preset := strings.TrimSpace(q.DatePreset)
		if preset == "" {
			preset = DefaultDatePreset
		}
		p.Set("date_preset", query.String(preset))
	}

	if q.TimeIncrement != "" {
		p.Set("time_increment", query.String(q.TimeIncrement))
	}
	if len(q.Filtering) > 0 {
		p.Set("filtering", query.Sequence(q.Filtering...))
	}
	return p
}
