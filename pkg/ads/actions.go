package ads

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Sternrassler/meta-ads-proxy/pkg/export"
	"github.com/goccy/go-json"
)

// Columns added by EnrichInsights.
const (
	ColumnQualifiedLeads = "qualified_leads"
	ColumnCPLQualified   = "cpl_qualified"
)

// Action is one entry of an "actions" or "cost_per_action_type" list.
// Value is a decimal string or a number.
type Action struct {
	ActionType string          `json:"action_type"`
	Value      json.RawMessage `json:"value"`
}

// Number returns the numeric value, or 0 when it is missing or not a finite number.
func (a Action) Number() float64 {
	raw := bytes.TrimSpace(a.Value)
	if len(raw) == 0 {
		return 0
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	n, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

// ActionValue returns the value of the first action of type actionType,
// or 0 when there is none.
func ActionValue(actions []Action, actionType string) float64 {
	if actionType == "" {
		return 0
	}
	for _, a := range actions {
		if a.ActionType == actionType {
			return a.Number()
		}
	}
	return 0
}

// CostPerAction returns the cost of actionType from a cost_per_action_type list.
func CostPerAction(costs []Action, actionType string) float64 {
	return ActionValue(costs, actionType)
}

// decodeActions reads an action list field, tolerating absent or malformed values.
func decodeActions(row *export.Row, key string) []Action {
	raw, ok := row.Get(key)
	if !ok {
		return nil
	}
	var actions []Action
	if err := json.Unmarshal(raw, &actions); err != nil {
		return nil
	}
	return actions
}

func numberJSON(n float64) json.RawMessage {
	return json.RawMessage(strconv.FormatFloat(n, 'f', -1, 64))
}

// EnrichInsights parses insights items and appends the qualified_leads and
// cpl_qualified columns for actionType to every row.
func EnrichInsights(items []json.RawMessage, actionType string) ([]*export.Row, error) {
	rows, err := export.ParseRows(items)
	if err != nil {
		return nil, fmt.Errorf("enrich insights: %w", err)
	}
	for _, row := range rows {
		leads := ActionValue(decodeActions(row, "actions"), actionType)
		cost := CostPerAction(decodeActions(row, "cost_per_action_type"), actionType)
		row.Set(ColumnQualifiedLeads, numberJSON(leads))
		row.Set(ColumnCPLQualified, numberJSON(cost))
	}
	return rows, nil
}
