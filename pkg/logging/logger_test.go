package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// setupBuffer routes the global logger into a buffer for the test.
func setupBuffer(t *testing.T, level string, pretty bool) *bytes.Buffer {
	t.Helper()

	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	buf := &bytes.Buffer{}
	Setup(Config{Level: level, Pretty: pretty, Output: buf})
	return buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]any
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", raw, err)
		}
		lines = append(lines, line)
	}
	return lines
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"WARNING", zerolog.WarnLevel, false},
		{" error\n", zerolog.ErrorLevel, false},
		{"trace", zerolog.InfoLevel, true},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{"debug", []string{"Fetched page", "Listing complete", "Retrying after rate limit", "Retry budget exhausted"}},
		{"warn", []string{"Retrying after rate limit", "Retry budget exhausted"}},
		{"bogus", []string{"Listing complete", "Retrying after rate limit", "Retry budget exhausted"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := setupBuffer(t, tt.level, false)
			logger := NewLogger(ComponentGraphClient)

			logger.Debug().Int("page", 0).Msg("Fetched page")
			logger.Info().Int("pages", 1).Msg("Listing complete")
			logger.Warn().Int("code", 17).Msg("Retrying after rate limit")
			logger.Error().Int("attempts", 4).Msg("Retry budget exhausted")

			var got []string
			for _, line := range decodeLines(t, buf) {
				got = append(got, line["message"].(string))
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("messages = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewLogger_RequestScopedFields(t *testing.T) {
	buf := setupBuffer(t, "info", false)
	ctx := ContextWithRequestID(context.Background(), "req-7f3a")

	l := FromContext(ctx, NewLogger(ComponentAdsService))
	l.Info().Str("account", "act_123").Msg("Fetching account insights")
	serverLog := NewLogger(ComponentHTTPServer)
	serverLog.Info().Msg("Server listening")

	lines := decodeLines(t, buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	first := lines[0]
	if first["component"] != ComponentAdsService || first["request_id"] != "req-7f3a" || first["account"] != "act_123" {
		t.Errorf("first line = %v, want ads-service component with request_id and account", first)
	}
	if _, ok := first["time"]; !ok {
		t.Error("log lines should carry a timestamp")
	}

	second := lines[1]
	if second["component"] != ComponentHTTPServer {
		t.Errorf("component = %v, want %s", second["component"], ComponentHTTPServer)
	}
	if _, ok := second["request_id"]; ok {
		t.Error("a logger without a request context must not carry request_id")
	}
}

func TestSetup_RedactsAccessToken(t *testing.T) {
	const token = "EAAlongsecrettoken0123456789"
	failure := "Get \"https://graph.facebook.com/v24.0/act_1/ads?fields=id&access_token=" + token + "\": dial tcp: i/o timeout"

	for _, pretty := range []bool{false, true} {
		name := "json"
		if pretty {
			name = "pretty"
		}
		t.Run(name, func(t *testing.T) {
			buf := setupBuffer(t, "info", pretty)

			graphLog := NewLogger(ComponentGraphClient)
			graphLog.Error().
				Str("url", "/act_1/ads?access_token="+token+"&limit=100").
				Msg(failure)

			out := buf.String()
			if strings.Contains(out, token) {
				t.Fatalf("log output leaks the access token: %s", out)
			}
			if !strings.Contains(out, "access_token="+RedactedToken) {
				t.Errorf("expected the masked token in %s", out)
			}
			if !strings.Contains(out, "limit=100") || !strings.Contains(out, "i/o timeout") {
				t.Errorf("redaction should keep the rest of the line: %s", out)
			}
		})
	}
}

func TestTokenRedactor_PassesOtherLinesThrough(t *testing.T) {
	buf := &bytes.Buffer{}
	w := tokenRedactor{out: buf}

	line := []byte(`{"level":"info","message":"Access token rotated","token":"EAAa…9z"}` + "\n")
	n, err := w.Write(line)
	if err != nil || n != len(line) {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if buf.String() != string(line) {
		t.Errorf("line changed: %q", buf.String())
	}
}

func TestSetup_NilOutputDefaultsToStderr(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	logger := Setup(Config{Level: "error"})
	if logger.GetLevel() == zerolog.Disabled {
		t.Error("logger should be enabled")
	}
	if zerolog.GlobalLevel() != zerolog.ErrorLevel {
		t.Errorf("global level = %v, want error", zerolog.GlobalLevel())
	}
}
