// Package logging configures zerolog for the ads proxy and carries
// request-scoped log fields through contexts.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component names carried in the "component" field.
const (
	ComponentGraphClient = "graph-client"
	ComponentAdsService  = "ads-service"
	ComponentHTTPServer  = "http-server"
	ComponentUsage       = "usage-tracker"
)

// Config holds logger configuration.
type Config struct {
	// Level is "debug", "info", "warn" or "error". Unknown levels log at info.
	Level string

	// Pretty enables human-readable console output instead of JSON lines.
	Pretty bool

	// Output receives the log lines (default: os.Stderr).
	Output io.Writer
}

// Setup configures the global zerolog logger and returns it. Access tokens
// in query strings are masked before a line reaches Output.
func Setup(cfg Config) zerolog.Logger {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	output = tokenRedactor{out: output}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel maps a level name to a zerolog level. Case and surrounding
// blanks are ignored and "warning" is accepted for warn.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger creates a logger tagged with component, one of the Component
// names.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// RedactedToken replaces access token values in log output.
const RedactedToken = "REDACTED"

var accessTokenValue = regexp.MustCompile(`(access_token=)[^&"\\\s]+`)

// tokenRedactor masks access_token query values. zerolog hands it one
// complete line per Write.
type tokenRedactor struct {
	out io.Writer
}

func (r tokenRedactor) Write(p []byte) (int, error) {
	if !bytes.Contains(p, []byte("access_token=")) {
		return r.out.Write(p)
	}
	if _, err := r.out.Write(accessTokenValue.ReplaceAll(p, []byte("${1}"+RedactedToken))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Log Level Guidelines:
//
// Debug: per-request flow
//   - Each Graph API attempt (endpoint template, never the token)
//   - Each fetched page (items on page, running total)
//   - Usage headers below the warning threshold
//
// Info: normal operation events
//   - Completed listings (pages, items, duration)
//   - Requests that succeeded after a retry
//   - Credential rotation, server startup/shutdown
//
// Warn: degraded but working
//   - Rate-limit retries and their backoff
//   - Usage above 75% of quota
//   - Circuit breaker transitions
//   - Failed listings (the error is returned to the caller)
//
// Error: needs attention
//   - Exhausted retry budgets
//   - Network failures
//   - Usage above 90% of quota
//
// Context Fields:
//   - component: emitting package, see the Component constants
//   - request_id: proxy request id, see ContextWithRequestID
//   - endpoint: path template with ids collapsed, e.g. /{id}/insights
//   - code, subcode, fbtrace_id: Graph API error envelope fields
//   - attempt, backoff: retry progress
