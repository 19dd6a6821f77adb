package server

import (
	"errors"
	"net/http"

	"github.com/Sternrassler/meta-ads-proxy/pkg/client"
	"github.com/Sternrassler/meta-ads-proxy/pkg/export"
	"github.com/Sternrassler/meta-ads-proxy/pkg/logging"
	"github.com/goccy/go-json"
)

// errorResponse is the body of every failed request. Graph API failures
// carry the upstream code, subcode and trace id.
type errorResponse struct {
	Error     string `json:"error"`
	Code      int    `json:"code,omitempty"`
	Subcode   int    `json:"subcode,omitempty"`
	FBTraceID string `json:"fbtrace_id,omitempty"`
}

// listResponse wraps listing items.
type listResponse struct {
	Data any `json:"data"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		l := logging.FromContext(r.Context(), s.logger)
		l.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		l := logging.FromContext(r.Context(), s.logger)
		l.Warn().Err(err).Msg("Failed to write JSON response")
	}
}

// writeBadRequest reports a malformed proxy request.
func (s *Server) writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: message})
}

// writeFailure reports a failed listing.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: err.Error()}

	var upstream *client.UpstreamError
	if errors.As(err, &upstream) {
		if upstream.Message != "" {
			resp.Error = upstream.Message
		}
		resp.Code = upstream.Code
		resp.Subcode = upstream.Subcode
		resp.FBTraceID = upstream.TraceID
	}

	l := logging.FromContext(r.Context(), s.logger)
	l.Warn().
		Err(err).
		Int("code", resp.Code).
		Str("path", r.URL.Path).
		Msg("Listing failed")

	s.writeJSON(w, r, http.StatusBadRequest, resp)
}

// writeDownload sends rows as an attachment.
func (s *Server) writeDownload(w http.ResponseWriter, r *http.Request, format export.Format, listing string, rows []*export.Row) {
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.Filename(listing)+`"`)
	w.WriteHeader(http.StatusOK)

	if err := export.Write(w, format, rows); err != nil {
		l := logging.FromContext(r.Context(), s.logger)
		l.Error().Err(err).Str("format", string(format)).Msg("Failed to write export")
	}
}
