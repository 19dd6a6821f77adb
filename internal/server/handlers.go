package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/Sternrassler/meta-ads-proxy/pkg/ads"
	"github.com/Sternrassler/meta-ads-proxy/pkg/credentials"
	"github.com/Sternrassler/meta-ads-proxy/pkg/export"
	"github.com/Sternrassler/meta-ads-proxy/pkg/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

// maxTokenBody bounds POST /token bodies.
const maxTokenBody = 64 << 10

type healthResponse struct {
	OK         bool  `json:"ok"`
	Usage      any   `json:"usage,omitempty"`
	UsageStale *bool `json:"usage_stale,omitempty"`
}

type tokenStatus struct {
	Configured bool   `json:"configured"`
	Masked     string `json:"masked"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{OK: true}
	if s.usage != nil {
		state := s.usage.State()
		stale := state.IsStale(ratelimit.StaleAfter)
		resp.Usage = state
		resp.UsageStale = &stale
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.credentials.Token(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read access token")
		s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "credential store unavailable"})
		return
	}
	s.writeJSON(w, r, http.StatusOK, tokenStatus{
		Configured: credentials.HasToken(token),
		Masked:     credentials.Mask(token),
	})
}

func (s *Server) handleSetToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTokenBody)).Decode(&req); err != nil {
		s.writeBadRequest(w, r, "invalid request body: expected {\"token\": \"...\"}")
		return
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		s.writeBadRequest(w, r, "token is required")
		return
	}

	if err := s.credentials.SetToken(r.Context(), token); err != nil {
		s.logger.Error().Err(err).Msg("Failed to store access token")
		s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "credential store unavailable"})
		return
	}

	s.logger.Info().Str("token", credentials.Mask(token)).Msg("Access token rotated")
	s.writeJSON(w, r, http.StatusOK, tokenStatus{
		Configured: credentials.HasToken(token),
		Masked:     credentials.Mask(token),
	})
}

func (s *Server) handleAdAccounts(w http.ResponseWriter, r *http.Request) {
	s.serveListing(w, r, "adaccounts", func(ctx context.Context, fields []string) ([]json.RawMessage, error) {
		return s.service.ListAdAccounts(ctx, fields)
	})
}

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	s.serveListing(w, r, "campaigns", func(ctx context.Context, fields []string) ([]json.RawMessage, error) {
		return s.service.ListCampaigns(ctx, accountID, fields)
	})
}

func (s *Server) handleAdSets(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	s.serveListing(w, r, "adsets", func(ctx context.Context, fields []string) ([]json.RawMessage, error) {
		return s.service.ListAdSets(ctx, accountID, fields)
	})
}

func (s *Server) handleAds(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	s.serveListing(w, r, "ads", func(ctx context.Context, fields []string) ([]json.RawMessage, error) {
		return s.service.ListAds(ctx, accountID, fields)
	})
}

// serveListing runs list and writes the items as {"data": [...]} or as a
// download when format is set.
func (s *Server) serveListing(w http.ResponseWriter, r *http.Request, listing string, list func(context.Context, []string) ([]json.RawMessage, error)) {
	format, ok := s.downloadFormat(w, r)
	if !ok {
		return
	}

	items, err := list(r.Context(), splitFields(r.URL.Query().Get("fields")))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	s.writeItems(w, r, format, listing, items, nil)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	format, ok := s.downloadFormat(w, r)
	if !ok {
		return
	}

	q, err := parseInsightsQuery(r)
	if err != nil {
		s.writeBadRequest(w, r, err.Error())
		return
	}

	items, err := s.service.AccountInsights(r.Context(), chi.URLParam(r, "accountID"), q)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	var rows []*export.Row
	if actionType := strings.TrimSpace(r.URL.Query().Get("action_type")); actionType != "" {
		rows, err = ads.EnrichInsights(items, actionType)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
	}

	s.writeItems(w, r, format, "insights", items, rows)
}

// writeItems writes rows when given, otherwise the raw items.
func (s *Server) writeItems(w http.ResponseWriter, r *http.Request, format export.Format, listing string, items []json.RawMessage, rows []*export.Row) {
	if format == "" {
		if rows != nil {
			s.writeJSON(w, r, http.StatusOK, listResponse{Data: rows})
			return
		}
		if items == nil {
			items = []json.RawMessage{}
		}
		s.writeJSON(w, r, http.StatusOK, listResponse{Data: items})
		return
	}

	if rows == nil {
		var err error
		rows, err = export.ParseRows(items)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
	}
	s.writeDownload(w, r, format, listing, rows)
}

// downloadFormat returns the requested export format, "" for a plain JSON
// response. It writes a 400 and reports false for unknown formats.
func (s *Server) downloadFormat(w http.ResponseWriter, r *http.Request) (export.Format, bool) {
	raw := r.URL.Query().Get("format")
	if raw == "" {
		return "", true
	}
	format, err := export.ParseFormat(raw)
	if err != nil {
		s.writeBadRequest(w, r, err.Error())
		return "", false
	}
	return format, true
}
