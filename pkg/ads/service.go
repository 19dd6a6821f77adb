// Package ads lists Marketing API objects (ad accounts, campaigns, ad sets,
// ads) and their insights on top of the paginated Graph API client.
package ads

import (
	"context"
	"errors"
	"strings"

	"github.com/Sternrassler/meta-ads-proxy/pkg/logging"
	"github.com/Sternrassler/meta-ads-proxy/pkg/pagination"
	"github.com/Sternrassler/meta-ads-proxy/pkg/query"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

var (
	// ErrAccountIDRequired is returned when an ad account id is empty.
	ErrAccountIDRequired = errors.New("ad account id is required")

	// ErrEntityIDRequired is returned when an insights object id is empty.
	ErrEntityIDRequired = errors.New("entity id is required")
)

// accountPrefix marks ad account node ids.
const accountPrefix = "act_"

// Default field lists.
var (
	AdAccountFields = []string{"name", "account_id", "account_status", "currency", "id"}
	CampaignFields  = []string{"id", "name", "objective", "status", "effective_status"}
	AdSetFields     = []string{"id", "name", "status", "effective_status", "campaign_id", "daily_budget"}
	AdFields        = []string{"id", "name", "status", "effective_status", "campaign_id", "adset_id"}

	AccountInsightsFields = []string{
		"campaign_name", "adset_name", "ad_name",
		"spend", "impressions", "clicks", "ctr", "cpc",
		"actions", "cost_per_action_type",
		"date_start", "date_stop",
	}
	EntityInsightsFields = []string{"spend", "impressions", "clicks", "actions", "date_start", "date_stop"}
)

// Lister is the part of the Graph API client the service needs.
type Lister interface {
	ListPaginated(ctx context.Context, path string, params *query.Params, opts *pagination.Options) ([]json.RawMessage, error)
	MaxRetries() int
}

// Service exposes the ads listings.
type Service struct {
	graph  Lister
	logger zerolog.Logger
}

// NewService creates a service backed by graph.
func NewService(graph Lister) *Service {
	return &Service{
		graph:  graph,
		logger: logging.NewLogger(logging.ComponentAdsService),
	}
}

// NormalizeAccountID accepts "123" or "act_123" and returns "act_123".
func NormalizeAccountID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || id == accountPrefix {
		return "", ErrAccountIDRequired
	}
	if strings.HasPrefix(id, accountPrefix) {
		return id, nil
	}
	return accountPrefix + id, nil
}

func fieldsParam(fields, defaults []string) query.Value {
	if len(fields) == 0 {
		fields = defaults
	}
	return query.String(strings.Join(fields, ","))
}

// ListAdAccounts lists the ad accounts of the token owner.
// Nil fields select AdAccountFields.
func (s *Service) ListAdAccounts(ctx context.Context, fields []string) ([]json.RawMessage, error) {
	params := query.New("fields", fieldsParam(fields, AdAccountFields))
	return s.graph.ListPaginated(ctx, "/me/adaccounts", params, nil)
}

// ListCampaigns lists the campaigns of an ad account.
func (s *Service) ListCampaigns(ctx context.Context, accountID string, fields []string) ([]json.RawMessage, error) {
	return s.listEdge(ctx, accountID, "campaigns", fieldsParam(fields, CampaignFields))
}

// ListAdSets lists the ad sets of an ad account.
func (s *Service) ListAdSets(ctx context.Context, accountID string, fields []string) ([]json.RawMessage, error) {
	return s.listEdge(ctx, accountID, "adsets", fieldsParam(fields, AdSetFields))
}

// ListAds lists the ads of an ad account.
func (s *Service) ListAds(ctx context.Context, accountID string, fields []string) ([]json.RawMessage, error) {
	return s.listEdge(ctx, accountID, "ads", fieldsParam(fields, AdFields))
}

func (s *Service) listEdge(ctx context.Context, accountID, edge string, fields query.Value) ([]json.RawMessage, error) {
	act, err := NormalizeAccountID(accountID)
	if err != nil {
		return nil, err
	}
	return s.graph.ListPaginated(ctx, "/"+act+"/"+edge, query.New("fields", fields), nil)
}

// AccountInsights returns the insights of an ad account, paging up to the
// insights ceiling.
func (s *Service) AccountInsights(ctx context.Context, accountID string, q InsightsQuery) ([]json.RawMessage, error) {
	act, err := NormalizeAccountID(accountID)
	if err != nil {
		return nil, err
	}

	opts := pagination.InsightsOptions().WithMaxRetries(s.graph.MaxRetries())

	params := q.Params()
	s.logger.Debug().
		Str("account", act).
		Str("level", q.level()).
		Msg("Fetching account insights")

	return s.graph.ListPaginated(ctx, "/"+act+"/insights", params, &opts)
}

// EntityInsights returns the insights of a campaign, ad set or ad. params
// is sent as given; a missing "fields" entry selects EntityInsightsFields.
func (s *Service) EntityInsights(ctx context.Context, entityID string, params *query.Params) ([]json.RawMessage, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, ErrEntityIDRequired
	}

	p := params.Clone()
	if v, ok := p.Get("fields"); !ok || v.IsNull() {
		p.Set("fields", fieldsParam(nil, EntityInsightsFields))
	}
	return s.graph.ListPaginated(ctx, "/"+entityID+"/insights", p, nil)
}
