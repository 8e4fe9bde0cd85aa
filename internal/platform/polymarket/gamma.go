package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmitache88/polymarket-bots/internal/domain"
	"github.com/mmitache88/polymarket-bots/internal/rollover"
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetMarketBySlug returns a single market looked up by its URL slug.
func (g *GammaClient) GetMarketBySlug(ctx context.Context, slug string) (APIMarket, error) {
	params := url.Values{}
	params.Set("slug", slug)

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: get market by slug %s: %w", slug, err)
	}

	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	if len(markets) == 0 {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrNotFound, slug)
	}
	return markets[0], nil
}

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// HourlyResolver discovers the hourly instrument active at a given time by
// deriving its Gamma slug from the wall clock in the market's timezone.
type HourlyResolver struct {
	gamma    *GammaClient
	template string
	loc      *time.Location
	logger   *slog.Logger
}

var _ rollover.InstrumentResolver = (*HourlyResolver)(nil)

// NewHourlyResolver creates a resolver for a recurring hourly market.
// template is the slug prefix, e.g. "bitcoin-up-or-down".
func NewHourlyResolver(gamma *GammaClient, template, timezone string, logger *slog.Logger) (*HourlyResolver, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: load timezone %q: %w", timezone, err)
	}
	return &HourlyResolver{
		gamma:    gamma,
		template: template,
		loc:      loc,
		logger:   logger.With(slog.String("component", "instrument_resolver")),
	}, nil
}

// Resolve finds the instrument covering the hour containing at. Window
// boundaries default to the top of that hour when Gamma omits them.
func (r *HourlyResolver) Resolve(ctx context.Context, at time.Time) (domain.Instrument, error) {
	local := at.In(r.loc)
	slug := HourlySlug(r.template, local)

	market, err := r.gamma.GetMarketBySlug(ctx, slug)
	if err != nil {
		return domain.Instrument{}, err
	}
	inst, err := market.ToInstrument()
	if err != nil {
		return domain.Instrument{}, fmt.Errorf("polymarket/gamma: market %s: %w", slug, err)
	}
	if inst.Slug == "" {
		inst.Slug = slug
	}

	open := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, r.loc)
	if inst.OpenTime.IsZero() {
		inst.OpenTime = open
	}
	if inst.ExpiryTime.IsZero() {
		inst.ExpiryTime = open.Add(time.Hour)
	}

	r.logger.Debug("instrument resolved",
		slog.String("slug", slug),
		slog.Time("open", inst.OpenTime),
		slog.Time("expiry", inst.ExpiryTime),
	)
	return inst, nil
}

// HourlySlug derives the Gamma slug for the hourly window containing t,
// which must already be in the market's timezone. The format is
// "{template}-{month}-{day}-{hour}{am|pm}-et", e.g.
// "bitcoin-up-or-down-august-30-3pm-et".
func HourlySlug(template string, t time.Time) string {
	hour := t.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	meridiem := "am"
	if t.Hour() >= 12 {
		meridiem = "pm"
	}
	month := strings.ToLower(t.Month().String())
	return fmt.Sprintf("%s-%s-%d-%d%s-et", template, month, t.Day(), hour, meridiem)
}
