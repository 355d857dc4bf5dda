package adapters

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/marketsurveil/surveil/internal/domain"
	"github.com/marketsurveil/surveil/internal/ports"
)

// HTTPCatalog is the venue-listing adapter: a resty client against the
// catalog REST API with retry on 5xx. Read-path retries live here; the
// core treats the port as a single call.
type HTTPCatalog struct {
	http *resty.Client
}

// NewHTTPCatalog builds a catalog client for baseURL.
func NewHTTPCatalog(baseURL string) *HTTPCatalog {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")
	return &HTTPCatalog{http: client}
}

// catalogMarket is the wire shape of one market listing.
type catalogMarket struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	Description   string    `json:"description"`
	Outcomes      []string  `json:"outcomes"`
	OutcomePrices []float64 `json:"outcome_prices"`
	Volume        float64   `json:"volume"`
	Active        bool      `json:"active"`
	Closed        bool      `json:"closed"`
	EndDate       string    `json:"end_date"` // RFC 3339, may be empty
	Tags          []string  `json:"tags"`
}

type catalogListResponse struct {
	Markets []catalogMarket `json:"markets"`
}

func (cm catalogMarket) toDomain() (*domain.Market, error) {
	if cm.ID == "" {
		return nil, fmt.Errorf("market missing id")
	}
	if len(cm.Outcomes) < 2 || len(cm.OutcomePrices) != len(cm.Outcomes) {
		return nil, fmt.Errorf("market %s: outcomes/prices mismatch", cm.ID)
	}
	for _, p := range cm.OutcomePrices {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("market %s: price %v outside [0,1]", cm.ID, p)
		}
	}
	var end time.Time
	if cm.EndDate != "" {
		t, err := time.Parse(time.RFC3339, cm.EndDate)
		if err != nil {
			return nil, fmt.Errorf("market %s: bad end_date: %w", cm.ID, err)
		}
		end = t
	}
	return &domain.Market{
		MarketID:      cm.ID,
		Question:      cm.Question,
		Description:   cm.Description,
		Outcomes:      cm.Outcomes,
		OutcomePrices: cm.OutcomePrices,
		Volume:        cm.Volume,
		Active:        cm.Active,
		Closed:        cm.Closed,
		EndDate:       end,
		Tags:          cm.Tags,
	}, nil
}

// GetMarketsWithMinVolume implements ports.MarketCatalog. Malformed
// listings are skipped rather than failing the whole page.
func (c *HTTPCatalog) GetMarketsWithMinVolume(ctx context.Context, minVolume float64, maxMarkets int) ([]*domain.Market, error) {
	var out catalogListResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("min_volume", strconv.FormatFloat(minVolume, 'f', -1, 64)).
		SetQueryParam("limit", strconv.Itoa(maxMarkets)).
		SetResult(&out).
		Get("/markets")
	if err != nil {
		return nil, ports.Wrap(ports.KindTransientIO, "http_catalog.list", err)
	}
	if resp.IsError() {
		kind := ports.KindUpstreamRejection
		if resp.StatusCode() >= 500 {
			kind = ports.KindTransientIO
		}
		return nil, ports.Wrap(kind, "http_catalog.list", fmt.Errorf("status %d", resp.StatusCode()))
	}

	markets := make([]*domain.Market, 0, len(out.Markets))
	for _, cm := range out.Markets {
		m, err := cm.toDomain()
		if err != nil {
			continue
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// GetMarketByID implements ports.MarketCatalog.
func (c *HTTPCatalog) GetMarketByID(ctx context.Context, id string) (*domain.Market, error) {
	var out catalogMarket
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/markets/" + id)
	if err != nil {
		return nil, ports.Wrap(ports.KindTransientIO, "http_catalog.get", err)
	}
	if resp.IsError() {
		kind := ports.KindUpstreamRejection
		if resp.StatusCode() >= 500 {
			kind = ports.KindTransientIO
		}
		return nil, ports.Wrap(kind, "http_catalog.get", fmt.Errorf("status %d", resp.StatusCode()))
	}
	m, err := out.toDomain()
	if err != nil {
		return nil, ports.Wrap(ports.KindDataShape, "http_catalog.get", err)
	}
	return m, nil
}

// HealthCheck implements ports.MarketCatalog.
func (c *HTTPCatalog) HealthCheck(ctx context.Context) (bool, string) {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return false, err.Error()
	}
	if resp.IsError() {
		return false, fmt.Sprintf("catalog health status %d", resp.StatusCode())
	}
	return true, "catalog reachable"
}

// HTTPWebhook posts rendered notification payloads to a webhook URL.
// It performs exactly one attempt per Send — retry/backoff policy is
// owned by the delivery pipeline, so SetRetryCount stays zero here.
type HTTPWebhook struct {
	http *resty.Client
	url  string
}

// NewHTTPWebhook builds a webhook adapter posting to url.
func NewHTTPWebhook(url string) *HTTPWebhook {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &HTTPWebhook{http: client, url: url}
}

// webhookEmbed is the posted message shape: a single priority-colored
// embed with named fields.
type webhookEmbed struct {
	Title     string              `json:"title"`
	Color     int                 `json:"color"`
	URL       string              `json:"url,omitempty"`
	Timestamp string              `json:"timestamp"`
	Fields    []webhookEmbedField `json:"fields"`
}

type webhookEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type webhookBody struct {
	Embeds []webhookEmbed `json:"embeds"`
}

// Send implements ports.Webhook. 4xx responses are tagged
// UpstreamRejection so the caller's retry loop knows not to repeat a
// request the receiver already rejected.
func (h *HTTPWebhook) Send(ctx context.Context, payload ports.NotificationPayload) error {
	fields := make([]webhookEmbedField, 0, len(payload.Fields))
	for _, f := range payload.Fields {
		fields = append(fields, webhookEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	body := webhookBody{Embeds: []webhookEmbed{{
		Title:     payload.Title,
		Color:     payload.Color,
		URL:       payload.URL,
		Timestamp: payload.GeneratedAt.UTC().Format(time.RFC3339),
		Fields:    fields,
	}}}

	resp, err := h.http.R().SetContext(ctx).SetBody(body).Post(h.url)
	if err != nil {
		return ports.Wrap(ports.KindTransientIO, "http_webhook.send", err)
	}
	if resp.IsError() {
		kind := ports.KindUpstreamRejection
		if resp.StatusCode() >= 500 {
			kind = ports.KindTransientIO
		}
		return ports.Wrap(kind, "http_webhook.send", fmt.Errorf("status %d", resp.StatusCode()))
	}
	return nil
}
