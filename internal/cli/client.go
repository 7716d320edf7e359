package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"marketsim/internal/competitor"
	"marketsim/internal/market"
	"marketsim/internal/pressure"
	"marketsim/internal/sim"
	"marketsim/internal/store"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type MarketView struct {
	SessionID string                 `json:"session_id"`
	Clock     sim.Clock              `json:"clock"`
	Index     float64                `json:"index"`
	Breaker   market.BreakerState    `json:"breaker"`
	Sentiment market.SentimentState  `json:"sentiment"`
	Events    []market.EventModifier `json:"events"`
	Companies []market.Company       `json:"companies"`
}

type CompanyView struct {
	Company market.Company     `json:"company"`
	Journal []store.PricePoint `json:"journal"`
}

type CompetitorsView struct {
	Competitors []competitor.Competitor `json:"competitors"`
	Rankings    []competitor.Standing   `json:"rankings"`
}

type PressureView struct {
	State         pressure.State        `json:"state"`
	Tier          pressure.TierConfig   `json:"tier"`
	EffectiveRate float64               `json:"effective_rate"`
	Tiers         []pressure.TierConfig `json:"tiers"`
}

type TaxPreview struct {
	TaxAmount    float64        `json:"tax_amount"`
	UpdatedState pressure.State `json:"updated_state"`
}

func (c *Client) Market(ctx context.Context) (MarketView, error) {
	var out MarketView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/market", nil, &out, "")
	return out, err
}

func (c *Client) Company(ctx context.Context, id string, limit int) (CompanyView, error) {
	path := "/v1/market/" + url.PathEscape(id)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out CompanyView
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out, "")
	return out, err
}

func (c *Client) Competitors(ctx context.Context) (CompetitorsView, error) {
	var out CompetitorsView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/competitors", nil, &out, "")
	return out, err
}

func (c *Client) Player(ctx context.Context) (sim.PlayerView, error) {
	var out sim.PlayerView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/player", nil, &out, "")
	return out, err
}

func (c *Client) Pressure(ctx context.Context) (PressureView, error) {
	var out PressureView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/pressure", nil, &out, "")
	return out, err
}

func (c *Client) PlaceOrder(ctx context.Context, companyID, side, idem string, shares int64) (sim.OrderResult, error) {
	var out sim.OrderResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/orders", map[string]any{
		"company_id": companyID,
		"side":       side,
		"shares":     shares,
	}, &out, idem)
	return out, err
}

func (c *Client) PositionCheck(ctx context.Context, tier string, totalAssets float64, currentShares int64, price float64, requested int64) (pressure.PositionCheck, error) {
	var out pressure.PositionCheck
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/position-check", map[string]any{
		"tier":             tier,
		"total_assets":     totalAssets,
		"current_shares":   currentShares,
		"price_per_share":  price,
		"requested_shares": requested,
	}, &out, "")
	return out, err
}

func (c *Client) PreviewTax(ctx context.Context, state pressure.State, totalAssets float64) (TaxPreview, error) {
	var out TaxPreview
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/tax/preview", map[string]any{
		"state":        state,
		"total_assets": totalAssets,
	}, &out, "")
	return out, err
}

func (c *Client) PriceTick(ctx context.Context, req market.TickRequest, seed *int64) (market.TickResponse, error) {
	path := "/v1/price/tick"
	if seed != nil {
		path += "?seed=" + strconv.FormatInt(*seed, 10)
	}
	var out market.TickResponse
	err := c.jsonRequest(ctx, http.MethodPost, path, req, &out, "")
	return out, err
}

func (c *Client) InjectEvent(ctx context.Context, ev market.EventModifier) (market.EventModifier, error) {
	var out market.EventModifier
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/events", ev, &out, "")
	return out, err
}

// Do sends a raw request. It replays queued offline writes.
func (c *Client) Do(ctx context.Context, method, path string, body map[string]any, idem string) (map[string]any, error) {
	var in any
	if body != nil {
		in = body
	}
	out := map[string]any{}
	err := c.jsonRequest(ctx, method, path, in, &out, idem)
	return out, err
}

// IsAPIError reports whether err came back from the server rather than the
// network.
func IsAPIError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "api status")
}

// Stream calls fn for every tick summary until ctx ends, fn returns an error
// or the server closes the stream.
func (c *Client) Stream(ctx context.Context, fn func(sim.TickSummary) error) error {
	u, err := url.Parse(c.BaseURL + "/v1/stream")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	for {
		var sum sim.TickSummary
		if err := conn.ReadJSON(&sum); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if err := fn(sum); err != nil {
			return err
		}
	}
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
