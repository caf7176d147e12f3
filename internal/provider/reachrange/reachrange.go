// Package reachrange calls an external routing service's reachable-range
// endpoint.
package reachrange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/pursuit-ops/isochroned/internal/provider"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

// DefaultTimeout bounds one reachable-range request.
const DefaultTimeout = 15 * time.Second

// Config holds reachable-range provider settings.
type Config struct {
	Enabled bool
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client queries reachable ranges over HTTP.
type Client struct {
	cfg    Config
	client *provider.Client
}

// New creates a reachable-range client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg:    cfg,
		client: provider.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout),
	}
}

// Range is the boundary returned for one request.
type Range struct {
	Center   core.LngLat
	Boundary []core.LngLat
	Raw      json.RawMessage
}

type point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type rangeResponse struct {
	ReachableRange struct {
		Center   point   `json:"center"`
		Boundary []point `json:"boundary"`
	} `json:"reachableRange"`
}

// ReachableRange requests the area reachable from origin within
// budgetSeconds using travelMode.
func (c *Client) ReachableRange(ctx context.Context, origin core.LngLat, budgetSeconds int, traffic bool, travelMode string) (Range, error) {
	if !c.cfg.Enabled {
		return Range{}, core.ErrProviderDisabled
	}
	if !c.client.Configured() {
		return Range{}, core.ErrMissingConfig
	}

	path := fmt.Sprintf("/routing/1/calculateReachableRange/%s,%s/json",
		strconv.FormatFloat(origin.Lat, 'f', 6, 64),
		strconv.FormatFloat(origin.Lng, 'f', 6, 64))

	q := url.Values{}
	q.Set("timeBudgetInSec", strconv.Itoa(budgetSeconds))
	q.Set("traffic", strconv.FormatBool(traffic))
	q.Set("travelMode", travelMode)

	var raw json.RawMessage
	if err := c.client.GetJSON(ctx, path, q, &raw); err != nil {
		return Range{}, fmt.Errorf("reachable range %s: %w", travelMode, err)
	}

	var resp rangeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Range{}, fmt.Errorf("decode reachable range: %v: %w", err, core.ErrUpstreamUnavailable)
	}
	if len(resp.ReachableRange.Boundary) < 3 {
		return Range{}, fmt.Errorf("reachable range %s has %d boundary points: %w",
			travelMode, len(resp.ReachableRange.Boundary), core.ErrEmptyResult)
	}

	out := Range{
		Center: core.LngLat{
			Lng: resp.ReachableRange.Center.Longitude,
			Lat: resp.ReachableRange.Center.Latitude,
		},
		Boundary: make([]core.LngLat, len(resp.ReachableRange.Boundary)),
		Raw:      raw,
	}
	for i, p := range resp.ReachableRange.Boundary {
		out.Boundary[i] = core.LngLat{Lng: p.Longitude, Lat: p.Latitude}
	}
	return out, nil
}
