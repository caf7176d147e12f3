// Package traffic queries live average speeds from a flow-segment traffic API.
package traffic

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/pursuit-ops/isochroned/internal/provider"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

const flowSegmentPath = "/traffic/services/4/flowSegmentData/absolute/10/json"

// Config holds traffic provider settings.
type Config struct {
	Enabled bool
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements traffic.Provider over HTTP.
type Client struct {
	cfg    Config
	client *provider.Client
}

// New creates a traffic provider client.
func New(cfg Config) *Client {
	return &Client{
		cfg:    cfg,
		client: provider.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout),
	}
}

type flowSegmentResponse struct {
	FlowSegmentData struct {
		CurrentSpeed  float64 `json:"currentSpeed"`
		FreeFlowSpeed float64 `json:"freeFlowSpeed"`
		Confidence    float64 `json:"confidence"`
	} `json:"flowSegmentData"`
}

// Speed returns the current average speed in km/h at the point.
func (c *Client) Speed(ctx context.Context, p core.LngLat) (float64, error) {
	if !c.cfg.Enabled {
		return 0, core.ErrProviderDisabled
	}
	if !c.client.Configured() {
		return 0, core.ErrMissingConfig
	}

	q := url.Values{}
	q.Set("point", strconv.FormatFloat(p.Lat, 'f', 6, 64)+","+strconv.FormatFloat(p.Lng, 'f', 6, 64))
	q.Set("unit", "KMPH")

	var resp flowSegmentResponse
	if err := c.client.GetJSON(ctx, flowSegmentPath, q, &resp); err != nil {
		return 0, fmt.Errorf("flow segment lookup: %w", err)
	}
	if resp.FlowSegmentData.CurrentSpeed <= 0 {
		return 0, fmt.Errorf("flow segment has no current speed: %w", core.ErrEmptyResult)
	}
	return resp.FlowSegmentData.CurrentSpeed, nil
}
