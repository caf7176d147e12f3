// Package roadgraph is the HTTP client for the road-graph service: snapping
// coordinates onto the network and fetching the edges of a map tile.
package roadgraph

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/pursuit-ops/isochroned/internal/geo"
	"github.com/pursuit-ops/isochroned/internal/provider"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

// DefaultTimeout bounds one road-graph request.
const DefaultTimeout = 10 * time.Second

// Road classes understood by the solver.
const (
	ClassMotorway    = "motorway"
	ClassTrunk       = "trunk"
	ClassPrimary     = "primary"
	ClassSecondary   = "secondary"
	ClassTertiary    = "tertiary"
	ClassResidential = "residential"
	ClassService     = "service"
)

// Config holds road-graph provider settings.
type Config struct {
	Enabled bool
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Edge is one directed or bidirectional road segment.
type Edge struct {
	ID         string      `json:"id"`
	Geometry   [][]float64 `json:"geometry"`
	Length     float64     `json:"length"`
	Oneway     bool        `json:"oneway"`
	SpeedLimit float64     `json:"speedLimit"`
	RoadClass  string      `json:"roadClass"`
}

// Highway reports whether the edge belongs to a limited-access road class.
func (e Edge) Highway() bool {
	return e.RoadClass == ClassMotorway || e.RoadClass == ClassTrunk
}

// Client talks to the road-graph service.
type Client struct {
	cfg    Config
	client *provider.Client
}

// New creates a road-graph client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg:    cfg,
		client: provider.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout),
	}
}

func (c *Client) check() error {
	if !c.cfg.Enabled {
		return core.ErrProviderDisabled
	}
	if !c.client.Configured() {
		return core.ErrMissingConfig
	}
	return nil
}

type snapResponse struct {
	Location *struct {
		Lng float64 `json:"lng"`
		Lat float64 `json:"lat"`
	} `json:"location"`
}

// Snap returns the closest point on the road network for the profile.
func (c *Client) Snap(ctx context.Context, p core.LngLat, profile core.VehicleProfile) (core.LngLat, error) {
	if err := c.check(); err != nil {
		return core.LngLat{}, err
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', 6, 64))
	q.Set("lng", strconv.FormatFloat(p.Lng, 'f', 6, 64))
	q.Set("profile", string(profile))

	var resp snapResponse
	if err := c.client.GetJSON(ctx, "/snap", q, &resp); err != nil {
		return core.LngLat{}, fmt.Errorf("snap: %w", err)
	}
	if resp.Location == nil {
		return core.LngLat{}, fmt.Errorf("snap returned no location: %w", core.ErrEmptyResult)
	}
	snapped := core.LngLat{Lng: resp.Location.Lng, Lat: resp.Location.Lat}
	if !snapped.Valid() {
		return core.LngLat{}, fmt.Errorf("snap returned invalid location: %w", core.ErrEmptyResult)
	}
	return snapped, nil
}

type edgesResponse struct {
	Edges []Edge `json:"edges"`
}

// TileEdges returns the edges intersecting tile for the profile.
func (c *Client) TileEdges(ctx context.Context, tile geo.Tile, profile core.VehicleProfile) ([]Edge, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("profile", string(profile))

	var resp edgesResponse
	path := fmt.Sprintf("/tiles/%d/%d/%d/edges", tile.Z, tile.X, tile.Y)
	if err := c.client.GetJSON(ctx, path, q, &resp); err != nil {
		return nil, fmt.Errorf("tile %s edges: %w", tile.Key(), err)
	}
	return resp.Edges, nil
}
