package reachrange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pursuit-ops/isochroned/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var origin = core.LngLat{Lng: 13.405, Lat: 52.52}

const boundaryBody = `{"reachableRange":{"center":{"latitude":52.52,"longitude":13.405},
"boundary":[{"latitude":52.6,"longitude":13.4},{"latitude":52.52,"longitude":13.5},{"latitude":52.44,"longitude":13.4}]}}`

func TestReachableRange_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/routing/1/calculateReachableRange/52.520000,13.405000/json", r.URL.Path)
		assert.Equal(t, "600", r.URL.Query().Get("timeBudgetInSec"))
		assert.Equal(t, "true", r.URL.Query().Get("traffic"))
		assert.Equal(t, "truck", r.URL.Query().Get("travelMode"))
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(boundaryBody))
	}))
	defer server.Close()

	c := New(Config{Enabled: true, BaseURL: server.URL, APIKey: "k", Timeout: time.Second})
	rng, err := c.ReachableRange(context.Background(), origin, 600, true, "truck")

	require.NoError(t, err)
	assert.Equal(t, origin, rng.Center)
	require.Len(t, rng.Boundary, 3)
	assert.Equal(t, core.LngLat{Lng: 13.5, Lat: 52.52}, rng.Boundary[1])
	assert.NotEmpty(t, rng.Raw)
}

func TestReachableRange_Disabled(t *testing.T) {
	c := New(Config{BaseURL: "http://unused", APIKey: "k"})
	_, err := c.ReachableRange(context.Background(), origin, 60, false, "car")
	assert.ErrorIs(t, err, core.ErrProviderDisabled)
}

func TestReachableRange_MissingConfig(t *testing.T) {
	c := New(Config{Enabled: true})
	_, err := c.ReachableRange(context.Background(), origin, 60, false, "car")
	assert.ErrorIs(t, err, core.ErrMissingConfig)
}

func TestReachableRange_RejectedMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"travelMode not supported"}`))
	}))
	defer server.Close()

	c := New(Config{Enabled: true, BaseURL: server.URL, APIKey: "k", Timeout: time.Second})
	_, err := c.ReachableRange(context.Background(), origin, 60, false, "bicycle")
	assert.ErrorIs(t, err, core.ErrUpstreamRejected)
}

func TestReachableRange_NoBoundary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"reachableRange":{"center":{"latitude":52.52,"longitude":13.405},"boundary":[]}}`))
	}))
	defer server.Close()

	c := New(Config{Enabled: true, BaseURL: server.URL, APIKey: "k", Timeout: time.Second})
	_, err := c.ReachableRange(context.Background(), origin, 60, false, "car")
	assert.ErrorIs(t, err, core.ErrEmptyResult)
}
