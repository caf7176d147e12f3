package traffic

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

func TestSpeed_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, flowSegmentPath, r.URL.Path)
		assert.Equal(t, "52.520000,13.405000", r.URL.Query().Get("point"))
		_, _ = w.Write([]byte(`{"flowSegmentData":{"currentSpeed":37,"freeFlowSpeed":50,"confidence":0.9}}`))
	}))
	defer server.Close()

	c := New(Config{Enabled: true, BaseURL: server.URL, APIKey: "k", Timeout: time.Second})
	speed, err := c.Speed(context.Background(), core.LngLat{Lng: 13.405, Lat: 52.52})

	require.NoError(t, err)
	assert.Equal(t, 37.0, speed)
}

func TestSpeed_Disabled(t *testing.T) {
	c := New(Config{Enabled: false, BaseURL: "http://unused", APIKey: "k"})
	_, err := c.Speed(context.Background(), core.LngLat{Lng: 1, Lat: 1})
	assert.ErrorIs(t, err, core.ErrProviderDisabled)
}

func TestSpeed_MissingKey(t *testing.T) {
	c := New(Config{Enabled: true, BaseURL: "http://unused"})
	_, err := c.Speed(context.Background(), core.LngLat{Lng: 1, Lat: 1})
	assert.ErrorIs(t, err, core.ErrMissingConfig)
}

func TestSpeed_NoCurrentSpeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"flowSegmentData":{}}`))
	}))
	defer server.Close()

	c := New(Config{Enabled: true, BaseURL: server.URL, APIKey: "k", Timeout: time.Second})
	_, err := c.Speed(context.Background(), core.LngLat{Lng: 1, Lat: 1})
	assert.ErrorIs(t, err, core.ErrEmptyResult)
}

func TestSpeed_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := New(Config{Enabled: true, BaseURL: server.URL, APIKey: "bad", Timeout: time.Second})
	_, err := c.Speed(context.Background(), core.LngLat{Lng: 1, Lat: 1})
	assert.ErrorIs(t, err, core.ErrUpstreamRejected)
}
