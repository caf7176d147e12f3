// internal/provider/client_test.go
package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/pursuit-ops/isochroned/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:5000", "secret123", 0)

	require.NotNil(t, c)
	assert.Equal(t, "http://localhost:5000", c.baseURL)
	assert.Equal(t, "secret123", c.apiKey)
	assert.Equal(t, DefaultTimeout, c.timeout)
	assert.True(t, c.Configured())
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	c := NewClient("http://localhost:5000/", "secret", time.Second)
	assert.Equal(t, "http://localhost:5000", c.baseURL)
}

func TestConfigured_MissingKey(t *testing.T) {
	assert.False(t, NewClient("http://localhost:5000", "", time.Second).Configured())
	assert.False(t, NewClient("", "key", time.Second).Configured())
}

func TestGetJSON_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/speed", r.URL.Path)
		assert.Equal(t, "mykey", r.URL.Query().Get("key"))
		assert.Equal(t, "52.5,13.4", r.URL.Query().Get("point"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value": 42}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "mykey", time.Second)
	var out struct {
		Value int `json:"value"`
	}
	err := c.GetJSON(context.Background(), "/speed", url.Values{"point": {"52.5,13.4"}}, &out)

	require.NoError(t, err)
	assert.Equal(t, 42, out.Value)
}

func TestGetJSON_ClientErrorIsRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported travel mode", http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", time.Second)
	err := c.GetJSON(context.Background(), "/x", nil, &struct{}{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUpstreamRejected))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Contains(t, se.Error(), "unsupported travel mode")
}

func TestGetJSON_ServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", time.Second)
	err := c.GetJSON(context.Background(), "/x", nil, &struct{}{})

	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)
}

func TestGetJSON_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := NewClient(server.URL, "key", 50*time.Millisecond)
	err := c.GetJSON(context.Background(), "/slow", nil, &struct{}{})

	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)
}

func TestGetJSON_ServerDown(t *testing.T) {
	c := NewClient("http://localhost:59999", "key", time.Second) // unlikely to be listening
	err := c.GetJSON(context.Background(), "/x", nil, &struct{}{})

	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)
}

func TestGetJSON_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", time.Second)
	err := c.GetJSON(context.Background(), "/x", nil, &struct{}{})

	assert.ErrorIs(t, err, core.ErrEmptyResult)
}
