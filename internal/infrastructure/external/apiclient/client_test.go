package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/friendship-streaks/pkg/circuitbreaker"
)

func newClient(t *testing.T, h http.Handler, threshold int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		Name:             "test",
		BaseURL:          srv.URL + "/",
		Timeout:          time.Second,
		MaxAttempts:      3,
		BreakerThreshold: threshold,
		BreakerTimeout:   time.Minute,
	}, srv.Client(), nil)
}

func TestClient_DecodesJSON(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/things", r.URL.Path)
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["value"]})
	}), 5)

	var out map[string]string
	require.NoError(t, c.Do(context.Background(), http.MethodPost, "/things", map[string]string{"value": "x"}, &out))
	assert.Equal(t, "x", out["echo"])
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}), 5)

	var out struct{ OK bool }
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/", nil, &out))
	assert.True(t, out.OK)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}), 5)

	err := c.Do(context.Background(), http.MethodGet, "/", nil, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_NotFound(t *testing.T) {
	c := newClient(t, http.NotFoundHandler(), 1)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, c.Do(context.Background(), http.MethodGet, "/missing", nil, nil), ErrNotFound)
	}
	assert.Equal(t, circuitbreaker.StateClosed, c.BreakerState())
}

func TestClient_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}), 1)

	assert.Error(t, c.Do(context.Background(), http.MethodGet, "/", nil, nil))
	assert.Equal(t, circuitbreaker.StateOpen, c.BreakerState())

	before := calls.Load()
	assert.ErrorIs(t, c.Do(context.Background(), http.MethodGet, "/", nil, nil), circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, before, calls.Load())
}
