package turns

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/external/apiclient"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	api := apiclient.New(apiclient.Config{
		Name:        "turns",
		BaseURL:     srv.URL,
		Timeout:     time.Second,
		MaxAttempts: 1,
	}, srv.Client(), nil)
	return NewClient(api)
}

func TestClient_AreInSameCohort(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/turns/same-turn", r.URL.Path)
		assert.Equal(t, "s1", r.URL.Query().Get("student1"))
		assert.Equal(t, "s2", r.URL.Query().Get("student2"))
		assert.Equal(t, "2024-03-01", r.URL.Query().Get("date"))
		_, _ = w.Write([]byte(`{"same_turn": false}`))
	})

	d := timeutil.NewDate(2024, 3, 1)
	same, err := c.AreInSameCohort(context.Background(), "s1", "s2", &d)
	require.NoError(t, err)
	assert.False(t, same)
}

func TestClient_AreInSameCohort_Failure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.AreInSameCohort(context.Background(), "s1", "s2", nil)
	require.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
}

func TestClient_CurrentSchedule(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/turns/students/s1/schedule" {
			_, _ = w.Write([]byte(`{"turnId":"t-9","day":"FRIDAY","time":"14:00-16:00"}`))
			return
		}
		http.NotFound(w, r)
	})

	s, err := c.CurrentSchedule(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "t-9", s.TurnID)
	assert.Equal(t, "FRIDAY", s.Day)

	s, err = c.CurrentSchedule(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestAlwaysSameCohort(t *testing.T) {
	var stub AlwaysSameCohort
	same, err := stub.AreInSameCohort(context.Background(), "a", "b", nil)
	require.NoError(t, err)
	assert.True(t, same)

	s, err := stub.CurrentSchedule(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "mock-turn-1", s.TurnID)
	assert.Equal(t, "MONDAY", s.Day)
	assert.Equal(t, "08:00-10:00", s.Time)
}
