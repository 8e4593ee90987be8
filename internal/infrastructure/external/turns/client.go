// Package turns talks to the turns management service, which knows which
// cohort (turn) each student belongs to and their current schedule.
package turns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/external/apiclient"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
)

var (
	_ friendship.CohortValidator  = (*Client)(nil)
	_ friendship.ScheduleProvider = (*Client)(nil)
)

type sameTurnResponse struct {
	SameTurn bool `json:"same_turn"`
}

type scheduleResponse struct {
	TurnID string `json:"turnId"`
	Day    string `json:"day"`
	Time   string `json:"time"`
}

// Client is the HTTP client of the turns management service.
type Client struct {
	api *apiclient.Client
}

// NewClient wraps an API client configured for the turns service.
func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// AreInSameCohort implements friendship.CohortValidator.
func (c *Client) AreInSameCohort(ctx context.Context, a, b shared.StudentID, date *timeutil.Date) (bool, error) {
	q := url.Values{}
	q.Set("student1", a.String())
	q.Set("student2", b.String())
	if date != nil && !date.IsZero() {
		q.Set("date", date.String())
	}

	var resp sameTurnResponse
	if err := c.api.Do(ctx, http.MethodGet, "/api/turns/same-turn?"+q.Encode(), nil, &resp); err != nil {
		return false, shared.WrapError("turns", "AreInSameCohort", shared.ErrScheduleServiceFailed,
			fmt.Sprintf("check cohort of %s and %s", a, b), err)
	}
	return resp.SameTurn, nil
}

// CurrentSchedule implements friendship.ScheduleProvider. A 404 means the
// student has no schedule and yields (nil, nil).
func (c *Client) CurrentSchedule(ctx context.Context, studentID shared.StudentID) (*friendship.Schedule, error) {
	var resp scheduleResponse
	err := c.api.Do(ctx, http.MethodGet, "/api/turns/students/"+url.PathEscape(studentID.String())+"/schedule", nil, &resp)
	if errors.Is(err, apiclient.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, shared.WrapError("turns", "CurrentSchedule", shared.ErrScheduleServiceFailed,
			"get schedule of "+studentID.String(), err)
	}
	return &friendship.Schedule{TurnID: resp.TurnID, Day: resp.Day, Time: resp.Time}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Stub
// ──────────────────────────────────────────────────────────────────────────────

// AlwaysSameCohort accepts every pair and reports a fixed schedule. Used when
// no turns service is configured.
type AlwaysSameCohort struct{}

var (
	_ friendship.CohortValidator  = AlwaysSameCohort{}
	_ friendship.ScheduleProvider = AlwaysSameCohort{}
)

// AreInSameCohort always returns true.
func (AlwaysSameCohort) AreInSameCohort(context.Context, shared.StudentID, shared.StudentID, *timeutil.Date) (bool, error) {
	return true, nil
}

// CurrentSchedule returns the mock schedule.
func (AlwaysSameCohort) CurrentSchedule(context.Context, shared.StudentID) (*friendship.Schedule, error) {
	return &friendship.Schedule{TurnID: "mock-turn-1", Day: "MONDAY", Time: "08:00-10:00"}, nil
}
