// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/observability"
	"github.com/alem-hub/friendship-streaks/pkg/logger"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING & HISTORY AGGREGATOR
// Read-only views over friendships: the global streak ranking, a student's
// streak history and the friends overview. Names and schedules are
// best-effort enrichment; only a failure of the primary query is an error.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultRankingLimit is the ranking size used when the caller has no preference.
const DefaultRankingLimit = 10

const (
	defaultLookupConcurrency = 8
	defaultLookupTimeout     = 2 * time.Second
)

// ProfileLookup resolves a student's display name. An empty name means
// unknown and is replaced by a placeholder.
type ProfileLookup interface {
	DisplayName(ctx context.Context, id shared.StudentID) (string, error)
}

// RankingEntry is one row of the global streak ranking.
type RankingEntry struct {
	Rank               int              `json:"rank"`
	FriendshipID       string           `json:"friendship_id"`
	Student1ID         shared.StudentID `json:"student1_id"`
	Student1Name       string           `json:"student1_name"`
	Student2ID         shared.StudentID `json:"student2_id"`
	Student2Name       string           `json:"student2_name"`
	StreakCount        int              `json:"streak_count"`
	LastAttendanceDate timeutil.Date    `json:"last_attendance_date"`
}

// HistoryEntry is one friendship in a student's streak history.
type HistoryEntry struct {
	FriendshipID       string                  `json:"friendship_id"`
	FriendID           shared.StudentID        `json:"friend_id"`
	FriendName         string                  `json:"friend_name"`
	StreakCount        int                     `json:"streak_count"`
	StartDate          timeutil.Date           `json:"start_date"`
	LastAttendanceDate timeutil.Date           `json:"last_attendance_date"`
	Status             friendship.StreakStatus `json:"status"`
}

// FriendOverview is a friend together with their current schedule.
type FriendOverview struct {
	FriendshipID       string                  `json:"friendship_id"`
	FriendID           shared.StudentID        `json:"friend_id"`
	FriendName         string                  `json:"friend_name"`
	StreakCount        int                     `json:"streak_count"`
	LastAttendanceDate timeutil.Date           `json:"last_attendance_date"`
	Status             friendship.StreakStatus `json:"status"`
	Schedule           *friendship.Schedule    `json:"schedule"`
}

// AggregatorDeps are the collaborators of an Aggregator. Only Store is
// required.
type AggregatorDeps struct {
	Store     friendship.Store
	Profiles  ProfileLookup
	Schedules friendship.ScheduleProvider
	Clock     timeutil.Clock
	Location  *time.Location

	// LookupConcurrency bounds concurrent enrichment calls per query.
	LookupConcurrency int
	// LookupTimeout bounds each enrichment call.
	LookupTimeout time.Duration

	Metrics *observability.Metrics
	Logger  *logger.Logger
}

// Aggregator serves the read side.
type Aggregator struct {
	store       friendship.Store
	profiles    ProfileLookup
	schedules   friendship.ScheduleProvider
	clock       timeutil.Clock
	loc         *time.Location
	concurrency int
	timeout     time.Duration
	metrics     *observability.Metrics
	log         *logger.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(deps AggregatorDeps) *Aggregator {
	a := &Aggregator{
		store:       deps.Store,
		profiles:    deps.Profiles,
		schedules:   deps.Schedules,
		clock:       deps.Clock,
		loc:         deps.Location,
		concurrency: deps.LookupConcurrency,
		timeout:     deps.LookupTimeout,
		metrics:     deps.Metrics,
		log:         deps.Logger,
	}
	if a.clock == nil {
		a.clock = timeutil.SystemClock{}
	}
	if a.loc == nil {
		a.loc = timeutil.DefaultLocation
	}
	if a.concurrency <= 0 {
		a.concurrency = defaultLookupConcurrency
	}
	if a.timeout <= 0 {
		a.timeout = defaultLookupTimeout
	}
	if a.log == nil {
		a.log = logger.NewNop()
	}
	a.log = a.log.With(logger.Component("aggregator"))
	return a
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────────

// GlobalRanking returns the top friendships by streak, ties broken by
// friendship id.
func (a *Aggregator) GlobalRanking(ctx context.Context, limit int) (entries []RankingEntry, err error) {
	defer a.observe("GlobalRanking", time.Now(), &err)

	if limit <= 0 {
		return nil, fmt.Errorf("global ranking: %w", shared.ErrInvalidLimit)
	}

	list, err := a.store.TopByStreak(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("global ranking: %w", storeError("TopByStreak", err))
	}

	ids := make([]shared.StudentID, 0, 2*len(list))
	for _, f := range list {
		ids = append(ids, f.Pair.Low, f.Pair.High)
	}
	names := a.resolveNames(ctx, ids, "Student")

	entries = make([]RankingEntry, 0, len(list))
	for i, f := range list {
		entries = append(entries, RankingEntry{
			Rank:               i + 1,
			FriendshipID:       f.ID,
			Student1ID:         f.Pair.Low,
			Student1Name:       names[f.Pair.Low],
			Student2ID:         f.Pair.High,
			Student2Name:       names[f.Pair.High],
			StreakCount:        f.StreakCount,
			LastAttendanceDate: f.LastAttendanceDate,
		})
	}
	return entries, nil
}

// StudentHistory returns every friendship of the student with its streak
// status evaluated today.
func (a *Aggregator) StudentHistory(ctx context.Context, studentID shared.StudentID) (entries []HistoryEntry, err error) {
	defer a.observe("StudentHistory", time.Now(), &err)

	list, err := a.friendships(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("student history: %w", err)
	}

	names := a.resolveNames(ctx, friendIDs(list, studentID), "Friend")
	today := timeutil.Today(a.clock, a.loc)

	entries = make([]HistoryEntry, 0, len(list))
	for _, f := range list {
		friendID, _ := f.FriendOf(studentID)
		entries = append(entries, HistoryEntry{
			FriendshipID:       f.ID,
			FriendID:           friendID,
			FriendName:         names[friendID],
			StreakCount:        f.StreakCount,
			StartDate:          f.StartDate(a.loc),
			LastAttendanceDate: f.LastAttendanceDate,
			Status:             friendship.ClassifyStatus(f.Streak, today),
		})
	}
	return entries, nil
}

// FriendsOverview lists the student's friends with their current schedule.
// A friend whose schedule cannot be fetched gets a nil schedule.
func (a *Aggregator) FriendsOverview(ctx context.Context, studentID shared.StudentID) (entries []FriendOverview, err error) {
	defer a.observe("FriendsOverview", time.Now(), &err)

	list, err := a.friendships(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("friends overview: %w", err)
	}

	ids := friendIDs(list, studentID)
	var (
		names     map[shared.StudentID]string
		schedules map[shared.StudentID]*friendship.Schedule
		wg        sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		names = a.resolveNames(ctx, ids, "Friend")
	}()
	go func() {
		defer wg.Done()
		schedules = a.resolveSchedules(ctx, ids)
	}()
	wg.Wait()

	today := timeutil.Today(a.clock, a.loc)
	entries = make([]FriendOverview, 0, len(list))
	for _, f := range list {
		friendID, _ := f.FriendOf(studentID)
		entries = append(entries, FriendOverview{
			FriendshipID:       f.ID,
			FriendID:           friendID,
			FriendName:         names[friendID],
			StreakCount:        f.StreakCount,
			LastAttendanceDate: f.LastAttendanceDate,
			Status:             friendship.ClassifyStatus(f.Streak, today),
			Schedule:           schedules[friendID],
		})
	}
	return entries, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENRICHMENT
// ══════════════════════════════════════════════════════════════════════════════

func (a *Aggregator) friendships(ctx context.Context, studentID shared.StudentID) ([]*friendship.Friendship, error) {
	if studentID.IsEmpty() {
		return nil, shared.ErrEmptyStudentID
	}
	list, err := a.store.ListFriendships(ctx, studentID)
	if err != nil {
		return nil, storeError("ListFriendships", err)
	}
	return list, nil
}

// resolveNames looks up every distinct id concurrently. Lookups never fail
// the batch: an error or an empty name yields "<placeholder> <id>".
func (a *Aggregator) resolveNames(ctx context.Context, ids []shared.StudentID, placeholder string) map[shared.StudentID]string {
	unique := dedupe(ids)
	names := make(map[shared.StudentID]string, len(unique))
	for _, id := range unique {
		names[id] = placeholder + " " + id.String()
	}
	if a.profiles == nil || len(unique) == 0 {
		return names
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for _, id := range unique {
		g.Go(func() error {
			lookupCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			name, err := a.profiles.DisplayName(lookupCtx, id)
			if err != nil {
				a.log.Warn("profile lookup failed", logger.StudentID(id.String()), logger.Err(err))
				return nil
			}
			if name = strings.TrimSpace(name); name != "" {
				mu.Lock()
				names[id] = name
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return names
}

func (a *Aggregator) resolveSchedules(ctx context.Context, ids []shared.StudentID) map[shared.StudentID]*friendship.Schedule {
	unique := dedupe(ids)
	out := make(map[shared.StudentID]*friendship.Schedule, len(unique))
	if a.schedules == nil || len(unique) == 0 {
		return out
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for _, id := range unique {
		g.Go(func() error {
			lookupCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			s, err := a.schedules.CurrentSchedule(lookupCtx, id)
			if err != nil {
				a.log.Warn("schedule lookup failed", logger.StudentID(id.String()), logger.Err(err))
				return nil
			}
			mu.Lock()
			out[id] = s
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (a *Aggregator) observe(op string, start time.Time, err *error) {
	a.metrics.ObserveOperation("aggregator", op, start, *err)
	if *err != nil && shared.IsStoreUnavailable(*err) {
		a.log.Error("query failed", logger.Operation(op), logger.Err(*err))
	}
}

func friendIDs(list []*friendship.Friendship, studentID shared.StudentID) []shared.StudentID {
	ids := make([]shared.StudentID, 0, len(list))
	for _, f := range list {
		if id, ok := f.FriendOf(studentID); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func dedupe(ids []shared.StudentID) []shared.StudentID {
	seen := make(map[shared.StudentID]struct{}, len(ids))
	out := make([]shared.StudentID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// storeError surfaces any primary query failure as ErrStoreUnavailable.
func storeError(op string, err error) error {
	if shared.IsStoreUnavailable(err) {
		return err
	}
	return shared.StoreUnavailable(op, err)
}
