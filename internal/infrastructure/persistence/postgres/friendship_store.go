package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
)

// FriendshipStore implements friendship.Store using PostgreSQL.
type FriendshipStore struct {
	conn *Connection
}

var (
	_ friendship.Store            = (*FriendshipStore)(nil)
	_ friendship.IntegrityChecker = (*FriendshipStore)(nil)
)

// NewFriendshipStore creates a new FriendshipStore.
func NewFriendshipStore(conn *Connection) *FriendshipStore {
	return &FriendshipStore{conn: conn}
}

// Ping checks the database connection.
func (s *FriendshipStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

const (
	pendingPairIndex = "friendship_requests_pending_pair_uq"
	friendshipPairUQ = "friendships_pair_uq"

	requestColumns    = `id, sender_id, receiver_id, status, created_at, accepted_at, rejected_at`
	friendshipColumns = `id, student_low, student_high, created_at, last_attendance_date, streak_count`
)

// ─────────────────────────────────────────────────────────────────────────────
// Students
// ─────────────────────────────────────────────────────────────────────────────

// UpsertStudents implements friendship.Store.
func (s *FriendshipStore) UpsertStudents(ctx context.Context, ids ...shared.StudentID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.conn.Exec(ctx,
		`INSERT INTO students (id) SELECT unnest($1::text[]) ON CONFLICT (id) DO NOTHING`,
		studentIDs(ids))
	if err != nil {
		return translate("UpsertStudents", err)
	}
	return nil
}

// lockPair upserts both students and locks their rows in canonical order,
// serialising every request/accept touching the same pair.
func lockPair(ctx context.Context, q Querier, pair shared.Pair) error {
	ids := []string{pair.Low.String(), pair.High.String()}
	if _, err := q.Exec(ctx,
		`INSERT INTO students (id) SELECT unnest($1::text[]) ON CONFLICT (id) DO NOTHING`, ids); err != nil {
		return err
	}
	rows, err := q.Query(ctx,
		`SELECT id FROM students WHERE id = ANY($1::text[]) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Requests
// ─────────────────────────────────────────────────────────────────────────────

// CreateRequest implements friendship.Store.
func (s *FriendshipStore) CreateRequest(ctx context.Context, req *friendship.Request) error {
	pair := req.Pair()
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if err := lockPair(ctx, tx, pair); err != nil {
			return err
		}

		var friends, pending bool
		err := tx.QueryRow(ctx, `
			SELECT
				EXISTS (SELECT 1 FROM friendships WHERE student_low = $1 AND student_high = $2),
				EXISTS (
					SELECT 1 FROM friendship_requests
					WHERE status = 'pending'
					  AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
				)`,
			pair.Low.String(), pair.High.String(),
		).Scan(&friends, &pending)
		if err != nil {
			return err
		}
		if friends {
			return shared.ErrFriendshipExists
		}
		if pending {
			return shared.ErrPendingRequestExist
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO friendship_requests (id, sender_id, receiver_id, status, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			req.ID, req.SenderID.String(), req.ReceiverID.String(), string(req.Status), req.CreatedAt,
		)
		return err
	})
	if err != nil {
		if IsUniqueViolation(err) && ConstraintName(err) == pendingPairIndex {
			return shared.ErrPendingRequestExist
		}
		return translate("CreateRequest", err)
	}
	return nil
}

// GetRequest implements friendship.Store.
func (s *FriendshipStore) GetRequest(ctx context.Context, id string) (*friendship.Request, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+requestColumns+` FROM friendship_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("friendship", "GetRequest", shared.ErrNotFound, "request not found")
		}
		return nil, translate("GetRequest", err)
	}
	return req, nil
}

// AcceptRequest implements friendship.Store. Student rows are locked before
// the request row, the same order CreateRequest uses. The status guard in the
// UPDATE makes concurrent accepts of one request exactly-once.
func (s *FriendshipStore) AcceptRequest(ctx context.Context, requestID, friendshipID string, now time.Time) (*friendship.Friendship, error) {
	var f *friendship.Friendship
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var sender, receiver string
		err := tx.QueryRow(ctx,
			`SELECT sender_id, receiver_id FROM friendship_requests WHERE id = $1 AND status = 'pending'`,
			requestID,
		).Scan(&sender, &receiver)
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrRequestNotPending
			}
			return err
		}

		pair := shared.NewPair(shared.StudentID(sender), shared.StudentID(receiver))
		if err := lockPair(ctx, tx, pair); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE friendship_requests
			SET status = 'accepted', accepted_at = $2
			WHERE id = $1 AND status = 'pending'`,
			requestID, now.UTC(),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrRequestNotPending
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO friendships (id, student_low, student_high, created_at, streak_count, updated_at)
			VALUES ($1, $2, $3, $4, 0, $4)
			RETURNING `+friendshipColumns,
			friendshipID, pair.Low.String(), pair.High.String(), now.UTC(),
		)
		f, err = scanFriendship(row)
		return err
	})
	if err != nil {
		if IsUniqueViolation(err) && ConstraintName(err) == friendshipPairUQ {
			return nil, shared.ErrFriendshipExists
		}
		return nil, translate("AcceptRequest", err)
	}
	return f, nil
}

// RejectRequest implements friendship.Store.
func (s *FriendshipStore) RejectRequest(ctx context.Context, requestID string, now time.Time) (*friendship.Request, error) {
	row := s.conn.QueryRow(ctx, `
		UPDATE friendship_requests
		SET status = 'rejected', rejected_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING `+requestColumns,
		requestID, now.UTC(),
	)
	req, err := scanRequest(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRequestNotPending
		}
		return nil, translate("RejectRequest", err)
	}
	return req, nil
}

// ListPendingForReceiver implements friendship.Store.
func (s *FriendshipStore) ListPendingForReceiver(ctx context.Context, receiver shared.StudentID) ([]*friendship.Request, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+requestColumns+`
		FROM friendship_requests
		WHERE receiver_id = $1 AND status = 'pending'
		ORDER BY created_at ASC, id ASC`,
		receiver.String(),
	)
	if err != nil {
		return nil, translate("ListPendingForReceiver", err)
	}
	defer rows.Close()

	var out []*friendship.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, translate("ListPendingForReceiver", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("ListPendingForReceiver", err)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Friendships
// ─────────────────────────────────────────────────────────────────────────────

// GetFriendship implements friendship.Store.
func (s *FriendshipStore) GetFriendship(ctx context.Context, id string) (*friendship.Friendship, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+friendshipColumns+` FROM friendships WHERE id = $1`, id)
	return s.oneFriendship("GetFriendship", row)
}

// GetFriendshipByPair implements friendship.Store.
func (s *FriendshipStore) GetFriendshipByPair(ctx context.Context, pair shared.Pair) (*friendship.Friendship, error) {
	row := s.conn.QueryRow(ctx,
		`SELECT `+friendshipColumns+` FROM friendships WHERE student_low = $1 AND student_high = $2`,
		pair.Low.String(), pair.High.String())
	return s.oneFriendship("GetFriendshipByPair", row)
}

func (s *FriendshipStore) oneFriendship(op string, row pgx.Row) (*friendship.Friendship, error) {
	f, err := scanFriendship(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrFriendshipNotFound
		}
		return nil, translate(op, err)
	}
	return f, nil
}

// ListFriendships implements friendship.Store.
func (s *FriendshipStore) ListFriendships(ctx context.Context, studentID shared.StudentID) ([]*friendship.Friendship, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+friendshipColumns+`
		FROM friendships
		WHERE student_low = $1 OR student_high = $1
		ORDER BY created_at ASC, id ASC`,
		studentID.String(),
	)
	if err != nil {
		return nil, translate("ListFriendships", err)
	}
	return collectFriendships("ListFriendships", rows)
}

// DeleteFriendship implements friendship.Store. The attendance log goes
// with it through ON DELETE CASCADE.
func (s *FriendshipStore) DeleteFriendship(ctx context.Context, id string) (bool, error) {
	tag, err := s.conn.Exec(ctx, `DELETE FROM friendships WHERE id = $1`, id)
	if err != nil {
		return false, translate("DeleteFriendship", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateStreak implements friendship.Store. The row lock taken by
// SELECT ... FOR UPDATE serialises concurrent updates of one friendship.
func (s *FriendshipStore) UpdateStreak(ctx context.Context, id string, attended timeutil.Date, fn friendship.StreakUpdate) (*friendship.Friendship, error) {
	var f *friendship.Friendship
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+friendshipColumns+` FROM friendships WHERE id = $1 FOR UPDATE`, id)
		current, err := scanFriendship(row)
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrFriendshipNotFound
			}
			return err
		}

		current.Streak = fn(current.Streak)
		if _, err := tx.Exec(ctx, `
			UPDATE friendships
			SET streak_count = $2, last_attendance_date = $3, updated_at = NOW()
			WHERE id = $1`,
			id, current.StreakCount, toPgDate(current.LastAttendanceDate),
		); err != nil {
			return err
		}

		if !attended.IsZero() {
			if _, err := tx.Exec(ctx, `
				INSERT INTO friendship_attendance (friendship_id, attended_on)
				VALUES ($1, $2)
				ON CONFLICT (friendship_id, attended_on) DO NOTHING`,
				id, toPgDate(attended),
			); err != nil {
				return err
			}
		}
		f = current
		return nil
	})
	if err != nil {
		return nil, translate("UpdateStreak", err)
	}
	return f, nil
}

// TopByStreak implements friendship.Store.
func (s *FriendshipStore) TopByStreak(ctx context.Context, limit int) ([]*friendship.Friendship, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+friendshipColumns+`
		FROM friendships
		ORDER BY streak_count DESC, id ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, translate("TopByStreak", err)
	}
	return collectFriendships("TopByStreak", rows)
}

// AttendanceDates implements friendship.Store.
func (s *FriendshipStore) AttendanceDates(ctx context.Context, friendshipID string) ([]timeutil.Date, error) {
	var exists bool
	if err := s.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM friendships WHERE id = $1)`, friendshipID,
	).Scan(&exists); err != nil {
		return nil, translate("AttendanceDates", err)
	}
	if !exists {
		return nil, shared.ErrFriendshipNotFound
	}

	rows, err := s.conn.Query(ctx, `
		SELECT attended_on FROM friendship_attendance
		WHERE friendship_id = $1
		ORDER BY attended_on ASC`,
		friendshipID,
	)
	if err != nil {
		return nil, translate("AttendanceDates", err)
	}
	defer rows.Close()

	var out []timeutil.Date
	for rows.Next() {
		var d pgtype.Date
		if err := rows.Scan(&d); err != nil {
			return nil, translate("AttendanceDates", err)
		}
		out = append(out, fromPgDate(d))
	}
	if err := rows.Err(); err != nil {
		return nil, translate("AttendanceDates", err)
	}
	return out, nil
}

// CheckIntegrity implements friendship.IntegrityChecker.
func (s *FriendshipStore) CheckIntegrity(ctx context.Context) ([]friendship.IntegrityIssue, error) {
	rows, err := s.conn.Query(ctx, `
		WITH pending AS (
			SELECT LEAST(sender_id, receiver_id) AS low, GREATEST(sender_id, receiver_id) AS high, count(*) AS n
			FROM friendship_requests
			WHERE status = 'pending'
			GROUP BY 1, 2
		)
		SELECT $1::text, low, high, n::int, '' FROM pending WHERE n > 1
		UNION ALL
		SELECT $2::text, p.low, p.high, p.n::int, ''
		FROM pending p
		JOIN friendships f ON f.student_low = p.low AND f.student_high = p.high
		UNION ALL
		SELECT $3::text, student_low, student_high, 1, id FROM friendships WHERE streak_count < 0
		ORDER BY 1, 2, 3`,
		friendship.IssueDuplicatePending, friendship.IssuePendingWithFriendship, friendship.IssueNegativeStreak,
	)
	if err != nil {
		return nil, translate("CheckIntegrity", err)
	}
	defer rows.Close()

	var issues []friendship.IntegrityIssue
	for rows.Next() {
		var issue friendship.IntegrityIssue
		var low, high string
		if err := rows.Scan(&issue.Kind, &low, &high, &issue.Count, &issue.Detail); err != nil {
			return nil, translate("CheckIntegrity", err)
		}
		issue.Pair = shared.NewPair(shared.StudentID(low), shared.StudentID(high))
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("CheckIntegrity", err)
	}
	return issues, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanRequest(row pgx.Row) (*friendship.Request, error) {
	var (
		req                  friendship.Request
		sender, receiver     string
		status               string
		acceptedAt, rejected pgtype.Timestamptz
	)
	if err := row.Scan(&req.ID, &sender, &receiver, &status, &req.CreatedAt, &acceptedAt, &rejected); err != nil {
		return nil, err
	}
	req.SenderID = shared.StudentID(sender)
	req.ReceiverID = shared.StudentID(receiver)
	req.Status = friendship.RequestStatus(status)
	req.CreatedAt = req.CreatedAt.UTC()
	if acceptedAt.Valid {
		t := acceptedAt.Time.UTC()
		req.AcceptedAt = &t
	}
	if rejected.Valid {
		t := rejected.Time.UTC()
		req.RejectedAt = &t
	}
	return &req, nil
}

func scanFriendship(row pgx.Row) (*friendship.Friendship, error) {
	var (
		f         friendship.Friendship
		low, high string
		last      pgtype.Date
	)
	if err := row.Scan(&f.ID, &low, &high, &f.CreatedAt, &last, &f.StreakCount); err != nil {
		return nil, err
	}
	f.Pair = shared.NewPair(shared.StudentID(low), shared.StudentID(high))
	f.CreatedAt = f.CreatedAt.UTC()
	f.LastAttendanceDate = fromPgDate(last)
	return &f, nil
}

func collectFriendships(op string, rows pgx.Rows) ([]*friendship.Friendship, error) {
	defer rows.Close()

	var out []*friendship.Friendship
	for rows.Next() {
		f, err := scanFriendship(rows)
		if err != nil {
			return nil, translate(op, err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(op, err)
	}
	return out, nil
}

func toPgDate(d timeutil.Date) pgtype.Date {
	if d.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.UTC(), Valid: true}
}

func fromPgDate(d pgtype.Date) timeutil.Date {
	if !d.Valid {
		return timeutil.Date{}
	}
	return timeutil.DateOf(d.Time, time.UTC)
}

func studentIDs(ids []shared.StudentID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// translate keeps domain errors and caller cancellation as they are and
// reports everything else as a store fault.
func translate(op string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return shared.StoreUnavailable(op, err)
}
