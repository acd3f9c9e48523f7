package repo

import (
	"context"
	"database/sql"
	"time"

	"paddock/internal/domain"
)

func (r Repo) UpsertMember(ctx context.Context, stableID string, m domain.Member) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO members(stable_id,user_id,user_name,user_email,role,joined_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(stable_id,user_id) DO UPDATE SET user_name=excluded.user_name, user_email=excluded.user_email, role=excluded.role`,
		stableID, m.UserID, m.UserName, m.UserEmail, m.Role, m.JoinedAt)
	return err
}

func (r Repo) GetMember(ctx context.Context, stableID, userID string) (domain.Member, error) {
	var m domain.Member
	err := r.DB.QueryRowContext(ctx, `SELECT user_id,user_name,user_email,role,joined_at FROM members WHERE stable_id=? AND user_id=?`, stableID, userID).
		Scan(&m.UserID, &m.UserName, &m.UserEmail, &m.Role, &m.JoinedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) ListMembers(ctx context.Context, stableID string) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id,user_name,user_email,role,joined_at FROM members WHERE stable_id=? ORDER BY joined_at ASC, user_id ASC`, stableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.UserID, &m.UserName, &m.UserEmail, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) DeleteMember(ctx context.Context, stableID, userID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM members WHERE stable_id=? AND user_id=?`, stableID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PointsSnapshot returns the accumulated points for every member of the
// stable. Members with no ledger row are reported with zero points.
func (r Repo) PointsSnapshot(ctx context.Context, stableID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT m.user_id, COALESCE(p.points,0)
FROM members m LEFT JOIN member_points p ON p.stable_id=m.stable_id AND p.user_id=m.user_id
WHERE m.stable_id=?`, stableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var userID string
		var points int
		if err := rows.Scan(&userID, &points); err != nil {
			return nil, err
		}
		res[userID] = points
	}
	return res, rows.Err()
}

func (r Repo) AddPoints(ctx context.Context, tx *sql.Tx, stableID, userID string, delta int, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO member_points(stable_id,user_id,points,updated_at) VALUES (?,?,?,?)
ON CONFLICT(stable_id,user_id) DO UPDATE SET points=points+excluded.points, updated_at=excluded.updated_at`,
		stableID, userID, delta, now)
	return err
}

// LastTurnSnapshot returns, for every member of the stable, the completion
// time of their most recent completed turn across completed processes. A nil
// entry means the member has never held a turn.
func (r Repo) LastTurnSnapshot(ctx context.Context, stableID string) (map[string]*time.Time, error) {
	members, err := r.ListMembers(ctx, stableID)
	if err != nil {
		return nil, err
	}
	res := make(map[string]*time.Time, len(members))
	for _, m := range members {
		res[m.UserID] = nil
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT t.user_id, MAX(t.completed_at)
FROM selection_turns t JOIN selection_processes p ON p.id=t.process_id
WHERE p.stable_id=? AND p.status='completed' AND t.completed_at IS NOT NULL
GROUP BY t.user_id`, stableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var userID, completedAt string
		if err := rows.Scan(&userID, &completedAt); err != nil {
			return nil, err
		}
		if _, ok := res[userID]; !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339, completedAt)
		if err != nil {
			return nil, err
		}
		res[userID] = &ts
	}
	return res, rows.Err()
}
