package repo

import (
	"context"
	"database/sql"
	"strings"

	"paddock/internal/domain"
)

func (r Repo) InsertInstance(ctx context.Context, tx *sql.Tx, in domain.RoutineInstance) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO routine_instances(id,stable_id,title,scheduled_date,assigned_to,status,process_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		in.ID, in.StableID, in.Title, in.ScheduledDate, nullableStringPtr(in.AssignedTo), in.Status, nullableStringPtr(in.ProcessID), in.CreatedAt, in.UpdatedAt)
	return err
}

func scanInstance(scan func(dest ...any) error) (domain.RoutineInstance, error) {
	var in domain.RoutineInstance
	var assignedTo, processID sql.NullString
	err := scan(&in.ID, &in.StableID, &in.Title, &in.ScheduledDate, &assignedTo, &in.Status, &processID, &in.CreatedAt, &in.UpdatedAt)
	if err == sql.ErrNoRows {
		return in, ErrNotFound
	}
	if err != nil {
		return in, err
	}
	if assignedTo.Valid {
		in.AssignedTo = &assignedTo.String
	}
	if processID.Valid {
		in.ProcessID = &processID.String
	}
	return in, nil
}

const instanceColumns = `id,stable_id,title,scheduled_date,assigned_to,status,process_id,created_at,updated_at`

func (r Repo) GetInstance(ctx context.Context, id string) (domain.RoutineInstance, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM routine_instances WHERE id=?`, id)
	return scanInstance(row.Scan)
}

func (r Repo) GetInstanceTx(ctx context.Context, tx *sql.Tx, id string) (domain.RoutineInstance, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM routine_instances WHERE id=?`, id)
	return scanInstance(row.Scan)
}

type InstanceFilters struct {
	StableID      string
	From          string
	To            string
	AssignedTo    string
	OnlyAvailable bool
	Limit         int
}

func (r Repo) ListInstances(ctx context.Context, f InstanceFilters) ([]domain.RoutineInstance, error) {
	var clauses []string
	var args []any
	if f.StableID != "" {
		clauses = append(clauses, "stable_id=?")
		args = append(args, f.StableID)
	}
	if f.From != "" {
		clauses = append(clauses, "scheduled_date>=?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "scheduled_date<=?")
		args = append(args, f.To)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if f.OnlyAvailable {
		clauses = append(clauses, "assigned_to IS NULL")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + instanceColumns + ` FROM routine_instances ` + where + ` ORDER BY scheduled_date ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RoutineInstance
	for rows.Next() {
		in, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

// CountAvailableSlots counts unassigned instances scheduled inside the
// inclusive date range.
func (r Repo) CountAvailableSlots(ctx context.Context, stableID, from, to string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM routine_instances WHERE stable_id=? AND assigned_to IS NULL AND scheduled_date>=? AND scheduled_date<=?`,
		stableID, from, to).Scan(&n)
	return n, err
}

// AssignInstance claims the slot for a user only if it is still unassigned.
// The compare-and-set keeps concurrent claimers from both winning.
func (r Repo) AssignInstance(ctx context.Context, tx *sql.Tx, id, userID, processID, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE routine_instances SET assigned_to=?, process_id=?, status='assigned', updated_at=? WHERE id=? AND assigned_to IS NULL`,
		userID, processID, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) ReleaseInstance(ctx context.Context, tx *sql.Tx, id, now string) error {
	_, err := tx.ExecContext(ctx, `UPDATE routine_instances SET assigned_to=NULL, process_id=NULL, status='open', updated_at=? WHERE id=?`, now, id)
	return err
}

func (r Repo) DeleteInstance(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM routine_instances WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
