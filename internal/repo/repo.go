package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"paddock/internal/config"
	"paddock/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func scanStable(row *sql.Row) (domain.Stable, error) {
	var s domain.Stable
	var desc sql.NullString
	err := row.Scan(&s.ID, &s.OrgID, &s.Name, &s.Status, &desc, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if desc.Valid {
		s.Description = desc.String
	}
	return s, err
}

func (r Repo) InsertStable(ctx context.Context, s domain.Stable) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO stables(id,org_id,name,status,description,created_at) VALUES (?,?,?,?,?,?)`,
		s.ID, s.OrgID, s.Name, s.Status, nullable(s.Description), s.CreatedAt)
	return err
}

func (r Repo) GetStable(ctx context.Context, id string) (domain.Stable, error) {
	return scanStable(r.DB.QueryRowContext(ctx, `SELECT id,org_id,name,status,description,created_at FROM stables WHERE id=?`, id))
}

func (r Repo) SingleStable(ctx context.Context) (domain.Stable, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,org_id,name,status,COALESCE(description,'') AS description,created_at FROM stables`)
	if err != nil {
		return domain.Stable{}, err
	}
	defer rows.Close()
	var stables []domain.Stable
	for rows.Next() {
		var s domain.Stable
		if err := rows.Scan(&s.ID, &s.OrgID, &s.Name, &s.Status, &s.Description, &s.CreatedAt); err != nil {
			return domain.Stable{}, err
		}
		stables = append(stables, s)
	}
	if len(stables) == 0 {
		return domain.Stable{}, ErrNotFound
	}
	if len(stables) > 1 {
		return domain.Stable{}, fmt.Errorf("multiple stables exist; specify --stable")
	}
	return stables[0], nil
}

func (r Repo) ListStables(ctx context.Context) ([]domain.Stable, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,org_id,name,status,COALESCE(description,'') AS description,created_at FROM stables ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Stable
	for rows.Next() {
		var s domain.Stable
		if err := rows.Scan(&s.ID, &s.OrgID, &s.Name, &s.Status, &s.Description, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

func (r Repo) UpsertStableConfig(ctx context.Context, stableID string, cfg *config.Config) error {
	return upsertStableConfig(ctx, r.DB, nil, stableID, cfg)
}

func (r Repo) UpsertStableConfigTx(ctx context.Context, tx *sql.Tx, stableID string, cfg *config.Config) error {
	return upsertStableConfig(ctx, nil, tx, stableID, cfg)
}

func upsertStableConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, stableID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Stable.ID = stableID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO stable_configs(stable_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(stable_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, stableID, string(payload), now, now)
	return err
}

func (r Repo) GetStableConfig(ctx context.Context, stableID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM stable_configs WHERE stable_id=?`, stableID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Stable.ID == "" {
		cfg.Stable.ID = stableID
	}
	return &cfg, cfg.Validate()
}

func (r Repo) InsertProcess(ctx context.Context, p domain.SelectionProcess) error {
	order, err := json.Marshal(p.MemberOrder)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO selection_processes(id,stable_id,org_id,name,description,algorithm,status,selection_start,selection_end,member_order_json,cancel_reason,created_at,updated_at,started_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.StableID, p.OrgID, p.Name, nullable(p.Description), p.Algorithm, p.Status, p.SelectionStart, p.SelectionEnd,
		string(order), nullable(p.CancelReason), p.CreatedAt, p.UpdatedAt, nullableStringPtr(p.StartedAt), nullableStringPtr(p.CompletedAt))
	return err
}

func (r Repo) UpdateProcess(ctx context.Context, tx *sql.Tx, p domain.SelectionProcess) error {
	order, err := json.Marshal(p.MemberOrder)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE selection_processes SET name=?, description=?, algorithm=?, status=?, selection_start=?, selection_end=?, member_order_json=?, cancel_reason=?, updated_at=?, started_at=?, completed_at=? WHERE id=?`,
		p.Name, nullable(p.Description), p.Algorithm, p.Status, p.SelectionStart, p.SelectionEnd, string(order),
		nullable(p.CancelReason), p.UpdatedAt, nullableStringPtr(p.StartedAt), nullableStringPtr(p.CompletedAt), p.ID)
	return err
}

const processColumns = `id,stable_id,org_id,name,description,algorithm,status,selection_start,selection_end,member_order_json,cancel_reason,created_at,updated_at,started_at,completed_at`

func scanProcess(scan func(dest ...any) error) (domain.SelectionProcess, error) {
	var p domain.SelectionProcess
	var desc, cancelReason, startedAt, completedAt sql.NullString
	var orderJSON string
	err := scan(&p.ID, &p.StableID, &p.OrgID, &p.Name, &desc, &p.Algorithm, &p.Status, &p.SelectionStart, &p.SelectionEnd,
		&orderJSON, &cancelReason, &p.CreatedAt, &p.UpdatedAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if desc.Valid {
		p.Description = desc.String
	}
	if cancelReason.Valid {
		p.CancelReason = cancelReason.String
	}
	if startedAt.Valid {
		p.StartedAt = &startedAt.String
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.String
	}
	if err := json.Unmarshal([]byte(orderJSON), &p.MemberOrder); err != nil {
		return p, fmt.Errorf("decode member order: %w", err)
	}
	return p, nil
}

func (r Repo) GetProcess(ctx context.Context, id string) (domain.SelectionProcess, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+processColumns+` FROM selection_processes WHERE id=?`, id)
	p, err := scanProcess(row.Scan)
	if err != nil {
		return p, err
	}
	p.Turns, err = r.listTurns(ctx, nil, id)
	return p, err
}

func (r Repo) GetProcessTx(ctx context.Context, tx *sql.Tx, id string) (domain.SelectionProcess, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+processColumns+` FROM selection_processes WHERE id=?`, id)
	p, err := scanProcess(row.Scan)
	if err != nil {
		return p, err
	}
	p.Turns, err = r.listTurns(ctx, tx, id)
	return p, err
}

type ProcessFilters struct {
	StableID        string
	Status          string
	Algorithm       string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListProcesses(ctx context.Context, f ProcessFilters) ([]domain.SelectionProcess, error) {
	var clauses []string
	var args []any
	if f.StableID != "" {
		clauses = append(clauses, "stable_id=?")
		args = append(args, f.StableID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Algorithm != "" {
		clauses = append(clauses, "algorithm=?")
		args = append(args, f.Algorithm)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + processColumns + ` FROM selection_processes ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SelectionProcess
	for rows.Next() {
		p, err := scanProcess(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Turns, err = r.listTurns(ctx, nil, res[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) DeleteProcess(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM selection_processes WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertTurns(ctx context.Context, tx *sql.Tx, turns []domain.SelectionProcessTurn) error {
	for _, t := range turns {
		_, err := tx.ExecContext(ctx, `INSERT INTO selection_turns(process_id,turn_order,user_id,user_name,user_email,status,quota,selections_count,deadline,started_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			t.ProcessID, t.Order, t.UserID, t.UserName, t.UserEmail, t.Status, nullableIntPtr(t.Quota), t.SelectionsCount,
			nullableStringPtr(t.Deadline), nullableStringPtr(t.StartedAt), nullableStringPtr(t.CompletedAt))
		if err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) UpdateTurn(ctx context.Context, tx *sql.Tx, t domain.SelectionProcessTurn) error {
	_, err := tx.ExecContext(ctx, `UPDATE selection_turns SET status=?, quota=?, selections_count=?, deadline=?, started_at=?, completed_at=? WHERE process_id=? AND turn_order=?`,
		t.Status, nullableIntPtr(t.Quota), t.SelectionsCount, nullableStringPtr(t.Deadline), nullableStringPtr(t.StartedAt), nullableStringPtr(t.CompletedAt),
		t.ProcessID, t.Order)
	return err
}

func (r Repo) UpdateTurns(ctx context.Context, tx *sql.Tx, turns []domain.SelectionProcessTurn) error {
	for _, t := range turns {
		if err := r.UpdateTurn(ctx, tx, t); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) listTurns(ctx context.Context, tx *sql.Tx, processID string) ([]domain.SelectionProcessTurn, error) {
	query := `SELECT process_id,turn_order,user_id,user_name,user_email,status,quota,selections_count,deadline,started_at,completed_at FROM selection_turns WHERE process_id=? ORDER BY turn_order ASC`
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, processID)
	} else {
		rows, err = r.DB.QueryContext(ctx, query, processID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SelectionProcessTurn
	for rows.Next() {
		var t domain.SelectionProcessTurn
		var quota sql.NullInt64
		var deadline, startedAt, completedAt sql.NullString
		if err := rows.Scan(&t.ProcessID, &t.Order, &t.UserID, &t.UserName, &t.UserEmail, &t.Status, &quota, &t.SelectionsCount, &deadline, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		if quota.Valid {
			q := int(quota.Int64)
			t.Quota = &q
		}
		if deadline.Valid {
			t.Deadline = &deadline.String
		}
		if startedAt.Valid {
			t.StartedAt = &startedAt.String
		}
		if completedAt.Valid {
			t.CompletedAt = &completedAt.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, stableID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, stableID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, stableID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if stableID != "" {
		clauses = append(clauses, "stable_id=?")
		args = append(args, stableID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(stable_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, stableID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if stableID != "" {
		clauses = append(clauses, "stable_id=?")
		args = append(args, stableID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(stable_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.StableID, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID for a stable.
func (r Repo) LatestEventID(ctx context.Context, stableID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE stable_id=?`, stableID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
