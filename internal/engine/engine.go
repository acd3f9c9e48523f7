package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"paddock/internal/config"
	"paddock/internal/domain"
	"paddock/internal/engine/auth"
	"paddock/internal/events"
	"paddock/internal/repo"
	"paddock/internal/selection"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Auth:   auth.Service{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ClaimRejectedError reports why a slot claim was refused. Clients switch on
// Reason rather than the message.
type ClaimRejectedError struct {
	Reason selection.Reason
}

func (e ClaimRejectedError) Error() string {
	return fmt.Sprintf("claim rejected: %s", e.Reason)
}

// InitStable initializes a new stable with migrations already run.
func (e Engine) InitStable(ctx context.Context, stableID, name, description, actorID string) (domain.Stable, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Stable{}, err
	}
	defer tx.Rollback()

	s := domain.Stable{
		ID:          stableID,
		OrgID:       "default-org",
		Name:        name,
		Status:      "active",
		Description: description,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if s.Name == "" {
		s.Name = stableID
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO stables(id,org_id,name,status,description,created_at) VALUES (?,?,?,?,?,?)`,
		s.ID, s.OrgID, s.Name, s.Status, nullable(s.Description), s.CreatedAt); err != nil {
		return domain.Stable{}, fmt.Errorf("insert stable: %w", err)
	}
	if err := e.Repo.UpsertStableConfigTx(ctx, tx, s.ID, config.Default(s.ID)); err != nil {
		return domain.Stable{}, fmt.Errorf("insert stable config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "stable.init", s.ID, "stable", s.ID, actorID, events.EventPayload{"status": s.Status}); err != nil {
		return domain.Stable{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Stable{}, err
	}
	return s, nil
}

// StableUpdateOptions are parameters for renaming or describing a stable.
type StableUpdateOptions struct {
	ID          string
	Name        string
	Description *string
	ActorID     string
}

func (e Engine) UpdateStable(ctx context.Context, opts StableUpdateOptions) (domain.Stable, error) {
	s, err := e.Repo.GetStable(ctx, opts.ID)
	if err != nil {
		return domain.Stable{}, err
	}
	if opts.Name != "" {
		s.Name = opts.Name
	}
	if opts.Description != nil {
		s.Description = *opts.Description
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Stable{}, err
	}
	defer tx.Rollback()
	if err := e.Auth.EnsureOrganizer(ctx, tx, s.ID, opts.ActorID); err != nil {
		return domain.Stable{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE stables SET name=?, description=? WHERE id=?`,
		s.Name, nullable(s.Description), s.ID); err != nil {
		return domain.Stable{}, err
	}
	if err := e.Events.Append(ctx, tx, "stable.updated", s.ID, "stable", s.ID, opts.ActorID, nil); err != nil {
		return domain.Stable{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Stable{}, err
	}
	return s, nil
}

// AddMember adds or updates a roster entry. The first member of an empty
// roster may add themselves; afterwards only organizers may change it.
func (e Engine) AddMember(ctx context.Context, stableID string, m domain.Member, actorID string) (domain.Member, error) {
	if m.UserID == "" {
		return domain.Member{}, selection.InvalidInputError{Field: "user_id"}
	}
	if m.Role == "" {
		m.Role = auth.RoleMember
	}
	if m.Role != auth.RoleOrganizer && m.Role != auth.RoleMember {
		return domain.Member{}, selection.ValidationError{Field: "role", Reason: "unknown role " + m.Role}
	}
	if _, err := e.Repo.GetStable(ctx, stableID); err != nil {
		return domain.Member{}, err
	}
	existing, err := e.Repo.ListMembers(ctx, stableID)
	if err != nil {
		return domain.Member{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Member{}, err
	}
	defer tx.Rollback()
	if len(existing) > 0 {
		if err := e.Auth.EnsureOrganizer(ctx, tx, stableID, actorID); err != nil {
			return domain.Member{}, err
		}
	} else {
		// Bootstrap: the founding member becomes the organizer.
		m.Role = auth.RoleOrganizer
	}
	if m.JoinedAt == "" {
		m.JoinedAt = e.now().UTC().Format(time.RFC3339)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO members(stable_id,user_id,user_name,user_email,role,joined_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(stable_id,user_id) DO UPDATE SET user_name=excluded.user_name, user_email=excluded.user_email, role=excluded.role`,
		stableID, m.UserID, m.UserName, m.UserEmail, m.Role, m.JoinedAt); err != nil {
		return domain.Member{}, err
	}
	if err := e.Events.Append(ctx, tx, "member.added", stableID, "member", m.UserID, actorID, events.EventPayload{"role": m.Role}); err != nil {
		return domain.Member{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Member{}, err
	}
	return m, nil
}

func (e Engine) RemoveMember(ctx context.Context, stableID, userID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Auth.EnsureOrganizer(ctx, tx, stableID, actorID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM members WHERE stable_id=? AND user_id=?`, stableID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	if err := e.Events.Append(ctx, tx, "member.removed", stableID, "member", userID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// ProcessCreateOptions are parameters for creating a selection process.
type ProcessCreateOptions struct {
	ID             string
	StableID       string
	Name           string
	Description    string
	Algorithm      string
	SelectionStart string
	SelectionEnd   string
	// Order holds member user IDs in the desired turn order. Required for
	// the manual algorithm, ignored by the others.
	Order   []string
	ActorID string
}

func (e Engine) CreateProcess(ctx context.Context, opts ProcessCreateOptions) (domain.SelectionProcess, error) {
	if e.Config == nil {
		return domain.SelectionProcess{}, errors.New("config not loaded")
	}
	if opts.Name == "" {
		return domain.SelectionProcess{}, selection.InvalidInputError{Field: "name"}
	}
	if opts.StableID == "" {
		return domain.SelectionProcess{}, selection.InvalidInputError{Field: "stable_id"}
	}
	if opts.Algorithm == "" {
		opts.Algorithm = e.Config.Selection.DefaultAlgorithm
	}
	if !validAlgorithm(opts.Algorithm) {
		return domain.SelectionProcess{}, selection.ValidationError{Field: "algorithm", Reason: "unknown algorithm " + opts.Algorithm}
	}
	if _, err := selection.ParseWindowLimit(opts.SelectionStart, opts.SelectionEnd, e.maxWindowMonths()); err != nil {
		return domain.SelectionProcess{}, err
	}
	stable, err := e.Repo.GetStable(ctx, opts.StableID)
	if err != nil {
		return domain.SelectionProcess{}, err
	}
	order, err := e.resolveOrder(ctx, opts.StableID, opts.Order)
	if err != nil {
		return domain.SelectionProcess{}, err
	}

	id := opts.ID
	now := e.now().UTC().Format(time.RFC3339)
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.StableID+"|"+opts.Name+"|"+now)).String()
	}
	p := domain.SelectionProcess{
		ID:             id,
		StableID:       opts.StableID,
		OrgID:          stable.OrgID,
		Name:           opts.Name,
		Description:    opts.Description,
		Algorithm:      opts.Algorithm,
		Status:         "draft",
		SelectionStart: opts.SelectionStart,
		SelectionEnd:   opts.SelectionEnd,
		MemberOrder:    order,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SelectionProcess{}, err
	}
	defer tx.Rollback()
	if err := e.Auth.EnsureOrganizer(ctx, tx, opts.StableID, opts.ActorID); err != nil {
		return domain.SelectionProcess{}, err
	}
	if err := insertProcessTx(ctx, tx, p); err != nil {
		return domain.SelectionProcess{}, fmt.Errorf("insert process: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "process.created", p.StableID, "process", p.ID, opts.ActorID, events.EventPayload{"algorithm": p.Algorithm}); err != nil {
		return domain.SelectionProcess{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SelectionProcess{}, err
	}
	return p, nil
}

// resolveOrder snapshots the roster, optionally rearranged by an explicit
// list of user IDs.
func (e Engine) resolveOrder(ctx context.Context, stableID string, order []string) ([]domain.Member, error) {
	members, err := e.Repo.ListMembers(ctx, stableID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, selection.ValidationError{Field: "members", Reason: "stable has no members"}
	}
	if len(order) == 0 {
		return members, nil
	}
	byID := make(map[string]domain.Member, len(members))
	for _, m := range members {
		byID[m.UserID] = m
	}
	res := make([]domain.Member, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		m, ok := byID[id]
		if !ok {
			return nil, selection.ValidationError{Field: "order", Reason: "unknown member " + id}
		}
		if seen[id] {
			return nil, selection.ValidationError{Field: "order", Reason: "duplicate member " + id}
		}
		seen[id] = true
		res = append(res, m)
	}
	return res, nil
}

// ProcessUpdateOptions are parameters for updating a draft process.
type ProcessUpdateOptions struct {
	ID             string
	Name           string
	Description    *string
	Algorithm      string
	SelectionStart string
	SelectionEnd   string
	Order          []string
	ActorID        string
}

func (e Engine) UpdateProcess(ctx context.Context, opts ProcessUpdateOptions) (domain.SelectionProcess, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SelectionProcess{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProcessTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.SelectionProcess{}, err
	}
	if err := e.Auth.EnsureOrganizer(ctx, tx, p.StableID, opts.ActorID); err != nil {
		return domain.SelectionProcess{}, err
	}
	if p.Status != "draft" {
		return domain.SelectionProcess{}, selection.InvalidStateError{Op: "update", Status: p.Status, Reason: "only draft processes can be edited"}
	}
	if opts.Name != "" {
		p.Name = opts.Name
	}
	if opts.Description != nil {
		p.Description = *opts.Description
	}
	if opts.Algorithm != "" {
		if !validAlgorithm(opts.Algorithm) {
			return domain.SelectionProcess{}, selection.ValidationError{Field: "algorithm", Reason: "unknown algorithm " + opts.Algorithm}
		}
		p.Algorithm = opts.Algorithm
	}
	if opts.SelectionStart != "" {
		p.SelectionStart = opts.SelectionStart
	}
	if opts.SelectionEnd != "" {
		p.SelectionEnd = opts.SelectionEnd
	}
	if _, err := selection.ParseWindowLimit(p.SelectionStart, p.SelectionEnd, e.maxWindowMonths()); err != nil {
		return domain.SelectionProcess{}, err
	}
	if len(opts.Order) > 0 {
		order, err := e.resolveOrder(ctx, p.StableID, opts.Order)
		if err != nil {
			return domain.SelectionProcess{}, err
		}
		p.MemberOrder = order
	}
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProcess(ctx, tx, p); err != nil {
		return domain.SelectionProcess{}, err
	}
	if err := e.Events.Append(ctx, tx, "process.updated", p.StableID, "process", p.ID, opts.ActorID, nil); err != nil {
		return domain.SelectionProcess{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SelectionProcess{}, err
	}
	return p, nil
}

// StartProcess computes the turn order and activates the first turn.
func (e Engine) StartProcess(ctx context.Context, processID, actorID string) (domain.SelectionProcess, error) {
	if e.Config == nil {
		return domain.SelectionProcess{}, errors.New("config not loaded")
	}
	// Snapshot algorithm inputs before opening the write transaction.
	probe, err := e.Repo.GetProcess(ctx, processID)
	if err != nil {
		return domain.SelectionProcess{}, err
	}
	alg, err := e.buildAlgorithm(ctx, probe)
	if err != nil {
		return domain.SelectionProcess{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SelectionProcess{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProcessTx(ctx, tx, processID)
	if err != nil {
		return domain.SelectionProcess{}, err
	}
	if err := e.Auth.EnsureOrganizer(ctx, tx, p.StableID, actorID); err != nil {
		return domain.SelectionProcess{}, err
	}
	now := e.now().UTC()
	result, err := selection.Start(&p, alg, now)
	if err != nil {
		return domain.SelectionProcess{}, err
	}
	if len(p.Turns) > 0 {
		p.Turns[0].Deadline = e.turnDeadline(now)
	}
	if err := e.Repo.UpdateProcess(ctx, tx, p); err != nil {
		return domain.SelectionProcess{}, err
	}
	if err := e.Repo.InsertTurns(ctx, tx, p.Turns); err != nil {
		return domain.SelectionProcess{}, fmt.Errorf("insert turns: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "process.started", p.StableID, "process", p.ID, actorID, events.EventPayload{
		"algorithm":  p.Algorithm,
		"degenerate": result.Degenerate,
	}); err != nil {
		return domain.SelectionProcess{}, err
	}
	if err := e.Events.Append(ctx, tx, "turn.started", p.StableID, "process", p.ID, actorID, events.EventPayload{
		"order":   p.Turns[0].Order,
		"user_id": p.Turns[0].UserID,
	}); err != nil {
		return domain.SelectionProcess{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SelectionProcess{}, err
	}
	return p, nil
}

func (e Engine) buildAlgorithm(ctx context.Context, p domain.SelectionProcess) (selection.Algorithm, error) {
	switch p.Algorithm {
	case "manual":
		return selection.Manual{Order: p.MemberOrder}, nil
	case "quota_based":
		slots, err := e.Repo.CountAvailableSlots(ctx, p.StableID, p.SelectionStart, p.SelectionEnd)
		if err != nil {
			return nil, err
		}
		return selection.QuotaBased{AvailableSlots: slots}, nil
	case "points_balance":
		points, err := e.Repo.PointsSnapshot(ctx, p.StableID)
		if err != nil {
			return nil, err
		}
		return selection.PointsBalance{Points: points}, nil
	case "fair_rotation":
		last, err := e.Repo.LastTurnSnapshot(ctx, p.StableID)
		if err != nil {
			return nil, err
		}
		return selection.FairRotation{LastTurn: last}, nil
	}
	return nil, selection.ValidationError{Field: "algorithm", Reason: "unknown algorithm " + p.Algorithm}
}

func (e Engine) turnDeadline(now time.Time) *string {
	if e.Config == nil || e.Config.Selection.TurnTimeLimitMinutes <= 0 {
		return nil
	}
	d := now.Add(time.Duration(e.Config.Selection.TurnTimeLimitMinutes) * time.Minute).Format(time.RFC3339)
	return &d
}

// CompleteCurrentTurn closes the active turn and hands over to the next
// member, completing the process after the last turn.
func (e Engine) CompleteCurrentTurn(ctx context.Context, processID, actorID string) (domain.SelectionProcess, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SelectionProcess{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProcessTx(ctx, tx, processID)
	if err != nil {
		return domain.SelectionProcess{}, err
	}
	active, err := selection.ActiveTurn(&p)
	if err != nil {
		return domain.SelectionProcess{}, err
	}
	if active.UserID != actorID {
		if err := e.Auth.EnsureOrganizer(ctx, tx, p.StableID, actorID); err != nil {
			return domain.SelectionProcess{}, err
		}
	}
	completedOrder := active.Order
	now := e.now().UTC()
	if err := selection.CompleteCurrentTurn(&p, now); err != nil {
		return domain.SelectionProcess{}, err
	}
	if next, err := selection.ActiveTurn(&p); err == nil {
		next.Deadline = e.turnDeadline(now)
	}
	if err := e.Repo.UpdateProcess(ctx, tx, p); err != nil {
		return domain.SelectionProcess{}, err
	}
	if err := e.Repo.UpdateTurns(ctx, tx, p.Turns); err != nil {
		return domain.SelectionProcess{}, err
	}
	if err := e.Events.Append(ctx, tx, "turn.completed", p.StableID, "process", p.ID, actorID, events.EventPayload{"order": completedOrder}); err != nil {
		return domain.SelectionProcess{}, err
	}
	if p.Status == "completed" {
		if err := e.Events.Append(ctx, tx, "process.completed", p.StableID, "process", p.ID, actorID, nil); err != nil {
			return domain.SelectionProcess{}, err
		}
	} else if next, err := selection.ActiveTurn(&p); err == nil {
		if err := e.Events.Append(ctx, tx, "turn.started", p.StableID, "process", p.ID, actorID, events.EventPayload{
			"order":   next.Order,
			"user_id": next.UserID,
		}); err != nil {
			return domain.SelectionProcess{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.SelectionProcess{}, err
	}
	return p, nil
}

// CancelProcess cancels a draft or active process with a reason.
func (e Engine) CancelProcess(ctx context.Context, processID, reason, actorID string) (domain.SelectionProcess, error) {
	if reason == "" {
		return domain.SelectionProcess{}, selection.InvalidInputError{Field: "reason"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SelectionProcess{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProcessTx(ctx, tx, processID)
	if err != nil {
		return domain.SelectionProcess{}, err
	}
	if err := e.Auth.EnsureOrganizer(ctx, tx, p.StableID, actorID); err != nil {
		return domain.SelectionProcess{}, err
	}
	if err := selection.Cancel(&p, reason, e.now().UTC()); err != nil {
		return domain.SelectionProcess{}, err
	}
	if err := e.Repo.UpdateProcess(ctx, tx, p); err != nil {
		return domain.SelectionProcess{}, err
	}
	if err := e.Events.Append(ctx, tx, "process.cancelled", p.StableID, "process", p.ID, actorID, events.EventPayload{"reason": reason}); err != nil {
		return domain.SelectionProcess{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SelectionProcess{}, err
	}
	return p, nil
}

// ClaimSlot assigns a routine instance to the acting member if the process
// rules allow it. The assignment, turn bookkeeping and points award commit
// atomically.
func (e Engine) ClaimSlot(ctx context.Context, processID, slotID, actorID string) (domain.RoutineInstance, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RoutineInstance{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProcessTx(ctx, tx, processID)
	if err != nil {
		return domain.RoutineInstance{}, err
	}
	slot, err := e.Repo.GetInstanceTx(ctx, tx, slotID)
	if err != nil {
		return domain.RoutineInstance{}, err
	}
	if slot.StableID != p.StableID {
		return domain.RoutineInstance{}, selection.ValidationError{Field: "slot_id", Reason: "slot does not belong to the process stable"}
	}
	now := e.now().UTC()
	decision := selection.CanClaim(&p, slot, actorID, now)
	if !decision.Allowed {
		return domain.RoutineInstance{}, ClaimRejectedError{Reason: decision.Reason}
	}
	nowStr := now.Format(time.RFC3339)
	ok, err := e.Repo.AssignInstance(ctx, tx, slotID, actorID, processID, nowStr)
	if err != nil {
		return domain.RoutineInstance{}, err
	}
	if !ok {
		return domain.RoutineInstance{}, ClaimRejectedError{Reason: selection.ReasonAlreadyClaimed}
	}
	active, err := selection.ActiveTurn(&p)
	if err != nil {
		return domain.RoutineInstance{}, err
	}
	if err := selection.RecordSelection(&p, active.Order); err != nil {
		return domain.RoutineInstance{}, err
	}
	if err := e.Repo.UpdateTurn(ctx, tx, *active); err != nil {
		return domain.RoutineInstance{}, err
	}
	if pts := e.pointsPerSelection(); pts > 0 {
		if err := e.Repo.AddPoints(ctx, tx, p.StableID, actorID, pts, nowStr); err != nil {
			return domain.RoutineInstance{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "slot.claimed", p.StableID, "slot", slotID, actorID, events.EventPayload{
		"process_id": processID,
		"order":      active.Order,
	}); err != nil {
		return domain.RoutineInstance{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RoutineInstance{}, err
	}
	slot, err = e.Repo.GetInstance(ctx, slotID)
	return slot, err
}

func (e Engine) pointsPerSelection() int {
	if e.Config == nil {
		return 0
	}
	return e.Config.Selection.Points.PerSelection
}

func (e Engine) maxWindowMonths() int {
	if e.Config == nil {
		return selection.MaxWindowMonths
	}
	return e.Config.Selection.MaxWindowMonths
}

// ReleaseSlot clears an assignment. The assignee may release their own slot;
// anyone else needs the organizer role.
func (e Engine) ReleaseSlot(ctx context.Context, slotID, actorID string) (domain.RoutineInstance, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RoutineInstance{}, err
	}
	defer tx.Rollback()
	slot, err := e.Repo.GetInstanceTx(ctx, tx, slotID)
	if err != nil {
		return domain.RoutineInstance{}, err
	}
	if slot.AssignedTo == nil {
		return domain.RoutineInstance{}, selection.InvalidStateError{Op: "release", Status: slot.Status, Reason: "slot is not assigned"}
	}
	if *slot.AssignedTo != actorID {
		if err := e.Auth.EnsureOrganizer(ctx, tx, slot.StableID, actorID); err != nil {
			return domain.RoutineInstance{}, err
		}
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.ReleaseInstance(ctx, tx, slotID, nowStr); err != nil {
		return domain.RoutineInstance{}, err
	}
	if err := e.Events.Append(ctx, tx, "slot.released", slot.StableID, "slot", slotID, actorID, events.EventPayload{"previous_assignee": *slot.AssignedTo}); err != nil {
		return domain.RoutineInstance{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RoutineInstance{}, err
	}
	return e.Repo.GetInstance(ctx, slotID)
}

// SlotCreateOptions are parameters for publishing routine instances.
type SlotCreateOptions struct {
	StableID string
	Title    string
	Dates    []string
	ActorID  string
}

// AddRoutineInstances creates one open instance per date.
func (e Engine) AddRoutineInstances(ctx context.Context, opts SlotCreateOptions) ([]domain.RoutineInstance, error) {
	if opts.Title == "" {
		return nil, selection.InvalidInputError{Field: "title"}
	}
	if len(opts.Dates) == 0 {
		return nil, selection.InvalidInputError{Field: "dates"}
	}
	for _, d := range opts.Dates {
		if _, err := time.Parse(selection.DateLayout, d); err != nil {
			return nil, selection.ValidationError{Field: "dates", Reason: "invalid date " + d}
		}
	}
	if _, err := e.Repo.GetStable(ctx, opts.StableID); err != nil {
		return nil, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := e.Auth.EnsureOrganizer(ctx, tx, opts.StableID, opts.ActorID); err != nil {
		return nil, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	res := make([]domain.RoutineInstance, 0, len(opts.Dates))
	for _, d := range opts.Dates {
		in := domain.RoutineInstance{
			ID:            uuid.NewString(),
			StableID:      opts.StableID,
			Title:         opts.Title,
			ScheduledDate: d,
			Status:        "open",
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := e.Repo.InsertInstance(ctx, tx, in); err != nil {
			return nil, fmt.Errorf("insert instance: %w", err)
		}
		if err := e.Events.Append(ctx, tx, "slot.created", opts.StableID, "slot", in.ID, opts.ActorID, events.EventPayload{"scheduled_date": d}); err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

func validAlgorithm(name string) bool {
	for _, n := range selection.AlgorithmNames {
		if n == name {
			return true
		}
	}
	return false
}

func insertProcessTx(ctx context.Context, tx *sql.Tx, p domain.SelectionProcess) error {
	order, err := marshalOrder(p.MemberOrder)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO selection_processes(id,stable_id,org_id,name,description,algorithm,status,selection_start,selection_end,member_order_json,cancel_reason,created_at,updated_at,started_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.StableID, p.OrgID, p.Name, nullable(p.Description), p.Algorithm, p.Status, p.SelectionStart, p.SelectionEnd,
		order, nullable(p.CancelReason), p.CreatedAt, p.UpdatedAt, nil, nil)
	return err
}

func marshalOrder(order []domain.Member) (string, error) {
	data, err := json.Marshal(order)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
