package server

import (
	"encoding/json"

	"paddock/internal/config"
	"paddock/internal/domain"
)

// Request payloads

type CreateStableRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type UpdateStableRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type AddMemberRequest struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
	Role      string `json:"role,omitempty" enum:"organizer,member"`
}

type CreateSlotsRequest struct {
	Title string   `json:"title"`
	Dates []string `json:"dates" format:"date"`
}

type CreateProcessRequest struct {
	ID             *string  `json:"id,omitempty"`
	Name           string   `json:"name"`
	Description    *string  `json:"description,omitempty"`
	Algorithm      string   `json:"algorithm,omitempty" enum:"manual,quota_based,points_balance,fair_rotation"`
	SelectionStart string   `json:"selection_start" format:"date"`
	SelectionEnd   string   `json:"selection_end" format:"date"`
	Order          []string `json:"order,omitempty"`
}

type UpdateProcessRequest struct {
	Name           *string  `json:"name,omitempty"`
	Description    *string  `json:"description,omitempty"`
	Algorithm      *string  `json:"algorithm,omitempty" enum:"manual,quota_based,points_balance,fair_rotation"`
	SelectionStart *string  `json:"selection_start,omitempty" format:"date"`
	SelectionEnd   *string  `json:"selection_end,omitempty" format:"date"`
	Order          []string `json:"order,omitempty"`
}

type CancelProcessRequest struct {
	Reason string `json:"reason"`
}

type ClaimSlotRequest struct {
	SlotID string `json:"slot_id"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type StableResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type MemberResponse struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
	Role      string `json:"role" enum:"organizer,member"`
	JoinedAt  string `json:"joined_at" format:"date-time"`
	Points    int    `json:"points"`
}

type TurnResponse struct {
	Order           int     `json:"order"`
	UserID          string  `json:"user_id"`
	UserName        string  `json:"user_name,omitempty"`
	Status          string  `json:"status" enum:"pending,active,completed"`
	Quota           *int    `json:"quota,omitempty"`
	SelectionsCount int     `json:"selections_count"`
	Deadline        *string `json:"deadline,omitempty" format:"date-time"`
	StartedAt       *string `json:"started_at,omitempty" format:"date-time"`
	CompletedAt     *string `json:"completed_at,omitempty" format:"date-time"`
}

type ProcessResponse struct {
	ID             string         `json:"id"`
	StableID       string         `json:"stable_id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Algorithm      string         `json:"algorithm" enum:"manual,quota_based,points_balance,fair_rotation"`
	Status         string         `json:"status" enum:"draft,active,completed,cancelled"`
	SelectionStart string         `json:"selection_start" format:"date"`
	SelectionEnd   string         `json:"selection_end" format:"date"`
	Turns          []TurnResponse `json:"turns"`
	CancelReason   string         `json:"cancel_reason,omitempty"`
	CreatedAt      string         `json:"created_at" format:"date-time"`
	UpdatedAt      string         `json:"updated_at" format:"date-time"`
	StartedAt      *string        `json:"started_at,omitempty" format:"date-time"`
	CompletedAt    *string        `json:"completed_at,omitempty" format:"date-time"`
}

type SlotResponse struct {
	ID            string  `json:"id"`
	StableID      string  `json:"stable_id"`
	Title         string  `json:"title"`
	ScheduledDate string  `json:"scheduled_date" format:"date"`
	AssignedTo    *string `json:"assigned_to,omitempty"`
	Status        string  `json:"status" enum:"open,assigned"`
	ProcessID     *string `json:"process_id,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	StableID   string         `json:"stable_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type paginatedProcesses struct {
	Items      []ProcessResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type StableConfigResponse struct {
	StableID             string `json:"stable_id"`
	DefaultAlgorithm     string `json:"default_algorithm" enum:"manual,quota_based,points_balance,fair_rotation"`
	TurnTimeLimitMinutes int    `json:"turn_time_limit_minutes"`
	MaxWindowMonths      int    `json:"max_window_months"`
	PointsPerSelection   int    `json:"points_per_selection"`
}

func stableResponse(s domain.Stable) StableResponse {
	return StableResponse{
		ID:          s.ID,
		Name:        s.Name,
		Status:      s.Status,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
	}
}

func memberResponse(m domain.Member, points int) MemberResponse {
	return MemberResponse{
		UserID:    m.UserID,
		UserName:  m.UserName,
		UserEmail: m.UserEmail,
		Role:      m.Role,
		JoinedAt:  m.JoinedAt,
		Points:    points,
	}
}

func turnResponse(t domain.SelectionProcessTurn) TurnResponse {
	return TurnResponse{
		Order:           t.Order,
		UserID:          t.UserID,
		UserName:        t.UserName,
		Status:          t.Status,
		Quota:           t.Quota,
		SelectionsCount: t.SelectionsCount,
		Deadline:        t.Deadline,
		StartedAt:       t.StartedAt,
		CompletedAt:     t.CompletedAt,
	}
}

func processResponse(p domain.SelectionProcess) ProcessResponse {
	turns := make([]TurnResponse, 0, len(p.Turns))
	for _, t := range p.Turns {
		turns = append(turns, turnResponse(t))
	}
	return ProcessResponse{
		ID:             p.ID,
		StableID:       p.StableID,
		Name:           p.Name,
		Description:    p.Description,
		Algorithm:      p.Algorithm,
		Status:         p.Status,
		SelectionStart: p.SelectionStart,
		SelectionEnd:   p.SelectionEnd,
		Turns:          turns,
		CancelReason:   p.CancelReason,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		StartedAt:      p.StartedAt,
		CompletedAt:    p.CompletedAt,
	}
}

func slotResponse(in domain.RoutineInstance) SlotResponse {
	return SlotResponse{
		ID:            in.ID,
		StableID:      in.StableID,
		Title:         in.Title,
		ScheduledDate: in.ScheduledDate,
		AssignedTo:    in.AssignedTo,
		Status:        in.Status,
		ProcessID:     in.ProcessID,
		CreatedAt:     in.CreatedAt,
		UpdatedAt:     in.UpdatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	res := EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		StableID:   e.StableID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
	}
	if e.Payload != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(e.Payload), &payload); err == nil {
			res.Payload = payload
		}
	}
	return res
}

func configResponse(cfg *config.Config) StableConfigResponse {
	return StableConfigResponse{
		StableID:             cfg.Stable.ID,
		DefaultAlgorithm:     cfg.Selection.DefaultAlgorithm,
		TurnTimeLimitMinutes: cfg.Selection.TurnTimeLimitMinutes,
		MaxWindowMonths:      cfg.Selection.MaxWindowMonths,
		PointsPerSelection:   cfg.Selection.Points.PerSelection,
	}
}

func mapStables(items []domain.Stable) []StableResponse {
	res := make([]StableResponse, 0, len(items))
	for _, s := range items {
		res = append(res, stableResponse(s))
	}
	return res
}

func mapSlots(items []domain.RoutineInstance) []SlotResponse {
	res := make([]SlotResponse, 0, len(items))
	for _, in := range items {
		res = append(res, slotResponse(in))
	}
	return res
}
