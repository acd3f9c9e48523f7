package domain

type Stable struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Member is a stable member as known to the roster. UserName and UserEmail are
// copied onto turns at computation time and never synced afterwards.
type Member struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	Role      string `json:"role,omitempty" enum:"organizer,member"`
	JoinedAt  string `json:"joined_at,omitempty" format:"date-time"`
}

type SelectionProcess struct {
	ID             string                 `json:"id"`
	StableID       string                 `json:"stable_id"`
	OrgID          string                 `json:"org_id"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description,omitempty"`
	Algorithm      string                 `json:"algorithm" enum:"manual,quota_based,points_balance,fair_rotation"`
	Status         string                 `json:"status" enum:"draft,active,completed,cancelled"`
	SelectionStart string                 `json:"selection_start" format:"date"`
	SelectionEnd   string                 `json:"selection_end" format:"date"`
	MemberOrder    []Member               `json:"member_order"`
	Turns          []SelectionProcessTurn `json:"turns,omitempty"`
	CancelReason   string                 `json:"cancel_reason,omitempty"`
	CreatedAt      string                 `json:"created_at" format:"date-time"`
	UpdatedAt      string                 `json:"updated_at" format:"date-time"`
	StartedAt      *string                `json:"started_at,omitempty" format:"date-time"`
	CompletedAt    *string                `json:"completed_at,omitempty" format:"date-time"`
}

type SelectionProcessTurn struct {
	ProcessID       string  `json:"process_id"`
	Order           int     `json:"order"`
	UserID          string  `json:"user_id"`
	UserName        string  `json:"user_name"`
	UserEmail       string  `json:"user_email"`
	Status          string  `json:"status" enum:"pending,active,completed"`
	Quota           *int    `json:"quota,omitempty"`
	SelectionsCount int     `json:"selections_count"`
	Deadline        *string `json:"deadline,omitempty" format:"date-time"`
	StartedAt       *string `json:"started_at,omitempty" format:"date-time"`
	CompletedAt     *string `json:"completed_at,omitempty" format:"date-time"`
}

// RoutineInstance is a claimable routine/shift slot on a calendar day.
type RoutineInstance struct {
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

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	StableID   string `json:"stable_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
