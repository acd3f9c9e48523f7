package selection

import (
	"time"

	"paddock/internal/domain"
)

// Reason is a claim-rejection code. A rejected claim is an expected outcome,
// not a fault, so these travel as values rather than errors.
type Reason string

const (
	ReasonProcessNotActive Reason = "process_not_active"
	ReasonOutsideWindow    Reason = "outside_window"
	ReasonAlreadyClaimed   Reason = "already_claimed"
	ReasonNotYourTurn      Reason = "not_your_turn"
	ReasonTurnExpired      Reason = "turn_expired"
)

// Decision is the outcome of a claim check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

func rejected(r Reason) Decision { return Decision{Reason: r} }

// CanClaim decides whether userID may claim the given slot at the given
// moment. Rules are evaluated in order; the first failing rule determines the
// reason. A successful decision is advisory only: the actual assignment must
// be a compare-and-set at the storage layer, keyed on the slot still being
// unassigned.
func CanClaim(p *domain.SelectionProcess, slot domain.RoutineInstance, userID string, now time.Time) Decision {
	if p.Status != "active" {
		return rejected(ReasonProcessNotActive)
	}
	window, err := ParseWindow(p.SelectionStart, p.SelectionEnd)
	if err != nil || !window.Contains(slot.ScheduledDate) {
		return rejected(ReasonOutsideWindow)
	}
	if slot.AssignedTo != nil {
		return rejected(ReasonAlreadyClaimed)
	}
	active, err := ActiveTurn(p)
	if err != nil || active.UserID != userID {
		return rejected(ReasonNotYourTurn)
	}
	if active.Deadline != nil {
		deadline, err := time.Parse(time.RFC3339, *active.Deadline)
		if err != nil || now.After(deadline) {
			return rejected(ReasonTurnExpired)
		}
	}
	return Decision{Allowed: true}
}
