package selection

import (
	"time"

	"paddock/internal/domain"
)

// Start transitions a draft process to active. The turn order is computed
// here, not at creation, so members who joined after the draft are excluded
// consistently. Either the full update is applied or the process is left
// untouched.
func Start(p *domain.SelectionProcess, alg Algorithm, now time.Time) (Result, error) {
	if p.Status != "draft" {
		return Result{}, InvalidStateError{Op: "start", Status: p.Status}
	}
	window, err := ParseWindow(p.SelectionStart, p.SelectionEnd)
	if err != nil {
		return Result{}, err
	}
	res, err := Compute(alg, p.MemberOrder, window)
	if err != nil {
		return Result{}, err
	}
	ts := now.UTC().Format(time.RFC3339)
	turns := make([]domain.SelectionProcessTurn, len(res.Turns))
	copy(turns, res.Turns)
	for i := range turns {
		turns[i].ProcessID = p.ID
	}
	turns[0].Status = "active"
	turns[0].StartedAt = &ts
	p.Turns = turns
	p.Status = "active"
	p.StartedAt = &ts
	p.UpdatedAt = ts
	res.Turns = turns
	return res, nil
}

// ActiveTurn returns the single active turn. Exactly one turn must be active
// while the process is; anything else is an invariant violation and is
// reported, never masked.
func ActiveTurn(p *domain.SelectionProcess) (*domain.SelectionProcessTurn, error) {
	var active *domain.SelectionProcessTurn
	for i := range p.Turns {
		if p.Turns[i].Status == "active" {
			if active != nil {
				return nil, InvalidStateError{Op: "active_turn", Status: p.Status, Reason: "multiple turns active"}
			}
			active = &p.Turns[i]
		}
	}
	if active == nil {
		return nil, InvalidStateError{Op: "active_turn", Status: p.Status, Reason: "no turn active"}
	}
	return active, nil
}

// CompleteCurrentTurn completes the active turn and activates the next one,
// or completes the process when the last turn finishes.
func CompleteCurrentTurn(p *domain.SelectionProcess, now time.Time) error {
	if p.Status != "active" {
		return InvalidStateError{Op: "complete_turn", Status: p.Status}
	}
	active, err := ActiveTurn(p)
	if err != nil {
		return err
	}
	ts := now.UTC().Format(time.RFC3339)
	active.Status = "completed"
	active.CompletedAt = &ts
	next := turnAt(p, active.Order+1)
	if next != nil {
		next.Status = "active"
		next.StartedAt = &ts
	} else {
		p.Status = "completed"
		p.CompletedAt = &ts
	}
	p.UpdatedAt = ts
	return nil
}

// Cancel terminates a draft or active process. An active turn is left in its
// last observed state so the audit trail shows where the process stopped.
func Cancel(p *domain.SelectionProcess, reason string, now time.Time) error {
	if p.Status != "draft" && p.Status != "active" {
		return InvalidStateError{Op: "cancel", Status: p.Status}
	}
	ts := now.UTC().Format(time.RFC3339)
	p.Status = "cancelled"
	p.CancelReason = reason
	p.UpdatedAt = ts
	return nil
}

// RecordSelection increments the selections counter on the turn at the given
// order. Selections are only attributable to the currently active turn; that
// is the fairness guarantee.
func RecordSelection(p *domain.SelectionProcess, order int) error {
	if p.Status != "active" {
		return InvalidStateError{Op: "record_selection", Status: p.Status}
	}
	active, err := ActiveTurn(p)
	if err != nil {
		return err
	}
	if active.Order != order {
		return InvalidStateError{Op: "record_selection", Status: p.Status, Reason: "turn is not active"}
	}
	active.SelectionsCount++
	return nil
}

func turnAt(p *domain.SelectionProcess, order int) *domain.SelectionProcessTurn {
	for i := range p.Turns {
		if p.Turns[i].Order == order {
			return &p.Turns[i]
		}
	}
	return nil
}
