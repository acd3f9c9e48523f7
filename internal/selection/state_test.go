package selection_test

import (
	"errors"
	"testing"
	"time"

	"paddock/internal/domain"
	"paddock/internal/selection"
)

func draftProcess(ids ...string) *domain.SelectionProcess {
	return &domain.SelectionProcess{
		ID:             "proc-1",
		StableID:       "stable-1",
		Name:           "june rotation",
		Algorithm:      "manual",
		Status:         "draft",
		SelectionStart: "2025-06-01",
		SelectionEnd:   "2025-06-07",
		MemberOrder:    members(ids...),
	}
}

func startedProcess(t *testing.T, ids ...string) *domain.SelectionProcess {
	t.Helper()
	p := draftProcess(ids...)
	if _, err := selection.Start(p, selection.Manual{Order: p.MemberOrder}, testClock(t, 0)); err != nil {
		t.Fatalf("start: %v", err)
	}
	return p
}

func testClock(t *testing.T, offsetHours int) time.Time {
	t.Helper()
	return time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(offsetHours) * time.Hour)
}

func TestStartActivatesFirstTurn(t *testing.T) {
	p := startedProcess(t, "alice", "bob")
	if p.Status != "active" {
		t.Fatalf("process status = %q", p.Status)
	}
	if p.StartedAt == nil {
		t.Fatalf("expected started_at to be set")
	}
	if len(p.Turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(p.Turns))
	}
	if p.Turns[0].Status != "active" || p.Turns[0].StartedAt == nil {
		t.Fatalf("first turn not activated: %+v", p.Turns[0])
	}
	if p.Turns[1].Status != "pending" {
		t.Fatalf("second turn status = %q", p.Turns[1].Status)
	}
	for _, tn := range p.Turns {
		if tn.ProcessID != p.ID {
			t.Fatalf("turn not stamped with process id")
		}
	}
}

func TestStartOnlyFromDraft(t *testing.T) {
	for _, status := range []string{"active", "completed", "cancelled"} {
		p := draftProcess("alice")
		p.Status = status
		_, err := selection.Start(p, selection.Manual{Order: p.MemberOrder}, testClock(t, 0))
		var serr selection.InvalidStateError
		if !errors.As(err, &serr) || serr.Op != "start" {
			t.Fatalf("start from %s: error = %v", status, err)
		}
	}
}

func TestStartLeavesProcessUntouchedOnError(t *testing.T) {
	p := draftProcess("alice", "bob")
	_, err := selection.Start(p, selection.PointsBalance{}, testClock(t, 0))
	if err == nil {
		t.Fatalf("expected missing input error")
	}
	if p.Status != "draft" || len(p.Turns) != 0 || p.StartedAt != nil {
		t.Fatalf("process mutated on failed start: %+v", p)
	}
}

func TestActiveTurnRequiresExactlyOne(t *testing.T) {
	p := startedProcess(t, "alice", "bob")
	active, err := selection.ActiveTurn(p)
	if err != nil {
		t.Fatalf("active turn: %v", err)
	}
	if active.UserID != "alice" {
		t.Fatalf("active turn holder = %q", active.UserID)
	}
	p.Turns[1].Status = "active"
	if _, err := selection.ActiveTurn(p); err == nil {
		t.Fatalf("expected error with two active turns")
	}
	p.Turns[0].Status = "completed"
	p.Turns[1].Status = "completed"
	if _, err := selection.ActiveTurn(p); err == nil {
		t.Fatalf("expected error with no active turn")
	}
}

func TestCompleteTurnChainCompletesProcess(t *testing.T) {
	p := startedProcess(t, "alice", "bob", "carol")
	for i := 0; i < 2; i++ {
		if err := selection.CompleteCurrentTurn(p, testClock(t, i+1)); err != nil {
			t.Fatalf("complete turn %d: %v", i+1, err)
		}
		if p.Status != "active" {
			t.Fatalf("process ended early at turn %d", i+1)
		}
		active, err := selection.ActiveTurn(p)
		if err != nil {
			t.Fatalf("active after turn %d: %v", i+1, err)
		}
		if active.Order != i+2 {
			t.Fatalf("active order = %d, want %d", active.Order, i+2)
		}
	}
	if err := selection.CompleteCurrentTurn(p, testClock(t, 3)); err != nil {
		t.Fatalf("complete last turn: %v", err)
	}
	if p.Status != "completed" || p.CompletedAt == nil {
		t.Fatalf("process not completed: status=%q", p.Status)
	}
	for _, tn := range p.Turns {
		if tn.Status != "completed" || tn.CompletedAt == nil {
			t.Fatalf("turn %d not completed", tn.Order)
		}
	}
}

func TestTerminalProcessesAreImmutable(t *testing.T) {
	for _, status := range []string{"completed", "cancelled"} {
		p := startedProcess(t, "alice")
		p.Status = status
		var serr selection.InvalidStateError
		if err := selection.CompleteCurrentTurn(p, testClock(t, 1)); !errors.As(err, &serr) {
			t.Fatalf("complete on %s: %v", status, err)
		}
		if err := selection.Cancel(p, "too late", testClock(t, 1)); !errors.As(err, &serr) {
			t.Fatalf("cancel on %s: %v", status, err)
		}
		if err := selection.RecordSelection(p, 1); !errors.As(err, &serr) {
			t.Fatalf("record on %s: %v", status, err)
		}
	}
}

func TestCancelFromDraftAndActive(t *testing.T) {
	p := draftProcess("alice")
	if err := selection.Cancel(p, "plans changed", testClock(t, 0)); err != nil {
		t.Fatalf("cancel draft: %v", err)
	}
	if p.Status != "cancelled" || p.CancelReason != "plans changed" {
		t.Fatalf("draft cancel state: %+v", p)
	}

	p = startedProcess(t, "alice", "bob")
	if err := selection.Cancel(p, "stable closed", testClock(t, 1)); err != nil {
		t.Fatalf("cancel active: %v", err)
	}
	if p.Status != "cancelled" {
		t.Fatalf("active cancel status = %q", p.Status)
	}
	// the interrupted turn keeps its last state for the audit trail
	if p.Turns[0].Status != "active" {
		t.Fatalf("turn state rewritten on cancel: %q", p.Turns[0].Status)
	}
}

func TestRecordSelectionOnlyForActiveTurn(t *testing.T) {
	p := startedProcess(t, "alice", "bob")
	if err := selection.RecordSelection(p, 1); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := selection.RecordSelection(p, 1); err != nil {
		t.Fatalf("second record: %v", err)
	}
	if p.Turns[0].SelectionsCount != 2 {
		t.Fatalf("selections count = %d, want 2", p.Turns[0].SelectionsCount)
	}
	var serr selection.InvalidStateError
	if err := selection.RecordSelection(p, 2); !errors.As(err, &serr) {
		t.Fatalf("record for pending turn: %v", err)
	}
	if p.Turns[1].SelectionsCount != 0 {
		t.Fatalf("pending turn counter moved")
	}
}
