package selection_test

import (
	"errors"
	"testing"
	"time"

	"paddock/internal/domain"
	"paddock/internal/selection"
)

func members(ids ...string) []domain.Member {
	out := make([]domain.Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Member{UserID: id, UserName: "name-" + id, UserEmail: id + "@stable.test"})
	}
	return out
}

func turnOrder(res selection.Result) []string {
	ids := make([]string, len(res.Turns))
	for i, tn := range res.Turns {
		ids[i] = tn.UserID
	}
	return ids
}

func assertOrder(t *testing.T, res selection.Result, want ...string) {
	t.Helper()
	got := turnOrder(res)
	if len(got) != len(want) {
		t.Fatalf("got %d turns, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turn order = %v, want %v", got, want)
		}
	}
}

func mustWindow(t *testing.T, start, end string) selection.Window {
	t.Helper()
	w, err := selection.ParseWindow(start, end)
	if err != nil {
		t.Fatalf("parse window: %v", err)
	}
	return w
}

func TestManualOrder(t *testing.T) {
	roster := members("alice", "bob", "carol")
	window := mustWindow(t, "2025-06-01", "2025-06-30")
	res, err := selection.Compute(selection.Manual{Order: []domain.Member{roster[2], roster[0], roster[1]}}, roster, window)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	assertOrder(t, res, "carol", "alice", "bob")
	for i, tn := range res.Turns {
		if tn.Order != i+1 {
			t.Fatalf("turn %d has order %d", i, tn.Order)
		}
		if tn.Status != "pending" {
			t.Fatalf("turn %d status = %q", i, tn.Status)
		}
	}
}

func TestManualOrderRejectsEmptyAndDuplicates(t *testing.T) {
	window := mustWindow(t, "2025-06-01", "2025-06-30")
	_, err := selection.Compute(selection.Manual{}, members("alice"), window)
	var verr selection.ValidationError
	if !errors.As(err, &verr) || verr.Field != "member_order" {
		t.Fatalf("empty order error = %v", err)
	}
	roster := members("alice", "bob")
	_, err = selection.Compute(selection.Manual{Order: []domain.Member{roster[0], roster[1], roster[0]}}, roster, window)
	if !errors.As(err, &verr) || verr.Field != "member_order" {
		t.Fatalf("duplicate order error = %v", err)
	}
}

func TestPointsBalanceAscending(t *testing.T) {
	roster := members("alice", "bob", "carol")
	window := mustWindow(t, "2025-06-01", "2025-06-30")
	res, err := selection.Compute(selection.PointsBalance{Points: map[string]int{
		"alice": 10,
		"bob":   2,
		"carol": 6,
	}}, roster, window)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	assertOrder(t, res, "bob", "carol", "alice")
}

func TestPointsBalanceTieBreaksOnUserID(t *testing.T) {
	roster := members("carol", "alice", "bob")
	window := mustWindow(t, "2025-06-01", "2025-06-30")
	res, err := selection.Compute(selection.PointsBalance{Points: map[string]int{
		"alice": 3,
		"bob":   3,
		"carol": 3,
	}}, roster, window)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	assertOrder(t, res, "alice", "bob", "carol")
}

func TestPointsBalanceRequiresEveryMember(t *testing.T) {
	roster := members("alice", "bob")
	window := mustWindow(t, "2025-06-01", "2025-06-30")
	var ierr selection.InvalidInputError
	_, err := selection.Compute(selection.PointsBalance{}, roster, window)
	if !errors.As(err, &ierr) || ierr.Field != "points" {
		t.Fatalf("nil points error = %v", err)
	}
	_, err = selection.Compute(selection.PointsBalance{Points: map[string]int{"alice": 1}}, roster, window)
	if !errors.As(err, &ierr) || ierr.Field != "points[bob]" {
		t.Fatalf("missing member error = %v", err)
	}
}

func TestFairRotationNeverServedFirst(t *testing.T) {
	roster := members("alice", "bob", "carol")
	window := mustWindow(t, "2025-06-01", "2025-06-30")
	older := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	res, err := selection.Compute(selection.FairRotation{LastTurn: map[string]*time.Time{
		"alice": &older,
		"bob":   nil,
		"carol": &newer,
	}}, roster, window)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	assertOrder(t, res, "bob", "alice", "carol")
}

func TestFairRotationRequiresEveryMember(t *testing.T) {
	roster := members("alice", "bob")
	window := mustWindow(t, "2025-06-01", "2025-06-30")
	var ierr selection.InvalidInputError
	_, err := selection.Compute(selection.FairRotation{}, roster, window)
	if !errors.As(err, &ierr) || ierr.Field != "last_turn" {
		t.Fatalf("nil last_turn error = %v", err)
	}
	_, err = selection.Compute(selection.FairRotation{LastTurn: map[string]*time.Time{"alice": nil}}, roster, window)
	if !errors.As(err, &ierr) || ierr.Field != "last_turn[bob]" {
		t.Fatalf("missing member error = %v", err)
	}
}

func TestQuotaBasedDistribution(t *testing.T) {
	roster := members("alice", "bob", "carol")
	window := mustWindow(t, "2025-06-01", "2025-06-30")
	res, err := selection.Compute(selection.QuotaBased{AvailableSlots: 10}, roster, window)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// 10/3: remainder goes to the lowest user ids, smallest quota picks first.
	assertOrder(t, res, "bob", "carol", "alice")
	want := map[string]int{"alice": 4, "bob": 3, "carol": 3}
	total := 0
	for id, q := range want {
		if res.Quotas[id] != q {
			t.Fatalf("quota[%s] = %d, want %d", id, res.Quotas[id], q)
		}
		total += res.Quotas[id]
	}
	if total != 10 {
		t.Fatalf("quotas sum to %d, want 10", total)
	}
	if res.Degenerate {
		t.Fatalf("unexpected degenerate result")
	}
	for _, tn := range res.Turns {
		if tn.Quota == nil || *tn.Quota != res.Quotas[tn.UserID] {
			t.Fatalf("turn quota for %s does not match result quotas", tn.UserID)
		}
	}
}

func TestQuotaBasedDegenerateWhenSlotsShort(t *testing.T) {
	roster := members("alice", "bob", "carol")
	window := mustWindow(t, "2025-06-01", "2025-06-30")
	res, err := selection.Compute(selection.QuotaBased{AvailableSlots: 2}, roster, window)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !res.Degenerate {
		t.Fatalf("expected degenerate result with fewer slots than members")
	}
	if res.Quotas["carol"] != 0 {
		t.Fatalf("expected zero quota for carol, got %d", res.Quotas["carol"])
	}
}

func TestQuotaBasedRejectsNoSlots(t *testing.T) {
	window := mustWindow(t, "2025-06-01", "2025-06-30")
	var verr selection.ValidationError
	_, err := selection.Compute(selection.QuotaBased{}, members("alice"), window)
	if !errors.As(err, &verr) || verr.Field != "available_slots" {
		t.Fatalf("zero slots error = %v", err)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	roster := members("dave", "alice", "carol", "bob")
	window := mustWindow(t, "2025-06-01", "2025-06-30")
	points := map[string]int{"alice": 5, "bob": 5, "carol": 1, "dave": 9}
	first, err := selection.Compute(selection.PointsBalance{Points: points}, roster, window)
	if err != nil {
		t.Fatalf("first compute: %v", err)
	}
	second, err := selection.Compute(selection.PointsBalance{Points: points}, roster, window)
	if err != nil {
		t.Fatalf("second compute: %v", err)
	}
	assertOrder(t, second, turnOrder(first)...)
}

func TestComputeCoversEveryMemberOnce(t *testing.T) {
	roster := members("dave", "alice", "carol", "bob")
	window := mustWindow(t, "2025-06-01", "2025-06-30")
	res, err := selection.Compute(selection.QuotaBased{AvailableSlots: 8}, roster, window)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	seen := map[string]bool{}
	for i, tn := range res.Turns {
		if tn.Order != i+1 {
			t.Fatalf("orders not contiguous at %d", i)
		}
		if seen[tn.UserID] {
			t.Fatalf("member %s appears twice", tn.UserID)
		}
		seen[tn.UserID] = true
	}
	if len(seen) != len(roster) {
		t.Fatalf("got %d members in turns, want %d", len(seen), len(roster))
	}
}

func TestComputeDoesNotMutateRoster(t *testing.T) {
	roster := members("carol", "alice", "bob")
	window := mustWindow(t, "2025-06-01", "2025-06-30")
	if _, err := selection.Compute(selection.QuotaBased{AvailableSlots: 6}, roster, window); err != nil {
		t.Fatalf("compute: %v", err)
	}
	if roster[0].UserID != "carol" || roster[1].UserID != "alice" || roster[2].UserID != "bob" {
		t.Fatalf("roster slice was reordered: %v", roster)
	}
}

func TestParseWindowValidation(t *testing.T) {
	cases := []struct {
		name  string
		start string
		end   string
		field string
	}{
		{"bad start", "June 1", "2025-06-30", "selection_start"},
		{"bad end", "2025-06-01", "30/06/2025", "selection_end"},
		{"end before start", "2025-06-30", "2025-06-01", "selection_end"},
		{"end equals start", "2025-06-01", "2025-06-01", "selection_end"},
		{"over twelve months", "2025-01-01", "2026-02-01", "selection_end"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := selection.ParseWindow(tc.start, tc.end)
			var verr selection.ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.field {
				t.Fatalf("error = %v, want ValidationError on %s", err, tc.field)
			}
		})
	}
	w := mustWindow(t, "2025-06-01", "2025-06-30")
	if !w.Contains("2025-06-15") {
		t.Fatalf("expected 2025-06-15 inside window")
	}
	if w.Contains("2025-07-01") {
		t.Fatalf("expected 2025-07-01 outside window")
	}
}

func TestParseWindowLimit(t *testing.T) {
	cases := []struct {
		name      string
		start     string
		end       string
		maxMonths int
		wantErr   bool
	}{
		{"within tight cap", "2025-06-01", "2025-08-01", 3, false},
		{"over tight cap", "2025-06-01", "2025-10-01", 3, true},
		{"zero cap falls back to twelve", "2025-01-01", "2025-12-01", 0, false},
		{"oversized cap clamps to twelve", "2025-01-01", "2026-02-01", 20, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := selection.ParseWindowLimit(tc.start, tc.end, tc.maxMonths)
			if tc.wantErr {
				var verr selection.ValidationError
				if !errors.As(err, &verr) || verr.Field != "selection_end" {
					t.Fatalf("error = %v, want ValidationError on selection_end", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
