package selection

import (
	"fmt"
	"sort"
	"time"

	"paddock/internal/domain"
)

// DateLayout is the civil-date format used for selection windows and slot
// scheduled dates.
const DateLayout = "2006-01-02"

// MaxWindowMonths is the hard ceiling on a selection window's span. Stables
// may configure a tighter cap, never a looser one.
const MaxWindowMonths = 12

// Algorithm selects the turn-ordering strategy. Each variant carries exactly
// the data it needs, so missing inputs fail loudly instead of being defaulted.
type Algorithm interface {
	Name() string
	isAlgorithm()
}

// Manual preserves an explicit member ordering verbatim.
type Manual struct {
	Order []domain.Member
}

func (Manual) Name() string { return "manual" }
func (Manual) isAlgorithm() {}

// QuotaBased assigns each member a target share of the available slots;
// members with smaller quotas go first.
type QuotaBased struct {
	AvailableSlots int
}

func (QuotaBased) Name() string { return "quota_based" }
func (QuotaBased) isAlgorithm() {}

// PointsBalance orders members ascending by accumulated points, so members
// with the lowest balance pick first.
type PointsBalance struct {
	Points map[string]int
}

func (PointsBalance) Name() string { return "points_balance" }
func (PointsBalance) isAlgorithm() {}

// FairRotation orders members by how long ago their last turn was. A nil
// timestamp means the member never had a turn and goes first.
type FairRotation struct {
	LastTurn map[string]*time.Time
}

func (FairRotation) Name() string { return "fair_rotation" }
func (FairRotation) isAlgorithm() {}

// AlgorithmNames lists the valid algorithm tags.
var AlgorithmNames = []string{"manual", "quota_based", "points_balance", "fair_rotation"}

// Window is the selection date window, inclusive on both ends.
type Window struct {
	Start time.Time
	End   time.Time
}

// ParseWindow validates and parses a selection window. The window must be two
// valid dates with start strictly before end and a span of at most 12 months.
func ParseWindow(start, end string) (Window, error) {
	return ParseWindowLimit(start, end, MaxWindowMonths)
}

// ParseWindowLimit is ParseWindow with a caller-chosen month cap, clamped to
// MaxWindowMonths. Zero or negative means the default cap.
func ParseWindowLimit(start, end string, maxMonths int) (Window, error) {
	if maxMonths <= 0 || maxMonths > MaxWindowMonths {
		maxMonths = MaxWindowMonths
	}
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return Window{}, ValidationError{Field: "selection_start", Reason: "invalid date, want YYYY-MM-DD"}
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return Window{}, ValidationError{Field: "selection_end", Reason: "invalid date, want YYYY-MM-DD"}
	}
	if !s.Before(e) {
		return Window{}, ValidationError{Field: "selection_end", Reason: "must be after selection_start"}
	}
	if e.After(s.AddDate(0, maxMonths, 0)) {
		return Window{}, ValidationError{Field: "selection_end", Reason: fmt.Sprintf("window must span at most %d months", maxMonths)}
	}
	return Window{Start: s, End: e}, nil
}

// Contains reports whether the given date (YYYY-MM-DD) falls inside the window.
func (w Window) Contains(date string) bool {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return false
	}
	return !d.Before(w.Start) && !d.After(w.End)
}

// Result is the outcome of a turn-order computation.
type Result struct {
	Turns []domain.SelectionProcessTurn
	// Quotas is set for quota_based only: target slot count per user id.
	Quotas map[string]int
	// Degenerate flags a valid but empty-handed outcome, e.g. more members
	// than available slots leaving someone with a quota of zero.
	Degenerate bool
}

// Compute produces the ordered turn sequence for one selection process. It is
// pure: identical inputs always yield identical output, and the caller's
// slices and maps are never mutated.
func Compute(alg Algorithm, members []domain.Member, window Window) (Result, error) {
	switch a := alg.(type) {
	case Manual:
		return computeManual(a)
	case QuotaBased:
		return computeQuota(a, members)
	case PointsBalance:
		return computePoints(a, members)
	case FairRotation:
		return computeRotation(a, members)
	default:
		return Result{}, ValidationError{Field: "algorithm", Reason: "unknown algorithm"}
	}
}

func computeManual(a Manual) (Result, error) {
	if len(a.Order) == 0 {
		return Result{}, ValidationError{Field: "member_order", Reason: "must not be empty"}
	}
	if dup := firstDuplicate(a.Order); dup != "" {
		return Result{}, ValidationError{Field: "member_order", Reason: fmt.Sprintf("duplicate user id %s", dup)}
	}
	return Result{Turns: turnsFrom(a.Order)}, nil
}

func computeQuota(a QuotaBased, members []domain.Member) (Result, error) {
	if err := checkRoster(members); err != nil {
		return Result{}, err
	}
	if a.AvailableSlots <= 0 {
		return Result{}, ValidationError{Field: "available_slots", Reason: "window contains no available slots"}
	}
	ordered := sortedCopy(members, func(x, y domain.Member) bool { return x.UserID < y.UserID })
	base := a.AvailableSlots / len(ordered)
	remainder := a.AvailableSlots % len(ordered)
	quotas := make(map[string]int, len(ordered))
	for i, m := range ordered {
		q := base
		if i < remainder {
			q++
		}
		quotas[m.UserID] = q
	}
	// Smaller quotas first, so members with little to claim finish quickly
	// and free the remaining slots.
	sort.SliceStable(ordered, func(i, j int) bool {
		if quotas[ordered[i].UserID] != quotas[ordered[j].UserID] {
			return quotas[ordered[i].UserID] < quotas[ordered[j].UserID]
		}
		return ordered[i].UserID < ordered[j].UserID
	})
	turns := turnsFrom(ordered)
	degenerate := false
	for i := range turns {
		q := quotas[turns[i].UserID]
		turns[i].Quota = &q
		if q == 0 {
			degenerate = true
		}
	}
	return Result{Turns: turns, Quotas: quotas, Degenerate: degenerate}, nil
}

func computePoints(a PointsBalance, members []domain.Member) (Result, error) {
	if err := checkRoster(members); err != nil {
		return Result{}, err
	}
	if a.Points == nil {
		return Result{}, InvalidInputError{Field: "points"}
	}
	for _, m := range members {
		if _, ok := a.Points[m.UserID]; !ok {
			return Result{}, InvalidInputError{Field: fmt.Sprintf("points[%s]", m.UserID)}
		}
	}
	ordered := sortedCopy(members, func(x, y domain.Member) bool {
		if a.Points[x.UserID] != a.Points[y.UserID] {
			return a.Points[x.UserID] < a.Points[y.UserID]
		}
		return x.UserID < y.UserID
	})
	return Result{Turns: turnsFrom(ordered)}, nil
}

func computeRotation(a FairRotation, members []domain.Member) (Result, error) {
	if err := checkRoster(members); err != nil {
		return Result{}, err
	}
	if a.LastTurn == nil {
		return Result{}, InvalidInputError{Field: "last_turn"}
	}
	for _, m := range members {
		if _, ok := a.LastTurn[m.UserID]; !ok {
			return Result{}, InvalidInputError{Field: fmt.Sprintf("last_turn[%s]", m.UserID)}
		}
	}
	ordered := sortedCopy(members, func(x, y domain.Member) bool {
		lx, ly := a.LastTurn[x.UserID], a.LastTurn[y.UserID]
		switch {
		case lx == nil && ly == nil:
			return x.UserID < y.UserID
		case lx == nil:
			return true
		case ly == nil:
			return false
		case !lx.Equal(*ly):
			return lx.Before(*ly)
		default:
			return x.UserID < y.UserID
		}
	})
	return Result{Turns: turnsFrom(ordered)}, nil
}

func checkRoster(members []domain.Member) error {
	if len(members) == 0 {
		return ValidationError{Field: "members", Reason: "must not be empty"}
	}
	if dup := firstDuplicate(members); dup != "" {
		return ValidationError{Field: "members", Reason: fmt.Sprintf("duplicate user id %s", dup)}
	}
	return nil
}

func firstDuplicate(members []domain.Member) string {
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if seen[m.UserID] {
			return m.UserID
		}
		seen[m.UserID] = true
	}
	return ""
}

func sortedCopy(members []domain.Member, less func(x, y domain.Member) bool) []domain.Member {
	out := make([]domain.Member, len(members))
	copy(out, members)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func turnsFrom(members []domain.Member) []domain.SelectionProcessTurn {
	turns := make([]domain.SelectionProcessTurn, len(members))
	for i, m := range members {
		turns[i] = domain.SelectionProcessTurn{
			Order:     i + 1,
			UserID:    m.UserID,
			UserName:  m.UserName,
			UserEmail: m.UserEmail,
			Status:    "pending",
		}
	}
	return turns
}
