package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"paddock/internal/config"
	"paddock/internal/db"
	"paddock/internal/domain"
	"paddock/internal/engine"
	"paddock/internal/migrate"
)

func TestEventFilterMatching(t *testing.T) {
	cases := []struct {
		name   string
		events []string
		evt    string
		want   bool
	}{
		{"empty list matches all", nil, "process.started", true},
		{"exact match", []string{"slot.claimed"}, "slot.claimed", true},
		{"exact mismatch", []string{"slot.claimed"}, "slot.released", false},
		{"dot-star prefix", []string{"process.*"}, "process.started", true},
		{"dot-star prefix mismatch", []string{"process.*"}, "slot.claimed", false},
		{"bare star matches all", []string{"*"}, "member.added", true},
		{"prefix without dot", []string{"slot*"}, "slot.created", true},
		{"mixed exact and prefix", []string{"stable.init", "turn.*"}, "turn.started", true},
		{"mixed miss", []string{"stable.init", "turn.*"}, "member.removed", false},
		{"blank entries ignored", []string{" ", ""}, "process.started", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := newEventFilter(tc.events).match(tc.evt); got != tc.want {
				t.Fatalf("match(%q) with %v = %v, want %v", tc.evt, tc.events, got, tc.want)
			}
		})
	}
}

func TestWebhookDispatchHonorsEventFilter(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("stable-1"))
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitStable(ctx, "stable-1", "test stable", "", "olivia"); err != nil {
		t.Fatalf("init stable: %v", err)
	}
	if _, err := eng.AddMember(ctx, "stable-1", domain.Member{UserID: "olivia", UserName: "olivia"}, "olivia"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := eng.AddRoutineInstances(ctx, engine.SlotCreateOptions{
		StableID: "stable-1",
		Title:    "morning feed",
		Dates:    []string{"2025-06-02"},
		ActorID:  "olivia",
	}); err != nil {
		t.Fatalf("add slots: %v", err)
	}

	var mu sync.Mutex
	var delivered []string
	hookSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			t.Errorf("decode delivery: %v", err)
		}
		if hdr := r.Header.Get("X-Paddock-Event"); hdr != evt.Type {
			t.Errorf("event header %q does not match body type %q", hdr, evt.Type)
		}
		mu.Lock()
		delivered = append(delivered, evt.Type)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hookSrv.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)
	d := &webhookDispatcher{
		engine:   eng,
		stable:   "stable-1",
		webhooks: []config.WebhookConfig{{URL: hookSrv.URL, Events: []string{"slot.*"}}},
		client:   &http.Client{Timeout: time.Second},
		log:      log,
		cursors:  map[int]int64{0: 0},
	}
	d.dispatchAll()

	mu.Lock()
	got := append([]string(nil), delivered...)
	mu.Unlock()
	if len(got) != 1 || got[0] != "slot.created" {
		t.Fatalf("deliveries = %v, want [slot.created]", got)
	}

	// Skipped events still advance the cursor so nothing is re-fetched.
	latest, err := eng.Repo.LatestEventID(ctx, "stable-1")
	if err != nil {
		t.Fatalf("latest event id: %v", err)
	}
	if cur := d.cursorFor(0); cur != latest {
		t.Fatalf("cursor = %d, want %d", cur, latest)
	}
}
