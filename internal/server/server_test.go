package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"paddock/internal/config"
	"paddock/internal/db"
	"paddock/internal/engine"
	"paddock/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("stable-1"))
	e.Now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func asOlivia() map[string]string { return map[string]string{"X-Actor-Id": "olivia"} }
func asMia() map[string]string    { return map[string]string{"X-Actor-Id": "mia"} }

// seedStable creates the stable, two members and two open slots over HTTP,
// returning the slot IDs.
func seedStable(t *testing.T, srv *testServer) []string {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/stables", map[string]any{
		"id":   "stable-1",
		"name": "test stable",
	}, asOlivia())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create stable: %d %s", res.StatusCode, string(data))
	}
	for _, userID := range []string{"olivia", "mia"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/stables/stable-1/members", map[string]any{
			"user_id":   userID,
			"user_name": "name-" + userID,
		}, asOlivia())
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("add member %s: %d %s", userID, res.StatusCode, string(data))
		}
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/stables/stable-1/slots", map[string]any{
		"title": "morning feed",
		"dates": []string{"2025-06-02", "2025-06-03"},
	}, asOlivia())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create slots: %d %s", res.StatusCode, string(data))
	}
	var slots []SlotResponse
	if err := json.Unmarshal(data, &slots); err != nil {
		t.Fatalf("unmarshal slots: %v", err)
	}
	ids := make([]string, len(slots))
	for i, s := range slots {
		ids[i] = s.ID
	}
	return ids
}

func TestSelectionFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	slotIDs := seedStable(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/stables/stable-1/processes", map[string]any{
		"name":            "june rotation",
		"algorithm":       "manual",
		"selection_start": "2025-06-01",
		"selection_end":   "2025-06-30",
		"order":           []string{"mia", "olivia"},
	}, asOlivia())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create process: %d %s", res.StatusCode, string(data))
	}
	var created ProcessResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal process: %v", err)
	}
	if created.Status != "draft" {
		t.Fatalf("status after create = %q", created.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/processes/"+created.ID+"/start", nil, asOlivia())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start: %d %s", res.StatusCode, string(data))
	}
	var started ProcessResponse
	_ = json.Unmarshal(data, &started)
	if started.Status != "active" || len(started.Turns) != 2 || started.Turns[0].UserID != "mia" {
		t.Fatalf("unexpected process after start: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/processes/"+created.ID+"/turns", nil, asMia())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list turns: %d %s", res.StatusCode, string(data))
	}
	var turns []TurnResponse
	_ = json.Unmarshal(data, &turns)
	if len(turns) != 2 || turns[0].Status != "active" {
		t.Fatalf("unexpected turns: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/processes/"+created.ID+"/claims", map[string]any{
		"slot_id": slotIDs[0],
	}, asMia())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("claim: %d %s", res.StatusCode, string(data))
	}
	var claimed SlotResponse
	_ = json.Unmarshal(data, &claimed)
	if claimed.AssignedTo == nil || *claimed.AssignedTo != "mia" || claimed.Status != "assigned" {
		t.Fatalf("slot not assigned: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/processes/"+created.ID+"/complete-turn", nil, asMia())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete turn: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/processes/"+created.ID+"/complete-turn", nil, asOlivia())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("final turn: %d %s", res.StatusCode, string(data))
	}
	var done ProcessResponse
	_ = json.Unmarshal(data, &done)
	if done.Status != "completed" {
		t.Fatalf("expected completed process, got %s", string(data))
	}

	// member listing carries the claim points
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/stables/stable-1/members", nil, asMia())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list members: %d %s", res.StatusCode, string(data))
	}
	var members []MemberResponse
	_ = json.Unmarshal(data, &members)
	for _, m := range members {
		if m.UserID == "mia" && m.Points != 1 {
			t.Fatalf("mia points = %d, want 1", m.Points)
		}
	}
}

func TestClaimRejectionEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	slotIDs := seedStable(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/stables/stable-1/processes", map[string]any{
		"name":            "envelope run",
		"algorithm":       "manual",
		"selection_start": "2025-06-01",
		"selection_end":   "2025-06-30",
		"order":           []string{"mia", "olivia"},
	}, asOlivia())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create process: %d %s", res.StatusCode, string(data))
	}
	var p ProcessResponse
	_ = json.Unmarshal(data, &p)

	// claims before start are rejected with the reason in details
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/processes/"+p.ID+"/claims", map[string]any{
		"slot_id": slotIDs[0],
	}, asMia())
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("claim on draft: %d %s", res.StatusCode, string(data))
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "claim_rejected" || envelope.Error.Details["reason"] != "process_not_active" {
		t.Fatalf("unexpected envelope: %s", string(data))
	}

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/processes/"+p.ID+"/start", nil, asOlivia())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start: %d", res.StatusCode)
	}
	// wrong turn holder
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/processes/"+p.ID+"/claims", map[string]any{
		"slot_id": slotIDs[0],
	}, asOlivia())
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("claim out of turn: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Details["reason"] != "not_your_turn" {
		t.Fatalf("unexpected reason: %s", string(data))
	}

	// editing after start is an invalid state, not a validation problem
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/processes/"+p.ID, map[string]any{
		"name": "renamed",
	}, asOlivia())
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("update active: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "invalid_state" {
		t.Fatalf("unexpected code: %s", string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/stables", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("unexpected code: %s", string(data))
	}

	// health stays open
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", res.StatusCode)
	}
}

func TestDevLoginMintsUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	// dev login is reachable without prior credentials
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "olivia",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("unmarshal token: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/stables", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("jwt request: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/stables", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage jwt: %d %s", res.StatusCode, string(data))
	}
}

func TestEventsPaginationWalk(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	seedStable(t, srv)

	// One big page is the reference list.
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/stables/stable-1/events?limit=50", nil, asOlivia())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list events: %d %s", res.StatusCode, string(data))
	}
	var all paginatedEvents
	if err := json.Unmarshal(data, &all); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(all.Items) < 5 {
		t.Fatalf("want at least 5 seeded events, got %d", len(all.Items))
	}

	seen := make(map[int64]bool)
	var walked []int64
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > len(all.Items) {
			t.Fatalf("cursor walk did not terminate")
		}
		url := srv.URL + "/v0/stables/stable-1/events?limit=2"
		if cursor != "" {
			url += "&cursor=" + cursor
		}
		res, data := doJSON(t, client, http.MethodGet, url, nil, asOlivia())
		if res.StatusCode != http.StatusOK {
			t.Fatalf("fetch page: %d %s", res.StatusCode, string(data))
		}
		var page paginatedEvents
		if err := json.Unmarshal(data, &page); err != nil {
			t.Fatalf("unmarshal page: %v", err)
		}
		for _, evt := range page.Items {
			if seen[evt.ID] {
				t.Fatalf("event %d returned twice", evt.ID)
			}
			seen[evt.ID] = true
			walked = append(walked, evt.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if len(walked) != len(all.Items) {
		t.Fatalf("walk returned %d events, want %d", len(walked), len(all.Items))
	}
	for i, evt := range all.Items {
		if walked[i] != evt.ID {
			t.Fatalf("walk order mismatch at %d: got %d want %d", i, walked[i], evt.ID)
		}
	}
}
