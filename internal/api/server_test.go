package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"kickoff/internal/config"
	"kickoff/internal/game"
	"kickoff/internal/live"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

type fakeJobs struct {
	mu   sync.Mutex
	ran  []string
	done chan string
}

func (f *fakeJobs) Names() []string {
	return []string{"dailyMaintenance", "economyTick", "leagueSweep"}
}

func (f *fakeJobs) RunOnce(_ context.Context, name string) error {
	f.mu.Lock()
	f.ran = append(f.ran, name)
	f.mu.Unlock()
	f.done <- name
	return nil
}

type testEnv struct {
	svc     *game.Service
	handler http.Handler
	jobs    *fakeJobs
	clock   *clockwork.FakeClock
	hub     *live.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	hub := live.NewHub(logger)
	svc := game.NewService(game.NewMemoryStore(), logger, game.Options{
		Clock:        clock,
		Publisher:    hub,
		TickInterval: time.Minute,
		Seed:         42,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
		hub.Close()
	})
	jobs := &fakeJobs{done: make(chan string, 4)}
	srv := New(config.Config{AdminToken: "secret"}, logger, svc, hub, jobs)
	return &testEnv{svc: svc, handler: srv.Handler(), jobs: jobs, clock: clock, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		buf = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		buf = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func (e *testEnv) createTeam(t *testing.T, name, tier string) string {
	t.Helper()
	rec, out := e.do(t, http.MethodPost, "/v1/teams", map[string]string{"name": name, "tier": tier})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create team status=%d body=%s", rec.Code, rec.Body.String())
	}
	return out["id"].(string)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec, out := env.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || out["ok"] != true {
		t.Fatalf("status=%d body=%v", rec.Code, out)
	}
}

func TestTeamLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := env.createTeam(t, "Harbour Town", "")

	rec, team := env.do(t, http.MethodGet, "/v1/teams/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get team status=%d", rec.Code)
	}
	if team["name"] != "Harbour Town" || len(team["roster"].([]any)) != 11 {
		t.Fatalf("unexpected team %v", team)
	}

	rec, facilities := env.do(t, http.MethodGet, "/v1/teams/"+id+"/facilities", nil)
	if rec.Code != http.StatusOK || len(facilities["facilities"].([]any)) != 4 {
		t.Fatalf("facilities status=%d body=%v", rec.Code, facilities)
	}

	env.clock.Advance(2 * time.Hour)
	rec, collected := env.do(t, http.MethodPost, "/v1/teams/"+id+"/facilities/sponsor/collect", nil)
	if rec.Code != http.StatusOK || collected["collected"].(float64) <= 0 {
		t.Fatalf("collect status=%d body=%v", rec.Code, collected)
	}

	rec, upgraded := env.do(t, http.MethodPost, "/v1/teams/"+id+"/facilities/stadium/upgrade", nil)
	if rec.Code != http.StatusOK || upgraded["level"].(float64) != 2 {
		t.Fatalf("upgrade status=%d body=%v", rec.Code, upgraded)
	}

	rec, _ = env.do(t, http.MethodPost, "/v1/teams/"+id+"/players/recruit", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("recruit status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, signed := env.do(t, http.MethodPost, "/v1/teams/"+id+"/players/sign",
		map[string]any{"name": "Luca Ferri", "age": 27, "overall": 78, "position": "MF", "cost": 1500})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sign status=%d body=%s", rec.Code, rec.Body.String())
	}
	playerID := signed["id"].(string)

	rec, renewed := env.do(t, http.MethodPost, "/v1/teams/"+id+"/players/"+playerID+"/renew", nil)
	if rec.Code != http.StatusOK || renewed["cost"].(float64) != 500 {
		t.Fatalf("renew status=%d body=%v", rec.Code, renewed)
	}

	rec, _ = env.do(t, http.MethodPost, "/v1/teams/"+id+"/coach/renew", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("renew coach status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, fired := env.do(t, http.MethodDelete, "/v1/teams/"+id+"/players/"+playerID, nil)
	if rec.Code != http.StatusOK || fired["remaining_fires"].(float64) != 2 {
		t.Fatalf("fire status=%d body=%v", rec.Code, fired)
	}
}

func TestDomainErrorsMapToStatus(t *testing.T) {
	env := newTestEnv(t)
	id := env.createTeam(t, "Error Athletic", "")

	var roster []string
	{
		_, team := env.do(t, http.MethodGet, "/v1/teams/"+id, nil)
		for _, p := range team["roster"].([]any) {
			roster = append(roster, p.(map[string]any)["id"].(string))
		}
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{name: "bad team id", method: http.MethodGet, path: "/v1/teams/not-a-uuid", want: http.StatusBadRequest},
		{name: "unknown team", method: http.MethodGet, path: "/v1/teams/" + uuid.NewString(), want: http.StatusNotFound},
		{name: "invalid name", method: http.MethodPost, path: "/v1/teams", body: map[string]string{"name": "x"}, want: http.StatusUnprocessableEntity},
		{name: "unknown field", method: http.MethodPost, path: "/v1/teams", body: `{"name":"Valid Name","colour":"red"}`, want: http.StatusBadRequest},
		{name: "unknown facility", method: http.MethodPost, path: "/v1/teams/" + id + "/facilities/casino/collect", want: http.StatusUnprocessableEntity},
		{name: "invalid tier", method: http.MethodGet, path: "/v1/leagues/sunday/table", want: http.StatusUnprocessableEntity},
		{name: "unknown player", method: http.MethodPost, path: "/v1/teams/" + id + "/players/" + uuid.NewString() + "/renew", want: http.StatusNotFound},
		{name: "invalid signing", method: http.MethodPost, path: "/v1/teams/" + id + "/players/sign",
			body: map[string]any{"name": "Old Timer", "age": 45, "overall": 60, "position": "DF"}, want: http.StatusUnprocessableEntity},
		{name: "unaffordable signing", method: http.MethodPost, path: "/v1/teams/" + id + "/players/sign",
			body: map[string]any{"name": "Galactico", "age": 25, "overall": 95, "position": "FW", "cost": 5_000_000}, want: http.StatusPaymentRequired},
		{name: "self match", method: http.MethodPost, path: "/v1/matches",
			body: map[string]string{"home_team_id": id, "away_team_id": id}, want: http.StatusUnprocessableEntity},
		{name: "unknown match", method: http.MethodGet, path: "/v1/matches/" + uuid.NewString(), want: http.StatusNotFound},
		{name: "bad limit", method: http.MethodGet, path: "/v1/matches/live?limit=-3", want: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, out := env.do(t, tc.method, tc.path, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status=%d want %d body=%s", rec.Code, tc.want, rec.Body.String())
			}
			if _, ok := out["error"]; !ok {
				t.Fatalf("error body missing: %s", rec.Body.String())
			}
		})
	}

	for i := 0; i < game.MonthlyFireLimit; i++ {
		rec, _ := env.do(t, http.MethodDelete, "/v1/teams/"+id+"/players/"+roster[i+1], nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("fire %d status=%d body=%s", i, rec.Code, rec.Body.String())
		}
	}
	rec, _ := env.do(t, http.MethodDelete, "/v1/teams/"+id+"/players/"+roster[5], nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("fire over limit status=%d want 409", rec.Code)
	}
}

func TestLeagueEndpoints(t *testing.T) {
	env := newTestEnv(t)
	a := env.createTeam(t, "North End", "provincial-1")
	b := env.createTeam(t, "South End", "provincial-1")

	rec, leagues := env.do(t, http.MethodGet, "/v1/leagues", nil)
	if rec.Code != http.StatusOK || len(leagues["leagues"].([]any)) != len(game.Tiers()) {
		t.Fatalf("leagues status=%d body=%v", rec.Code, leagues)
	}

	rec, table := env.do(t, http.MethodGet, "/v1/leagues/Provincial-1/table", nil)
	if rec.Code != http.StatusOK || len(table["rows"].([]any)) != 2 {
		t.Fatalf("table status=%d body=%v", rec.Code, table)
	}

	rec, moved := env.do(t, http.MethodPost, "/v1/teams/"+b+"/league", map[string]string{"tier": "premier-3"})
	if rec.Code != http.StatusOK {
		t.Fatalf("register status=%d body=%s", rec.Code, rec.Body.String())
	}
	if moved["league"].(map[string]any)["tier"] != "premier-3" {
		t.Fatalf("team not moved: %v", moved["league"])
	}
	_, table = env.do(t, http.MethodGet, "/v1/leagues/provincial-1/table", nil)
	rows := table["rows"].([]any)
	if len(rows) != 1 || rows[0].(map[string]any)["team_id"] != a {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestAdminJobTrigger(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/v1/admin/jobs/economyTick/run", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status=%d", rec.Code)
	}
	rec, _ = env.do(t, http.MethodPost, "/v1/admin/jobs/economyTick/run", nil, "Authorization", "Bearer nope")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("bad token status=%d", rec.Code)
	}
	rec, _ = env.do(t, http.MethodPost, "/v1/admin/jobs/teaTime/run", nil, "Authorization", "Bearer secret")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job status=%d", rec.Code)
	}
	rec, out := env.do(t, http.MethodPost, "/v1/admin/jobs/economyTick/run", nil, "Authorization", "Bearer secret")
	if rec.Code != http.StatusAccepted || out["job"] != "economyTick" {
		t.Fatalf("trigger status=%d body=%v", rec.Code, out)
	}
	select {
	case name := <-env.jobs.done:
		if name != "economyTick" {
			t.Fatalf("ran %s", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("job never ran")
	}
	rec, list := env.do(t, http.MethodGet, "/v1/admin/jobs", nil, "Authorization", "Bearer secret")
	if rec.Code != http.StatusOK || len(list["jobs"].([]any)) != 3 {
		t.Fatalf("list status=%d body=%v", rec.Code, list)
	}
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := game.NewService(game.NewMemoryStore(), logger, game.Options{Seed: 1})
	defer func() { _ = svc.Shutdown(context.Background()) }()
	h := New(config.Config{}, logger, svc, nil, &fakeJobs{done: make(chan string, 1)}).Handler()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/jobs/economyTick/run", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", rec.Code)
	}
}

func TestMatchEndpointsAndLiveFeed(t *testing.T) {
	env := newTestEnv(t)
	home := env.createTeam(t, "Feed Rovers", "")
	away := env.createTeam(t, "Feed City", "")

	rec, created := env.do(t, http.MethodPost, "/v1/matches", map[string]string{"home_team_id": home, "away_team_id": away})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create match status=%d body=%s", rec.Code, rec.Body.String())
	}
	matchID := created["id"].(string)
	if created["stadium"] != "Feed Rovers Stadium" {
		t.Fatalf("unexpected stadium %v", created["stadium"])
	}

	rec, liveList := env.do(t, http.MethodGet, "/v1/matches/live", nil)
	if rec.Code != http.StatusOK || len(liveList["matches"].([]any)) != 1 {
		t.Fatalf("live status=%d body=%v", rec.Code, liveList)
	}

	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/matches/" + matchID + "/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snapshot live.Message
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.Type != live.MessageSnapshot || snapshot.MatchID.String() != matchID {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	if err := env.clock.BlockUntilContext(context.Background(), 1); err != nil {
		t.Fatalf("block: %v", err)
	}
	env.clock.Advance(time.Minute)
	var update live.Message
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if update.Type != live.MessageUpdate {
		t.Fatalf("unexpected update %+v", update)
	}
	if minute := update.Payload.(map[string]any)["clock_minute"].(float64); minute != 1 {
		t.Fatalf("clock minute=%v want 1", minute)
	}
}
