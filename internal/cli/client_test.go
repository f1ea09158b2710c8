package cli

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kickoff/internal/api"
	"kickoff/internal/config"
	"kickoff/internal/game"
	"kickoff/internal/live"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

func newTestAPI(t *testing.T) (*Client, *clockwork.FakeClock) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	hub := live.NewHub(logger)
	svc := game.NewService(game.NewMemoryStore(), logger, game.Options{
		Clock:        clock,
		Publisher:    hub,
		TickInterval: time.Second,
		Seed:         5,
	})
	srv := httptest.NewServer(api.New(config.Config{}, logger, svc, hub, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
		hub.Close()
	})
	return NewClient(srv.URL + "/"), clock
}

func TestClientTeamFlow(t *testing.T) {
	c, clock := newTestAPI(t)
	ctx := context.Background()

	team, err := c.CreateTeam(ctx, "Client United", "local-1")
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	if team.League.Tier != game.TierLocal1 || len(team.Roster) != 11 {
		t.Fatalf("unexpected team %+v", team.League)
	}

	clock.Advance(3 * time.Hour)
	facilities, err := c.Facilities(ctx, team.ID)
	if err != nil || len(facilities) != len(game.FacilityTypes()) {
		t.Fatalf("facilities=%v err=%v", facilities, err)
	}
	collected, err := c.Collect(ctx, team.ID, game.FacilityTVRights)
	if err != nil || collected.Collected <= 0 {
		t.Fatalf("collect=%+v err=%v", collected, err)
	}
	up, err := c.Upgrade(ctx, team.ID, game.FacilityYouthCamp)
	if err != nil || up.Level != 2 {
		t.Fatalf("upgrade=%+v err=%v", up, err)
	}
	youth, err := c.Recruit(ctx, team.ID)
	if err != nil || youth.Age != game.YouthRecruitAge {
		t.Fatalf("recruit=%+v err=%v", youth, err)
	}
	remaining, err := c.Fire(ctx, team.ID, youth.ID)
	if err != nil || remaining != game.MonthlyFireLimit-1 {
		t.Fatalf("fire remaining=%d err=%v", remaining, err)
	}
	rows, err := c.LeagueTable(ctx, "local-1")
	if err != nil || len(rows) != 1 || rows[0].TeamID != team.ID {
		t.Fatalf("rows=%+v err=%v", rows, err)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	c, _ := newTestAPI(t)
	ctx := context.Background()

	_, err := c.Team(ctx, uuid.New())
	if StatusOf(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
	_, err = c.CreateTeam(ctx, "no", "")
	if StatusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
	if err := c.RunJob(ctx, "token", "economyTick"); StatusOf(err) != http.StatusNotFound {
		t.Fatalf("expected disabled admin to 404, got %v", err)
	}
}

func TestClientWatchMatch(t *testing.T) {
	c, clock := newTestAPI(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	home, err := c.CreateTeam(ctx, "Watch Home", "")
	if err != nil {
		t.Fatalf("create home: %v", err)
	}
	away, err := c.CreateTeam(ctx, "Watch Away", "")
	if err != nil {
		t.Fatalf("create away: %v", err)
	}
	m, err := c.CreateMatch(ctx, home.ID, away.ID)
	if err != nil {
		t.Fatalf("create match: %v", err)
	}

	var types []string
	err = c.WatchMatch(ctx, m.ID, func(msg live.Message) error {
		types = append(types, msg.Type)
		if finished(msg) {
			return nil
		}
		if err := clock.BlockUntilContext(ctx, 1); err != nil {
			return err
		}
		clock.Advance(time.Second)
		return nil
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if len(types) != game.MatchMinutes+1 || types[0] != live.MessageSnapshot {
		t.Fatalf("received %d messages, first %v", len(types), types[:1])
	}
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct{ base, want string }{
		{base: "http://localhost:8080", want: "ws://localhost:8080/x"},
		{base: "https://kickoff.example.com", want: "wss://kickoff.example.com/x"},
	}
	for _, tc := range tests {
		got, err := websocketURL(tc.base, "/x")
		if err != nil || got != tc.want {
			t.Fatalf("websocketURL(%s)=%s err=%v", tc.base, got, err)
		}
	}
	if _, err := websocketURL("ftp://host", "/x"); err == nil {
		t.Fatalf("expected unsupported scheme to fail")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Setenv("KICK_HOME", t.TempDir())
	if _, err := LoadSession(); err == nil {
		t.Fatalf("expected missing session to fail")
	}
	want := Session{TeamID: uuid.New(), TeamName: "Saved FC"}
	if err := SaveSession(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadSession()
	if err != nil || got != want {
		t.Fatalf("load=%+v err=%v", got, err)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := LoadSession(); err == nil {
		t.Fatalf("expected cleared session to fail")
	}
}
