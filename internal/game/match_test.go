package game

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

func setPower(t *testing.T, svc *Service, id uuid.UUID, power int) {
	t.Helper()
	if _, err := svc.mutateTeam(context.Background(), id, func(t *Team) error {
		t.TeamPower = power
		return nil
	}); err != nil {
		t.Fatalf("set power: %v", err)
	}
}

func playMatch(t *testing.T, svc *Service, home, away uuid.UUID) *Match {
	t.Helper()
	ctx := context.Background()
	m, err := svc.CreateMatch(ctx, home, away)
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := svc.waitForMatches(waitCtx, []uuid.UUID{m.ID}); err != nil {
		t.Fatalf("wait for match: %v", err)
	}
	final, err := svc.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("get match: %v", err)
	}
	return final
}

func TestMatchStrongHomeAgainstWeakAway(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(t, clockwork.NewRealClock(), pub)
	ctx := context.Background()
	home := mustCreateTeam(t, svc, "Strong FC", "")
	away := mustCreateTeam(t, svc, "Weak FC", "")
	setPower(t, svc, home.ID, 80)
	setPower(t, svc, away.ID, 60)

	m := playMatch(t, svc, home.ID, away.ID)

	if m.ClockMinute != MatchMinutes || !m.IsFinished || m.Status() != MatchFinished {
		t.Fatalf("match not finished: minute=%d finished=%v", m.ClockMinute, m.IsFinished)
	}
	if !m.Settled() {
		t.Fatalf("match result not settled")
	}
	if m.Stadium != "Strong FC Stadium" || m.HomeTeamName != "Strong FC" || m.AwayTeamName != "Weak FC" {
		t.Fatalf("unexpected snapshot %+v", m)
	}
	if !slices.IsSortedFunc(m.Events, func(a, b MatchEvent) int { return a.Minute - b.Minute }) {
		t.Fatalf("events not sorted by minute")
	}
	goals := 0
	for _, ev := range m.Events {
		if ev.Minute < 1 || ev.Minute > MatchMinutes {
			t.Fatalf("event minute %d out of range", ev.Minute)
		}
		if ev.Type == EventGoal || (ev.Type == EventPenalty && ev.Converted) {
			goals++
		}
		if ev.PlayerName == "" || ev.Description == "" {
			t.Fatalf("event missing actor or description: %+v", ev)
		}
	}
	if m.Score.Home+m.Score.Away != goals {
		t.Fatalf("score %d-%d does not match %d scoring events", m.Score.Home, m.Score.Away, goals)
	}

	h, _ := svc.GetTeam(ctx, home.ID)
	a, _ := svc.GetTeam(ctx, away.ID)
	if h.League.MatchesPlayed != 1 || a.League.MatchesPlayed != 1 {
		t.Fatalf("matches played home=%d away=%d", h.League.MatchesPlayed, a.League.MatchesPlayed)
	}
	if h.League.GoalsFor != m.Score.Home || a.League.GoalsFor != m.Score.Away {
		t.Fatalf("goals not folded: home %+v away %+v score %+v", h.League, a.League, m.Score)
	}
	if h.League.Points+a.League.Points < 2 || h.League.Points+a.League.Points > 3 {
		t.Fatalf("points home=%d away=%d", h.League.Points, a.League.Points)
	}
	if h.Coins <= StarterCoins || a.Coins <= StarterCoins {
		t.Fatalf("match income not credited: home=%d away=%d", h.Coins, a.Coins)
	}

	updates := pub.For(m.ID)
	if len(updates) != MatchMinutes {
		t.Fatalf("published %d updates want %d", len(updates), MatchMinutes)
	}
	for i, u := range updates {
		if u.ClockMinute != i+1 {
			t.Fatalf("update %d has minute %d", i, u.ClockMinute)
		}
	}
	if !updates[len(updates)-1].IsFinished {
		t.Fatalf("last update not marked finished")
	}
}

func TestManyMatchesKeepStructure(t *testing.T) {
	svc, _ := newTestService(t, clockwork.NewRealClock(), nil)
	home := mustCreateTeam(t, svc, "Home Side", "")
	away := mustCreateTeam(t, svc, "Away Side", "")
	for i := 0; i < 20; i++ {
		m := playMatch(t, svc, home.ID, away.ID)
		if !m.IsFinished || m.ClockMinute != MatchMinutes {
			t.Fatalf("match %d not finished", i)
		}
	}
	h, _ := svc.GetTeam(context.Background(), home.ID)
	if h.League.MatchesPlayed != 20 {
		t.Fatalf("home played %d want 20", h.League.MatchesPlayed)
	}
}

func TestHomeProbability(t *testing.T) {
	tests := []struct {
		home, away int
		want       float64
	}{
		{home: 80, away: 60, want: 88.0 / 148.0},
		{home: 50, away: 50, want: 55.0 / 105.0},
		{home: 0, away: 0, want: 0.5},
		{home: 0, away: 70, want: 0},
	}
	for _, tc := range tests {
		got := homeProbability(tc.home, tc.away)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("homeProbability(%d,%d)=%f want %f", tc.home, tc.away, got, tc.want)
		}
	}
}

func TestRedCardPower(t *testing.T) {
	tests := []struct{ in, want int }{
		{in: 80, want: 75},
		{in: 53, want: 50},
		{in: 50, want: 50},
		{in: 42, want: 42},
	}
	for _, tc := range tests {
		if got := redCardPower(tc.in); got != tc.want {
			t.Fatalf("redCardPower(%d)=%d want %d", tc.in, got, tc.want)
		}
	}
}

func TestCreateMatchValidation(t *testing.T) {
	svc, _ := newTestService(t, clockwork.NewRealClock(), nil)
	team := mustCreateTeam(t, svc, "Solo FC", "")
	if _, err := svc.CreateMatch(context.Background(), team.ID, team.ID); err == nil {
		t.Fatalf("expected a team playing itself to fail")
	}
	if _, err := svc.CreateMatch(context.Background(), team.ID, uuid.New()); !errors.Is(err, ErrTeamNotFound) {
		t.Fatalf("expected ErrTeamNotFound, got %v", err)
	}
}

func TestShutdownStopsAndResumeFinishes(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	store := NewMemoryStore()
	opts := Options{Clock: clock, TickInterval: time.Second, Seed: 99}
	svc := NewService(store, nil, opts)
	ctx := context.Background()
	home, _ := svc.CreateTeam(ctx, "Paused Home", "")
	away, _ := svc.CreateTeam(ctx, "Paused Away", "")

	m, err := svc.CreateMatch(ctx, home.ID, away.ID)
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := clock.BlockUntilContext(ctx, 1); err != nil {
			t.Fatalf("block: %v", err)
		}
		clock.Advance(time.Second)
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	paused, _ := store.GetMatch(ctx, m.ID)
	if paused.IsFinished || paused.ClockMinute < 2 || paused.ClockMinute > 3 {
		t.Fatalf("unexpected paused state minute=%d finished=%v", paused.ClockMinute, paused.IsFinished)
	}

	resumedSvc := NewService(store, nil, Options{Clock: clockwork.NewRealClock(), Seed: 100})
	n, err := resumedSvc.ResumeUnfinished(ctx)
	if err != nil || n != 1 {
		t.Fatalf("resume n=%d err=%v", n, err)
	}
	waitCtx, cancelWait := context.WithTimeout(ctx, 10*time.Second)
	defer cancelWait()
	if err := resumedSvc.waitForMatches(waitCtx, []uuid.UUID{m.ID}); err != nil {
		t.Fatalf("wait: %v", err)
	}
	done, _ := store.GetMatch(ctx, m.ID)
	if !done.IsFinished || done.ClockMinute != MatchMinutes || !done.Settled() {
		t.Fatalf("resumed match not completed: %+v", done)
	}
	if !slices.IsSortedFunc(done.Events, func(a, b MatchEvent) int { return a.Minute - b.Minute }) {
		t.Fatalf("events out of order after resume")
	}
	_ = resumedSvc.Shutdown(shutdownCtx)
}
