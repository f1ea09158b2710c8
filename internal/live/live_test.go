package live

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"kickoff/internal/game"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func TestHubStreamsSnapshotThenUpdates(t *testing.T) {
	hub := NewHub(quietLogger())
	defer hub.Close()
	matchID := uuid.New()
	snapshot := &game.Match{ID: matchID, HomeTeamName: "Home", AwayTeamName: "Away", ClockMinute: 12}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := hub.ServeWS(w, r, matchID, snapshot); err != nil {
			t.Errorf("serve ws: %v", err)
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	first := readMessage(t, conn)
	if first.Type != MessageSnapshot || first.MatchID != matchID {
		t.Fatalf("unexpected first message %+v", first)
	}
	if hub.Subscribers(matchID) != 1 {
		t.Fatalf("subscribers=%d want 1", hub.Subscribers(matchID))
	}

	other := uuid.New()
	_ = hub.Publish(context.Background(), other, game.MatchUpdate{MatchID: other, ClockMinute: 1})
	update := game.MatchUpdate{MatchID: matchID, ClockMinute: 13, Score: game.Score{Home: 1}}
	if err := hub.Publish(context.Background(), matchID, update); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got := readMessage(t, conn)
	if got.Type != MessageUpdate || got.MatchID != matchID {
		t.Fatalf("unexpected update %+v", got)
	}
	payload, _ := json.Marshal(got.Payload)
	var decoded game.MatchUpdate
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.ClockMinute != 13 || decoded.Score.Home != 1 {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(quietLogger())
	if err := hub.Publish(context.Background(), uuid.New(), game.MatchUpdate{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestHubDropsForFullClient(t *testing.T) {
	hub := NewHub(quietLogger())
	id := uuid.New()
	c := &client{hub: hub, send: make(chan []byte, 1), room: id}
	hub.register(c)
	for i := 0; i < 3; i++ {
		if err := hub.Publish(context.Background(), id, game.MatchUpdate{MatchID: id, ClockMinute: i}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if len(c.send) != 1 {
		t.Fatalf("buffered=%d want 1", len(c.send))
	}
	hub.unregister(c)
	if hub.Subscribers(id) != 0 {
		t.Fatalf("room not removed")
	}
	if c.offer([]byte("x")) {
		t.Fatalf("closed client accepted a message")
	}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, channelID+"|"+content)
	return &discordgo.Message{}, f.err
}

type fakeMatches map[uuid.UUID]*game.Match

func (f fakeMatches) GetMatch(_ context.Context, id uuid.UUID) (*game.Match, error) {
	m, ok := f[id]
	if !ok {
		return nil, game.ErrMatchNotFound
	}
	return m, nil
}

func TestDiscordAnnouncesFinalScoreOnly(t *testing.T) {
	id := uuid.New()
	m := &game.Match{
		ID:           id,
		HomeTeamName: "Rovers",
		AwayTeamName: "United",
		Tier:         game.TierStars,
		Score:        game.Score{Home: 2, Away: 1},
		Events: []game.MatchEvent{
			{Minute: 10, Type: game.EventGoal, PlayerName: "Ada"},
			{Minute: 44, Type: game.EventPenalty, PlayerName: "Bo", Converted: true},
			{Minute: 60, Type: game.EventPenalty, PlayerName: "Cy"},
			{Minute: 80, Type: game.EventGoal, PlayerName: "Di"},
		},
		IsFinished: true,
	}
	sender := &fakeSender{}
	d := newDiscordAnnouncer(sender, "chan-1", fakeMatches{id: m}, quietLogger())

	_ = d.Publish(context.Background(), id, game.MatchUpdate{MatchID: id, ClockMinute: 45})
	_ = d.Publish(context.Background(), id, game.MatchUpdate{MatchID: id, ClockMinute: 90, IsFinished: true})
	d.Wait()

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages want 1", len(sender.sent))
	}
	want := "chan-1|**Full time** (stars) Rovers 2 - 1 United\nGoals: Ada 10', Bo 44', Di 80'"
	if sender.sent[0] != want {
		t.Fatalf("message=%q want %q", sender.sent[0], want)
	}
}

func TestDiscordSkipsUnknownMatch(t *testing.T) {
	sender := &fakeSender{}
	d := newDiscordAnnouncer(sender, "chan-1", fakeMatches{}, quietLogger())
	_ = d.Publish(context.Background(), uuid.New(), game.MatchUpdate{IsFinished: true})
	d.Wait()
	if len(sender.sent) != 0 {
		t.Fatalf("unexpected send %v", sender.sent)
	}
}

type countingPublisher struct {
	n   int
	err error
}

func (c *countingPublisher) Publish(context.Context, uuid.UUID, game.MatchUpdate) error {
	c.n++
	return c.err
}

func TestFanoutReachesEveryPublisher(t *testing.T) {
	boom := errors.New("boom")
	a := &countingPublisher{}
	b := &countingPublisher{err: boom}
	c := &countingPublisher{}
	err := Fanout{a, nil, b, c}.Publish(context.Background(), uuid.New(), game.MatchUpdate{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if a.n != 1 || b.n != 1 || c.n != 1 {
		t.Fatalf("calls a=%d b=%d c=%d", a.n, b.n, c.n)
	}
}

func TestMatchSubject(t *testing.T) {
	id := uuid.MustParse("7b0c4f9e-2b1a-4c55-9a4e-0d7f3e6a1b22")
	if got := matchSubject("kickoff", id); got != "kickoff.match.7b0c4f9e-2b1a-4c55-9a4e-0d7f3e6a1b22" {
		t.Fatalf("subject=%s", got)
	}
}
