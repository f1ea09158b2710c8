package live

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"kickoff/internal/game"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type matchGetter interface {
	GetMatch(ctx context.Context, id uuid.UUID) (*game.Match, error)
}

// DiscordAnnouncer posts final scores to a Discord channel. Posting happens
// off the simulation goroutine.
type DiscordAnnouncer struct {
	sender    messageSender
	channelID string
	matches   matchGetter
	log       *slog.Logger
	wg        sync.WaitGroup
}

var _ game.Publisher = (*DiscordAnnouncer)(nil)

func NewDiscordAnnouncer(token, channelID string, matches matchGetter, logger *slog.Logger) (*DiscordAnnouncer, error) {
	session, err := discordgo.New("Bot " + strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return newDiscordAnnouncer(session, channelID, matches, logger), nil
}

func newDiscordAnnouncer(sender messageSender, channelID string, matches matchGetter, logger *slog.Logger) *DiscordAnnouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordAnnouncer{sender: sender, channelID: channelID, matches: matches, log: logger}
}

func (d *DiscordAnnouncer) Publish(_ context.Context, matchID uuid.UUID, update game.MatchUpdate) error {
	if !update.IsFinished {
		return nil
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		m, err := d.matches.GetMatch(ctx, matchID)
		if err != nil {
			d.log.Warn("discord announce skipped", "match_id", matchID, "err", err)
			return
		}
		if _, err := d.sender.ChannelMessageSend(d.channelID, FinalScoreMessage(m)); err != nil {
			d.log.Warn("discord announce failed", "match_id", matchID, "err", err)
		}
	}()
	return nil
}

// Wait blocks until in-flight announcements are done.
func (d *DiscordAnnouncer) Wait() {
	d.wg.Wait()
}

func FinalScoreMessage(m *game.Match) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Full time** (%s) %s %d - %d %s", m.Tier, m.HomeTeamName, m.Score.Home, m.Score.Away, m.AwayTeamName)
	var scorers []string
	for _, ev := range m.Events {
		if ev.Type == game.EventGoal || (ev.Type == game.EventPenalty && ev.Converted) {
			scorers = append(scorers, fmt.Sprintf("%s %d'", ev.PlayerName, ev.Minute))
		}
	}
	if len(scorers) > 0 {
		b.WriteString("\nGoals: ")
		b.WriteString(strings.Join(scorers, ", "))
	}
	return b.String()
}
