package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"kickoff/internal/game"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "kickoff",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSPublisher sends match updates to <prefix>.match.<id> so every API
// replica can feed its own websocket subscribers.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	log    *slog.Logger
}

var _ game.Publisher = (*NATSPublisher)(nil)

func NewNATSPublisher(cfg NATSConfig, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultNATSConfig().SubjectPrefix
	}
	opts := []nats.Option{
		nats.Name("kickoff"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Error("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("nats error", "err", err)
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSPublisher{nc: nc, prefix: cfg.SubjectPrefix, log: logger}, nil
}

func matchSubject(prefix string, matchID uuid.UUID) string {
	return fmt.Sprintf("%s.match.%s", prefix, matchID)
}

func (p *NATSPublisher) Publish(_ context.Context, matchID uuid.UUID, update game.MatchUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	msg := &nats.Msg{
		Subject: matchSubject(p.prefix, matchID),
		Data:    data,
		Header: nats.Header{
			"Match-ID": []string{matchID.String()},
		},
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to nats: %w", err)
	}
	return nil
}

// Relay subscribes to every match subject and hands decoded updates to dst.
func (p *NATSPublisher) Relay(dst game.Publisher) (*nats.Subscription, error) {
	subject := p.prefix + ".match.*"
	sub, err := p.nc.Subscribe(subject, func(msg *nats.Msg) {
		var update game.MatchUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			p.log.Warn("bad match update on nats", "subject", msg.Subject, "err", err)
			return
		}
		if err := dst.Publish(context.Background(), update.MatchID, update); err != nil {
			p.log.Debug("relay match update failed", "match_id", update.MatchID, "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	p.log.Info("relaying match updates", "subject", subject)
	return sub, nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
