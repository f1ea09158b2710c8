package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config covers both server processes; the API and the worker read the same
// keys so they agree on store, bus and game pacing.
type Config struct {
	Addr        string
	DatabaseURL string
	MemoryStore bool

	NATSURL          string
	NATSPrefix       string
	DiscordToken     string
	DiscordChannelID string
	AdminToken       string
	BalanceFile      string

	TickInterval     time.Duration
	FixtureDelay     time.Duration
	TeamOpTimeout    time.Duration
	MatchRetention   time.Duration
	SweepConcurrency int

	EconomyEvery     time.Duration
	DailyEvery       time.Duration
	LeagueSweepEvery time.Duration
	EndSeason        bool
	WorkerRunOnce    bool
}

type CLIConfig struct {
	APIBaseURL string
	AdminToken string
}

// LoadDotEnv reads a .env file when one exists. Variables already present in
// the environment win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func LoadFromEnv() (Config, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("KICKOFF_API_ADDR", ":8080")
	}

	cfg := Config{
		Addr:             addr,
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MemoryStore:      strings.EqualFold(envDefault("KICKOFF_STORE", "postgres"), "memory"),
		NATSURL:          strings.TrimSpace(os.Getenv("NATS_URL")),
		NATSPrefix:       envDefault("KICKOFF_NATS_PREFIX", "kickoff"),
		DiscordToken:     strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		DiscordChannelID: strings.TrimSpace(os.Getenv("DISCORD_CHANNEL_ID")),
		AdminToken:       strings.TrimSpace(os.Getenv("KICKOFF_ADMIN_TOKEN")),
		BalanceFile:      strings.TrimSpace(os.Getenv("KICKOFF_BALANCE_FILE")),
		TickInterval:     envDurationDefault("KICKOFF_TICK_INTERVAL", 100*time.Millisecond),
		FixtureDelay:     envDurationDefault("KICKOFF_FIXTURE_DELAY", 5*time.Second),
		TeamOpTimeout:    envDurationDefault("KICKOFF_TEAM_OP_TIMEOUT", 5*time.Second),
		MatchRetention:   envDurationDefault("KICKOFF_MATCH_RETENTION", 24*time.Hour),
		SweepConcurrency: envIntDefault("KICKOFF_SWEEP_CONCURRENCY", 8),
		EconomyEvery:     envDurationDefault("KICKOFF_ECONOMY_EVERY", 10*time.Hour),
		DailyEvery:       envDurationDefault("KICKOFF_DAILY_EVERY", 24*time.Hour),
		LeagueSweepEvery: envDurationDefault("KICKOFF_LEAGUE_SWEEP_EVERY", 0),
		EndSeason:        envBoolDefault("KICKOFF_END_SEASON", true),
		WorkerRunOnce:    envBoolDefault("KICKOFF_WORKER_RUN_ONCE", false),
	}
	if cfg.DatabaseURL == "" && !cfg.MemoryStore {
		return cfg, fmt.Errorf("DATABASE_URL is required unless KICKOFF_STORE=memory")
	}
	if cfg.TickInterval < 0 || cfg.FixtureDelay < 0 {
		return cfg, fmt.Errorf("tick interval and fixture delay must not be negative")
	}
	if cfg.EconomyEvery < 0 || cfg.DailyEvery < 0 || cfg.LeagueSweepEvery < 0 {
		return cfg, fmt.Errorf("job intervals must not be negative")
	}
	if (cfg.DiscordToken == "") != (cfg.DiscordChannelID == "") {
		return cfg, fmt.Errorf("DISCORD_BOT_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("KICK_API_BASE_URL", "http://localhost:8080"), "/"),
		AdminToken: strings.TrimSpace(os.Getenv("KICKOFF_ADMIN_TOKEN")),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
