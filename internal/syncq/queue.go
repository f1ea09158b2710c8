package syncq

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"kickoff/internal/cli"
	"kickoff/internal/game"

	"github.com/google/uuid"
)

// Command is a facility collection that could not reach the server.
// Collections are safe to replay: a second collect with no time passed
// yields nothing.
type Command struct {
	TeamID   uuid.UUID         `json:"team_id"`
	Facility game.FacilityType `json:"facility"`
	QueuedAt time.Time         `json:"queued_at"`
}

func queuePath() (string, error) {
	dir, err := cli.HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// Push queues cmd unless the same team and facility is already waiting.
func Push(cmd Command) error {
	commands, err := Load()
	if err != nil {
		return err
	}
	for _, c := range commands {
		if c.TeamID == cmd.TeamID && c.Facility == cmd.Facility {
			return nil
		}
	}
	commands = append(commands, cmd)
	return Save(commands)
}

// Replay runs every queued command through fn. Commands that fail with a
// retryable error stay queued; the rest are dropped. It returns how many
// replayed successfully.
func Replay(commands []Command, fn func(Command) error, retryable func(error) bool) (int, []Command, []error) {
	var (
		replayed  int
		remaining = make([]Command, 0, len(commands))
		failures  []error
	)
	for _, c := range commands {
		err := fn(c)
		if err == nil {
			replayed++
			continue
		}
		failures = append(failures, err)
		if retryable(err) {
			remaining = append(remaining, c)
		}
	}
	return replayed, remaining, failures
}
