package syncq

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Command is a write the CLI could not deliver. The idempotency key is reused
// on replay so the API rejects a command that did land.
type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	QueuedAt       time.Time      `json:"queued_at"`
}

// Dir is where the queue file lives. Tests may point it elsewhere.
var Dir = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".msim"), nil
}

func queuePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
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
		if errors.Is(err, os.ErrNotExist) {
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

// Push appends cmd, skipping one whose idempotency key is already queued.
func Push(cmd Command) error {
	commands, err := Load()
	if err != nil {
		return err
	}
	for _, c := range commands {
		if cmd.IdempotencyKey != "" && c.IdempotencyKey == cmd.IdempotencyKey {
			return nil
		}
	}
	if cmd.QueuedAt.IsZero() {
		cmd.QueuedAt = time.Now().UTC()
	}
	return Save(append(commands, cmd))
}

// Replay sends every queued command through send and keeps the ones that
// failed. It returns how many were delivered.
func Replay(send func(Command) error) (int, []error, error) {
	commands, err := Load()
	if err != nil {
		return 0, nil, err
	}
	remaining := make([]Command, 0, len(commands))
	var failures []error
	delivered := 0
	for _, c := range commands {
		if err := send(c); err != nil {
			remaining = append(remaining, c)
			failures = append(failures, err)
			continue
		}
		delivered++
	}
	if err := Save(remaining); err != nil {
		return delivered, failures, err
	}
	return delivered, failures, nil
}
