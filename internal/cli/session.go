package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lootfun/internal/game"
)

// Session remembers the remote session the CLI is attached to.
type Session struct {
	ID         string    `json:"id"`
	Game       game.Kind `json:"game"`
	Identity   string    `json:"identity"`
	APIBaseURL string    `json:"api_base_url"`
	ClientSeed string    `json:"client_seed,omitempty"`
	Nonce      uint64    `json:"nonce,omitempty"`
}

func baseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".loot")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func statePath(name string) (string, error) {
	dir, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func SaveSession(s Session) error {
	path, err := statePath("session.json")
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o600)
}

func LoadSession() (Session, error) {
	path, err := statePath("session.json")
	if err != nil {
		return Session{}, err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, fmt.Errorf("no session yet, run `loot remote new <game>`")
		}
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(s.ID) == "" {
		return Session{}, fmt.Errorf("no session id found in session file")
	}
	return s, nil
}

func ClearSession() error {
	path, err := statePath("session.json")
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return os.Remove(path)
}
