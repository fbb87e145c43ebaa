package cli

import (
	"encoding/json"
	"os"
	"time"

	"lootfun/internal/game"
)

// MaxHistory bounds the local round log; older records are dropped first.
const MaxHistory = 200

// Record is one settled round as the CLI saw it.
type Record struct {
	SessionID string           `json:"session_id"`
	Identity  string           `json:"identity"`
	Result    game.RoundResult `json:"result"`
	At        time.Time        `json:"at"`
}

func LoadHistory() ([]Record, error) {
	path, err := statePath("history.json")
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Record{}, nil
	}
	var out []Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func SaveHistory(records []Record) error {
	path, err := statePath("history.json")
	if err != nil {
		return err
	}
	if len(records) > MaxHistory {
		records = records[len(records)-MaxHistory:]
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func AppendHistory(rec Record) error {
	records, err := LoadHistory()
	if err != nil {
		return err
	}
	return SaveHistory(append(records, rec))
}
