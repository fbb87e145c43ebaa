package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"lootfun/internal/game"
)

// LoadTuning reads a YAML tuning file over the built-in defaults. Keys the
// file leaves out keep their default; lists it provides replace the default
// list. An empty path or a missing file yields the defaults.
func LoadTuning(path string) (game.Tuning, error) {
	t := game.DefaultTuning()
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return t, nil
		}
		return t, fmt.Errorf("read tuning %s: %w", path, err)
	}
	if err := ParseTuning(b, &t); err != nil {
		return game.DefaultTuning(), fmt.Errorf("tuning %s: %w", path, err)
	}
	return t, nil
}

// ParseTuning decodes raw YAML into t and validates the result.
func ParseTuning(raw []byte, t *game.Tuning) error {
	if err := yaml.Unmarshal(raw, t); err != nil {
		return fmt.Errorf("%w: %v", game.ErrConfiguration, err)
	}
	return t.Validate()
}
