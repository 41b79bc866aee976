package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration readable from JSON strings, environment
// variables and flags alike ("1h", "250ms").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed

	return nil
}
