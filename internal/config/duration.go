package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration so it can be expressed as a human string
// ("30s", "5m") in YAML instead of a raw nanosecond integer.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler by parsing a duration string.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler, round-tripping back to a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}
