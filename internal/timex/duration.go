// Package timex holds time helpers shared by config loading and token signing:
// the compact "<integer><unit>" duration grammar and a JSON-friendly Duration.
package timex

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidDuration is returned for strings outside the compact grammar.
var ErrInvalidDuration = errors.New("invalid duration")

var units = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// ParseCompact parses "<integer><unit>" where unit is one of s, m, h, d,
// e.g. "15m" or "7d". Signs, fractions, whitespace and compound forms
// ("1h30m") are rejected.
func ParseCompact(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	unit, ok := units[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	digits := s[:len(s)-1]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	if n > int64(1<<62)/int64(unit) {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidDuration, s)
	}

	return time.Duration(n) * unit, nil
}

// ParseDuration accepts the compact grammar first and falls back to
// time.ParseDuration, so both "7d" and "1h30m" work.
func ParseDuration(s string) (time.Duration, error) {
	if d, err := ParseCompact(s); err == nil {
		return d, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	return d, nil
}

// Duration wraps time.Duration for JSON config files. It accepts the compact
// grammar ("7d"), anything time.ParseDuration understands ("1h30m"), or an
// integer number of nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("%w: unsupported JSON type %T", ErrInvalidDuration, v)
	}
}
