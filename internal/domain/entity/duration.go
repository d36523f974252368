package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration that accepts several JSON spellings:
// Go duration strings ("50s"), human strings ("50 seconds", "1 minute")
// and plain numbers (milliseconds). It always marshals as a Go string.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON encodes the duration as a Go duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes any of the supported spellings.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		parsed, err := scale(v, time.Millisecond)
		if err != nil {
			return fmt.Errorf("invalid duration %s: %w", string(data), err)
		}
		*d = parsed
		return nil
	case string:
		parsed, err := ParseDuration(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
}

var durationUnits = map[string]time.Duration{
	"ms": time.Millisecond, "millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
}

// ParseDuration parses "50s", "1m30s", "50 seconds", "2 days" or "1500".
// A bare number is read as milliseconds.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms > maxMillis || ms < -maxMillis {
			return 0, fmt.Errorf("invalid duration %q: %w", s, errDurationRange)
		}
		return Duration(time.Duration(ms) * time.Millisecond), nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return Duration(d), nil
	}

	fields := strings.Fields(strings.ToLower(s))
	if len(fields) != 2 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	unit, ok := durationUnits[fields[1]]
	if !ok {
		return 0, fmt.Errorf("invalid duration unit %q", fields[1])
	}
	d, err := scale(n, unit)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// Largest millisecond count that still fits a time.Duration
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

var errDurationRange = errors.New("out of range")

// scale returns n units as a Duration, refusing values a time.Duration
// cannot hold.
func scale(n float64, unit time.Duration) (Duration, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, errDurationRange
	}
	v := n * float64(unit)
	// float64(math.MaxInt64) rounds up to 2^63, which is already too large
	if v >= float64(math.MaxInt64) || v < float64(math.MinInt64) {
		return 0, errDurationRange
	}
	return Duration(time.Duration(v)), nil
}
