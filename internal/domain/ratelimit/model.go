package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Algorithm selects how a store counts events inside the rolling window.
type Algorithm string

const (
	// SlidingLog keeps one entry per admitted event. Exact: never more than
	// Max admissions in any interval of length Window. Footprint grows with Max.
	SlidingLog Algorithm = "log"

	// SlidingWindow blends the previous and current fixed windows by elapsed
	// time. Two counters per key regardless of Max, at the cost of assuming
	// the previous window's events were evenly spread.
	SlidingWindow Algorithm = "weighted"
)

// Limit is one named (max, window) policy.
type Limit struct {
	Name      string
	Max       int
	Window    time.Duration
	Algorithm Algorithm
}

// Decision is the outcome of a single admission attempt.
type Decision struct {
	Allowed    bool
	Limit      string
	Max        int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	// FailOpen is set when the store could not be reached and the request
	// was admitted without being counted.
	FailOpen bool
}

// Usage is what a store reports for one hit.
type Usage struct {
	Allowed    bool
	Count      float64
	RetryAfter time.Duration
	ResetAt    time.Time
}

// ParseLimit parses "N/duration" with an optional "@log" or "@weighted"
// suffix, e.g. "1/10s", "100/720h@weighted".
func ParseLimit(name, raw string) (Limit, error) {
	l := Limit{Name: name, Algorithm: SlidingLog}

	spec := strings.TrimSpace(raw)
	if at := strings.LastIndex(spec, "@"); at >= 0 {
		switch Algorithm(spec[at+1:]) {
		case SlidingLog:
			l.Algorithm = SlidingLog
		case SlidingWindow:
			l.Algorithm = SlidingWindow
		default:
			return Limit{}, fmt.Errorf("%w: unknown algorithm in %q", ErrInvalidLimit, raw)
		}
		spec = spec[:at]
	}

	count, window, ok := strings.Cut(spec, "/")
	if !ok {
		return Limit{}, fmt.Errorf("%w: %q (want N/duration)", ErrInvalidLimit, raw)
	}

	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return Limit{}, fmt.Errorf("%w: bad count in %q", ErrInvalidLimit, raw)
	}
	d, err := time.ParseDuration(strings.TrimSpace(window))
	if err != nil || d <= 0 {
		return Limit{}, fmt.Errorf("%w: bad window in %q", ErrInvalidLimit, raw)
	}

	l.Max = n
	l.Window = d
	return l, nil
}

// MustParseLimit is ParseLimit for compile-time constants.
func MustParseLimit(name, raw string) Limit {
	l, err := ParseLimit(name, raw)
	if err != nil {
		panic(err)
	}
	return l
}

func (l Limit) String() string {
	return fmt.Sprintf("%s %d/%s@%s", l.Name, l.Max, l.Window, l.Algorithm)
}
