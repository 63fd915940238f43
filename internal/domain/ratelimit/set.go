package ratelimit

import (
	"context"
	"errors"
)

// Limiter names used by the API.
const (
	GenerateUser   = "generate:user"
	GenerateIP     = "generate:ip"
	GenerateDevice = "generate:device"
	AuthIP         = "auth:ip"
)

// Subject is everything a limiter may key on.
type Subject struct {
	UserID string
	IP     string
	Device string
}

// KeyFunc picks the identity a rule keys on. An empty result skips the rule.
type KeyFunc func(Subject) string

func ByUser(s Subject) string   { return s.UserID }
func ByIP(s Subject) string     { return s.IP }
func ByDevice(s Subject) string { return s.Device }

// Rule binds a limiter to the identity it counts.
type Rule struct {
	Limiter *Limiter
	Key     KeyFunc
}

// Set is an ordered group of independent limiters. A request is admitted only
// when every applicable limiter admits it.
type Set struct {
	rules []Rule
}

func NewSet(rules ...Rule) *Set {
	return &Set{rules: rules}
}

// Admit evaluates rules in order and returns the first denial. Limiters that
// admitted before the denial keep their count.
func (s *Set) Admit(ctx context.Context, subject Subject) (Decision, error) {
	result := Decision{Allowed: true, Remaining: -1}

	for _, rule := range s.rules {
		identity := rule.Key(subject)
		if identity == "" {
			continue
		}

		d, err := rule.Limiter.Admit(ctx, identity)
		if err != nil {
			if errors.Is(err, ErrEmptyKey) {
				continue
			}
			return Decision{}, err
		}
		if !d.Allowed {
			return d, nil
		}

		// report the tightest remaining budget
		if result.Remaining < 0 || d.Remaining < result.Remaining {
			result = d
		}
	}

	if result.Remaining < 0 {
		result.Remaining = 0
	}
	return result, nil
}
