package ratelimit

import "errors"

var (
	ErrEmptyKey       = errors.New("rate limit key is empty")
	ErrInvalidLimit   = errors.New("invalid rate limit")
	ErrInvalidReply   = errors.New("invalid rate limit store reply")
	ErrStoreUnhealthy = errors.New("rate limit store unhealthy")
)
