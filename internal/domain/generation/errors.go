package generation

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Category is the stable, machine-readable reason a generation failed.
type Category string

const (
	CategoryMaintenance        Category = "MAINTENANCE_MODE"
	CategoryUnauthenticated    Category = "UNAUTHENTICATED"
	CategoryValidation         Category = "VALIDATION_ERROR"
	CategoryAdmissionDenied    Category = "ADMISSION_DENIED"
	CategoryContentRejected    Category = "CONTENT_REJECTED"
	CategoryUnavailable        Category = "UNAVAILABLE"
	CategoryInsufficientCredit Category = "INSUFFICIENT_CREDIT"
	CategoryPlanningFailed     Category = "PLANNING_FAILED"
	CategoryAssetFailed        Category = "ASSET_ACQUISITION_FAILED"
	CategoryPersistenceFailed  Category = "PERSISTENCE_FAILED"
)

var ErrNotFound = errors.New("generation not found")

// Error is returned by Service.Generate for every failed request.
type Error struct {
	category   Category
	status     int
	message    string
	retryAfter time.Duration
	details    map[string]string
	cause      error
}

func newError(category Category, status int, message string, cause error) *Error {
	return &Error{category: category, status: status, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.category, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.category, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Category() string           { return string(e.category) }
func (e *Error) HTTPStatus() int            { return e.status }
func (e *Error) PublicMessage() string      { return e.message }
func (e *Error) RetryAfter() time.Duration  { return e.retryAfter }
func (e *Error) Details() map[string]string { return e.details }

// CategoryOf returns the category of err, or "" for foreign errors.
func CategoryOf(err error) Category {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.category
	}
	return ""
}

func errMaintenance() *Error {
	return newError(CategoryMaintenance, http.StatusServiceUnavailable,
		"Generation is temporarily disabled for maintenance", nil)
}

func errUnauthenticated() *Error {
	return newError(CategoryUnauthenticated, http.StatusUnauthorized,
		"Sign in to generate designs", nil)
}

func errValidation(fields map[string]string) *Error {
	e := newError(CategoryValidation, http.StatusUnprocessableEntity, "Validation failed", nil)
	e.details = fields
	return e
}

func errAdmissionDenied(limit string, retryAfter time.Duration) *Error {
	e := newError(CategoryAdmissionDenied, http.StatusTooManyRequests,
		"Too many requests, please slow down", nil)
	e.retryAfter = retryAfter
	e.details = map[string]string{"limit": limit}
	return e
}

func errContentRejected(reason string, categories []string) *Error {
	e := newError(CategoryContentRejected, http.StatusUnprocessableEntity,
		"This prompt can't be used to generate a design", nil)
	e.details = map[string]string{"reason": reason}
	for i, c := range categories {
		e.details["category_"+strconv.Itoa(i)] = c
	}
	return e
}

func errUnavailable(message string, cause error) *Error {
	return newError(CategoryUnavailable, http.StatusServiceUnavailable, message, cause)
}

func errInsufficientCredit(remaining, limit int, resetAt, now time.Time, cause error) *Error {
	e := newError(CategoryInsufficientCredit, http.StatusPaymentRequired,
		"Daily credit limit reached", cause)
	e.retryAfter = resetAt.Sub(now)
	e.details = map[string]string{
		"remaining": strconv.Itoa(remaining),
		"limit":     strconv.Itoa(limit),
		"reset_at":  resetAt.UTC().Format(time.RFC3339),
	}
	return e
}

func errPlanningFailed(cause error) *Error {
	return newError(CategoryPlanningFailed, http.StatusBadGateway,
		"Design generation failed, your credit was not used", cause)
}

func errAssetFailed(cause error) *Error {
	return newError(CategoryAssetFailed, http.StatusInternalServerError,
		"Background generation failed, your credit was not used", cause)
}
