package safety

import "errors"

var (
	// ErrClassifierUnavailable is returned when the external classifier
	// cannot produce a verdict. Callers must treat the text as unchecked.
	ErrClassifierUnavailable = errors.New("content classifier unavailable")
)
