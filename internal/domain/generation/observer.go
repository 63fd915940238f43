package generation

import (
	"time"

	"github.com/google/uuid"
)

// Event is emitted on every pipeline transition.
type Event struct {
	GenerationID uuid.UUID `json:"generation_id"`
	UserID       uuid.UUID `json:"user_id"`
	From         State     `json:"from"`
	State        State     `json:"state"`
	Provider     string    `json:"provider,omitempty"`
	Error        Category  `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

// Observer receives pipeline events. Implementations must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }
