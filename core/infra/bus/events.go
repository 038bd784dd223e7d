package bus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Subjects for domain events.
const (
	SubjectEvaluationCreated = "brandguard.evaluation.created"
	SubjectFixCreated        = "brandguard.fix.created"

	subjectWildcard = "brandguard.>"
)

// Event is the JSON envelope published for every domain event.
type Event struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// Publisher emits domain events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(subject string, data any) error
}

// Nop discards events. Used when NATS_URL is unset.
type Nop struct{}

func (Nop) Publish(string, any) error { return nil }

func newEvent(subject string, data any, now time.Time) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.NewString(),
		Subject:    subject,
		OccurredAt: now.UTC(),
		Data:       raw,
	}, nil
}
