package outbox

import (
	"encoding/json"
	"fmt"
)

// Event types double as Kafka topic names.
const (
	EventAvailabilityConfigured = "availability.configured.v1"
	EventSlotsRegenerated       = "availability.slots.regenerated.v1"
)

const AggregateProvider = "provider"

type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// NewEvent marshals payload as JSON into a provider-scoped event.
func NewEvent(eventType, providerID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateType: AggregateProvider,
		AggregateID:   providerID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
