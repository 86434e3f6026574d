package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event raised for a package or expedition.
type Event struct {
	ID           string                 `json:"id"`
	Type         Type                   `json:"type"`
	PackageID    string                 `json:"package_id,omitempty"`
	ExpeditionID string                 `json:"expedition_id,omitempty"`
	Actor        string                 `json:"actor,omitempty"`
	Payload      map[string]interface{} `json:"payload"`
	Timestamp    time.Time              `json:"timestamp"`
}

// NewEvent creates a new domain event with a time-ordered ID
func NewEvent(eventType Type, packageID, expeditionID string, payload map[string]interface{}) *Event {
	return &Event{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Type:         eventType,
		PackageID:    packageID,
		ExpeditionID: expeditionID,
		Payload:      payload,
		Timestamp:    time.Now().UTC(),
	}
}

// WithActor returns a copy of the event attributed to actor.
func (e *Event) WithActor(actor string) *Event {
	cp := *e
	cp.Actor = actor
	return &cp
}

// WithPayload returns a new Event with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	cp := *e
	cp.Payload = newPayload
	return &cp
}

// Get returns the raw payload value for key.
func (e *Event) Get(key string) (interface{}, bool) {
	v, ok := e.Payload[key]
	return v, ok
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
