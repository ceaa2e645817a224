package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the action part of an event name.
type EventType string

const (
	EventTypeCreated   EventType = "created"
	EventTypeApproved  EventType = "approved"
	EventTypeRejected  EventType = "rejected"
	EventTypeDisbursed EventType = "disbursed"
	EventTypeApplied   EventType = "applied"
	EventTypeSettled   EventType = "settled"
	EventTypeDefaulted EventType = "defaulted"
)

// EntityType is the entity part of an event name.
type EntityType string

const (
	EntityTypeLoan    EntityType = "loan"
	EntityTypePayment EntityType = "payment"
)

// Event is a message pushed to connected dashboard clients.
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string      `json:"type"` // Combined type e.g. "loan.disbursed"
	Entity    EntityType  `json:"entity"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent creates an event with the given type, entity and payload.
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LoanCreated creates a loan.created event
func LoanCreated(payload interface{}) Event {
	return NewEvent(EventTypeCreated, EntityTypeLoan, payload)
}

// LoanApproved creates a loan.approved event
func LoanApproved(payload interface{}) Event {
	return NewEvent(EventTypeApproved, EntityTypeLoan, payload)
}

// LoanRejected creates a loan.rejected event
func LoanRejected(payload interface{}) Event {
	return NewEvent(EventTypeRejected, EntityTypeLoan, payload)
}

// LoanDisbursed creates a loan.disbursed event
func LoanDisbursed(payload interface{}) Event {
	return NewEvent(EventTypeDisbursed, EntityTypeLoan, payload)
}

// PaymentApplied creates a payment.applied event
func PaymentApplied(payload interface{}) Event {
	return NewEvent(EventTypeApplied, EntityTypePayment, payload)
}

// LoanSettled creates a loan.settled event
func LoanSettled(payload interface{}) Event {
	return NewEvent(EventTypeSettled, EntityTypeLoan, payload)
}

// LoanDefaulted creates a loan.defaulted event
func LoanDefaulted(payload interface{}) Event {
	return NewEvent(EventTypeDefaulted, EntityTypeLoan, payload)
}
