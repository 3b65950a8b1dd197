// Package events defines the domain event envelope and the bus publisher
// for the library service.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/piwi3910/stratweave/internal/models"
)

// Source identifies this service in every published envelope.
const Source = "library_service"

// Event types. The bus subject is the type prefixed with "library.",
// so wildcard consumers can match on "library.entity.*" and friends.
const (
	TypeEntityRegistered = "entity.registered"
	TypeEntityUpdated    = "entity.updated"
	TypeEntityDeleted    = "entity.deleted"

	TypeDeploymentCompleted  = "deployment.completed"
	TypeDeploymentFailed     = "deployment.failed"
	TypeDeploymentRolledBack = "deployment.rolled_back"

	TypeSwapInitiated  = "swap.initiated"
	TypeSwapCompleted  = "swap.completed"
	TypeSwapFailed     = "swap.failed"
	TypeSwapRolledBack = "swap.rolled_back"

	TypeHealthDegraded  = "health.degraded"
	TypeHealthRecovered = "health.recovered"
)

const subjectPrefix = "library."

// Envelope is the wire format of a published event, encoded as UTF-8 JSON.
type Envelope struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Source     string    `json:"source"`

	EntityID     string `json:"entity_id,omitempty"`
	DeploymentID string `json:"deployment_id,omitempty"`
	SwapID       string `json:"swap_id,omitempty"`

	Data     models.JSONMap `json:"data,omitempty"`
	Metadata models.JSONMap `json:"metadata,omitempty"`
}

// NewEnvelope returns an envelope for eventType with a fresh id and a UTC
// timestamp.
func NewEnvelope(eventType string, data models.JSONMap) *Envelope {
	return &Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Source:     Source,
		Data:       data,
	}
}

// Subject returns the bus subject the envelope is published on.
func (e *Envelope) Subject() string {
	return subjectPrefix + e.EventType
}

// NewAuditEvent builds an audit log row for the events table. The row is
// written inside the mutation transaction; the bus envelope is published
// separately after commit.
func NewAuditEvent(eventType, category string, severity models.Severity, entityID, deploymentID, swapID *string, message string, details models.JSONMap, userID string) *models.Event {
	return &models.Event{
		ID:            uuid.NewString(),
		EventType:     eventType,
		EventCategory: category,
		Severity:      severity,
		EntityID:      entityID,
		DeploymentID:  deploymentID,
		SwapID:        swapID,
		Message:       message,
		Details:       details,
		UserID:        userID,
		Source:        Source,
		OccurredAt:    time.Now().UTC(),
	}
}
