// Package events defines event types and structures for production
// lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/voxmuse/atelier/pkg/models"
)

type EventType string

// Kafka topics.
const ProductionTopic = "atelier.production.events" // Topic for production lifecycle events
const ApprovalTopic = "atelier.approval.events"     // Topic for human approval requests and resolutions

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Production lifecycle events.
	ProductionStartedEvent        EventType = "production.started"
	ProductionStageCompletedEvent EventType = "production.stage.completed"
	ProductionQAVerdictEvent      EventType = "production.qa.verdict"
	ProductionSettledEvent        EventType = "production.settled"
	ProductionCompletedEvent      EventType = "production.completed"
	ProductionRejectedEvent       EventType = "production.rejected"
	ProductionFailedEvent         EventType = "production.failed"

	// Approval gate events.
	ApprovalRequestedEvent EventType = "approval.requested"
	ApprovalResolvedEvent  EventType = "approval.resolved"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TaskID    string         `json:"task_id"`
	Account   string         `json:"account,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Event is implemented by every published event.
type Event interface {
	GetType() EventType
}

func NewBaseEvent(eventType EventType, taskID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TaskID:    taskID,
	}
}

type ProductionStarted struct {
	BaseEvent

	Intent        string  `json:"intent"`
	EstimatedCost float64 `json:"estimated_cost"`
}

func (e ProductionStarted) GetType() EventType {
	return ProductionStartedEvent
}

type ProductionStageCompleted struct {
	BaseEvent

	Stage    models.ProductionStage `json:"stage"`
	Duration time.Duration          `json:"duration"`
}

func (e ProductionStageCompleted) GetType() EventType {
	return ProductionStageCompletedEvent
}

type ProductionQAVerdict struct {
	BaseEvent

	Attempt  int               `json:"attempt"`
	Decision models.QADecision `json:"decision"`
	Score    float64           `json:"identity_score"`
}

func (e ProductionQAVerdict) GetType() EventType {
	return ProductionQAVerdictEvent
}

type ProductionSettled struct {
	BaseEvent

	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
	Balance       float64 `json:"balance"`
}

func (e ProductionSettled) GetType() EventType {
	return ProductionSettledEvent
}

type ProductionCompleted struct {
	BaseEvent

	StagedPath string        `json:"staged_path"`
	Degraded   bool          `json:"degraded"`
	ActualCost float64       `json:"actual_cost"`
	Duration   time.Duration `json:"duration"`
}

func (e ProductionCompleted) GetType() EventType {
	return ProductionCompletedEvent
}

type ProductionRejected struct {
	BaseEvent

	Stage  models.ProductionStage `json:"stage"`
	Reason string                 `json:"reason"`
}

func (e ProductionRejected) GetType() EventType {
	return ProductionRejectedEvent
}

type ProductionFailed struct {
	BaseEvent

	Stage models.ProductionStage `json:"stage"`
	Error string                 `json:"error"`
}

func (e ProductionFailed) GetType() EventType {
	return ProductionFailedEvent
}

type ApprovalRequested struct {
	BaseEvent

	StepName   string `json:"step_name"`
	PreviewRef string `json:"preview_ref,omitempty"`
}

func (e ApprovalRequested) GetType() EventType {
	return ApprovalRequestedEvent
}

type ApprovalResolved struct {
	BaseEvent

	StepName string                `json:"step_name"`
	Signal   models.ApprovalSignal `json:"signal"`
}

func (e ApprovalResolved) GetType() EventType {
	return ApprovalResolvedEvent
}
