package events

import (
	"context"
	"sync"
	"time"

	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"

	"github.com/google/uuid"
)

// Event is a domain notification pushed to dashboard subscribers. It is a
// side-channel: journey processing never depends on a subscriber consuming
// anything.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	CustomerID string                 `json:"customer_id,omitempty"`
	OperatorID string                 `json:"operator_id,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// Subscriber receives published events. Implementations must not block.
type Subscriber interface {
	Notify(event Event)
}

// Publisher fans events out to an explicit subscriber list.
type Publisher struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	logger      *observability.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(logger *observability.Logger) *Publisher {
	return &Publisher{logger: logger}
}

// Subscribe registers a subscriber for all future events
func (p *Publisher) Subscribe(sub Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, sub)
}

// publish builds and fans out an event to every subscriber
func (p *Publisher) publish(ctx context.Context, eventType, customerID, operatorID string, data map[string]interface{}) {
	event := Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		CustomerID: customerID,
		OperatorID: operatorID,
		Data:       data,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	p.mu.RLock()
	subscribers := make([]Subscriber, len(p.subscribers))
	copy(subscribers, p.subscribers)
	p.mu.RUnlock()

	for _, sub := range subscribers {
		sub.Notify(event)
	}

	if len(subscribers) > 0 {
		p.logger.Debug(observability.WithFields(ctx,
			observability.Field{Key: "event_type", Value: eventType},
		), "event published")
	}
}

// PublishStageChanged publishes a journey.stage_changed event
func (p *Publisher) PublishStageChanged(ctx context.Context, customerID, operatorID uuid.UUID, stage int, journeyType string) {
	p.publish(ctx, "journey.stage_changed", customerID.String(), operatorID.String(), map[string]interface{}{
		"stage":        stage,
		"journey_type": journeyType,
	})
}

// PublishMessageSent publishes a message.sent event
func (p *Publisher) PublishMessageSent(ctx context.Context, customerID uuid.UUID, messageID uuid.UUID, channel string) {
	p.publish(ctx, "message.sent", customerID.String(), "", map[string]interface{}{
		"message_id": messageID.String(),
		"channel":    channel,
	})
}

// PublishCustomerRecycled publishes a customer.recycled event
func (p *Publisher) PublishCustomerRecycled(ctx context.Context, customerID, sourceOperatorID, targetOperatorID uuid.UUID) {
	p.publish(ctx, "customer.recycled", customerID.String(), sourceOperatorID.String(), map[string]interface{}{
		"target_operator_id": targetOperatorID.String(),
	})
}
