package messaging

import (
	"context"
	"time"

	"github.com/ibheelz/Todoalrojo-sub002/internal/store"

	"github.com/google/uuid"
)

// SchedulerStore defines the database operations required by Scheduler
type SchedulerStore interface {
	GetOperatorByID(ctx context.Context, operatorID uuid.UUID) (store.Operator, error)
	ListMessageTemplates(ctx context.Context, operatorID uuid.UUID, journeyType string) ([]store.MessageTemplate, error)
	CountCustomerMessagesInWindow(ctx context.Context, customerID uuid.UUID, channel string, from, to time.Time) (int, error)
	CreateScheduledMessage(ctx context.Context, params store.CreateScheduledMessageParams) (store.JourneyMessage, error)
}

// DispatcherStore defines the database operations required by Dispatcher
type DispatcherStore interface {
	GetDueMessages(ctx context.Context, limit int) ([]store.JourneyMessage, error)
	ClaimMessage(ctx context.Context, messageID uuid.UUID) (store.JourneyMessage, error)
	MarkMessageSent(ctx context.Context, messageID uuid.UUID, providerID, content string) error
	MarkMessageFailed(ctx context.Context, messageID uuid.UUID, sendErr string) error
	GetJourneyStateByID(ctx context.Context, journeyStateID uuid.UUID) (store.JourneyState, error)
	GetOperatorByID(ctx context.Context, operatorID uuid.UUID) (store.Operator, error)
	GetCustomerByID(ctx context.Context, customerID uuid.UUID) (store.Customer, error)
	IncrementChannelSent(ctx context.Context, journeyStateID uuid.UUID, channel string) error
}

// EmailClient sends a single email and returns the provider message id
type EmailClient interface {
	SendEmail(ctx context.Context, from, to, subject, htmlContent string) (string, error)
}

// SMSClient sends a single SMS and returns the provider message id
type SMSClient interface {
	SendSMS(ctx context.Context, from, to, body string) (string, error)
}

// EventPublisher pushes delivery notifications to the dashboard side-channel
type EventPublisher interface {
	PublishMessageSent(ctx context.Context, customerID uuid.UUID, messageID uuid.UUID, channel string)
}
