package processor

import (
	"context"

	identityProcessor "github.com/ibheelz/Todoalrojo-sub002/internal/identity/processor"
	"github.com/ibheelz/Todoalrojo-sub002/internal/store"

	"github.com/google/uuid"
)

// JourneyStore defines the database operations required by JourneyProcessor
type JourneyStore interface {
	GetOperatorByID(ctx context.Context, operatorID uuid.UUID) (store.Operator, error)
	CreatePostback(ctx context.Context, params store.CreatePostbackParams) (store.OperatorPostback, error)
	GetJourneyState(ctx context.Context, customerID, operatorID uuid.UUID) (store.JourneyState, error)
	CreateJourneyState(ctx context.Context, customerID, operatorID uuid.UUID) (store.JourneyState, error)
	RecordRegistrationPostback(ctx context.Context, params store.CreatePostbackParams, journeyStateID uuid.UUID) (store.OperatorPostback, store.JourneyState, bool, error)
	RecordDepositPostback(ctx context.Context, params store.CreatePostbackParams, journeyStateID uuid.UUID, amount float64) (store.OperatorPostback, store.JourneyState, bool, error)
	AdminSetStage(ctx context.Context, journeyStateID uuid.UUID, stage int) (store.JourneyState, error)
	SetUnsubscribed(ctx context.Context, journeyStateID uuid.UUID, email, sms, global bool) (store.JourneyState, error)
	CancelPendingMessages(ctx context.Context, journeyStateID uuid.UUID, journeyType string) (int, error)
	ListMessagesByJourneyState(ctx context.Context, journeyStateID uuid.UUID) ([]store.JourneyMessage, error)
	TouchCustomer(ctx context.Context, customerID uuid.UUID, eventDelta int, revenueDelta float64) error
}

// IdentityResolver maps inbound signals to customers
type IdentityResolver interface {
	Resolve(ctx context.Context, signal identityProcessor.Signal) (store.Customer, error)
}

// MessageScheduler schedules the journey message sequence after a stage
// change. Invoked synchronously so no transition is ever missed.
type MessageScheduler interface {
	OnStageChanged(ctx context.Context, state store.JourneyState) error
}

// EventPublisher pushes notifications to the dashboard side-channel
type EventPublisher interface {
	PublishStageChanged(ctx context.Context, customerID, operatorID uuid.UUID, stage int, journeyType string)
}
