package processor

import (
	"context"

	"github.com/ibheelz/Todoalrojo-sub002/internal/store"

	"github.com/google/uuid"
)

// RecyclingStore defines the database operations required by RecyclingProcessor
type RecyclingStore interface {
	GetOperatorByID(ctx context.Context, operatorID uuid.UUID) (store.Operator, error)
	GetJourneyState(ctx context.Context, customerID, operatorID uuid.UUID) (store.JourneyState, error)
	ListRecyclingRules(ctx context.Context, sourceOperatorID, targetOperatorID uuid.UUID) ([]store.RecyclingRule, error)
	ListAllRecyclingRules(ctx context.Context) ([]store.RecyclingRule, error)
	CreateRecyclingRule(ctx context.Context, params store.CreateRecyclingRuleParams) (store.RecyclingRule, error)
	CountRecycleTransfers(ctx context.Context, customerID, targetOperatorID uuid.UUID) (int, error)
	GetLastRecycleTransfer(ctx context.Context, customerID, targetOperatorID uuid.UUID) (store.RecycleTransfer, error)
	RecycleCustomer(ctx context.Context, params store.RecycleCustomerParams) (store.JourneyState, error)
	ListActiveJourneyStatesByOperator(ctx context.Context, operatorID uuid.UUID, limit int) ([]store.JourneyState, error)
}

// EventPublisher pushes recycle notifications to the dashboard side-channel
type EventPublisher interface {
	PublishCustomerRecycled(ctx context.Context, customerID, sourceOperatorID, targetOperatorID uuid.UUID)
}
