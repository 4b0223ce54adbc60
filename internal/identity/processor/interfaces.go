package processor

import (
	"context"

	"github.com/ibheelz/Todoalrojo-sub002/internal/store"

	"github.com/google/uuid"
)

// IdentityStore defines the database operations required by IdentityProcessor
type IdentityStore interface {
	GetIdentifier(ctx context.Context, identifierType, value string) (store.Identifier, error)
	GetCustomerByID(ctx context.Context, customerID uuid.UUID) (store.Customer, error)
	CreateCustomerWithIdentifiers(ctx context.Context, params store.CreateCustomerParams, identifiers []store.IdentifierPair) (store.Customer, error)
	AddIdentifier(ctx context.Context, customerID uuid.UUID, identifierType, value string) (store.Identifier, error)
	FillCustomerContact(ctx context.Context, customerID uuid.UUID, params store.UpdateCustomerContactParams) error
	ListIdentifiersByCustomer(ctx context.Context, customerID uuid.UUID) ([]store.Identifier, error)
	ListPostbacksByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]store.OperatorPostback, error)
}
