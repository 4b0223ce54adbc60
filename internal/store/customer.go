package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Customer represents a deduplicated real-world person. A customer owns
// identifiers, journey states and events; it is created on first sighting of
// an unresolvable identifier and never deleted except by admin purge.
type Customer struct {
	ID          uuid.UUID `db:"id" json:"id"`
	MasterEmail *string   `db:"master_email" json:"master_email,omitempty"`
	MasterPhone *string   `db:"master_phone" json:"master_phone,omitempty"`

	TotalClicks  int     `db:"total_clicks" json:"total_clicks"`
	TotalEvents  int     `db:"total_events" json:"total_events"`
	TotalRevenue float64 `db:"total_revenue" json:"total_revenue"`

	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
	LastSeenAt time.Time `db:"last_seen_at" json:"last_seen_at"`
}

// Identifier is a (type, value) pair owned by exactly one customer. The
// UNIQUE(type, value) constraint is what makes concurrent resolution safe.
type Identifier struct {
	ID         uuid.UUID `db:"id" json:"id"`
	CustomerID uuid.UUID `db:"customer_id" json:"customer_id"`
	Type       string    `db:"type" json:"type"`
	Value      string    `db:"value" json:"value"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

const customerColumns = `id, master_email, master_phone, total_clicks, total_events, total_revenue,
       created_at, updated_at, last_seen_at`

// CreateCustomerParams represents parameters for creating a customer
type CreateCustomerParams struct {
	MasterEmail *string
	MasterPhone *string
}

// GetCustomerByID retrieves a customer by ID
func (s Store) GetCustomerByID(ctx context.Context, customerID uuid.UUID) (Customer, error) {
	var customer Customer
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	err := s.db.GetContext(ctx, &customer, query, customerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return Customer{}, ErrNotFound
		}
		return Customer{}, fmt.Errorf("failed to get customer: %w", err)
	}

	return customer, nil
}

// GetIdentifier retrieves an identifier by (type, value)
func (s Store) GetIdentifier(ctx context.Context, identifierType, value string) (Identifier, error) {
	var identifier Identifier
	query := `
		SELECT id, customer_id, type, value, created_at
		FROM identifiers
		WHERE type = $1 AND value = $2
	`

	err := s.db.GetContext(ctx, &identifier, query, identifierType, value)
	if err != nil {
		if err == sql.ErrNoRows {
			return Identifier{}, ErrNotFound
		}
		return Identifier{}, fmt.Errorf("failed to get identifier: %w", err)
	}

	return identifier, nil
}

// ListIdentifiersByCustomer retrieves all identifiers owned by a customer
func (s Store) ListIdentifiersByCustomer(ctx context.Context, customerID uuid.UUID) ([]Identifier, error) {
	var identifiers []Identifier
	query := `
		SELECT id, customer_id, type, value, created_at
		FROM identifiers
		WHERE customer_id = $1
		ORDER BY created_at ASC
	`

	err := s.db.SelectContext(ctx, &identifiers, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identifiers: %w", err)
	}

	return identifiers, nil
}

// IdentifierPair is a (type, value) input for identity resolution
type IdentifierPair struct {
	Type  string
	Value string
}

// CreateCustomerWithIdentifiers atomically creates a customer and binds the
// supplied identifiers to it. A duplicate identifier insert aborts the whole
// transaction and surfaces as ErrConflict so the caller can re-resolve.
func (s Store) CreateCustomerWithIdentifiers(ctx context.Context, params CreateCustomerParams, identifiers []IdentifierPair) (Customer, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Customer{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var customer Customer
	query := `
		INSERT INTO customers (master_email, master_phone)
		VALUES ($1, $2)
		RETURNING ` + customerColumns

	if err := tx.GetContext(ctx, &customer, query, params.MasterEmail, params.MasterPhone); err != nil {
		return Customer{}, fmt.Errorf("failed to create customer: %w", err)
	}

	insertIdentifier := `
		INSERT INTO identifiers (customer_id, type, value)
		VALUES ($1, $2, $3)
	`
	for _, identifier := range identifiers {
		if _, err := tx.ExecContext(ctx, insertIdentifier, customer.ID, identifier.Type, identifier.Value); err != nil {
			if isUniqueViolation(err) {
				return Customer{}, ErrConflict
			}
			return Customer{}, fmt.Errorf("failed to create identifier: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Customer{}, fmt.Errorf("failed to commit customer creation: %w", err)
	}

	return customer, nil
}

// AddIdentifier binds a new identifier to an existing customer. Returns
// ErrConflict when the (type, value) pair is already owned.
func (s Store) AddIdentifier(ctx context.Context, customerID uuid.UUID, identifierType, value string) (Identifier, error) {
	var identifier Identifier
	query := `
		INSERT INTO identifiers (customer_id, type, value)
		VALUES ($1, $2, $3)
		RETURNING id, customer_id, type, value, created_at
	`

	err := s.db.GetContext(ctx, &identifier, query, customerID, identifierType, value)
	if err != nil {
		if isUniqueViolation(err) {
			return Identifier{}, ErrConflict
		}
		return Identifier{}, fmt.Errorf("failed to add identifier: %w", err)
	}

	return identifier, nil
}

// TouchCustomer records activity attribution on the customer aggregate
// counters. Revenue is additive; counters never decrease.
func (s Store) TouchCustomer(ctx context.Context, customerID uuid.UUID, eventDelta int, revenueDelta float64) error {
	query := `
		UPDATE customers
		SET total_events = total_events + $2,
		    total_revenue = total_revenue + $3,
		    last_seen_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, customerID, eventDelta, revenueDelta)
	if err != nil {
		return fmt.Errorf("failed to touch customer: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateCustomerContactParams represents optional contact updates applied
// when a postback carries addresses the customer record is missing.
type UpdateCustomerContactParams struct {
	MasterEmail *string
	MasterPhone *string
}

// FillCustomerContact sets master email/phone only where currently NULL, so a
// later postback never overwrites a verified address.
func (s Store) FillCustomerContact(ctx context.Context, customerID uuid.UUID, params UpdateCustomerContactParams) error {
	query := `
		UPDATE customers
		SET master_email = COALESCE(master_email, $2),
		    master_phone = COALESCE(master_phone, $3),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	_, err := s.db.ExecContext(ctx, query, customerID, params.MasterEmail, params.MasterPhone)
	if err != nil {
		return fmt.Errorf("failed to fill customer contact: %w", err)
	}

	return nil
}
