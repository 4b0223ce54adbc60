package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// OperatorPostback is an immutable audit record of every inbound operator
// event. Append-only; never mutated. The partial unique index on
// (operator_id, event_key) is the idempotency key for deposit replays.
type OperatorPostback struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	OperatorID uuid.UUID  `db:"operator_id" json:"operator_id"`
	CustomerID *uuid.UUID `db:"customer_id" json:"customer_id,omitempty"`
	EventType  string     `db:"event_type" json:"event_type"`
	EventKey   *string    `db:"event_key" json:"event_key,omitempty"`

	DepositAmount *float64 `db:"deposit_amount" json:"deposit_amount,omitempty"`
	Currency      *string  `db:"currency" json:"currency,omitempty"`
	RawPayload    JSONB    `db:"raw_payload" json:"raw_payload,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CreatePostbackParams represents parameters for recording a postback
type CreatePostbackParams struct {
	OperatorID    uuid.UUID
	CustomerID    *uuid.UUID
	EventType     string
	EventKey      *string
	DepositAmount *float64
	Currency      *string
	RawPayload    JSONB
}

// insertPostback appends the audit row inside q. Returns ErrConflict when the
// (operator, event key) pair was already recorded, which marks the event as a
// replay.
func insertPostback(ctx context.Context, q sqlx.QueryerContext, params CreatePostbackParams) (OperatorPostback, error) {
	var postback OperatorPostback
	query := `
		INSERT INTO operator_postbacks (operator_id, customer_id, event_type, event_key, deposit_amount, currency, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, operator_id, customer_id, event_type, event_key, deposit_amount, currency, raw_payload, created_at
	`

	err := sqlx.GetContext(ctx, q, &postback, query,
		params.OperatorID,
		params.CustomerID,
		params.EventType,
		params.EventKey,
		params.DepositAmount,
		params.Currency,
		params.RawPayload,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return OperatorPostback{}, ErrConflict
		}
		return OperatorPostback{}, fmt.Errorf("failed to create postback: %w", err)
	}

	return postback, nil
}

// CreatePostback appends a postback audit record outside any transition.
// Used for events that never move the journey (withdrawals).
func (s Store) CreatePostback(ctx context.Context, params CreatePostbackParams) (OperatorPostback, error) {
	return insertPostback(ctx, s.db, params)
}

// RecordRegistrationPostback appends the audit row and applies the
// registration transition in one transaction. A replayed event key aborts the
// whole thing with ErrConflict; a transition that fails rolls the audit row
// back, so an operator retry is not mistaken for a replay. The bool reports
// whether the stage actually moved (a re-registration of an already
// registered or retired journey commits the audit row but changes nothing).
func (s Store) RecordRegistrationPostback(ctx context.Context, params CreatePostbackParams, journeyStateID uuid.UUID) (OperatorPostback, JourneyState, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return OperatorPostback{}, JourneyState{}, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	postback, err := insertPostback(ctx, tx, params)
	if err != nil {
		return OperatorPostback{}, JourneyState{}, false, err
	}

	applied := true
	var state JourneyState
	query := `
		UPDATE journey_states
		SET stage = 0,
		    current_journey = 'acquisition',
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND stage < 0 AND recycled_at IS NULL
		RETURNING ` + journeyStateColumns

	err = tx.GetContext(ctx, &state, query, journeyStateID)
	if errors.Is(err, sql.ErrNoRows) {
		// Condition not met: already registered or retired. Keep the audit
		// row and return the current state.
		applied = false
		err = getJourneyStateByIDTx(ctx, tx, journeyStateID, &state)
	}
	if err != nil {
		return OperatorPostback{}, JourneyState{}, false, fmt.Errorf("failed to apply registration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return OperatorPostback{}, JourneyState{}, false, fmt.Errorf("failed to commit registration postback: %w", err)
	}

	return postback, state, applied, nil
}

// RecordDepositPostback appends the audit row and applies the deposit
// transition in one transaction: counters increment, the stage recomputes as
// min(depositCount, 3) and GREATEST keeps it monotonic even if an admin
// bumped it ahead. A replayed event key aborts with ErrConflict; a transition
// failure rolls the audit row back. The bool is false when the journey was
// retired by a concurrent recycle — the deposit stays audited but no longer
// drives this pairing.
func (s Store) RecordDepositPostback(ctx context.Context, params CreatePostbackParams, journeyStateID uuid.UUID, amount float64) (OperatorPostback, JourneyState, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return OperatorPostback{}, JourneyState{}, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	postback, err := insertPostback(ctx, tx, params)
	if err != nil {
		return OperatorPostback{}, JourneyState{}, false, err
	}

	applied := true
	var state JourneyState
	query := `
		UPDATE journey_states
		SET deposit_count = deposit_count + 1,
		    total_deposit_value = total_deposit_value + $2,
		    stage = GREATEST(stage, LEAST(deposit_count + 1, 3)),
		    current_journey = 'retention',
		    last_deposit_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND recycled_at IS NULL
		RETURNING ` + journeyStateColumns

	err = tx.GetContext(ctx, &state, query, journeyStateID, amount)
	if errors.Is(err, sql.ErrNoRows) {
		applied = false
		err = getJourneyStateByIDTx(ctx, tx, journeyStateID, &state)
	}
	if err != nil {
		return OperatorPostback{}, JourneyState{}, false, fmt.Errorf("failed to apply deposit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return OperatorPostback{}, JourneyState{}, false, fmt.Errorf("failed to commit deposit postback: %w", err)
	}

	return postback, state, applied, nil
}

func getJourneyStateByIDTx(ctx context.Context, tx *sqlx.Tx, journeyStateID uuid.UUID, state *JourneyState) error {
	query := `SELECT ` + journeyStateColumns + ` FROM journey_states WHERE id = $1`
	err := tx.GetContext(ctx, state, query, journeyStateID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// ListPostbacksByCustomer retrieves the audit trail for a customer
func (s Store) ListPostbacksByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]OperatorPostback, error) {
	var postbacks []OperatorPostback
	query := `
		SELECT id, operator_id, customer_id, event_type, event_key, deposit_amount, currency, raw_payload, created_at
		FROM operator_postbacks
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	err := s.db.SelectContext(ctx, &postbacks, query, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list postbacks: %w", err)
	}

	return postbacks, nil
}
