package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JourneyState is the per-(customer, operator) lifecycle record. One row per
// pair, enforced by UNIQUE(customer_id, operator_id). Stage only moves
// forward here; the sole reset path is the recycling engine.
type JourneyState struct {
	ID         uuid.UUID `db:"id" json:"id"`
	CustomerID uuid.UUID `db:"customer_id" json:"customer_id"`
	OperatorID uuid.UUID `db:"operator_id" json:"operator_id"`

	Stage             int     `db:"stage" json:"stage"`
	DepositCount      int     `db:"deposit_count" json:"deposit_count"`
	TotalDepositValue float64 `db:"total_deposit_value" json:"total_deposit_value"`
	CurrentJourney    string  `db:"current_journey" json:"current_journey"`

	EmailSentCount int        `db:"email_sent_count" json:"email_sent_count"`
	SMSSentCount   int        `db:"sms_sent_count" json:"sms_sent_count"`
	LastEmailAt    *time.Time `db:"last_email_at" json:"last_email_at,omitempty"`
	LastSMSAt      *time.Time `db:"last_sms_at" json:"last_sms_at,omitempty"`
	LastDepositAt  *time.Time `db:"last_deposit_at" json:"last_deposit_at,omitempty"`

	EmailUnsubscribed  bool `db:"email_unsubscribed" json:"email_unsubscribed"`
	SMSUnsubscribed    bool `db:"sms_unsubscribed" json:"sms_unsubscribed"`
	GlobalUnsubscribed bool `db:"global_unsubscribed" json:"global_unsubscribed"`

	RecycledAt *time.Time `db:"recycled_at" json:"recycled_at,omitempty"`
	ResetAt    *time.Time `db:"reset_at" json:"reset_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

const journeyStateColumns = `id, customer_id, operator_id, stage, deposit_count, total_deposit_value,
       current_journey, email_sent_count, sms_sent_count, last_email_at, last_sms_at, last_deposit_at,
       email_unsubscribed, sms_unsubscribed, global_unsubscribed, recycled_at, reset_at, created_at, updated_at`

// CreateJourneyState creates a fresh journey state at the undefined stage.
// Returns ErrConflict when a row for the pair already exists.
func (s Store) CreateJourneyState(ctx context.Context, customerID, operatorID uuid.UUID) (JourneyState, error) {
	var state JourneyState
	query := `
		INSERT INTO journey_states (customer_id, operator_id, stage, current_journey)
		VALUES ($1, $2, -1, 'none')
		RETURNING ` + journeyStateColumns

	err := s.db.GetContext(ctx, &state, query, customerID, operatorID)
	if err != nil {
		if isUniqueViolation(err) {
			return JourneyState{}, ErrConflict
		}
		return JourneyState{}, fmt.Errorf("failed to create journey state: %w", err)
	}

	return state, nil
}

// GetJourneyState retrieves the journey state for a (customer, operator) pair
func (s Store) GetJourneyState(ctx context.Context, customerID, operatorID uuid.UUID) (JourneyState, error) {
	var state JourneyState
	query := `SELECT ` + journeyStateColumns + ` FROM journey_states WHERE customer_id = $1 AND operator_id = $2`

	err := s.db.GetContext(ctx, &state, query, customerID, operatorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return JourneyState{}, ErrNotFound
		}
		return JourneyState{}, fmt.Errorf("failed to get journey state: %w", err)
	}

	return state, nil
}

// GetJourneyStateByID retrieves a journey state by primary key
func (s Store) GetJourneyStateByID(ctx context.Context, journeyStateID uuid.UUID) (JourneyState, error) {
	var state JourneyState
	query := `SELECT ` + journeyStateColumns + ` FROM journey_states WHERE id = $1`

	err := s.db.GetContext(ctx, &state, query, journeyStateID)
	if err != nil {
		if err == sql.ErrNoRows {
			return JourneyState{}, ErrNotFound
		}
		return JourneyState{}, fmt.Errorf("failed to get journey state by id: %w", err)
	}

	return state, nil
}

// AdminSetStage moves the stage forward to the requested value. The GREATEST
// guard preserves monotonicity for admin mutations too.
func (s Store) AdminSetStage(ctx context.Context, journeyStateID uuid.UUID, stage int) (JourneyState, error) {
	var state JourneyState
	query := `
		UPDATE journey_states
		SET stage = GREATEST(stage, $2),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND recycled_at IS NULL
		RETURNING ` + journeyStateColumns

	err := s.db.GetContext(ctx, &state, query, journeyStateID, stage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return JourneyState{}, ErrNotFound
		}
		return JourneyState{}, fmt.Errorf("failed to set stage: %w", err)
	}

	return state, nil
}

// SetUnsubscribed flips unsubscribe flags on a journey state. Flags are
// one-way: there is no resubscribe path through the engine.
func (s Store) SetUnsubscribed(ctx context.Context, journeyStateID uuid.UUID, email, sms, global bool) (JourneyState, error) {
	var state JourneyState
	query := `
		UPDATE journey_states
		SET email_unsubscribed = email_unsubscribed OR $2,
		    sms_unsubscribed = sms_unsubscribed OR $3,
		    global_unsubscribed = global_unsubscribed OR $4,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING ` + journeyStateColumns

	err := s.db.GetContext(ctx, &state, query, journeyStateID, email, sms, global)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return JourneyState{}, ErrNotFound
		}
		return JourneyState{}, fmt.Errorf("failed to set unsubscribe flags: %w", err)
	}

	return state, nil
}

// IncrementChannelSent bumps the per-channel delivery counters after a
// successful send.
func (s Store) IncrementChannelSent(ctx context.Context, journeyStateID uuid.UUID, channel string) error {
	var query string
	switch channel {
	case ChannelEmail:
		query = `
			UPDATE journey_states
			SET email_sent_count = email_sent_count + 1,
			    last_email_at = CURRENT_TIMESTAMP,
			    updated_at = CURRENT_TIMESTAMP
			WHERE id = $1
		`
	case ChannelSMS:
		query = `
			UPDATE journey_states
			SET sms_sent_count = sms_sent_count + 1,
			    last_sms_at = CURRENT_TIMESTAMP,
			    updated_at = CURRENT_TIMESTAMP
			WHERE id = $1
		`
	default:
		return fmt.Errorf("unknown channel %q", channel)
	}

	result, err := s.db.ExecContext(ctx, query, journeyStateID)
	if err != nil {
		return fmt.Errorf("failed to increment channel counters: %w", err)
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

// ListActiveJourneyStatesByOperator retrieves non-recycled journey states for
// an operator, oldest first. Used to enumerate recycling candidates.
func (s Store) ListActiveJourneyStatesByOperator(ctx context.Context, operatorID uuid.UUID, limit int) ([]JourneyState, error) {
	var states []JourneyState
	query := `
		SELECT ` + journeyStateColumns + `
		FROM journey_states
		WHERE operator_id = $1 AND recycled_at IS NULL
		ORDER BY created_at ASC
		LIMIT $2
	`

	err := s.db.SelectContext(ctx, &states, query, operatorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list journey states: %w", err)
	}

	return states, nil
}
