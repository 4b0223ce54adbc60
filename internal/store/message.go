package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JourneyMessage is one scheduled/sent/failed outbound communication. The
// UNIQUE(journey_state_id, journey_type, day_number, channel) constraint
// makes scheduling idempotent; the pending→sending claim makes delivery
// at-most-once under concurrent sweeps.
type JourneyMessage struct {
	ID             uuid.UUID `db:"id" json:"id"`
	JourneyStateID uuid.UUID `db:"journey_state_id" json:"journey_state_id"`
	Channel        string    `db:"channel" json:"channel"`
	JourneyType    string    `db:"journey_type" json:"journey_type"`
	DayNumber      int       `db:"day_number" json:"day_number"`
	Status         string    `db:"status" json:"status"`

	ScheduledFor time.Time  `db:"scheduled_for" json:"scheduled_for"`
	SentAt       *time.Time `db:"sent_at" json:"sent_at,omitempty"`

	Subject    *string `db:"subject" json:"subject,omitempty"`
	Content    string  `db:"content" json:"content"`
	ProviderID *string `db:"provider_id" json:"provider_id,omitempty"`
	Error      *string `db:"error" json:"error,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

const journeyMessageColumns = `id, journey_state_id, channel, journey_type, day_number, status,
       scheduled_for, sent_at, subject, content, provider_id, error, created_at, updated_at`

// CreateScheduledMessageParams represents parameters for scheduling a message
type CreateScheduledMessageParams struct {
	JourneyStateID uuid.UUID
	Channel        string
	JourneyType    string
	DayNumber      int
	ScheduledFor   time.Time
	Subject        *string
	Content        string
}

// CreateScheduledMessage inserts a pending message. Returns ErrConflict when
// the slot is already scheduled for this journey state.
func (s Store) CreateScheduledMessage(ctx context.Context, params CreateScheduledMessageParams) (JourneyMessage, error) {
	var message JourneyMessage
	query := `
		INSERT INTO journey_messages (journey_state_id, channel, journey_type, day_number, status, scheduled_for, subject, content)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7)
		RETURNING ` + journeyMessageColumns

	err := s.db.GetContext(ctx, &message, query,
		params.JourneyStateID,
		params.Channel,
		params.JourneyType,
		params.DayNumber,
		params.ScheduledFor,
		params.Subject,
		params.Content,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return JourneyMessage{}, ErrConflict
		}
		return JourneyMessage{}, fmt.Errorf("failed to create scheduled message: %w", err)
	}

	return message, nil
}

// GetDueMessages retrieves pending messages whose scheduled time has passed,
// oldest first.
func (s Store) GetDueMessages(ctx context.Context, limit int) ([]JourneyMessage, error) {
	var messages []JourneyMessage
	query := `
		SELECT ` + journeyMessageColumns + `
		FROM journey_messages
		WHERE status = 'pending' AND scheduled_for <= CURRENT_TIMESTAMP
		ORDER BY scheduled_for ASC
		LIMIT $1
	`

	err := s.db.SelectContext(ctx, &messages, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due messages: %w", err)
	}

	return messages, nil
}

// ClaimMessage conditionally moves a message from pending to sending. Returns
// ErrNotFound when another dispatcher already claimed or terminated it, which
// callers treat as "skip".
func (s Store) ClaimMessage(ctx context.Context, messageID uuid.UUID) (JourneyMessage, error) {
	var message JourneyMessage
	query := `
		UPDATE journey_messages
		SET status = 'sending',
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + journeyMessageColumns

	err := s.db.GetContext(ctx, &message, query, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return JourneyMessage{}, ErrNotFound
		}
		return JourneyMessage{}, fmt.Errorf("failed to claim message: %w", err)
	}

	return message, nil
}

// MarkMessageSent records the single terminal success transition for a
// claimed message.
func (s Store) MarkMessageSent(ctx context.Context, messageID uuid.UUID, providerID, content string) error {
	query := `
		UPDATE journey_messages
		SET status = 'sent',
		    sent_at = CURRENT_TIMESTAMP,
		    provider_id = $2,
		    content = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'sending'
	`

	result, err := s.db.ExecContext(ctx, query, messageID, providerID, content)
	if err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
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

// MarkMessageFailed records the single terminal failure transition for a
// claimed message. Failed messages are never retried automatically.
func (s Store) MarkMessageFailed(ctx context.Context, messageID uuid.UUID, sendErr string) error {
	query := `
		UPDATE journey_messages
		SET status = 'failed',
		    error = $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'sending'
	`

	result, err := s.db.ExecContext(ctx, query, messageID, sendErr)
	if err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
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

// CancelPendingMessages flips still-pending messages of a superseded journey
// type to cancelled so they never fire. Returns how many were cancelled.
func (s Store) CancelPendingMessages(ctx context.Context, journeyStateID uuid.UUID, journeyType string) (int, error) {
	query := `
		UPDATE journey_messages
		SET status = 'cancelled',
		    updated_at = CURRENT_TIMESTAMP
		WHERE journey_state_id = $1 AND journey_type = $2 AND status = 'pending'
	`

	result, err := s.db.ExecContext(ctx, query, journeyStateID, journeyType)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending messages: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

// CountCustomerMessagesInWindow counts a customer's live messages on a
// channel whose scheduled time falls inside [from, to), across all operators.
// Backs the cross-operator frequency cap.
func (s Store) CountCustomerMessagesInWindow(ctx context.Context, customerID uuid.UUID, channel string, from, to time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM journey_messages jm
		JOIN journey_states js ON js.id = jm.journey_state_id
		WHERE js.customer_id = $1
		  AND jm.channel = $2
		  AND jm.status NOT IN ('cancelled', 'failed')
		  AND jm.scheduled_for >= $3
		  AND jm.scheduled_for < $4
	`

	err := s.db.GetContext(ctx, &count, query, customerID, channel, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages in window: %w", err)
	}

	return count, nil
}

// ListMessagesByJourneyState retrieves every message owned by a journey state
func (s Store) ListMessagesByJourneyState(ctx context.Context, journeyStateID uuid.UUID) ([]JourneyMessage, error) {
	var messages []JourneyMessage
	query := `
		SELECT ` + journeyMessageColumns + `
		FROM journey_messages
		WHERE journey_state_id = $1
		ORDER BY day_number ASC, channel ASC
	`

	err := s.db.SelectContext(ctx, &messages, query, journeyStateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list journey messages: %w", err)
	}

	return messages, nil
}
