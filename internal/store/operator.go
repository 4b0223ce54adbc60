package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operator represents an external betting brand. Reference data, edited by
// admin only.
type Operator struct {
	ID     uuid.UUID `db:"id" json:"id"`
	Client string    `db:"client" json:"client"`
	Name   string    `db:"name" json:"name"`
	Brand  string    `db:"brand" json:"brand"`

	// Messaging channel config
	EmailEnabled bool    `db:"email_enabled" json:"email_enabled"`
	SMSEnabled   bool    `db:"sms_enabled" json:"sms_enabled"`
	SenderEmail  *string `db:"sender_email" json:"sender_email,omitempty"`
	SenderPhone  *string `db:"sender_phone" json:"sender_phone,omitempty"`

	// Recycling policy defaults
	ProtectHighValue bool `db:"protect_high_value" json:"protect_high_value"`
	RecycleAfterDays int  `db:"recycle_after_days" json:"recycle_after_days"`
	MinRecycleStage  int  `db:"min_recycle_stage" json:"min_recycle_stage"`
	MaxRecycleStage  int  `db:"max_recycle_stage" json:"max_recycle_stage"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MessageTemplate is static configuration mapping (operator, journey type,
// day number, channel) to a content template. Read-only to the engine.
type MessageTemplate struct {
	ID          uuid.UUID `db:"id" json:"id"`
	OperatorID  uuid.UUID `db:"operator_id" json:"operator_id"`
	JourneyType string    `db:"journey_type" json:"journey_type"`
	DayNumber   int       `db:"day_number" json:"day_number"`
	Channel     string    `db:"channel" json:"channel"`
	Subject     *string   `db:"subject" json:"subject,omitempty"`
	Body        string    `db:"body" json:"body"`
	Enabled     bool      `db:"enabled" json:"enabled"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

const operatorColumns = `id, client, name, brand, email_enabled, sms_enabled, sender_email, sender_phone,
       protect_high_value, recycle_after_days, min_recycle_stage, max_recycle_stage, created_at, updated_at`

// CreateOperatorParams represents parameters for creating an operator
type CreateOperatorParams struct {
	Client           string
	Name             string
	Brand            string
	EmailEnabled     bool
	SMSEnabled       bool
	SenderEmail      *string
	SenderPhone      *string
	ProtectHighValue bool
	RecycleAfterDays int
	MinRecycleStage  int
	MaxRecycleStage  int
}

// CreateOperator creates a new operator
func (s Store) CreateOperator(ctx context.Context, params CreateOperatorParams) (Operator, error) {
	var operator Operator
	query := `
		INSERT INTO operators (client, name, brand, email_enabled, sms_enabled, sender_email, sender_phone,
		                       protect_high_value, recycle_after_days, min_recycle_stage, max_recycle_stage)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + operatorColumns

	err := s.db.GetContext(ctx, &operator, query,
		params.Client,
		params.Name,
		params.Brand,
		params.EmailEnabled,
		params.SMSEnabled,
		params.SenderEmail,
		params.SenderPhone,
		params.ProtectHighValue,
		params.RecycleAfterDays,
		params.MinRecycleStage,
		params.MaxRecycleStage,
	)

	if err != nil {
		return Operator{}, fmt.Errorf("failed to create operator: %w", err)
	}

	return operator, nil
}

// GetOperatorByID retrieves an operator by ID
func (s Store) GetOperatorByID(ctx context.Context, operatorID uuid.UUID) (Operator, error) {
	var operator Operator
	query := `SELECT ` + operatorColumns + ` FROM operators WHERE id = $1`

	err := s.db.GetContext(ctx, &operator, query, operatorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return Operator{}, ErrNotFound
		}
		return Operator{}, fmt.Errorf("failed to get operator: %w", err)
	}

	return operator, nil
}

// ListOperators retrieves all operators
func (s Store) ListOperators(ctx context.Context) ([]Operator, error) {
	var operators []Operator
	query := `SELECT ` + operatorColumns + ` FROM operators ORDER BY created_at ASC`

	err := s.db.SelectContext(ctx, &operators, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list operators: %w", err)
	}

	return operators, nil
}

// CreateMessageTemplateParams represents parameters for creating a template
type CreateMessageTemplateParams struct {
	OperatorID  uuid.UUID
	JourneyType string
	DayNumber   int
	Channel     string
	Subject     *string
	Body        string
	Enabled     bool
}

// CreateMessageTemplate creates a new message template. Returns ErrConflict
// when a template for the same (operator, journey type, day, channel) slot
// already exists.
func (s Store) CreateMessageTemplate(ctx context.Context, params CreateMessageTemplateParams) (MessageTemplate, error) {
	var template MessageTemplate
	query := `
		INSERT INTO message_templates (operator_id, journey_type, day_number, channel, subject, body, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, operator_id, journey_type, day_number, channel, subject, body, enabled, created_at, updated_at
	`

	err := s.db.GetContext(ctx, &template, query,
		params.OperatorID,
		params.JourneyType,
		params.DayNumber,
		params.Channel,
		params.Subject,
		params.Body,
		params.Enabled,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return MessageTemplate{}, ErrConflict
		}
		return MessageTemplate{}, fmt.Errorf("failed to create message template: %w", err)
	}

	return template, nil
}

// ListMessageTemplates retrieves the enabled templates for an operator and
// journey type, ordered by day number ascending.
func (s Store) ListMessageTemplates(ctx context.Context, operatorID uuid.UUID, journeyType string) ([]MessageTemplate, error) {
	var templates []MessageTemplate
	query := `
		SELECT id, operator_id, journey_type, day_number, channel, subject, body, enabled, created_at, updated_at
		FROM message_templates
		WHERE operator_id = $1 AND journey_type = $2 AND enabled = true
		ORDER BY day_number ASC, channel ASC
	`

	err := s.db.SelectContext(ctx, &templates, query, operatorID, journeyType)
	if err != nil {
		return nil, fmt.Errorf("failed to list message templates: %w", err)
	}

	return templates, nil
}

// ListMessageTemplatesByOperator retrieves every template for an operator
func (s Store) ListMessageTemplatesByOperator(ctx context.Context, operatorID uuid.UUID) ([]MessageTemplate, error) {
	var templates []MessageTemplate
	query := `
		SELECT id, operator_id, journey_type, day_number, channel, subject, body, enabled, created_at, updated_at
		FROM message_templates
		WHERE operator_id = $1
		ORDER BY journey_type ASC, day_number ASC, channel ASC
	`

	err := s.db.SelectContext(ctx, &templates, query, operatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list operator templates: %w", err)
	}

	return templates, nil
}
