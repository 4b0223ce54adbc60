package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecyclingRule holds the eligibility thresholds for transferring customers
// from a source operator to a target operator. Multiple rules may exist for
// the same pair; priority breaks ties.
type RecyclingRule struct {
	ID               uuid.UUID `db:"id" json:"id"`
	SourceOperatorID uuid.UUID `db:"source_operator_id" json:"source_operator_id"`
	TargetOperatorID uuid.UUID `db:"target_operator_id" json:"target_operator_id"`

	MinDaysSinceLastDeposit int  `db:"min_days_since_last_deposit" json:"min_days_since_last_deposit"`
	MinStage                int  `db:"min_stage" json:"min_stage"`
	MaxStage                int  `db:"max_stage" json:"max_stage"`
	ExcludeHighValue        bool `db:"exclude_high_value" json:"exclude_high_value"`
	MaxRecyclesPerUser      int  `db:"max_recycles_per_user" json:"max_recycles_per_user"`
	CooldownDays            int  `db:"cooldown_days" json:"cooldown_days"`
	Priority                int  `db:"priority" json:"priority"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RecycleTransfer records one executed transfer for cooldown and per-user cap
// accounting.
type RecycleTransfer struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	CustomerID           uuid.UUID  `db:"customer_id" json:"customer_id"`
	SourceOperatorID     uuid.UUID  `db:"source_operator_id" json:"source_operator_id"`
	TargetOperatorID     uuid.UUID  `db:"target_operator_id" json:"target_operator_id"`
	RuleID               *uuid.UUID `db:"rule_id" json:"rule_id,omitempty"`
	SourceJourneyStateID uuid.UUID  `db:"source_journey_state_id" json:"source_journey_state_id"`
	TargetJourneyStateID uuid.UUID  `db:"target_journey_state_id" json:"target_journey_state_id"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
}

const recyclingRuleColumns = `id, source_operator_id, target_operator_id, min_days_since_last_deposit,
       min_stage, max_stage, exclude_high_value, max_recycles_per_user, cooldown_days, priority,
       created_at, updated_at`

// CreateRecyclingRuleParams represents parameters for creating a rule
type CreateRecyclingRuleParams struct {
	SourceOperatorID        uuid.UUID
	TargetOperatorID        uuid.UUID
	MinDaysSinceLastDeposit int
	MinStage                int
	MaxStage                int
	ExcludeHighValue        bool
	MaxRecyclesPerUser      int
	CooldownDays            int
	Priority                int
}

// CreateRecyclingRule creates a new recycling rule
func (s Store) CreateRecyclingRule(ctx context.Context, params CreateRecyclingRuleParams) (RecyclingRule, error) {
	var rule RecyclingRule
	query := `
		INSERT INTO recycling_rules (source_operator_id, target_operator_id, min_days_since_last_deposit,
		                             min_stage, max_stage, exclude_high_value, max_recycles_per_user,
		                             cooldown_days, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + recyclingRuleColumns

	err := s.db.GetContext(ctx, &rule, query,
		params.SourceOperatorID,
		params.TargetOperatorID,
		params.MinDaysSinceLastDeposit,
		params.MinStage,
		params.MaxStage,
		params.ExcludeHighValue,
		params.MaxRecyclesPerUser,
		params.CooldownDays,
		params.Priority,
	)

	if err != nil {
		return RecyclingRule{}, fmt.Errorf("failed to create recycling rule: %w", err)
	}

	return rule, nil
}

// ListRecyclingRules retrieves the rules for an operator pair ordered by
// priority descending, so the first matching rule wins.
func (s Store) ListRecyclingRules(ctx context.Context, sourceOperatorID, targetOperatorID uuid.UUID) ([]RecyclingRule, error) {
	var rules []RecyclingRule
	query := `
		SELECT ` + recyclingRuleColumns + `
		FROM recycling_rules
		WHERE source_operator_id = $1 AND target_operator_id = $2
		ORDER BY priority DESC, created_at ASC
	`

	err := s.db.SelectContext(ctx, &rules, query, sourceOperatorID, targetOperatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recycling rules: %w", err)
	}

	return rules, nil
}

// ListAllRecyclingRules retrieves every rule, for the admin listing
func (s Store) ListAllRecyclingRules(ctx context.Context) ([]RecyclingRule, error) {
	var rules []RecyclingRule
	query := `SELECT ` + recyclingRuleColumns + ` FROM recycling_rules ORDER BY priority DESC, created_at ASC`

	err := s.db.SelectContext(ctx, &rules, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list recycling rules: %w", err)
	}

	return rules, nil
}

// CountRecycleTransfers counts how many times a customer has already been
// transferred onto a target operator.
func (s Store) CountRecycleTransfers(ctx context.Context, customerID, targetOperatorID uuid.UUID) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM recycle_transfers
		WHERE customer_id = $1 AND target_operator_id = $2
	`

	err := s.db.GetContext(ctx, &count, query, customerID, targetOperatorID)
	if err != nil {
		return 0, fmt.Errorf("failed to count recycle transfers: %w", err)
	}

	return count, nil
}

// GetLastRecycleTransfer retrieves the most recent transfer of a customer
// onto a target operator, for cooldown evaluation.
func (s Store) GetLastRecycleTransfer(ctx context.Context, customerID, targetOperatorID uuid.UUID) (RecycleTransfer, error) {
	var transfer RecycleTransfer
	query := `
		SELECT id, customer_id, source_operator_id, target_operator_id, rule_id,
		       source_journey_state_id, target_journey_state_id, created_at
		FROM recycle_transfers
		WHERE customer_id = $1 AND target_operator_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	err := s.db.GetContext(ctx, &transfer, query, customerID, targetOperatorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return RecycleTransfer{}, ErrNotFound
		}
		return RecycleTransfer{}, fmt.Errorf("failed to get last recycle transfer: %w", err)
	}

	return transfer, nil
}

// RecycleCustomerParams represents parameters for a transactional transfer
type RecycleCustomerParams struct {
	CustomerID       uuid.UUID
	SourceOperatorID uuid.UUID
	TargetOperatorID uuid.UUID
	RuleID           *uuid.UUID
}

// RecycleCustomer performs the transfer in one transaction: the source
// journey state is marked recycled (excluding it from future scheduling), a
// journey state for the target pair is created or reset to the undefined
// stage, and a transfer row is recorded for cap/cooldown accounting. Any
// failure rolls back every step. The recycled_at guard on the source row
// makes concurrent double-recycles impossible: the loser matches zero rows
// and gets ErrNotFound.
func (s Store) RecycleCustomer(ctx context.Context, params RecycleCustomerParams) (JourneyState, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return JourneyState{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Retire the source pairing.
	var sourceStateID uuid.UUID
	retireSource := `
		UPDATE journey_states
		SET recycled_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE customer_id = $1 AND operator_id = $2 AND recycled_at IS NULL
		RETURNING id
	`
	err = tx.GetContext(ctx, &sourceStateID, retireSource, params.CustomerID, params.SourceOperatorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return JourneyState{}, ErrNotFound
		}
		return JourneyState{}, fmt.Errorf("failed to retire source journey state: %w", err)
	}

	// Create or reset the target pairing at a fresh start. ON CONFLICT keeps
	// this safe against a concurrent insert for the same pair.
	var targetState JourneyState
	upsertTarget := `
		INSERT INTO journey_states (customer_id, operator_id, stage, current_journey)
		VALUES ($1, $2, -1, 'none')
		ON CONFLICT (customer_id, operator_id) DO UPDATE
		SET stage = -1,
		    deposit_count = 0,
		    total_deposit_value = 0,
		    current_journey = 'none',
		    recycled_at = NULL,
		    reset_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING ` + journeyStateColumns
	err = tx.GetContext(ctx, &targetState, upsertTarget, params.CustomerID, params.TargetOperatorID)
	if err != nil {
		return JourneyState{}, fmt.Errorf("failed to reset target journey state: %w", err)
	}

	insertTransfer := `
		INSERT INTO recycle_transfers (customer_id, source_operator_id, target_operator_id, rule_id,
		                               source_journey_state_id, target_journey_state_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.ExecContext(ctx, insertTransfer,
		params.CustomerID,
		params.SourceOperatorID,
		params.TargetOperatorID,
		params.RuleID,
		sourceStateID,
		targetState.ID,
	)
	if err != nil {
		return JourneyState{}, fmt.Errorf("failed to record recycle transfer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return JourneyState{}, fmt.Errorf("failed to commit recycle: %w", err)
	}

	return targetState, nil
}
