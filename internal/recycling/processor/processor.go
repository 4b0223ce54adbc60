package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"
	"github.com/ibheelz/Todoalrojo-sub002/internal/store"

	"github.com/google/uuid"
)

var (
	ErrNotEligible      = errors.New("customer not eligible for recycling")
	ErrNoRuleConfigured = errors.New("no recycling rule configured for operator pair")
	ErrJourneyNotFound  = errors.New("journey state not found")
	ErrAlreadyRecycled  = errors.New("journey state already recycled")
)

// RecyclingProcessor evaluates recycling rules and executes customer
// transfers between operators. A transfer retires the source journey and
// resets the target journey to a fresh start in a single transaction; the
// recycled_at guard on the source row means concurrent attempts on the same
// pairing produce exactly one transfer.
type RecyclingProcessor struct {
	store     RecyclingStore
	publisher EventPublisher
	logger    *observability.Logger
	now       func() time.Time
}

func New(store RecyclingStore, publisher EventPublisher, logger *observability.Logger) *RecyclingProcessor {
	return &RecyclingProcessor{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Eligibility is the outcome of evaluating a customer against the rules for
// an operator pair.
type Eligibility struct {
	Eligible bool                 `json:"eligible"`
	Rule     *store.RecyclingRule `json:"rule,omitempty"`
	Reason   string               `json:"reason,omitempty"`
}

// CheckEligibility evaluates a customer's source journey against the rules
// for the pair, highest priority first. The first rule whose every criterion
// passes wins; when none passes, the reason of the highest-priority rule is
// reported.
func (p *RecyclingProcessor) CheckEligibility(ctx context.Context, customerID, sourceOperatorID, targetOperatorID uuid.UUID) (Eligibility, error) {
	state, err := p.store.GetJourneyState(ctx, customerID, sourceOperatorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Eligibility{}, ErrJourneyNotFound
		}
		return Eligibility{}, err
	}
	if state.RecycledAt != nil {
		return Eligibility{Eligible: false, Reason: "source journey already recycled"}, nil
	}

	sourceOperator, err := p.store.GetOperatorByID(ctx, sourceOperatorID)
	if err != nil {
		return Eligibility{}, fmt.Errorf("failed to load source operator: %w", err)
	}
	if sourceOperator.ProtectHighValue && state.Stage >= store.StageHighValue {
		return Eligibility{Eligible: false, Reason: "source operator protects high value customers"}, nil
	}

	rules, err := p.store.ListRecyclingRules(ctx, sourceOperatorID, targetOperatorID)
	if err != nil {
		return Eligibility{}, fmt.Errorf("failed to load recycling rules: %w", err)
	}
	if len(rules) == 0 {
		return Eligibility{}, ErrNoRuleConfigured
	}

	firstReason := ""
	for i := range rules {
		rule := rules[i]
		reason, err := p.evaluateRule(ctx, state, rule)
		if err != nil {
			return Eligibility{}, err
		}
		if reason == "" {
			return Eligibility{Eligible: true, Rule: &rule}, nil
		}
		if firstReason == "" {
			firstReason = reason
		}
	}

	return Eligibility{Eligible: false, Reason: firstReason}, nil
}

// evaluateRule returns an empty string when every criterion passes, otherwise
// the first failing criterion.
func (p *RecyclingProcessor) evaluateRule(ctx context.Context, state store.JourneyState, rule store.RecyclingRule) (string, error) {
	if state.Stage < rule.MinStage || state.Stage > rule.MaxStage {
		return fmt.Sprintf("stage %d outside rule range [%d, %d]", state.Stage, rule.MinStage, rule.MaxStage), nil
	}
	if rule.ExcludeHighValue && state.Stage >= store.StageHighValue {
		return "high value customers excluded", nil
	}

	if rule.MinDaysSinceLastDeposit > 0 && state.LastDepositAt != nil {
		daysSince := int(p.now().Sub(*state.LastDepositAt).Hours() / 24)
		if daysSince < rule.MinDaysSinceLastDeposit {
			return fmt.Sprintf("last deposit %d days ago, rule requires %d", daysSince, rule.MinDaysSinceLastDeposit), nil
		}
	}

	if rule.MaxRecyclesPerUser > 0 {
		transfers, err := p.store.CountRecycleTransfers(ctx, state.CustomerID, rule.TargetOperatorID)
		if err != nil {
			return "", fmt.Errorf("failed to count recycle transfers: %w", err)
		}
		if transfers >= rule.MaxRecyclesPerUser {
			return fmt.Sprintf("customer already recycled %d times onto target", transfers), nil
		}
	}

	if rule.CooldownDays > 0 {
		last, err := p.store.GetLastRecycleTransfer(ctx, state.CustomerID, rule.TargetOperatorID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("failed to load last recycle transfer: %w", err)
		}
		if err == nil {
			daysSince := int(p.now().Sub(last.CreatedAt).Hours() / 24)
			if daysSince < rule.CooldownDays {
				return fmt.Sprintf("recycled onto target %d days ago, cooldown is %d days", daysSince, rule.CooldownDays), nil
			}
		}
	}

	return "", nil
}

// Recycle transfers one eligible customer. The winning rule is recorded on
// the transfer row.
func (p *RecyclingProcessor) Recycle(ctx context.Context, customerID, sourceOperatorID, targetOperatorID uuid.UUID) (store.JourneyState, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "customer_id", Value: customerID.String()},
		observability.Field{Key: "source_operator_id", Value: sourceOperatorID.String()},
		observability.Field{Key: "target_operator_id", Value: targetOperatorID.String()},
	)

	eligibility, err := p.CheckEligibility(ctx, customerID, sourceOperatorID, targetOperatorID)
	if err != nil {
		return store.JourneyState{}, err
	}
	if !eligibility.Eligible {
		p.logger.Info(observability.WithFields(ctx,
			observability.Field{Key: "reason", Value: eligibility.Reason},
		), "customer not eligible for recycling")
		return store.JourneyState{}, fmt.Errorf("%w: %s", ErrNotEligible, eligibility.Reason)
	}

	var ruleID *uuid.UUID
	if eligibility.Rule != nil {
		ruleID = &eligibility.Rule.ID
	}

	targetState, err := p.store.RecycleCustomer(ctx, store.RecycleCustomerParams{
		CustomerID:       customerID,
		SourceOperatorID: sourceOperatorID,
		TargetOperatorID: targetOperatorID,
		RuleID:           ruleID,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Lost the race to a concurrent recycle of the same pairing.
			return store.JourneyState{}, ErrAlreadyRecycled
		}
		return store.JourneyState{}, err
	}

	p.logger.Info(ctx, "customer recycled")
	p.publisher.PublishCustomerRecycled(ctx, customerID, sourceOperatorID, targetOperatorID)

	return targetState, nil
}

// Candidate pairs a journey state with its eligibility outcome
type Candidate struct {
	JourneyState store.JourneyState `json:"journey_state"`
	Eligibility  Eligibility        `json:"eligibility"`
}

// ListEligible enumerates active source journeys and reports which are
// currently eligible for transfer onto the target.
func (p *RecyclingProcessor) ListEligible(ctx context.Context, sourceOperatorID, targetOperatorID uuid.UUID, limit int) ([]Candidate, error) {
	states, err := p.store.ListActiveJourneyStatesByOperator(ctx, sourceOperatorID, limit)
	if err != nil {
		return nil, err
	}

	var eligible []Candidate
	for _, state := range states {
		eligibility, err := p.CheckEligibility(ctx, state.CustomerID, sourceOperatorID, targetOperatorID)
		if err != nil {
			if errors.Is(err, ErrNoRuleConfigured) {
				return nil, err
			}
			p.logger.Error(ctx, "failed to evaluate recycling candidate", err)
			continue
		}
		if eligibility.Eligible {
			eligible = append(eligible, Candidate{JourneyState: state, Eligibility: eligibility})
		}
	}

	return eligible, nil
}

// RunSummary reports the outcome of a batch recycling run
type RunSummary struct {
	Evaluated int `json:"evaluated"`
	Recycled  int `json:"recycled"`
	Skipped   int `json:"skipped"`
}

// Run transfers every currently eligible customer from source to target.
// Per-customer losses to concurrent recycles are counted as skipped.
func (p *RecyclingProcessor) Run(ctx context.Context, sourceOperatorID, targetOperatorID uuid.UUID, limit int) (RunSummary, error) {
	states, err := p.store.ListActiveJourneyStatesByOperator(ctx, sourceOperatorID, limit)
	if err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{}
	for _, state := range states {
		summary.Evaluated++

		_, err := p.Recycle(ctx, state.CustomerID, sourceOperatorID, targetOperatorID)
		if err != nil {
			if errors.Is(err, ErrAlreadyRecycled) || errors.Is(err, ErrNotEligible) {
				summary.Skipped++
				continue
			}
			return summary, err
		}
		summary.Recycled++
	}

	return summary, nil
}

// CreateRule validates and stores a new recycling rule
func (p *RecyclingProcessor) CreateRule(ctx context.Context, params store.CreateRecyclingRuleParams) (store.RecyclingRule, error) {
	if params.SourceOperatorID == params.TargetOperatorID {
		return store.RecyclingRule{}, errors.New("source and target operators must differ")
	}
	if params.MinStage > params.MaxStage {
		return store.RecyclingRule{}, errors.New("min stage exceeds max stage")
	}

	if _, err := p.store.GetOperatorByID(ctx, params.SourceOperatorID); err != nil {
		return store.RecyclingRule{}, fmt.Errorf("source operator: %w", err)
	}
	if _, err := p.store.GetOperatorByID(ctx, params.TargetOperatorID); err != nil {
		return store.RecyclingRule{}, fmt.Errorf("target operator: %w", err)
	}

	return p.store.CreateRecyclingRule(ctx, params)
}

// ListRules retrieves every configured rule
func (p *RecyclingProcessor) ListRules(ctx context.Context) ([]store.RecyclingRule, error) {
	return p.store.ListAllRecyclingRules(ctx)
}
