package processor

import (
	"context"
	"errors"

	identityProcessor "github.com/ibheelz/Todoalrojo-sub002/internal/identity/processor"
	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"
	"github.com/ibheelz/Todoalrojo-sub002/internal/store"

	"github.com/google/uuid"
)

var (
	ErrUnknownEventType    = errors.New("unknown event type")
	ErrOperatorNotFound    = errors.New("operator not found")
	ErrJourneyNotFound     = errors.New("journey state not found")
	ErrInvalidStage        = errors.New("invalid stage value")
	ErrUnknownAction       = errors.New("unknown journey action")
	ErrMissingDepositValue = errors.New("deposit event carries no amount")
)

// JourneyProcessor drives the per-(customer, operator) lifecycle from inbound
// operator postbacks and hands stage changes to the message scheduler in the
// same call, so there is no asynchronous gap a transition can fall into.
type JourneyProcessor struct {
	store     JourneyStore
	resolver  IdentityResolver
	scheduler MessageScheduler
	publisher EventPublisher
	logger    *observability.Logger
}

func New(store JourneyStore, resolver IdentityResolver, scheduler MessageScheduler, publisher EventPublisher, logger *observability.Logger) JourneyProcessor {
	return JourneyProcessor{
		store:     store,
		resolver:  resolver,
		scheduler: scheduler,
		publisher: publisher,
		logger:    logger,
	}
}

// PostbackRequest is a validated inbound operator postback
type PostbackRequest struct {
	OperatorID    uuid.UUID
	EventType     string
	ClickID       string
	Email         string
	Phone         string
	UserID        string
	EventKey      *string
	DepositAmount *float64
	Currency      *string
	RawPayload    store.JSONB
}

// PostbackResult reports what a postback did
type PostbackResult struct {
	PostbackID   uuid.UUID          `json:"postback_id"`
	CustomerID   uuid.UUID          `json:"customer_id"`
	JourneyState store.JourneyState `json:"journey_state"`
	Duplicate    bool               `json:"duplicate"`
}

// ProcessPostback ingests one operator event: resolves the customer, records
// the immutable audit row and advances the journey stage in one transaction,
// then schedules the resulting messages. Replays (same operator + event key)
// are detected by the postback uniqueness constraint and return the current
// state untouched.
func (p *JourneyProcessor) ProcessPostback(ctx context.Context, req PostbackRequest) (PostbackResult, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "operator_id", Value: req.OperatorID.String()},
		observability.Field{Key: "event_type", Value: req.EventType},
	)

	if !store.ValidEventTypes[req.EventType] {
		return PostbackResult{}, ErrUnknownEventType
	}

	operator, err := p.store.GetOperatorByID(ctx, req.OperatorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return PostbackResult{}, ErrOperatorNotFound
		}
		return PostbackResult{}, err
	}

	isDeposit := req.EventType == store.EventTypeFirstDeposit || req.EventType == store.EventTypeDeposit
	if isDeposit && req.DepositAmount == nil {
		return PostbackResult{}, ErrMissingDepositValue
	}

	customer, err := p.resolver.Resolve(ctx, identityProcessor.Signal{
		ClickID: req.ClickID,
		Email:   req.Email,
		Phone:   req.Phone,
	})
	if err != nil {
		return PostbackResult{}, err
	}
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "customer_id", Value: customer.ID.String()},
	)

	state, err := p.getOrCreateState(ctx, customer.ID, operator.ID)
	if err != nil {
		return PostbackResult{}, err
	}

	params := store.CreatePostbackParams{
		OperatorID:    operator.ID,
		CustomerID:    &customer.ID,
		EventType:     req.EventType,
		EventKey:      req.EventKey,
		DepositAmount: req.DepositAmount,
		Currency:      req.Currency,
		RawPayload:    req.RawPayload,
	}

	var postback store.OperatorPostback
	updated := state
	switch req.EventType {
	case store.EventTypeRegistration:
		postback, updated, err = p.processRegistration(ctx, state, params)
	case store.EventTypeFirstDeposit, store.EventTypeDeposit:
		postback, updated, err = p.processDeposit(ctx, state, params, req.EventType, *req.DepositAmount)
	case store.EventTypeWithdrawal:
		// Audit only; withdrawals never move the journey.
		postback, err = p.store.CreatePostback(ctx, params)
		if err == nil {
			err = p.store.TouchCustomer(ctx, customer.ID, 1, 0)
		}
	}
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Replayed event key: the audit row and the transition committed
			// together with the original delivery. Re-run the idempotent
			// scheduling pass so a crash between that commit and scheduling
			// is healed by the operator's retry; existing slots collide on
			// the message uniqueness constraint and are swallowed.
			if schedErr := p.scheduler.OnStageChanged(ctx, state); schedErr != nil {
				return PostbackResult{}, schedErr
			}
			p.logger.Info(ctx, "duplicate postback ignored")
			return PostbackResult{
				CustomerID:   customer.ID,
				JourneyState: state,
				Duplicate:    true,
			}, nil
		}
		return PostbackResult{}, err
	}

	return PostbackResult{
		PostbackID:   postback.ID,
		CustomerID:   customer.ID,
		JourneyState: updated,
		Duplicate:    false,
	}, nil
}

// getOrCreateState lazily creates the journey state for a pair. A concurrent
// create collapses on the pair uniqueness constraint and is re-read.
func (p *JourneyProcessor) getOrCreateState(ctx context.Context, customerID, operatorID uuid.UUID) (store.JourneyState, error) {
	state, err := p.store.GetJourneyState(ctx, customerID, operatorID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.JourneyState{}, err
	}

	state, err = p.store.CreateJourneyState(ctx, customerID, operatorID)
	if err == nil {
		return state, nil
	}
	if errors.Is(err, store.ErrConflict) {
		return p.store.GetJourneyState(ctx, customerID, operatorID)
	}
	return store.JourneyState{}, err
}

func (p *JourneyProcessor) processRegistration(ctx context.Context, state store.JourneyState, params store.CreatePostbackParams) (store.OperatorPostback, store.JourneyState, error) {
	postback, updated, applied, err := p.store.RecordRegistrationPostback(ctx, params, state.ID)
	if err != nil {
		return store.OperatorPostback{}, store.JourneyState{}, err
	}
	if !applied {
		// Already registered or already depositing; nothing to schedule.
		return postback, updated, nil
	}

	if err := p.store.TouchCustomer(ctx, updated.CustomerID, 1, 0); err != nil {
		p.logger.Error(ctx, "failed to update customer counters", err)
	}

	if err := p.scheduler.OnStageChanged(ctx, updated); err != nil {
		return store.OperatorPostback{}, store.JourneyState{}, err
	}
	p.publisher.PublishStageChanged(ctx, updated.CustomerID, updated.OperatorID, updated.Stage, updated.CurrentJourney)

	return postback, updated, nil
}

func (p *JourneyProcessor) processDeposit(ctx context.Context, state store.JourneyState, params store.CreatePostbackParams, eventType string, amount float64) (store.OperatorPostback, store.JourneyState, error) {
	// The transition model decides whether this deposit moves the pair onto a
	// different journey; the conditional SQL stays the concurrency guard.
	expected := NextStage(state.Stage, state.DepositCount+1, eventType)
	supersedes := state.CurrentJourney != expected.JourneyType

	postback, updated, applied, err := p.store.RecordDepositPostback(ctx, params, state.ID, amount)
	if err != nil {
		return store.OperatorPostback{}, store.JourneyState{}, err
	}
	if !applied {
		// Retired by a concurrent recycle; the deposit is audited but no
		// longer drives this pairing.
		return postback, updated, nil
	}

	if err := p.store.TouchCustomer(ctx, updated.CustomerID, 1, amount); err != nil {
		p.logger.Error(ctx, "failed to update customer counters", err)
	}

	// The first deposit supersedes the acquisition journey: still-pending
	// acquisition messages must never fire for a depositing customer.
	if supersedes {
		cancelled, err := p.store.CancelPendingMessages(ctx, updated.ID, store.JourneyAcquisition)
		if err != nil {
			return store.OperatorPostback{}, store.JourneyState{}, err
		}
		if cancelled > 0 {
			p.logger.Info(observability.WithFields(ctx,
				observability.Field{Key: "cancelled_messages", Value: cancelled},
			), "cancelled superseded acquisition messages")
		}
	}

	if err := p.scheduler.OnStageChanged(ctx, updated); err != nil {
		return store.OperatorPostback{}, store.JourneyState{}, err
	}
	p.publisher.PublishStageChanged(ctx, updated.CustomerID, updated.OperatorID, updated.Stage, updated.CurrentJourney)

	return postback, updated, nil
}

// GetJourneyState returns the current state for a pair
func (p *JourneyProcessor) GetJourneyState(ctx context.Context, customerID, operatorID uuid.UUID) (store.JourneyState, error) {
	state, err := p.store.GetJourneyState(ctx, customerID, operatorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.JourneyState{}, ErrJourneyNotFound
		}
		return store.JourneyState{}, err
	}
	return state, nil
}

// JourneyDetail is the state of a pair together with its message history
type JourneyDetail struct {
	JourneyState store.JourneyState     `json:"journey_state"`
	Messages     []store.JourneyMessage `json:"messages"`
}

// GetJourneyDetail returns the state for a pair plus every message the
// journey has scheduled, sent, cancelled or failed
func (p *JourneyProcessor) GetJourneyDetail(ctx context.Context, customerID, operatorID uuid.UUID) (JourneyDetail, error) {
	state, err := p.GetJourneyState(ctx, customerID, operatorID)
	if err != nil {
		return JourneyDetail{}, err
	}

	messages, err := p.store.ListMessagesByJourneyState(ctx, state.ID)
	if err != nil {
		return JourneyDetail{}, err
	}

	return JourneyDetail{JourneyState: state, Messages: messages}, nil
}

// UnsubscribeRequest selects which channels to opt out
type UnsubscribeRequest struct {
	Email  bool
	SMS    bool
	Global bool
}

// Unsubscribe flips the requested opt-out flags for a pair
func (p *JourneyProcessor) Unsubscribe(ctx context.Context, customerID, operatorID uuid.UUID, req UnsubscribeRequest) (store.JourneyState, error) {
	state, err := p.store.GetJourneyState(ctx, customerID, operatorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.JourneyState{}, ErrJourneyNotFound
		}
		return store.JourneyState{}, err
	}

	return p.store.SetUnsubscribed(ctx, state.ID, req.Email, req.SMS, req.Global)
}

// UpdateStage is the admin path for moving a journey's stage forward
func (p *JourneyProcessor) UpdateStage(ctx context.Context, customerID, operatorID uuid.UUID, stage int) (store.JourneyState, error) {
	if stage < store.StageUndefined || stage > store.StageHighValue {
		return store.JourneyState{}, ErrInvalidStage
	}

	state, err := p.store.GetJourneyState(ctx, customerID, operatorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.JourneyState{}, ErrJourneyNotFound
		}
		return store.JourneyState{}, err
	}

	return p.store.AdminSetStage(ctx, state.ID, stage)
}
