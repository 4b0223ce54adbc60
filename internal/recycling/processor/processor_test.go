package processor

import (
	"context"
	"testing"
	"time"

	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"
	"github.com/ibheelz/Todoalrojo-sub002/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockRecyclingStore is a mock implementation of RecyclingStore
type MockRecyclingStore struct {
	mock.Mock
}

func (m *MockRecyclingStore) GetOperatorByID(ctx context.Context, operatorID uuid.UUID) (store.Operator, error) {
	args := m.Called(ctx, operatorID)
	return args.Get(0).(store.Operator), args.Error(1)
}

func (m *MockRecyclingStore) GetJourneyState(ctx context.Context, customerID, operatorID uuid.UUID) (store.JourneyState, error) {
	args := m.Called(ctx, customerID, operatorID)
	return args.Get(0).(store.JourneyState), args.Error(1)
}

func (m *MockRecyclingStore) ListRecyclingRules(ctx context.Context, sourceOperatorID, targetOperatorID uuid.UUID) ([]store.RecyclingRule, error) {
	args := m.Called(ctx, sourceOperatorID, targetOperatorID)
	return args.Get(0).([]store.RecyclingRule), args.Error(1)
}

func (m *MockRecyclingStore) ListAllRecyclingRules(ctx context.Context) ([]store.RecyclingRule, error) {
	args := m.Called(ctx)
	return args.Get(0).([]store.RecyclingRule), args.Error(1)
}

func (m *MockRecyclingStore) CreateRecyclingRule(ctx context.Context, params store.CreateRecyclingRuleParams) (store.RecyclingRule, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(store.RecyclingRule), args.Error(1)
}

func (m *MockRecyclingStore) CountRecycleTransfers(ctx context.Context, customerID, targetOperatorID uuid.UUID) (int, error) {
	args := m.Called(ctx, customerID, targetOperatorID)
	return args.Int(0), args.Error(1)
}

func (m *MockRecyclingStore) GetLastRecycleTransfer(ctx context.Context, customerID, targetOperatorID uuid.UUID) (store.RecycleTransfer, error) {
	args := m.Called(ctx, customerID, targetOperatorID)
	return args.Get(0).(store.RecycleTransfer), args.Error(1)
}

func (m *MockRecyclingStore) RecycleCustomer(ctx context.Context, params store.RecycleCustomerParams) (store.JourneyState, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(store.JourneyState), args.Error(1)
}

func (m *MockRecyclingStore) ListActiveJourneyStatesByOperator(ctx context.Context, operatorID uuid.UUID, limit int) ([]store.JourneyState, error) {
	args := m.Called(ctx, operatorID, limit)
	return args.Get(0).([]store.JourneyState), args.Error(1)
}

// MockPublisher is a mock implementation of EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishCustomerRecycled(ctx context.Context, customerID, sourceOperatorID, targetOperatorID uuid.UUID) {
	m.Called(ctx, customerID, sourceOperatorID, targetOperatorID)
}

type recyclingFixture struct {
	store     *MockRecyclingStore
	publisher *MockPublisher
	processor *RecyclingProcessor

	customerID uuid.UUID
	sourceID   uuid.UUID
	targetID   uuid.UUID
	now        time.Time
}

func newRecyclingFixture() *recyclingFixture {
	f := &recyclingFixture{
		store:      new(MockRecyclingStore),
		publisher:  new(MockPublisher),
		customerID: uuid.New(),
		sourceID:   uuid.New(),
		targetID:   uuid.New(),
		now:        time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	f.processor = New(f.store, f.publisher, observability.NewLogger())
	f.processor.now = func() time.Time { return f.now }
	return f
}

func (f *recyclingFixture) rule(mutate func(*store.RecyclingRule)) store.RecyclingRule {
	rule := store.RecyclingRule{
		ID:                      uuid.New(),
		SourceOperatorID:        f.sourceID,
		TargetOperatorID:        f.targetID,
		MinDaysSinceLastDeposit: 30,
		MinStage:                store.StageRegistered,
		MaxStage:                store.StageSecondDeposit,
		ExcludeHighValue:        true,
		MaxRecyclesPerUser:      2,
		CooldownDays:            14,
		Priority:                10,
	}
	if mutate != nil {
		mutate(&rule)
	}
	return rule
}

func (f *recyclingFixture) expectState(state store.JourneyState) {
	f.store.On("GetJourneyState", mock.Anything, f.customerID, f.sourceID).Return(state, nil)
	f.store.On("GetOperatorByID", mock.Anything, f.sourceID).Return(store.Operator{ID: f.sourceID}, nil)
}

func daysAgo(now time.Time, days int) *time.Time {
	t := now.Add(-time.Duration(days) * 24 * time.Hour)
	return &t
}

func TestCheckEligibility_DormantRegisteredCustomerIsEligible(t *testing.T) {
	f := newRecyclingFixture()

	f.expectState(store.JourneyState{
		CustomerID:    f.customerID,
		OperatorID:    f.sourceID,
		Stage:         store.StageFirstDeposit,
		LastDepositAt: daysAgo(f.now, 45),
	})
	f.store.On("ListRecyclingRules", mock.Anything, f.sourceID, f.targetID).
		Return([]store.RecyclingRule{f.rule(nil)}, nil)
	f.store.On("CountRecycleTransfers", mock.Anything, f.customerID, f.targetID).Return(0, nil)
	f.store.On("GetLastRecycleTransfer", mock.Anything, f.customerID, f.targetID).
		Return(store.RecycleTransfer{}, store.ErrNotFound)

	eligibility, err := f.processor.CheckEligibility(context.Background(), f.customerID, f.sourceID, f.targetID)

	assert.NoError(t, err)
	assert.True(t, eligibility.Eligible)
	assert.NotNil(t, eligibility.Rule)
}

func TestCheckEligibility_RecentDepositorIsNotEligible(t *testing.T) {
	f := newRecyclingFixture()

	f.expectState(store.JourneyState{
		CustomerID:    f.customerID,
		OperatorID:    f.sourceID,
		Stage:         store.StageFirstDeposit,
		LastDepositAt: daysAgo(f.now, 5),
	})
	f.store.On("ListRecyclingRules", mock.Anything, f.sourceID, f.targetID).
		Return([]store.RecyclingRule{f.rule(nil)}, nil)

	eligibility, err := f.processor.CheckEligibility(context.Background(), f.customerID, f.sourceID, f.targetID)

	assert.NoError(t, err)
	assert.False(t, eligibility.Eligible)
	assert.Contains(t, eligibility.Reason, "last deposit")
}

func TestCheckEligibility_HighValueCustomerIsExcluded(t *testing.T) {
	f := newRecyclingFixture()

	f.expectState(store.JourneyState{
		CustomerID:    f.customerID,
		OperatorID:    f.sourceID,
		Stage:         store.StageHighValue,
		LastDepositAt: daysAgo(f.now, 90),
	})
	f.store.On("ListRecyclingRules", mock.Anything, f.sourceID, f.targetID).
		Return([]store.RecyclingRule{f.rule(nil)}, nil)

	eligibility, err := f.processor.CheckEligibility(context.Background(), f.customerID, f.sourceID, f.targetID)

	assert.NoError(t, err)
	assert.False(t, eligibility.Eligible)
}

// Recycled onto the target 10 days ago against a 14 day cooldown.
func TestCheckEligibility_CooldownBlocksRecentTransfer(t *testing.T) {
	f := newRecyclingFixture()

	f.expectState(store.JourneyState{
		CustomerID:    f.customerID,
		OperatorID:    f.sourceID,
		Stage:         store.StageFirstDeposit,
		LastDepositAt: daysAgo(f.now, 45),
	})
	f.store.On("ListRecyclingRules", mock.Anything, f.sourceID, f.targetID).
		Return([]store.RecyclingRule{f.rule(nil)}, nil)
	f.store.On("CountRecycleTransfers", mock.Anything, f.customerID, f.targetID).Return(1, nil)
	f.store.On("GetLastRecycleTransfer", mock.Anything, f.customerID, f.targetID).
		Return(store.RecycleTransfer{CreatedAt: *daysAgo(f.now, 10)}, nil)

	eligibility, err := f.processor.CheckEligibility(context.Background(), f.customerID, f.sourceID, f.targetID)

	assert.NoError(t, err)
	assert.False(t, eligibility.Eligible)
	assert.Contains(t, eligibility.Reason, "cooldown")
}

func TestCheckEligibility_PerUserCapBlocksTransfer(t *testing.T) {
	f := newRecyclingFixture()

	f.expectState(store.JourneyState{
		CustomerID:    f.customerID,
		OperatorID:    f.sourceID,
		Stage:         store.StageFirstDeposit,
		LastDepositAt: daysAgo(f.now, 45),
	})
	f.store.On("ListRecyclingRules", mock.Anything, f.sourceID, f.targetID).
		Return([]store.RecyclingRule{f.rule(nil)}, nil)
	f.store.On("CountRecycleTransfers", mock.Anything, f.customerID, f.targetID).Return(2, nil)

	eligibility, err := f.processor.CheckEligibility(context.Background(), f.customerID, f.sourceID, f.targetID)

	assert.NoError(t, err)
	assert.False(t, eligibility.Eligible)
	assert.Contains(t, eligibility.Reason, "already recycled")
}

func TestCheckEligibility_HigherPriorityRuleWins(t *testing.T) {
	f := newRecyclingFixture()

	f.expectState(store.JourneyState{
		CustomerID:    f.customerID,
		OperatorID:    f.sourceID,
		Stage:         store.StageSecondDeposit,
		LastDepositAt: daysAgo(f.now, 45),
	})

	// Lenient rule at priority 20, strict rule at priority 10; rules arrive
	// priority-descending from the store.
	lenient := f.rule(func(r *store.RecyclingRule) {
		r.Priority = 20
		r.MinDaysSinceLastDeposit = 7
	})
	strict := f.rule(func(r *store.RecyclingRule) {
		r.Priority = 10
		r.MaxStage = store.StageFirstDeposit
	})
	f.store.On("ListRecyclingRules", mock.Anything, f.sourceID, f.targetID).
		Return([]store.RecyclingRule{lenient, strict}, nil)
	f.store.On("CountRecycleTransfers", mock.Anything, f.customerID, f.targetID).Return(0, nil)
	f.store.On("GetLastRecycleTransfer", mock.Anything, f.customerID, f.targetID).
		Return(store.RecycleTransfer{}, store.ErrNotFound)

	eligibility, err := f.processor.CheckEligibility(context.Background(), f.customerID, f.sourceID, f.targetID)

	assert.NoError(t, err)
	assert.True(t, eligibility.Eligible)
	assert.Equal(t, lenient.ID, eligibility.Rule.ID)
}

func TestCheckEligibility_NoRuleConfigured(t *testing.T) {
	f := newRecyclingFixture()

	f.expectState(store.JourneyState{CustomerID: f.customerID, OperatorID: f.sourceID, Stage: store.StageRegistered})
	f.store.On("ListRecyclingRules", mock.Anything, f.sourceID, f.targetID).
		Return([]store.RecyclingRule{}, nil)

	_, err := f.processor.CheckEligibility(context.Background(), f.customerID, f.sourceID, f.targetID)

	assert.ErrorIs(t, err, ErrNoRuleConfigured)
}

func TestRecycle_TransfersEligibleCustomer(t *testing.T) {
	f := newRecyclingFixture()
	rule := f.rule(nil)

	f.expectState(store.JourneyState{
		CustomerID:    f.customerID,
		OperatorID:    f.sourceID,
		Stage:         store.StageFirstDeposit,
		LastDepositAt: daysAgo(f.now, 45),
	})
	f.store.On("ListRecyclingRules", mock.Anything, f.sourceID, f.targetID).
		Return([]store.RecyclingRule{rule}, nil)
	f.store.On("CountRecycleTransfers", mock.Anything, f.customerID, f.targetID).Return(0, nil)
	f.store.On("GetLastRecycleTransfer", mock.Anything, f.customerID, f.targetID).
		Return(store.RecycleTransfer{}, store.ErrNotFound)

	fresh := store.JourneyState{
		ID:         uuid.New(),
		CustomerID: f.customerID,
		OperatorID: f.targetID,
		Stage:      store.StageUndefined,
	}
	f.store.On("RecycleCustomer", mock.Anything, store.RecycleCustomerParams{
		CustomerID:       f.customerID,
		SourceOperatorID: f.sourceID,
		TargetOperatorID: f.targetID,
		RuleID:           &rule.ID,
	}).Return(fresh, nil)
	f.publisher.On("PublishCustomerRecycled", mock.Anything, f.customerID, f.sourceID, f.targetID).Return()

	targetState, err := f.processor.Recycle(context.Background(), f.customerID, f.sourceID, f.targetID)

	assert.NoError(t, err)
	assert.Equal(t, store.StageUndefined, targetState.Stage)
	f.publisher.AssertExpectations(t)
}

func TestRecycle_IneligibleCustomerIsRejected(t *testing.T) {
	f := newRecyclingFixture()

	f.expectState(store.JourneyState{
		CustomerID:    f.customerID,
		OperatorID:    f.sourceID,
		Stage:         store.StageFirstDeposit,
		LastDepositAt: daysAgo(f.now, 5),
	})
	f.store.On("ListRecyclingRules", mock.Anything, f.sourceID, f.targetID).
		Return([]store.RecyclingRule{f.rule(nil)}, nil)

	_, err := f.processor.Recycle(context.Background(), f.customerID, f.sourceID, f.targetID)

	assert.ErrorIs(t, err, ErrNotEligible)
	f.store.AssertNotCalled(t, "RecycleCustomer", mock.Anything, mock.Anything)
}

func TestRecycle_LosingTheRaceReturnsAlreadyRecycled(t *testing.T) {
	f := newRecyclingFixture()

	f.expectState(store.JourneyState{
		CustomerID:    f.customerID,
		OperatorID:    f.sourceID,
		Stage:         store.StageFirstDeposit,
		LastDepositAt: daysAgo(f.now, 45),
	})
	f.store.On("ListRecyclingRules", mock.Anything, f.sourceID, f.targetID).
		Return([]store.RecyclingRule{f.rule(nil)}, nil)
	f.store.On("CountRecycleTransfers", mock.Anything, f.customerID, f.targetID).Return(0, nil)
	f.store.On("GetLastRecycleTransfer", mock.Anything, f.customerID, f.targetID).
		Return(store.RecycleTransfer{}, store.ErrNotFound)
	f.store.On("RecycleCustomer", mock.Anything, mock.Anything).
		Return(store.JourneyState{}, store.ErrNotFound)

	_, err := f.processor.Recycle(context.Background(), f.customerID, f.sourceID, f.targetID)

	assert.ErrorIs(t, err, ErrAlreadyRecycled)
	f.publisher.AssertNotCalled(t, "PublishCustomerRecycled", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateRule_RejectsSameOperatorPair(t *testing.T) {
	f := newRecyclingFixture()

	_, err := f.processor.CreateRule(context.Background(), store.CreateRecyclingRuleParams{
		SourceOperatorID: f.sourceID,
		TargetOperatorID: f.sourceID,
	})

	assert.Error(t, err)
}
