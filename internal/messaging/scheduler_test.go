package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/ibheelz/Todoalrojo-sub002/internal/config"
	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"
	"github.com/ibheelz/Todoalrojo-sub002/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockSchedulerStore is a mock implementation of SchedulerStore
type MockSchedulerStore struct {
	mock.Mock
}

func (m *MockSchedulerStore) GetOperatorByID(ctx context.Context, operatorID uuid.UUID) (store.Operator, error) {
	args := m.Called(ctx, operatorID)
	return args.Get(0).(store.Operator), args.Error(1)
}

func (m *MockSchedulerStore) ListMessageTemplates(ctx context.Context, operatorID uuid.UUID, journeyType string) ([]store.MessageTemplate, error) {
	args := m.Called(ctx, operatorID, journeyType)
	return args.Get(0).([]store.MessageTemplate), args.Error(1)
}

func (m *MockSchedulerStore) CountCustomerMessagesInWindow(ctx context.Context, customerID uuid.UUID, channel string, from, to time.Time) (int, error) {
	args := m.Called(ctx, customerID, channel, from, to)
	return args.Int(0), args.Error(1)
}

func (m *MockSchedulerStore) CreateScheduledMessage(ctx context.Context, params store.CreateScheduledMessageParams) (store.JourneyMessage, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(store.JourneyMessage), args.Error(1)
}

func strPtr(s string) *string { return &s }

func acquisitionTemplates(operatorID uuid.UUID) []store.MessageTemplate {
	return []store.MessageTemplate{
		{OperatorID: operatorID, JourneyType: store.JourneyAcquisition, DayNumber: 0, Channel: store.ChannelEmail, Subject: strPtr("Welcome"), Body: "Hi {{operator_brand}} player", Enabled: true},
		{OperatorID: operatorID, JourneyType: store.JourneyAcquisition, DayNumber: 1, Channel: store.ChannelSMS, Body: "Come back", Enabled: true},
		{OperatorID: operatorID, JourneyType: store.JourneyAcquisition, DayNumber: 3, Channel: store.ChannelEmail, Subject: strPtr("Still there?"), Body: "Deposit now", Enabled: true},
	}
}

func newTestScheduler(s SchedulerStore, now time.Time) *Scheduler {
	scheduler := NewScheduler(s, config.ThrottleConfig{MaxEmailPerDay: 3, MaxSMSPerDay: 2}, observability.NewLogger())
	scheduler.now = func() time.Time { return now }
	return scheduler
}

func TestOnStageChanged_SchedulesTemplatesAtDayOffsets(t *testing.T) {
	mockStore := new(MockSchedulerStore)
	operatorID := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	state := store.JourneyState{
		ID:             uuid.New(),
		CustomerID:     uuid.New(),
		OperatorID:     operatorID,
		Stage:          store.StageRegistered,
		CurrentJourney: store.JourneyAcquisition,
	}

	mockStore.On("GetOperatorByID", mock.Anything, operatorID).
		Return(store.Operator{ID: operatorID, EmailEnabled: true, SMSEnabled: true}, nil)
	mockStore.On("ListMessageTemplates", mock.Anything, operatorID, store.JourneyAcquisition).
		Return(acquisitionTemplates(operatorID), nil)
	mockStore.On("CountCustomerMessagesInWindow", mock.Anything, state.CustomerID, mock.Anything, mock.Anything, mock.Anything).
		Return(0, nil)

	var created []store.CreateScheduledMessageParams
	mockStore.On("CreateScheduledMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			created = append(created, args.Get(1).(store.CreateScheduledMessageParams))
		}).
		Return(store.JourneyMessage{ID: uuid.New()}, nil)

	err := newTestScheduler(mockStore, now).OnStageChanged(context.Background(), state)

	assert.NoError(t, err)
	assert.Len(t, created, 3)
	assert.Equal(t, now, created[0].ScheduledFor)
	assert.Equal(t, now.Add(24*time.Hour), created[1].ScheduledFor)
	assert.Equal(t, now.Add(72*time.Hour), created[2].ScheduledFor)
	assert.Equal(t, state.ID, created[0].JourneyStateID)
}

func TestOnStageChanged_NoJourneySchedulesNothing(t *testing.T) {
	mockStore := new(MockSchedulerStore)

	err := newTestScheduler(mockStore, time.Now()).OnStageChanged(context.Background(), store.JourneyState{
		CurrentJourney: store.JourneyNone,
	})

	assert.NoError(t, err)
	mockStore.AssertNotCalled(t, "CreateScheduledMessage", mock.Anything, mock.Anything)
}

func TestOnStageChanged_SkipsDisabledChannel(t *testing.T) {
	mockStore := new(MockSchedulerStore)
	operatorID := uuid.New()

	state := store.JourneyState{
		ID:             uuid.New(),
		CustomerID:     uuid.New(),
		OperatorID:     operatorID,
		CurrentJourney: store.JourneyAcquisition,
	}

	mockStore.On("GetOperatorByID", mock.Anything, operatorID).
		Return(store.Operator{ID: operatorID, EmailEnabled: true, SMSEnabled: false}, nil)
	mockStore.On("ListMessageTemplates", mock.Anything, operatorID, store.JourneyAcquisition).
		Return(acquisitionTemplates(operatorID), nil)
	mockStore.On("CountCustomerMessagesInWindow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(0, nil)

	var channels []string
	mockStore.On("CreateScheduledMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			channels = append(channels, args.Get(1).(store.CreateScheduledMessageParams).Channel)
		}).
		Return(store.JourneyMessage{ID: uuid.New()}, nil)

	err := newTestScheduler(mockStore, time.Now()).OnStageChanged(context.Background(), state)

	assert.NoError(t, err)
	assert.Equal(t, []string{store.ChannelEmail, store.ChannelEmail}, channels)
}

func TestOnStageChanged_RespectsUnsubscribes(t *testing.T) {
	mockStore := new(MockSchedulerStore)
	operatorID := uuid.New()

	state := store.JourneyState{
		ID:                uuid.New(),
		CustomerID:        uuid.New(),
		OperatorID:        operatorID,
		CurrentJourney:    store.JourneyAcquisition,
		EmailUnsubscribed: true,
	}

	mockStore.On("GetOperatorByID", mock.Anything, operatorID).
		Return(store.Operator{ID: operatorID, EmailEnabled: true, SMSEnabled: true}, nil)
	mockStore.On("ListMessageTemplates", mock.Anything, operatorID, store.JourneyAcquisition).
		Return(acquisitionTemplates(operatorID), nil)
	mockStore.On("CountCustomerMessagesInWindow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(0, nil)

	var channels []string
	mockStore.On("CreateScheduledMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			channels = append(channels, args.Get(1).(store.CreateScheduledMessageParams).Channel)
		}).
		Return(store.JourneyMessage{ID: uuid.New()}, nil)

	err := newTestScheduler(mockStore, time.Now()).OnStageChanged(context.Background(), state)

	assert.NoError(t, err)
	assert.Equal(t, []string{store.ChannelSMS}, channels)
}

func TestOnStageChanged_GlobalUnsubscribeSuppressesEverything(t *testing.T) {
	mockStore := new(MockSchedulerStore)
	operatorID := uuid.New()

	state := store.JourneyState{
		ID:                 uuid.New(),
		CustomerID:         uuid.New(),
		OperatorID:         operatorID,
		CurrentJourney:     store.JourneyAcquisition,
		GlobalUnsubscribed: true,
	}

	mockStore.On("GetOperatorByID", mock.Anything, operatorID).
		Return(store.Operator{ID: operatorID, EmailEnabled: true, SMSEnabled: true}, nil)
	mockStore.On("ListMessageTemplates", mock.Anything, operatorID, store.JourneyAcquisition).
		Return(acquisitionTemplates(operatorID), nil)

	err := newTestScheduler(mockStore, time.Now()).OnStageChanged(context.Background(), state)

	assert.NoError(t, err)
	mockStore.AssertNotCalled(t, "CreateScheduledMessage", mock.Anything, mock.Anything)
}

// The cross-operator cap counts the customer's live messages in the rolling
// 24h window ending at each candidate slot.
func TestOnStageChanged_SkipsSlotsOverFrequencyCap(t *testing.T) {
	mockStore := new(MockSchedulerStore)
	operatorID := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	state := store.JourneyState{
		ID:             uuid.New(),
		CustomerID:     uuid.New(),
		OperatorID:     operatorID,
		CurrentJourney: store.JourneyAcquisition,
	}

	mockStore.On("GetOperatorByID", mock.Anything, operatorID).
		Return(store.Operator{ID: operatorID, EmailEnabled: true, SMSEnabled: true}, nil)
	mockStore.On("ListMessageTemplates", mock.Anything, operatorID, store.JourneyAcquisition).
		Return(acquisitionTemplates(operatorID), nil)

	// Day 0 email window is saturated by another operator; later slots are not.
	mockStore.On("CountCustomerMessagesInWindow", mock.Anything, state.CustomerID, store.ChannelEmail, now.Add(-24*time.Hour), now).
		Return(3, nil)
	mockStore.On("CountCustomerMessagesInWindow", mock.Anything, state.CustomerID, mock.Anything, mock.Anything, mock.Anything).
		Return(0, nil)

	var created []store.CreateScheduledMessageParams
	mockStore.On("CreateScheduledMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			created = append(created, args.Get(1).(store.CreateScheduledMessageParams))
		}).
		Return(store.JourneyMessage{ID: uuid.New()}, nil)

	err := newTestScheduler(mockStore, now).OnStageChanged(context.Background(), state)

	assert.NoError(t, err)
	assert.Len(t, created, 2)
	assert.Equal(t, 1, created[0].DayNumber)
	assert.Equal(t, 3, created[1].DayNumber)
}

// Replaying a transition collides on the slot constraint and schedules
// nothing new.
func TestOnStageChanged_DuplicateSlotsAreSwallowed(t *testing.T) {
	mockStore := new(MockSchedulerStore)
	operatorID := uuid.New()

	state := store.JourneyState{
		ID:             uuid.New(),
		CustomerID:     uuid.New(),
		OperatorID:     operatorID,
		CurrentJourney: store.JourneyAcquisition,
	}

	mockStore.On("GetOperatorByID", mock.Anything, operatorID).
		Return(store.Operator{ID: operatorID, EmailEnabled: true, SMSEnabled: true}, nil)
	mockStore.On("ListMessageTemplates", mock.Anything, operatorID, store.JourneyAcquisition).
		Return(acquisitionTemplates(operatorID), nil)
	mockStore.On("CountCustomerMessagesInWindow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(0, nil)
	mockStore.On("CreateScheduledMessage", mock.Anything, mock.Anything).
		Return(store.JourneyMessage{}, store.ErrConflict)

	err := newTestScheduler(mockStore, time.Now()).OnStageChanged(context.Background(), state)

	assert.NoError(t, err)
}
