package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ibheelz/Todoalrojo-sub002/internal/config"
	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"
	"github.com/ibheelz/Todoalrojo-sub002/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// fakeDispatchStore is an in-memory DispatcherStore with the same conditional
// transition semantics as the real one. Safe for concurrent sweeps.
type fakeDispatchStore struct {
	mu        sync.Mutex
	messages  map[uuid.UUID]*store.JourneyMessage
	states    map[uuid.UUID]store.JourneyState
	customers map[uuid.UUID]store.Customer
	operators map[uuid.UUID]store.Operator
	sentCount map[uuid.UUID]int
}

func newFakeDispatchStore() *fakeDispatchStore {
	return &fakeDispatchStore{
		messages:  make(map[uuid.UUID]*store.JourneyMessage),
		states:    make(map[uuid.UUID]store.JourneyState),
		customers: make(map[uuid.UUID]store.Customer),
		operators: make(map[uuid.UUID]store.Operator),
		sentCount: make(map[uuid.UUID]int),
	}
}

func (f *fakeDispatchStore) GetDueMessages(ctx context.Context, limit int) ([]store.JourneyMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []store.JourneyMessage
	for _, m := range f.messages {
		if m.Status == store.MessageStatusPending && !m.ScheduledFor.After(time.Now()) {
			due = append(due, *m)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (f *fakeDispatchStore) ClaimMessage(ctx context.Context, messageID uuid.UUID) (store.JourneyMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok || m.Status != store.MessageStatusPending {
		return store.JourneyMessage{}, store.ErrNotFound
	}
	m.Status = store.MessageStatusSending
	return *m, nil
}

func (f *fakeDispatchStore) MarkMessageSent(ctx context.Context, messageID uuid.UUID, providerID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok || m.Status != store.MessageStatusSending {
		return store.ErrNotFound
	}
	m.Status = store.MessageStatusSent
	m.ProviderID = &providerID
	m.Content = content
	return nil
}

func (f *fakeDispatchStore) MarkMessageFailed(ctx context.Context, messageID uuid.UUID, sendErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok || m.Status != store.MessageStatusSending {
		return store.ErrNotFound
	}
	m.Status = store.MessageStatusFailed
	m.Error = &sendErr
	return nil
}

func (f *fakeDispatchStore) GetJourneyStateByID(ctx context.Context, journeyStateID uuid.UUID) (store.JourneyState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[journeyStateID]
	if !ok {
		return store.JourneyState{}, store.ErrNotFound
	}
	return state, nil
}

func (f *fakeDispatchStore) GetOperatorByID(ctx context.Context, operatorID uuid.UUID) (store.Operator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	operator, ok := f.operators[operatorID]
	if !ok {
		return store.Operator{}, store.ErrNotFound
	}
	return operator, nil
}

func (f *fakeDispatchStore) GetCustomerByID(ctx context.Context, customerID uuid.UUID) (store.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	customer, ok := f.customers[customerID]
	if !ok {
		return store.Customer{}, store.ErrNotFound
	}
	return customer, nil
}

func (f *fakeDispatchStore) IncrementChannelSent(ctx context.Context, journeyStateID uuid.UUID, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentCount[journeyStateID]++
	return nil
}

func (f *fakeDispatchStore) countByStatus(status string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, m := range f.messages {
		if m.Status == status {
			count++
		}
	}
	return count
}

// countingEmailClient records sends and optionally fails specific recipients
type countingEmailClient struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]error
}

func (c *countingEmailClient) SendEmail(ctx context.Context, from, to, subject, htmlContent string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failFor[to]; ok {
		return "", err
	}
	c.sent = append(c.sent, to)
	return "re_" + uuid.New().String(), nil
}

type countingSMSClient struct {
	mu   sync.Mutex
	sent []string
}

func (c *countingSMSClient) SendSMS(ctx context.Context, from, to, body string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, to)
	return "SM" + uuid.New().String(), nil
}

type noopPublisher struct{}

func (noopPublisher) PublishMessageSent(ctx context.Context, customerID uuid.UUID, messageID uuid.UUID, channel string) {
}

func newTestDispatcher(fake *fakeDispatchStore, email EmailClient, sms SMSClient) *Dispatcher {
	return NewDispatcher(
		fake,
		email,
		sms,
		noopPublisher{},
		config.SendersConfig{DefaultEmailSender: "noreply@example.com", TwilioFromNumber: "+15550000000"},
		config.DispatcherConfig{SendTimeout: 5 * time.Second},
		observability.NewLogger(),
	)
}

// seedEmailMessage wires up an operator, customer, journey state and one due
// pending email message. A nil email leaves the customer unreachable.
func seedEmailMessage(fake *fakeDispatchStore, email *string) uuid.UUID {
	operatorID := uuid.New()
	customerID := uuid.New()
	stateID := uuid.New()
	messageID := uuid.New()

	fake.operators[operatorID] = store.Operator{ID: operatorID, Name: "Rojabet", Brand: "rojabet", EmailEnabled: true}
	fake.customers[customerID] = store.Customer{ID: customerID, MasterEmail: email}
	fake.states[stateID] = store.JourneyState{ID: stateID, CustomerID: customerID, OperatorID: operatorID, CurrentJourney: store.JourneyAcquisition}
	fake.messages[messageID] = &store.JourneyMessage{
		ID:             messageID,
		JourneyStateID: stateID,
		Channel:        store.ChannelEmail,
		JourneyType:    store.JourneyAcquisition,
		DayNumber:      0,
		Status:         store.MessageStatusPending,
		ScheduledFor:   time.Now().Add(-time.Minute),
		Subject:        strPtr("Welcome"),
		Content:        "Hello {{operator_brand}}",
	}
	return messageID
}

// A batch where some customers have no reachable address: the unreachable
// ones fail terminally, the rest are sent, and the sweep never raises.
func TestProcessDue_PartialBatchFailure(t *testing.T) {
	fake := newFakeDispatchStore()
	email := &countingEmailClient{}

	for i := 0; i < 97; i++ {
		addr := fmt.Sprintf("player%d@example.com", i)
		seedEmailMessage(fake, &addr)
	}
	for i := 0; i < 3; i++ {
		seedEmailMessage(fake, nil)
	}

	summary, err := newTestDispatcher(fake, email, &countingSMSClient{}).ProcessDue(context.Background(), 200)

	assert.NoError(t, err)
	assert.Equal(t, 97, summary.Sent)
	assert.Equal(t, 3, summary.Failed)
	assert.Equal(t, 97, fake.countByStatus(store.MessageStatusSent))
	assert.Equal(t, 3, fake.countByStatus(store.MessageStatusFailed))
	assert.Len(t, email.sent, 97)
}

func TestProcessDue_ProviderErrorMarksFailed(t *testing.T) {
	fake := newFakeDispatchStore()
	addr := "bouncing@example.com"
	messageID := seedEmailMessage(fake, &addr)
	email := &countingEmailClient{failFor: map[string]error{addr: errors.New("550 mailbox unavailable")}}

	summary, err := newTestDispatcher(fake, email, &countingSMSClient{}).ProcessDue(context.Background(), 10)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, store.MessageStatusFailed, fake.messages[messageID].Status)
	assert.Contains(t, *fake.messages[messageID].Error, "550")
}

func TestProcessDue_SentMessageRecordsProviderIDAndContent(t *testing.T) {
	fake := newFakeDispatchStore()
	addr := "player@example.com"
	messageID := seedEmailMessage(fake, &addr)

	summary, err := newTestDispatcher(fake, &countingEmailClient{}, &countingSMSClient{}).ProcessDue(context.Background(), 10)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	message := fake.messages[messageID]
	assert.Equal(t, store.MessageStatusSent, message.Status)
	assert.NotNil(t, message.ProviderID)
	assert.Equal(t, "Hello rojabet", message.Content)
	assert.Equal(t, 1, fake.sentCount[message.JourneyStateID])
}

// Opting out between scheduling and delivery suppresses the send.
func TestProcessDue_UnsubscribedAtSendTimeIsSuppressed(t *testing.T) {
	fake := newFakeDispatchStore()
	addr := "player@example.com"
	messageID := seedEmailMessage(fake, &addr)
	email := &countingEmailClient{}

	stateID := fake.messages[messageID].JourneyStateID
	state := fake.states[stateID]
	state.EmailUnsubscribed = true
	fake.states[stateID] = state

	summary, err := newTestDispatcher(fake, email, &countingSMSClient{}).ProcessDue(context.Background(), 10)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, email.sent)
	assert.Equal(t, store.MessageStatusFailed, fake.messages[messageID].Status)
}

// A deposit can race in after the cancellation sweep and flip the journey to
// retention while acquisition rows are still pending. Delivery must notice
// the stale journey type and drop them instead of sending.
func TestProcessDue_StaleJourneyTypeIsSuperseded(t *testing.T) {
	fake := newFakeDispatchStore()
	addr := "player@example.com"
	messageID := seedEmailMessage(fake, &addr)
	email := &countingEmailClient{}

	stateID := fake.messages[messageID].JourneyStateID
	state := fake.states[stateID]
	state.CurrentJourney = store.JourneyRetention
	state.Stage = store.StageFirstDeposit
	fake.states[stateID] = state

	summary, err := newTestDispatcher(fake, email, &countingSMSClient{}).ProcessDue(context.Background(), 10)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, email.sent)
	assert.Equal(t, store.MessageStatusFailed, fake.messages[messageID].Status)
	assert.Contains(t, *fake.messages[messageID].Error, "superseded")
}

// Leftover pending messages of a recycled (retired) journey must not fire.
func TestProcessDue_RecycledJourneyIsSuperseded(t *testing.T) {
	fake := newFakeDispatchStore()
	addr := "player@example.com"
	messageID := seedEmailMessage(fake, &addr)
	email := &countingEmailClient{}

	stateID := fake.messages[messageID].JourneyStateID
	state := fake.states[stateID]
	recycledAt := time.Now().Add(-time.Hour)
	state.RecycledAt = &recycledAt
	fake.states[stateID] = state

	summary, err := newTestDispatcher(fake, email, &countingSMSClient{}).ProcessDue(context.Background(), 10)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, email.sent)
	assert.Contains(t, *fake.messages[messageID].Error, "recycled")
}

// Two sweeps racing over the same batch must split it: every message is
// delivered exactly once because the pending→sending claim is conditional.
func TestProcessDue_AtMostOnceUnderConcurrentSweeps(t *testing.T) {
	fake := newFakeDispatchStore()
	email := &countingEmailClient{}

	for i := 0; i < 50; i++ {
		addr := fmt.Sprintf("player%d@example.com", i)
		seedEmailMessage(fake, &addr)
	}

	dispatcher := newTestDispatcher(fake, email, &countingSMSClient{})

	var wg sync.WaitGroup
	summaries := make([]Summary, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summary, err := dispatcher.ProcessDue(context.Background(), 50)
			assert.NoError(t, err)
			summaries[i] = summary
		}(i)
	}
	wg.Wait()

	totalSent := 0
	for _, summary := range summaries {
		totalSent += summary.Sent
	}
	assert.Equal(t, 50, totalSent)
	assert.Len(t, email.sent, 50)
	assert.Equal(t, 50, fake.countByStatus(store.MessageStatusSent))
}

func TestPersonalize_SubstitutesPlaceholders(t *testing.T) {
	email := "player@example.com"
	customer := store.Customer{MasterEmail: &email}
	operator := store.Operator{Name: "Rojabet Chile", Brand: "rojabet"}

	got := personalize("Hola {{customer_email}}, bienvenido a {{operator_name}} ({{operator_brand}})", customer, operator)

	assert.Equal(t, "Hola player@example.com, bienvenido a Rojabet Chile (rojabet)", got)
}
