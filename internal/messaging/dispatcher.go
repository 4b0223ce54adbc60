package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ibheelz/Todoalrojo-sub002/internal/config"
	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"
	"github.com/ibheelz/Todoalrojo-sub002/internal/store"

	"github.com/google/uuid"
)

// Summary reports the outcome of one dispatch sweep
type Summary struct {
	Processed int      `json:"processed"`
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// Dispatcher delivers due messages through the channel providers. Delivery is
// at-most-once: each message is claimed with a conditional pending→sending
// update before any provider call, so two sweeps racing over the same batch
// split it instead of double-sending. A failed message is terminal; there is
// no automatic retry.
type Dispatcher struct {
	store     DispatcherStore
	email     EmailClient
	sms       SMSClient
	publisher EventPublisher
	logger    *observability.Logger

	defaultEmailFrom string
	defaultSMSFrom   string
	sendTimeout      time.Duration
}

func NewDispatcher(
	store DispatcherStore,
	email EmailClient,
	sms SMSClient,
	publisher EventPublisher,
	senders config.SendersConfig,
	dispatcher config.DispatcherConfig,
	logger *observability.Logger,
) *Dispatcher {
	return &Dispatcher{
		store:            store,
		email:            email,
		sms:              sms,
		publisher:        publisher,
		logger:           logger,
		defaultEmailFrom: senders.DefaultEmailSender,
		defaultSMSFrom:   senders.TwilioFromNumber,
		sendTimeout:      dispatcher.SendTimeout,
	}
}

// ProcessDue claims and delivers up to limit due messages. Per-message
// failures are recorded on the message row and tallied in the summary; only a
// failure to enumerate the batch is returned as an error.
func (d *Dispatcher) ProcessDue(ctx context.Context, limit int) (Summary, error) {
	due, err := d.store.GetDueMessages(ctx, limit)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to get due messages: %w", err)
	}

	summary := Summary{}
	for _, message := range due {
		claimed, err := d.store.ClaimMessage(ctx, message.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Another sweep got there first.
				summary.Skipped++
				continue
			}
			summary.Errors = append(summary.Errors, fmt.Sprintf("claim %s: %v", message.ID, err))
			continue
		}

		summary.Processed++
		if d.deliver(ctx, claimed, &summary) {
			summary.Sent++
		} else {
			summary.Failed++
		}
	}

	if summary.Processed > 0 || summary.Skipped > 0 {
		d.logger.Info(observability.WithFields(ctx,
			observability.Field{Key: "sent", Value: summary.Sent},
			observability.Field{Key: "failed", Value: summary.Failed},
			observability.Field{Key: "skipped", Value: summary.Skipped},
		), "dispatch sweep completed")
	}

	return summary, nil
}

// deliver sends one claimed message and records its terminal state. Returns
// true when the message was sent.
func (d *Dispatcher) deliver(ctx context.Context, message store.JourneyMessage, summary *Summary) bool {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "message_id", Value: message.ID.String()},
		observability.Field{Key: "channel", Value: message.Channel},
	)

	state, err := d.store.GetJourneyStateByID(ctx, message.JourneyStateID)
	if err != nil {
		return d.fail(ctx, message.ID, summary, fmt.Sprintf("load journey state: %v", err))
	}

	// The journey can move on between scheduling and delivery: a racing
	// deposit can flip acquisition to retention after the cancellation sweep
	// ran, and a recycle can retire the pairing outright. Messages keyed to a
	// journey the state is no longer on must not fire.
	if state.RecycledAt != nil {
		return d.fail(ctx, message.ID, summary, "superseded: journey recycled")
	}
	if message.JourneyType != state.CurrentJourney {
		return d.fail(ctx, message.ID, summary, fmt.Sprintf("superseded: journey moved to %s", state.CurrentJourney))
	}

	// A customer can opt out between scheduling and delivery.
	if suppressedForChannel(state, message.Channel) {
		return d.fail(ctx, message.ID, summary, "suppressed: customer unsubscribed")
	}

	customer, err := d.store.GetCustomerByID(ctx, state.CustomerID)
	if err != nil {
		return d.fail(ctx, message.ID, summary, fmt.Sprintf("load customer: %v", err))
	}

	operator, err := d.store.GetOperatorByID(ctx, state.OperatorID)
	if err != nil {
		return d.fail(ctx, message.ID, summary, fmt.Sprintf("load operator: %v", err))
	}

	content := personalize(message.Content, customer, operator)

	sendCtx := ctx
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}

	var providerID string
	switch message.Channel {
	case store.ChannelEmail:
		if customer.MasterEmail == nil || *customer.MasterEmail == "" {
			return d.fail(ctx, message.ID, summary, "no destination email address")
		}
		subject := ""
		if message.Subject != nil {
			subject = personalize(*message.Subject, customer, operator)
		}
		providerID, err = d.email.SendEmail(sendCtx, d.emailFrom(operator), *customer.MasterEmail, subject, content)

	case store.ChannelSMS:
		if customer.MasterPhone == nil || *customer.MasterPhone == "" {
			return d.fail(ctx, message.ID, summary, "no destination phone number")
		}
		providerID, err = d.sms.SendSMS(sendCtx, d.smsFrom(operator), *customer.MasterPhone, content)

	default:
		return d.fail(ctx, message.ID, summary, fmt.Sprintf("unknown channel %q", message.Channel))
	}

	if err != nil {
		return d.fail(ctx, message.ID, summary, fmt.Sprintf("provider send: %v", err))
	}

	if err := d.store.MarkMessageSent(ctx, message.ID, providerID, content); err != nil {
		// The provider accepted it; the row disagreement is logged, not raised.
		d.logger.Error(ctx, "failed to mark message sent", err)
		summary.Errors = append(summary.Errors, fmt.Sprintf("mark sent %s: %v", message.ID, err))
	}
	if err := d.store.IncrementChannelSent(ctx, message.JourneyStateID, message.Channel); err != nil {
		d.logger.Error(ctx, "failed to update channel counters", err)
	}

	d.publisher.PublishMessageSent(ctx, state.CustomerID, message.ID, message.Channel)
	return true
}

// fail records a terminal failure on the claimed message
func (d *Dispatcher) fail(ctx context.Context, messageID uuid.UUID, summary *Summary, reason string) bool {
	d.logger.Warn(observability.WithFields(ctx,
		observability.Field{Key: "reason", Value: reason},
	), "message delivery failed")

	if err := d.store.MarkMessageFailed(ctx, messageID, reason); err != nil {
		d.logger.Error(ctx, "failed to mark message failed", err)
		summary.Errors = append(summary.Errors, fmt.Sprintf("mark failed %s: %v", messageID, err))
	}
	return false
}

func (d *Dispatcher) emailFrom(operator store.Operator) string {
	if operator.SenderEmail != nil && *operator.SenderEmail != "" {
		return *operator.SenderEmail
	}
	return d.defaultEmailFrom
}

func (d *Dispatcher) smsFrom(operator store.Operator) string {
	if operator.SenderPhone != nil && *operator.SenderPhone != "" {
		return *operator.SenderPhone
	}
	return d.defaultSMSFrom
}
