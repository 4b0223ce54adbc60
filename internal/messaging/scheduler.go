package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ibheelz/Todoalrojo-sub002/internal/config"
	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"
	"github.com/ibheelz/Todoalrojo-sub002/internal/store"
)

// Scheduler materializes a journey's message sequence when its stage changes.
// Scheduling is idempotent: the per-slot uniqueness constraint absorbs
// replays, so calling OnStageChanged twice for the same transition schedules
// nothing new.
type Scheduler struct {
	store    SchedulerStore
	throttle config.ThrottleConfig
	logger   *observability.Logger
	now      func() time.Time
}

func NewScheduler(store SchedulerStore, throttle config.ThrottleConfig, logger *observability.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		throttle: throttle,
		logger:   logger,
		now:      time.Now,
	}
}

// OnStageChanged schedules the enabled templates of the journey the state is
// now on. Day N templates land N days after the transition. Slots already
// scheduled, disabled channels, opted-out channels and slots over the
// cross-operator frequency cap are skipped, never raised.
func (s *Scheduler) OnStageChanged(ctx context.Context, state store.JourneyState) error {
	if state.CurrentJourney == store.JourneyNone {
		return nil
	}

	operator, err := s.store.GetOperatorByID(ctx, state.OperatorID)
	if err != nil {
		return fmt.Errorf("failed to load operator for scheduling: %w", err)
	}

	templates, err := s.store.ListMessageTemplates(ctx, state.OperatorID, state.CurrentJourney)
	if err != nil {
		return fmt.Errorf("failed to load message templates: %w", err)
	}

	base := s.now()
	scheduled := 0

	for _, template := range templates {
		if !channelEnabled(operator, template.Channel) {
			continue
		}
		if suppressedForChannel(state, template.Channel) {
			continue
		}

		scheduledFor := base.Add(time.Duration(template.DayNumber) * 24 * time.Hour)

		capped, err := s.overFrequencyCap(ctx, state, template.Channel, scheduledFor)
		if err != nil {
			return err
		}
		if capped {
			s.logger.Info(observability.WithFields(ctx,
				observability.Field{Key: "channel", Value: template.Channel},
				observability.Field{Key: "day_number", Value: template.DayNumber},
			), "skipping message over frequency cap")
			continue
		}

		_, err = s.store.CreateScheduledMessage(ctx, store.CreateScheduledMessageParams{
			JourneyStateID: state.ID,
			Channel:        template.Channel,
			JourneyType:    template.JourneyType,
			DayNumber:      template.DayNumber,
			ScheduledFor:   scheduledFor,
			Subject:        template.Subject,
			Content:        template.Body,
		})
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				// Slot already scheduled by an earlier transition.
				continue
			}
			return fmt.Errorf("failed to schedule message: %w", err)
		}
		scheduled++
	}

	if scheduled > 0 {
		s.logger.Info(observability.WithFields(ctx,
			observability.Field{Key: "journey_type", Value: state.CurrentJourney},
			observability.Field{Key: "scheduled_messages", Value: scheduled},
		), "scheduled journey messages")
	}

	return nil
}

// overFrequencyCap checks the customer's rolling 24h window ending at the
// candidate slot, across all operators.
func (s *Scheduler) overFrequencyCap(ctx context.Context, state store.JourneyState, channel string, scheduledFor time.Time) (bool, error) {
	limit := s.capForChannel(channel)
	if limit <= 0 {
		return false, nil
	}

	count, err := s.store.CountCustomerMessagesInWindow(ctx, state.CustomerID, channel, scheduledFor.Add(-24*time.Hour), scheduledFor)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate frequency cap: %w", err)
	}

	return count >= limit, nil
}

func (s *Scheduler) capForChannel(channel string) int {
	switch channel {
	case store.ChannelEmail:
		return s.throttle.MaxEmailPerDay
	case store.ChannelSMS:
		return s.throttle.MaxSMSPerDay
	default:
		return 0
	}
}

// channelEnabled reports whether the operator sends on a channel at all
func channelEnabled(operator store.Operator, channel string) bool {
	switch channel {
	case store.ChannelEmail:
		return operator.EmailEnabled
	case store.ChannelSMS:
		return operator.SMSEnabled
	default:
		return false
	}
}

// suppressedForChannel reports whether the customer opted out of a channel
func suppressedForChannel(state store.JourneyState, channel string) bool {
	if state.GlobalUnsubscribed {
		return true
	}
	switch channel {
	case store.ChannelEmail:
		return state.EmailUnsubscribed
	case store.ChannelSMS:
		return state.SMSUnsubscribed
	default:
		return true
	}
}
