package processor

import "github.com/ibheelz/Todoalrojo-sub002/internal/store"

// Transition describes the outcome of applying one postback event to a
// journey's current position.
type Transition struct {
	Stage       int
	JourneyType string
	Changed     bool
}

// NextStage computes the stage after an event, given the current stage and
// the deposit count as it stands after the event was counted. Stages never
// move backwards here; the only reset path is recycling.
//
//	-1 undefined  → registration moves to 0
//	 0 registered → deposits move to min(depositCount, 3)
//	 3 high value → terminal cap
func NextStage(currentStage, depositCount int, eventType string) Transition {
	switch eventType {
	case store.EventTypeRegistration:
		if currentStage < store.StageRegistered {
			return Transition{Stage: store.StageRegistered, JourneyType: store.JourneyAcquisition, Changed: true}
		}
		// Replayed registration, or registration after deposits: no-op.
		return Transition{Stage: currentStage, JourneyType: journeyForStage(currentStage), Changed: false}

	case store.EventTypeFirstDeposit, store.EventTypeDeposit:
		next := depositCount
		if next > store.StageHighValue {
			next = store.StageHighValue
		}
		if next < currentStage {
			next = currentStage
		}
		return Transition{Stage: next, JourneyType: store.JourneyRetention, Changed: true}

	default:
		return Transition{Stage: currentStage, JourneyType: journeyForStage(currentStage), Changed: false}
	}
}

// journeyForStage maps a stage to the journey it belongs to
func journeyForStage(stage int) string {
	switch {
	case stage < store.StageRegistered:
		return store.JourneyNone
	case stage == store.StageRegistered:
		return store.JourneyAcquisition
	default:
		return store.JourneyRetention
	}
}
