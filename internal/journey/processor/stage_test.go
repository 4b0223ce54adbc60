package processor

import (
	"math/rand"
	"testing"

	"github.com/ibheelz/Todoalrojo-sub002/internal/store"

	"github.com/stretchr/testify/assert"
)

func TestNextStage_RegistrationFromUndefined(t *testing.T) {
	tr := NextStage(store.StageUndefined, 0, store.EventTypeRegistration)

	assert.True(t, tr.Changed)
	assert.Equal(t, store.StageRegistered, tr.Stage)
	assert.Equal(t, store.JourneyAcquisition, tr.JourneyType)
}

func TestNextStage_RegistrationIsIdempotent(t *testing.T) {
	tr := NextStage(store.StageRegistered, 0, store.EventTypeRegistration)

	assert.False(t, tr.Changed)
	assert.Equal(t, store.StageRegistered, tr.Stage)
}

func TestNextStage_RegistrationNeverRegressesDepositor(t *testing.T) {
	tr := NextStage(store.StageSecondDeposit, 2, store.EventTypeRegistration)

	assert.False(t, tr.Changed)
	assert.Equal(t, store.StageSecondDeposit, tr.Stage)
	assert.Equal(t, store.JourneyRetention, tr.JourneyType)
}

func TestNextStage_DepositsTrackCountUpToCap(t *testing.T) {
	tests := []struct {
		name         string
		currentStage int
		depositCount int
		want         int
	}{
		{"first deposit", store.StageRegistered, 1, store.StageFirstDeposit},
		{"second deposit", store.StageFirstDeposit, 2, store.StageSecondDeposit},
		{"third deposit reaches high value", store.StageSecondDeposit, 3, store.StageHighValue},
		{"fourth deposit stays capped", store.StageHighValue, 4, store.StageHighValue},
		{"tenth deposit stays capped", store.StageHighValue, 10, store.StageHighValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NextStage(tt.currentStage, tt.depositCount, store.EventTypeDeposit)
			assert.Equal(t, tt.want, tr.Stage)
			assert.Equal(t, store.JourneyRetention, tr.JourneyType)
		})
	}
}

func TestNextStage_WithdrawalIsNeutral(t *testing.T) {
	tr := NextStage(store.StageFirstDeposit, 1, store.EventTypeWithdrawal)

	assert.False(t, tr.Changed)
	assert.Equal(t, store.StageFirstDeposit, tr.Stage)
}

// Stage must be monotonically non-decreasing over any interleaving of
// registration and deposit events.
func TestNextStage_MonotonicUnderRandomInterleavings(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	eventTypes := []string{
		store.EventTypeRegistration,
		store.EventTypeFirstDeposit,
		store.EventTypeDeposit,
		store.EventTypeWithdrawal,
	}

	for run := 0; run < 200; run++ {
		stage := store.StageUndefined
		depositCount := 0

		for i := 0; i < 50; i++ {
			eventType := eventTypes[rng.Intn(len(eventTypes))]
			if eventType == store.EventTypeFirstDeposit || eventType == store.EventTypeDeposit {
				depositCount++
			}

			tr := NextStage(stage, depositCount, eventType)
			if tr.Stage < stage {
				t.Fatalf("run %d step %d: stage regressed from %d to %d on %s", run, i, stage, tr.Stage, eventType)
			}
			if tr.Stage > store.StageHighValue {
				t.Fatalf("run %d step %d: stage %d exceeds cap", run, i, tr.Stage)
			}
			stage = tr.Stage
		}
	}
}
