package lifecycle

import (
	"math"
	"time"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
)

const (
	// DefaultPlanningLeadDays is used when a plan does not name a planting date.
	DefaultPlanningLeadDays = 7
	// EmptyTurnaroundDays is the expected gap between cleaning and the block being free.
	EmptyTurnaroundDays = 3
)

// defaultStageFractions positions each stage within the crop cycle when the
// profile carries no explicit offsets.
var defaultStageFractions = map[models.State]float64{
	models.StateGrowing:    0.10,
	models.StateFruiting:   0.45,
	models.StateHarvesting: 0.65,
	models.StateCleaning:   1.0,
}

// StageOffsetDays returns how many days after planting state is expected.
func StageOffsetDays(profile models.CropProfile, state models.State) (int, bool) {
	if days, ok := profile.StageOffsets[state]; ok {
		return days, true
	}
	if state == models.StateEmpty {
		cleaning, ok := StageOffsetDays(profile, models.StateCleaning)
		if !ok {
			return 0, false
		}
		return cleaning + EmptyTurnaroundDays, true
	}
	fraction, ok := defaultStageFractions[state]
	if !ok || profile.CycleDurationDays <= 0 {
		return 0, false
	}
	return int(math.Round(fraction * float64(profile.CycleDurationDays))), true
}

// ExpectedSchedule derives the expected-date map for a cycle planted at plantedAt.
func ExpectedSchedule(profile models.CropProfile, plantedAt time.Time) map[models.State]time.Time {
	schedule := map[models.State]time.Time{
		models.StatePlanted: plantedAt,
	}
	for _, state := range []models.State{
		models.StateGrowing,
		models.StateFruiting,
		models.StateHarvesting,
		models.StateCleaning,
		models.StateEmpty,
	} {
		if days, ok := StageOffsetDays(profile, state); ok {
			schedule[state] = plantedAt.AddDate(0, 0, days)
		}
	}
	return schedule
}

// DaysBetween returns floor((later - earlier) / 24h).
func DaysBetween(later, earlier time.Time) int {
	return int(math.Floor(later.Sub(earlier).Hours() / 24))
}
