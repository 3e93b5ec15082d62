// Package lifecycle holds the block state machine: the transition table,
// schedule seeding and the pure Apply step used by the block service.
package lifecycle

import "github.com/mamadbah2/blockfarm/internal/domain/models"

// Transitions is the directed lifecycle graph. alert resolves back into any
// operational state or abandons the cycle to empty.
var Transitions = map[models.State][]models.State{
	models.StateEmpty:      {models.StatePlanned, models.StatePlanted},
	models.StatePlanned:    {models.StatePlanted, models.StateEmpty},
	models.StatePlanted:    {models.StateGrowing, models.StateAlert, models.StateEmpty},
	models.StateGrowing:    {models.StateFruiting, models.StateHarvesting, models.StateAlert},
	models.StateFruiting:   {models.StateHarvesting, models.StateAlert},
	models.StateHarvesting: {models.StateCleaning, models.StateAlert},
	models.StateCleaning:   {models.StateEmpty},
	models.StateAlert: {
		models.StateEmpty,
		models.StatePlanted,
		models.StateGrowing,
		models.StateFruiting,
		models.StateHarvesting,
	},
}

// successors is the main cycle path used for schedules, metrics and tasks.
var successors = map[models.State]models.State{
	models.StateEmpty:      models.StatePlanned,
	models.StatePlanned:    models.StatePlanted,
	models.StatePlanted:    models.StateGrowing,
	models.StateGrowing:    models.StateFruiting,
	models.StateFruiting:   models.StateHarvesting,
	models.StateHarvesting: models.StateCleaning,
	models.StateCleaning:   models.StateEmpty,
}

// CanTransition reports whether from -> to is an edge of the graph.
func CanTransition(from, to models.State) bool {
	for _, candidate := range Transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Allowed returns a copy of the states reachable from state in one step.
func Allowed(state models.State) []models.State {
	targets := Transitions[state]
	out := make([]models.State, len(targets))
	copy(out, targets)
	return out
}

// Successor returns the next state along the main cycle path. alert has none.
func Successor(state models.State) (models.State, bool) {
	next, ok := successors[state]
	return next, ok
}
