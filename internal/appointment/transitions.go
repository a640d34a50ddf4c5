package appointment

// transitions is only consulted when strict checking is enabled. Cancelled
// and completed appointments are final.
var transitions = map[State][]State{
	StateRequested: {StateConfirmed, StateCancelled, StateCompleted},
	StateConfirmed: {StateCancelled, StateCompleted},
}

// CanTransition reports whether from may move to to under strict checking.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
