package state

// validTransitions is the directed graph of the purchase flow. Staying in the
// same state is always allowed and is not listed.
var validTransitions = map[State][]State{
	StateStart: {
		StateMenuChoose,
	},
	StateMenuChoose: {
		StateDescription,
		StateCart,
	},
	StateDescription: {
		StateMenuChoose,
		StateCart,
	},
	StateCart: {
		StateMenuChoose,
		StateWaitingEmail,
	},
	StateWaitingEmail: {
		StateStart,
	},
}

// IsTransitionAllowed reports whether moving from one state to another is part of the flow.
func IsTransitionAllowed(from, to State) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}

	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}

	return false
}
