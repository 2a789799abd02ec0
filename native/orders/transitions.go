package orders

var legalTransitions = map[Workflow]map[State][]State{
	WorkflowDirect: {
		StateSubmitted: {StateShipped, StateCancelled},
		StateShipped:   {StateDelivered},
		StateDelivered: {StateCompleted, StateDisputed},
		StateDisputed:  {StateCompleted, StateRefunded},
	},
	WorkflowBonded: {
		StateSubmitted: {StateConfirmed, StateCancelled},
		StateConfirmed: {StateHandedOff, StateCancelled},
		StateHandedOff: {StateShipped},
		StateShipped:   {StateDelivered},
		StateDelivered: {StateCompleted, StateDisputed},
		StateDisputed:  {StateCompleted, StateRefunded},
	},
}

// CanTransition reports whether workflow w allows moving from one state to
// another.
func CanTransition(w Workflow, from, to State) bool {
	for _, next := range legalTransitions[w][from] {
		if next == to {
			return true
		}
	}
	return false
}
