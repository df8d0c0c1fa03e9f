package capture

// State is the workflow state of the capture flow
type State string

const (
	StateIdle      State = "IDLE"
	StateScanning  State = "SCANNING"
	StateReviewing State = "REVIEWING"
	StateSuccess   State = "SUCCESS"
)

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// transitions lists the states reachable from each state
var transitions = map[State][]State{
	StateIdle:      {StateScanning},
	StateScanning:  {StateReviewing, StateIdle},
	StateReviewing: {StateSuccess, StateIdle},
	StateSuccess:   {StateIdle},
}

// CanTransition reports whether the workflow may move from s to next
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
