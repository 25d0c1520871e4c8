package pipeline

// State is the position of a request in the pipeline. The only transitions
// are forward to the next stage or to FAILED; SUCCEEDED and FAILED are final.
type State string

const (
	StateConverting State = "CONVERTING"
	StateValidating State = "VALIDATING"
	StateApplying   State = "APPLYING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
)

// stateOf returns the state a request is in while stage runs
func stateOf(stage Stage) State {
	switch stage {
	case StageConvert:
		return StateConverting
	case StageValidate:
		return StateValidating
	case StageApply:
		return StateApplying
	default:
		return StateFailed
	}
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Next returns the state after the current stage finishes. Terminal states
// and unknown states do not move.
func (s State) Next(ok bool) State {
	if s.Terminal() {
		return s
	}

	if !ok {
		return StateFailed
	}

	switch s {
	case StateConverting:
		return StateValidating
	case StateValidating:
		return StateApplying
	case StateApplying:
		return StateSucceeded
	default:
		return s
	}
}
