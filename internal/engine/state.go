package engine

// State is the position of the sequencer within the current step
type State int32

const (
	StateIdle State = iota
	StateProbing
	StateExecutingLeaf
	StateWaitingForElement
	StateWaitingForNavigation
	StateWaitingForInput
	StateAdvancing
	StateFinished
	StateStopped
)

var stateNames = [...]string{
	StateIdle:                 "idle",
	StateProbing:              "probing",
	StateExecutingLeaf:        "executing",
	StateWaitingForElement:    "waiting-for-element",
	StateWaitingForNavigation: "waiting-for-navigation",
	StateWaitingForInput:      "waiting-for-input",
	StateAdvancing:            "advancing",
	StateFinished:             "finished",
	StateStopped:              "stopped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether the run is over
func (s State) Terminal() bool {
	return s == StateFinished || s == StateStopped
}
