package engine

import "github.com/v0xg/shortweb/internal/action"

// Delegate receives progress from a run
// Callbacks run on the engine goroutine and must not block for long
type Delegate interface {
	// WillExecute is called once when a step starts
	WillExecute(a action.Action, index int)
	// DidProduce is called for every extracted value
	DidProduce(r Result, a action.Action, index int)
	// NeedsInput asks for the text of an interactive Input step
	// The run stays suspended until resume is called
	NeedsInput(resume func(text string), a action.Action, index int)
	// DidFinish is called once with the collected results
	DidFinish(results Results)
}

// FailureObserver is implemented by delegates that want step failures reported
type FailureObserver interface {
	DidFail(a action.Action, index int, err error)
}

// FileProvider is implemented by delegates that can pick a file for an interactive upload
type FileProvider interface {
	NeedsFile(resume func(path string), a action.Action, index int)
}

// NopDelegate ignores every callback; embed it to implement a subset
// Interactive inputs are resumed with empty text
type NopDelegate struct{}

func (NopDelegate) WillExecute(action.Action, int)        {}
func (NopDelegate) DidProduce(Result, action.Action, int) {}
func (NopDelegate) DidFinish(Results)                     {}
func (NopDelegate) NeedsInput(resume func(string), _ action.Action, _ int) {
	resume("")
}
