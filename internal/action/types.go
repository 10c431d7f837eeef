package action

import "fmt"

// ActionType is the closed set of step kinds an Action can carry
type ActionType interface {
	// Selector returns the target element selector, or "" when the step has none
	Selector() string
	isActionType()
}

// Click synthesizes a click on the matched element
type Click struct {
	Path string
}

// Input focuses the matched element and injects Text
// An empty Text means the value is asked for each time the step runs
type Input struct {
	Path string
	Text string
}

// IFrame resolves the frame hosting Path and runs Action inside it
type IFrame struct {
	Path   string
	Action ActionType
}

// GetResult extracts the text content or source URL of the matched element
type GetResult struct {
	Path string
}

// URLChange waits for the page to finish a new navigation
type URLChange struct{}

// UploadFile clicks an upload control and supplies File to it
type UploadFile struct {
	Path string
	File FileRef
}

// OpenURL loads URL, switching to mobile emulation when Mobile is set
type OpenURL struct {
	URL    string
	Mobile bool
}

func (Click) isActionType()      {}
func (Input) isActionType()      {}
func (IFrame) isActionType()     {}
func (GetResult) isActionType()  {}
func (URLChange) isActionType()  {}
func (UploadFile) isActionType() {}
func (OpenURL) isActionType()    {}

func (t Click) Selector() string      { return t.Path }
func (t Input) Selector() string      { return t.Path }
func (t IFrame) Selector() string     { return t.Path }
func (t GetResult) Selector() string  { return t.Path }
func (URLChange) Selector() string    { return "" }
func (t UploadFile) Selector() string { return t.Path }
func (OpenURL) Selector() string      { return "" }

// Visitor handles every ActionType variant
type Visitor[T any] interface {
	Click(Click) T
	Input(Input) T
	IFrame(IFrame) T
	GetResult(GetResult) T
	URLChange(URLChange) T
	UploadFile(UploadFile) T
	OpenURL(OpenURL) T
}

// Visit dispatches t to the matching Visitor method
func Visit[T any](t ActionType, v Visitor[T]) T {
	switch x := t.(type) {
	case Click:
		return v.Click(x)
	case Input:
		return v.Input(x)
	case IFrame:
		return v.IFrame(x)
	case GetResult:
		return v.GetResult(x)
	case URLChange:
		return v.URLChange(x)
	case UploadFile:
		return v.UploadFile(x)
	case OpenURL:
		return v.OpenURL(x)
	}
	panic(fmt.Sprintf("action: unknown action type %T", t))
}

// Innermost unwraps nested IFrame steps and returns the leaf type
func Innermost(t ActionType) ActionType {
	for {
		f, ok := t.(IFrame)
		if !ok {
			return t
		}
		t = f.Action
	}
}
