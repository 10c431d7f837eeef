package bridge

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/v0xg/shortweb/internal/action"
)

// HelperScript defines click, input, getData and isSrcUndefined in every frame
// and reports DOM mutations through the DOMChangeBinding runtime binding
//
//go:embed helpers.js
var HelperScript string

// DOMChangeBinding is the runtime binding the helper script calls with the iframe src list
const DOMChangeBinding = "shortwebDOMChange"

var (
	ErrClosed  = errors.New("bridge closed")
	ErrNoFrame = errors.New("frame not found")
)

// Error wraps a failed bridge operation
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bridge %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns err annotated with op, or nil
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) && be.Op == op {
		return err
	}
	return &Error{Op: op, Err: err}
}

// Frame identifies the scripting scope a script runs in
// The zero value is the main frame
type Frame struct {
	ID string
}

// Main is the top level document scope
var Main = Frame{}

// IsMain reports whether f is the top level document
func (f Frame) IsMain() bool { return f.ID == "" }

func (f Frame) String() string {
	if f.IsMain() {
		return "main"
	}
	return f.ID
}

// Event is emitted by a bridge on its event stream
type Event interface {
	isEvent()
}

// LoadFinished fires once per completed navigation
type LoadFinished struct {
	URL string
}

// DOMMutated fires when the document changes, carrying the current iframe sources
type DOMMutated struct {
	IFrames []string
}

func (LoadFinished) isEvent() {}
func (DOMMutated) isEvent()   {}

// Bridge hosts a live page and runs scripts against it
type Bridge interface {
	// Evaluate runs script in scope and returns its JSON value
	Evaluate(ctx context.Context, script string, scope Frame) (Value, error)
	// Exists reports whether selector matches an element in scope
	Exists(ctx context.Context, selector string, scope Frame) (bool, error)
	// ResolveFrame finds the frame hosted by the iframe matching selector inside parent
	// Inconclusive resolution falls back to parent after bounded retries
	ResolveFrame(ctx context.Context, selector string, parent Frame) (Frame, error)
	// Navigate starts loading url; completion is reported as LoadFinished
	Navigate(ctx context.Context, url string) error
	// SetDeviceMode switches between mobile and desktop emulation
	SetDeviceMode(ctx context.Context, mobile bool) error
	// InsertText types text into the focused element of the main frame
	InsertText(ctx context.Context, text string) error
	// SetFiles delivers files to the file input matching selector
	SetFiles(ctx context.Context, selector string, scope Frame, files []string) error
	// StopLoading aborts any in-flight navigation
	StopLoading(ctx context.Context) error
	// Events returns the load and mutation stream
	Events() <-chan Event
	Close() error
}

// ExistsScript renders the existence probe for selector
func ExistsScript(selector string) string {
	return action.Query(selector) + " !== null"
}

// SrcScript renders the expression reading the src of the element matching selector
func SrcScript(selector string) string {
	q := action.Query(selector)
	return "(" + q + " && " + q + ".src) || null"
}

// SrcUndefinedScript renders the probe for an element whose source is not populated yet
func SrcUndefinedScript(selector string) string {
	return "isSrcUndefined(" + action.Query(selector) + ")"
}

// FunctionBody turns an expression into the arrow function form CDP clients call
func FunctionBody(script string) string {
	script = strings.TrimSpace(script)
	script = strings.TrimRight(script, "; \n\t")
	if script == "" {
		script = "undefined"
	}
	return "() => (" + script + ")"
}
