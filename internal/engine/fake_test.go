package engine

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/v0xg/shortweb/internal/action"
	"github.com/v0xg/shortweb/internal/bridge"
)

type evalCall struct {
	script string
	scope  bridge.Frame
}

// fakeBridge is an in-memory page: selectors exist when marked present
type fakeBridge struct {
	mu        sync.Mutex
	present   map[string]bool
	frames    map[string]bridge.Frame
	eval      func(script string, scope bridge.Frame) (bridge.Value, error)
	calls     []evalCall
	navigated []string
	modes     []bool
	inserted  []string
	files     map[string][]string
	stops     int
	events    chan bridge.Event
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		present: make(map[string]bool),
		frames:  make(map[string]bridge.Frame),
		files:   make(map[string][]string),
		events:  make(chan bridge.Event, 16),
	}
}

func presenceKey(selector string, scope bridge.Frame) string {
	return scope.ID + "|" + selector
}

func (f *fakeBridge) setPresent(selector string, scope bridge.Frame, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.present[presenceKey(selector, scope)] = ok
}

func (f *fakeBridge) onEval(fn func(script string, scope bridge.Frame) (bridge.Value, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eval = fn
}

func (f *fakeBridge) emit(ev bridge.Event) {
	f.events <- ev
}

func (f *fakeBridge) evaluated() []evalCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]evalCall(nil), f.calls...)
}

func (f *fakeBridge) scripts() []string {
	var out []string
	for _, c := range f.evaluated() {
		out = append(out, c.script)
	}
	return out
}

func (f *fakeBridge) Evaluate(ctx context.Context, script string, scope bridge.Frame) (bridge.Value, error) {
	if err := ctx.Err(); err != nil {
		return bridge.Value{}, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, evalCall{script: script, scope: scope})
	fn := f.eval
	f.mu.Unlock()
	if fn != nil {
		return fn(script, scope)
	}
	return bridge.Undefined(), nil
}

func (f *fakeBridge) Exists(ctx context.Context, selector string, scope bridge.Frame) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[presenceKey(selector, scope)], nil
}

func (f *fakeBridge) ResolveFrame(_ context.Context, selector string, parent bridge.Frame) (bridge.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fr, ok := f.frames[selector]; ok {
		return fr, nil
	}
	return parent, nil
}

func (f *fakeBridge) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	f.navigated = append(f.navigated, url)
	f.mu.Unlock()
	if url != "about:blank" {
		f.emit(bridge.LoadFinished{URL: url})
	}
	return nil
}

func (f *fakeBridge) SetDeviceMode(_ context.Context, mobile bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, mobile)
	return nil
}

func (f *fakeBridge) InsertText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, text)
	return nil
}

func (f *fakeBridge) SetFiles(_ context.Context, selector string, _ bridge.Frame, files []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[selector] = files
	return nil
}

func (f *fakeBridge) StopLoading(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeBridge) Events() <-chan bridge.Event { return f.events }

func (f *fakeBridge) Close() error { return nil }

func (f *fakeBridge) snapshot() (navigated []string, modes []bool, inserted []string, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigated...), append([]bool(nil), f.modes...),
		append([]string(nil), f.inserted...), f.stops
}

// recorder is a Delegate that remembers every callback
type recorder struct {
	mu       sync.Mutex
	will     []int
	produced []int
	failed   []int
	finished int
	final    Results
	onInput  func(resume func(string))
}

func (r *recorder) WillExecute(_ action.Action, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.will = append(r.will, index)
}

func (r *recorder) DidProduce(_ Result, _ action.Action, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.produced = append(r.produced, index)
}

func (r *recorder) NeedsInput(resume func(string), _ action.Action, _ int) {
	if r.onInput != nil {
		r.onInput(resume)
		return
	}
	resume("")
}

func (r *recorder) DidFinish(results Results) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished++
	r.final = results
}

func (r *recorder) DidFail(_ action.Action, index int, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, index)
}

func (r *recorder) willExecute() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.will...)
}

// filePicker adds interactive upload support to recorder
type filePicker struct {
	*recorder
	pick string
}

func (p filePicker) NeedsFile(resume func(string), _ action.Action, _ int) {
	resume(p.pick)
}

type fakeFetcher map[string]image.Image

func (f fakeFetcher) Fetch(_ context.Context, url string) (image.Image, error) {
	img, ok := f[url]
	if !ok {
		return nil, errors.New("not an image")
	}
	return img, nil
}

// valueFor answers scripts from a fixed table
func valueFor(table map[string]bridge.Value) func(string, bridge.Frame) (bridge.Value, error) {
	return func(script string, _ bridge.Frame) (bridge.Value, error) {
		if v, ok := table[script]; ok {
			return v, nil
		}
		return bridge.Undefined(), nil
	}
}
