package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/v0xg/shortweb/internal/action"
	"github.com/v0xg/shortweb/internal/bridge"
	"go.uber.org/zap"
)

// Runner executes an action list against a bridge, strictly one step at a time
type Runner struct {
	bridge  bridge.Bridge
	actions []action.Action

	delegate        Delegate
	log             *zap.Logger
	settle          time.Duration
	mutationSettle  time.Duration
	recheckInterval time.Duration
	recheckAttempts int
	fetcher         ImageFetcher

	started atomic.Bool
	stopped atomic.Bool
	state   atomic.Int32
	msgs    chan message
	done    chan struct{}
	err     error

	mu      sync.Mutex
	results Results

	// Owned by the engine goroutine
	gen          uint64
	pendingLoads int
	announced    int
}

// coordination messages, all delivered on Runner.msgs
type (
	message  interface{}
	eventMsg struct{ ev bridge.Event }
	timerMsg struct{ gen uint64 }
	inputMsg struct {
		gen  uint64
		text string
	}
	stopMsg struct{}
)

type waitOutcome int

const (
	waitStopped waitOutcome = iota
	waitAppeared
	waitTimedOut
)

// New creates a Runner for actions; the list is copied
func New(b bridge.Bridge, actions []action.Action, opts ...Option) *Runner {
	r := &Runner{
		bridge:          b,
		actions:         append([]action.Action(nil), actions...),
		delegate:        NopDelegate{},
		log:             zap.NewNop(),
		settle:          DefaultSettleDelay,
		mutationSettle:  DefaultMutationSettle,
		recheckInterval: DefaultRecheckInterval,
		recheckAttempts: DefaultRecheckAttempts,
		fetcher:         NewHTTPFetcher(),
		msgs:            make(chan message, 32),
		done:            make(chan struct{}),
		announced:       -1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the run on its own goroutine
// Starting a Runner twice, or without a bridge, panics
func (r *Runner) Start(ctx context.Context) {
	if r.bridge == nil {
		panic("engine: run started without a bridge")
	}
	if !r.started.CompareAndSwap(false, true) {
		panic("engine: run already started")
	}
	go r.forward()
	go r.loop(ctx)
}

// Run executes the whole list and returns the collected results
// Cancelling ctx stops the run; partial results are returned with ctx's error
func (r *Runner) Run(ctx context.Context) (Results, error) {
	r.Start(ctx)
	results := r.Wait()
	return results, r.err
}

// Wait blocks until a started run finishes and returns its results
func (r *Runner) Wait() Results {
	<-r.done
	return r.Results()
}

// Done is closed when the run is over
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Stop asks the run to unwind; any pending wait is released
func (r *Runner) Stop() {
	if r.stopped.Swap(true) {
		return
	}
	go r.post(stopMsg{})
}

// State returns the current sequencer state
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Results returns a copy of the values collected so far
func (r *Runner) Results() Results {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(Results(nil), r.results...)
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
}

func (r *Runner) post(m message) {
	select {
	case r.msgs <- m:
	case <-r.done:
	}
}

// forward relays bridge events onto the coordination channel
func (r *Runner) forward() {
	events := r.bridge.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.post(eventMsg{ev: ev})
		case <-r.done:
			return
		}
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	r.log.Info("run started", zap.Int("actions", len(r.actions)))
	index := 0
	for {
		if index >= len(r.actions) || r.halted(ctx) {
			r.finalize(ctx)
			return
		}
		a := r.actions[index]
		if index != r.announced {
			r.announced = index
			r.log.Debug("step", zap.Int("index", index), zap.String("action", a.Describe()))
			r.delegate.WillExecute(a, index)
		}
		index = r.exec(ctx, index, a, a.Type(), bridge.Main)
	}
}

// exec runs t as step index in scope and returns the next index
// Returning index itself retries the step, or unwinds when a stop was requested
func (r *Runner) exec(ctx context.Context, index int, a action.Action, t action.ActionType, scope bridge.Frame) int {
	return action.Visit[int](t, &stepper{r: r, ctx: ctx, index: index, a: a, scope: scope})
}

type stepper struct {
	r     *Runner
	ctx   context.Context
	index int
	a     action.Action
	scope bridge.Frame
}

func (s *stepper) Click(t action.Click) int {
	if next, ok := s.r.probe(s.ctx, s.index, s.a, t.Path, s.scope); !ok {
		return next
	}
	return s.r.leaf(s.ctx, s.index, s.a, t, s.scope)
}

func (s *stepper) Input(t action.Input) int {
	if next, ok := s.r.probe(s.ctx, s.index, s.a, t.Path, s.scope); !ok {
		return next
	}
	if action.Interactive(t) {
		text, ok := s.r.awaitResume(s.ctx, func(resume func(string)) {
			s.r.delegate.NeedsInput(resume, s.a, s.index)
		})
		if !ok {
			return s.index
		}
		supplied := action.New(action.Input{Path: t.Path, Text: text}, s.a.Timeout())
		return s.r.leaf(s.ctx, s.index, supplied, supplied.Type(), s.scope)
	}
	return s.r.leaf(s.ctx, s.index, s.a, t, s.scope)
}

func (s *stepper) IFrame(t action.IFrame) int {
	if next, ok := s.r.probe(s.ctx, s.index, s.a, t.Path, s.scope); !ok {
		return next
	}
	frame, err := s.r.bridge.ResolveFrame(s.ctx, t.Path, s.scope)
	if s.r.halted(s.ctx) {
		return s.index
	}
	if err != nil {
		s.r.fail(s.a, s.index, fmt.Errorf("resolve frame %s: %w", t.Path, err))
		return s.index + 1
	}
	return s.r.exec(s.ctx, s.index, s.a, t.Action, frame)
}

func (s *stepper) GetResult(t action.GetResult) int {
	if next, ok := s.r.probe(s.ctx, s.index, s.a, t.Path, s.scope); !ok {
		return next
	}
	return s.r.leaf(s.ctx, s.index, s.a, t, s.scope)
}

func (s *stepper) URLChange(action.URLChange) int {
	if !s.r.awaitLoad(s.ctx) {
		return s.index
	}
	return s.index + 1
}

func (s *stepper) UploadFile(t action.UploadFile) int {
	if next, ok := s.r.probe(s.ctx, s.index, s.a, t.Path, s.scope); !ok {
		return next
	}
	return s.r.leaf(s.ctx, s.index, s.a, t, s.scope)
}

func (s *stepper) OpenURL(t action.OpenURL) int {
	r := s.r
	r.drain()
	r.pendingLoads = 0
	if err := r.bridge.SetDeviceMode(s.ctx, t.Mobile); err != nil {
		if r.halted(s.ctx) {
			return s.index
		}
		r.log.Warn("set device mode", zap.Bool("mobile", t.Mobile), zap.Error(err))
	}
	if err := r.bridge.Navigate(s.ctx, t.URL); err != nil {
		if r.halted(s.ctx) {
			return s.index
		}
		r.fail(s.a, s.index, fmt.Errorf("navigate %s: %w", t.URL, err))
		return s.index + 1
	}
	if !r.awaitLoad(s.ctx) {
		return s.index
	}
	return s.index + 1
}

// probe checks that selector exists in scope, waiting for it when absent
// ok is false when the step must not run now; next is then the index to continue with
func (r *Runner) probe(ctx context.Context, index int, a action.Action, selector string, scope bridge.Frame) (next int, ok bool) {
	r.setState(StateProbing)
	present, err := r.bridge.Exists(ctx, selector, scope)
	if r.halted(ctx) {
		return index, false
	}
	if err != nil {
		r.fail(a, index, fmt.Errorf("probe %s: %w", selector, err))
		return index + 1, false
	}
	if present {
		return 0, true
	}

	switch r.awaitElement(ctx, a.Timeout(), selector, scope) {
	case waitAppeared:
		r.sleep(ctx, r.mutationSettle)
		return index, false
	case waitTimedOut:
		r.log.Info("element did not appear, skipping step",
			zap.Int("index", index),
			zap.String("selector", selector),
			zap.Duration("timeout", a.Timeout()))
		return index + 1, false
	default:
		return index, false
	}
}

// awaitElement suspends until selector shows up in scope, the timeout fires or the run stops
func (r *Runner) awaitElement(ctx context.Context, timeout time.Duration, selector string, scope bridge.Frame) waitOutcome {
	r.setState(StateWaitingForElement)
	gen := r.nextGen()
	if timeout > 0 {
		t := time.AfterFunc(timeout, func() { r.post(timerMsg{gen: gen}) })
		defer t.Stop()
	}
	for {
		m, ok := r.next(ctx)
		if !ok {
			return waitStopped
		}
		switch m := m.(type) {
		case timerMsg:
			if m.gen == gen {
				return waitTimedOut
			}
		case eventMsg:
			r.absorb(m)
			present, err := r.bridge.Exists(ctx, selector, scope)
			if r.halted(ctx) {
				return waitStopped
			}
			if err == nil && present {
				return waitAppeared
			}
		}
	}
}

// awaitLoad suspends until the bridge reports a finished navigation
func (r *Runner) awaitLoad(ctx context.Context) bool {
	r.setState(StateWaitingForNavigation)
	if r.pendingLoads > 0 {
		r.pendingLoads--
		return true
	}
	for {
		m, ok := r.next(ctx)
		if !ok {
			return false
		}
		if ev, isEvent := m.(eventMsg); isEvent {
			if _, loaded := ev.ev.(bridge.LoadFinished); loaded {
				return true
			}
		}
	}
}

// awaitResume hands a one-shot resume callback to ask and waits for it to be called
func (r *Runner) awaitResume(ctx context.Context, ask func(resume func(string))) (string, bool) {
	r.setState(StateWaitingForInput)
	gen := r.nextGen()
	var once sync.Once
	ask(func(text string) {
		once.Do(func() { go r.post(inputMsg{gen: gen, text: text}) })
	})
	for {
		m, ok := r.next(ctx)
		if !ok {
			return "", false
		}
		if in, isInput := m.(inputMsg); isInput {
			if in.gen == gen {
				return in.text, true
			}
			continue
		}
		r.absorb(m)
	}
}

// leaf evaluates a non-container step in scope and applies its side effects
func (r *Runner) leaf(ctx context.Context, index int, a action.Action, t action.ActionType, scope bridge.Frame) int {
	r.setState(StateExecutingLeaf)
	if index > 0 && !r.sleep(ctx, r.settle) {
		return index
	}
	if gr, ok := t.(action.GetResult); ok && isImageSelector(gr.Path) {
		if !r.awaitImageSource(ctx, gr.Path, scope) {
			return index
		}
	}

	script := action.Render(t)
	if !scope.IsMain() {
		script = action.RenderInFrame(t)
	}
	v, err := r.bridge.Evaluate(ctx, script, scope)
	if r.halted(ctx) {
		return index
	}
	if err != nil {
		r.fail(a, index, err)
		return index + 1
	}

	switch t := t.(type) {
	case action.GetResult:
		res := r.classify(ctx, v)
		if r.halted(ctx) {
			return index
		}
		r.record(res)
		r.delegate.DidProduce(res, a, index)
	case action.Input:
		if scope.IsMain() {
			if err := r.bridge.InsertText(ctx, t.Text); err != nil && !r.halted(ctx) {
				r.fail(a, index, fmt.Errorf("insert text: %w", err))
			}
		}
	case action.UploadFile:
		r.deliverFile(ctx, index, a, t, scope)
	}
	r.setState(StateAdvancing)
	return index + 1
}

// awaitImageSource rechecks an image element until its source is populated
func (r *Runner) awaitImageSource(ctx context.Context, selector string, scope bridge.Frame) bool {
	for i := 0; i < r.recheckAttempts; i++ {
		v, err := r.bridge.Evaluate(ctx, bridge.SrcUndefinedScript(selector), scope)
		if err != nil || !v.Bool() {
			break
		}
		r.log.Debug("image source not populated yet", zap.String("selector", selector), zap.Int("attempt", i+1))
		if !r.sleep(ctx, r.recheckInterval) {
			return false
		}
	}
	return !r.halted(ctx)
}

func (r *Runner) deliverFile(ctx context.Context, index int, a action.Action, t action.UploadFile, scope bridge.Frame) {
	var path string
	if t.File.IsPlaceholder() {
		fp, ok := r.delegate.(FileProvider)
		if !ok {
			r.log.Info("interactive upload left to the page", zap.Int("index", index), zap.String("selector", t.Path))
			return
		}
		picked, ok := r.awaitResume(ctx, func(resume func(string)) { fp.NeedsFile(resume, a, index) })
		if !ok || picked == "" {
			return
		}
		path = picked
	} else {
		resolved, err := t.File.Resolve()
		if err != nil {
			r.fail(a, index, err)
			return
		}
		path = resolved
	}
	if err := r.bridge.SetFiles(ctx, t.Path, scope, []string{path}); err != nil && !r.halted(ctx) {
		r.fail(a, index, fmt.Errorf("set files: %w", err))
	}
}

// classify turns an evaluated value into a text or image result
func (r *Runner) classify(ctx context.Context, v bridge.Value) Result {
	s, ok := v.Str()
	if !ok {
		return Result{Text: v.Text()}
	}
	if !IsImageURL(s) {
		return Result{Text: s}
	}
	img, err := r.fetcher.Fetch(ctx, s)
	if err != nil {
		r.log.Warn("extracted url is not an image", zap.String("url", clip(s, 120)), zap.Error(err))
		return Result{Text: s}
	}
	return Result{Image: img, Source: s}
}

func (r *Runner) record(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *Runner) fail(a action.Action, index int, err error) {
	r.log.Warn("step failed",
		zap.Int("index", index),
		zap.String("action", a.Describe()),
		zap.Error(err))
	if fo, ok := r.delegate.(FailureObserver); ok {
		fo.DidFail(a, index, err)
	}
}

func (r *Runner) finalize(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		r.err = err
		r.stopped.Store(true)
	}
	if r.stopped.Load() {
		r.setState(StateStopped)
		r.resetPage(ctx)
	} else {
		r.setState(StateFinished)
	}
	results := r.Results()
	r.log.Info("run finished", zap.Int("results", len(results)), zap.Bool("stopped", r.stopped.Load()))
	r.delegate.DidFinish(results)
}

// resetPage aborts any navigation and leaves the page blank
func (r *Runner) resetPage(ctx context.Context) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.bridge.StopLoading(cctx); err != nil {
		r.log.Debug("stop loading", zap.Error(err))
	}
	if err := r.bridge.Navigate(cctx, "about:blank"); err != nil {
		r.log.Debug("reset page", zap.Error(err))
	}
}

// next blocks for the next coordination message; false means the run must unwind
func (r *Runner) next(ctx context.Context) (message, bool) {
	if r.stopped.Load() {
		return nil, false
	}
	select {
	case m := <-r.msgs:
		if _, stop := m.(stopMsg); stop {
			return nil, false
		}
		return m, true
	case <-ctx.Done():
		r.stopped.Store(true)
		return nil, false
	}
}

// sleep pauses for d while staying responsive to stop; false means the run must unwind
func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !r.halted(ctx)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		if r.stopped.Load() {
			return false
		}
		select {
		case <-t.C:
			return !r.halted(ctx)
		case m := <-r.msgs:
			r.absorb(m)
		case <-ctx.Done():
			r.stopped.Store(true)
			return false
		}
	}
}

// absorb keeps track of navigations that finish while nothing waits for them
func (r *Runner) absorb(m message) {
	if ev, ok := m.(eventMsg); ok {
		if _, loaded := ev.ev.(bridge.LoadFinished); loaded {
			r.pendingLoads++
		}
	}
}

// drain discards queued messages before a fresh navigation
func (r *Runner) drain() {
	for {
		select {
		case <-r.msgs:
		default:
			return
		}
	}
}

func (r *Runner) halted(ctx context.Context) bool {
	if ctx.Err() != nil {
		r.stopped.Store(true)
	}
	return r.stopped.Load()
}

func (r *Runner) nextGen() uint64 {
	r.gen++
	return r.gen
}

func isImageSelector(selector string) bool {
	return strings.HasSuffix(strings.TrimSpace(selector), "> img")
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
