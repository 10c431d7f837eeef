package engine

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/shortweb/internal/action"
	"github.com/v0xg/shortweb/internal/bridge"
)

var fast = []Option{
	WithSettleDelay(0),
	WithMutationSettle(time.Millisecond),
	WithRecheck(time.Millisecond, 5),
}

func opts(extra ...Option) []Option {
	return append(append([]Option(nil), fast...), extra...)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRunEmptyList(t *testing.T) {
	b := newFakeBridge()
	rec := &recorder{}

	results, err := New(b, nil, opts(WithDelegate(rec))...).Run(testContext(t))
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, rec.willExecute())
	assert.Equal(t, 1, rec.finished)
	assert.Empty(t, b.evaluated())
}

func TestRunSequence(t *testing.T) {
	b := newFakeBridge()
	for _, sel := range []string{"#q", "#go", "h1", "#logo"} {
		b.setPresent(sel, bridge.Main, true)
	}
	clickGo := action.Render(action.Click{Path: "#go"})
	b.onEval(func(script string, _ bridge.Frame) (bridge.Value, error) {
		switch script {
		case clickGo:
			b.emit(bridge.LoadFinished{URL: "https://example.com/results"})
		case action.Render(action.GetResult{Path: "h1"}):
			return bridge.NewValue("Results"), nil
		case action.Render(action.GetResult{Path: "#logo"}):
			return bridge.NewValue("https://example.com/logo.png"), nil
		}
		return bridge.Undefined(), nil
	})
	logo := image.NewRGBA(image.Rect(0, 0, 2, 2))
	rec := &recorder{}

	actions := []action.Action{
		action.New(action.OpenURL{URL: "https://example.com", Mobile: true}, 0),
		action.New(action.Input{Path: "#q", Text: "golang"}, 0),
		action.New(action.Click{Path: "#go"}, 0),
		action.New(action.URLChange{}, 0),
		action.New(action.GetResult{Path: "h1"}, 0),
		action.New(action.GetResult{Path: "#logo"}, 0),
	}
	r := New(b, actions, opts(WithDelegate(rec), WithImageFetcher(fakeFetcher{"https://example.com/logo.png": logo}))...)
	results, err := r.Run(testContext(t))
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, KindText, results[0].Kind())
	assert.Equal(t, "Results", results[0].Text)
	assert.Equal(t, KindImage, results[1].Kind())
	assert.Same(t, logo, results[1].Image)
	assert.Equal(t, "https://example.com/logo.png", results[1].Source)

	navigated, modes, inserted, stops := b.snapshot()
	assert.Equal(t, []string{"https://example.com"}, navigated)
	assert.Equal(t, []bool{true}, modes)
	assert.Equal(t, []string{"golang"}, inserted)
	assert.Zero(t, stops)

	assert.Equal(t, []string{
		`document.querySelector("#q").focus()`,
		clickGo,
		`getData(document.querySelector("h1"))`,
		`getData(document.querySelector("#logo"))`,
	}, b.scripts())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, rec.willExecute())
	assert.Equal(t, []int{4, 5}, rec.produced)
	assert.Equal(t, 1, rec.finished)
	assert.Len(t, rec.final, 2)
	assert.Equal(t, StateFinished, r.State())
}

func TestSoftMissSkipsAfterTimeout(t *testing.T) {
	b := newFakeBridge()
	b.setPresent("h1", bridge.Main, true)
	b.onEval(valueFor(map[string]bridge.Value{
		action.Render(action.GetResult{Path: "h1"}): bridge.NewValue("after"),
	}))

	timeout := 150 * time.Millisecond
	actions := []action.Action{
		action.New(action.Click{Path: "#missing"}, timeout),
		action.New(action.GetResult{Path: "h1"}, 0),
	}
	start := time.Now()
	results, err := New(b, actions, fast...).Run(testContext(t))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Equal(t, []string{"after"}, results.Texts())
	assert.NotContains(t, b.scripts(), action.Render(action.Click{Path: "#missing"}))
}

func TestMutationConfirmedExistenceRetriesStep(t *testing.T) {
	b := newFakeBridge()
	go func() {
		time.Sleep(30 * time.Millisecond)
		b.emit(bridge.DOMMutated{})
		b.setPresent("#late", bridge.Main, true)
		b.emit(bridge.DOMMutated{IFrames: []string{"https://ads.example/"}})
	}()

	actions := []action.Action{action.New(action.Click{Path: "#late"}, 0)}
	_, err := New(b, actions, fast...).Run(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, []string{action.Render(action.Click{Path: "#late"})}, b.scripts())
}

func TestStopDuringElementWait(t *testing.T) {
	b := newFakeBridge()
	b.setPresent("h1", bridge.Main, true)
	b.setPresent("h2", bridge.Main, true)
	b.onEval(valueFor(map[string]bridge.Value{
		action.Render(action.GetResult{Path: "h1"}): bridge.NewValue("first"),
		action.Render(action.GetResult{Path: "h2"}): bridge.NewValue("never"),
	}))
	rec := &recorder{}
	actions := []action.Action{
		action.New(action.GetResult{Path: "h1"}, 0),
		action.New(action.Click{Path: "#never"}, 0),
		action.New(action.GetResult{Path: "h2"}, 0),
	}
	r := New(b, actions, opts(WithDelegate(rec))...)
	r.Start(testContext(t))

	require.Eventually(t, func() bool { return r.State() == StateWaitingForElement }, 2*time.Second, time.Millisecond)
	r.Stop()
	results := r.Wait()

	assert.Equal(t, []string{"first"}, results.Texts())
	assert.Equal(t, []int{0, 1}, rec.willExecute())
	assert.Equal(t, 1, rec.finished)
	assert.Equal(t, StateStopped, r.State())

	navigated, _, _, stops := b.snapshot()
	assert.Equal(t, []string{"about:blank"}, navigated)
	assert.Equal(t, 1, stops)
}

func TestContextCancelReturnsPartialResults(t *testing.T) {
	b := newFakeBridge()
	b.setPresent("h1", bridge.Main, true)
	b.onEval(valueFor(map[string]bridge.Value{
		action.Render(action.GetResult{Path: "h1"}): bridge.NewValue("kept"),
	}))
	actions := []action.Action{
		action.New(action.GetResult{Path: "h1"}, 0),
		action.New(action.URLChange{}, 0),
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := New(b, actions, fast...)
	go func() {
		for r.State() != StateWaitingForNavigation {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	results, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"kept"}, results.Texts())
}

func TestStopBeforeStart(t *testing.T) {
	b := newFakeBridge()
	b.setPresent("h1", bridge.Main, true)
	r := New(b, []action.Action{action.New(action.GetResult{Path: "h1"}, 0)}, fast...)
	r.Stop()
	r.Stop()
	results, err := r.Run(testContext(t))
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, b.evaluated())
}

func TestExtractionClassification(t *testing.T) {
	b := newFakeBridge()
	for _, sel := range []string{"#img", "#text", "#broken", "#num"} {
		b.setPresent(sel, bridge.Main, true)
	}
	b.onEval(valueFor(map[string]bridge.Value{
		action.Render(action.GetResult{Path: "#img"}):    bridge.NewValue("https://example.com/a.png"),
		action.Render(action.GetResult{Path: "#text"}):   bridge.NewValue("hello"),
		action.Render(action.GetResult{Path: "#broken"}): bridge.NewValue("https://example.com/page"),
		action.Render(action.GetResult{Path: "#num"}):    bridge.NewValue(float64(42)),
	}))
	img := image.NewGray(image.Rect(0, 0, 1, 1))

	actions := []action.Action{
		action.New(action.GetResult{Path: "#img"}, 0),
		action.New(action.GetResult{Path: "#text"}, 0),
		action.New(action.GetResult{Path: "#broken"}, 0),
		action.New(action.GetResult{Path: "#num"}, 0),
	}
	results, err := New(b, actions, opts(WithImageFetcher(fakeFetcher{"https://example.com/a.png": img}))...).Run(testContext(t))
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, KindImage, results[0].Kind())
	assert.Equal(t, Result{Text: "hello"}, results[1])
	assert.Equal(t, Result{Text: "https://example.com/page"}, results[2])
	assert.Equal(t, Result{Text: "42"}, results[3])
}

func TestInteractiveInputWaitsForCaller(t *testing.T) {
	b := newFakeBridge()
	b.setPresent("#password", bridge.Main, true)
	rec := &recorder{onInput: func(resume func(string)) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			resume("secret")
			resume("ignored")
		}()
	}}

	actions := []action.Action{action.New(action.Input{Path: "#password"}, 0)}
	_, err := New(b, actions, opts(WithDelegate(rec))...).Run(testContext(t))
	require.NoError(t, err)

	_, _, inserted, _ := b.snapshot()
	assert.Equal(t, []string{"secret"}, inserted)
	assert.Equal(t, []string{`document.querySelector("#password").focus()`}, b.scripts())
}

func TestDefaultDelegateResumesWithEmptyText(t *testing.T) {
	b := newFakeBridge()
	b.setPresent("#q", bridge.Main, true)
	_, err := New(b, []action.Action{action.New(action.Input{Path: "#q"}, 0)}, fast...).Run(testContext(t))
	require.NoError(t, err)
	_, _, inserted, _ := b.snapshot()
	assert.Equal(t, []string{""}, inserted)
}

func TestIFrameRunsInResolvedFrame(t *testing.T) {
	b := newFakeBridge()
	child := bridge.Frame{ID: "child"}
	b.frames["#frame"] = child
	b.setPresent("#frame", bridge.Main, true)
	b.setPresent("#q", child, true)

	inner := action.Input{Path: "#q", Text: "hi"}
	actions := []action.Action{action.New(action.IFrame{Path: "#frame", Action: inner}, 0)}
	_, err := New(b, actions, fast...).Run(testContext(t))
	require.NoError(t, err)

	assert.Equal(t, []evalCall{{script: action.RenderInFrame(inner), scope: child}}, b.evaluated())
	assert.Equal(t, action.Render(actions[0].Type()), b.evaluated()[0].script)
	_, _, inserted, _ := b.snapshot()
	assert.Empty(t, inserted)
}

func TestNestedIFrames(t *testing.T) {
	b := newFakeBridge()
	outer, innerFrame := bridge.Frame{ID: "A"}, bridge.Frame{ID: "B"}
	b.frames["#a"] = outer
	b.frames["#b"] = innerFrame
	b.setPresent("#a", bridge.Main, true)
	b.setPresent("#b", outer, true)
	b.setPresent("p", innerFrame, true)
	b.onEval(func(script string, scope bridge.Frame) (bridge.Value, error) {
		if scope == innerFrame {
			return bridge.NewValue("deep"), nil
		}
		return bridge.Undefined(), nil
	})

	nested := action.IFrame{Path: "#a", Action: action.IFrame{Path: "#b", Action: action.GetResult{Path: "p"}}}
	results, err := New(b, []action.Action{action.New(nested, 0)}, fast...).Run(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"deep"}, results.Texts())
}

func TestEvaluationFailureContinues(t *testing.T) {
	b := newFakeBridge()
	b.setPresent("#a", bridge.Main, true)
	b.setPresent("h1", bridge.Main, true)
	clickA := action.Render(action.Click{Path: "#a"})
	b.onEval(func(script string, _ bridge.Frame) (bridge.Value, error) {
		if script == clickA {
			return bridge.Value{}, errors.New("TypeError: el is null")
		}
		return bridge.NewValue("ok"), nil
	})
	rec := &recorder{}

	actions := []action.Action{
		action.New(action.Click{Path: "#a"}, 0),
		action.New(action.GetResult{Path: "h1"}, 0),
	}
	results, err := New(b, actions, opts(WithDelegate(rec))...).Run(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, results.Texts())
	assert.Equal(t, []int{0}, rec.failed)
}

func TestImageSourceRecheck(t *testing.T) {
	b := newFakeBridge()
	sel := "div > img"
	b.setPresent(sel, bridge.Main, true)
	probe := bridge.SrcUndefinedScript(sel)
	var probes int32
	b.onEval(func(script string, _ bridge.Frame) (bridge.Value, error) {
		if script == probe {
			return bridge.NewValue(atomic.AddInt32(&probes, 1) < 3), nil
		}
		return bridge.NewValue("caption"), nil
	})

	results, err := New(b, []action.Action{action.New(action.GetResult{Path: sel}, 0)}, fast...).Run(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&probes))
	assert.Equal(t, []string{"caption"}, results.Texts())
}

func TestUploadFileDeliversBookmarkedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cv.pdf")
	require.NoError(t, os.WriteFile(file, []byte("%PDF"), 0o600))

	b := newFakeBridge()
	b.setPresent("#file", bridge.Main, true)
	actions := []action.Action{action.New(action.UploadFile{Path: "#file", File: action.NewFileRef(file)}, 0)}
	_, err := New(b, actions, fast...).Run(testContext(t))
	require.NoError(t, err)

	assert.Equal(t, []string{action.Render(action.Click{Path: "#file"})}, b.scripts())
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, []string{file}, b.files["#file"])
}

func TestInteractiveUploadAsksFileProvider(t *testing.T) {
	b := newFakeBridge()
	b.setPresent("#file", bridge.Main, true)
	picker := filePicker{recorder: &recorder{}, pick: "/tmp/picked.png"}

	actions := []action.Action{action.New(action.UploadFile{Path: "#file"}, 0)}
	_, err := New(b, actions, opts(WithDelegate(picker))...).Run(testContext(t))
	require.NoError(t, err)

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, []string{"/tmp/picked.png"}, b.files["#file"])
}

func TestURLChangeWaitsForLoad(t *testing.T) {
	b := newFakeBridge()
	go func() {
		time.Sleep(50 * time.Millisecond)
		b.emit(bridge.LoadFinished{URL: "https://example.com/next"})
	}()
	start := time.Now()
	_, err := New(b, []action.Action{action.New(action.URLChange{}, 0)}, fast...).Run(testContext(t))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestLoadDuringElementWaitSatisfiesURLChange(t *testing.T) {
	b := newFakeBridge()
	go func() {
		time.Sleep(30 * time.Millisecond)
		b.setPresent("#next", bridge.Main, true)
		b.emit(bridge.LoadFinished{URL: "https://example.com/next"})
	}()

	actions := []action.Action{
		action.New(action.Click{Path: "#next"}, 0),
		action.New(action.URLChange{}, 0),
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := New(b, actions, fast...).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{action.Render(action.Click{Path: "#next"})}, b.scripts())
}

func TestSettleDelayBeforeLaterLeaves(t *testing.T) {
	b := newFakeBridge()
	b.setPresent("#a", bridge.Main, true)
	actions := []action.Action{
		action.New(action.Click{Path: "#a"}, 0),
		action.New(action.Click{Path: "#a"}, 0),
	}
	start := time.Now()
	_, err := New(b, actions, WithSettleDelay(40*time.Millisecond)).Run(testContext(t))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Len(t, b.scripts(), 2)
}

func TestStartPreconditions(t *testing.T) {
	assert.Panics(t, func() { New(nil, nil).Start(context.Background()) })

	r := New(newFakeBridge(), nil, fast...)
	r.Start(context.Background())
	assert.Panics(t, func() { r.Start(context.Background()) })
	r.Wait()
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "waiting-for-element", StateWaitingForElement.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateStopped.Terminal())
	assert.False(t, StateProbing.Terminal())
}
