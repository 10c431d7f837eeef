package cdpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/v0xg/shortweb/internal/action"
	"github.com/v0xg/shortweb/internal/bridge"
	"github.com/v0xg/shortweb/internal/session"
)

// Options configures the chromedp backed browser
type Options struct {
	ExecPath    string // browser binary, chromedp default when empty
	ControlURL  string // devtools websocket of a running browser
	Headless    bool
	NoSandbox   bool
	UserDataDir string
	Profile     string
	Store       session.Store
	FrameRetry  bridge.FrameRetry
	Logger      *zap.Logger
}

// Bridge drives the first tab of a chromedp browser
type Bridge struct {
	opts   Options
	log    *zap.Logger
	loop   *bridge.UILoop
	events *bridge.EventQueue

	pageCtx     context.Context
	pageCancel  context.CancelFunc
	allocCancel context.CancelFunc

	index bridge.FrameIndex
	ctxs  contexts

	mu  sync.Mutex
	url string

	closeOnce sync.Once
	persistMu sync.Mutex
}

// Launch allocates a browser, opens a tab and installs the page helpers
func Launch(ctx context.Context, opts Options) (*Bridge, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.FrameRetry.Attempts == 0 {
		opts.FrameRetry = bridge.DefaultFrameRetry
	}
	if opts.Profile == "" {
		opts.Profile = session.DefaultProfile
	}
	log := opts.Logger.With(zap.String("backend", "chromedp"))

	// the tab outlives ctx so a cancelled run can still reset the page
	base := context.WithoutCancel(ctx)
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.ControlURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(base, opts.ControlURL)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("no-sandbox", opts.NoSandbox),
			chromedp.Flag("disable-site-isolation-trials", true),
		)
		if opts.ExecPath != "" {
			execOpts = append(execOpts, chromedp.ExecPath(opts.ExecPath))
		}
		if opts.UserDataDir != "" {
			execOpts = append(execOpts, chromedp.UserDataDir(opts.UserDataDir))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(base, execOpts...)
	}

	sugar := log.Sugar()
	pageCtx, pageCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Warnf),
	)

	b := &Bridge{
		opts:        opts,
		log:         log,
		loop:        bridge.NewUILoop(),
		events:      bridge.NewEventQueue(),
		pageCtx:     pageCtx,
		pageCancel:  pageCancel,
		allocCancel: allocCancel,
	}

	// allocates the tab so listeners can attach to it
	if err := chromedp.Run(pageCtx); err != nil {
		b.release()
		return nil, bridge.Wrap("launch", err)
	}
	chromedp.ListenTarget(pageCtx, b.handle)

	if err := b.install(ctx); err != nil {
		b.release()
		return nil, err
	}
	return b, nil
}

func (b *Bridge) install(ctx context.Context) error {
	actions := []chromedp.Action{
		page.Enable(),
		runtime.Enable(),
		network.Enable(),
		runtime.AddBinding(bridge.DOMChangeBinding),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(bridge.HelperScript).Do(ctx)
			return err
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, exc, err := runtime.Evaluate(bridge.HelperScript).Do(ctx)
			if err != nil {
				return err
			}
			if exc != nil {
				return exc
			}
			return nil
		}),
	}
	if b.opts.Store != nil {
		cookies, err := b.opts.Store.Load(ctx, b.opts.Profile)
		if err != nil {
			return bridge.Wrap("load cookies", err)
		}
		if len(cookies) > 0 {
			actions = append(actions, network.SetCookies(toNetwork(cookies)))
			b.log.Debug("restored cookies", zap.Int("count", len(cookies)), zap.String("profile", b.opts.Profile))
		}
	}
	return bridge.Wrap("install", b.run(ctx, actions...))
}

// handle runs on the chromedp event goroutine and must not block
func (b *Bridge) handle(ev any) {
	switch e := ev.(type) {
	case *runtime.EventExecutionContextCreated:
		b.ctxs.created(e.Context)
	case *runtime.EventExecutionContextDestroyed:
		b.ctxs.destroyed(e.ExecutionContextID)
	case *runtime.EventExecutionContextsCleared:
		b.ctxs.cleared()
	case *page.EventFrameNavigated:
		if e.Frame == nil {
			return
		}
		u := e.Frame.URL + e.Frame.URLFragment
		if e.Frame.ParentID == "" {
			b.mu.Lock()
			b.url = u
			b.mu.Unlock()
			b.index.Reset()
			return
		}
		b.index.Set(u, bridge.Frame{ID: string(e.Frame.ID)})
	case *page.EventFrameDetached:
		b.index.Remove(bridge.Frame{ID: string(e.FrameID)})
	case *page.EventLoadEventFired:
		b.mu.Lock()
		u := b.url
		b.mu.Unlock()
		b.events.Publish(bridge.LoadFinished{URL: u})
		go b.persist(b.pageCtx)
	case *runtime.EventBindingCalled:
		if e.Name != bridge.DOMChangeBinding {
			return
		}
		var srcs []string
		if err := json.Unmarshal([]byte(e.Payload), &srcs); err != nil {
			b.log.Debug("bad mutation payload", zap.Error(err))
		}
		b.events.Publish(bridge.DOMMutated{IFrames: srcs})
	}
}

// run executes actions on the tab, aborting when ctx is done without closing the tab
func (b *Bridge) run(ctx context.Context, actions ...chromedp.Action) error {
	return b.loop.Do(ctx, func() error {
		runCtx, cancel := context.WithCancel(b.pageCtx)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
		return chromedp.Run(runCtx, actions...)
	})
}

func (b *Bridge) persist(ctx context.Context) {
	if b.opts.Store == nil {
		return
	}
	b.persistMu.Lock()
	defer b.persistMu.Unlock()
	var cookies []*network.Cookie
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		b.log.Debug("read cookies", zap.Error(err))
		return
	}
	if err := b.opts.Store.Save(ctx, b.opts.Profile, fromNetwork(cookies)); err != nil {
		b.log.Warn("save cookies", zap.Error(err))
	}
}

// evaluate runs expr in the default context of scope
func (b *Bridge) evaluate(ctx context.Context, expr string, scope bridge.Frame, byValue bool) (*runtime.RemoteObject, error) {
	params := runtime.Evaluate(expr).WithAwaitPromise(true).WithReturnByValue(byValue)
	if !scope.IsMain() {
		id, ok := b.ctxs.lookup(scope.ID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", bridge.ErrNoFrame, scope.ID)
		}
		params = params.WithContextID(id)
	}
	var res *runtime.RemoteObject
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		r, exc, err := params.Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		res = r
		return nil
	}))
	return res, err
}

// toValue converts a by-value remote object
func toValue(res *runtime.RemoteObject) (bridge.Value, error) {
	switch {
	case res == nil || res.Type == runtime.TypeUndefined:
		return bridge.Undefined(), nil
	case res.UnserializableValue != "":
		return bridge.NewValue(res.UnserializableValue.String()), nil
	case len(res.Value) == 0:
		return bridge.NewValue(nil), nil
	}
	return bridge.ParseValue([]byte(res.Value))
}

func (b *Bridge) Evaluate(ctx context.Context, script string, scope bridge.Frame) (bridge.Value, error) {
	res, err := b.evaluate(ctx, script, scope, true)
	if err != nil {
		return bridge.Value{}, bridge.Wrap("evaluate", err)
	}
	v, err := toValue(res)
	return v, bridge.Wrap("evaluate", err)
}

func (b *Bridge) Exists(ctx context.Context, selector string, scope bridge.Frame) (bool, error) {
	v, err := b.Evaluate(ctx, bridge.ExistsScript(selector), scope)
	if err != nil {
		return false, bridge.Wrap("exists", err)
	}
	return v.Bool(), nil
}

// ResolveFrame matches the src of the iframe element against navigated child frames
func (b *Bridge) ResolveFrame(ctx context.Context, selector string, parent bridge.Frame) (bridge.Frame, error) {
	f, err := b.opts.FrameRetry.Resolve(ctx, parent, func(ctx context.Context) (bridge.Frame, bool, error) {
		res, err := b.evaluate(ctx, bridge.SrcScript(selector), parent, true)
		if errors.Is(err, bridge.ErrNoFrame) || ctx.Err() != nil {
			return parent, false, err
		}
		if err != nil {
			return parent, false, nil
		}
		v, err := toValue(res)
		if err != nil {
			return parent, false, nil
		}
		src, ok := v.Str()
		if !ok || src == "" {
			return parent, false, nil
		}
		frame, ok := b.index.Lookup(src)
		if !ok {
			return parent, false, nil
		}
		if _, ok := b.ctxs.lookup(frame.ID); !ok {
			return parent, false, nil
		}
		return frame, true, nil
	})
	if errors.Is(err, bridge.ErrNoFrame) {
		b.log.Debug("parent frame gone", zap.String("selector", selector), zap.Stringer("parent", parent))
		return parent, nil
	}
	return f, bridge.Wrap("resolve frame", err)
}

func (b *Bridge) Navigate(ctx context.Context, url string) error {
	return bridge.Wrap("navigate", b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errText, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return fmt.Errorf("%s: %s", url, errText)
		}
		return nil
	})))
}

func (b *Bridge) SetDeviceMode(ctx context.Context, mobile bool) error {
	d := bridge.DeviceFor(mobile)
	return bridge.Wrap("device mode", b.run(ctx,
		emulation.SetDeviceMetricsOverride(int64(d.Width), int64(d.Height), 1, d.Mobile),
		emulation.SetUserAgentOverride(d.UserAgent),
	))
}

func (b *Bridge) InsertText(ctx context.Context, text string) error {
	return bridge.Wrap("insert text", b.run(ctx, input.InsertText(text)))
}

func (b *Bridge) SetFiles(ctx context.Context, selector string, scope bridge.Frame, files []string) error {
	res, err := b.evaluate(ctx, action.Query(selector), scope, false)
	if err != nil {
		return bridge.Wrap("set files", err)
	}
	if res == nil || res.ObjectID == "" {
		return bridge.Wrap("set files", fmt.Errorf("no element matches %q", selector))
	}
	return bridge.Wrap("set files", b.run(ctx, dom.SetFileInputFiles(files).WithObjectID(res.ObjectID)))
}

func (b *Bridge) StopLoading(ctx context.Context) error {
	return bridge.Wrap("stop loading", b.run(ctx, page.StopLoading()))
}

func (b *Bridge) Events() <-chan bridge.Event {
	return b.events.Events()
}

// Close saves cookies, closes the tab and shuts down an allocated browser
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.persist(context.Background())
		b.release()
	})
	return nil
}

func (b *Bridge) release() {
	b.loop.Close()
	b.events.Close()
	b.pageCancel()
	b.allocCancel()
}
