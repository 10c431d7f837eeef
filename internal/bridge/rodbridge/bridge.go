package rodbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"github.com/v0xg/shortweb/internal/bridge"
	"github.com/v0xg/shortweb/internal/session"
)

// Options configures the rod backed browser
type Options struct {
	Bin         string // browser binary, looked up when empty
	ControlURL  string // attach to a running browser instead of launching one
	Headless    bool
	NoSandbox   bool
	Leakless    bool
	Stealth     bool
	UserDataDir string // Chrome/Chromium profile directory for authenticated sessions
	Profile     string
	Store       session.Store
	FrameRetry  bridge.FrameRetry
	Logger      *zap.Logger
}

// Bridge drives a single rod page
type Bridge struct {
	opts     Options
	log      *zap.Logger
	loop     *bridge.UILoop
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	events   *bridge.EventQueue

	mu     sync.Mutex
	frames map[string]*rod.Page
	url    string

	cancel    context.CancelFunc
	closeOnce sync.Once
	persistMu sync.Mutex
}

// Launch starts or attaches to a browser and opens the page the bridge drives
func Launch(ctx context.Context, opts Options) (*Bridge, error) {
	var l *launcher.Launcher
	u := opts.ControlURL
	if u == "" {
		path := opts.Bin
		if path == "" {
			path, _ = launcher.LookPath()
		}
		l = launcher.New().
			Context(context.WithoutCancel(ctx)).
			Bin(path).
			Headless(opts.Headless).
			NoSandbox(opts.NoSandbox).
			Leakless(opts.Leakless).
			Set("disable-site-isolation-trials")
		if opts.UserDataDir != "" {
			l = l.UserDataDir(opts.UserDataDir)
		}
		var err error
		u, err = l.Launch()
		if err != nil {
			return nil, bridge.Wrap("launch", err)
		}
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, bridge.Wrap("connect", err)
	}

	var (
		page *rod.Page
		err  error
	)
	if opts.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = browser.Close()
		if l != nil {
			l.Kill()
		}
		return nil, bridge.Wrap("open page", err)
	}

	b, err := New(ctx, browser, page, opts)
	if err != nil {
		_ = browser.Close()
		if l != nil {
			l.Kill()
		}
		return nil, err
	}
	b.launcher = l
	return b, nil
}

// New wraps an already open page
func New(ctx context.Context, browser *rod.Browser, page *rod.Page, opts Options) (*Bridge, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.FrameRetry.Attempts == 0 {
		opts.FrameRetry = bridge.DefaultFrameRetry
	}
	if opts.Profile == "" {
		opts.Profile = session.DefaultProfile
	}

	watch, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b := &Bridge{
		opts:    opts,
		log:     opts.Logger.With(zap.String("backend", "rod")),
		loop:    bridge.NewUILoop(),
		browser: browser,
		page:    page,
		events:  bridge.NewEventQueue(),
		frames:  make(map[string]*rod.Page),
		cancel:  cancel,
	}

	if err := b.install(ctx); err != nil {
		cancel()
		b.loop.Close()
		b.events.Close()
		return nil, err
	}

	wait := page.Context(watch).EachEvent(
		func(e *proto.PageFrameNavigated) {
			if e.Frame == nil || e.Frame.ParentID != "" {
				return
			}
			b.mu.Lock()
			b.url = e.Frame.URL
			b.frames = make(map[string]*rod.Page)
			b.mu.Unlock()
		},
		func(*proto.PageLoadEventFired) {
			b.mu.Lock()
			u := b.url
			b.mu.Unlock()
			b.events.Publish(bridge.LoadFinished{URL: u})
			go b.persist(watch)
		},
		func(e *proto.RuntimeBindingCalled) {
			if e.Name != bridge.DOMChangeBinding {
				return
			}
			b.events.Publish(bridge.DOMMutated{IFrames: iframeSources(e.Payload)})
		},
	)
	go wait()

	return b, nil
}

// iframeSources reads the src list posted by the mutation observer
func iframeSources(payload string) []string {
	var srcs []string
	for _, v := range gson.NewFrom(payload).Arr() {
		if s, ok := v.Val().(string); ok && s != "" {
			srcs = append(srcs, s)
		}
	}
	return srcs
}

// install restores cookies and injects the helper script into every document
func (b *Bridge) install(ctx context.Context) error {
	if b.opts.Store != nil {
		cookies, err := b.opts.Store.Load(ctx, b.opts.Profile)
		if err != nil {
			return bridge.Wrap("load cookies", err)
		}
		if len(cookies) > 0 {
			if err := b.browser.SetCookies(toProto(cookies)); err != nil {
				return bridge.Wrap("restore cookies", err)
			}
			b.log.Debug("restored cookies", zap.Int("count", len(cookies)), zap.String("profile", b.opts.Profile))
		}
	}
	if err := (proto.RuntimeAddBinding{Name: bridge.DOMChangeBinding}).Call(b.page); err != nil {
		return bridge.Wrap("add binding", err)
	}
	if _, err := b.page.EvalOnNewDocument(bridge.HelperScript); err != nil {
		return bridge.Wrap("inject helpers", err)
	}
	if _, err := b.page.Context(ctx).Eval(bridge.FunctionBody(bridge.HelperScript)); err != nil {
		return bridge.Wrap("inject helpers", err)
	}
	return nil
}

// persist saves the browser cookies into the session store
func (b *Bridge) persist(ctx context.Context) {
	if b.opts.Store == nil {
		return
	}
	b.persistMu.Lock()
	defer b.persistMu.Unlock()
	cookies, err := bridge.Call(ctx, b.loop, b.browser.GetCookies)
	if err != nil {
		b.log.Debug("read cookies", zap.Error(err))
		return
	}
	if err := b.opts.Store.Save(ctx, b.opts.Profile, fromProto(cookies)); err != nil {
		b.log.Warn("save cookies", zap.Error(err))
	}
}

// scope returns the page object evaluating in f
func (b *Bridge) scope(f bridge.Frame) (*rod.Page, error) {
	if f.IsMain() {
		return b.page, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.frames[f.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", bridge.ErrNoFrame, f.ID)
	}
	return p, nil
}

func (b *Bridge) Evaluate(ctx context.Context, script string, scope bridge.Frame) (bridge.Value, error) {
	v, err := bridge.Call(ctx, b.loop, func() (bridge.Value, error) {
		p, err := b.scope(scope)
		if err != nil {
			return bridge.Value{}, err
		}
		res, err := p.Context(ctx).Eval(bridge.FunctionBody(script))
		if err != nil {
			return bridge.Value{}, err
		}
		if res.Type == proto.RuntimeRemoteObjectTypeUndefined {
			return bridge.Undefined(), nil
		}
		return bridge.NewValue(res.Value.Val()), nil
	})
	return v, bridge.Wrap("evaluate", err)
}

func (b *Bridge) Exists(ctx context.Context, selector string, scope bridge.Frame) (bool, error) {
	ok, err := bridge.Call(ctx, b.loop, func() (bool, error) {
		p, err := b.scope(scope)
		if err != nil {
			return false, err
		}
		has, _, err := p.Context(ctx).Has(selector)
		return has, err
	})
	return ok, bridge.Wrap("exists", err)
}

func (b *Bridge) ResolveFrame(ctx context.Context, selector string, parent bridge.Frame) (bridge.Frame, error) {
	f, err := b.opts.FrameRetry.Resolve(ctx, parent, func(ctx context.Context) (bridge.Frame, bool, error) {
		type found struct {
			frame bridge.Frame
			ok    bool
		}
		r, err := bridge.Call(ctx, b.loop, func() (found, error) {
			p, err := b.scope(parent)
			if err != nil {
				return found{}, err
			}
			has, el, err := p.Context(ctx).Has(selector)
			if err != nil || !has {
				return found{}, nil
			}
			fp, err := el.Frame()
			if err != nil || fp.FrameID == "" {
				return found{}, nil
			}
			id := string(fp.FrameID)
			b.mu.Lock()
			b.frames[id] = fp
			b.mu.Unlock()
			return found{bridge.Frame{ID: id}, true}, nil
		})
		if err != nil {
			return parent, false, err
		}
		return r.frame, r.ok, nil
	})
	if errors.Is(err, bridge.ErrNoFrame) {
		b.log.Debug("parent frame gone", zap.String("selector", selector), zap.Stringer("parent", parent))
		return parent, nil
	}
	return f, bridge.Wrap("resolve frame", err)
}

func (b *Bridge) Navigate(ctx context.Context, url string) error {
	return bridge.Wrap("navigate", b.loop.Do(ctx, func() error {
		return b.page.Context(ctx).Navigate(url)
	}))
}

func (b *Bridge) SetDeviceMode(ctx context.Context, mobile bool) error {
	d := bridge.DeviceFor(mobile)
	return bridge.Wrap("device mode", b.loop.Do(ctx, func() error {
		p := b.page.Context(ctx)
		if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             d.Width,
			Height:            d.Height,
			DeviceScaleFactor: 1,
			Mobile:            d.Mobile,
		}); err != nil {
			return err
		}
		return p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: d.UserAgent})
	}))
}

func (b *Bridge) InsertText(ctx context.Context, text string) error {
	return bridge.Wrap("insert text", b.loop.Do(ctx, func() error {
		return b.page.Context(ctx).InsertText(text)
	}))
}

func (b *Bridge) SetFiles(ctx context.Context, selector string, scope bridge.Frame, files []string) error {
	return bridge.Wrap("set files", b.loop.Do(ctx, func() error {
		p, err := b.scope(scope)
		if err != nil {
			return err
		}
		has, el, err := p.Context(ctx).Has(selector)
		if err != nil {
			return err
		}
		if !has {
			return fmt.Errorf("no element matches %q", selector)
		}
		return el.SetFiles(files)
	}))
}

func (b *Bridge) StopLoading(ctx context.Context) error {
	return bridge.Wrap("stop loading", b.loop.Do(ctx, func() error {
		return b.page.Context(ctx).StopLoading()
	}))
}

func (b *Bridge) Events() <-chan bridge.Event {
	return b.events.Events()
}

// Close saves cookies and releases the page, the browser and any launched process
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.persist(context.Background())
		b.cancel()
		b.loop.Close()
		b.events.Close()
		if b.page != nil {
			_ = b.page.Close()
		}
		if b.browser != nil {
			err = b.browser.Close()
		}
		if b.launcher != nil {
			b.launcher.Kill()
			if b.opts.UserDataDir == "" {
				b.launcher.Cleanup()
			}
		}
	})
	return bridge.Wrap("close", err)
}
