package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/v0xg/shortweb/internal/bridge"
	"github.com/v0xg/shortweb/internal/bridge/cdpbridge"
	"github.com/v0xg/shortweb/internal/bridge/rodbridge"
	"github.com/v0xg/shortweb/internal/config"
	"github.com/v0xg/shortweb/internal/document"
	"github.com/v0xg/shortweb/internal/engine"
	"github.com/v0xg/shortweb/internal/logging"
	"github.com/v0xg/shortweb/internal/output"
	"github.com/v0xg/shortweb/internal/session"
)

func runDocuments(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// Decode everything up front so a typo fails before any browser starts
	docs := make([]*document.Document, 0, len(args))
	for _, path := range args {
		doc, err := document.Load(path)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prompt := newPrompter(os.Stdin, os.Stdout)
	var g errgroup.Group
	g.SetLimit(max(parallel, 1))
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			return runDocument(ctx, cfg, store, log, prompt, doc)
		})
	}
	return g.Wait()
}

func runDocument(ctx context.Context, cfg *config.Config, store session.Store, log *zap.Logger, prompt *prompter, doc *document.Document) error {
	log = log.With(zap.String("document", doc.Name))

	fmt.Printf("→ [%s] Launching %s browser...\n", doc.Name, cfg.Backend)
	b, err := openBridge(ctx, cfg, store, log)
	if err != nil {
		return fmt.Errorf("%s: launch failed: %w", doc.Name, err)
	}
	defer b.Close()

	fmt.Printf("→ [%s] Running %d steps\n", doc.Name, len(doc.Actions))
	d := &progress{doc: doc.Name, verbose: verbose, prompt: prompt}
	r := engine.New(b, doc.Actions,
		engine.WithDelegate(d),
		engine.WithLogger(log),
		engine.WithSettleDelay(cfg.SettleDelay()),
		engine.WithMutationSettle(cfg.MutationSettle()),
		engine.WithRecheck(cfg.RecheckInterval(), cfg.Engine.RecheckAttempts),
	)
	results, runErr := r.Run(ctx)
	stopped := r.State() == engine.StateStopped

	m, dir, err := output.Write(doc.Name, results, stopped, output.Options{
		Dir:      cfg.Output.Dir,
		MaxWidth: cfg.Output.MaxWidth,
		GIF:      cfg.Output.GIF,
		FPS:      cfg.Output.FPS,
	})
	if err != nil {
		return fmt.Errorf("%s: write results: %w", doc.Name, err)
	}

	status := "✓"
	if stopped {
		status = "⚠ stopped,"
	}
	fmt.Printf("%s [%s] %d results saved to %s\n", status, doc.Name, len(m.Results), dir)
	if runErr != nil {
		return fmt.Errorf("%s: %w", doc.Name, runErr)
	}
	return nil
}

// loadConfig layers the config file, SHORTWEB_* variables and flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if backend != "" {
		cfg.Backend = backend
	}
	if flags.Changed("headless") {
		cfg.Rod.Headless = headless
		cfg.Chromedp.Headless = headless
	}
	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	if gifStrip {
		cfg.Output.GIF = true
	}
	if sessionDB != "" {
		cfg.Session.DB = sessionDB
	}
	if verbose {
		cfg.Log.Level = "debug"
		cfg.Log.Dev = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (session.Store, error) {
	if cfg.Session.DB == "" {
		return session.NewMemoryStore(), nil
	}
	return session.NewSQLiteStore(cfg.Session.DB)
}

func openBridge(ctx context.Context, cfg *config.Config, store session.Store, log *zap.Logger) (bridge.Bridge, error) {
	retry := bridge.FrameRetry{Attempts: cfg.Engine.FrameAttempts, Interval: cfg.FrameInterval()}
	switch cfg.Backend {
	case config.BackendChromedp:
		return cdpbridge.Launch(ctx, cdpbridge.Options{
			ExecPath:    cfg.Chromedp.ExecPath,
			ControlURL:  cfg.Chromedp.ControlURL,
			Headless:    cfg.Chromedp.Headless,
			NoSandbox:   cfg.Chromedp.NoSandbox,
			UserDataDir: cfg.Chromedp.UserDataDir,
			Profile:     cfg.Session.Profile,
			Store:       store,
			FrameRetry:  retry,
			Logger:      log,
		})
	default:
		return rodbridge.Launch(ctx, rodbridge.Options{
			Bin:         cfg.Rod.Bin,
			ControlURL:  cfg.Rod.ControlURL,
			Headless:    cfg.Rod.Headless,
			NoSandbox:   cfg.Rod.NoSandbox,
			Leakless:    cfg.Rod.Leakless,
			Stealth:     cfg.Rod.Stealth,
			UserDataDir: cfg.Rod.UserDataDir,
			Profile:     cfg.Session.Profile,
			Store:       store,
			FrameRetry:  retry,
			Logger:      log,
		})
	}
}
