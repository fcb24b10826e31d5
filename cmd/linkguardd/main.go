package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/haukened/linkguard/internal/linking/common/clock"
	"github.com/haukened/linkguard/internal/linking/common/log"
	"github.com/haukened/linkguard/internal/linking/config"
	"github.com/haukened/linkguard/internal/linking/gateways/host"
	"github.com/haukened/linkguard/internal/linking/gateways/linkquery"
	"github.com/haukened/linkguard/internal/linking/repos/frozenset"
	"github.com/haukened/linkguard/internal/linking/repos/linkstore"
	"github.com/haukened/linkguard/internal/linking/repos/ratelimit"
	"github.com/haukened/linkguard/internal/linking/repos/statuscache"
	"github.com/haukened/linkguard/internal/linking/services/enforcement"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "linkguardd"

	// configFileEnv names the optional YAML file layered over the defaults.
	configFileEnv = "LINK_CONFIG_FILE"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the enforcement daemon
type Application struct {
	config     *config.AppConfig
	configPath string
	holder     *config.Holder
	store      *linkstore.Store
	client     *linkquery.Client
	slot       *enforcement.Slot
	server     *host.Server
	engine     *enforcement.Engine
	console    *console
}

func main() {
	path := os.Getenv(configFileEnv)

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":  version,
		"env":      cfg.Env,
		"enabled":  cfg.Linking.Enabled,
		"action":   cfg.Linking.Action,
		"kick":     cfg.Linking.Kick.Event + "/" + cfg.Linking.Kick.Priority,
		"store":    cfg.Store.Path,
		"config":   path,
		"commands": cfg.Linking.CheckCommands,
	}, "Starting "+appName)

	app, err := buildApplication(cfg, path, os.Stdin, os.Stdout)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Daemon failed")
	}

	log.Info(nil, appName+" stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig, path string, in io.Reader, out io.Writer) (*Application, error) {
	clk := &clock.RealClock{}
	logger := log.GetLogger()

	holder, err := config.NewHolder(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to compile policy: %w", err)
	}

	repos, err := buildRepositories(cfg, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to build repositories: %w", err)
	}

	client, err := linkquery.NewClient(linkquery.Options{
		Store:       repos.store,
		Cache:       repos.cache,
		Timeout:     cfg.Linking.QueryTimeout,
		CodeTTL:     cfg.Store.CodeTTL,
		BloomFPRate: cfg.Store.BloomFPRate,
		Clock:       clk,
		Logger:      logger,
	})
	if err != nil {
		_ = repos.store.Close()
		return nil, fmt.Errorf("failed to create link query client: %w", err)
	}

	con := newConsole(in, out)
	server := host.New(host.Options{Sink: con, Logger: logger})
	slot := &enforcement.Slot{}

	engine, err := enforcement.NewEngine(enforcement.Options{
		Policy:        holder,
		Module:        slot,
		Sessions:      repos.sessions,
		Limiter:       repos.limiter,
		Players:       server,
		Logger:        logger,
		CheckCommands: cfg.Linking.CheckCommands,
		Checking:      cfg.Messages.Checking,
		RateLimited:   cfg.Messages.RateLimited,
		QueryTimeout:  cfg.Linking.QueryTimeout,
		ModuleWait:    cfg.Linking.ModuleWait,
		ModulePoll:    cfg.Linking.ModulePoll,
	})
	if err != nil {
		_ = repos.store.Close()
		return nil, fmt.Errorf("failed to create enforcement engine: %w", err)
	}
	if err := engine.Register(server, server); err != nil {
		_ = repos.store.Close()
		return nil, fmt.Errorf("failed to register enforcement engine: %w", err)
	}

	app := &Application{
		config:     cfg,
		configPath: path,
		holder:     holder,
		store:      repos.store,
		client:     client,
		slot:       slot,
		server:     server,
		engine:     engine,
		console:    con,
	}
	con.app = app
	return app, nil
}

// repositories holds all repository implementations
type repositories struct {
	store    *linkstore.Store
	cache    linkquery.StatusCache
	limiter  enforcement.RateLimiter
	sessions *frozenset.Registry
}

// buildRepositories creates and configures all repository implementations
func buildRepositories(cfg *config.AppConfig, clk clock.Clock) (*repositories, error) {
	store, err := linkstore.New(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	st := store.Stats()
	log.Info(map[string]any{
		"path":    cfg.Store.Path,
		"links":   st.Links,
		"pending": st.Pending,
	}, "Link store opened")

	cache, err := statuscache.New(cfg.Store.CacheSize, cfg.Store.CacheTTL, clk)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create status cache: %w", err)
	}
	log.Info(map[string]any{
		"type": "LRU",
		"size": cfg.Store.CacheSize,
		"ttl":  cfg.Store.CacheTTL.String(),
	}, "Link status cache configured")

	limiter, err := ratelimit.New(cfg.Linking.RateLimit, cfg.Linking.RateLimitSize, clk)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	return &repositories{
		store:    store,
		cache:    cache,
		limiter:  limiter,
		sessions: frozenset.New(),
	}, nil
}

// onLinkChange keeps the query client current and rechecks the player if online.
func (app *Application) onLinkChange(ctx context.Context) linkstore.ChangeFunc {
	return func(id uuid.UUID, linked bool) {
		app.client.LinkChanged(id, linked)
		if app.engine.RecheckID(ctx, id) {
			log.Debug(map[string]any{"player": id.String(), "linked": linked}, "Recheck after link change")
		}
	}
}

// Run publishes the link query module, serves the console and blocks until
// the context is cancelled or the console input ends.
func (app *Application) Run(ctx context.Context) error {
	app.store.OnChange(app.onLinkChange(ctx))
	app.holder.OnChange(app.engine.PolicyChanged)
	app.slot.Set(app.client)
	log.Info(nil, "Link query module ready")

	if err := app.holder.Watch(app.configPath, log.GetLogger()); err != nil {
		log.Warn(map[string]any{"path": app.configPath, "error": err}, "Config watch unavailable")
	}

	done := make(chan error, 1)
	go func() { done <- app.console.serve(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(nil, "Shutdown initiated")
	case runErr = <-done:
		log.Info(nil, "Console input closed")
	}
	return app.shutdown(runErr)
}

func (app *Application) shutdown(runErr error) error {
	app.engine.Shutdown()
	for _, p := range app.server.Online() {
		app.server.Quit(p)
	}

	closed := make(chan error, 1)
	go func() { closed <- app.store.Close() }()

	select {
	case err := <-closed:
		if err != nil {
			log.Warn(map[string]any{"error": err}, "Error closing link store")
		}
		log.Info(nil, "Graceful shutdown completed")
		return runErr
	case <-time.After(defaultShutdownTimeout):
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}
}
