// Package enforcement applies the required-linking policy to connecting and
// playing users: the connection gate (KICK), the freeze supervisor (FREEZE)
// and the recheck coordinator. The engine starts no goroutines of its own;
// asynchronous work completes on the link query client's goroutines.
package enforcement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/haukened/linkguard/internal/linking/common/log"
	"github.com/haukened/linkguard/internal/linking/domain"
)

// ErrPlayerUnavailable means a joined player could not be resolved by the host.
var ErrPlayerUnavailable = errors.New("player not available")

const (
	defaultChecking    = "Checking..."
	defaultRateLimited = "Please wait before running that command again"
)

// Options configures an Engine.
type Options struct {
	// required parameters
	Policy   PolicySource
	Module   ModuleProvider
	Sessions SessionStore
	Limiter  RateLimiter
	Players  PlayerDirectory

	// optional parameters
	Logger        log.Logger
	CheckCommands []string      // default link, linked, discord link
	Checking      string        // sent when a recheck starts
	RateLimited   string        // sent when a recheck is refused
	QueryTimeout  time.Duration // default 5s
	ModuleWait    time.Duration // 0 means no wait
	ModulePoll    time.Duration // default 100ms
}

// Engine is the single enforcement instance of the process.
type Engine struct {
	policy   PolicySource
	module   ModuleProvider
	sessions SessionStore
	limiter  RateLimiter
	players  PlayerDirectory
	logger   log.Logger

	checkCommands map[string]struct{}
	checking      string
	rateLimited   string
	queryTimeout  time.Duration
	moduleWait    time.Duration
	modulePoll    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// NewEngine validates opts and returns an Engine.
func NewEngine(opts Options) (*Engine, error) {
	switch {
	case opts.Policy == nil:
		return nil, errors.New("policy source is required")
	case opts.Module == nil:
		return nil, errors.New("module provider is required")
	case opts.Sessions == nil:
		return nil, errors.New("session store is required")
	case opts.Limiter == nil:
		return nil, errors.New("rate limiter is required")
	case opts.Players == nil:
		return nil, errors.New("player directory is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if len(opts.CheckCommands) == 0 {
		opts.CheckCommands = []string{"link", "linked", "discord link"}
	}
	if opts.Checking == "" {
		opts.Checking = defaultChecking
	}
	if opts.RateLimited == "" {
		opts.RateLimited = defaultRateLimited
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Second
	}
	if opts.ModulePoll <= 0 {
		opts.ModulePoll = 100 * time.Millisecond
	}

	cmds := make(map[string]struct{}, len(opts.CheckCommands))
	for _, c := range opts.CheckCommands {
		if c = normalizeCommand(c); c != "" {
			cmds[c] = struct{}{}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		policy:        opts.Policy,
		module:        opts.Module,
		sessions:      opts.Sessions,
		limiter:       opts.Limiter,
		players:       opts.Players,
		logger:        opts.Logger,
		checkCommands: cmds,
		checking:      opts.Checking,
		rateLimited:   opts.RateLimited,
		queryTimeout:  opts.QueryTimeout,
		moduleWait:    opts.ModuleWait,
		modulePoll:    opts.ModulePoll,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Register subscribes the gate to every non-MONITOR stage, the freeze
// handlers to the MONITOR stage of each phase, and the in-game handlers
// to events.
func (e *Engine) Register(src PhaseSource, events EventSource) error {
	for _, st := range src.Stages() {
		h := e.OnConnect
		if st.IsMonitor() {
			switch st.Phase {
			case domain.PhasePreLogin:
				h = e.OnPreLoginMonitor
			case domain.PhaseLogin:
				h = e.OnLoginMonitor
			case domain.PhaseJoin:
				h = e.OnJoinMonitor
			default:
				continue
			}
		}
		if err := src.Subscribe(st, h); err != nil {
			return fmt.Errorf("subscribe %s: %w", st, err)
		}
	}
	events.OnMove(e.OnMove)
	events.OnChat(e.OnChat)
	events.OnCommand(e.OnCommand)
	events.OnDisconnect(e.OnDisconnect)
	return nil
}

// Shutdown cancels in-flight queries. Later freeze evaluations pass through.
func (e *Engine) Shutdown() {
	if e.closed.CompareAndSwap(false, true) {
		e.cancel()
		e.logger.Info(nil, "Enforcement engine shut down")
	}
}

// resolveModule waits for the link query module and logs when it never shows up.
func (e *Engine) resolveModule(ctx context.Context) (LinkQueryClient, error) {
	c, err := WaitForModule(ctx, e.module, e.moduleWait, e.modulePoll)
	if err != nil {
		e.logger.Warn(map[string]any{"wait": e.moduleWait.String(), "error": err}, "Link query module not ready, failing closed")
		return nil, err
	}
	return c, nil
}

// decide blocks until the user's link status is known or the query timeout
// elapses and evaluates it. Every failure is evaluated as UNKNOWN.
func (e *Engine) decide(ctx context.Context, p domain.Policy, user domain.UserIdentity, forceFresh bool) (domain.BlockReason, bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()

	client, err := e.resolveModule(ctx)
	if err != nil {
		return domain.Decide(p, user, domain.UnknownCheck())
	}

	qctx, qcancel := context.WithTimeout(ctx, e.queryTimeout)
	defer qcancel()
	check, err := client.QueryLinkStatus(qctx, user, forceFresh).Wait(qctx)
	if err != nil {
		e.logger.Warn(map[string]any{"player": user.String(), "error": err}, "Link status unavailable")
		check = domain.UnknownCheck()
	}
	return domain.Decide(p, user, check)
}

func normalizeCommand(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "/")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func (e *Engine) isCheckCommand(cmd string) bool {
	_, ok := e.checkCommands[normalizeCommand(cmd)]
	return ok
}
