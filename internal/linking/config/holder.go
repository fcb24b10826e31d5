package config

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/knadh/koanf/providers/file"

	"github.com/haukened/linkguard/internal/linking/common/log"
	"github.com/haukened/linkguard/internal/linking/domain"
)

// snapshot pairs a config with the policy compiled from it.
type snapshot struct {
	cfg    *AppConfig
	policy domain.Policy
}

// Holder publishes the active configuration. Readers always see a complete
// snapshot; Replace swaps it atomically so the action is hot-reloadable.
type Holder struct {
	cur atomic.Pointer[snapshot]

	mu       sync.Mutex
	onChange []func(domain.Policy)
}

// NewHolder compiles cfg and returns a Holder serving it.
func NewHolder(cfg *AppConfig) (*Holder, error) {
	h := &Holder{}
	if err := h.Replace(cfg); err != nil {
		return nil, err
	}
	return h, nil
}

// Replace compiles and publishes cfg. The previous snapshot stays active on error.
func (h *Holder) Replace(cfg *AppConfig) error {
	p, err := cfg.Policy()
	if err != nil {
		return fmt.Errorf("compile policy: %w", err)
	}
	h.cur.Store(&snapshot{cfg: cfg, policy: p})

	h.mu.Lock()
	subs := append(([]func(domain.Policy))(nil), h.onChange...)
	h.mu.Unlock()
	for _, fn := range subs {
		fn(p)
	}
	return nil
}

// OnChange registers fn to run with every policy published by Replace.
func (h *Holder) OnChange(fn func(domain.Policy)) {
	h.mu.Lock()
	h.onChange = append(h.onChange, fn)
	h.mu.Unlock()
}

// Current returns the active configuration.
func (h *Holder) Current() *AppConfig { return h.cur.Load().cfg }

// Policy returns the active policy snapshot.
func (h *Holder) Policy() domain.Policy { return h.cur.Load().policy }

// watchFile is replaceable in tests.
var watchFile = func(path string, cb func(event any, err error)) error {
	return file.Provider(path).Watch(cb)
}

// Watch reloads the configuration whenever the file at path changes.
// A file that fails to load or validate is logged and ignored.
func (h *Holder) Watch(path string, logger log.Logger) error {
	if path == "" {
		return nil
	}
	return watchFile(path, func(_ any, err error) {
		if err != nil {
			logger.Warn(map[string]any{"path": path, "error": err}, "Config watch error")
			return
		}
		h.reload(path, logger)
	})
}

func (h *Holder) reload(path string, logger log.Logger) {
	cfg, err := Load(path)
	if err != nil {
		logger.Error(map[string]any{"path": path, "error": err}, "Config reload rejected")
		return
	}
	if err := h.Replace(cfg); err != nil {
		logger.Error(map[string]any{"path": path, "error": err}, "Config reload rejected")
		return
	}
	logger.Info(map[string]any{
		"enabled": cfg.Linking.Enabled,
		"action":  cfg.Linking.Action,
		"kick":    cfg.Linking.Kick.Event + "/" + cfg.Linking.Kick.Priority,
	}, "Config reloaded")
}
