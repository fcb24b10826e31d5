package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/haukened/linkguard/internal/linking/domain"
)

const envPrefix = "LINK_"

// AppConfig holds configuration values from defaults, an optional YAML file,
// and LINK_ environment variables, in that order of precedence.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	Linking  LinkingConfig  `koanf:"linking"`
	Messages MessagesConfig `koanf:"messages"`
	Store    StoreConfig    `koanf:"store"`
}

// LinkingConfig is the required-linking section.
type LinkingConfig struct {
	Enabled bool `koanf:"enabled"`

	// Action is KICK, FREEZE or NONE.
	Action string `koanf:"action" validate:"required,action"`

	// Kick pins the kick path to a single (event, priority) stage.
	Kick KickConfig `koanf:"kick"`

	// CheckCommands are the commands a frozen player may run to recheck.
	CheckCommands []string `koanf:"check_commands" validate:"required,min=1,dive,required"`

	RateLimit     time.Duration `koanf:"rate_limit" validate:"gt=0s"`
	RateLimitSize int           `koanf:"rate_limit_size" validate:"gte=1"`
	QueryTimeout  time.Duration `koanf:"query_timeout" validate:"gt=0s"`

	// ModuleWait bounds how long a connection waits for the engine to come up.
	ModuleWait time.Duration `koanf:"module_wait" validate:"gte=0s"`
	ModulePoll time.Duration `koanf:"module_poll" validate:"gt=0s"`

	LinkURL string `koanf:"link_url" validate:"omitempty,url"`
}

// KickConfig selects the connection stage the kick path runs at.
type KickConfig struct {
	Event    string `koanf:"event" validate:"required,kick_event"`
	Priority string `koanf:"priority" validate:"required,kick_priority"`
}

// MessagesConfig holds user-facing texts. NotLinked is a text/template with
// .Name, .Code and .URL available.
type MessagesConfig struct {
	NotLinked   string `koanf:"not_linked" validate:"required"`
	Unavailable string `koanf:"unavailable" validate:"required"`
	Checking    string `koanf:"checking" validate:"required"`
	RateLimited string `koanf:"rate_limited" validate:"required"`
}

// StoreConfig configures the local link store and the status cache in front of it.
type StoreConfig struct {
	Path        string        `koanf:"path" validate:"required"`
	CacheSize   int           `koanf:"cache_size" validate:"gte=1"`
	CacheTTL    time.Duration `koanf:"cache_ttl" validate:"gt=0s"`
	BloomFPRate float64       `koanf:"bloom_fp_rate" validate:"gt=0,lt=1"`
	CodeTTL     time.Duration `koanf:"code_ttl" validate:"gt=0s"`
}

// DEFAULT_APP_CONFIG defines the default application configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:      "prod",
	LogLevel: "info",
	Linking: LinkingConfig{
		Enabled:       false,
		Action:        "KICK",
		Kick:          KickConfig{Event: "AsyncPreLogin", Priority: "LOW"},
		CheckCommands: []string{"link", "linked", "discord link"},
		RateLimit:     5 * time.Second,
		RateLimitSize: 4096,
		QueryTimeout:  5 * time.Second,
		ModuleWait:    5 * time.Second,
		ModulePoll:    100 * time.Millisecond,
	},
	Messages: MessagesConfig{
		NotLinked:   "You are not linked to Discord. Use the code {{.Code}} with the Discord bot to link.",
		Unavailable: "Discord unavailable, please try again later",
		Checking:    "Checking...",
		RateLimited: "Please wait before running that command again",
	},
	Store: StoreConfig{
		Path:        "/var/lib/linkguard/links.db",
		CacheSize:   1000,
		CacheTTL:    30 * time.Second,
		BloomFPRate: 0.01,
		CodeTTL:     10 * time.Minute,
	},
}

// Policy converts the linking section into the domain policy snapshot.
func (c *AppConfig) Policy() (domain.Policy, error) {
	action, err := domain.ParseAction(c.Linking.Action)
	if err != nil {
		return domain.Policy{}, err
	}
	stage, err := c.Linking.Kick.Stage()
	if err != nil {
		return domain.Policy{}, err
	}
	return domain.NewPolicy(c.Linking.Enabled, action, stage, c.Messages.NotLinked, c.Messages.Unavailable, c.Linking.LinkURL)
}

// Stage parses the configured kick stage.
func (k KickConfig) Stage() (domain.Stage, error) {
	ph, err := domain.ParsePhase(k.Event)
	if err != nil {
		return domain.Stage{}, err
	}
	pr, err := domain.ParsePriority(k.Priority)
	if err != nil {
		return domain.Stage{}, err
	}
	return domain.Stage{Phase: ph, Priority: pr}, nil
}

func validAction(fl validator.FieldLevel) bool {
	_, err := domain.ParseAction(fl.Field().String())
	return err == nil
}

func validKickEvent(fl validator.FieldLevel) bool {
	_, err := domain.ParsePhase(fl.Field().String())
	return err == nil
}

// validKickPriority rejects MONITOR: that slot only observes.
func validKickPriority(fl validator.FieldLevel) bool {
	p, err := domain.ParsePriority(fl.Field().String())
	return err == nil && p != domain.PriorityMonitor
}

// listKeys are the list-typed keys whose env values are comma separated.
var listKeys = map[string]bool{
	"linking.check_commands": true,
}

// envTransform strips the prefix, lowercases the key and maps "__" to the
// koanf delimiter. Values of list keys are split on commas; every other
// value is kept as a single string.
func envTransform(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	value = strings.TrimSpace(value)

	if !listKeys[key] {
		return key, value
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return key, out
}

// envLoader loads LINK_ environment variables; replaceable in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix:        envPrefix,
		TransformFunc: envTransform,
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader loads a YAML file when path is not empty.
var fileLoader = func(k *koanf.Koanf, path string) error {
	if path == "" {
		return nil
	}
	return k.Load(file.Provider(path), yaml.Parser())
}

// registerValidation registers the custom tags used by AppConfig.
var registerValidation = func(v *validator.Validate) error {
	for tag, fn := range map[string]validator.Func{
		"action":        validAction,
		"kick_event":    validKickEvent,
		"kick_priority": validKickPriority,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

// Load builds an AppConfig from defaults, the optional YAML file at path and
// the environment. It runs validation and checks that the policy compiles.
func Load(path string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if err := fileLoader(k, path); err != nil {
		return nil, fmt.Errorf("error loading config file %s: %w", path, err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if _, err := cfg.Policy(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
