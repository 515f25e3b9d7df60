package config

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReconcileConfig controls the scheduled drift check.
type ReconcileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Schedule   string `mapstructure:"schedule"`
	AutoRepair bool   `mapstructure:"auto_repair"`
}

func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		Enabled:    false,
		Schedule:   "@every 6h",
		AutoRepair: false,
	}
}

type ReconcileConfigHolder struct {
	current atomic.Value // holds ReconcileConfig

	mu        sync.Mutex
	listeners []func(ReconcileConfig)
}

// NewStaticReconcileConfigHolder returns a holder that never reloads.
func NewStaticReconcileConfigHolder(cfg ReconcileConfig) *ReconcileConfigHolder {
	holder := &ReconcileConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewReconcileConfigHolder(log *zap.Logger) (*ReconcileConfigHolder, error) {
	log = log.Named("reconcile.config")
	v := viper.New()

	v.SetConfigName("reconcile")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/cariledger/config")
	v.AddConfigPath("/etc/cariledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CARILEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReconcileConfig()
	v.SetDefault("reconcile.enabled", defaults.Enabled)
	v.SetDefault("reconcile.schedule", defaults.Schedule)
	v.SetDefault("reconcile.auto_repair", defaults.AutoRepair)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg ReconcileConfig
	if err := v.UnmarshalKey("reconcile", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateReconcileConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticReconcileConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReconcileConfig
		if err := v.UnmarshalKey("reconcile", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := ValidateReconcileConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.set(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *ReconcileConfigHolder) Get() ReconcileConfig {
	return h.current.Load().(ReconcileConfig)
}

// OnChange registers fn to run after every accepted reload.
func (h *ReconcileConfigHolder) OnChange(fn func(ReconcileConfig)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

func (h *ReconcileConfigHolder) set(cfg ReconcileConfig) {
	h.current.Store(cfg)
	h.mu.Lock()
	listeners := append([]func(ReconcileConfig){}, h.listeners...)
	h.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func ValidateReconcileConfig(cfg ReconcileConfig) error {
	schedule := strings.TrimSpace(cfg.Schedule)
	if schedule == "" {
		return errors.New("reconcile.schedule cannot be empty")
	}
	if _, err := cronParser.Parse(schedule); err != nil {
		return errors.New("reconcile.schedule is invalid: " + err.Error())
	}
	return nil
}
