package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// GivingConfig holds the donation rules that church staff may edit at runtime.
type GivingConfig struct {
	Categories      []string `mapstructure:"categories"`
	Frequencies     []string `mapstructure:"frequencies"`
	DefaultCategory string   `mapstructure:"defaultCategory"`
	MinAmount       float64  `mapstructure:"minAmount"`
	MaxAmount       float64  `mapstructure:"maxAmount"`
}

func DefaultGivingConfig() GivingConfig {
	return GivingConfig{
		Categories:      []string{"Tithes", "Offerings", "Building Fund", "Missions"},
		Frequencies:     []string{"weekly", "monthly", "yearly"},
		DefaultCategory: "Offerings",
		MinAmount:       0.50,
		MaxAmount:       10000,
	}
}

// HasCategory reports whether name is one of the configured categories.
func (c GivingConfig) HasCategory(name string) bool {
	for _, category := range c.Categories {
		if category == name {
			return true
		}
	}
	return false
}

func (c GivingConfig) HasFrequency(name string) bool {
	for _, frequency := range c.Frequencies {
		if frequency == name {
			return true
		}
	}
	return false
}

type GivingConfigHolder struct {
	current atomic.Value // holds GivingConfig
}

func NewGivingConfigHolder(log *zap.Logger) (*GivingConfigHolder, error) {
	log = log.Named("giving-config")

	v := viper.New()

	v.SetConfigName("giving")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/givingdesk/config") // Volume-mounted config
	v.AddConfigPath("/etc/givingdesk")            // System config
	v.AddConfigPath(".")                          // Current directory (dev mode)

	v.SetEnvPrefix("GIVINGDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultGivingConfig()
	v.SetDefault("giving.categories", defaults.Categories)
	v.SetDefault("giving.frequencies", defaults.Frequencies)
	v.SetDefault("giving.defaultCategory", defaults.DefaultCategory)
	v.SetDefault("giving.minAmount", defaults.MinAmount)
	v.SetDefault("giving.maxAmount", defaults.MaxAmount)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	var cfg GivingConfig
	if err := v.UnmarshalKey("giving", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateGivingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticGivingConfigHolder(cfg)

	if fileFound && getenvBool("GIVING_CONFIG_WATCH", true) {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated GivingConfig
			if err := v.UnmarshalKey("giving", &updated); err != nil {
				log.Warn("reload failed", zap.Error(err))
				return
			}
			if err := ValidateGivingConfig(updated); err != nil {
				log.Warn("invalid config ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

// NewStaticGivingConfigHolder returns a holder that never reloads.
func NewStaticGivingConfigHolder(cfg GivingConfig) *GivingConfigHolder {
	holder := &GivingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *GivingConfigHolder) Get() GivingConfig {
	if h == nil {
		return DefaultGivingConfig()
	}
	cfg, ok := h.current.Load().(GivingConfig)
	if !ok {
		return DefaultGivingConfig()
	}
	return cfg
}

func ValidateGivingConfig(cfg GivingConfig) error {
	if len(cfg.Categories) == 0 {
		return errors.New("giving.categories cannot be empty")
	}
	if cfg.DefaultCategory != "" && !cfg.HasCategory(cfg.DefaultCategory) {
		return fmt.Errorf("giving.defaultCategory %q is not a configured category", cfg.DefaultCategory)
	}
	if len(cfg.Frequencies) == 0 {
		return errors.New("giving.frequencies cannot be empty")
	}
	for _, frequency := range cfg.Frequencies {
		switch frequency {
		case "weekly", "monthly", "yearly":
		default:
			return fmt.Errorf("giving.frequencies: unsupported frequency %q", frequency)
		}
	}
	if cfg.MinAmount <= 0 {
		return errors.New("giving.minAmount must be positive")
	}
	if cfg.MaxAmount < cfg.MinAmount {
		return errors.New("giving.maxAmount must not be below giving.minAmount")
	}
	return nil
}
