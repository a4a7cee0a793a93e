package rotation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration types

type Config struct {
	Name         string         // Derived from filename (without .yml extension)
	SourceChatID int64          `yaml:"source_chat_id"`
	TargetChatID int64          `yaml:"target_chat_id"`
	Settings     ConfigSettings `yaml:"settings"`
	Filters      ConfigFilters  `yaml:"filters"`
}

type ConfigSettings struct {
	Enabled        bool   `yaml:"enabled"`
	Mode           string `yaml:"mode"`            // window | poll | rss
	FeedURL        string `yaml:"feed_url"`        // rss mode only
	ExtractContent bool   `yaml:"extract_content"` // rss mode only
	QuotaPerTick   int    `yaml:"quota_per_tick"`
	LookbackHours  int    `yaml:"lookback_hours"` // window and rss modes
	BatchSize      int    `yaml:"batch_size"`     // poll mode
	StartHour      int    `yaml:"start_hour"`
	EndHour        int    `yaml:"end_hour"`
	Timezone       string `yaml:"timezone"`
	Selection      string `yaml:"selection"` // oldest_first | diverse
	SendDelay      int    `yaml:"send_delay"` // seconds between consecutive sends
}

type ConfigFilters struct {
	BannedTerms []string `yaml:"banned_terms"`
}

const (
	ModeWindow = "window"
	ModePoll   = "poll"
	ModeRSS    = "rss"
)

func (c *Config) Window() PublishingWindow {
	return PublishingWindow{StartHour: c.Settings.StartHour, EndHour: c.Settings.EndHour}
}

func (c *Config) Lookback() time.Duration {
	return time.Duration(c.Settings.LookbackHours) * time.Hour
}

type ConfigCache struct {
	routesDir string
	cache     map[string]*Config
	mu        sync.RWMutex
}

func NewConfigCache(routesDir string) *ConfigCache {
	return &ConfigCache{
		routesDir: routesDir,
		cache:     make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.routesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.routesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		// Derive route name from filename (remove .yml extension)
		fileName := filepath.Base(file)
		routeName := fileName[:len(fileName)-4]

		config, err := cc.LoadConfig(routeName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Route configuration loaded", "route", routeName, "enabled", config.Settings.Enabled, "mode", config.Settings.Mode)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(routeName string) (*Config, error) {
	configFile := cc.getConfigFilePath(routeName)
	routeConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	routeConfig.Name = routeName

	if err := cc.validateConfig(routeConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[routeConfig.Name] = routeConfig

	return routeConfig, nil
}

func (cc *ConfigCache) GetConfig(routeName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	routeConfig, ok := cc.cache[routeName]
	if !ok {
		return nil, fmt.Errorf("route config with name '%s' not found", routeName)
	}
	return routeConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabledConfigs := make(map[string]*Config)
	for k, v := range cc.cache {
		if v.Settings.Enabled {
			enabledConfigs[k] = v
		}
	}
	return enabledConfigs
}

// GetConfigBySourceChat returns the enabled route ingesting from the given
// chat, if any. Routes have distinct source chats by construction.
func (cc *ConfigCache) GetConfigBySourceChat(chatID int64) *Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	for _, v := range cc.cache {
		if v.Settings.Enabled && v.SourceChatID == chatID {
			return v
		}
	}
	return nil
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var routeConfig Config
	if err := yaml.Unmarshal(data, &routeConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if routeConfig.Settings.Mode == "" {
		routeConfig.Settings.Mode = ModePoll
	}
	if routeConfig.Settings.QuotaPerTick == 0 {
		routeConfig.Settings.QuotaPerTick = 1
	}
	if routeConfig.Settings.LookbackHours == 0 {
		routeConfig.Settings.LookbackHours = 72
	}
	if routeConfig.Settings.BatchSize == 0 {
		routeConfig.Settings.BatchSize = 200
	}
	if routeConfig.Settings.EndHour == 0 && routeConfig.Settings.StartHour == 0 {
		routeConfig.Settings.StartHour = 12
		routeConfig.Settings.EndHour = 19
	}
	if routeConfig.Settings.Selection == "" {
		routeConfig.Settings.Selection = string(SelectOldestFirst)
	}
	if routeConfig.Settings.SendDelay == 0 {
		routeConfig.Settings.SendDelay = 3
	}

	return &routeConfig, nil
}

func (cc *ConfigCache) validateConfig(routeConfig *Config) error {
	if routeConfig == nil {
		return fmt.Errorf("routeConfig is nil")
	}

	if routeConfig.Name == "" {
		return fmt.Errorf("route name is required")
	}

	s := routeConfig.Settings

	switch s.Mode {
	case ModeWindow, ModePoll:
		if routeConfig.SourceChatID == 0 {
			return fmt.Errorf("source_chat_id is required for mode %s", s.Mode)
		}
	case ModeRSS:
		if s.FeedURL == "" {
			return fmt.Errorf("feed_url is required for mode rss")
		}
	default:
		return fmt.Errorf("invalid mode: %s", s.Mode)
	}

	if routeConfig.TargetChatID == 0 {
		return fmt.Errorf("target_chat_id is required")
	}

	if s.StartHour < 0 || s.EndHour > 24 || s.StartHour >= s.EndHour {
		return fmt.Errorf("publishing window must satisfy 0 <= start_hour < end_hour <= 24, got [%d, %d)", s.StartHour, s.EndHour)
	}

	if s.QuotaPerTick < 1 {
		return fmt.Errorf("quota_per_tick must be at least 1")
	}

	if s.LookbackHours < 0 || s.BatchSize < 0 || s.SendDelay < 0 {
		return fmt.Errorf("lookback_hours, batch_size and send_delay must be non-negative")
	}

	if s.Selection != string(SelectOldestFirst) && s.Selection != string(SelectDiverse) {
		return fmt.Errorf("invalid selection policy: %s", s.Selection)
	}

	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(routeName string) string {
	return filepath.Join(cc.routesDir, routeName+".yml")
}
