package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wricardo/knights-trail/game/engine"
	"github.com/wricardo/knights-trail/game/service"
)

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// DefaultName is the preset used as default when present.
const DefaultName = "classic"

// Manager handles ruleset preset loading and caching
type Manager struct {
	configDir     string
	defaultConfig *engine.Ruleset
	configs       map[string]*engine.Ruleset
	mu            sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configDir string) (*Manager, error) {
	// Ensure config directory exists
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		configs:   make(map[string]*engine.Ruleset),
	}

	if err := m.loadDefaultConfig(); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	return m, nil
}

// LoadConfig loads a preset by name. The returned ruleset is a copy.
func (m *Manager) LoadConfig(name string) (*engine.Ruleset, error) {
	name = strings.TrimSuffix(name, ".json")
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, ErrConfigNotFound
	}

	m.mu.RLock()
	if config, exists := m.configs[name]; exists {
		m.mu.RUnlock()
		return copyRuleset(config), nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if config, exists := m.configs[name]; exists {
		return copyRuleset(config), nil
	}

	data, err := os.ReadFile(filepath.Join(m.configDir, name+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config engine.Ruleset
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}
	if config.Name == "" {
		config.Name = name
	}

	if err := engine.ValidateRuleset(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	m.configs[name] = &config
	return copyRuleset(&config), nil
}

// ListConfigs returns information about all valid presets, sorted by file name
func (m *Manager) ListConfigs() ([]*service.ConfigInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var configs []*service.ConfigInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")
		config, err := m.LoadConfig(id)
		if err != nil {
			// Skip invalid configs
			continue
		}

		configs = append(configs, &service.ConfigInfo{
			Filename:      entry.Name(),
			ConfigID:      id,
			Name:          config.Name,
			Description:   config.Description,
			BoardSize:     config.BoardSize,
			PlayerCount:   config.PlayerCount,
			CPUCount:      config.CPUCount,
			ObstacleCount: config.ObstacleCount,
			TimerSeconds:  config.TimerSeconds,
		})
	}

	return configs, nil
}

// GetDefault returns a copy of the default preset
func (m *Manager) GetDefault() *engine.Ruleset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyRuleset(m.defaultConfig)
}

// SetDefault sets the default preset by name
func (m *Manager) SetDefault(name string) error {
	config, err := m.LoadConfig(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultConfig = config
	return nil
}

// RefreshCache drops cached presets and reloads the default from disk
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.configs = make(map[string]*engine.Ruleset)
	m.mu.Unlock()

	return m.loadDefaultConfig()
}

// loadDefaultConfig picks DefaultName, else the first valid preset, else a
// built-in ruleset.
func (m *Manager) loadDefaultConfig() error {
	config, err := m.LoadConfig(DefaultName)
	if err != nil {
		configs, listErr := m.ListConfigs()
		if listErr != nil || len(configs) == 0 {
			m.setDefault(minimalConfig())
			return nil
		}

		config, err = m.LoadConfig(configs[0].ConfigID)
		if err != nil {
			m.setDefault(minimalConfig())
			return nil
		}
	}

	m.setDefault(config)
	return nil
}

func (m *Manager) setDefault(r *engine.Ruleset) {
	m.mu.Lock()
	m.defaultConfig = r
	m.mu.Unlock()
}

// SaveConfig validates and writes a preset to disk
func (m *Manager) SaveConfig(name string, config *engine.Ruleset) error {
	name = strings.TrimSuffix(name, ".json")
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: invalid preset name %q", ErrInvalidConfig, name)
	}
	if err := engine.ValidateRuleset(*config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(m.configDir, name+".json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.mu.Lock()
	m.configs[name] = copyRuleset(config)
	m.mu.Unlock()

	return nil
}

// minimalConfig is used when the directory holds no valid preset
func minimalConfig() *engine.Ruleset {
	return &engine.Ruleset{
		Name:        "default",
		Description: "One human against one computer on an open board",
		BoardSize:   engine.DefaultBoardSize,
		PlayerCount: 2,
		CPUCount:    1,
	}
}

func copyRuleset(r *engine.Ruleset) *engine.Ruleset {
	if r == nil {
		return nil
	}
	c := *r
	if r.Seed != nil {
		seed := *r.Seed
		c.Seed = &seed
	}
	c.Strategies = append([]string(nil), r.Strategies...)
	return &c
}

// Resolve returns a seeded copy of preset name, or of the default preset when
// name is empty. A non-nil seed overrides the preset's; presets without a
// pinned seed get a random one.
func (m *Manager) Resolve(name string, seed *int64) (*engine.Ruleset, error) {
	var rules *engine.Ruleset
	if name == "" {
		rules = m.GetDefault()
	} else {
		loaded, err := m.LoadConfig(name)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}

	if seed != nil {
		seeded := rules.WithSeed(*seed)
		return &seeded, nil
	}
	seeded, err := EnsureSeed(*rules)
	if err != nil {
		return nil, err
	}
	return &seeded, nil
}
