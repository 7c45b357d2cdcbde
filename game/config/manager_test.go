package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/wricardo/knights-trail/game/engine"
)

func createTestConfigDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

func createValidConfig() *engine.Ruleset {
	return &engine.Ruleset{
		Name:          "Test Config",
		Description:   "Test configuration",
		BoardSize:     6,
		PlayerCount:   2,
		CPUCount:      1,
		ObstacleCount: 3,
		TimerSeconds:  10,
	}
}

func writeConfigFile(t *testing.T, dir, name string, config *engine.Ruleset) {
	t.Helper()
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".json"), data, 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
}

func (m *Manager) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.configs)
}

func TestNewManager(t *testing.T) {
	t.Run("valid directory", func(t *testing.T) {
		dir := createTestConfigDir(t)
		classic := createValidConfig()
		classic.Name = "Classic"
		writeConfigFile(t, dir, "classic", classic)

		manager, err := NewManager(dir)
		if err != nil {
			t.Fatalf("Failed to create manager: %v", err)
		}
		if got := manager.GetDefault().Name; got != "Classic" {
			t.Errorf("Expected classic as default, got %q", got)
		}
	})

	t.Run("non-existent directory", func(t *testing.T) {
		_, err := NewManager("/non/existent/path")
		if err == nil {
			t.Error("Expected error for non-existent directory")
		}
	})

	t.Run("empty directory falls back to built-in", func(t *testing.T) {
		manager, err := NewManager(createTestConfigDir(t))
		if err != nil {
			t.Fatalf("NewManager should succeed without presets, got error: %v", err)
		}

		def := manager.GetDefault()
		if def == nil {
			t.Fatal("Expected default config to be available")
		}
		if def.BoardSize != engine.DefaultBoardSize || def.PlayerCount != 2 || def.CPUCount != 1 {
			t.Errorf("Unexpected built-in default: %+v", def)
		}
		if err := engine.ValidateRuleset(*def); err != nil {
			t.Errorf("Built-in default should be valid: %v", err)
		}
	})

	t.Run("first valid preset when classic is missing", func(t *testing.T) {
		dir := createTestConfigDir(t)
		bad := createValidConfig()
		bad.BoardSize = 2
		writeConfigFile(t, dir, "aaa", bad)
		good := createValidConfig()
		good.Name = "Bravo"
		writeConfigFile(t, dir, "bravo", good)

		manager, err := NewManager(dir)
		if err != nil {
			t.Fatalf("Failed to create manager: %v", err)
		}
		if got := manager.GetDefault().Name; got != "Bravo" {
			t.Errorf("Expected Bravo as default, got %q", got)
		}
	})
}

func TestManager_LoadConfig(t *testing.T) {
	dir := createTestConfigDir(t)
	writeConfigFile(t, dir, "classic", createValidConfig())

	unnamed := createValidConfig()
	unnamed.Name = ""
	writeConfigFile(t, dir, "unnamed", unnamed)

	invalid := createValidConfig()
	invalid.CPUCount = 5
	writeConfigFile(t, dir, "invalid", invalid)

	if err := os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write garbage file: %v", err)
	}

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	tests := []struct {
		name    string
		preset  string
		wantErr error
	}{
		{"existing", "classic", nil},
		{"with extension", "classic.json", nil},
		{"missing", "nope", ErrConfigNotFound},
		{"path traversal", "../classic", ErrConfigNotFound},
		{"empty", "", ErrConfigNotFound},
		{"fails validation", "invalid", ErrInvalidConfig},
		{"malformed json", "garbage", ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := manager.LoadConfig(tt.preset)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if config.BoardSize != 6 {
				t.Errorf("Expected board size 6, got %d", config.BoardSize)
			}
		})
	}

	t.Run("name defaults to file name", func(t *testing.T) {
		config, err := manager.LoadConfig("unnamed")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if config.Name != "unnamed" {
			t.Errorf("Expected name 'unnamed', got %q", config.Name)
		}
	})

	t.Run("returns a copy", func(t *testing.T) {
		first, _ := manager.LoadConfig("classic")
		first.BoardSize = 30
		first.Strategies = append(first.Strategies, "aggressor")

		second, _ := manager.LoadConfig("classic")
		if second.BoardSize != 6 || len(second.Strategies) != 0 {
			t.Errorf("Cached config was modified through a returned copy: %+v", second)
		}
	})
}

func TestManager_ListConfigs(t *testing.T) {
	dir := createTestConfigDir(t)

	duel := createValidConfig()
	duel.Name = "Duel"
	writeConfigFile(t, dir, "duel", duel)

	arena := createValidConfig()
	arena.Name = "Arena"
	arena.BoardSize = 12
	arena.PlayerCount = 4
	arena.CPUCount = 3
	writeConfigFile(t, dir, "arena", arena)

	invalid := createValidConfig()
	invalid.PlayerCount = 9
	writeConfigFile(t, dir, "broken", invalid)

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# presets"), 0644); err != nil {
		t.Fatalf("Failed to write readme: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.json"), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	configs, err := manager.ListConfigs()
	if err != nil {
		t.Fatalf("Failed to list configs: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("Expected 2 configs, got %d", len(configs))
	}

	if configs[0].ConfigID != "arena" || configs[1].ConfigID != "duel" {
		t.Errorf("Expected [arena duel], got [%s %s]", configs[0].ConfigID, configs[1].ConfigID)
	}
	a := configs[0]
	if a.Filename != "arena.json" || a.Name != "Arena" || a.BoardSize != 12 || a.PlayerCount != 4 || a.CPUCount != 3 {
		t.Errorf("Unexpected arena info: %+v", a)
	}
}

func TestManager_SetDefault(t *testing.T) {
	dir := createTestConfigDir(t)
	writeConfigFile(t, dir, "classic", createValidConfig())
	blitz := createValidConfig()
	blitz.Name = "Blitz"
	writeConfigFile(t, dir, "blitz", blitz)

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	if err := manager.SetDefault("blitz"); err != nil {
		t.Fatalf("SetDefault failed: %v", err)
	}
	if got := manager.GetDefault().Name; got != "Blitz" {
		t.Errorf("Expected Blitz as default, got %q", got)
	}

	if err := manager.SetDefault("missing"); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}
	if got := manager.GetDefault().Name; got != "Blitz" {
		t.Errorf("Failed SetDefault should keep previous default, got %q", got)
	}
}

func TestManager_RefreshCache(t *testing.T) {
	dir := createTestConfigDir(t)
	writeConfigFile(t, dir, "classic", createValidConfig())

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	updated := createValidConfig()
	updated.BoardSize = 10
	writeConfigFile(t, dir, "classic", updated)

	if got, _ := manager.LoadConfig("classic"); got.BoardSize != 6 {
		t.Errorf("Expected cached board size 6, got %d", got.BoardSize)
	}

	if err := manager.RefreshCache(); err != nil {
		t.Fatalf("RefreshCache failed: %v", err)
	}

	if got, _ := manager.LoadConfig("classic"); got.BoardSize != 10 {
		t.Errorf("Expected refreshed board size 10, got %d", got.BoardSize)
	}
	if got := manager.GetDefault().BoardSize; got != 10 {
		t.Errorf("Expected refreshed default board size 10, got %d", got)
	}
}

func TestManager_SaveConfig(t *testing.T) {
	dir := createTestConfigDir(t)
	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	config := createValidConfig()
	config.Name = "Saved"
	if err := manager.SaveConfig("saved", config); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "saved.json")); err != nil {
		t.Errorf("Expected preset file on disk: %v", err)
	}

	loaded, err := manager.LoadConfig("saved")
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Name != "Saved" {
		t.Errorf("Expected name 'Saved', got %q", loaded.Name)
	}

	bad := createValidConfig()
	bad.TimerSeconds = -1
	if err := manager.SaveConfig("bad", bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
	if err := manager.SaveConfig("../escape", config); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for bad name, got %v", err)
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	dir := createTestConfigDir(t)
	for i := 1; i <= 5; i++ {
		config := createValidConfig()
		config.Name = "Config" + strconv.Itoa(i)
		writeConfigFile(t, dir, "config"+strconv.Itoa(i), config)
	}

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 60)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if _, err := manager.LoadConfig("config" + strconv.Itoa(id%5+1)); err != nil {
				errs <- err
			}
		}(i)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := manager.RefreshCache(); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Unexpected error during concurrent access: %v", err)
	}
	if manager.GetDefault() == nil {
		t.Error("Expected a default config after concurrent refreshes")
	}
}

func TestEnsureSeed(t *testing.T) {
	t.Run("keeps pinned seed", func(t *testing.T) {
		r := createValidConfig().WithSeed(42)
		got, err := EnsureSeed(r)
		if err != nil {
			t.Fatalf("EnsureSeed failed: %v", err)
		}
		if got.Seed == nil || *got.Seed != 42 {
			t.Errorf("Expected seed 42, got %v", got.Seed)
		}
	})

	t.Run("draws positive seed", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			got, err := EnsureSeed(*createValidConfig())
			if err != nil {
				t.Fatalf("EnsureSeed failed: %v", err)
			}
			if got.Seed == nil || *got.Seed <= 0 || *got.Seed > 0x7fffffff {
				t.Fatalf("Expected positive 31-bit seed, got %v", got.Seed)
			}
		}
	})

	t.Run("seeded ruleset starts a game", func(t *testing.T) {
		r, err := EnsureSeed(*createValidConfig())
		if err != nil {
			t.Fatalf("EnsureSeed failed: %v", err)
		}
		if _, err := engine.NewGame(r); err != nil {
			t.Errorf("NewGame failed: %v", err)
		}
	})
}

func TestPresetDirectory(t *testing.T) {
	dir := filepath.Join("..", "..", "configs")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Skip("configs directory not found")
	}

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	configs, err := manager.ListConfigs()
	if err != nil {
		t.Fatalf("Failed to list configs: %v", err)
	}

	entries, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	if len(configs) != len(entries) {
		t.Errorf("Expected every shipped preset to be valid: %d of %d loaded", len(configs), len(entries))
	}
	if manager.count() == 0 {
		t.Error("Expected presets in cache")
	}
	if got := manager.GetDefault().Name; got != "Classic" {
		t.Errorf("Expected Classic as shipped default, got %q", got)
	}
}

func TestManager_Resolve(t *testing.T) {
	dir := createTestConfigDir(t)
	writeConfigFile(t, dir, "classic", createValidConfig())
	pinned := createValidConfig().WithSeed(7)
	pinned.Name = "Pinned"
	writeConfigFile(t, dir, "pinned", &pinned)

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	t.Run("default preset gets a seed", func(t *testing.T) {
		r, err := manager.Resolve("", nil)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if r.Name != "Test Config" || r.Seed == nil {
			t.Errorf("Expected seeded default, got %+v", r)
		}
	})

	t.Run("pinned seed kept", func(t *testing.T) {
		r, err := manager.Resolve("pinned", nil)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if r.Seed == nil || *r.Seed != 7 {
			t.Errorf("Expected seed 7, got %v", r.Seed)
		}
	})

	t.Run("override wins", func(t *testing.T) {
		seed := int64(99)
		r, err := manager.Resolve("pinned", &seed)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if *r.Seed != 99 {
			t.Errorf("Expected seed 99, got %d", *r.Seed)
		}
		again, _ := manager.LoadConfig("pinned")
		if *again.Seed != 7 {
			t.Errorf("Override leaked into cached preset: %d", *again.Seed)
		}
	})

	t.Run("unknown preset", func(t *testing.T) {
		if _, err := manager.Resolve("nope", nil); !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("Expected ErrConfigNotFound, got %v", err)
		}
	})
}
