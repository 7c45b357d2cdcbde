// Package config manages ruleset presets for Knight's Trail games.
//
// Presets are JSON files in a directory, one ruleset per file; the file name
// without extension is the preset id used when creating sessions:
//
//	{
//	  "name": "Arena",
//	  "description": "Four knights, three computers, scattered obstacles",
//	  "board_size": 12,
//	  "player_count": 4,
//	  "cpu_count": 3,
//	  "obstacle_count": 16,
//	  "timer_seconds": 30,
//	  "think_delay_ms": 250,
//	  "default_strategy": "balanced",
//	  "strategies": ["", "aggressor"]
//	}
//
// A preset may pin a seed. Presets without one get a fresh seed per game from
// EnsureSeed, so only pinned presets replay identically from their name alone.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	rules, err := manager.LoadConfig("arena")
//	rules2, err := config.EnsureSeed(*rules)
//
// Presets are validated with engine.ValidateRuleset when loaded and saved.
// The default preset is "classic" when present, else the first valid preset,
// else a built-in 8x8 duel against one computer.
package config
