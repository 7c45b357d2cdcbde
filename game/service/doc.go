// Package service provides the business logic layer for Knight's Trail.
//
// The service package implements:
//   - Multi-session game management
//   - Ruleset preset lookup and seeding
//   - Intent submission, stepping and autoplay
//   - Turn history, export, import and replay verification
//   - Archiving finished games and the leaderboard
//
// Core Interfaces:
//
// GameService is the main service interface providing high-level game operations.
// SessionManager handles session creation, retrieval, and lifecycle.
// ConfigManager manages ruleset presets.
//
// Architecture:
//
// The service layer sits between the transport layer (HTTP/WebSocket/MCP) and
// the game orchestrator. Each session owns one orchestrator, which owns the
// game state and runs computer players and the move timer.
//
// Usage:
//
//	registry := strategy.NewDefaultRegistry(logger)
//	sessionMgr := session.NewManager(registry, logger)
//	configMgr, _ := config.NewManager("configs")
//	gameService := service.NewGameService(sessionMgr, configMgr, registry, archive.NewMemory(), logger)
//	sessionMgr.OnRound(gameService.HandleRound)
//
//	info, err := gameService.CreateSession(ctx, "classic", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	result, err := gameService.SubmitMove(ctx, info.ID, 0, engine.Position{Row: 3, Col: 2})
package service
