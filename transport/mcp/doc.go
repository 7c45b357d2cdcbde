// Package mcp exposes the game to AI agents over the Model Context Protocol.
//
// The Client is a thin proxy: every tool call becomes a request against the
// REST API (see package api) and the JSON answer is rendered as text an
// agent can read. Boards are drawn with one character per square:
//
//	A B C D   knights of players 0-3
//	a b c d   trail squares they claimed
//	#         obstacle
//	.         empty
//
// Tools:
//   - create_session, list_sessions, get_session
//   - game_state, legal_moves, describe_cell
//   - submit_move (takes an "intent" argument the agent uses to explain itself)
//   - step, autoplay, reset_game, move_history
//   - list_configs, list_strategies, leaderboard, game_instructions
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
