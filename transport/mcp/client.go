package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/knights-trail/game/archive"
	"github.com/wricardo/knights-trail/game/engine"
	"github.com/wricardo/knights-trail/game/service"
)

// Autoplay of a preset with think delays can take a while
const requestTimeout = 2 * time.Minute

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Knight's Trail",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Knight's Trail - MCP Interface

This is a thin client that proxies all requests to the REST API server.

GAME OBJECTIVE:
Every player is a chess knight on a square board. Each round all living
players pick a knight move at the same time. The square you leave stays
claimed forever, so the board fills up. A knight with no legal move is
eliminated; the last knight standing wins.

AVAILABLE TOOLS:
- create_session: Create a new game session from a preset
- list_sessions / get_session: Inspect sessions
- game_state: Board, players and pending humans
- legal_moves: Legal destinations for one player
- submit_move: Submit a human player's intent - requires intent explanation
- step / autoplay: Play rounds when no human has to act
- reset_game: Restart a session with the same seed
- move_history: Past turns
- list_configs / list_strategies: Presets and computer strategies
- leaderboard: Results of finished games
- describe_cell: Details about one square
- game_instructions: Full rules

NOTE: The 'intent' parameter on submit_move serves as rubber duck debugging - explain your reasoning!`),
	)

	c.registerTools()
}

func sessionProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new game session with optional preset and seed",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"config_name": map[string]interface{}{
					"type":        "string",
					"description": "Preset to use (optional, see list_configs)",
				},
				"seed": map[string]interface{}{
					"type":        "integer",
					"description": "Seed for obstacle placement and computer tie-breaks (optional)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active game sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGetSession)

	// Game operations
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_state",
		Description: "Get the current board, players and pending human players",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGameState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "legal_moves",
		Description: "List the squares a player's knight can move to this round",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"player_id": map[string]interface{}{
					"type":        "integer",
					"description": "Player ID",
				},
			},
			Required: []string{"session_id", "player_id"},
		},
	}, c.handleLegalMoves)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "submit_move",
		Description: "Submit a human player's knight move. The round resolves once every living human has submitted.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"player_id": map[string]interface{}{
					"type":        "integer",
					"description": "Human player ID",
				},
				"row": map[string]interface{}{
					"type":        "integer",
					"description": "Destination row (0-based)",
				},
				"col": map[string]interface{}{
					"type":        "integer",
					"description": "Destination column (0-based)",
				},
				"intent": map[string]interface{}{
					"type":        "string",
					"description": "Brief explanation of the intent behind this move (serves as a rubber duck to help explain your reasoning)",
				},
			},
			Required: []string{"session_id", "player_id", "row", "col"},
		},
	}, c.handleSubmitMove)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "step",
		Description: "Play one round. Fails while a human still has to submit a move.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleStep)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "autoplay",
		Description: "Play rounds until the game ends or a human has to act",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleAutoplay)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_game",
		Description: "Reset the game to its initial state, keeping the seed",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleReset)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "move_history",
		Description: "Get turn history for a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "Page number",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Turns per page",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleMoveHistory)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available game presets",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListConfigs)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_strategies",
		Description: "List the strategies computer players can use",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListStrategies)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "leaderboard",
		Description: "Win rates of humans and computer strategies across finished games",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum rows",
				},
			},
		},
	}, c.handleLeaderboard)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get comprehensive game instructions and rules",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameInstructions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "describe_cell",
		Description: "Describe one square: empty, obstacle, a knight or a claimed trail square, and how many knight moves lead out of it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"row": map[string]interface{}{
					"type":        "integer",
					"description": "Row of the square (0-based)",
				},
				"col": map[string]interface{}{
					"type":        "integer",
					"description": "Column of the square (0-based)",
				},
			},
			Required: []string{"session_id", "row", "col"},
		},
	}, c.handleDescribeCell)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}
	return args
}

// intArg reads an integer argument. JSON numbers arrive as float64.
func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

func sessionPath(sessionID, suffix string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + suffix
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	configName, _ := args["config_name"].(string)

	body := map[string]interface{}{}
	if configName != "" {
		body["config_id"] = configName
	}
	if seed, ok := intArg(args, "seed"); ok {
		body["seed"] = seed
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nConfig: %s\nSeed: %d\n\n%s",
		session.ID, session.ConfigName, session.GameState.Seed, formatGameState(&session.GameState, session.Pending))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		fmt.Fprintf(&result, "- %s (Config: %s, Turn: %d, Phase: %s, Created: %s)\n",
			s.ID, s.ConfigName, s.GameState.Turn, s.GameState.Phase, s.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, ""), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleGameState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, ""), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatGameState(&session.GameState, session.Pending)), nil
}

func (c *Client) handleLegalMoves(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	playerID, ok := intArg(args, "player_id")
	if !ok {
		return mcp.NewToolResultError("player_id is required"), nil
	}

	var response struct {
		Moves []engine.Position `json:"moves"`
	}
	path := sessionPath(sessionID, fmt.Sprintf("/legal-moves?player=%d", playerID))
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(response.Moves) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Player %d has no legal moves and will be eliminated.", playerID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Legal moves for player %d: %s", playerID, formatPositions(response.Moves))), nil
}

func (c *Client) handleSubmitMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	intent, _ := args["intent"].(string)

	// Intent parameter serves as rubber duck debugging - we don't need to process it further
	_ = intent

	playerID, okPlayer := intArg(args, "player_id")
	row, okRow := intArg(args, "row")
	col, okCol := intArg(args, "col")
	if !okPlayer || !okRow || !okCol {
		return mcp.NewToolResultError("player_id, row and col are required"), nil
	}

	body := map[string]interface{}{
		"player_id": playerID,
		"to":        engine.Position{Row: row, Col: col},
	}

	var result service.MoveResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/moves"), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatMoveResult(&result)), nil
}

func (c *Client) handleStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.playRounds(ctx, request, "/step")
}

func (c *Client) handleAutoplay(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.playRounds(ctx, request, "/autoplay")
}

func (c *Client) playRounds(ctx context.Context, request mcp.CallToolRequest, suffix string) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var result service.RoundsResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, suffix), nil, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoundsResult(&result)), nil
}

func (c *Client) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var response struct {
		Message string              `json:"message"`
		Session service.SessionInfo `json:"session"`
	}
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/reset"), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("%s\n\n%s", response.Message, formatGameState(&response.Session.GameState, response.Session.Pending))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleMoveHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)

	query := url.Values{}
	if page, ok := intArg(args, "page"); ok {
		query.Set("page", fmt.Sprint(page))
	}
	if limit, ok := intArg(args, "limit"); ok {
		query.Set("limit", fmt.Sprint(limit))
	}
	path := sessionPath(sessionID, "/history")
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var history service.HistoryResponse
	if err := c.apiCall(ctx, "GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatHistory(&history)), nil
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []service.ConfigInfo
	if err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	result.WriteString("Available Configurations:\n\n")
	for _, config := range configs {
		fmt.Fprintf(&result, "• %s (%s)\n  %s\n  Board: %dx%d, Players: %d (%d computer), Obstacles: %d, Timer: %s\n\n",
			config.ConfigID, config.Name, config.Description,
			config.BoardSize, config.BoardSize, config.PlayerCount, config.CPUCount,
			config.ObstacleCount, formatTimer(config.TimerSeconds))
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleListStrategies(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Strategies []string `json:"strategies"`
		Default    string   `json:"default"`
	}
	if err := c.apiCall(ctx, "GET", "/api/strategies", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	result.WriteString("Computer strategies:\n")
	for _, name := range response.Strategies {
		marker := ""
		if name == response.Default {
			marker = " (default)"
		}
		fmt.Fprintf(&result, "• %s%s\n", name, marker)
	}
	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleLeaderboard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/api/leaderboard"
	if limit, ok := intArg(arguments(request), "limit"); ok {
		path += fmt.Sprintf("?limit=%d", limit)
	}

	var response struct {
		Standings []archive.Standing `json:"standings"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(response.Standings) == 0 {
		return mcp.NewToolResultText("No finished games yet."), nil
	}

	var result strings.Builder
	result.WriteString("Leaderboard:\n")
	for i, s := range response.Standings {
		fmt.Fprintf(&result, "%d. %-10s %d/%d wins (%.0f%%), best score %d\n",
			i+1, s.Label, s.Wins, s.Games, s.WinRate*100, s.BestScore)
	}
	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := `♞ Knight's Trail - Complete Instructions

GAME OBJECTIVE:
Be the last knight with a legal move.

GAME MECHANICS:
• Movement: Knights move like in chess, two squares one way and one square the other
• Trails: The square a knight leaves stays claimed for the rest of the game
• Legal moves: In bounds and onto an empty square (no obstacle, no trail, no knight)
• Simultaneous rounds: Every living player picks a move, then all moves resolve together
• Collisions: Knights that pick the same square all stay where they are
• Elimination: After a round, a knight with no legal move is out
• Victory: The last living knight wins. If everyone is eliminated in the same round, the highest score wins, and ties share the win
• Score: One point per square claimed, starting square included

BOARD LEGEND:
• A B C D - knights of players 0 1 2 3
• a b c d - trail squares claimed by players 0 1 2 3
• # - obstacle
• . - empty square

TURN FLOW:
1. game_state shows which human players still have to act
2. legal_moves lists where a player may go
3. submit_move records the human's choice; the round resolves when every human has chosen
4. Computer players choose automatically when the round resolves
5. Games with no humans (or no humans left) advance with step or autoplay

TIMER:
Presets with a timer force a move for humans who take too long.

STRATEGY TIPS:
• Squares near the edge have fewer exits; prefer squares with many onward moves
• describe_cell reports how many exits a square has
• Two knights aiming at the same square both stay put, which costs both a round
• Watch opponents' legal moves: claiming their only exit eliminates them

Good luck on the trail! ♞`

	return mcp.NewToolResultText(instructions), nil
}

func (c *Client) handleDescribeCell(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	row, okRow := intArg(args, "row")
	col, okCol := intArg(args, "col")
	if !okRow || !okCol {
		return mcp.NewToolResultError("row and col are required"), nil
	}

	var state engine.Snapshot
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(describeCell(&state, row, col)), nil
}
