// Command knights starts the Knight's Trail game server.
//
// Subcommands:
//  1. "serve" (default) runs the HTTP server exposing the REST API, WebSocket, /metrics and an /mcp endpoint
//  2. "mcp" runs an MCP stdio server and spins up an internal HTTP API if none is available
//  3. "simulate", "replay", "validate" and "strategies" are offline tools over the same engine
//
// Settings come from a YAML file, the environment and a .env file; flags
// override them. An optional ngrok tunnel exposes the server during development.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/knights-trail/api"
	"github.com/wricardo/knights-trail/game/archive"
	"github.com/wricardo/knights-trail/game/config"
	"github.com/wricardo/knights-trail/game/orchestrator"
	"github.com/wricardo/knights-trail/game/service"
	"github.com/wricardo/knights-trail/game/session"
	"github.com/wricardo/knights-trail/game/strategy"
	"github.com/wricardo/knights-trail/metrics"
	"github.com/wricardo/knights-trail/settings"
	"github.com/wricardo/knights-trail/transport/mcp"
	"github.com/wricardo/knights-trail/transport/websocket"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Knight's Trail Server"
)

const (
	defaultSettingsFile = "knights.yaml"
	externalAPIURL      = "http://localhost:8080"
	cleanupInterval     = time.Hour
	storageSyncInterval = 5 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newApp builds the command tree. Flags declared on the root are visible to
// every subcommand.
func newApp() *cli.Command {
	return &cli.Command{
		Name:           "knights",
		Usage:          AppName,
		Version:        Version,
		DefaultCommand: "serve",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultSettingsFile,
				Usage:   "settings file (YAML); the environment is used when it does not exist",
				Sources: cli.EnvVars("KNIGHTS_CONFIG"),
			},
			&cli.StringFlag{Name: "ruleset-dir", Usage: "directory containing ruleset presets"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "json or console"},
		},
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server", "http"},
				Usage:   "run the HTTP server with REST API, WebSocket and MCP endpoint",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "host", Usage: "HTTP server host"},
					&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "HTTP server port"},
					&cli.StringFlag{Name: "storage", Usage: "session storage: memory, file or redis"},
					&cli.BoolFlag{Name: "ngrok", Usage: "enable ngrok tunnel"},
					&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token", Sources: cli.EnvVars("NGROK_AUTH_TOKEN")},
					&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain"},
				},
				Action: serveAction,
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "run an MCP stdio server, starting an internal HTTP API when none is reachable",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "api-url", Value: externalAPIURL, Usage: "existing API to proxy"},
				},
				Action: mcpAction,
			},
			simulateCommand(),
			replayCommand(),
			validateCommand(),
			strategiesCommand(),
		},
	}
}

// loadSettings reads settings and applies the flags that were set.
func loadSettings(cmd *cli.Command) (*settings.Settings, error) {
	st, err := settings.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("ruleset-dir") {
		st.RulesetDir = cmd.String("ruleset-dir")
	}
	if cmd.IsSet("log-level") {
		st.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		st.LogFormat = cmd.String("log-format")
	}
	if cmd.IsSet("host") {
		st.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		st.Port = cmd.Int("port")
	}
	if cmd.IsSet("storage") {
		st.Storage.Backend = cmd.String("storage")
	}
	if cmd.IsSet("ngrok") {
		st.Ngrok.Enabled = cmd.Bool("ngrok")
	}
	if cmd.IsSet("ngrok-auth") {
		st.Ngrok.AuthToken = cmd.String("ngrok-auth")
	}
	if cmd.IsSet("ngrok-domain") {
		st.Ngrok.Domain = cmd.String("ngrok-domain")
	}
	return st, st.Validate()
}

// services holds everything a server process wires together.
type services struct {
	logger      *zap.Logger
	configs     *config.Manager
	registry    *strategy.Registry
	sessions    *session.Manager
	persistence session.SessionPersistence
	archive     archive.Archive
	collector   *metrics.Collector
	game        service.GameService

	closers []func()
}

// Close stops every game and releases storage connections.
func (s *services) Close() {
	s.sessions.Close()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// initializeServices wires the config manager, session storage, archive,
// metrics and the game service. Finished games are archived and every round
// is counted by the collector.
func initializeServices(ctx context.Context, st *settings.Settings, logger *zap.Logger) (*services, error) {
	configManager, err := config.NewManager(st.RulesetDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}
	if st.DefaultRuleset != "" {
		if err := configManager.SetDefault(st.DefaultRuleset); err != nil {
			logger.Warn("default ruleset not available", zap.String("ruleset", st.DefaultRuleset), zap.Error(err))
		}
	}

	svcs := &services{
		logger:    logger,
		configs:   configManager,
		registry:  strategy.NewDefaultRegistry(logger.Named("strategy")),
		collector: metrics.New(),
	}

	persistence, closePersistence, err := openPersistence(ctx, st)
	if err != nil {
		return nil, err
	}
	if closePersistence != nil {
		svcs.closers = append(svcs.closers, closePersistence)
	}
	svcs.persistence = persistence

	sessionLogger := logger.Named("session")
	if persistence != nil {
		svcs.sessions = session.NewManagerWithPersistence(persistence, svcs.registry, sessionLogger)
		if err := svcs.sessions.LoadPersistedSessions(); err != nil {
			logger.Warn("failed to load persisted sessions", zap.Error(err))
		}
	} else {
		svcs.sessions = session.NewManager(svcs.registry, sessionLogger)
	}

	if st.Archive.DatabaseURL != "" {
		pg, err := archive.Connect(ctx, st.Archive.DatabaseURL)
		if err != nil {
			svcs.Close()
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		svcs.archive = pg
	} else {
		svcs.archive = archive.NewMemory()
	}
	svcs.closers = append(svcs.closers, svcs.archive.Close)

	svcs.game = service.NewGameService(svcs.sessions, configManager, svcs.registry, svcs.archive, logger.Named("service"))
	svcs.sessions.OnRound(svcs.game.HandleRound)
	svcs.sessions.OnRound(func(_ string, r orchestrator.RoundResult) {
		svcs.collector.ObserveRound(r)
	})
	svcs.collector.SetActiveSessions(svcs.sessions.Count())

	logger.Info("services initialized",
		zap.String("ruleset_dir", st.RulesetDir),
		zap.String("storage", st.Storage.Backend),
		zap.Bool("postgres_archive", st.Archive.DatabaseURL != ""),
		zap.Int("sessions", svcs.sessions.Count()))
	return svcs, nil
}

// openPersistence returns the session store for the configured backend, or
// nil for in-memory sessions.
func openPersistence(ctx context.Context, st *settings.Settings) (session.SessionPersistence, func(), error) {
	switch st.Storage.Backend {
	case settings.StorageFile:
		fp, err := session.NewFilePersistence(st.Storage.SessionsDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create session persistence: %w", err)
		}
		return fp, nil, nil
	case settings.StorageRedis:
		rc := st.Storage.Redis
		client, err := session.ConnectRedis(ctx, &redis.Options{
			Addr:     rc.Addr(),
			Password: rc.Password,
			DB:       rc.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		closeClient := func() { _ = client.Close() }
		return session.NewRedisPersistence(client, rc.Prefix, rc.TTL), closeClient, nil
	}
	return nil, nil, nil
}

// newHTTPHandler mounts the API server at the root and the MCP endpoint at
// /mcp. The MCP tools call back into the API at baseURL.
func newHTTPHandler(svcs *services, hub *websocket.Hub, baseURL string) http.Handler {
	apiServer := api.NewServer(svcs.game, hub, svcs.collector, svcs.logger.Named("api"))
	mcpClient := mcp.NewClient(baseURL)

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(responseData)
	})
	return mainRouter
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	st, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger, err := st.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", zap.String("app", AppName), zap.String("version", Version))

	svcs, err := initializeServices(ctx, st, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer svcs.Close()

	return runHTTPServer(ctx, st, svcs)
}

// runHTTPServer serves until ctx is cancelled. When ngrok is enabled it also
// serves the same handler through a public tunnel.
func runHTTPServer(ctx context.Context, st *settings.Settings, svcs *services) error {
	logger := svcs.logger

	hub := websocket.NewHub(logger.Named("websocket"))
	go hub.Run(ctx)
	svcs.sessions.OnRound(hub.BroadcastRound)

	addr := st.Addr()
	handler := newHTTPHandler(svcs, hub, "http://"+addr)

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// autoplay on large boards can take a while
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("HTTP server listening",
			zap.String("addr", addr),
			zap.String("api", fmt.Sprintf("http://%s/api", addr)),
			zap.String("websocket", fmt.Sprintf("ws://%s/ws?session=<session_id>", addr)),
			zap.String("mcp", fmt.Sprintf("http://%s/mcp", addr)))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sessionCleanupRoutine(ctx, svcs.sessions, st.SessionTTL, svcs.collector, logger)
	}()

	if svcs.persistence != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			storageSyncRoutine(ctx, svcs.sessions, svcs.persistence, logger)
		}()
	}

	if st.Ngrok.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrokTunnel(ctx, st.Ngrok, handler, logger.Named("ngrok"))
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if runErr == nil {
		wg.Wait()
	}
	if err := svcs.sessions.SaveAllSessions(); err != nil {
		logger.Warn("failed to save sessions on shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
	return runErr
}

// runNgrokTunnel serves handler through an ngrok endpoint until ctx ends.
func runNgrokTunnel(ctx context.Context, cfg settings.Ngrok, handler http.Handler, logger *zap.Logger) {
	if cfg.AuthToken == "" {
		logger.Warn("ngrok enabled but no auth token provided (use --ngrok-auth or NGROK_AUTHTOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
		logger.Info("using custom ngrok domain", zap.String("domain", cfg.Domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", zap.Error(err))
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Warn("failed to close ngrok tunnel", zap.Error(err))
		}
	}()

	url := tun.URL()
	logger.Info("ngrok tunnel established",
		zap.String("url", url),
		zap.String("api", url+"/api"),
		zap.String("mcp", url+"/mcp"))

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		logger.Error("ngrok server error", zap.Error(err))
	}
	logger.Info("ngrok tunnel closed")
}

// sessionCleanupRoutine periodically drops sessions idle for longer than ttl
// and reports the number of live sessions. A zero ttl keeps sessions forever.
func sessionCleanupRoutine(ctx context.Context, manager *session.Manager, ttl time.Duration, collector *metrics.Collector, logger *zap.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ttl > 0 {
			if removed := manager.CleanupExpiredSessions(ttl); removed > 0 {
				logger.Info("cleaned up expired sessions", zap.Int("count", removed))
			}
		}
		collector.SetActiveSessions(manager.Count())
	}
}

// storageSyncRoutine drops sessions from memory once their stored copy is
// gone, whether deleted by hand or expired by Redis.
func storageSyncRoutine(ctx context.Context, manager *session.Manager, persistence session.SessionPersistence, logger *zap.Logger) {
	ticker := time.NewTicker(storageSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		pruneOrphans(manager, persistence, logger)
	}
}

// pruneOrphans removes in-memory sessions missing from persistence and
// returns how many were removed.
func pruneOrphans(manager *session.Manager, persistence session.SessionPersistence, logger *zap.Logger) int {
	pruned := 0
	for _, sess := range manager.List() {
		if persistence.Exists(sess.ID) {
			continue
		}
		if err := manager.DeleteFromMemory(sess.ID); err == nil {
			pruned++
			logger.Info("pruned session missing from storage", zap.String("session_id", sess.ID))
		}
	}
	return pruned
}

func mcpAction(ctx context.Context, cmd *cli.Command) error {
	st, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger, err := st.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return runStdioMCP(ctx, cmd.String("api-url"), st, logger)
}

// runStdioMCP runs an MCP stdio server. It reuses the API at externalURL when
// one answers; otherwise it starts an internal API on a random loopback port.
func runStdioMCP(ctx context.Context, externalURL string, st *settings.Settings, logger *zap.Logger) error {
	baseURL := externalURL
	if !apiReachable(externalURL) {
		logger.Info("no external API server found, starting internal HTTP server", zap.String("probed", externalURL))

		svcs, err := initializeServices(ctx, st, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize services: %w", err)
		}
		defer svcs.Close()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = "http://" + listener.Addr().String()

		hub := websocket.NewHub(logger.Named("websocket"))
		go hub.Run(ctx)

		httpServer := &http.Server{Handler: newHTTPHandler(svcs, hub, baseURL)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("internal HTTP server error", zap.Error(err))
			}
		}()
		defer httpServer.Close()
	}

	logger.Info("MCP stdio server ready", zap.String("api", baseURL))
	if err := server.ServeStdio(mcp.NewClient(baseURL).GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// apiReachable reports whether an API server answers health checks at baseURL.
func apiReachable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/healthz")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
