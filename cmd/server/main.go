// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/podcastr/internal/api/connect"
	"github.com/osa030/podcastr/internal/api/web"
	"github.com/osa030/podcastr/internal/app/catalog"
	"github.com/osa030/podcastr/internal/app/session"
	"github.com/osa030/podcastr/internal/domain/episode"
	"github.com/osa030/podcastr/internal/infra/audio"
	"github.com/osa030/podcastr/internal/infra/config"
	"github.com/osa030/podcastr/internal/infra/logger"
	"github.com/osa030/podcastr/internal/infra/spotify"
)

var version = "dev"

var (
	app        = kingpin.New("podcastr-server", "podcastr podcast player server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	listSourcesCmd  = app.Command("list-sources", "List configured catalog sources and exit")
	listEpisodesCmd = app.Command("list-episodes", "Load the catalog, print it and exit")
)

func init() {
	app.Version(version)
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	chain, err := newCatalog(ctx, cfg)
	if err != nil {
		zlog.Fatal().Msgf("Failed to create catalog: %v", err)
	}

	switch command {
	case listSourcesCmd.FullCommand():
		printSources(chain)
		return
	case listEpisodesCmd.FullCommand():
		if err := printEpisodes(ctx, chain); err != nil {
			zlog.Error().Msgf("Failed to list episodes: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, chain); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// newCatalog builds the source chain. The Spotify client is only created
// when a spotify source is configured.
func newCatalog(ctx context.Context, cfg *config.Config) (*catalog.Chain, error) {
	var spotifyClient catalog.SpotifyClient
	if cfg.UsesSpotify() {
		c, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Spotify client: %w", err)
		}
		spotifyClient = c
	}
	return catalog.NewChainFromConfig(cfg, spotifyClient)
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(ctx context.Context, cfg *config.Config, chain *catalog.Chain) error {
	handle := audio.NewClockHandle(audio.Config{
		TimeUpdateInterval: cfg.Player.TimeUpdateInterval(),
	})
	defer handle.Close()

	sessionMgr, err := session.NewManager(cfg, chain, handle)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	if err := sessionMgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	images, err := web.NewImageOptimizer(web.ImageConfig{
		CacheSize:      cfg.Images.CacheSize,
		MaxWidth:       cfg.Images.MaxWidth,
		DefaultQuality: cfg.Images.DefaultQuality,
		FetchTimeout:   cfg.Images.FetchTimeout(),
		AllowedHosts:   cfg.Images.AllowedHosts,
	})
	if err != nil {
		return fmt.Errorf("failed to create image optimizer: %w", err)
	}
	images.AllowHosts(web.ThumbnailHosts(sessionMgr.Episodes())...)

	router, err := web.NewServer(web.Config{
		Version:      version,
		ControlToken: cfg.Control.Token,
		Logger:       logger.Component("http"),
	}, sessionMgr, images)
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}

	// Create RPC service
	playerService := apiconnect.NewPlayerService(sessionMgr)
	playerPath, playerHandler := apiconnect.NewPlayerServiceHandler(
		playerService,
		connect.WithInterceptors(apiconnect.NewControlAuthInterceptor(cfg.Control.Token)),
	)
	router.Mount(playerPath, playerHandler)

	serverAddr := cfg.Server.Addr
	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    serverAddr,
		Handler: h2c.NewHandler(router, &http2.Server{}),
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", serverAddr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	// Execute startup hook if configured (after server is running)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	// Wait for shutdown signal, session end, or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-sessionMgr.Done():
		zlog.Info().Msg("Session ended, shutting down...")
	case err := <-serverErrCh:
		sessionMgr.Close()
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close session manager first to terminate active notification streams
	sessionMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// printSources prints the configured catalog sources in priority order.
func printSources(chain *catalog.Chain) {
	fmt.Println("Catalog Sources:")
	for i, src := range chain.Sources() {
		fmt.Printf("  %d. %-10s %s\n", i+1, src.Source.Name(), src.DisplayName)
	}
}

// printEpisodes prints the merged catalog.
func printEpisodes(ctx context.Context, chain *catalog.Chain) error {
	episodes, err := chain.Episodes(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Catalog (%s, %d episodes):\n", chain.Name(), len(episodes))
	for i, ep := range episodes {
		fmt.Printf("  %3d  %s  %-50s %s\n", i, ep.PublishedAt.Format(time.DateOnly), ep.Title, episode.FormatDuration(ep.Duration))
	}
	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
