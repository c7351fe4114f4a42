package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"navvoice/internal/api"
	"navvoice/pkg/audio"
	"navvoice/pkg/cache"
	"navvoice/pkg/config"
	"navvoice/pkg/db"
	"navvoice/pkg/db/maintenance"
	"navvoice/pkg/logging"
	"navvoice/pkg/playback"
	"navvoice/pkg/probe"
	"navvoice/pkg/request"
	"navvoice/pkg/route"
	"navvoice/pkg/store"
	"navvoice/pkg/tracker"
	"navvoice/pkg/tts"
	"navvoice/pkg/tts/edgetts"
	"navvoice/pkg/tts/mapbox"
	"navvoice/pkg/version"
	"navvoice/pkg/voice"

	"github.com/joho/godotenv"
)

const defaultConfigPath = "configs/navvoice.yaml"

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", defaultConfigPath, "Path to the config file")
	routeFile  = flag.String("route", "", "GeoJSON route to replay (overrides route.file)")
	trace      = flag.Bool("trace", false, "Enable trace logging")
)

func main() {
	flag.Parse()

	// MAPBOX_ACCESS_TOKEN may live in .env
	_ = godotenv.Load()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	logging.EnableTrace = *trace

	if err := run(context.Background(), *configPath, *routeFile); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath, routeOverride string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if routeOverride != "" {
		appCfg.Route.File = routeOverride
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	tts.SetLogPath(appCfg.Log.TTS.Path)

	slog.Info("navvoice Started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(ctx, st, dbConn, maintenance.Options{
		CacheTTL:     time.Duration(appCfg.TTS.CacheTTL),
		HistoryLimit: appCfg.DB.HistoryLimit,
		Interval:     time.Duration(appCfg.DB.MaintenanceInterval),
	}); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	cfgProv := config.NewProvider(appCfg, st)
	tr := tracker.New()

	fetcher, err := initTTS(appCfg, dbConn, tr, cfgProv)
	if err != nil {
		return err
	}

	mat, err := playback.NewMaterializer(appCfg.Voice.CacheDir)
	if err != nil {
		return err
	}
	// Leftovers from a previous run that did not shut down cleanly.
	if err := mat.Flush(); err != nil {
		slog.Warn("Failed to flush instruction cache", "error", err)
	}

	if err := startupChecks(ctx, appCfg, mat); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	spk := audio.NewSpeaker(&appCfg.Audio)
	spk.SetVolume(cfgProv.Volume(ctx))

	journal := voice.NewJournal(st)
	player := voice.New(ctx, fetcher, mat, spk, voice.Options{
		Muted:    cfgProv.Muted(ctx),
		Listener: journal,
		Events:   journal,
		Tracker:  tr,
	})
	defer func() {
		player.Shutdown()
		journal.Close()
	}()

	if appCfg.Route.File != "" {
		if err := startReplay(ctx, appCfg.Route, player); err != nil {
			return err
		}
	}

	srv := api.NewServer(
		appCfg.Server.Address,
		api.NewVoiceHandler(player, cfgProv, st),
		api.NewAudioHandler(spk, cfgProv),
		api.NewStatsHandler(tr, fetcher.Active),
		cancel,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	return runServerLifecycle(ctx, srv, quit)
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

// initTTS builds the primary engine and, when configured, the fallback behind it.
func initTTS(appCfg *config.Config, dbConn *db.DB, tr *tracker.Tracker, lang tts.LanguageProvider) (*tts.Fallback, error) {
	timeout := time.Duration(appCfg.Request.Timeout)
	client := request.New(cache.NewSQLiteCache(dbConn, time.Duration(appCfg.TTS.CacheTTL)), tr, request.Options{
		Timeout:   timeout,
		Retries:   appCfg.Request.Retries,
		BaseDelay: time.Duration(appCfg.Request.Backoff.BaseDelay),
		MaxDelay:  time.Duration(appCfg.Request.Backoff.MaxDelay),
	})

	primary, err := newFetcher(appCfg.TTS.Engine, &appCfg.TTS, client, timeout, tr, lang)
	if err != nil {
		return nil, err
	}

	var secondary tts.Fetcher
	secondaryName := appCfg.TTS.Fallback
	if secondaryName != "" && secondaryName != appCfg.TTS.Engine {
		if secondary, err = newFetcher(secondaryName, &appCfg.TTS, client, timeout, tr, lang); err != nil {
			return nil, err
		}
	} else {
		secondaryName = ""
	}

	slog.Info("TTS engines configured", "primary", appCfg.TTS.Engine, "fallback", secondaryName)
	return tts.NewFallback(appCfg.TTS.Engine, primary, secondaryName, secondary), nil
}

func newFetcher(name string, cfg *config.TTSConfig, client *request.Client, timeout time.Duration, tr *tracker.Tracker, lang tts.LanguageProvider) (tts.Fetcher, error) {
	switch name {
	case config.EngineMapbox:
		return mapbox.NewProvider(client, cfg.Mapbox, lang), nil
	case config.EngineEdgeTTS:
		return edgetts.NewProvider(tr, cfg.EdgeTTS.VoiceID, lang, timeout), nil
	default:
		return nil, fmt.Errorf("unknown tts engine %q", name)
	}
}

func startupChecks(ctx context.Context, appCfg *config.Config, mat *playback.Materializer) error {
	probes := []probe.Probe{
		{
			Name:     "Instruction Cache",
			Check:    probe.DirWritable(mat.Dir()),
			Critical: true,
		},
		{
			Name:     "Route File",
			Check:    probe.FileReadable(appCfg.Route.File),
			Critical: true,
		},
	}
	if appCfg.TTS.Engine == config.EngineMapbox || appCfg.TTS.Fallback == config.EngineMapbox {
		probes = append(probes, probe.Probe{
			Name:  "Mapbox Token",
			Check: probe.NotEmpty("mapbox access token", appCfg.TTS.Mapbox.Token),
			// Missing tokens fail over to the secondary engine at fetch time.
			Critical: false,
		})
	}

	return probe.AnalyzeResults(probe.Run(ctx, probes))
}

// startReplay drives the player from a recorded route until it ends or ctx is done.
func startReplay(ctx context.Context, cfg config.RouteConfig, sink route.Sink) error {
	r, err := route.Load(cfg.File)
	if err != nil {
		return fmt.Errorf("failed to load route: %w", err)
	}
	rp := route.NewReplayer(r, sink, cfg)
	go func() {
		if err := rp.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Route replay stopped", "error", err)
		}
	}()
	return nil
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
