package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/specwright/internal/api"
	"github.com/kalambet/specwright/internal/artifact"
	"github.com/kalambet/specwright/internal/browser"
	"github.com/kalambet/specwright/internal/config"
	"github.com/kalambet/specwright/internal/contract"
	"github.com/kalambet/specwright/internal/generate"
	"github.com/kalambet/specwright/internal/pipeline"
	"github.com/kalambet/specwright/internal/profile"
	"github.com/kalambet/specwright/internal/queue"
	"github.com/kalambet/specwright/internal/runner"
	"github.com/kalambet/specwright/internal/semantic"
	"github.com/kalambet/specwright/internal/storage"
	"github.com/kalambet/specwright/internal/timeline"
	"github.com/kalambet/specwright/internal/validate"
	"github.com/kalambet/specwright/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the specwright server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "specwright version %s\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(os.Getenv("SPECWRIGHT_LOG_LEVEL"), "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	artifacts, err := artifact.NewFS(cfg.Storage.ArtifactDir)
	if err != nil {
		return fmt.Errorf("opening artifact store: %w", err)
	}
	tl, err := timeline.NewLog(cfg.Storage.TimelineDir)
	if err != nil {
		return fmt.Errorf("opening timeline log: %w", err)
	}
	profiles, err := profile.Load(cfg.Profiles.Path)
	if err != nil {
		return fmt.Errorf("loading profiles: %w", err)
	}

	q := queue.NewSQLite(store)
	builder := semantic.NewBuilder()
	execEngine := runner.New(cfg.Runner.BaseURL)

	registry := contract.NewRegistry()
	registry.RegisterSemantic("default", builder)
	registry.RegisterStorage("default", artifacts)
	registry.RegisterQueue("default", q)
	registry.RegisterValidation("default", validate.New())
	registry.RegisterExecution("default", execEngine)
	for _, name := range profiles.Names() {
		p, _ := profiles.Get(name)
		var eng contract.GenerationEngine = generate.NewStatic(p)
		if cfg.Generation.Mode == "llm" {
			eng = generate.NewLLM(cfg.Generation.LLMBaseURL, cfg.Generation.LLMModel, eng)
		}
		registry.RegisterGeneration(name, eng)
	}
	slog.Info("adapters registered", "generation_mode", cfg.Generation.Mode, "profiles", profiles.Names())

	orch := pipeline.New(store, tl, registry, pipeline.DefaultAdapterNames(), profiles, nil, slog.Default())

	browserClient := browser.New(cfg.Browser.BaseURL)
	if !browserClient.IsRunning(ctx) {
		printWarning("browser daemon not reachable at %s; extraction will fail until it is up", cfg.Browser.BaseURL)
	}
	if !execEngine.IsRunning(ctx) {
		printWarning("step runner not reachable at %s; test runs will fail until it is up", cfg.Runner.BaseURL)
	}

	extractionWorker := worker.NewExtraction(q, store, artifacts, tl, builder, browserClient, cfg.Worker.PollInterval)
	executionWorker := worker.NewExecution(q, store, artifacts, tl, execEngine, cfg.Runner.RunTimeout, cfg.Worker.PollInterval)

	handler := api.NewHandler(api.AppDeps{
		Orchestrator: orch,
		Store:        store,
		Artifacts:    artifacts,
		Timeline:     tl,
		Registry:     registry,
		Token:        cfg.Server.BearerToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Orchestrator: orch,
		Store:        store,
		Timeline:     tl,
	})
	sseSrv := server.NewSSEServer(mcpSrv)
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		extractionWorker.Run(gCtx)
		return nil
	})
	g.Go(func() error {
		executionWorker.Run(gCtx)
		return nil
	})
	g.Go(func() error {
		slog.Info("MCP server listening", "addr", mcpAddr)
		if err := sseSrv.Start(mcpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "specwright listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sseSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("mcp shutdown", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
