package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/scribe/internal/config"
	"github.com/haasonsaas/scribe/internal/engine"
	"github.com/haasonsaas/scribe/internal/observability"
	"github.com/haasonsaas/scribe/internal/runctx"
	"github.com/haasonsaas/scribe/internal/skills"
	"github.com/haasonsaas/scribe/internal/store"
	"github.com/haasonsaas/scribe/internal/tools"
	"github.com/haasonsaas/scribe/internal/web"
)

// loadConfig reads the config file when it exists, falling back to
// defaults so `scribe serve` works out of the box.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config.Default(), nil
		}
		return nil, err
	}
	return config.Load(path)
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Scribe HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "scribe.yaml", "Path to configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "scribe",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error(context.Background(), "tracer shutdown failed", "error", err)
		}
	}()

	if cfg.Artifacts.FallbackDir != "" {
		runctx.SetFallbackDir(cfg.Artifacts.FallbackDir)
	}

	st, err := store.NewSQLiteStore(cfg.Storage.Path, metrics)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	skillRegistry, err := skills.NewRegistry(cfg.Skills.Dir, logger)
	if err != nil {
		logger.Warn(ctx, "skill registry unavailable", "dir", cfg.Skills.Dir, "error", err)
		skillRegistry = nil
	}

	toolRegistry := tools.NewRegistry()
	if err := toolRegistry.Register(tools.NewCreateArtifactTool()); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}
	if skillRegistry != nil {
		if err := toolRegistry.Register(tools.NewListSkillsTool(skillRegistry)); err != nil {
			return fmt.Errorf("register tools: %w", err)
		}
	}

	eng, err := buildEngine(cfg, toolRegistry, logger, metrics, tracer)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if skillRegistry != nil && cfg.Skills.Watch {
		if err := skillRegistry.Watch(ctx); err != nil {
			logger.Warn(ctx, "skill watching disabled", "error", err)
		} else {
			defer skillRegistry.Stop()
		}
	}

	handler := web.NewHandler(&web.Config{
		Store:         st,
		Engine:        eng,
		SkillRegistry: skillRegistry,
		ArtifactsRoot: cfg.Artifacts.Root,
		Logger:        logger,
		Metrics:       metrics,
		Tracer:        tracer,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.Mount(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server starting",
			"addr", addr,
			"engine", eng.Name(),
			"version", version,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildEngine selects the execution engine named by the configuration.
func buildEngine(cfg *config.Config, registry *tools.Registry, logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) (engine.Engine, error) {
	switch cfg.Engine.Provider {
	case "anthropic":
		return engine.NewAnthropicEngine(engine.AnthropicConfig{
			APIKey:        cfg.Engine.APIKey,
			BaseURL:       cfg.Engine.BaseURL,
			Model:         cfg.Engine.Model,
			MaxTokens:     cfg.Engine.MaxTokens,
			MaxToolRounds: cfg.Engine.MaxToolRounds,
			SystemPrompt:  cfg.Engine.SystemPrompt,
		}, registry, logger, metrics, tracer)
	case "openai":
		return engine.NewOpenAIEngine(engine.OpenAIConfig{
			APIKey:        cfg.Engine.APIKey,
			BaseURL:       cfg.Engine.BaseURL,
			Model:         cfg.Engine.Model,
			MaxTokens:     cfg.Engine.MaxTokens,
			MaxToolRounds: cfg.Engine.MaxToolRounds,
			SystemPrompt:  cfg.Engine.SystemPrompt,
		}, registry, logger, metrics, tracer)
	case "scripted":
		return engine.NewScriptedEngine(registry, nil, "Scripted engine ready."), nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q", cfg.Engine.Provider)
	}
}

func buildConversationsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "Manage stored conversations",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "scribe.yaml", "Path to configuration file")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversationsList(cmd, configPath)
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversationsRm(cmd, configPath, args[0])
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(rmCmd)
	return cmd
}

func openStore(configPath string) (*store.SQLiteStore, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Storage.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func runConversationsList(cmd *cobra.Command, configPath string) error {
	st, err := openStore(configPath)
	if err != nil {
		return err
	}
	defer st.Close()

	summaries, err := st.ListConversations(cmd.Context())
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No conversations.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tUPDATED")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.Title, s.MessageCount, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runConversationsRm(cmd *cobra.Command, configPath, id string) error {
	st, err := openStore(configPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteConversation(cmd.Context(), id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
	return nil
}

func buildArtifactCmd() *cobra.Command {
	var (
		configPath   string
		title        string
		artifactType string
	)

	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Work with artifacts",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "scribe.yaml", "Path to configuration file")

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an artifact from stdin content",
		Long:  "Reads markdown content from stdin and writes it as an artifact.\nOutside a server request the file lands in the fallback directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArtifactCreate(cmd, configPath, title, artifactType)
		},
	}
	createCmd.Flags().StringVarP(&title, "title", "t", "", "Artifact title (required)")
	createCmd.Flags().StringVar(&artifactType, "type", "document", "Artifact type: document, report, guide, plan, code")
	createCmd.MarkFlagRequired("title")

	cmd.AddCommand(createCmd)
	return cmd
}

func runArtifactCreate(cmd *cobra.Command, configPath, title, artifactType string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Artifacts.FallbackDir != "" {
		runctx.SetFallbackDir(cfg.Artifacts.FallbackDir)
	}

	content, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read content: %w", err)
	}

	params, err := json.Marshal(map[string]string{
		"title":         title,
		"content":       string(content),
		"artifact_type": artifactType,
	})
	if err != nil {
		return err
	}

	tool := tools.NewCreateArtifactTool()
	result, err := tool.Execute(cmd.Context(), params)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	if result.IsError {
		return errors.New(result.Content)
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Content)
	fmt.Fprintf(cmd.OutOrStdout(), "Artifact directory: %s\n", runctx.FallbackDir())
	return nil
}

func buildSkillsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "skills",
		Short: "List available skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSkillsList(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "scribe.yaml", "Path to configuration file")
	return cmd
}

func runSkillsList(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	registry, err := skills.NewRegistry(cfg.Skills.Dir, logger)
	if err != nil {
		return fmt.Errorf("scan skills: %w", err)
	}

	list := registry.List()
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No skills found in", cfg.Skills.Dir)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\n", s.Name, s.Description)
	}
	return w.Flush()
}
