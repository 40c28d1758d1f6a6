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
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/gosuri/uitable"
	"go.uber.org/zap"

	"github.com/upb/llm-fallback-router/app"
	"github.com/upb/llm-fallback-router/config"
	"github.com/upb/llm-fallback-router/handlers"
	"github.com/upb/llm-fallback-router/internal/observability"
	"github.com/upb/llm-fallback-router/routes"
	"github.com/upb/llm-fallback-router/services"
	"github.com/upb/llm-fallback-router/services/providers"
	"github.com/upb/llm-fallback-router/services/routing"
)

const version = "0.1.0"

// CLI is the command line of the fallback router
type CLI struct {
	Serve     ServeCmd     `cmd:"" default:"1" help:"Run the HTTP chat completion router."`
	Ask       AskCmd       `cmd:"" help:"Send one prompt through the fallback chain and print the result."`
	Providers ProvidersCmd `cmd:"" help:"Print the enabled fallback chain."`

	Version kong.VersionFlag `help:"Print version and exit."`
}

// runtime carries what every command needs
type runtime struct {
	ctx    context.Context
	cfg    *config.Config
	logger *zap.Logger
	stdout io.Writer
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("fallback-router"),
		kong.Description("Routes chat completions through an ordered chain of LLM providers."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	rt := &runtime{ctx: ctx, cfg: cfg, logger: logger, stdout: os.Stdout}
	if err := kctx.Run(rt); err != nil {
		logger.Error("command failed", zap.String("command", kctx.Command()), zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// ServeCmd runs the HTTP server until interrupted
type ServeCmd struct{}

// Run starts the server and shuts it down gracefully on SIGINT or SIGTERM
func (c *ServeCmd) Run(rt *runtime) error {
	cfg := rt.cfg
	logger := rt.logger

	logger.Info("starting fallback router",
		zap.String("version", version),
		zap.String("environment", cfg.Environment),
		zap.String("address", cfg.Server.Address()),
		zap.Duration("attempt_timeout", cfg.Router.Timeout),
		zap.Strings("provider_order", cfg.Router.ProviderOrder))

	deps, err := app.NewDependencies(rt.ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      routes.SetupRoutes(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case err := <-serverErr:
		runErr = fmt.Errorf("server error: %w", err)
	case <-rt.ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := deps.Close(shutdownCtx); err != nil {
		logger.Error("failed to close dependencies", zap.Error(err))
	}

	logger.Info("server stopped")
	return runErr
}

// AskCmd sends a single prompt through the chain
type AskCmd struct {
	System      string   `help:"System prompt prepended to the conversation."`
	Temperature *float64 `help:"Sampling temperature (0-2)."`
	MaxTokens   *int     `name:"max-tokens" help:"Maximum completion tokens."`
	Prompt      []string `arg:"" help:"Prompt text."`
}

// askOutput is what ask prints on stdout
type askOutput struct {
	RunID    string                 `json:"run_id"`
	Provider string                 `json:"provider,omitempty"`
	Model    string                 `json:"model,omitempty"`
	Content  string                 `json:"content,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Attempts []handlers.AttemptView `json:"attempts"`
}

// Run executes one routing run and prints it as JSON. A failed run still
// prints its attempts before returning the error.
func (c *AskCmd) Run(rt *runtime) error {
	prompt := strings.TrimSpace(strings.Join(c.Prompt, " "))
	if prompt == "" {
		return errors.New("prompt is empty")
	}

	params := providers.GenerationParams{
		Temperature:     rt.cfg.Router.DefaultTemperature,
		MaxOutputTokens: rt.cfg.Router.DefaultMaxTokens,
	}
	if c.Temperature != nil {
		if *c.Temperature < 0 || *c.Temperature > 2 {
			return fmt.Errorf("temperature must be between 0 and 2")
		}
		params.Temperature = *c.Temperature
	}
	if c.MaxTokens != nil {
		if *c.MaxTokens < 1 {
			return fmt.Errorf("max tokens must be positive")
		}
		params.MaxOutputTokens = *c.MaxTokens
	}

	var conv providers.Conversation
	if c.System != "" {
		conv = append(conv, providers.Message{Role: providers.RoleSystem, Content: c.System})
	}
	conv = append(conv, providers.Message{Role: providers.RoleUser, Content: prompt})

	deps, err := app.NewDependencies(rt.ctx, rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(context.Background()); err != nil {
			rt.logger.Warn("failed to close dependencies", zap.Error(err))
		}
	}()

	result, runErr := deps.Router.Complete(rt.ctx, conv, params)

	out := askOutput{}
	if runErr != nil {
		out.RunID, _ = services.GetErrorDetails(runErr)["run_id"].(string)
		out.Error = runErr.Error()
		out.Attempts = handlers.NewAttemptViews(routing.AttemptsFromError(runErr))
	} else {
		out.RunID = result.RunID
		out.Provider = result.Response.Provider
		out.Model = result.Response.Model
		out.Content = result.Response.Content
		out.Attempts = handlers.NewAttemptViews(result.Attempts)
	}

	enc := json.NewEncoder(rt.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return runErr
}

// ProvidersCmd prints the fallback chain in attempt order
type ProvidersCmd struct{}

// Run lists every enabled (provider, model) pair
func (c *ProvidersCmd) Run(rt *runtime) error {
	deps, err := app.NewDependencies(rt.ctx, rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer func() { _ = deps.Close(context.Background()) }()

	candidates := deps.Providers.Candidates()
	if len(candidates) == 0 {
		fmt.Fprintln(rt.stdout, "no providers configured")
		return nil
	}

	table := uitable.New()
	table.MaxColWidth = 80
	table.Separator = "  "
	table.AddRow("#", "PROVIDER", "MODEL", "SCHEMA", "ENDPOINT")
	for i, c := range candidates {
		table.AddRow(i+1, c.Provider(), c.Model, c.Spec.Codec.Schema(), c.Spec.BaseURL)
	}
	_, err = fmt.Fprintln(rt.stdout, table)
	return err
}
