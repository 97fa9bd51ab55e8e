package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	coreapp "dagger/internal/core/app"
	"dagger/internal/core/config"
	"dagger/internal/core/ports"
	"dagger/internal/engine/graph"
	"dagger/internal/output"
	"dagger/internal/shared/observability"
	"dagger/internal/ui/api"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
)

const shutdownTimeout = 10 * time.Second

func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		return 2
	}

	if opts.version {
		fmt.Fprintf(stdout, "dagger v%s\n", versionString)
		return 0
	}

	if err := validateModeOptions(opts); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger := configureLogging(cfg.Log, opts.verbose, stderr)
	slog.SetDefault(logger)

	if cfg.Observability.Enabled && cfg.Observability.EnableTracing {
		shutdown, err := observability.SetupTracing(ctx, observability.TracingOptions{
			ServiceName:  cfg.Observability.ServiceName,
			Version:      versionString,
			OTLPEndpoint: cfg.Observability.OTLPEndpoint,
			Insecure:     cfg.Observability.OTLPInsecure,
		})
		if err != nil {
			slog.Error("failed to set up tracing", "error", err)
			return 1
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	a, err := coreapp.New(cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		return 1
	}
	defer a.Close()

	if opts.oneShot() {
		if err := runCommand(ctx, a.GraphService(), opts, format, stdout); err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		return 0
	}

	if err := serve(ctx, a, cfg); err != nil {
		slog.Error("server failed", "error", err)
		return 1
	}
	return 0
}

// loadConfig reads the dotenv file, the TOML file and then DAGGER_*
// overrides, in that order.
func loadConfig(opts cliOptions) (*config.Config, error) {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", opts.envFile, err)
		}
	}
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return nil, err
	}
	config.ApplyEnvOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configureLogging(cfg config.Log, verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// ginMode keeps gin's route dump and warnings for debug logging only.
func ginMode(ctx context.Context, logger *slog.Logger) string {
	if logger.Enabled(ctx, slog.LevelDebug) {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}

func serve(ctx context.Context, a *coreapp.App, cfg *config.Config) error {
	gin.SetMode(ginMode(ctx, slog.Default()))
	server := api.NewServer(ctx, a.GraphService(), a.HealthService(), api.Options{
		Address:     cfg.Server.Address,
		RateLimit:   cfg.Server.RateLimit,
		RateBurst:   cfg.Server.RateBurst,
		ReadTimeout: cfg.Server.ReadTimeout,
		ServiceName: tracingServiceName(cfg),
		Logger:      slog.Default(),
	})
	if err := server.Start(); err != nil {
		return err
	}

	var obs *ObservabilityServer
	if cfg.Observability.Enabled && cfg.Observability.EnableMetrics {
		obs = NewObservabilityServer(fmt.Sprintf(":%d", cfg.Observability.Port), a.HealthService())
		if err := obs.Start(ctx); err != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return errors.Join(err, server.Stop(sctx))
		}
	}

	<-ctx.Done()
	slog.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := server.Stop(sctx)
	if obs != nil {
		err = errors.Join(err, obs.Stop(sctx))
	}
	return err
}

func tracingServiceName(cfg *config.Config) string {
	if cfg.Observability.Enabled && cfg.Observability.EnableTracing {
		return cfg.Observability.ServiceName
	}
	return ""
}

func runCommand(ctx context.Context, svc ports.GraphService, opts cliOptions, format output.Format, w io.Writer) error {
	switch {
	case opts.add != "":
		team, err := graph.ParseTeamID(strings.TrimSpace(opts.team))
		if err != nil {
			return err
		}
		from, deps, err := parseAddSpec(opts.add)
		if err != nil {
			return err
		}
		res, err := svc.AddEdges(ctx, team, from, deps)
		for _, e := range res.Applied {
			fmt.Fprintf(w, "added %s -> %s\n", e.From, e.To)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "component %s\n", res.ComponentID)
		return nil

	case opts.del != "":
		id, from, deps, err := parseDeleteSpec(opts.del)
		if err != nil {
			return err
		}
		res, err := svc.DeleteEdges(ctx, id, from, deps)
		for _, e := range res.Removed {
			fmt.Fprintf(w, "removed %s -> %s\n", e.From, e.To)
		}
		if err != nil {
			return err
		}
		switch {
		case res.Survived:
			fmt.Fprintf(w, "component %s kept\n", res.ComponentID)
		case len(res.Created) == 0:
			fmt.Fprintf(w, "component %s deleted\n", res.ComponentID)
		default:
			fmt.Fprintf(w, "component %s split\n", res.ComponentID)
		}
		for _, created := range res.Created {
			fmt.Fprintf(w, "component %s created\n", created)
		}
		return nil

	case opts.get != "":
		id, err := graph.ParseComponentID(strings.TrimSpace(opts.get))
		if err != nil {
			return err
		}
		details, err := componentDetails(ctx, svc, id, opts.includeTasks)
		if err != nil {
			return err
		}
		text, err := output.Render(format, details)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, text)
		return err

	case opts.list:
		team, err := graph.ParseTeamID(strings.TrimSpace(opts.team))
		if err != nil {
			return err
		}
		components, err := svc.ListComponentsByTeam(ctx, team)
		if err != nil {
			return err
		}
		return writeList(w, format, components)
	}
	return nil
}

func componentDetails(ctx context.Context, svc ports.GraphService, id graph.ComponentID, includeTasks bool) (ports.ComponentDetails, error) {
	if includeTasks {
		return svc.GetComponentDetails(ctx, id)
	}
	c, err := svc.GetComponent(ctx, id)
	if err != nil {
		return ports.ComponentDetails{}, err
	}
	return ports.ComponentDetails{Component: c}, nil
}

func writeList(w io.Writer, format output.Format, components []graph.Component) error {
	if format == output.FormatJSON {
		docs := make([]output.ComponentJSON, 0, len(components))
		for _, c := range components {
			doc, err := output.NewComponentJSON(c)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		data, err := json.MarshalIndent(docs, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	for i, c := range components {
		text, err := output.Render(format, ports.ComponentDetails{Component: c})
		if err != nil {
			return err
		}
		if i > 0 && format != output.FormatTSV {
			fmt.Fprintln(w)
		}
		if i > 0 && format == output.FormatTSV {
			// One header for the whole listing.
			text = text[strings.Index(text, "\n")+1:]
		}
		if _, err := io.WriteString(w, text); err != nil {
			return err
		}
	}
	return nil
}
