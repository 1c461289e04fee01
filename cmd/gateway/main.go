// Command gateway runs the Flight data transfer gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"gopkg.in/yaml.v3"

	"flightgate/internal/auth"
	"flightgate/internal/config"
	"flightgate/internal/gateway"
	"flightgate/internal/middleware"
	"flightgate/internal/ops"
	"flightgate/internal/provider"
	"flightgate/internal/provider/file"
	"flightgate/internal/provider/warehouse"
	"flightgate/internal/registry"
	"flightgate/internal/ticket"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "flightgate",
		Short:         "Multi-tenant Arrow Flight data transfer gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newServeCmd(), newSeedCmd(), newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gateway version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway and its ops endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func serve(ctx context.Context) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	store, err := registry.Open(cfg.RegistryDBPath)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer store.Close()

	providers := provider.NewRegistry()
	providers.Register(file.Kind, file.New)
	providers.Register(warehouse.Kind, warehouse.New)
	defer providers.Close()

	tickets := ticket.NewStore(cfg.TicketTTL)
	resolver := auth.NewResolver(store, providers)

	gw := gateway.New(resolver, tickets, logger)
	if cfg.PublicLocation != "" {
		gw.SetLocation(cfg.PublicLocation)
	}

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})
	defer limiter.Close()

	srv := gateway.NewServer(cfg.ListenAddr, logger, gw,
		grpc.ChainUnaryInterceptor(
			middleware.RequestIDUnary(),
			middleware.LoggingUnary(logger),
			limiter.Unary(),
		),
		grpc.ChainStreamInterceptor(
			middleware.RequestIDStream(),
			middleware.LoggingStream(logger),
			limiter.Stream(),
		),
	)
	if err := srv.Start(); err != nil {
		return err
	}

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.SweepSchedule, func() {
		if removed := tickets.Sweep(); removed > 0 {
			logger.Info("swept expired tickets", "removed", removed)
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	opsHandler := ops.NewHandler(store, tickets, logger)
	opsSrv := &http.Server{
		Addr:              cfg.OpsListenAddr,
		Handler:           opsHandler.Router(cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ops endpoint listening", "addr", cfg.OpsListenAddr)
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := opsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops shutdown", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// seedFile is the YAML layout the seed command loads into the registry.
// Profiles carry the provider kind under a `type` key.
type seedFile struct {
	Tokens   map[string][]string `yaml:"tokens"`
	Profiles map[string]struct {
		Type   string            `yaml:"type"`
		Params map[string]string `yaml:"params"`
	} `yaml:"profiles"`
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load tokens and profiles into the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var seed seedFile
			if err := yaml.Unmarshal(raw, &seed); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			store, err := registry.Open(cfg.RegistryDBPath)
			if err != nil {
				return fmt.Errorf("open registry: %w", err)
			}
			defer store.Close()

			ctx := cmd.Context()
			for name, p := range seed.Profiles {
				if err := store.PutProfile(ctx, name, p.Type, p.Params); err != nil {
					return fmt.Errorf("profile %q: %w", name, err)
				}
			}
			for token, profiles := range seed.Tokens {
				if err := store.PutToken(ctx, token, profiles); err != nil {
					return fmt.Errorf("token %q: %w", token, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d profiles, %d tokens\n",
				len(seed.Profiles), len(seed.Tokens))
			return nil
		},
	}
}
