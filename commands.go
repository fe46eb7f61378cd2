package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parisxmas/TenderDesk/internal/auth"
	"github.com/parisxmas/TenderDesk/internal/config"
	"github.com/parisxmas/TenderDesk/internal/db"
	"github.com/parisxmas/TenderDesk/internal/handler"
	"github.com/parisxmas/TenderDesk/internal/intake"
	"github.com/parisxmas/TenderDesk/internal/logging"
	"github.com/parisxmas/TenderDesk/internal/repository"
	"github.com/parisxmas/TenderDesk/internal/router"
	"github.com/parisxmas/TenderDesk/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "tenderdesk",
		Short:        "Tender submission intake service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")

	root.AddCommand(newServeCmd(&configPath), newTokenCmd(&configPath), newNormalizeCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, GelfAddr: cfg.GelfAddr})
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		return err
	}
	repo, err := repository.NewTenderRepo(gdb, 0)
	if err != nil {
		return err
	}

	var metrics *intake.Metrics
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metrics, err = intake.NewMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		metricsHandler = promhttp.Handler()
	}

	pipeline := intake.New(cfg.IntakeOptions(), logger, metrics)
	svc := service.NewTenderService(pipeline, repo, logger)
	r := router.New(router.Options{
		JWTSecret:  cfg.JWTSecret,
		Logger:     logger,
		Metrics:    metricsHandler,
		WriteRoles: cfg.WriteRoles,
	}, handler.NewTenderHandler(svc, logger))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		opts := pipeline.Options()
		logger.Info("tenderdesk starting", "addr", cfg.HTTPAddr, "upload_root", opts.UploadRoot,
			"max_files", opts.MaxFiles, "max_file_bytes", opts.MaxFileBytes, "strict_coercion", opts.StrictCoercion)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newTokenCmd(configPath *string) *cobra.Command {
	var userID, email, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed bearer token for development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			tok, err := auth.GenerateToken(cfg.JWTSecret, userID, email, role, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", "officer", "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newNormalizeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [file]",
		Short: "Normalize a JSON map of form fields and print the result",
		Long: `Reads {"field": "value"} or {"field": ["value", ...]} from the file or stdin,
runs the schema normalizer and prints the normalized record with its warnings.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return normalize(in, cmd.OutOrStdout(), cfg.DefaultCurrency, slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)))
		},
	}
}

func normalize(in io.Reader, out io.Writer, currency string, logger *slog.Logger) error {
	var raw map[string]any
	if err := json.NewDecoder(in).Decode(&raw); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	fields := make(map[string][]string, len(raw))
	for name, v := range raw {
		switch t := v.(type) {
		case string:
			fields[name] = []string{t}
		case []any:
			for _, el := range t {
				s, ok := el.(string)
				if !ok {
					b, _ := json.Marshal(el)
					s = string(b)
				}
				fields[name] = append(fields[name], s)
			}
		default:
			b, _ := json.Marshal(t)
			fields[name] = []string{string(b)}
		}
	}

	normalized, warnings := intake.NewNormalizer(intake.DefaultSchema(), currency, logger).Normalize(fields)
	if warnings == nil {
		warnings = []intake.Warning{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"normalized": normalized, "warnings": warnings})
}
