package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/orian/clickguard/catalog"
	"github.com/orian/clickguard/charts"
	"github.com/orian/clickguard/config"
	"github.com/orian/clickguard/logging"
	"github.com/orian/clickguard/models"
)

// version is set at build time.
var version = "dev"

// app carries what every command needs after configuration is loaded.
type app struct {
	cfgFile string
	cfg     *config.Config
	log     *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "clickguard",
		Short: "Version-aware query gateway for ClickHouse monitoring",
		Long: `clickguard serves a catalog of monitoring queries and charts against one or
more ClickHouse servers. It picks the SQL variant matching each server's
version, rejects unsafe ad-hoc SQL and reports failures as typed errors.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, used, err := config.Load(a.cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logging.New(cfg.LogFormat, cfg.LogLevel, os.Stderr)
			logging.SetGlobal(a.log)
			if used != "" {
				a.log.Debug("using config file", "path", used)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: ./clickguard.yaml)")
	flags.String("listen", config.DefaultListen, "HTTP listen address")
	flags.String("history-path", config.DefaultHistoryPath, "DuckDB query history file (empty disables history)")
	flags.String("log-format", config.DefaultLogFormat, "log format (json|console)")
	flags.String("log-level", config.DefaultLogLevel, "log level (debug|info|warn|error)")
	flags.Int("max-execution-time", config.DefaultMaxExecutionTime, "per-query time limit in seconds")
	flags.Int("max-concurrency", config.DefaultMaxConcurrency, "parallel sub-queries per chart")
	flags.Bool("secure", false, "use TLS for every host")

	_ = root.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"json", "console"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newServeCmd(a),
		newChartCmd(a),
		newCatalogCmd(a),
		newCheckCmd(a),
		newQueryCmd(a),
	)
	return root
}

// openHistory returns the DuckDB store, or a no-op store when history is
// disabled.
func (a *app) openHistory() (models.HistoryStore, error) {
	if a.cfg.HistoryPath == "" {
		a.log.Info("query history disabled")
		return nopHistory{}, nil
	}
	h, err := NewDuckDBHistory(a.cfg.HistoryPath, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history: %w", err)
	}
	a.log.Info("query history initialized", "path", a.cfg.HistoryPath)
	return h, nil
}

// newService connects to the configured hosts and wires a QueryService.
// The returned func releases everything.
func (a *app) newService() (*QueryService, func(), error) {
	pool, err := NewHostPool(a.cfg, a.log)
	if err != nil {
		return nil, nil, err
	}
	history, err := a.openHistory()
	if err != nil {
		_ = pool.Close()
		return nil, nil, err
	}

	svc := NewQueryService(pool, catalog.Default(), charts.Default(), history, a.log, ServiceOptions{
		Timeout:        time.Duration(a.cfg.MaxExecutionTime) * time.Second,
		MaxConcurrency: a.cfg.MaxConcurrency,
	})
	cleanup := func() {
		if err := history.Close(); err != nil {
			a.log.Warn("failed to close history", "error", err)
		}
		if err := pool.Close(); err != nil {
			a.log.Warn("failed to close connections", "error", err)
		}
	}
	return svc, cleanup, nil
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, cleanup, err := a.newService()
			if err != nil {
				return err
			}
			defer cleanup()

			srv := &http.Server{
				Addr:              a.cfg.Listen,
				Handler:           NewServer(svc, a.log).Routes(a.cfg.CORSOrigins),
				ReadHeaderTimeout: 10 * time.Second,
			}

			eg, egctx := errgroup.WithContext(ctx)
			srv.BaseContext = func(net.Listener) context.Context { return egctx }

			eg.Go(func() error {
				a.log.Info("starting server", "addr", a.cfg.Listen, "hosts", len(a.cfg.Hosts))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			})
			eg.Go(func() error {
				<-egctx.Done()
				a.log.Info("shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return eg.Wait()
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
