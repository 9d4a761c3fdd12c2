package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/cmd/linq-to-ksql/api"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksql"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/logging"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/schema"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile  string
	schemaDir   string
	schemaFiles []string
	logLevel    string
	pretty      bool
	emitChanges bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "linq-to-ksql",
		Short:         "Compile LINQ-style query chains into ksqlDB statements",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "configuration file (YAML)")
	pf.StringVar(&flags.schemaDir, "schema-dir", "", "directory of schema catalog files")
	pf.StringSliceVarP(&flags.schemaFiles, "schema", "s", nil, "schema catalog file (repeatable)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&flags.pretty, "pretty", false, "human-readable logs")
	pf.BoolVar(&flags.emitChanges, "emit-changes", false, "append EMIT CHANGES to queries")

	rootCmd.AddCommand(newTranslateCmd(flags))
	rootCmd.AddCommand(newFilterCmd(flags))
	rootCmd.AddCommand(newDDLCmd(flags))
	rootCmd.AddCommand(newServeCmd(flags))
	return rootCmd
}

// load resolves the configuration: file first, then flags.
func (f *globalFlags) load(cmd *cobra.Command) (api.Config, error) {
	cfg, err := api.LoadConfig(f.configFile)
	if err != nil {
		return api.Config{}, err
	}
	if cmd.Flags().Changed("schema-dir") || cmd.Flags().Changed("schema") {
		cfg.SchemaDir = f.schemaDir
		cfg.SchemaFiles = f.schemaFiles
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.pretty {
		cfg.Log.Pretty = true
	}
	if f.emitChanges {
		cfg.EmitChanges = true
	}
	cfg.Log.Output = cmd.ErrOrStderr()
	return cfg, nil
}

// compiler builds the registry and translator for one-shot commands.
func (f *globalFlags) compiler(cmd *cobra.Command) (*schema.Registry, *ksql.Translator, error) {
	cfg, err := f.load(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewWithComponent(cfg.Log, "cli")
	registry, err := schema.Load(cfg.SchemaDir, cfg.SchemaFiles...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	opts := []ksql.Option{ksql.WithLogger(logger)}
	if cfg.EmitChanges {
		opts = append(opts, ksql.WithEmitChanges())
	}
	return registry, ksql.New(registry, opts...), nil
}

// inputText joins the arguments, or reads stdin when there are none or the
// only argument is "-".
func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		args = []string{string(data)}
	}
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return "", errors.New("empty input")
	}
	return text, nil
}

func newTranslateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "translate [query]",
		Short: "Translate a query chain such as orders.Where(o => o.amount > 10)",
		Example: `  linq-to-ksql translate -s schemas/orders.yaml 'orders.Where(o => o.amount > 1000).Take(5)'
  echo 'orders.Count()' | linq-to-ksql translate --schema-dir schemas`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			registry, compiler, err := flags.compiler(cmd)
			if err != nil {
				return err
			}
			statement, err := api.Translate(compiler, registry, text)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), statement)
			return err
		},
	}
}

func newFilterCmd(flags *globalFlags) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:     "filter [expression]",
		Short:   "Translate a CEL predicate over one source",
		Example: `  linq-to-ksql filter --source orders "amount > 1000.0 && region in ['EU', 'US']"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			registry, compiler, err := flags.compiler(cmd)
			if err != nil {
				return err
			}
			statement, err := api.Filter(compiler, registry, source, text)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), statement)
			return err
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "stream or table to filter")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newDDLCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ddl [source...]",
		Short: "Print CREATE STREAM/TABLE statements for registered sources",
		Long:  "Print the CREATE statement of each named source, or of every registered source when none is named.",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, compiler, err := flags.compiler(cmd)
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				names = registry.Names()
			}
			for _, name := range names {
				statement, err := compiler.DDL(name)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), statement); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the translation HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			logger := logging.NewWithComponent(cfg.Log, "api")
			srv, err := api.NewServer(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to configure server: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg.ListenAddr, srv, logger)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (default :8080)")
	return cmd
}

// serve runs the HTTP server until ctx is done, then shuts it down.
func serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
