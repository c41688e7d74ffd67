package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
	"github.com/sam-berry/ecfr-lake/api"
	"github.com/sam-berry/ecfr-lake/config"
	"github.com/sam-berry/ecfr-lake/dao"
	"github.com/sam-berry/ecfr-lake/service"
	"github.com/sam-berry/ecfr-lake/store"
	"github.com/spf13/cobra"
)

var errVerificationFailed = errors.New("verification found mismatches")

// app carries what every subcommand needs once the root has opened the store.
type app struct {
	configPath string
	envFile    string
	cfg        *config.Config
	db         *sql.DB
}

// execute runs the command line in args. The store is closed even when a
// subcommand fails.
func execute(ctx context.Context, args []string, out io.Writer) error {
	root, a := newRootCmd()
	defer a.close()
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:           "ecfrlake",
		Short:         "Load, analyze and verify eCFR agency and correction data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the config when present")

	root.AddCommand(
		&cobra.Command{
			Use:   "ingest",
			Short: "Load agencies and corrections into the store",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.ingest(cmd.Context(), cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "metrics",
			Short: "Recompute agency metrics and yearly trends",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.metrics(cmd.Context(), cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "export",
			Short: "Write the JSON exports",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.export(cmd.Context(), cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "verify",
			Short: "Re-derive checksums and metrics and report mismatches",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.verify(cmd.Context(), cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "summary",
			Short: "Print the summary report",
			RunE: func(cmd *cobra.Command, args []string) error {
				report, err := a.exportService().GenerateSummaryReport(cmd.Context())
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), report)
				return err
			},
		},
		&cobra.Command{
			Use:   "run",
			Short: "Ingest, compute metrics, export and verify in one pass",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, out := cmd.Context(), cmd.OutOrStdout()
				steps := []func(context.Context, io.Writer) error{a.ingest, a.metrics, a.export, a.verify}
				for _, step := range steps {
					if err := step(ctx, out); err != nil {
						return err
					}
				}
				report, err := a.exportService().GenerateSummaryReport(ctx)
				if err != nil {
					return err
				}
				_, err = io.WriteString(out, report)
				return err
			},
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the HTTP API",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.serve(cmd.Context())
			},
		},
	)
	return root, a
}

func (a *app) open(ctx context.Context) error {
	if a.envFile != "" {
		if _, err := os.Stat(a.envFile); err == nil {
			if err := godotenv.Load(a.envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", a.envFile, err)
			}
		}
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	level, _ := cfg.Level()
	log.SetLevel(level)

	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, store.Options{RequireTLS: cfg.Database.RequireTLS})
	if err != nil {
		return err
	}
	if err := dao.ApplySchema(ctx, db); err != nil {
		db.Close()
		return err
	}
	a.cfg, a.db = cfg, db
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *app) ingestionService() *service.IngestionService {
	return &service.IngestionService{Db: a.db}
}

func (a *app) metricsService() *service.MetricsService {
	return &service.MetricsService{Db: a.db}
}

func (a *app) exportService() *service.ExportService {
	return &service.ExportService{Db: a.db}
}

func (a *app) verificationService() *service.VerificationService {
	return &service.VerificationService{
		Db:         a.db,
		SampleSize: a.cfg.Verify.SampleSize,
		ExportDir:  a.cfg.Export.Dir,
	}
}

func (a *app) ingest(ctx context.Context, out io.Writer) error {
	results, err := a.ingestionService().LoadAll(ctx, a.cfg.Sources.Agencies, a.cfg.Sources.Corrections)
	if err != nil {
		return err
	}
	return printJSON(out, results)
}

func (a *app) metrics(ctx context.Context, out io.Writer) error {
	refresh, err := a.metricsService().Refresh(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, map[string]int{
		"agency_metrics": len(refresh.Agencies),
		"yearly_trends":  len(refresh.Yearly),
	})
}

func (a *app) export(ctx context.Context, out io.Writer) error {
	files, err := a.exportService().ExportAll(ctx, a.cfg.Export.Dir)
	if err != nil {
		return err
	}
	return printJSON(out, files)
}

func (a *app) verify(ctx context.Context, out io.Writer) error {
	report, err := a.verificationService().Verify(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(out, report); err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("%w: %d", errVerificationFailed, len(report.Mismatches))
	}
	return nil
}

func (a *app) serve(ctx context.Context) error {
	server := fiber.New(fiber.Config{DisableStartupMessage: true})
	admin := server.Group("/admin")

	(&api.IngestionAPI{
		Router:           admin,
		IngestionService: a.ingestionService(),
		AgenciesFile:     a.cfg.Sources.Agencies,
		CorrectionsFile:  a.cfg.Sources.Corrections,
	}).Register()
	(&api.MetricsAPI{Router: server, MetricsService: a.metricsService()}).Register()
	(&api.VerificationAPI{Router: admin, VerificationService: a.verificationService()}).Register()
	(&api.ExportAPI{Router: admin, ExportService: a.exportService(), ExportDir: a.cfg.Export.Dir}).Register()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		log.Infof("Listening on %s", a.cfg.HTTP.Addr)
		errs <- server.Listen(a.cfg.HTTP.Addr)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		log.Info("Shutting down")
		return server.Shutdown()
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
