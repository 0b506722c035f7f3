package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"github.com/eugenetaranov/router-reset-dns/internal/browser"
	"github.com/eugenetaranov/router-reset-dns/internal/config"
	"github.com/eugenetaranov/router-reset-dns/internal/inventory"
	"github.com/eugenetaranov/router-reset-dns/internal/observability"
	"github.com/eugenetaranov/router-reset-dns/internal/reporting"
	"github.com/eugenetaranov/router-reset-dns/internal/routerconfig"
	"github.com/eugenetaranov/router-reset-dns/internal/runner"
)

// launcherFactory creates the browser launcher for a run.
type launcherFactory func(logger *zap.Logger, cfg config.Interface) browser.Launcher

func newChromeLauncher(logger *zap.Logger, cfg config.Interface) browser.Launcher {
	return browser.NewChromeLauncher(logger, cfg.Browser(), cfg.Automation().NavigationTimeout)
}

type resetOptions struct {
	routersPath string
	modelsPath  string
	dns         string
	newPassword string
	startFrom   int
	debug       bool
}

func newResetCmd(deps dependencies) *cobra.Command {
	var opts resetOptions

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset DNS servers and/or the admin password on every router of an inventory",
		Long: `Walks the inventory file and drives each router's web panel with the UI script
of its model group. --dns triggers the DNS reset, --new-password the admin password
reset; both may be given in one run. Use --start-from to resume an interrupted run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if opts.modelsPath == "" {
				opts.modelsPath = getConfigFileFromContext(ctx)
			}
			return runReset(ctx, logger, cfg, opts, deps, cmd.OutOrStdout())
		},
	}

	flags := resetCmd.Flags()
	flags.StringP("driver-path", "d", "", "Chromium binary path (default: search PATH)")
	flags.StringVarP(&opts.routersPath, "routers", "r", "", "Inventory file with router data (required)")
	flags.StringVar(&opts.dns, "dns", "", "Comma separated list of DNS servers: 8.8.8.8,1.1.1.1")
	flags.IntVar(&opts.startFrom, "start-from", 0, "Start from data row N of the inventory (zero-based)")
	flags.Bool("skip-header", true, "Skip the first line of the inventory")
	flags.BoolVar(&opts.debug, "debug", false, "Process a single router and log at debug level")
	flags.Bool("docker-runtime", false, "Run chromium headless with container-friendly flags")
	flags.Bool("headless", false, "Run chromium headless")
	flags.StringVar(&opts.newPassword, "new-password", "", "New admin password; the password reset runs only when set")
	flags.StringVar(&opts.modelsPath, "models", "", "Model document (default: the config file)")
	flags.Int("workers", 1, "Number of routers processed in parallel")
	flags.String("report", "", "Write the run summary to this file (\"stdout\" for standard output)")
	flags.String("report-format", "json", "Run summary format: json, junit or text")
	_ = resetCmd.MarkFlagRequired("routers")

	return resetCmd
}

// runReset contains the core, testable logic of the reset command.
func runReset(ctx context.Context, logger *zap.Logger, cfg config.Interface, opts resetOptions, deps dependencies, out io.Writer) error {
	doc, err := loadModelDocument(logger, opts.modelsPath)
	if err != nil {
		return err
	}

	routersPath, err := homedir.Expand(opts.routersPath)
	if err != nil {
		return fmt.Errorf("expanding inventory path: %w", err)
	}
	rows, err := inventory.Load(routersPath, cfg.Inventory())
	if err != nil {
		return err
	}

	req := runner.Request{
		DNSServers:  splitList(opts.dns),
		NewPassword: opts.newPassword,
		StartOffset: opts.startFrom,
		Debug:       opts.debug,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	runOpts := []runner.Option{}
	if cfg.Database().URL != "" {
		sink, cleanup, err := deps.stores.Create(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize outcome store: %w", err)
		}
		if cleanup != nil {
			defer cleanup()
		}
		runOpts = append(runOpts, runner.WithSink(sink))
	}

	r := runner.New(logger, cfg, doc, deps.newLauncher(logger, cfg), runOpts...)
	summary, runErr := r.Run(ctx, req, rows)
	if summary == nil {
		return runErr
	}

	if path := cfg.Report().Path; path != "" {
		if err := writeSummary(logger, summary, cfg.Report().Format, path); err != nil {
			return errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(out, "\nRun complete. Run ID: %s\n", summary.RunID)
	for _, op := range req.Operations() {
		if c := summary.Totals[op]; c != nil {
			fmt.Fprintf(out, "  %-15s succeeded %d, skipped %d, fatal %d\n", op, c.Succeeded, c.Skipped, c.Fatal)
		}
	}
	return nil
}

// loadModelDocument reads the model document and logs its structural issues.
// Issues only affect the devices of the broken group, so the run proceeds.
func loadModelDocument(logger *zap.Logger, path string) (*routerconfig.Document, error) {
	if path == "" {
		return nil, errors.New("no model document: pass --models or --config")
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expanding model document path: %w", err)
	}
	doc, err := routerconfig.Load(path)
	if err != nil {
		return nil, err
	}
	for _, issue := range doc.Check() {
		if issue.Severity == routerconfig.SeverityError {
			logger.Error("Model document problem.", zap.String("issue", issue.String()))
			continue
		}
		logger.Warn("Model document problem.", zap.String("issue", issue.String()))
	}
	return doc, nil
}

// writeSummary handles writing the run summary using the reporting module.
func writeSummary(logger *zap.Logger, summary *schemas.RunSummary, format, path string) error {
	path, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("expanding report path: %w", err)
	}
	reporter, err := reporting.New(format, path)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			logger.Warn("Failed to close reporter cleanly.", zap.Error(err))
		}
	}()

	if err := reporter.Write(summary); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logger.Info("Run summary written.", zap.String("path", path), zap.String("format", format))
	return nil
}

// splitList splits a comma separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
