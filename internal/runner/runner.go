// Package runner walks the inventory and runs the requested operations on
// every device, isolating failures per device and per operation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"github.com/eugenetaranov/router-reset-dns/internal/browser"
	"github.com/eugenetaranov/router-reset-dns/internal/config"
	"github.com/eugenetaranov/router-reset-dns/internal/device"
	"github.com/eugenetaranov/router-reset-dns/internal/interpreter"
	"github.com/eugenetaranov/router-reset-dns/internal/inventory"
	"github.com/eugenetaranov/router-reset-dns/internal/routerconfig"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// closeTimeout bounds browser teardown, which runs even after the run is cancelled.
const closeTimeout = 30 * time.Second

// Request is what a batch run should do.
type Request struct {
	// DNSServers enables the DNS reset when non-empty.
	DNSServers []string
	// NewPassword enables the admin password reset when non-empty.
	NewPassword string
	// StartOffset is the zero-based index of the first data row to process.
	StartOffset int
	// Debug processes a single row.
	Debug bool
}

// Operations lists the operations the request asks for, DNS first.
func (r Request) Operations() []schemas.Operation {
	var ops []schemas.Operation
	if len(r.DNSServers) > 0 {
		ops = append(ops, schemas.OpResetDNS)
	}
	if r.NewPassword != "" {
		ops = append(ops, schemas.OpResetPassword)
	}
	return ops
}

// Validate checks the request before any device is touched.
func (r Request) Validate() error {
	if len(r.Operations()) == 0 {
		return errors.New("nothing to do: give DNS servers, a new password, or both")
	}
	if r.StartOffset < 0 {
		return fmt.Errorf("start offset must not be negative, got %d", r.StartOffset)
	}
	var errs error
	for _, s := range r.DNSServers {
		if ip := net.ParseIP(s); ip == nil || ip.To4() == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid DNS server %q: not an IPv4 address", s))
		}
	}
	return errs
}

// Runner executes a Request over inventory rows.
type Runner struct {
	logger   *zap.Logger
	doc      *routerconfig.Document
	launcher browser.Launcher
	sink     schemas.ResultSink

	columns    config.InventoryColumns
	automation config.AutomationConfig
	workers    int
	limiter    *rate.Limiter

	newRunID func() string
	now      func() time.Time
	sleep    interpreter.SleepFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithSink records each device result as it completes.
func WithSink(sink schemas.ResultSink) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithSleep replaces the settle pause of every session.
func WithSleep(fn interpreter.SleepFunc) Option {
	return func(r *Runner) { r.sleep = fn }
}

// WithRunID fixes the run identifier.
func WithRunID(id string) Option {
	return func(r *Runner) { r.newRunID = func() string { return id } }
}

// New creates a runner from the application settings.
func New(logger *zap.Logger, cfg config.Interface, doc *routerconfig.Document, launcher browser.Launcher, opts ...Option) *Runner {
	rc := cfg.Runner()
	r := &Runner{
		logger:     logger.Named("runner"),
		doc:        doc,
		launcher:   launcher,
		columns:    cfg.Inventory().Columns,
		automation: cfg.Automation(),
		workers:    rc.Workers,
		newRunID:   uuid.NewString,
		now:        time.Now,
		sleep:      interpreter.Sleep,
	}
	if r.workers < 1 {
		r.workers = 1
	}
	if rc.LaunchInterval > 0 {
		r.limiter = rate.NewLimiter(rate.Every(rc.LaunchInterval), 1)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes rows[req.StartOffset:] (a single row in debug mode) and
// returns the run summary. Device outcomes never fail the run; only an invalid
// request or cancellation of ctx does.
func (r *Runner) Run(ctx context.Context, req Request, rows []inventory.Row) (*schemas.RunSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	limit := 0
	if req.Debug {
		limit = 1
	}
	rows = inventory.Window(rows, req.StartOffset, limit)

	runID := r.newRunID()
	summary := schemas.NewRunSummary(runID, r.now())
	log := r.logger.With(zap.String("run_id", runID))
	log.Info("Starting batch run.",
		zap.Int("devices", len(rows)),
		zap.Int("workers", r.workers),
		zap.Any("operations", req.Operations()))

	results := make([]schemas.DeviceResult, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, row := range rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = r.processRow(gctx, log, req, row)
			if r.sink != nil {
				if err := r.sink.Record(gctx, runID, results[i]); err != nil {
					log.Warn("Failed to record device result.", zap.Int("row", row.Index), zap.Error(err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range results {
		if res.Operations == nil {
			// Never started because the run was cancelled.
			continue
		}
		summary.Record(results[i])
	}
	summary.FinishedAt = r.now()

	for _, op := range req.Operations() {
		c := summary.Totals[op]
		if c == nil {
			c = &schemas.Counts{}
		}
		log.Info("Operation totals.",
			zap.String("operation", string(op)),
			zap.Int("succeeded", c.Succeeded),
			zap.Int("skipped", c.Skipped),
			zap.Int("fatal", c.Fatal))
	}

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("batch run interrupted: %w", err)
	}
	log.Info("Batch run finished.", zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)))
	return summary, nil
}

// processRow never returns without an outcome for every requested operation.
func (r *Runner) processRow(ctx context.Context, log *zap.Logger, req Request, row inventory.Row) schemas.DeviceResult {
	ops := req.Operations()
	res := schemas.DeviceResult{Row: row.Index}
	log = log.With(zap.Int("row", row.Index), zap.Int("line", row.Line))

	rec, err := inventory.Record(row, r.columns)
	res.Address, res.Model = rec.Address, rec.ModelName
	if err != nil {
		return r.skipAll(log, res, ops, err)
	}
	log = log.With(zap.String("address", rec.Address), zap.String("model", rec.ModelName))

	groupKey, group, err := r.doc.ResolveGroup(rec.ModelName)
	if err != nil {
		return r.skipAll(log, res, ops, err)
	}
	res.Group = groupKey
	log = log.With(zap.String("group", groupKey))

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return r.skipAll(log, res, ops, schemas.WrapError(schemas.KindDriver, err, "waiting for launch slot"))
		}
	}
	driver, err := r.launcher.Launch(ctx)
	if err != nil {
		return r.skipAll(log, res, ops, schemas.WithPhase(err, "launch"))
	}

	interp := interpreter.New(driver, log, interpreter.Options{
		ElementTimeout: r.automation.ElementTimeout,
		DialogTimeout:  r.automation.DialogTimeout,
	}).WithSleep(r.sleep)
	sess := device.NewSession(rec, groupKey, group, driver, interp, log, device.Timings{
		LoginSettle: r.automation.LoginSettle,
		SubmitWait:  r.automation.SubmitWait,
		RebootWait:  r.automation.RebootWait,
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		_ = sess.Close(closeCtx)
	}()

	for i, op := range ops {
		result := r.runOperation(ctx, log, sess, req, op)
		res.Operations = append(res.Operations, result)
		// An unreachable device fails every later operation the same way.
		if result.Outcome.Kind == schemas.KindConnection {
			return r.skipWith(log, res, ops[i+1:], result.Outcome)
		}
	}
	return res
}

// runOperation isolates one operation: errors and panics become its outcome.
func (r *Runner) runOperation(ctx context.Context, log *zap.Logger, sess *device.Session, req Request, op schemas.Operation) (result schemas.OperationResult) {
	log = log.With(zap.String("operation", string(op)))
	start := r.now()
	result = schemas.OperationResult{Operation: op, StartedAt: start}

	defer func() {
		if p := recover(); p != nil {
			log.Error("Operation panicked.", zap.Any("panic", p), zap.Stack("stack"))
			result.Outcome = schemas.Fatal(fmt.Sprintf("panic: %v", p))
		}
		result.Duration = r.now().Sub(start)
		logOutcome(log, result)
	}()

	var err error
	switch op {
	case schemas.OpResetDNS:
		err = sess.ResetDNS(ctx, req.DNSServers)
	case schemas.OpResetPassword:
		err = sess.ResetPassword(ctx, req.NewPassword)
	default:
		err = fmt.Errorf("unknown operation %q", op)
	}
	result.Outcome = schemas.OutcomeFromError(err)
	return result
}

func (r *Runner) skipAll(log *zap.Logger, res schemas.DeviceResult, ops []schemas.Operation, err error) schemas.DeviceResult {
	return r.skipWith(log, res, ops, schemas.OutcomeFromError(err))
}

func (r *Runner) skipWith(log *zap.Logger, res schemas.DeviceResult, ops []schemas.Operation, out schemas.Outcome) schemas.DeviceResult {
	now := r.now()
	for _, op := range ops {
		result := schemas.OperationResult{Operation: op, Outcome: out, StartedAt: now}
		logOutcome(log.With(zap.String("operation", string(op))), result)
		res.Operations = append(res.Operations, result)
	}
	return res
}

func logOutcome(log *zap.Logger, res schemas.OperationResult) {
	fields := []zap.Field{
		zap.String("status", string(res.Outcome.Status)),
		zap.Duration("duration", res.Duration),
	}
	if res.Outcome.Reason != "" {
		fields = append(fields, zap.String("kind", string(res.Outcome.Kind)), zap.String("reason", res.Outcome.Reason))
	}
	switch res.Outcome.Status {
	case schemas.StatusSucceeded:
		log.Info("Operation succeeded.", fields...)
	case schemas.StatusSkipped:
		log.Warn("Operation skipped.", fields...)
	default:
		log.Error("Operation failed.", fields...)
	}
}
