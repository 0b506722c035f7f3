// Package interpreter executes declarative UI action steps against a browser
// driver. Every element interaction is preceded by a bounded wait, and a wait
// that expires becomes an element-not-found failure of the current phase.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"github.com/eugenetaranov/router-reset-dns/internal/browser"
	"go.uber.org/zap"
)

// SleepFunc pauses for d unless ctx ends first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Options holds the interpreter timings.
type Options struct {
	// ElementTimeout bounds each element wait together with the action that follows it.
	ElementTimeout time.Duration
	// DialogTimeout bounds how long a confirmation dialog may take to appear.
	DialogTimeout time.Duration
}

// Interpreter runs steps on one driver. It is owned by a single device session.
type Interpreter struct {
	driver browser.Driver
	logger *zap.Logger
	opts   Options
	sleep  SleepFunc
}

// New creates an interpreter for driver.
func New(driver browser.Driver, logger *zap.Logger, opts Options) *Interpreter {
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = 60 * time.Second
	}
	if opts.DialogTimeout <= 0 {
		opts.DialogTimeout = 10 * time.Second
	}
	return &Interpreter{
		driver: driver,
		logger: logger,
		opts:   opts,
		sleep:  Sleep,
	}
}

// WithSleep replaces the pause used for settle delays.
func (in *Interpreter) WithSleep(fn SleepFunc) *Interpreter {
	in.sleep = fn
	return in
}

// Pause waits d, honouring ctx.
func (in *Interpreter) Pause(ctx context.Context, d time.Duration) error {
	if err := in.sleep(ctx, d); err != nil {
		return interrupted(err)
	}
	return nil
}

func interrupted(err error) error {
	return schemas.WrapError(schemas.KindDriver, err, "interrupted")
}

// bounded runs fn under the element timeout. A deadline hit inside the bound
// maps to element not found; cancellation of ctx itself is reported as such.
func (in *Interpreter) bounded(ctx context.Context, loc schemas.Locator, what string, fn func(context.Context) error) error {
	bctx, cancel := context.WithTimeout(ctx, in.opts.ElementTimeout)
	defer cancel()

	err := fn(bctx)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return interrupted(ctx.Err())
	case bctx.Err() != nil:
		in.logger.Warn("Element did not become ready.",
			zap.Stringer("locator", loc),
			zap.String("action", what),
			zap.Duration("timeout", in.opts.ElementTimeout))
		return schemas.ElementNotFound(loc, err)
	default:
		var opErr *schemas.OpError
		if errors.As(err, &opErr) {
			return err
		}
		return schemas.WrapError(schemas.KindDriver, err, "%s %s", what, loc)
	}
}

// WaitPresent waits until loc exists in the current frame.
func (in *Interpreter) WaitPresent(ctx context.Context, loc schemas.Locator) error {
	return in.bounded(ctx, loc, "wait", func(ctx context.Context) error {
		return in.driver.WaitFor(ctx, loc, browser.Present)
	})
}

// Click waits for loc to be clickable and clicks it.
func (in *Interpreter) Click(ctx context.Context, loc schemas.Locator) error {
	return in.bounded(ctx, loc, "click", func(ctx context.Context) error {
		if err := in.driver.WaitFor(ctx, loc, browser.Clickable); err != nil {
			return err
		}
		return in.driver.Click(ctx, loc)
	})
}

// Fill waits for loc, clears it and types text.
func (in *Interpreter) Fill(ctx context.Context, loc schemas.Locator, text string) error {
	return in.bounded(ctx, loc, "fill", func(ctx context.Context) error {
		if err := in.driver.WaitFor(ctx, loc, browser.Present); err != nil {
			return err
		}
		if err := in.driver.Clear(ctx, loc); err != nil {
			return err
		}
		return in.driver.Type(ctx, loc, text)
	})
}

// Select waits for loc and picks the option matching value.
func (in *Interpreter) Select(ctx context.Context, loc schemas.Locator, value string) error {
	return in.bounded(ctx, loc, "select", func(ctx context.Context) error {
		if err := in.driver.WaitFor(ctx, loc, browser.Clickable); err != nil {
			return err
		}
		err := in.driver.SelectOption(ctx, loc, value)
		if errors.Is(err, browser.ErrNoSuchOption) {
			return schemas.WrapError(schemas.KindElementNotFound, err, "option %q not found in %s", value, loc)
		}
		return err
	})
}

// EnsureSelected selects want in loc unless it is already the current value.
// It reports whether a selection was made.
func (in *Interpreter) EnsureSelected(ctx context.Context, loc schemas.Locator, want string) (bool, error) {
	var current string
	err := in.bounded(ctx, loc, "read", func(ctx context.Context) error {
		if err := in.driver.WaitFor(ctx, loc, browser.Present); err != nil {
			return err
		}
		v, err := in.driver.Value(ctx, loc)
		current = v
		return err
	})
	if err != nil {
		return false, err
	}
	if current == want {
		in.logger.Debug("Option already selected.", zap.Stringer("locator", loc), zap.String("value", want))
		return false, nil
	}
	in.logger.Info("Changing selection.", zap.Stringer("locator", loc), zap.String("from", current), zap.String("to", want))
	if err := in.Select(ctx, loc, want); err != nil {
		return false, err
	}
	return true, nil
}

// EnterFrame switches into the named or indexed child frame.
func (in *Interpreter) EnterFrame(ctx context.Context, frame string) error {
	bctx, cancel := context.WithTimeout(ctx, in.opts.ElementTimeout)
	defer cancel()
	if err := in.driver.EnterFrame(bctx, frame); err != nil {
		if ctx.Err() != nil {
			return interrupted(ctx.Err())
		}
		return schemas.WrapError(schemas.KindElementNotFound, err, "frame not found: %s", frame)
	}
	return nil
}

// ParentFrame switches to the parent frame.
func (in *Interpreter) ParentFrame(ctx context.Context) error {
	if err := in.driver.ParentFrame(ctx); err != nil {
		return schemas.WrapError(schemas.KindDriver, err, "switching to parent frame")
	}
	return nil
}

// FillAddress writes an IPv4 address into locs. In split mode each location
// receives one octet, otherwise the whole address goes to the first location.
func (in *Interpreter) FillAddress(ctx context.Context, locs []schemas.Locator, address string, split bool) error {
	if len(locs) == 0 {
		return schemas.NewError(schemas.KindConfigInvalid, "address field has no location")
	}
	if !split {
		return in.Fill(ctx, locs[0], address)
	}
	octets := strings.Split(address, ".")
	if len(octets) != len(locs) {
		return schemas.NewError(schemas.KindConfigInvalid,
			fmt.Sprintf("address %s has %d octets but the field has %d locations", address, len(octets), len(locs)))
	}
	for i, loc := range locs {
		if err := in.Fill(ctx, loc, octets[i]); err != nil {
			return err
		}
	}
	return nil
}

// SubmitOptions controls Submit.
type SubmitOptions struct {
	// Confirm expects a native dialog after the click and accepts it.
	Confirm bool
	// Wait is the pause after the submit has been handled.
	Wait time.Duration
}

// Submit clicks loc, answers the confirmation dialog when one is expected and
// then pauses for the page to apply the change.
func (in *Interpreter) Submit(ctx context.Context, loc schemas.Locator, opts SubmitOptions) error {
	if opts.Confirm {
		in.driver.ArmDialog(true)
	}
	if err := in.Click(ctx, loc); err != nil {
		if opts.Confirm {
			in.driver.DisarmDialog()
		}
		return err
	}
	if opts.Confirm {
		if err := in.awaitDialog(ctx); err != nil {
			return err
		}
	}
	return in.Pause(ctx, opts.Wait)
}

func (in *Interpreter) awaitDialog(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, in.opts.DialogTimeout)
	defer cancel()
	if err := in.driver.AwaitDialog(dctx); err != nil {
		if ctx.Err() != nil {
			return interrupted(ctx.Err())
		}
		return schemas.WrapError(schemas.KindElementNotFound, err, "confirmation dialog not shown")
	}
	in.logger.Debug("Confirmation dialog accepted.")
	return nil
}

// RunPhase executes steps in order and stops at the first failure, which is
// tagged with phase.
//
// A frame step first returns to the parent frame, so consecutive frame steps
// move between sibling frames. A select step clicks the element before
// choosing the option.
func (in *Interpreter) RunPhase(ctx context.Context, phase string, steps []schemas.ActionStep) error {
	log := in.logger.With(zap.String("phase", phase))
	log.Debug("Running phase.", zap.Int("steps", len(steps)))

	for i, step := range steps {
		log.Debug("Step.", zap.Int("index", i), zap.Stringer("step", step))
		var err error
		switch step.Kind {
		case schemas.StepClick:
			err = in.Click(ctx, step.Locator)
		case schemas.StepSelect:
			if err = in.Click(ctx, step.Locator); err == nil {
				err = in.Select(ctx, step.Locator, step.Value)
			}
		case schemas.StepFrame:
			if err = in.ParentFrame(ctx); err == nil {
				err = in.EnterFrame(ctx, step.Frame)
			}
		case schemas.StepParentFrame:
			err = in.ParentFrame(ctx)
		default:
			err = schemas.NewError(schemas.KindConfigInvalid, fmt.Sprintf("unknown step kind %q", step.Kind))
		}
		if err != nil {
			log.Warn("Step failed.", zap.Int("index", i), zap.Stringer("step", step), zap.Error(err))
			return schemas.WithPhase(err, phase)
		}
	}
	return nil
}

// RunConfirmedPhase runs steps expecting one of them to open a confirmation
// dialog, which is accepted.
func (in *Interpreter) RunConfirmedPhase(ctx context.Context, phase string, steps []schemas.ActionStep) error {
	in.driver.ArmDialog(true)
	if err := in.RunPhase(ctx, phase, steps); err != nil {
		in.driver.DisarmDialog()
		return err
	}
	return schemas.WithPhase(in.awaitDialog(ctx), phase)
}
