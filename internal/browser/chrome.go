package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"github.com/eugenetaranov/router-reset-dns/internal/config"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// ChromeLauncher starts a dedicated chromium process per device.
type ChromeLauncher struct {
	logger            *zap.Logger
	cfg               config.BrowserConfig
	navigationTimeout time.Duration
}

// NewChromeLauncher creates a launcher for the given browser settings.
func NewChromeLauncher(logger *zap.Logger, cfg config.BrowserConfig, navigationTimeout time.Duration) *ChromeLauncher {
	if navigationTimeout <= 0 {
		navigationTimeout = 60 * time.Second
	}
	return &ChromeLauncher{
		logger:            logger.Named("browser"),
		cfg:               cfg,
		navigationTimeout: navigationTimeout,
	}
}

// Launch starts the browser process and opens its first tab. The process
// outlives ctx and is only stopped by Close on the returned driver.
func (l *ChromeLauncher) Launch(ctx context.Context) (Driver, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), AllocatorOptions(l.cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(l.logger.Sugar().Debugf),
	)

	d := &chromeDriver{
		logger:            l.logger,
		ctx:               tabCtx,
		navigationTimeout: l.navigationTimeout,
	}
	d.cancel = func() {
		tabCancel()
		allocCancel()
	}

	chromedp.ListenTarget(tabCtx, d.onEvent)

	// Running with no actions starts the process and attaches to the first tab.
	startCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		d.cancel()
		return nil, schemas.WrapError(schemas.KindDriver, err, "launching browser")
	}
	l.logger.Debug("Browser launched.", zap.Bool("headless", l.cfg.Headless || l.cfg.ContainerRuntime))
	return d, nil
}

// chromeDriver implements Driver over one chromedp tab.
type chromeDriver struct {
	logger            *zap.Logger
	ctx               context.Context
	cancel            context.CancelFunc
	navigationTimeout time.Duration

	// frames is the stack of entered frame elements, innermost last.
	frames  []*cdp.Node
	dialogs dialogGate

	closeOnce sync.Once
	closeErr  error
}

func (d *chromeDriver) onEvent(ev interface{}) {
	e, ok := ev.(*page.EventJavascriptDialogOpening)
	if !ok {
		return
	}
	ticket := d.dialogs.take()
	accept := ticket != nil && ticket.accept

	// Answering from inside the listener would deadlock the event loop.
	go func() {
		err := chromedp.Run(d.ctx, page.HandleJavaScriptDialog(accept))
		if ticket == nil {
			d.logger.Warn("Dismissed unexpected dialog.",
				zap.String("type", e.Type.String()),
				zap.String("message", e.Message),
				zap.Error(err))
			return
		}
		d.logger.Debug("Answered dialog.", zap.Bool("accepted", accept), zap.String("message", e.Message))
		ticket.finish(err)
	}()
}

func (d *chromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := CombineContext(d.ctx, ctx)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// idSelector matches an element by id attribute. The attribute form accepts any
// id text, including dots and colons that a #id selector would misread.
func idSelector(id string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `[id="` + r.Replace(id) + `"]`
}

// query translates a locator into a chromedp selector scoped to the current frame.
// Inside a frame, path expressions are evaluated against the frame's own
// document; DOM search would span every document of the page.
func (d *chromeDriver) query(loc schemas.Locator) (string, []chromedp.QueryOption) {
	n := len(d.frames)
	if loc.Strategy == schemas.ByPathExpression {
		if n > 0 {
			return loc.Path, []chromedp.QueryOption{byXPathInFrame(d.frames[n-1], loc.Path)}
		}
		return loc.Path, []chromedp.QueryOption{chromedp.BySearch}
	}
	opts := []chromedp.QueryOption{chromedp.ByQuery}
	if n > 0 {
		opts = append(opts, chromedp.FromNode(d.frames[n-1]))
	}
	return idSelector(loc.Path), opts
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	// Marshalling a string cannot fail.
	lit, _ := jsoniter.MarshalToString(s)
	return lit
}

// frameXPathJS runs on a frame element and returns the first node of its
// document matching the expression, or null.
const frameXPathJS = `function() {
	const doc = this.contentDocument;
	if (!doc) return null;
	return doc.evaluate(%s, doc, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
}`

func frameXPathFunc(expr string) string {
	return fmt.Sprintf(frameXPathJS, jsString(expr))
}

// byXPathInFrame selects the first match of expr inside frame's document. An
// empty result keeps the selector polling until its context ends.
func byXPathInFrame(frame *cdp.Node, expr string) chromedp.QueryOption {
	fn := frameXPathFunc(expr)
	return chromedp.ByFunc(func(ctx context.Context, _ *cdp.Node) ([]cdp.NodeID, error) {
		obj, err := dom.ResolveNode().WithNodeID(frame.NodeID).Do(ctx)
		if err != nil {
			return nil, err
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		res, exc, err := runtime.CallFunctionOn(fn).WithObjectID(obj.ObjectID).Do(ctx)
		if err != nil {
			return nil, err
		}
		if exc != nil {
			return nil, fmt.Errorf("evaluating %s in frame: %s", expr, exc.Text)
		}
		if res == nil || res.ObjectID == "" {
			return nil, nil
		}
		defer func() { _ = runtime.ReleaseObject(res.ObjectID).Do(ctx) }()

		id, err := dom.RequestNode(res.ObjectID).Do(ctx)
		if err != nil {
			return nil, err
		}
		return []cdp.NodeID{id}, nil
	})
}

func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, d.navigationTimeout)
	defer cancel()

	d.frames = nil
	if err := d.run(navCtx, chromedp.Navigate(url)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return schemas.WrapError(schemas.KindConnection, err, "loading main page")
	}
	return nil
}

func (d *chromeDriver) WaitFor(ctx context.Context, loc schemas.Locator, cond Condition) error {
	sel, opts := d.query(loc)
	if cond == Clickable {
		return d.run(ctx,
			chromedp.WaitVisible(sel, opts...),
			chromedp.WaitEnabled(sel, opts...),
		)
	}
	return d.run(ctx, chromedp.WaitReady(sel, opts...))
}

func (d *chromeDriver) Click(ctx context.Context, loc schemas.Locator) error {
	sel, opts := d.query(loc)
	return d.run(ctx, chromedp.Click(sel, append(opts, chromedp.NodeVisible)...))
}

func (d *chromeDriver) Clear(ctx context.Context, loc schemas.Locator) error {
	sel, opts := d.query(loc)
	return d.run(ctx, chromedp.Clear(sel, opts...))
}

func (d *chromeDriver) Type(ctx context.Context, loc schemas.Locator, text string) error {
	sel, opts := d.query(loc)
	return d.run(ctx, chromedp.SendKeys(sel, text, opts...))
}

func (d *chromeDriver) Value(ctx context.Context, loc schemas.Locator) (string, error) {
	sel, opts := d.query(loc)
	var value string
	if err := d.run(ctx, chromedp.Value(sel, &value, opts...)); err != nil {
		return "", err
	}
	return value, nil
}

// selectOptionJS selects the first option whose value, then visible text, equals
// the wanted string and fires change so page scripts react as to a user choice.
const selectOptionJS = `function() {
	const want = %s;
	const opts = Array.from(this.options || []);
	let match = opts.find(o => o.value === want);
	if (!match) match = opts.find(o => o.text.trim() === want);
	if (!match) return false;
	this.value = match.value;
	this.dispatchEvent(new Event('input', {bubbles: true}));
	this.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
}`

func selectOptionFunc(value string) string {
	return fmt.Sprintf(selectOptionJS, jsString(value))
}

// optionSelected decodes the result of selectOptionJS.
func optionSelected(raw []byte, value string, loc schemas.Locator) error {
	var matched bool
	if err := jsoniter.Unmarshal(raw, &matched); err != nil {
		return fmt.Errorf("decoding select result for %s: %w", loc, err)
	}
	if !matched {
		return fmt.Errorf("%w: %q in %s", ErrNoSuchOption, value, loc)
	}
	return nil
}

func (d *chromeDriver) SelectOption(ctx context.Context, loc schemas.Locator, value string) error {
	sel, opts := d.query(loc)
	fn := selectOptionFunc(value)
	var nodes []*cdp.Node
	var raw []byte
	err := d.run(ctx,
		chromedp.Nodes(sel, &nodes, opts...),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if len(nodes) == 0 {
				return fmt.Errorf("no element for %s", loc)
			}
			obj, err := dom.ResolveNode().WithNodeID(nodes[0].NodeID).Do(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

			res, exc, err := runtime.CallFunctionOn(fn).
				WithObjectID(obj.ObjectID).
				WithReturnByValue(true).
				Do(ctx)
			if err != nil {
				return err
			}
			if exc != nil {
				return fmt.Errorf("selecting %q in %s: %s", value, loc, exc.Text)
			}
			raw = res.Value
			return nil
		}),
	)
	if err != nil {
		return err
	}
	return optionSelected(raw, value, loc)
}

func (d *chromeDriver) EnterFrame(ctx context.Context, frame string) error {
	var nodes []*cdp.Node
	var opts []chromedp.QueryOption
	if n := len(d.frames); n > 0 {
		opts = append(opts, chromedp.FromNode(d.frames[n-1]))
	}

	if idx, err := strconv.Atoi(frame); err == nil {
		if err := d.run(ctx, chromedp.Nodes("iframe, frame", &nodes, append(opts, chromedp.ByQueryAll)...)); err != nil {
			return err
		}
		if idx < 0 || idx >= len(nodes) {
			return fmt.Errorf("frame index %d out of range (%d frames)", idx, len(nodes))
		}
		d.frames = append(d.frames, nodes[idx])
		return nil
	}

	name := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(frame)
	sel := fmt.Sprintf(`iframe[name="%[1]s"], frame[name="%[1]s"], iframe[id="%[1]s"], frame[id="%[1]s"]`, name)
	if err := d.run(ctx, chromedp.Nodes(sel, &nodes, append(opts, chromedp.ByQuery)...)); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("frame %q not found", frame)
	}
	d.frames = append(d.frames, nodes[0])
	return nil
}

func (d *chromeDriver) ParentFrame(_ context.Context) error {
	if n := len(d.frames); n > 0 {
		d.frames = d.frames[:n-1]
	}
	return nil
}

func (d *chromeDriver) ArmDialog(accept bool) { d.dialogs.arm(accept) }

func (d *chromeDriver) DisarmDialog() { d.dialogs.disarm() }

func (d *chromeDriver) AwaitDialog(ctx context.Context) error {
	return d.dialogs.wait(ctx)
}

// Close shuts the browser down gracefully, then releases the allocator.
func (d *chromeDriver) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(d.ctx) }()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				d.closeErr = fmt.Errorf("closing browser: %w", err)
			}
		case <-ctx.Done():
			d.closeErr = fmt.Errorf("closing browser: %w", ctx.Err())
		}
		d.cancel()
	})
	return d.closeErr
}
