// Package browser provides the browser capability the interpreter drives: one
// Driver per device, backed by a dedicated chromium process through chromedp.
package browser

import (
	"context"
	"errors"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
)

// ErrNoSuchOption is returned by SelectOption when no option matches.
var ErrNoSuchOption = errors.New("no such option")

// Condition is what WaitFor waits for.
type Condition int

const (
	// Present means the element exists in the current frame.
	Present Condition = iota
	// Clickable means the element is visible and enabled.
	Clickable
)

func (c Condition) String() string {
	if c == Clickable {
		return "clickable"
	}
	return "present"
}

// Driver is the set of browser operations one device session needs. All
// locator-based calls resolve against the current frame. Implementations are
// owned by a single session and are not safe for concurrent use.
type Driver interface {
	// Navigate loads url in the top-level frame and resets the frame context.
	Navigate(ctx context.Context, url string) error
	// WaitFor blocks until loc satisfies cond or ctx is done.
	WaitFor(ctx context.Context, loc schemas.Locator, cond Condition) error
	Click(ctx context.Context, loc schemas.Locator) error
	Clear(ctx context.Context, loc schemas.Locator) error
	Type(ctx context.Context, loc schemas.Locator, text string) error
	// SelectOption picks the option whose value or visible text equals value.
	SelectOption(ctx context.Context, loc schemas.Locator, value string) error
	// Value reads the element's current value property.
	Value(ctx context.Context, loc schemas.Locator) (string, error)
	// EnterFrame switches into a child frame addressed by name, id or numeric index.
	EnterFrame(ctx context.Context, frame string) error
	// ParentFrame switches to the parent frame. It is a no-op at the top level.
	ParentFrame(ctx context.Context) error
	// ArmDialog declares that the next native dialog is expected and whether to accept it.
	// Dialogs that open while unarmed are dismissed.
	ArmDialog(accept bool)
	// DisarmDialog withdraws an armed expectation whose trigger never ran.
	DisarmDialog()
	// AwaitDialog blocks until the armed dialog has been handled or ctx is done.
	AwaitDialog(ctx context.Context) error
	// Close releases the browser. It is safe to call more than once.
	Close(ctx context.Context) error
}

// Launcher starts one browser per device.
type Launcher interface {
	Launch(ctx context.Context) (Driver, error)
}
