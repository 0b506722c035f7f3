package browser

import (
	"context"
	"errors"
	"sync"
)

// errNoDialogArmed is returned by AwaitDialog when ArmDialog was not called first.
var errNoDialogArmed = errors.New("no dialog armed")

type dialogTicket struct {
	accept bool
	done   chan struct{}
	err    error
}

func (t *dialogTicket) finish(err error) {
	t.err = err
	close(t.done)
}

// dialogGate pairs an expected native dialog with the event that opens it.
// The page blocks while a dialog is open, so the expectation is armed before
// the triggering click and the dialog is answered from the event listener.
type dialogGate struct {
	mu    sync.Mutex
	armed *dialogTicket
	last  *dialogTicket
}

func (g *dialogGate) arm(accept bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t := &dialogTicket{accept: accept, done: make(chan struct{})}
	g.armed, g.last = t, t
}

// disarm drops a pending expectation, so the next dialog is dismissed again.
func (g *dialogGate) disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed, g.last = nil, nil
}

// take consumes the armed ticket, or returns nil for an unexpected dialog.
func (g *dialogGate) take() *dialogTicket {
	g.mu.Lock()
	defer g.mu.Unlock()
	t := g.armed
	g.armed = nil
	return t
}

func (g *dialogGate) wait(ctx context.Context) error {
	g.mu.Lock()
	t := g.last
	g.mu.Unlock()
	if t == nil {
		return errNoDialogArmed
	}

	defer func() {
		g.mu.Lock()
		if g.armed == t {
			g.armed = nil
		}
		if g.last == t {
			g.last = nil
		}
		g.mu.Unlock()
	}()

	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
