package schemas

import "context"

// -- Store Interface --

// ResultSink receives every device result of a run as soon as the device is
// finished. Implementations must be safe for concurrent use; the runner calls
// Record from its worker goroutines.
type ResultSink interface {
	// Record persists the operations attempted on one device.
	Record(ctx context.Context, runID string, res DeviceResult) error
}
