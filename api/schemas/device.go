package schemas

import (
	"errors"
	"net"
	"net/url"
	"time"
)

// DeviceRecord is one router taken from the inventory.
type DeviceRecord struct {
	Row       int    `json:"row"`
	Address   string `json:"address"`
	Port      string `json:"port"`
	Username  string `json:"-"`
	Password  string `json:"-"`
	ModelName string `json:"model"`
}

// Scheme is https when the port is 443, http otherwise.
func (d DeviceRecord) Scheme() string {
	if d.Port == "443" {
		return "https"
	}
	return "http"
}

// MainPageURL builds scheme://[user:pass@]host[:port]/. Credentials are embedded
// only when basicAuth is set.
func (d DeviceRecord) MainPageURL(basicAuth bool) string {
	u := url.URL{Scheme: d.Scheme(), Host: d.Address, Path: "/"}
	if d.Port != "" {
		u.Host = net.JoinHostPort(d.Address, d.Port)
	}
	if basicAuth {
		u.User = url.UserPassword(d.Username, d.Password)
	}
	return u.String()
}

// Operation is a top-level action the runner can request for a device.
type Operation string

const (
	OpResetDNS      Operation = "reset-dns"
	OpResetPassword Operation = "reset-password"
)

// OutcomeStatus is the tri-state result of one operation on one device.
type OutcomeStatus string

const (
	StatusSucceeded OutcomeStatus = "succeeded"
	StatusSkipped   OutcomeStatus = "skipped"
	StatusFatal     OutcomeStatus = "fatal"
)

// Outcome is the final result of one operation on one device.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Kind   ErrorKind     `json:"kind,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

func Succeeded() Outcome { return Outcome{Status: StatusSucceeded} }

func Skipped(kind ErrorKind, reason string) Outcome {
	return Outcome{Status: StatusSkipped, Kind: kind, Reason: reason}
}

func Fatal(reason string) Outcome {
	return Outcome{Status: StatusFatal, Kind: KindDriver, Reason: reason}
}

// OutcomeFromError converts an operation error into its outcome. A nil error succeeds.
func OutcomeFromError(err error) Outcome {
	if err == nil {
		return Succeeded()
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		if opErr.Kind.Fatal() {
			return Fatal(err.Error())
		}
		return Skipped(opErr.Kind, opErr.Reason())
	}
	return Fatal(err.Error())
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return string(o.Status)
	}
	return string(o.Status) + "(" + o.Reason + ")"
}

// OperationResult records one operation attempted on a device.
type OperationResult struct {
	Operation Operation     `json:"operation"`
	Outcome   Outcome       `json:"outcome"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// DeviceResult collects everything the runner did for one inventory row.
type DeviceResult struct {
	Row        int               `json:"row"`
	Address    string            `json:"address"`
	Model      string            `json:"model"`
	Group      string            `json:"group,omitempty"`
	Operations []OperationResult `json:"operations"`
}

// Outcome returns the outcome recorded for op, if any.
func (r DeviceResult) Outcome(op Operation) (Outcome, bool) {
	for _, res := range r.Operations {
		if res.Operation == op {
			return res.Outcome, true
		}
	}
	return Outcome{}, false
}

// Counts tallies outcomes of one operation across the run.
type Counts struct {
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Fatal     int `json:"fatal"`
}

// Add increments the counter matching status.
func (c *Counts) Add(status OutcomeStatus) {
	switch status {
	case StatusSucceeded:
		c.Succeeded++
	case StatusSkipped:
		c.Skipped++
	case StatusFatal:
		c.Fatal++
	}
}

// Total is the number of outcomes counted.
func (c Counts) Total() int { return c.Succeeded + c.Skipped + c.Fatal }

// RunSummary is the machine-readable result of a batch run.
type RunSummary struct {
	RunID      string                `json:"run_id"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Devices    []DeviceResult        `json:"devices"`
	Totals     map[Operation]*Counts `json:"totals"`
}

// NewRunSummary creates an empty summary.
func NewRunSummary(runID string, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		StartedAt: startedAt,
		Totals:    make(map[Operation]*Counts),
	}
}

// Record appends a device result and updates the totals.
func (s *RunSummary) Record(res DeviceResult) {
	s.Devices = append(s.Devices, res)
	for _, op := range res.Operations {
		c, ok := s.Totals[op.Operation]
		if !ok {
			c = &Counts{}
			s.Totals[op.Operation] = c
		}
		c.Add(op.Outcome.Status)
	}
}
