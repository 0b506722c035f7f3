package schemas

import (
	"fmt"
	"strings"
)

// LocatorStrategy selects how a Locator path is resolved against the page.
type LocatorStrategy int

const (
	// ByIdentifier resolves the path as an element id attribute.
	ByIdentifier LocatorStrategy = iota + 1
	// ByPathExpression resolves the path as an XPath expression.
	ByPathExpression
)

// ParseLocatorStrategy maps the config tag ("id" or "xpath") to a strategy.
func ParseLocatorStrategy(tag string) (LocatorStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "id":
		return ByIdentifier, nil
	case "xpath":
		return ByPathExpression, nil
	default:
		return 0, fmt.Errorf("unsupported locator type %q (supported: id, xpath)", tag)
	}
}

// String returns the config tag of the strategy.
func (s LocatorStrategy) String() string {
	switch s {
	case ByIdentifier:
		return "id"
	case ByPathExpression:
		return "xpath"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Locator identifies exactly one element on a rendered page.
type Locator struct {
	Strategy LocatorStrategy `json:"strategy"`
	Path     string          `json:"path"`
}

// ID is shorthand for an identifier locator.
func ID(path string) Locator { return Locator{Strategy: ByIdentifier, Path: path} }

// XPath is shorthand for a path-expression locator.
func XPath(path string) Locator { return Locator{Strategy: ByPathExpression, Path: path} }

// IsZero reports whether the locator was never set.
func (l Locator) IsZero() bool { return l.Strategy == 0 && l.Path == "" }

func (l Locator) String() string {
	return l.Strategy.String() + "=" + l.Path
}

// StepKind is the action an ActionStep performs once its element is ready.
type StepKind string

const (
	StepClick       StepKind = "click"
	StepFrame       StepKind = "frame"
	StepParentFrame StepKind = "parent_frame"
	StepSelect      StepKind = "select"
)

// ActionStep is one entry of a phase script.
type ActionStep struct {
	Kind    StepKind `json:"kind"`
	Locator Locator  `json:"locator,omitempty"`
	// Frame is the frame name, id or index for StepFrame.
	Frame string `json:"frame,omitempty"`
	// Value is the option to select for StepSelect.
	Value string `json:"value,omitempty"`
}

func (s ActionStep) String() string {
	switch s.Kind {
	case StepFrame:
		return "frame(" + s.Frame + ")"
	case StepParentFrame:
		return "parent_frame"
	case StepSelect:
		return fmt.Sprintf("select(%s, %q)", s.Locator, s.Value)
	default:
		return "click(" + s.Locator.String() + ")"
	}
}
