// Package routerconfig decodes the router model document: the `models` section
// mapping group names to member model strings, and the `routers` section holding
// the per-group phase scripts.
package routerconfig

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"gopkg.in/yaml.v3"
)

// Document is the decoded model document. It is shared read-only across all
// device sessions and never mutated after Parse returns.
type Document struct {
	Models  map[string]ModelList `yaml:"models"`
	Routers map[string]*Group    `yaml:"routers"`
}

// ModelList is the member list of one group. A null entry decodes to an empty list.
type ModelList []string

// UnmarshalYAML keeps every member as its literal text so numeric model names
// such as 2741 are not reformatted.
func (m *ModelList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*m = nil
			return nil
		}
		*m = ModelList{node.Value}
		return nil
	case yaml.SequenceNode:
		out := make(ModelList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: model names must be scalars", item.Line)
			}
			out = append(out, item.Value)
		}
		*m = out
		return nil
	default:
		return fmt.Errorf("line %d: models entry must be a list of model names", node.Line)
	}
}

// Group is the phase script set shared by every model of one group.
type Group struct {
	Login LoginConfig `yaml:"login"`
	// Frame is entered before the navigation steps run.
	Frame               string               `yaml:"iframe"`
	SwitchToParentFrame bool                 `yaml:"switch_to_parent_frame"`
	Steps               []Step               `yaml:"steps"`
	DNS                 *DNSConfig           `yaml:"dns"`
	PasswordReset       *PasswordResetConfig `yaml:"password_reset"`
}

// LoginConfig describes the login form. With Basic set the credentials travel in
// the page URL and no login phase runs.
type LoginConfig struct {
	Basic      bool     `yaml:"basic"`
	Username   *Element `yaml:"username"`
	Password   *Element `yaml:"password"`
	Submit     *Element `yaml:"submit"`
	CheckLogin *Element `yaml:"check_login"`
}

// PasswordOnly reports whether the login form has no username field.
func (l LoginConfig) PasswordOnly() bool { return l.Username == nil }

// DNSConfig describes the DNS settings form.
type DNSConfig struct {
	Frame          string
	SplitOctets    bool
	CheckDHCPMode  *Element
	UpdateDHCPMode *Element
	// Servers holds the dns_k fields ordered by k.
	Servers []DNSField
	Submit  *Element
}

// DNSField is one dns_k entry.
type DNSField struct {
	Index   int
	Element Element
}

var dnsKeyPattern = regexp.MustCompile(`^dns_(\d+)$`)

// UnmarshalYAML decodes the fixed keys and collects any number of dns_k fields.
func (d *DNSConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: dns must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		var err error
		switch key {
		case "iframe":
			err = val.Decode(&d.Frame)
		case "split_octets":
			err = val.Decode(&d.SplitOctets)
		case "check_dhcp_mode":
			d.CheckDHCPMode = &Element{}
			err = val.Decode(d.CheckDHCPMode)
		case "update_dhcp_mode":
			d.UpdateDHCPMode = &Element{}
			err = val.Decode(d.UpdateDHCPMode)
		case "submit":
			d.Submit = &Element{}
			err = val.Decode(d.Submit)
		default:
			m := dnsKeyPattern.FindStringSubmatch(key)
			if m == nil {
				return fmt.Errorf("line %d: unknown dns key %q", node.Content[i].Line, key)
			}
			idx, convErr := strconv.Atoi(m[1])
			if convErr != nil || idx < 1 {
				return fmt.Errorf("line %d: invalid dns field index in %q", node.Content[i].Line, key)
			}
			field := DNSField{Index: idx}
			err = val.Decode(&field.Element)
			d.Servers = append(d.Servers, field)
		}
		if err != nil {
			return fmt.Errorf("dns.%s: %w", key, err)
		}
	}
	sort.Slice(d.Servers, func(i, j int) bool { return d.Servers[i].Index < d.Servers[j].Index })
	return nil
}

// PasswordResetConfig describes how to reach and submit the admin password form.
type PasswordResetConfig struct {
	Goto   PhaseScript   `yaml:"goto"`
	Form   PasswordForm  `yaml:"form"`
	Reboot *RebootConfig `yaml:"reboot"`
}

// PhaseScript is a list of steps optionally run inside a frame.
type PhaseScript struct {
	Frame string `yaml:"iframe"`
	Steps []Step `yaml:"steps"`
}

// PasswordForm is the password change form itself.
type PasswordForm struct {
	Frame        string         `yaml:"iframe"`
	Input        PasswordInputs `yaml:"input"`
	Submit       *Element       `yaml:"submit"`
	AlertConfirm bool           `yaml:"alert_confirm"`
}

// PasswordInputs lists the optional fields of the password form.
type PasswordInputs struct {
	CurrentUsername    *Element `yaml:"current_username"`
	CurrentPassword    *Element `yaml:"current_password"`
	NewUsername        *Element `yaml:"new_username"`
	NewPassword        *Element `yaml:"new_password"`
	NewPasswordConfirm *Element `yaml:"new_password_confirm"`
}

// RebootConfig is the optional reboot sequence after a password change.
type RebootConfig struct {
	Steps        []Step `yaml:"steps"`
	AlertConfirm bool   `yaml:"alert_confirm"`
}

// Location is one locator path or, for split-octet fields, an ordered list of paths.
type Location []string

// UnmarshalYAML accepts either a scalar or a list of scalars.
func (l *Location) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		*l = Location{s}
		return nil
	}
	var list []string
	if err := unmarshal(&list); err != nil {
		return fmt.Errorf("location must be a string or a list of strings")
	}
	*l = list
	return nil
}

// Scalar is a YAML scalar kept as its literal text. Option values are often written as bare numbers.
type Scalar string

func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", node.Line)
	}
	*s = Scalar(node.Value)
	return nil
}

// Element is a located page element as written in the document.
type Element struct {
	Strategy  schemas.LocatorStrategy
	Locations Location
	Frame     string
	Value     *Scalar
	Wait      *time.Duration
}

type rawElement struct {
	Type     string   `yaml:"type"`
	Location Location `yaml:"location"`
	IFrame   string   `yaml:"iframe"`
	Value    *Scalar  `yaml:"value"`
	Wait     *float64 `yaml:"wait"`
}

func (e *Element) UnmarshalYAML(node *yaml.Node) error {
	var raw rawElement
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Type != "" {
		strategy, err := schemas.ParseLocatorStrategy(raw.Type)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		e.Strategy = strategy
	}
	e.Locations = raw.Location
	e.Frame = raw.IFrame
	e.Value = raw.Value
	if raw.Wait != nil {
		if *raw.Wait < 0 || math.IsNaN(*raw.Wait) {
			return fmt.Errorf("line %d: wait must not be negative", node.Line)
		}
		d := time.Duration(*raw.Wait * float64(time.Second))
		e.Wait = &d
	}
	return nil
}

// Located reports whether the element carries a usable locator.
func (e *Element) Located() bool {
	return e != nil && e.Strategy != 0 && len(e.Locations) > 0 && e.Locations[0] != ""
}

// Locator returns the locator of the first location.
func (e *Element) Locator() schemas.Locator {
	if e == nil || len(e.Locations) == 0 {
		return schemas.Locator{}
	}
	return schemas.Locator{Strategy: e.Strategy, Path: e.Locations[0]}
}

// Locators returns one locator per location, in order.
func (e *Element) Locators() []schemas.Locator {
	if e == nil {
		return nil
	}
	out := make([]schemas.Locator, 0, len(e.Locations))
	for _, p := range e.Locations {
		out = append(out, schemas.Locator{Strategy: e.Strategy, Path: p})
	}
	return out
}

// ValueString returns the configured value or "".
func (e *Element) ValueString() string {
	if e == nil || e.Value == nil {
		return ""
	}
	return string(*e.Value)
}

// Step is one entry of a steps list, decoded into an action step.
type Step struct {
	schemas.ActionStep
}

// UnmarshalYAML maps the document forms onto step kinds:
//
//	{type: frame, location: name}      → enter frame
//	{type: parent_frame}               → back to parent frame
//	{type: id|xpath, location: p}      → click
//	{type: id|xpath, location: p, value: v} → click, then select option v
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var raw rawElement
	if err := node.Decode(&raw); err != nil {
		return err
	}
	path := strings.Join(raw.Location, "")
	if len(raw.Location) > 1 {
		return fmt.Errorf("line %d: a step takes a single location", node.Line)
	}
	switch strings.ToLower(raw.Type) {
	case "frame":
		if path == "" {
			return fmt.Errorf("line %d: frame step needs a location", node.Line)
		}
		s.ActionStep = schemas.ActionStep{Kind: schemas.StepFrame, Frame: path}
		return nil
	case "parent_frame":
		s.ActionStep = schemas.ActionStep{Kind: schemas.StepParentFrame}
		return nil
	}
	strategy, err := schemas.ParseLocatorStrategy(raw.Type)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	if path == "" {
		return fmt.Errorf("line %d: step needs a location", node.Line)
	}
	loc := schemas.Locator{Strategy: strategy, Path: path}
	if raw.Value != nil {
		s.ActionStep = schemas.ActionStep{Kind: schemas.StepSelect, Locator: loc, Value: string(*raw.Value)}
		return nil
	}
	s.ActionStep = schemas.ActionStep{Kind: schemas.StepClick, Locator: loc}
	return nil
}

// ActionSteps unwraps a decoded steps list.
func ActionSteps(steps []Step) []schemas.ActionStep {
	out := make([]schemas.ActionStep, len(steps))
	for i, s := range steps {
		out[i] = s.ActionStep
	}
	return out
}
