package routerconfig

import (
	"fmt"
	"sort"
	"strings"
)

// Severity ranks a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding of Check.
type Issue struct {
	Severity Severity
	Group    string
	Path     string
	Message  string
}

func (i Issue) String() string {
	where := i.Path
	switch {
	case i.Group != "" && i.Path != "":
		where = i.Group + "." + i.Path
	case i.Group != "":
		where = i.Group
	}
	if where == "" {
		return fmt.Sprintf("%s: %s", i.Severity, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.Severity, where, i.Message)
}

// Issues is the result of Check.
type Issues []Issue

// HasErrors reports whether any issue is an error.
func (is Issues) HasErrors() bool {
	for _, i := range is {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Count returns the number of issues with severity s.
func (is Issues) Count(s Severity) int {
	n := 0
	for _, i := range is {
		if i.Severity == s {
			n++
		}
	}
	return n
}

type checker struct {
	group  string
	issues Issues
}

func (c *checker) errorf(path, format string, args ...any) {
	c.issues = append(c.issues, Issue{Severity: SeverityError, Group: c.group, Path: path, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) warnf(path, format string, args ...any) {
	c.issues = append(c.issues, Issue{Severity: SeverityWarning, Group: c.group, Path: path, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) located(path string, e *Element, required bool) {
	if e == nil {
		if required {
			c.errorf(path, "is required")
		}
		return
	}
	if !e.Located() {
		c.errorf(path, "needs type (id or xpath) and location")
	}
}

// Check inspects the whole document and reports structural problems that would
// make a device fail at run time. The document is not modified.
func (d *Document) Check() Issues {
	c := &checker{}

	owners := make(map[string][]string)
	for _, name := range d.GroupNames() {
		if len(d.Models[name]) == 0 {
			c.warnf("models."+name, "group has no member models")
		}
		seen := make(map[string]bool)
		for _, m := range d.Models[name] {
			if seen[m] {
				continue
			}
			seen[m] = true
			owners[m] = append(owners[m], name)
		}
		if g, ok := d.Routers[name]; !ok || g == nil {
			c.errorf("models."+name, "group has no routers section")
		}
	}

	models := make([]string, 0, len(owners))
	for m := range owners {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		if len(owners[m]) > 1 {
			c.errorf("models", "model %s matches multiple groups: %s", m, strings.Join(owners[m], ", "))
		}
	}

	routerNames := make([]string, 0, len(d.Routers))
	for name := range d.Routers {
		routerNames = append(routerNames, name)
	}
	sort.Strings(routerNames)
	for _, name := range routerNames {
		if _, ok := d.Models[name]; !ok {
			c.warnf("routers."+name, "group is not referenced by models")
		}
		if g := d.Routers[name]; g != nil {
			c.group = name
			c.checkGroup(g)
			c.group = ""
		}
	}
	return c.issues
}

func (c *checker) checkGroup(g *Group) {
	if !g.Login.Basic {
		c.located("login.password", g.Login.Password, true)
		c.located("login.submit", g.Login.Submit, true)
		c.located("login.username", g.Login.Username, false)
	}
	c.located("login.check_login", g.Login.CheckLogin, false)

	if g.DNS == nil && g.PasswordReset == nil {
		c.warnf("", "group defines neither dns nor password_reset")
	}
	if g.DNS != nil {
		c.checkDNS(g.DNS)
	}
	if g.PasswordReset != nil {
		c.checkPasswordReset(g.PasswordReset)
	}
}

func (c *checker) checkDNS(dns *DNSConfig) {
	if len(dns.Servers) == 0 {
		c.errorf("dns", "no dns_k fields")
	}
	for i, f := range dns.Servers {
		path := fmt.Sprintf("dns.dns_%d", f.Index)
		if f.Index != i+1 {
			c.errorf(path, "dns fields must be numbered dns_1..dns_%d without gaps", len(dns.Servers))
		}
		c.located(path, &f.Element, true)
		switch {
		case dns.SplitOctets && len(f.Element.Locations) != 4:
			c.errorf(path, "split_octets needs 4 locations, got %d", len(f.Element.Locations))
		case !dns.SplitOctets && len(f.Element.Locations) > 1:
			c.errorf(path, "has %d locations but split_octets is off", len(f.Element.Locations))
		}
	}
	if dns.CheckDHCPMode != nil {
		c.located("dns.check_dhcp_mode", dns.CheckDHCPMode, true)
		if dns.UpdateDHCPMode == nil || dns.UpdateDHCPMode.Value == nil {
			c.errorf("dns.update_dhcp_mode", "value is required when check_dhcp_mode is set")
		}
	}
	c.located("dns.submit", dns.Submit, true)
	if dns.Submit != nil && dns.Submit.Wait == nil {
		c.warnf("dns.submit", "no explicit wait, the configured default applies")
	}
}

func (c *checker) checkPasswordReset(pr *PasswordResetConfig) {
	in := pr.Form.Input
	c.located("password_reset.form.input.current_username", in.CurrentUsername, false)
	c.located("password_reset.form.input.current_password", in.CurrentPassword, false)
	c.located("password_reset.form.input.new_username", in.NewUsername, false)
	c.located("password_reset.form.input.new_password", in.NewPassword, true)
	c.located("password_reset.form.input.new_password_confirm", in.NewPasswordConfirm, false)
	c.located("password_reset.form.submit", pr.Form.Submit, true)
	if pr.Reboot != nil && len(pr.Reboot.Steps) == 0 {
		c.warnf("password_reset.reboot", "reboot section has no steps")
	}
}
