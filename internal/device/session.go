// Package device drives one router through its web panel for the lifetime of
// one inventory row.
package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"github.com/eugenetaranov/router-reset-dns/internal/browser"
	"github.com/eugenetaranov/router-reset-dns/internal/interpreter"
	"github.com/eugenetaranov/router-reset-dns/internal/observability"
	"github.com/eugenetaranov/router-reset-dns/internal/routerconfig"
	"go.uber.org/zap"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateCreated State = iota
	StateMainPageLoaded
	StateLoggedIn
	StateLoginSkipped
	StateOnTargetPage
	StateSettingsSubmitted
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateMainPageLoaded:
		return "main_page_loaded"
	case StateLoggedIn:
		return "logged_in"
	case StateLoginSkipped:
		return "login_skipped_basic_auth"
	case StateOnTargetPage:
		return "on_target_page"
	case StateSettingsSubmitted:
		return "settings_submitted"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Phase names attached to errors.
const (
	PhaseMainPage     = "main_page"
	PhaseLogin        = "login"
	PhaseNavigate     = "navigate"
	PhaseDNS          = "dns"
	PhasePasswordGoto = "password_goto"
	PhasePasswordForm = "password_form"
	PhaseReboot       = "reboot"
)

// Timings holds the settle delays of a session.
type Timings struct {
	LoginSettle time.Duration
	// SubmitWait applies to a DNS submit without its own wait.
	SubmitWait time.Duration
	RebootWait time.Duration
}

// Session owns one browser for one device. Operations run sequentially; a
// Session is not safe for concurrent use.
type Session struct {
	record   schemas.DeviceRecord
	groupKey string
	group    *routerconfig.Group

	driver  browser.Driver
	interp  *interpreter.Interpreter
	logger  *zap.Logger
	timings Timings

	state     State
	closeOnce sync.Once
	closeErr  error
}

// NewSession binds a launched driver to a device and its resolved group. The
// logger is used as given; callers tag it with the device fields.
func NewSession(record schemas.DeviceRecord, groupKey string, group *routerconfig.Group, driver browser.Driver, interp *interpreter.Interpreter, logger *zap.Logger, timings Timings) *Session {
	return &Session{
		record:   record,
		groupKey: groupKey,
		group:    group,
		driver:   driver,
		interp:   interp,
		logger:   logger,
		timings:  timings,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

func (s *Session) setState(st State) {
	s.logger.Debug("Session state changed.", zap.Stringer("from", s.state), zap.Stringer("to", st))
	s.state = st
}

func (s *Session) fail(err error) error {
	if err != nil && s.state != StateClosed {
		s.setState(StateFailed)
	}
	return err
}

// OpenMainPage loads the device's main page, embedding the credentials in the
// URL for groups that use HTTP basic authentication.
func (s *Session) OpenMainPage(ctx context.Context) error {
	basic := s.group.Login.Basic
	s.logger.Info("Opening main page.", zap.String("url", s.record.MainPageURL(false)), zap.Bool("basic_auth", basic))
	if err := s.driver.Navigate(ctx, s.record.MainPageURL(basic)); err != nil {
		return s.fail(schemas.WithPhase(err, PhaseMainPage))
	}
	s.setState(StateMainPageLoaded)
	return nil
}

// Login fills and submits the login form, then verifies it when a check
// element is configured. Basic-auth groups skip the phase.
func (s *Session) Login(ctx context.Context) error {
	login := s.group.Login
	if login.Basic {
		s.logger.Debug("Login skipped, credentials sent with the page request.")
		s.setState(StateLoginSkipped)
		return nil
	}
	if err := s.login(ctx, login); err != nil {
		return s.fail(schemas.WithPhase(err, PhaseLogin))
	}
	s.logger.Info("Logged in.", zap.String("username", s.record.Username), observability.Secret("password", s.record.Password))
	s.setState(StateLoggedIn)
	return nil
}

func (s *Session) login(ctx context.Context, login routerconfig.LoginConfig) error {
	if !login.Password.Located() || !login.Submit.Located() {
		return schemas.NewError(schemas.KindConfigInvalid, "login needs password and submit elements")
	}
	if !login.PasswordOnly() {
		if err := s.interp.Fill(ctx, login.Username.Locator(), s.record.Username); err != nil {
			return err
		}
	}
	if err := s.interp.Fill(ctx, login.Password.Locator(), s.record.Password); err != nil {
		return err
	}
	if err := s.interp.Click(ctx, login.Submit.Locator()); err != nil {
		return err
	}
	if err := s.interp.Pause(ctx, s.timings.LoginSettle); err != nil {
		return err
	}

	check := login.CheckLogin
	if !check.Located() {
		return nil
	}
	if check.Frame != "" {
		if err := s.interp.EnterFrame(ctx, check.Frame); err != nil {
			return schemas.WrapError(schemas.KindLoginFailed, err, "login check frame %s not found", check.Frame)
		}
	}
	if err := s.interp.WaitPresent(ctx, check.Locator()); err != nil {
		if schemas.KindOf(err) != schemas.KindElementNotFound {
			return err
		}
		return schemas.WrapError(schemas.KindLoginFailed, err, "login check element %s not found", check.Locator())
	}
	if check.Frame != "" {
		return s.interp.ParentFrame(ctx)
	}
	return nil
}

// NavigateToTarget enters the group frame if any, runs the navigation steps and
// returns to the parent frame when the group asks for it.
func (s *Session) NavigateToTarget(ctx context.Context) error {
	if err := s.navigate(ctx); err != nil {
		return s.fail(schemas.WithPhase(err, PhaseNavigate))
	}
	s.setState(StateOnTargetPage)
	return nil
}

func (s *Session) navigate(ctx context.Context) error {
	g := s.group
	if g.Frame != "" {
		if err := s.interp.EnterFrame(ctx, g.Frame); err != nil {
			return err
		}
	}
	if err := s.interp.RunPhase(ctx, PhaseNavigate, routerconfig.ActionSteps(g.Steps)); err != nil {
		return err
	}
	if g.SwitchToParentFrame {
		return s.interp.ParentFrame(ctx)
	}
	return nil
}

// ApplyDNSSettings makes sure the DHCP mode is right, writes servers into the
// dns_k fields in order and submits the form. Fields beyond len(servers) are
// left untouched.
func (s *Session) ApplyDNSSettings(ctx context.Context, servers []string) error {
	if err := s.applyDNS(ctx, servers); err != nil {
		return s.fail(schemas.WithPhase(err, PhaseDNS))
	}
	s.setState(StateSettingsSubmitted)
	return nil
}

func (s *Session) applyDNS(ctx context.Context, servers []string) error {
	dns := s.group.DNS
	if dns == nil {
		return schemas.NewError(schemas.KindConfigInvalid, fmt.Sprintf("group %s has no dns section", s.groupKey))
	}
	if !dns.Submit.Located() {
		return schemas.NewError(schemas.KindConfigInvalid, "dns submit element is not configured")
	}
	if len(servers) > len(dns.Servers) {
		s.logger.Warn("More DNS servers given than the form has fields, extra servers ignored.",
			zap.Int("servers", len(servers)), zap.Int("fields", len(dns.Servers)))
	}

	if dns.Frame != "" {
		if err := s.interp.EnterFrame(ctx, dns.Frame); err != nil {
			return err
		}
	}
	if dns.CheckDHCPMode.Located() {
		want := dns.UpdateDHCPMode.ValueString()
		if _, err := s.interp.EnsureSelected(ctx, dns.CheckDHCPMode.Locator(), want); err != nil {
			return err
		}
	}
	for i, field := range dns.Servers {
		if i >= len(servers) {
			break
		}
		s.logger.Debug("Setting DNS server.", zap.Int("field", field.Index), zap.String("server", servers[i]))
		if err := s.interp.FillAddress(ctx, field.Element.Locators(), servers[i], dns.SplitOctets); err != nil {
			return err
		}
	}

	wait := s.timings.SubmitWait
	if dns.Submit.Wait != nil {
		wait = *dns.Submit.Wait
	}
	if err := s.interp.Submit(ctx, dns.Submit.Locator(), interpreter.SubmitOptions{Wait: wait}); err != nil {
		return err
	}
	s.logger.Info("DNS settings submitted.", zap.Strings("servers", servers))
	return nil
}

// ApplyPasswordChange reaches the password form, fills it with the current
// credentials and newPassword, submits it and runs the reboot sequence if one
// is configured.
func (s *Session) ApplyPasswordChange(ctx context.Context, newPassword string) error {
	pr := s.group.PasswordReset
	if pr == nil {
		return s.fail(schemas.NewError(schemas.KindConfigInvalid, fmt.Sprintf("group %s has no password_reset section", s.groupKey)))
	}

	if err := s.runScript(ctx, PhasePasswordGoto, pr.Goto); err != nil {
		return s.fail(err)
	}
	if err := s.submitPasswordForm(ctx, pr.Form, newPassword); err != nil {
		return s.fail(schemas.WithPhase(err, PhasePasswordForm))
	}
	s.logger.Info("Admin password changed.", observability.Secret("new_password", newPassword))

	if pr.Reboot != nil && len(pr.Reboot.Steps) > 0 {
		steps := routerconfig.ActionSteps(pr.Reboot.Steps)
		run := s.interp.RunPhase
		if pr.Reboot.AlertConfirm {
			run = s.interp.RunConfirmedPhase
		}
		if err := run(ctx, PhaseReboot, steps); err != nil {
			return s.fail(err)
		}
		if err := s.interp.Pause(ctx, s.timings.RebootWait); err != nil {
			return s.fail(schemas.WithPhase(err, PhaseReboot))
		}
		s.logger.Info("Reboot requested.")
	}
	s.setState(StateSettingsSubmitted)
	return nil
}

func (s *Session) runScript(ctx context.Context, phase string, script routerconfig.PhaseScript) error {
	if script.Frame != "" {
		if err := s.interp.EnterFrame(ctx, script.Frame); err != nil {
			return schemas.WithPhase(err, phase)
		}
	}
	if err := s.interp.RunPhase(ctx, phase, routerconfig.ActionSteps(script.Steps)); err != nil {
		return err
	}
	if script.Frame != "" {
		return schemas.WithPhase(s.interp.ParentFrame(ctx), phase)
	}
	return nil
}

func (s *Session) submitPasswordForm(ctx context.Context, form routerconfig.PasswordForm, newPassword string) error {
	if !form.Input.NewPassword.Located() || !form.Submit.Located() {
		return schemas.NewError(schemas.KindConfigInvalid, "password form needs new_password and submit elements")
	}
	if form.Frame != "" {
		if err := s.interp.EnterFrame(ctx, form.Frame); err != nil {
			return err
		}
	}

	in := form.Input
	fields := []struct {
		el    *routerconfig.Element
		value string
	}{
		{in.CurrentUsername, s.record.Username},
		{in.CurrentPassword, s.record.Password},
		{in.NewUsername, s.record.Username},
		{in.NewPassword, newPassword},
		{in.NewPasswordConfirm, newPassword},
	}
	for _, f := range fields {
		if !f.el.Located() {
			continue
		}
		if err := s.interp.Fill(ctx, f.el.Locator(), f.value); err != nil {
			return err
		}
	}

	var wait time.Duration
	if form.Submit.Wait != nil {
		wait = *form.Submit.Wait
	}
	if err := s.interp.Submit(ctx, form.Submit.Locator(), interpreter.SubmitOptions{Confirm: form.AlertConfirm, Wait: wait}); err != nil {
		return err
	}
	if form.Frame != "" {
		return s.interp.ParentFrame(ctx)
	}
	return nil
}

// ResetDNS runs the full DNS reset: main page, login, navigation and the DNS form.
func (s *Session) ResetDNS(ctx context.Context, servers []string) error {
	if err := s.OpenMainPage(ctx); err != nil {
		return err
	}
	if err := s.Login(ctx); err != nil {
		return err
	}
	if err := s.NavigateToTarget(ctx); err != nil {
		return err
	}
	return s.ApplyDNSSettings(ctx, servers)
}

// ResetPassword runs the full admin password reset: main page, login and the
// password_reset script.
func (s *Session) ResetPassword(ctx context.Context, newPassword string) error {
	if err := s.OpenMainPage(ctx); err != nil {
		return err
	}
	if err := s.Login(ctx); err != nil {
		return err
	}
	return s.ApplyPasswordChange(ctx, newPassword)
}

// Close releases the browser. Only the first call reaches the driver.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.driver.Close(ctx)
		if s.closeErr != nil {
			s.logger.Warn("Failed to close browser cleanly.", zap.Error(s.closeErr))
		}
		s.setState(StateClosed)
	})
	return s.closeErr
}
