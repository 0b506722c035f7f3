package browser

import (
	"sort"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/eugenetaranov/router-reset-dns/internal/config"
)

// AllocatorFlags computes the chromium command-line flags for cfg. Later
// entries override chromedp's defaults; a false value removes a flag.
func AllocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	headless := cfg.Headless || cfg.ContainerRuntime
	flags := map[string]interface{}{
		"headless":                  headless,
		"disable-gpu":               headless,
		"disable-notifications":     true,
		"disable-popup-blocking":    true,
		"disable-extensions":        true,
		"enable-automation":         false,
		"ignore-certificate-errors": cfg.IgnoreTLSErrors,
	}
	if cfg.ContainerRuntime {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
	}

	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

// AllocatorOptions builds the exec allocator options for one browser process.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)

	flags := AllocatorFlags(cfg)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}
