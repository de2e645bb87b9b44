package browserkit

import (
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/couponfollow-e2e/internal/errs"
	"github.com/kuitang/couponfollow-e2e/internal/obs"
)

type engine string

const (
	engineChromium engine = "chromium"
	engineFirefox  engine = "firefox"
	engineWebKit   engine = "webkit"
)

type launchConfig struct {
	name    string
	engine  engine
	channel string
}

// Branded Chrome and Edge run on the chromium engine through a distribution channel.
var launchTable = map[Kind]launchConfig{
	Chrome:   {name: "chrome", engine: engineChromium, channel: "chrome"},
	Chromium: {name: "chromium", engine: engineChromium},
	Firefox:  {name: "firefox", engine: engineFirefox},
	WebKit:   {name: "webkit", engine: engineWebKit},
	Edge:     {name: "edge", engine: engineChromium, channel: "msedge"},
}

// Options are passed through to the engine unchanged.
type Options struct {
	Headless bool
	SlowMo   time.Duration
}

// DefaultOptions is headless with no slow motion.
var DefaultOptions = Options{Headless: true}

// Handle owns one playwright driver process and one browser.
type Handle struct {
	Kind    Kind
	Browser playwright.Browser

	pw *playwright.Playwright
}

// LaunchOptions builds the engine launch options for kind.
func LaunchOptions(kind Kind, opts Options) (playwright.BrowserTypeLaunchOptions, error) {
	cfg, ok := launchTable[kind]
	if !ok {
		return playwright.BrowserTypeLaunchOptions{}, errs.New(errs.UnsupportedBrowser, fmt.Sprintf("unsupported browser kind: %d", int(kind)))
	}
	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.SlowMo > 0 {
		launch.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}
	if cfg.channel != "" {
		launch.Channel = playwright.String(cfg.channel)
	}
	return launch, nil
}

// Launch starts a new playwright driver and launches the browser for kind.
func Launch(kind Kind, opts Options) (*Handle, error) {
	launch, err := LaunchOptions(kind, opts)
	if err != nil {
		return nil, err
	}
	logger := obs.Pkg("browserkit").With("browser", kind.String())

	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "start playwright driver", err)
	}

	browser, err := engineFor(pw, launchTable[kind].engine).Launch(launch)
	if err != nil {
		if stopErr := pw.Stop(); stopErr != nil {
			logger.Warn("driver_stop_failed", "error", stopErr)
		}
		return nil, errs.Wrap(errs.Unavailable, "launch "+kind.String(), err)
	}

	logger.Debug("browser_launched",
		"headless", opts.Headless,
		"slow_mo_ms", opts.SlowMo.Milliseconds(),
		"version", browser.Version(),
	)
	return &Handle{Kind: kind, Browser: browser, pw: pw}, nil
}

func engineFor(pw *playwright.Playwright, e engine) playwright.BrowserType {
	switch e {
	case engineFirefox:
		return pw.Firefox
	case engineWebKit:
		return pw.WebKit
	default:
		return pw.Chromium
	}
}

// Playwright exposes the driver, e.g. for its device registry.
func (h *Handle) Playwright() *playwright.Playwright {
	return h.pw
}

// Close closes the browser and stops the driver. Safe to call more than once.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	var errList []error
	if h.Browser != nil {
		if err := h.Browser.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
			errList = append(errList, fmt.Errorf("close browser: %w", err))
		}
		h.Browser = nil
	}
	if h.pw != nil {
		if err := h.pw.Stop(); err != nil {
			errList = append(errList, fmt.Errorf("stop driver: %w", err))
		}
		h.pw = nil
	}
	return errors.Join(errList...)
}

// Install downloads the playwright driver and the browsers for kinds.
func Install(kinds []Kind, verbose bool) error {
	names := make([]string, 0, len(kinds))
	seen := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		name := k.InstallName()
		if name == "" {
			return errs.New(errs.UnsupportedBrowser, fmt.Sprintf("unsupported browser kind: %d", int(k)))
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if err := playwright.Install(&playwright.RunOptions{Browsers: names, Verbose: verbose}); err != nil {
		return errs.Wrap(errs.Unavailable, "install playwright browsers", err)
	}
	return nil
}
