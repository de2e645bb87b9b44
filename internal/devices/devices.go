// Package devices opens device-emulated pages on top of browserkit.
package devices

import (
	"errors"
	"fmt"
	"sort"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/couponfollow-e2e/internal/browserkit"
	"github.com/kuitang/couponfollow-e2e/internal/errs"
)

// Registry is playwright's built-in device table, keyed by device name.
type Registry = map[string]*playwright.DeviceDescriptor

// Session is one browser, one context and one page opened for a device.
type Session struct {
	Device     string
	Descriptor *playwright.DeviceDescriptor
	Handle     *browserkit.Handle
	Context    playwright.BrowserContext
	Page       playwright.Page
}

// Lookup returns the descriptor registered under name.
func Lookup(registry Registry, name string) (*playwright.DeviceDescriptor, error) {
	desc, ok := registry[name]
	if !ok || desc == nil {
		return nil, errs.New(errs.UnknownDevice, fmt.Sprintf("unknown device name: %q", name))
	}
	return desc, nil
}

// Names returns the registry's device names, sorted.
func Names(registry Registry) []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ContextOptions converts a descriptor into context options. The emulated
// screen defaults to the viewport when the descriptor has none.
func ContextOptions(desc *playwright.DeviceDescriptor) playwright.BrowserNewContextOptions {
	var opts playwright.BrowserNewContextOptions
	if desc == nil {
		return opts
	}
	if desc.UserAgent != "" {
		opts.UserAgent = playwright.String(desc.UserAgent)
	}
	if desc.Viewport != nil {
		opts.Viewport = &playwright.Size{Width: desc.Viewport.Width, Height: desc.Viewport.Height}
		opts.Screen = &playwright.Size{Width: desc.Viewport.Width, Height: desc.Viewport.Height}
	}
	if desc.Screen != nil {
		opts.Screen = &playwright.Size{Width: desc.Screen.Width, Height: desc.Screen.Height}
	}
	if desc.DeviceScaleFactor > 0 {
		opts.DeviceScaleFactor = playwright.Float(desc.DeviceScaleFactor)
	}
	opts.IsMobile = playwright.Bool(desc.IsMobile)
	opts.HasTouch = playwright.Bool(desc.HasTouch)
	return opts
}

// NewContext opens a context emulating name on an existing browser.
func NewContext(browser playwright.Browser, registry Registry, name string) (playwright.BrowserContext, error) {
	desc, err := Lookup(registry, name)
	if err != nil {
		return nil, err
	}
	ctx, err := browser.NewContext(ContextOptions(desc))
	if err != nil {
		return nil, errs.FromEngine(err, "open context for "+name)
	}
	return ctx, nil
}

// Open launches kind, then opens one context emulating name and one page in it.
// Every call starts a new browser.
func Open(name string, kind browserkit.Kind, opts browserkit.Options) (*Session, error) {
	handle, err := browserkit.Launch(kind, opts)
	if err != nil {
		return nil, err
	}
	desc, err := Lookup(handle.Playwright().Devices, name)
	if err != nil {
		return nil, errors.Join(err, handle.Close())
	}
	ctx, err := handle.Browser.NewContext(ContextOptions(desc))
	if err != nil {
		return nil, errors.Join(errs.FromEngine(err, "open context for "+name), handle.Close())
	}
	page, err := ctx.NewPage()
	if err != nil {
		return nil, errors.Join(errs.FromEngine(err, "open page for "+name), handle.Close())
	}
	return &Session{
		Device:     name,
		Descriptor: desc,
		Handle:     handle,
		Context:    ctx,
		Page:       page,
	}, nil
}

// Close releases the page, context and browser in reverse order of creation.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	var errList []error
	if s.Page != nil {
		if err := s.Page.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
			errList = append(errList, fmt.Errorf("close page: %w", err))
		}
		s.Page = nil
	}
	if s.Context != nil {
		if err := s.Context.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
			errList = append(errList, fmt.Errorf("close context: %w", err))
		}
		s.Context = nil
	}
	if err := s.Handle.Close(); err != nil {
		errList = append(errList, err)
	}
	s.Handle = nil
	return errors.Join(errList...)
}
