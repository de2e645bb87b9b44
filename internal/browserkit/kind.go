// Package browserkit launches playwright browsers by logical kind.
//
// Every Launch starts its own playwright driver process and browser; nothing is
// pooled or cached, so two handles never share engine state. Callers own the
// returned Handle and must Close it.
package browserkit

import (
	"strings"

	"github.com/kuitang/couponfollow-e2e/internal/errs"
)

// Kind selects a browser launch configuration.
type Kind int

const (
	Chrome Kind = iota + 1
	Chromium
	Firefox
	WebKit
	Edge
)

// Kinds returns every supported kind in declaration order.
func Kinds() []Kind {
	return []Kind{Chrome, Chromium, Firefox, WebKit, Edge}
}

func (k Kind) String() string {
	if cfg, ok := launchTable[k]; ok {
		return cfg.name
	}
	return "unknown"
}

// Valid reports whether k has a launch configuration.
func (k Kind) Valid() bool {
	_, ok := launchTable[k]
	return ok
}

// InstallName is the target name understood by the playwright installer.
func (k Kind) InstallName() string {
	cfg, ok := launchTable[k]
	if !ok {
		return ""
	}
	if cfg.channel != "" {
		return cfg.channel
	}
	return string(cfg.engine)
}

// ParseKind maps a browser name to its Kind. Matching is case-insensitive and
// accepts the playwright channel names ("msedge") as aliases.
func ParseKind(name string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, k := range Kinds() {
		cfg := launchTable[k]
		if normalized == cfg.name || (cfg.channel != "" && normalized == cfg.channel) {
			return k, nil
		}
	}
	return 0, errs.New(errs.UnsupportedBrowser, "unsupported browser kind: "+name)
}

// ParseKinds parses a list of browser names, failing on the first unknown one.
func ParseKinds(names []string) ([]Kind, error) {
	kinds := make([]Kind, 0, len(names))
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
