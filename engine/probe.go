package engine

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// EnvironmentError means the current OS or architecture cannot host the
// native engine.
type EnvironmentError struct {
	OS   string
	Arch string
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("unsupported platform: %s/%s", e.OS, e.Arch)
}

// EngineLoadError means the native engine is missing or its version does not
// satisfy the pinned requirement.
type EngineLoadError struct {
	Got    string
	Want   string
	Reason string
}

func (e *EngineLoadError) Error() string {
	if e.Reason != "" {
		return "loading native engine: " + e.Reason
	}
	return fmt.Sprintf("native engine version %q does not satisfy required %q", e.Got, e.Want)
}

// supportedArchs: the native engine ships 64-bit only.
var supportedArchs = map[string]bool{
	"amd64": true,
	"arm64": true,
}

var supportedOS = map[string]bool{
	"linux":   true,
	"darwin":  true,
	"windows": true,
	"freebsd": true,
}

// ValidateEnvironment checks that the current platform can host the native
// engine. It is usable before any session exists.
func ValidateEnvironment() error {
	if !supportedOS[runtime.GOOS] || !supportedArchs[runtime.GOARCH] {
		return errors.WithStack(&EnvironmentError{OS: runtime.GOOS, Arch: runtime.GOARCH})
	}
	return nil
}

// CheckVersion verifies that the loaded engine version is at least min.
// Both are dotted numeric strings ("3.8.4"); a trailing suffix after '-' is
// ignored.
func CheckVersion(got, min string) error {
	if min == "" {
		return nil
	}

	g, err := parseVersion(got)
	if err != nil {
		return errors.WithStack(&EngineLoadError{Got: got, Want: min, Reason: err.Error()})
	}
	m, err := parseVersion(min)
	if err != nil {
		return errors.Wrapf(err, "parsing required version %q", min)
	}

	for i := range m {
		switch {
		case g[i] > m[i]:
			return nil
		case g[i] < m[i]:
			return errors.WithStack(&EngineLoadError{Got: got, Want: min})
		}
	}
	return nil
}

func parseVersion(v string) ([3]int, error) {
	v, _, _ = strings.Cut(v, "-")

	var out [3]int
	parts := strings.Split(v, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return out, errors.Errorf("malformed version string %q", v)
	}

	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return out, errors.Errorf("malformed version string %q", v)
		}
		out[i] = n
	}
	return out, nil
}

// Load acquires the native engine's function table. The default
// implementation reports the engine unavailable: binding the real library is
// an integration concern, wired in by the embedding application.
var Load = func() (Engine, error) {
	return nil, errors.WithStack(&EngineLoadError{Reason: "no native engine linked into this build"})
}
