package endpoint

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Supported platform identifiers. They match runtime.GOOS values.
const (
	PlatformDarwin  = "darwin"
	PlatformLinux   = "linux"
	PlatformFreeBSD = "freebsd"
	PlatformWindows = "windows"
)

const (
	// SocketName is the node's IPC socket filename.
	SocketName = "geth.ipc"
	// PipePath is the named pipe used on Windows for both default and dev nodes.
	PipePath = `\\.\pipe\` + SocketName
	// OverrideEnv carries a complete endpoint that wins over every platform rule
	// when resolving the dev endpoint.
	OverrideEnv = "NODEIPC_ENDPOINT"
	// TempDirEnv names the system temp directory on darwin and linux.
	TempDirEnv = "TMPDIR"

	defaultTempDir = "/tmp"
)

// ErrHomeUnknown reports that a home-relative endpoint was needed but no home
// directory is known.
var ErrHomeUnknown = errors.New("home directory unknown")

var supportedPlatforms = []string{PlatformDarwin, PlatformLinux, PlatformWindows, PlatformFreeBSD}

// UnsupportedPlatformError reports a platform the resolver has no rule for.
type UnsupportedPlatformError struct {
	Platform string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform %q: only %s are supported; specify the endpoint explicitly",
		e.Platform, strings.Join(supportedPlatforms, "/"))
}

// SupportedPlatforms returns the platform identifiers the resolver knows.
func SupportedPlatforms() []string {
	out := make([]string, len(supportedPlatforms))
	copy(out, supportedPlatforms)
	return out
}

// Default returns the endpoint a production node listens on for the given
// environment. Home-relative platforms fail with ErrHomeUnknown when
// env.HomeDir is empty.
func Default(env Environment) (string, error) {
	switch env.Platform {
	case PlatformDarwin:
		if env.HomeDir == "" {
			return "", fmt.Errorf("resolve default endpoint on %s: %w", env.Platform, ErrHomeUnknown)
		}
		return path.Join(env.HomeDir, "Library", "Ethereum", SocketName), nil
	case PlatformLinux, PlatformFreeBSD:
		if env.HomeDir == "" {
			return "", fmt.Errorf("resolve default endpoint on %s: %w", env.Platform, ErrHomeUnknown)
		}
		return path.Join(env.HomeDir, ".ethereum", SocketName), nil
	case PlatformWindows:
		return PipePath, nil
	default:
		return "", &UnsupportedPlatformError{Platform: env.Platform}
	}
}

// Dev returns the endpoint of a development node. A non-empty OverrideEnv
// value is returned verbatim on every platform.
func Dev(env Environment) (string, error) {
	if override := env.Lookup(OverrideEnv); override != "" {
		return override, nil
	}
	switch env.Platform {
	case PlatformDarwin, PlatformLinux:
		tmp := env.Lookup(TempDirEnv)
		if tmp == "" {
			tmp = defaultTempDir
		}
		return path.Join(tmp, SocketName), nil
	case PlatformFreeBSD:
		// TMPDIR is ignored here; dev nodes on freebsd always use /tmp.
		return path.Join(defaultTempDir, SocketName), nil
	case PlatformWindows:
		return PipePath, nil
	default:
		return "", &UnsupportedPlatformError{Platform: env.Platform}
	}
}

// ExpandHome replaces a leading "~" with home. Paths without the token are
// returned unchanged.
func ExpandHome(p, home string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	rest := p[1:]
	if rest != "" && rest[0] != '/' && rest[0] != '\\' {
		// "~user" forms are left alone.
		return p, nil
	}
	if home == "" {
		return "", fmt.Errorf("expand %q: home directory unknown", p)
	}
	return strings.TrimRight(home, `/\`) + rest, nil
}
