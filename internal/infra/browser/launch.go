package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Flag is a command line switch for the browser process, without the leading
// dashes. An empty Value means a boolean switch.
type Flag struct {
	Name  string
	Value string
}

// LaunchOptions describe how a browser process is started.
type LaunchOptions struct {
	ExecPath    string
	NoSandbox   bool
	Args        []string
	ProfileBase string
}

// hardeningFlags force software rendering and avoid /dev/shm exhaustion in
// minimal containers.
var hardeningFlags = []Flag{
	{Name: "disable-gpu"},
	{Name: "disable-gpu-compositing"},
	{Name: "disable-features", Value: "Vulkan,UseSkiaRenderer"},
	{Name: "use-gl", Value: "swiftshader"},
	{Name: "disable-dev-shm-usage"},
	{Name: "hide-scrollbars"},
	{Name: "mute-audio"},
}

// Flags returns the hardening flags, the sandbox switches and the parsed
// extra args, in that order. Later flags override earlier ones in both engines.
func (o LaunchOptions) Flags() []Flag {
	flags := append([]Flag{}, hardeningFlags...)
	if o.NoSandbox {
		flags = append(flags, Flag{Name: "no-sandbox"}, Flag{Name: "disable-setuid-sandbox"})
	}
	return append(flags, ParseArgs(o.Args)...)
}

// ParseArgs turns "--name=value" / "--name" strings into Flags, skipping blanks.
func ParseArgs(args []string) []Flag {
	flags := make([]Flag, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimPrefix(strings.TrimSpace(arg), "--")
		if arg == "" {
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			flags = append(flags, Flag{Name: name, Value: value})
			continue
		}
		flags = append(flags, Flag{Name: arg})
	}
	return flags
}

// NewProfileDir creates a fresh user data directory below base (or the system
// temp dir). Every browser instance gets its own so no state is shared across
// requests; cleanup removes it.
func NewProfileDir(base string) (dir string, cleanup func(), err error) {
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o700); err != nil {
		return "", nil, fmt.Errorf("cannot create profile base dir: %w", err)
	}
	dir, err = os.MkdirTemp(base, "pdf-export-profile-*")
	if err != nil {
		return "", nil, fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(filepath.Clean(dir)) }, nil
}

// IsSessionInterrupted reports whether err means the browser connection went
// away underneath a render (crash, killed process, closed target) as opposed
// to the page itself misbehaving. Deadlines are not interruptions.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"target closed",
		"browser closed",
		"websocket: close",
		"connection reset",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
