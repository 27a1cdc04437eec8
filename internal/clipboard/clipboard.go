// Package clipboard copies exported text to the system clipboard through the
// platform's command-line tools.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// ErrClipboardUnavailable is returned when no clipboard tool is installed.
var ErrClipboardUnavailable = errors.New("clipboard unavailable")

// tool is one clipboard writer and the arguments that make it read stdin.
type tool struct {
	name string
	args []string
}

// candidates lists the writers to try for goos, most preferred first.
// Wayland sessions prefer wl-copy over the X11 tools.
func candidates(goos string, wayland bool) []tool {
	switch goos {
	case "darwin":
		return []tool{{name: "pbcopy"}}
	case "linux", "freebsd":
		x11 := []tool{
			{name: "xclip", args: []string{"-selection", "clipboard"}},
			{name: "xsel", args: []string{"--clipboard", "--input"}},
		}
		if wayland {
			return append([]tool{{name: "wl-copy"}}, x11...)
		}
		return append(x11, tool{name: "wl-copy"})
	case "windows":
		return []tool{{name: "clip.exe"}}
	default:
		return nil
	}
}

// lookPath is swapped out in tests.
var lookPath = exec.LookPath

// find returns the first installed writer for this system.
func find() (tool, error) {
	for _, t := range candidates(runtime.GOOS, os.Getenv("WAYLAND_DISPLAY") != "") {
		if _, err := lookPath(t.name); err == nil {
			return t, nil
		}
	}
	return tool{}, ErrClipboardUnavailable
}

// IsAvailable reports whether a clipboard writer is installed.
func IsAvailable() bool {
	_, err := find()
	return err == nil
}

// Copy writes text to the system clipboard and returns the name of the tool
// that did it.
func Copy(ctx context.Context, text string) (string, error) {
	t, err := find()
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, t.name, t.args...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return t.name, fmt.Errorf("%s: %w: %s", t.name, err, strings.TrimSpace(string(out)))
	}
	return t.name, nil
}
