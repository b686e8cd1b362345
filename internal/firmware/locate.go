// Package firmware finds the legacy BIOS boot ROM that is embedded into the
// x86 pflash image.
package firmware

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrFirmwareNotFound = errors.New("firmware not found")

// DefaultSearchPaths lists where distributions install SeaBIOS, in the
// order they are tried.
var DefaultSearchPaths = []string{
	"/usr/share/qemu/bios-256k.bin",
	"/usr/share/seabios/bios-256k.bin",
	"/usr/local/share/qemu/bios-256k.bin",
	"/usr/share/qemu/bios.bin",
	"/usr/share/seabios/bios.bin",
}

// NotFoundError lists every location that was checked.
type NotFoundError struct {
	Checked []string
}

func (e *NotFoundError) Error() string {
	var sb strings.Builder
	sb.WriteString("could not find SeaBIOS binary for x86_64 pflash; looked in:")
	for _, p := range e.Checked {
		sb.WriteString("\n  - ")
		sb.WriteString(p)
	}
	sb.WriteString("\ninstall with: sudo apt install seabios (or equivalent)")
	return sb.String()
}

func (e *NotFoundError) Is(target error) bool { return target == ErrFirmwareNotFound }

type Locator struct {
	// Paths are tried in order. Empty means DefaultSearchPaths.
	Paths []string
}

func (l Locator) paths() []string {
	if len(l.Paths) == 0 {
		return DefaultSearchPaths
	}
	return l.Paths
}

// Locate returns the first readable regular file on the search list.
func (l Locator) Locate() (string, error) {
	paths := l.paths()
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if !readable(p) {
			continue
		}
		return p, nil
	}
	return "", &NotFoundError{Checked: append([]string(nil), paths...)}
}

// Load locates the ROM and reads it. An empty ROM is rejected.
func (l Locator) Load() (string, []byte, error) {
	path, err := l.Locate()
	if err != nil {
		return "", nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return path, nil, fmt.Errorf("read firmware %s: %w", path, err)
	}
	if len(data) == 0 {
		return path, nil, fmt.Errorf("firmware %s is empty", path)
	}

	return path, data, nil
}
