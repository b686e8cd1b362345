package qemu

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/tinyrange/readpflash/internal/arch"
	"github.com/tinyrange/readpflash/internal/toolexec"
)

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseVersion extracts the first dotted version from a tool's --version
// output and returns it in canonical semver form ("v8.2.2").
func ParseVersion(out string) (string, error) {
	var m []string
	for line := range strings.Lines(out) {
		if m = versionPattern.FindStringSubmatch(line); m != nil {
			break
		}
	}
	if m == nil {
		return "", fmt.Errorf("no version in %q", strings.TrimSpace(out))
	}
	patch := m[3]
	if patch == "" {
		patch = "0"
	}
	v := fmt.Sprintf("v%s.%s.%s", m[1], m[2], patch)
	if !semver.IsValid(v) {
		return "", fmt.Errorf("invalid version %q", v)
	}
	return semver.Canonical(v), nil
}

// ProbeVersion runs binary --version and parses its first line.
func ProbeVersion(ctx context.Context, r toolexec.Runner, binary string) (string, error) {
	var out bytes.Buffer
	err := r.Run(ctx, toolexec.Command{
		Name:   binary,
		Args:   []string{"--version"},
		Stdout: &out,
		Stderr: &out,
	})
	if err != nil {
		return "", err
	}
	return ParseVersion(out.String())
}

// CheckVersion reports whether binary's version is at least p's minimum
// emulator release.
func CheckVersion(p arch.Profile, binary, version string) error {
	if p.MinEmulatorVersion == "" {
		return nil
	}
	if semver.Compare(version, p.MinEmulatorVersion) < 0 {
		return fmt.Errorf("%s is %s, %s needs at least %s",
			binary, version, p.Name, p.MinEmulatorVersion)
	}
	return nil
}
