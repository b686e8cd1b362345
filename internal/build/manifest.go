package build

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/readpflash/internal/arch"
)

// WriteArtifact records art next to the ELF so a later run can skip the
// build.
func WriteArtifact(path string, art Artifact) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create artifact record: %w", err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(&art); err != nil {
		return fmt.Errorf("encode artifact record: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close artifact record: %w", err)
	}
	return nil
}

// LoadArtifact reads the record written by the last Build for p and checks
// that the files it names still exist.
func LoadArtifact(l Layout, p arch.Profile) (Artifact, error) {
	path := l.ArtifactRecord(p)

	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("read artifact record (build %s first): %w", p.Name, err)
	}

	var art Artifact
	if err := yaml.Unmarshal(data, &art); err != nil {
		return Artifact{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if art.Arch != p.Name {
		return Artifact{}, fmt.Errorf("%s records arch %s, want %s", path, art.Arch, p.Name)
	}
	if p.Flatten && art.Raw == "" {
		return Artifact{}, fmt.Errorf("%s has no raw binary for %s", path, p.Name)
	}

	for _, f := range []string{art.ELF, art.Raw} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return Artifact{}, fmt.Errorf("artifact %s: %w", f, err)
		}
	}

	return art, nil
}
