package build

import (
	"path/filepath"

	"github.com/tinyrange/readpflash/internal/arch"
	"github.com/tinyrange/readpflash/internal/config"
)

// Layout is the per-invocation workspace. Every file the pipeline reads or
// writes is derived from it; nothing depends on the process working
// directory.
type Layout struct {
	Root string

	Kernel       string
	ConfigExt    string
	ActiveName   string
	ImageName    string
	ManifestName string
}

// NewLayout builds a layout rooted at root with the names from c.
func NewLayout(root string, c config.Config) Layout {
	return Layout{
		Root:         root,
		Kernel:       c.Kernel,
		ConfigExt:    c.ConfigExt,
		ActiveName:   c.ActiveConfig,
		ImageName:    c.Image,
		ManifestName: "Cargo.toml",
	}
}

func (l Layout) ConfigSource(p arch.Profile) string {
	return filepath.Join(l.Root, "configs", string(p.Name)+"."+l.ConfigExt)
}

func (l Layout) ActiveConfig() string { return filepath.Join(l.Root, l.ActiveName) }

func (l Layout) Manifest() string { return filepath.Join(l.Root, l.ManifestName) }

func (l Layout) releaseDir(p arch.Profile) string {
	return filepath.Join(l.Root, "target", p.CompileTarget, "release")
}

func (l Layout) ELF(p arch.Profile) string {
	return filepath.Join(l.releaseDir(p), l.Kernel)
}

func (l Layout) Raw(p arch.Profile) string { return l.ELF(p) + ".bin" }

func (l Layout) ArtifactRecord(p arch.Profile) string {
	return l.ELF(p) + ".artifact.yaml"
}

func (l Layout) Image() string { return filepath.Join(l.Root, l.ImageName) }
