// Package build sequences config install, cross-compilation and binary
// flattening for one architecture.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tinyrange/readpflash/internal/arch"
	"github.com/tinyrange/readpflash/internal/config"
	"github.com/tinyrange/readpflash/internal/toolexec"
)

var (
	ErrConfigNotFound = errors.New("config not found")
	ErrCompileFailed  = errors.New("compile failed")
	ErrFlattenFailed  = errors.New("flatten failed")
)

type ConfigNotFoundError struct {
	Arch arch.Architecture
	Path string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found for %s: %s", e.Arch, e.Path)
}

func (e *ConfigNotFoundError) Is(target error) bool { return target == ErrConfigNotFound }

// StepError tags a tool failure with the pipeline step. It unwraps to both
// the step sentinel and the underlying *toolexec.ExitError, so exit codes
// survive.
type StepError struct {
	Step     string
	Arch     arch.Architecture
	sentinel error
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s for %s: %v", e.Step, e.Arch, e.Err)
}

func (e *StepError) Unwrap() []error { return []error{e.sentinel, e.Err} }

// Artifact is the output of one Build call.
type Artifact struct {
	Arch arch.Architecture `yaml:"arch"`
	ELF  string            `yaml:"elf"`
	// Raw is empty when the profile boots the ELF directly.
	Raw string `yaml:"raw,omitempty"`
}

// KernelImage is the file passed to the emulator's -kernel flag.
func (a Artifact) KernelImage() string {
	if a.Raw != "" {
		return a.Raw
	}
	return a.ELF
}

// Pipeline builds kernels inside one Layout. The active config file is
// shared state: two pipelines must not run against the same root at the
// same time.
type Pipeline struct {
	Layout Layout
	Runner toolexec.Runner
	Tools  config.Tools
	Logger *slog.Logger
	// Out receives the human-readable step messages.
	Out io.Writer
}

func (b *Pipeline) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

func (b *Pipeline) printf(format string, args ...any) {
	if b.Out == nil {
		return
	}
	fmt.Fprintf(b.Out, format, args...)
}

// Build runs every step for p, stopping at the first failure.
func (b *Pipeline) Build(ctx context.Context, p arch.Profile) (Artifact, error) {
	if err := b.InstallConfig(p); err != nil {
		return Artifact{}, err
	}
	if err := b.Compile(ctx, p); err != nil {
		return Artifact{}, err
	}

	art := Artifact{Arch: p.Name, ELF: b.Layout.ELF(p)}
	if _, err := os.Stat(art.ELF); err != nil {
		return Artifact{}, fmt.Errorf("compile for %s produced no kernel: %w", p.Name, err)
	}

	if p.Flatten {
		if err := b.Flatten(ctx, p); err != nil {
			return Artifact{}, err
		}
		art.Raw = b.Layout.Raw(p)
	}

	if err := WriteArtifact(b.Layout.ArtifactRecord(p), art); err != nil {
		return Artifact{}, err
	}

	b.printf("Build complete for %s (%s)\n", p.Name, p.CompileTarget)
	return art, nil
}

// InstallConfig copies configs/<arch>.<ext> over the active config file.
func (b *Pipeline) InstallConfig(p arch.Profile) error {
	src := b.Layout.ConfigSource(p)
	dst := b.Layout.ActiveConfig()

	info, err := os.Stat(src)
	if err != nil || !info.Mode().IsRegular() {
		return &ConfigNotFoundError{Arch: p.Name, Path: src}
	}

	if err := copyFile(dst, src, 0o644); err != nil {
		return fmt.Errorf("failed to copy %s -> %s: %w", src, dst, err)
	}

	b.logger().Debug("installed config", "src", src, "dst", dst)
	b.printf("Installed config: %s -> %s\n", src, filepath.Base(dst))
	return nil
}

// Compile runs cargo in release mode for the profile's target triple.
func (b *Pipeline) Compile(ctx context.Context, p arch.Profile) error {
	cmd := toolexec.Command{
		Name: b.Tools.Cargo,
		Args: []string{
			"build",
			"--release",
			"--target", p.CompileTarget,
			"--manifest-path", b.Layout.Manifest(),
		},
		Dir: b.Layout.Root,
	}

	b.logger().Info("compiling", "arch", p.Name, "target", p.CompileTarget)
	b.logger().Debug("exec", "cmd", cmd.String())

	if err := b.Runner.Run(ctx, cmd); err != nil {
		return &StepError{Step: "compile", Arch: p.Name, sentinel: ErrCompileFailed, Err: err}
	}
	return nil
}

// Flatten strips the ELF into a raw binary next to it.
func (b *Pipeline) Flatten(ctx context.Context, p arch.Profile) error {
	elf := b.Layout.ELF(p)
	bin := b.Layout.Raw(p)

	cmd := toolexec.Command{
		Name: b.Tools.Objcopy,
		Args: []string{
			"--binary-architecture=" + p.ConversionArch,
			elf,
			"--strip-all",
			"-O", "binary",
			bin,
		},
		Dir: b.Layout.Root,
	}

	b.logger().Debug("exec", "cmd", cmd.String())

	if err := b.Runner.Run(ctx, cmd); err != nil {
		if errors.Is(err, toolexec.ErrLaunchFailed) {
			err = fmt.Errorf("%w (install with: cargo install cargo-binutils)", err)
		}
		return &StepError{Step: "flatten", Arch: p.Name, sentinel: ErrFlattenFailed, Err: err}
	}
	return nil
}

func copyFile(dstPath, srcPath string, perm os.FileMode) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open src: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("open dst: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy: %w", err)
	}

	return dst.Close()
}
