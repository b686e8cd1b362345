package xtask

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/tinyrange/readpflash/internal/build"
	"github.com/tinyrange/readpflash/internal/pflash"
	"github.com/tinyrange/readpflash/internal/qemu"
)

func (a *App) cmdBuild(ctx context.Context, g globals, args []string) error {
	fs := a.newFlagSet("build")
	tf := addTargetFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	t, err := a.resolve(g, tf)
	if err != nil {
		return err
	}

	_, err = a.pipeline(t).Build(ctx, t.profile)
	return err
}

func (a *App) cmdRun(ctx context.Context, g globals, args []string) error {
	fs := a.newFlagSet("run")
	tf := addTargetFlags(fs)
	noBuild := fs.Bool("no-build", false, "Reuse the artifact from the last build instead of compiling")
	dryRun := fs.Bool("dry-run", false, "Write the image and print the emulator command without running it")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	t, err := a.resolve(g, tf)
	if err != nil {
		return err
	}

	var art build.Artifact
	if *noBuild {
		art, err = build.LoadArtifact(t.layout, t.profile)
	} else {
		art, err = a.pipeline(t).Build(ctx, t.profile)
	}
	if err != nil {
		return err
	}

	image := t.layout.Image()
	if err := a.writeImage(t, image); err != nil {
		return err
	}

	inv, err := qemu.Build(t.profile, art, image, qemu.Options{
		Prefix: t.cfg.Emulator.Prefix,
		Memory: t.cfg.Emulator.Memory,
		SMP:    t.cfg.Emulator.SMP,
		Extra:  t.cfg.Emulator.ExtraArgs,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Stdout, "Running: %s\n", inv)
	if *dryRun {
		return nil
	}

	return inv.Execute(ctx, a.Runner)
}

func (a *App) cmdImage(ctx context.Context, g globals, args []string) error {
	fs := a.newFlagSet("image")
	tf := addTargetFlags(fs)
	out := fs.String("o", "", "Output file (default: the configured image under the workspace root)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	t, err := a.resolve(g, tf)
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = t.layout.Image()
	}
	return a.writeImage(t, path)
}

// writeImage builds the pflash image for t and stores it at path. On x86
// the boot ROM is located first; nothing is written if it is missing or
// too large.
func (a *App) writeImage(t *target, path string) error {
	var fw []byte
	if t.profile.IsX86() {
		romPath, data, err := a.locator(t).Load()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Stdout, "Embedding SeaBIOS (%d bytes) from %s\n", len(data), romPath)
		fw = data
	}

	img, err := pflash.Build(t.profile, fw)
	if err != nil {
		return err
	}

	if err := pflash.WriteFile(path, img, pflash.WriteOptions{Progress: a.Progress}); err != nil {
		return fmt.Errorf("failed to write pflash image: %w", err)
	}
	written, err := pflash.ReadFile(path)
	if err != nil {
		return err
	}
	if err := pflash.Verify(t.profile, written); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	a.log().Debug("wrote pflash image",
		"arch", t.profile.Name,
		"path", path,
		"size", humanize.IBytes(uint64(len(img))),
	)
	fmt.Fprintf(a.Stdout, "Created pflash image: %s (%d bytes)\n", path, len(img))
	return nil
}
