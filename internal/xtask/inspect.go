package xtask

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/tinyrange/readpflash/internal/arch"
	"github.com/tinyrange/readpflash/internal/config"
	"github.com/tinyrange/readpflash/internal/pflash"
	"github.com/tinyrange/readpflash/internal/qemu"
	"github.com/tinyrange/readpflash/internal/toolexec"
)

func (a *App) cmdInfo(ctx context.Context, g globals, args []string) error {
	fs := a.newFlagSet("info")
	tf := addTargetFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	t, err := a.resolve(g, tf)
	if err != nil {
		return err
	}
	p := t.profile

	w := a.Stdout
	fmt.Fprintf(w, "arch:        %s\n", p.Name)
	fmt.Fprintf(w, "target:      %s\n", p.CompileTarget)
	fmt.Fprintf(w, "platform:    %s\n", p.Platform)
	fmt.Fprintf(w, "emulator:    %s -machine %s", p.EmulatorBinary(t.cfg.Emulator.Prefix), p.Machine)
	if p.CPU != "" {
		fmt.Fprintf(w, " -cpu %s", p.CPU)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "pflash:      unit %d at %#x, %s\n", p.DriveUnit, p.FlashBase, humanize.IBytes(uint64(p.FlashSize)))
	kernel := "raw binary (" + p.ConversionArch + ")"
	if !p.Flatten {
		kernel = "ELF"
	}
	fmt.Fprintf(w, "kernel:      %s\n", kernel)
	if p.IsX86() {
		fmt.Fprintf(w, "boot rom:    SeaBIOS embedded at the end of the pflash image\n")
	}
	fmt.Fprintf(w, "image:       %s (%s)\n", t.layout.Image(), imageStatus(p, t.layout.Image()))
	return nil
}

// imageStatus reports whether the image at path is usable for p.
func imageStatus(p arch.Profile, path string) string {
	img, err := pflash.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "missing"
	}
	if err != nil {
		return err.Error()
	}
	if err := pflash.Verify(p, img); err != nil {
		return "invalid: " + err.Error()
	}
	return "valid"
}

// cmdCheck probes every external tool with --version. All tools are
// checked before the first failure is returned.
func (a *App) cmdCheck(ctx context.Context, g globals, args []string) error {
	fs := a.newFlagSet("check")
	tf := addTargetFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	t, err := a.resolve(g, tf)
	if err != nil {
		return err
	}

	tools := []string{t.cfg.Tools.Cargo}
	if t.profile.Flatten {
		tools = append(tools, t.cfg.Tools.Objcopy)
	}
	emulator := t.profile.EmulatorBinary(t.cfg.Emulator.Prefix)
	tools = append(tools, emulator)

	var errs []error
	for _, tool := range tools {
		v, err := qemu.ProbeVersion(ctx, a.Runner, tool)
		if err != nil {
			if errors.Is(err, toolexec.ErrLaunchFailed) {
				err = fmt.Errorf("%s not found: %w", tool, err)
			}
			fmt.Fprintf(a.Stdout, "%-28s missing\n", tool)
			errs = append(errs, err)
			continue
		}

		status := "ok"
		if tool == emulator {
			if err := qemu.CheckVersion(t.profile, tool, v); err != nil {
				status = "too old"
				errs = append(errs, err)
			}
		}
		fmt.Fprintf(a.Stdout, "%-28s %-10s %s\n", tool, v, status)
	}

	if t.profile.IsX86() {
		path, err := a.locator(t).Locate()
		if err != nil {
			fmt.Fprintf(a.Stdout, "%-28s missing\n", "seabios")
			errs = append(errs, err)
		} else {
			fmt.Fprintf(a.Stdout, "%-28s %s\n", "seabios", path)
		}
	}

	if _, err := os.Stat(t.layout.ConfigSource(t.profile)); err != nil {
		fmt.Fprintf(a.Stdout, "%-28s missing\n", filepath.Base(t.layout.ConfigSource(t.profile)))
		errs = append(errs, fmt.Errorf("config for %s: %w", t.profile.Name, err))
	}

	return errors.Join(errs...)
}

func (a *App) cmdInit(ctx context.Context, g globals, args []string) error {
	fs := a.newFlagSet("init")
	root := fs.String("root", "", "Workspace root (default: the current directory)")
	force := fs.Bool("force", false, "Overwrite an existing file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	dir := *root
	if dir == "" {
		var err error
		if dir, err = a.getwd(); err != nil {
			return err
		}
	}

	path := filepath.Join(dir, config.Filename)
	if g.configPath != "" {
		path = g.configPath
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}

	if err := config.Write(path, config.Config{}); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Wrote %s\n", path)
	return nil
}
