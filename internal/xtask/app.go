// Package xtask is the readpflash command line: it wires the architecture
// registry, build pipeline, pflash image and emulator invocation together.
package xtask

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/xyproto/env/v2"
	"golang.org/x/term"

	"github.com/tinyrange/readpflash/internal/arch"
	"github.com/tinyrange/readpflash/internal/build"
	"github.com/tinyrange/readpflash/internal/config"
	"github.com/tinyrange/readpflash/internal/firmware"
	"github.com/tinyrange/readpflash/internal/toolexec"
)

const name = "readpflash"

// usageError has already been reported by the flag set.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

type App struct {
	Stdout io.Writer
	Stderr io.Writer
	Runner toolexec.Runner

	// Firmware overrides the configured boot ROM search list when set.
	Firmware *firmware.Locator
	// Progress enables the image write progress bar.
	Progress bool
	// Getwd resolves the default workspace root.
	Getwd func() (string, error)

	logger *slog.Logger
}

// New returns an App bound to the process's stdio.
func New() *App {
	return &App{
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Runner:   toolexec.ExecRunner{},
		Progress: term.IsTerminal(int(os.Stderr.Fd())),
		Getwd:    os.Getwd,
	}
}

type command struct {
	summary string
	run     func(a *App, ctx context.Context, g globals, args []string) error
}

var commands = map[string]command{
	"build": {"Build the kernel for a given architecture", (*App).cmdBuild},
	"run":   {"Build and run the kernel in QEMU", (*App).cmdRun},
	"image": {"Write the pflash image without building or running", (*App).cmdImage},
	"info":  {"Show the profile of an architecture", (*App).cmdInfo},
	"check": {"Check that the toolchain and emulator are installed", (*App).cmdCheck},
	"init":  {"Write a default " + config.Filename, (*App).cmdInit},
}

type globals struct {
	debug      bool
	configPath string
}

// Main runs the command line and returns the process exit code: the
// failing tool's code when there is one, otherwise 1.
func (a *App) Main(ctx context.Context, args []string) int {
	err := a.Run(ctx, args)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return 0
	}

	var ue *usageError
	if !errors.As(err, &ue) {
		fmt.Fprintf(a.Stderr, "%s: %v\n", name, err)
	}
	return toolexec.ExitCode(err)
}

func (a *App) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.Stderr)

	var g globals
	fs.BoolVar(&g.debug, "debug", false, "Enable debug logging")
	fs.StringVar(&g.configPath, "config", "", "Project config file (default: <root>/"+config.Filename+")")
	fs.Usage = func() { a.usage(fs) }

	if err := parseFlags(fs, args); err != nil {
		return err
	}

	a.setupLogging(g.debug)

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return &usageError{"subcommand required"}
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(a.Stderr, "unknown subcommand %q\n\n", rest[0])
		fs.Usage()
		return &usageError{"unknown subcommand " + rest[0]}
	}

	return cmd.run(a, ctx, g, rest[1:])
}

func (a *App) usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintf(w, "Usage: %s [flags] <command> [-arch ARCH] [command flags]\n\n", name)
	fmt.Fprintf(w, "Build and run the pflash example kernel on different architectures.\n\n")
	fmt.Fprintf(w, "Commands:\n")

	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %-6s %s\n", n, commands[n].summary)
	}

	fmt.Fprintf(w, "\nArchitectures: %v\n\nFlags:\n", arch.Supported())
	fs.PrintDefaults()
}

func (a *App) setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(a.Stderr, &slog.HandlerOptions{Level: level}))
}

func (a *App) log() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger
}

// target is one subcommand's resolved architecture and workspace.
type target struct {
	profile arch.Profile
	cfg     config.Config
	layout  build.Layout
}

type targetFlags struct {
	arch string
	root string
}

func addTargetFlags(fs *flag.FlagSet) *targetFlags {
	tf := &targetFlags{}
	fs.StringVar(&tf.arch, "arch", string(arch.RISCV64), "Target architecture: riscv64, aarch64, x86_64, loongarch64")
	fs.StringVar(&tf.root, "root", "", "Workspace root (default: $READPFLASH_ROOT or the current directory)")
	return tf
}

// parseFlags parses args; the flag set has already printed any error.
func parseFlags(fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return err
	}
	return &usageError{err.Error()}
}

func (a *App) newFlagSet(cmd string) *flag.FlagSet {
	fs := flag.NewFlagSet(name+" "+cmd, flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	return fs
}

func (a *App) resolve(g globals, tf *targetFlags) (*target, error) {
	p, err := arch.Lookup(tf.arch)
	if err != nil {
		return nil, err
	}

	root := tf.root
	if root == "" {
		root = env.Str("READPFLASH_ROOT")
	}
	// Tools run with the root as their working directory, so every path
	// handed to them must be absolute.
	if !filepath.IsAbs(root) {
		cwd, err := a.getwd()
		if err != nil {
			return nil, err
		}
		root = filepath.Join(cwd, root)
	}

	cfg, err := config.Load(root, g.configPath)
	if err != nil {
		return nil, err
	}

	a.log().Debug("resolved target", "arch", p.Name, "root", root)

	return &target{
		profile: p,
		cfg:     cfg,
		layout:  build.NewLayout(root, cfg),
	}, nil
}

func (a *App) getwd() (string, error) {
	getwd := a.Getwd
	if getwd == nil {
		getwd = os.Getwd
	}
	dir, err := getwd()
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	return dir, nil
}

func (a *App) pipeline(t *target) *build.Pipeline {
	return &build.Pipeline{
		Layout: t.layout,
		Runner: a.Runner,
		Tools:  t.cfg.Tools,
		Logger: a.log(),
		Out:    a.Stdout,
	}
}

func (a *App) locator(t *target) firmware.Locator {
	if a.Firmware != nil {
		return *a.Firmware
	}
	return firmware.Locator{Paths: t.cfg.Firmware.Paths}
}
