// Package qemu assembles and runs the qemu-system command line that boots a
// kernel with the pflash image attached.
package qemu

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tinyrange/readpflash/internal/arch"
	"github.com/tinyrange/readpflash/internal/build"
	"github.com/tinyrange/readpflash/internal/toolexec"
)

var ErrEmulatorLaunchFailed = errors.New("emulator launch failed")

type Options struct {
	Prefix string
	Memory string
	SMP    int
	// Extra is appended after the generated arguments.
	Extra []string
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = "qemu"
	}
	if o.Memory == "" {
		o.Memory = "128M"
	}
	if o.SMP == 0 {
		o.SMP = 1
	}
	return o
}

type Invocation struct {
	Binary string
	Args   []string
}

func (inv Invocation) String() string {
	return inv.Binary + " " + strings.Join(inv.Args, " ")
}

// DriveSpec is the -drive value attaching image read-only as pflash unit.
func DriveSpec(unit int, image string) string {
	return fmt.Sprintf("if=pflash,format=raw,unit=%d,file=%s,readonly=on", unit, image)
}

// Build returns the command line booting art on p's machine model. A
// profile outside the registry yields an *arch.UnsupportedError.
func Build(p arch.Profile, art build.Artifact, image string, opts Options) (Invocation, error) {
	opts = opts.withDefaults()

	args := []string{
		"-m", opts.Memory,
		"-smp", strconv.Itoa(opts.SMP),
		"-nographic",
	}

	drive := []string{"-drive", DriveSpec(p.DriveUnit, image)}

	switch p.Name {
	case arch.RISCV64:
		// pflash0 is reserved for firmware; the data bank is pflash1.
		args = append(args, "-machine", p.Machine, "-bios", p.BootROM, "-kernel", art.KernelImage())
		args = append(args, drive...)
	case arch.AArch64:
		args = append(args, "-cpu", p.CPU, "-machine", p.Machine, "-kernel", art.KernelImage())
		args = append(args, drive...)
	case arch.X86_64:
		// One bank carries both SeaBIOS and the data marker.
		args = append(args, "-machine", p.Machine)
		args = append(args, drive...)
		args = append(args, "-kernel", art.ELF)
	case arch.LoongArch64:
		args = append(args, "-machine", p.Machine)
		args = append(args, drive...)
		args = append(args, "-kernel", art.KernelImage())
	default:
		return Invocation{}, &arch.UnsupportedError{Name: string(p.Name), Supported: arch.Supported()}
	}

	args = append(args, opts.Extra...)

	return Invocation{
		Binary: p.EmulatorBinary(opts.Prefix),
		Args:   args,
	}, nil
}

// Execute runs the emulator with stdio passed through and waits for it to
// exit. There is no timeout; the user ends the session.
func (inv Invocation) Execute(ctx context.Context, r toolexec.Runner) error {
	err := r.Run(ctx, toolexec.Command{Name: inv.Binary, Args: inv.Args})
	if errors.Is(err, toolexec.ErrLaunchFailed) {
		return fmt.Errorf("%w: %w", ErrEmulatorLaunchFailed, err)
	}
	return err
}
