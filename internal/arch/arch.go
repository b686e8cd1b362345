// Package arch holds the static per-architecture facts needed to build a
// kernel, lay out its pflash image and boot it under QEMU.
package arch

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedArchitecture = errors.New("unsupported architecture")

type Architecture string

const (
	RISCV64     Architecture = "riscv64"
	AArch64     Architecture = "aarch64"
	X86_64      Architecture = "x86_64"
	LoongArch64 Architecture = "loongarch64"
)

const MiB = 1024 * 1024

// Profile describes one supported target. Profiles are never mutated after
// registration; Lookup returns copies.
type Profile struct {
	Name Architecture

	// CompileTarget is the toolchain target triple.
	CompileTarget string
	// Platform is the logical platform tag used for config selection.
	Platform string
	// ConversionArch is passed to the flattening tool as --binary-architecture.
	ConversionArch string

	// FlashSize must match the machine model's pflash bank size exactly.
	FlashSize int
	// FlashBase is the guest physical address of the data-carrying bank.
	FlashBase uint64
	// DriveUnit is the pflash unit used for the data image.
	DriveUnit int

	Machine string
	CPU     string
	// BootROM is the -bios value, empty to leave the flag out.
	BootROM string

	// Flatten reports whether the boot path needs a raw binary instead of
	// the ELF.
	Flatten bool

	// MinEmulatorVersion is the oldest qemu-system release known to model
	// this machine's pflash layout.
	MinEmulatorVersion string
}

var profiles = map[Architecture]Profile{
	RISCV64: {
		Name:               RISCV64,
		CompileTarget:      "riscv64gc-unknown-none-elf",
		Platform:           "riscv64-qemu-virt",
		ConversionArch:     "riscv64",
		FlashSize:          32 * MiB,
		FlashBase:          0x2200_0000,
		DriveUnit:          1,
		Machine:            "virt",
		BootROM:            "default",
		Flatten:            true,
		MinEmulatorVersion: "v4.0.0",
	},
	AArch64: {
		Name:               AArch64,
		CompileTarget:      "aarch64-unknown-none-softfloat",
		Platform:           "aarch64-qemu-virt",
		ConversionArch:     "aarch64",
		FlashSize:          64 * MiB,
		FlashBase:          0x0400_0000,
		DriveUnit:          1,
		Machine:            "virt",
		CPU:                "cortex-a72",
		Flatten:            true,
		MinEmulatorVersion: "v4.0.0",
	},
	X86_64: {
		Name:           X86_64,
		CompileTarget:  "x86_64-unknown-none",
		Platform:       "x86-pc",
		ConversionArch: "x86_64",
		FlashSize:      4 * MiB,
		// 4GiB - 4MiB: the bank ends at the reset vector.
		FlashBase:          0xFFC0_0000,
		DriveUnit:          0,
		Machine:            "q35",
		Flatten:            false,
		MinEmulatorVersion: "v4.0.0",
	},
	LoongArch64: {
		Name:           LoongArch64,
		CompileTarget:  "loongarch64-unknown-none",
		Platform:       "loongarch64-qemu-virt",
		ConversionArch: "loongarch64",
		FlashSize:      4 * MiB,
		// With pflash0 absent pflash1 maps at the base of VIRT_FLASH.
		FlashBase:          0x1d00_0000,
		DriveUnit:          1,
		Machine:            "virt",
		Flatten:            true,
		MinEmulatorVersion: "v8.1.0",
	},
}

// Supported returns every supported architecture in canonical order.
func Supported() []Architecture {
	return []Architecture{RISCV64, AArch64, X86_64, LoongArch64}
}

// UnsupportedError is returned by Lookup for a name outside the closed set.
type UnsupportedError struct {
	Name      string
	Supported []Architecture
}

func (e *UnsupportedError) Error() string {
	names := make([]string, len(e.Supported))
	for i, a := range e.Supported {
		names[i] = string(a)
	}
	return fmt.Sprintf("unsupported architecture %q (supported: %s)", e.Name, strings.Join(names, ", "))
}

func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupportedArchitecture
}

// Lookup returns the profile for name. There is no default: an unknown name
// is always an error.
func Lookup(name string) (Profile, error) {
	p, ok := profiles[Architecture(name)]
	if !ok {
		return Profile{}, &UnsupportedError{Name: name, Supported: Supported()}
	}
	return p, nil
}

// MustLookup is Lookup for the compile-time constants above.
func MustLookup(a Architecture) Profile {
	p, err := Lookup(string(a))
	if err != nil {
		panic(err)
	}
	return p
}

func (a Architecture) String() string { return string(a) }

// IsX86 reports whether the data image doubles as the boot ROM bank.
func (p Profile) IsX86() bool { return p.Name == X86_64 }

// EmulatorBinary returns the system emulator executable for p, e.g.
// "qemu-system-riscv64".
func (p Profile) EmulatorBinary(prefix string) string {
	return fmt.Sprintf("%s-system-%s", prefix, p.Name)
}
