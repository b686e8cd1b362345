package qemu

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tinyrange/readpflash/internal/arch"
	"github.com/tinyrange/readpflash/internal/build"
	"github.com/tinyrange/readpflash/internal/toolexec"
)

var testArtifact = build.Artifact{ELF: "/t/kernel", Raw: "/t/kernel.bin"}

func TestBuildArgs(t *testing.T) {
	common := []string{"-m", "128M", "-smp", "1", "-nographic"}

	for _, tt := range []struct {
		arch   arch.Architecture
		binary string
		args   []string
	}{
		{
			arch.RISCV64, "qemu-system-riscv64",
			[]string{"-machine", "virt", "-bios", "default", "-kernel", "/t/kernel.bin",
				"-drive", "if=pflash,format=raw,unit=1,file=/t/pflash.img,readonly=on"},
		},
		{
			arch.AArch64, "qemu-system-aarch64",
			[]string{"-cpu", "cortex-a72", "-machine", "virt", "-kernel", "/t/kernel.bin",
				"-drive", "if=pflash,format=raw,unit=1,file=/t/pflash.img,readonly=on"},
		},
		{
			arch.X86_64, "qemu-system-x86_64",
			[]string{"-machine", "q35",
				"-drive", "if=pflash,format=raw,unit=0,file=/t/pflash.img,readonly=on",
				"-kernel", "/t/kernel"},
		},
		{
			arch.LoongArch64, "qemu-system-loongarch64",
			[]string{"-machine", "virt",
				"-drive", "if=pflash,format=raw,unit=1,file=/t/pflash.img,readonly=on",
				"-kernel", "/t/kernel.bin"},
		},
	} {
		t.Run(string(tt.arch), func(t *testing.T) {
			p := arch.MustLookup(tt.arch)
			art := testArtifact
			if !p.Flatten {
				art.Raw = ""
			}

			inv, err := Build(p, art, "/t/pflash.img", Options{})
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if inv.Binary != tt.binary {
				t.Errorf("Binary = %q, want %q", inv.Binary, tt.binary)
			}
			want := append(append([]string(nil), common...), tt.args...)
			if diff := cmp.Diff(want, inv.Args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDriveUnits(t *testing.T) {
	for _, a := range arch.Supported() {
		p := arch.MustLookup(a)
		inv, err := Build(p, testArtifact, "img", Options{})
		if err != nil {
			t.Fatalf("%s: Build: %v", a, err)
		}

		want := "unit=1"
		if p.IsX86() {
			want = "unit=0"
		}
		if !strings.Contains(inv.String(), want) {
			t.Errorf("%s: %q does not contain %s", a, inv, want)
		}
	}
}

func TestBuildOptions(t *testing.T) {
	p := arch.MustLookup(arch.AArch64)
	inv, err := Build(p, testArtifact, "img", Options{
		Prefix: "/opt/qemu/bin/qemu",
		Memory: "1G",
		SMP:    2,
		Extra:  []string{"-s", "-S"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if inv.Binary != "/opt/qemu/bin/qemu-system-aarch64" {
		t.Errorf("Binary = %q", inv.Binary)
	}
	if diff := cmp.Diff([]string{"-m", "1G", "-smp", "2"}, inv.Args[:4]); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if tail := inv.Args[len(inv.Args)-2:]; tail[0] != "-s" || tail[1] != "-S" {
		t.Errorf("extra args not last: %v", inv.Args)
	}
}

func TestBuildUnknownProfile(t *testing.T) {
	p := arch.MustLookup(arch.RISCV64)
	p.Name = "sparc64"

	_, err := Build(p, testArtifact, "img", Options{})
	if !errors.Is(err, arch.ErrUnsupportedArchitecture) {
		t.Fatalf("Build error = %v, want ErrUnsupportedArchitecture", err)
	}
}

func TestExecute(t *testing.T) {
	inv, err := Build(arch.MustLookup(arch.RISCV64), testArtifact, "img", Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	rec := &toolexec.Recorder{}
	if err := inv.Execute(context.Background(), rec); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(rec.Commands) != 1 || rec.Commands[0].Name != "qemu-system-riscv64" {
		t.Fatalf("commands = %v", rec.Names())
	}
	if diff := cmp.Diff(inv.Args, rec.Commands[0].Args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}

	rec.Handler = func(cmd toolexec.Command) error {
		return &toolexec.ExitError{Tool: cmd.Name, Code: 3}
	}
	if err := inv.Execute(context.Background(), rec); toolexec.ExitCode(err) != 3 {
		t.Fatalf("Execute error = %v, want exit code 3", err)
	}

	rec.Handler = func(cmd toolexec.Command) error {
		return &toolexec.LaunchError{Tool: cmd.Name, Err: errors.New("not found")}
	}
	err = inv.Execute(context.Background(), rec)
	if !errors.Is(err, ErrEmulatorLaunchFailed) {
		t.Fatalf("Execute error = %v, want ErrEmulatorLaunchFailed", err)
	}
}
