package qemu

import (
	"context"
	"testing"

	"github.com/tinyrange/readpflash/internal/arch"
	"github.com/tinyrange/readpflash/internal/toolexec"
)

func TestParseVersion(t *testing.T) {
	for in, want := range map[string]string{
		"QEMU emulator version 8.2.2 (Debian 1:8.2.2+ds-0ubuntu1)\nCopyright (c) 2003-2023": "v8.2.2",
		"QEMU emulator version 9.1.50":             "v9.1.50",
		"QEMU emulator version 7.2":                "v7.2.0",
		"cargo 1.84.0-nightly (abcdef 2024-11-01)": "v1.84.0",
	} {
		got, err := ParseVersion(in)
		if err != nil {
			t.Errorf("ParseVersion(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseVersion(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := ParseVersion("no digits here"); err == nil {
		t.Error("ParseVersion accepted input without a version")
	}
}

func TestCheckVersion(t *testing.T) {
	p := arch.MustLookup(arch.LoongArch64)

	if err := CheckVersion(p, "qemu-system-loongarch64", "v7.2.0"); err == nil {
		t.Error("v7.2.0 accepted for loongarch64")
	}
	if err := CheckVersion(p, "qemu-system-loongarch64", "v8.1.0"); err != nil {
		t.Errorf("v8.1.0 rejected: %v", err)
	}
	if err := CheckVersion(p, "qemu-system-loongarch64", "v10.0.0"); err != nil {
		t.Errorf("v10.0.0 rejected: %v", err)
	}
}

func TestProbeVersion(t *testing.T) {
	rec := &toolexec.Recorder{
		Handler: func(cmd toolexec.Command) error {
			return toolexec.Reply(cmd, "QEMU emulator version 8.0.4\n")
		},
	}

	v, err := ProbeVersion(context.Background(), rec, "qemu-system-x86_64")
	if err != nil {
		t.Fatalf("ProbeVersion: %v", err)
	}
	if v != "v8.0.4" {
		t.Fatalf("version = %q", v)
	}
	if args := rec.Commands[0].Args; len(args) != 1 || args[0] != "--version" {
		t.Fatalf("args = %v", args)
	}
}

func TestParseVersionLaterLine(t *testing.T) {
	got, err := ParseVersion("LLVM (http://llvm.org/):\n  LLVM version 19.1.1-rust-1.84.0-stable\n")
	if err != nil {
		t.Fatal(err)
	}
	if got != "v19.1.1" {
		t.Fatalf("version = %q", got)
	}
}
