package build

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tinyrange/readpflash/internal/arch"
	"github.com/tinyrange/readpflash/internal/config"
	"github.com/tinyrange/readpflash/internal/toolexec"
)

func testLayout(t *testing.T) Layout {
	t.Helper()
	root := t.TempDir()

	c := config.Config{}
	c.Kernel = "kernel"
	c.ConfigExt = "toml"
	c.ActiveConfig = ".axconfig.toml"
	c.Image = "pflash.img"

	l := NewLayout(root, c)

	if err := os.MkdirAll(filepath.Join(root, "configs"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, a := range arch.Supported() {
		body := "arch = \"" + string(a) + "\"\n"
		if err := os.WriteFile(l.ConfigSource(arch.MustLookup(a)), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return l
}

// fakeToolchain behaves like cargo and objcopy: it creates the files the
// real tools would produce.
func fakeToolchain(t *testing.T, l Layout, p arch.Profile) *toolexec.Recorder {
	t.Helper()
	return &toolexec.Recorder{
		Handler: func(cmd toolexec.Command) error {
			var out string
			switch cmd.Name {
			case "cargo":
				out = l.ELF(p)
			case "rust-objcopy":
				out = l.Raw(p)
			default:
				t.Fatalf("unexpected tool %s", cmd.Name)
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return err
			}
			return os.WriteFile(out, []byte(cmd.Name), 0o755)
		},
	}
}

func testPipeline(l Layout, r toolexec.Runner) *Pipeline {
	return &Pipeline{
		Layout: l,
		Runner: r,
		Tools:  config.Tools{Cargo: "cargo", Objcopy: "rust-objcopy"},
		Out:    &bytes.Buffer{},
	}
}

func TestBuildRISCV64(t *testing.T) {
	l := testLayout(t)
	p := arch.MustLookup(arch.RISCV64)
	rec := fakeToolchain(t, l, p)

	art, err := testPipeline(l, rec).Build(context.Background(), p)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, err := os.Stat(art.ELF); err != nil {
		t.Fatalf("ELF missing: %v", err)
	}
	if art.Raw != l.Raw(p) || art.KernelImage() != art.Raw {
		t.Fatalf("artifact = %+v", art)
	}

	active, err := os.ReadFile(l.ActiveConfig())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(active), "riscv64") {
		t.Fatalf("active config = %q", active)
	}

	want := []toolexec.Command{
		{
			Name: "cargo",
			Args: []string{"build", "--release", "--target", "riscv64gc-unknown-none-elf", "--manifest-path", filepath.Join(l.Root, "Cargo.toml")},
			Dir:  l.Root,
		},
		{
			Name: "rust-objcopy",
			Args: []string{"--binary-architecture=riscv64", l.ELF(p), "--strip-all", "-O", "binary", l.Raw(p)},
			Dir:  l.Root,
		},
	}
	if diff := cmp.Diff(want, rec.Commands); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildX86SkipsFlatten(t *testing.T) {
	l := testLayout(t)
	p := arch.MustLookup(arch.X86_64)
	rec := fakeToolchain(t, l, p)

	art, err := testPipeline(l, rec).Build(context.Background(), p)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if art.Raw != "" || art.KernelImage() != l.ELF(p) {
		t.Fatalf("artifact = %+v", art)
	}
	if diff := cmp.Diff([]string{"cargo"}, rec.Names()); diff != "" {
		t.Fatalf("tools mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildConfigNotFound(t *testing.T) {
	l := testLayout(t)
	p := arch.MustLookup(arch.AArch64)
	if err := os.Remove(l.ConfigSource(p)); err != nil {
		t.Fatal(err)
	}
	rec := fakeToolchain(t, l, p)

	_, err := testPipeline(l, rec).Build(context.Background(), p)
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("error = %v, want ErrConfigNotFound", err)
	}
	if !strings.Contains(err.Error(), l.ConfigSource(p)) {
		t.Errorf("error %q does not name the path", err)
	}
	if len(rec.Commands) != 0 {
		t.Fatalf("ran %v after config failure", rec.Names())
	}
}

func TestBuildCompileFailed(t *testing.T) {
	l := testLayout(t)
	p := arch.MustLookup(arch.RISCV64)
	rec := &toolexec.Recorder{
		Handler: func(cmd toolexec.Command) error {
			return &toolexec.ExitError{Tool: cmd.Name, Code: 101}
		},
	}

	_, err := testPipeline(l, rec).Build(context.Background(), p)
	if !errors.Is(err, ErrCompileFailed) {
		t.Fatalf("error = %v, want ErrCompileFailed", err)
	}
	if code := toolexec.ExitCode(err); code != 101 {
		t.Fatalf("exit code = %d, want 101", code)
	}
	if diff := cmp.Diff([]string{"cargo"}, rec.Names()); diff != "" {
		t.Fatalf("tools mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(l.ArtifactRecord(p)); !os.IsNotExist(err) {
		t.Fatalf("artifact record written after failure: %v", err)
	}
}

func TestBuildFlattenFailed(t *testing.T) {
	l := testLayout(t)
	p := arch.MustLookup(arch.LoongArch64)
	inner := fakeToolchain(t, l, p)
	rec := &toolexec.Recorder{
		Handler: func(cmd toolexec.Command) error {
			if cmd.Name == "rust-objcopy" {
				return &toolexec.ExitError{Tool: cmd.Name, Code: 4}
			}
			return inner.Handler(cmd)
		},
	}

	_, err := testPipeline(l, rec).Build(context.Background(), p)
	if !errors.Is(err, ErrFlattenFailed) {
		t.Fatalf("error = %v, want ErrFlattenFailed", err)
	}
	if errors.Is(err, ErrCompileFailed) {
		t.Fatalf("flatten failure also matches ErrCompileFailed")
	}
	if code := toolexec.ExitCode(err); code != 4 {
		t.Fatalf("exit code = %d, want 4", code)
	}
}

func TestBuildMissingELF(t *testing.T) {
	l := testLayout(t)
	p := arch.MustLookup(arch.AArch64)

	_, err := testPipeline(l, &toolexec.Recorder{}).Build(context.Background(), p)
	if err == nil {
		t.Fatal("Build succeeded without an ELF")
	}
}

func TestLoadArtifact(t *testing.T) {
	l := testLayout(t)
	p := arch.MustLookup(arch.AArch64)

	if _, err := LoadArtifact(l, p); err == nil {
		t.Fatal("LoadArtifact succeeded before any build")
	}

	art, err := testPipeline(l, fakeToolchain(t, l, p)).Build(context.Background(), p)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	got, err := LoadArtifact(l, p)
	if err != nil {
		t.Fatalf("LoadArtifact: %v", err)
	}
	if diff := cmp.Diff(art, got); diff != "" {
		t.Fatalf("artifact mismatch (-want +got):\n%s", diff)
	}

	if err := os.Remove(art.Raw); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadArtifact(l, p); err == nil {
		t.Fatal("LoadArtifact succeeded with the raw binary gone")
	}
}

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/w", config.Default())
	p := arch.MustLookup(arch.X86_64)

	for got, want := range map[string]string{
		l.ConfigSource(p): "/w/configs/x86_64.toml",
		l.ActiveConfig():  "/w/.axconfig.toml",
		l.Manifest():      "/w/Cargo.toml",
		l.ELF(p):          "/w/target/x86_64-unknown-none/release/arceos-readpflash",
		l.Raw(p):          "/w/target/x86_64-unknown-none/release/arceos-readpflash.bin",
		l.Image():         "/w/pflash.img",
	} {
		if filepath.ToSlash(got) != want {
			t.Errorf("path = %q, want %q", got, want)
		}
	}
}
