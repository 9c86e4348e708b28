package backend

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"taskhdl/internal/diag"
	"taskhdl/internal/frontend"
	"taskhdl/internal/ir"
)

const leafA = "module A (input ap_clk);\nendmodule\n"

func TestWriteDesignLayout(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeAssets(t, fs, "/assets")
	design := testDesign(t, "fifo")
	sources := []frontend.Source{{Path: "sub/A.v", Text: leafA, Modules: []*ir.Module{verbatim("A", leafA)}}}

	res, err := WriteDesign(design, sources, "/out", Options{Fs: fs, AssetDir: "/assets"})
	if err != nil {
		t.Fatalf("WriteDesign failed: %v", err)
	}
	want := []string{"/out/Top.v", "/out/sub/A.v", "/out/fifo.v"}
	if diff := cmp.Diff(want, res.Files); diff != "" {
		t.Fatalf("files mismatch (-want +got):\n%s", diff)
	}
	if res.TopPath != "/out/Top.v" {
		t.Fatalf("expected top path /out/Top.v, got %s", res.TopPath)
	}
	top := readFile(t, fs, "/out/Top.v")
	if !strings.HasPrefix(top, "module Top\n") || !strings.Contains(top, "  fifo\n") {
		t.Fatalf("unexpected top module:\n%s", top)
	}
	if got := readFile(t, fs, "/out/sub/A.v"); got != leafA {
		t.Fatalf("leaf source must be copied unchanged, got:\n%s", got)
	}
	if got := readFile(t, fs, "/out/fifo.v"); got != "// fifo.v\n" {
		t.Fatalf("expected fifo primitive copy, got:\n%s", got)
	}
	if ok, _ := afero.Exists(fs, "/out/async_mmap.v"); ok {
		t.Fatalf("unused primitives must not be copied")
	}
}

func TestWriteDesignDropsRegeneratedModules(t *testing.T) {
	fs := afero.NewMemMapFs()
	skeleton := "module Top (input ap_clk);\nendmodule\n"
	text := leafA + skeleton
	sources := []frontend.Source{{
		Path:    "mixed.v",
		Text:    text,
		Modules: []*ir.Module{verbatim("A", leafA), verbatim("Top", skeleton)},
	}}
	if _, err := WriteDesign(testDesign(t, ""), sources, "/out", Options{Fs: fs}); err != nil {
		t.Fatalf("WriteDesign failed: %v", err)
	}
	if got := readFile(t, fs, "/out/mixed.v"); got != leafA {
		t.Fatalf("expected only the leaf module, got:\n%s", got)
	}
}

func TestWriteDesignErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := WriteDesign(nil, nil, "/out", Options{Fs: fs}); err == nil {
		t.Fatalf("expected error for a nil design")
	}
	if _, err := WriteDesign(testDesign(t, ""), nil, "-", Options{Fs: fs}); err == nil {
		t.Fatalf("expected error without an output directory")
	}

	clash := []frontend.Source{{Path: "Top.v", Text: leafA, Modules: []*ir.Module{verbatim("A", leafA)}}}
	tests := []struct {
		name      string
		primitive string
		sources   []frontend.Source
		assetDir  string
		want      string
		sentinel  error
	}{
		{name: "no asset dir", primitive: "async_mmap", want: "asset directory"},
		{name: "missing primitive", primitive: "async_mmap", assetDir: "/nowhere", want: "read primitive async_mmap"},
		{name: "path collision", sources: clash, want: "produced by both", sentinel: diag.ErrNamingCollision},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			_, err := WriteDesign(testDesign(t, tt.primitive), tt.sources, "/out", Options{Fs: fs, AssetDir: tt.assetDir})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
			if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
				t.Fatalf("expected %v, got %v", tt.sentinel, err)
			}
			if ok, _ := afero.Exists(fs, "/out/Top.v"); ok {
				t.Fatalf("Top.v written despite the failure")
			}
			if ok, _ := afero.DirExists(fs, "/out"); ok {
				t.Fatalf("output directory created despite the failure")
			}
		})
	}
}

func TestWriteDesignRunsLint(t *testing.T) {
	requirePosix(t)
	tmp := t.TempDir()
	lint := writeScript(t, tmp, "verilator.sh", `#!/bin/sh
echo "lint: $*"
`)
	out := filepath.Join(tmp, "out")
	var stdout bytes.Buffer
	res, err := WriteDesign(testDesign(t, ""), nil, out, Options{Lint: true, LintPath: lint, Stdout: &stdout})
	if err != nil {
		t.Fatalf("WriteDesign failed: %v", err)
	}
	want := "lint: --lint-only -Wall -Wno-fatal --top-module Top " + res.TopPath + "\n"
	if stdout.String() != want {
		t.Fatalf("unexpected lint invocation:\n%s\nwant:\n%s", stdout.String(), want)
	}
	if _, err := os.Stat(res.TopPath); err != nil {
		t.Fatalf("top module not written to disk: %v", err)
	}
}

func TestWriteDesignLintFailure(t *testing.T) {
	requirePosix(t)
	tmp := t.TempDir()
	lint := writeScript(t, tmp, "verilator.sh", `#!/bin/sh
echo "%Error: bad" >&2
exit 1
`)
	var stderr bytes.Buffer
	_, err := WriteDesign(testDesign(t, ""), nil, filepath.Join(tmp, "out"), Options{Lint: true, LintPath: lint, Stderr: &stderr})
	if err == nil || !strings.Contains(err.Error(), "lint failed") {
		t.Fatalf("expected lint failure, got %v", err)
	}
	if !strings.Contains(stderr.String(), "%Error: bad") {
		t.Fatalf("expected linter stderr to be forwarded, got %q", stderr.String())
	}
}

func TestWriteDesignMissingLinter(t *testing.T) {
	opts := Options{Lint: true, LintPath: filepath.Join(t.TempDir(), "missing")}
	_, err := WriteDesign(testDesign(t, ""), nil, t.TempDir(), opts)
	if err == nil || !strings.Contains(err.Error(), "resolve verilator") {
		t.Fatalf("expected error when verilator is missing, got %v", err)
	}
}

// testDesign returns a one-module design that instantiates primitive when
// it is non-empty.
func testDesign(t *testing.T, primitive string) *ir.Design {
	t.Helper()
	mod := ir.NewModule("Top")
	if err := mod.AddPorts(ir.Port{Name: "ap_clk", Direction: ir.Input}); err != nil {
		t.Fatal(err)
	}
	if primitive != "" {
		if err := mod.AddInstance(ir.Instance{Module: primitive, Name: "u0"}); err != nil {
			t.Fatal(err)
		}
	}
	return &ir.Design{Modules: []*ir.Module{mod}, TopLevel: mod}
}

func verbatim(name, text string) *ir.Module {
	m := ir.NewModule(name)
	m.Verbatim = text
	return m
}

func writeAssets(t *testing.T, fs afero.Fs, dir string) {
	t.Helper()
	for _, name := range []string{"fifo.v", "async_mmap.v"} {
		if err := afero.WriteFile(fs, filepath.Join(dir, name), []byte("// "+name+"\n"), 0o644); err != nil {
			t.Fatalf("write asset: %v", err)
		}
	}
}

func readFile(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, name)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	if runtime.GOOS == "windows" {
		t.Skip("tests require a POSIX shell")
	}
	return path
}

func requirePosix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require a POSIX shell")
	}
}
