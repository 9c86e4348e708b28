package compose

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"golang.org/x/tools/txtar"

	"taskhdl/internal/diag"
	"taskhdl/internal/frontend"
	"taskhdl/internal/graph"
	"taskhdl/internal/ir"
	"taskhdl/internal/verilog"
)

// loadProgram materializes testdata/<name> in memory and loads it with
// every RTL module attached.
func loadProgram(t *testing.T, name string) *graph.Program {
	t.Helper()
	ar, err := txtar.ParseFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("parse archive: %v", err)
	}
	fs := afero.NewMemMapFs()
	for _, f := range ar.Files {
		if err := afero.WriteFile(fs, "/work/"+f.Name, f.Data, 0o644); err != nil {
			t.Fatalf("write %s: %v", f.Name, err)
		}
	}
	bundle, err := frontend.Load(frontend.LoadConfig{
		Fs:          fs,
		Description: "/work/program.json",
		RTLDir:      "/work/rtl",
	}, diag.NewReporter(io.Discard, "text"))
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return bundle.Program
}

func generate(t *testing.T, prog *graph.Program, opts Options) *ir.Design {
	t.Helper()
	design, err := New(prog, opts).Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return design
}

func instance(t *testing.T, m *ir.Module, name string) ir.Instance {
	t.Helper()
	for _, inst := range m.Instances() {
		if inst.Name == name {
			return inst
		}
	}
	t.Fatalf("module %s has no instance %s", m.Name, name)
	return ir.Instance{}
}

// bindings renders the port connections of an instance; open ports map to "".
func bindings(inst ir.Instance) map[string]string {
	out := make(map[string]string, len(inst.Ports))
	for _, p := range inst.Ports {
		if p.Arg == nil {
			out[p.Port] = ""
			continue
		}
		out[p.Port] = verilog.ExprString(p.Arg)
	}
	return out
}

func render(t *testing.T, m *ir.Module) string {
	t.Helper()
	text, err := verilog.Render(m)
	if err != nil {
		t.Fatalf("render %s: %v", m.Name, err)
	}
	return text
}

// emitAll renders every module of the design in order.
func emitAll(t *testing.T, design *ir.Design) string {
	t.Helper()
	var b strings.Builder
	for _, m := range design.Modules {
		if err := verilog.Emit(&b, m); err != nil {
			t.Fatalf("emit %s: %v", m.Name, err)
		}
	}
	return b.String()
}
