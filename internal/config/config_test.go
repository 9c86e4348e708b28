package config

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func TestParseAttributes(t *testing.T) {
	src := `
register_level = max(var.level, 2)
address_width  = 32
debug_monitors = true
asset_dir      = "${var.root}/assets"
lint           = var.lint
`
	vars := Vars{}
	for _, kv := range []string{"level=3", "root=/opt/taskhdl", "lint=false"} {
		if err := vars.Set(kv); err != nil {
			t.Fatalf("Set(%q): %v", kv, err)
		}
	}
	cfg, err := Parse([]byte(src), "taskhdl.hcl", vars)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	level, width, monitors, lint := 3, 32, true, false
	assets := "/opt/taskhdl/assets"
	want := &File{
		RegisterLevel: &level,
		AddressWidth:  &width,
		DebugMonitors: &monitors,
		AssetDir:      &assets,
		Lint:          &lint,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEmptyLeavesDefaults(t *testing.T) {
	cfg, err := Parse(nil, "empty.hcl", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(&File{}, cfg); diff != "" {
		t.Fatalf("empty config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", "register_level = ", "failed to parse"},
		{"unknown attribute", "fifo_depth = 4", "failed to decode"},
		{"undefined variable", "register_level = var.nope", "failed to decode"},
		{"wrong type", `debug_monitors = "maybe"`, "failed to decode"},
		{"negative level", "register_level = -1", "must not be negative"},
		{"address width", "address_width = 128", "within 1..64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.hcl", Vars{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Parse error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadFromFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/cfg/taskhdl.hcl", []byte(`output_dir = "build"`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(fs, "/cfg/taskhdl.hcl", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OutputDir == nil || *cfg.OutputDir != "build" {
		t.Fatalf("output_dir = %v", cfg.OutputDir)
	}
	if _, err := Load(fs, "/cfg/missing.hcl", nil); err == nil {
		t.Fatalf("expected error for a missing file")
	}
}

func TestVarsFlag(t *testing.T) {
	vars := Vars{}
	for _, bad := range []string{"novalue", "=x", "1abc=2"} {
		if err := vars.Set(bad); err == nil {
			t.Fatalf("Set(%q) accepted", bad)
		}
	}
	if err := vars.Set("b=2"); err != nil {
		t.Fatal(err)
	}
	if err := vars.Set("a=x=y"); err != nil {
		t.Fatal(err)
	}
	if got := vars.String(); got != "a=x=y,b=2" {
		t.Fatalf("String() = %q", got)
	}
}
