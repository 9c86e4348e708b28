// Package config reads the optional taskhdl.hcl file. Every attribute is
// optional; attributes may reference variables supplied on the command line
// as var.<name> and call min/max.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// File mirrors taskhdl.hcl. A nil field was not set.
type File struct {
	RegisterLevel *int    `hcl:"register_level,optional"`
	AddressWidth  *int    `hcl:"address_width,optional"`
	DebugMonitors *bool   `hcl:"debug_monitors,optional"`
	AssetDir      *string `hcl:"asset_dir,optional"`
	OutputDir     *string `hcl:"output_dir,optional"`
	Lint          *bool   `hcl:"lint,optional"`
	LintPath      *string `hcl:"lint_path,optional"`
}

// Vars collects repeated -var name=value flags. It implements flag.Value.
type Vars map[string]string

func (v Vars) String() string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + v[name]
	}
	return strings.Join(parts, ",")
}

// Set parses one name=value pair.
func (v Vars) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("variable %q must have the form name=value", s)
	}
	if !hclsyntax.ValidIdentifier(name) {
		return fmt.Errorf("variable name %q is not a valid identifier", name)
	}
	v[name] = value
	return nil
}

// EvalContext exposes the variables as var.<name> strings; HCL converts
// them to the attribute type on decode.
func (v Vars) EvalContext() *hcl.EvalContext {
	vals := make(map[string]cty.Value, len(v))
	for name, value := range v {
		vals[name] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": cty.ObjectVal(vals)},
		Functions: map[string]function.Function{
			"max": stdlib.MaxFunc,
			"min": stdlib.MinFunc,
		},
	}
}

// Load parses and decodes the config file at path.
func Load(fs afero.Fs, path string, vars Vars) (*File, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	src, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(src, path, vars)
}

// Parse decodes config source; filename is used in diagnostics only.
func Parse(src []byte, filename string, vars Vars) (*File, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("config: failed to parse %s: %s", filename, diags.Error())
	}
	var cfg File
	diags = gohcl.DecodeBody(file.Body, vars.EvalContext(), &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("config: failed to decode %s: %s", filename, diags.Error())
	}
	if cfg.RegisterLevel != nil && *cfg.RegisterLevel < 0 {
		return nil, fmt.Errorf("config: register_level must not be negative, got %d", *cfg.RegisterLevel)
	}
	if cfg.AddressWidth != nil && (*cfg.AddressWidth < 1 || *cfg.AddressWidth > 64) {
		return nil, fmt.Errorf("config: address_width must be within 1..64, got %d", *cfg.AddressWidth)
	}
	return &cfg, nil
}
