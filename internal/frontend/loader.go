package frontend

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"taskhdl/internal/diag"
	"taskhdl/internal/graph"
	"taskhdl/internal/ir"
	"taskhdl/internal/verilog"
)

// LoadConfig names the inputs of one compilation.
type LoadConfig struct {
	// Fs is the filesystem to read from; nil means the OS filesystem.
	Fs afero.Fs
	// Description is the path of the JSON task-hierarchy description.
	Description string
	// RTLDir holds the Verilog produced by the HLS back end. It may be empty
	// for a description-only load.
	RTLDir string
}

// Source is one Verilog file found under the RTL directory.
type Source struct {
	// Path is relative to the RTL directory, slash separated.
	Path    string
	Text    string
	Modules []*ir.Module
}

// Bundle is the loaded program together with the HLS sources it refers to.
type Bundle struct {
	Program *graph.Program
	RTLDir  string
	Sources []Source
}

// LoadDescription reads and decodes only the task-hierarchy description.
func LoadDescription(fs afero.Fs, file string) (*graph.Program, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	data, err := afero.ReadFile(fs, file)
	if err != nil {
		return nil, fmt.Errorf("read description: %w", err)
	}
	prog, err := graph.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return prog, nil
}

// Load reads the description, parses every *.v file below RTLDir and
// attaches the module named after each task to it. Leaf tasks must have a
// module; composite tasks may carry an HLS skeleton.
func Load(cfg LoadConfig, reporter *diag.Reporter) (*Bundle, error) {
	if cfg.Description == "" {
		return nil, fmt.Errorf("no description was provided")
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	prog, err := LoadDescription(cfg.Fs, cfg.Description)
	if err != nil {
		return nil, err
	}
	bundle := &Bundle{Program: prog, RTLDir: cfg.RTLDir}
	if cfg.RTLDir == "" {
		return bundle, nil
	}

	sources, err := scanRTL(cfg.Fs, cfg.RTLDir)
	if err != nil {
		return nil, err
	}
	bundle.Sources = sources

	modules := make(map[string]*ir.Module)
	for _, src := range sources {
		for _, m := range src.Modules {
			if _, dup := modules[m.Name]; dup {
				return nil, fmt.Errorf("%s: module %s defined twice: %w", src.Path, m.Name, diag.ErrNamingCollision)
			}
			modules[m.Name] = m
		}
		reporter.Logger().Debug("parsed rtl", "file", src.Path, "modules", len(src.Modules))
	}

	var missing bool
	for _, name := range prog.TaskNames() {
		task := prog.Tasks[name]
		m, ok := modules[name]
		switch {
		case ok && task.IsComposite():
			task.Skeleton = m
		case ok:
			task.Module = m
		case !task.IsComposite():
			reporter.Errorf("leaf task %s has no module under %s", name, cfg.RTLDir)
			missing = true
		}
	}
	if missing {
		return nil, fmt.Errorf("rtl loading failed: %w", diag.ErrMalformedDescription)
	}
	return bundle, nil
}

func scanRTL(fs afero.Fs, dir string) ([]Source, error) {
	base := afero.NewBasePathFs(fs, dir)
	matches, err := doublestar.Glob(afero.NewIOFS(base), "**/*.v")
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(matches)
	sources := make([]Source, 0, len(matches))
	for _, rel := range matches {
		data, err := afero.ReadFile(fs, filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("read rtl: %w", err)
		}
		modules, err := verilog.Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rel, err)
		}
		sources = append(sources, Source{Path: rel, Text: string(data), Modules: modules})
	}
	return sources, nil
}

// PassThrough returns the sources that must be copied to the output
// unchanged: every file that defines something other than a composite task.
func (b *Bundle) PassThrough() []Source {
	var out []Source
	for _, src := range b.Sources {
		keep := len(src.Modules) == 0
		for _, m := range src.Modules {
			if t, ok := b.Program.Task(m.Name); !ok || !t.IsComposite() {
				keep = true
			}
		}
		if keep {
			out = append(out, src)
		}
	}
	return out
}
