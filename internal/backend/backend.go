package backend

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"taskhdl/internal/diag"
	"taskhdl/internal/frontend"
	"taskhdl/internal/ir"
	"taskhdl/internal/verilog"
)

// Options configures how the design is written out.
type Options struct {
	// Fs receives every output file; nil means the OS filesystem.
	Fs afero.Fs
	// AssetDir holds the static primitives (fifo.v, async_mmap.v). Only the
	// primitives the design instantiates are copied.
	AssetDir string
	// Lint runs the linter over the written files. The linter reads from
	// disk, so this requires the OS filesystem.
	Lint bool
	// LintPath optionally overrides the verilator binary. When empty the
	// backend looks it up on PATH.
	LintPath string
	// Stdout and Stderr receive the linter output; nil means os.Stdout and
	// os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
	Logger hclog.Logger
}

// Result lists the artifacts written to the output directory.
type Result struct {
	// TopPath is the generated top-level module.
	TopPath string
	// Files holds every written file in write order: generated modules,
	// then pass-through sources, then primitives.
	Files []string
}

// primitives maps an instantiated module name to its asset file.
var primitives = map[string]string{
	"fifo":       "fifo.v",
	"async_mmap": "async_mmap.v",
}

// WriteDesign writes one <module>.v per generated module, copies the
// pass-through leaf sources under their relative paths and adds the
// primitives the design instantiates. On error no file is written.
func WriteDesign(design *ir.Design, sources []frontend.Source, outputDir string, opts Options) (Result, error) {
	if design == nil || design.TopLevel == nil {
		return Result{}, fmt.Errorf("backend: design is nil")
	}
	if outputDir == "" || outputDir == "-" {
		return Result{}, fmt.Errorf("backend: an output directory is required")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("backend")

	// Every file is rendered and every asset read before the first write,
	// so a failed run leaves nothing behind.
	var (
		res     Result
		pending []outputFile
	)
	written := make(map[string]string)
	claim := func(rel, owner string, data []byte) error {
		if prev, ok := written[rel]; ok {
			return fmt.Errorf("backend: %s is produced by both %s and %s: %w", rel, prev, owner, diag.ErrNamingCollision)
		}
		written[rel] = owner
		full := filepath.Join(outputDir, filepath.FromSlash(rel))
		pending = append(pending, outputFile{path: full, data: data})
		res.Files = append(res.Files, full)
		return nil
	}

	generated := make(map[string]bool)
	for _, m := range design.Modules {
		generated[m.Name] = true
		text, err := verilog.Render(m)
		if err != nil {
			return Result{}, fmt.Errorf("backend: emit %s: %w", m.Name, err)
		}
		if err := claim(m.Name+".v", "module "+m.Name, []byte(text)); err != nil {
			return Result{}, err
		}
		if m == design.TopLevel {
			res.TopPath = res.Files[len(res.Files)-1]
		}
	}

	for _, src := range sources {
		text := passThroughText(src, generated, logger)
		if err := claim(src.Path, "source "+src.Path, []byte(text)); err != nil {
			return Result{}, err
		}
	}

	for _, name := range usedPrimitives(design) {
		file := primitives[name]
		if opts.AssetDir == "" {
			return Result{}, fmt.Errorf("backend: asset directory required for primitive %s", name)
		}
		data, err := afero.ReadFile(opts.Fs, filepath.Join(opts.AssetDir, file))
		if err != nil {
			return Result{}, fmt.Errorf("backend: read primitive %s: %w", name, err)
		}
		if err := claim(file, "primitive "+name, data); err != nil {
			return Result{}, err
		}
	}

	if err := opts.Fs.MkdirAll(outputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("backend: create output dir: %w", err)
	}
	for _, f := range pending {
		if err := writeFile(opts.Fs, f.path, f.data); err != nil {
			return Result{}, err
		}
		logger.Debug("wrote file", "path", f.path)
	}

	if opts.Lint {
		if err := runLint(opts, design.TopLevel.Name, res.Files); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

type outputFile struct {
	path string
	data []byte
}

func writeFile(fs afero.Fs, full string, data []byte) error {
	if err := fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("backend: create dir for %s: %w", full, err)
	}
	if err := afero.WriteFile(fs, full, data, 0o644); err != nil {
		return fmt.Errorf("backend: write %s: %w", full, err)
	}
	return nil
}

// passThroughText returns the source unchanged unless it also defines a
// module that generation replaced; those files keep only their other
// modules.
func passThroughText(src frontend.Source, generated map[string]bool, logger hclog.Logger) string {
	var kept []string
	replaced := false
	for _, m := range src.Modules {
		if generated[m.Name] {
			replaced = true
			continue
		}
		kept = append(kept, m.Verbatim)
	}
	if !replaced {
		return src.Text
	}
	logger.Warn("dropping regenerated modules from source", "file", path.Base(src.Path))
	return strings.Join(kept, "\n")
}

// usedPrimitives lists the primitive modules instantiated anywhere in the
// design, sorted by name.
func usedPrimitives(design *ir.Design) []string {
	seen := make(map[string]bool)
	for _, m := range design.Modules {
		for _, inst := range m.Instances() {
			if _, ok := primitives[inst.Module]; ok {
				seen[inst.Module] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runLint(opts Options, top string, files []string) error {
	binary, err := resolveBinary(opts.LintPath, "verilator")
	if err != nil {
		return fmt.Errorf("backend: resolve verilator: %w", err)
	}
	args := []string{"--lint-only", "-Wall", "-Wno-fatal", "--top-module", top}
	args = append(args, files...)
	cmd := exec.Command(binary, args...)
	cmd.Stdout = opts.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = opts.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("backend: lint failed: %w", err)
	}
	return nil
}

func resolveBinary(explicit, fallback string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	found, err := exec.LookPath(fallback)
	if err != nil {
		return "", err
	}
	return found, nil
}
