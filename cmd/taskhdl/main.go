package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/xlab/treeprint"

	"taskhdl/internal/backend"
	"taskhdl/internal/compose"
	"taskhdl/internal/config"
	"taskhdl/internal/diag"
	"taskhdl/internal/frontend"
	"taskhdl/internal/graph"
	"taskhdl/internal/ir"
	"taskhdl/internal/validate"
)

var writeDesign = backend.WriteDesign

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printGlobalUsage()
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "compile":
		return runCompile(args[1:])
	case "lint":
		return runLint(args[1:])
	case "graph":
		return runGraph(args[1:], os.Stdout)
	default:
		printGlobalUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printGlobalUsage() {
	fmt.Fprintf(os.Stderr, "taskhdl composes HLS task modules into a task-parallel design\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  taskhdl <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  compile    Generate the composite modules and write the Verilog bundle\n")
	fmt.Fprintf(os.Stderr, "  lint       Validate a task description (and its RTL when -rtl is given)\n")
	fmt.Fprintf(os.Stderr, "  graph      Print the task hierarchy\n")
}

// logFlags are shared by every subcommand.
type logFlags struct {
	level  *string
	format *string
}

func addLogFlags(fs *flag.FlagSet) logFlags {
	return logFlags{
		level:  fs.String("log-level", "warn", "log level (trace|debug|info|warn|error)"),
		format: fs.String("log-format", "text", "diagnostic output format (text|json)"),
	}
}

func (l logFlags) reporter() *diag.Reporter {
	return diag.NewReporterWithLogger(diag.NewLogger(os.Stderr, *l.format, *l.level))
}

// compileSettings are the options that may come from the config file and
// be overridden on the command line.
type compileSettings struct {
	registerLevel int
	addressWidth  int
	debugMonitors bool
	assetDir      string
	outputDir     string
	lint          bool
	lintPath      string
}

func runCompile(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	desc := fs.String("desc", "", "path to the JSON task-hierarchy description")
	rtl := fs.String("rtl", "", "directory holding the HLS-generated Verilog")
	output := fs.String("o", "", "output directory (for -emit ir, output file; stdout when omitted)")
	configPath := fs.String("config", "", "path to a taskhdl.hcl config file (optional)")
	emit := fs.String("emit", "verilog", "output format (verilog|ir)")
	vars := config.Vars{}
	fs.Var(vars, "var", "config variable name=value, available as var.<name> (repeatable)")
	var s compileSettings
	fs.IntVar(&s.registerLevel, "register-level", 0, "pipeline stages inserted on control and scalar paths")
	fs.IntVar(&s.addressWidth, "address-width", compose.DefaultAddressWidth, "width of memory-mapped addresses")
	fs.BoolVar(&s.debugMonitors, "debug-monitors", false, "add simulation-only FIFO monitors")
	fs.StringVar(&s.assetDir, "asset-dir", "", "directory holding fifo.v and async_mmap.v (optional)")
	fs.BoolVar(&s.lint, "lint", false, "run verilator --lint-only over the written files")
	fs.StringVar(&s.lintPath, "lint-path", "", "path to verilator (optional, falls back to PATH lookup)")
	logs := addLogFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		fs.Usage()
		return fmt.Errorf("compile takes no positional arguments")
	}
	if *desc == "" || *rtl == "" {
		fs.Usage()
		return fmt.Errorf("compile requires -desc and -rtl")
	}
	s.outputDir = *output

	if *configPath != "" {
		file, err := config.Load(nil, *configPath, vars)
		if err != nil {
			return err
		}
		applyConfig(&s, file, explicitFlags(fs))
	}

	reporter := logs.reporter()
	design, bundle, err := buildDesign(*desc, *rtl, compose.Options{
		RegisterLevel: s.registerLevel,
		AddressWidth:  s.addressWidth,
		DebugMonitors: s.debugMonitors,
		Logger:        reporter.Logger(),
	}, reporter)
	if err != nil {
		return err
	}

	switch *emit {
	case "ir":
		return withOutputWriter(s.outputDir, func(w io.Writer) error {
			ir.Dump(design, w)
			return nil
		})
	case "verilog":
		if s.outputDir == "" || s.outputDir == "-" {
			return fmt.Errorf("verilog emission requires -o")
		}
		if s.assetDir == "" {
			if dir, err := assetsRoot(); err == nil {
				s.assetDir = dir
			}
		}
		res, err := writeDesign(design, bundle.PassThrough(), s.outputDir, backend.Options{
			AssetDir: s.assetDir,
			Lint:     s.lint,
			LintPath: s.lintPath,
			Logger:   reporter.Logger(),
		})
		if err != nil {
			return err
		}
		reporter.Logger().Info("design written", "top", res.TopPath, "files", len(res.Files))
		return nil
	default:
		return fmt.Errorf("unknown emit format: %s", *emit)
	}
}

// explicitFlags returns the names of the flags given on the command line.
func explicitFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// applyConfig copies every attribute of the config file whose flag was not
// given explicitly.
func applyConfig(s *compileSettings, file *config.File, explicit map[string]bool) {
	if file.RegisterLevel != nil && !explicit["register-level"] {
		s.registerLevel = *file.RegisterLevel
	}
	if file.AddressWidth != nil && !explicit["address-width"] {
		s.addressWidth = *file.AddressWidth
	}
	if file.DebugMonitors != nil && !explicit["debug-monitors"] {
		s.debugMonitors = *file.DebugMonitors
	}
	if file.AssetDir != nil && !explicit["asset-dir"] {
		s.assetDir = *file.AssetDir
	}
	if file.OutputDir != nil && !explicit["o"] {
		s.outputDir = *file.OutputDir
	}
	if file.Lint != nil && !explicit["lint"] {
		s.lint = *file.Lint
	}
	if file.LintPath != nil && !explicit["lint-path"] {
		s.lintPath = *file.LintPath
	}
}

// buildDesign loads, validates and generates.
func buildDesign(desc, rtl string, opts compose.Options, reporter *diag.Reporter) (*ir.Design, *frontend.Bundle, error) {
	bundle, err := frontend.Load(frontend.LoadConfig{Description: desc, RTLDir: rtl}, reporter)
	if err != nil {
		return nil, nil, err
	}
	if err := validate.CheckProgram(bundle.Program, reporter); err != nil {
		return nil, nil, err
	}
	design, err := compose.New(bundle.Program, opts).Generate()
	if err != nil {
		return nil, nil, err
	}
	return design, bundle, nil
}

func runLint(args []string) error {
	fs := flag.NewFlagSet("lint", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	desc := fs.String("desc", "", "path to the JSON task-hierarchy description")
	rtl := fs.String("rtl", "", "directory holding the HLS-generated Verilog (optional)")
	logs := addLogFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *desc == "" {
		fs.Usage()
		return fmt.Errorf("lint requires -desc")
	}

	reporter := logs.reporter()
	if *rtl != "" {
		_, _, err := buildDesign(*desc, *rtl, compose.Options{Logger: reporter.Logger()}, reporter)
		return err
	}
	prog, err := frontend.LoadDescription(nil, *desc)
	if err != nil {
		return err
	}
	return validate.CheckProgram(prog, reporter)
}

func runGraph(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("graph", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	desc := fs.String("desc", "", "path to the JSON task-hierarchy description")
	logs := addLogFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *desc == "" {
		fs.Usage()
		return fmt.Errorf("graph requires -desc")
	}
	prog, err := frontend.LoadDescription(nil, *desc)
	if err != nil {
		return err
	}
	reporter := logs.reporter()
	if err := validate.CheckProgram(prog, reporter); err != nil {
		return err
	}
	tree, err := hierarchy(prog, reporter.Logger())
	if err != nil {
		return err
	}
	_, err = io.WriteString(stdout, tree.String())
	return err
}

// hierarchy renders the instance tree below the top task. Each composite
// lists its FIFOs before its instances.
func hierarchy(prog *graph.Program, logger hclog.Logger) (treeprint.Tree, error) {
	top, err := prog.TopTask()
	if err != nil {
		return nil, err
	}
	root := treeprint.NewWithRoot(top.Name)
	var walk func(branch treeprint.Tree, task *graph.Task) error
	walk = func(branch treeprint.Tree, task *graph.Task) error {
		for _, name := range task.FifoNames() {
			branch.AddMetaNode("fifo", fifoLabel(task.Fifos[name]))
		}
		insts, err := prog.Instances(task)
		if err != nil {
			return err
		}
		for _, inst := range insts {
			label := inst.Name() + ": " + inst.Task.Name
			kind := "leaf"
			if inst.Task.IsComposite() {
				kind = "composite"
			}
			if inst.IsAutorun() {
				kind += ", autorun"
			}
			if !inst.Task.IsComposite() {
				branch.AddMetaNode(kind, label)
				continue
			}
			if err := walk(branch.AddMetaBranch(kind, label), inst.Task); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root, top); err != nil {
		return nil, err
	}
	logger.Debug("rendered hierarchy", "top", top.Name)
	return root, nil
}

func fifoLabel(f *graph.Fifo) string {
	end := func(ep *graph.Endpoint) string {
		if ep == nil {
			return "(parent)"
		}
		return ep.InstanceName()
	}
	depth := "external"
	if !f.External() {
		depth = fmt.Sprintf("depth %d", f.Depth)
	}
	return fmt.Sprintf("%s %s -> %s (%s)", f.Name, end(f.Producer), end(f.Consumer), depth)
}

func withOutputWriter(path string, fn func(io.Writer) error) error {
	w, cleanup, err := outputWriter(path)
	if err != nil {
		return err
	}
	if cleanup == nil {
		return fn(w)
	}
	err = fn(w)
	if closeErr := cleanup(); err == nil && closeErr != nil {
		err = closeErr
	}
	return err
}

func outputWriter(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
