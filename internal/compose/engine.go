// Package compose generates the Verilog module of every composite task:
// per-instance handshake controllers, the parent's global controller and
// the interconnect between children.
package compose

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"taskhdl/internal/graph"
	"taskhdl/internal/ir"
)

// DefaultAddressWidth is the width of memory-mapped addresses and async-mmap
// address channels unless Options.AddressWidth overrides it.
const DefaultAddressWidth = 64

// Options tunes generation.
type Options struct {
	// RegisterLevel is the number of pipeline stages L inserted on every
	// control and scalar path.
	RegisterLevel int
	// AddressWidth overrides DefaultAddressWidth when positive.
	AddressWidth int
	// DebugMonitors adds simulation-only $display monitors on FIFOs.
	DebugMonitors bool
	Logger        hclog.Logger
}

// Engine drives generation over a program.
type Engine struct {
	prog   *graph.Program
	opts   Options
	logger hclog.Logger
}

// New returns an engine for prog.
func New(prog *graph.Program, opts Options) *Engine {
	if opts.RegisterLevel < 0 {
		opts.RegisterLevel = 0
	}
	if opts.AddressWidth <= 0 {
		opts.AddressWidth = DefaultAddressWidth
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Engine{prog: prog, opts: opts, logger: logger.Named("compose")}
}

// Generate processes every composite task reachable from the top, children
// first, and attaches the generated module to each task. Skeletons are left
// untouched, so generating twice yields the same design. The
// returned design lists the generated modules in processing order, so the
// top module comes last.
func (e *Engine) Generate() (*ir.Design, error) {
	order, err := e.prog.CompositeOrder()
	if err != nil {
		return nil, err
	}
	design := &ir.Design{}
	for _, task := range order {
		m, err := e.GenerateTask(task)
		if err != nil {
			return nil, err
		}
		task.Module = m
		design.Modules = append(design.Modules, m)
		if task.Name == e.prog.Top {
			design.TopLevel = m
		}
	}
	return design, nil
}

// GenerateTask builds the module of one composite task. Child modules must
// already be attached to their tasks. task is not modified.
func (e *Engine) GenerateTask(task *graph.Task) (*ir.Module, error) {
	if !task.IsComposite() {
		return nil, malformed("task %s is not composite", task.Name)
	}
	insts, err := e.prog.Instances(task)
	if err != nil {
		return nil, err
	}
	for _, inst := range insts {
		if inst.Task.Module == nil {
			return nil, malformed("task %s: child %s has no module", task.Name, inst.Name())
		}
	}

	g := &taskGen{
		Engine: e,
		task:   task,
		insts:  insts,
		isTop:  task.Name == e.prog.Top,
		m:      ir.NewModule(task.Name),
		logger: e.logger.With("task", task.Name),
	}
	if err := g.run(); err != nil {
		return nil, fmt.Errorf("task %s: %w", task.Name, err)
	}
	g.logger.Debug("generated module", "instances", len(insts), "fifos", len(task.Fifos))
	return g.m, nil
}

// taskGen carries the state of one composite task's generation.
type taskGen struct {
	*Engine
	task   *graph.Task
	insts  []graph.Instance
	isTop  bool
	m      *ir.Module
	logger hclog.Logger

	startQ *ir.Pipeline
	doneQ  *ir.Pipeline
	// argQ holds the delayed tap of every scalar and address argument.
	argQ map[string]*ir.Pipeline
	// async collects the async-mmap channels discovered per argument.
	async []asyncArg
}

func (g *taskGen) run() error {
	g.argQ = make(map[string]*ir.Pipeline)
	if err := g.declareInterface(); err != nil {
		return err
	}
	if err := g.declareGlobalControl(); err != nil {
		return err
	}
	if err := g.instantiateFifos(); err != nil {
		return err
	}
	var isDone []*ir.Pipeline
	for _, inst := range g.insts {
		q, err := g.instantiateChild(inst)
		if err != nil {
			return err
		}
		if q != nil {
			isDone = append(isDone, q)
		}
	}
	if err := g.instantiateAsyncMMaps(); err != nil {
		return err
	}
	g.emitGlobalFSM(isDone)
	return nil
}

// declareInterface copies the ports and parameters of the HLS skeleton, or
// derives the interface from the description when there is none.
func (g *taskGen) declareInterface() error {
	if skel := g.task.Skeleton; skel != nil {
		if err := g.m.AddPorts(skel.Ports()...); err != nil {
			return err
		}
		for _, p := range skel.Params() {
			if strings.HasPrefix(p.Name, "ap_ST_fsm") {
				continue
			}
			if err := g.m.AddParams(p); err != nil {
				return err
			}
		}
	} else if err := g.deriveInterface(); err != nil {
		return err
	}
	for _, name := range []string{portClk, portRstN, portStart, portDone, portIdle, portReady} {
		if _, ok := g.m.Port(name); !ok {
			return malformed("module has no handshake port %s", name)
		}
	}
	if err := g.m.AddSignals(ir.Signal{Name: signalRst}); err != nil {
		return err
	}
	g.m.AddLogics(ir.Assign{LHS: signalRst, RHS: ir.Unary{Op: ir.Not, X: ir.ID(portRstN)}})
	return nil
}

func (g *taskGen) deriveInterface() error {
	ports := []ir.Port{
		{Name: portClk, Direction: ir.Input},
		{Name: portRstN, Direction: ir.Input},
		{Name: portStart, Direction: ir.Input},
		{Name: portDone, Direction: ir.Output},
		{Name: portIdle, Direction: ir.Output},
		{Name: portReady, Direction: ir.Output},
	}
	if err := g.m.AddPorts(ports...); err != nil {
		return err
	}
	if len(g.task.Ports) > 0 {
		for _, p := range g.task.Ports {
			if err := g.addInterfacePort(p.Name, p.Cat, p.Width); err != nil {
				return err
			}
		}
		return nil
	}
	// Without declared ports the interface is whatever the children need
	// from outside: scalars, memory offsets and external streams.
	for _, inst := range g.insts {
		for _, arg := range inst.Args {
			if g.m.Declared(arg.Name) || g.m.Declared(arg.Name+ostreamSuffixes[0]) || g.m.Declared(arg.Name+istreamSuffixes[0]) {
				continue
			}
			if _, isConst := parseConstant(arg.Name); isConst {
				continue
			}
			width := 0
			switch {
			case arg.Cat.IsStream():
				fifo, ok := g.task.Fifos[arg.Name]
				if !ok || !fifo.External() {
					continue
				}
				w, err := streamWidth(inst, arg)
				if err != nil {
					return err
				}
				width = w
			case arg.Cat == graph.Scalar:
				w, err := childPortWidth(inst, arg.Port, "")
				if err != nil {
					return err
				}
				width = w
			}
			if err := g.addInterfacePort(arg.Name, arg.Cat, width); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *taskGen) addInterfacePort(name string, cat graph.Category, width int) error {
	switch {
	case cat == graph.Scalar:
		return g.m.AddPorts(ir.Port{Name: name, Direction: ir.Input, Range: ir.Bits(width)})
	case cat.IsMMap():
		return g.m.AddPorts(ir.Port{Name: name, Direction: ir.Input, Range: ir.Bits(g.opts.AddressWidth)})
	case cat == graph.IStream:
		return g.m.AddPorts(
			ir.Port{Name: name + istreamSuffixes[0], Direction: ir.Input, Range: ir.Bits(width)},
			ir.Port{Name: name + istreamSuffixes[1], Direction: ir.Input},
			ir.Port{Name: name + istreamSuffixes[2], Direction: ir.Output},
		)
	case cat == graph.OStream:
		return g.m.AddPorts(
			ir.Port{Name: name + ostreamSuffixes[0], Direction: ir.Output, Range: ir.Bits(width)},
			ir.Port{Name: name + ostreamSuffixes[1], Direction: ir.Input},
			ir.Port{Name: name + ostreamSuffixes[2], Direction: ir.Output},
		)
	default:
		return unsupported(name, cat)
	}
}
