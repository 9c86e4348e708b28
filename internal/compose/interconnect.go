package compose

import (
	"fmt"

	"taskhdl/internal/diag"
	"taskhdl/internal/graph"
	"taskhdl/internal/ir"
)

// argumentPipelines delays every scalar and address argument of inst by L
// cycles. Streams are not delayed; the FIFO absorbs the distance.
func (g *taskGen) argumentPipelines(inst graph.Instance, n instanceNames) (map[string]*ir.Pipeline, error) {
	taps := make(map[string]*ir.Pipeline)
	for _, arg := range inst.Args {
		if !arg.Cat.Valid() {
			return nil, unsupported(inst.Name()+"."+arg.Name, arg.Cat)
		}
		if arg.Cat.IsStream() {
			continue
		}
		var (
			seed  ir.Expr
			width int
		)
		if c, ok := parseConstant(arg.Name); ok {
			seed, width = ir.Literal{Text: arg.Name}, c.Width
		} else {
			name, err := g.parentSignal(arg)
			if err != nil {
				return nil, fmt.Errorf("instance %s: %w", inst.Name(), err)
			}
			seed = ir.ID(name)
			if arg.Cat.IsMMap() {
				width = g.opts.AddressWidth
			} else if width, err = g.scalarWidth(inst, arg, name); err != nil {
				return nil, err
			}
		}
		q := ir.NewPipeline(n.arg(arg.Name), g.opts.RegisterLevel, width)
		if err := g.m.AddPipeline(q, seed); err != nil {
			return nil, err
		}
		taps[arg.Name] = q
		g.argQ[arg.Name] = q
	}
	return taps, nil
}

// parentSignal finds the parent port carrying a scalar or a memory offset.
func (g *taskGen) parentSignal(arg graph.NamedArg) (string, error) {
	candidates := []string{arg.Name}
	if arg.Cat.IsMMap() {
		candidates = append(candidates, arg.Name+"_offset")
	}
	for _, name := range candidates {
		if g.m.Declared(name) {
			return name, nil
		}
	}
	return "", malformed("%s argument %s has no parent port", arg.Cat, arg.Name)
}

// scalarWidth prefers the declared task port, then the parent port range,
// then the child port range.
func (g *taskGen) scalarWidth(inst graph.Instance, arg graph.NamedArg, parentName string) (int, error) {
	if p, ok := g.task.Port(arg.Name); ok && p.Width > 0 {
		return p.Width, nil
	}
	if p, ok := g.m.Port(parentName); ok {
		if w, err := p.Range.Width(); err == nil {
			return w, nil
		}
	}
	return childPortWidth(inst, arg.Port, "")
}

// connectArg binds the child ports of one argument.
func (g *taskGen) connectArg(inst graph.Instance, arg graph.NamedArg, tap *ir.Pipeline) ([]ir.PortArg, error) {
	child := inst.Task.Module
	switch arg.Cat {
	case graph.Scalar:
		p, err := child.PortOf(arg.Port, "")
		if err != nil {
			return nil, err
		}
		return []ir.PortArg{{Port: p.Name, Arg: tap.Last()}}, nil
	case graph.IStream, graph.OStream:
		suffixes := istreamSuffixes
		if arg.Cat == graph.OStream {
			suffixes = ostreamSuffixes
		}
		out := make([]ir.PortArg, 0, len(suffixes))
		for _, sfx := range suffixes {
			p, err := child.PortOf(arg.Port, sfx)
			if err != nil {
				return nil, err
			}
			out = append(out, ir.PortArg{Port: p.Name, Arg: ir.ID(fifoWire(arg.Name, sfx))})
		}
		return out, nil
	case graph.MMap:
		return g.connectMMap(inst, arg, tap)
	case graph.AsyncMMap:
		return g.connectAsyncMMap(inst, arg, tap)
	default:
		return nil, unsupported(inst.Name()+"."+arg.Name, arg.Cat)
	}
}

// childPortWidth returns the literal width of a child port.
func childPortWidth(inst graph.Instance, port, suffix string) (int, error) {
	p, err := inst.Task.Module.PortOf(port, suffix)
	if err != nil {
		return 0, err
	}
	w, err := p.Range.Width()
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %w", inst.Task.Module.Name, p.Name, err)
	}
	return w, nil
}

// streamWidth returns the data width of a stream argument at the child.
func streamWidth(inst graph.Instance, arg graph.NamedArg) (int, error) {
	if arg.Cat == graph.OStream {
		return childPortWidth(inst, arg.Port, ostreamSuffixes[0])
	}
	return childPortWidth(inst, arg.Port, istreamSuffixes[0])
}

func unsupported(what string, cat graph.Category) error {
	return fmt.Errorf("%s: %s: %w", what, cat, diag.ErrUnsupportedArgumentCategory)
}
