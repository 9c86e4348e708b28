package compose

import (
	"math/bits"
	"strconv"

	"taskhdl/internal/graph"
	"taskhdl/internal/ir"
)

// instantiateFifos declares the six wires of every FIFO in name order and
// either instantiates a fifo primitive or, for external FIFOs, connects the
// wires to the parent's own stream ports.
func (g *taskGen) instantiateFifos() error {
	for _, name := range g.task.FifoNames() {
		fifo := g.task.Fifos[name]
		if err := checkEndpoints(fifo); err != nil {
			return err
		}
		width, err := g.fifoWidth(fifo)
		if err != nil {
			return err
		}
		var wires []ir.Signal
		for i := range istreamSuffixes {
			for _, sfx := range []string{istreamSuffixes[i], ostreamSuffixes[i]} {
				sig := ir.Signal{Name: fifoWire(name, sfx)}
				if i == 0 {
					sig.Range = ir.Bits(width)
				}
				wires = append(wires, sig)
			}
		}
		if err := g.m.AddSignals(wires...); err != nil {
			return err
		}
		if fifo.External() {
			if err := g.connectExternalFifo(fifo); err != nil {
				return err
			}
			continue
		}
		if err := g.m.AddInstance(fifoInstance(name, width, fifo.Depth)); err != nil {
			return err
		}
		if g.opts.DebugMonitors {
			g.m.AddLogics(fifoMonitor(name))
		}
	}
	return nil
}

// checkEndpoints requires both endpoints of an internal FIFO and exactly one
// of an external FIFO.
func checkEndpoints(fifo *graph.Fifo) error {
	switch {
	case fifo.External() && (fifo.Producer == nil) == (fifo.Consumer == nil):
		return malformed("external fifo %s must have exactly one endpoint", fifo.Name)
	case !fifo.External() && fifo.Producer == nil:
		return malformed("fifo %s has no producer", fifo.Name)
	case !fifo.External() && fifo.Consumer == nil:
		return malformed("fifo %s has no consumer", fifo.Name)
	}
	return nil
}

// fifoWidth is the producer's data port width, or for an external FIFO the
// width of whichever endpoint lives inside this task.
func (g *taskGen) fifoWidth(fifo *graph.Fifo) (int, error) {
	ep, sfx := fifo.Producer, ostreamSuffixes[0]
	if ep == nil {
		ep, sfx = fifo.Consumer, istreamSuffixes[0]
	}
	inst, port, err := g.prog.Resolve(g.task, fifo.Name, ep)
	if err != nil {
		return 0, err
	}
	if inst.Task.Module == nil {
		return 0, malformed("fifo %s: %s has no module", fifo.Name, inst.Name())
	}
	return childPortWidth(inst, port, sfx)
}

// fifoAddrWidth is max(1, ceil(log2(depth))).
func fifoAddrWidth(depth int) int {
	return max(1, bits.Len(uint(max(0, depth-1))))
}

func fifoInstance(name string, width, depth int) ir.Instance {
	lit := func(v int) ir.Expr { return ir.Literal{Text: strconv.Itoa(v)} }
	wire := func(sfx string) ir.Expr { return ir.ID(fifoWire(name, sfx)) }
	return ir.Instance{
		Module: fifoModule,
		Name:   ir.SanitizeArrayName(name),
		Params: []ir.ParamArg{
			{Name: "DATA_WIDTH", Value: lit(width)},
			{Name: "ADDR_WIDTH", Value: lit(fifoAddrWidth(depth))},
			{Name: "DEPTH", Value: lit(depth)},
		},
		Ports: []ir.PortArg{
			{Port: "clk", Arg: ir.ID(portClk)},
			{Port: "reset", Arg: ir.ID(signalRst)},
			{Port: "if_dout", Arg: wire(istreamSuffixes[0])},
			{Port: "if_empty_n", Arg: wire(istreamSuffixes[1])},
			{Port: "if_read", Arg: wire(istreamSuffixes[2])},
			{Port: "if_read_ce", Arg: ir.True},
			{Port: "if_din", Arg: wire(ostreamSuffixes[0])},
			{Port: "if_full_n", Arg: wire(ostreamSuffixes[1])},
			{Port: "if_write", Arg: wire(ostreamSuffixes[2])},
			{Port: "if_write_ce", Arg: ir.True},
		},
	}
}

// fifoMonitor prints every completed transfer in simulation.
func fifoMonitor(name string) ir.Always {
	wire := func(sfx string) ir.Expr { return ir.ID(fifoWire(name, sfx)) }
	return ir.Always{SimOnly: true, Body: []ir.Stmt{
		ir.If{
			Cond: ir.LogicalAnd{Terms: []ir.Expr{wire(istreamSuffixes[2]), wire(istreamSuffixes[1])}},
			Then: []ir.Stmt{ir.Display{Format: "DEBUG: fifo " + name + " read %h", Args: []ir.Expr{wire(istreamSuffixes[0])}}},
		},
		ir.If{
			Cond: ir.LogicalAnd{Terms: []ir.Expr{wire(ostreamSuffixes[2]), wire(ostreamSuffixes[1])}},
			Then: []ir.Stmt{ir.Display{Format: "DEBUG: fifo " + name + " write %h", Args: []ir.Expr{wire(ostreamSuffixes[0])}}},
		},
	}}
}

// connectExternalFifo ties the FIFO wires to the parent stream port of the
// same name. A consumer inside the task reads from the parent's istream; a
// producer inside writes to the parent's ostream.
func (g *taskGen) connectExternalFifo(fifo *graph.Fifo) error {
	inward := fifo.Consumer != nil
	suffixes := ostreamSuffixes
	if inward {
		suffixes = istreamSuffixes
	}
	var ports [3]string
	for i, sfx := range suffixes {
		p, err := g.m.PortOf(fifo.Name, sfx)
		if err != nil {
			return err
		}
		ports[i] = p.Name
	}
	wire := func(sfx string) string { return fifoWire(fifo.Name, sfx) }
	if inward {
		g.m.AddLogics(
			ir.Assign{LHS: wire(istreamSuffixes[0]), RHS: ir.ID(ports[0])},
			ir.Assign{LHS: wire(istreamSuffixes[1]), RHS: ir.ID(ports[1])},
			ir.Assign{LHS: ports[2], RHS: ir.ID(wire(istreamSuffixes[2]))},
		)
		return nil
	}
	g.m.AddLogics(
		ir.Assign{LHS: ports[0], RHS: ir.ID(wire(ostreamSuffixes[0]))},
		ir.Assign{LHS: wire(ostreamSuffixes[1]), RHS: ir.ID(ports[1])},
		ir.Assign{LHS: ports[2], RHS: ir.ID(wire(ostreamSuffixes[2]))},
	)
	return nil
}
