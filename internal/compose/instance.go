package compose

import (
	"taskhdl/internal/graph"
	"taskhdl/internal/ir"
)

// instantiateChild emits everything one child instance needs: its reset and
// argument pipelines, its handshake controller (or a constant start for
// autorun instances), the interconnect of every argument and the instance
// itself. It returns the instance's is_done pipeline, nil for autorun.
func (g *taskGen) instantiateChild(inst graph.Instance) (*ir.Pipeline, error) {
	n := instanceNames(inst.Name())
	child := inst.Task.Module
	level := g.opts.RegisterLevel

	rst := ir.NewPipeline(n.rst(), level, 1)
	if err := g.m.AddPipeline(rst, ir.ID(portRstN)); err != nil {
		return nil, err
	}
	argTaps, err := g.argumentPipelines(inst, n)
	if err != nil {
		return nil, err
	}

	var isDone *ir.Pipeline
	if inst.IsAutorun() {
		if err := g.m.AddSignals(ir.Signal{Name: n.start()}); err != nil {
			return nil, err
		}
		g.m.AddLogics(ir.Assign{LHS: n.start(), RHS: ir.True})
	} else {
		for _, name := range []string{portStart, portDone, portReady} {
			if _, ok := child.Port(name); !ok {
				return nil, malformed("instance %s: module %s has no %s port", inst.Name(), child.Name, name)
			}
		}
		if err := g.m.AddSignals(
			ir.Signal{Name: n.state(), Kind: ir.Reg, Range: ir.Bits(2)},
			ir.Signal{Name: n.start()},
			ir.Signal{Name: n.done()},
			ir.Signal{Name: n.idle()},
			ir.Signal{Name: n.ready()},
		); err != nil {
			return nil, err
		}
		startGlobal := ir.NewPipeline(n.startGlobal(), level, 1)
		if err := g.m.AddPipeline(startGlobal, g.startQ.First()); err != nil {
			return nil, err
		}
		isDone = ir.NewPipeline(n.isDone(), level, 1)
		if err := g.m.AddPipeline(isDone, ir.IsEqual(ir.ID(n.state()), state10)); err != nil {
			return nil, err
		}
		doneGlobal := ir.NewPipeline(n.doneGlobal(), level, 1)
		if err := g.m.AddPipeline(doneGlobal, g.doneQ.First()); err != nil {
			return nil, err
		}
		g.instanceFSM(n, rst, startGlobal, doneGlobal)
	}

	ports := g.handshakePorts(inst, n, rst)
	for _, arg := range inst.Args {
		args, err := g.connectArg(inst, arg, argTaps[arg.Name])
		if err != nil {
			return nil, err
		}
		ports = append(ports, args...)
	}
	if err := g.m.AddInstance(ir.Instance{Module: child.Name, Name: inst.Name(), Ports: ports}); err != nil {
		return nil, err
	}
	return isDone, nil
}

// handshakePorts binds the child's control ports that it actually exposes.
// Autorun children leave their status outputs open.
func (g *taskGen) handshakePorts(inst graph.Instance, n instanceNames, rst *ir.Pipeline) []ir.PortArg {
	child := inst.Task.Module
	var status [3]ir.Expr
	if !inst.IsAutorun() {
		status = [3]ir.Expr{ir.ID(n.done()), ir.ID(n.idle()), ir.ID(n.ready())}
	}
	binds := []ir.PortArg{
		{Port: portClk, Arg: ir.ID(portClk)},
		{Port: portRstN, Arg: rst.Last()},
		{Port: portStart, Arg: ir.ID(n.start())},
		{Port: portDone, Arg: status[0]},
		{Port: portIdle, Arg: status[1]},
		{Port: portReady, Arg: status[2]},
	}
	var out []ir.PortArg
	for _, b := range binds {
		if _, ok := child.Port(b.Port); ok {
			out = append(out, b)
		}
	}
	return out
}
