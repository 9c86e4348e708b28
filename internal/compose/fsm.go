package compose

import (
	"math/bits"

	"taskhdl/internal/ir"
)

// declareGlobalControl declares the parent controller's registers and its
// start/done pipelines. They precede every child so instance logic can tap
// them.
func (g *taskGen) declareGlobalControl() error {
	level := g.opts.RegisterLevel
	if err := g.m.AddSignals(
		ir.Signal{Name: stateReg, Kind: ir.Reg, Range: ir.Bits(2)},
		ir.Signal{Name: countdown, Kind: ir.Reg, Range: ir.Vector(countdownWidth(level))},
	); err != nil {
		return err
	}
	g.startQ = ir.NewPipeline(portStart, level, 1)
	if err := g.m.AddPipeline(g.startQ, ir.ID(portStart)); err != nil {
		return err
	}
	g.doneQ = ir.NewPipeline(portDone, level, 1)
	return g.m.AddPipeline(g.doneQ, ir.IsEqual(ir.ID(stateReg), state10))
}

// countdownWidth is max(1, bitlen(L-1)).
func countdownWidth(level int) int {
	return max(1, bits.Len(uint(max(0, level-1))))
}

// emitGlobalFSM emits IDLE(00) -> RUNNING(01) -> DRAIN(10) -> [DRAIN_EXTRA(11)]
// -> IDLE. RUNNING leaves once every delayed is_done tap is high, which is
// immediate when there is none. DRAIN_EXTRA holds for L-1 further cycles so
// the controller is back in IDLE after ap_done__qL fired.
func (g *taskGen) emitGlobalFSM(isDone []*ir.Pipeline) {
	level := g.opts.RegisterLevel
	cw := countdownWidth(level)
	setState := func(s ir.Const) ir.Stmt { return ir.NonBlocking{LHS: stateReg, RHS: s} }

	drain := []ir.Stmt{
		setState(state10),
		ir.NonBlocking{LHS: countdown, RHS: ir.Const{Width: cw, Value: uint64(max(0, level-1))}},
	}
	running := drain
	if len(isDone) > 0 {
		terms := make([]ir.Expr, len(isDone))
		for i, q := range isDone {
			terms[i] = q.Last()
		}
		running = []ir.Stmt{ir.If{Cond: ir.LogicalAnd{Terms: terms}, Then: drain}}
	}
	afterDrain := state00
	if level > 0 {
		afterDrain = state11
	}

	fsm := ir.Case{Subject: ir.ID(stateReg), Items: []ir.CaseItem{
		{Match: state00, Body: []ir.Stmt{
			ir.If{Cond: g.startQ.Last(), Then: []ir.Stmt{setState(state01)}},
		}},
		{Match: state01, Body: running},
		{Match: state10, Body: []ir.Stmt{setState(afterDrain)}},
		{Match: state11, Body: []ir.Stmt{
			ir.If{
				Cond: ir.IsEqual(ir.ID(countdown), ir.Const{Width: cw, Value: 0}),
				Then: []ir.Stmt{setState(state00)},
				Else: []ir.Stmt{ir.NonBlocking{
					LHS: countdown,
					RHS: ir.Binary{Op: ir.Sub, X: ir.ID(countdown), Y: ir.Const{Width: cw, Value: 1}},
				}},
			},
		}},
	}}

	g.m.AddLogics(
		ir.Always{Body: []ir.Stmt{ir.If{
			Cond: ir.ID(signalRst),
			Then: []ir.Stmt{setState(state00)},
			Else: []ir.Stmt{fsm},
		}}},
		ir.Assign{LHS: portIdle, RHS: ir.IsEqual(ir.ID(stateReg), state00)},
		ir.Assign{LHS: portDone, RHS: g.doneQ.Last()},
		ir.Assign{LHS: portReady, RHS: g.doneQ.First()},
	)
}

// instanceFSM emits the 2-bit handshake controller of one child:
// IDLE(00) -> WAIT_READY(01) -> {WAIT_DONE(11) | DONE(10)} -> DONE -> IDLE.
func (g *taskGen) instanceFSM(n instanceNames, rst, startGlobal, doneGlobal *ir.Pipeline) {
	state := n.state()
	setState := func(s ir.Const) ir.Stmt { return ir.NonBlocking{LHS: state, RHS: s} }
	fsm := ir.Case{Subject: ir.ID(state), Items: []ir.CaseItem{
		{Match: state00, Body: []ir.Stmt{
			ir.If{Cond: startGlobal.Last(), Then: []ir.Stmt{setState(state01)}},
		}},
		{Match: state01, Body: []ir.Stmt{
			ir.If{Cond: ir.ID(n.ready()), Then: []ir.Stmt{
				ir.If{
					Cond: ir.ID(n.done()),
					Then: []ir.Stmt{setState(state10)},
					Else: []ir.Stmt{setState(state11)},
				},
			}},
		}},
		{Match: state11, Body: []ir.Stmt{
			ir.If{Cond: ir.ID(n.done()), Then: []ir.Stmt{setState(state10)}},
		}},
		{Match: state10, Body: []ir.Stmt{
			ir.If{Cond: doneGlobal.Last(), Then: []ir.Stmt{setState(state00)}},
		}},
	}}
	g.m.AddLogics(
		ir.Always{Body: []ir.Stmt{ir.If{
			Cond: ir.Unary{Op: ir.LogicalNot, X: rst.Last()},
			Then: []ir.Stmt{setState(state00)},
			Else: []ir.Stmt{fsm},
		}}},
		ir.Assign{LHS: n.start(), RHS: ir.IsEqual(ir.ID(state), state01)},
	)
}
