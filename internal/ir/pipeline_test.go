package ir

import "testing"

func TestPipelineStages(t *testing.T) {
	p := NewPipeline("ap_start", 3, 1)
	if p.First().Name != "ap_start__q0" || p.Last().Name != "ap_start__q3" {
		t.Fatalf("unexpected taps %s %s", p.First().Name, p.Last().Name)
	}
	if p.Stage(-1) != p.Last() {
		t.Fatalf("Stage(-1) must equal Last")
	}
	sigs := p.Signals()
	if len(sigs) != 4 {
		t.Fatalf("expected 4 declarations, got %d", len(sigs))
	}
	if sigs[0].Kind != Wire || len(sigs[0].Attrs) != 0 {
		t.Fatalf("stage 0 must be a plain wire: %+v", sigs[0])
	}
	for _, s := range sigs[1:] {
		if s.Kind != Reg || len(s.Attrs) != 1 || s.Attrs[0] != KeepAttr {
			t.Fatalf("register stage must carry keep attribute: %+v", s)
		}
	}
}

func TestAddPipelineEmitsShiftChain(t *testing.T) {
	m := NewModule("top")
	p := NewPipeline("x", 2, 8)
	if err := m.AddPipeline(p, ID("x")); err != nil {
		t.Fatalf("AddPipeline: %v", err)
	}
	logics := m.Logics()
	if len(logics) != 2 {
		t.Fatalf("expected assign and always, got %d items", len(logics))
	}
	assign, ok := logics[0].(Assign)
	if !ok || assign.LHS != "x__q0" {
		t.Fatalf("expected assign to x__q0, got %#v", logics[0])
	}
	always, ok := logics[1].(Always)
	if !ok || len(always.Body) != 2 {
		t.Fatalf("expected two-stage shift, got %#v", logics[1])
	}
	if nb := always.Body[1].(NonBlocking); nb.LHS != "x__q2" || nb.RHS.(Ident).Name != "x__q1" {
		t.Fatalf("unexpected last stage %#v", nb)
	}
	if sig, _ := m.Signal("x__q1"); sig.Range.String() != "[7:0]" {
		t.Fatalf("unexpected range %s", sig.Range)
	}
}

func TestZeroLevelPipelineIsAWire(t *testing.T) {
	m := NewModule("top")
	p := NewPipeline("y", 0, 1)
	if err := m.AddPipeline(p, True); err != nil {
		t.Fatalf("AddPipeline: %v", err)
	}
	if len(m.Logics()) != 1 {
		t.Fatalf("level 0 pipeline must not emit a clocked block")
	}
	if p.First() != p.Last() {
		t.Fatalf("level 0 pipeline has a single tap")
	}
}
