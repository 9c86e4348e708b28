// Package sim evaluates the control logic held by an ir.Module cycle by
// cycle. It understands continuous assignments and clocked blocks made of
// nonblocking assignments, if and case; child instances are opaque and
// their outputs are driven from the outside with Set.
package sim

import (
	"fmt"
	"strconv"
	"strings"

	"taskhdl/internal/ir"
)

// Simulator holds the state of one module.
type Simulator struct {
	widths  map[string]int
	values  map[string]uint64
	driven  map[string]bool
	assigns []ir.Assign
	blocks  []ir.Always
	cycle   int
}

// New prepares a simulator with every signal at zero. Simulation-only
// blocks are skipped.
func New(m *ir.Module) (*Simulator, error) {
	s := &Simulator{
		widths: make(map[string]int),
		values: make(map[string]uint64),
		driven: make(map[string]bool),
	}
	for _, p := range m.Ports() {
		s.widths[p.Name] = rangeWidth(p.Range)
	}
	for _, sig := range m.Signals() {
		s.widths[sig.Name] = rangeWidth(sig.Range)
	}
	for _, l := range m.Logics() {
		switch l := l.(type) {
		case ir.Assign:
			if _, ok := s.widths[l.LHS]; !ok {
				return nil, fmt.Errorf("sim: assignment to undeclared %s", l.LHS)
			}
			s.assigns = append(s.assigns, l)
			s.driven[l.LHS] = true
		case ir.Always:
			if !l.SimOnly {
				s.blocks = append(s.blocks, l)
			}
		}
	}
	return s, s.Settle()
}

func rangeWidth(r *ir.Range) int {
	w, err := r.Width()
	if err != nil || w > 64 {
		return 64
	}
	return w
}

func mask(v uint64, width int) uint64 {
	if width >= 64 {
		return v
	}
	return v & (1<<uint(width) - 1)
}

// Cycle returns the number of clock edges applied so far.
func (s *Simulator) Cycle() int { return s.cycle }

// Get returns the current value of a signal.
func (s *Simulator) Get(name string) uint64 { return s.values[name] }

// Set drives a signal that no assignment drives, such as an input port or
// a child instance output, and settles the combinational logic.
func (s *Simulator) Set(name string, v uint64) error {
	w, ok := s.widths[name]
	if !ok {
		return fmt.Errorf("sim: unknown signal %s", name)
	}
	if s.driven[name] {
		return fmt.Errorf("sim: %s is driven by an assignment", name)
	}
	s.values[name] = mask(v, w)
	return s.Settle()
}

// Settle propagates continuous assignments until nothing changes.
func (s *Simulator) Settle() error {
	for i := 0; i <= len(s.assigns)+1; i++ {
		changed := false
		for _, a := range s.assigns {
			v := mask(s.eval(a.RHS), s.widths[a.LHS])
			if s.values[a.LHS] != v {
				s.values[a.LHS] = v
				changed = true
			}
		}
		if !changed {
			return nil
		}
	}
	return fmt.Errorf("sim: combinational logic does not settle")
}

// Step applies one rising clock edge: every clocked block reads the values
// before the edge and all nonblocking updates land together.
func (s *Simulator) Step() error {
	pending := make(map[string]uint64)
	for _, b := range s.blocks {
		s.exec(b.Body, pending)
	}
	for name, v := range pending {
		s.values[name] = mask(v, s.widths[name])
	}
	s.cycle++
	return s.Settle()
}

func (s *Simulator) exec(stmts []ir.Stmt, pending map[string]uint64) {
	for _, stmt := range stmts {
		switch st := stmt.(type) {
		case ir.NonBlocking:
			pending[st.LHS] = s.eval(st.RHS)
		case ir.If:
			if s.eval(st.Cond) != 0 {
				s.exec(st.Then, pending)
			} else {
				s.exec(st.Else, pending)
			}
		case ir.Case:
			subject := s.eval(st.Subject)
			for _, item := range st.Items {
				if s.eval(item.Match) == subject {
					s.exec(item.Body, pending)
					break
				}
			}
		}
	}
}

func (s *Simulator) eval(e ir.Expr) uint64 {
	switch x := e.(type) {
	case ir.Ident:
		return s.values[x.Name]
	case ir.Const:
		return mask(x.Value, x.Width)
	case ir.Literal:
		v, _ := parseLiteral(x.Text)
		return v
	case ir.Unary:
		v := s.eval(x.X)
		if x.Op == ir.LogicalNot {
			return boolValue(v == 0)
		}
		return mask(^v, s.width(x.X))
	case ir.Binary:
		a, b := s.eval(x.X), s.eval(x.Y)
		w := max(s.width(x.X), s.width(x.Y))
		switch x.Op {
		case ir.Eq:
			return boolValue(a == b)
		case ir.Sub:
			return mask(a-b, w)
		case ir.Add:
			return mask(a+b, w)
		case ir.Shl:
			return mask(a<<b, w)
		}
	case ir.LogicalAnd:
		for _, t := range x.Terms {
			if s.eval(t) == 0 {
				return 0
			}
		}
		return 1
	}
	return 0
}

func (s *Simulator) width(e ir.Expr) int {
	switch x := e.(type) {
	case ir.Ident:
		return s.widths[x.Name]
	case ir.Const:
		if x.Width > 0 {
			return x.Width
		}
	case ir.Unary:
		if x.Op == ir.Not {
			return s.width(x.X)
		}
		return 1
	case ir.Binary:
		if x.Op == ir.Eq {
			return 1
		}
		return max(s.width(x.X), s.width(x.Y))
	case ir.LogicalAnd:
		return 1
	}
	return 64
}

func boolValue(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// parseLiteral reads Verilog integer literals such as 5, 32'd5, 'd0, 2'b10.
func parseLiteral(text string) (uint64, error) {
	text = strings.ReplaceAll(text, "_", "")
	tick := strings.IndexByte(text, '\'')
	if tick < 0 {
		return strconv.ParseUint(text, 10, 64)
	}
	rest := strings.TrimLeft(text[tick+1:], "sS")
	if rest == "" {
		return 0, fmt.Errorf("sim: bad literal %q", text)
	}
	base := 10
	switch rest[0] {
	case 'b', 'B':
		base = 2
	case 'o', 'O':
		base = 8
	case 'h', 'H':
		base = 16
	}
	v, err := strconv.ParseUint(rest[1:], base, 64)
	if err != nil {
		return 0, err
	}
	if tick > 0 {
		if w, err := strconv.Atoi(text[:tick]); err == nil {
			v = mask(v, w)
		}
	}
	return v, nil
}
