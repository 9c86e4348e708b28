package ir

import "fmt"

// KeepAttr stops downstream tools from retiming or merging a register.
const KeepAttr = `keep = "true"`

// Pipeline is a fixed-depth shift register used purely as a cycle delay.
// Stage 0 is a wire tapping the driving signal; stages 1..Level are
// registers marked with KeepAttr so the delay survives physical
// optimization.
type Pipeline struct {
	name  string
	level int
	rng   *Range
	ids   []Ident
}

// NewPipeline returns a pipeline of level registers for a width-bit signal.
// Stage i is named "<name>__q<i>".
func NewPipeline(name string, level, width int) *Pipeline {
	if level < 0 {
		level = 0
	}
	ids := make([]Ident, level+1)
	for i := range ids {
		ids[i] = Ident{Name: fmt.Sprintf("%s__q%d", name, i)}
	}
	return &Pipeline{name: name, level: level, rng: Bits(width), ids: ids}
}

// Name returns the base name.
func (p *Pipeline) Name() string { return p.name }

// Level returns the number of register stages.
func (p *Pipeline) Level() int { return p.level }

// Stage returns stage i. Negative indices count from the end.
func (p *Pipeline) Stage(i int) Ident {
	if i < 0 {
		i += len(p.ids)
	}
	return p.ids[i]
}

// First returns the undelayed tap.
func (p *Pipeline) First() Ident { return p.ids[0] }

// Last returns the fully delayed tap.
func (p *Pipeline) Last() Ident { return p.ids[len(p.ids)-1] }

// Signals returns the stage declarations in order.
func (p *Pipeline) Signals() []Signal {
	out := make([]Signal, 0, len(p.ids))
	out = append(out, Signal{Name: p.ids[0].Name, Kind: Wire, Range: p.rng})
	for _, id := range p.ids[1:] {
		out = append(out, Signal{Name: id.Name, Kind: Reg, Range: p.rng, Attrs: []string{KeepAttr}})
	}
	return out
}
