package ir

import (
	"fmt"
	"strings"

	"taskhdl/internal/diag"
)

// Module is an append-only builder over four ordered regions: ports,
// parameters and signals, instances, and logic. Rendering emits the regions
// in that order, each in insertion order.
type Module struct {
	Name string
	// Verbatim holds the source text of a module that is passed through
	// unchanged (leaf tasks). Builder regions are then informational only.
	Verbatim string

	ports     []Port
	params    []Param
	signals   []Signal
	instances []Instance
	logics    []Logic

	names map[string]string
}

// NewModule returns an empty module named name.
func NewModule(name string) *Module {
	return &Module{Name: name, names: make(map[string]string)}
}

func (m *Module) declare(name, kind string) error {
	if name == "" {
		return fmt.Errorf("module %s: empty %s name: %w", m.Name, kind, diag.ErrMalformedDescription)
	}
	if m.names == nil {
		m.names = make(map[string]string)
	}
	if prev, ok := m.names[name]; ok {
		return fmt.Errorf("module %s: %s %q already declared as %s: %w", m.Name, kind, name, prev, diag.ErrNamingCollision)
	}
	m.names[name] = kind
	return nil
}

// Declared reports whether name is already used in the module.
func (m *Module) Declared(name string) bool {
	_, ok := m.names[name]
	return ok
}

// AddPorts appends IO ports.
func (m *Module) AddPorts(ports ...Port) error {
	for _, p := range ports {
		if err := m.declare(p.Name, "port"); err != nil {
			return err
		}
		m.ports = append(m.ports, p)
	}
	return nil
}

// AddParams appends parameters.
func (m *Module) AddParams(params ...Param) error {
	for _, p := range params {
		if err := m.declare(p.Name, "parameter"); err != nil {
			return err
		}
		m.params = append(m.params, p)
	}
	return nil
}

// AddSignals appends wire/reg declarations.
func (m *Module) AddSignals(signals ...Signal) error {
	for _, s := range signals {
		if err := m.declare(s.Name, "signal"); err != nil {
			return err
		}
		m.signals = append(m.signals, s)
	}
	return nil
}

// AddInstance appends a child instantiation.
func (m *Module) AddInstance(inst Instance) error {
	if err := m.declare(inst.Name, "instance"); err != nil {
		return err
	}
	m.instances = append(m.instances, inst)
	return nil
}

// AddLogics appends assignments and always blocks.
func (m *Module) AddLogics(logics ...Logic) {
	m.logics = append(m.logics, logics...)
}

// AddPipeline declares the stages of p and drives them from seed.
func (m *Module) AddPipeline(p *Pipeline, seed Expr) error {
	if err := m.AddSignals(p.Signals()...); err != nil {
		return err
	}
	m.AddLogics(Assign{LHS: p.Stage(0).Name, RHS: seed})
	if p.Level() > 0 {
		body := make([]Stmt, 0, p.Level())
		for i := 0; i < p.Level(); i++ {
			body = append(body, NonBlocking{LHS: p.Stage(i + 1).Name, RHS: p.Stage(i)})
		}
		m.AddLogics(Always{Body: body})
	}
	return nil
}

// Ports returns the ports in declaration order.
func (m *Module) Ports() []Port { return append([]Port(nil), m.ports...) }

// Params returns the parameters in declaration order.
func (m *Module) Params() []Param { return append([]Param(nil), m.params...) }

// Signals returns the signals in declaration order.
func (m *Module) Signals() []Signal { return append([]Signal(nil), m.signals...) }

// Instances returns the instances in declaration order.
func (m *Module) Instances() []Instance { return append([]Instance(nil), m.instances...) }

// Logics returns the logic items in declaration order.
func (m *Module) Logics() []Logic { return append([]Logic(nil), m.logics...) }

// Port looks a port up by exact name.
func (m *Module) Port(name string) (Port, bool) {
	for _, p := range m.ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Signal looks a signal up by exact name.
func (m *Module) Signal(name string) (Signal, bool) {
	for _, s := range m.signals {
		if s.Name == name {
			return s, true
		}
	}
	return Signal{}, false
}

// FindPort returns the first port whose name has both prefix and suffix.
func (m *Module) FindPort(prefix, suffix string) (Port, bool) {
	for _, p := range m.ports {
		if strings.HasPrefix(p.Name, prefix) && strings.HasSuffix(p.Name, suffix) {
			return p, true
		}
	}
	return Port{}, false
}

// portInfixes are inserted by HLS tools between an argument name and the
// role suffix of the ports derived from it.
var portInfixes = []string{"_V", "_r", "_s", ""}

// PortOf returns the port of argument name carrying the given role suffix,
// trying the known HLS infixes. Array-style names "a[3]" map to "a_3".
func (m *Module) PortOf(name, suffix string) (Port, error) {
	base := SanitizeArrayName(name)
	for _, infix := range portInfixes {
		if p, ok := m.Port(base + infix + suffix); ok {
			return p, nil
		}
	}
	return Port{}, fmt.Errorf("module %s has no port %s%s: %w", m.Name, name, suffix, diag.ErrMalformedDescription)
}

// SanitizeArrayName turns "name[3]" into "name_3" and leaves others alone.
func SanitizeArrayName(name string) string {
	open := strings.IndexByte(name, '[')
	if open <= 0 || !strings.HasSuffix(name, "]") {
		return name
	}
	idx := name[open+1 : len(name)-1]
	for _, r := range idx {
		if r < '0' || r > '9' {
			return name
		}
	}
	if idx == "" {
		return name
	}
	return name[:open] + "_" + idx
}
