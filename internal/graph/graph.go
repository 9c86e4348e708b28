// Package graph holds the task-hierarchy description: tasks, their child
// instantiations, the FIFOs between them and the top-level ports.
package graph

import (
	"fmt"
	"sort"
	"strconv"

	"taskhdl/internal/diag"
	"taskhdl/internal/ir"
)

// Program is the whole description.
type Program struct {
	Top   string
	Tasks map[string]*Task
	// Ports is the top-level interface in declaration order.
	Ports []Port
}

// Task is either a leaf with a pre-synthesized module or a composite that
// instantiates children.
type Task struct {
	Name  string
	Level Level
	// Ports is the declared interface of the task, if any.
	Ports []Port
	// Children maps a child task name to its instantiation records; the
	// position in the slice is the instance index.
	Children map[string][]Invocation
	Fifos    map[string]*Fifo
	// Module is the parsed leaf module, or the generated composite module
	// once generation ran.
	Module *ir.Module
	// Skeleton is the HLS-produced module of a composite task, if any.
	// Generation reads it and never replaces it.
	Skeleton *ir.Module
}

// Invocation is one instantiation record of a child task.
type Invocation struct {
	Step int
	Args map[string]Arg
}

// Arg binds a parent-side name to a child port.
type Arg struct {
	Cat  Category
	Port string
}

// Port is a declared task port.
type Port struct {
	Name  string
	Cat   Category
	Type  string
	Width int
}

// Endpoint names one side of a FIFO: the instance Index of Task.
type Endpoint struct {
	Task  string
	Index int
}

// InstanceName returns the name of the instance the endpoint refers to.
func (e Endpoint) InstanceName() string { return InstanceName(e.Task, e.Index) }

// Fifo is a stream connection inside a composite task. A FIFO without
// Depth is external: the missing side is the parent's stream port with the
// same name.
type Fifo struct {
	Name     string
	Depth    int
	Producer *Endpoint
	Consumer *Endpoint
}

// External reports whether the FIFO crosses the task boundary.
func (f *Fifo) External() bool { return f.Depth == 0 }

// InstanceName builds the instance name of the index-th instance of task.
func InstanceName(task string, index int) string {
	return task + "_" + strconv.Itoa(index)
}

// Task returns the named task.
func (p *Program) Task(name string) (*Task, bool) {
	t, ok := p.Tasks[name]
	return t, ok
}

// TopTask returns the task named by Top.
func (p *Program) TopTask() (*Task, error) {
	t, ok := p.Tasks[p.Top]
	if !ok {
		return nil, fmt.Errorf("top task %q is not defined: %w", p.Top, diag.ErrMalformedDescription)
	}
	return t, nil
}

// TaskNames returns every task name in sorted order.
func (p *Program) TaskNames() []string {
	names := make([]string, 0, len(p.Tasks))
	for name := range p.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsComposite reports whether t instantiates children.
func (t *Task) IsComposite() bool { return t.Level == Composite }

// ChildNames returns the child task names in sorted order.
func (t *Task) ChildNames() []string {
	names := make([]string, 0, len(t.Children))
	for name := range t.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FifoNames returns the FIFO names in sorted order.
func (t *Task) FifoNames() []string {
	names := make([]string, 0, len(t.Fifos))
	for name := range t.Fifos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Port returns the declared port name.
func (t *Task) Port(name string) (Port, bool) {
	for _, p := range t.Ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Instance is a view of one child instantiation within a parent.
type Instance struct {
	Task  *Task
	Index int
	Step  int
	// Args are sorted by parent-side name.
	Args []NamedArg
}

// NamedArg is an Arg together with its parent-side name.
type NamedArg struct {
	Name string
	Arg
}

// Name returns "<task>_<index>".
func (i Instance) Name() string { return InstanceName(i.Task.Name, i.Index) }

// IsAutorun reports whether the instance runs free without start/done
// tracking.
func (i Instance) IsAutorun() bool { return i.Step < 0 }

// Arg returns the argument bound under the parent-side name.
func (i Instance) Arg(name string) (Arg, bool) {
	for _, a := range i.Args {
		if a.Name == name {
			return a.Arg, true
		}
	}
	return Arg{}, false
}

// Instances returns the children of t ordered by task name and index.
func (p *Program) Instances(t *Task) ([]Instance, error) {
	var out []Instance
	for _, name := range t.ChildNames() {
		child, ok := p.Tasks[name]
		if !ok {
			return nil, fmt.Errorf("task %s instantiates undefined task %s: %w", t.Name, name, diag.ErrMalformedDescription)
		}
		for idx, inv := range t.Children[name] {
			args := make([]NamedArg, 0, len(inv.Args))
			for argName, arg := range inv.Args {
				args = append(args, NamedArg{Name: argName, Arg: arg})
			}
			sort.Slice(args, func(a, b int) bool { return args[a].Name < args[b].Name })
			out = append(out, Instance{Task: child, Index: idx, Step: inv.Step, Args: args})
		}
	}
	return out, nil
}

// Resolve returns the instance an endpoint refers to together with the
// child port bound to fifo.
func (p *Program) Resolve(parent *Task, fifo string, ep *Endpoint) (Instance, string, error) {
	if ep == nil {
		return Instance{}, "", fmt.Errorf("fifo %s in %s: missing endpoint: %w", fifo, parent.Name, diag.ErrMalformedDescription)
	}
	invs, ok := parent.Children[ep.Task]
	if !ok || ep.Index < 0 || ep.Index >= len(invs) {
		return Instance{}, "", fmt.Errorf("fifo %s in %s: no instance %s: %w", fifo, parent.Name, ep.InstanceName(), diag.ErrMalformedDescription)
	}
	insts, err := p.Instances(parent)
	if err != nil {
		return Instance{}, "", err
	}
	for _, inst := range insts {
		if inst.Task.Name != ep.Task || inst.Index != ep.Index {
			continue
		}
		arg, ok := inst.Arg(fifo)
		if !ok || !arg.Cat.IsStream() {
			return Instance{}, "", fmt.Errorf("fifo %s in %s: instance %s has no stream argument %s: %w", fifo, parent.Name, inst.Name(), fifo, diag.ErrMalformedDescription)
		}
		return inst, arg.Port, nil
	}
	return Instance{}, "", fmt.Errorf("fifo %s in %s: no instance %s: %w", fifo, parent.Name, ep.InstanceName(), diag.ErrMalformedDescription)
}
