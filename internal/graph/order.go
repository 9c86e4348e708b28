package graph

import (
	"fmt"

	"taskhdl/internal/diag"
)

// CompositeOrder returns the composite tasks reachable from the top task,
// children before parents. Siblings are visited in name order so the
// result is deterministic. A task that transitively instantiates itself is
// malformed.
func (p *Program) CompositeOrder() ([]*Task, error) {
	top, err := p.TopTask()
	if err != nil {
		return nil, err
	}
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int)
	var order []*Task
	var visit func(t *Task, path []string) error
	visit = func(t *Task, path []string) error {
		switch state[t.Name] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("task %s instantiates itself via %v: %w", t.Name, append(path, t.Name), diag.ErrMalformedDescription)
		}
		if !t.IsComposite() {
			state[t.Name] = visited
			return nil
		}
		state[t.Name] = visiting
		for _, name := range t.ChildNames() {
			child, ok := p.Tasks[name]
			if !ok {
				return fmt.Errorf("task %s instantiates undefined task %s: %w", t.Name, name, diag.ErrMalformedDescription)
			}
			if err := visit(child, append(path, t.Name)); err != nil {
				return err
			}
		}
		state[t.Name] = visited
		order = append(order, t)
		return nil
	}
	if err := visit(top, nil); err != nil {
		return nil, err
	}
	return order, nil
}
