package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"taskhdl/internal/diag"
	"taskhdl/internal/graph"
)

// CheckProgram validates the topology of a task-hierarchy description:
// every reference resolves, every FIFO has the endpoints its kind requires
// and every argument is bound consistently. All problems are reported
// through reporter and returned together.
func CheckProgram(prog *graph.Program, reporter *diag.Reporter) error {
	if prog == nil {
		return fmt.Errorf("no program provided for validation")
	}
	c := &checker{prog: prog, reporter: reporter}
	c.run()
	if err := c.errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("validation failed with %d issue(s): %w", len(c.errs.Errors), err)
	}
	return nil
}

type checker struct {
	prog     *graph.Program
	reporter *diag.Reporter
	errs     *multierror.Error
}

func (c *checker) errorf(sentinel error, format string, args ...any) {
	err := fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
	c.add(err)
}

func (c *checker) add(err error) {
	c.reporter.Errorf("%v", err)
	c.errs = multierror.Append(c.errs, err)
}

func (c *checker) run() {
	top, ok := c.prog.Task(c.prog.Top)
	if !ok {
		c.errorf(diag.ErrMalformedDescription, "top task %q is not defined", c.prog.Top)
		return
	}
	if !top.IsComposite() {
		c.errorf(diag.ErrMalformedDescription, "top task %s must be composite", top.Name)
	}
	for _, name := range c.prog.TaskNames() {
		task := c.prog.Tasks[name]
		if !task.IsComposite() {
			if len(task.Children) > 0 || len(task.Fifos) > 0 {
				c.errorf(diag.ErrMalformedDescription, "leaf task %s must not have children or fifos", name)
			}
			continue
		}
		c.checkComposite(task)
	}
	if c.errs.ErrorOrNil() == nil {
		if _, err := c.prog.CompositeOrder(); err != nil {
			c.add(err)
		}
	}
}

func (c *checker) checkComposite(task *graph.Task) {
	for _, child := range task.ChildNames() {
		if _, ok := c.prog.Task(child); !ok {
			c.errorf(diag.ErrMalformedDescription, "task %s instantiates undefined task %s", task.Name, child)
		}
	}
	insts, err := c.prog.Instances(task)
	if err != nil {
		return
	}

	mmapUsers := make(map[string][]string)
	for _, inst := range insts {
		for _, arg := range inst.Args {
			switch {
			case !arg.Cat.Valid():
				c.errorf(diag.ErrUnsupportedArgumentCategory, "%s.%s: category %s", inst.Name(), arg.Name, arg.Cat)
			case arg.Port == "":
				c.errorf(diag.ErrMalformedDescription, "%s.%s: missing child port", inst.Name(), arg.Name)
			case arg.Cat.IsStream():
				c.checkStreamArg(task, inst, arg)
			case arg.Cat.IsMMap():
				mmapUsers[arg.Name] = append(mmapUsers[arg.Name], inst.Name())
				c.checkParentPort(task, inst, arg)
			default:
				c.checkParentPort(task, inst, arg)
			}
		}
	}
	for _, name := range sortedKeys(mmapUsers) {
		if users := mmapUsers[name]; len(users) > 1 {
			c.errorf(diag.ErrMalformedDescription, "task %s: mmap argument %s is shared by %s", task.Name, name, strings.Join(users, ", "))
		}
	}

	for _, name := range task.FifoNames() {
		c.checkFifo(task, task.Fifos[name])
	}
}

func (c *checker) checkStreamArg(task *graph.Task, inst graph.Instance, arg graph.NamedArg) {
	fifo, ok := task.Fifos[arg.Name]
	if !ok {
		c.errorf(diag.ErrMalformedDescription, "%s.%s: no fifo named %s in %s", inst.Name(), arg.Name, arg.Name, task.Name)
		return
	}
	ep := fifo.Consumer
	role := "consumer"
	if arg.Cat == graph.OStream {
		ep, role = fifo.Producer, "producer"
	}
	if ep == nil || ep.Task != inst.Task.Name || ep.Index != inst.Index {
		c.errorf(diag.ErrMalformedDescription, "%s.%s: instance is not the %s of fifo %s", inst.Name(), arg.Name, role, fifo.Name)
	}
}

func (c *checker) checkParentPort(task *graph.Task, inst graph.Instance, arg graph.NamedArg) {
	if len(task.Ports) == 0 || isConstant(arg.Name) {
		return
	}
	port, ok := task.Port(arg.Name)
	if !ok {
		c.errorf(diag.ErrMalformedDescription, "%s.%s: %s declares no port %s", inst.Name(), arg.Name, task.Name, arg.Name)
		return
	}
	if port.Cat.IsMMap() != arg.Cat.IsMMap() {
		c.errorf(diag.ErrMalformedDescription, "%s.%s: %s argument bound to %s port", inst.Name(), arg.Name, arg.Cat, port.Cat)
	}
}

func (c *checker) checkFifo(task *graph.Task, fifo *graph.Fifo) {
	if fifo.Depth < 0 {
		c.errorf(diag.ErrMalformedDescription, "fifo %s in %s: negative depth %d", fifo.Name, task.Name, fifo.Depth)
	}
	endpoints := 0
	for _, ep := range []*graph.Endpoint{fifo.Producer, fifo.Consumer} {
		if ep == nil {
			continue
		}
		endpoints++
		if _, _, err := c.prog.Resolve(task, fifo.Name, ep); err != nil {
			c.errorf(diag.ErrMalformedDescription, "fifo %s in %s: dangling endpoint %s", fifo.Name, task.Name, ep.InstanceName())
		}
	}
	switch {
	case fifo.External() && endpoints != 1:
		c.errorf(diag.ErrMalformedDescription, "external fifo %s in %s must have exactly one endpoint", fifo.Name, task.Name)
	case !fifo.External() && endpoints != 2:
		c.errorf(diag.ErrMalformedDescription, "fifo %s in %s needs a producer and a consumer", fifo.Name, task.Name)
	}
}

// isConstant reports whether an argument name is a sized literal such as
// 32'd5.
func isConstant(name string) bool {
	return strings.Contains(name, "'")
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
