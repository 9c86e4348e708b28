package graph

import (
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"taskhdl/internal/diag"
)

func loadTestProgram(t *testing.T) *Program {
	t.Helper()
	data, err := os.ReadFile("testdata/vadd.json")
	if err != nil {
		t.Fatalf("read testdata: %v", err)
	}
	prog, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return prog
}

func TestParseDescription(t *testing.T) {
	prog := loadTestProgram(t)
	top, err := prog.TopTask()
	if err != nil {
		t.Fatalf("TopTask: %v", err)
	}
	if !top.IsComposite() {
		t.Fatalf("Top must be composite")
	}
	if diff := cmp.Diff([]Port{
		{Name: "n", Cat: Scalar, Type: "uint64_t", Width: 64},
		{Name: "mem", Cat: MMap, Type: "float*", Width: 32},
	}, prog.Ports); diff != "" {
		t.Fatalf("top ports mismatch (-want +got):\n%s", diff)
	}
	q := top.Fifos["q"]
	if q == nil || q.Depth != 32 || q.External() {
		t.Fatalf("unexpected fifo %+v", q)
	}
	if diff := cmp.Diff(&Endpoint{Task: "A", Index: 0}, q.Producer); diff != "" {
		t.Fatalf("producer mismatch (-want +got):\n%s", diff)
	}
	if q.Consumer.InstanceName() != "B_0" {
		t.Fatalf("consumer = %s", q.Consumer.InstanceName())
	}
}

func TestInstancesAreSorted(t *testing.T) {
	prog := loadTestProgram(t)
	top, _ := prog.TopTask()
	insts, err := prog.Instances(top)
	if err != nil {
		t.Fatalf("Instances: %v", err)
	}
	var names []string
	for _, inst := range insts {
		names = append(names, inst.Name())
	}
	if diff := cmp.Diff([]string{"A_0", "B_0", "Mon_0"}, names); diff != "" {
		t.Fatalf("instance order mismatch (-want +got):\n%s", diff)
	}
	if !insts[2].IsAutorun() || insts[0].IsAutorun() {
		t.Fatalf("autorun detection is wrong")
	}
	if insts[1].Args[0].Name != "n" || insts[1].Args[1].Name != "q" {
		t.Fatalf("args must be sorted by name: %+v", insts[1].Args)
	}
}

func TestResolveEndpoint(t *testing.T) {
	prog := loadTestProgram(t)
	top, _ := prog.TopTask()
	inst, port, err := prog.Resolve(top, "q", top.Fifos["q"].Consumer)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if inst.Name() != "B_0" || port != "in" {
		t.Fatalf("Resolve = %s.%s", inst.Name(), port)
	}
	if _, _, err := prog.Resolve(top, "q", &Endpoint{Task: "B", Index: 3}); !errors.Is(err, diag.ErrMalformedDescription) {
		t.Fatalf("expected malformed description for dangling index, got %v", err)
	}
	if _, _, err := prog.Resolve(top, "x", top.Fifos["q"].Consumer); !errors.Is(err, diag.ErrMalformedDescription) {
		t.Fatalf("expected malformed description for unbound fifo, got %v", err)
	}
}

func TestUnknownCategoriesAreCollected(t *testing.T) {
	_, err := Parse([]byte(`{
	  "top": "Top",
	  "tasks": {
	    "Top": {"level": "upper",
	      "ports": [{"name": "p", "cat": "hmap", "width": 32}],
	      "tasks": {"A": [{"step": 0, "args": {"x": {"cat": "bogus", "port": "x"}}}]}},
	    "A": {"level": "lower"}
	  }
	}`))
	if !errors.Is(err, diag.ErrUnsupportedArgumentCategory) {
		t.Fatalf("expected unsupported category, got %v", err)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	for name, src := range map[string]string{
		"not json":       `{`,
		"missing top":    `{"tasks": {}}`,
		"bad level":      `{"top": "T", "tasks": {"T": {"level": "middle"}}}`,
		"bad endpoint":   `{"top": "T", "tasks": {"T": {"level": "upper", "fifos": {"f": {"depth": 2, "produced_by": ["A"]}}}}}`,
		"fraction index": `{"top": "T", "tasks": {"T": {"level": "upper", "fifos": {"f": {"depth": 2, "produced_by": ["A", 0.5]}}}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(src)); !errors.Is(err, diag.ErrMalformedDescription) {
				t.Fatalf("expected malformed description, got %v", err)
			}
		})
	}
}

func TestCategoryCombinators(t *testing.T) {
	tests := []struct {
		cat                                      Category
		mmap, async, stream, input, output bool
	}{
		{Scalar, false, false, false, true, false},
		{IStream, false, false, true, true, false},
		{OStream, false, false, true, false, true},
		{MMap, true, false, false, false, false},
		{AsyncMMap, true, true, false, false, false},
	}
	for _, tc := range tests {
		got := []bool{tc.cat.IsMMap(), tc.cat.IsAsync(), tc.cat.IsStream(), tc.cat.IsInput(), tc.cat.IsOutput()}
		want := []bool{tc.mmap, tc.async, tc.stream, tc.input, tc.output}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("%s combinators mismatch (-want +got):\n%s", tc.cat, diff)
		}
		parsed, err := ParseCategory(tc.cat.String())
		if err != nil || parsed != tc.cat {
			t.Fatalf("ParseCategory(%s) = %v, %v", tc.cat, parsed, err)
		}
	}
}

func TestCompositeOrder(t *testing.T) {
	prog := &Program{Top: "Top", Tasks: map[string]*Task{
		"Top":  {Name: "Top", Level: Composite, Children: map[string][]Invocation{"Mid": {{}}, "Leaf": {{}}, "Alt": {{}}}},
		"Mid":  {Name: "Mid", Level: Composite, Children: map[string][]Invocation{"Leaf": {{}}}},
		"Alt":  {Name: "Alt", Level: Composite, Children: map[string][]Invocation{"Mid": {{}}}},
		"Leaf": {Name: "Leaf", Level: Leaf},
	}}
	order, err := prog.CompositeOrder()
	if err != nil {
		t.Fatalf("CompositeOrder: %v", err)
	}
	var names []string
	for _, task := range order {
		names = append(names, task.Name)
	}
	if diff := cmp.Diff([]string{"Mid", "Alt", "Top"}, names); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	prog.Tasks["Mid"].Children["Alt"] = []Invocation{{}}
	if _, err := prog.CompositeOrder(); !errors.Is(err, diag.ErrMalformedDescription) {
		t.Fatalf("expected cycle to be malformed, got %v", err)
	}
}
