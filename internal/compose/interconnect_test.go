package compose

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"taskhdl/internal/ir"
	"taskhdl/internal/verilog"
)

func TestAsyncMMapForwardsUsedChannels(t *testing.T) {
	prog := loadProgram(t, "async.txtar")
	design := generate(t, prog, Options{RegisterLevel: 2})
	if len(design.Modules) != 2 || design.Modules[0].Name != "Mid" || design.TopLevel.Name != "Top" {
		t.Fatalf("children must be generated before their parents")
	}

	mid := design.Modules[0]
	want := map[string]struct {
		dir ir.PortDirection
		rng string
	}{
		"mem":                    {ir.Input, "[63:0]"},
		"mem_read_addr__din":     {ir.Output, "[63:0]"},
		"mem_read_addr__full_n":  {ir.Input, ""},
		"mem_read_addr__write":   {ir.Output, ""},
		"mem_read_data__dout":    {ir.Input, "[31:0]"},
		"mem_read_data__empty_n": {ir.Input, ""},
		"mem_read_data__read":    {ir.Output, ""},
	}
	for name, w := range want {
		p, ok := mid.Port(name)
		if !ok || p.Direction != w.dir || p.Range.String() != w.rng {
			t.Fatalf("Mid port %s = %+v, want %v %q", name, p, w.dir, w.rng)
		}
	}
	if mid.Declared("mem_write_addr__din") || mid.Declared("mem__m_axi") {
		t.Fatalf("Mid must forward only the channels C uses and own no adapter")
	}
	c := bindings(instance(t, mid, "C_0"))
	if c["src_read_addr_V_din"] != "mem_read_addr__din" || c["src_offset"] != "C_0___mem__q2" {
		t.Fatalf("C_0 bindings: %v", c)
	}

	top := design.TopLevel
	for _, name := range []string{"mem_read_addr__din", "mem_read_data__dout"} {
		sig, ok := top.Signal(name)
		if !ok || sig.Kind != ir.Wire {
			t.Fatalf("Top must declare wire %s", name)
		}
	}
	if top.Declared("mem_write_data__din") {
		t.Fatalf("unused channels get no wires")
	}
	m := bindings(instance(t, top, "Mid_0"))
	if m["mem"] != "Mid_0___mem__q2" || m["mem_read_data__read"] != "mem_read_data__read" {
		t.Fatalf("Mid_0 bindings: %v", m)
	}

	adapter := instance(t, top, "mem__m_axi")
	if adapter.Module != "async_mmap" {
		t.Fatalf("adapter module %s", adapter.Module)
	}
	if diff := cmp.Diff([]ir.ParamArg{
		{Name: "DataWidth", Value: ir.Literal{Text: "32"}},
		{Name: "DataWidthBytesLog", Value: ir.Literal{Text: "2"}},
		{Name: "AddrWidth", Value: ir.Literal{Text: "64"}},
	}, adapter.Params); diff != "" {
		t.Fatalf("adapter params mismatch (-want +got):\n%s", diff)
	}
	a := bindings(adapter)
	for port, want := range map[string]string{
		"clk":               "ap_clk",
		"rst":               "ap_rst_n_inv",
		"offset":            "Mid_0___mem__q2",
		"m_axi_ARADDR":      "m_axi_mem_ARADDR",
		"m_axi_WSTRB":       "m_axi_mem_WSTRB",
		"read_addr_din":     "mem_read_addr__din",
		"read_data_read":    "mem_read_data__read",
		"write_addr_din":    "'d0",
		"write_addr_write":  "1'b0",
		"write_addr_full_n": "",
		"write_data_write":  "1'b0",
		"write_resp_dout":   "<absent>",
	} {
		got, ok := a[port]
		if want == "<absent>" {
			if ok {
				t.Fatalf("adapter has unexpected port %s", port)
			}
			continue
		}
		if got != want {
			t.Fatalf("adapter.%s bound to %q, want %q", port, got, want)
		}
	}
	if p, ok := top.Port("m_axi_mem_WDATA"); !ok || p.Range.String() != "[31:0]" {
		t.Fatalf("Top must expose the m_axi data bus, got %+v", p)
	}
}

func TestExternalFifoCrossesBoundary(t *testing.T) {
	prog := loadProgram(t, "external.txtar")
	design := generate(t, prog, Options{RegisterLevel: 1})
	mid := prog.Tasks["Mid"].Module

	var ports []string
	for _, p := range mid.Ports() {
		ports = append(ports, p.Name)
	}
	if diff := cmp.Diff([]string{"ap_clk", "ap_rst_n", "ap_start", "ap_done", "ap_idle", "ap_ready", "x_dout", "x_empty_n", "x_read"}, ports); diff != "" {
		t.Fatalf("Mid ports mismatch (-want +got):\n%s", diff)
	}
	for _, inst := range mid.Instances() {
		if inst.Module == "fifo" {
			t.Fatalf("external FIFOs are not instantiated")
		}
	}
	text := render(t, mid)
	for _, line := range []string{
		"wire [15:0] x__dout;",
		"assign x__dout = x_dout;",
		"assign x__empty_n = x_empty_n;",
		"assign x_read = x__read;",
	} {
		if !strings.Contains(text, line) {
			t.Fatalf("Mid lacks %q:\n%s", line, text)
		}
	}

	top := design.TopLevel
	fifo := instance(t, top, "x")
	if diff := cmp.Diff([]ir.ParamArg{
		{Name: "DATA_WIDTH", Value: ir.Literal{Text: "16"}},
		{Name: "ADDR_WIDTH", Value: ir.Literal{Text: "1"}},
		{Name: "DEPTH", Value: ir.Literal{Text: "2"}},
	}, fifo.Params); diff != "" {
		t.Fatalf("fifo params mismatch (-want +got):\n%s", diff)
	}
	m := bindings(instance(t, top, "Mid_0"))
	if m["x_dout"] != "x__dout" || m["x_read"] != "x__read" {
		t.Fatalf("Mid_0 bindings: %v", m)
	}
}

func TestDebugMonitors(t *testing.T) {
	prog := loadProgram(t, "pipeline.txtar")
	text := render(t, generate(t, prog, Options{RegisterLevel: 1, DebugMonitors: true}).TopLevel)
	for _, line := range []string{
		"// synthesis translate_off",
		`if(q__read && q__empty_n) begin`,
		`$display("DEBUG: fifo q read %h", q__dout);`,
		`$display("DEBUG: fifo q write %h", q__din);`,
		"// synthesis translate_on",
	} {
		if !strings.Contains(text, line) {
			t.Fatalf("monitor lacks %q:\n%s", line, text)
		}
	}

	prog = loadProgram(t, "pipeline.txtar")
	if strings.Contains(render(t, generate(t, prog, Options{RegisterLevel: 1}).TopLevel), "$display") {
		t.Fatalf("monitors must be opt-in")
	}
}

func TestAddressWidthOverride(t *testing.T) {
	prog := loadProgram(t, "pipeline.txtar")
	top := generate(t, prog, Options{RegisterLevel: 1, AddressWidth: 32}).TopLevel
	for _, name := range []string{"mem", "m_axi_mem_ARADDR", "m_axi_mem_AWADDR"} {
		if p, _ := top.Port(name); p.Range.String() != "[31:0]" {
			t.Fatalf("%s range = %q", name, p.Range.String())
		}
	}
	if q, _ := top.Signal("A_0___mem__q1"); q.Range.String() != "[31:0]" {
		t.Fatalf("address pipeline range = %q", q.Range.String())
	}
}

func TestFifoAddrWidth(t *testing.T) {
	for depth, want := range map[int]int{1: 1, 2: 1, 3: 2, 32: 5, 33: 6} {
		if got := fifoAddrWidth(depth); got != want {
			t.Fatalf("fifoAddrWidth(%d) = %d, want %d", depth, got, want)
		}
	}
	if got := verilog.ExprString(fifoInstance("a[1]", 8, 4).Ports[2].Arg); got != "a_1__dout" {
		t.Fatalf("array FIFO wires are sanitized, got %s", got)
	}
}
