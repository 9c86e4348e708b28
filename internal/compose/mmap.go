package compose

import (
	"math/bits"
	"strconv"
	"strings"

	"taskhdl/internal/graph"
	"taskhdl/internal/ir"
)

type mAxiPort struct {
	name string
	dir  ir.PortDirection
}

var mAxiAddrPorts = []mAxiPort{
	{"ADDR", ir.Output}, {"BURST", ir.Output}, {"CACHE", ir.Output}, {"ID", ir.Output},
	{"LEN", ir.Output}, {"LOCK", ir.Output}, {"PROT", ir.Output}, {"QOS", ir.Output},
	{"READY", ir.Input}, {"SIZE", ir.Output}, {"VALID", ir.Output},
}

// mAxiChannels lists the AXI4 master ports per channel, in render order.
var mAxiChannels = []struct {
	name  string
	ports []mAxiPort
}{
	{"AR", mAxiAddrPorts},
	{"AW", mAxiAddrPorts},
	{"B", []mAxiPort{{"ID", ir.Input}, {"READY", ir.Output}, {"RESP", ir.Input}, {"VALID", ir.Input}}},
	{"R", []mAxiPort{{"DATA", ir.Input}, {"ID", ir.Input}, {"LAST", ir.Input}, {"READY", ir.Output}, {"RESP", ir.Input}, {"VALID", ir.Input}}},
	{"W", []mAxiPort{{"DATA", ir.Output}, {"LAST", ir.Output}, {"READY", ir.Input}, {"STRB", ir.Output}, {"VALID", ir.Output}}},
}

var mAxiFixedWidths = map[string]int{
	"BURST": 2, "CACHE": 4, "LEN": 8, "PROT": 3, "QOS": 4, "RESP": 2, "SIZE": 3, "ID": 1,
}

// mAxiRange returns the range of an m_axi port. ID stays a vector even when
// one bit wide.
func (g *taskGen) mAxiRange(port string, dataWidth int) *ir.Range {
	switch port {
	case "ADDR":
		return ir.Bits(g.opts.AddressWidth)
	case "DATA":
		return ir.Bits(dataWidth)
	case "STRB":
		return ir.Bits(dataWidth / 8)
	case "ID":
		return ir.Vector(mAxiFixedWidths[port])
	}
	return ir.Bits(mAxiFixedWidths[port])
}

// declareMAxi adds the full m_axi_<arg>_* port set to the parent.
func (g *taskGen) declareMAxi(arg string, dataWidth int) error {
	for _, ch := range mAxiChannels {
		for _, p := range ch.ports {
			port := ir.Port{Name: mAxiName(arg, ch.name, p.name), Direction: p.dir, Range: g.mAxiRange(p.name, dataWidth)}
			if err := g.m.AddPorts(port); err != nil {
				return err
			}
		}
	}
	return nil
}

// mmapDataWidth prefers the declared port width and falls back to the
// child's write-data port.
func (g *taskGen) mmapDataWidth(inst graph.Instance, arg graph.NamedArg) (int, error) {
	if p, ok := g.task.Port(arg.Name); ok && p.Width > 0 {
		return p.Width, nil
	}
	if arg.Cat.IsAsync() {
		for _, tag := range []string{"write_data", "read_data"} {
			sfx := asyncSuffixes(tag)[0]
			if p, ok := inst.Task.Module.FindPort(arg.Port+"_"+tag, sfx); ok {
				if w, err := p.Range.Width(); err == nil {
					return w, nil
				}
			}
		}
		return 0, malformed("%s: cannot derive data width of %s", inst.Name(), arg.Name)
	}
	return childPortWidth(inst, "m_axi_"+arg.Port, "_WDATA")
}

// connectMMap declares the parent m_axi ports and binds the child's m_axi
// interface plus its offset port, which receives the delayed address.
func (g *taskGen) connectMMap(inst graph.Instance, arg graph.NamedArg, tap *ir.Pipeline) ([]ir.PortArg, error) {
	width, err := g.mmapDataWidth(inst, arg)
	if err != nil {
		return nil, err
	}
	if err := g.declareMAxi(arg.Name, width); err != nil {
		return nil, err
	}
	var out []ir.PortArg
	for _, ch := range mAxiChannels {
		for _, p := range ch.ports {
			out = append(out, ir.PortArg{
				Port: mAxiName(arg.Port, ch.name, p.name),
				Arg:  ir.ID(mAxiName(arg.Name, ch.name, p.name)),
			})
		}
	}
	child := inst.Task.Module
	for _, sfx := range []string{"_offset", "_data_V", "_V", ""} {
		p, ok := child.FindPort(arg.Port, sfx)
		if !ok {
			continue
		}
		if p.Name != arg.Port+sfx {
			g.logger.Warn("unexpected offset port", "port", p.Name, "module", child.Name, "m_axi", arg.Port)
		}
		return append(out, ir.PortArg{Port: p.Name, Arg: tap.Last()}), nil
	}
	return nil, malformed("%s: module %s has no offset port for %s", inst.Name(), child.Name, arg.Port)
}

// asyncTags are the four split channels of an async-mmap argument.
var asyncTags = []string{"read_addr", "read_data", "write_addr", "write_data"}

func asyncSuffixes(tag string) [3]string {
	if tag == "read_data" {
		return istreamSuffixes
	}
	return ostreamSuffixes
}

// asyncArg records which channels of an argument the children use.
type asyncArg struct {
	name      string
	dataWidth int
	tags      []string
}

func (a asyncArg) has(tag string) bool {
	for _, t := range a.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// asyncRange is the data range of an async-mmap channel signal.
func (g *taskGen) asyncRange(tag, suffix string, dataWidth int) *ir.Range {
	if suffix != istreamSuffixes[0] && suffix != ostreamSuffixes[0] {
		return nil
	}
	if strings.HasSuffix(tag, "_addr") {
		return ir.Bits(g.opts.AddressWidth)
	}
	return ir.Bits(dataWidth)
}

// connectAsyncMMap probes the child for the channels it exposes and wires
// exactly those. The top task gets wires feeding an adapter; any other
// composite forwards the channels through its own ports. A child offset
// port, as exposed by a nested composite, receives the delayed address.
func (g *taskGen) connectAsyncMMap(inst graph.Instance, arg graph.NamedArg, tap *ir.Pipeline) ([]ir.PortArg, error) {
	child := inst.Task.Module
	width, err := g.mmapDataWidth(inst, arg)
	if err != nil {
		return nil, err
	}
	rec := asyncArg{name: arg.Name, dataWidth: width}
	var out []ir.PortArg
	for _, tag := range asyncTags {
		var found []ir.PortArg
		for _, sfx := range asyncSuffixes(tag) {
			if p, ok := child.FindPort(arg.Port+"_"+tag, sfx); ok {
				found = append(found, ir.PortArg{Port: p.Name, Arg: ir.ID(asyncWire(arg.Name, tag, sfx))})
			}
		}
		if len(found) == 0 {
			continue
		}
		rec.tags = append(rec.tags, tag)
		out = append(out, found...)
		for _, sfx := range asyncSuffixes(tag) {
			name := asyncWire(arg.Name, tag, sfx)
			rng := g.asyncRange(tag, sfx, width)
			if g.isTop {
				err = g.m.AddSignals(ir.Signal{Name: name, Range: rng})
			} else {
				err = g.m.AddPorts(ir.Port{Name: name, Direction: asyncDirection(sfx), Range: rng})
			}
			if err != nil {
				return nil, err
			}
		}
	}
	if len(rec.tags) == 0 {
		return nil, malformed("%s: module %s exposes no async-mmap channel for %s", inst.Name(), child.Name, arg.Port)
	}
	for _, name := range []string{arg.Port, arg.Port + "_offset"} {
		if _, ok := child.Port(name); ok {
			out = append(out, ir.PortArg{Port: name, Arg: tap.Last()})
			break
		}
	}
	g.logger.Debug("async_mmap channels", "instance", inst.Name(), "arg", arg.Name, "tags", rec.tags)
	g.async = append(g.async, rec)
	return out, nil
}

// asyncDirection is the direction of a forwarded channel at the parent
// boundary: the child's outputs leave the parent.
func asyncDirection(suffix string) ir.PortDirection {
	switch suffix {
	case istreamSuffixes[2], ostreamSuffixes[0], ostreamSuffixes[2]:
		return ir.Output
	}
	return ir.Input
}

// instantiateAsyncMMaps adds one adapter per async-mmap argument of the top
// task. Unused channels are tied off.
func (g *taskGen) instantiateAsyncMMaps() error {
	if !g.isTop {
		return nil
	}
	for _, a := range g.async {
		if err := g.declareMAxi(a.name, a.dataWidth); err != nil {
			return err
		}
		bytesLog := bits.Len(uint(max(0, a.dataWidth/8-1)))
		lit := func(v int) ir.Expr { return ir.Literal{Text: strconv.Itoa(v)} }
		ports := []ir.PortArg{
			{Port: "clk", Arg: ir.ID(portClk)},
			{Port: "rst", Arg: ir.ID(signalRst)},
			{Port: "offset", Arg: g.argQ[a.name].Last()},
		}
		for _, ch := range mAxiChannels {
			for _, p := range ch.ports {
				ports = append(ports, ir.PortArg{
					Port: "m_axi_" + ch.name + p.name,
					Arg:  ir.ID(mAxiName(a.name, ch.name, p.name)),
				})
			}
		}
		for _, tag := range asyncTags {
			for _, sfx := range asyncSuffixes(tag) {
				var arg ir.Expr
				switch {
				case a.has(tag):
					arg = ir.ID(asyncWire(a.name, tag, sfx))
				case sfx == istreamSuffixes[2] || sfx == ostreamSuffixes[2]:
					arg = ir.False
				case sfx == ostreamSuffixes[0]:
					arg = ir.Literal{Text: "'d0"}
				}
				ports = append(ports, ir.PortArg{Port: tag + sfx, Arg: arg})
			}
		}
		if err := g.m.AddInstance(ir.Instance{
			Module: asyncModule,
			Name:   a.name + "__m_axi",
			Params: []ir.ParamArg{
				{Name: "DataWidth", Value: lit(a.dataWidth)},
				{Name: "DataWidthBytesLog", Value: lit(bytesLog)},
				{Name: "AddrWidth", Value: lit(g.opts.AddressWidth)},
			},
			Ports: ports,
		}); err != nil {
			return err
		}
	}
	return nil
}
