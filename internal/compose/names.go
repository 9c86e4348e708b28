package compose

import (
	"fmt"
	"strconv"
	"strings"

	"taskhdl/internal/diag"
	"taskhdl/internal/ir"
)

// Handshake port names of the ap_ctrl_hs protocol.
const (
	portClk     = "ap_clk"
	portRstN    = "ap_rst_n"
	portStart   = "ap_start"
	portDone    = "ap_done"
	portIdle    = "ap_idle"
	portReady   = "ap_ready"
	signalRst   = "ap_rst_n_inv"
	stateReg    = "ctrl_state"
	countdown   = "ctrl_countdown"
	fifoModule  = "fifo"
	asyncModule = "async_mmap"
)

// Controller state encodings.
var (
	state00 = ir.Const{Width: 2, Value: 0}
	state01 = ir.Const{Width: 2, Value: 1}
	state10 = ir.Const{Width: 2, Value: 2}
	state11 = ir.Const{Width: 2, Value: 3}
)

// Stream role suffixes. Index 0 carries data, 1 is the flow-control flag and
// 2 is the enable.
var (
	istreamSuffixes = [3]string{"_dout", "_empty_n", "_read"}
	ostreamSuffixes = [3]string{"_din", "_full_n", "_write"}
)

// instanceNames derives every per-instance signal name from the instance
// name so each role has exactly one spelling.
type instanceNames string

func (n instanceNames) state() string        { return string(n) + "__state" }
func (n instanceNames) start() string        { return string(n) + "__" + portStart }
func (n instanceNames) done() string         { return string(n) + "__" + portDone }
func (n instanceNames) idle() string         { return string(n) + "__" + portIdle }
func (n instanceNames) ready() string        { return string(n) + "__" + portReady }
func (n instanceNames) rst() string          { return string(n) + "__" + portRstN }
func (n instanceNames) startGlobal() string  { return string(n) + "__ap_start_global" }
func (n instanceNames) doneGlobal() string   { return string(n) + "__ap_done_global" }
func (n instanceNames) isDone() string       { return string(n) + "__is_done" }
func (n instanceNames) arg(name string) string {
	if c, ok := parseConstant(name); ok {
		return fmt.Sprintf("%s___const__%db%d", n, c.Width, c.Value)
	}
	return string(n) + "___" + ir.SanitizeArrayName(name)
}

// fifoWire names the wire carrying one role of a FIFO, e.g. "q__dout".
func fifoWire(fifo, suffix string) string {
	return ir.SanitizeArrayName(fifo) + "__" + strings.TrimPrefix(suffix, "_")
}

// mAxiName names a parent m_axi port, e.g. "m_axi_mem_ARADDR".
func mAxiName(arg, channel, port string) string {
	return "m_axi_" + arg + "_" + channel + port
}

// asyncWire names one async-mmap channel signal in the parent, e.g.
// "mem_read_addr__din".
func asyncWire(arg, tag, suffix string) string {
	return fifoWire(arg+"_"+tag, suffix)
}

// parseConstant recognizes sized literals such as 32'd5 or 8'hff.
func parseConstant(text string) (ir.Const, bool) {
	tick := strings.IndexByte(text, '\'')
	if tick <= 0 || tick+2 > len(text) {
		return ir.Const{}, false
	}
	width, err := strconv.Atoi(text[:tick])
	if err != nil || width <= 0 || width > 64 {
		return ir.Const{}, false
	}
	rest := strings.TrimPrefix(strings.TrimPrefix(text[tick+1:], "s"), "S")
	if rest == "" {
		return ir.Const{}, false
	}
	base := 10
	switch rest[0] {
	case 'b', 'B':
		base = 2
	case 'o', 'O':
		base = 8
	case 'd', 'D':
		base = 10
	case 'h', 'H':
		base = 16
	default:
		return ir.Const{}, false
	}
	value, err := strconv.ParseUint(strings.ReplaceAll(rest[1:], "_", ""), base, 64)
	if err != nil {
		return ir.Const{}, false
	}
	return ir.Const{Width: width, Value: value}, true
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), diag.ErrMalformedDescription)
}
