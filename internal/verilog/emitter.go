package verilog

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"taskhdl/internal/ir"
)

// Render returns the Verilog text of module.
func Render(module *ir.Module) (string, error) {
	var b strings.Builder
	if err := Emit(&b, module); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Emit writes module as Verilog-2001. Modules carrying verbatim source are
// written unchanged.
func Emit(w io.Writer, module *ir.Module) error {
	if module == nil {
		return fmt.Errorf("verilog: nil module")
	}
	if module.Verbatim != "" {
		_, err := io.WriteString(w, module.Verbatim)
		return err
	}
	pr := &printer{w: w}
	pr.emitModule(module)
	return pr.err
}

type printer struct {
	w      io.Writer
	indent int
	err    error
}

func (p *printer) emitModule(module *ir.Module) {
	ports := module.Ports()
	p.line("module %s", module.Name)
	p.line("(")
	p.indent++
	for i, port := range ports {
		sep := ","
		if i == len(ports)-1 {
			sep = ""
		}
		p.line("%s%s", port.Name, sep)
	}
	p.indent--
	p.line(");")
	p.line("")
	p.indent++

	for _, param := range module.Params() {
		kw := "parameter"
		if param.Local {
			kw = "localparam"
		}
		p.line("%s%s %s = %s;", kw, rangePrefix(param.Range), param.Name, param.Value)
	}
	for _, port := range ports {
		p.line("%s%s %s;", directionKeyword(port.Direction), rangePrefix(port.Range), port.Name)
	}
	for _, sig := range module.Signals() {
		p.line("%s%s%s %s;", attrPrefix(sig.Attrs), signalKeyword(sig.Kind), rangePrefix(sig.Range), sig.Name)
	}
	for _, inst := range module.Instances() {
		p.emitInstance(inst)
	}
	for _, logic := range module.Logics() {
		p.emitLogic(logic)
	}

	p.indent--
	p.line("endmodule")
}

func (p *printer) emitInstance(inst ir.Instance) {
	p.line("")
	if len(inst.Attrs) > 0 {
		p.line("%s", strings.TrimSpace(attrPrefix(inst.Attrs)))
	}
	p.line("%s", inst.Module)
	if len(inst.Params) > 0 {
		p.line("#(")
		p.indent++
		for i, param := range inst.Params {
			p.line(".%s(%s)%s", param.Name, exprString(param.Value), listSep(i, len(inst.Params)))
		}
		p.indent--
		p.line(")")
	}
	p.line("%s", inst.Name)
	p.line("(")
	p.indent++
	for i, port := range inst.Ports {
		arg := ""
		if port.Arg != nil {
			arg = exprString(port.Arg)
		}
		p.line(".%s(%s)%s", port.Port, arg, listSep(i, len(inst.Ports)))
	}
	p.indent--
	p.line(");")
	p.line("")
}

func (p *printer) emitLogic(logic ir.Logic) {
	switch l := logic.(type) {
	case ir.Assign:
		p.line("assign %s = %s;", l.LHS, exprString(l.RHS))
	case ir.Always:
		if l.SimOnly {
			p.line("// synthesis translate_off")
		}
		p.line("always @(posedge ap_clk) begin")
		p.emitStmts(l.Body)
		p.line("end")
		if l.SimOnly {
			p.line("// synthesis translate_on")
		}
	}
}

func (p *printer) emitStmts(stmts []ir.Stmt) {
	p.indent++
	for _, stmt := range stmts {
		p.emitStmt(stmt)
	}
	p.indent--
}

func (p *printer) emitStmt(stmt ir.Stmt) {
	switch s := stmt.(type) {
	case ir.NonBlocking:
		p.line("%s <= %s;", s.LHS, exprString(s.RHS))
	case ir.If:
		p.line("if(%s) begin", exprString(s.Cond))
		p.emitStmts(s.Then)
		if len(s.Else) > 0 {
			p.line("end else begin")
			p.emitStmts(s.Else)
		}
		p.line("end")
	case ir.Case:
		p.line("case(%s)", exprString(s.Subject))
		p.indent++
		for _, item := range s.Items {
			p.line("%s: begin", exprString(item.Match))
			p.emitStmts(item.Body)
			p.line("end")
		}
		p.indent--
		p.line("endcase")
	case ir.Display:
		args := []string{strconv.Quote(s.Format)}
		for _, a := range s.Args {
			args = append(args, exprString(a))
		}
		p.line("$display(%s);", strings.Join(args, ", "))
	}
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	var b strings.Builder
	if format != "" {
		for i := 0; i < p.indent; i++ {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, format, args...)
	}
	b.WriteByte('\n')
	_, p.err = io.WriteString(p.w, b.String())
}

func listSep(i, n int) string {
	if i == n-1 {
		return ""
	}
	return ","
}

func rangePrefix(r *ir.Range) string {
	if r == nil {
		return ""
	}
	return " " + r.String()
}

func attrPrefix(attrs []string) string {
	if len(attrs) == 0 {
		return ""
	}
	return "(* " + strings.Join(attrs, ", ") + " *) "
}

func directionKeyword(dir ir.PortDirection) string {
	switch dir {
	case ir.Output:
		return "output"
	case ir.InOut:
		return "inout"
	default:
		return "input"
	}
}

func signalKeyword(kind ir.SignalKind) string {
	if kind == ir.Reg {
		return "reg"
	}
	return "wire"
}

// ExprString renders an expression as Verilog.
func ExprString(e ir.Expr) string { return exprString(e) }

func exprString(e ir.Expr) string {
	switch x := e.(type) {
	case nil:
		return ""
	case ir.Ident:
		return x.Name
	case ir.Const:
		return constString(x)
	case ir.Literal:
		return x.Text
	case ir.Unary:
		op := "~"
		if x.Op == ir.LogicalNot {
			op = "!"
		}
		return op + operand(x.X)
	case ir.Binary:
		return operand(x.X) + " " + binaryOp(x.Op) + " " + operand(x.Y)
	case ir.LogicalAnd:
		switch len(x.Terms) {
		case 0:
			return constString(ir.True)
		case 1:
			return exprString(x.Terms[0])
		}
		terms := make([]string, len(x.Terms))
		for i, t := range x.Terms {
			terms[i] = operand(t)
		}
		return strings.Join(terms, " && ")
	default:
		return fmt.Sprintf("/* unsupported %T */", e)
	}
}

// operand parenthesizes compound expressions.
func operand(e ir.Expr) string {
	switch x := e.(type) {
	case ir.Binary:
		return "(" + exprString(x) + ")"
	case ir.LogicalAnd:
		if len(x.Terms) > 1 {
			return "(" + exprString(x) + ")"
		}
	}
	return exprString(e)
}

func binaryOp(op ir.BinaryOp) string {
	switch op {
	case ir.Eq:
		return "=="
	case ir.Sub:
		return "-"
	case ir.Add:
		return "+"
	case ir.Shl:
		return "<<"
	default:
		return "?"
	}
}

func constString(c ir.Const) string {
	if c.Width <= 0 {
		return "'d" + strconv.FormatUint(c.Value, 10)
	}
	if c.Width <= 4 {
		bits := strconv.FormatUint(c.Value, 2)
		if len(bits) < c.Width {
			bits = strings.Repeat("0", c.Width-len(bits)) + bits
		}
		return fmt.Sprintf("%d'b%s", c.Width, bits)
	}
	return fmt.Sprintf("%d'd%d", c.Width, c.Value)
}
