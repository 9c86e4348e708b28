package ir

import (
	"fmt"
	"strconv"
	"strings"

	"taskhdl/internal/diag"
)

// Design is the set of modules produced for one program.
type Design struct {
	Modules  []*Module
	TopLevel *Module
}

// Port represents a module IO port.
type Port struct {
	Name      string
	Direction PortDirection
	Range     *Range
}

// PortDirection enumerates supported port directions.
type PortDirection int

const (
	Input PortDirection = iota
	Output
	InOut
)

// Range is a Verilog bit range [MSB:LSB]. A nil *Range is a single bit.
// Bounds are kept as text because parsed modules may use parameter
// expressions such as "C_M_AXI_DATA_WIDTH - 1".
type Range struct {
	MSB string
	LSB string
}

// Bits returns a range of width bits, or nil for width 1.
func Bits(width int) *Range {
	if width <= 1 {
		return nil
	}
	return &Range{MSB: strconv.Itoa(width - 1), LSB: "0"}
}

// Vector returns a range of width bits even when width is 1.
func Vector(width int) *Range {
	if width < 1 {
		width = 1
	}
	return &Range{MSB: strconv.Itoa(width - 1), LSB: "0"}
}

// Width evaluates MSB-LSB+1. Both bounds must be integer literals.
func (r *Range) Width() (int, error) {
	if r == nil {
		return 1, nil
	}
	msb, err1 := strconv.Atoi(strings.TrimSpace(r.MSB))
	lsb, err2 := strconv.Atoi(strings.TrimSpace(r.LSB))
	if err1 != nil || err2 != nil {
		return 0, fmt.Errorf("[%s:%s]: %w", r.MSB, r.LSB, diag.ErrAmbiguousWidth)
	}
	if msb < lsb {
		msb, lsb = lsb, msb
	}
	return msb - lsb + 1, nil
}

func (r *Range) String() string {
	if r == nil {
		return ""
	}
	return "[" + r.MSB + ":" + r.LSB + "]"
}

// Signal captures a hardware wire/register declaration.
type Signal struct {
	Name  string
	Kind  SignalKind
	Range *Range
	// Attrs are rendered as (* attr *) in front of the declaration.
	Attrs []string
}

// SignalKind classifies how a signal is driven.
type SignalKind int

const (
	Wire SignalKind = iota
	Reg
)

// Param is a module-level parameter (localparam when Local is set).
type Param struct {
	Name  string
	Value string
	Range *Range
	Local bool
}

// Instance is a child module instantiation.
type Instance struct {
	Module string
	Name   string
	Params []ParamArg
	Ports  []PortArg
	Attrs  []string
}

// ParamArg binds a parameter of an instantiated module.
type ParamArg struct {
	Name  string
	Value Expr
}

// PortArg binds a port of an instantiated module. A nil Arg leaves the
// port unconnected.
type PortArg struct {
	Port string
	Arg  Expr
}

// Expr is implemented by every expression node.
type Expr interface {
	isExpr()
}

// Ident references a declared name.
type Ident struct {
	Name string
}

// Const is a sized integer constant.
type Const struct {
	Width int
	Value uint64
}

// Literal is an expression kept verbatim, e.g. "32'd5" or "'d0".
type Literal struct {
	Text string
}

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	Not UnaryOp = iota // ~
	LogicalNot         // !
)

// Unary applies a unary operator.
type Unary struct {
	Op UnaryOp
	X  Expr
}

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	Eq BinaryOp = iota
	Sub
	Add
	Shl
)

// Binary applies a binary operator.
type Binary struct {
	Op   BinaryOp
	X, Y Expr
}

// LogicalAnd is the n-ary && of its terms. With no terms it is true.
type LogicalAnd struct {
	Terms []Expr
}

func (Ident) isExpr()      {}
func (Const) isExpr()      {}
func (Literal) isExpr()    {}
func (Unary) isExpr()      {}
func (Binary) isExpr()     {}
func (LogicalAnd) isExpr() {}

// Convenience constructors.
var (
	True  = Const{Width: 1, Value: 1}
	False = Const{Width: 1, Value: 0}
)

// ID returns an identifier expression.
func ID(name string) Ident { return Ident{Name: name} }

// IsEqual returns x == y.
func IsEqual(x, y Expr) Binary { return Binary{Op: Eq, X: x, Y: y} }

// Stmt is implemented by statements allowed inside an always block.
type Stmt interface {
	isStmt()
}

// NonBlocking is "lhs <= rhs;".
type NonBlocking struct {
	LHS string
	RHS Expr
}

// If is an if/else statement. Else may be empty.
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
}

// Case is a case statement over Subject.
type Case struct {
	Subject Expr
	Items   []CaseItem
}

// CaseItem is one arm of a Case.
type CaseItem struct {
	Match Expr
	Body  []Stmt
}

// Display is a $display system call.
type Display struct {
	Format string
	Args   []Expr
}

func (NonBlocking) isStmt() {}
func (If) isStmt()          {}
func (Case) isStmt()        {}
func (Display) isStmt()     {}

// Logic is implemented by module-level behavioral items.
type Logic interface {
	isLogic()
}

// Assign is a continuous assignment.
type Assign struct {
	LHS string
	RHS Expr
}

// Always is a block clocked on the rising edge of the module clock.
type Always struct {
	Body []Stmt
	// SimOnly wraps the block in synthesis translate_off/on.
	SimOnly bool
}

func (Assign) isLogic() {}
func (Always) isLogic() {}
