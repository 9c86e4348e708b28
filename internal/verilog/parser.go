package verilog

import (
	"fmt"
	"strings"

	"taskhdl/internal/diag"
	"taskhdl/internal/ir"
)

// Parse extracts the interface of every module in src: the header port
// list (ANSI or non-ANSI style) with directions and ranges, and the
// parameters declared in the header or the body. Each returned module keeps
// its own source text in Verbatim. Bodies are otherwise skipped.
func Parse(src string) ([]*ir.Module, error) {
	clean := stripComments(src)
	toks := tokenize(clean)
	var modules []*ir.Module
	for i := 0; i < len(toks); i++ {
		if toks[i].text != "module" && toks[i].text != "macromodule" {
			continue
		}
		p := &parser{src: clean, toks: toks, pos: i + 1}
		module, err := p.parseModule()
		if err != nil {
			return nil, err
		}
		module.Verbatim = strings.TrimSpace(src[toks[i].off:p.end]) + "\n"
		modules = append(modules, module)
		i = p.pos - 1
	}
	return modules, nil
}

type token struct {
	text string
	off  int
}

type parser struct {
	src  string
	toks []token
	pos  int
	end  int
}

type portDecl struct {
	name     string
	dir      ir.PortDirection
	rng      *ir.Range
	declared bool
}

func (p *parser) errorf(format string, args ...any) error {
	line := 1
	if p.pos < len(p.toks) {
		line += strings.Count(p.src[:p.toks[p.pos].off], "\n")
	}
	return fmt.Errorf("verilog: line %d: %s: %w", line, fmt.Sprintf(format, args...), diag.ErrMalformedDescription)
}

func (p *parser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos].text
}

func (p *parser) next() string {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) expect(text string) error {
	if got := p.next(); got != text {
		return p.errorf("expected %q, found %q", text, got)
	}
	return nil
}

func (p *parser) parseModule() (*ir.Module, error) {
	name := p.next()
	if !isIdent(name) {
		return nil, p.errorf("expected module name, found %q", name)
	}
	module := ir.NewModule(name)
	var params []ir.Param
	if p.peek() == "#" {
		p.next()
		if err := p.expect("("); err != nil {
			return nil, err
		}
		for p.peek() != ")" && p.peek() != "" {
			if p.peek() == "," {
				p.next()
				continue
			}
			decl, err := p.parseParams(false, true)
			if err != nil {
				return nil, err
			}
			params = append(params, decl...)
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
	}

	var ports []*portDecl
	byName := make(map[string]*portDecl)
	if p.peek() == "(" {
		p.next()
		var err error
		ports, err = p.parsePortList()
		if err != nil {
			return nil, err
		}
		for _, decl := range ports {
			byName[decl.name] = decl
		}
	}
	if err := p.expect(";"); err != nil {
		return nil, err
	}

	// Body: pick up port and parameter declarations until endmodule.
	for {
		switch tok := p.peek(); tok {
		case "":
			return nil, p.errorf("module %s: missing endmodule", name)
		case "endmodule":
			p.end = p.toks[p.pos].off + len(tok)
			p.next()
			if err := addPorts(module, ports); err != nil {
				return nil, err
			}
			if err := module.AddParams(params...); err != nil {
				return nil, err
			}
			return module, nil
		case "function", "task":
			p.skipUntil("end" + tok)
		case "input", "output", "inout":
			p.next()
			dir := directionOf(tok)
			p.skipTypeKeywords()
			rng, err := p.parseRange()
			if err != nil {
				return nil, err
			}
			for {
				id := p.next()
				decl, ok := byName[id]
				if !ok {
					return nil, p.errorf("module %s: %s is not in the port list", name, id)
				}
				decl.dir, decl.rng, decl.declared = dir, rng, true
				if p.peek() != "," {
					break
				}
				p.next()
			}
			if err := p.expect(";"); err != nil {
				return nil, err
			}
		case "parameter", "localparam":
			decl, err := p.parseParams(tok == "localparam", false)
			if err != nil {
				return nil, err
			}
			params = append(params, decl...)
			if err := p.expect(";"); err != nil {
				return nil, err
			}
		default:
			p.next()
		}
	}
}

func addPorts(module *ir.Module, ports []*portDecl) error {
	for _, decl := range ports {
		if !decl.declared {
			return fmt.Errorf("verilog: module %s: port %s has no direction: %w", module.Name, decl.name, diag.ErrMalformedDescription)
		}
		if err := module.AddPorts(ir.Port{Name: decl.name, Direction: decl.dir, Range: decl.rng}); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parsePortList() ([]*portDecl, error) {
	var ports []*portDecl
	var current *portDecl
	for {
		tok := p.peek()
		switch {
		case tok == ")":
			p.next()
			return ports, nil
		case tok == "":
			return nil, p.errorf("unterminated port list")
		case tok == ",":
			p.next()
		case tok == "input" || tok == "output" || tok == "inout":
			p.next()
			p.skipTypeKeywords()
			rng, err := p.parseRange()
			if err != nil {
				return nil, err
			}
			current = &portDecl{dir: directionOf(tok), rng: rng, declared: true}
		case isIdent(tok):
			p.next()
			decl := &portDecl{name: tok}
			if current != nil {
				decl.dir, decl.rng, decl.declared = current.dir, current.rng, true
			}
			ports = append(ports, decl)
		default:
			return nil, p.errorf("unexpected %q in port list", tok)
		}
	}
}

// parseParams parses "parameter [type] [range] A = x, B = y". In a header
// list the keyword is optional and the list stops at a following keyword.
func (p *parser) parseParams(local, header bool) ([]ir.Param, error) {
	if tok := p.peek(); tok == "parameter" || tok == "localparam" {
		local = local || tok == "localparam"
		p.next()
	}
	p.skipTypeKeywords()
	rng, err := p.parseRange()
	if err != nil {
		return nil, err
	}
	var params []ir.Param
	for {
		name := p.next()
		if !isIdent(name) {
			return nil, p.errorf("expected parameter name, found %q", name)
		}
		if err := p.expect("="); err != nil {
			return nil, err
		}
		value := p.exprText()
		params = append(params, ir.Param{Name: name, Value: value, Range: rng, Local: local})
		if p.peek() != "," {
			return params, nil
		}
		if header && p.pos+1 < len(p.toks) && p.toks[p.pos+1].text == "parameter" {
			return params, nil
		}
		p.next()
	}
}

// exprText consumes an expression up to a top-level ',', ';' or ')' and
// returns its source text.
func (p *parser) exprText() string {
	start := p.pos
	depth := 0
	for p.pos < len(p.toks) {
		switch p.toks[p.pos].text {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			if depth == 0 {
				return p.span(start, p.pos)
			}
			depth--
		case ",", ";":
			if depth == 0 {
				return p.span(start, p.pos)
			}
		}
		p.pos++
	}
	return p.span(start, p.pos)
}

func (p *parser) span(from, to int) string {
	if from >= to {
		return ""
	}
	last := p.toks[to-1]
	return strings.TrimSpace(p.src[p.toks[from].off : last.off+len(last.text)])
}

func (p *parser) parseRange() (*ir.Range, error) {
	if p.peek() != "[" {
		return nil, nil
	}
	p.next()
	start := p.pos
	depth := 0
	colon := -1
	for ; p.pos < len(p.toks); p.pos++ {
		switch p.toks[p.pos].text {
		case "(", "[", "{":
			depth++
		case ")", "}":
			depth--
		case ":":
			if depth == 0 && colon < 0 {
				colon = p.pos
			}
		case "]":
			if depth > 0 {
				depth--
				continue
			}
			if colon < 0 {
				return nil, p.errorf("range without ':'")
			}
			rng := &ir.Range{MSB: p.span(start, colon), LSB: p.span(colon+1, p.pos)}
			p.pos++
			return rng, nil
		}
	}
	return nil, p.errorf("unterminated range")
}

func (p *parser) skipTypeKeywords() {
	for {
		switch p.peek() {
		case "wire", "reg", "logic", "signed", "unsigned", "integer", "real", "time", "tri":
			p.next()
		default:
			return
		}
	}
}

func (p *parser) skipUntil(tok string) {
	for p.pos < len(p.toks) && p.toks[p.pos].text != tok {
		p.pos++
	}
	if p.pos < len(p.toks) {
		p.pos++
	}
}

func directionOf(tok string) ir.PortDirection {
	switch tok {
	case "output":
		return ir.Output
	case "inout":
		return ir.InOut
	default:
		return ir.Input
	}
}

func isIdent(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	if !(c == '_' || c == '\\' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
		return false
	}
	switch tok {
	case "input", "output", "inout", "wire", "reg", "parameter", "localparam", "module", "endmodule":
		return false
	}
	return true
}

// stripComments blanks out comments, attribute instances and directive
// lines while preserving byte offsets.
func stripComments(src string) string {
	b := []byte(src)
	blank := func(from, to int) {
		for i := from; i < to && i < len(b); i++ {
			if b[i] != '\n' {
				b[i] = ' '
			}
		}
	}
	lineStart := true
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch {
		case c == '"':
			j := i + 1
			for j < len(b) && b[j] != '"' && b[j] != '\n' {
				if b[j] == '\\' {
					j++
				}
				j++
			}
			i = j
		case c == '/' && i+1 < len(b) && b[i+1] == '/':
			j := i
			for j < len(b) && b[j] != '\n' {
				j++
			}
			blank(i, j)
			i = j - 1
		case c == '/' && i+1 < len(b) && b[i+1] == '*':
			end := strings.Index(string(b[i+2:]), "*/")
			j := len(b)
			if end >= 0 {
				j = i + 2 + end + 2
			}
			blank(i, j)
			i = j - 1
		case c == '(' && i+1 < len(b) && b[i+1] == '*' && !attrIsWildcard(b, i+2):
			end := strings.Index(string(b[i+2:]), "*)")
			if end < 0 {
				continue
			}
			j := i + 2 + end + 2
			blank(i, j)
			i = j - 1
		case c == '`' && lineStart:
			j := i
			for j < len(b) && b[j] != '\n' {
				j++
			}
			blank(i, j)
			i = j - 1
		}
		if i >= 0 && i < len(b) {
			switch b[i] {
			case '\n':
				lineStart = true
			case ' ', '\t', '\r':
			default:
				lineStart = false
			}
		}
	}
	return string(b)
}

// attrIsWildcard reports whether "(*" at i-2 is the sensitivity list "(*)".
func attrIsWildcard(b []byte, i int) bool {
	for ; i < len(b); i++ {
		switch b[i] {
		case ' ', '\t', '\r', '\n':
			continue
		case ')':
			return true
		default:
			return false
		}
	}
	return false
}

func tokenize(src string) []token {
	var toks []token
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '"':
			j := i + 1
			for j < len(src) && src[j] != '"' {
				if src[j] == '\\' {
					j++
				}
				j++
			}
			if j < len(src) {
				j++
			}
			toks = append(toks, token{text: src[i:min(j, len(src))], off: i})
			i = j
		case c == '\\':
			j := i
			for j < len(src) && src[j] != ' ' && src[j] != '\t' && src[j] != '\n' && src[j] != '\r' {
				j++
			}
			toks = append(toks, token{text: src[i:j], off: i})
			i = j
		case isWordByte(c) || c == '\'' || c == '$' || c == '`':
			j := i + 1
			for j < len(src) && (isWordByte(src[j]) || src[j] == '$' || src[j] == '\'' || src[j] == '?') {
				j++
			}
			toks = append(toks, token{text: src[i:j], off: i})
			i = j
		default:
			toks = append(toks, token{text: src[i : i+1], off: i})
			i++
		}
	}
	return toks
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
