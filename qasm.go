package qrecover

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/theapemachine/errnie"
)

var (
	// ErrNotFound is returned when a circuit file does not exist.
	ErrNotFound = errors.New("circuit not found")
	// ErrParse is wrapped by every ParseError.
	ErrParse = errors.New("malformed circuit description")
	// ErrHasMeasurement is returned when measurements cannot be stripped as terminal.
	ErrHasMeasurement = errors.New("circuit has non-terminal measurements")
)

// ParseError locates a problem in a circuit description.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: line %d: %s", ErrParse, e.Line, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}

/*
LoadGateBlock reads an OpenQASM 2.0 file and returns it as a gate block named after the
file. Terminal measurements are dropped.

Returns:
  - *GateBlock: a block with at least one qubit and no classical bits
  - error: ErrNotFound, a *ParseError, or ErrHasMeasurement
*/
func LoadGateBlock(path string) (*GateBlock, error) {
	return loadGateBlock(path, func() (io.ReadCloser, error) { return os.Open(path) })
}

// LoadGateBlockFS is LoadGateBlock against an fs.FS.
func LoadGateBlockFS(fsys fs.FS, path string) (*GateBlock, error) {
	return loadGateBlock(path, func() (io.ReadCloser, error) { return fsys.Open(path) })
}

func loadGateBlock(path string, open func() (io.ReadCloser, error)) (*GateBlock, error) {
	f, err := open()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	block, err := ParseGateBlock(name, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	errnie.Debug("loaded gate block %q - %d qubits, %d operations", name, block.Width(), len(block.ops))
	return block, nil
}

// ParseGateBlock parses the OpenQASM 2.0 subset the harness understands.
func ParseGateBlock(name string, r io.Reader) (*GateBlock, error) {
	p := &qasmParser{measured: make(map[int]bool)}

	scanner := bufio.NewScanner(r)
	var (
		pending   strings.Builder
		startLine int
		line      int
	)

	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.Index(text, "//"); i >= 0 {
			text = text[:i]
		}

		for {
			i := strings.IndexByte(text, ';')
			if i < 0 {
				break
			}
			if pending.Len() == 0 {
				startLine = line
			}
			pending.WriteString(text[:i])
			if err := p.statement(startLine, strings.TrimSpace(pending.String())); err != nil {
				return nil, err
			}
			pending.Reset()
			text = text[i+1:]
		}

		if strings.TrimSpace(text) != "" {
			if pending.Len() == 0 {
				startLine = line
			}
			pending.WriteString(text)
			pending.WriteByte(' ')
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(pending.String()) != "" {
		return nil, &ParseError{Line: startLine, Msg: "missing ';'"}
	}
	if p.qubits == 0 {
		return nil, &ParseError{Line: line, Msg: "no quantum register declared"}
	}

	return NewGateBlock(name, p.qubits, p.ops)
}

type qasmParser struct {
	header   bool
	qreg     string
	qubits   int
	creg     string
	ops      []Operation
	measured map[int]bool
}

func (p *qasmParser) statement(line int, stmt string) error {
	if stmt == "" {
		return nil
	}

	head, rest := splitHead(stmt)
	switch head {
	case "OPENQASM":
		if strings.TrimSpace(rest) != "2.0" {
			return &ParseError{Line: line, Msg: fmt.Sprintf("unsupported version %q", rest)}
		}
		p.header = true
		return nil
	case "include":
		return nil
	case "qreg":
		if p.qreg != "" {
			return &ParseError{Line: line, Msg: "only one quantum register is supported"}
		}
		reg, size, err := parseRegister(rest)
		if err != nil || size < 1 {
			return &ParseError{Line: line, Msg: fmt.Sprintf("bad register %q", rest)}
		}
		p.qreg, p.qubits = reg, size
		return nil
	case "creg":
		reg, _, err := parseRegister(rest)
		if err != nil {
			return &ParseError{Line: line, Msg: fmt.Sprintf("bad register %q", rest)}
		}
		p.creg = reg
		return nil
	case "barrier":
		return nil
	case "measure":
		return p.measure(line, rest)
	case "gate", "opaque", "if", "reset":
		return &ParseError{Line: line, Msg: fmt.Sprintf("%q statements are not supported", head)}
	}

	if !p.header {
		return &ParseError{Line: line, Msg: "missing OPENQASM header"}
	}
	return p.gate(line, stmt)
}

func (p *qasmParser) gate(line int, stmt string) error {
	var params []float64

	if open := strings.IndexByte(stmt, '('); open >= 0 {
		end := strings.LastIndexByte(stmt, ')')
		if end < open {
			return &ParseError{Line: line, Msg: "unbalanced parentheses"}
		}
		for _, expr := range strings.Split(stmt[open+1:end], ",") {
			v, err := evalExpression(expr)
			if err != nil {
				return &ParseError{Line: line, Msg: err.Error()}
			}
			params = append(params, v)
		}
		stmt = strings.TrimSpace(stmt[:open]) + " " + stmt[end+1:]
	}

	name, args := splitHead(stmt)
	spec, ok := instructionSet[name]
	if !ok || name == "measure" {
		return &ParseError{Line: line, Msg: fmt.Sprintf("unknown gate %q", name)}
	}
	if len(params) != spec.params {
		return &ParseError{Line: line, Msg: fmt.Sprintf("%s takes %d parameters, got %d", name, spec.params, len(params))}
	}

	targets, err := p.operands(args)
	if err != nil {
		return &ParseError{Line: line, Msg: err.Error()}
	}

	// A bare register on a one-qubit gate applies it to every qubit.
	if spec.operands == 1 && len(targets) == 1 && len(targets[0]) > 1 {
		for _, q := range targets[0] {
			if err := p.emit(line, Operation{Name: name, Qubits: []int{q}, Params: params}); err != nil {
				return err
			}
		}
		return nil
	}

	if len(targets) != spec.operands {
		return &ParseError{Line: line, Msg: fmt.Sprintf("%s takes %d qubits, got %d", name, spec.operands, len(targets))}
	}
	qubits := make([]int, len(targets))
	for i, t := range targets {
		if len(t) != 1 {
			return &ParseError{Line: line, Msg: fmt.Sprintf("%s needs indexed qubits", name)}
		}
		qubits[i] = t[0]
	}
	return p.emit(line, Operation{Name: name, Qubits: qubits, Params: params})
}

func (p *qasmParser) emit(line int, op Operation) error {
	// A measurement is terminal as long as no later gate touches its qubit.
	for _, q := range op.Qubits {
		if p.measured[q] {
			return fmt.Errorf("line %d: %w: %s on q[%d] after its measurement", line, ErrHasMeasurement, op.Name, q)
		}
	}
	if err := checkOperation(op, p.qubits); err != nil {
		return &ParseError{Line: line, Msg: err.Error()}
	}
	p.ops = append(p.ops, op)
	return nil
}

func (p *qasmParser) measure(line int, rest string) error {
	src, dst, ok := strings.Cut(rest, "->")
	if !ok {
		return &ParseError{Line: line, Msg: "measure needs '->'"}
	}
	targets, err := p.operands(src)
	if err != nil || len(targets) != 1 {
		return &ParseError{Line: line, Msg: fmt.Sprintf("bad measure source %q", strings.TrimSpace(src))}
	}
	if p.creg == "" || !strings.HasPrefix(strings.TrimSpace(dst), p.creg) {
		return &ParseError{Line: line, Msg: fmt.Sprintf("bad measure target %q", strings.TrimSpace(dst))}
	}
	for _, q := range targets[0] {
		p.measured[q] = true
	}
	return nil
}

// operands resolves "q[0], q[2]" or "q" into qubit index groups.
func (p *qasmParser) operands(args string) ([][]int, error) {
	if p.qreg == "" {
		return nil, errors.New("gate before qreg declaration")
	}

	var out [][]int
	for _, arg := range strings.Split(args, ",") {
		arg = strings.TrimSpace(arg)
		reg, index, indexed, err := parseReference(arg)
		if err != nil {
			return nil, err
		}
		if reg != p.qreg {
			return nil, fmt.Errorf("unknown register %q", reg)
		}
		if !indexed {
			out = append(out, qubitRange(0, p.qubits))
			continue
		}
		if index < 0 || index >= p.qubits {
			return nil, fmt.Errorf("qubit %s out of range", arg)
		}
		out = append(out, []int{index})
	}
	return out, nil
}

func splitHead(stmt string) (string, string) {
	stmt = strings.TrimSpace(stmt)
	i := strings.IndexFunc(stmt, unicode.IsSpace)
	if i < 0 {
		return stmt, ""
	}
	return stmt[:i], strings.TrimSpace(stmt[i:])
}

func parseRegister(decl string) (string, int, error) {
	name, size, indexed, err := parseReference(strings.TrimSpace(decl))
	if err != nil {
		return "", 0, err
	}
	if !indexed {
		return "", 0, fmt.Errorf("register %q has no size", decl)
	}
	return name, size, nil
}

// parseReference splits "q[3]" into ("q", 3, true) and "q" into ("q", 0, false).
func parseReference(ref string) (string, int, bool, error) {
	open := strings.IndexByte(ref, '[')
	if open < 0 {
		if ref == "" {
			return "", 0, false, errors.New("empty operand")
		}
		return ref, 0, false, nil
	}
	if !strings.HasSuffix(ref, "]") {
		return "", 0, false, fmt.Errorf("bad operand %q", ref)
	}
	index, err := strconv.Atoi(strings.TrimSpace(ref[open+1 : len(ref)-1]))
	if err != nil {
		return "", 0, false, fmt.Errorf("bad index in %q", ref)
	}
	return strings.TrimSpace(ref[:open]), index, true, nil
}

// evalExpression evaluates a parameter expression over numbers, pi, + - * / and parentheses.
func evalExpression(expr string) (float64, error) {
	e := &exprParser{src: strings.TrimSpace(expr)}
	if e.src == "" {
		return 0, errors.New("empty parameter")
	}
	v, err := e.sum()
	if err != nil {
		return 0, err
	}
	e.skipSpace()
	if e.pos < len(e.src) {
		return 0, fmt.Errorf("unexpected %q in %q", e.src[e.pos:], expr)
	}
	return v, nil
}

type exprParser struct {
	src string
	pos int
}

func (e *exprParser) skipSpace() {
	for e.pos < len(e.src) && e.src[e.pos] == ' ' {
		e.pos++
	}
}

func (e *exprParser) peek() byte {
	e.skipSpace()
	if e.pos >= len(e.src) {
		return 0
	}
	return e.src[e.pos]
}

func (e *exprParser) sum() (float64, error) {
	v, err := e.product()
	if err != nil {
		return 0, err
	}
	for {
		switch e.peek() {
		case '+':
			e.pos++
			rhs, err := e.product()
			if err != nil {
				return 0, err
			}
			v += rhs
		case '-':
			e.pos++
			rhs, err := e.product()
			if err != nil {
				return 0, err
			}
			v -= rhs
		default:
			return v, nil
		}
	}
}

func (e *exprParser) product() (float64, error) {
	v, err := e.unary()
	if err != nil {
		return 0, err
	}
	for {
		switch e.peek() {
		case '*':
			e.pos++
			rhs, err := e.unary()
			if err != nil {
				return 0, err
			}
			v *= rhs
		case '/':
			e.pos++
			rhs, err := e.unary()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, errors.New("division by zero")
			}
			v /= rhs
		default:
			return v, nil
		}
	}
}

func (e *exprParser) unary() (float64, error) {
	switch e.peek() {
	case '-':
		e.pos++
		v, err := e.unary()
		return -v, err
	case '+':
		e.pos++
		return e.unary()
	}
	return e.primary()
}

func (e *exprParser) primary() (float64, error) {
	switch c := e.peek(); {
	case c == '(':
		e.pos++
		v, err := e.sum()
		if err != nil {
			return 0, err
		}
		if e.peek() != ')' {
			return 0, errors.New("missing ')'")
		}
		e.pos++
		return v, nil
	case strings.HasPrefix(e.src[e.pos:], "pi"):
		e.pos += 2
		return math.Pi, nil
	case c == '.' || (c >= '0' && c <= '9'):
		start := e.pos
		for e.pos < len(e.src) {
			ch := e.src[e.pos]
			isExp := (ch == 'e' || ch == 'E')
			isSign := (ch == '+' || ch == '-') && e.pos > start && (e.src[e.pos-1] == 'e' || e.src[e.pos-1] == 'E')
			if !(ch == '.' || (ch >= '0' && ch <= '9') || isExp || isSign) {
				break
			}
			e.pos++
		}
		return strconv.ParseFloat(e.src[start:e.pos], 64)
	case c == 0:
		return 0, errors.New("unexpected end of expression")
	default:
		return 0, fmt.Errorf("unexpected %q", string(c))
	}
}

// QASM renders the circuit as OpenQASM 2.0.
func (qc *Circuit) QASM() string {
	var sb strings.Builder
	sb.WriteString("OPENQASM 2.0;\ninclude \"qelib1.inc\";\n")
	fmt.Fprintf(&sb, "qreg q[%d];\n", qc.Qubits)
	if qc.Clbits > 0 {
		fmt.Fprintf(&sb, "creg c[%d];\n", qc.Clbits)
	}

	for _, op := range qc.Ops {
		if op.Name == "measure" {
			fmt.Fprintf(&sb, "measure q[%d] -> c[%d];\n", op.Qubits[0], op.Qubits[0])
			continue
		}

		sb.WriteString(op.Name)
		if len(op.Params) > 0 {
			params := make([]string, len(op.Params))
			for i, v := range op.Params {
				params[i] = strconv.FormatFloat(v, 'g', -1, 64)
			}
			fmt.Fprintf(&sb, "(%s)", strings.Join(params, ","))
		}

		args := make([]string, len(op.Qubits))
		for i, q := range op.Qubits {
			args[i] = fmt.Sprintf("q[%d]", q)
		}
		fmt.Fprintf(&sb, " %s;\n", strings.Join(args, ","))
	}

	return sb.String()
}
