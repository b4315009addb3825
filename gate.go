package qrecover

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGate is returned when a gate block or operation is malformed.
	ErrInvalidGate = errors.New("invalid gate block")
	// ErrUnknownInstruction is returned for an operation name outside the instruction set.
	ErrUnknownInstruction = errors.New("unknown instruction")
)

// Operation is one instruction applied to qubits local to its owner (block, fragment or circuit).
type Operation struct {
	Name   string
	Qubits []int
	Params []float64
}

// remap returns a copy of the operation with every qubit index translated through mapping.
func (op Operation) remap(mapping []int) Operation {
	qubits := make([]int, len(op.Qubits))
	for i, q := range op.Qubits {
		qubits[i] = mapping[q]
	}
	params := make([]float64, len(op.Params))
	copy(params, op.Params)
	return Operation{Name: op.Name, Qubits: qubits, Params: params}
}

// instruction describes the shape of a named operation.
type instruction struct {
	operands int
	params   int
}

// instructionSet lists every operation the loader, filler and simulator agree on.
var instructionSet = map[string]instruction{
	"id":      {1, 0},
	"h":       {1, 0},
	"x":       {1, 0},
	"y":       {1, 0},
	"z":       {1, 0},
	"s":       {1, 0},
	"sdg":     {1, 0},
	"t":       {1, 0},
	"tdg":     {1, 0},
	"rx":      {1, 1},
	"ry":      {1, 1},
	"rz":      {1, 1},
	"p":       {1, 1},
	"u1":      {1, 1},
	"cx":      {2, 0},
	"cz":      {2, 0},
	"ch":      {2, 0},
	"swap":    {2, 0},
	"cp":      {2, 1},
	"cu1":     {2, 1},
	"crz":     {2, 1},
	"ccx":     {3, 0},
	"measure": {1, 0},
}

// checkOperation validates an operation against the instruction set and a register of n qubits.
func checkOperation(op Operation, n int) error {
	spec, ok := instructionSet[op.Name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownInstruction, op.Name)
	}
	if len(op.Qubits) != spec.operands {
		return fmt.Errorf("%w: %s takes %d qubits, got %d", ErrInvalidGate, op.Name, spec.operands, len(op.Qubits))
	}
	if len(op.Params) != spec.params {
		return fmt.Errorf("%w: %s takes %d parameters, got %d", ErrInvalidGate, op.Name, spec.params, len(op.Params))
	}

	seen := make(map[int]bool, len(op.Qubits))
	for _, q := range op.Qubits {
		if q < 0 || q >= n {
			return fmt.Errorf("%w: %s on qubit %d outside register of %d", ErrInvalidGate, op.Name, q, n)
		}
		if seen[q] {
			return fmt.Errorf("%w: %s repeats qubit %d", ErrInvalidGate, op.Name, q)
		}
		seen[q] = true
	}
	return nil
}

/*
GateBlock is the target unitary whose recoverability is being measured. The harness
treats it as an atomic placement unit: only its width matters to placement, and its
operations are copied, never modified.
*/
type GateBlock struct {
	Name   string
	qubits int
	ops    []Operation
}

/*
NewGateBlock validates and builds a gate block of the given width.

Parameters:
  - name: label used in reports and logs
  - qubits: the block width, at least 1
  - ops: operations over block-local qubits [0, qubits); no measurements

Returns:
  - *GateBlock: the immutable block
  - error: ErrInvalidGate or ErrUnknownInstruction on malformed input
*/
func NewGateBlock(name string, qubits int, ops []Operation) (*GateBlock, error) {
	if qubits < 1 {
		return nil, fmt.Errorf("%w: %q has %d qubits", ErrInvalidGate, name, qubits)
	}

	owned := make([]Operation, 0, len(ops))
	identity := make([]int, qubits)
	for i := range identity {
		identity[i] = i
	}

	for _, op := range ops {
		if op.Name == "measure" {
			return nil, fmt.Errorf("%w: %q contains a measurement", ErrInvalidGate, name)
		}
		if err := checkOperation(op, qubits); err != nil {
			return nil, fmt.Errorf("gate %q: %w", name, err)
		}
		owned = append(owned, op.remap(identity))
	}

	return &GateBlock{Name: name, qubits: qubits, ops: owned}, nil
}

// Width returns the number of qubits the block acts on.
func (g *GateBlock) Width() int {
	return g.qubits
}

// Operations returns a copy of the block's operations.
func (g *GateBlock) Operations() []Operation {
	identity := make([]int, g.qubits)
	for i := range identity {
		identity[i] = i
	}
	out := make([]Operation, len(g.ops))
	for i, op := range g.ops {
		out[i] = op.remap(identity)
	}
	return out
}
