package qrecover

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPlacement is returned when a block does not fit at the requested offset.
	ErrInvalidPlacement = errors.New("invalid placement")
	// ErrMeasured is returned when operations are added after the final measurement step.
	ErrMeasured = errors.New("circuit already measured")
)

// Placement is the triple (N, s, w) locating a block of width w at offset s in N qubits.
type Placement struct {
	Qubits int
	Offset int
	Width  int
}

// Validate enforces 0 <= s and s+w <= N.
func (p Placement) Validate() error {
	if p.Width < 1 || p.Offset < 0 || p.Offset+p.Width > p.Qubits {
		return &PlacementError{Placement: p}
	}
	return nil
}

// Before returns the qubits strictly below the placement window.
func (p Placement) Before() []int {
	return qubitRange(0, p.Offset)
}

// After returns the qubits strictly above the placement window.
func (p Placement) After() []int {
	return qubitRange(p.Offset+p.Width, p.Qubits)
}

// PlacementError carries the rejected placement.
type PlacementError struct {
	Placement Placement
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf(
		"%v: block of width %d at offset %d does not fit in %d qubits",
		ErrInvalidPlacement, e.Placement.Width, e.Placement.Offset, e.Placement.Qubits,
	)
}

func (e *PlacementError) Unwrap() error {
	return ErrInvalidPlacement
}

/*
Circuit is the full-width circuit description handed to an Executor. Operations are
stored in program order over register qubits [0, Qubits). Once Measured is set the
circuit is closed: the measurement step is always the last one.
*/
type Circuit struct {
	Qubits   int
	Clbits   int
	Ops      []Operation
	Measured bool
}

// NewCircuit allocates an empty circuit over n qubits and clbits classical bits.
func NewCircuit(n, clbits int) *Circuit {
	return &Circuit{Qubits: n, Clbits: clbits}
}

/*
Compose builds an n-qubit circuit with block placed on qubits [offset, offset+w).

Parameters:
  - n: total register width
  - block: the gate block to place (read only)
  - offset: first register qubit used by the block
  - measure: when true, n classical bits are allocated and every qubit is measured

Returns:
  - *Circuit: the composed circuit
  - error: a *PlacementError when the block does not fit
*/
func Compose(n int, block *GateBlock, offset int, measure bool) (*Circuit, error) {
	if block == nil {
		return nil, fmt.Errorf("%w: nil block", ErrInvalidGate)
	}

	placement := Placement{Qubits: n, Offset: offset, Width: block.Width()}
	if err := placement.Validate(); err != nil {
		return nil, err
	}

	clbits := 0
	if measure {
		clbits = n
	}

	qc := NewCircuit(n, clbits)
	mapping := qubitRange(offset, offset+block.Width())
	for _, op := range block.ops {
		qc.Ops = append(qc.Ops, op.remap(mapping))
	}

	if measure {
		qc.MeasureAll()
	}

	return qc, nil
}

// ComposeFragment maps a fragment's local qubits onto the given register qubits.
func (qc *Circuit) ComposeFragment(f *Fragment, qubits []int) error {
	if qc.Measured {
		return ErrMeasured
	}
	if f == nil {
		return nil
	}
	if len(qubits) != f.Qubits {
		return fmt.Errorf("%w: fragment of width %d mapped onto %d qubits", ErrInvalidWidth, f.Qubits, len(qubits))
	}
	for _, q := range qubits {
		if q < 0 || q >= qc.Qubits {
			return fmt.Errorf("%w: fragment qubit %d outside register of %d", ErrInvalidWidth, q, qc.Qubits)
		}
	}

	for _, op := range f.Ops {
		qc.Ops = append(qc.Ops, op.remap(qubits))
	}
	return nil
}

// MeasureAll appends one measurement per qubit, qubit q into classical bit q, as the final step.
func (qc *Circuit) MeasureAll() {
	if qc.Measured {
		return
	}
	if qc.Clbits < qc.Qubits {
		qc.Clbits = qc.Qubits
	}
	for q := 0; q < qc.Qubits; q++ {
		qc.Ops = append(qc.Ops, Operation{Name: "measure", Qubits: []int{q}})
	}
	qc.Measured = true
}

// Gates returns the number of non-measurement operations.
func (qc *Circuit) Gates() int {
	count := 0
	for _, op := range qc.Ops {
		if op.Name != "measure" {
			count++
		}
	}
	return count
}

/*
Depth returns the number of layers after packing every operation as early as its
qubits allow. The measurement step counts as a single layer.
*/
func (qc *Circuit) Depth() int {
	levels := make([]int, qc.Qubits)
	depth := 0
	measured := false

	for _, op := range qc.Ops {
		if op.Name == "measure" {
			measured = true
			continue
		}
		level := 0
		for _, q := range op.Qubits {
			level = max(level, levels[q])
		}
		level++
		for _, q := range op.Qubits {
			levels[q] = level
		}
		depth = max(depth, level)
	}

	if measured {
		depth++
	}
	return depth
}

func qubitRange(from, to int) []int {
	if to <= from {
		return nil
	}
	out := make([]int, 0, to-from)
	for q := from; q < to; q++ {
		out = append(out, q)
	}
	return out
}
