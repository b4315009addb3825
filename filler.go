package qrecover

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

var (
	// ErrInvalidWidth is returned when filler is requested for fewer than one qubit.
	ErrInvalidWidth = errors.New("invalid filler width")
	// ErrInvalidDepth is returned when filler is requested with fewer than one layer.
	ErrInvalidDepth = errors.New("invalid filler depth")
)

// Fragment is a circuit piece over local qubits [0, Qubits), composed onto a register sub-range.
type Fragment struct {
	Qubits int
	Ops    []Operation
}

// FillerGenerator produces random circuit content for the qubits outside the placement window.
type FillerGenerator interface {
	Generate(width, depth int, rng *rand.Rand) (*Fragment, error)
}

// DefaultFillerGates is the gate library the random filler draws from.
var DefaultFillerGates = []string{
	"id", "h", "x", "y", "z", "s", "sdg", "t", "tdg", "rx", "ry", "rz", "p",
	"cx", "cz", "ch", "swap", "cp", "crz",
}

/*
RandomFiller builds layered random circuits. Every layer shuffles the qubits and covers
them with gates of one or more operands, up to MaxOperands, so each qubit is touched
exactly once per layer. Rotation angles are uniform in [0, 2π).
*/
type RandomFiller struct {
	MaxOperands int
	Gates       []string

	byOperands map[int][]string
}

// NewRandomFiller returns a filler over gates (DefaultFillerGates when empty).
func NewRandomFiller(maxOperands int, gates ...string) (*RandomFiller, error) {
	if maxOperands < 1 {
		maxOperands = 2
	}
	if len(gates) == 0 {
		gates = DefaultFillerGates
	}

	rf := &RandomFiller{
		MaxOperands: maxOperands,
		Gates:       gates,
		byOperands:  make(map[int][]string),
	}

	for _, name := range gates {
		spec, ok := instructionSet[name]
		operands := 1
		if ok {
			operands = spec.operands
		}
		if name == "measure" {
			return nil, fmt.Errorf("%w: filler cannot measure", ErrInvalidGate)
		}
		if operands > maxOperands {
			continue
		}
		rf.byOperands[operands] = append(rf.byOperands[operands], name)
	}

	if len(rf.byOperands[1]) == 0 {
		return nil, fmt.Errorf("%w: filler needs at least one single-qubit gate", ErrInvalidGate)
	}

	return rf, nil
}

/*
Generate returns a random fragment of the requested width and depth.

Parameters:
  - width: number of qubits, at least 1
  - depth: number of layers, at least 1
  - rng: the calling trial's own generator

Returns:
  - *Fragment: the random fragment
  - error: ErrInvalidWidth or ErrInvalidDepth
*/
func (rf *RandomFiller) Generate(width, depth int, rng *rand.Rand) (*Fragment, error) {
	if width < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWidth, width)
	}
	if depth < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}

	frag := &Fragment{Qubits: width}

	for layer := 0; layer < depth; layer++ {
		order := rng.Perm(width)

		for len(order) > 0 {
			operands := rf.pickOperands(len(order), rng)
			names := rf.byOperands[operands]
			name := names[rng.IntN(len(names))]

			op := Operation{Name: name, Qubits: append([]int(nil), order[:operands]...)}
			if spec, ok := instructionSet[name]; ok {
				for p := 0; p < spec.params; p++ {
					op.Params = append(op.Params, rng.Float64()*2*math.Pi)
				}
			}

			frag.Ops = append(frag.Ops, op)
			order = order[operands:]
		}
	}

	return frag, nil
}

// pickOperands chooses a gate arity that the library has and the remaining qubits can hold.
func (rf *RandomFiller) pickOperands(remaining int, rng *rand.Rand) int {
	limit := min(rf.MaxOperands, remaining)
	for {
		operands := rng.IntN(limit) + 1
		if len(rf.byOperands[operands]) > 0 {
			return operands
		}
	}
}
