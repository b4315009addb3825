package qrecover

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"sort"
	"sync"
)

// DefaultMaxQubits bounds the dense simulation to 2^20 amplitudes.
const DefaultMaxQubits = 20

type matrix [2][2]complex128

var (
	invSqrt2 = complex(1/math.Sqrt2, 0)

	gateH   = matrix{{invSqrt2, invSqrt2}, {invSqrt2, -invSqrt2}}
	gateX   = matrix{{0, 1}, {1, 0}}
	gateY   = matrix{{0, -1i}, {1i, 0}}
	gateZ   = matrix{{1, 0}, {0, -1}}
	gateS   = matrix{{1, 0}, {0, 1i}}
	gateSdg = matrix{{1, 0}, {0, -1i}}
	gateT   = matrix{{1, 0}, {0, cmplx.Exp(complex(0, math.Pi/4))}}
	gateTdg = matrix{{1, 0}, {0, cmplx.Exp(complex(0, -math.Pi/4))}}
	gateI   = matrix{{1, 0}, {0, 1}}
)

func gateRX(theta float64) matrix {
	c := complex(math.Cos(theta/2), 0)
	s := complex(0, -math.Sin(theta/2))
	return matrix{{c, s}, {s, c}}
}

func gateRY(theta float64) matrix {
	c := complex(math.Cos(theta/2), 0)
	s := complex(math.Sin(theta/2), 0)
	return matrix{{c, -s}, {s, c}}
}

func gateRZ(theta float64) matrix {
	return matrix{
		{cmplx.Exp(complex(0, -theta/2)), 0},
		{0, cmplx.Exp(complex(0, theta/2))},
	}
}

func gateP(theta float64) matrix {
	return matrix{{1, 0}, {0, cmplx.Exp(complex(0, theta))}}
}

// singleQubit returns the matrix for a one-qubit instruction, or the target matrix of a
// controlled instruction.
func singleQubit(op Operation) (matrix, bool) {
	switch op.Name {
	case "id":
		return gateI, true
	case "h", "ch":
		return gateH, true
	case "x", "cx", "ccx":
		return gateX, true
	case "y":
		return gateY, true
	case "z", "cz":
		return gateZ, true
	case "s":
		return gateS, true
	case "sdg":
		return gateSdg, true
	case "t":
		return gateT, true
	case "tdg":
		return gateTdg, true
	case "rx":
		return gateRX(op.Params[0]), true
	case "ry":
		return gateRY(op.Params[0]), true
	case "rz", "crz":
		return gateRZ(op.Params[0]), true
	case "p", "u1", "cp", "cu1":
		return gateP(op.Params[0]), true
	}
	return matrix{}, false
}

// amplitudes is a dense state vector; bit q of the index is qubit q.
type amplitudes []complex128

func newAmplitudes(n int) amplitudes {
	a := make(amplitudes, 1<<n)
	a[0] = 1
	return a
}

// apply applies m to target on every basis pair whose control bits are all set.
func (a amplitudes) apply(m matrix, target int, controls ...int) {
	tBit := 1 << target
	cMask := 0
	for _, c := range controls {
		cMask |= 1 << c
	}

	for i := range a {
		if i&tBit != 0 || i&cMask != cMask {
			continue
		}
		j := i | tBit
		a0, a1 := a[i], a[j]
		a[i] = m[0][0]*a0 + m[0][1]*a1
		a[j] = m[1][0]*a0 + m[1][1]*a1
	}
}

func (a amplitudes) swap(q1, q2 int) {
	bit1, bit2 := 1<<q1, 1<<q2
	for i := range a {
		if i&bit1 != 0 && i&bit2 == 0 {
			j := (i &^ bit1) | bit2
			a[i], a[j] = a[j], a[i]
		}
	}
}

// probabilities returns |amplitude|^2 for every basis state, normalised.
func (a amplitudes) probabilities() []float64 {
	probs := make([]float64, len(a))
	var total float64
	for i, amp := range a {
		p := real(amp)*real(amp) + imag(amp)*imag(amp)
		probs[i] = p
		total += p
	}
	if total > 0 {
		for i := range probs {
			probs[i] /= total
		}
	}
	return probs
}

/*
StateVector is an in-process Executor that simulates the circuit exactly and samples
measurement outcomes from the final amplitudes. A check pass stands in for
transpilation: anything outside the instruction set, or a register wider than
MaxQubits, is rejected with ErrIncompatible before simulation starts.
*/
type StateVector struct {
	MaxQubits int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewStateVector returns a simulator whose sampling is seeded from seed.
func NewStateVector(seed uint64) *StateVector {
	return &StateVector{
		MaxQubits: DefaultMaxQubits,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Name identifies the backend in errors and logs.
func (sv *StateVector) Name() string {
	return "statevector"
}

/*
Execute simulates qc and samples shots outcomes.

Parameters:
  - ctx: checked between operations so long simulations can be abandoned
  - qc: a measured circuit
  - shots: number of samples, at least 1

Returns:
  - Distribution: outcome counts keyed over all qubits, qubit 0 rightmost
  - error: an *ExecutionError for anything the backend cannot run
*/
func (sv *StateVector) Execute(ctx context.Context, qc *Circuit, shots int) (Distribution, error) {
	if shots < 1 {
		return nil, sv.fail(fmt.Errorf("%w: %d", ErrInvalidShots, shots))
	}
	if err := sv.check(qc); err != nil {
		return nil, sv.fail(err)
	}

	state := newAmplitudes(qc.Qubits)
	for i, op := range qc.Ops {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		sv.applyOp(state, op)
	}

	return sv.sample(state.probabilities(), qc.Qubits, shots), nil
}

func (sv *StateVector) fail(err error) error {
	return &ExecutionError{Backend: sv.Name(), Err: err}
}

// check plays the role of transpilation against the simulator's target.
func (sv *StateVector) check(qc *Circuit) error {
	if qc == nil || qc.Qubits < 1 {
		return fmt.Errorf("%w: empty circuit", ErrIncompatible)
	}
	limit := sv.MaxQubits
	if limit <= 0 {
		limit = DefaultMaxQubits
	}
	if qc.Qubits > limit {
		return fmt.Errorf("%w: %d qubits exceeds limit of %d", ErrIncompatible, qc.Qubits, limit)
	}
	if !qc.Measured {
		return ErrNotMeasured
	}
	for _, op := range qc.Ops {
		if err := checkOperation(op, qc.Qubits); err != nil {
			return fmt.Errorf("%w: %v", ErrIncompatible, err)
		}
	}
	return nil
}

func (sv *StateVector) applyOp(state amplitudes, op Operation) {
	switch op.Name {
	case "measure":
		// Measurement is the final step; sampling happens afterwards.
	case "swap":
		state.swap(op.Qubits[0], op.Qubits[1])
	default:
		m, _ := singleQubit(op)
		last := len(op.Qubits) - 1
		state.apply(m, op.Qubits[last], op.Qubits[:last]...)
	}
}

// sample draws shots outcomes using a generator split off the simulator's own stream.
func (sv *StateVector) sample(probs []float64, n, shots int) Distribution {
	sv.mu.Lock()
	seed := sv.rng.Uint64()
	sv.mu.Unlock()
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	cumulative := make([]float64, len(probs))
	var acc float64
	for i, p := range probs {
		acc += p
		cumulative[i] = acc
	}

	out := NewDistribution()
	for s := 0; s < shots; s++ {
		r := rng.Float64() * acc
		idx := sort.SearchFloat64s(cumulative, r)
		// SearchFloat64s returns the first index with cumulative >= r; skip zero-width
		// bins so a basis state with probability 0 is never reported.
		for idx < len(probs)-1 && probs[idx] == 0 {
			idx++
		}
		if idx >= len(probs) {
			idx = len(probs) - 1
		}
		out.Add(formatOutcome(idx, n), 1)
	}

	return out
}
