package qrecover

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrKeyWidth is returned when an outcome key does not match the register it claims to describe.
var ErrKeyWidth = errors.New("outcome key width mismatch")

/*
Distribution maps a fixed-length bit string to the number of shots that produced it.
Keys that are absent count as zero. A Distribution only ever grows: trials are folded
in with Add or Merge, and nothing is subtracted.
*/
type Distribution map[string]int

// NewDistribution returns an empty distribution.
func NewDistribution() Distribution {
	return make(Distribution)
}

// Add folds count shots for key into the distribution.
func (d Distribution) Add(key string, count int) {
	if count <= 0 {
		return
	}
	d[key] += count
}

// Merge folds every entry of other into d.
func (d Distribution) Merge(other Distribution) {
	for key, count := range other {
		d.Add(key, count)
	}
}

// Total returns the number of shots the distribution was built from.
func (d Distribution) Total() int {
	total := 0
	for _, count := range d {
		total += count
	}
	return total
}

// Clone returns an independent copy.
func (d Distribution) Clone() Distribution {
	out := make(Distribution, len(d))
	for key, count := range d {
		out[key] = count
	}
	return out
}

// SortedKeys returns the keys in lexical order.
func (d Distribution) SortedKeys() []string {
	keys := make([]string, 0, len(d))
	for key := range d {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Width returns the length of the keys, or 0 for an empty distribution.
func (d Distribution) Width() int {
	for key := range d {
		return len(key)
	}
	return 0
}

/*
FromProbabilities turns an analytic probability table into integer counts that sum to
exactly shots. Counts are floored first and the leftover shots go to the keys with the
largest fractional remainders.
*/
func FromProbabilities(probs map[string]float64, shots int) Distribution {
	out := NewDistribution()
	if shots <= 0 || len(probs) == 0 {
		return out
	}

	var norm float64
	for _, p := range probs {
		if p > 0 {
			norm += p
		}
	}
	if norm == 0 {
		return out
	}

	type remainder struct {
		key  string
		frac float64
	}

	rems := make([]remainder, 0, len(probs))
	assigned := 0
	for key, p := range probs {
		if p <= 0 {
			continue
		}
		exact := p / norm * float64(shots)
		whole := int(math.Floor(exact))
		out.Add(key, whole)
		assigned += whole
		rems = append(rems, remainder{key: key, frac: exact - float64(whole)})
	}

	sort.Slice(rems, func(i, j int) bool {
		if rems[i].frac == rems[j].frac {
			return rems[i].key < rems[j].key
		}
		return rems[i].frac > rems[j].frac
	})

	for i := 0; assigned < shots && len(rems) > 0; i++ {
		out.Add(rems[i%len(rems)].key, 1)
		assigned++
	}

	return out
}

/*
KeyLayout describes how a block of Width qubits sits inside a register of Qubits qubits.

Every key in this package uses one ordering: qubit q of an n-qubit register is character
n-1-q of the key, so qubit 0 is the rightmost character. Block keys follow the same rule
over the block's own qubits.
*/
type KeyLayout struct {
	Qubits int
	Width  int
}

// Validate checks that a block placed at offset fits inside the register.
func (l KeyLayout) Validate(offset int) error {
	return Placement{Qubits: l.Qubits, Offset: offset, Width: l.Width}.Validate()
}

// Offsets returns the number of valid placements, N-w+1.
func (l KeyLayout) Offsets() int {
	if l.Width > l.Qubits {
		return 0
	}
	return l.Qubits - l.Width + 1
}

// Extract returns the block-width key of the block placed at offset.
func (l KeyLayout) Extract(outcome string, offset int) (string, error) {
	if err := l.Validate(offset); err != nil {
		return "", err
	}
	if len(outcome) != l.Qubits {
		return "", fmt.Errorf("%w: got %d bits, want %d", ErrKeyWidth, len(outcome), l.Qubits)
	}

	// Block qubit i is register qubit offset+i, found at character N-1-(offset+i), so the
	// block occupies one contiguous run of characters.
	start := l.Qubits - offset - l.Width
	return outcome[start : start+l.Width], nil
}

// Embed places a block-width key at offset inside an all-zero register key.
func (l KeyLayout) Embed(blockKey string, offset int) (string, error) {
	if err := l.Validate(offset); err != nil {
		return "", err
	}
	if len(blockKey) != l.Width {
		return "", fmt.Errorf("%w: got %d bits, want %d", ErrKeyWidth, len(blockKey), l.Width)
	}

	start := l.Qubits - offset - l.Width
	var sb strings.Builder
	sb.Grow(l.Qubits)
	sb.WriteString(strings.Repeat("0", start))
	sb.WriteString(blockKey)
	sb.WriteString(strings.Repeat("0", offset))
	return sb.String(), nil
}

// EmbedDistribution embeds every key of a block-width distribution at offset.
func (l KeyLayout) EmbedDistribution(d Distribution, offset int) (Distribution, error) {
	out := NewDistribution()
	for key, count := range d {
		wide, err := l.Embed(key, offset)
		if err != nil {
			return nil, err
		}
		out.Add(wide, count)
	}
	return out, nil
}

// formatOutcome renders basis state index as an n-character key, qubit 0 rightmost.
func formatOutcome(index, n int) string {
	buf := make([]byte, n)
	for q := 0; q < n; q++ {
		if index&(1<<q) != 0 {
			buf[n-1-q] = '1'
		} else {
			buf[n-1-q] = '0'
		}
	}
	return string(buf)
}
