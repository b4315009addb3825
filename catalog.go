package qrecover

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnknownGate is returned by Lookup for a name that is not in the catalog.
var ErrUnknownGate = errors.New("unknown gate")

//go:embed circuits/*.qasm
var circuitFS embed.FS

// CatalogEntry is a built-in gate block with its analytic outcome probabilities.
type CatalogEntry struct {
	Name        string
	Description string
	Block       *GateBlock
	// Expected maps block-width keys to probabilities summing to 1.
	Expected map[string]float64
}

// ExpectedCounts rescales the expected probabilities to shots.
func (e *CatalogEntry) ExpectedCounts(shots int) Distribution {
	return FromProbabilities(e.Expected, shots)
}

type catalogSource struct {
	description string
	expected    map[string]float64
}

func uniform(width int) map[string]float64 {
	out := make(map[string]float64, 1<<width)
	for i := 0; i < 1<<width; i++ {
		out[formatOutcome(i, width)] = 1 / float64(int(1)<<width)
	}
	return out
}

func grover() map[string]float64 {
	out := uniform(3)
	for key := range out {
		out[key] = 1.0 / 128
	}
	out["111"] = 121.0 / 128
	return out
}

var catalog = map[string]catalogSource{
	"ghz": {
		description: "GHZ state preparation",
		expected:    map[string]float64{"000": 0.5, "111": 0.5},
	},
	"wstate": {
		description: "W state preparation",
		expected:    map[string]float64{"001": 1.0 / 3, "010": 1.0 / 3, "100": 1.0 / 3},
	},
	"grover": {
		description: "Grover search for |111>, two iterations",
		expected:    grover(),
	},
	"qft": {
		description: "Quantum Fourier transform of |000>",
		expected:    uniform(3),
	},
}

/*
Lookup loads a built-in gate block by name.

Returns:
  - *CatalogEntry: the parsed block and its expected distribution
  - error: ErrUnknownGate when name is not in the catalog
*/
func Lookup(name string) (*CatalogEntry, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	src, ok := catalog[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownGate, name, strings.Join(CatalogNames(), ", "))
	}

	block, err := LoadGateBlockFS(circuitFS, "circuits/"+key+".qasm")
	if err != nil {
		return nil, err
	}

	expected := make(map[string]float64, len(src.expected))
	for k, p := range src.expected {
		expected[k] = p
	}

	return &CatalogEntry{
		Name:        key,
		Description: src.description,
		Block:       block,
		Expected:    expected,
	}, nil
}

/*
ResolveGate finds a gate block by name. A name ending in .qasm is loaded from disk, as is
<circuitDir>/<name>.qasm when it exists; anything else comes from the catalog. Blocks
loaded from disk take their expected distribution from expected ("key=prob,..."), or from
the catalog entry of the same name when expected is empty.
*/
func ResolveGate(name, circuitDir, expected string) (*CatalogEntry, error) {
	path := ""
	switch {
	case strings.HasSuffix(name, ".qasm"):
		path = name
	case circuitDir != "":
		candidate := filepath.Join(circuitDir, name+".qasm")
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	if path == "" {
		entry, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		if expected != "" {
			if entry.Expected, err = ParseExpected(expected, entry.Block.Width()); err != nil {
				return nil, err
			}
		}
		return entry, nil
	}

	block, err := LoadGateBlock(path)
	if err != nil {
		return nil, err
	}

	entry := &CatalogEntry{Name: block.Name, Description: path, Block: block}
	switch {
	case expected != "":
		if entry.Expected, err = ParseExpected(expected, block.Width()); err != nil {
			return nil, err
		}
	default:
		builtin, lookupErr := Lookup(block.Name)
		if lookupErr != nil || builtin.Block.Width() != block.Width() {
			return nil, fmt.Errorf("%s: no expected distribution, pass one as key=prob,...", path)
		}
		entry.Expected = builtin.Expected
	}
	return entry, nil
}

// CatalogNames lists the built-in gate names in order.
func CatalogNames() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

/*
ParseExpected reads probabilities written as "key=prob,key=prob". Every key must have
width bits and the probabilities must sum to 1 within 1e-6.
*/
func ParseExpected(spec string, width int) (map[string]float64, error) {
	out := make(map[string]float64)
	var total float64

	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=prob, got %q", pair)
		}
		key = strings.TrimSpace(key)
		if len(key) != width || strings.Trim(key, "01") != "" {
			return nil, fmt.Errorf("%w: %q is not a %d-bit key", ErrKeyWidth, key, width)
		}
		p, err := evalExpression(value)
		if err != nil {
			return nil, fmt.Errorf("probability of %s: %w", key, err)
		}
		if p < 0 {
			return nil, fmt.Errorf("probability of %s is negative", key)
		}
		out[key] += p
		total += p
	}

	if len(out) == 0 {
		return nil, errors.New("no expected outcomes given")
	}
	if total < 1-1e-6 || total > 1+1e-6 {
		return nil, fmt.Errorf("expected probabilities sum to %g, want 1", total)
	}
	return out, nil
}
