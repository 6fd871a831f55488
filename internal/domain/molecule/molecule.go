// Package molecule is the in-memory molecular graph consumed by the
// fragmentation core.  A Molecule is immutable once built: parsers and tests
// assemble it through a Builder, perception (ring bonds, aromatic six-rings,
// rotors, implicit hydrogens) runs inside Build, and bond-order weights are the
// only attribute that may be attached afterwards, through WithWeights.
package molecule

import (
	"sort"
	"strconv"

	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Atom / Bond
// ─────────────────────────────────────────────────────────────────────────────

// Atom is a heavy atom (or an explicit hydrogen kept by the input) of the graph.
type Atom struct {
	Index    int
	Element  *Element
	Aromatic bool
	Charge   int
	Isotope  int

	// HCount is the number of implicit hydrogens attached to the atom.
	HCount int

	// X and Y are 2D depiction coordinates when HasCoords is set.
	X, Y      float64
	HasCoords bool
}

// Symbol returns the element symbol, lower-cased for aromatic atoms.
func (a Atom) Symbol() string {
	if a.Element == nil {
		return "*"
	}
	if a.Aromatic {
		return lower(a.Element.Symbol)
	}
	return a.Element.Symbol
}

// IsHydrogen reports whether the atom is an explicit hydrogen.
func (a Atom) IsHydrogen() bool {
	return a.Element != nil && a.Element.Number == 1
}

// Bond connects two atoms.
type Bond struct {
	Index int
	Begin int
	End   int

	// Order is 1, 2 or 3.  Aromatic bonds carry Order 1 with Aromatic set.
	Order    int
	Aromatic bool
	InRing   bool
	IsRotor  bool

	weight    float64
	hasWeight bool
}

// Weight returns the bond-order weight (Wiberg bond order) and whether one has
// been supplied.
func (b Bond) Weight() (float64, bool) {
	return b.weight, b.hasWeight
}

// Other returns the endpoint opposite to atom.
func (b Bond) Other(atom int) int {
	if b.Begin == atom {
		return b.End
	}
	return b.Begin
}

// Has reports whether atom is an endpoint.
func (b Bond) Has(atom int) bool {
	return b.Begin == atom || b.End == atom
}

// ─────────────────────────────────────────────────────────────────────────────
// Molecule
// ─────────────────────────────────────────────────────────────────────────────

// Molecule is an annotated molecular graph.
type Molecule struct {
	Title string

	atoms []Atom
	bonds []Bond
	adj   [][]int // per atom, incident bond indices in ascending order
	data  map[string]string
}

// NumAtoms returns the atom count.
func (m *Molecule) NumAtoms() int { return len(m.atoms) }

// NumBonds returns the bond count.
func (m *Molecule) NumBonds() int { return len(m.bonds) }

// Atom returns the atom at index i.  It panics when i is out of range, like a
// slice access.
func (m *Molecule) Atom(i int) Atom { return m.atoms[i] }

// Bond returns the bond at index i.
func (m *Molecule) Bond(i int) Bond { return m.bonds[i] }

// Atoms returns a copy of the atom list.
func (m *Molecule) Atoms() []Atom {
	out := make([]Atom, len(m.atoms))
	copy(out, m.atoms)
	return out
}

// Bonds returns a copy of the bond list.
func (m *Molecule) Bonds() []Bond {
	out := make([]Bond, len(m.bonds))
	copy(out, m.bonds)
	return out
}

// NeighborBonds returns the indices of the bonds incident to atom.
func (m *Molecule) NeighborBonds(atom int) []int {
	return m.adj[atom]
}

// Neighbors returns the atoms bonded to atom, in bond order.
func (m *Molecule) Neighbors(atom int) []int {
	out := make([]int, 0, len(m.adj[atom]))
	for _, bi := range m.adj[atom] {
		out = append(out, m.bonds[bi].Other(atom))
	}
	return out
}

// Degree is the number of bonds incident to atom.
func (m *Molecule) Degree(atom int) int { return len(m.adj[atom]) }

// HeavyDegree counts the non-hydrogen neighbours of atom.
func (m *Molecule) HeavyDegree(atom int) int {
	n := 0
	for _, bi := range m.adj[atom] {
		if !m.atoms[m.bonds[bi].Other(atom)].IsHydrogen() {
			n++
		}
	}
	return n
}

// BondBetween returns the bond joining a and b.
func (m *Molecule) BondBetween(a, b int) (Bond, bool) {
	if a < 0 || a >= len(m.atoms) {
		return Bond{}, false
	}
	for _, bi := range m.adj[a] {
		if m.bonds[bi].Other(a) == b {
			return m.bonds[bi], true
		}
	}
	return Bond{}, false
}

// InRing reports whether atom belongs to at least one ring bond.
func (m *Molecule) InRing(atom int) bool {
	for _, bi := range m.adj[atom] {
		if m.bonds[bi].InRing {
			return true
		}
	}
	return false
}

// Rotors returns the indices of the rotatable bonds in ascending order.
func (m *Molecule) Rotors() []int {
	var out []int
	for _, b := range m.bonds {
		if b.IsRotor {
			out = append(out, b.Index)
		}
	}
	return out
}

// NumRotors counts rotatable bonds.
func (m *Molecule) NumRotors() int { return len(m.Rotors()) }

// HasAllWeights reports whether every bond carries a bond-order weight.  An
// empty bond list trivially does.
func (m *Molecule) HasAllWeights() bool {
	for _, b := range m.bonds {
		if !b.hasWeight {
			return false
		}
	}
	return true
}

// MissingWeights lists bonds without a weight.
func (m *Molecule) MissingWeights() []int {
	var out []int
	for _, b := range m.bonds {
		if !b.hasWeight {
			out = append(out, b.Index)
		}
	}
	return out
}

// WithWeights returns a copy of m whose bond weights are replaced by w, one per
// bond in index order.
func (m *Molecule) WithWeights(w []float64) (*Molecule, error) {
	if len(w) != len(m.bonds) {
		return nil, errors.New(errors.ErrCodeChemWeightCount, errors.DefaultMessageForCode(errors.ErrCodeChemWeightCount)).
			WithDetail("bonds=" + strconv.Itoa(len(m.bonds)) + " weights=" + strconv.Itoa(len(w)))
	}
	out := m.clone()
	for i := range out.bonds {
		out.bonds[i].weight = w[i]
		out.bonds[i].hasWeight = true
	}
	return out, nil
}

// Weights returns the bond weights in bond order; missing weights read 0.
func (m *Molecule) Weights() []float64 {
	out := make([]float64, len(m.bonds))
	for i, b := range m.bonds {
		out[i] = b.weight
	}
	return out
}

// Data returns an SD data field.
func (m *Molecule) Data(key string) (string, bool) {
	v, ok := m.data[key]
	return v, ok
}

// DataKeys returns the SD data field names in sorted order.
func (m *Molecule) DataKeys() []string {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasCoords reports whether every atom carries 2D coordinates.
func (m *Molecule) HasCoords() bool {
	if len(m.atoms) == 0 {
		return false
	}
	for _, a := range m.atoms {
		if !a.HasCoords {
			return false
		}
	}
	return true
}

func (m *Molecule) clone() *Molecule {
	out := &Molecule{
		Title: m.Title,
		atoms: make([]Atom, len(m.atoms)),
		bonds: make([]Bond, len(m.bonds)),
		adj:   make([][]int, len(m.adj)),
		data:  make(map[string]string, len(m.data)),
	}
	copy(out.atoms, m.atoms)
	copy(out.bonds, m.bonds)
	for i, a := range m.adj {
		out.adj[i] = append([]int(nil), a...)
	}
	for k, v := range m.data {
		out.data[k] = v
	}
	return out
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
