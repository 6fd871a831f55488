// Package fragment implements torsion fragmentation: structural tagging of a
// molecule, growth of one fragment around every rotatable bond, assembly of
// connected fragment combinations under a rotor budget, and deduplication by
// canonical encoding.
//
// Every function here works on a single molecule and keeps no state between
// calls; callers may fragment different molecules concurrently.
package fragment

import (
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// Defaults applied when an Options field is zero.
const (
	DefaultThreshold = 1.2
	DefaultMaxRotors = 2
	DefaultMinRotors = 1
)

// Options tunes tagging, growth and assembly.
type Options struct {
	// Threshold is the bond-order weight above which a bond conjugates.
	// Zero means DefaultThreshold.
	Threshold float64

	// MaxCombinations caps the combinations the assembler may emit.  Zero
	// means no cap.
	MaxCombinations int

	Logger logging.Logger
}

// DefaultOptions returns Options with every default filled in.
func DefaultOptions() Options {
	return Options{Threshold: DefaultThreshold, Logger: logging.NewNopLogger()}
}

func (o Options) normalize() (Options, error) {
	if o.Threshold < 0 {
		return o, errors.New(errors.ErrCodeFragInvalidThreshold, errors.DefaultMessageForCode(errors.ErrCodeFragInvalidThreshold)).
			WithDetail(strconv.FormatFloat(o.Threshold, 'g', -1, 64))
	}
	if o.Threshold == 0 {
		o.Threshold = DefaultThreshold
	}
	if o.MaxCombinations < 0 {
		o.MaxCombinations = 0
	}
	if o.Logger == nil {
		o.Logger = logging.NewNopLogger()
	}
	return o, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Fragment
// ─────────────────────────────────────────────────────────────────────────────

// Fragment is an immutable atom/bond subset of a molecule.  Atoms and Bonds
// are sorted and free of duplicates.
type Fragment struct {
	Atoms []int `json:"atoms"`
	Bonds []int `json:"bonds"`
}

// NewFragment copies, sorts and deduplicates atoms and bonds.
func NewFragment(atoms, bonds []int) Fragment {
	return Fragment{Atoms: sortedUnique(atoms), Bonds: sortedUnique(bonds)}
}

func sortedUnique(v []int) []int {
	out := append([]int(nil), v...)
	sort.Ints(out)
	n := 0
	for i, x := range out {
		if i > 0 && x == out[n-1] {
			continue
		}
		out[n] = x
		n++
	}
	return out[:n]
}

// Key identifies the fragment by its atom and bond sets.
func (f Fragment) Key() string {
	var sb strings.Builder
	for i, a := range f.Atoms {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(a))
	}
	sb.WriteByte('|')
	for i, b := range f.Bonds {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(b))
	}
	return sb.String()
}

// Equal reports whether f and o hold the same atoms and bonds.
func (f Fragment) Equal(o Fragment) bool {
	return equalInts(f.Atoms, o.Atoms) && equalInts(f.Bonds, o.Bonds)
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// HasAtom reports atom membership.
func (f Fragment) HasAtom(atom int) bool { return contains(f.Atoms, atom) }

// HasBond reports bond membership.
func (f Fragment) HasBond(bond int) bool { return contains(f.Bonds, bond) }

func contains(sorted []int, v int) bool {
	i := sort.SearchInts(sorted, v)
	return i < len(sorted) && sorted[i] == v
}

// Union returns the fragment holding the atoms and bonds of both.
func (f Fragment) Union(o Fragment) Fragment {
	return NewFragment(append(append([]int(nil), f.Atoms...), o.Atoms...),
		append(append([]int(nil), f.Bonds...), o.Bonds...))
}

// Rotors counts the rotatable bonds of mol that f holds.
func (f Fragment) Rotors(mol *molecule.Molecule) int {
	n := 0
	for _, b := range f.Bonds {
		if mol.Bond(b).IsRotor {
			n++
		}
	}
	return n
}

// Closed returns f with every bond of mol between two of its atoms added.
func (f Fragment) Closed(mol *molecule.Molecule) Fragment {
	in := make(map[int]bool, len(f.Atoms))
	for _, a := range f.Atoms {
		in[a] = true
	}
	bonds := append([]int(nil), f.Bonds...)
	for _, b := range mol.Bonds() {
		if in[b.Begin] && in[b.End] {
			bonds = append(bonds, b.Index)
		}
	}
	return Fragment{Atoms: append([]int(nil), f.Atoms...), Bonds: sortedUnique(bonds)}
}

// ─────────────────────────────────────────────────────────────────────────────
// FragmentMap
// ─────────────────────────────────────────────────────────────────────────────

// FragmentMap maps a rotatable bond index to the fragment grown around it.
type FragmentMap map[int]Fragment

// Rotors returns the map's bond indices in ascending order.
func (fm FragmentMap) Rotors() []int {
	out := make([]int, 0, len(fm))
	for b := range fm {
		out = append(out, b)
	}
	sort.Ints(out)
	return out
}

// List returns the fragments ordered by rotor bond index.
func (fm FragmentMap) List() []Fragment {
	rotors := fm.Rotors()
	out := make([]Fragment, len(rotors))
	for i, b := range rotors {
		out[i] = fm[b]
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// visited
// ─────────────────────────────────────────────────────────────────────────────

// visited is the growing atom and bond set threaded through fragment growth.
type visited struct {
	atoms map[int]bool
	bonds map[int]bool
}

func newVisited() visited {
	return visited{atoms: map[int]bool{}, bonds: map[int]bool{}}
}

func (v visited) addAtoms(atoms []int) visited {
	for _, a := range atoms {
		v.atoms[a] = true
	}
	return v
}

func (v visited) addBonds(bonds []int) visited {
	for _, b := range bonds {
		v.bonds[b] = true
	}
	return v
}

func (v visited) merge(o visited) visited {
	for a := range o.atoms {
		v.atoms[a] = true
	}
	for b := range o.bonds {
		v.bonds[b] = true
	}
	return v
}

func (v visited) fragment() Fragment {
	atoms := make([]int, 0, len(v.atoms))
	for a := range v.atoms {
		atoms = append(atoms, a)
	}
	bonds := make([]int, 0, len(v.bonds))
	for b := range v.bonds {
		bonds = append(bonds, b)
	}
	sort.Ints(atoms)
	sort.Ints(bonds)
	return Fragment{Atoms: atoms, Bonds: bonds}
}

// emptyMolecule rejects a nil molecule or one without atoms.
func emptyMolecule(mol *molecule.Molecule) error {
	if mol == nil || mol.NumAtoms() == 0 {
		return errors.New(errors.ErrCodeMoleculeEmpty, errors.DefaultMessageForCode(errors.ErrCodeMoleculeEmpty))
	}
	return nil
}

func missingWeights(mol *molecule.Molecule) error {
	missing := mol.MissingWeights()
	if len(missing) == 0 {
		return nil
	}
	parts := make([]string, len(missing))
	for i, b := range missing {
		parts[i] = strconv.Itoa(b)
	}
	return errors.New(errors.ErrCodeFragMissingBondOrder, errors.DefaultMessageForCode(errors.ErrCodeFragMissingBondOrder)).
		WithDetail(mol.Title + ": bonds " + strings.Join(parts, ","))
}
