package fragment

import (
	"fmt"

	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// AssembleCombinations returns the base fragments followed by every connected
// combination of them whose closed union carries between minRotors and
// maxRotors rotatable bonds.  Two fragments are connected when one holds an
// atom bonded to, or shared with, an atom of the other.  The closed union
// holds every bond between two of its atoms.  Combinations equal to an entry
// already returned are dropped.
func AssembleCombinations(mol *molecule.Molecule, frags []Fragment, maxRotors, minRotors int, opts Options) ([]Fragment, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	if err := emptyMolecule(mol); err != nil {
		return nil, err
	}
	if minRotors < 0 || maxRotors < minRotors {
		return nil, errors.New(errors.ErrCodeFragInvalidBudget, errors.DefaultMessageForCode(errors.ErrCodeFragInvalidBudget)).
			WithDetail(fmt.Sprintf("min=%d max=%d", minRotors, maxRotors))
	}

	a := newAssembler(mol, frags, maxRotors, minRotors, opts.MaxCombinations)
	if err := a.run(); err != nil {
		return nil, err
	}
	opts.Logger.Debug("fragments assembled",
		logging.Molecule(mol.Title),
		logging.Int("base", len(frags)),
		logging.Int("combinations", a.combos))
	return a.out, nil
}

type assembler struct {
	mol   *molecule.Molecule
	frags []Fragment
	adj   [][]int

	maxRotors, minRotors, limit int

	// inUnion counts, per atom, the chosen fragments holding it.
	inUnion []int
	rotors  int
	chosen  []int

	out    []Fragment
	seen   map[string]bool
	combos int
}

func newAssembler(mol *molecule.Molecule, frags []Fragment, maxRotors, minRotors, limit int) *assembler {
	a := &assembler{
		mol:       mol,
		frags:     frags,
		maxRotors: maxRotors,
		minRotors: minRotors,
		limit:     limit,
		inUnion:   make([]int, mol.NumAtoms()),
		seen:      map[string]bool{},
	}
	a.adj = make([][]int, len(frags))
	for i := range frags {
		for j := i + 1; j < len(frags); j++ {
			if a.adjacent(frags[i], frags[j]) {
				a.adj[i] = append(a.adj[i], j)
				a.adj[j] = append(a.adj[j], i)
			}
		}
	}
	return a
}

func (a *assembler) adjacent(x, y Fragment) bool {
	for _, u := range x.Atoms {
		if y.HasAtom(u) {
			return true
		}
		for _, n := range a.mol.Neighbors(u) {
			if y.HasAtom(n) {
				return true
			}
		}
	}
	return false
}

func (a *assembler) run() error {
	for _, f := range a.frags {
		a.out = append(a.out, f)
		a.seen[f.Key()] = true
	}
	// Each connected subset is reached exactly once from its lowest member:
	// extensions only come from neighbours above the root that are not
	// already adjacent to the subset.
	for root := range a.frags {
		if a.push(root) > a.maxRotors {
			a.pop(root)
			continue
		}
		ext := a.above(root, root, nil)
		err := a.extend(root, ext, a.exclusive(root, nil))
		a.pop(root)
		if err != nil {
			return err
		}
	}
	return nil
}

// extend emits the current subset and grows it by each candidate in ext.
// blocked holds every fragment in or adjacent to the subset.
func (a *assembler) extend(root int, ext []int, blocked map[int]bool) error {
	if err := a.emit(); err != nil {
		return err
	}
	for len(ext) > 0 {
		w := ext[0]
		ext = ext[1:]
		if a.push(w) <= a.maxRotors {
			next := append(append([]int(nil), ext...), a.above(w, root, blocked)...)
			grown := a.exclusive(w, blocked)
			if err := a.extend(root, next, grown); err != nil {
				a.pop(w)
				return err
			}
		}
		a.pop(w)
	}
	return nil
}

// above lists the neighbours of w beyond root that blocked does not hold.
func (a *assembler) above(w, root int, blocked map[int]bool) []int {
	var out []int
	for _, n := range a.adj[w] {
		if n > root && !blocked[n] {
			out = append(out, n)
		}
	}
	return out
}

// exclusive returns blocked extended by w and its neighbours.
func (a *assembler) exclusive(w int, blocked map[int]bool) map[int]bool {
	out := make(map[int]bool, len(blocked)+len(a.adj[w])+1)
	for k := range blocked {
		out[k] = true
	}
	out[w] = true
	for _, n := range a.adj[w] {
		out[n] = true
	}
	return out
}

// push adds fragment i to the subset and returns the closed rotor count.
func (a *assembler) push(i int) int {
	a.chosen = append(a.chosen, i)
	for _, u := range a.frags[i].Atoms {
		a.inUnion[u]++
		if a.inUnion[u] != 1 {
			continue
		}
		for _, bi := range a.mol.NeighborBonds(u) {
			b := a.mol.Bond(bi)
			if b.IsRotor && a.inUnion[b.Other(u)] > 0 {
				a.rotors++
			}
		}
	}
	return a.rotors
}

func (a *assembler) pop(i int) {
	atoms := a.frags[i].Atoms
	for k := len(atoms) - 1; k >= 0; k-- {
		u := atoms[k]
		a.inUnion[u]--
		if a.inUnion[u] != 0 {
			continue
		}
		for _, bi := range a.mol.NeighborBonds(u) {
			b := a.mol.Bond(bi)
			if b.IsRotor && a.inUnion[b.Other(u)] > 0 {
				a.rotors--
			}
		}
	}
	a.chosen = a.chosen[:len(a.chosen)-1]
}

func (a *assembler) emit() error {
	if a.rotors < a.minRotors || a.rotors > a.maxRotors {
		return nil
	}
	var atoms []int
	for u, n := range a.inUnion {
		if n > 0 {
			atoms = append(atoms, u)
		}
	}
	var bonds []int
	for _, i := range a.chosen {
		bonds = append(bonds, a.frags[i].Bonds...)
	}
	f := Fragment{Atoms: atoms, Bonds: sortedUnique(bonds)}.Closed(a.mol)
	key := f.Key()
	if a.seen[key] {
		return nil
	}
	if a.limit > 0 && a.combos >= a.limit {
		return errors.New(errors.ErrCodeFragCombinationLimit, errors.DefaultMessageForCode(errors.ErrCodeFragCombinationLimit)).
			WithDetail(fmt.Sprintf("%s: limit %d", a.mol.Title, a.limit))
	}
	a.seen[key] = true
	a.out = append(a.out, f)
	a.combos++
	return nil
}
