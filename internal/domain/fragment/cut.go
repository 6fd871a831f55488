package fragment

import (
	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
)

// CutByBondOrder splits mol at every bond weaker than threshold that is
// acyclic, not aromatic, outside all functional groups and between two atoms
// with further neighbours.  It returns the remaining connected pieces ordered
// by lowest atom.
func CutByBondOrder(mol *molecule.Molecule, tags *Tags, threshold float64) ([]Fragment, error) {
	opts, err := Options{Threshold: threshold}.normalize()
	if err != nil {
		return nil, err
	}
	if err := emptyMolecule(mol); err != nil {
		return nil, err
	}
	if err := missingWeights(mol); err != nil {
		return nil, err
	}
	var inGroup map[int]bool
	if tags != nil {
		inGroup = tags.GroupBonds()
	}

	cut := make([]bool, mol.NumBonds())
	for _, b := range mol.Bonds() {
		w, _ := b.Weight()
		cut[b.Index] = w < opts.Threshold && !b.Aromatic && !b.InRing && !inGroup[b.Index] &&
			mol.Degree(b.Begin) > 1 && mol.Degree(b.End) > 1
	}

	uf := newUnionFind(mol.NumAtoms())
	for _, b := range mol.Bonds() {
		if !cut[b.Index] {
			uf.union(b.Begin, b.End)
		}
	}
	index := map[int]int{}
	var out []visited
	for a := 0; a < mol.NumAtoms(); a++ {
		r := uf.find(a)
		i, ok := index[r]
		if !ok {
			i = len(out)
			index[r] = i
			out = append(out, newVisited())
		}
		out[i].atoms[a] = true
	}
	for _, b := range mol.Bonds() {
		if !cut[b.Index] {
			out[index[uf.find(b.Begin)]].bonds[b.Index] = true
		}
	}
	frags := make([]Fragment, len(out))
	for i, v := range out {
		frags[i] = v.fragment()
	}
	return frags, nil
}
