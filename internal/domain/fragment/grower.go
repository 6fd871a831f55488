package fragment

import (
	"strconv"

	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// BuildFragment grows the fragment around one rotatable bond.  The rotor and
// its endpoints are always included; from each endpoint the growth follows
// first neighbours unconditionally and then conjugated (weight above the
// threshold) acyclic bonds, pulling in every ring system and functional group
// it touches.
func BuildFragment(rotor int, mol *molecule.Molecule, tags *Tags, opts Options) (Fragment, error) {
	opts, err := opts.normalize()
	if err != nil {
		return Fragment{}, err
	}
	if err := emptyMolecule(mol); err != nil {
		return Fragment{}, err
	}
	if tags == nil {
		return Fragment{}, errors.InvalidParam("fragment growth needs molecule tags")
	}
	if rotor < 0 || rotor >= mol.NumBonds() {
		return Fragment{}, errors.New(errors.ErrCodeMoleculeBondIndex, errors.DefaultMessageForCode(errors.ErrCodeMoleculeBondIndex)).
			WithDetail(strconv.Itoa(rotor))
	}
	b := mol.Bond(rotor)
	if !b.IsRotor {
		return Fragment{}, errors.New(errors.ErrCodeFragNotRotor, errors.DefaultMessageForCode(errors.ErrCodeFragNotRotor)).
			WithDetail(strconv.Itoa(rotor))
	}
	if err := missingWeights(mol); err != nil {
		return Fragment{}, err
	}
	g := &grower{mol: mol, tags: tags, threshold: opts.Threshold}
	f := g.build(b)
	opts.Logger.Debug("fragment grown",
		logging.Molecule(mol.Title),
		logging.Int("rotor", rotor),
		logging.Int("atoms", len(f.Atoms)),
		logging.Int("bonds", len(f.Bonds)))
	return f, nil
}

// BuildFragmentMap grows one fragment per rotatable bond.  A molecule without
// rotatable bonds yields an empty map.
func BuildFragmentMap(mol *molecule.Molecule, tags *Tags, opts Options) (FragmentMap, error) {
	if err := emptyMolecule(mol); err != nil {
		return nil, err
	}
	if err := missingWeights(mol); err != nil {
		return nil, err
	}
	fm := FragmentMap{}
	for _, r := range mol.Rotors() {
		f, err := BuildFragment(r, mol, tags, opts)
		if err != nil {
			return nil, err
		}
		fm[r] = f
	}
	return fm, nil
}

type grower struct {
	mol       *molecule.Molecule
	tags      *Tags
	threshold float64
}

func (g *grower) weight(b molecule.Bond) float64 {
	w, _ := b.Weight()
	return w
}

func (g *grower) build(rotor molecule.Bond) Fragment {
	v := newVisited()
	v.atoms[rotor.Begin] = true
	v.atoms[rotor.End] = true
	v.bonds[rotor.Index] = true
	v = v.merge(g.expand(newVisited(), rotor, rotor.Begin, rotor.End, 0))
	v = v.merge(g.expand(newVisited(), rotor, rotor.End, rotor.Begin, 0))
	return g.completeRings(v).fragment()
}

// expand walks outward from atom, never back to pair.  ref is the bond the
// branch started from and serves ortho checks in ring substituents.
func (g *grower) expand(v visited, ref molecule.Bond, atom, pair, depth int) visited {
	for _, bi := range g.mol.NeighborBonds(atom) {
		nb := g.mol.Bond(bi)
		a := nb.Other(atom)
		if a == pair {
			continue
		}

		if v.bonds[bi] {
			v.atoms[a] = true
			switch {
			case g.hasRing(a):
				v = g.absorbRing(v, g.tags.AtomRing[a], nb, ref)
			case g.hasRing(atom):
				v = g.absorbRing(v, g.tags.AtomRing[atom], nb, ref)
			default:
				v = g.absorbGroup(v, a)
			}
			continue
		}
		// Isolating bond: the branch ends before a.
		if depth > 0 && g.weight(nb) < g.threshold {
			continue
		}

		v.atoms[a] = true
		v.bonds[bi] = true
		if g.hasRing(a) {
			v = g.absorbRing(v, g.tags.AtomRing[a], nb, ref)
		}
		v = g.absorbGroup(v, a)

		for _, bj := range g.mol.NeighborBonds(a) {
			nn := g.mol.Bond(bj)
			if v.bonds[bj] || nn.InRing || g.weight(nn) <= g.threshold {
				continue
			}
			far := nn.Other(a)
			if g.mol.Degree(a) == 1 || g.mol.Degree(far) == 1 {
				continue
			}
			v.atoms[far] = true
			v.bonds[bj] = true
			v = g.expand(v, nn, far, pair, depth+1)
		}
	}
	return v
}

func (g *grower) hasRing(atom int) bool {
	_, ok := g.tags.AtomRing[atom]
	return ok
}

func (g *grower) absorbGroup(v visited, atom int) visited {
	grp, ok := g.tags.GroupOf(atom)
	if !ok {
		return v
	}
	return v.addAtoms(grp.Atoms).addBonds(grp.Bonds)
}

func (g *grower) absorbRing(v visited, id int, next, ref molecule.Bond) visited {
	ring, ok := g.tags.Ring(id)
	if !ok {
		return v
	}
	v = v.addAtoms(ring.Atoms).addBonds(ring.Bonds)
	return v.merge(g.ringSubstituents(ring, next, ref))
}

// ringSubstituents collects what stays attached to ring: off-ring neighbours
// bonded by non-rotatable bonds, and ortho neighbours of ref (atoms and whole
// ring systems).
func (g *grower) ringSubstituents(ring RingSystem, next, ref molecule.Bond) visited {
	rs := newVisited()
	for _, ra := range ring.Atoms {
		for _, bi := range g.mol.NeighborBonds(ra) {
			b := g.mol.Bond(bi)
			a := b.Other(ra)
			if rs.atoms[a] {
				continue
			}
			other, inRing := g.tags.AtomRing[a]
			switch {
			case !inRing:
				if !b.IsRotor || g.isOrtho(b, ref, next) {
					rs.atoms[a] = true
					rs.bonds[bi] = true
					rs = g.absorbGroup(rs, a)
				}
			case other != ring.ID:
				if g.isOrtho(b, ref, next) {
					rs.bonds[bi] = true
					if sys, ok := g.tags.Ring(other); ok {
						rs = rs.addAtoms(sys.Atoms).addBonds(sys.Bonds)
					}
				}
			}
		}
	}
	return rs
}

// isOrtho reports whether bond touches a bond incident to rotor, or to next
// when next is acyclic.
func (g *grower) isOrtho(bond, rotor, next molecule.Bond) bool {
	around := g.incident(bond)
	if intersects(around, g.incident(rotor)) {
		return true
	}
	if !next.InRing {
		return intersects(around, g.incident(next))
	}
	return false
}

func (g *grower) incident(b molecule.Bond) map[int]bool {
	out := map[int]bool{}
	for _, bi := range g.mol.NeighborBonds(b.Begin) {
		out[bi] = true
	}
	for _, bi := range g.mol.NeighborBonds(b.End) {
		out[bi] = true
	}
	return out
}

func intersects(a, b map[int]bool) bool {
	return overlap(a, b) > 0
}

// completeRings adds the rest of every ring system the fragment holds part
// of, so no fragment cuts through a ring.
func (g *grower) completeRings(v visited) visited {
	partial := map[int]bool{}
	for a := range v.atoms {
		if id, ok := g.tags.AtomRing[a]; ok {
			partial[id] = true
		}
	}
	for id := range partial {
		ring, _ := g.tags.Ring(id)
		v = v.addAtoms(ring.Atoms).addBonds(ring.Bonds)
	}
	return v
}
