package fragment

import (
	"fmt"
	"sort"

	"github.com/turtacn/torsion-fragmenter/internal/chem/fgroups"
	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
)

// RingSystem is a maximal set of rings sharing atoms.  IDs start at 1 and
// follow the lowest member atom index.
type RingSystem struct {
	ID    int   `json:"id"`
	Atoms []int `json:"atoms"`
	Bonds []int `json:"bonds"`
}

// Group is a tagged functional group after reconciliation.  Names of merged
// groups share identical Atoms and Bonds.
type Group struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
	Atoms   []int  `json:"atoms"`
	Bonds   []int  `json:"bonds"`
}

// Tags is the read-only result of TagMolecule.
type Tags struct {
	Rings      []RingSystem
	Groups     map[string]Group
	GroupNames []string

	// AtomRing maps a ring atom to its ring system id.
	AtomRing map[int]int
	// AtomGroup maps a matched atom to the last group that matched it.
	AtomGroup map[int]string

	Skipped []fgroups.Skipped
}

// Ring returns the ring system with the given id.
func (t *Tags) Ring(id int) (RingSystem, bool) {
	if id < 1 || id > len(t.Rings) {
		return RingSystem{}, false
	}
	return t.Rings[id-1], true
}

// RingOf returns the ring system holding atom.
func (t *Tags) RingOf(atom int) (RingSystem, bool) {
	id, ok := t.AtomRing[atom]
	if !ok {
		return RingSystem{}, false
	}
	return t.Ring(id)
}

// GroupOf returns the reconciled group reported for atom.
func (t *Tags) GroupOf(atom int) (Group, bool) {
	name, ok := t.AtomGroup[atom]
	if !ok {
		return Group{}, false
	}
	g, ok := t.Groups[name]
	return g, ok
}

// GroupBonds returns every bond held by some group.
func (t *Tags) GroupBonds() map[int]bool {
	out := map[int]bool{}
	for _, g := range t.Groups {
		for _, b := range g.Bonds {
			out[b] = true
		}
	}
	return out
}

// TagMolecule finds ring systems and functional groups and reconciles them:
// groups overlapping in more than one atom merge, and a ring joins a group it
// shares more than one atom with, or a single atom bonded into the group by a
// conjugated or non-rotatable bond.  A nil library means fgroups.Default().
func TagMolecule(mol *molecule.Molecule, lib *fgroups.Library, opts Options) (*Tags, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	if err := emptyMolecule(mol); err != nil {
		return nil, err
	}
	if err := missingWeights(mol); err != nil {
		return nil, err
	}
	if lib == nil {
		lib = fgroups.Default()
	}

	t := &Tags{
		Groups:    map[string]Group{},
		AtomRing:  map[int]int{},
		AtomGroup: map[int]string{},
	}
	t.tagRings(mol)
	raw := t.tagGroups(mol, lib, opts.Logger)
	t.reconcile(mol, raw, opts.Threshold)

	opts.Logger.Debug("molecule tagged",
		logging.Molecule(mol.Title),
		logging.Int("ring_systems", len(t.Rings)),
		logging.Int("groups", len(t.GroupNames)),
		logging.Int("skipped_patterns", len(t.Skipped)))
	return t, nil
}

// ── Rings ────────────────────────────────────────────────────────────────────

func (t *Tags) tagRings(mol *molecule.Molecule) {
	for start := 0; start < mol.NumAtoms(); start++ {
		if _, done := t.AtomRing[start]; done || !mol.InRing(start) {
			continue
		}
		id := len(t.Rings) + 1
		t.AtomRing[start] = id
		atoms := []int{start}
		for q := 0; q < len(atoms); q++ {
			for _, bi := range mol.NeighborBonds(atoms[q]) {
				b := mol.Bond(bi)
				if !b.InRing {
					continue
				}
				next := b.Other(atoms[q])
				if _, done := t.AtomRing[next]; !done {
					t.AtomRing[next] = id
					atoms = append(atoms, next)
				}
			}
		}
		var bonds []int
		for _, b := range mol.Bonds() {
			if t.AtomRing[b.Begin] == id && t.AtomRing[b.End] == id {
				bonds = append(bonds, b.Index)
			}
		}
		sort.Ints(atoms)
		t.Rings = append(t.Rings, RingSystem{ID: id, Atoms: atoms, Bonds: bonds})
	}
}

// ── Functional groups ────────────────────────────────────────────────────────

type rawGroup struct {
	name    string
	pattern string
	atoms   []int
	bonds   []int
}

func (t *Tags) tagGroups(mol *molecule.Molecule, lib *fgroups.Library, log logging.Logger) []rawGroup {
	compiled, skipped := lib.Compile()
	for _, s := range skipped {
		log.Warn("functional group pattern skipped",
			logging.String("group", s.Name),
			logging.String("smarts", s.SMARTS),
			logging.Err(s.Err))
	}
	t.Skipped = skipped

	var raw []rawGroup
	for _, c := range compiled {
		for ordinal, m := range c.Pattern.FindAll(mol) {
			name := fmt.Sprintf("%s_%d", c.Name, ordinal)
			for _, a := range m.Atoms {
				t.AtomGroup[a] = name
			}
			raw = append(raw, rawGroup{
				name:    name,
				pattern: c.Name,
				atoms:   sortedUnique(m.Atoms),
				bonds:   sortedUnique(m.Bonds),
			})
		}
	}
	return raw
}

// ── Reconciliation ───────────────────────────────────────────────────────────

type groupClass struct {
	members []int
	atoms   map[int]bool
	bonds   map[int]bool
}

func (c *groupClass) absorb(atoms, bonds []int) {
	for _, a := range atoms {
		c.atoms[a] = true
	}
	for _, b := range bonds {
		c.bonds[b] = true
	}
}

// classes returns the union-find classes in order of their first member.
func classes(raw []rawGroup, uf *unionFind) []*groupClass {
	byRoot := map[int]*groupClass{}
	var out []*groupClass
	for i, g := range raw {
		r := uf.find(i)
		c, ok := byRoot[r]
		if !ok {
			c = &groupClass{atoms: map[int]bool{}, bonds: map[int]bool{}}
			byRoot[r] = c
			out = append(out, c)
		}
		c.members = append(c.members, i)
		c.absorb(g.atoms, g.bonds)
	}
	return out
}

func overlap(a, b map[int]bool) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for x := range a {
		if b[x] {
			n++
		}
	}
	return n
}

func (t *Tags) reconcile(mol *molecule.Molecule, raw []rawGroup, threshold float64) {
	uf := newUnionFind(len(raw))
	for merged := true; merged; {
		merged = false
		cs := classes(raw, uf)
		for i := 0; i < len(cs); i++ {
			for j := i + 1; j < len(cs); j++ {
				if overlap(cs[i].atoms, cs[j].atoms) > 1 && uf.union(cs[i].members[0], cs[j].members[0]) {
					merged = true
				}
			}
		}
	}

	cs := classes(raw, uf)
	for _, ring := range t.Rings {
		for _, c := range cs {
			if ringJoinsGroup(mol, ring, c, threshold) {
				c.absorb(ring.Atoms, ring.Bonds)
			}
		}
	}

	final := make([]Group, len(raw))
	for _, c := range cs {
		atoms, bonds := keys(c.atoms), keys(c.bonds)
		for _, i := range c.members {
			final[i] = Group{Name: raw[i].name, Pattern: raw[i].pattern, Atoms: atoms, Bonds: bonds}
		}
	}
	for _, g := range final {
		t.GroupNames = append(t.GroupNames, g.Name)
		t.Groups[g.Name] = g
	}
}

func ringJoinsGroup(mol *molecule.Molecule, ring RingSystem, c *groupClass, threshold float64) bool {
	var shared []int
	for _, a := range ring.Atoms {
		if c.atoms[a] {
			shared = append(shared, a)
		}
	}
	switch len(shared) {
	case 0:
		return false
	case 1:
		s := shared[0]
		for _, bi := range mol.NeighborBonds(s) {
			b := mol.Bond(bi)
			if !c.atoms[b.Other(s)] {
				continue
			}
			if w, _ := b.Weight(); w > threshold || !b.IsRotor {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func keys(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
