package molecule

import (
	"fmt"

	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// AtomSpec describes an atom to add to a Builder.
type AtomSpec struct {
	Symbol   string
	Aromatic bool
	Charge   int
	Isotope  int

	// HCount is used verbatim when ExplicitH is set; otherwise the implicit
	// hydrogen count is derived from the default valence.
	HCount    int
	ExplicitH bool

	X, Y      float64
	HasCoords bool
}

// Builder assembles a Molecule.  Methods record the first error and Build
// reports it, so call chains need no intermediate checks.
type Builder struct {
	title    string
	specs    []AtomSpec
	bonds    []Bond
	data     map[string]string
	perceive bool

	rotorOverride map[int]bool
	ringOverride  map[int]bool

	err error
}

// NewBuilder starts a molecule with the given title.
func NewBuilder(title string) *Builder {
	return &Builder{
		title:         title,
		data:          map[string]string{},
		perceive:      true,
		rotorOverride: map[int]bool{},
		ringOverride:  map[int]bool{},
	}
}

// SkipPerception disables ring, aromaticity and rotor perception.  Flags set
// through SetRotor / SetInRing / AddAromaticBond are then taken as given.
func (b *Builder) SkipPerception() *Builder {
	b.perceive = false
	return b
}

// AddAtom adds an atom by symbol.  Lower-case symbols ("c", "n") are aromatic.
func (b *Builder) AddAtom(symbol string) int {
	aromatic := symbol != "" && symbol[0] >= 'a' && symbol[0] <= 'z'
	return b.AddAtomSpec(AtomSpec{Symbol: symbol, Aromatic: aromatic})
}

// AddAtomSpec adds a fully described atom and returns its index.
func (b *Builder) AddAtomSpec(spec AtomSpec) int {
	b.specs = append(b.specs, spec)
	return len(b.specs) - 1
}

// AddBond adds a bond of the given order and returns its index.
func (b *Builder) AddBond(a1, a2, order int) int {
	b.bonds = append(b.bonds, Bond{Index: len(b.bonds), Begin: a1, End: a2, Order: order})
	return len(b.bonds) - 1
}

// AddAromaticBond adds an aromatic bond and returns its index.
func (b *Builder) AddAromaticBond(a1, a2 int) int {
	idx := b.AddBond(a1, a2, 1)
	b.bonds[idx].Aromatic = true
	return idx
}

// SetWeight attaches a bond-order weight.
func (b *Builder) SetWeight(bond int, w float64) *Builder {
	if !b.checkBond(bond) {
		return b
	}
	b.bonds[bond].weight = w
	b.bonds[bond].hasWeight = true
	return b
}

// SetWeights attaches one weight per bond, in bond order.
func (b *Builder) SetWeights(w []float64) *Builder {
	if len(w) != len(b.bonds) {
		b.fail(errors.New(errors.ErrCodeChemWeightCount, errors.DefaultMessageForCode(errors.ErrCodeChemWeightCount)).
			WithDetail(fmt.Sprintf("bonds=%d weights=%d", len(b.bonds), len(w))))
		return b
	}
	for i, v := range w {
		b.SetWeight(i, v)
	}
	return b
}

// SetRotor forces the rotor flag of a bond.
func (b *Builder) SetRotor(bond int, rotor bool) *Builder {
	if b.checkBond(bond) {
		b.rotorOverride[bond] = rotor
	}
	return b
}

// SetInRing forces the ring flag of a bond.
func (b *Builder) SetInRing(bond int, inRing bool) *Builder {
	if b.checkBond(bond) {
		b.ringOverride[bond] = inRing
	}
	return b
}

// SetData records an SD data field.
func (b *Builder) SetData(key, value string) *Builder {
	b.data[key] = value
	return b
}

// NumAtoms returns the number of atoms added so far.
func (b *Builder) NumAtoms() int { return len(b.specs) }

// NumBonds returns the number of bonds added so far.
func (b *Builder) NumBonds() int { return len(b.bonds) }

// Fail records an external error (parsers use it for syntax problems).
func (b *Builder) Fail(err error) { b.fail(err) }

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) checkBond(bond int) bool {
	if bond < 0 || bond >= len(b.bonds) {
		b.fail(errors.New(errors.ErrCodeMoleculeBondIndex, errors.DefaultMessageForCode(errors.ErrCodeMoleculeBondIndex)).
			WithDetail(fmt.Sprintf("bond=%d", bond)))
		return false
	}
	return true
}

// Build validates the graph, runs perception and returns the Molecule.
func (b *Builder) Build() (*Molecule, error) {
	if b.err != nil {
		return nil, b.err
	}

	m := &Molecule{
		Title: b.title,
		atoms: make([]Atom, len(b.specs)),
		bonds: make([]Bond, len(b.bonds)),
		adj:   make([][]int, len(b.specs)),
		data:  make(map[string]string, len(b.data)),
	}
	for k, v := range b.data {
		m.data[k] = v
	}

	for i, s := range b.specs {
		el, ok := LookupElement(s.Symbol)
		if !ok {
			return nil, errors.New(errors.ErrCodeMoleculeInvalidFormat, "unknown element").
				WithDetail(fmt.Sprintf("atom=%d symbol=%q", i, s.Symbol))
		}
		m.atoms[i] = Atom{
			Index:     i,
			Element:   el,
			Aromatic:  s.Aromatic,
			Charge:    s.Charge,
			Isotope:   s.Isotope,
			X:         s.X,
			Y:         s.Y,
			HasCoords: s.HasCoords,
		}
	}

	seen := make(map[[2]int]bool, len(b.bonds))
	for i, bd := range b.bonds {
		if bd.Begin < 0 || bd.Begin >= len(m.atoms) || bd.End < 0 || bd.End >= len(m.atoms) {
			return nil, errors.New(errors.ErrCodeMoleculeAtomIndex, errors.DefaultMessageForCode(errors.ErrCodeMoleculeAtomIndex)).
				WithDetail(fmt.Sprintf("bond=%d atoms=%d-%d", i, bd.Begin, bd.End))
		}
		if bd.Begin == bd.End {
			return nil, errors.New(errors.ErrCodeMoleculeInvalidFormat, "bond joins an atom to itself").
				WithDetail(fmt.Sprintf("bond=%d", i))
		}
		if bd.Order < 1 || bd.Order > 3 {
			return nil, errors.New(errors.ErrCodeMoleculeInvalidFormat, "unsupported bond order").
				WithDetail(fmt.Sprintf("bond=%d order=%d", i, bd.Order))
		}
		key := [2]int{minInt(bd.Begin, bd.End), maxInt(bd.Begin, bd.End)}
		if seen[key] {
			return nil, errors.New(errors.ErrCodeMoleculeInvalidFormat, "duplicate bond").
				WithDetail(fmt.Sprintf("atoms=%d-%d", bd.Begin, bd.End))
		}
		seen[key] = true
		m.bonds[i] = bd
		m.adj[bd.Begin] = append(m.adj[bd.Begin], i)
		m.adj[bd.End] = append(m.adj[bd.End], i)
	}

	if b.perceive {
		perceive(m)
	}
	for bi, v := range b.ringOverride {
		m.bonds[bi].InRing = v
	}
	for bi, v := range b.rotorOverride {
		m.bonds[bi].IsRotor = v
	}

	for i, s := range b.specs {
		if s.ExplicitH {
			m.atoms[i].HCount = s.HCount
			continue
		}
		h, err := m.implicitHydrogens(i)
		if err != nil {
			return nil, err
		}
		m.atoms[i].HCount = h
	}
	return m, nil
}

// implicitHydrogens applies the default-valence model to atom i.
func (m *Molecule) implicitHydrogens(i int) (int, error) {
	a := m.atoms[i]
	sum := 0
	for _, bi := range m.adj[i] {
		sum += m.bonds[bi].Order
	}
	if vals := a.Element.Valences; len(vals) > 0 {
		limit := vals[len(vals)-1] + absInt(a.Charge)
		if sum > limit {
			return 0, errors.New(errors.ErrCodeMoleculeValence, errors.DefaultMessageForCode(errors.ErrCodeMoleculeValence)).
				WithDetail(fmt.Sprintf("atom=%d element=%s bonds=%d", i, a.Element.Symbol, sum))
		}
	}
	return a.Element.DefaultHydrogens(sum, a.Charge, a.Aromatic), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
