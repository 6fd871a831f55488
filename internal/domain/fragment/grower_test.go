package fragment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/torsion-fragmenter/internal/chem/smiles"
	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

func grow(t *testing.T, mol *molecule.Molecule, tags *Tags, rotor int) Fragment {
	t.Helper()
	f, err := BuildFragment(rotor, mol, tags, DefaultOptions())
	require.NoError(t, err)
	return f
}

func TestBuildFragment_StopsAtIsolatingBonds(t *testing.T) {
	// C0-C1-C2-C3-phenyl(4-9); rotors 1, 2, 3
	m, tags := tagged(t, "CCCCc1ccccc1")
	require.Equal(t, []int{1, 2, 3}, m.Rotors())

	f := grow(t, m, tags, 1)
	assert.Equal(t, []int{0, 1, 2, 3}, f.Atoms)
	assert.Equal(t, []int{0, 1, 2}, f.Bonds)

	f = grow(t, m, tags, 2)
	assert.Equal(t, span(1, 9), f.Atoms)
	assert.Equal(t, span(1, 9), f.Bonds)

	f = grow(t, m, tags, 3)
	assert.Equal(t, span(2, 9), f.Atoms)
	assert.Equal(t, span(2, 9), f.Bonds)
}

func TestBuildFragment_KeepsWholeRingWithMethyl(t *testing.T) {
	// propyl chain on a ring that also carries a methyl; rotor 2 joins
	// chain and ring
	m, tags := tagged(t, "CCCc1ccccc1C")
	f := grow(t, m, tags, 2)

	ring := tags.Rings[0]
	require.Equal(t, span(3, 8), ring.Atoms)
	for _, a := range ring.Atoms {
		assert.True(t, f.HasAtom(a), "ring atom %d", a)
	}
	for _, b := range ring.Bonds {
		assert.True(t, f.HasBond(b), "ring bond %d", b)
	}
	assert.True(t, f.HasAtom(9), "methyl joined by a non-rotatable bond")
	assert.Equal(t, span(1, 9), f.Atoms)
	assert.Equal(t, span(1, 9), f.Bonds)
}

func TestBuildFragment_OrthoSubstituent(t *testing.T) {
	t.Run("ortho ethyl keeps its first carbon", func(t *testing.T) {
		m, tags := tagged(t, "CCCc1ccccc1CC")
		f := grow(t, m, tags, 2)
		assert.True(t, f.HasAtom(9))
		assert.True(t, f.HasBond(9))
		assert.False(t, f.HasAtom(10))
	})

	t.Run("meta ethyl is dropped", func(t *testing.T) {
		// ring atoms 3-7 and 10; ethyl 8-9 hangs off atom 7
		m, tags := tagged(t, "CCCc1cccc(CC)c1")
		f := grow(t, m, tags, 2)
		assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 10}, f.Atoms)
		assert.False(t, f.HasBond(7))
	})

	// rotor 1 sits one bond away from the ring; substituents are judged
	// against the acyclic bond linking the rotor to the ring
	t.Run("ortho to the linking bond", func(t *testing.T) {
		m, tags := tagged(t, "CCCc1ccccc1CC")
		f := grow(t, m, tags, 1)
		assert.True(t, f.HasAtom(9))
		assert.True(t, f.HasBond(9))
		assert.Equal(t, span(0, 9), f.Atoms)
	})

	t.Run("meta to the linking bond", func(t *testing.T) {
		m, tags := tagged(t, "CCCc1cccc(CC)c1")
		f := grow(t, m, tags, 1)
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 10}, f.Atoms)
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 9, 10}, f.Bonds)
		assert.False(t, f.HasBond(7))
	})
}

func TestBuildFragment_ConjugationCrossesBonds(t *testing.T) {
	// styrene-like chain: the ring reaches through the conjugated C=C
	m, tags := tagged(t, "CCC/C=C/c1ccccc1")
	// rotor between the sp3 carbon and the alkene
	f := grow(t, m, tags, 2)
	assert.Equal(t, span(1, 10), f.Atoms)
	assert.False(t, f.HasAtom(0))
}

func TestBuildFragment_Properties(t *testing.T) {
	for _, s := range []string{
		"CCCCc1ccccc1",
		"CC(=O)Nc1ccc(O)cc1",
		"c1ccccc1-c1ccccc1",
		"CC(C)Cc1ccc(cc1)C(C)C(=O)O",
		"O=C(NCc1ccccc1)C1CCN(C)CC1",
	} {
		t.Run(s, func(t *testing.T) {
			m, tags := tagged(t, s)
			fm, err := BuildFragmentMap(m, tags, DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, m.Rotors(), fm.Rotors())

			for rotor, f := range fm {
				b := m.Bond(rotor)
				assert.True(t, f.HasBond(rotor))
				assert.True(t, f.HasAtom(b.Begin))
				assert.True(t, f.HasAtom(b.End))
				for _, ring := range tags.Rings {
					n := 0
					for _, a := range ring.Atoms {
						if f.HasAtom(a) {
							n++
						}
					}
					assert.Contains(t, []int{0, len(ring.Atoms)}, n, "rotor %d cuts ring %d", rotor, ring.ID)
				}
				for _, bi := range f.Bonds {
					bd := m.Bond(bi)
					assert.True(t, f.HasAtom(bd.Begin) && f.HasAtom(bd.End), "bond %d dangles", bi)
				}
			}
		})
	}
}

func TestBuildFragmentMap_NoRotors(t *testing.T) {
	m, tags := tagged(t, "c1ccccc1")
	fm, err := BuildFragmentMap(m, tags, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, fm)
}

func TestBuildFragment_Errors(t *testing.T) {
	m, tags := tagged(t, "CCCC")

	_, err := BuildFragment(0, m, tags, DefaultOptions())
	assert.True(t, errors.IsCode(err, errors.ErrCodeFragNotRotor))

	_, err = BuildFragment(9, m, tags, DefaultOptions())
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeBondIndex))

	_, err = BuildFragment(1, m, nil, DefaultOptions())
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	bare := smiles.MustParse("CCCC")
	_, err = BuildFragment(1, bare, tags, DefaultOptions())
	assert.True(t, errors.IsCode(err, errors.ErrCodeFragMissingBondOrder))
	_, err = BuildFragmentMap(bare, tags, DefaultOptions())
	assert.ErrorIs(t, err, errors.ErrMissingBondOrder)

	_, err = BuildFragment(1, nil, tags, DefaultOptions())
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeEmpty))
	_, err = BuildFragmentMap(nil, tags, DefaultOptions())
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeEmpty))
}
