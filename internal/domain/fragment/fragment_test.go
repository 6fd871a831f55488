package fragment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/torsion-fragmenter/internal/chem/smiles"
	"github.com/turtacn/torsion-fragmenter/internal/chem/wbo"
	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
)

// weighted parses s and attaches estimated bond weights.
func weighted(t *testing.T, s string) *molecule.Molecule {
	t.Helper()
	m := smiles.MustParse(s)
	out, err := m.WithWeights(wbo.Estimate(m))
	require.NoError(t, err)
	return out
}

// tagged parses s and tags it with the default library.
func tagged(t *testing.T, s string) (*molecule.Molecule, *Tags) {
	t.Helper()
	m := weighted(t, s)
	tags, err := TagMolecule(m, nil, DefaultOptions())
	require.NoError(t, err)
	return m, tags
}

func span(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestNewFragment_SortsAndDeduplicates(t *testing.T) {
	f := NewFragment([]int{3, 1, 3, 2}, []int{5, 5, 0})
	assert.Equal(t, []int{1, 2, 3}, f.Atoms)
	assert.Equal(t, []int{0, 5}, f.Bonds)
	assert.Equal(t, "1,2,3|0,5", f.Key())
	assert.True(t, f.HasAtom(2))
	assert.False(t, f.HasAtom(4))
	assert.True(t, f.HasBond(5))
}

func TestFragment_UnionAndClosed(t *testing.T) {
	m := weighted(t, "C1CCC1")
	a := NewFragment([]int{0, 1}, []int{0})
	b := NewFragment([]int{2, 3}, []int{2})

	u := a.Union(b)
	assert.Equal(t, []int{0, 1, 2, 3}, u.Atoms)
	assert.Equal(t, []int{0, 2}, u.Bonds)
	assert.Equal(t, span(0, 3), u.Closed(m).Bonds)
	assert.True(t, u.Equal(NewFragment([]int{3, 2, 1, 0}, []int{2, 0})))
}

func TestFragmentMap_OrderedByRotor(t *testing.T) {
	fm := FragmentMap{
		7: NewFragment([]int{7}, nil),
		2: NewFragment([]int{2}, nil),
	}
	assert.Equal(t, []int{2, 7}, fm.Rotors())
	assert.Equal(t, []int{2}, fm.List()[0].Atoms)
}
