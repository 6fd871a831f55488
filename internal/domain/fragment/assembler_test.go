package fragment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// butane with all three bonds forced rotatable.
func rotorChain(t *testing.T) *molecule.Molecule {
	t.Helper()
	b := molecule.NewBuilder("chain").SkipPerception()
	for i := 0; i < 4; i++ {
		b.AddAtom("C")
	}
	for i := 0; i < 3; i++ {
		bi := b.AddBond(i, i+1, 1)
		b.SetRotor(bi, true).SetWeight(bi, 1.0)
	}
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func bondFragments(m *molecule.Molecule) []Fragment {
	out := make([]Fragment, m.NumBonds())
	for i, b := range m.Bonds() {
		out[i] = NewFragment([]int{b.Begin, b.End}, []int{b.Index})
	}
	return out
}

func TestAssembleCombinations_AdjacentPairs(t *testing.T) {
	m := rotorChain(t)
	got, err := AssembleCombinations(m, bondFragments(m), DefaultMaxRotors, DefaultMinRotors, DefaultOptions())
	require.NoError(t, err)

	require.Len(t, got, 5)
	for i, f := range bondFragments(m) {
		assert.Equal(t, f, got[i])
	}
	assert.Equal(t, NewFragment([]int{0, 1, 2}, []int{0, 1}), got[3])
	assert.Equal(t, NewFragment([]int{1, 2, 3}, []int{1, 2}), got[4])
}

func TestAssembleCombinations_BudgetAndConnectivity(t *testing.T) {
	m, tags := tagged(t, "CCCCc1ccccc1")
	fm, err := BuildFragmentMap(m, tags, DefaultOptions())
	require.NoError(t, err)
	base := fm.List()

	t.Run("two rotors", func(t *testing.T) {
		got, err := AssembleCombinations(m, base, 2, 1, DefaultOptions())
		require.NoError(t, err)
		// the middle fragment already holds three rotors and is kept as a base
		assert.Equal(t, base, got)
	})

	t.Run("three rotors", func(t *testing.T) {
		got, err := AssembleCombinations(m, base, 3, 1, DefaultOptions())
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, span(0, 9), got[3].Atoms)
		assert.Equal(t, span(0, 9), got[3].Bonds)
	})

	t.Run("every combination within budget", func(t *testing.T) {
		got, err := AssembleCombinations(m, base, 3, 3, DefaultOptions())
		require.NoError(t, err)
		combos := got[len(base):]
		require.NotEmpty(t, combos)
		for _, f := range combos {
			assert.Equal(t, 3, f.Rotors(m))
			assert.Equal(t, f, f.Closed(m))
		}
	})
}

// fragmentsTouch reports whether x and y share an atom or are joined by a
// bond of m.
func fragmentsTouch(m *molecule.Molecule, x, y Fragment) bool {
	for _, a := range x.Atoms {
		if y.HasAtom(a) {
			return true
		}
	}
	for _, b := range m.Bonds() {
		if x.HasAtom(b.Begin) && y.HasAtom(b.End) || x.HasAtom(b.End) && y.HasAtom(b.Begin) {
			return true
		}
	}
	return false
}

// exhaustiveCombinations checks every subset of base and returns the keys
// AssembleCombinations must produce: the base fragments plus each connected
// subset whose closed union holds between minRotors and maxRotors rotors.
func exhaustiveCombinations(m *molecule.Molecule, base []Fragment, maxRotors, minRotors int) map[string]bool {
	want := map[string]bool{}
	for _, f := range base {
		want[f.Key()] = true
	}
	n := len(base)
	for mask := 1; mask < 1<<n; mask++ {
		var members []int
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				members = append(members, i)
			}
		}
		uf := newUnionFind(len(members))
		for i := range members {
			for j := i + 1; j < len(members); j++ {
				if fragmentsTouch(m, base[members[i]], base[members[j]]) {
					uf.union(i, j)
				}
			}
		}
		connected := true
		for i := range members {
			if uf.find(i) != uf.find(0) {
				connected = false
				break
			}
		}
		if !connected {
			continue
		}
		u := base[members[0]]
		for _, i := range members[1:] {
			u = u.Union(base[i])
		}
		u = u.Closed(m)
		if r := u.Rotors(m); r >= minRotors && r <= maxRotors {
			want[u.Key()] = true
		}
	}
	return want
}

func TestAssembleCombinations_MatchesExhaustiveSearch(t *testing.T) {
	molecules := []string{
		"CCCCCCCCCC",
		"CC(C)CC(C)CC(C)CC",
		"CCCC(CCC)C(CCC)CCC",
	}
	budgets := []struct{ max, min int }{{2, 1}, {3, 1}, {4, 2}}

	combined := 0
	for _, s := range molecules {
		m, tags := tagged(t, s)
		fm, err := BuildFragmentMap(m, tags, DefaultOptions())
		require.NoError(t, err)
		base := fm.List()
		require.NotEmpty(t, base, s)

		for _, b := range budgets {
			got, err := AssembleCombinations(m, base, b.max, b.min, DefaultOptions())
			require.NoError(t, err, "%s max=%d min=%d", s, b.max, b.min)
			want := exhaustiveCombinations(m, base, b.max, b.min)

			require.GreaterOrEqual(t, len(got), len(base))
			assert.Equal(t, base, got[:len(base)])
			keys := map[string]bool{}
			for _, f := range base {
				keys[f.Key()] = true
			}
			for _, f := range got[len(base):] {
				assert.False(t, keys[f.Key()], "%s max=%d min=%d: duplicate %s", s, b.max, b.min, f.Key())
				keys[f.Key()] = true
			}
			assert.Equal(t, want, keys, "%s max=%d min=%d", s, b.max, b.min)

			for _, f := range got[len(base):] {
				r := f.Rotors(m)
				assert.True(t, r >= b.min && r <= b.max, "%s: %d rotors outside [%d,%d]", s, r, b.min, b.max)
			}
			combined += len(got) - len(base)
		}
	}
	require.Greater(t, combined, 0)
}

func TestAssembleCombinations_DisconnectedFragmentsNeverCombine(t *testing.T) {
	b := molecule.NewBuilder("split").SkipPerception()
	for i := 0; i < 6; i++ {
		b.AddAtom("C")
	}
	for _, pair := range [][2]int{{0, 1}, {1, 2}, {3, 4}, {4, 5}} {
		bi := b.AddBond(pair[0], pair[1], 1)
		b.SetRotor(bi, true).SetWeight(bi, 1.0)
	}
	m, err := b.Build()
	require.NoError(t, err)

	frags := []Fragment{
		NewFragment([]int{0, 1}, []int{0}),
		NewFragment([]int{4, 5}, []int{3}),
	}
	got, err := AssembleCombinations(m, frags, 4, 1, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, frags, got)
}

func TestAssembleCombinations_Errors(t *testing.T) {
	m := rotorChain(t)

	_, err := AssembleCombinations(m, bondFragments(m), 1, 2, DefaultOptions())
	assert.True(t, errors.IsCode(err, errors.ErrCodeFragInvalidBudget))

	_, err = AssembleCombinations(m, bondFragments(m), 2, -1, DefaultOptions())
	assert.True(t, errors.IsCode(err, errors.ErrCodeFragInvalidBudget))

	_, err = AssembleCombinations(nil, nil, 2, 1, DefaultOptions())
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeEmpty))

	opts := DefaultOptions()
	opts.MaxCombinations = 1
	_, err = AssembleCombinations(m, bondFragments(m), 2, 1, opts)
	assert.ErrorIs(t, err, errors.ErrCombinationLimit)

	opts.MaxCombinations = 2
	got, err := AssembleCombinations(m, bondFragments(m), 2, 1, opts)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestAssembleCombinations_Empty(t *testing.T) {
	m := rotorChain(t)
	got, err := AssembleCombinations(m, nil, 2, 1, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, got)
}
