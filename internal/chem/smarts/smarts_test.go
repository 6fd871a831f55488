package smarts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/torsion-fragmenter/internal/chem/smiles"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

func TestCompile_Errors(t *testing.T) {
	for _, s := range []string{"", "C(", "[$(CC)]", "[C", "C1C", "Q", "[r5]", "C=", "[#]", "[]"} {
		_, err := Compile(s)
		assert.Error(t, err, s)
		assert.True(t, errors.IsCode(err, errors.ErrCodeChemPatternCompile), s)
	}
}

func TestCompile_Shape(t *testing.T) {
	p := MustCompile("[#7][#6](=[#8])")
	assert.Equal(t, 3, p.NumAtoms())
	assert.Equal(t, 2, p.NumBonds())
	assert.Equal(t, "[#7][#6](=[#8])", p.String())
}

func TestFindAll_AmideReportsAtomsAndBonds(t *testing.T) {
	m := smiles.MustParse("CC(=O)NC")
	matches := MustCompile("[#7][#6](=[#8])").FindAll(m)
	require.Len(t, matches, 1)
	assert.Equal(t, []int{3, 1, 2}, matches[0].Atoms)
	assert.Equal(t, []int{2, 1}, matches[0].Bonds)
}

func TestFindAll_UniqueByAtomSet(t *testing.T) {
	m := smiles.MustParse("CCC")
	matches := MustCompile("CC").FindAll(m)
	assert.Len(t, matches, 2)
}

func TestFindAll_Counts(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		smiles  string
		want    int
	}{
		{"aromatic carbon", "c", "Cc1ccccc1", 6},
		{"aliphatic carbon", "C", "Cc1ccccc1", 1},
		{"any aromatic", "a", "c1ccncc1", 6},
		{"aromatic nitrogen", "n", "c1ccncc1", 1},
		{"ring atoms", "[R]", "CC1CCCCC1", 6},
		{"chain atoms", "[!R]", "CC1CCCCC1", 1},
		{"ring bond", "C@C", "CC1CCCCC1", 6},
		{"any bond", "C~O", "CC(=O)OC", 3},
		{"carbonyl", "[CX3]=[OX1]", "CC(C)=O", 1},
		{"methyl", "[CH3]", "CCO", 1},
		{"hydroxyl", "[OX2H]", "CCO", 1},
		{"halogen or", "[Cl,Br]", "ClCCBr", 2},
		{"low and", "[C,N;H2]", "NCCO", 3},
		{"nitro", "[N+](=O)[O-]", "C[N+](=O)[O-]", 1},
		{"degree", "[CD3]", "CC(C)CO", 1},
		{"nitrile", "C#N", "CCC#N", 1},
		{"no match", "S", "CCO", 0},
		{"ring closure", "C1CCCCC1", "C1CCCCC1", 1},
		{"disconnected", "O.O", "OCCO", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := smiles.MustParse(tc.smiles)
			assert.Len(t, MustCompile(tc.pattern).FindAll(m), tc.want)
		})
	}
}

func TestFindAll_DefaultBondIsSingleOrAromatic(t *testing.T) {
	p := MustCompile("cc")
	assert.True(t, p.Matches(smiles.MustParse("c1ccccc1")))

	single := MustCompile("C-C")
	assert.False(t, single.Matches(smiles.MustParse("C=C")))
	assert.False(t, MustCompile("c-c").Matches(smiles.MustParse("c1ccccc1")))
	assert.True(t, MustCompile("c-c").Matches(smiles.MustParse("c1ccccc1-c1ccccc1")))
}

func TestMatches_StopsEarly(t *testing.T) {
	m := smiles.MustParse("CCCCCCCC")
	p := MustCompile("C")
	assert.True(t, p.Matches(m))
	assert.Len(t, p.FindAll(m), 8)
}
