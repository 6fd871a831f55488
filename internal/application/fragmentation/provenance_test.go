package fragmentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/torsion-fragmenter/internal/chem/smiles"
	"github.com/turtacn/torsion-fragmenter/internal/domain/fragment"
	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
)

func TestSortByRotors(t *testing.T) {
	mols := []*molecule.Molecule{
		smiles.MustParse("CCCCc1ccccc1"),
		smiles.MustParse("c1ccccc1"),
		smiles.MustParse("CCCC"),
		nil,
		smiles.MustParse("CCO"),
	}
	bins := SortByRotors(mols)
	require.Len(t, bins, 3)

	assert.Equal(t, 0, bins[0].Rotors)
	assert.Equal(t, []*molecule.Molecule{mols[1], mols[4]}, bins[0].Molecules)
	assert.Equal(t, 1, bins[1].Rotors)
	assert.Equal(t, 3, bins[2].Rotors)
}

func TestReport_Run(t *testing.T) {
	r := &Report{
		Provenance: Provenance{JobID: "job"},
		Results:    []fragment.Result{{Title: "x"}},
		Skipped:    []fragment.Skip{{Title: "y", Code: "FRAG_001"}},
	}
	run, err := r.Run()
	require.NoError(t, err)
	assert.Equal(t, "job", run.JobID)
	assert.Contains(t, string(run.Provenance), `"job_id":"job"`)
	assert.Len(t, run.Results, 1)
	assert.Len(t, run.Skipped, 1)
}

func TestOptionsNormalize(t *testing.T) {
	o, err := Options{}.normalize()
	require.NoError(t, err)
	assert.Equal(t, fragment.DefaultMaxRotors, o.MaxRotors)
	assert.Equal(t, fragment.DefaultMinRotors, o.MinRotors)
	assert.Equal(t, fragment.DefaultThreshold, o.Threshold)

	_, err = Options{Threshold: -0.5}.normalize()
	assert.Error(t, err)
}
