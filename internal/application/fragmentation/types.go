package fragmentation

import (
	"time"

	"github.com/turtacn/torsion-fragmenter/internal/domain/fragment"
	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// Input is one molecule to fragment.  Exactly one of Mol, SMILES and Molfile
// is read, in that order of preference.
type Input struct {
	Title   string
	SMILES  string
	Molfile string

	// Weights, when set, replace the bond weights of the parsed molecule.
	// One value per bond in input order.
	Weights []float64

	Mol *molecule.Molecule
}

// Options controls one fragmentation request.
type Options struct {
	Combinatorial   bool    `json:"combinatorial"`
	MaxRotors       int     `json:"max_rotors"`
	MinRotors       int     `json:"min_rotors"`
	Threshold       float64 `json:"threshold"`
	MaxCombinations int     `json:"max_combinations"`
	Depict          bool    `json:"depict"`
}

// DefaultOptions enables combinations with the default rotor budget.
func DefaultOptions() Options {
	return Options{
		Combinatorial: true,
		MaxRotors:     fragment.DefaultMaxRotors,
		MinRotors:     fragment.DefaultMinRotors,
		Threshold:     fragment.DefaultThreshold,
	}
}

func (o Options) normalize() (Options, error) {
	if o.MaxRotors == 0 {
		o.MaxRotors = fragment.DefaultMaxRotors
	}
	if o.MinRotors == 0 {
		o.MinRotors = fragment.DefaultMinRotors
	}
	if o.Threshold == 0 {
		o.Threshold = fragment.DefaultThreshold
	}
	if o.MinRotors < 0 || o.MaxRotors < o.MinRotors {
		return o, errors.New(errors.ErrCodeFragInvalidBudget, errors.DefaultMessageForCode(errors.ErrCodeFragInvalidBudget))
	}
	if o.Threshold < 0 {
		return o, errors.New(errors.ErrCodeFragInvalidThreshold, errors.DefaultMessageForCode(errors.ErrCodeFragInvalidThreshold))
	}
	return o, nil
}

// Report is the output of Generate.
type Report struct {
	Provenance Provenance `json:"provenance"`

	// Fragments maps each parent's canonical SMILES to its fragment SMILES.
	Fragments map[string][]string `json:"fragments"`

	Skipped []fragment.Skip   `json:"skipped,omitempty"`
	Results []fragment.Result `json:"molecules,omitempty"`
}

// CutResult is the output of Cut.
type CutResult struct {
	Title        string   `json:"title"`
	ParentSMILES string   `json:"parent_smiles"`
	Threshold    float64  `json:"threshold"`
	Fragments    []string `json:"fragments"`
	Pieces       int      `json:"pieces"`
}

// Provenance records how a report was produced.
type Provenance struct {
	JobID                   string                 `json:"job_id"`
	Package                 string                 `json:"package"`
	Version                 string                 `json:"version"`
	Routine                 string                 `json:"routine"`
	CanonicalizationDetails map[string]interface{} `json:"canonicalization_details"`
	User                    string                 `json:"user"`
	RoutineOptions          map[string]interface{} `json:"routine_options"`
	WeightProvider          string                 `json:"weight_provider"`
	FunctionalGroups        string                 `json:"functional_groups"`
	CreatedAt               time.Time              `json:"created_at"`
}

// RotorBin holds the molecules that share a rotor count.
type RotorBin struct {
	Rotors    int
	Molecules []*molecule.Molecule
}
