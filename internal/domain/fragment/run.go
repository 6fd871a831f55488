package fragment

import (
	"context"
	"encoding/json"
	"time"
)

// Run is one persisted fragmentation job.
type Run struct {
	JobID      string          `json:"job_id"`
	CreatedAt  time.Time       `json:"created_at"`
	Provenance json.RawMessage `json:"provenance"`
	Results    []Result        `json:"molecules"`
	Skipped    []Skip          `json:"skipped,omitempty"`
}

// Result is the outcome for one parent molecule.
type Result struct {
	Title        string   `json:"title"`
	ParentSMILES string   `json:"parent_smiles"`
	Rotors       []int    `json:"rotors"`
	Combinations int      `json:"combinations"`
	Fragments    []Record `json:"fragments"`
	Cached       bool     `json:"cached,omitempty"`
	Depiction    string   `json:"depiction,omitempty"`
}

// SMILES lists the fragment encodings in first-appearance order.
func (r Result) SMILES() []string {
	out := make([]string, len(r.Fragments))
	for i, f := range r.Fragments {
		out[i] = f.SMILES
	}
	return out
}

// Record is one unique fragment of a parent.  Atoms and Bonds index the
// parent and belong to the first fragment seen with this encoding.
type Record struct {
	SMILES string `json:"smiles"`
	Atoms  []int  `json:"atoms"`
	Bonds  []int  `json:"bonds"`

	// RotorBonds are the parent rotors inside the fragment.
	RotorBonds []int `json:"rotor_bonds"`

	// Seed is the rotor a base fragment was grown from, -1 for a combination.
	Seed int `json:"seed"`

	// Multiplicity counts the fragments that share this encoding.
	Multiplicity int `json:"multiplicity"`
}

// Skip names a molecule that produced no fragments.
type Skip struct {
	Title  string `json:"title"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// RunRepository persists runs.  Get returns a FRAG_005 error for an unknown
// job id.
type RunRepository interface {
	Save(ctx context.Context, run *Run) error
	Get(ctx context.Context, jobID string) (*Run, error)
	List(ctx context.Context, limit int) ([]*Run, error)
}

// LineageGraph records which fragments a parent produced in which run.
type LineageGraph interface {
	RecordLineage(ctx context.Context, run *Run) error
	// FragmentsOf returns the fragment encodings recorded for a parent.
	FragmentsOf(ctx context.Context, parentSMILES string) ([]string, error)
}
