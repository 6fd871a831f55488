// Package fragment holds the wire types of the fragmenter API.  They are
// shared by the HTTP, gRPC and Kafka surfaces and by pkg/client.
package fragment

import "time"

// MaxMoleculesPerRequest bounds a single fragmentation request.
const MaxMoleculesPerRequest = 1000

// MoleculeInput is one molecule in a request.  SMILES wins over Molfile
// when both are set.
type MoleculeInput struct {
	Title   string    `json:"title,omitempty"`
	SMILES  string    `json:"smiles,omitempty"`
	Molfile string    `json:"molfile,omitempty"`
	WBO     []float64 `json:"wbo,omitempty"`
}

// Options overrides the server defaults field by field.
type Options struct {
	Combinatorial   *bool    `json:"combinatorial,omitempty"`
	MaxRotors       *int     `json:"max_rotors,omitempty"`
	MinRotors       *int     `json:"min_rotors,omitempty"`
	Threshold       *float64 `json:"threshold,omitempty"`
	MaxCombinations *int     `json:"max_combinations,omitempty"`
	Depict          *bool    `json:"depict,omitempty"`
}

// FragmentRequest is the body of POST /api/v1/fragment and the payload of a
// fragmentation.requested event.
type FragmentRequest struct {
	RequestID string          `json:"request_id,omitempty"`
	Molecules []MoleculeInput `json:"molecules"`
	Options   *Options        `json:"options,omitempty"`
}

// CutRequest is the body of POST /api/v1/cut.
type CutRequest struct {
	Title     string    `json:"title,omitempty"`
	SMILES    string    `json:"smiles"`
	WBO       []float64 `json:"wbo,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
}

type CutResponse struct {
	Title        string   `json:"title"`
	ParentSMILES string   `json:"parent_smiles"`
	Threshold    float64  `json:"threshold"`
	Fragments    []string `json:"fragments"`
	Pieces       int      `json:"pieces"`
}

// FragmentRecord is one unique fragment of a parent.
type FragmentRecord struct {
	SMILES       string `json:"smiles"`
	Atoms        []int  `json:"atoms"`
	Bonds        []int  `json:"bonds"`
	RotorBonds   []int  `json:"rotor_bonds,omitempty"`
	Seed         int    `json:"seed"`
	Multiplicity int    `json:"multiplicity"`
}

type MoleculeResult struct {
	Title        string           `json:"title"`
	ParentSMILES string           `json:"parent_smiles"`
	Rotors       []int            `json:"rotors"`
	Combinations int              `json:"combinations"`
	Cached       bool             `json:"cached,omitempty"`
	Depiction    string           `json:"depiction,omitempty"`
	Fragments    []FragmentRecord `json:"fragments"`
}

type SkippedMolecule struct {
	Title  string `json:"title"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// FragmentResponse mirrors the provenance report.
type FragmentResponse struct {
	Provenance map[string]interface{} `json:"provenance"`
	Fragments  map[string][]string    `json:"fragments"`
	Skipped    []SkippedMolecule      `json:"skipped,omitempty"`
	Molecules  []MoleculeResult       `json:"molecules,omitempty"`
}

// RunSummary is a stored run as listed by GET /api/v1/runs.
type RunSummary struct {
	JobID     string    `json:"job_id"`
	CreatedAt time.Time `json:"created_at"`
	Skipped   int       `json:"skipped"`
}

// RunResponse is a stored run with its results.
type RunResponse struct {
	JobID      string                 `json:"job_id"`
	CreatedAt  time.Time              `json:"created_at"`
	Provenance map[string]interface{} `json:"provenance,omitempty"`
	Molecules  []MoleculeResult       `json:"molecules"`
	Skipped    []SkippedMolecule      `json:"skipped,omitempty"`
}

type LineageResponse struct {
	ParentSMILES string   `json:"parent_smiles"`
	Fragments    []string `json:"fragments"`
}

// ReportURLResponse carries a time limited download link for a stored report.
type ReportURLResponse struct {
	JobID string `json:"job_id"`
	URL   string `json:"url"`
}

// JobResult is the payload of fragmentation.completed and
// fragmentation.failed events.
type JobResult struct {
	RequestID string            `json:"request_id"`
	JobID     string            `json:"job_id,omitempty"`
	Report    *FragmentResponse `json:"report,omitempty"`
	Error     *ErrorBody        `json:"error,omitempty"`
}

// ErrorBody is the error part of every failed response.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
