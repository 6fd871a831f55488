// Package dto converts between the wire types in pkg/types/fragment and the
// fragmentation service.
package dto

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/turtacn/torsion-fragmenter/internal/application/fragmentation"
	"github.com/turtacn/torsion-fragmenter/internal/domain/fragment"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
	types "github.com/turtacn/torsion-fragmenter/pkg/types/fragment"
)

// ValidateFragmentRequest checks molecule count and that each molecule has a
// structure.
func ValidateFragmentRequest(req *types.FragmentRequest) error {
	if req == nil || len(req.Molecules) == 0 {
		return errors.New(errors.ErrCodeFragNoMolecules, errors.DefaultMessageForCode(errors.ErrCodeFragNoMolecules))
	}
	if len(req.Molecules) > types.MaxMoleculesPerRequest {
		return errors.Newf(errors.ErrCodeValidation, "at most %d molecules per request, got %d",
			types.MaxMoleculesPerRequest, len(req.Molecules))
	}
	for i, m := range req.Molecules {
		if strings.TrimSpace(m.SMILES) == "" && strings.TrimSpace(m.Molfile) == "" {
			return errors.New(errors.ErrCodeValidation, "molecule has neither smiles nor molfile").
				WithDetail(fmt.Sprintf("molecules[%d]", i))
		}
	}
	return nil
}

func ToInputs(in []types.MoleculeInput) []fragmentation.Input {
	out := make([]fragmentation.Input, len(in))
	for i, m := range in {
		out[i] = fragmentation.Input{
			Title:   m.Title,
			SMILES:  m.SMILES,
			Molfile: m.Molfile,
			Weights: m.WBO,
		}
	}
	return out
}

// MergeOptions applies the fields set in o over base.
func MergeOptions(base fragmentation.Options, o *types.Options) fragmentation.Options {
	if o == nil {
		return base
	}
	if o.Combinatorial != nil {
		base.Combinatorial = *o.Combinatorial
	}
	if o.MaxRotors != nil {
		base.MaxRotors = *o.MaxRotors
	}
	if o.MinRotors != nil {
		base.MinRotors = *o.MinRotors
	}
	if o.Threshold != nil {
		base.Threshold = *o.Threshold
	}
	if o.MaxCombinations != nil {
		base.MaxCombinations = *o.MaxCombinations
	}
	if o.Depict != nil {
		base.Depict = *o.Depict
	}
	return base
}

func FromReport(r *fragmentation.Report) *types.FragmentResponse {
	if r == nil {
		return nil
	}
	return &types.FragmentResponse{
		Provenance: provenanceMap(r.Provenance),
		Fragments:  r.Fragments,
		Skipped:    fromSkips(r.Skipped),
		Molecules:  fromResults(r.Results),
	}
}

func provenanceMap(p fragmentation.Provenance) map[string]interface{} {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return rawMap(raw)
}

func rawMap(raw []byte) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func FromResult(r *fragment.Result) types.MoleculeResult {
	recs := make([]types.FragmentRecord, len(r.Fragments))
	for i, f := range r.Fragments {
		recs[i] = types.FragmentRecord{
			SMILES:       f.SMILES,
			Atoms:        f.Atoms,
			Bonds:        f.Bonds,
			RotorBonds:   f.RotorBonds,
			Seed:         f.Seed,
			Multiplicity: f.Multiplicity,
		}
	}
	return types.MoleculeResult{
		Title:        r.Title,
		ParentSMILES: r.ParentSMILES,
		Rotors:       r.Rotors,
		Combinations: r.Combinations,
		Cached:       r.Cached,
		Depiction:    r.Depiction,
		Fragments:    recs,
	}
}

func fromResults(rs []fragment.Result) []types.MoleculeResult {
	if len(rs) == 0 {
		return nil
	}
	out := make([]types.MoleculeResult, len(rs))
	for i := range rs {
		out[i] = FromResult(&rs[i])
	}
	return out
}

func fromSkips(ss []fragment.Skip) []types.SkippedMolecule {
	if len(ss) == 0 {
		return nil
	}
	out := make([]types.SkippedMolecule, len(ss))
	for i, s := range ss {
		out[i] = types.SkippedMolecule{Title: s.Title, Code: s.Code, Reason: s.Reason}
	}
	return out
}

func FromCut(c *fragmentation.CutResult) *types.CutResponse {
	return &types.CutResponse{
		Title:        c.Title,
		ParentSMILES: c.ParentSMILES,
		Threshold:    c.Threshold,
		Fragments:    c.Fragments,
		Pieces:       c.Pieces,
	}
}

func FromRun(r *fragment.Run) *types.RunResponse {
	mols := fromResults(r.Results)
	if mols == nil {
		mols = []types.MoleculeResult{}
	}
	return &types.RunResponse{
		JobID:      r.JobID,
		CreatedAt:  r.CreatedAt,
		Provenance: rawMap(r.Provenance),
		Molecules:  mols,
		Skipped:    fromSkips(r.Skipped),
	}
}

func Summarize(runs []*fragment.Run) []types.RunSummary {
	out := make([]types.RunSummary, 0, len(runs))
	for _, r := range runs {
		out = append(out, types.RunSummary{
			JobID:     r.JobID,
			CreatedAt: r.CreatedAt,
			Skipped:   len(r.Skipped),
		})
	}
	return out
}

// ErrorBody renders err for a response.  Errors outside the client range
// keep their code but get a generic message.
func ErrorBody(err error, requestID string) types.ErrorBody {
	code := errors.GetCode(err)
	body := types.ErrorBody{Code: string(code), RequestID: requestID}
	var ae *errors.AppError
	if !errors.As(err, &ae) {
		body.Code = string(errors.ErrCodeInternal)
		body.Message = errors.DefaultMessageForCode(errors.ErrCodeInternal)
		return body
	}
	if errors.IsClientError(code) {
		body.Message = ae.Message
		body.Detail = ae.Detail
	} else {
		body.Message = errors.DefaultMessageForCode(code)
	}
	return body
}
