package fragmentation

import (
	"bytes"
	"encoding/json"
	"os"
	"os/user"
	"sort"

	"github.com/turtacn/torsion-fragmenter/internal/domain/fragment"
	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

func (s *serviceImpl) provenance(jobID string, opts Options) Provenance {
	return Provenance{
		JobID:                   jobID,
		Package:                 PackageName,
		Version:                 s.version,
		Routine:                 routineGenerate,
		CanonicalizationDetails: s.encoder.Details(),
		User:                    currentUser(),
		RoutineOptions: map[string]interface{}{
			"combinatorial":    opts.Combinatorial,
			"max_rotors":       opts.MaxRotors,
			"min_rotors":       opts.MinRotors,
			"threshold":        opts.Threshold,
			"max_combinations": opts.MaxCombinations,
			"depict":           opts.Depict,
			"remove_map":       true,
		},
		WeightProvider:   s.weights.Name(),
		FunctionalGroups: s.library.Source(),
		CreatedAt:        s.now().UTC(),
	}
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

// MarshalIndent renders the report as indented JSON.  Map keys come out
// sorted, so equal reports produce equal documents.
func (r *Report) MarshalIndent() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(r); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode report")
	}
	return buf.Bytes(), nil
}

// Run converts the report into its stored form.
func (r *Report) Run() (*fragment.Run, error) {
	prov, err := json.Marshal(r.Provenance)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode provenance")
	}
	return &fragment.Run{
		JobID:      r.Provenance.JobID,
		CreatedAt:  r.Provenance.CreatedAt,
		Provenance: prov,
		Results:    r.Results,
		Skipped:    r.Skipped,
	}, nil
}

// SortByRotors groups molecules by rotatable bond count, fewest first.
// Input order is kept within a bin.
func SortByRotors(mols []*molecule.Molecule) []RotorBin {
	bins := map[int][]*molecule.Molecule{}
	for _, m := range mols {
		if m == nil {
			continue
		}
		n := m.NumRotors()
		bins[n] = append(bins[n], m)
	}
	out := make([]RotorBin, 0, len(bins))
	for n, ms := range bins {
		out = append(out, RotorBin{Rotors: n, Molecules: ms})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rotors < out[j].Rotors })
	return out
}
