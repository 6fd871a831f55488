package fragmentation

import (
	"context"
	"time"

	"github.com/turtacn/torsion-fragmenter/internal/domain/fragment"
	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
)

// ResultCache stores encoded per-molecule results.  A miss is (nil, false, nil).
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// ReportStore keeps report documents and depictions.  Both methods return the
// object key written.
type ReportStore interface {
	PutReport(ctx context.Context, jobID string, report []byte) (string, error)
	PutDepiction(ctx context.Context, jobID, name string, png []byte) (string, error)
}

// Depicter renders a molecule and its rotor fragments.
type Depicter interface {
	Render(mol *molecule.Molecule, frags fragment.FragmentMap) ([]byte, error)
}

// Metrics receives per-molecule observations.
type Metrics interface {
	ObserveMolecule(status, mode string, rotors, combinations, fragments int, d time.Duration)
	RecordCacheAccess(cache string, hit bool)
}

type nopMetrics struct{}

func (nopMetrics) ObserveMolecule(string, string, int, int, int, time.Duration) {}
func (nopMetrics) RecordCacheAccess(string, bool)                               {}
