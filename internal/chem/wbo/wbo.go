// Package wbo supplies the per-bond weights (Wiberg bond orders) the fragment
// grower uses to decide which bonds conjugate.
//
// The weights normally come with the input: an SD data field or a request
// payload.  Estimator is a topological stand-in for molecules that arrive
// without them; it is not a quantum-chemical calculation.
package wbo

import (
	"context"
	"strconv"
	"strings"

	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// Provider attaches bond weights to a molecule.
type Provider interface {
	// Name identifies the provider in provenance records.
	Name() string
	// Assign returns a copy of mol with one weight per bond.
	Assign(ctx context.Context, mol *molecule.Molecule) (*molecule.Molecule, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Passthrough
// ─────────────────────────────────────────────────────────────────────────────

// Existing keeps the weights already on the molecule and fails when any is
// missing.
type Existing struct{}

func (Existing) Name() string { return "input" }

func (Existing) Assign(_ context.Context, mol *molecule.Molecule) (*molecule.Molecule, error) {
	if missing := mol.MissingWeights(); len(missing) > 0 {
		return nil, errors.New(errors.ErrCodeFragMissingBondOrder, errors.DefaultMessageForCode(errors.ErrCodeFragMissingBondOrder)).
			WithDetail(mol.Title + ": bonds " + joinInts(missing))
	}
	return mol, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SD tag
// ─────────────────────────────────────────────────────────────────────────────

// SDTag reads weights from a whitespace separated SD data field.
type SDTag struct {
	Tag string
}

func (p SDTag) Name() string { return "sdtag:" + p.Tag }

func (p SDTag) Assign(_ context.Context, mol *molecule.Molecule) (*molecule.Molecule, error) {
	raw, ok := mol.Data(p.Tag)
	if !ok {
		if mol.HasAllWeights() {
			return mol, nil
		}
		return nil, errors.New(errors.ErrCodeFragMissingBondOrder, errors.DefaultMessageForCode(errors.ErrCodeFragMissingBondOrder)).
			WithDetail(mol.Title + ": no " + p.Tag + " field")
	}
	fields := strings.Fields(raw)
	w := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMoleculeInvalidFormat, "parse bond weight").WithDetail(f)
		}
		w[i] = v
	}
	return mol.WithWeights(w)
}

// ─────────────────────────────────────────────────────────────────────────────
// Estimator
// ─────────────────────────────────────────────────────────────────────────────

// Estimated weights per bond class.
const (
	AromaticWeight   = 1.45
	DoubleWeight     = 1.95
	TripleWeight     = 2.85
	ConjugatedWeight = 1.30
	LonePairWeight   = 1.15
	SingleWeight     = 0.98
)

// Estimator derives weights from the bond graph alone.  A single bond between
// two atoms that each carry a multiple or aromatic bond is conjugated; a single
// bond from such an atom to N, O or S with a lone pair gets a smaller boost;
// every other single bond reads 0.98.
type Estimator struct {
	// Overwrite replaces weights already present on the molecule.
	Overwrite bool
}

func (Estimator) Name() string { return "estimator" }

func (e Estimator) Assign(_ context.Context, mol *molecule.Molecule) (*molecule.Molecule, error) {
	if !e.Overwrite && mol.HasAllWeights() {
		return mol, nil
	}
	return mol.WithWeights(Estimate(mol))
}

// Estimate returns one estimated weight per bond.
func Estimate(mol *molecule.Molecule) []float64 {
	pi := make([]bool, mol.NumAtoms())
	for _, b := range mol.Bonds() {
		if b.Aromatic || b.Order > 1 {
			pi[b.Begin] = true
			pi[b.End] = true
		}
	}
	out := make([]float64, mol.NumBonds())
	for i, b := range mol.Bonds() {
		switch {
		case b.Aromatic:
			out[i] = AromaticWeight
		case b.Order == 3:
			out[i] = TripleWeight
		case b.Order == 2:
			out[i] = DoubleWeight
		case pi[b.Begin] && pi[b.End]:
			out[i] = ConjugatedWeight
		case pi[b.Begin] && lonePair(mol, b.End), pi[b.End] && lonePair(mol, b.Begin):
			out[i] = LonePairWeight
		default:
			out[i] = SingleWeight
		}
	}
	return out
}

func lonePair(mol *molecule.Molecule, atom int) bool {
	a := mol.Atom(atom)
	switch a.Element.Number {
	case 7:
		return a.Charge <= 0
	case 8, 16:
		return true
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Chain
// ─────────────────────────────────────────────────────────────────────────────

// Chain tries providers in order and returns the first success.  Errors other
// than a missing weight stop the chain.
type Chain []Provider

func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, p := range c {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

func (c Chain) Assign(ctx context.Context, mol *molecule.Molecule) (*molecule.Molecule, error) {
	var last error
	for _, p := range c {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := p.Assign(ctx, mol)
		if err == nil {
			return out, nil
		}
		if !errors.IsCode(err, errors.ErrCodeFragMissingBondOrder) {
			return nil, err
		}
		last = err
	}
	if last == nil {
		last = errors.New(errors.ErrCodeFragMissingBondOrder, errors.DefaultMessageForCode(errors.ErrCodeFragMissingBondOrder)).
			WithDetail(mol.Title)
	}
	return nil, last
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
