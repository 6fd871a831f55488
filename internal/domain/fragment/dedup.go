package fragment

import (
	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// Encoder turns the substructure of mol induced by atoms and bonds into a
// canonical string.  Two substructures encode identically exactly when they
// are the same chemical species.
type Encoder interface {
	Encode(mol *molecule.Molecule, atoms, bonds []int) (string, error)
}

// Deduplication groups fragments by canonical encoding.  Keys follow first
// appearance.
type Deduplication struct {
	Keys   []string
	Groups map[string][]Fragment
}

// Len is the number of distinct encodings.
func (d *Deduplication) Len() int { return len(d.Keys) }

// Deduplicate encodes every fragment and groups equal encodings.
func Deduplicate(mol *molecule.Molecule, frags []Fragment, enc Encoder) (*Deduplication, error) {
	if err := emptyMolecule(mol); err != nil {
		return nil, err
	}
	d := &Deduplication{Groups: map[string][]Fragment{}}
	for _, f := range frags {
		key, err := enc.Encode(mol, f.Atoms, f.Bonds)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeChemEncodingFailed, errors.DefaultMessageForCode(errors.ErrCodeChemEncodingFailed)).
				WithDetail(mol.Title + ": " + f.Key())
		}
		if _, ok := d.Groups[key]; !ok {
			d.Keys = append(d.Keys, key)
		}
		d.Groups[key] = append(d.Groups[key], f)
	}
	return d, nil
}
