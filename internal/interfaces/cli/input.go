package cli

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/turtacn/torsion-fragmenter/internal/application/fragmentation"
	"github.com/turtacn/torsion-fragmenter/internal/chem/molfile"
	"github.com/turtacn/torsion-fragmenter/internal/chem/smiles"
	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

type inputFormat int

const (
	formatSMILES inputFormat = iota
	formatSD
)

func detectFormat(path string) (inputFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".smi", ".smiles", ".ism", ".txt":
		return formatSMILES, nil
	case ".sdf", ".sd", ".mol":
		return formatSD, nil
	}
	return 0, errors.New(errors.ErrCodeChemUnsupportedInput, "unsupported molecule file").
		WithDetail("expected .smi, .smiles, .ism, .txt, .sdf, .sd or .mol: " + path)
}

// isMoleculeFile reports whether path has a readable extension.
func isMoleculeFile(path string) bool {
	_, err := detectFormat(path)
	return err == nil
}

// smilesLine is one record of a SMILES file: the structure, then an optional
// title made of the remaining fields.
type smilesLine struct {
	smiles string
	title  string
}

func readSMILESLines(r io.Reader) ([]smilesLine, error) {
	var out []smilesLine
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		out = append(out, smilesLine{smiles: fields[0], title: strings.Join(fields[1:], " ")})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMoleculeInvalidFormat, "read SMILES file")
	}
	return out, nil
}

// readInputs loads a molecule file as service inputs.  SMILES records are
// passed through unparsed so that bad lines are reported as skipped
// molecules; SD records are parsed here with their weight tag.
func readInputs(path, weightTag string) ([]fragmentation.Input, error) {
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "open input").WithDetail(path)
	}
	defer f.Close()

	if format == formatSD {
		mols, err := molfile.ReadAll(f, molfile.WithWeightTag(weightTag))
		if err != nil {
			return nil, err
		}
		inputs := make([]fragmentation.Input, len(mols))
		for i, m := range mols {
			inputs[i] = fragmentation.Input{Title: m.Title, Mol: m}
		}
		return inputs, nil
	}

	lines, err := readSMILESLines(f)
	if err != nil {
		return nil, err
	}
	inputs := make([]fragmentation.Input, len(lines))
	for i, l := range lines {
		inputs[i] = fragmentation.Input{Title: l.title, SMILES: l.smiles}
	}
	return inputs, nil
}

// readMolecules parses every record of a molecule file.  Unparseable SMILES
// lines are logged and dropped.
func readMolecules(path, weightTag string, log logging.Logger) ([]*molecule.Molecule, error) {
	inputs, err := readInputs(path, weightTag)
	if err != nil {
		return nil, err
	}
	mols := make([]*molecule.Molecule, 0, len(inputs))
	for _, in := range inputs {
		if in.Mol != nil {
			mols = append(mols, in.Mol)
			continue
		}
		m, err := smiles.Parse(in.SMILES, in.Title)
		if err != nil {
			log.Warn("skipping unparseable molecule", logging.Molecule(in.Title), logging.Err(err))
			continue
		}
		mols = append(mols, m)
	}
	return mols, nil
}
