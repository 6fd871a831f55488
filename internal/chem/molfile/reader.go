// Package molfile reads MDL V2000 molfiles and SD files.
//
// Explicit hydrogens attached to a single heavy atom are folded into that
// atom's hydrogen count, so the resulting graph is heavy-atom only.  Per-bond
// weights can be supplied through an SD data field holding one value per bond
// of the record, in file order.
package molfile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// DefaultWeightTag is the SD field carrying Wiberg bond orders.
const DefaultWeightTag = "WibergBondOrder"

// Option configures a Reader.
type Option func(*Reader)

// WithWeightTag changes the SD field read as bond weights.  An empty tag
// disables weight reading.
func WithWeightTag(tag string) Option {
	return func(r *Reader) { r.weightTag = tag }
}

// Reader iterates over the records of an SD stream.
type Reader struct {
	sc        *bufio.Scanner
	weightTag string
	line      int
	record    int
}

// NewReader wraps r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	rd := &Reader{sc: sc, weightTag: DefaultWeightTag}
	for _, o := range opts {
		o(rd)
	}
	return rd
}

// Next returns the next molecule, or io.EOF when the stream is exhausted.
func (r *Reader) Next() (*molecule.Molecule, error) {
	var lines []string
	start := r.line + 1
	for r.sc.Scan() {
		r.line++
		l := strings.TrimRight(r.sc.Text(), "\r")
		if strings.TrimSpace(l) == "$$$$" {
			break
		}
		lines = append(lines, l)
	}
	if err := r.sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMoleculeInvalidMolfile, "read SD stream")
	}
	if len(lines) == 0 || isBlank(lines) {
		return nil, io.EOF
	}
	r.record++
	m, err := parseBlock(lines, r.weightTag)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "parse molfile").
			WithDetail(fmt.Sprintf("record=%d line=%d", r.record, start))
	}
	return m, nil
}

// ReadAll reads every record of r.
func ReadAll(r io.Reader, opts ...Option) ([]*molecule.Molecule, error) {
	rd := NewReader(r, opts...)
	var out []*molecule.Molecule
	for {
		m, err := rd.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, m)
	}
}

// ParseString parses a single molfile block.
func ParseString(s string, opts ...Option) (*molecule.Molecule, error) {
	m, err := NewReader(strings.NewReader(s), opts...).Next()
	if err == io.EOF {
		return nil, errors.New(errors.ErrCodeMoleculeEmpty, "empty molfile")
	}
	return m, err
}

func isBlank(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Block parsing
// ─────────────────────────────────────────────────────────────────────────────

type rawAtom struct {
	symbol  string
	x, y    float64
	charge  int
	isotope int
}

type rawBond struct {
	a1, a2, order int
}

func field(line string, from, to int) string {
	if from >= len(line) {
		return ""
	}
	if to > len(line) {
		to = len(line)
	}
	return strings.TrimSpace(line[from:to])
}

func intField(line string, from, to int) (int, error) {
	s := field(line, from, to)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func invalid(format string, args ...interface{}) error {
	return errors.New(errors.ErrCodeMoleculeInvalidMolfile, errors.DefaultMessageForCode(errors.ErrCodeMoleculeInvalidMolfile)).
		WithDetail(fmt.Sprintf(format, args...))
}

// oldCharge decodes the atom-block charge column.
var oldCharge = map[int]int{1: 3, 2: 2, 3: 1, 5: -1, 6: -2, 7: -3}

func parseBlock(lines []string, weightTag string) (*molecule.Molecule, error) {
	if len(lines) < 4 {
		return nil, invalid("header is shorter than four lines")
	}
	title := strings.TrimSpace(lines[0])
	counts := lines[3]
	if strings.Contains(counts, "V3000") {
		return nil, errors.New(errors.ErrCodeChemUnsupportedInput, "V3000 molfiles are not supported")
	}
	nAtoms, err := intField(counts, 0, 3)
	if err != nil {
		return nil, invalid("counts line: %v", err)
	}
	nBonds, err := intField(counts, 3, 6)
	if err != nil {
		return nil, invalid("counts line: %v", err)
	}
	if len(lines) < 4+nAtoms+nBonds {
		return nil, invalid("expected %d atom and %d bond lines", nAtoms, nBonds)
	}

	atoms := make([]rawAtom, nAtoms)
	for i := 0; i < nAtoms; i++ {
		l := lines[4+i]
		x, errX := strconv.ParseFloat(field(l, 0, 10), 64)
		y, errY := strconv.ParseFloat(field(l, 10, 20), 64)
		if errX != nil || errY != nil {
			return nil, invalid("atom %d: bad coordinates", i+1)
		}
		sym := field(l, 31, 34)
		if sym == "" {
			return nil, invalid("atom %d: missing element", i+1)
		}
		code, err := intField(l, 36, 39)
		if err != nil {
			return nil, invalid("atom %d: bad charge field", i+1)
		}
		atoms[i] = rawAtom{symbol: sym, x: x, y: y, charge: oldCharge[code]}
	}

	bonds := make([]rawBond, nBonds)
	for i := 0; i < nBonds; i++ {
		l := lines[4+nAtoms+i]
		a1, err1 := intField(l, 0, 3)
		a2, err2 := intField(l, 3, 6)
		order, err3 := intField(l, 6, 9)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, invalid("bond %d: bad fields", i+1)
		}
		if a1 < 1 || a1 > nAtoms || a2 < 1 || a2 > nAtoms {
			return nil, invalid("bond %d: atom out of range", i+1)
		}
		if order < 1 || order > 4 {
			return nil, invalid("bond %d: unsupported order %d", i+1, order)
		}
		bonds[i] = rawBond{a1: a1 - 1, a2: a2 - 1, order: order}
	}

	rest := lines[4+nAtoms+nBonds:]
	data := map[string]string{}
	inData := false
	for i := 0; i < len(rest); i++ {
		l := rest[i]
		switch {
		case !inData && strings.HasPrefix(l, "M  END"):
			inData = true
		case !inData && (strings.HasPrefix(l, "M  CHG") || strings.HasPrefix(l, "M  ISO")):
			if err := applyProperty(l, atoms); err != nil {
				return nil, err
			}
		case strings.HasPrefix(l, ">"):
			inData = true
			tag := dataTag(l)
			var vals []string
			for i+1 < len(rest) && strings.TrimSpace(rest[i+1]) != "" {
				i++
				vals = append(vals, rest[i])
			}
			if tag != "" {
				data[tag] = strings.Join(vals, "\n")
			}
		}
	}

	return assemble(title, atoms, bonds, data, weightTag)
}

func dataTag(header string) string {
	open := strings.IndexByte(header, '<')
	closing := strings.LastIndexByte(header, '>')
	if open < 0 || closing <= open {
		return ""
	}
	return header[open+1 : closing]
}

// applyProperty handles "M  CHG" and "M  ISO" lines: a count followed by
// atom/value pairs.
func applyProperty(l string, atoms []rawAtom) error {
	f := strings.Fields(l)
	if len(f) < 3 {
		return invalid("malformed property line %q", l)
	}
	n, err := strconv.Atoi(f[2])
	if err != nil || len(f) < 3+2*n {
		return invalid("malformed property line %q", l)
	}
	for k := 0; k < n; k++ {
		ai, err1 := strconv.Atoi(f[3+2*k])
		v, err2 := strconv.Atoi(f[4+2*k])
		if err1 != nil || err2 != nil || ai < 1 || ai > len(atoms) {
			return invalid("malformed property line %q", l)
		}
		if f[1] == "CHG" {
			atoms[ai-1].charge = v
		} else {
			atoms[ai-1].isotope = v
		}
	}
	return nil
}

// assemble folds explicit hydrogens and builds the Molecule.
func assemble(title string, atoms []rawAtom, bonds []rawBond, data map[string]string, weightTag string) (*molecule.Molecule, error) {
	degree := make([]int, len(atoms))
	for _, b := range bonds {
		degree[b.a1]++
		degree[b.a2]++
	}
	isH := func(i int) bool { return atoms[i].symbol == "H" && atoms[i].isotope == 0 && atoms[i].charge == 0 }

	folded := make([]bool, len(atoms))
	hCount := make([]int, len(atoms))
	anyH := false
	for _, b := range bonds {
		for _, pair := range [2][2]int{{b.a1, b.a2}, {b.a2, b.a1}} {
			h, heavy := pair[0], pair[1]
			if isH(h) && !isH(heavy) && degree[h] == 1 && b.order == 1 {
				folded[h] = true
				hCount[heavy]++
				anyH = true
			}
		}
	}

	aromatic := make([]bool, len(atoms))
	for _, b := range bonds {
		if b.order == 4 {
			aromatic[b.a1] = true
			aromatic[b.a2] = true
		}
	}

	hasCoords := false
	for _, a := range atoms {
		if a.x != 0 || a.y != 0 {
			hasCoords = true
			break
		}
	}

	bld := molecule.NewBuilder(title)
	newIdx := make([]int, len(atoms))
	for i, a := range atoms {
		if folded[i] {
			newIdx[i] = -1
			continue
		}
		newIdx[i] = bld.AddAtomSpec(molecule.AtomSpec{
			Symbol:    a.symbol,
			Aromatic:  aromatic[i],
			Charge:    a.charge,
			Isotope:   a.isotope,
			HCount:    hCount[i],
			ExplicitH: anyH,
			X:         a.x,
			Y:         a.y,
			HasCoords: hasCoords,
		})
	}

	var kept []int
	for i, b := range bonds {
		u, v := newIdx[b.a1], newIdx[b.a2]
		if u < 0 || v < 0 {
			continue
		}
		if b.order == 4 {
			bld.AddAromaticBond(u, v)
		} else {
			bld.AddBond(u, v, b.order)
		}
		kept = append(kept, i)
	}

	for k, v := range data {
		bld.SetData(k, v)
	}
	if weightTag != "" {
		if raw, ok := data[weightTag]; ok {
			w, err := parseWeights(raw)
			if err != nil {
				return nil, err
			}
			if len(w) != len(bonds) {
				return nil, errors.New(errors.ErrCodeChemWeightCount, errors.DefaultMessageForCode(errors.ErrCodeChemWeightCount)).
					WithDetail(fmt.Sprintf("tag=%s bonds=%d weights=%d", weightTag, len(bonds), len(w)))
			}
			for nb, ob := range kept {
				bld.SetWeight(nb, w[ob])
			}
		}
	}
	return bld.Build()
}

func parseWeights(raw string) ([]float64, error) {
	fields := strings.Fields(raw)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, invalid("weight %q is not a number", f)
		}
		out = append(out, v)
	}
	return out, nil
}
