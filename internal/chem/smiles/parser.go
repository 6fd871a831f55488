// Package smiles reads and writes SMILES strings.  Parse understands the
// organic subset, aromatic atoms, bracket atoms (isotope, hydrogen count,
// charge; chirality and atom classes are accepted and dropped), explicit bond
// symbols, branches, ring closures including %nn, and dot-separated
// components.  The writer produces canonical SMILES for whole molecules or for
// induced substructures, which makes it the fragment encoder of the
// deduplicator.
package smiles

import (
	"fmt"
	"strings"

	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

type bondSymbol int

const (
	bondNone bondSymbol = iota
	bondSingle
	bondDouble
	bondTriple
	bondAromatic
)

type ringOpen struct {
	atom int
	bond bondSymbol
}

type parser struct {
	src  string
	pos  int
	b    *molecule.Builder
	arom []bool

	prev    int
	pending bondSymbol
	stack   []int
	rings   map[int]ringOpen
}

// Parse reads a SMILES string into a perceived Molecule titled title.
func Parse(s, title string) (*molecule.Molecule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New(errors.ErrCodeMoleculeInvalidSMILES, "empty SMILES")
	}
	// Anything after the first whitespace is a title by convention.
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		if title == "" {
			title = strings.TrimSpace(s[i+1:])
		}
		s = s[:i]
	}

	p := &parser{
		src:   s,
		b:     molecule.NewBuilder(title),
		prev:  -1,
		rings: map[int]ringOpen{},
	}
	if err := p.run(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMoleculeInvalidSMILES, "invalid SMILES").WithDetail(s)
	}
	m, err := p.b.Build()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "invalid SMILES").WithDetail(s)
	}
	return m, nil
}

// MustParse is Parse for fixtures; it panics on error.
func MustParse(s string) *molecule.Molecule {
	m, err := Parse(s, "")
	if err != nil {
		panic(err)
	}
	return m
}

func (p *parser) fail(format string, args ...interface{}) error {
	return fmt.Errorf("position %d: "+format, append([]interface{}{p.pos}, args...)...)
}

func (p *parser) run() error {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '(':
			if p.prev < 0 {
				return p.fail("branch without a preceding atom")
			}
			p.stack = append(p.stack, p.prev)
			p.pos++
		case c == ')':
			if len(p.stack) == 0 {
				return p.fail("unbalanced ')'")
			}
			if p.pending != bondNone {
				return p.fail("bond symbol before ')'")
			}
			p.prev = p.stack[len(p.stack)-1]
			p.stack = p.stack[:len(p.stack)-1]
			p.pos++
		case c == '-' || c == '/' || c == '\\':
			p.pending = bondSingle
			p.pos++
		case c == '=':
			p.pending = bondDouble
			p.pos++
		case c == '#':
			p.pending = bondTriple
			p.pos++
		case c == ':':
			p.pending = bondAromatic
			p.pos++
		case c == '.':
			if p.pending != bondNone {
				return p.fail("bond symbol before '.'")
			}
			p.prev = -1
			p.pos++
		case c >= '0' && c <= '9':
			p.pos++
			if err := p.ring(int(c - '0')); err != nil {
				return err
			}
		case c == '%':
			if p.pos+3 > len(p.src) || !isDigit(p.src[p.pos+1]) || !isDigit(p.src[p.pos+2]) {
				return p.fail("malformed %%nn ring closure")
			}
			n := int(p.src[p.pos+1]-'0')*10 + int(p.src[p.pos+2]-'0')
			p.pos += 3
			if err := p.ring(n); err != nil {
				return err
			}
		case c == '[':
			if err := p.bracketAtom(); err != nil {
				return err
			}
		default:
			if err := p.organicAtom(); err != nil {
				return err
			}
		}
	}
	if len(p.stack) > 0 {
		return p.fail("unclosed branch")
	}
	if len(p.rings) > 0 {
		for n := range p.rings {
			return p.fail("unclosed ring %d", n)
		}
	}
	if p.pending != bondNone {
		return p.fail("dangling bond symbol")
	}
	if p.b.NumAtoms() == 0 {
		return p.fail("no atoms")
	}
	return nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (p *parser) addAtom(spec molecule.AtomSpec) {
	idx := p.b.AddAtomSpec(spec)
	p.arom = append(p.arom, spec.Aromatic)
	if p.prev >= 0 {
		p.bond(p.prev, idx, p.pending)
	}
	p.pending = bondNone
	p.prev = idx
}

func (p *parser) bond(a1, a2 int, sym bondSymbol) {
	switch sym {
	case bondDouble:
		p.b.AddBond(a1, a2, 2)
	case bondTriple:
		p.b.AddBond(a1, a2, 3)
	case bondAromatic:
		p.b.AddAromaticBond(a1, a2)
	case bondSingle:
		p.b.AddBond(a1, a2, 1)
	default:
		if p.arom[a1] && p.arom[a2] {
			p.b.AddAromaticBond(a1, a2)
		} else {
			p.b.AddBond(a1, a2, 1)
		}
	}
}

func (p *parser) ring(n int) error {
	if p.prev < 0 {
		return p.fail("ring closure %d without an atom", n)
	}
	open, ok := p.rings[n]
	if !ok {
		p.rings[n] = ringOpen{atom: p.prev, bond: p.pending}
		p.pending = bondNone
		return nil
	}
	delete(p.rings, n)
	sym := p.pending
	if sym == bondNone {
		sym = open.bond
	} else if open.bond != bondNone && open.bond != sym {
		return p.fail("conflicting bond symbols on ring closure %d", n)
	}
	if open.atom == p.prev {
		return p.fail("ring closure %d joins an atom to itself", n)
	}
	p.bond(open.atom, p.prev, sym)
	p.pending = bondNone
	return nil
}

var organic = map[string]bool{
	"B": true, "C": true, "N": true, "O": true, "P": true, "S": true,
	"F": true, "Cl": true, "Br": true, "I": true,
	"b": true, "c": true, "n": true, "o": true, "p": true, "s": true,
}

func (p *parser) organicAtom() error {
	rest := p.src[p.pos:]
	sym := ""
	if strings.HasPrefix(rest, "Cl") || strings.HasPrefix(rest, "Br") {
		sym = rest[:2]
	} else if organic[rest[:1]] {
		sym = rest[:1]
	}
	if sym == "" {
		if rest[0] == '*' {
			return p.fail("wildcard atoms are not supported")
		}
		return p.fail("unexpected character %q", rest[0])
	}
	p.pos += len(sym)
	aromatic := sym[0] >= 'a' && sym[0] <= 'z'
	p.addAtom(molecule.AtomSpec{Symbol: sym, Aromatic: aromatic})
	return nil
}

var bracketAromatic = []string{"se", "as", "b", "c", "n", "o", "p", "s"}

func (p *parser) bracketAtom() error {
	end := strings.IndexByte(p.src[p.pos:], ']')
	if end < 0 {
		return p.fail("unclosed bracket atom")
	}
	body := p.src[p.pos+1 : p.pos+end]
	p.pos += end + 1

	spec := molecule.AtomSpec{ExplicitH: true}
	i := 0
	for i < len(body) && isDigit(body[i]) {
		spec.Isotope = spec.Isotope*10 + int(body[i]-'0')
		i++
	}
	if i >= len(body) {
		return p.fail("bracket atom without element")
	}

	sym := ""
	for _, a := range bracketAromatic {
		if strings.HasPrefix(body[i:], a) {
			sym = a
			spec.Aromatic = true
			break
		}
	}
	if sym == "" {
		c := body[i]
		if c < 'A' || c > 'Z' {
			return p.fail("bad element in bracket atom %q", body)
		}
		sym = body[i : i+1]
		if i+1 < len(body) && body[i+1] >= 'a' && body[i+1] <= 'z' {
			if _, ok := molecule.LookupElement(body[i : i+2]); ok {
				sym = body[i : i+2]
			}
		}
	}
	if _, ok := molecule.LookupElement(sym); !ok {
		return p.fail("unknown element %q", sym)
	}
	spec.Symbol = sym
	i += len(sym)

	for i < len(body) && body[i] == '@' {
		i++
	}
	for i < len(body) && (body[i] >= 'A' && body[i] <= 'Z') && body[i] != 'H' {
		// @TH1, @SP2 style chirality classes.
		i++
		for i < len(body) && isDigit(body[i]) {
			i++
		}
	}
	if i < len(body) && body[i] == 'H' {
		i++
		n := 1
		if i < len(body) && isDigit(body[i]) {
			n = 0
			for i < len(body) && isDigit(body[i]) {
				n = n*10 + int(body[i]-'0')
				i++
			}
		}
		spec.HCount = n
	}
	if i < len(body) && (body[i] == '+' || body[i] == '-') {
		sign := 1
		if body[i] == '-' {
			sign = -1
		}
		c := body[i]
		i++
		n := 1
		if i < len(body) && isDigit(body[i]) {
			n = 0
			for i < len(body) && isDigit(body[i]) {
				n = n*10 + int(body[i]-'0')
				i++
			}
		} else {
			for i < len(body) && body[i] == c {
				n++
				i++
			}
		}
		spec.Charge = sign * n
	}
	if i < len(body) && body[i] == ':' {
		// Atom class / map index, discarded.
		i++
		for i < len(body) && isDigit(body[i]) {
			i++
		}
	}
	if i != len(body) {
		return p.fail("trailing characters in bracket atom %q", body)
	}
	p.addAtom(spec)
	return nil
}
