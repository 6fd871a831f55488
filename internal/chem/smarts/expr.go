package smarts

import (
	"fmt"
	"strings"

	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
)

// ── atom primitives ──

func anyAtom(*molecule.Molecule, int) bool { return true }

func isAromatic(m *molecule.Molecule, i int) bool { return m.Atom(i).Aromatic }

func isAliphatic(m *molecule.Molecule, i int) bool { return !m.Atom(i).Aromatic }

func element(n int) atomPred {
	return func(m *molecule.Molecule, i int) bool { return m.Atom(i).Element.Number == n }
}

func aliphatic(n int) atomPred {
	return func(m *molecule.Molecule, i int) bool {
		a := m.Atom(i)
		return a.Element.Number == n && !a.Aromatic
	}
}

func aromatic(n int) atomPred {
	return func(m *molecule.Molecule, i int) bool {
		a := m.Atom(i)
		return a.Element.Number == n && a.Aromatic
	}
}

// totalH counts implicit hydrogens plus explicit hydrogen neighbours.
func totalH(m *molecule.Molecule, i int) int {
	h := m.Atom(i).HCount
	for _, nb := range m.Neighbors(i) {
		if m.Atom(nb).IsHydrogen() {
			h++
		}
	}
	return h
}

func valence(m *molecule.Molecule, i int) int {
	v := m.Atom(i).HCount
	for _, bi := range m.NeighborBonds(i) {
		v += m.Bond(bi).Order
	}
	if m.Atom(i).Aromatic {
		v++
	}
	return v
}

func countIs(n int, f func(m *molecule.Molecule, i int) int) atomPred {
	return func(m *molecule.Molecule, i int) bool { return f(m, i) == n }
}

func charge(n int) atomPred {
	return func(m *molecule.Molecule, i int) bool { return m.Atom(i).Charge == n }
}

func inRing(want bool) atomPred {
	return func(m *molecule.Molecule, i int) bool { return m.InRing(i) == want }
}

// ── bond primitives ──

func defaultBond(b molecule.Bond) bool { return b.Order == 1 }

func singleBond(b molecule.Bond) bool { return b.Order == 1 && !b.Aromatic }

func doubleBond(b molecule.Bond) bool { return b.Order == 2 && !b.Aromatic }

func tripleBond(b molecule.Bond) bool { return b.Order == 3 }

func aromaticBond(b molecule.Bond) bool { return b.Aromatic }

func anyBond(molecule.Bond) bool { return true }

func ringBond(b molecule.Bond) bool { return b.InRing }

// ─────────────────────────────────────────────────────────────────────────────
// Expression grammar
//
//	lowAnd  := or (';' or)*
//	or      := highAnd (',' highAnd)*
//	highAnd := not ('&'? not)*
//	not     := '!'* primitive
// ─────────────────────────────────────────────────────────────────────────────

type exprParser[P any] struct {
	s    string
	pos  int
	prim func(*exprParser[P]) (P, error)
	and  func(a, b P) P
	or   func(a, b P) P
	not  func(a P) P
}

func (e *exprParser[P]) done() bool { return e.pos >= len(e.s) }

func (e *exprParser[P]) peek() byte { return e.s[e.pos] }

func (e *exprParser[P]) parse() (P, error) {
	var zero P
	p, err := e.lowAnd()
	if err != nil {
		return zero, err
	}
	if !e.done() {
		return zero, fmt.Errorf("unexpected %q in %q", e.peek(), e.s)
	}
	return p, nil
}

func (e *exprParser[P]) lowAnd() (P, error) {
	p, err := e.orExpr()
	if err != nil {
		return p, err
	}
	for !e.done() && e.peek() == ';' {
		e.pos++
		q, err := e.orExpr()
		if err != nil {
			return q, err
		}
		p = e.and(p, q)
	}
	return p, nil
}

func (e *exprParser[P]) orExpr() (P, error) {
	p, err := e.highAnd()
	if err != nil {
		return p, err
	}
	for !e.done() && e.peek() == ',' {
		e.pos++
		q, err := e.highAnd()
		if err != nil {
			return q, err
		}
		p = e.or(p, q)
	}
	return p, nil
}

func (e *exprParser[P]) highAnd() (P, error) {
	p, err := e.notExpr()
	if err != nil {
		return p, err
	}
	for !e.done() && e.peek() != ',' && e.peek() != ';' {
		if e.peek() == '&' {
			e.pos++
		}
		q, err := e.notExpr()
		if err != nil {
			return q, err
		}
		p = e.and(p, q)
	}
	return p, nil
}

func (e *exprParser[P]) notExpr() (P, error) {
	neg := false
	for !e.done() && e.peek() == '!' {
		neg = !neg
		e.pos++
	}
	if e.done() {
		var zero P
		return zero, fmt.Errorf("expression %q ends early", e.s)
	}
	p, err := e.prim(e)
	if err != nil || !neg {
		return p, err
	}
	return e.not(p), nil
}

// number reads an optional unsigned integer.
func (e *exprParser[P]) number() (int, bool) {
	start := e.pos
	n := 0
	for !e.done() && isDigit(e.peek()) {
		n = n*10 + int(e.peek()-'0')
		e.pos++
	}
	return n, e.pos > start
}

// ── atom expressions ──

func parseAtomExpr(s string) (atomPred, error) {
	if s == "" {
		return nil, fmt.Errorf("empty bracket atom")
	}
	e := &exprParser[atomPred]{
		s:    s,
		prim: atomPrimitive,
		and: func(a, b atomPred) atomPred {
			return func(m *molecule.Molecule, i int) bool { return a(m, i) && b(m, i) }
		},
		or: func(a, b atomPred) atomPred {
			return func(m *molecule.Molecule, i int) bool { return a(m, i) || b(m, i) }
		},
		not: func(a atomPred) atomPred {
			return func(m *molecule.Molecule, i int) bool { return !a(m, i) }
		},
	}
	return e.parse()
}

var aromaticSymbols = []string{"se", "as", "b", "c", "n", "o", "p", "s"}

func atomPrimitive(e *exprParser[atomPred]) (atomPred, error) {
	ch := e.peek()
	switch ch {
	case '*':
		e.pos++
		return anyAtom, nil
	case 'a':
		if !strings.HasPrefix(e.s[e.pos:], "as") {
			e.pos++
			return isAromatic, nil
		}
	case 'A':
		e.pos++
		return isAliphatic, nil
	case '#':
		e.pos++
		n, ok := e.number()
		if !ok {
			return nil, fmt.Errorf("'#' without atomic number in %q", e.s)
		}
		return element(n), nil
	case 'D', 'X', 'H', 'v':
		e.pos++
		n, ok := e.number()
		if !ok {
			n = 1
		}
		switch ch {
		case 'D':
			return countIs(n, (*molecule.Molecule).Degree), nil
		case 'X':
			return countIs(n, func(m *molecule.Molecule, i int) int { return m.Degree(i) + m.Atom(i).HCount }), nil
		case 'H':
			return countIs(n, totalH), nil
		default:
			return countIs(n, valence), nil
		}
	case 'R':
		e.pos++
		n, ok := e.number()
		return inRing(!ok || n > 0), nil
	case '+', '-':
		e.pos++
		sign := 1
		if ch == '-' {
			sign = -1
		}
		n, ok := e.number()
		if !ok {
			n = 1
			for !e.done() && e.peek() == ch {
				n++
				e.pos++
			}
		}
		return charge(sign * n), nil
	case '@':
		for !e.done() && (e.peek() == '@' || e.peek() == '?') {
			e.pos++
		}
		return anyAtom, nil
	case '$':
		return nil, fmt.Errorf("recursive SMARTS is not supported")
	}

	rest := e.s[e.pos:]
	if ch >= 'a' && ch <= 'z' {
		for _, sym := range aromaticSymbols {
			if strings.HasPrefix(rest, sym) {
				el, _ := molecule.LookupElement(sym)
				e.pos += len(sym)
				return aromatic(el.Number), nil
			}
		}
		return nil, fmt.Errorf("unsupported primitive %q in %q", ch, e.s)
	}
	if ch >= 'A' && ch <= 'Z' {
		if len(rest) > 1 && rest[1] >= 'a' && rest[1] <= 'z' {
			if el, ok := molecule.LookupElement(rest[:2]); ok && el.Symbol == rest[:2] {
				e.pos += 2
				return aliphatic(el.Number), nil
			}
		}
		if el, ok := molecule.LookupElement(rest[:1]); ok {
			e.pos++
			return aliphatic(el.Number), nil
		}
	}
	return nil, fmt.Errorf("unsupported primitive %q in %q", ch, e.s)
}

// ── bond expressions ──

func parseBondExpr(s string) (bondPred, error) {
	e := &exprParser[bondPred]{
		s:    s,
		prim: bondPrimitive,
		and: func(a, b bondPred) bondPred {
			return func(x molecule.Bond) bool { return a(x) && b(x) }
		},
		or: func(a, b bondPred) bondPred {
			return func(x molecule.Bond) bool { return a(x) || b(x) }
		},
		not: func(a bondPred) bondPred {
			return func(x molecule.Bond) bool { return !a(x) }
		},
	}
	return e.parse()
}

func bondPrimitive(e *exprParser[bondPred]) (bondPred, error) {
	ch := e.peek()
	e.pos++
	switch ch {
	case '-', '/', '\\':
		return singleBond, nil
	case '=':
		return doubleBond, nil
	case '#':
		return tripleBond, nil
	case ':':
		return aromaticBond, nil
	case '~':
		return anyBond, nil
	case '@':
		return ringBond, nil
	}
	return nil, fmt.Errorf("unsupported bond primitive %q", ch)
}
