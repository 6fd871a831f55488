// Package smarts compiles the subset of SMARTS used by functional-group
// libraries and matches compiled patterns against molecules.
//
// Supported atom primitives: element symbols (aliphatic upper case, aromatic
// lower case), '*', 'a', 'A', '#n', 'Dn', 'Xn', 'Hn', 'vn', 'R' / 'Rn' (ring
// membership only: any n > 0 means "in a ring"), formal charges, chirality marks
// (ignored) and the logical operators '!', '&', ',' and ';'.  Supported bond
// primitives: '-', '=', '#', ':', '~', '@', '/' and '\' (both read as single)
// with the same operators.  Recursive SMARTS ($(...)) and ring sizes are not
// supported and fail compilation.
package smarts

import (
	"fmt"
	"strings"

	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

type atomPred func(m *molecule.Molecule, i int) bool

type bondPred func(b molecule.Bond) bool

type queryBond struct {
	a1, a2 int
	pred   bondPred
}

// Pattern is a compiled SMARTS query.  It is safe for concurrent use.
type Pattern struct {
	src   string
	atoms []atomPred
	bonds []queryBond
	adj   [][]int
	order []int
}

// String returns the source SMARTS.
func (p *Pattern) String() string { return p.src }

// NumAtoms returns the number of query atoms.
func (p *Pattern) NumAtoms() int { return len(p.atoms) }

// NumBonds returns the number of query bonds.
func (p *Pattern) NumBonds() int { return len(p.bonds) }

// Compile parses a SMARTS string.
func Compile(src string) (*Pattern, error) {
	c := &compiler{src: strings.TrimSpace(src), prev: -1, rings: map[int]ringOpen{}}
	if c.src == "" {
		return nil, errors.New(errors.ErrCodeChemPatternCompile, "empty SMARTS")
	}
	if err := c.run(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeChemPatternCompile, errors.DefaultMessageForCode(errors.ErrCodeChemPatternCompile)).
			WithDetail(src)
	}
	c.p.src = c.src
	c.p.order = c.p.searchOrder()
	return &c.p, nil
}

// MustCompile is Compile for package-level patterns; it panics on error.
func MustCompile(src string) *Pattern {
	p, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return p
}

// ─────────────────────────────────────────────────────────────────────────────
// Graph-level parsing
// ─────────────────────────────────────────────────────────────────────────────

type ringOpen struct {
	atom int
	pred bondPred
}

type compiler struct {
	src string
	pos int
	p   Pattern

	prev    int
	pending bondPred
	stack   []int
	rings   map[int]ringOpen
}

func (c *compiler) fail(format string, args ...interface{}) error {
	return fmt.Errorf("position %d: "+format, append([]interface{}{c.pos}, args...)...)
}

const bondChars = "-=#:~@!/\\,;&"

func (c *compiler) run() error {
	for c.pos < len(c.src) {
		ch := c.src[c.pos]
		switch {
		case ch == '(':
			if c.prev < 0 {
				return c.fail("branch without a preceding atom")
			}
			c.stack = append(c.stack, c.prev)
			c.pos++
		case ch == ')':
			if len(c.stack) == 0 {
				return c.fail("unbalanced ')'")
			}
			c.prev = c.stack[len(c.stack)-1]
			c.stack = c.stack[:len(c.stack)-1]
			c.pos++
		case ch == '.':
			c.prev = -1
			c.pos++
		case ch >= '0' && ch <= '9':
			c.pos++
			if err := c.ring(int(ch - '0')); err != nil {
				return err
			}
		case ch == '%':
			if c.pos+3 > len(c.src) || !isDigit(c.src[c.pos+1]) || !isDigit(c.src[c.pos+2]) {
				return c.fail("malformed %%nn ring closure")
			}
			n := int(c.src[c.pos+1]-'0')*10 + int(c.src[c.pos+2]-'0')
			c.pos += 3
			if err := c.ring(n); err != nil {
				return err
			}
		case strings.IndexByte(bondChars, ch) >= 0:
			start := c.pos
			for c.pos < len(c.src) && strings.IndexByte(bondChars, c.src[c.pos]) >= 0 {
				c.pos++
			}
			pred, err := parseBondExpr(c.src[start:c.pos])
			if err != nil {
				return c.fail("%v", err)
			}
			c.pending = pred
		case ch == '[':
			end := strings.IndexByte(c.src[c.pos:], ']')
			if end < 0 {
				return c.fail("unclosed bracket atom")
			}
			body := c.src[c.pos+1 : c.pos+end]
			pred, err := parseAtomExpr(body)
			if err != nil {
				return c.fail("%v", err)
			}
			c.pos += end + 1
			c.addAtom(pred)
		default:
			pred, n, err := organicAtom(c.src[c.pos:])
			if err != nil {
				return c.fail("%v", err)
			}
			c.pos += n
			c.addAtom(pred)
		}
	}
	if len(c.stack) > 0 {
		return c.fail("unclosed branch")
	}
	if len(c.rings) > 0 {
		return c.fail("unclosed ring closure")
	}
	if c.pending != nil {
		return c.fail("dangling bond")
	}
	if len(c.p.atoms) == 0 {
		return c.fail("no atoms")
	}
	return nil
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func (c *compiler) addAtom(pred atomPred) {
	idx := len(c.p.atoms)
	c.p.atoms = append(c.p.atoms, pred)
	c.p.adj = append(c.p.adj, nil)
	if c.prev >= 0 {
		c.addBond(c.prev, idx, c.pending)
	}
	c.pending = nil
	c.prev = idx
}

func (c *compiler) addBond(a1, a2 int, pred bondPred) {
	if pred == nil {
		pred = defaultBond
	}
	bi := len(c.p.bonds)
	c.p.bonds = append(c.p.bonds, queryBond{a1: a1, a2: a2, pred: pred})
	c.p.adj[a1] = append(c.p.adj[a1], bi)
	c.p.adj[a2] = append(c.p.adj[a2], bi)
}

func (c *compiler) ring(n int) error {
	if c.prev < 0 {
		return c.fail("ring closure %d without an atom", n)
	}
	open, ok := c.rings[n]
	if !ok {
		c.rings[n] = ringOpen{atom: c.prev, pred: c.pending}
		c.pending = nil
		return nil
	}
	delete(c.rings, n)
	if open.atom == c.prev {
		return c.fail("ring closure %d joins an atom to itself", n)
	}
	pred := c.pending
	if pred == nil {
		pred = open.pred
	}
	c.addBond(open.atom, c.prev, pred)
	c.pending = nil
	return nil
}

// organicAtom parses an unbracketed atom and returns the number of bytes used.
func organicAtom(s string) (atomPred, int, error) {
	switch {
	case strings.HasPrefix(s, "Cl"):
		return aliphatic(17), 2, nil
	case strings.HasPrefix(s, "Br"):
		return aliphatic(35), 2, nil
	}
	switch s[0] {
	case '*':
		return anyAtom, 1, nil
	case 'a':
		return isAromatic, 1, nil
	case 'A':
		return isAliphatic, 1, nil
	case 'B', 'C', 'N', 'O', 'P', 'S', 'F', 'I':
		el, _ := molecule.LookupElement(s[:1])
		return aliphatic(el.Number), 1, nil
	case 'b', 'c', 'n', 'o', 'p', 's':
		el, _ := molecule.LookupElement(s[:1])
		return aromatic(el.Number), 1, nil
	}
	return nil, 0, fmt.Errorf("unexpected character %q", s[0])
}
