package smiles

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

const (
	// WriterName identifies the canonicalisation routine in provenance records.
	WriterName = "torsion-fragmenter/smiles"
	// WriterVersion changes whenever the ranking or DFS order changes, since
	// stored encodings are then no longer comparable.
	WriterVersion = "1"
)

// ─────────────────────────────────────────────────────────────────────────────
// Public API
// ─────────────────────────────────────────────────────────────────────────────

// Canonical returns the canonical SMILES of the whole molecule.
func Canonical(m *molecule.Molecule) string {
	if m == nil || m.NumAtoms() == 0 {
		return ""
	}
	atoms := make([]int, m.NumAtoms())
	for i := range atoms {
		atoms[i] = i
	}
	bonds := make([]int, m.NumBonds())
	for i := range bonds {
		bonds[i] = i
	}
	s, _ := WriteSubset(m, atoms, bonds)
	return s
}

// WriteSubset returns the canonical SMILES of the substructure induced by the
// given atoms and bonds.  A listed bond is kept only when both endpoints are
// listed.  Each parent bond that touches a listed atom but is not kept is
// replaced by hydrogens on that atom (one per bond order), so the result reads
// as a standalone molecule.
func WriteSubset(m *molecule.Molecule, atoms, bonds []int) (string, error) {
	g, err := newSubgraph(m, atoms, bonds)
	if err != nil {
		return "", err
	}
	return g.write(), nil
}

// Writer adapts the package functions to the fragment encoder interface.
type Writer struct{}

// Encode implements the fragment encoder.
func (Writer) Encode(m *molecule.Molecule, atoms, bonds []int) (string, error) {
	return WriteSubset(m, atoms, bonds)
}

// Details describes the canonicalisation for provenance.
func (Writer) Details() map[string]interface{} {
	return map[string]interface{}{
		"package":     WriterName,
		"version":     WriterVersion,
		"isomeric":    false,
		"aromatic":    true,
		"hydrogens":   "implicit",
		"atom_maps":   "removed",
		"cut_bonds":   "capped with hydrogen",
		"tie_breaker": "lowest parent index",
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Subgraph
// ─────────────────────────────────────────────────────────────────────────────

type edge struct {
	to       int
	order    int
	aromatic bool
}

func (e edge) code() int {
	if e.aromatic {
		return 4
	}
	return e.order
}

type node struct {
	atom molecule.Atom
	h    int
	nbrs []edge
}

type subgraph struct {
	nodes []node
}

func newSubgraph(m *molecule.Molecule, atoms, bonds []int) (*subgraph, error) {
	if m == nil || len(atoms) == 0 {
		return nil, errors.New(errors.ErrCodeMoleculeEmpty, "empty substructure")
	}
	local := make(map[int]int, len(atoms))
	sorted := append([]int(nil), atoms...)
	sort.Ints(sorted)
	g := &subgraph{}
	for _, a := range sorted {
		if a < 0 || a >= m.NumAtoms() {
			return nil, errors.New(errors.ErrCodeMoleculeAtomIndex, errors.DefaultMessageForCode(errors.ErrCodeMoleculeAtomIndex)).
				WithDetail("atom=" + strconv.Itoa(a))
		}
		if _, dup := local[a]; dup {
			continue
		}
		local[a] = len(g.nodes)
		at := m.Atom(a)
		g.nodes = append(g.nodes, node{atom: at, h: at.HCount})
	}

	kept := make(map[int]bool, len(bonds))
	for _, bi := range bonds {
		if bi < 0 || bi >= m.NumBonds() {
			return nil, errors.New(errors.ErrCodeMoleculeBondIndex, errors.DefaultMessageForCode(errors.ErrCodeMoleculeBondIndex)).
				WithDetail("bond=" + strconv.Itoa(bi))
		}
		if kept[bi] {
			continue
		}
		b := m.Bond(bi)
		u, ok1 := local[b.Begin]
		v, ok2 := local[b.End]
		if !ok1 || !ok2 {
			continue
		}
		kept[bi] = true
		g.nodes[u].nbrs = append(g.nodes[u].nbrs, edge{to: v, order: b.Order, aromatic: b.Aromatic})
		g.nodes[v].nbrs = append(g.nodes[v].nbrs, edge{to: u, order: b.Order, aromatic: b.Aromatic})
	}

	for parent, li := range local {
		for _, bi := range m.NeighborBonds(parent) {
			if !kept[bi] {
				g.nodes[li].h += m.Bond(bi).Order
			}
		}
	}
	return g, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Ranking
// ─────────────────────────────────────────────────────────────────────────────

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func compareKeys(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

// denseRank assigns 0-based ranks so that equal keys share a rank and the rank
// order follows the key order.
func denseRank(keys [][]int) ([]int, int) {
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(x, y int) bool { return compareKeys(keys[idx[x]], keys[idx[y]]) < 0 })
	ranks := make([]int, len(keys))
	r := 0
	for i, id := range idx {
		if i > 0 && compareKeys(keys[idx[i-1]], keys[id]) != 0 {
			r++
		}
		ranks[id] = r
	}
	if len(keys) == 0 {
		return ranks, 0
	}
	return ranks, r + 1
}

// refine splits rank classes by the multiset of (bond, neighbour rank) pairs
// until the partition is stable.  Existing order between classes is kept.
func (g *subgraph) refine(ranks []int, classes int) ([]int, int) {
	n := len(g.nodes)
	for {
		keys := make([][]int, n)
		for i, nd := range g.nodes {
			pairs := make([]int, 0, len(nd.nbrs))
			for _, e := range nd.nbrs {
				pairs = append(pairs, ranks[e.to]*8+e.code())
			}
			sort.Ints(pairs)
			keys[i] = append([]int{ranks[i]}, pairs...)
		}
		next, nc := denseRank(keys)
		if nc == classes {
			return next, nc
		}
		ranks, classes = next, nc
	}
}

// rank computes a canonical total order of the nodes.
func (g *subgraph) rank() []int {
	n := len(g.nodes)
	keys := make([][]int, n)
	for i, nd := range g.nodes {
		a := nd.atom
		keys[i] = []int{
			a.Element.Number,
			a.Isotope,
			boolInt(a.Aromatic),
			a.Charge,
			nd.h,
			len(nd.nbrs),
		}
	}
	ranks, classes := denseRank(keys)
	ranks, classes = g.refine(ranks, classes)

	for classes < n {
		counts := make([]int, classes)
		for _, r := range ranks {
			counts[r]++
		}
		tie := 0
		for counts[tie] < 2 {
			tie++
		}
		chosen := -1
		for i, r := range ranks {
			if r == tie {
				chosen = i
				break
			}
		}
		split := make([][]int, n)
		for i, r := range ranks {
			v := 2 * r
			if r == tie && i != chosen {
				v++
			}
			split[i] = []int{v}
		}
		ranks, classes = denseRank(split)
		ranks, classes = g.refine(ranks, classes)
	}
	return ranks
}

// ─────────────────────────────────────────────────────────────────────────────
// Output
// ─────────────────────────────────────────────────────────────────────────────

type closure struct {
	open, close int
	e           edge
	digit       int
}

type dfsState struct {
	g        *subgraph
	ranks    []int
	visited  []bool
	children [][]int
	childE   [][]edge
	opens    [][]*closure
	closes   [][]*closure
	seen     map[[2]int]bool
	digits   []bool
	sb       strings.Builder
}

func (g *subgraph) write() string {
	n := len(g.nodes)
	ranks := g.rank()
	for i := range g.nodes {
		nb := g.nodes[i].nbrs
		sort.Slice(nb, func(x, y int) bool { return ranks[nb[x].to] < ranks[nb[y].to] })
	}

	st := &dfsState{
		g:        g,
		ranks:    ranks,
		visited:  make([]bool, n),
		children: make([][]int, n),
		childE:   make([][]edge, n),
		opens:    make([][]*closure, n),
		closes:   make([][]*closure, n),
		seen:     map[[2]int]bool{},
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(x, y int) bool { return ranks[order[x]] < ranks[order[y]] })

	var parts []string
	for _, start := range order {
		if st.visited[start] {
			continue
		}
		st.build(start, -1)
		st.sb.Reset()
		st.digits = st.digits[:0]
		st.emit(start)
		parts = append(parts, st.sb.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, ".")
}

func edgeKey(u, v int) [2]int {
	if u > v {
		u, v = v, u
	}
	return [2]int{u, v}
}

// build lays out the DFS tree and records ring closures, opened at the atom
// visited first.
func (st *dfsState) build(u, from int) {
	st.visited[u] = true
	for _, e := range st.g.nodes[u].nbrs {
		v := e.to
		if v == from {
			continue
		}
		k := edgeKey(u, v)
		if st.seen[k] {
			continue
		}
		st.seen[k] = true
		if st.visited[v] {
			c := &closure{open: v, close: u, e: e}
			st.opens[v] = append(st.opens[v], c)
			st.closes[u] = append(st.closes[u], c)
			continue
		}
		st.children[u] = append(st.children[u], v)
		st.childE[u] = append(st.childE[u], e)
		st.build(v, u)
	}
}

func (st *dfsState) freeDigit() int {
	for i := 1; i < len(st.digits); i++ {
		if !st.digits[i] {
			st.digits[i] = true
			return i
		}
	}
	if len(st.digits) == 0 {
		st.digits = append(st.digits, true)
	}
	st.digits = append(st.digits, true)
	return len(st.digits) - 1
}

func digitText(d int) string {
	if d < 10 {
		return strconv.Itoa(d)
	}
	return fmt.Sprintf("%%%02d", d)
}

func (st *dfsState) emit(u int) {
	g := st.g
	st.sb.WriteString(g.atomText(u))

	for _, c := range st.closes[u] {
		st.sb.WriteString(digitText(c.digit))
		st.digits[c.digit] = false
	}
	opens := st.opens[u]
	sort.Slice(opens, func(x, y int) bool { return st.ranks[opens[x].close] < st.ranks[opens[y].close] })
	for _, c := range opens {
		c.digit = st.freeDigit()
		st.sb.WriteString(g.bondText(u, c.close, c.e))
		st.sb.WriteString(digitText(c.digit))
	}

	kids := st.children[u]
	for i, v := range kids {
		e := st.childE[u][i]
		if i < len(kids)-1 {
			st.sb.WriteByte('(')
			st.sb.WriteString(g.bondText(u, v, e))
			st.emit(v)
			st.sb.WriteByte(')')
			continue
		}
		st.sb.WriteString(g.bondText(u, v, e))
		st.emit(v)
	}
}

func (g *subgraph) bondText(u, v int, e edge) string {
	ua, va := g.nodes[u].atom.Aromatic, g.nodes[v].atom.Aromatic
	switch {
	case e.aromatic && ua && va:
		return ""
	case e.aromatic:
		return ":"
	case e.order == 2:
		return "="
	case e.order == 3:
		return "#"
	case ua && va:
		return "-"
	}
	return ""
}

func (g *subgraph) atomText(u int) string {
	nd := g.nodes[u]
	a := nd.atom
	sym := a.Symbol()

	sum := 0
	for _, e := range nd.nbrs {
		sum += e.order
	}
	if a.Element.Organic && a.Isotope == 0 && a.Charge == 0 &&
		nd.h == a.Element.DefaultHydrogens(sum, 0, a.Aromatic) {
		return sym
	}

	var sb strings.Builder
	sb.WriteByte('[')
	if a.Isotope > 0 {
		sb.WriteString(strconv.Itoa(a.Isotope))
	}
	sb.WriteString(sym)
	if nd.h > 0 {
		sb.WriteByte('H')
		if nd.h > 1 {
			sb.WriteString(strconv.Itoa(nd.h))
		}
	}
	switch {
	case a.Charge == 1:
		sb.WriteByte('+')
	case a.Charge == -1:
		sb.WriteByte('-')
	case a.Charge > 1:
		sb.WriteString("+" + strconv.Itoa(a.Charge))
	case a.Charge < -1:
		sb.WriteString("-" + strconv.Itoa(-a.Charge))
	}
	sb.WriteByte(']')
	return sb.String()
}
