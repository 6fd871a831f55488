package smarts

import (
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
)

// Match is one embedding of a pattern.  Atoms[i] is the target atom matched by
// query atom i; Bonds[j] is the target bond matched by query bond j.
type Match struct {
	Atoms []int
	Bonds []int
}

// searchOrder lists query atoms so that, within each connected component,
// every atom after the first is bonded to an earlier one.
func (p *Pattern) searchOrder() []int {
	seen := make([]bool, len(p.atoms))
	order := make([]int, 0, len(p.atoms))
	for s := range p.atoms {
		if seen[s] {
			continue
		}
		seen[s] = true
		queue := []int{s}
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			order = append(order, u)
			for _, bi := range p.adj[u] {
				qb := p.bonds[bi]
				v := qb.a1
				if v == u {
					v = qb.a2
				}
				if !seen[v] {
					seen[v] = true
					queue = append(queue, v)
				}
			}
		}
	}
	return order
}

type matcher struct {
	p      *Pattern
	m      *molecule.Molecule
	q2t    []int
	used   []bool
	unique map[string]bool
	out    []Match
	limit  int
}

// FindAll returns every match whose atom set differs from the atom sets of the
// matches already found, in a deterministic order (ascending target atoms).
func (p *Pattern) FindAll(m *molecule.Molecule) []Match {
	return p.find(m, 0)
}

// Matches reports whether the pattern occurs in m.
func (p *Pattern) Matches(m *molecule.Molecule) bool {
	return len(p.find(m, 1)) > 0
}

func (p *Pattern) find(m *molecule.Molecule, limit int) []Match {
	if m == nil || len(p.atoms) == 0 || len(p.atoms) > m.NumAtoms() {
		return nil
	}
	mt := &matcher{
		p:      p,
		m:      m,
		q2t:    make([]int, len(p.atoms)),
		used:   make([]bool, m.NumAtoms()),
		unique: map[string]bool{},
		limit:  limit,
	}
	for i := range mt.q2t {
		mt.q2t[i] = -1
	}
	mt.extend(0)
	return mt.out
}

func (mt *matcher) full() bool {
	return mt.limit > 0 && len(mt.out) >= mt.limit
}

func (mt *matcher) extend(depth int) {
	if mt.full() {
		return
	}
	if depth == len(mt.p.order) {
		mt.record()
		return
	}
	q := mt.p.order[depth]

	// Anchor on an already mapped neighbour when there is one.
	anchor := -1
	for _, bi := range mt.p.adj[q] {
		qb := mt.p.bonds[bi]
		other := qb.a1
		if other == q {
			other = qb.a2
		}
		if mt.q2t[other] >= 0 {
			anchor = mt.q2t[other]
			break
		}
	}

	var candidates []int
	if anchor >= 0 {
		candidates = mt.m.Neighbors(anchor)
		sort.Ints(candidates)
	} else {
		candidates = make([]int, mt.m.NumAtoms())
		for i := range candidates {
			candidates[i] = i
		}
	}

	for _, t := range candidates {
		if mt.used[t] || !mt.p.atoms[q](mt.m, t) || !mt.bondsAgree(q, t) {
			continue
		}
		mt.q2t[q] = t
		mt.used[t] = true
		mt.extend(depth + 1)
		mt.used[t] = false
		mt.q2t[q] = -1
		if mt.full() {
			return
		}
	}
}

// bondsAgree checks every query bond from q to an already mapped atom.
func (mt *matcher) bondsAgree(q, t int) bool {
	for _, bi := range mt.p.adj[q] {
		qb := mt.p.bonds[bi]
		other := qb.a1
		if other == q {
			other = qb.a2
		}
		ot := mt.q2t[other]
		if ot < 0 {
			continue
		}
		b, ok := mt.m.BondBetween(t, ot)
		if !ok || !qb.pred(b) {
			return false
		}
	}
	return true
}

func (mt *matcher) record() {
	atoms := append([]int(nil), mt.q2t...)
	key := append([]int(nil), atoms...)
	sort.Ints(key)
	parts := make([]string, len(key))
	for i, a := range key {
		parts[i] = strconv.Itoa(a)
	}
	k := strings.Join(parts, ",")
	if mt.unique[k] {
		return
	}
	mt.unique[k] = true

	bonds := make([]int, len(mt.p.bonds))
	for i, qb := range mt.p.bonds {
		b, _ := mt.m.BondBetween(atoms[qb.a1], atoms[qb.a2])
		bonds[i] = b.Index
	}
	mt.out = append(mt.out, Match{Atoms: atoms, Bonds: bonds})
}
