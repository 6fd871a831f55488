package molecule

import "sort"

// perceive derives ring membership, aromaticity of Kekulé six-rings and rotor
// flags.  It runs once inside Build.
func perceive(m *Molecule) {
	markRingBonds(m)
	aromatizeSixRings(m)
	demoteAcyclicAromatic(m)
	markRotors(m)
}

// markRingBonds flags every bond that is not a bridge of the graph.
func markRingBonds(m *Molecule) {
	n := len(m.atoms)
	disc := make([]int, n)
	low := make([]int, n)
	for i := range disc {
		disc[i] = -1
	}
	bridge := make([]bool, len(m.bonds))
	timer := 0

	var visit func(u, viaBond int)
	visit = func(u, viaBond int) {
		disc[u] = timer
		low[u] = timer
		timer++
		for _, bi := range m.adj[u] {
			if bi == viaBond {
				continue
			}
			v := m.bonds[bi].Other(u)
			if disc[v] == -1 {
				visit(v, bi)
				if low[v] < low[u] {
					low[u] = low[v]
				}
				if low[v] > disc[u] {
					bridge[bi] = true
				}
			} else if disc[v] < low[u] {
				low[u] = disc[v]
			}
		}
	}
	for i := 0; i < n; i++ {
		if disc[i] == -1 {
			visit(i, -1)
		}
	}
	for i := range m.bonds {
		m.bonds[i].InRing = !bridge[i]
	}
}

// sixRings enumerates the simple six-membered cycles made of ring bonds.  Each
// cycle is returned once, as its atom sequence starting at its lowest atom.
func sixRings(m *Molecule) [][]int {
	var rings [][]int
	seen := map[[6]int]bool{}
	path := make([]int, 0, 6)
	onPath := make([]bool, len(m.atoms))

	var walk func(start, u int)
	walk = func(start, u int) {
		if len(path) == 6 {
			if _, ok := m.BondBetween(u, start); !ok {
				return
			}
			var key [6]int
			copy(key[:], path)
			sort.Ints(key[:])
			if !seen[key] {
				seen[key] = true
				rings = append(rings, append([]int(nil), path...))
			}
			return
		}
		for _, bi := range m.adj[u] {
			b := m.bonds[bi]
			if !b.InRing {
				continue
			}
			v := b.Other(u)
			if v <= start || onPath[v] {
				continue
			}
			onPath[v] = true
			path = append(path, v)
			walk(start, v)
			path = path[:len(path)-1]
			onPath[v] = false
		}
	}

	for s := range m.atoms {
		if !m.InRing(s) {
			continue
		}
		onPath[s] = true
		path = append(path[:0], s)
		walk(s, s)
		onPath[s] = false
	}
	return rings
}

// aromatizeSixRings marks six-rings of sp2 carbon/nitrogen with alternating
// bonds as aromatic.  Rings are revisited until nothing changes so that fused
// Kekulé systems such as naphthalene are fully aromatised.
func aromatizeSixRings(m *Molecule) {
	rings := sixRings(m)
	changed := true
	for changed {
		changed = false
		for _, ring := range rings {
			if ringAromatic(m, ring) || !kekuleSixRing(m, ring) {
				continue
			}
			for i, a := range ring {
				m.atoms[a].Aromatic = true
				b, _ := m.BondBetween(a, ring[(i+1)%6])
				m.bonds[b.Index].Aromatic = true
				m.bonds[b.Index].Order = 1
			}
			changed = true
		}
	}
}

func ringAromatic(m *Molecule, ring []int) bool {
	for i, a := range ring {
		b, _ := m.BondBetween(a, ring[(i+1)%6])
		if !b.Aromatic {
			return false
		}
	}
	return true
}

func kekuleSixRing(m *Molecule, ring []int) bool {
	inRing := make(map[int]bool, 6)
	for _, a := range ring {
		inRing[a] = true
	}
	for i, a := range ring {
		el := m.atoms[a].Element.Number
		if el != 6 && el != 7 {
			return false
		}
		b, _ := m.BondBetween(a, ring[(i+1)%6])
		if b.Order == 3 {
			return false
		}
		if m.atoms[a].Aromatic {
			continue
		}
		hasDouble := false
		for _, bi := range m.adj[a] {
			nb := m.bonds[bi]
			if nb.Order == 2 && !nb.Aromatic && inRing[nb.Other(a)] {
				hasDouble = true
				break
			}
		}
		if !hasDouble {
			return false
		}
	}
	return true
}

// demoteAcyclicAromatic turns aromatic bonds outside rings (an artefact of
// implicit bonds between aromatic atoms, as in biphenyl SMILES) into single
// bonds.
func demoteAcyclicAromatic(m *Molecule) {
	for i := range m.bonds {
		if m.bonds[i].Aromatic && !m.bonds[i].InRing {
			m.bonds[i].Aromatic = false
			m.bonds[i].Order = 1
		}
	}
}

// markRotors flags single, non-ring bonds between two atoms that each have
// another heavy neighbour.  Bonds touching an sp atom are excluded since
// rotation about a linear centre is not a torsion.
func markRotors(m *Molecule) {
	for i, b := range m.bonds {
		m.bonds[i].IsRotor = b.Order == 1 && !b.Aromatic && !b.InRing &&
			!m.atoms[b.Begin].IsHydrogen() && !m.atoms[b.End].IsHydrogen() &&
			m.HeavyDegree(b.Begin) > 1 && m.HeavyDegree(b.End) > 1 &&
			!hasTriple(m, b.Begin) && !hasTriple(m, b.End)
	}
}

func hasTriple(m *Molecule, atom int) bool {
	for _, bi := range m.adj[atom] {
		if m.bonds[bi].Order == 3 {
			return true
		}
	}
	return false
}
