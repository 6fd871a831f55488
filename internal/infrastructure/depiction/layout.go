package depiction

import (
	"math"

	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
)

// Point is a 2D position in bond-length units.
type Point struct{ X, Y float64 }

const (
	layoutIterations = 300
	bondLength       = 1.0
)

// Layout returns depiction coordinates, one per atom.  Molfile coordinates are
// used when every atom has them; otherwise atoms are seeded along a breadth
// first tree and relaxed with a spring embedder.  The result depends only on
// the molecule, so repeated renders are identical.
func Layout(mol *molecule.Molecule) []Point {
	n := mol.NumAtoms()
	pts := make([]Point, n)
	if mol.HasCoords() {
		for i := 0; i < n; i++ {
			a := mol.Atom(i)
			pts[i] = Point{a.X, a.Y}
		}
		return pts
	}
	if n == 0 {
		return pts
	}
	seed(mol, pts)
	relax(mol, pts)
	return pts
}

// seed places each component as a zigzag tree, components side by side.
func seed(mol *molecule.Molecule, pts []Point) {
	placed := make([]bool, mol.NumAtoms())
	offset := 0.0
	for root := range pts {
		if placed[root] {
			continue
		}
		pts[root] = Point{offset, 0}
		placed[root] = true
		queue := []int{root}
		angle := map[int]float64{root: 0}
		maxX := offset
		for len(queue) > 0 {
			a := queue[0]
			queue = queue[1:]
			var kids []int
			for _, nb := range mol.Neighbors(a) {
				if !placed[nb] {
					kids = append(kids, nb)
				}
			}
			spread := math.Pi * 2 / 3
			base := angle[a]
			for k, c := range kids {
				theta := base
				if len(kids) > 1 {
					theta = base - spread/2 + spread*float64(k)/float64(len(kids)-1)
				} else if k%2 == 0 {
					theta = base + math.Pi/6*zig(a)
				}
				pts[c] = Point{pts[a].X + bondLength*math.Cos(theta), pts[a].Y + bondLength*math.Sin(theta)}
				angle[c] = theta
				placed[c] = true
				queue = append(queue, c)
				if pts[c].X > maxX {
					maxX = pts[c].X
				}
			}
		}
		offset = maxX + 2*bondLength
	}
}

func zig(i int) float64 {
	if i%2 == 0 {
		return 1
	}
	return -1
}

// relax runs a Fruchterman-Reingold style embedding with bonded springs at
// bondLength and pairwise repulsion, with a cooling step size.
func relax(mol *molecule.Molecule, pts []Point) {
	n := len(pts)
	disp := make([]Point, n)
	step := 0.3
	for it := 0; it < layoutIterations; it++ {
		for i := range disp {
			disp[i] = Point{}
		}
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				dx, dy := pts[i].X-pts[j].X, pts[i].Y-pts[j].Y
				d2 := dx*dx + dy*dy
				if d2 < 1e-6 {
					dx, dy, d2 = 0.01*float64(i-j), 0.01, 1e-4
				}
				f := 0.4 / d2
				disp[i].X += dx * f
				disp[i].Y += dy * f
				disp[j].X -= dx * f
				disp[j].Y -= dy * f
			}
		}
		for _, b := range mol.Bonds() {
			dx, dy := pts[b.Begin].X-pts[b.End].X, pts[b.Begin].Y-pts[b.End].Y
			d := math.Hypot(dx, dy)
			if d < 1e-6 {
				continue
			}
			f := 0.5 * (d - bondLength) / d
			disp[b.Begin].X -= dx * f
			disp[b.Begin].Y -= dy * f
			disp[b.End].X += dx * f
			disp[b.End].Y += dy * f
		}
		for i := range pts {
			d := math.Hypot(disp[i].X, disp[i].Y)
			if d > step {
				disp[i].X *= step / d
				disp[i].Y *= step / d
			}
			pts[i].X += disp[i].X
			pts[i].Y += disp[i].Y
		}
		step *= 0.99
	}
}

// bounds returns the bounding box of pts.
func bounds(pts []Point) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return
}
