// Package depiction draws a PNG report for a fragmented molecule: a header
// with the whole molecule and its bond weights, then one cell per rotor with
// the fragment in colour and the rest of the molecule greyed out.
package depiction

import (
	"bytes"
	"fmt"
	"math"

	"github.com/fogleman/gg"

	"github.com/turtacn/torsion-fragmenter/internal/domain/fragment"
	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

type Config struct {
	CellSize int `mapstructure:"cell_size"`
	Columns  int `mapstructure:"columns"`
	// FontPath is a TrueType font; empty uses the built-in bitmap face.
	FontPath string  `mapstructure:"font_path"`
	FontSize float64 `mapstructure:"font_size"`
}

func DefaultConfig() Config {
	return Config{CellSize: 300, Columns: 3, FontSize: 12}
}

// Renderer implements the fragmentation Depicter.
type Renderer struct {
	cfg    Config
	logger logging.Logger
}

func NewRenderer(cfg Config, log logging.Logger) *Renderer {
	def := DefaultConfig()
	if cfg.CellSize <= 0 {
		cfg.CellSize = def.CellSize
	}
	if cfg.Columns <= 0 {
		cfg.Columns = def.Columns
	}
	if cfg.FontSize <= 0 {
		cfg.FontSize = def.FontSize
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Renderer{cfg: cfg, logger: log.Named("depiction")}
}

var (
	colorFragment = "#1f3b73"
	colorGrey     = "#c8c8c8"
	colorRotor    = "#d62728"
	colorHetero   = "#b03060"
)

// Render draws mol and the fragments of fm.  Rotors without a fragment are
// skipped.
func (r *Renderer) Render(mol *molecule.Molecule, fm fragment.FragmentMap) ([]byte, error) {
	if mol == nil || mol.NumAtoms() == 0 {
		return nil, errors.New(errors.ErrCodeDepictionError, "nothing to depict")
	}
	pts := Layout(mol)
	rotors := fm.Rotors()
	cell := float64(r.cfg.CellSize)
	cols := r.cfg.Columns
	rows := (len(rotors) + cols - 1) / cols

	dc := gg.NewContext(cols*r.cfg.CellSize, (rows+1)*r.cfg.CellSize)
	dc.SetHexColor("#ffffff")
	dc.Clear()
	if r.cfg.FontPath != "" {
		if err := dc.LoadFontFace(r.cfg.FontPath, r.cfg.FontSize); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDepictionError, "load font").WithDetail(r.cfg.FontPath)
		}
	}

	header := panel{x: 0, y: 0, w: float64(cols) * cell, h: cell}
	r.drawMolecule(dc, mol, pts, header, nil, -1, true)
	dc.SetHexColor("#000000")
	dc.DrawStringAnchored(title(mol), header.w/2, 14, 0.5, 0.5)

	for i, bond := range rotors {
		frag := fm[bond]
		p := panel{
			x: float64(i%cols) * cell,
			y: float64(i/cols+1) * cell,
			w: cell,
			h: cell,
		}
		dc.SetHexColor("#e6e6e6")
		dc.SetLineWidth(1)
		dc.DrawRectangle(p.x, p.y, p.w, p.h)
		dc.Stroke()
		r.drawMolecule(dc, mol, pts, p, &frag, bond, false)

		caption := fmt.Sprintf("bond %d", bond)
		if w, ok := mol.Bond(bond).Weight(); ok {
			caption = fmt.Sprintf("bond %d  wbo %.2f", bond, w)
		}
		dc.SetHexColor("#000000")
		dc.DrawStringAnchored(caption, p.x+p.w/2, p.y+p.h-12, 0.5, 0.5)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDepictionError, "encode png")
	}
	r.logger.Debug("depiction rendered", logging.Molecule(mol.Title), logging.Int("cells", len(rotors)))
	return buf.Bytes(), nil
}

func title(mol *molecule.Molecule) string {
	if mol.Title != "" {
		return mol.Title
	}
	return "molecule"
}

type panel struct{ x, y, w, h float64 }

// transform maps layout coordinates into p with a margin, keeping aspect.
func (p panel) transform(pts []Point) func(Point) (float64, float64) {
	minX, minY, maxX, maxY := bounds(pts)
	margin := 30.0
	spanX := math.Max(maxX-minX, 1e-6)
	spanY := math.Max(maxY-minY, 1e-6)
	scale := math.Min((p.w-2*margin)/spanX, (p.h-2*margin)/spanY)
	scale = math.Min(scale, 40)
	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	return func(q Point) (float64, float64) {
		return p.x + p.w/2 + (q.X-cx)*scale, p.y + p.h/2 - (q.Y-cy)*scale
	}
}

// drawMolecule draws every bond and hetero atom label.  With frag set, bonds
// outside it are grey and rotor is highlighted; with weights set, each bond
// that carries a weight is labelled.
func (r *Renderer) drawMolecule(dc *gg.Context, mol *molecule.Molecule, pts []Point, p panel, frag *fragment.Fragment, rotor int, weights bool) {
	at := p.transform(pts)

	for _, b := range mol.Bonds() {
		color := colorFragment
		width := 2.0
		switch {
		case b.Index == rotor:
			color, width = colorRotor, 4
		case frag != nil && !frag.HasBond(b.Index):
			color = colorGrey
		}
		x1, y1 := at(pts[b.Begin])
		x2, y2 := at(pts[b.End])
		drawBond(dc, b, x1, y1, x2, y2, color, width)

		if weights {
			if w, ok := b.Weight(); ok {
				dc.SetHexColor("#555555")
				dc.DrawStringAnchored(fmt.Sprintf("%.2f", w), (x1+x2)/2, (y1+y2)/2-8, 0.5, 0.5)
			}
		}
	}

	for i, a := range mol.Atoms() {
		sym := a.Symbol()
		if a.Element != nil && a.Element.Symbol == "C" && a.Charge == 0 {
			continue
		}
		if a.Charge > 0 {
			sym += "+"
		} else if a.Charge < 0 {
			sym += "-"
		}
		x, y := at(pts[i])
		w, h := dc.MeasureString(sym)
		dc.SetHexColor("#ffffff")
		dc.DrawRectangle(x-w/2-2, y-h/2-2, w+4, h+4)
		dc.Fill()
		if frag != nil && !frag.HasAtom(i) {
			dc.SetHexColor(colorGrey)
		} else {
			dc.SetHexColor(colorHetero)
		}
		dc.DrawStringAnchored(sym, x, y, 0.5, 0.5)
	}
}

func drawBond(dc *gg.Context, b molecule.Bond, x1, y1, x2, y2 float64, color string, width float64) {
	dc.SetHexColor(color)
	dc.SetLineWidth(width)
	dc.DrawLine(x1, y1, x2, y2)
	dc.Stroke()

	lines := b.Order - 1
	if b.Aromatic {
		lines = 1
		dc.SetDash(4, 3)
		defer dc.SetDash()
	}
	if lines <= 0 {
		return
	}
	dx, dy := x2-x1, y2-y1
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l*5, dx/l*5
	for k := 1; k <= lines; k++ {
		s := float64(k)
		if lines == 2 && k == 2 {
			s = -1
		}
		dc.DrawLine(x1+nx*s+dx*0.1, y1+ny*s+dy*0.1, x2+nx*s-dx*0.1, y2+ny*s-dy*0.1)
		dc.Stroke()
	}
}
