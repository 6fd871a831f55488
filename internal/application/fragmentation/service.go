// Package fragmentation is the application service around the torsion
// fragmentation core.  It parses inputs, attaches bond weights, runs the
// tag → grow → assemble → deduplicate pipeline per molecule on a bounded
// worker pool, and hands results to the optional cache, stores and graph.
package fragmentation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/torsion-fragmenter/internal/chem/fgroups"
	"github.com/turtacn/torsion-fragmenter/internal/chem/molfile"
	"github.com/turtacn/torsion-fragmenter/internal/chem/smiles"
	"github.com/turtacn/torsion-fragmenter/internal/chem/wbo"
	"github.com/turtacn/torsion-fragmenter/internal/domain/fragment"
	"github.com/turtacn/torsion-fragmenter/internal/domain/molecule"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// PackageName is reported in provenance records.
const PackageName = "torsion-fragmenter"

const (
	routineGenerate = "fragmentation.Service.Generate"
	modeTorsion     = "torsion"
	modeCut         = "cut"
)

// Service defines the fragmentation use cases.
type Service interface {
	// Generate fragments every input and returns the provenance report.
	// Molecules that cannot be fragmented are listed in Report.Skipped.
	Generate(ctx context.Context, inputs []Input, opts Options) (*Report, error)

	// FragmentMolecule fragments a single molecule.
	FragmentMolecule(ctx context.Context, in Input, opts Options) (*fragment.Result, error)

	// Cut splits a molecule at every weak acyclic bond outside functional
	// groups.
	Cut(ctx context.Context, in Input, threshold float64) (*CutResult, error)

	GetRun(ctx context.Context, jobID string) (*fragment.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*fragment.Run, error)
	Lineage(ctx context.Context, parentSMILES string) ([]string, error)
}

// Option configures the service.
type Option func(*serviceImpl)

func WithLibrary(lib *fgroups.Library) Option {
	return func(s *serviceImpl) {
		if lib != nil {
			s.library = lib
		}
	}
}

// WithWeightProvider replaces the default weight source (input weights, then
// the WibergBondOrder SD field).
func WithWeightProvider(p wbo.Provider) Option {
	return func(s *serviceImpl) {
		if p != nil {
			s.weights = p
		}
	}
}

// WithWorkers bounds the molecules fragmented in parallel.
func WithWorkers(n int) Option {
	return func(s *serviceImpl) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithVersion(v string) Option { return func(s *serviceImpl) { s.version = v } }

func WithCache(c ResultCache) Option { return func(s *serviceImpl) { s.cache = c } }

func WithReportStore(st ReportStore) Option { return func(s *serviceImpl) { s.store = st } }

func WithRunRepository(r fragment.RunRepository) Option { return func(s *serviceImpl) { s.runs = r } }

func WithLineage(g fragment.LineageGraph) Option { return func(s *serviceImpl) { s.lineage = g } }

func WithDepicter(d Depicter) Option { return func(s *serviceImpl) { s.depicter = d } }

func WithMetrics(m Metrics) Option {
	return func(s *serviceImpl) {
		if m != nil {
			s.metrics = m
		}
	}
}

type serviceImpl struct {
	logger   logging.Logger
	library  *fgroups.Library
	weights  wbo.Provider
	workers  int
	version  string
	cache    ResultCache
	store    ReportStore
	runs     fragment.RunRepository
	lineage  fragment.LineageGraph
	depicter Depicter
	metrics  Metrics
	encoder  smiles.Writer
	now      func() time.Time
}

// NewService creates the fragmentation service.
func NewService(logger logging.Logger, opts ...Option) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		logger:  logger.Named("fragmentation"),
		library: fgroups.Default(),
		weights: wbo.Chain{wbo.Existing{}, wbo.SDTag{Tag: molfile.DefaultWeightTag}},
		workers: runtime.NumCPU(),
		version: "dev",
		metrics: nopMetrics{},
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Generate
// ─────────────────────────────────────────────────────────────────────────────

// outcome carries what a run needs beyond the stored result.
type outcome struct {
	result *fragment.Result
	mol    *molecule.Molecule
	frags  fragment.FragmentMap
	skip   *fragment.Skip
}

func (s *serviceImpl) Generate(ctx context.Context, inputs []Input, opts Options) (*Report, error) {
	if len(inputs) == 0 {
		return nil, errors.New(errors.ErrCodeFragNoMolecules, errors.DefaultMessageForCode(errors.ErrCodeFragNoMolecules))
	}
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	jobID := uuid.New().String()
	ctx = logging.WithJobID(ctx, jobID)
	log := s.logger.WithContext(ctx)
	log.Info("fragmentation job started", logging.Int("molecules", len(inputs)), logging.Int("workers", s.workers))

	outcomes := make([]outcome, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range inputs {
		i := i
		g.Go(func() error {
			out, err := s.fragmentOne(gctx, inputs[i], opts)
			if err != nil {
				if isContextErr(err) {
					return err
				}
				title := inputs[i].Title
				if out.mol != nil {
					title = out.mol.Title
				}
				log.Warn("skipping molecule", logging.Molecule(title), logging.Err(err))
				s.metrics.ObserveMolecule(statusSkipped, modeTorsion, 0, 0, 0, 0)
				out.skip = &fragment.Skip{Title: title, Code: string(errors.GetCode(err)), Reason: err.Error()}
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCanceled, "fragmentation job interrupted").WithDetail(jobID)
	}

	report := &Report{
		Provenance: s.provenance(jobID, opts),
		Fragments:  map[string][]string{},
	}
	for _, o := range outcomes {
		if o.skip != nil {
			report.Skipped = append(report.Skipped, *o.skip)
			continue
		}
		if opts.Depict {
			s.depict(ctx, jobID, &o, opts.Threshold)
		}
		report.Fragments[o.result.ParentSMILES] = o.result.SMILES()
		report.Results = append(report.Results, *o.result)
	}

	if err := s.persist(ctx, report); err != nil {
		return nil, err
	}
	log.Info("fragmentation job finished",
		logging.Int("fragmented", len(report.Results)),
		logging.Int("skipped", len(report.Skipped)))
	return report, nil
}

const (
	statusFragmented = "fragmented"
	statusSkipped    = "skipped"
	statusCached     = "cached"
)

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// persist stores the run.  Repository failures fail the job; report storage
// and lineage failures are only logged.
func (s *serviceImpl) persist(ctx context.Context, report *Report) error {
	if s.runs == nil && s.store == nil && s.lineage == nil {
		return nil
	}
	log := s.logger.WithContext(ctx)
	run, err := report.Run()
	if err != nil {
		return err
	}
	if s.runs != nil {
		if err := s.runs.Save(ctx, run); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "save fragmentation run").WithDetail(run.JobID)
		}
	}
	if s.store != nil {
		doc, err := report.MarshalIndent()
		if err == nil {
			_, err = s.store.PutReport(ctx, run.JobID, doc)
		}
		if err != nil {
			log.Warn("report upload failed", logging.Err(err))
		}
	}
	if s.lineage != nil {
		if err := s.lineage.RecordLineage(ctx, run); err != nil {
			log.Warn("lineage recording failed", logging.Err(err))
		}
	}
	return nil
}

func (s *serviceImpl) depict(ctx context.Context, jobID string, o *outcome, threshold float64) {
	if s.depicter == nil || s.store == nil {
		return
	}
	log := s.logger.WithContext(ctx).With(logging.Molecule(o.mol.Title))
	frags := o.frags
	if frags == nil {
		fopts := fragment.Options{Threshold: threshold, Logger: log}
		tags, err := fragment.TagMolecule(o.mol, s.library, fopts)
		if err == nil {
			frags, err = fragment.BuildFragmentMap(o.mol, tags, fopts)
		}
		if err != nil {
			log.Warn("depiction skipped", logging.Err(err))
			return
		}
	}
	png, err := s.depicter.Render(o.mol, frags)
	if err != nil {
		log.Warn("depiction failed", logging.Err(err))
		return
	}
	key, err := s.store.PutDepiction(ctx, jobID, depictionName(o.mol.Title, o.result.ParentSMILES), png)
	if err != nil {
		log.Warn("depiction upload failed", logging.Err(err))
		return
	}
	o.result.Depiction = key
}

func depictionName(title, parent string) string {
	if title == "" {
		sum := sha256.Sum256([]byte(parent))
		title = hex.EncodeToString(sum[:6])
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, title) + ".png"
}

// ─────────────────────────────────────────────────────────────────────────────
// Single molecule
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) FragmentMolecule(ctx context.Context, in Input, opts Options) (*fragment.Result, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	out, err := s.fragmentOne(ctx, in, opts)
	if err != nil {
		return nil, err
	}
	return out.result, nil
}

func (s *serviceImpl) fragmentOne(ctx context.Context, in Input, opts Options) (outcome, error) {
	if err := ctx.Err(); err != nil {
		return outcome{}, err
	}
	mol, err := s.load(ctx, in)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{mol: mol}
	log := s.logger.WithContext(ctx).With(logging.Molecule(mol.Title))
	start := s.now()

	parent := smiles.Canonical(mol)
	key := s.cacheKey(mol, opts)
	if res, ok := s.cached(ctx, key, mol.Title); ok {
		s.metrics.ObserveMolecule(statusCached, modeTorsion, len(res.Rotors), res.Combinations, len(res.Fragments), 0)
		out.result = res
		return out, nil
	}

	fopts := fragment.Options{Threshold: opts.Threshold, MaxCombinations: opts.MaxCombinations, Logger: log}
	tags, err := fragment.TagMolecule(mol, s.library, fopts)
	if err != nil {
		return out, err
	}
	fm, err := fragment.BuildFragmentMap(mol, tags, fopts)
	if err != nil {
		return out, err
	}
	out.frags = fm

	bases := fm.List()
	all := bases
	if opts.Combinatorial {
		if all, err = fragment.AssembleCombinations(mol, bases, opts.MaxRotors, opts.MinRotors, fopts); err != nil {
			return out, err
		}
	}
	dd, err := fragment.Deduplicate(mol, all, s.encoder)
	if err != nil {
		return out, err
	}

	res := &fragment.Result{
		Title:        mol.Title,
		ParentSMILES: parent,
		Rotors:       fm.Rotors(),
		Combinations: len(all) - len(bases),
		Fragments:    records(mol, fm, dd),
	}
	elapsed := s.now().Sub(start)
	s.metrics.ObserveMolecule(statusFragmented, modeTorsion, len(res.Rotors), res.Combinations, len(res.Fragments), elapsed)
	log.Info("molecule fragmented",
		logging.Int("rotors", len(res.Rotors)),
		logging.Int("fragments", len(res.Fragments)),
		logging.Duration("elapsed", elapsed))

	s.remember(ctx, key, res)
	out.result = res
	return out, nil
}

// records turns the deduplicated groups into stored records.
func records(mol *molecule.Molecule, fm fragment.FragmentMap, dd *fragment.Deduplication) []fragment.Record {
	seeds := make(map[string]int, len(fm))
	for rotor, f := range fm {
		if _, ok := seeds[f.Key()]; !ok || rotor < seeds[f.Key()] {
			seeds[f.Key()] = rotor
		}
	}
	out := make([]fragment.Record, 0, dd.Len())
	for _, enc := range dd.Keys {
		group := dd.Groups[enc]
		first := group[0]
		seed, ok := seeds[first.Key()]
		if !ok {
			seed = -1
		}
		var rotors []int
		for _, b := range first.Bonds {
			if mol.Bond(b).IsRotor {
				rotors = append(rotors, b)
			}
		}
		out = append(out, fragment.Record{
			SMILES:       enc,
			Atoms:        first.Atoms,
			Bonds:        first.Bonds,
			RotorBonds:   rotors,
			Seed:         seed,
			Multiplicity: len(group),
		})
	}
	return out
}

func (s *serviceImpl) load(ctx context.Context, in Input) (*molecule.Molecule, error) {
	var (
		mol *molecule.Molecule
		err error
	)
	switch {
	case in.Mol != nil:
		mol = in.Mol
	case strings.TrimSpace(in.SMILES) != "":
		mol, err = smiles.Parse(in.SMILES, in.Title)
	case strings.TrimSpace(in.Molfile) != "":
		mol, err = molfile.ParseString(in.Molfile)
		if err == nil && in.Title != "" {
			mol.Title = in.Title
		}
	default:
		return nil, errors.New(errors.ErrCodeMoleculeInvalidFormat, "input carries neither SMILES nor molfile").WithDetail(in.Title)
	}
	if err != nil {
		return nil, err
	}
	if len(in.Weights) > 0 {
		if mol, err = mol.WithWeights(in.Weights); err != nil {
			return nil, err
		}
	}
	return s.weights.Assign(ctx, mol)
}

// ── cache ──

// cacheKey covers everything the result depends on: atoms and bonds in input
// order (stored indices refer to them), weights, options and the library.
func (s *serviceImpl) cacheKey(mol *molecule.Molecule, opts Options) string {
	h := sha256.New()
	for _, a := range mol.Atoms() {
		fmt.Fprintf(h, "%s%d%+d%d;", a.Symbol(), a.Isotope, a.Charge, a.HCount)
	}
	for _, b := range mol.Bonds() {
		w, _ := b.Weight()
		fmt.Fprintf(h, "%d-%d-%d-%t:%s;", b.Begin, b.End, b.Order, b.Aromatic, strconv.FormatFloat(w, 'g', -1, 64))
	}
	fmt.Fprintf(h, "|%t|%d|%d|%g|%d|%s|%d|%s",
		opts.Combinatorial, opts.MaxRotors, opts.MinRotors, opts.Threshold, opts.MaxCombinations,
		s.library.Source(), s.library.Len(), smiles.WriterVersion)
	return "frag:" + hex.EncodeToString(h.Sum(nil))
}

func (s *serviceImpl) cached(ctx context.Context, key, title string) (*fragment.Result, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WithContext(ctx).Warn("cache read failed", logging.String("key", key), logging.Err(err))
		return nil, false
	}
	s.metrics.RecordCacheAccess("result", ok)
	if !ok {
		return nil, false
	}
	var res fragment.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		s.logger.WithContext(ctx).Warn("cached result unreadable", logging.String("key", key), logging.Err(err))
		return nil, false
	}
	res.Title = title
	res.Cached = true
	return &res, true
}

func (s *serviceImpl) remember(ctx context.Context, key string, res *fragment.Result) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err == nil {
		err = s.cache.Set(ctx, key, raw)
	}
	if err != nil {
		s.logger.WithContext(ctx).Warn("cache write failed", logging.String("key", key), logging.Err(err))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Cut
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) Cut(ctx context.Context, in Input, threshold float64) (*CutResult, error) {
	if threshold < 0 {
		return nil, errors.New(errors.ErrCodeFragInvalidThreshold, errors.DefaultMessageForCode(errors.ErrCodeFragInvalidThreshold))
	}
	if threshold == 0 {
		threshold = fragment.DefaultThreshold
	}
	mol, err := s.load(ctx, in)
	if err != nil {
		return nil, err
	}
	start := s.now()
	log := s.logger.WithContext(ctx).With(logging.Molecule(mol.Title))
	tags, err := fragment.TagMolecule(mol, s.library, fragment.Options{Threshold: threshold, Logger: log})
	if err != nil {
		return nil, err
	}
	pieces, err := fragment.CutByBondOrder(mol, tags, threshold)
	if err != nil {
		return nil, err
	}
	dd, err := fragment.Deduplicate(mol, pieces, s.encoder)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveMolecule(statusFragmented, modeCut, mol.NumRotors(), 0, dd.Len(), s.now().Sub(start))
	return &CutResult{
		Title:        mol.Title,
		ParentSMILES: smiles.Canonical(mol),
		Threshold:    threshold,
		Fragments:    append([]string(nil), dd.Keys...),
		Pieces:       len(pieces),
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Runs
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) GetRun(ctx context.Context, jobID string) (*fragment.Run, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, errors.InvalidParam("job id is required")
	}
	if s.runs == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "run repository is not configured")
	}
	return s.runs.Get(ctx, jobID)
}

func (s *serviceImpl) ListRuns(ctx context.Context, limit int) ([]*fragment.Run, error) {
	if s.runs == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "run repository is not configured")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.runs.List(ctx, limit)
}

func (s *serviceImpl) Lineage(ctx context.Context, parentSMILES string) ([]string, error) {
	if s.lineage == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "lineage graph is not configured")
	}
	mol, err := smiles.Parse(parentSMILES, "")
	if err != nil {
		return nil, err
	}
	return s.lineage.FragmentsOf(ctx, smiles.Canonical(mol))
}
