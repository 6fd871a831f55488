package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/torsion-fragmenter/internal/domain/fragment"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

const (
	cypherConstraintMolecule = `CREATE CONSTRAINT molecule_smiles IF NOT EXISTS FOR (m:Molecule) REQUIRE m.smiles IS UNIQUE`
	cypherConstraintFragment = `CREATE CONSTRAINT fragment_smiles IF NOT EXISTS FOR (f:Fragment) REQUIRE f.smiles IS UNIQUE`

	cypherRecordLineage = `
MERGE (p:Molecule {smiles: $parent})
  ON CREATE SET p.title = $title
WITH p
UNWIND $fragments AS frag
MERGE (f:Fragment {smiles: frag.smiles})
MERGE (p)-[r:FRAGMENTS_TO {job_id: $job_id}]->(f)
SET r.seed = frag.seed, r.multiplicity = frag.multiplicity, r.rotors = frag.rotors`

	cypherFragmentsOf = `
MATCH (:Molecule {smiles: $parent})-[:FRAGMENTS_TO]->(f:Fragment)
RETURN DISTINCT f.smiles AS smiles
ORDER BY smiles`
)

// LineageGraph implements fragment.LineageGraph as
// (:Molecule)-[:FRAGMENTS_TO {job_id}]->(:Fragment).
type LineageGraph struct {
	driver *Driver
	logger logging.Logger
}

func NewLineageGraph(driver *Driver, log logging.Logger) *LineageGraph {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &LineageGraph{driver: driver, logger: log.Named("lineage")}
}

var _ fragment.LineageGraph = (*LineageGraph)(nil)

// EnsureSchema creates the uniqueness constraints.
func (g *LineageGraph) EnsureSchema(ctx context.Context) error {
	_, err := g.driver.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
		for _, c := range []string{cypherConstraintMolecule, cypherConstraintFragment} {
			if _, err := tx.Run(ctx, c, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// RecordLineage writes one edge per unique fragment of every parent in run.
// Parents without fragments still get a node.
func (g *LineageGraph) RecordLineage(ctx context.Context, run *fragment.Run) error {
	if run == nil || len(run.Results) == 0 {
		return nil
	}
	_, err := g.driver.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
		for _, res := range run.Results {
			if _, err := tx.Run(ctx, cypherRecordLineage, lineageParams(run.JobID, res)); err != nil {
				return nil, fmt.Errorf("record lineage of %s: %w", res.ParentSMILES, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	g.logger.Debug("lineage recorded", logging.String("job_id", run.JobID), logging.Int("parents", len(run.Results)))
	return nil
}

func lineageParams(jobID string, res fragment.Result) map[string]any {
	frags := make([]map[string]any, 0, len(res.Fragments))
	for _, f := range res.Fragments {
		rotors := make([]any, len(f.RotorBonds))
		for i, r := range f.RotorBonds {
			rotors[i] = int64(r)
		}
		frags = append(frags, map[string]any{
			"smiles":       f.SMILES,
			"seed":         int64(f.Seed),
			"multiplicity": int64(f.Multiplicity),
			"rotors":       rotors,
		})
	}
	return map[string]any{
		"job_id":    jobID,
		"parent":    res.ParentSMILES,
		"title":     res.Title,
		"fragments": frags,
	}
}

// FragmentsOf returns every fragment recorded for parent across runs,
// sorted.
func (g *LineageGraph) FragmentsOf(ctx context.Context, parentSMILES string) ([]string, error) {
	if parentSMILES == "" {
		return nil, errors.New(errors.ErrCodeBadRequest, "parent smiles is required")
	}
	out, err := g.driver.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		res, err := tx.Run(ctx, cypherFragmentsOf, map[string]any{"parent": parentSMILES})
		if err != nil {
			return nil, err
		}
		return CollectRecords(ctx, res, func(rec *neo4j.Record) (string, error) {
			v, ok := rec.Get("smiles")
			if !ok {
				return "", errors.New(errors.ErrCodeGraphStoreError, "record has no smiles")
			}
			s, _ := v.(string)
			return s, nil
		})
	})
	if err != nil {
		return nil, err
	}
	smiles, _ := out.([]string)
	if smiles == nil {
		smiles = []string{}
	}
	return smiles, nil
}
