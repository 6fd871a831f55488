package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/turtacn/torsion-fragmenter/internal/domain/fragment"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

const pgUniqueViolation = "23505"

// RunRepository implements fragment.RunRepository.
type RunRepository struct {
	db     *sql.DB
	logger logging.Logger
}

func NewRunRepository(conn *Connection, log logging.Logger) *RunRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &RunRepository{db: conn.DB(), logger: log.Named("run_repository")}
}

var _ fragment.RunRepository = (*RunRepository)(nil)

// Save writes the run and its molecules in one transaction.
func (r *RunRepository) Save(ctx context.Context, run *fragment.Run) error {
	skipped, err := json.Marshal(nonNilSkips(run.Skipped))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode skipped molecules")
	}
	prov := run.Provenance
	if len(prov) == 0 {
		prov = json.RawMessage("{}")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO fragmentation_runs (job_id, created_at, provenance, skipped) VALUES ($1, $2, $3, $4)`,
		run.JobID, run.CreatedAt, string(prov), string(skipped),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return errors.New(errors.ErrCodeConflict, "run already stored").WithDetail(run.JobID)
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "insert run").WithDetail(run.JobID)
	}

	for i, res := range run.Results {
		rotors, err := json.Marshal(nonNilInts(res.Rotors))
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "encode rotors")
		}
		frags, err := json.Marshal(res.Fragments)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "encode fragments")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_molecules
				(job_id, position, title, parent_smiles, rotors, combinations, cached, depiction, fragments)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			run.JobID, i, res.Title, res.ParentSMILES, string(rotors), res.Combinations, res.Cached, res.Depiction, string(frags),
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "insert run molecule").WithDetail(res.Title)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "commit run")
	}
	r.logger.Debug("run saved", logging.String("job_id", run.JobID), logging.Int("molecules", len(run.Results)))
	return nil
}

func (r *RunRepository) Get(ctx context.Context, jobID string) (*fragment.Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT job_id, created_at, provenance, skipped FROM fragmentation_runs WHERE job_id = $1`, jobID)
	run, err := scanRun(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeFragRunNotFound, errors.DefaultMessageForCode(errors.ErrCodeFragRunNotFound)).WithDetail(jobID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT title, parent_smiles, rotors, combinations, cached, depiction, fragments
		FROM run_molecules WHERE job_id = $1 ORDER BY position`, jobID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "query run molecules").WithDetail(jobID)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			res           fragment.Result
			rotors, frags []byte
		)
		if err := rows.Scan(&res.Title, &res.ParentSMILES, &rotors, &res.Combinations, &res.Cached, &res.Depiction, &frags); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan run molecule")
		}
		if err := json.Unmarshal(rotors, &res.Rotors); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decode rotors")
		}
		if err := json.Unmarshal(frags, &res.Fragments); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decode fragments")
		}
		run.Results = append(run.Results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "iterate run molecules")
	}
	return run, nil
}

// List returns the newest runs without their molecules.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*fragment.Run, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT job_id, created_at, provenance, skipped FROM fragmentation_runs
		ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list runs")
	}
	defer rows.Close()

	var out []*fragment.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "iterate runs")
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*fragment.Run, error) {
	var (
		run           fragment.Run
		prov, skipped []byte
	)
	if err := s.Scan(&run.JobID, &run.CreatedAt, &prov, &skipped); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan run")
	}
	run.Provenance = json.RawMessage(prov)
	if len(skipped) > 0 {
		if err := json.Unmarshal(skipped, &run.Skipped); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decode skipped molecules")
		}
	}
	return &run, nil
}

func nonNilSkips(s []fragment.Skip) []fragment.Skip {
	if s == nil {
		return []fragment.Skip{}
	}
	return s
}

func nonNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
