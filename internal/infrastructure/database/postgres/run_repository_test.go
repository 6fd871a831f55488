package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/torsion-fragmenter/internal/domain/fragment"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

type RunRepoTestSuite struct {
	suite.Suite
	mock sqlmock.Sqlmock
	repo *RunRepository
	now  time.Time
}

func (s *RunRepoTestSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	require.NoError(s.T(), err)
	s.mock = mock
	s.repo = NewRunRepository(NewConnectionWithDB(db, nil), nil)
	s.now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.T().Cleanup(func() { _ = db.Close() })
}

func (s *RunRepoTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func (s *RunRepoTestSuite) sampleRun() *fragment.Run {
	return &fragment.Run{
		JobID:      "job-1",
		CreatedAt:  s.now,
		Provenance: json.RawMessage(`{"job_id":"job-1"}`),
		Results: []fragment.Result{{
			Title:        "butane",
			ParentSMILES: "CCCC",
			Rotors:       []int{1},
			Fragments: []fragment.Record{
				{SMILES: "CCCC", Atoms: []int{0, 1, 2, 3}, Bonds: []int{0, 1, 2}, RotorBonds: []int{1}, Seed: 1, Multiplicity: 1},
			},
		}},
	}
}

func (s *RunRepoTestSuite) TestSave() {
	run := s.sampleRun()
	s.mock.ExpectBegin()
	s.mock.ExpectExec("INSERT INTO fragmentation_runs").
		WithArgs("job-1", s.now, `{"job_id":"job-1"}`, "[]").
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec("INSERT INTO run_molecules").
		WithArgs("job-1", 0, "butane", "CCCC", "[1]", 0, false, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	s.NoError(s.repo.Save(context.Background(), run))
}

func (s *RunRepoTestSuite) TestSave_Duplicate() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec("INSERT INTO fragmentation_runs").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	s.mock.ExpectRollback()

	err := s.repo.Save(context.Background(), s.sampleRun())
	s.True(errors.IsCode(err, errors.ErrCodeConflict))
}

func (s *RunRepoTestSuite) TestSave_MoleculeFailureRollsBack() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec("INSERT INTO fragmentation_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec("INSERT INTO run_molecules").WillReturnError(assert.AnError)
	s.mock.ExpectRollback()

	err := s.repo.Save(context.Background(), s.sampleRun())
	s.True(errors.IsCode(err, errors.ErrCodeDatabaseError))
}

func (s *RunRepoTestSuite) TestGet() {
	frags, _ := json.Marshal(s.sampleRun().Results[0].Fragments)
	s.mock.ExpectQuery("SELECT job_id, created_at, provenance, skipped FROM fragmentation_runs WHERE job_id").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "created_at", "provenance", "skipped"}).
			AddRow("job-1", s.now, []byte(`{"job_id":"job-1"}`), []byte(`[{"title":"x","code":"FRAG_001","reason":"r"}]`)))
	s.mock.ExpectQuery("FROM run_molecules WHERE job_id").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"title", "parent_smiles", "rotors", "combinations", "cached", "depiction", "fragments"}).
			AddRow("butane", "CCCC", []byte("[1]"), 0, true, "", frags))

	run, err := s.repo.Get(context.Background(), "job-1")
	s.Require().NoError(err)
	s.Equal("job-1", run.JobID)
	s.Equal(s.now, run.CreatedAt)
	s.Require().Len(run.Skipped, 1)
	s.Equal("FRAG_001", run.Skipped[0].Code)
	s.Require().Len(run.Results, 1)
	s.Equal([]int{1}, run.Results[0].Rotors)
	s.True(run.Results[0].Cached)
	s.Equal(s.sampleRun().Results[0].Fragments, run.Results[0].Fragments)
}

func (s *RunRepoTestSuite) TestGet_NotFound() {
	s.mock.ExpectQuery("FROM fragmentation_runs WHERE job_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "created_at", "provenance", "skipped"}))

	_, err := s.repo.Get(context.Background(), "missing")
	s.True(errors.IsCode(err, errors.ErrCodeFragRunNotFound))
	s.True(errors.IsNotFound(err))
}

func (s *RunRepoTestSuite) TestList() {
	s.mock.ExpectQuery("ORDER BY created_at DESC LIMIT").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "created_at", "provenance", "skipped"}).
			AddRow("b", s.now, []byte("{}"), []byte("[]")).
			AddRow("a", s.now.Add(-time.Hour), []byte("{}"), []byte("[]")))

	runs, err := s.repo.List(context.Background(), 2)
	s.Require().NoError(err)
	s.Require().Len(runs, 2)
	s.Equal("b", runs[0].JobID)
	s.Empty(runs[0].Results)
}

func TestRunRepoSuite(t *testing.T) {
	suite.Run(t, new(RunRepoTestSuite))
}
