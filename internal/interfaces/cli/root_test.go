package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// execute runs the root command with a clean environment file and quiet
// logging, returning stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--env-file", "", "--log-level", "error", "--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "fragmenter", cmd.Use)

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"fragment", "cut", "sort", "watch", "serve", "worker", "migrate", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRootCommand_RejectsUnknownOutput(t *testing.T) {
	_, err := execute(t, "-o", "xml", "version")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestVersion_JSON(t *testing.T) {
	out, err := execute(t, "-o", "json", "version")
	require.NoError(t, err)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestFragment_WritesReport(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "mols.smi", "# test set\nCCCCO butanol\n\nC1CC broken ring\n")
	report := filepath.Join(dir, "out", "frags.json")

	_, err := execute(t, "fragment", in, "--json", report, "--estimate-wbo")
	require.NoError(t, err)

	raw, err := os.ReadFile(report)
	require.NoError(t, err)
	var doc struct {
		Provenance struct {
			JobID          string `json:"job_id"`
			WeightProvider string `json:"weight_provider"`
		} `json:"provenance"`
		Molecules []struct {
			Title string `json:"title"`
		} `json:"molecules"`
		Skipped []struct {
			Title string `json:"title"`
			Code  string `json:"code"`
		} `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.NotEmpty(t, doc.Provenance.JobID)
	assert.NotEmpty(t, doc.Provenance.WeightProvider)
	assert.Equal(t, 2, len(doc.Molecules)+len(doc.Skipped))

	var titles []string
	for _, s := range doc.Skipped {
		titles = append(titles, s.Title)
	}
	assert.Contains(t, titles, "broken ring")
}

func TestFragment_MissingWeightsAreSkipped(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "mols.smi", "CCCCO butanol\n")

	out, err := execute(t, "fragment", in, "-o", "json")
	require.NoError(t, err)

	var doc struct {
		Skipped []struct {
			Code string `json:"code"`
		} `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Skipped, 1)
	assert.Equal(t, string(errors.ErrCodeFragMissingBondOrder), doc.Skipped[0].Code)
}

func TestFragment_TableOutput(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "mols.smi", "CCCCO butanol\n")

	out, err := execute(t, "fragment", in, "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "butanol")
	assert.Contains(t, out, "skipped: FRAG_001")
}

func TestFragment_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "fragment", writeFile(t, dir, "mols.pdb", "x"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeChemUnsupportedInput))

	_, err = execute(t, "fragment", writeFile(t, dir, "empty.smi", "# nothing\n"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeFragNoMolecules))

	_, err = execute(t, "fragment", filepath.Join(dir, "absent.smi"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))

	_, err = execute(t, "fragment", writeFile(t, dir, "m.smi", "CCO\n"), "--max-rotors", "1", "--min-rotors", "3")
	assert.True(t, errors.IsCode(err, errors.ErrCodeFragInvalidBudget))
}

func TestCut_JSON(t *testing.T) {
	out, err := execute(t, "-o", "json", "cut", "CCCCO", "--wbo", "1,1,1,1", "--title", "butanol")
	require.NoError(t, err)

	var results []struct {
		Title     string   `json:"title"`
		Fragments []string `json:"fragments"`
		Pieces    int      `json:"pieces"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "butanol", results[0].Title)
	assert.NotEmpty(t, results[0].Fragments)
	assert.Greater(t, results[0].Pieces, 0)
}

func TestCut_WeightsNeedOneMolecule(t *testing.T) {
	_, err := execute(t, "cut", "CCO", "CCC", "--wbo", "1,1")
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestSort_WritesBins(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "lib.smi", "CCO ethanol\nCCCCCCO hexanol\nC1CC bad\nCC ethane\n")
	outDir := filepath.Join(dir, "bins")

	_, err := execute(t, "sort", in, "--out", outDir)
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(outDir, "nrotor_*.smi"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var lines []string
	for _, f := range files {
		raw, err := os.ReadFile(f)
		require.NoError(t, err)
		lines = append(lines, strings.Split(strings.TrimSpace(string(raw)), "\n")...)
	}
	assert.Len(t, lines, 3)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, " ethanol")
	assert.Contains(t, joined, " hexanol")
	assert.NotContains(t, joined, "bad")
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	_, err := execute(t, "migrate", "status")
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigError))
}

func TestWorker_RequiresKafka(t *testing.T) {
	_, err := execute(t, "worker")
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigError))
}
