package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/torsion-fragmenter/internal/application/fragmentation"
	"github.com/turtacn/torsion-fragmenter/internal/config"
	"github.com/turtacn/torsion-fragmenter/internal/testutil"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

func TestNew_NoBackends(t *testing.T) {
	cfg := config.Default()
	c, err := New(context.Background(), cfg, nil, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NotNil(t, c.Service)
	assert.NotNil(t, c.Metrics)
	assert.Nil(t, c.Redis)
	assert.Nil(t, c.Postgres)
	assert.Empty(t, c.HealthChecks())

	opts := c.Options()
	assert.Equal(t, cfg.Fragmenter.WBOThreshold, opts.Threshold)
	assert.Equal(t, cfg.Fragmenter.MaxRotors, opts.MaxRotors)
	assert.True(t, opts.Combinatorial)

	res, err := c.Service.Cut(context.Background(), fragmentation.Input{SMILES: "CCCCO", Weights: []float64{1, 1, 1, 1}}, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Fragments)
}

func TestNew_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	c, err := New(context.Background(), cfg, nil, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NotNil(t, c.Locker)
	checks := c.HealthChecks()
	require.Len(t, checks, 1)
	assert.Equal(t, "redis", checks[0].Name())
	assert.NoError(t, checks[0].Check(context.Background()))
}

func TestNew_BadFunctionalGroups(t *testing.T) {
	cfg := config.Default()
	cfg.Fragmenter.FunctionalGroupsFile = "/nonexistent/fgroups.yml"
	_, err := New(context.Background(), cfg, nil, "test")
	assert.Error(t, err)
}

func TestNew_UnreachableRedisClosesNothingTwice(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.Default()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = addr
	_, err := New(context.Background(), cfg, nil, "test")
	assert.Error(t, err)
}

func TestReload(t *testing.T) {
	log := testutil.NewMockLogger()
	cfg := config.Default()
	c, err := New(context.Background(), cfg, log, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	next := *cfg
	next.Fragmenter.WBOThreshold = 1.05
	next.Fragmenter.MaxRotors = 4
	c.Reload(&next)

	assert.Equal(t, 1.05, c.Options().Threshold)
	assert.Equal(t, 4, c.Options().MaxRotors)
	assert.True(t, log.HasMessage("info", "configuration reloaded"))
}

func TestClose_Idempotent(t *testing.T) {
	c, err := New(context.Background(), config.Default(), nil, "test")
	require.NoError(t, err)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestRunWorker_KafkaDisabled(t *testing.T) {
	c, err := New(context.Background(), config.Default(), nil, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	err = RunWorker(context.Background(), c)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigError))
}
