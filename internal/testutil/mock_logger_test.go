package testutil_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/internal/testutil"
)

func TestMockLogger(t *testing.T) {
	logger := testutil.NewMockLogger()

	logger.Info("test info", logging.String("key", "value"))

	messages := logger.GetMessages()
	assert.Len(t, messages, 1)
	assert.Equal(t, "info", messages[0].Level)
	assert.Equal(t, "test info", messages[0].Message)

	logger.Clear()
	assert.Len(t, logger.GetMessages(), 0)

	logger.Error("test error")
	assert.True(t, logger.HasMessage("error", "test error"))
	assert.False(t, logger.HasMessage("info", "test info"))
}

func TestMockLogger_ChildrenShareRecord(t *testing.T) {
	logger := testutil.NewMockLogger()
	ctx := logging.WithJobID(context.Background(), "job-1")

	logger.Named("tagger").With(logging.Int("bond", 3)).Warn("skipped")
	logger.WithContext(ctx).WithError(errors.New("boom")).Error("failed")

	msgs := logger.GetMessages()
	assert.Len(t, msgs, 2)
	assert.Equal(t, []logging.Field{logging.String("logger", "tagger"), logging.Int("bond", 3)}, msgs[0].Fields)
	assert.Contains(t, msgs[1].Fields, logging.String("job_id", "job-1"))
	assert.Equal(t, 1, logger.Count("warn"))
}
