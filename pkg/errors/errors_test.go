package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// New / Wrap
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal", errors.CodeInternal, "unexpected failure"},
		{"missing weights", errors.ErrCodeFragMissingBondOrder, "cannot fragment ethanol"},
		{"bad smiles", errors.ErrCodeMoleculeInvalidSMILES, "unclosed ring 1"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)
			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
		})
	}
}

func TestError_Format(t *testing.T) {
	ae := errors.New(errors.ErrCodeFragNotRotor, "bond is not rotatable").WithDetail("bond=3")
	assert.Equal(t, "[FRAG_002] bond is not rotatable: bond=3", ae.Error())

	wrapped := errors.Wrap(fmt.Errorf("boom"), errors.ErrCodeDatabaseError, "insert run")
	assert.Equal(t, "[INFRA_001] insert run: boom", wrapped.Error())
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, errors.CodeInternal, "x"))
	assert.Nil(t, errors.Wrapf(nil, errors.CodeInternal, "x %d", 1))
}

func TestWrap_PreservesCodeWhenUnknown(t *testing.T) {
	inner := errors.New(errors.ErrCodeChemPatternCompile, "bad pattern")
	outer := errors.Wrap(inner, errors.CodeUnknown, "tagging")
	assert.Equal(t, errors.ErrCodeChemPatternCompile, outer.Code)
	assert.True(t, stderrors.Is(outer, inner))
}

// ─────────────────────────────────────────────────────────────────────────────
// Inspection
// ─────────────────────────────────────────────────────────────────────────────

func TestIsCode_TraversesChain(t *testing.T) {
	root := errors.New(errors.ErrCodeFragMissingBondOrder, "no weights")
	mid := errors.Wrap(root, errors.CodeInternal, "fragment")
	outer := fmt.Errorf("job 7: %w", mid)

	assert.True(t, errors.IsCode(outer, errors.ErrCodeFragMissingBondOrder))
	assert.True(t, errors.IsCode(outer, errors.CodeInternal))
	assert.False(t, errors.IsCode(outer, errors.CodeNotFound))
	assert.True(t, stderrors.Is(outer, errors.ErrMissingBondOrder))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(fmt.Errorf("plain")))
	assert.Equal(t, errors.ErrCodeCacheError, errors.GetCode(errors.New(errors.ErrCodeCacheError, "x")))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, errors.IsNotFound(errors.NotFound("x")))
	assert.True(t, errors.IsNotFound(errors.New(errors.ErrCodeFragRunNotFound, "run")))
	assert.False(t, errors.IsNotFound(errors.Internal("x")))
}

func TestWithDetail_NilSafe(t *testing.T) {
	var ae *errors.AppError
	assert.Nil(t, ae.WithDetail("x"))
	assert.Nil(t, ae.WithCause(fmt.Errorf("x")))
}

// ─────────────────────────────────────────────────────────────────────────────
// Status tables
// ─────────────────────────────────────────────────────────────────────────────

func TestHTTPStatusForCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, errors.HTTPStatusForCode(errors.ErrCodeMoleculeInvalidSMILES))
	assert.Equal(t, http.StatusUnprocessableEntity, errors.HTTPStatusForCode(errors.ErrCodeFragMissingBondOrder))
	assert.Equal(t, http.StatusNotFound, errors.HTTPStatusForCode(errors.ErrCodeFragRunNotFound))
	assert.Equal(t, http.StatusInternalServerError, errors.HTTPStatusForCode("NOPE"))
	assert.True(t, errors.IsClientError(errors.ErrCodeFragInvalidBudget))
	assert.False(t, errors.IsClientError(errors.ErrCodeStorageError))
}

func TestGRPCCodeForCode(t *testing.T) {
	assert.Equal(t, codes.InvalidArgument, errors.GRPCCodeForCode(errors.ErrCodeMoleculeInvalidSMILES))
	assert.Equal(t, codes.NotFound, errors.GRPCCodeForCode(errors.ErrCodeFragRunNotFound))
	assert.Equal(t, codes.Internal, errors.GRPCCodeForCode(errors.ErrCodeDatabaseError))
}

func TestEveryCodeHasMessageAndStatus(t *testing.T) {
	for code := range errors.ErrorCodeHTTPStatus {
		_, ok := errors.ErrorCodeMessage[code]
		assert.True(t, ok, "missing message for %s", code)
	}
}
