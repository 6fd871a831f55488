package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeConflict           ErrorCode = "COMMON_004"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_005"
	ErrCodeTimeout            ErrorCode = "COMMON_006"
	ErrCodeValidation         ErrorCode = "COMMON_007"
	ErrCodeSerialization      ErrorCode = "COMMON_008"
	ErrCodeCanceled           ErrorCode = "COMMON_009"
	ErrCodeRateLimited        ErrorCode = "COMMON_010"
	ErrCodePayloadTooLarge    ErrorCode = "COMMON_011"
)

// Aliases used at call sites.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeUnknown      = ErrorCode("UNKNOWN")
	CodeOK           = ErrorCode("OK")
)

// Molecule Module Error Codes
const (
	ErrCodeMoleculeInvalidSMILES  ErrorCode = "MOL_001"
	ErrCodeMoleculeInvalidMolfile ErrorCode = "MOL_002"
	ErrCodeMoleculeInvalidFormat  ErrorCode = "MOL_003"
	ErrCodeMoleculeEmpty          ErrorCode = "MOL_004"
	ErrCodeMoleculeAtomIndex      ErrorCode = "MOL_005"
	ErrCodeMoleculeBondIndex      ErrorCode = "MOL_006"
	ErrCodeMoleculeValence        ErrorCode = "MOL_007"
)

// Chemistry perception Error Codes
const (
	ErrCodeChemLibraryLoad      ErrorCode = "CHEM_001"
	ErrCodeChemLibraryEmpty     ErrorCode = "CHEM_002"
	ErrCodeChemPatternCompile   ErrorCode = "CHEM_003"
	ErrCodeChemWeightCount      ErrorCode = "CHEM_004"
	ErrCodeChemEncodingFailed   ErrorCode = "CHEM_005"
	ErrCodeChemUnsupportedInput ErrorCode = "CHEM_006"
)

// Fragmentation Error Codes
const (
	ErrCodeFragMissingBondOrder ErrorCode = "FRAG_001"
	ErrCodeFragNotRotor         ErrorCode = "FRAG_002"
	ErrCodeFragInvalidBudget    ErrorCode = "FRAG_003"
	ErrCodeFragCombinationLimit ErrorCode = "FRAG_004"
	ErrCodeFragRunNotFound      ErrorCode = "FRAG_005"
	ErrCodeFragInvalidThreshold ErrorCode = "FRAG_006"
	ErrCodeFragNoMolecules      ErrorCode = "FRAG_007"
)

// Infrastructure Error Codes
const (
	ErrCodeDatabaseError   ErrorCode = "INFRA_001"
	ErrCodeCacheError      ErrorCode = "INFRA_002"
	ErrCodeStorageError    ErrorCode = "INFRA_003"
	ErrCodeMessagingError  ErrorCode = "INFRA_004"
	ErrCodeGraphStoreError ErrorCode = "INFRA_005"
	ErrCodeDepictionError  ErrorCode = "INFRA_006"
	ErrCodeMigrationError  ErrorCode = "INFRA_007"
	ErrCodeConfigError     ErrorCode = "INFRA_008"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeCanceled:           499,
	ErrCodeRateLimited:        http.StatusTooManyRequests,
	ErrCodePayloadTooLarge:    http.StatusRequestEntityTooLarge,

	ErrCodeMoleculeInvalidSMILES:  http.StatusBadRequest,
	ErrCodeMoleculeInvalidMolfile: http.StatusBadRequest,
	ErrCodeMoleculeInvalidFormat:  http.StatusBadRequest,
	ErrCodeMoleculeEmpty:          http.StatusBadRequest,
	ErrCodeMoleculeAtomIndex:      http.StatusBadRequest,
	ErrCodeMoleculeBondIndex:      http.StatusBadRequest,
	ErrCodeMoleculeValence:        http.StatusUnprocessableEntity,

	ErrCodeChemLibraryLoad:      http.StatusInternalServerError,
	ErrCodeChemLibraryEmpty:     http.StatusInternalServerError,
	ErrCodeChemPatternCompile:   http.StatusUnprocessableEntity,
	ErrCodeChemWeightCount:      http.StatusBadRequest,
	ErrCodeChemEncodingFailed:   http.StatusInternalServerError,
	ErrCodeChemUnsupportedInput: http.StatusBadRequest,

	ErrCodeFragMissingBondOrder: http.StatusUnprocessableEntity,
	ErrCodeFragNotRotor:         http.StatusBadRequest,
	ErrCodeFragInvalidBudget:    http.StatusBadRequest,
	ErrCodeFragCombinationLimit: http.StatusUnprocessableEntity,
	ErrCodeFragRunNotFound:      http.StatusNotFound,
	ErrCodeFragInvalidThreshold: http.StatusBadRequest,
	ErrCodeFragNoMolecules:      http.StatusBadRequest,

	ErrCodeDatabaseError:   http.StatusInternalServerError,
	ErrCodeCacheError:      http.StatusInternalServerError,
	ErrCodeStorageError:    http.StatusInternalServerError,
	ErrCodeMessagingError:  http.StatusInternalServerError,
	ErrCodeGraphStoreError: http.StatusInternalServerError,
	ErrCodeDepictionError:  http.StatusInternalServerError,
	ErrCodeMigrationError:  http.StatusInternalServerError,
	ErrCodeConfigError:     http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeCanceled:           "request canceled",
	ErrCodeRateLimited:        "rate limit exceeded, retry later",
	ErrCodePayloadTooLarge:    "request body too large",

	ErrCodeMoleculeInvalidSMILES:  "invalid SMILES",
	ErrCodeMoleculeInvalidMolfile: "invalid molfile",
	ErrCodeMoleculeInvalidFormat:  "unsupported molecule format",
	ErrCodeMoleculeEmpty:          "molecule has no atoms",
	ErrCodeMoleculeAtomIndex:      "atom index out of range",
	ErrCodeMoleculeBondIndex:      "bond index out of range",
	ErrCodeMoleculeValence:        "valence exceeded",

	ErrCodeChemLibraryLoad:      "failed to load functional group library",
	ErrCodeChemLibraryEmpty:     "functional group library is empty",
	ErrCodeChemPatternCompile:   "failed to compile substructure pattern",
	ErrCodeChemWeightCount:      "bond order weight count does not match bond count",
	ErrCodeChemEncodingFailed:   "failed to encode fragment",
	ErrCodeChemUnsupportedInput: "unsupported input",

	ErrCodeFragMissingBondOrder: "cannot fragment molecule: bond order weights missing",
	ErrCodeFragNotRotor:         "bond is not rotatable",
	ErrCodeFragInvalidBudget:    "invalid rotor budget",
	ErrCodeFragCombinationLimit: "fragment combination limit exceeded",
	ErrCodeFragRunNotFound:      "fragmentation run not found",
	ErrCodeFragInvalidThreshold: "invalid bond order threshold",
	ErrCodeFragNoMolecules:      "no molecules supplied",

	ErrCodeDatabaseError:   "database error",
	ErrCodeCacheError:      "cache error",
	ErrCodeStorageError:    "object storage error",
	ErrCodeMessagingError:  "messaging error",
	ErrCodeGraphStoreError: "graph store error",
	ErrCodeDepictionError:  "depiction error",
	ErrCodeMigrationError:  "migration error",
	ErrCodeConfigError:     "configuration error",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// GRPCCodeForCode translates an ErrorCode into a gRPC status code by way of
// its HTTP class.
func GRPCCodeForCode(code ErrorCode) codes.Code {
	switch HTTPStatusForCode(code) {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return codes.InvalidArgument
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.AlreadyExists
	case http.StatusTooManyRequests, http.StatusRequestEntityTooLarge:
		return codes.ResourceExhausted
	case http.StatusServiceUnavailable:
		return codes.Unavailable
	case http.StatusGatewayTimeout:
		return codes.DeadlineExceeded
	case 499:
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}
