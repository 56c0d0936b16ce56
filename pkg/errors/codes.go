package errors

import (
	"net/http"
	"strings"
)

// ErrorCode names a failure as MODULE_NNN. Clients may switch on it; the
// numbering within a module is stable.
type ErrorCode string

func (c ErrorCode) String() string { return string(c) }

// Module is the prefix before the underscore, or "UNKNOWN".
func (c ErrorCode) Module() string {
	if mod, _, ok := strings.Cut(string(c), "_"); ok && mod != "" {
		return mod
	}
	return "UNKNOWN"
}

// Status is the HTTP status the API answers with, 500 for unknown codes.
func (c ErrorCode) Status() int {
	if info, ok := codes[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

const (
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Infrastructure and request-level failures.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeMessageQueue       ErrorCode = "COMMON_015"
	ErrCodeStorage            ErrorCode = "COMMON_016"
	ErrCodeSearch             ErrorCode = "COMMON_017"
)

// Substance knowledge base.
const (
	ErrCodeKBUnavailable ErrorCode = "KB_001"
	ErrCodeKBInvalid     ErrorCode = "KB_002"
)

// Page retrieval and product extraction.
const (
	ErrCodeScrapeFailed         ErrorCode = "EXT_001"
	ErrCodeContentTooThin       ErrorCode = "EXT_002"
	ErrCodeExtractionExhausted  ErrorCode = "EXT_003"
	ErrCodeInvalidProductURL    ErrorCode = "EXT_004"
	ErrCodeReviewsNotFound      ErrorCode = "EXT_005"
	ErrCodeReviewExtractionPoor ErrorCode = "EXT_006"
)

// AI provider.
const (
	ErrCodeAIRateLimited      ErrorCode = "AI_001"
	ErrCodeAIExtractionFailed ErrorCode = "AI_002"
	ErrCodeAIAnalysisFailed   ErrorCode = "AI_003"
	ErrCodeAIMalformedOutput  ErrorCode = "AI_004"
	ErrCodeAINotConfigured    ErrorCode = "AI_005"
)

// Analysis pipeline and its store.
const (
	ErrCodeAnalysisNotFound   ErrorCode = "ANA_001"
	ErrCodeStageOutOfOrder    ErrorCode = "ANA_002"
	ErrCodeAnalysisStoreWrite ErrorCode = "ANA_003"
)

type codeInfo struct {
	status  int
	message string
}

var codes = map[ErrorCode]codeInfo{
	ErrCodeInternal:           {http.StatusInternalServerError, "internal server error"},
	ErrCodeBadRequest:         {http.StatusBadRequest, "bad request"},
	ErrCodeUnauthorized:       {http.StatusUnauthorized, "unauthorized"},
	ErrCodeForbidden:          {http.StatusForbidden, "forbidden"},
	ErrCodeNotFound:           {http.StatusNotFound, "resource not found"},
	ErrCodeConflict:           {http.StatusConflict, "resource conflict"},
	ErrCodeTooManyRequests:    {http.StatusTooManyRequests, "too many requests"},
	ErrCodeServiceUnavailable: {http.StatusServiceUnavailable, "service unavailable"},
	ErrCodeTimeout:            {http.StatusGatewayTimeout, "request timeout"},
	ErrCodeValidation:         {http.StatusUnprocessableEntity, "validation failed"},
	ErrCodeSerialization:      {http.StatusInternalServerError, "serialization failed"},
	ErrCodeDatabaseError:      {http.StatusInternalServerError, "database error"},
	ErrCodeCacheError:         {http.StatusInternalServerError, "cache error"},
	ErrCodeExternalService:    {http.StatusBadGateway, "external service error"},
	ErrCodeMessageQueue:       {http.StatusInternalServerError, "message queue error"},
	ErrCodeStorage:            {http.StatusInternalServerError, "object storage error"},
	ErrCodeSearch:             {http.StatusInternalServerError, "search backend error"},

	ErrCodeKBUnavailable: {http.StatusServiceUnavailable, "knowledge base unavailable"},
	ErrCodeKBInvalid:     {http.StatusBadRequest, "invalid knowledge base record"},

	ErrCodeScrapeFailed:         {http.StatusBadGateway, "failed to retrieve product page"},
	ErrCodeContentTooThin:       {http.StatusBadGateway, "retrieved content too thin to analyze"},
	ErrCodeExtractionExhausted:  {http.StatusBadGateway, "failed to extract product data"},
	ErrCodeInvalidProductURL:    {http.StatusBadRequest, "invalid product url"},
	ErrCodeReviewsNotFound:      {http.StatusNotFound, "no reviews found for this product"},
	ErrCodeReviewExtractionPoor: {http.StatusBadGateway, "review extraction confidence too low"},

	ErrCodeAIRateLimited:      {http.StatusTooManyRequests, "AI service rate limit reached"},
	ErrCodeAIExtractionFailed: {http.StatusBadGateway, "AI extraction failed"},
	ErrCodeAIAnalysisFailed:   {http.StatusBadGateway, "AI safety analysis failed"},
	ErrCodeAIMalformedOutput:  {http.StatusBadGateway, "AI returned malformed output"},
	ErrCodeAINotConfigured:    {http.StatusServiceUnavailable, "AI service not configured"},

	ErrCodeAnalysisNotFound:   {http.StatusNotFound, "analysis not found"},
	ErrCodeStageOutOfOrder:    {http.StatusInternalServerError, "pipeline stage out of order"},
	ErrCodeAnalysisStoreWrite: {http.StatusInternalServerError, "failed to persist analysis"},
}

// HTTPStatusForCode is code.Status().
func HTTPStatusForCode(code ErrorCode) int { return code.Status() }

// DefaultMessageForCode is the client-facing text for code, used when an
// error's own message should not leak.
func DefaultMessageForCode(code ErrorCode) string {
	if info, ok := codes[code]; ok {
		return info.message
	}
	return "unknown error"
}
