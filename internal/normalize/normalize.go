// Package normalize converts raw platform error payloads of any shape into
// the canonical ParsedError consumed by the rest of the diagnosis pipeline.
//
// Normalization is a total, pure transformation: for every input, including
// nil, primitives and arbitrarily nested JSON, it produces a well-formed
// ParsedError and never fails. Recognition is a fixed variant dispatch:
// problem-detail documents first, then legacy flat error objects, then the
// unknown fallback.
package normalize

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// maxDepth bounds recursive sub-error normalization so hostile payloads
// cannot recurse unboundedly.
const maxDepth = 8

// versionSegment matches URI path segments like "v1", "v23".
var versionSegment = regexp.MustCompile(`^v\d+$`)

// NormalizeJSON decodes a JSON payload and normalizes it. Payloads that are
// not valid JSON are treated as opaque strings.
func NormalizeJSON(raw []byte) ParsedError {
	if len(raw) == 0 {
		return unknownError(nil)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return unknownError(string(raw))
	}
	return Normalize(decoded)
}

// Normalize reduces any decoded error payload to a ParsedError.
func Normalize(raw any) ParsedError {
	return normalize(raw, 0)
}

func normalize(raw any, depth int) ParsedError {
	if depth > maxDepth {
		return unknownError(raw)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return unknownError(raw)
	}

	if isProblemDetail(obj) {
		return fromProblemDetail(obj, depth)
	}
	if isLegacy(obj) {
		return fromLegacy(obj)
	}
	return unknownError(raw)
}

// isProblemDetail recognizes structured problem-detail documents by the
// presence of a type URI and a status field.
func isProblemDetail(obj map[string]any) bool {
	typeURI, ok := obj["type"].(string)
	if !ok || typeURI == "" {
		return false
	}
	_, hasStatus := obj["status"]
	return hasStatus
}

// isLegacy recognizes flat error objects by errorString/code style fields
// without a type URI.
func isLegacy(obj map[string]any) bool {
	if _, ok := obj["type"].(string); ok {
		return false
	}
	for _, key := range []string{"errorString", "errorCode", "code", "reason"} {
		if _, ok := obj[key]; ok {
			return true
		}
	}
	return false
}

func fromProblemDetail(obj map[string]any, depth int) ParsedError {
	typeURI, _ := obj["type"].(string)
	service, errorType := splitTypeURI(typeURI)

	if v, ok := obj["errorType"].(string); ok && v != "" {
		errorType = v
	}
	if errorType == "" {
		errorType = ErrorTypeUnknown
	}

	pe := ParsedError{
		Service:    service,
		HTTPStatus: coerceInt(obj["status"]),
		ErrorType:  errorType,
		Title:      coerceString(obj["title"]),
		Detail:     coerceString(obj["detail"]),
		RawShape:   ShapeProblemDetail,
	}

	if nested, ok := obj["errors"].([]any); ok {
		for _, sub := range nested {
			pe.SubErrors = append(pe.SubErrors, normalize(sub, depth+1))
		}
	}

	return pe
}

// legacyFields is the fixed field-translation table for flat error objects.
// First match wins within each group.
var legacyFields = struct {
	errorType []string
	title     []string
	detail    []string
	status    []string
	service   []string
}{
	errorType: []string{"errorCode", "code", "reason"},
	title:     []string{"title", "error"},
	detail:    []string{"errorString", "message", "detail"},
	status:    []string{"status", "statusCode", "httpStatus"},
	service:   []string{"service", "api"},
}

func fromLegacy(obj map[string]any) ParsedError {
	pe := ParsedError{RawShape: ShapeLegacy, ErrorType: ErrorTypeUnknown}

	for _, key := range legacyFields.errorType {
		if v := coerceString(obj[key]); v != "" {
			pe.ErrorType = v
			break
		}
	}
	for _, key := range legacyFields.title {
		if v := coerceString(obj[key]); v != "" {
			pe.Title = v
			break
		}
	}
	for _, key := range legacyFields.detail {
		if v := coerceString(obj[key]); v != "" {
			pe.Detail = v
			break
		}
	}
	for _, key := range legacyFields.status {
		if v := coerceInt(obj[key]); v != 0 {
			pe.HTTPStatus = v
			break
		}
	}
	for _, key := range legacyFields.service {
		if v := coerceString(obj[key]); v != "" {
			pe.Service = v
			break
		}
	}

	return pe
}

func unknownError(raw any) ParsedError {
	return ParsedError{
		ErrorType: ErrorTypeUnknown,
		Detail:    coerceDetail(raw),
		RawShape:  ShapeUnknown,
	}
}

// splitTypeURI extracts (service, errorType) from a problem type URI. The
// first path segment names the service; the final non-version segment names
// the error type. Both degrade to empty for unparseable URIs.
func splitTypeURI(typeURI string) (service, errorType string) {
	u, err := url.Parse(typeURI)
	if err != nil {
		return "", ""
	}
	segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return "", ""
	}
	service = segments[0]
	for i := len(segments) - 1; i > 0; i-- {
		if !versionSegment.MatchString(segments[i]) {
			errorType = segments[i]
			break
		}
	}
	return service, errorType
}

func coerceString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

func coerceInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

// coerceDetail builds a best-effort human-readable detail from an arbitrary
// input. Structured inputs are re-encoded as compact JSON.
func coerceDetail(raw any) string {
	switch v := raw.(type) {
	case nil:
		return "null"
	case string:
		return v
	case float64, bool:
		return fmt.Sprintf("%v", v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
