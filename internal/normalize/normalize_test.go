package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeProblemDetail(t *testing.T) {
	raw := map[string]any{
		"type":   "https://problems.example/property-manager/v1/insufficient-permissions",
		"title":  "Forbidden",
		"status": float64(403),
		"detail": "Contract ctr_ABC requires write access",
	}

	pe := Normalize(raw)

	assert.Equal(t, ShapeProblemDetail, pe.RawShape)
	assert.Equal(t, "property-manager", pe.Service)
	assert.Equal(t, 403, pe.HTTPStatus)
	assert.Equal(t, "insufficient-permissions", pe.ErrorType)
	assert.Equal(t, "Forbidden", pe.Title)
	assert.Equal(t, "Contract ctr_ABC requires write access", pe.Detail)
	assert.Empty(t, pe.SubErrors)
}

func TestNormalizeProblemDetailNested(t *testing.T) {
	raw := map[string]any{
		"type":   "https://problems.example/edge-dns/v2/zone-validation",
		"title":  "Invalid zone",
		"status": float64(400),
		"errors": []any{
			map[string]any{
				"type":   "https://problems.example/edge-dns/v2/record-invalid",
				"title":  "Bad record",
				"status": float64(400),
			},
			"free-form nested failure",
		},
	}

	pe := Normalize(raw)

	require.Len(t, pe.SubErrors, 2)
	assert.Equal(t, ShapeProblemDetail, pe.SubErrors[0].RawShape)
	assert.Equal(t, "record-invalid", pe.SubErrors[0].ErrorType)
	assert.Equal(t, ShapeUnknown, pe.SubErrors[1].RawShape)
	assert.Equal(t, "free-form nested failure", pe.SubErrors[1].Detail)
}

func TestNormalizeProblemDetailExplicitErrorType(t *testing.T) {
	raw := map[string]any{
		"type":      "https://problems.example/property-manager/v1/x",
		"errorType": "insufficient_permissions",
		"status":    float64(403),
	}

	pe := Normalize(raw)
	assert.Equal(t, "insufficient_permissions", pe.ErrorType)
}

func TestNormalizeLegacy(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want ParsedError
	}{
		{
			name: "errorString and code",
			raw: map[string]any{
				"code":        "ERR_RATE_LIMIT",
				"errorString": "too many requests",
				"statusCode":  float64(429),
			},
			want: ParsedError{
				ErrorType:  "ERR_RATE_LIMIT",
				Detail:     "too many requests",
				HTTPStatus: 429,
				RawShape:   ShapeLegacy,
			},
		},
		{
			name: "reason with service hint",
			raw: map[string]any{
				"reason":  "invalid_hostname",
				"message": "hostname not found in zone",
				"service": "edge-dns",
			},
			want: ParsedError{
				ErrorType: "invalid_hostname",
				Detail:    "hostname not found in zone",
				Service:   "edge-dns",
				RawShape:  ShapeLegacy,
			},
		},
		{
			name: "numeric code coerced",
			raw: map[string]any{
				"code":   float64(4031),
				"status": "403",
			},
			want: ParsedError{
				ErrorType:  "4031",
				HTTPStatus: 403,
				RawShape:   ShapeLegacy,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalizeNeverFails(t *testing.T) {
	inputs := []any{
		nil,
		"rate limit exceeded",
		float64(42),
		true,
		[]any{"a", "b"},
		map[string]any{"unrelated": "fields"},
		map[string]any{"deep": map[string]any{"deeper": []any{map[string]any{"x": 1}}}},
	}

	for _, in := range inputs {
		pe := Normalize(in)
		assert.Equal(t, ErrorTypeUnknown, pe.ErrorType)
		assert.Equal(t, ShapeUnknown, pe.RawShape)
		assert.NotEmpty(t, pe.Detail)
	}
}

func TestNormalizeUnknownDetailCoercion(t *testing.T) {
	assert.Equal(t, "rate limit exceeded", Normalize("rate limit exceeded").Detail)
	assert.Equal(t, "null", Normalize(nil).Detail)
	assert.Equal(t, `["a","b"]`, Normalize([]any{"a", "b"}).Detail)
}

func TestNormalizeJSON(t *testing.T) {
	pe := NormalizeJSON([]byte(`{"type":"https://problems.example/cps/v1/enrollment-conflict","status":409,"title":"Conflict"}`))
	assert.Equal(t, "cps", pe.Service)
	assert.Equal(t, 409, pe.HTTPStatus)

	// Invalid JSON degrades to an opaque string.
	pe = NormalizeJSON([]byte(`rate limit exceeded`))
	assert.Equal(t, ShapeUnknown, pe.RawShape)
	assert.Equal(t, "rate limit exceeded", pe.Detail)

	// Empty payloads degrade too.
	pe = NormalizeJSON(nil)
	assert.Equal(t, ErrorTypeUnknown, pe.ErrorType)
}

func TestNormalizeDepthBound(t *testing.T) {
	// Build a payload nested beyond maxDepth; must terminate and degrade.
	leaf := map[string]any{
		"type":   "https://problems.example/svc/v1/leaf",
		"status": float64(400),
	}
	current := leaf
	for i := 0; i < maxDepth+4; i++ {
		current = map[string]any{
			"type":   "https://problems.example/svc/v1/wrap",
			"status": float64(400),
			"errors": []any{current},
		}
	}

	pe := Normalize(current)
	assert.Equal(t, ShapeProblemDetail, pe.RawShape)
}
