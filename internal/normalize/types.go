package normalize

// RawShape identifies which error payload variant a ParsedError was built
// from. The set is closed: every input maps to exactly one shape.
type RawShape string

const (
	// ShapeProblemDetail is a structured problem-detail document (type URI +
	// numeric status, optionally nesting sub-errors).
	ShapeProblemDetail RawShape = "problem-detail"

	// ShapeLegacy is a flat error object using errorString/code style fields.
	ShapeLegacy RawShape = "legacy"

	// ShapeUnknown covers everything else: strings, primitives, nil,
	// arbitrary JSON.
	ShapeUnknown RawShape = "unknown"
)

// ErrorTypeUnknown is the errorType assigned to inputs that match no known
// shape.
const ErrorTypeUnknown = "unknown"

// ParsedError is the canonical form every raw platform error is reduced to.
//
// A ParsedError is created once per diagnosis request and is immutable after
// creation. Unknown inputs degrade to a generic ParsedError rather than
// failing; Normalize never returns an error.
type ParsedError struct {
	// Service is the platform service the error originated from, e.g.
	// "property-manager". Empty when the payload carries no service hint.
	Service string `json:"service,omitempty"`

	// HTTPStatus is the HTTP status associated with the error, 0 if absent.
	HTTPStatus int `json:"http_status,omitempty"`

	// ErrorType is the machine-readable error identifier. Always non-empty;
	// unknown shapes get ErrorTypeUnknown.
	ErrorType string `json:"error_type"`

	// Title is the short human-readable summary, when present.
	Title string `json:"title,omitempty"`

	// Detail is the free-text detail. For unknown shapes this is a
	// best-effort string coercion of the whole input.
	Detail string `json:"detail,omitempty"`

	// SubErrors are nested errors normalized recursively.
	SubErrors []ParsedError `json:"sub_errors,omitempty"`

	// RawShape records which variant the input was recognized as.
	RawShape RawShape `json:"raw_shape"`
}
