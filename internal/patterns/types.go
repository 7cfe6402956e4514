package patterns

import "regexp"

// Category classifies what kind of failure a pattern describes. Downstream
// stages key solution templates and context corroboration off the category.
type Category string

const (
	// CategoryPermission covers missing write/read access to a scope.
	CategoryPermission Category = "permission"
	// CategoryRateLimit covers platform rate limiting.
	CategoryRateLimit Category = "rate_limit"
	// CategoryValidation covers malformed or rejected request parameters.
	CategoryValidation Category = "validation"
	// CategoryConflict covers resource-state conflicts (stale versions,
	// concurrent edits, pending activations).
	CategoryConflict Category = "conflict"
	// CategoryNotFound covers references to missing resources.
	CategoryNotFound Category = "not_found"
	// CategoryTransient covers retryable platform-side failures.
	CategoryTransient Category = "transient"
	// CategoryUnknown is the fallback for unclassified failures.
	CategoryUnknown Category = "unknown"
)

// ErrorPattern is one record of the pattern corpus.
//
// Patterns are immutable for the lifetime of a corpus snapshot. Matchers are
// total over strings: they are compiled once at load time and a pattern that
// fails to compile is rejected by Load, so matching never errors.
type ErrorPattern struct {
	// ID is unique within the corpus.
	ID string `koanf:"id" json:"id"`

	// Service, HTTPStatus and ErrorType form the hard match key.
	Service    string `koanf:"service" json:"service"`
	HTTPStatus int    `koanf:"http_status" json:"http_status"`
	ErrorType  string `koanf:"error_type" json:"error_type"`

	// TitleMatch is a case-insensitive regular expression applied to the
	// normalized error title.
	TitleMatch string `koanf:"title_match" json:"title_match"`

	// DetailMatch is an optional case-insensitive regular expression applied
	// to the normalized error detail.
	DetailMatch string `koanf:"detail_match" json:"detail_match,omitempty"`

	Category    Category `koanf:"category" json:"category"`
	KnownCauses []string `koanf:"known_causes" json:"known_causes,omitempty"`
	SolutionIDs []string `koanf:"solution_ids" json:"solution_ids,omitempty"`

	titleRE  *regexp.Regexp
	detailRE *regexp.Regexp
}

// MatchTitle reports whether the pattern's title matcher accepts the given
// normalized title.
func (p *ErrorPattern) MatchTitle(title string) bool {
	if p.titleRE == nil {
		return false
	}
	return p.titleRE.MatchString(title)
}

// HasDetailMatcher reports whether the pattern defines a detail matcher.
func (p *ErrorPattern) HasDetailMatcher() bool {
	return p.detailRE != nil
}

// MatchDetail reports whether the pattern's detail matcher accepts the given
// normalized detail. Always false when no detail matcher is defined.
func (p *ErrorPattern) MatchDetail(detail string) bool {
	if p.detailRE == nil {
		return false
	}
	return p.detailRE.MatchString(detail)
}
