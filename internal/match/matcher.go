// Package match scores normalized errors against the pattern corpus.
//
// Matching is a pure, non-blocking computation. Scores combine three
// weighted signals: the exact service/status/errorType key (a hard
// prerequisite), a title matcher and an optional detail matcher. When a
// pattern defines no detail matcher the score is renormalized over the
// signals actually present, so a full key+title match is not penalized for
// a signal the pattern never declared.
package match

import (
	"sort"
	"strings"

	"github.com/halcyonlabs/remedyd/internal/normalize"
	"github.com/halcyonlabs/remedyd/internal/patterns"
)

// ErrorMatch is one scored candidate pattern. Derived and ephemeral: it is
// recomputed per request and never persisted.
type ErrorMatch struct {
	PatternID     string   `json:"pattern_id"`
	Score         float64  `json:"score"`
	MatchedFields []string `json:"matched_fields"`

	// Pattern is the corpus record behind the match. Shared immutable data.
	Pattern *patterns.ErrorPattern `json:"-"`
}

// Config holds the scoring weights and the match floor. The defaults mirror
// the tuned production values; all of them are operator-adjustable.
type Config struct {
	// KeyWeight applies to the exact service+status+errorType signal.
	KeyWeight float64
	// TitleWeight applies to the title matcher signal.
	TitleWeight float64
	// DetailWeight applies to the optional detail matcher signal.
	DetailWeight float64
	// Threshold is the exclusive score floor for returned matches.
	Threshold float64
}

// DefaultConfig returns the default weights (0.5/0.3/0.2) and floor (0.7).
func DefaultConfig() Config {
	return Config{
		KeyWeight:    0.5,
		TitleWeight:  0.3,
		DetailWeight: 0.2,
		Threshold:    0.7,
	}
}

// Matcher scores ParsedErrors against a pattern library.
type Matcher struct {
	cfg Config
	lib *patterns.Library
}

// New creates a matcher over the given library. A zero-valued config is
// replaced with defaults.
func New(cfg Config, lib *patterns.Library) *Matcher {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Matcher{cfg: cfg, lib: lib}
}

// Match returns all patterns scoring above the floor for the given error,
// sorted by descending score. Equal scores rank the more specific match
// first (more matched signals, so a pattern that also matched its detail
// matcher beats a title-only pattern renormalized to the same score), with
// ascending pattern id as the final tie-break.
//
// Sub-errors are matched independently; the result is the union of matches
// from the top-level error and its immediate sub-errors, deduplicated by
// pattern id keeping the higher score.
func (m *Matcher) Match(parsed normalize.ParsedError) []ErrorMatch {
	best := make(map[string]ErrorMatch)
	m.collect(parsed, best)
	for _, sub := range parsed.SubErrors {
		m.collect(sub, best)
	}

	matches := make([]ErrorMatch, 0, len(best))
	for _, em := range best {
		matches = append(matches, em)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if len(matches[i].MatchedFields) != len(matches[j].MatchedFields) {
			return len(matches[i].MatchedFields) > len(matches[j].MatchedFields)
		}
		return matches[i].PatternID < matches[j].PatternID
	})
	return matches
}

func (m *Matcher) collect(parsed normalize.ParsedError, best map[string]ErrorMatch) {
	title := normalizeText(parsed.Title)
	detail := normalizeText(parsed.Detail)

	for _, p := range m.lib.Query(parsed.Service, parsed.HTTPStatus) {
		em, ok := m.score(p, parsed, title, detail)
		if !ok {
			continue
		}
		prev, exists := best[em.PatternID]
		if !exists || em.Score > prev.Score ||
			(em.Score == prev.Score && len(em.MatchedFields) > len(prev.MatchedFields)) {
			best[em.PatternID] = em
		}
	}
}

// score computes one pattern's score. The second return is false when the
// score does not clear the floor.
func (m *Matcher) score(p *patterns.ErrorPattern, parsed normalize.ParsedError, title, detail string) (ErrorMatch, bool) {
	// Hard prerequisite: the exact key must match or the pattern scores 0
	// regardless of the text signals. Service and status already matched via
	// the library index.
	if p.ErrorType != parsed.ErrorType {
		return ErrorMatch{}, false
	}

	fields := []string{"service", "http_status", "error_type"}
	weightSum := m.cfg.KeyWeight + m.cfg.TitleWeight
	score := m.cfg.KeyWeight

	if p.MatchTitle(title) {
		score += m.cfg.TitleWeight
		fields = append(fields, "title")
	}

	if p.HasDetailMatcher() {
		weightSum += m.cfg.DetailWeight
		if p.MatchDetail(detail) {
			score += m.cfg.DetailWeight
			fields = append(fields, "detail")
		}
	}

	normalized := score / weightSum
	if normalized <= m.cfg.Threshold {
		return ErrorMatch{}, false
	}

	return ErrorMatch{
		PatternID:     p.ID,
		Score:         normalized,
		MatchedFields: fields,
		Pattern:       p,
	}, true
}

// normalizeText lowercases and collapses whitespace so matchers tolerate
// minor wording and formatting drift.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
