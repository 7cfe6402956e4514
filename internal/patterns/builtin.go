package patterns

import "go.uber.org/zap"

// builtinVersion identifies the compiled-in corpus used when no corpus file
// is configured.
const builtinVersion = "builtin-1"

// builtin is the compiled-in pattern set. It covers the failure modes seen
// most often from agent traffic; operators extend it with a corpus file.
func builtin() []*ErrorPattern {
	return []*ErrorPattern{
		{
			ID:          "pm-403-insufficient-permissions",
			Service:     "property-manager",
			HTTPStatus:  403,
			ErrorType:   "insufficient_permissions",
			TitleMatch:  `forbidden|not\s+authorized|permission`,
			DetailMatch: `(contract|group)\s+(ctr_|grp_)\w+`,
			Category:    CategoryPermission,
			KnownCauses: []string{
				"API credential lacks write access to the referenced contract",
				"operation issued under the wrong contract/group pair",
			},
			SolutionIDs: []string{"switch-accessible-scope", "request-scope-grant"},
		},
		{
			ID:         "pm-403-credential-scope",
			Service:    "property-manager",
			HTTPStatus: 403,
			ErrorType:  "insufficient_permissions",
			TitleMatch: `forbidden`,
			Category:   CategoryPermission,
			KnownCauses: []string{
				"credential scoped to a different account switch key",
			},
			SolutionIDs: []string{"request-scope-grant"},
		},
		{
			ID:          "pm-429-rate-limit",
			Service:     "property-manager",
			HTTPStatus:  429,
			ErrorType:   "rate_limit_exceeded",
			TitleMatch:  `rate\s*limit|too\s+many\s+requests`,
			DetailMatch: `retry|limit`,
			Category:    CategoryRateLimit,
			KnownCauses: []string{
				"burst of list/search operations from the agent",
			},
			SolutionIDs: []string{"backoff-retry", "batch-operations"},
		},
		{
			ID:          "pm-409-version-conflict",
			Service:     "property-manager",
			HTTPStatus:  409,
			ErrorType:   "version_conflict",
			TitleMatch:  `conflict|version`,
			DetailMatch: `(version|activation)`,
			Category:    CategoryConflict,
			KnownCauses: []string{
				"edit against a stale property version",
				"activation already pending on the target network",
			},
			SolutionIDs: []string{"refresh-latest-version"},
		},
		{
			ID:         "pm-404-property-missing",
			Service:    "property-manager",
			HTTPStatus: 404,
			ErrorType:  "not_found",
			TitleMatch: `not\s+found`,
			Category:   CategoryNotFound,
			KnownCauses: []string{
				"property id from a different contract scope",
				"resource deleted since the agent fetched it",
			},
			SolutionIDs: []string{"relist-resources"},
		},
		{
			ID:          "pm-400-validation",
			Service:     "property-manager",
			HTTPStatus:  400,
			ErrorType:   "validation_error",
			TitleMatch:  `invalid|validation|bad\s+request`,
			Category:    CategoryValidation,
			KnownCauses: []string{"request parameter rejected by rule validation"},
			SolutionIDs: []string{"fix-request-parameter"},
		},
		{
			ID:         "dns-403-zone-access",
			Service:    "edge-dns",
			HTTPStatus: 403,
			ErrorType:  "insufficient_permissions",
			TitleMatch: `forbidden|access`,
			Category:   CategoryPermission,
			KnownCauses: []string{
				"zone belongs to a contract the credential cannot write",
			},
			SolutionIDs: []string{"switch-accessible-scope"},
		},
		{
			ID:         "platform-5xx-transient",
			Service:    "property-manager",
			HTTPStatus: 500,
			ErrorType:  "internal_error",
			TitleMatch: `internal|unavailable|error`,
			Category:   CategoryTransient,
			KnownCauses: []string{
				"transient platform-side failure",
			},
			SolutionIDs: []string{"backoff-retry"},
		},
	}
}

// Builtin returns a library serving the compiled-in corpus.
func Builtin(logger *zap.Logger) *Library {
	l, err := NewLibrary(builtinVersion, builtin(), logger)
	if err != nil {
		// The builtin set is fixed at compile time; a build error here is a
		// programming bug.
		panic(err)
	}
	return l
}
