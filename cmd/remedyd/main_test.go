package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const testCorpus = `version: "2026.08.1"
patterns:
  - id: pm-403-insufficient-permissions
    service: property-manager
    http_status: 403
    error_type: insufficient_permissions
    title_match: "insufficient.?permission"
    category: permission
    known_causes:
      - "credential lacks write access to the referenced contract"
    solution_ids:
      - switch-accessible-scope
`

func writeCorpus(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestScopeRate(t *testing.T) {
	tests := []struct {
		name      string
		perMinute float64
		want      rate.Limit
	}{
		{"default budget", 1, rate.Every(time.Minute)},
		{"two per minute", 2, rate.Every(30 * time.Second)},
		{"zero falls back", 0, rate.Every(time.Minute)},
		{"negative falls back", -1, rate.Every(time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scopeRate(tt.perMinute))
		})
	}
}

func TestPatternsValidateCommand(t *testing.T) {
	t.Run("accepts valid corpus", func(t *testing.T) {
		path := writeCorpus(t, testCorpus)

		var out bytes.Buffer
		cmd := patternsValidateCmd
		cmd.SetOut(&out)

		err := runPatternsValidate(cmd, []string{path})
		require.NoError(t, err)
		assert.Contains(t, out.String(), "OK")
		assert.Contains(t, out.String(), "2026.08.1")
	})

	t.Run("rejects corpus with bad matcher", func(t *testing.T) {
		path := writeCorpus(t, `version: "1"
patterns:
  - id: broken
    title_match: "("
`)

		err := runPatternsValidate(patternsValidateCmd, []string{path})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "corpus invalid")
	})

	t.Run("rejects missing file", func(t *testing.T) {
		err := runPatternsValidate(patternsValidateCmd, []string{filepath.Join(t.TempDir(), "missing.yaml")})
		require.Error(t, err)
	})
}

func TestPatternsInfoCommand(t *testing.T) {
	t.Run("reports corpus file details", func(t *testing.T) {
		path := writeCorpus(t, testCorpus)

		var out bytes.Buffer
		cmd := patternsInfoCmd
		cmd.SetOut(&out)

		err := runPatternsInfo(cmd, []string{path})
		require.NoError(t, err)
		assert.Contains(t, out.String(), "Version:  2026.08.1")
		assert.Contains(t, out.String(), "Patterns: 1")
		assert.Contains(t, out.String(), "permission")
	})

	t.Run("falls back to builtin corpus", func(t *testing.T) {
		var out bytes.Buffer
		cmd := patternsInfoCmd
		cmd.SetOut(&out)

		err := runPatternsInfo(cmd, nil)
		require.NoError(t, err)
		assert.Contains(t, out.String(), "Version:")
	})
}
