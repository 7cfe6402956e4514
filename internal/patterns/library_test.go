package patterns

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testCorpus = `
version: "2026-08-01"
patterns:
  - id: pm-403-test
    service: property-manager
    http_status: 403
    error_type: insufficient_permissions
    title_match: forbidden
    detail_match: 'ctr_\w+'
    category: permission
    known_causes:
      - missing write access
    solution_ids:
      - switch-accessible-scope
  - id: pm-429-test
    service: property-manager
    http_status: 429
    error_type: rate_limit_exceeded
    title_match: 'rate limit'
    category: rate_limit
`

func writeCorpus(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeCorpus(t, testCorpus)

	lib, err := LoadFile(path, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "2026-08-01", lib.Version())
	assert.Equal(t, 2, lib.Len())

	pats := lib.Query("property-manager", 403)
	require.Len(t, pats, 1)
	assert.Equal(t, "pm-403-test", pats[0].ID)
	assert.True(t, pats[0].MatchTitle("Forbidden"))
	assert.True(t, pats[0].HasDetailMatcher())
	assert.True(t, pats[0].MatchDetail("contract ctr_ABC requires write"))

	assert.Empty(t, lib.Query("property-manager", 404))
	assert.Nil(t, lib.Get("missing"))
	assert.NotNil(t, lib.Get("pm-429-test"))
}

func TestLoadFileRejectsDuplicates(t *testing.T) {
	path := writeCorpus(t, `
version: "1"
patterns:
  - id: dup
    service: a
    http_status: 400
    error_type: x
    title_match: a
  - id: dup
    service: b
    http_status: 400
    error_type: y
    title_match: b
`)
	_, err := LoadFile(path, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate pattern id")
}

func TestLoadFileRejectsBadRegex(t *testing.T) {
	path := writeCorpus(t, `
version: "1"
patterns:
  - id: bad
    service: a
    http_status: 400
    error_type: x
    title_match: '(['
`)
	_, err := LoadFile(path, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid title matcher")
}

func TestLoadFileRejectsEmpty(t *testing.T) {
	path := writeCorpus(t, `version: "1"`)
	_, err := LoadFile(path, zap.NewNop())
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestReloadKeepsSnapshotOnFailure(t *testing.T) {
	path := writeCorpus(t, testCorpus)
	lib, err := LoadFile(path, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("version: broken"), 0o600))
	require.Error(t, lib.Reload(path))

	// Old snapshot still serves.
	assert.Equal(t, "2026-08-01", lib.Version())
	assert.Equal(t, 2, lib.Len())
}

func TestWatchReloads(t *testing.T) {
	path := writeCorpus(t, testCorpus)
	lib, err := LoadFile(path, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, lib.Watch(ctx, path))

	updated := `
version: "2026-09-01"
patterns:
  - id: only-one
    service: property-manager
    http_status: 403
    error_type: insufficient_permissions
    title_match: forbidden
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	require.Eventually(t, func() bool {
		return lib.Version() == "2026-09-01"
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, lib.Len())
}

func TestBuiltinCorpus(t *testing.T) {
	lib := Builtin(zap.NewNop())
	assert.Equal(t, builtinVersion, lib.Version())
	assert.NotEmpty(t, lib.Query("property-manager", 403))

	// ids unique and sorted
	all := lib.All()
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}
}
