// Package patterns holds the read-only, versioned error pattern corpus.
//
// The corpus is loaded once at process start from a YAML file and treated as
// immutable shared data. Hot reload swaps the whole collection behind a
// single atomic pointer, so in-flight matches always observe one consistent
// corpus version.
package patterns

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// ErrEmptyCorpus is returned when a corpus file defines no patterns.
var ErrEmptyCorpus = errors.New("pattern corpus is empty")

// corpusFile is the on-disk corpus shape.
type corpusFile struct {
	Version  string          `koanf:"version"`
	Patterns []*ErrorPattern `koanf:"patterns"`
}

// snapshot is one immutable corpus version.
type snapshot struct {
	version  string
	patterns []*ErrorPattern
	byKey    map[string][]*ErrorPattern
}

// Library provides concurrent read access to the current corpus snapshot.
type Library struct {
	current atomic.Pointer[snapshot]
	logger  *zap.Logger
}

// NewLibrary creates a library holding the given snapshot patterns.
func NewLibrary(version string, pats []*ErrorPattern, logger *zap.Logger) (*Library, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	snap, err := buildSnapshot(version, pats)
	if err != nil {
		return nil, err
	}
	l := &Library{logger: logger}
	l.current.Store(snap)
	return l, nil
}

// LoadFile loads a corpus file and returns a library serving it.
func LoadFile(path string, logger *zap.Logger) (*Library, error) {
	version, pats, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	return NewLibrary(version, pats, logger)
}

// Reload re-reads the corpus file and atomically replaces the snapshot. A
// reload failure leaves the current snapshot untouched.
func (l *Library) Reload(path string) error {
	version, pats, err := parseFile(path)
	if err != nil {
		return err
	}
	snap, err := buildSnapshot(version, pats)
	if err != nil {
		return err
	}
	l.current.Store(snap)
	l.logger.Info("pattern corpus reloaded",
		zap.String("version", snap.version),
		zap.Int("patterns", len(snap.patterns)),
	)
	return nil
}

// Watch reloads the corpus whenever the file changes, until ctx is done.
// Reload failures are logged and skipped; the serving snapshot is never
// replaced with a broken one.
func (l *Library) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create corpus watcher: %w", err)
	}

	// Watch the directory: editors and config reloaders replace files via
	// rename, which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch corpus directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if err := l.Reload(path); err != nil {
					l.logger.Warn("corpus reload failed, keeping current snapshot",
						zap.String("path", path),
						zap.Error(err),
					)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("corpus watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Version returns the version string of the current snapshot.
func (l *Library) Version() string {
	return l.current.Load().version
}

// Len returns the number of patterns in the current snapshot.
func (l *Library) Len() int {
	return len(l.current.Load().patterns)
}

// Query returns the candidate patterns for a service and HTTP status. The
// returned slice is shared immutable data and must not be mutated.
func (l *Library) Query(service string, httpStatus int) []*ErrorPattern {
	return l.current.Load().byKey[queryKey(service, httpStatus)]
}

// Get returns the pattern with the given id, or nil.
func (l *Library) Get(id string) *ErrorPattern {
	for _, p := range l.current.Load().patterns {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// All returns every pattern in the current snapshot, ordered by id.
func (l *Library) All() []*ErrorPattern {
	return l.current.Load().patterns
}

func parseFile(path string) (string, []*ErrorPattern, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read corpus file: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return "", nil, fmt.Errorf("failed to parse corpus file %s: %w", path, err)
	}

	var file corpusFile
	if err := k.Unmarshal("", &file); err != nil {
		return "", nil, fmt.Errorf("failed to decode corpus file %s: %w", path, err)
	}
	return file.Version, file.Patterns, nil
}

// buildSnapshot validates and indexes a pattern set. Every matcher is
// compiled here, case-insensitively, so matching is total at query time.
func buildSnapshot(version string, pats []*ErrorPattern) (*snapshot, error) {
	if len(pats) == 0 {
		return nil, ErrEmptyCorpus
	}

	seen := make(map[string]bool, len(pats))
	byKey := make(map[string][]*ErrorPattern)

	for _, p := range pats {
		if p.ID == "" {
			return nil, errors.New("pattern with empty id")
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate pattern id %q", p.ID)
		}
		seen[p.ID] = true

		if p.Category == "" {
			p.Category = CategoryUnknown
		}

		var err error
		p.titleRE, err = compileMatcher(p.TitleMatch)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: invalid title matcher: %w", p.ID, err)
		}
		if p.DetailMatch != "" {
			p.detailRE, err = compileMatcher(p.DetailMatch)
			if err != nil {
				return nil, fmt.Errorf("pattern %s: invalid detail matcher: %w", p.ID, err)
			}
		}

		key := queryKey(p.Service, p.HTTPStatus)
		byKey[key] = append(byKey[key], p)
	}

	sorted := make([]*ErrorPattern, len(pats))
	copy(sorted, pats)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	return &snapshot{version: version, patterns: sorted, byKey: byKey}, nil
}

func compileMatcher(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, errors.New("empty matcher")
	}
	if !strings.HasPrefix(expr, "(?i)") {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}

func queryKey(service string, httpStatus int) string {
	return fmt.Sprintf("%s/%d", service, httpStatus)
}
