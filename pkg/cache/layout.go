// Package cache resolves, packages and publishes compressed repository
// snapshots. A snapshot lives in three places: as a local tar.gz under the
// cache directory, as a task artifact in remote storage, and as a record in
// the remote index that maps a namespace to the task which published last.
package cache

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Storage conventions shared by every snapshot artifact.
const (
	ContentType = "application/x-tar"
	StorageType = "s3"

	// DefaultRetention bounds both index records and stored artifacts
	// when the publisher does not say otherwise.
	DefaultRetention = 30 * 24 * time.Hour
)

// StorageName returns the artifact name a cache name is stored under.
func StorageName(name string) string {
	return "public/" + name + ".tar.gz"
}

// Environ resolves environment variables for path expansion. Injecting it
// keeps layout construction independent of process globals.
type Environ func(key string) string

// Layout decides where a named snapshot lives on local disk. The directory
// has its $VARIABLES expanded once at construction; after that every lookup
// is pure computation.
type Layout struct {
	dir     string
	pattern string
}

// NewLayout builds a Layout from the cache directory and a file name
// pattern containing the {name} placeholder. A nil env resolves against the
// process environment.
func NewLayout(dir, pattern string, env Environ) (*Layout, error) {
	if env == nil {
		env = os.Getenv
	}
	if dir == "" {
		return nil, errors.New("cache directory is empty")
	}
	if !strings.Contains(pattern, "{name}") {
		return nil, errors.Errorf("cache name pattern %q has no {name} placeholder", pattern)
	}
	return &Layout{
		dir:     os.Expand(dir, env),
		pattern: pattern,
	}, nil
}

// Dir returns the expanded cache directory.
func (l *Layout) Dir() string {
	return l.dir
}

// LocalPath returns the absolute path the named snapshot is kept at.
func (l *Layout) LocalPath(name string) string {
	return filepath.Join(l.dir, filepath.FromSlash(strings.ReplaceAll(l.pattern, "{name}", name)))
}

// ValidateName rejects names that would escape the cache directory or map
// to no file at all. Names may contain slashes; they are slash-separated
// relative paths like "github.com/some-org/some-repo".
func ValidateName(name string) error {
	if name == "" {
		return errors.New("cache name is empty")
	}
	if name == "." || !fs.ValidPath(name) {
		return errors.Errorf("invalid cache name %q", name)
	}
	return nil
}
