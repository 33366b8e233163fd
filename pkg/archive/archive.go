// Package archive turns file sets into tar.gz snapshots and unpacks them
// again. Two implementations exist: a native one built on archive/tar, and
// one that shells out to user-configured commands.
package archive

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrMissingFile marks a compress request that names a path which does not
// exist in the working directory.
var ErrMissingFile = errors.New("file does not exist")

// An Archiver produces and consumes compressed snapshots. Compress bundles
// the named files, resolved relative to cwd, into a tar.gz archive at dest.
// Extract unpacks the archive at src into the dest directory, creating it if
// needed. Any Extract failure means the archive cannot be trusted; callers
// decide what to discard.
type Archiver interface {
	Compress(ctx context.Context, cwd string, files []string, dest string) error
	Extract(ctx context.Context, src, dest string) error
}

// verifyFiles rejects a compress request up front when an input is absent,
// rather than failing halfway through writing the archive.
func verifyFiles(cwd string, files []string) error {
	for _, file := range files {
		if _, err := os.Lstat(filepath.Join(cwd, file)); err != nil {
			if os.IsNotExist(err) {
				return errors.WithMessagef(ErrMissingFile, "%q", file)
			}
			return err
		}
	}
	return nil
}
