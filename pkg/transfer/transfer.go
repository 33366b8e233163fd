// Package transfer moves snapshot archives between local disk and remote
// storage. Backends implement single attempts; Retry wraps any backend with
// a bounded retry budget.
package transfer

import (
	"context"

	"github.com/pkg/errors"
)

// ErrSourceMissing marks an upload request whose local file does not exist.
// It is a precondition failure and is never retried.
var ErrSourceMissing = errors.New("source must exist")

// A Transferer performs one download or upload attempt. Download fetches url
// into the dest file, creating parent directories. Upload sends the source
// file to url.
type Transferer interface {
	Download(ctx context.Context, url, dest string) error
	Upload(ctx context.Context, source, url string) error
}
