// Package index talks to the remote index that maps cache namespaces to the
// task which most recently published a snapshot for them.
package index

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound reports a namespace with no live record. It is the one miss
// callers are expected to tolerate; every other failure is a hard error.
var ErrNotFound = errors.New("namespace is not indexed")

// Record is an index entry. Rank decides which publish wins when several
// tasks index the same namespace; higher wins. Expires bounds how long the
// record may be served. Data carries opaque publisher details.
type Record struct {
	TaskID  string          `json:"taskId"`
	Rank    int64           `json:"rank"`
	Expires time.Time       `json:"expires"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Validate rejects records the index would misorder or never expire.
func (r *Record) Validate() error {
	if r.TaskID == "" {
		return errors.New("record has no taskId")
	}
	if r.Rank == 0 {
		return errors.New("record has no rank")
	}
	if r.Expires.IsZero() {
		return errors.New("record has no expiration")
	}
	return nil
}

// A Client resolves namespaces to records and registers new ones. Find
// returns ErrNotFound when the namespace has no live record. ArtifactURL
// builds the retrieval URL for a named artifact of an indexed task; it is
// pure computation and never fails.
type Client interface {
	Find(ctx context.Context, namespace string) (*Record, error)
	Insert(ctx context.Context, namespace string, record *Record) error
	ArtifactURL(taskID, name string) string
}

func joinURL(base string, parts ...string) string {
	elems := append([]string{strings.TrimRight(base, "/")}, parts...)
	return strings.Join(elems, "/")
}
