package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/vcscache/vcscache/pkg/archive"
	"github.com/vcscache/vcscache/pkg/common"
	"github.com/vcscache/vcscache/pkg/index"
	"github.com/vcscache/vcscache/pkg/objectstore"
	"github.com/vcscache/vcscache/pkg/transfer"
)

// Options collects the collaborators a Cache works through. Layout,
// Archiver and Transferer are always required. Index and ObjectStore are
// only needed for the remote operations and may be left nil for purely
// local use.
type Options struct {
	Layout      *Layout
	Archiver    archive.Archiver
	Transferer  transfer.Transferer
	Index       index.Client
	ObjectStore objectstore.Client
}

// Cache orchestrates the snapshot life cycle: Package produces a local
// snapshot, Publish registers it remotely, Resolve materializes the best
// available snapshot into a destination directory.
type Cache struct {
	layout      *Layout
	archiver    archive.Archiver
	transferer  transfer.Transferer
	index       index.Client
	objectstore objectstore.Client
}

func New(opts Options) (*Cache, error) {
	if opts.Layout == nil {
		return nil, errors.New("cache needs a layout")
	}
	if opts.Archiver == nil {
		return nil, errors.New("cache needs an archiver")
	}
	if opts.Transferer == nil {
		return nil, errors.New("cache needs a transferer")
	}
	return &Cache{
		layout:      opts.Layout,
		archiver:    opts.Archiver,
		transferer:  opts.Transferer,
		index:       opts.Index,
		objectstore: opts.ObjectStore,
	}, nil
}

// LocalPath returns where the named snapshot lives on local disk, whether
// or not anything is there yet.
func (c *Cache) LocalPath(name string) string {
	return c.layout.LocalPath(name)
}

// Resolve materializes the named snapshot into dest and reports whether it
// found one. The local copy is tried first; extraction failure marks it
// corrupt, and a single remote attempt replaces it. A namespace nobody has
// published to is a miss, not an error.
func (c *Cache) Resolve(ctx context.Context, name, namespace, dest string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, &PreconditionError{Reason: "unusable cache name", Err: err}
	}
	if namespace == "" {
		return false, &PreconditionError{Reason: "namespace is empty"}
	}
	if dest == "" {
		return false, &PreconditionError{Reason: "destination is empty"}
	}

	logger := common.Logger(ctx).WithFields(log.Fields{
		"cache":     name,
		"namespace": namespace,
	})
	ctx = common.WithLogger(ctx, logger)

	localPath := c.layout.LocalPath(name)
	if _, err := os.Stat(localPath); err == nil {
		err := c.archiver.Extract(ctx, localPath, dest)
		if err == nil {
			logger.Infof("using local cache %s", localPath)
			return true, nil
		}

		// the snapshot on disk is corrupt, drop it along with whatever
		// extraction left behind and fall through to the remote copy
		logger.Warnf("local cache %s is unusable, falling back to remote: %v", localPath, err)
		if err := c.invalidate(localPath, dest); err != nil {
			return false, err
		}
	}

	if c.index == nil {
		return false, errors.New("no index configured, cannot resolve remotely")
	}

	record, err := c.index.Find(ctx, namespace)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			logger.Infof("nothing published for namespace %s", namespace)
			return false, nil
		}
		return false, fmt.Errorf("unable to query index for %q: %w", namespace, err)
	}
	if !record.Expires.IsZero() && record.Expires.Before(time.Now()) {
		logger.Infof("record for namespace %s expired %s", namespace, record.Expires)
		return false, nil
	}

	url := c.index.ArtifactURL(record.TaskID, StorageName(name))
	if err := c.transferer.Download(ctx, url, localPath); err != nil {
		return false, fmt.Errorf("unable to download %s: %w", url, err)
	}

	if err := c.archiver.Extract(ctx, localPath, dest); err != nil {
		// the downloaded snapshot is no better, give up rather than
		// loop on a corrupt remote artifact
		if rmErr := c.invalidate(localPath, dest); rmErr != nil {
			logger.Errorf("unable to drop corrupt snapshot: %v", rmErr)
		}
		return false, fmt.Errorf("downloaded snapshot is corrupt: %w", err)
	}

	logger.Infof("resolved %s from task %s", name, record.TaskID)
	return true, nil
}

// invalidate removes a corrupt snapshot and any partial extraction.
func (c *Cache) invalidate(localPath, dest string) error {
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.RemoveAll(dest)
}

// PublishOptions parameterizes one publish. TaskID is required; the zero
// values of the rest get working defaults: run "0", rank of the current
// time, expiration after DefaultRetention.
type PublishOptions struct {
	TaskID  string
	RunID   string
	Rank    int64
	Expires time.Time
	Data    json.RawMessage
}

// Publish uploads the named local snapshot and indexes it under namespace
// so later resolves find it. The snapshot must have been packaged first.
func (c *Cache) Publish(ctx context.Context, name, namespace string, opts PublishOptions) error {
	if err := ValidateName(name); err != nil {
		return &PreconditionError{Reason: "unusable cache name", Err: err}
	}
	if namespace == "" {
		return &PreconditionError{Reason: "namespace is empty"}
	}
	if opts.TaskID == "" {
		return &PreconditionError{Reason: "taskId is empty, set TASK_ID or pass one explicitly"}
	}
	if c.index == nil || c.objectstore == nil {
		return errors.New("no index configured, cannot publish")
	}

	localPath := c.layout.LocalPath(name)
	if _, err := os.Stat(localPath); err != nil {
		if os.IsNotExist(err) {
			return &PreconditionError{
				Reason: fmt.Sprintf("nothing packaged at %s, package %q first", localPath, name),
			}
		}
		return err
	}

	if opts.RunID == "" {
		opts.RunID = "0"
	}
	now := time.Now()
	if opts.Rank == 0 {
		opts.Rank = now.Unix()
	}
	if opts.Expires.IsZero() {
		opts.Expires = now.Add(DefaultRetention)
	}

	logger := common.Logger(ctx).WithFields(log.Fields{
		"cache":     name,
		"namespace": namespace,
		"task":      opts.TaskID,
	})
	ctx = common.WithLogger(ctx, logger)

	storageName := StorageName(name)
	if common.Dryrun(ctx) {
		logger.Infof("dryrun: would upload %s as %s and index it under %s", localPath, storageName, namespace)
		return nil
	}

	dest, err := c.objectstore.CreateDestination(ctx, opts.TaskID, opts.RunID, storageName, &objectstore.DestinationSpec{
		StorageType: StorageType,
		ContentType: ContentType,
		Expires:     opts.Expires,
	})
	if err != nil {
		return fmt.Errorf("unable to create destination for %q: %w", storageName, err)
	}

	if err := c.transferer.Upload(ctx, localPath, dest.PutURL); err != nil {
		return fmt.Errorf("unable to upload %q: %w", storageName, err)
	}

	if err := c.index.Insert(ctx, namespace, &index.Record{
		TaskID:  opts.TaskID,
		Rank:    opts.Rank,
		Expires: opts.Expires,
		Data:    opts.Data,
	}); err != nil {
		return fmt.Errorf("unable to index %q: %w", namespace, err)
	}

	logger.Infof("published %s under %s", name, namespace)
	return nil
}

// Package compresses the listed files, resolved relative to cwd, into the
// local snapshot for name and returns its path. Publishing is a separate
// step.
func (c *Cache) Package(ctx context.Context, name, cwd string, files []string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", &PreconditionError{Reason: "unusable cache name", Err: err}
	}
	if len(files) == 0 {
		return "", &PreconditionError{Reason: "no files to package"}
	}

	logger := common.Logger(ctx).WithField("cache", name)
	ctx = common.WithLogger(ctx, logger)

	localPath := c.layout.LocalPath(name)
	if err := c.archiver.Compress(ctx, cwd, files, localPath); err != nil {
		if errors.Is(err, archive.ErrMissingFile) {
			return "", &PreconditionError{Reason: "listed file is missing", Err: err}
		}
		return "", fmt.Errorf("unable to package %q: %w", name, err)
	}

	logger.Infof("packaged %s", localPath)
	return localPath, nil
}
