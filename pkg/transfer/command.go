package transfer

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/vcscache/vcscache/pkg/xcmd"
)

// Command is a Transferer that delegates to configured commands, for setups
// that need a specific client such as curl with proxy flags or a storage
// CLI. The download template sees {url} and {dest}; the upload template sees
// {source} and {url}.
type Command struct {
	DownloadArgv []string
	UploadArgv   []string
}

func (c *Command) Download(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	argv := xcmd.Expand(c.DownloadArgv, map[string]string{
		"url":  url,
		"dest": dest,
	})

	runner := &xcmd.Runner{}
	return runner.Run(ctx, argv)
}

func (c *Command) Upload(ctx context.Context, source, url string) error {
	if _, err := os.Stat(source); err != nil {
		if os.IsNotExist(err) {
			return errors.WithMessagef(ErrSourceMissing, "%q", source)
		}
		return err
	}

	argv := xcmd.Expand(c.UploadArgv, map[string]string{
		"source": source,
		"url":    url,
	})

	runner := &xcmd.Runner{}
	return runner.Run(ctx, argv)
}
