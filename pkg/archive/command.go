package archive

import (
	"context"
	"os"
	"path/filepath"

	"github.com/vcscache/vcscache/pkg/xcmd"
)

// Command is an Archiver that delegates to configured commands, for setups
// where a specific tar implementation or flag set is required. The compress
// template sees {dest} and receives the file list as trailing arguments; the
// extract template sees {source} and {dest}.
type Command struct {
	CompressArgv []string
	ExtractArgv  []string
}

func (c *Command) Compress(ctx context.Context, cwd string, files []string, dest string) error {
	if err := verifyFiles(cwd, files); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	argv := xcmd.Expand(c.CompressArgv, map[string]string{"dest": dest})
	argv = append(argv, files...)

	runner := &xcmd.Runner{Dir: cwd}
	return runner.Run(ctx, argv)
}

func (c *Command) Extract(ctx context.Context, src, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	argv := xcmd.Expand(c.ExtractArgv, map[string]string{
		"source": src,
		"dest":   dest,
	})

	runner := &xcmd.Runner{}
	return runner.Run(ctx, argv)
}
