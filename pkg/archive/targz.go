package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/vcscache/vcscache/pkg/common"
)

// TarGz is the native Archiver. Archives are written through a temporary
// file and renamed into place so a crashed run never leaves a half-written
// snapshot behind.
type TarGz struct{}

func (TarGz) Compress(ctx context.Context, cwd string, files []string, dest string) error {
	if err := verifyFiles(cwd, files); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	temp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		temp.Close()
		os.Remove(temp.Name())
	}()

	gw := gzip.NewWriter(temp)
	tw := tar.NewWriter(gw)

	for _, file := range files {
		if err := writeTree(ctx, tw, cwd, file); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}
	if err := temp.Close(); err != nil {
		return err
	}

	common.Logger(ctx).Debugf("wrote archive %s", dest)
	return os.Rename(temp.Name(), dest)
}

// writeTree adds file to the archive, recursing when it is a directory.
// Entry names are stored slash-separated and relative to cwd.
func writeTree(ctx context.Context, tw *tar.Writer, cwd, file string) error {
	root := filepath.Join(cwd, file)
	return filepath.Walk(root, func(fpath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, err := filepath.Rel(cwd, fpath)
		if err != nil {
			return err
		}
		name := path.Join(filepath.ToSlash(rel))

		var linkName string
		if fi.Mode()&os.ModeSymlink == os.ModeSymlink {
			if linkName, err = os.Readlink(fpath); err != nil {
				return fmt.Errorf("unable to readlink %q: %w", fpath, err)
			}
		} else if !fi.Mode().IsRegular() && !fi.IsDir() {
			return nil
		}

		header, err := tar.FileInfoHeader(fi, linkName)
		if err != nil {
			return err
		}
		header.Name = name
		header.Mode = int64(fi.Mode())
		header.ModTime = fi.ModTime()

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if fi.IsDir() || linkName != "" {
			return nil
		}

		f, err := os.Open(fpath)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

func (TarGz) Extract(ctx context.Context, src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("unable to read %q: %w", src, err)
	}
	defer gr.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	tr := tar.NewReader(gr)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("unable to read %q: %w", src, err)
		}

		name := path.Clean(strings.TrimPrefix(header.Name, "/"))
		if !fs.ValidPath(name) {
			return fmt.Errorf("archive entry %q escapes destination", header.Name)
		}
		target := filepath.Join(dest, filepath.FromSlash(name))

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return err
			}
			//nolint:gosec // G110: snapshots are produced by this tool, size is bounded by the repository
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.RemoveAll(target); err != nil {
				return err
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}
		}
	}
}
