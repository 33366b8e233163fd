package archive

import (
	"archive/tar"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"gotest.tools/v3/fs"
)

func TestTarGzRoundTrip(t *testing.T) {
	assert := assert.New(t)

	src := fs.NewDir(t, "snapshot-src",
		fs.WithFile("clone.bundle", "bundle-bytes", fs.WithMode(0o644)),
		fs.WithDir("repo",
			fs.WithFile("config", "[core]\n", fs.WithMode(0o644)),
			fs.WithDir("objects",
				fs.WithFile("pack-1", "pack-bytes", fs.WithMode(0o644)),
			),
		),
	)
	defer src.Remove()
	assert.NoError(os.Symlink("repo/config", src.Join("config-link")))

	dest := filepath.Join(t.TempDir(), "out", "snapshot.tar.gz")
	a := TarGz{}

	err := a.Compress(context.Background(), src.Path(), []string{"clone.bundle", "repo", "config-link"}, dest)
	assert.NoError(err)
	_, err = os.Stat(dest)
	assert.NoError(err)

	unpacked := t.TempDir()
	err = a.Extract(context.Background(), dest, unpacked)
	assert.NoError(err)

	content, err := os.ReadFile(filepath.Join(unpacked, "clone.bundle"))
	assert.NoError(err)
	assert.Equal("bundle-bytes", string(content))

	content, err = os.ReadFile(filepath.Join(unpacked, "repo", "objects", "pack-1"))
	assert.NoError(err)
	assert.Equal("pack-bytes", string(content))

	link, err := os.Readlink(filepath.Join(unpacked, "config-link"))
	assert.NoError(err)
	assert.Equal("repo/config", link)
}

func TestTarGzCompressMissingFile(t *testing.T) {
	assert := assert.New(t)

	src := fs.NewDir(t, "snapshot-src", fs.WithFile("present", "x"))
	defer src.Remove()

	dest := filepath.Join(t.TempDir(), "snapshot.tar.gz")
	err := TarGz{}.Compress(context.Background(), src.Path(), []string{"present", "absent"}, dest)
	assert.ErrorIs(err, ErrMissingFile)
	assert.Contains(err.Error(), "absent")

	// nothing may be left behind for a rejected request
	_, err = os.Stat(dest)
	assert.True(os.IsNotExist(err))
}

func TestTarGzCompressCanceled(t *testing.T) {
	assert := assert.New(t)

	src := fs.NewDir(t, "snapshot-src", fs.WithFile("a", "x"))
	defer src.Remove()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := TarGz{}.Compress(ctx, src.Path(), []string{"a"}, filepath.Join(t.TempDir(), "s.tar.gz"))
	assert.ErrorIs(err, context.Canceled)
}

func TestTarGzExtractCorrupt(t *testing.T) {
	assert := assert.New(t)

	src := filepath.Join(t.TempDir(), "corrupt.tar.gz")
	assert.NoError(os.WriteFile(src, []byte("this is not a gzip stream"), 0o644))

	err := TarGz{}.Extract(context.Background(), src, t.TempDir())
	assert.Error(err)
}

func TestTarGzExtractTruncated(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	whole := filepath.Join(dir, "whole.tar.gz")

	src := fs.NewDir(t, "snapshot-src", fs.WithFile("a", "some file content to pad the archive"))
	defer src.Remove()
	assert.NoError(TarGz{}.Compress(context.Background(), src.Path(), []string{"a"}, whole))

	data, err := os.ReadFile(whole)
	assert.NoError(err)
	truncated := filepath.Join(dir, "truncated.tar.gz")
	assert.NoError(os.WriteFile(truncated, data[:len(data)/2], 0o644))

	err = TarGz{}.Extract(context.Background(), truncated, t.TempDir())
	assert.Error(err)
}

func TestTarGzExtractTraversal(t *testing.T) {
	assert := assert.New(t)

	evil := filepath.Join(t.TempDir(), "evil.tar.gz")
	f, err := os.Create(evil)
	assert.NoError(err)
	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	assert.NoError(tw.WriteHeader(&tar.Header{
		Name:     "../escape.txt",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     4,
	}))
	_, err = tw.Write([]byte("evil"))
	assert.NoError(err)
	assert.NoError(tw.Close())
	assert.NoError(gw.Close())
	assert.NoError(f.Close())

	dest := t.TempDir()
	err = TarGz{}.Extract(context.Background(), evil, dest)
	assert.Error(err)
	assert.Contains(err.Error(), "escapes")

	_, err = os.Stat(filepath.Join(filepath.Dir(dest), "escape.txt"))
	assert.True(os.IsNotExist(err))
}
