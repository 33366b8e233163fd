package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLayout(t *testing.T) {
	assert := assert.New(t)

	env := func(key string) string {
		return map[string]string{"HOME": "/home/worker"}[key]
	}

	layout, err := NewLayout("$HOME/.cache/vcscache", "clones/{name}.tar.gz", env)
	assert.NoError(err)
	assert.Equal("/home/worker/.cache/vcscache", layout.Dir())

	// unset variables expand to nothing, like in a shell
	layout, err = NewLayout("$NOPE/cache", "clones/{name}.tar.gz", env)
	assert.NoError(err)
	assert.Equal("/cache", layout.Dir())

	_, err = NewLayout("", "clones/{name}.tar.gz", env)
	assert.Error(err)

	_, err = NewLayout("/cache", "clones/snapshot.tar.gz", env)
	assert.ErrorContains(err, "{name}")
}

func TestLocalPath(t *testing.T) {
	assert := assert.New(t)

	layout, err := NewLayout("/cache", "clones/{name}.tar.gz", func(string) string { return "" })
	assert.NoError(err)

	assert.Equal(
		filepath.Join("/cache", "clones", "some-repo.tar.gz"),
		layout.LocalPath("some-repo"),
	)
	assert.Equal(
		filepath.Join("/cache", "clones", "github.com", "some-org", "some-repo.tar.gz"),
		layout.LocalPath("github.com/some-org/some-repo"),
	)

	// repeated lookups are stable, nothing is consulted at call time
	assert.Equal(layout.LocalPath("some-repo"), layout.LocalPath("some-repo"))
}

func TestValidateName(t *testing.T) {
	assert := assert.New(t)

	for _, name := range []string{
		"some-repo",
		"github.com/some-org/some-repo",
		"clones.v1.x",
	} {
		assert.NoError(ValidateName(name), name)
	}

	for _, name := range []string{
		"",
		".",
		"..",
		"../escape",
		"a/../b",
		"/absolute",
		"trailing/",
	} {
		assert.Error(ValidateName(name), name)
	}
}

func TestStorageName(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("public/some-repo.tar.gz", StorageName("some-repo"))
	assert.Equal(
		"public/github.com/some-org/some-repo.tar.gz",
		StorageName("github.com/some-org/some-repo"),
	)
}
