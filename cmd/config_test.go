package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcscache/vcscache/pkg/cache"
)

// resetConfigFlags restores the package level flag state tests poke at.
func resetConfigFlags(t *testing.T) {
	t.Cleanup(func() {
		configFile = ""
		flagConfig = cache.Config{}
	})
}

func TestLoadConfigDefaults(t *testing.T) {
	resetConfigFlags(t)
	assert := assert.New(t)

	cfg, err := loadConfig()
	assert.NoError(err)
	assert.Contains(cfg.CacheDir, "vcscache")
	assert.Equal("clones/{name}.tar.gz", cfg.CacheName)
	assert.Empty(cfg.IndexURL)
}

func TestLoadConfigLayering(t *testing.T) {
	resetConfigFlags(t)
	assert := assert.New(t)
	require := require.New(t)

	configFile = filepath.Join(t.TempDir(), "config.json")
	data, err := json.Marshal(&cache.Config{
		CacheDir: "/srv/cache",
		IndexURL: "http://index.internal",
		QueueURL: "http://queue.internal",
	})
	require.NoError(err)
	require.NoError(os.WriteFile(configFile, data, 0o600))

	flagConfig.IndexURL = "http://index.override"

	cfg, err := loadConfig()
	require.NoError(err)

	// the file overrides the defaults, flags override the file
	assert.Equal("/srv/cache", cfg.CacheDir)
	assert.Equal("clones/{name}.tar.gz", cfg.CacheName)
	assert.Equal("http://index.override", cfg.IndexURL)
	assert.Equal("http://queue.internal", cfg.QueueURL)
}

func TestLoadConfigBadFile(t *testing.T) {
	resetConfigFlags(t)
	assert := assert.New(t)

	configFile = filepath.Join(t.TempDir(), "missing.json")
	_, err := loadConfig()
	assert.ErrorContains(err, "unable to read config file")

	require.NoError(t, os.WriteFile(configFile, []byte("{"), 0o600))
	_, err = loadConfig()
	assert.ErrorContains(err, "unable to parse config file")
}

func TestPublishOptions(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("TASK_ID", "task-from-env")
	t.Setenv("RUN_ID", "7")

	input := &publishInput{expiresDays: 3, data: `{"rev":"abc"}`}
	opts, err := input.options()
	assert.NoError(err)
	assert.Equal("task-from-env", opts.TaskID)
	assert.Equal("7", opts.RunID)
	assert.WithinDuration(time.Now().Add(3*24*time.Hour), opts.Expires, time.Minute)
	assert.JSONEq(`{"rev":"abc"}`, string(opts.Data))

	// explicit flags win over the environment
	input = &publishInput{taskID: "task-42", runID: "9"}
	opts, err = input.options()
	assert.NoError(err)
	assert.Equal("task-42", opts.TaskID)
	assert.Equal("9", opts.RunID)
	assert.True(opts.Expires.IsZero())

	input = &publishInput{data: "{not json"}
	_, err = input.options()
	assert.ErrorContains(err, "not valid JSON")
}

func TestPublishNamespace(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	input := &publishInput{}
	namespace, err := input.namespace(ctx, []string{"mirror", "some-org/some-repo/main"})
	assert.NoError(err)
	assert.Equal("some-org/some-repo/main", namespace)

	_, err = input.namespace(ctx, []string{"mirror"})
	assert.ErrorContains(err, "--namespace-from")
}

func TestPublishNamespaceFromCheckout(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(err)

	require.NoError(os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(err)
	_, err = wt.Add("README.md")
	require.NoError(err)
	_, err = wt.Commit("initial commit", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com"},
	})
	require.NoError(err)

	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{"https://github.com/some-org/some-repo.git"},
	})
	require.NoError(err)

	head, err := repo.Head()
	require.NoError(err)

	input := &publishInput{namespaceFrom: dir}
	namespace, err := input.namespace(context.Background(), nil)
	assert.NoError(err)
	assert.Equal("some-org/some-repo/"+head.Name().Short(), namespace)
}
