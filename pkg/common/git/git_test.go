package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestFindGitSlug(t *testing.T) {
	assert := assert.New(t)

	var slugTests = []struct {
		url      string // input
		provider string // expected provider
		slug     string // expected slug
	}{
		{"https://git-codecommit.us-east-1.amazonaws.com/v1/repos/my-repo-name", "CodeCommit", "my-repo-name"},
		{"ssh://git-codecommit.us-west-2.amazonaws.com/v1/repos/my-repo", "CodeCommit", "my-repo"},
		{"git@github.com:some-org/some-repo.git", "GitHub", "some-org/some-repo"},
		{"git@github.com:some-org/some-repo", "GitHub", "some-org/some-repo"},
		{"https://github.com/some-org/some-repo.git", "GitHub", "some-org/some-repo"},
		{"https://github.com/some-org/some-repo", "GitHub", "some-org/some-repo"},
		{"https://github.com/some-org/some-repo/", "GitHub", "some-org/some-repo"},
		{"git@my.ghe.host:some-org/some-repo.git", "GitHubEnterprise", "some-org/some-repo"},
		{"https://my.ghe.host/some-org/some-repo", "GitHubEnterprise", "some-org/some-repo"},
		{"http://myotherrepo.com/repo.git", "", "http://myotherrepo.com/repo.git"},
	}

	for _, tt := range slugTests {
		provider, slug, err := findGitSlug(tt.url, "my.ghe.host")

		assert.NoError(err)
		assert.Equal(tt.provider, provider)
		assert.Equal(tt.slug, slug)
	}
}

// testRepo builds a real repository on disk with a single commit so the
// revision helpers have something to inspect.
func testRepo(t *testing.T) (string, string) {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	assert.NoError(t, err)

	err = os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0o644)
	assert.NoError(t, err)

	wt, err := repo.Worktree()
	assert.NoError(t, err)
	_, err = wt.Add("README.md")
	assert.NoError(t, err)

	hash, err := wt.Commit("initial commit", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com"},
	})
	assert.NoError(t, err)

	return dir, hash.String()
}

func TestFindGitRevision(t *testing.T) {
	assert := assert.New(t)

	dir, sha := testRepo(t)

	short, full, err := FindGitRevision(context.Background(), dir)
	assert.NoError(err)
	assert.Equal(sha, full)
	assert.Equal(sha[:7], short)

	// nested paths resolve through the enclosing repository
	nested := filepath.Join(dir, "a", "b")
	assert.NoError(os.MkdirAll(nested, 0o755))
	_, full, err = FindGitRevision(context.Background(), nested)
	assert.NoError(err)
	assert.Equal(sha, full)
}

func TestFindGitRevisionNoRepo(t *testing.T) {
	assert := assert.New(t)

	_, _, err := FindGitRevision(context.Background(), t.TempDir())
	assert.Error(err)
}

func TestFindGitRef(t *testing.T) {
	log.SetLevel(log.DebugLevel)

	assert := assert.New(t)

	dir, sha := testRepo(t)
	repo, err := git.PlainOpen(dir)
	assert.NoError(err)

	head, err := repo.Head()
	assert.NoError(err)

	ref, err := FindGitRef(context.Background(), dir)
	assert.NoError(err)
	assert.Equal(head.Name().String(), ref)

	// a tag on HEAD wins over the branch
	_, err = repo.CreateTag("v1.2.3", plumbing.NewHash(sha), nil)
	assert.NoError(err)

	ref, err = FindGitRef(context.Background(), dir)
	assert.NoError(err)
	assert.Equal("refs/tags/v1.2.3", ref)
}

func TestFindGitBranch(t *testing.T) {
	assert := assert.New(t)

	dir, _ := testRepo(t)
	repo, err := git.PlainOpen(dir)
	assert.NoError(err)

	head, err := repo.Head()
	assert.NoError(err)

	branch, err := FindGitBranch(context.Background(), dir)
	assert.NoError(err)
	assert.Equal(head.Name().Short(), branch)
}

func TestFindRepoSlug(t *testing.T) {
	assert := assert.New(t)

	dir, _ := testRepo(t)
	repo, err := git.PlainOpen(dir)
	assert.NoError(err)

	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{"https://github.com/some-org/some-repo.git"},
	})
	assert.NoError(err)

	slug, err := FindRepoSlug(context.Background(), dir, "github.com", "")
	assert.NoError(err)
	assert.Equal("some-org/some-repo", slug)
}

func TestFindRepoSlugNoRemote(t *testing.T) {
	assert := assert.New(t)

	dir, _ := testRepo(t)
	_, err := FindRepoSlug(context.Background(), dir, "", "origin")
	assert.Error(err)
}
