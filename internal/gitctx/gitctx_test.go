package gitctx

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[dependencies]\nserde = \"1\"\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("Cargo.toml")
	require.NoError(t, err)

	hash, err := wt.Commit("initial manifest", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, hash.String()
}

func TestCollect(t *testing.T) {
	dir, commit := initRepo(t)

	src := Collect(dir)
	require.NotNil(t, src)
	assert.Equal(t, commit, src.Commit)
	assert.Equal(t, commit[:8], src.Short())
	assert.NotEmpty(t, src.Branch)
	assert.False(t, src.Dirty)
}

func TestCollectFromSubdirectory(t *testing.T) {
	dir, commit := initRepo(t)
	sub := filepath.Join(dir, "crates", "core")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	src := Collect(sub)
	require.NotNil(t, src)
	assert.Equal(t, commit, src.Commit)
}

func TestCollectDirty(t *testing.T) {
	dir, _ := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[dependencies]\nserde = \"2\"\n"), 0o644))

	src := Collect(dir)
	require.NotNil(t, src)
	assert.True(t, src.Dirty)
}

func TestCollectOutsideRepository(t *testing.T) {
	assert.Nil(t, Collect(t.TempDir()))
}

func TestCollectEmptyRepository(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	assert.Nil(t, Collect(dir))
}
