package badge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPublisher(t *testing.T) (*GitPublisher, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	return &GitPublisher{
		RepoPath: dir,
		File:     "badges/coverage.json",
		Author:   Identity{Name: "ci-bot", Email: "ci-bot@example.com"},
		Now:      func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}, repo
}

func TestGitPublisherCommitsBadge(t *testing.T) {
	pub, repo := newPublisher(t)

	require.NoError(t, pub.Publish(context.Background(), NewRecord("coverage", 81)))

	head, err := repo.Head()
	require.NoError(t, err)
	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Equal(t, "Update coverage badge to 81.0%", commit.Message)
	assert.Equal(t, "ci-bot", commit.Author.Name)

	data, err := os.ReadFile(filepath.Join(pub.RepoPath, "badges", "coverage.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message": "81.0%"`)
}

func TestGitPublisherSkipsUnchangedBadge(t *testing.T) {
	pub, repo := newPublisher(t)
	ctx := context.Background()

	require.NoError(t, pub.Publish(ctx, NewRecord("coverage", 81)))
	first, err := repo.Head()
	require.NoError(t, err)

	require.NoError(t, pub.Publish(ctx, NewRecord("coverage", 81)))
	same, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, first.Hash(), same.Hash())

	require.NoError(t, pub.Publish(ctx, NewRecord("coverage", 92)))
	next, err := repo.Head()
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash(), next.Hash())
}

func TestGitPublisherNoRepository(t *testing.T) {
	pub := &GitPublisher{RepoPath: t.TempDir(), File: "b.json", Author: Identity{Name: "a", Email: "a@b.c"}}
	assert.Error(t, pub.Publish(context.Background(), NewRecord("coverage", 10)))
}
