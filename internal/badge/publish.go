package badge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Publisher durably stores a badge record.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

// Identity is the author of badge commits.
type Identity struct {
	Name  string `yaml:"name" validate:"required"`
	Email string `yaml:"email" validate:"required,email"`
}

// GitPublisher commits the badge endpoint file into a git worktree and
// optionally pushes it.
type GitPublisher struct {
	RepoPath string
	File     string
	Author   Identity
	Remote   string // push target; empty disables pushing
	Token    string
	Now      func() time.Time
}

// Publish writes, commits and pushes the record. An unchanged badge
// produces no commit.
func (p *GitPublisher) Publish(ctx context.Context, rec Record) error {
	repo, err := git.PlainOpen(p.RepoPath)
	if err != nil {
		return fmt.Errorf("open badge repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("badge worktree: %w", err)
	}

	data, err := rec.Endpoint()
	if err != nil {
		return err
	}
	full := filepath.Join(p.RepoPath, p.File)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write badge: %w", err)
	}

	rel := filepath.ToSlash(p.File)
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("badge worktree status: %w", err)
	}
	if _, changed := status[rel]; !changed {
		return nil
	}

	if _, err := wt.Add(rel); err != nil {
		return fmt.Errorf("stage badge: %w", err)
	}
	when := time.Now()
	if p.Now != nil {
		when = p.Now()
	}
	sig := &object.Signature{Name: p.Author.Name, Email: p.Author.Email, When: when}
	msg := fmt.Sprintf("Update %s badge to %s", rec.Name, rec.Message())
	if _, err := wt.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return fmt.Errorf("commit badge: %w", err)
	}

	if p.Remote == "" {
		return nil
	}
	push := &git.PushOptions{RemoteName: p.Remote}
	if p.Token != "" {
		push.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: p.Token}
	}
	if err := repo.PushContext(ctx, push); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push badge: %w", err)
	}
	return nil
}
