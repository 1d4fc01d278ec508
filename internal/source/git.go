package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	docerrors "git.home.luguber.info/inful/docscope/internal/errors"
	"git.home.luguber.info/inful/docscope/internal/logfields"
)

// GitSyncer keeps a local checkout of a remote content repository in sync.
// Sync clones on first use and fast-forward pulls afterwards; the checkout
// then serves as the root of an FSSource.
type GitSyncer struct {
	URL    string
	Branch string
	// Dir is the local checkout path.
	Dir    string
	Logger *slog.Logger
}

// NewGitSyncer creates a syncer for the given remote.
func NewGitSyncer(url, branch, dir string, logger *slog.Logger) *GitSyncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitSyncer{URL: url, Branch: branch, Dir: dir, Logger: logger}
}

// Sync brings the local checkout up to date with the remote.
func (g *GitSyncer) Sync(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(g.Dir, ".git")); err == nil {
		return g.pull(ctx)
	}
	return g.clone(ctx)
}

func (g *GitSyncer) clone(ctx context.Context) error {
	g.Logger.Info("Cloning content repository", logfields.URL(g.URL), logfields.Path(g.Dir))
	opts := &git.CloneOptions{URL: g.URL}
	if g.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(g.Branch)
		opts.SingleBranch = true
	}
	repo, err := git.PlainCloneContext(ctx, g.Dir, false, opts)
	if err != nil {
		return docerrors.SourceSyncError(g.URL, fmt.Errorf("clone: %w", err))
	}
	if ref, err := repo.Head(); err == nil {
		g.Logger.Info("Content repository cloned",
			logfields.URL(g.URL),
			slog.String("commit", ref.Hash().String()[:8]))
	}
	return nil
}

func (g *GitSyncer) pull(ctx context.Context) error {
	repo, err := git.PlainOpen(g.Dir)
	if err != nil {
		return docerrors.SourceSyncError(g.URL, fmt.Errorf("open checkout: %w", err))
	}
	wt, err := repo.Worktree()
	if err != nil {
		return docerrors.SourceSyncError(g.URL, fmt.Errorf("worktree: %w", err))
	}
	opts := &git.PullOptions{RemoteName: "origin"}
	if g.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(g.Branch)
	}
	err = wt.PullContext(ctx, opts)
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		g.Logger.Debug("Content repository already up to date", logfields.URL(g.URL))
		return nil
	}
	if err != nil {
		return docerrors.SourceSyncError(g.URL, fmt.Errorf("pull: %w", err))
	}
	if ref, headErr := repo.Head(); headErr == nil {
		g.Logger.Info("Content repository updated",
			logfields.URL(g.URL),
			slog.String("commit", ref.Hash().String()[:8]))
	}
	return nil
}
