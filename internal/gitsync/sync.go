// Package gitsync mirrors an optional git source repository into the
// served asset root. Content arrives only through clone or fast-forward
// pull; assetgate never writes into a synced checkout except via promoted
// uploads.
package gitsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/assetgatehq/assetgate/internal/config"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

var ErrNoSource = errors.New("no git source configured")

const syncTimeout = 5 * time.Minute

type Syncer struct {
	source  *config.SourceConfig
	rootDir string
}

func New(cfg *config.Config) *Syncer {
	return &Syncer{source: cfg.Source, rootDir: cfg.RootDir}
}

// Enabled reports whether a source repository is configured.
func (s *Syncer) Enabled() bool {
	return s.source != nil && s.source.URL != ""
}

// Sync clones the source on first run and pulls afterwards. It returns
// the commit SHA at HEAD after the sync.
func (s *Syncer) Sync(ctx context.Context) (string, error) {
	if !s.Enabled() {
		return "", ErrNoSource
	}

	auth, err := authMethod(s.source.Auth)
	if err != nil {
		return "", fmt.Errorf("resolve git auth: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	repo, err := git.PlainOpen(s.rootDir)
	switch {
	case err == nil:
		if err := s.pull(ctx, repo, auth); err != nil {
			return "", err
		}
	case errors.Is(err, git.ErrRepositoryNotExists):
		repo, err = s.clone(ctx, auth)
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("open asset root: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

func (s *Syncer) clone(ctx context.Context, auth transport.AuthMethod) (*git.Repository, error) {
	if err := os.MkdirAll(s.rootDir, 0755); err != nil {
		return nil, err
	}

	// Full clone: the checkout is persistent and pulled on every sync,
	// and shallow history does not mix well with repeated fetches.
	cloneOpts := &git.CloneOptions{
		URL:  s.source.URL,
		Auth: auth,
	}
	if s.source.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(s.source.Branch)
		cloneOpts.SingleBranch = true
	}

	repo, err := git.PlainCloneContext(ctx, s.rootDir, false, cloneOpts)
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", s.source.URL, err)
	}
	return repo, nil
}

func (s *Syncer) pull(ctx context.Context, repo *git.Repository, auth transport.AuthMethod) error {
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	pullOpts := &git.PullOptions{
		RemoteName: "origin",
		Auth:       auth,
	}
	if s.source.Branch != "" {
		pullOpts.ReferenceName = plumbing.NewBranchReferenceName(s.source.Branch)
		pullOpts.SingleBranch = true
	}

	if err := wt.PullContext(ctx, pullOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pull %s: %w", s.source.URL, err)
	}
	return nil
}
