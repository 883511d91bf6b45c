// Package fetcher maintains local clones of configured Git sources
// under a cache directory. Each source owns one deterministic
// subdirectory keyed by source ID, so renaming a source does not
// orphan its clone.
package fetcher

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/appbridge/appbridge/internal/api"
	"github.com/appbridge/appbridge/internal/repoauth"
)

// ErrorKind classifies fetch failures for status reporting.
type ErrorKind string

const (
	KindNetworkError ErrorKind = "network_error"
	KindAuthError    ErrorKind = "auth_error"
	KindInvalidRef   ErrorKind = "invalid_ref"
	KindUnknown      ErrorKind = "unknown"
)

// FetchError is a classified, per-source failure. It never aborts the
// process; the orchestrator records it against the source.
type FetchError struct {
	Kind     ErrorKind
	SourceID string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.SourceID, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Result reports a successful clone or update.
type Result struct {
	LocalPath string
	CommitRef string
}

// DeployKeyLoader returns the decrypted deploy key for a source, or
// nil when the source is public.
type DeployKeyLoader func(sourceID string) ([]byte, error)

// Fetcher clones and updates source repositories.
type Fetcher struct {
	cacheDir  string
	timeout   time.Duration
	logger    *slog.Logger
	deployKey DeployKeyLoader
}

// New creates a fetcher rooted at cacheDir. The directory is created
// if missing; failure to do so is an unrecoverable startup condition
// surfaced to the caller.
func New(cacheDir string, timeout time.Duration, deployKey DeployKeyLoader, logger *slog.Logger) (*Fetcher, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("cache directory unwritable: %w", err)
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Fetcher{
		cacheDir:  cacheDir,
		timeout:   timeout,
		logger:    logger,
		deployKey: deployKey,
	}, nil
}

// CheckoutPath returns the working-tree directory for a source, which
// may not exist yet.
func (f *Fetcher) CheckoutPath(sourceID string) string {
	return filepath.Join(f.cacheDir, sourceID)
}

// HasCheckout reports whether a usable clone exists on disk.
func (f *Fetcher) HasCheckout(sourceID string) bool {
	info, err := os.Stat(filepath.Join(f.CheckoutPath(sourceID), ".git"))
	return err == nil && info.IsDir()
}

// Fetch clones or updates the source's repository and returns the
// checked-out commit. A failed update never corrupts an existing
// usable working tree: fresh clones land in a temp directory first,
// and updates only move the worktree after the remote ref resolved.
func (f *Fetcher) Fetch(ctx context.Context, source *api.Source) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	auth, err := f.authFor(source)
	if err != nil {
		return nil, &FetchError{Kind: KindAuthError, SourceID: source.ID, Err: err}
	}

	repoPath := f.CheckoutPath(source.ID)
	if f.HasCheckout(source.ID) {
		result, err := f.update(ctx, source, repoPath, auth)
		if err == nil {
			return result, nil
		}
		var mismatch *remoteMismatchError
		if !errors.As(err, &mismatch) {
			return nil, err
		}
		// Remote URL changed; discard the stale clone and start over.
		f.logger.Warn("Source remote changed, re-cloning",
			"source_id", source.ID, "cached", mismatch.cached, "configured", mismatch.configured)
		if err := os.RemoveAll(repoPath); err != nil {
			return nil, &FetchError{Kind: KindUnknown, SourceID: source.ID, Err: err}
		}
	}

	return f.clone(ctx, source, repoPath, auth)
}

type remoteMismatchError struct {
	cached, configured string
}

func (e *remoteMismatchError) Error() string {
	return fmt.Sprintf("remote mismatch: cache=%s configured=%s", e.cached, e.configured)
}

func (f *Fetcher) clone(ctx context.Context, source *api.Source, repoPath string, auth transport.AuthMethod) (*Result, error) {
	staging := repoPath + ".tmp-" + randomSuffix()
	defer os.RemoveAll(staging)

	f.logger.Info("Cloning source", "source_id", source.ID, "url", source.URL, "branch", source.Branch)
	repo, err := git.PlainCloneContext(ctx, staging, false, &git.CloneOptions{
		URL:           source.URL,
		ReferenceName: plumbing.NewBranchReferenceName(source.Branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil {
		return nil, classify(source.ID, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, &FetchError{Kind: KindUnknown, SourceID: source.ID, Err: err}
	}

	if err := os.RemoveAll(repoPath); err != nil {
		return nil, &FetchError{Kind: KindUnknown, SourceID: source.ID, Err: err}
	}
	if err := os.Rename(staging, repoPath); err != nil {
		return nil, &FetchError{Kind: KindUnknown, SourceID: source.ID, Err: err}
	}

	return &Result{LocalPath: repoPath, CommitRef: head.Hash().String()}, nil
}

func (f *Fetcher) update(ctx context.Context, source *api.Source, repoPath string, auth transport.AuthMethod) (*Result, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, &FetchError{Kind: KindUnknown, SourceID: source.ID, Err: err}
	}

	remote, err := repo.Remote("origin")
	if err == nil && len(remote.Config().URLs) > 0 {
		if cached := remote.Config().URLs[0]; cached != source.URL {
			return nil, &remoteMismatchError{cached: cached, configured: source.URL}
		}
	}

	f.logger.Debug("Updating source", "source_id", source.ID, "branch", source.Branch)
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, classify(source.ID, err)
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", source.Branch), true)
	if err != nil {
		return nil, &FetchError{Kind: KindInvalidRef, SourceID: source.ID,
			Err: fmt.Errorf("branch %q not found on remote: %w", source.Branch, err)}
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, &FetchError{Kind: KindUnknown, SourceID: source.ID, Err: err}
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: remoteRef.Hash(), Force: true}); err != nil {
		return nil, &FetchError{Kind: KindUnknown, SourceID: source.ID, Err: err}
	}

	return &Result{LocalPath: repoPath, CommitRef: remoteRef.Hash().String()}, nil
}

func (f *Fetcher) authFor(source *api.Source) (transport.AuthMethod, error) {
	if source.AuthMethod != repoauth.MethodDeployKey || f.deployKey == nil {
		return nil, nil
	}
	key, err := f.deployKey(source.ID)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("missing deploy key for source %s", source.ID)
	}
	defer zeroBytes(key)
	return repoauth.NewGitAuth(key)
}

// classify maps transport and protocol failures onto the fetch error
// taxonomy.
func classify(sourceID string, err error) *FetchError {
	kind := KindUnknown
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = KindNetworkError
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed):
		kind = KindAuthError
	case errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, plumbing.ErrReferenceNotFound),
		errors.Is(err, git.ErrBranchNotFound),
		errors.Is(err, git.NoMatchingRefSpecError{}):
		kind = KindInvalidRef
	case isNetworkErrText(err):
		kind = KindNetworkError
	}
	return &FetchError{Kind: kind, SourceID: sourceID, Err: err}
}

func isNetworkErrText(err error) bool {
	text := err.Error()
	for _, marker := range []string{"connection refused", "no such host", "i/o timeout", "network is unreachable", "connection reset"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// Size walks the cache directory and returns its total size in bytes.
func (f *Fetcher) Size() int64 {
	var total int64
	_ = filepath.WalkDir(f.cacheDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, infoErr := d.Info(); infoErr == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// Purge removes one source's clone from disk.
func (f *Fetcher) Purge(sourceID string) error {
	return os.RemoveAll(f.CheckoutPath(sourceID))
}

// PurgeAll deletes every clone under the cache directory and returns
// the number of entries removed.
func (f *Fetcher) PurgeAll() (int, error) {
	entries, err := os.ReadDir(f.cacheDir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(f.cacheDir, entry.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func randomSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func zeroBytes(value []byte) {
	for i := range value {
		value[i] = 0
	}
}
