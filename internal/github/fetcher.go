package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/go-github/v81/github"

	"github.com/mike-a-ellis/ctxindex/internal/extract"
)

// FetchedDoc is a supported file fetched from the repository.
type FetchedDoc struct {
	Path    string // relative to the fetcher's base path, slash separated
	Content []byte
	SHA     string // blob SHA
}

// MirrorReport summarizes a Mirror call.
type MirrorReport struct {
	CommitSHA string
	Listed    int
	Written   int
	Unchanged int
	Failed    []string
}

// Fetcher copies a repository directory into a local content root, one
// subdirectory per context.
type Fetcher struct {
	client   *Client
	owner    string
	repo     string
	basePath string
	ref      string
	logger   *slog.Logger
}

// NewFetcher creates a new document fetcher. An empty ref uses the
// repository's default branch.
func NewFetcher(client *Client, owner, repo, basePath, ref string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:   client,
		owner:    owner,
		repo:     repo,
		basePath: strings.Trim(basePath, "/"),
		ref:      ref,
		logger:   logger,
	}
}

func (f *Fetcher) getOptions() *github.RepositoryContentGetOptions {
	if f.ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: f.ref}
}

// ListDocs recursively lists every supported file under the base path.
func (f *Fetcher) ListDocs(ctx context.Context) ([]string, error) {
	return f.listDocsRecursive(ctx, f.basePath, "")
}

func (f *Fetcher) listDocsRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var docs []string

	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, f.getOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		name := item.GetName()
		if name == "" || strings.HasPrefix(name, ".") {
			continue
		}
		itemRelPath := path.Join(relativePath, name)

		switch item.GetType() {
		case "file":
			if extract.Supported(name) {
				docs = append(docs, itemRelPath)
			}
		case "dir":
			subDocs, err := f.listDocsRecursive(ctx, path.Join(fullPath, name), itemRelPath)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}

	return docs, nil
}

// FetchDoc fetches the content of one file.
func (f *Fetcher) FetchDoc(ctx context.Context, relativePath string) (*FetchedDoc, error) {
	fullPath := path.Join(f.basePath, relativePath)

	fileContent, _, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, f.getOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("no file content returned for %s", fullPath)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}

	return &FetchedDoc{
		Path:    relativePath,
		Content: []byte(content),
		SHA:     fileContent.GetSHA(),
	}, nil
}

// GetLatestCommitSHA retrieves the SHA of the most recent commit affecting the base path.
func (f *Fetcher) GetLatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := f.client.Repositories.ListCommits(ctx, f.owner, f.repo, &github.CommitsListOptions{
		SHA:         f.ref,
		Path:        f.basePath,
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 || commits[0].SHA == nil {
		return "", fmt.Errorf("no commits found for path %s", f.basePath)
	}
	return commits[0].GetSHA(), nil
}

// Mirror writes every supported file under the base path into destRoot,
// keeping the directory layout. Files whose content is unchanged are not
// rewritten, so their modification time stays stable for change tracking.
// Per-file failures are reported, not returned.
func (f *Fetcher) Mirror(ctx context.Context, destRoot string) (*MirrorReport, error) {
	report := &MirrorReport{}

	sha, err := f.GetLatestCommitSHA(ctx)
	if err != nil {
		return nil, err
	}
	report.CommitSHA = sha

	paths, err := f.ListDocs(ctx)
	if err != nil {
		return nil, err
	}
	report.Listed = len(paths)
	f.logger.Info("Mirroring repository", "repo", f.owner+"/"+f.repo, "commit", sha, "files", len(paths))

	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		doc, err := f.FetchDoc(ctx, rel)
		if err != nil {
			f.logger.Warn("Failed to fetch document", "path", rel, "error", err)
			report.Failed = append(report.Failed, rel)
			continue
		}
		written, err := writeIfChanged(filepath.Join(destRoot, filepath.FromSlash(rel)), doc.Content)
		if err != nil {
			f.logger.Warn("Failed to write document", "path", rel, "error", err)
			report.Failed = append(report.Failed, rel)
			continue
		}
		if written {
			report.Written++
		} else {
			report.Unchanged++
		}
	}
	return report, nil
}

// writeIfChanged replaces target with content unless it already matches.
func writeIfChanged(target string, content []byte) (bool, error) {
	existing, err := os.ReadFile(target)
	switch {
	case err == nil && bytes.Equal(existing, content):
		return false, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".mirror-*")
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return false, err
	}
	return true, os.Rename(tmp.Name(), target)
}
