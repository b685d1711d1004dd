package indexer

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/mike-a-ellis/ctxindex/internal/extract"
)

// SourceFile is a candidate file found under the content root.
type SourceFile struct {
	Path    string
	RelPath string
	Size    int64
	ModTime time.Time
}

// ContextID is the name of the directory directly containing the file.
func (f SourceFile) ContextID() string {
	return filepath.Base(filepath.Dir(f.Path))
}

// Discover walks root and returns every supported file, sorted by path.
// Hidden files and directories are skipped. When contexts is non-empty,
// only files whose context id is listed are returned.
func Discover(root string, contexts []string) ([]SourceFile, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve content root: %w", err)
	}

	var files []SourceFile
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != abs && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !extract.Supported(path) {
			return nil
		}

		f := SourceFile{Path: path}
		if len(contexts) > 0 && !slices.Contains(contexts, f.ContextID()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		f.Size = info.Size()
		f.ModTime = info.ModTime()
		if rel, err := filepath.Rel(abs, path); err == nil {
			f.RelPath = filepath.ToSlash(rel)
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
