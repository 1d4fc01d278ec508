// Package source provides access to the authored content tree: a filesystem
// enumerator for local checkouts and a git syncer for remote sources.
package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/docscope/internal/document"
	docerrors "git.home.luguber.info/inful/docscope/internal/errors"
)

// FSSource reads documents, fragments, and the manifest from a directory.
type FSSource struct {
	// Root is the content root containing documents and the manifest.
	Root string
	// FragmentsDir is the directory under Root holding fragments; it is
	// excluded from document enumeration.
	FragmentsDir string
	// ManifestName is the manifest file name under Root.
	ManifestName string
}

// NewFSSource creates a source rooted at root.
func NewFSSource(root, fragmentsDir, manifestName string) *FSSource {
	return &FSSource{Root: root, FragmentsDir: fragmentsDir, ManifestName: manifestName}
}

// ManifestPath returns the absolute path of the navigation manifest.
func (s *FSSource) ManifestPath() string {
	return filepath.Join(s.Root, s.ManifestName)
}

// ListDocuments enumerates every document key under the root in sorted order.
// Files inside the fragments directory and non-Markdown files are skipped.
func (s *FSSource) ListDocuments() ([]document.Key, error) {
	var keys []document.Key
	fragPrefix := s.FragmentsDir + string(filepath.Separator)
	err := filepath.WalkDir(s.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(s.Root, p)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() {
			if rel == s.FragmentsDir || strings.HasPrefix(rel, ".") && rel != "." {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(rel, fragPrefix) || !strings.HasSuffix(rel, ".md") {
			return nil
		}
		keys = append(keys, keyFromRel(rel))
		return nil
	})
	if err != nil {
		return nil, docerrors.Wrap(err, docerrors.CategoryFileSystem, docerrors.SeverityFatal, "enumerate documents")
	}
	sort.Strings(keys)
	return keys, nil
}

// ReadDocument returns the raw bytes of a document.
func (s *FSSource) ReadDocument(key document.Key) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(s.Root, filepath.FromSlash(key)+".md"))
	if err != nil {
		return nil, docerrors.DocumentReadError(key, err)
	}
	return raw, nil
}

// ReadFragment returns the raw bytes of a fragment by key.
func (s *FSSource) ReadFragment(key string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(s.Root, s.FragmentsDir, filepath.FromSlash(key)+".md"))
	if err != nil {
		return nil, docerrors.FragmentNotFound(key)
	}
	return raw, nil
}

// KeyForPath maps an absolute or root-relative file path to a content key.
// The second return distinguishes documents from fragments; ok is false for
// paths outside the content tree or non-Markdown files.
func (s *FSSource) KeyForPath(p string) (key string, isFragment, ok bool) {
	rel := p
	if filepath.IsAbs(p) {
		var err error
		rel, err = filepath.Rel(s.Root, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", false, false
		}
	}
	if !strings.HasSuffix(rel, ".md") {
		return "", false, false
	}
	fragPrefix := s.FragmentsDir + string(filepath.Separator)
	if strings.HasPrefix(rel, fragPrefix) {
		return keyFromRel(strings.TrimPrefix(rel, fragPrefix)), true, true
	}
	return keyFromRel(rel), false, true
}

func keyFromRel(rel string) document.Key {
	k := filepath.ToSlash(rel)
	return strings.TrimSuffix(k, ".md")
}

// Validate checks that the root exists and the manifest is present.
func (s *FSSource) Validate() error {
	info, err := os.Stat(s.Root)
	if err != nil {
		return docerrors.Wrap(err, docerrors.CategoryFileSystem, docerrors.SeverityFatal, fmt.Sprintf("content root %s", s.Root))
	}
	if !info.IsDir() {
		return docerrors.New(docerrors.CategoryFileSystem, docerrors.SeverityFatal, fmt.Sprintf("content root %s is not a directory", s.Root))
	}
	if _, err := os.Stat(s.ManifestPath()); err != nil {
		return docerrors.Wrap(err, docerrors.CategoryConfig, docerrors.SeverityFatal, fmt.Sprintf("manifest %s", s.ManifestPath()))
	}
	return nil
}
