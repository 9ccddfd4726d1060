package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gnolang/laic/internal/trie"
)

type FileInfo struct {
	Path string
	Size int64
}

// Scanner finds source files under a root directory by extension.
type Scanner struct {
	rootDir    string
	extensions map[string]bool
	skipDirs   map[string]bool
	exclude    *trie.Trie
}

// New returns a scanner for rootDir. With no extensions every file matches.
func New(rootDir string, extensions ...string) *Scanner {
	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts[ext] = true
	}
	return &Scanner{
		rootDir:    rootDir,
		extensions: exts,
		skipDirs:   map[string]bool{".git": true, "node_modules": true, "vendor": true},
		exclude:    trie.New(),
	}
}

// Skip adds directory names that are never descended into.
func (s *Scanner) Skip(names ...string) *Scanner {
	for _, n := range names {
		s.skipDirs[n] = true
	}
	return s
}

// Exclude adds path patterns, relative to the root, that are not scanned.
// A pattern names a file or a directory; "*" matches one path segment.
func (s *Scanner) Exclude(patterns ...string) *Scanner {
	for _, p := range patterns {
		s.exclude.Insert(p)
	}
	return s
}

// Scan walks the root and returns matching files sorted by path.
func (s *Scanner) Scan() ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.Walk(s.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if path == s.rootDir && info.IsDir() {
			return nil
		}
		if s.excluded(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if s.skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		if s.isTargetFile(path) {
			files = append(files, FileInfo{Path: path, Size: info.Size()})
		}
		return nil
	})

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, err
}

func (s *Scanner) excluded(path string) bool {
	if s.exclude.Len() == 0 {
		return false
	}
	rel, err := filepath.Rel(s.rootDir, path)
	if err != nil {
		return false
	}
	return s.exclude.Match(filepath.ToSlash(rel))
}

func (s *Scanner) isTargetFile(path string) bool {
	if len(s.extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	return s.extensions[ext] || s.extensions[strings.ToLower(ext)]
}
