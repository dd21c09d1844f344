// Package discover finds module images under a directory tree.
package discover

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/odvcencio/shroud/pkg/module"
)

// IgnoreFile lists paths, in .gitignore syntax, that discovery leaves out.
const IgnoreFile = ".shroudignore"

var skipDirs = map[string]struct{}{
	"obfuscated": {},
	"bin":        {},
	"obj":        {},
}

// Exts are the file name suffixes of module images.
var Exts = []string{module.ImageExt, module.ImageExt + ".yaml", module.ImageExt + ".yml"}

// IsImage reports whether name carries an image suffix.
func IsImage(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range Exts {
		if strings.HasSuffix(lower, ext) && len(lower) > len(ext) {
			return true
		}
	}
	return false
}

// Images returns the image files under root as slash-separated paths
// relative to root, sorted. Hidden entries, build output directories and
// anything matched by root's ignore file are skipped.
func Images(root string) ([]string, error) {
	gi := loadIgnore(root)

	var results []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		name := d.Name()
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if gi != nil && gi.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if !IsImage(name) {
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		results = append(results, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(results)
	return results, nil
}

func loadIgnore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, IgnoreFile))
	if err != nil {
		return nil
	}
	return gi
}
