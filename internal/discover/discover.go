// Package discover expands command-line paths into JavaScript source files
// and splits them into loader configuration files and module files.
package discover

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/yuimeta/internal/lang"
)

var skipDirs = map[string]struct{}{
	"node_modules":     {},
	"bower_components": {},
	".git":             {},
	".hg":              {},
	".svn":             {},
	"coverage":         {},
}

// Expand turns args into a list of source files. Files are kept as given;
// directories are walked for supported sources, honoring .gitignore (or
// `git ls-files` inside a work tree) and skipping dependency and VCS
// directories. The result keeps argument order and has no duplicates.
func Expand(args []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			add(arg)
			continue
		}
		files, err := Files(arg)
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
		for _, f := range files {
			add(filepath.Join(arg, f))
		}
	}
	return out, nil
}

// Files discovers supported source files under root and returns their
// paths relative to root, sorted.
func Files(root string) ([]string, error) {
	gitFiles := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	var results []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		if gitFiles != nil {
			if _, ok := gitFiles[filepath.ToSlash(rel)]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		if lang.ForExtension(filepath.Ext(name)) == "" {
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

// Patterns normalizes glob arguments: a literal path without a file
// extension names a directory and matches everything below it.
func Patterns(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, a := range args {
		p := filepath.ToSlash(filepath.Clean(a))
		if path.Ext(p) == "" && !strings.ContainsAny(p, "*?[{") {
			p = strings.TrimSuffix(p, "/") + "/**"
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", a)
		}
		out = append(out, p)
	}
	return out, nil
}

// Split partitions files into loader configuration files (matching any
// config pattern) and module files (matching neither a config nor an
// ignore pattern). Patterns must come from Patterns.
func Split(files, configPatterns, ignorePatterns []string) (configs, modules []string) {
	for _, f := range files {
		rel := filepath.ToSlash(filepath.Clean(f))
		switch {
		case matchAny(configPatterns, rel):
			configs = append(configs, f)
		case matchAny(ignorePatterns, rel):
		default:
			modules = append(modules, f)
		}
	}
	return configs, modules
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}
