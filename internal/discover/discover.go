// Package discover turns command-line arguments into the list of log files
// to parse.
package discover

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrUnreadable is wrapped by every InputError.
var ErrUnreadable = errors.New("unreadable input")

// InputError reports an argument or file that could not be used.
type InputError struct {
	Path   string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrUnreadable }

// Expand resolves args into readable regular files, in argument order.
//
// A directory contributes every file below it, walked in name order. A
// path that does not exist is tried as a glob (doublestar syntax, so **
// crosses directories) and then as a regular expression matched against
// the names in its parent directory. Files found more than once are kept
// at their first position.
func Expand(args []string) ([]string, []error) {
	var (
		files    []string
		problems []error
		seen     = make(map[string]bool)
	)
	add := func(path string) {
		key := filepath.Clean(path)
		if seen[key] {
			return
		}
		seen[key] = true
		files = append(files, path)
	}

	for _, arg := range args {
		found, errs := expandOne(arg)
		problems = append(problems, errs...)
		for _, f := range found {
			add(f)
		}
	}
	return files, problems
}

func expandOne(arg string) ([]string, []error) {
	info, err := os.Stat(arg)
	switch {
	case err == nil && info.IsDir():
		return walk(arg)
	case err == nil:
		if err := checkFile(arg, info); err != nil {
			return nil, []error{err}
		}
		return []string{arg}, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, []error{&InputError{Path: arg, Reason: err.Error()}}
	}

	if hasGlobMeta(arg) {
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err == nil && len(matches) > 0 {
			slices.Sort(matches)
			var (
				files []string
				errs  []error
			)
			for _, m := range matches {
				if err := checkPath(m); err != nil {
					errs = append(errs, err)
					continue
				}
				files = append(files, m)
			}
			return files, errs
		}
	}
	return matchRegexp(arg)
}

// matchRegexp treats the last element of arg as a regular expression that
// must match a whole name in the parent directory.
func matchRegexp(arg string) ([]string, []error) {
	dir, pattern := filepath.Split(arg)
	if dir == "" {
		dir = "."
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, []error{&InputError{Path: arg, Reason: "no such file, and not a valid pattern"}}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{&InputError{Path: arg, Reason: err.Error()}}
	}

	var (
		files []string
		errs  []error
	)
	for _, e := range entries {
		if !re.MatchString(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if e.IsDir() {
			f, es := walk(p)
			files = append(files, f...)
			errs = append(errs, es...)
			continue
		}
		if err := checkPath(p); err != nil {
			errs = append(errs, err)
			continue
		}
		files = append(files, p)
	}
	if len(files) == 0 && len(errs) == 0 {
		errs = append(errs, &InputError{Path: arg, Reason: "no matching files"})
	}
	return files, errs
}

func walk(root string) ([]string, []error) {
	var (
		files []string
		errs  []error
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, &InputError{Path: path, Reason: err.Error()})
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if err := checkPath(path); err != nil {
			errs = append(errs, err)
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		errs = append(errs, &InputError{Path: root, Reason: err.Error()})
	}
	return files, errs
}

func checkPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &InputError{Path: path, Reason: err.Error()}
	}
	return checkFile(path, info)
}

// checkFile accepts regular files that can be opened.
func checkFile(path string, info fs.FileInfo) error {
	if !info.Mode().IsRegular() {
		return &InputError{Path: path, Reason: "not a regular file"}
	}
	f, err := os.Open(path)
	if err != nil {
		return &InputError{Path: path, Reason: err.Error()}
	}
	f.Close()
	return nil
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
