package discover

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// makeTree creates files (relative paths) under a new temp dir.
func makeTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		p := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("Log Entry: 1\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func rel(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, len(paths))
	for i, p := range paths {
		r, err := filepath.Rel(root, p)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = filepath.ToSlash(r)
	}
	return out
}

func TestExpand_DirectoryWalkedInNameOrder(t *testing.T) {
	root := makeTree(t, "b.log", "a.log", "sub/c.log", "sub/deeper/d.log")

	files, problems := Expand([]string{root})
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	want := []string{"a.log", "b.log", "sub/c.log", "sub/deeper/d.log"}
	if diff := cmp.Diff(want, rel(t, root, files)); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestExpand_RegularFile(t *testing.T) {
	root := makeTree(t, "only.log")
	path := filepath.Join(root, "only.log")

	files, problems := Expand([]string{path})
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	if diff := cmp.Diff([]string{path}, files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestExpand_Glob(t *testing.T) {
	root := makeTree(t, "x/one.log", "x/y/two.log", "x/skip.txt")

	files, problems := Expand([]string{filepath.Join(root, "**", "*.log")})
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	want := []string{"x/one.log", "x/y/two.log"}
	if diff := cmp.Diff(want, rel(t, root, files)); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestExpand_RegexOnFileName(t *testing.T) {
	root := makeTree(t, "ex240101.log", "ex240102.log", "ex2401.txt", "notes.log", "ex99/inner.log")

	files, problems := Expand([]string{filepath.Join(root, `ex\d+(\.log)?`)})
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	want := []string{"ex240101.log", "ex240102.log", "ex99/inner.log"}
	if diff := cmp.Diff(want, rel(t, root, files)); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestExpand_GlobFallsBackToRegex(t *testing.T) {
	root := makeTree(t, "ex1.log", "ex22.log")

	// as a glob this needs a literal dot after "ex"; as a regex it matches both
	files, problems := Expand([]string{filepath.Join(root, `ex.*\.log`)})
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	if diff := cmp.Diff([]string{"ex1.log", "ex22.log"}, rel(t, root, files)); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestExpand_Dedup(t *testing.T) {
	root := makeTree(t, "a.log", "b.log")
	b := filepath.Join(root, "b.log")

	files, problems := Expand([]string{b, root, b})
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	want := []string{"b.log", "a.log"}
	if diff := cmp.Diff(want, rel(t, root, files)); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestExpand_MissingInput(t *testing.T) {
	root := makeTree(t, "a.log")

	files, problems := Expand([]string{filepath.Join(root, "missing.log"), filepath.Join(root, "a.log")})
	if len(files) != 1 {
		t.Errorf("expected the readable file to survive, got %v", files)
	}
	if len(problems) != 1 {
		t.Fatalf("expected 1 problem, got %d: %v", len(problems), problems)
	}
	if !errors.Is(problems[0], ErrUnreadable) {
		t.Errorf("expected ErrUnreadable, got %v", problems[0])
	}
	var ie *InputError
	if !errors.As(problems[0], &ie) || ie.Path != filepath.Join(root, "missing.log") {
		t.Errorf("expected InputError for missing.log, got %v", problems[0])
	}
}

func TestExpand_MissingParentDirectory(t *testing.T) {
	_, problems := Expand([]string{"/nonexistent/dir/file.log"})
	if len(problems) != 1 || !errors.Is(problems[0], ErrUnreadable) {
		t.Errorf("expected one unreadable problem, got %v", problems)
	}
}

func TestExpand_Nothing(t *testing.T) {
	files, problems := Expand(nil)
	if len(files) != 0 || len(problems) != 0 {
		t.Errorf("expected nothing, got %v, %v", files, problems)
	}
}
