package pathutil

import (
	"errors"
	"os"
	"testing"
)

func TestIsFilenameSafe(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"simple", "favicon-32x32.png", true},
		{"dotted extension", "terms.v2.html", true},
		{"underscore", "brand_dark.svg", true},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"parent traversal", "../../etc/passwd", false},
		{"dotdot only", "..", false},
		{"hidden dotdot", "icon..png", false},
		{"forward slash", "sub/dir.png", false},
		{"backslash", "sub\\dir.png", false},
		{"encoded dotdot lower", "%2e%2e", false},
		{"encoded dotdot upper", "%2E%2E", false},
		{"encoded dotdot mixed", "%2E%2e", false},
		{"encoded slash", "a%2fb.png", false},
		{"encoded backslash", "a%5Cb.png", false},
		{"null byte", "icon.png\x00.exe", false},
		{"encoded null byte", "icon.png%00.exe", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFilenameSafe(tt.input); got != tt.want {
				t.Errorf("IsFilenameSafe(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsPathSafeWithBase(t *testing.T) {
	tests := []struct {
		name string
		base string
		rel  string
		want bool
	}{
		{"simple file", "/srv/assets", "icons/logo.png", true},
		{"nested", "/srv/assets", "a/b/c/d.txt", true},
		{"dot", "/srv/assets", ".", true},
		{"dot slash", "/srv/assets", "./docs/readme.md", true},
		{"trailing separator", "/srv/assets", "docs/", true},
		{"repeated separators", "/srv/assets", "docs//readme.md", true},
		{"cancelling traversal", "/app/public", "a/../b", true},
		{"walk out and back in", "/app/public", "a/../../public/b", true},
		{"resolves to base", "/app/public", "a/..", true},
		{"escape", "/app/public", "../secret", false},
		{"deep escape", "/srv/assets", "../../../etc/passwd", false},
		{"escape after segment", "/srv/assets", "icons/../../../etc/passwd", false},
		{"dotdot only", "/srv/assets", "..", false},
		{"sibling directory", "/app/public", "../public-evil/x", false},
		{"absolute override", "/app/public", "/etc/passwd", false},
		{"absolute backslash", "/app/public", "\\etc\\passwd", false},
		{"windows drive", "/app/public", "c:\\windows\\system32", false},
		{"unc path", "/app/public", "\\\\server\\share\\x", false},
		{"empty rel", "/srv/assets", "", false},
		{"whitespace rel", "/srv/assets", "  ", false},
		{"encoded dotdot", "/app/public", "%2e%2e/secret", false},
		{"encoded dotdot upper", "/app/public", "%2E%2E/secret", false},
		{"encoded separator", "/app/public", "a%2fb", false},
		{"encoded backslash", "/app/public", "a%5cb", false},
		{"encoded null", "/app/public", "a%00b", false},
		{"raw null", "/app/public", "a\x00b", false},
		{"base with trailing slash", "/app/public/", "b", true},
		{"relative base contained", "data", "x/y", true},
		{"relative base escape", "data", "../x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsPathSafeWithBase(tt.base, tt.rel)
			if err != nil {
				t.Fatalf("IsPathSafeWithBase(%q, %q) returned error: %v", tt.base, tt.rel, err)
			}
			if got != tt.want {
				t.Errorf("IsPathSafeWithBase(%q, %q) = %v, want %v", tt.base, tt.rel, got, tt.want)
			}
		})
	}
}

func TestIsPathSafeWithBaseEmptyBase(t *testing.T) {
	ok, err := IsPathSafeWithBase("", "docs/readme.md")
	if !errors.Is(err, ErrEmptyBaseDir) {
		t.Fatalf("expected ErrEmptyBaseDir, got %v", err)
	}
	if ok {
		t.Error("verdict must be false when baseDir is invalid")
	}
}

func TestIsPathSafeRelativeToCwd(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	ok, err := IsPathSafeRelativeToCwd("docs/readme.md")
	if err != nil {
		t.Fatalf("IsPathSafeRelativeToCwd: %v", err)
	}
	if !ok {
		t.Error("contained path should be safe relative to cwd")
	}

	ok, err = IsPathSafeRelativeToCwd("../escape")
	if err != nil {
		t.Fatalf("IsPathSafeRelativeToCwd: %v", err)
	}
	if ok {
		t.Error("escaping path should be unsafe relative to cwd")
	}

	// The cwd snapshot should match what the process reports.
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	fromCwd, _ := IsPathSafeRelativeToCwd("a/b")
	fromBase, _ := IsPathSafeWithBase(cwd, "a/b")
	if fromCwd != fromBase {
		t.Errorf("cwd variant disagrees with explicit base: %v vs %v", fromCwd, fromBase)
	}
}

func TestSafeJoin(t *testing.T) {
	got, err := SafeJoin("/srv/assets", "icons/logo.png")
	if err != nil {
		t.Fatalf("SafeJoin: %v", err)
	}
	if got != "/srv/assets/icons/logo.png" {
		t.Errorf("SafeJoin = %q, want %q", got, "/srv/assets/icons/logo.png")
	}

	if _, err := SafeJoin("/srv/assets", "../escape"); !errors.Is(err, ErrUnsafePath) {
		t.Errorf("expected ErrUnsafePath, got %v", err)
	}
	if _, err := SafeJoin("", "x"); !errors.Is(err, ErrEmptyBaseDir) {
		t.Errorf("expected ErrEmptyBaseDir, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "a/b/c", "a/b/c"},
		{"dot segments", "./a/./b", "a/b"},
		{"cancelling dotdot", "a/../b", "b"},
		{"leading dotdot kept", "../a", "../a"},
		{"stacked dotdot kept", "../../a", "../../a"},
		{"rooted dotdot clamped", "/../a", "/a"},
		{"repeated separators", "a//b///c", "a/b/c"},
		{"backslashes", "a\\b\\c", "a/b/c"},
		{"mixed separators", "a\\b/c", "a/b/c"},
		{"trailing separator", "a/b/", "a/b"},
		{"collapses to dot", "a/..", "."},
		{"empty", "", "."},
		{"root", "/", "/"},
		{"rooted", "/a/../b", "/b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// Normalizing an already-normalized path must be a fixed point, and the
// verdict must not change on the second pass.
func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"a/b/c",
		"./a/../b",
		"docs//readme.md",
		"../outside",
		"/rooted/x",
		"a\\b",
	}
	for _, input := range inputs {
		once := Normalize(input)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", input, once, twice)
		}

		first, err := IsPathSafeWithBase("/srv/assets", input)
		if err != nil {
			t.Fatalf("IsPathSafeWithBase(%q): %v", input, err)
		}
		second, err := IsPathSafeWithBase("/srv/assets", once)
		if err != nil {
			t.Fatalf("IsPathSafeWithBase(%q): %v", once, err)
		}
		// An input rejected before normalization (encoded forms) stays
		// rejected afterwards; a safe input must stay safe.
		if first && !second {
			t.Errorf("verdict for %q changed after normalization", input)
		}
	}
}
