// Package pathutil decides whether untrusted filename and relative path
// strings may be used to read or write files without escaping a base
// directory. Every check is lexical: nothing in this package touches the
// filesystem or follows symlinks, so two distinct results may still name
// the same file on disk when symlinks are involved.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrEmptyBaseDir indicates a caller passed an empty base directory.
// That is a programming mistake, not untrusted input, so it surfaces as
// an error instead of being folded into an unsafe verdict.
var ErrEmptyBaseDir = errors.New("base directory must not be empty")

// ErrUnsafePath is returned by SafeJoin when the candidate path fails
// containment validation.
var ErrUnsafePath = errors.New("path escapes base directory")

// filenameDenyTokens are matched as plain substrings against the
// lowercased candidate. Substring matching instead of decoding avoids
// double-decode bypasses: an encoding layer is rejected, never interpreted.
var filenameDenyTokens = []string{
	"..",
	"/",
	"\\",
	"%2e%2e",
	"%2f",
	"%5c",
	"\x00",
	"%00",
}

// encodedTraversalTokens flag URL-encoded traversal material in relative
// paths. They are checked before normalization: normalization only
// understands literal dots and separators, so an encoded ".." would pass
// through it untouched and could be decoded by a downstream consumer.
var encodedTraversalTokens = []string{
	"%2e%2e",
	"%2f",
	"%5c",
	"%00",
}

// IsFilenameSafe reports whether name can be used as a bare output
// filename. It rejects anything containing a directory separator or a
// traversal token, in literal or URL-encoded form, plus NUL bytes.
// Use IsPathSafeWithBase when sub-directory segments are legitimate.
func IsFilenameSafe(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	lower := strings.ToLower(name)
	for _, token := range filenameDenyTokens {
		if strings.Contains(lower, token) {
			return false
		}
	}
	return true
}

// IsPathSafeWithBase reports whether relPath stays inside baseDir after
// lexical resolution. Unsafe content is a normal false verdict; the error
// is reserved for an empty baseDir.
func IsPathSafeWithBase(baseDir, relPath string) (bool, error) {
	if baseDir == "" {
		return false, ErrEmptyBaseDir
	}
	return isPathSafe(baseDir, relPath), nil
}

// IsPathSafeRelativeToCwd is IsPathSafeWithBase with the process working
// directory as the base. The directory is snapshotted once per call so
// concurrent callers each validate against a consistent view.
func IsPathSafeRelativeToCwd(relPath string) (bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return false, fmt.Errorf("resolve working directory: %w", err)
	}
	return isPathSafe(cwd, relPath), nil
}

// SafeJoin validates relPath against baseDir and returns the resolved
// path for filesystem use. It returns ErrUnsafePath when validation
// rejects the path and ErrEmptyBaseDir when baseDir is empty.
func SafeJoin(baseDir, relPath string) (string, error) {
	ok, err := IsPathSafeWithBase(baseDir, relPath)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, relPath)
	}
	return Normalize(baseDir + "/" + relPath), nil
}

// isPathSafe applies the containment checks in order, short-circuiting at
// the first violation.
func isPathSafe(baseDir, relPath string) bool {
	if strings.TrimSpace(relPath) == "" {
		return false
	}
	if strings.ContainsRune(relPath, 0) {
		return false
	}

	// Encoded traversal must be caught before normalization; see
	// encodedTraversalTokens.
	lower := strings.ToLower(relPath)
	for _, token := range encodedTraversalTokens {
		if strings.Contains(lower, token) {
			return false
		}
	}

	norm := Normalize(relPath)
	if isAbsolute(norm) {
		return false
	}

	// Interior ".." segments that cancelled out during normalization are
	// fine; only the final resolved location matters.
	resolvedBase := Normalize(baseDir)
	resolved := Normalize(baseDir + "/" + norm)
	return resolved == resolvedBase || strings.HasPrefix(resolved, resolvedBase+"/")
}

// Normalize collapses a path lexically: "." segments are dropped, ".."
// segments cancel their preceding segment, and repeated separators are
// squeezed. Backslashes are treated as separators so Windows-style input
// cannot smuggle segments past the checks. The filesystem is never
// consulted.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	rooted := strings.HasPrefix(p, "/")

	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, segment := range segments {
		switch segment {
		case "", ".":
			// redundant separator or current-dir reference
		case "..":
			if n := len(out); n > 0 && out[n-1] != ".." {
				out = out[:n-1]
			} else if !rooted {
				// A rooted path cannot climb above the root; a relative
				// path keeps leading ".." so escapes stay visible.
				out = append(out, "..")
			}
		default:
			out = append(out, segment)
		}
	}

	joined := strings.Join(out, "/")
	if rooted {
		return "/" + joined
	}
	if joined == "" {
		return "."
	}
	return joined
}

// isAbsolute reports whether a normalized path is absolute in the POSIX
// sense (leading slash, which also covers collapsed UNC prefixes) or the
// Windows sense (drive letter).
func isAbsolute(p string) bool {
	if strings.HasPrefix(p, "/") {
		return true
	}
	return len(p) >= 2 && p[1] == ':' && isDriveLetter(p[0])
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
