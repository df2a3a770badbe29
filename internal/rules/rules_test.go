package rules

import "testing"

func TestAllowed(t *testing.T) {
	tests := []struct {
		name  string
		allow []string
		deny  []string
		path  string
		want  bool
	}{
		{"no rules", nil, nil, "icons/logo.png", true},
		{"allow match", []string{"icons/**"}, nil, "icons/logo.png", true},
		{"allow nested", []string{"icons/**"}, nil, "icons/dark/logo.png", true},
		{"allow miss", []string{"icons/**"}, nil, "docs/readme.md", false},
		{"deny match", nil, []string{"**/*.key"}, "certs/server.key", false},
		{"deny wins over allow", []string{"**"}, []string{"secret/**"}, "secret/x.txt", false},
		{"deny top level", nil, []string{"*.env"}, "prod.env", false},
		{"dot slash prefix stripped", []string{"icons/**"}, nil, "./icons/logo.png", true},
		{"interior traversal leaves allow scope", []string{"icons/**"}, nil, "icons/../secret.txt", false},
		{"interior traversal cannot dodge deny", nil, []string{"certs/**"}, "pub/../certs/server.key", false},
		{"interior traversal within scope", []string{"icons/**"}, nil, "icons/dark/../logo.png", true},
		{"backslash separators normalized", nil, []string{"certs/**"}, "certs\\server.key", false},
		{"empty patterns ignored", []string{""}, []string{""}, "anything.txt", true},
		{"git internals always denied", nil, nil, ".git/config", false},
		{"nested git internals denied", []string{"**"}, nil, "vendor/.git/HEAD", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.allow, tt.deny)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := r.Allowed(tt.path); got != tt.want {
				t.Errorf("Allowed(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestNewRejectsInvalidPattern(t *testing.T) {
	if _, err := New([]string{"icons/[**"}, nil); err == nil {
		t.Error("expected error for malformed pattern")
	}
	if _, err := New(nil, []string{"[a-"}); err == nil {
		t.Error("expected error for malformed deny pattern")
	}
}
