package domain

import "testing"

func TestParseFilter(t *testing.T) {
	tests := []struct {
		kind     string
		value    string
		expected Filter
	}{
		{"EXTENSION", "kt", ExtensionFilter{Extension: "kt"}},
		{"extension", ".go", ExtensionFilter{Extension: "go"}},
		{"PACKAGE", "com.acme", PackageFilter{Package: "com.acme"}},
		{"FILE_MASK", "Service", FileMaskFilter{Mask: "Service"}},
		{"DIRECTORY", "src", DirectoryFilter{Directory: "src"}},
		{"REPOSITORY", "foo", RepositoryFilter{Repository: "foo"}},
		{"repository_type", "backend", RepositoryTypeFilter{Type: "backend"}},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			f, err := ParseFilter(tt.kind, tt.value)
			if err != nil {
				t.Fatalf("ParseFilter failed: %v", err)
			}
			if f != tt.expected {
				t.Errorf("ParseFilter(%q, %q) = %#v, want %#v", tt.kind, tt.value, f, tt.expected)
			}
		})
	}
}

func TestParseFilter_Errors(t *testing.T) {
	if _, err := ParseFilter("COLOR", "red"); err == nil {
		t.Error("Expected error for unknown kind")
	}
	if _, err := ParseFilter("EXTENSION", ""); err == nil {
		t.Error("Expected error for empty value")
	}
}

func TestFilter_KindAndValue(t *testing.T) {
	filters := []Filter{
		ExtensionFilter{"kt"},
		PackageFilter{"com.acme"},
		FileMaskFilter{"Service"},
		DirectoryFilter{"src"},
		RepositoryFilter{"foo"},
		RepositoryTypeFilter{"backend"},
	}
	for _, f := range filters {
		parsed, err := ParseFilter(f.Kind(), f.Value())
		if err != nil {
			t.Fatalf("ParseFilter(%s) failed: %v", f.Kind(), err)
		}
		if parsed != f {
			t.Errorf("Round trip of %s produced %#v", f.Kind(), parsed)
		}
	}
}
