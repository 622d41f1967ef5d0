package gitrepos

import (
	"strings"
	"unicode"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
)

var declarationKeywords = []string{"package", "namespace"}

// DetectPackage returns the package or namespace declared by the first line
// that starts with a declaration keyword. The name is trimmed, stripped of a
// trailing terminator and lowercased. domain.NoPackage is returned when no
// such line exists.
func DetectPackage(lines []string) string {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, keyword := range declarationKeywords {
			rest, ok := strings.CutPrefix(trimmed, keyword)
			if !ok || (rest != "" && !unicode.IsSpace(rune(rest[0]))) {
				continue
			}
			name := strings.TrimSpace(rest)
			name = strings.TrimSuffix(name, ";")
			name = strings.TrimSuffix(name, "{")
			return strings.ToLower(strings.TrimSpace(name))
		}
	}
	return domain.NoPackage
}
