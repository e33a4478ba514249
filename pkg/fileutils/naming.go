package fileutils

import (
	"regexp"
	"strings"
)

// illegalChars are the characters not allowed in destination file names.
// Each occurrence is replaced with an underscore, so the sanitized display
// name is used verbatim as the destination base name.
var illegalChars = regexp.MustCompile(`[/\\:?%*|"<>]`)

// multipleSpaces collapses runs of whitespace left behind by sanitization.
var multipleSpaces = regexp.MustCompile(`\s{2,}`)

// SanitizeName rewrites a display name into a safe file base name.
func SanitizeName(name string) string {
	name = illegalChars.ReplaceAllString(name, "_")
	name = multipleSpaces.ReplaceAllString(name, " ")
	name = strings.Trim(name, " .")

	// Stay well inside common filesystem name limits.
	if len(name) > 200 {
		name = name[:200]
		name = strings.Trim(name, " .")
	}

	if name == "" {
		name = "Unknown"
	}
	return name
}
