package download

import (
	"regexp"
	"strings"
)

// maxFilenameRunes caps derived filenames; portal titles can run long
// enough to blow past path limits on some filesystems.
const maxFilenameRunes = 100

var illegalFilenameChars = regexp.MustCompile(`[\\/:*?"<>|\r\n\x00-\x1f]+`)

// SanitizeFilename derives a filesystem-safe name from a record title.
// Illegal characters collapse to "_", leading/trailing dots and spaces are
// trimmed, and empty results fall back to "unnamed". The mapping is
// deterministic so re-runs land on the same file.
func SanitizeFilename(title string) string {
	name := illegalFilenameChars.ReplaceAllString(title, "_")
	name = strings.Trim(name, " .")
	if name == "" {
		return "unnamed"
	}
	runes := []rune(name)
	if len(runes) > maxFilenameRunes {
		name = string(runes[:maxFilenameRunes])
	}
	return name
}
