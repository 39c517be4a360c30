package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const maxFilenameBytes = 255

// SanitizeFilename makes an uploaded name safe for paths, logs and
// Content-Disposition headers. Separators, quotes and control characters
// become underscores; other Unicode is kept. Names longer than 255 bytes are
// cut on a rune boundary, keeping the extension.
func SanitizeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return '_'
		case strings.ContainsRune(`"\/:`, r):
			return '_'
		}
		return r
	}, name)
	cleaned = strings.TrimSpace(cleaned)
	if strings.Trim(cleaned, "_.") == "" {
		return "file"
	}
	if len(cleaned) <= maxFilenameBytes {
		return cleaned
	}
	ext := filepath.Ext(cleaned)
	if ext == "" || len(ext) >= maxFilenameBytes/2 {
		return truncateBytes(cleaned, maxFilenameBytes)
	}
	return truncateBytes(strings.TrimSuffix(cleaned, ext), maxFilenameBytes-len(ext)) + ext
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ContentDisposition formats an attachment or inline disposition header.
func ContentDisposition(filename string, inline bool) string {
	kind := "attachment"
	if inline {
		kind = "inline"
	}
	return fmt.Sprintf("%s; filename=%q", kind, SanitizeFilename(filename))
}
