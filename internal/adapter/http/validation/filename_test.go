package validation

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "clip.mp4", "clip.mp4"},
		{"unicode kept", "bài giảng 01.mp4", "bài giảng 01.mp4"},
		{"arabic kept", "مقطع.mov", "مقطع.mov"},
		{"path traversal", "../../etc/passwd", ".._.._etc_passwd"},
		{"windows path", `C:\videos\clip.mp4`, "C__videos_clip.mp4"},
		{"quotes", `say "hi".mp4`, "say _hi_.mp4"},
		{"header injection", "clip.mp4\r\nSet-Cookie: x", "clip.mp4__Set-Cookie_ x"},
		{"null byte", "clip\x00.mp4", "clip_.mp4"},
		{"empty", "", "file"},
		{"only separators", "///", "file"},
		{"whitespace", "   ", "file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}
}

func TestSanitizeFilename_TruncatesKeepingExtension(t *testing.T) {
	long := strings.Repeat("ạ", 200) + ".mp4"

	got := SanitizeFilename(long)
	assert.LessOrEqual(t, len(got), maxFilenameBytes)
	assert.True(t, strings.HasSuffix(got, ".mp4"))
	assert.True(t, utf8.ValidString(got))
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="localized-vi.mp4"`, ContentDisposition("localized-vi.mp4", false))
	assert.Equal(t, `inline; filename="a_b.mp4"`, ContentDisposition(`a"b.mp4`, true))
}
