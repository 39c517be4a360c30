package validation

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pad(magic []byte) []byte {
	out := make([]byte, sniffSize)
	copy(out, magic)
	return out
}

func TestDetectVideo(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		mime    string
		ext     string
		allowed bool
	}{
		{"mp4 isom", pad([]byte("\x00\x00\x00\x18ftypisom")), "video/mp4", ".mp4", true},
		{"mp4 unknown brand", pad([]byte("\x00\x00\x00\x18ftypdash")), "video/mp4", ".mp4", true},
		{"quicktime", pad([]byte("\x00\x00\x00\x14ftypqt  ")), "video/quicktime", ".mov", true},
		{"webm", pad(append([]byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42, 0x82, 0x84}, []byte("webm")...)), "video/webm", ".webm", true},
		{"matroska", pad(append([]byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42, 0x82, 0x88}, []byte("matroska")...)), "video/x-matroska", ".mkv", true},
		{"avi", pad([]byte("RIFF\x00\x00\x00\x00AVI LIST")), "video/x-msvideo", ".avi", true},
		{"m4a audio", pad([]byte("\x00\x00\x00\x18ftypM4A ")), "audio/mp4", "", false},
		{"png", pad([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}), "image/png", "", false},
		{"html", []byte("<!DOCTYPE html><html><body></body></html>"), "text/html; charset=utf-8", "", false},
		{"short mp4 header", []byte("\x00\x00\x00\x18ftypisom"), "video/mp4", ".mp4", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vt, err := DetectVideo(bytes.NewReader(tt.data))
			if tt.allowed {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrDisallowedFileType)
			}
			assert.Equal(t, tt.mime, vt.MIME)
			assert.Equal(t, tt.ext, vt.Ext)
		})
	}
}

func TestDetectVideo_Empty(t *testing.T) {
	_, err := DetectVideo(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrDisallowedFileType)
}

func TestDetectVideo_Rewinds(t *testing.T) {
	data := pad([]byte("\x00\x00\x00\x18ftypisom"))
	r := bytes.NewReader(data)

	_, err := DetectVideo(r)
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
