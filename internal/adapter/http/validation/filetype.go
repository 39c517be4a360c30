// Package validation checks uploaded sources before they enter the pipeline.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var ErrDisallowedFileType = errors.New("file type not allowed")

// VideoType is a detected container.
type VideoType struct {
	MIME string
	Ext  string
}

var allowedVideo = map[string]string{
	"video/mp4":        ".mp4",
	"video/quicktime":  ".mov",
	"video/webm":       ".webm",
	"video/x-matroska": ".mkv",
	"video/x-msvideo":  ".avi",
}

// sniffSize is what http.DetectContentType looks at.
const sniffSize = 512

// DetectVideo identifies the container from its leading bytes and rewinds r.
// Anything that is not an accepted video container fails with
// ErrDisallowedFileType.
func DetectVideo(r io.ReadSeeker) (VideoType, error) {
	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return VideoType{}, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return VideoType{}, err
	}
	if n == 0 {
		return VideoType{}, fmt.Errorf("%w: empty file", ErrDisallowedFileType)
	}
	buf = buf[:n]

	mime := sniffContainer(buf)
	if mime == "" {
		mime = http.DetectContentType(buf)
	}
	ext, ok := allowedVideo[mime]
	if !ok {
		return VideoType{MIME: mime}, fmt.Errorf("%w: %s", ErrDisallowedFileType, mime)
	}
	return VideoType{MIME: mime, Ext: ext}, nil
}

func sniffContainer(buf []byte) string {
	if len(buf) >= 4 && bytes.Equal(buf[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}) {
		// EBML: WebM declares its doctype, everything else is Matroska.
		if bytes.Contains(buf, []byte("webm")) {
			return "video/webm"
		}
		return "video/x-matroska"
	}
	if len(buf) >= 12 && string(buf[4:8]) == "ftyp" {
		switch string(buf[8:12]) {
		case "qt  ":
			return "video/quicktime"
		case "M4A ", "M4B ":
			return "audio/mp4"
		default:
			return "video/mp4"
		}
	}
	if len(buf) >= 12 && string(buf[:4]) == "RIFF" && string(buf[8:12]) == "AVI " {
		return "video/x-msvideo"
	}
	return ""
}
