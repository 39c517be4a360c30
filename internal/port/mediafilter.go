package port

import (
	"context"

	"github.com/bnema/reelsub/internal/domain"
)

type Encoding struct {
	VideoBitrate string
	CRF          int
	Preset       string
}

type BurnRequest struct {
	InputPath        string
	OutputPath       string
	FilterScriptPath string
	Encoding         Encoding
	CopyAudio        bool
	DurationSeconds  float64
}

// BurnProgress is one progress tick reported by the filter process.
type BurnProgress struct {
	Percentage     float64
	OutTimeSeconds float64
	Frame          int64
	Speed          string
}

// MediaFilter is the external media processing collaborator.
type MediaFilter interface {
	Probe(ctx context.Context, inputPath string) (*domain.ProbeResult, error)
	ExtractAudio(ctx context.Context, inputPath, outputPath string) error
	Burn(ctx context.Context, req BurnRequest, onProgress func(BurnProgress)) error
}
