package domain

import (
	"fmt"
	"sort"
	"strings"
)

type CaptionSegment struct {
	ID         string   `json:"id"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Language   string   `json:"language"`
	Confidence *float64 `json:"confidence,omitempty"`
}

func (s CaptionSegment) Duration() float64 {
	return s.End - s.Start
}

// SortSegments orders segments by start time, keeping input order for ties.
func SortSegments(segments []CaptionSegment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
}

// ValidateSegments checks the track invariants: start < end, confidence in
// [0,1], ordered by start and no overlap between consecutive segments.
func ValidateSegments(segments []CaptionSegment) error {
	for i, seg := range segments {
		if !(seg.Start < seg.End) {
			return fmt.Errorf("%w: segment %d has start %.3f >= end %.3f", ErrInvalidSegments, i, seg.Start, seg.End)
		}
		if seg.Start < 0 {
			return fmt.Errorf("%w: segment %d starts before zero", ErrInvalidSegments, i)
		}
		if seg.Confidence != nil && (*seg.Confidence < 0 || *seg.Confidence > 1) {
			return fmt.Errorf("%w: segment %d confidence %.3f outside [0,1]", ErrInvalidSegments, i, *seg.Confidence)
		}
		if strings.TrimSpace(seg.Text) == "" {
			return fmt.Errorf("%w: segment %d has empty text", ErrInvalidSegments, i)
		}
		if i == 0 {
			continue
		}
		prev := segments[i-1]
		if seg.Start < prev.Start {
			return fmt.Errorf("%w: segment %d is out of order", ErrInvalidSegments, i)
		}
		if seg.Start < prev.End {
			return fmt.Errorf("%w: segment %d overlaps segment %d", ErrInvalidSegments, i, i-1)
		}
	}
	return nil
}

// NormalizeSegments sorts segments, drops empty ones and trims overlaps by
// pulling the previous segment's end back to the next start.
func NormalizeSegments(segments []CaptionSegment) []CaptionSegment {
	out := make([]CaptionSegment, 0, len(segments))
	for _, seg := range segments {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" || !(seg.Start < seg.End) {
			continue
		}
		if seg.Start < 0 {
			seg.Start = 0
		}
		out = append(out, seg)
	}
	SortSegments(out)
	kept := out[:0]
	for _, seg := range out {
		if n := len(kept); n > 0 && kept[n-1].End > seg.Start {
			kept[n-1].End = seg.Start
			if !(kept[n-1].Start < kept[n-1].End) {
				kept = kept[:n-1]
			}
		}
		kept = append(kept, seg)
	}
	for i := range kept {
		if kept[i].ID == "" {
			kept[i].ID = fmt.Sprintf("seg-%04d", i+1)
		}
	}
	return kept
}
