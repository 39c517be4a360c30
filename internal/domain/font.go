package domain

type Direction string

const (
	DirectionLTR Direction = "ltr"
	DirectionRTL Direction = "rtl"
)

type LoadingStrategy string

const (
	LoadingPreload LoadingStrategy = "preload"
	LoadingSwap    LoadingStrategy = "swap"
	LoadingLazy    LoadingStrategy = "lazy"
)

type Coverage struct {
	Supported  int      `json:"supported"`
	Total      int      `json:"total"`
	Percentage float64  `json:"percentage"`
	Missing    []string `json:"missing,omitempty"`
}

// FontDecision is the typography choice for one (language, text) pair.
type FontDecision struct {
	Language        string          `json:"language"`
	Script          string          `json:"script"`
	Direction       Direction       `json:"direction"`
	ComplexScript   bool            `json:"complexScript"`
	Primary         string          `json:"primary"`
	Fallbacks       []string        `json:"fallbacks"`
	Coverage        Coverage        `json:"coverage"`
	Warnings        []string        `json:"warnings,omitempty"`
	LoadingStrategy LoadingStrategy `json:"loadingStrategy"`
	TextHash        string          `json:"textHash"`
}

func (d FontDecision) Clone() FontDecision {
	c := d
	c.Fallbacks = append([]string(nil), d.Fallbacks...)
	c.Warnings = append([]string(nil), d.Warnings...)
	c.Coverage.Missing = append([]string(nil), d.Coverage.Missing...)
	return c
}

// FontValidation is the diagnostic score for a font against a language sample.
type FontValidation struct {
	Font     string   `json:"font"`
	Language string   `json:"language"`
	Score    int      `json:"score"`
	Coverage Coverage `json:"coverage"`
	Issues   []string `json:"issues,omitempty"`
}
