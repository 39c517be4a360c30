package fonts

import "github.com/bnema/reelsub/internal/domain"

// Validate scores how well font renders sampleText for language on a 0-100
// scale. It is read-only and never fails: unknown inputs score 0 with issues.
func (s *Selector) Validate(font, language, sampleText string) domain.FontValidation {
	result := domain.FontValidation{Font: font, Language: language}

	family, ok := s.registry.Family(font)
	if !ok {
		result.Issues = append(result.Issues, "unknown font family")
	}
	cfg, err := s.registry.Language(language)
	if err != nil {
		result.Issues = append(result.Issues, "unsupported language")
	}
	if !ok || err != nil {
		return result
	}
	result.Language = cfg.Code

	runes := DistinctRunes(sampleText)
	result.Coverage = s.coverage(runes, []string{font})

	score := result.Coverage.Percentage * 0.8
	if contains(cfg.Primary, font) {
		score += 20
	} else if contains(cfg.Secondary, font) || contains(cfg.Fallback, font) {
		score += 10
	} else {
		result.Issues = append(result.Issues, "font is not configured for this language")
	}
	if family.Generic {
		score -= 10
		result.Issues = append(result.Issues, "generic family, glyphs depend on the host")
	}
	if len(result.Coverage.Missing) > 0 {
		result.Issues = append(result.Issues, "missing glyphs for sample text")
	}
	if cfg.Complex && !contains(cfg.Primary, font) {
		result.Issues = append(result.Issues, "complex script may not shape correctly")
	}
	result.Score = int(domain.Clamp(score, 0, 100) + 0.5)
	return result
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
