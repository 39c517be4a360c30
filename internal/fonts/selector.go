package fonts

import (
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"

	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/infrastructure/logger"
)

// CoverageWarnThreshold is the coverage percentage below which a decision
// carries a warning.
const CoverageWarnThreshold = 90.0

// maxListedMissing bounds the missing-character list kept in a decision.
const maxListedMissing = 64

type decisionKey struct {
	language string
	textHash string
}

// Selector picks fonts for (language, text) pairs and caches its decisions.
type Selector struct {
	registry *Registry

	mu    sync.RWMutex
	cache map[decisionKey]domain.FontDecision
}

func NewSelector(registry *Registry) *Selector {
	return &Selector{
		registry: registry,
		cache:    make(map[decisionKey]domain.FontDecision),
	}
}

func (s *Selector) Registry() *Registry {
	return s.registry
}

// TextHash fingerprints NFC-normalized text.
func TextHash(text string) string {
	sum := blake2b.Sum256([]byte(norm.NFC.String(text)))
	return hex.EncodeToString(sum[:16])
}

// Select returns the typography decision for text in language. It only fails
// for languages absent from the registry.
func (s *Selector) Select(text, language string) (domain.FontDecision, error) {
	cfg, err := s.registry.Language(language)
	if err != nil {
		return domain.FontDecision{}, err
	}
	key := decisionKey{language: cfg.Code, textHash: TextHash(text)}

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	decision := s.decide(cfg, text, key.textHash)

	s.mu.Lock()
	if existing, ok := s.cache[key]; ok {
		decision = existing
	} else {
		s.cache[key] = decision
	}
	s.mu.Unlock()

	logger.Debug().
		Str("language", cfg.Code).
		Str("primary", decision.Primary).
		Float64("coverage", decision.Coverage.Percentage).
		Int("warnings", len(decision.Warnings)).
		Msg("font decision computed")
	return decision.Clone(), nil
}

// CachedDecisions reports how many decisions are memoized.
func (s *Selector) CachedDecisions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

func (s *Selector) decide(cfg LanguageConfig, text, hash string) domain.FontDecision {
	runes := DistinctRunes(text)
	required := RequiredBlocks(runes)

	primary := s.pickPrimary(cfg, required)
	chain := s.fallbackChain(cfg, primary)
	coverage := s.coverage(runes, append([]string{primary}, chain...))

	decision := domain.FontDecision{
		Language:        cfg.Code,
		Script:          cfg.Script,
		Direction:       cfg.Direction,
		ComplexScript:   cfg.Complex,
		Primary:         primary,
		Fallbacks:       chain,
		Coverage:        coverage,
		LoadingStrategy: loadingStrategy(cfg, required),
		TextHash:        hash,
	}
	decision.Warnings = warningsFor(cfg, coverage)
	return decision
}

func (s *Selector) pickPrimary(cfg LanguageConfig, required map[string]struct{}) string {
	for _, list := range [][]string{cfg.Primary, cfg.Secondary} {
		for _, name := range list {
			family, ok := s.registry.Family(name)
			if !ok {
				continue
			}
			for block := range required {
				if family.SupportsBlock(block) {
					return name
				}
			}
		}
	}
	return cfg.Primary[0]
}

// fallbackChain is remaining secondaries, configured fallbacks, then generic
// families, deduplicated and without the primary.
func (s *Selector) fallbackChain(cfg LanguageConfig, primary string) []string {
	seen := map[string]bool{primary: true}
	var chain []string
	for _, list := range [][]string{cfg.Secondary, cfg.Fallback, GenericFamilies} {
		for _, name := range list {
			if seen[name] {
				continue
			}
			seen[name] = true
			chain = append(chain, name)
		}
	}
	return chain
}

func (s *Selector) coverage(runes []rune, fonts []string) domain.Coverage {
	c := domain.Coverage{Total: len(runes)}
	if len(runes) == 0 {
		c.Percentage = 100
		return c
	}
	families := make([]Family, 0, len(fonts))
	for _, name := range fonts {
		if f, ok := s.registry.Family(name); ok {
			families = append(families, f)
		}
	}
	for _, r := range runes {
		if supportedBy(families, r) {
			c.Supported++
			continue
		}
		if len(c.Missing) < maxListedMissing {
			c.Missing = append(c.Missing, string(r))
		}
	}
	c.Percentage = percentage(c.Supported, c.Total)
	return c
}

func supportedBy(families []Family, r rune) bool {
	for _, f := range families {
		if f.SupportsRune(r) {
			return true
		}
	}
	return false
}

func percentage(supported, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(supported) / float64(total) * 100
}

func loadingStrategy(cfg LanguageConfig, required map[string]struct{}) domain.LoadingStrategy {
	if len(required) == 0 {
		return domain.LoadingLazy
	}
	if cfg.Complex || cfg.IsRTL() {
		return domain.LoadingPreload
	}
	for block := range required {
		if block != BasicLatin {
			return domain.LoadingPreload
		}
	}
	return domain.LoadingSwap
}

func warningsFor(cfg LanguageConfig, c domain.Coverage) []string {
	var warnings []string
	if c.Percentage < CoverageWarnThreshold {
		warnings = append(warnings, fmt.Sprintf("low character coverage: %.2f%%", c.Percentage))
	}
	if missing := c.Total - c.Supported; missing > 0 {
		warnings = append(warnings, fmt.Sprintf("%d character(s) not supported by any font in the chain", missing))
	}
	if cfg.IsRTL() {
		warnings = append(warnings, fmt.Sprintf("%s is right-to-left and needs bidi-aware rendering", cfg.Code))
	}
	if cfg.Complex {
		warnings = append(warnings, fmt.Sprintf("%s script %s needs complex text shaping", cfg.Code, cfg.Script))
	}
	return warnings
}
