package events

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/reelsub/internal/domain"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Query selects events. Empty fields match everything; progress ticks and
// translation samples are excluded unless asked for.
type Query struct {
	Types      []domain.EventType
	Severities []domain.Severity
	Categories []domain.Category
	Language   string
	// Phase matches exactly, or every sub-phase when it names a status.
	Phase           domain.Phase
	Tags            []string
	Since           time.Time
	Until           time.Time
	IncludeProgress bool
	IncludeSamples  bool
	Limit           int
	Offset          int
}

type Page struct {
	Events  []domain.Event `json:"events"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	HasMore bool           `json:"hasMore"`
}

// Match applies every predicate of q except pagination, in a fixed order:
// type, severity, category, language, phase, tags, time window, then the
// content toggles.
func (q Query) Match(e domain.Event) bool {
	if len(q.Types) > 0 && !slices.Contains(q.Types, e.Type) {
		return false
	}
	if len(q.Severities) > 0 && !slices.Contains(q.Severities, e.Metadata.Severity) {
		return false
	}
	if len(q.Categories) > 0 && !slices.Contains(q.Categories, e.Metadata.Category) {
		return false
	}
	if q.Language != "" && !strings.EqualFold(q.Language, e.Metadata.Language) {
		return false
	}
	if q.Phase != "" && e.Phase != q.Phase && !(e.Phase.Status() == domain.JobStatus(q.Phase) && !strings.Contains(string(q.Phase), ".")) {
		return false
	}
	if len(q.Tags) > 0 && !slices.ContainsFunc(q.Tags, func(t string) bool { return slices.Contains(e.Metadata.Tags, t) }) {
		return false
	}
	if !q.Since.IsZero() && !e.Timestamp.After(q.Since) {
		return false
	}
	if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
		return false
	}
	explicit := slices.Contains(q.Types, e.Type)
	if e.Type.IsProgressTick() && !q.IncludeProgress && !explicit {
		return false
	}
	if e.Type == domain.EventTranslationSample && !q.IncludeSamples && !explicit {
		return false
	}
	return true
}

// Filter selects the events matching q, newest first, and returns the page
// at q.Offset. The limit defaults to DefaultLimit and is capped at MaxLimit.
func Filter(events []domain.Event, q Query) Page {
	matched := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if q.Match(e) {
			matched = append(matched, e)
		}
	}
	slices.SortStableFunc(matched, func(a, b domain.Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	slices.Reverse(matched)

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	offset := max(q.Offset, 0)

	page := Page{Total: len(matched), Limit: limit, Offset: offset, Events: []domain.Event{}}
	if offset >= len(matched) {
		return page
	}
	end := min(offset+limit, len(matched))
	page.Events = matched[offset:end]
	page.HasMore = end < len(matched)
	return page
}

// ParseQuery reads a Query from URL parameters. List parameters accept
// repeated keys or comma-separated values.
func ParseQuery(v url.Values) (Query, error) {
	var q Query
	for _, t := range list(v, "type") {
		et := domain.EventType(t)
		if !et.IsValid() {
			return Query{}, fmt.Errorf("%w: unknown event type %q", domain.ErrInvalidRequest, t)
		}
		q.Types = append(q.Types, et)
	}
	for _, s := range list(v, "severity") {
		sev := domain.Severity(s)
		if !sev.IsValid() {
			return Query{}, fmt.Errorf("%w: unknown severity %q", domain.ErrInvalidRequest, s)
		}
		q.Severities = append(q.Severities, sev)
	}
	for _, c := range list(v, "category") {
		cat := domain.Category(c)
		if !cat.IsValid() {
			return Query{}, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidRequest, c)
		}
		q.Categories = append(q.Categories, cat)
	}
	q.Language = strings.TrimSpace(v.Get("language"))
	q.Phase = domain.Phase(strings.TrimSpace(v.Get("phase")))
	q.Tags = list(v, "tags")

	var err error
	if q.Since, err = parseTime(v.Get("since")); err != nil {
		return Query{}, fmt.Errorf("%w: since: %w", domain.ErrInvalidRequest, err)
	}
	if q.Until, err = parseTime(v.Get("until")); err != nil {
		return Query{}, fmt.Errorf("%w: until: %w", domain.ErrInvalidRequest, err)
	}
	if !q.Since.IsZero() && !q.Until.IsZero() && q.Until.Before(q.Since) {
		return Query{}, fmt.Errorf("%w: until is before since", domain.ErrInvalidRequest)
	}
	if q.IncludeProgress, err = parseBool(v.Get("includeProgress")); err != nil {
		return Query{}, fmt.Errorf("%w: includeProgress: %w", domain.ErrInvalidRequest, err)
	}
	if q.IncludeSamples, err = parseBool(v.Get("includeSamples")); err != nil {
		return Query{}, fmt.Errorf("%w: includeSamples: %w", domain.ErrInvalidRequest, err)
	}
	if q.Limit, err = parseInt(v.Get("limit")); err != nil || q.Limit < 0 {
		return Query{}, fmt.Errorf("%w: invalid limit %q", domain.ErrInvalidRequest, v.Get("limit"))
	}
	if q.Offset, err = parseInt(v.Get("offset")); err != nil || q.Offset < 0 {
		return Query{}, fmt.Errorf("%w: invalid offset %q", domain.ErrInvalidRequest, v.Get("offset"))
	}
	return q, nil
}

func list(v url.Values, key string) []string {
	var out []string
	for _, raw := range v[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseTime accepts RFC 3339 or Unix milliseconds.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
