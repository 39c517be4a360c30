package fonts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/bnema/reelsub/internal/infrastructure/logger"
	"github.com/bnema/reelsub/internal/port"
)

var ErrFontNotFound = errors.New("font file not found")

type LoadedFont struct {
	Key  port.FontKey
	Path string
	Data []byte
}

// Loader memoizes font payloads by key. Concurrent requests for a key that is
// not loaded yet share a single call to the source. Failed loads are not kept.
type Loader struct {
	source port.FontSource
	group  singleflight.Group

	mu     sync.RWMutex
	loaded map[port.FontKey]*LoadedFont
}

func NewLoader(source port.FontSource) *Loader {
	return &Loader{
		source: source,
		loaded: make(map[port.FontKey]*LoadedFont),
	}
}

func normalizeKey(key port.FontKey) port.FontKey {
	if key.Weight == 0 {
		key.Weight = 400
	}
	if key.Style == "" {
		key.Style = "normal"
	}
	return key
}

func (l *Loader) Load(ctx context.Context, key port.FontKey) (*LoadedFont, error) {
	key = normalizeKey(key)

	l.mu.RLock()
	font, ok := l.loaded[key]
	l.mu.RUnlock()
	if ok {
		return font, nil
	}

	flightKey := fmt.Sprintf("%s|%s|%d|%s", key.Family, key.Language, key.Weight, key.Style)
	v, err, shared := l.group.Do(flightKey, func() (any, error) {
		data, path, err := l.source.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		font := &LoadedFont{Key: key, Path: path, Data: data}
		l.mu.Lock()
		l.loaded[key] = font
		l.mu.Unlock()
		return font, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load font %s: %w", key.Family, err)
	}
	if shared {
		logger.Debug().Str("font", key.Family).Msg("font load shared with in-flight request")
	}
	return v.(*LoadedFont), nil
}

// Loaded reports how many payloads are memoized.
func (l *Loader) Loaded() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.loaded)
}

// DirSource reads font files laid out as <Family>-<Weight><Style>.{ttf,otf}
// with spaces removed from the family, e.g. NotoSansArabic-Bold.ttf.
type DirSource struct {
	dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

var weightNames = map[int]string{
	100: "Thin",
	200: "ExtraLight",
	300: "Light",
	400: "Regular",
	500: "Medium",
	600: "SemiBold",
	700: "Bold",
	800: "ExtraBold",
	900: "Black",
}

// FileBase returns the file name stem for key.
func FileBase(key port.FontKey) string {
	key = normalizeKey(key)
	family := strings.ReplaceAll(key.Family, " ", "")
	weight := weightNames[key.Weight]
	if weight == "" {
		weight = "Regular"
	}
	if key.Style == "italic" {
		if weight == "Regular" {
			return family + "-Italic"
		}
		return family + "-" + weight + "Italic"
	}
	return family + "-" + weight
}

func (s *DirSource) Load(ctx context.Context, key port.FontKey) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	base := FileBase(key)
	for _, ext := range []string{".ttf", ".otf"} {
		path := filepath.Join(s.dir, base+ext)
		data, err := os.ReadFile(path)
		if err == nil {
			return data, path, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("read %s: %w", path, err)
		}
	}
	return nil, "", fmt.Errorf("%w: %s", ErrFontNotFound, base)
}
