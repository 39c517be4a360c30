package fonts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/reelsub/internal/port"
)

type countingSource struct {
	calls   atomic.Int32
	release chan struct{}
	failN   int32
}

func (s *countingSource) Load(ctx context.Context, key port.FontKey) ([]byte, string, error) {
	n := s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	if n <= s.failN {
		return nil, "", errors.New("network down")
	}
	return []byte(key.Family), "/fonts/" + FileBase(key) + ".ttf", nil
}

func TestLoader_SharesInFlightLoads(t *testing.T) {
	src := &countingSource{release: make(chan struct{})}
	loader := NewLoader(src)
	key := port.FontKey{Family: "Noto Sans Arabic", Language: "ar", Weight: 700}

	var wg sync.WaitGroup
	results := make([]*LoadedFont, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := loader.Load(context.Background(), key)
			assert.NoError(t, err)
			results[i] = f
		}(i)
	}
	close(src.release)
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
	for _, f := range results {
		assert.Same(t, results[0], f)
	}
	assert.Equal(t, 1, loader.Loaded())
}

func TestLoader_KeysAreDistinct(t *testing.T) {
	src := &countingSource{}
	loader := NewLoader(src)
	ctx := context.Background()

	_, err := loader.Load(ctx, port.FontKey{Family: "Inter", Language: "en"})
	require.NoError(t, err)
	_, err = loader.Load(ctx, port.FontKey{Family: "Inter", Language: "en", Weight: 400, Style: "normal"})
	require.NoError(t, err)
	_, err = loader.Load(ctx, port.FontKey{Family: "Inter", Language: "en", Style: "italic"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), src.calls.Load(), "defaults normalize to the same key")
}

func TestLoader_DoesNotMemoizeFailures(t *testing.T) {
	src := &countingSource{failN: 1}
	loader := NewLoader(src)
	key := port.FontKey{Family: "Inter"}

	_, err := loader.Load(context.Background(), key)
	require.Error(t, err)

	f, err := loader.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []byte("Inter"), f.Data)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestDirSource_Load(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "NotoSans-Bold.ttf"), []byte("bold"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BeVietnamPro-Italic.otf"), []byte("italic"), 0o644))
	src := NewDirSource(dir)
	ctx := context.Background()

	data, path, err := src.Load(ctx, port.FontKey{Family: "Noto Sans", Weight: 700})
	require.NoError(t, err)
	assert.Equal(t, []byte("bold"), data)
	assert.Equal(t, filepath.Join(dir, "NotoSans-Bold.ttf"), path)

	data, _, err = src.Load(ctx, port.FontKey{Family: "Be Vietnam Pro", Style: "italic"})
	require.NoError(t, err)
	assert.Equal(t, []byte("italic"), data)

	_, _, err = src.Load(ctx, port.FontKey{Family: "Inter"})
	assert.ErrorIs(t, err, ErrFontNotFound)
}

func TestFileBase(t *testing.T) {
	assert.Equal(t, "NotoSansArabic-Regular", FileBase(port.FontKey{Family: "Noto Sans Arabic"}))
	assert.Equal(t, "Inter-SemiBoldItalic", FileBase(port.FontKey{Family: "Inter", Weight: 600, Style: "italic"}))
	assert.Equal(t, "Roboto-Regular", FileBase(port.FontKey{Family: "Roboto", Weight: 450}))
}
