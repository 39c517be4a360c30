package port

import "context"

type FontKey struct {
	Family   string
	Language string
	Weight   int
	Style    string
}

// FontSource fetches a font payload. Callers go through a memoizing loader.
type FontSource interface {
	Load(ctx context.Context, key FontKey) ([]byte, string, error)
}
