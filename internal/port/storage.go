package port

import (
	"context"
	"io"
	"time"

	"github.com/bnema/reelsub/internal/domain"
)

// JobStore holds jobs in memory. Update calls for one id are serialized and
// readers always receive clones.
type JobStore interface {
	Create(job *domain.Job) error
	Get(id string) (*domain.Job, error)
	Update(id string, fn func(job *domain.Job) error) (*domain.Job, error)
	List() ([]*domain.Job, error)
	Delete(id string) error
}

type StoredObject struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	DownloadURL string `json:"downloadUrl"`
	Size        int64  `json:"size"`
}

// ObjectStorage is content-addressed: uploads never overwrite an existing object.
type ObjectStorage interface {
	Upload(ctx context.Context, r io.Reader, filename string) (*StoredObject, error)
	List(ctx context.Context, prefix string) ([]StoredObject, error)
	Delete(ctx context.Context, url string) error
}

type TranscriptCache interface {
	Get(ctx context.Context, key string) (*domain.TranscriptionRecord, error)
	Put(ctx context.Context, record *domain.TranscriptionRecord, ttl time.Duration) error
	Purge(ctx context.Context, now time.Time) (int64, error)
}
