// Package localfs stores published artifacts on local disk under content
// addresses.
package localfs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/bnema/reelsub/internal/port"
)

var (
	ErrInvalidKey     = errors.New("invalid object key")
	ErrObjectNotFound = errors.New("object not found")
)

var keyPattern = regexp.MustCompile(`^[0-9a-f]{64}(\.[a-z0-9]{1,8})?$`)

type Store struct {
	root    string
	baseURL string
}

// NewStore keeps objects under dir/objects and issues URLs below baseURL.
func NewStore(dir, baseURL string) (*Store, error) {
	root := filepath.Join(dir, "objects")
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}
	return &Store{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *Store) objectPath(key string) string {
	return filepath.Join(s.root, key[:2], key)
}

func (s *Store) describe(key string, size int64, filename string) port.StoredObject {
	u := s.baseURL + "/objects/" + key
	dl := u + "?download=1"
	if filename != "" {
		dl = u + "?download=" + url.QueryEscape(filename)
	}
	return port.StoredObject{Key: key, URL: u, DownloadURL: dl, Size: size}
}

// Upload hashes r while spooling it to disk. An object that already exists
// is left untouched and the spooled copy is discarded.
func (s *Store) Upload(ctx context.Context, r io.Reader, filename string) (*port.StoredObject, error) {
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp object: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	h, err := blake2b.New256(nil)
	if err != nil {
		_ = tmp.Close()
		return nil, err
	}
	size, err := io.Copy(io.MultiWriter(tmp, h), &ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write object: %w", err)
	}

	key := hex.EncodeToString(h.Sum(nil)) + extension(filename)
	dst := s.objectPath(key)
	if _, err := os.Stat(dst); err == nil {
		obj := s.describe(key, size, filename)
		return &obj, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return nil, fmt.Errorf("create object shard: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return nil, fmt.Errorf("publish object: %w", err)
	}
	obj := s.describe(key, size, filename)
	return &obj, nil
}

func extension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || !keyPattern.MatchString(strings.Repeat("0", 64)+ext) {
		return ""
	}
	return ext
}

// List returns objects whose key starts with prefix, ordered by key.
func (s *Store) List(ctx context.Context, prefix string) ([]port.StoredObject, error) {
	var out []port.StoredObject
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !keyPattern.MatchString(d.Name()) || !strings.HasPrefix(d.Name(), prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, s.describe(d.Name(), info.Size(), ""))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes the object addressed by an issued URL or a bare key.
func (s *Store) Delete(_ context.Context, ref string) error {
	key, err := KeyFromURL(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(s.objectPath(key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// Open returns the object for key, for serving over HTTP.
func (s *Store) Open(key string) (*os.File, error) {
	if !keyPattern.MatchString(key) {
		return nil, ErrInvalidKey
	}
	return os.Open(s.objectPath(key))
}

// KeyFromURL extracts the object key from an issued URL.
func KeyFromURL(ref string) (string, error) {
	p := ref
	if u, err := url.Parse(ref); err == nil {
		p = u.Path
	}
	key := path.Base(p)
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, ref)
	}
	return key, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, context.Cause(c.ctx)
	}
	return c.r.Read(p)
}

var _ port.ObjectStorage = (*Store)(nil)
