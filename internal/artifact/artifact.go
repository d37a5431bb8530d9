// Package artifact fetches and publishes model bundles on local disk, S3 or
// Google Cloud Storage.
package artifact

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Store abstracts blob storage for model artifacts.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// Location is a parsed artifact URI.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

const (
	SchemeFile = "file"
	SchemeS3   = "s3"
	SchemeGCS  = "gs"
)

// ParseURI accepts s3://bucket/key, gs://bucket/key, file:///abs/path or a
// plain filesystem path.
func ParseURI(uri string) (Location, error) {
	if uri == "" {
		return Location{}, fmt.Errorf("empty artifact uri")
	}
	if !strings.Contains(uri, "://") {
		return Location{Scheme: SchemeFile, Key: uri}, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("parse artifact uri: %w", err)
	}

	switch u.Scheme {
	case SchemeFile:
		return Location{Scheme: SchemeFile, Key: u.Path}, nil
	case SchemeS3, SchemeGCS:
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Location{}, fmt.Errorf("artifact uri %q needs a bucket and a key", uri)
		}
		return Location{Scheme: u.Scheme, Bucket: u.Host, Key: key}, nil
	default:
		return Location{}, fmt.Errorf("unsupported artifact scheme %q", u.Scheme)
	}
}

// String renders the location back to a URI.
func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return l.Key
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// Sibling returns the location of name next to l. Absolute names and
// names that are URIs themselves are returned as parsed.
func (l Location) Sibling(name string) (Location, error) {
	if strings.Contains(name, "://") {
		return ParseURI(name)
	}
	if l.Scheme == SchemeFile {
		if filepath.IsAbs(name) {
			return Location{Scheme: SchemeFile, Key: name}, nil
		}
		return Location{Scheme: SchemeFile, Key: filepath.Join(filepath.Dir(l.Key), name)}, nil
	}
	return Location{Scheme: l.Scheme, Bucket: l.Bucket, Key: path.Join(path.Dir(l.Key), name)}, nil
}

// Config selects credentials for the remote backends.
type Config struct {
	S3 S3Config
}

// Open returns the store serving loc.
func Open(ctx context.Context, loc Location, cfg Config) (Store, error) {
	switch loc.Scheme {
	case SchemeFile:
		return NewLocalStore(""), nil
	case SchemeS3:
		s3cfg := cfg.S3
		s3cfg.Bucket = loc.Bucket
		return NewS3Store(ctx, s3cfg)
	case SchemeGCS:
		return NewGCSStore(ctx, loc.Bucket)
	}
	return nil, fmt.Errorf("unsupported artifact scheme %q", loc.Scheme)
}

// Fetch reads the artifact at uri.
func Fetch(ctx context.Context, uri string, cfg Config) ([]byte, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	store, err := Open(ctx, loc, cfg)
	if err != nil {
		return nil, err
	}
	if c, ok := store.(interface{ Close() error }); ok {
		defer c.Close()
	}
	return store.Get(ctx, loc.Key)
}

// FetchToFile downloads the artifact at loc into dir and returns the local
// path. Local artifacts are returned in place.
func FetchToFile(ctx context.Context, loc Location, dir string, cfg Config) (string, error) {
	if loc.Scheme == SchemeFile {
		return loc.Key, nil
	}
	data, err := Fetch(ctx, loc.String(), cfg)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact cache: %w", err)
	}
	dst := filepath.Join(dir, path.Base(loc.Key))
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact cache: %w", err)
	}
	return dst, nil
}

// LocalStore implements Store using the local filesystem. Keys are paths
// relative to BaseDir, or absolute when BaseDir is empty.
type LocalStore struct {
	BaseDir string
}

// NewLocalStore creates a LocalStore rooted at the given directory.
func NewLocalStore(baseDir string) *LocalStore {
	return &LocalStore{BaseDir: baseDir}
}

func (s *LocalStore) path(key string) string {
	if s.BaseDir == "" {
		return key
	}
	return filepath.Join(s.BaseDir, key)
}

// Get reads an artifact.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	return os.ReadFile(s.path(key))
}

// Put writes an artifact, creating parent directories.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return os.WriteFile(p, data, 0o644)
}
