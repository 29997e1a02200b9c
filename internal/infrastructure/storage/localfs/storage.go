package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
)

// Storage keeps source files on the local filesystem. Download URLs are the
// public base URL followed by the escaped key; with no base URL the key itself
// is the reference.
type Storage struct {
	basePath      string
	publicBaseURL string
}

func New(basePath, publicBaseURL string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{
		basePath:      basePath,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrSourceNotFound, "open file", err)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Fetch accepts either a storage key or a download URL produced by ResolveDownloadURL.
func (s *Storage) Fetch(ctx context.Context, ref string) ([]byte, error) {
	key, err := s.keyFromRef(ref)
	if err != nil {
		return nil, err
	}
	rc, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

func (s *Storage) ResolveDownloadURL(_ context.Context, key string) (string, error) {
	if _, err := s.pathFor(key); err != nil {
		return "", err
	}
	if s.publicBaseURL == "" {
		return key, nil
	}
	return s.publicBaseURL + "/" + url.PathEscape(key), nil
}

func (s *Storage) keyFromRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if s.publicBaseURL != "" && strings.HasPrefix(ref, s.publicBaseURL+"/") {
		key, err := url.PathUnescape(strings.TrimPrefix(ref, s.publicBaseURL+"/"))
		if err != nil {
			return "", domain.WrapError(domain.ErrInvalidInput, "parse download url", err)
		}
		return key, nil
	}
	return ref, nil
}

// pathFor rejects keys that would escape the storage directory.
func (s *Storage) pathFor(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve storage key", fmt.Errorf("invalid key %q", key))
	}
	return filepath.Join(s.basePath, key), nil
}
