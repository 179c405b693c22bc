package persistence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gitter-badger/urfiles/icons/domain"
	"github.com/rs/zerolog/log"
)

var _ domain.FileStore = (*LocalFileStore)(nil)

var (
	// ErrCreateDirectory means the service directory could not be created.
	ErrCreateDirectory = errors.New("could not create directory")
	// ErrWrite means the icon bytes could not be written.
	ErrWrite = errors.New("could not store file")
)

// LocalFileStore keeps icons at <base>/<service>/<name>.
type LocalFileStore struct {
	base string
}

// NewLocalFileStore creates the base directory if needed and resolves it to an
// absolute path.
func NewLocalFileStore(baseDirectory string) (*LocalFileStore, error) {
	if baseDirectory == "" {
		return nil, fmt.Errorf("base directory cannot be empty")
	}

	if err := os.MkdirAll(baseDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory %q: %w", baseDirectory, err)
	}

	base, err := filepath.Abs(baseDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	return &LocalFileStore{base: base}, nil
}

// Path resolves the location of an icon and refuses keys that would leave the
// base directory.
func (s *LocalFileStore) Path(key domain.Key) (string, error) {
	if err := domain.ValidateSegment(key.Service); err != nil {
		return "", err
	}
	if err := domain.ValidateSegment(key.Name); err != nil {
		return "", err
	}

	joined := filepath.Join(s.base, key.Service, key.Name)
	rel, err := filepath.Rel(s.base, joined)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %s escapes base directory", domain.ErrInvalidKey, key)
	}

	return joined, nil
}

func (s *LocalFileStore) Store(ctx context.Context, key domain.Key, r io.Reader, overwrite bool) (domain.Written, error) {
	if err := ctx.Err(); err != nil {
		return domain.Written{}, err
	}

	dest, err := s.Path(key)
	if err != nil {
		return domain.Written{}, err
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("could not create directories for file")
		return domain.Written{}, fmt.Errorf("%w: %w", ErrCreateDirectory, err)
	}

	if !overwrite {
		if _, err := os.Stat(dest); err == nil {
			return domain.Written{}, domain.ErrAlreadyExists
		}
	}

	tmp, err := os.CreateTemp(dir, domain.TempFilePrefix+"*")
	if err != nil {
		return domain.Written{}, fmt.Errorf("%w: failed to create temp file: %w", ErrWrite, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hash := sha256.New()
	n, copyErr := io.Copy(io.MultiWriter(tmp, hash), r)
	closeErr := tmp.Close()
	if copyErr != nil {
		log.Error().Err(copyErr).Str("file", dest).Msg("could not store file")
		return domain.Written{}, fmt.Errorf("%w: %w", ErrWrite, copyErr)
	}
	if closeErr != nil {
		return domain.Written{}, fmt.Errorf("%w: failed to flush file: %w", ErrWrite, closeErr)
	}

	if err := os.Chmod(tmpPath, 0644); err != nil {
		return domain.Written{}, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	if overwrite {
		err = os.Rename(tmpPath, dest)
	} else {
		// a hard link fails if dest appeared since the check above
		err = os.Link(tmpPath, dest)
		if errors.Is(err, fs.ErrExist) {
			return domain.Written{}, domain.ErrAlreadyExists
		}
	}
	if err != nil {
		log.Error().Err(err).Str("file", dest).Msg("could not publish file")
		return domain.Written{}, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	return domain.Written{
		Size: n,
		Hash: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

func (s *LocalFileStore) Open(ctx context.Context, key domain.Key) (io.ReadCloser, int64, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(path)
	if isNotExist(err) {
		return nil, 0, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open icon: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat icon: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}

	return f, info.Size(), nil
}

func (s *LocalFileStore) Remove(ctx context.Context, key domain.Key) error {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		log.Warn().Str("icon", key.String()).Msg("called delete for non existing file")
		return fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}

	path, err := s.Path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if isNotExist(err) {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, key)
		}
		log.Warn().Err(err).Str("file", path).Msg("could not delete file")
		return fmt.Errorf("%w: %w", domain.ErrNotModified, err)
	}

	return nil
}

func (s *LocalFileStore) Exists(ctx context.Context, key domain.Key) (bool, error) {
	path, err := s.Path(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	if isNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat icon: %w", err)
	}

	return !info.IsDir(), nil
}

// isNotExist also treats a regular file in place of the service directory as a
// missing icon.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
