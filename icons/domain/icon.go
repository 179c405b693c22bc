package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("icon not found")
	ErrAlreadyExists = errors.New("file already exists")
	ErrNotModified   = errors.New("icon not modified")
	ErrInvalidKey    = errors.New("invalid service or file name")
)

// Key addresses a stored icon: base directory / Service / Name.
type Key struct {
	Service string
	Name    string
}

// NewKey checks that both parts are usable as a single path segment.
func NewKey(service, name string) (Key, error) {
	if err := ValidateSegment(service); err != nil {
		return Key{}, err
	}
	if err := ValidateSegment(name); err != nil {
		return Key{}, err
	}
	return Key{Service: service, Name: name}, nil
}

// TempFilePrefix names files that are still being written. Keys never use it.
const TempFilePrefix = ".upload-"

// ValidateSegment rejects names that would leave their directory or collide
// with in-progress uploads.
func ValidateSegment(segment string) error {
	switch {
	case segment == "", segment == ".", segment == "..":
		return fmt.Errorf("%w: %q", ErrInvalidKey, segment)
	case strings.ContainsAny(segment, "/\\\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidKey, segment)
	case strings.HasPrefix(segment, TempFilePrefix):
		return fmt.Errorf("%w: %q", ErrInvalidKey, segment)
	}
	return nil
}

func (k Key) String() string {
	return k.Service + "/" + k.Name
}

// Icon is the indexed metadata of a stored icon file.
type Icon struct {
	Key       Key
	Format    Format
	Size      int64
	Width     int
	Height    int
	Hash      string
	UpdatedAt time.Time
	CreatedAt time.Time
}

// IconRepository indexes stored icons.
type IconRepository interface {
	// SaveIcon inserts or replaces the metadata of an icon
	SaveIcon(ctx context.Context, icon *Icon) error

	// GetIcon returns ErrNotFound for unknown keys
	GetIcon(ctx context.Context, key Key) (*Icon, error)

	// ListIcons returns the icons of one service ordered by name
	ListIcons(ctx context.Context, service string) ([]*Icon, error)

	DeleteIcon(ctx context.Context, key Key) error
}

// Written describes the bytes a FileStore persisted.
type Written struct {
	Size int64
	Hash string
}

// FileStore keeps icon bytes on durable storage.
type FileStore interface {
	// Store copies r to the icon's location. Without overwrite an existing
	// file fails the call with ErrAlreadyExists.
	Store(ctx context.Context, key Key, r io.Reader, overwrite bool) (Written, error)

	// Open returns ErrNotFound when no file exists for key.
	Open(ctx context.Context, key Key) (io.ReadCloser, int64, error)

	// Remove returns ErrNotFound when no file exists and wraps
	// ErrNotModified when the file could not be removed.
	Remove(ctx context.Context, key Key) error

	Exists(ctx context.Context, key Key) (bool, error)
}

// Transactor runs fn in a transaction carried by the context it is given.
// A non-nil error from fn rolls the transaction back.
type Transactor interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
