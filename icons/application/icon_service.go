package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gitter-badger/urfiles/icons/domain"
	"github.com/rs/zerolog/log"
)

// Upload is the content of a POST or PUT request.
type Upload struct {
	// Size is the size reported by the transport, it is not verified
	// against the bytes actually read.
	Size    int64
	Content io.Reader
}

// Download streams a stored icon. Callers must Close it.
type Download struct {
	io.Reader
	Size        int64
	ContentType string

	closer io.Closer
}

func (d *Download) Close() error {
	return d.closer.Close()
}

type IconService struct {
	validator *Validator
	files     domain.FileStore
	repo      domain.IconRepository
	tx        domain.Transactor
	now       func() time.Time
}

func NewIconService(validator *Validator, files domain.FileStore, repo domain.IconRepository, tx domain.Transactor) *IconService {
	return &IconService{
		validator: validator,
		files:     files,
		repo:      repo,
		tx:        tx,
		now:       time.Now,
	}
}

// Upload validates and stores a new icon. An existing icon is never replaced.
func (s *IconService) Upload(ctx context.Context, key domain.Key, upload Upload) (*domain.Icon, error) {
	log.Debug().Str("icon", key.String()).Int64("size", upload.Size).Msg("requested to store file")

	stream := domain.NewStream(upload.Content)
	inspection, err := s.validator.Validate(key.Name, upload.Size, stream)
	if err != nil {
		return nil, err
	}

	exists, err := s.files.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing icon: %w", err)
	}
	if exists {
		return nil, domain.ErrAlreadyExists
	}

	return s.save(ctx, key, stream, inspection, false)
}

// Overwrite validates an icon and stores it whether or not one already exists.
func (s *IconService) Overwrite(ctx context.Context, key domain.Key, upload Upload) (*domain.Icon, error) {
	log.Debug().Str("icon", key.String()).Int64("size", upload.Size).Msg("requested to overwrite file")

	stream := domain.NewStream(upload.Content)
	inspection, err := s.validator.Validate(key.Name, upload.Size, stream)
	if err != nil {
		return nil, err
	}

	return s.save(ctx, key, stream, inspection, true)
}

func (s *IconService) save(ctx context.Context, key domain.Key, r io.Reader, inspection *Inspection, overwrite bool) (*domain.Icon, error) {
	now := s.now().UTC()
	icon := &domain.Icon{
		Key:       key,
		Format:    inspection.Format,
		Width:     inspection.Width,
		Height:    inspection.Height,
		UpdatedAt: now,
		CreatedAt: now,
	}

	err := s.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		written, err := s.files.Store(txCtx, key, r, overwrite)
		if err != nil {
			return err
		}

		icon.Size = written.Size
		icon.Hash = written.Hash

		if err := s.repo.SaveIcon(txCtx, icon); err != nil {
			if !overwrite {
				if rmErr := s.files.Remove(txCtx, key); rmErr != nil {
					log.Error().Err(rmErr).Str("icon", key.String()).Msg("failed to remove unindexed icon")
				}
			} else {
				log.Error().Err(err).Str("icon", key.String()).Msg("icon replaced but index is stale")
			}
			return err
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return icon, nil
}

// Open returns the stored bytes of an icon with a content type sniffed from
// the file itself.
func (s *IconService) Open(ctx context.Context, key domain.Key) (*Download, error) {
	rc, size, err := s.files.Open(ctx, key)
	if err != nil {
		return nil, err
	}

	stream := domain.NewStream(rc)
	contentType := "application/octet-stream"
	if format, ok := domain.Probe(stream); ok {
		contentType = format.ContentType()
	}

	return &Download{
		Reader:      stream,
		Size:        size,
		ContentType: contentType,
		closer:      rc,
	}, nil
}

// Delete removes an icon and its index entry. It returns domain.ErrNotFound
// when there is no file and wraps domain.ErrNotModified when the file exists
// but could not be removed, in which case the index entry is kept.
func (s *IconService) Delete(ctx context.Context, key domain.Key) error {
	var notFound error

	err := s.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		err := s.files.Remove(txCtx, key)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// drop a stale index entry as well
			notFound = err
		case err != nil:
			return err
		}

		return s.repo.DeleteIcon(txCtx, key)
	})
	if err != nil {
		return err
	}

	if notFound != nil {
		return notFound
	}

	log.Debug().Str("icon", key.String()).Msg("file deleted")
	return nil
}

// List returns the indexed icons of a service.
func (s *IconService) List(ctx context.Context, service string) ([]*domain.Icon, error) {
	if err := domain.ValidateSegment(service); err != nil {
		return nil, err
	}
	return s.repo.ListIcons(ctx, service)
}

// Describe returns the indexed metadata of one icon.
func (s *IconService) Describe(ctx context.Context, key domain.Key) (*domain.Icon, error) {
	return s.repo.GetIcon(ctx, key)
}
