package application

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gitter-badger/urfiles/icons/domain"
	"github.com/rs/zerolog/log"
)

const (
	// MaxFileSize is the exclusive upper bound for a declared upload size.
	MaxFileSize = 2_000_000
	// MinDimension must be exceeded by the icon's height or its width.
	MinDimension = 128
	// MaxPixels bounds width*height before an image is decoded.
	MaxPixels = 4096 * 4096
)

// ErrTooManyPixels means the image header declares more than MaxPixels.
var ErrTooManyPixels = errors.New("image dimensions too large")

// Reasons reported to clients when an upload is rejected.
const (
	ReasonFileTooLarge    = "file size must be less than 2MB"
	ReasonUnsupportedType = "file type must be one of PNG or JPEG"
	ReasonNameMismatch    = "specified file name does not match detected file type"
	ReasonUnreadable      = "could not read image"
	ReasonTooSmall        = "image height & width must be greater than 128px"
)

// ValidationError rejects an upload because of its content.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err was caused by the uploaded content.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// Inspection is what validation learned about an accepted upload.
type Inspection struct {
	Format domain.Format
	Width  int
	Height int
}

type Validator struct {
	maxSize      int64
	minDimension int
}

func NewValidator() *Validator {
	return &Validator{
		maxSize:      MaxFileSize,
		minDimension: MinDimension,
	}
}

// Validate checks the declared size, the detected format against the file
// name and the decoded dimensions, stopping at the first failure. On success
// the stream is positioned where it was before the call.
func (v *Validator) Validate(filename string, declaredSize int64, s *domain.Stream) (*Inspection, error) {
	if declaredSize >= v.maxSize {
		return nil, &ValidationError{Reason: ReasonFileTooLarge}
	}

	format, ok := domain.Probe(s)
	if !ok {
		return nil, &ValidationError{Reason: ReasonUnsupportedType}
	}
	if !format.MatchesName(filename) {
		return nil, &ValidationError{Reason: ReasonNameMismatch}
	}

	width, height, err := decodeDimensions(s, declaredSize)
	if err != nil {
		log.Error().Err(err).Str("file", filename).Msg("could not read image dimensions")
		return nil, &ValidationError{Reason: ReasonUnreadable, Err: err}
	}

	// Either side is enough.
	if !(height > v.minDimension || width > v.minDimension) {
		return nil, &ValidationError{Reason: ReasonTooSmall}
	}

	return &Inspection{
		Format: format,
		Width:  width,
		Height: height,
	}, nil
}

// decodeDimensions reads the header first so that a small file declaring a
// huge pixel grid is rejected before the decoder allocates for it.
func decodeDimensions(s *domain.Stream, declaredSize int64) (int, int, error) {
	s.Mark(int(declaredSize) + 1)

	cfg, _, err := image.DecodeConfig(s)
	if resetErr := s.Reset(); err == nil {
		err = resetErr
	}
	if err != nil {
		return 0, 0, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return 0, 0, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	// full decode still catches corrupt pixel data
	img, _, err := image.Decode(s)
	if resetErr := s.Reset(); err == nil {
		err = resetErr
	}
	if err != nil {
		return 0, 0, err
	}

	bounds := img.Bounds()
	return bounds.Dx(), bounds.Dy(), nil
}
