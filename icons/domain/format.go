package domain

import (
	"bytes"
	"errors"
	"io"
	"regexp"

	"github.com/rs/zerolog/log"
)

// Format is one of the image formats accepted as an icon.
type Format int

const (
	JPEG Format = iota
	PNG
)

type formatSpec struct {
	name        string
	header      []byte
	suffix      *regexp.Regexp
	contentType string
}

// formats is indexed by Format and probed in that order.
var formats = [...]formatSpec{
	JPEG: {
		name:        "JPEG",
		header:      []byte{0xFF, 0xD8},
		suffix:      regexp.MustCompile(`(?i)^.*\.(jpg|jpeg)$`),
		contentType: "image/jpeg",
	},
	PNG: {
		name:        "PNG",
		header:      []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
		suffix:      regexp.MustCompile(`(?i)^.*\.png$`),
		contentType: "image/png",
	},
}

// maxHeaderLength is the lookahead a single probe needs.
var maxHeaderLength = func() int {
	n := 0
	for _, f := range formats {
		n = max(n, len(f.header))
	}
	return n
}()

// Formats returns every known format in probe order.
func Formats() []Format {
	out := make([]Format, len(formats))
	for i := range formats {
		out[i] = Format(i)
	}
	return out
}

func (f Format) String() string {
	if !f.valid() {
		return "unknown"
	}
	return formats[f].name
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if !f.valid() {
		return "application/octet-stream"
	}
	return formats[f].contentType
}

// Header returns a copy of the magic bytes that open a file of this format.
func (f Format) Header() []byte {
	if !f.valid() {
		return nil
	}
	return bytes.Clone(formats[f].header)
}

// MatchesName reports whether the whole file name carries a suffix of this format.
func (f Format) MatchesName(name string) bool {
	return f.valid() && formats[f].suffix.MatchString(name)
}

// ParseFormat maps a stored format name back to a Format.
func ParseFormat(name string) (Format, bool) {
	for i, spec := range formats {
		if spec.name == name {
			return Format(i), true
		}
	}
	return 0, false
}

func (f Format) valid() bool {
	return f >= 0 && int(f) < len(formats)
}

// Probe detects the format of s from its leading bytes. The read position of s
// is the same after the call as before it. Read failures count as no match.
func Probe(s *Stream) (Format, bool) {
	s.Mark(maxHeaderLength)
	defer func() {
		if err := s.Reset(); err != nil {
			log.Debug().Err(err).Msg("failed to reset stream after probing")
		}
	}()

	for i, spec := range formats {
		if err := s.Reset(); err != nil {
			log.Debug().Err(err).Msg("failed to reset stream before probing")
			return 0, false
		}

		header := make([]byte, len(spec.header))
		if _, err := io.ReadFull(s, header); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				continue
			}
			log.Debug().Err(err).Msg("failed to read file header")
			return 0, false
		}

		if bytes.Equal(header, spec.header) {
			return Format(i), true
		}
	}

	return 0, false
}
