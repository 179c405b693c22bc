package domain

import (
	"errors"
	"io"
)

// ErrMarkInvalid is returned by Reset when no mark is set or the mark was
// dropped because more than its read limit was consumed.
var ErrMarkInvalid = errors.New("stream mark is not valid")

// Stream is a reader that can return to a previously marked position.
// Bytes read after Mark are retained up to the read limit given to Mark.
type Stream struct {
	src   io.Reader
	buf   []byte
	pos   int
	mark  int
	limit int
}

func NewStream(r io.Reader) *Stream {
	return &Stream{src: r, mark: -1}
}

// Mark records the current position. A later Reset returns to it as long as
// no more than readLimit bytes have been read in between.
func (s *Stream) Mark(readLimit int) {
	s.buf = append(s.buf[:0], s.buf[s.pos:]...)
	s.pos = 0
	s.mark = 0
	s.limit = max(readLimit, 0)
}

// Reset moves the read position back to the mark.
func (s *Stream) Reset() error {
	if s.mark < 0 {
		return ErrMarkInvalid
	}
	s.pos = s.mark
	return nil
}

func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if s.pos < len(s.buf) {
		n := copy(p, s.buf[s.pos:])
		s.pos += n
		return n, nil
	}

	n, err := s.src.Read(p)
	if n > 0 {
		if s.mark >= 0 && len(s.buf)+n-s.mark <= s.limit {
			s.buf = append(s.buf, p[:n]...)
			s.pos += n
		} else {
			// read limit exceeded; nothing before the cursor can be replayed
			s.mark = -1
			s.buf = s.buf[:0]
			s.pos = 0
		}
	}
	return n, err
}
