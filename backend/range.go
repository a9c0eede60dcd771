package backend

import (
	"fmt"
	"io"
	"math"
)

// Validate returns an error wrapping ErrInvalidParameter if the Range can't
// be addressed with int64 offsets: its Start, Length and End must each be
// at most math.MaxInt64.
func (r Range) Validate() error {
	if r.Start > math.MaxInt64 || r.Length > math.MaxInt64 || r.Start > math.MaxInt64-r.Length {
		return fmt.Errorf("%w: range start %d and length %d exceed the maximum offset", ErrInvalidParameter, r.Start, r.Length)
	}
	return nil
}

// NarrowRange composes a stage in front of |rc| which yields exactly
// |length| bytes. Excess bytes of |rc| are never surfaced, and a premature
// EOF of |rc| surfaces as io.ErrUnexpectedEOF. Closing the returned stream
// closes |rc|.
func NarrowRange(rc io.ReadCloser, length int64) io.ReadCloser {
	return &rangeReader{rc: rc, remaining: length}
}

// SliceRange is like NarrowRange, but first discards the |rng| Start bytes
// of |rc|. It's used where an origin responds with the entire resource
// rather than the requested Range. On error, |rc| is not closed.
func SliceRange(rc io.ReadCloser, rng Range) (io.ReadCloser, error) {
	if _, err := io.CopyN(io.Discard, rc, int64(rng.Start)); err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	} else if err != nil {
		return nil, err
	}
	return NarrowRange(rc, int64(rng.Length)), nil
}

type rangeReader struct {
	rc        io.ReadCloser
	remaining int64
}

func (r *rangeReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	var n, err = r.rc.Read(p)
	r.remaining -= int64(n)

	if err == io.EOF {
		if r.remaining > 0 {
			err = io.ErrUnexpectedEOF
		}
	} else if err == nil && r.remaining == 0 {
		err = io.EOF
	}
	return n, err
}

func (r *rangeReader) Close() error { return r.rc.Close() }
