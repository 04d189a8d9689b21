package report

import (
	"io"

	"github.com/klauspost/compress/gzip"
)

// MaybeGzip wraps w in a gzip writer when compress is true, for callers
// that want optional compression on the best-edge and partitioning text
// reports. Callers must Close the returned writer (a no-op wrapper when
// compress is false) to flush the trailing gzip footer.
func MaybeGzip(w io.Writer, compress bool) io.WriteCloser {
	if !compress {
		return nopWriteCloser{w}
	}
	return gzip.NewWriter(w)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
