// Package codec implements the transparent (de)compression layer described
// in spec.md §4.2: detect a stream's compression by file extension or magic
// bytes, and open plain/gzip/brotli/zlib readers and writers over it.
// Grounded on the teacher pack's replay loader
// (abrahamVado-DriftPursuit/go-broker/internal/replay/loader.go), which
// opens a gzip.Reader directly over an *os.File; this package generalizes
// that single-format case to the four formats the archive supports.
package codec

import (
	"bufio"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
)

// Format identifies a supported compression envelope.
type Format int

const (
	Plain Format = iota
	Gzip
	Brotli
	Zlib
)

func (f Format) String() string {
	switch f {
	case Plain:
		return "plain"
	case Gzip:
		return "gzip"
	case Brotli:
		return "brotli"
	case Zlib:
		return "zlib"
	default:
		return "unknown"
	}
}

// gzipMagic and zlibMagic are the standard two-byte headers for their
// formats. Brotli has no reserved magic number, so it is detected by
// extension only; a stream that is neither gzip nor zlib and lacks a
// brotli extension is treated as plain.
var (
	gzipMagic = [2]byte{0x1f, 0x8b}
	zlibMagic = [2]byte{0x78, 0x9c} // default compression level header
)

// FormatFromExtension derives a Format from a file path's suffix, per
// spec.md §6 ("compression suffixes .gz, .br, .zlib compose"). It returns
// Plain, false when no recognized suffix is present.
func FormatFromExtension(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return Gzip, true
	case ".br":
		return Brotli, true
	case ".zlib":
		return Zlib, true
	default:
		return Plain, false
	}
}

// SniffFormat inspects the first bytes of a buffered reader to guess its
// compression format when the path's extension is absent or ambiguous
// (e.g. piped input). It does not consume bytes from peeked data.
func SniffFormat(r *bufio.Reader) (Format, error) {
	head, err := r.Peek(2)
	if err != nil && err != io.EOF {
		return Plain, err
	}
	if len(head) >= 2 {
		if [2]byte{head[0], head[1]} == gzipMagic {
			return Gzip, nil
		}
		if [2]byte{head[0], head[1]} == zlibMagic {
			return Zlib, nil
		}
	}
	return Plain, nil
}

// OpenReader wraps src in a transparent decompressing reader for format.
// The returned io.ReadCloser's Close releases the decompressor; it does
// not close src — the caller owns that lifecycle.
func OpenReader(src io.Reader, format Format) (io.ReadCloser, error) {
	switch format {
	case Plain:
		return io.NopCloser(src), nil
	case Gzip:
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("codec: gzip reader: %w", err)
		}
		return zr, nil
	case Brotli:
		return io.NopCloser(brotli.NewReader(src)), nil
	case Zlib:
		zr, err := zlib.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("codec: zlib reader: %w", err)
		}
		return zr, nil
	default:
		return nil, fmt.Errorf("codec: unknown format %v", format)
	}
}

// OpenWriter wraps dst in a transparent compressing writer for format. The
// returned io.WriteCloser MUST be closed to flush trailing compressed
// bytes; closing it does not close dst.
func OpenWriter(dst io.Writer, format Format) (io.WriteCloser, error) {
	switch format {
	case Plain:
		return nopWriteCloser{dst}, nil
	case Gzip:
		return gzip.NewWriter(dst), nil
	case Brotli:
		return brotli.NewWriter(dst), nil
	case Zlib:
		return zlib.NewWriter(dst), nil
	default:
		return nil, fmt.Errorf("codec: unknown format %v", format)
	}
}

// DetectFormat resolves the format to use for reading path: extension first
// (spec.md §4.2 "on read, inspect file extension ... and/or magic bytes"),
// falling back to magic-byte sniffing when the extension is absent or not
// one of the recognized compression suffixes.
func DetectFormat(path string, r *bufio.Reader) (Format, error) {
	if f, ok := FormatFromExtension(path); ok {
		return f, nil
	}
	return SniffFormat(r)
}

// AppendCapable reports whether format supports appending to an existing
// stream by seeking to EOF and writing, per spec.md §4.2's contract: only
// plain files are append-capable; every compressed format requires a full
// rewrite (see archivefmt's rewrite-on-compress append path).
func AppendCapable(format Format) bool { return format == Plain }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
