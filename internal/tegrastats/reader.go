package tegrastats

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const maxLineSize = 1 << 20

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
)

type readOptions struct {
	loc *time.Location
}

type ReadOption func(o *readOptions)

// WithLocation sets the zone the log's timestamps were written in.
func WithLocation(loc *time.Location) ReadOption {
	return func(o *readOptions) { o.loc = loc }
}

// ReadFile parses the log at path. zstd and gzip compressed logs are
// detected by their magic bytes and decompressed on the fly.
func ReadFile(ctx context.Context, path string, opts ...ReadOption) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, closeFn, err := decompress(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer closeFn()

	records, err := ReadAll(ctx, r, opts...)
	if err != nil {
		return records, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

// ReadAll parses every line of r. Blank and unrecognised lines are
// skipped; parsed lines get consecutive arrival indices from zero.
func ReadAll(ctx context.Context, r io.Reader, opts ...ReadOption) ([]Record, error) {
	o := readOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	parser := NewParser(o.loc)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var records []Record
	for lines := 0; scanner.Scan(); lines++ {
		if lines%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return records, err
			}
		}
		rec, ok := parser.Parse(scanner.Text())
		if !ok {
			continue
		}
		rec.ArrivalIndex = len(records)
		records = append(records, rec)
	}
	return records, scanner.Err()
}

func decompress(br *bufio.Reader) (io.Reader, func(), error) {
	head, _ := br.Peek(len(zstdMagic))
	switch {
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return zr, zr.Close, nil
	case bytes.HasPrefix(head, gzipMagic):
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return gr, func() { _ = gr.Close() }, nil
	default:
		return br, func() {}, nil
	}
}
