package bundle

import (
	"bytes"
	"context"
	"io"

	"golang.org/x/mod/sumdb/dirhash"
)

// Sum returns the "h1:" fingerprint of files as read from src, in the format
// go.sum uses for module trees. The order of files does not matter.
func Sum(ctx context.Context, src Source, files []string) (string, error) {
	return dirhash.Hash1(files, func(name string) (io.ReadCloser, error) {
		data, err := src.ReadFile(ctx, name)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}
