// Package fetch opens remote and local resources by URL.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrNotFound is returned when the resource does not exist at the given URL.
// For HTTP this covers every 4xx status.
var ErrNotFound = errors.New("resource not found")

// Resource is an opened resource. The caller must close it.
type Resource struct {
	io.ReadCloser
	// URL is the final URL after redirects.
	URL string
	// Header holds the response headers. It is empty for file resources.
	Header http.Header
	// Size is the announced content length, or -1 if unknown.
	Size int64
}

// Fetcher opens resources.
type Fetcher interface {
	Open(ctx context.Context, url string) (*Resource, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (*Resource, error)

func (f FetcherFunc) Open(ctx context.Context, url string) (*Resource, error) {
	return f(ctx, url)
}

// Bytes reads the whole resource at url.
func Bytes(ctx context.Context, f Fetcher, url string) ([]byte, http.Header, error) {
	res, err := f.Open(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	defer res.Close()
	data, err := io.ReadAll(res)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", url, err)
	}
	return data, res.Header, nil
}

// Text reads the whole resource at url as a string.
func Text(ctx context.Context, f Fetcher, url string) (string, error) {
	data, _, err := Bytes(ctx, f, url)
	return string(data), err
}
