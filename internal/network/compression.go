// Package network provides the HTTP plumbing of registry fetches: a client
// whose transport negotiates and undoes response compression.
package network

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

const acceptEncoding = "br, gzip, identity"

var (
	gzipPool = sync.Pool{New: func() interface{} { return new(gzip.Reader) }}
	// brotli.NewReader(nil) yields a reader ready for Reset.
	brotliPool = sync.Pool{New: func() interface{} { return brotli.NewReader(nil) }}
)

// CompressionMiddleware is an http.RoundTripper that advertises br and gzip
// and transparently decodes the response body.
type CompressionMiddleware struct {
	Transport http.RoundTripper
}

// NewCompressionMiddleware wraps transport, or http.DefaultTransport when nil.
func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

func (m *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		// RoundTrippers must not mutate the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	resp, err := m.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := Decompress(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("decoding response from %s: %w", req.URL.Host, err)
	}
	return resp, nil
}

// decoder closes both the decoding layer and the body beneath it, and hands
// pooled readers back.
type decoder struct {
	io.Reader
	under   io.ReadCloser
	release func()
}

func (d *decoder) Close() error {
	var err error
	if c, ok := d.Reader.(io.Closer); ok {
		err = c.Close()
	}
	if d.release != nil {
		d.release()
		d.release = nil
	}
	return errors.Join(err, d.under.Close())
}

// Decompress replaces resp.Body with a decoding reader according to its
// Content-Encoding layers, applied in reverse. On error the body may be
// partially consumed and should be discarded.
func Decompress(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	layers := resp.Header.Values("Content-Encoding")
	if len(layers) == 0 {
		return nil
	}

	for i := len(layers) - 1; i >= 0; i-- {
		for _, enc := range splitEncodings(layers[i]) {
			d, err := wrap(enc, resp.Body)
			if err != nil {
				return err
			}
			if d != nil {
				resp.Body = d
			}
		}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// splitEncodings handles "gzip, br" in a single header value. The result is
// in decode order.
func splitEncodings(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for i := len(parts) - 1; i >= 0; i-- {
		out = append(out, strings.ToLower(strings.TrimSpace(parts[i])))
	}
	return out
}

func wrap(enc string, body io.ReadCloser) (*decoder, error) {
	switch enc {
	case "", "identity":
		return nil, nil
	case "gzip", "x-gzip":
		zr := gzipPool.Get().(*gzip.Reader)
		if err := zr.Reset(body); err != nil {
			gzipPool.Put(zr)
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return &decoder{Reader: zr, under: body, release: func() { gzipPool.Put(zr) }}, nil
	case "br":
		br := brotliPool.Get().(*brotli.Reader)
		if err := br.Reset(body); err != nil {
			brotliPool.Put(br)
			return nil, fmt.Errorf("brotli: %w", err)
		}
		return &decoder{Reader: br, under: body, release: func() {
			_ = br.Reset(strings.NewReader(""))
			brotliPool.Put(br)
		}}, nil
	}
	return nil, fmt.Errorf("unsupported Content-Encoding %q", enc)
}
