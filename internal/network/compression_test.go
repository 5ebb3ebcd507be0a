package network

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = `[{"id":"shop-1","envId":"shop-1","difficulty":"Easy"}]`

func encode(t *testing.T, enc, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch enc {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "br":
		w = brotli.NewWriter(&buf)
	default:
		t.Fatalf("unsupported encoding %s", enc)
	}
	_, err := w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestCompressionMiddleware(t *testing.T) {
	for _, enc := range []string{"gzip", "br"} {
		t.Run(enc, func(t *testing.T) {
			body := encode(t, enc, payload)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, acceptEncoding, r.Header.Get("Accept-Encoding"))
				w.Header().Set("Content-Encoding", enc)
				_, _ = w.Write(body)
			}))
			defer srv.Close()

			client := &http.Client{Transport: NewCompressionMiddleware(&http.Transport{DisableCompression: true})}
			resp, err := client.Get(srv.URL)
			require.NoError(t, err)
			defer resp.Body.Close()

			got, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, payload, string(got))
			assert.Empty(t, resp.Header.Get("Content-Encoding"))
			assert.True(t, resp.Uncompressed)
		})
	}
}

func TestDecompress_Layers(t *testing.T) {
	inner := encode(t, "gzip", payload)
	outer := encode(t, "br", string(inner))

	resp := &http.Response{Header: http.Header{}, Body: io.NopCloser(bytes.NewReader(outer))}
	resp.Header.Set("Content-Encoding", "gzip, br")

	require.NoError(t, Decompress(resp))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
	require.NoError(t, resp.Body.Close())
}

func TestDecompress_Unsupported(t *testing.T) {
	resp := &http.Response{Header: http.Header{}, Body: io.NopCloser(strings.NewReader("x"))}
	resp.Header.Set("Content-Encoding", "zstd")
	err := Decompress(resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zstd")
}

func TestDecompress_Identity(t *testing.T) {
	resp := &http.Response{Header: http.Header{}, Body: io.NopCloser(strings.NewReader(payload))}
	resp.Header.Set("Content-Encoding", "identity")
	require.NoError(t, Decompress(resp))
	got, _ := io.ReadAll(resp.Body)
	assert.Equal(t, payload, string(got))
}

func TestNewClient_UserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{RequestTimeout: time.Second, UserAgent: "scalewob/test"})
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	got, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "scalewob/test", string(got))
	assert.Equal(t, time.Second, client.Timeout)
}
