package fetch_test

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocm.software/open-component-model/bindings/go/maven/fetch"
)

func newClient() *fetch.Client {
	return fetch.NewClient(fetch.WithRetries(fetch.DefaultMaxRetries, time.Millisecond, 5*time.Millisecond))
}

func TestClient_Plain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip, deflate", r.Header.Get("Accept-Encoding"))
		w.Header().Set("X-Checksum-Sha1", "abc")
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	data, header, err := fetch.Bytes(t.Context(), newClient(), srv.URL+"/a.pom")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "abc", header.Get("X-Checksum-Sha1"))
}

func TestClient_Decoding(t *testing.T) {
	tests := []struct {
		encoding string
		encode   func([]byte) []byte
	}{
		{
			encoding: "gzip",
			encode: func(b []byte) []byte {
				var buf bytes.Buffer
				w := gzip.NewWriter(&buf)
				_, _ = w.Write(b)
				_ = w.Close()
				return buf.Bytes()
			},
		},
		{
			encoding: "deflate",
			encode: func(b []byte) []byte {
				var buf bytes.Buffer
				w := zlib.NewWriter(&buf)
				_, _ = w.Write(b)
				_ = w.Close()
				return buf.Bytes()
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.encoding, func(t *testing.T) {
			payload := []byte("<project><artifactId>a</artifactId></project>")
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", tc.encoding)
				_, _ = w.Write(tc.encode(payload))
			}))
			defer srv.Close()

			got, err := fetch.Text(t.Context(), newClient(), srv.URL)
			require.NoError(t, err)
			assert.Equal(t, string(payload), got)
		})
	}
}

func TestClient_NotFound(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusUnauthorized} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer srv.Close()

			_, err := newClient().Open(t.Context(), srv.URL+"/missing.pom")
			require.ErrorIs(t, err, fetch.ErrNotFound)
		})
	}
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	got, err := fetch.Text(t.Context(), newClient(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_ServerErrorIsNotNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newClient().Open(t.Context(), srv.URL)
	require.Error(t, err)
	assert.NotErrorIs(t, err, fetch.ErrNotFound)
}

func TestClient_Redirects(t *testing.T) {
	mux := http.NewServeMux()
	for i := range 10 {
		mux.HandleFunc(fmt.Sprintf("/r%d", i), func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, fmt.Sprintf("/r%d", i+1), http.StatusFound)
		})
	}
	mux.HandleFunc("/r10", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("final"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := newClient().Open(t.Context(), srv.URL+"/r5")
	require.NoError(t, err, "five redirects are followed")
	defer res.Close()
	assert.Equal(t, srv.URL+"/r10", res.URL)

	_, err = newClient().Open(t.Context(), srv.URL+"/r4")
	require.Error(t, err, "six redirects are too many")
}

func TestClient_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a-1.0.pom")
	require.NoError(t, os.WriteFile(path, []byte("pom"), 0o644))

	res, err := newClient().Open(t.Context(), "file:"+path)
	require.NoError(t, err)
	defer res.Close()
	assert.EqualValues(t, 3, res.Size)

	_, err = newClient().Open(t.Context(), "file:"+filepath.Join(dir, "missing.pom"))
	require.ErrorIs(t, err, fetch.ErrNotFound)
}

func TestClient_UnsupportedScheme(t *testing.T) {
	_, err := newClient().Open(t.Context(), "ftp://example.com/a.pom")
	require.Error(t, err)
	assert.NotErrorIs(t, err, fetch.ErrNotFound)
}
