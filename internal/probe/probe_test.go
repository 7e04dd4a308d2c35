package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProbeCollectsValidators(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("Last-Modified", "Mon, 02 Mar 2026 08:00:00 GMT")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	p := New(Config{UserAgent: "pagewatch-test", Timeout: 5 * time.Second})
	validators, err := p.Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, `"abc123"`, validators.ETag)
	require.Equal(t, "Mon, 02 Mar 2026 08:00:00 GMT", validators.LastModified)
}

func TestProbeMissingValidators(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p := New(Config{})
	validators, err := p.Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Empty(t, validators.ETag)
	require.Empty(t, validators.LastModified)
}

func TestProbeServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(Config{})
	_, err := p.Probe(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestProbeUnreachableHost(t *testing.T) {
	t.Parallel()

	p := New(Config{Timeout: time.Second})
	_, err := p.Probe(context.Background(), "http://127.0.0.1:1/never")
	require.Error(t, err)
}
