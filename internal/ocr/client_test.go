package ocr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

func TestRecognize(t *testing.T) {
	t.Parallel()

	var gotBody []byte
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"Sign in to continue"}`))
	}))
	defer srv.Close()

	client, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	text, err := client.Recognize(context.Background(), []byte("png-bytes"))
	require.NoError(t, err)
	require.Equal(t, "Sign in to continue", text)
	require.Equal(t, []byte("png-bytes"), gotBody)
	require.Equal(t, "application/octet-stream", gotContentType)
}

func TestRecognizeServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = client.Recognize(context.Background(), []byte("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}

func TestRecognizeMalformedResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = client.Recognize(context.Background(), []byte("x"))
	require.Error(t, err)
}

func TestRecognizeRespectsContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Recognize(ctx, []byte("x"))
	require.Error(t, err)
}
