package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectReturnsURI(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	uri, err := s.PutObject(context.Background(), "captures/p/r/full.png", "image/png", []byte("data"))
	require.NoError(t, err)
	require.Equal(t, "memory://captures/p/r/full.png", uri)

	got, ok := s.Get("captures/p/r/full.png")
	require.True(t, ok)
	require.Equal(t, []byte("data"), got)
	require.Equal(t, 1, s.Len())
}

func TestPutObjectCopiesData(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	data := []byte("original")
	_, err := s.PutObject(context.Background(), "obj", "application/octet-stream", data)
	require.NoError(t, err)

	data[0] = 'X'
	got, ok := s.Get("obj")
	require.True(t, ok)
	require.Equal(t, []byte("original"), got)
}

func TestPutObjectOverwrites(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	ctx := context.Background()
	_, err := s.PutObject(ctx, "obj", "text/plain", []byte("one"))
	require.NoError(t, err)
	_, err = s.PutObject(ctx, "obj", "text/plain", []byte("two"))
	require.NoError(t, err)

	got, _ := s.Get("obj")
	require.Equal(t, []byte("two"), got)
	require.Equal(t, 1, s.Len())
}
