package gcs

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	bytes.Buffer
	writeErr error
	closeErr error
	closed   bool
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.Buffer.Write(p)
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func newFakeStore(w *fakeWriter, seen *[]string) *BlobStore {
	return &BlobStore{
		bucket: "festivals",
		newWriter: func(_ context.Context, bucket, path, contentType string) objectWriter {
			*seen = append(*seen, bucket+"|"+path+"|"+contentType)
			return w
		},
	}
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	var seen []string
	store := newFakeStore(w, &seen)

	uri, err := store.PutObject(context.Background(), "/pages/example.com/abc.html", "text/html", strings.NewReader("<html/>"))
	require.NoError(t, err)
	assert.Equal(t, "gs://festivals/pages/example.com/abc.html", uri)
	assert.Equal(t, []string{"festivals|pages/example.com/abc.html|text/html"}, seen)
	assert.Equal(t, "<html/>", w.String())
	assert.True(t, w.closed)
}

func TestPutObjectErrors(t *testing.T) {
	t.Parallel()

	var seen []string
	_, err := newFakeStore(&fakeWriter{}, &seen).PutObject(context.Background(), "", "", strings.NewReader("x"))
	require.Error(t, err)

	w := &fakeWriter{writeErr: errors.New("quota")}
	_, err = newFakeStore(w, &seen).PutObject(context.Background(), "a", "", strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, w.closed, "writer closed after failed copy")

	w = &fakeWriter{closeErr: errors.New("precondition failed")}
	_, err = newFakeStore(w, &seen).PutObject(context.Background(), "a", "", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "precondition failed")
}

func TestConstructorValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithClient(nil, Config{Bucket: "b"})
	require.Error(t, err)
	_, err = New(context.Background(), Config{})
	require.Error(t, err)
	assert.NoError(t, (&BlobStore{}).Close())
}
