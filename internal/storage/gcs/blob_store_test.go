package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "artifacts", Prefix: "/gramcrawl/"})
	require.NoError(t, err)
	require.Equal(t, "gs://artifacts/gramcrawl/runs/r1/REPORT", store.URI("runs/r1/REPORT"))

	_, err = store.PutObject(context.Background(), "  ", "text/plain", nil)
	require.Error(t, err)
}
