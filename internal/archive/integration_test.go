package archive

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/visnote/internal/note"
)

// Postgres and S3 backends need live services; these tests run only when the
// matching environment variables point at one.

func TestPostgres_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := os.Getenv("VISNOTE_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("VISNOTE_TEST_POSTGRES_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := OpenPostgres(ctx, url)
	require.NoError(t, err)
	defer p.Close()

	a := New(p, Options{Name: "test-" + time.Now().Format("150405.000"), Authorizer: NewTokenAuthorizer(testToken)})
	want := sampleSequence()
	require.NoError(t, a.WriteAll(ctx, testToken, want))

	got, err := a.ReadAll(ctx, testToken)
	require.NoError(t, err)
	assertSameSequence(t, want, got)

	doc, err := note.Encode(want)
	require.NoError(t, err)
	raw, err := p.Get(ctx, a.Name())
	require.NoError(t, err)
	assert.Equal(t, string(doc), string(raw), "stored document keeps its formatting")
}

func TestS3_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	endpoint := os.Getenv("VISNOTE_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("VISNOTE_TEST_S3_ENDPOINT not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := NewS3(ctx, S3Config{
		Endpoint:  endpoint,
		Bucket:    "visnote-test",
		AccessKey: os.Getenv("VISNOTE_TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("VISNOTE_TEST_S3_SECRET_KEY"),
	})
	require.NoError(t, err)

	a := New(s, Options{Name: "test-" + time.Now().Format("150405.000"), Authorizer: NewTokenAuthorizer(testToken)})

	empty, err := a.ReadAll(ctx, testToken)
	require.NoError(t, err)
	require.Empty(t, empty)

	want := sampleSequence()
	require.NoError(t, a.WriteAll(ctx, testToken, want))
	got, err := a.ReadAll(ctx, testToken)
	require.NoError(t, err)
	assertSameSequence(t, want, got)
}
