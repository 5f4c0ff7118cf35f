package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/BaSui01/finflow/types"
)

func newMemStore(t *testing.T) *BlobStore {
	t.Helper()
	s, err := OpenBlobStore(context.Background(), "mem://", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBlobStore_CommitReadStat(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)

	data := []byte(`[{"title":"Tesla rallies","url":"https://example.com/a"}]`)
	ref, err := s.Commit(ctx, "retrieve_news_task", "news/news_urls.json", KindStructured, data)
	require.NoError(t, err)
	assert.Equal(t, "news/news_urls.json", ref.Locator)
	assert.Equal(t, int64(len(data)), ref.Size)
	assert.Equal(t, Checksum(data), ref.Checksum)

	got, readRef, err := s.Read(ctx, "./news/news_urls.json")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "retrieve_news_task", readRef.Producer)
	assert.Equal(t, KindStructured, readRef.Kind)
	assert.Equal(t, ref.Checksum, readRef.Checksum)
	assert.True(t, ref.CommittedAt.Equal(readRef.CommittedAt))
}

func TestBlobStore_ReadRefMatchesContent(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	s := NewBlobStore(bucket, "", zap.NewNop())
	t.Cleanup(func() { _ = s.Close() })

	_, err := s.Commit(ctx, "news_merger_task", "report.md", KindText, []byte("# first draft"))
	require.NoError(t, err)

	// Replace the content while keeping the old metadata, as a concurrent
	// writer landing between the attribute and content fetches would.
	attrs, err := bucket.Attributes(ctx, "report.md")
	require.NoError(t, err)
	replaced := []byte("# second draft, longer")
	require.NoError(t, bucket.WriteAll(ctx, "report.md", replaced, &blob.WriterOptions{Metadata: attrs.Metadata}))

	got, ref, err := s.Read(ctx, "report.md")
	require.NoError(t, err)
	assert.Equal(t, replaced, got)
	assert.Equal(t, int64(len(replaced)), ref.Size)
	assert.Equal(t, Checksum(replaced), ref.Checksum)
	assert.Equal(t, "news_merger_task", ref.Producer)
}

func TestBlobStore_MissingArtifact(t *testing.T) {
	s := newMemStore(t)

	_, _, err := s.Read(context.Background(), "report.md")
	require.Error(t, err)
	assert.Equal(t, types.ErrArtifactNotFound, types.GetErrorCode(err))

	assert.NoError(t, s.Delete(context.Background(), "report.md"))
}

func TestBlobStore_RejectsInvalidStructuredContent(t *testing.T) {
	s := newMemStore(t)
	_, err := s.Commit(context.Background(), "t", "news/news_scraped.json", KindStructured, []byte("not json"))
	assert.Error(t, err)
}

func TestBlobStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)

	for _, loc := range []string{"news/a.json", "news/b.json", "images/chart.md"} {
		_, err := s.Commit(ctx, "p", loc, KindForLocator(loc), []byte(`{}`))
		require.NoError(t, err)
	}

	refs, err := s.List(ctx, "news/")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "news/a.json", refs[0].Locator)

	require.NoError(t, s.Delete(ctx, "news/a.json"))
	refs, err = s.List(ctx, "news/")
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestBlobStore_DirectoryBacked(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "assets")
	s, err := OpenDirStore(dir, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Commit(context.Background(), "news_merger_task", "report.md", KindText, []byte("# Report"))
	require.NoError(t, err)

	onDisk, err := os.ReadFile(filepath.Join(dir, "report.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Report", string(onDisk))
}

func TestNormalizeLocator(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"report.md", "report.md", true},
		{"./news/news_article.md", "news/news_article.md", true},
		{`\assets\images`, "", false},
		{`assets\images\chart.md`, "assets/images/chart.md", true},
		{"/etc/passwd", "", false},
		{"../outside.md", "", false},
		{"news/../../x", "", false},
		{"  ", "", false},
	}
	for _, tt := range tests {
		got, err := NormalizeLocator(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
