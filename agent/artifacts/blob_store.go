package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/memblob"

	"github.com/BaSui01/finflow/types"
)

// Metadata keys written next to every blob. gocloud lowercases keys.
const (
	metaProducer  = "producer"
	metaKind      = "kind"
	metaChecksum  = "checksum"
	metaCommitted = "committed_at"
)

// BlobStore implements Store on top of a gocloud.dev bucket, so the same code
// serves local directories (file://), memory (mem://) and cloud buckets.
type BlobStore struct {
	bucket *blob.Bucket
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

var _ Store = (*BlobStore)(nil)

// OpenBlobStore opens a bucket by URL, e.g. "mem://" or "file:///tmp/assets".
func OpenBlobStore(ctx context.Context, bucketURL string, logger *zap.Logger) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open artifact bucket %q: %w", bucketURL, err)
	}
	return NewBlobStore(bucket, "", logger), nil
}

// OpenDirStore opens (creating if needed) a directory-backed store.
func OpenDirStore(dir string, logger *zap.Logger) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	bucket, err := fileblob.OpenBucket(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open artifact dir %q: %w", dir, err)
	}
	return NewBlobStore(bucket, "", logger), nil
}

// NewBlobStore wraps an already opened bucket. prefix is prepended to every key.
func NewBlobStore(bucket *blob.Bucket, prefix string, logger *zap.Logger) *BlobStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobStore{
		bucket: bucket,
		prefix: prefix,
		logger: logger.With(zap.String("component", "artifact_store")),
		now:    time.Now,
	}
}

// Commit implements Store. The blob writer only publishes the object on a
// successful Close, so readers never observe partial content.
func (s *BlobStore) Commit(ctx context.Context, producer, locator string, kind ContentKind, data []byte) (*Ref, error) {
	loc, err := NormalizeLocator(locator)
	if err != nil {
		return nil, err
	}
	if err := ValidateContent(kind, data); err != nil {
		return nil, fmt.Errorf("commit %q: %w", loc, err)
	}

	ref := &Ref{
		Producer:    producer,
		Locator:     loc,
		Kind:        kind,
		Size:        int64(len(data)),
		Checksum:    Checksum(data),
		CommittedAt: s.now().UTC(),
	}
	opts := &blob.WriterOptions{
		ContentType: kind.ContentType(),
		Metadata: map[string]string{
			metaProducer:  producer,
			metaKind:      string(kind),
			metaChecksum:  ref.Checksum,
			metaCommitted: strconv.FormatInt(ref.CommittedAt.UnixNano(), 10),
		},
	}
	if err := s.bucket.WriteAll(ctx, s.key(loc), data, opts); err != nil {
		return nil, types.NewTransient(err, "write artifact %q", loc)
	}

	s.logger.Debug("artifact committed",
		zap.String("locator", loc),
		zap.String("producer", producer),
		zap.Int64("size", ref.Size),
	)
	return ref, nil
}

// readAttempts bounds how often Read re-reads an artifact that was replaced
// between its attribute and content fetches.
const readAttempts = 3

// Read implements Store. The returned Ref always describes the returned bytes.
func (s *BlobStore) Read(ctx context.Context, locator string) ([]byte, *Ref, error) {
	var (
		data []byte
		ref  *Ref
	)
	for i := 0; i < readAttempts; i++ {
		var err error
		if ref, err = s.Stat(ctx, locator); err != nil {
			return nil, nil, err
		}
		if data, err = s.bucket.ReadAll(ctx, s.key(ref.Locator)); err != nil {
			return nil, nil, s.mapErr(ref.Locator, err)
		}
		if ref.Checksum == Checksum(data) {
			return data, ref, nil
		}
	}

	s.logger.Debug("artifact changed while reading",
		zap.String("locator", ref.Locator),
		zap.String("metadata_checksum", ref.Checksum),
	)
	ref.Size = int64(len(data))
	ref.Checksum = Checksum(data)
	return data, ref, nil
}

// Stat implements Store.
func (s *BlobStore) Stat(ctx context.Context, locator string) (*Ref, error) {
	loc, err := NormalizeLocator(locator)
	if err != nil {
		return nil, err
	}
	attrs, err := s.bucket.Attributes(ctx, s.key(loc))
	if err != nil {
		return nil, s.mapErr(loc, err)
	}
	return refFromAttributes(loc, attrs), nil
}

// List implements Store.
func (s *BlobStore) List(ctx context.Context, prefix string) ([]*Ref, error) {
	iter := s.bucket.List(&blob.ListOptions{Prefix: s.prefix + prefix})
	var refs []*Ref
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list artifacts: %w", err)
		}
		if obj.IsDir {
			continue
		}
		loc := obj.Key[len(s.prefix):]
		ref, err := s.Stat(ctx, loc)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Delete implements Store.
func (s *BlobStore) Delete(ctx context.Context, locator string) error {
	loc, err := NormalizeLocator(locator)
	if err != nil {
		return err
	}
	err = s.bucket.Delete(ctx, s.key(loc))
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

// Close releases the bucket.
func (s *BlobStore) Close() error {
	return s.bucket.Close()
}

func (s *BlobStore) key(loc string) string {
	return s.prefix + loc
}

func (s *BlobStore) mapErr(loc string, err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return types.NewError(types.ErrArtifactNotFound, fmt.Sprintf("artifact %q not found", loc)).WithCause(err)
	}
	return types.NewTransient(err, "read artifact %q", loc)
}

func refFromAttributes(loc string, attrs *blob.Attributes) *Ref {
	ref := &Ref{
		Producer:    attrs.Metadata[metaProducer],
		Locator:     loc,
		Kind:        ContentKind(attrs.Metadata[metaKind]),
		Size:        attrs.Size,
		Checksum:    attrs.Metadata[metaChecksum],
		CommittedAt: attrs.ModTime.UTC(),
	}
	if ns, err := strconv.ParseInt(attrs.Metadata[metaCommitted], 10, 64); err == nil {
		ref.CommittedAt = time.Unix(0, ns).UTC()
	}
	if ref.Kind == "" {
		ref.Kind = KindForLocator(loc)
	}
	return ref
}
