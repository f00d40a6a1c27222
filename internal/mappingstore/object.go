package mappingstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	cberrors "crossbridge/internal/errors"
)

// ObjectConfig addresses an S3-compatible bucket
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	Prefix    string
}

// Validate checks the required fields
func (c ObjectConfig) Validate() error {
	if c.Endpoint == "" {
		return errors.New("object store endpoint is required")
	}
	if c.Bucket == "" {
		return errors.New("object store bucket is required")
	}
	return nil
}

// objectAPI is the slice of an object store the backend needs
type objectAPI interface {
	get(ctx context.Context, key string) ([]byte, bool, error)
	put(ctx context.Context, key string, data []byte) error
	remove(ctx context.Context, key string) error
	// list returns keys under prefix; with recursive false, "directories"
	// come back as keys ending in "/"
	list(ctx context.Context, prefix string, recursive bool) ([]string, error)
}

// ObjectBackend stores one object per record under
// <prefix>/<run id>/<test id>.json. Object stores have no multi-object
// transactions, so Put restores the previous objects if any write fails.
type ObjectBackend struct {
	api    objectAPI
	bucket string
	prefix string
}

var _ Backend = (*ObjectBackend)(nil)

// NewObjectBackend connects to the bucket, creating it if missing
func NewObjectBackend(ctx context.Context, cfg ObjectConfig) (*ObjectBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, cberrors.NewStorageError("failed to create object store client", err)
	}
	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region); err != nil {
		return nil, cberrors.NewStorageError("failed to ensure bucket "+cfg.Bucket, err)
	}

	return newObjectBackend(&minioAPI{client: client, bucket: cfg.Bucket}, cfg.Bucket, cfg.Prefix), nil
}

func newObjectBackend(api objectAPI, bucket, prefix string) *ObjectBackend {
	return &ObjectBackend{api: api, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func (b *ObjectBackend) runPrefix(runID string) string {
	return path.Join(b.prefix, escapeName(runID)) + "/"
}

func (b *ObjectBackend) key(runID, testID string) string {
	return b.runPrefix(runID) + escapeName(testID) + recordExt
}

// Location returns the object URL-ish name
func (b *ObjectBackend) Location(runID, testID string) string {
	return "s3://" + b.bucket + "/" + b.key(runID, testID)
}

// Get reads one record object
func (b *ObjectBackend) Get(ctx context.Context, runID, testID string) ([]byte, error) {
	data, ok, err := b.api.get(ctx, b.key(runID, testID))
	if err != nil {
		return nil, cberrors.NewStorageError("failed to read mapping record", err)
	}
	if !ok {
		return nil, nil
	}
	return data, nil
}

// Put writes every blob. On failure, objects already written are put back
// to their previous content or removed.
func (b *ObjectBackend) Put(ctx context.Context, runID string, blobs []Blob) error {
	type prior struct {
		key    string
		data   []byte
		exists bool
	}
	var done []prior

	restore := func() {
		// compensation must run even when ctx is what failed
		rctx := context.WithoutCancel(ctx)
		for i := len(done) - 1; i >= 0; i-- {
			p := done[i]
			if p.exists {
				_ = b.api.put(rctx, p.key, p.data)
			} else {
				_ = b.api.remove(rctx, p.key)
			}
		}
	}

	for _, blob := range blobs {
		key := b.key(runID, blob.TestID)
		old, exists, err := b.api.get(ctx, key)
		if err != nil {
			restore()
			return cberrors.NewStorageError("failed to read mapping record", err)
		}
		if err := b.api.put(ctx, key, blob.Data); err != nil {
			restore()
			return cberrors.NewStorageError(fmt.Sprintf("failed to write %s", key), err)
		}
		done = append(done, prior{key: key, data: old, exists: exists})
	}
	return nil
}

// List reads every record object of a run ordered by test id
func (b *ObjectBackend) List(ctx context.Context, runID string) ([]Blob, error) {
	prefix := b.runPrefix(runID)
	keys, err := b.api.list(ctx, prefix, true)
	if err != nil {
		return nil, cberrors.NewStorageError("failed to list mapping records", err)
	}

	blobs := make([]Blob, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimPrefix(key, prefix)
		if strings.Contains(name, "/") || !strings.HasSuffix(name, recordExt) {
			continue
		}
		testID, err := url.QueryUnescape(strings.TrimSuffix(name, recordExt))
		if err != nil {
			return nil, cberrors.NewDeserializationError("s3://"+b.bucket+"/"+key, fmt.Errorf("bad record object name: %w", err))
		}
		data, ok, err := b.api.get(ctx, key)
		if err != nil {
			return nil, cberrors.NewStorageError("failed to read mapping record", err)
		}
		if !ok {
			// removed between list and get
			continue
		}
		blobs = append(blobs, Blob{TestID: testID, Data: data})
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].TestID < blobs[j].TestID })
	return blobs, nil
}

// Runs lists the run "directories" under the prefix
func (b *ObjectBackend) Runs(ctx context.Context) ([]string, error) {
	root := ""
	if b.prefix != "" {
		root = b.prefix + "/"
	}
	keys, err := b.api.list(ctx, root, false)
	if err != nil {
		return nil, cberrors.NewStorageError("failed to list runs", err)
	}

	runs := make([]string, 0, len(keys))
	for _, key := range keys {
		if !strings.HasSuffix(key, "/") {
			continue
		}
		runID, err := url.QueryUnescape(strings.TrimSuffix(strings.TrimPrefix(key, root), "/"))
		if err != nil {
			continue
		}
		runs = append(runs, runID)
	}
	sort.Strings(runs)
	return runs, nil
}

// minioAPI implements objectAPI with minio-go
type minioAPI struct {
	client *minio.Client
	bucket string
}

func (m *minioAPI) get(ctx context.Context, key string) ([]byte, bool, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (m *minioAPI) put(ctx context.Context, key string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (m *minioAPI) remove(ctx context.Context, key string) error {
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

func (m *minioAPI) list(ctx context.Context, prefix string, recursive bool) ([]string, error) {
	var keys []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: recursive}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
