package publish

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	exists   bool
	existErr error
	made     []string
	objects  map[string]string
	types    map[string]string
	failFor  string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]string{}, types: map[string]string{}}
}

func (f *fakeStore) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.exists, f.existErr
}

func (f *fakeStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	return nil
}

func (f *fakeStore) FPutObject(_ context.Context, _, object, file string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if file == f.failFor {
		return minio.UploadInfo{}, errors.New("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[object] = file
	f.types[object] = opts.ContentType
	return minio.UploadInfo{Key: object}, nil
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, tag, rel, want string
	}{
		{"ipc-areas", "v1.2.0", "KEN/KEN_combined_areas.topojson", "ipc-areas/v1.2.0/KEN/KEN_combined_areas.topojson"},
		{"/ipc-areas/", "main", "index.json", "ipc-areas/main/index.json"},
		{"", "main", "global_areas.topojson", "main/global_areas.topojson"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectKey(tt.prefix, tt.tag, tt.rel))
		})
	}
}

func TestPublish(t *testing.T) {
	root := t.TempDir()
	files := []string{
		filepath.Join(root, "KEN", "KEN_combined_areas.topojson"),
		filepath.Join(root, "global_areas.topojson"),
		filepath.Join(root, "index.json"),
	}

	store := newFakeStore()
	u := &Uploader{Client: store, Bucket: "cdn", Prefix: "ipc-areas", Concurrency: 2}

	res, err := u.Publish(context.Background(), root, "v1.0.0", files)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Uploaded)
	assert.Zero(t, res.Failed)
	assert.Equal(t, []string{"cdn"}, store.made)

	sort.Strings(res.Keys)
	assert.Equal(t, []string{
		"ipc-areas/v1.0.0/KEN/KEN_combined_areas.topojson",
		"ipc-areas/v1.0.0/global_areas.topojson",
		"ipc-areas/v1.0.0/index.json",
	}, res.Keys)
	for _, ct := range store.types {
		assert.Equal(t, ContentType, ct)
	}
}

func TestPublishCountsFailures(t *testing.T) {
	root := t.TempDir()
	bad := filepath.Join(root, "bad.json")

	store := newFakeStore()
	store.exists = true
	store.failFor = bad
	u := &Uploader{Client: store, Bucket: "cdn"}

	res, err := u.Publish(context.Background(), root, "main", []string{bad, filepath.Join(root, "good.json")})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, store.made)
}

func TestPublishBucketError(t *testing.T) {
	store := newFakeStore()
	store.existErr = errors.New("denied")
	u := &Uploader{Client: store, Bucket: "cdn"}

	_, err := u.Publish(context.Background(), t.TempDir(), "main", nil)
	assert.ErrorContains(t, err, "check bucket cdn")
}
