// Package publish uploads run artefacts to S3 compatible object storage.
package publish

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/woozymasta/ipcareas/internal/config"
)

// ContentType is set on every uploaded object.
const ContentType = "application/json"

// ObjectAPI is the subset of the minio client used by Uploader.
type ObjectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader copies files to a bucket under <prefix>/<tag>/.
type Uploader struct {
	Client      ObjectAPI
	Bucket      string
	Prefix      string
	Region      string
	Concurrency int
}

// Result counts upload outcomes.
type Result struct {
	Uploaded int      `json:"uploaded"`
	Failed   int      `json:"failed"`
	Keys     []string `json:"keys"`
}

// New builds an uploader backed by a minio client.
func New(cfg config.Publish) (*Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	return &Uploader{
		Client:      client,
		Bucket:      cfg.Bucket,
		Prefix:      cfg.Prefix,
		Region:      cfg.Region,
		Concurrency: cfg.Concurrency,
	}, nil
}

// ObjectKey returns the object name for a file relative to the data root.
func ObjectKey(prefix, tag, rel string) string {
	return path.Join(strings.Trim(prefix, "/"), tag, filepath.ToSlash(rel))
}

// EnsureBucket creates the bucket when it does not exist.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.Client.BucketExists(ctx, u.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.Bucket, err)
	}
	if exists {
		return nil
	}

	if err := u.Client.MakeBucket(ctx, u.Bucket, minio.MakeBucketOptions{Region: u.Region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", u.Bucket, err)
	}
	log.Info().Str("bucket", u.Bucket).Msg("Created bucket")
	return nil
}

// Publish uploads files (paths under root) tagged with the release tag.
// Individual upload failures are logged and counted; only a bucket
// failure or a cancelled context is returned as an error.
func (u *Uploader) Publish(ctx context.Context, root, tag string, files []string) (Result, error) {
	if err := u.EnsureBucket(ctx); err != nil {
		return Result{}, err
	}

	var (
		mu  sync.Mutex
		res Result
	)

	g, gctx := errgroup.WithContext(ctx)
	if u.Concurrency > 0 {
		g.SetLimit(u.Concurrency)
	}

	for _, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			rel, err := filepath.Rel(root, file)
			if err != nil || strings.HasPrefix(rel, "..") {
				rel = filepath.Base(file)
			}
			key := ObjectKey(u.Prefix, tag, rel)

			_, err = u.Client.FPutObject(gctx, u.Bucket, key, file, minio.PutObjectOptions{ContentType: ContentType})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				log.Warn().Err(err).Str("object", key).Msg("Upload failed")
				return nil
			}
			res.Uploaded++
			res.Keys = append(res.Keys, key)
			log.Debug().Str("object", key).Msg("Uploaded")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("publish: %w", err)
	}
	return res, nil
}
