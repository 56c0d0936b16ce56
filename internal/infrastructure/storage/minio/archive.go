package minio

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

const (
	metaFingerprint = "Fingerprint"
	metaKind        = "Kind"
)

// ArchivedObject describes one stored page.
type ArchivedObject struct {
	Fingerprint  string    `json:"url_fingerprint"`
	Kind         string    `json:"kind"`
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ContentArchive stores page content under "<fingerprint>/<kind>". A later
// analysis of the same URL overwrites the earlier object.
type ContentArchive struct {
	client *MinIOClient
	logger logging.Logger
}

// NewContentArchive archives into client's bucket.
func NewContentArchive(client *MinIOClient, log logging.Logger) *ContentArchive {
	return &ContentArchive{client: client, logger: log}
}

func objectKey(fingerprint, kind string) string {
	return path.Join(fingerprint, kind)
}

func contentTypeFor(kind string) string {
	if strings.HasSuffix(kind, "_html") {
		return "text/html; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}

// Archive uploads content. Empty content is skipped.
func (a *ContentArchive) Archive(ctx context.Context, fingerprint, kind string, content []byte) error {
	if fingerprint == "" || kind == "" {
		return errors.New(errors.ErrCodeValidation, "fingerprint and kind are required")
	}
	if len(content) == 0 {
		return nil
	}

	key := objectKey(fingerprint, kind)
	opts := minio.PutObjectOptions{
		ContentType: contentTypeFor(kind),
		UserMetadata: map[string]string{
			metaFingerprint: fingerprint,
			metaKind:        kind,
		},
	}
	info, err := a.client.client.PutObject(ctx, a.client.config.Bucket, key, bytes.NewReader(content), int64(len(content)), opts)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "archive upload failed").WithDetail(key)
	}
	a.logger.Debug("Content archived",
		logging.String("key", key),
		logging.Int64("size", info.Size))
	return nil
}

// Fetch returns archived content, or a not-found error.
func (a *ContentArchive) Fetch(ctx context.Context, fingerprint, kind string) ([]byte, error) {
	key := objectKey(fingerprint, kind)
	obj, err := a.client.client.GetObject(ctx, a.client.config.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "archive download failed").WithDetail(key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errors.NotFound("archived content not found").WithDetail(key)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "archive download failed").WithDetail(key)
	}
	return data, nil
}

// List returns every archived kind for fingerprint.
func (a *ContentArchive) List(ctx context.Context, fingerprint string) ([]ArchivedObject, error) {
	ch := a.client.client.ListObjects(ctx, a.client.config.Bucket, minio.ListObjectsOptions{
		Prefix:    fingerprint + "/",
		Recursive: true,
	})
	var out []ArchivedObject
	for obj := range ch {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorage, "archive listing failed")
		}
		out = append(out, ArchivedObject{
			Fingerprint:  fingerprint,
			Kind:         path.Base(obj.Key),
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return out, nil
}
