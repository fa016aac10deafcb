package artifacts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// GCSStore writes artifacts to a Google Cloud Storage bucket and serves
// them via the bucket's public URL.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore builds a store for the given bucket. Credentials come from
// ADC unless credJSON carries explicit service-account JSON.
func NewGCSStore(ctx context.Context, bucket, credJSON string) (*GCSStore, error) {
	var client *storage.Client
	var err error
	if strings.TrimSpace(credJSON) != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("gcs bucket %q not accessible: %w", bucket, err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

var _ Store = (*GCSStore)(nil)

func (s *GCSStore) Save(ctx context.Context, data []byte, mimeType, suggestedName string) (*Stored, error) {
	key := objectKey(suggestedName)
	wc := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	wc.ContentType = mimeType
	wc.CacheControl = "public, max-age=86400"
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return nil, fmt.Errorf("write object %s: %w", key, err)
	}
	if err := wc.Close(); err != nil {
		return nil, fmt.Errorf("finalize object %s: %w", key, err)
	}
	return &Stored{
		PublicURL:  fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key),
		StorageKey: key,
	}, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

// objectKey namespaces artifacts by month so bucket listings stay sane.
func objectKey(suggestedName string) string {
	name := strings.TrimLeft(suggestedName, "/")
	if name == "" {
		name = "artifact"
	}
	return fmt.Sprintf("generations/%s/%s-%s", time.Now().UTC().Format("2006-01"), uuid.NewString(), name)
}
