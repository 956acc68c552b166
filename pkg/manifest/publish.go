package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrNoBucket is returned by Publish when no bucket is configured.
var ErrNoBucket = errors.New("manifest: no bucket configured")

// ObjectPutter is the part of the S3 API the publisher uses.
// *s3.Client implements it.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher uploads manifests to an S3 bucket.
//
// Every manifest is written twice: under Key, which always holds the latest
// schema, and under a versioned key that embeds the fingerprint, e.g.
// "pipwire/schema.3f2a...json" for Key "pipwire/schema.json".
type Publisher struct {
	client ObjectPutter
	bucket string
	key    string
}

// NewPublisher creates a publisher writing to bucket under key.
func NewPublisher(client ObjectPutter, bucket, key string) *Publisher {
	return &Publisher{client: client, bucket: bucket, key: key}
}

// NewS3Client returns an S3 client for region. Credentials come from the
// default AWS chain: environment, shared config files, then instance roles.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("manifest: load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// VersionedKey returns the key a manifest with the given fingerprint is
// stored under next to key.
func VersionedKey(key, fingerprint string) string {
	ext := path.Ext(key)
	if ext == "" {
		ext = ".json"
	}
	return strings.TrimSuffix(key, path.Ext(key)) + "." + fingerprint + ext
}

// Publish uploads m and returns the keys it was written to.
func (p *Publisher) Publish(ctx context.Context, m Manifest) ([]string, error) {
	if p.bucket == "" {
		return nil, ErrNoBucket
	}
	data, err := m.JSON()
	if err != nil {
		return nil, err
	}

	keys := []string{p.key, VersionedKey(p.key, m.Fingerprint)}
	for _, key := range keys {
		_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(p.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
			Metadata: map[string]string{
				"fingerprint": m.Fingerprint,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("manifest: put s3://%s/%s: %w", p.bucket, key, err)
		}
	}
	return keys, nil
}
