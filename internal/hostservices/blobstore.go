package hostservices

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// BlobStore implements the wasi-blobstore host contract: containers are
// flat object namespaces (unlike KeyValueService's buckets, a container
// can be created and dropped independently of any object inside it).
type BlobStore interface {
	CreateContainer(ctx context.Context, name string) error
	ContainerExists(ctx context.Context, name string) (bool, error)
	DeleteContainer(ctx context.Context, name string) error

	WriteObject(ctx context.Context, container, name string, data []byte) error
	ReadObject(ctx context.Context, container, name string) ([]byte, error)
	DeleteObject(ctx context.Context, container, name string) error
	ListObjects(ctx context.Context, container string) ([]string, error)
}

// S3BlobStore maps containers to key prefixes within a single bucket,
// following payloadstore.S3Store's client setup (aws-sdk-go-v2/config +
// credentials via the default chain) but exposing the richer
// container/object surface wasi-blobstore needs rather than payload
// upload/download's single-ref shape.
type S3BlobStore struct {
	client *s3.Client
	bucket string
}

func NewS3BlobStore(client *s3.Client, bucket string) *S3BlobStore {
	return &S3BlobStore{client: client, bucket: bucket}
}

func (b *S3BlobStore) containerMarker(name string) string {
	return name + "/.container"
}

func (b *S3BlobStore) objectKey(container, name string) string {
	return container + "/" + name
}

// CreateContainer writes a zero-byte marker object, since S3 has no native
// notion of an empty directory; ContainerExists/DeleteContainer key off it.
func (b *S3BlobStore) CreateContainer(ctx context.Context, name string) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.containerMarker(name)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("create container %s: %w", name, err)
	}
	return nil
}

func (b *S3BlobStore) ContainerExists(ctx context.Context, name string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.containerMarker(name)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("check container %s: %w", name, err)
	}
	return true, nil
}

func (b *S3BlobStore) DeleteContainer(ctx context.Context, name string) error {
	objects, err := b.ListObjects(ctx, name)
	if err != nil {
		return err
	}
	for _, obj := range objects {
		if err := b.DeleteObject(ctx, name, obj); err != nil {
			return err
		}
	}
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.containerMarker(name)),
	})
	if err != nil {
		return fmt.Errorf("delete container %s: %w", name, err)
	}
	return nil
}

func (b *S3BlobStore) WriteObject(ctx context.Context, container, name string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(container, name)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("write object %s/%s: %w", container, name, err)
	}
	return nil
}

func (b *S3BlobStore) ReadObject(ctx context.Context, container, name string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(container, name)),
	})
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", container, name, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body %s/%s: %w", container, name, err)
	}
	return data, nil
}

func (b *S3BlobStore) DeleteObject(ctx context.Context, container, name string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(container, name)),
	})
	if err != nil {
		return fmt.Errorf("delete object %s/%s: %w", container, name, err)
	}
	return nil
}

func (b *S3BlobStore) ListObjects(ctx context.Context, container string) ([]string, error) {
	prefix := container + "/"
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list objects in %s: %w", container, err)
	}

	names := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if key == b.containerMarker(container) {
			continue
		}
		names = append(names, key[len(prefix):])
	}
	return names, nil
}

var _ BlobStore = (*S3BlobStore)(nil)
