// Package s3client implements domain.S3Client against an S3-compatible
// endpoint using aws-sdk-go-v2, per spec.md §4.2. A single Client type
// backs both the origin and every edge; the only difference between
// "origin-style" and "edge-style" clients is the endpoint/credentials
// they were constructed with (design note §9: class hierarchies collapse
// to one interface, one implementation).
package s3client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"cdn-edge/internal/domain"
)

const presignExpiry = 1 * time.Hour

// Client is the concrete domain.S3Client backed by aws-sdk-go-v2.
type Client struct {
	endpoint string
	bucket   string
	raw      *s3.Client
	presign  *s3.PresignClient
}

// New builds a Client for node, forcing path-style addressing (required
// by MinIO and most self-hosted S3-compatible stores the node registry
// points at).
func New(ctx context.Context, node domain.Node, bucket string) (*Client, error) {
	endpoint := node.Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			node.AccessKey, node.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: loading aws config for %s: %v", domain.ErrS3, node.Endpoint, err)
	}

	raw := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &Client{
		endpoint: node.Endpoint,
		bucket:   bucket,
		raw:      raw,
		presign:  s3.NewPresignClient(raw),
	}, nil
}

func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) Presign(ctx context.Context, bucket, object string) (string, error) {
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", fmt.Errorf("%w: presigning %s/%s: %v", domain.ErrS3, bucket, object, err)
	}
	return req.URL, nil
}

func (c *Client) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := c.raw.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: checking bucket %s: %v", domain.ErrS3, bucket, err)
	}
	return true, nil
}

func (c *Client) HeadRange(ctx context.Context, bucket, object string, offset, length int64) (*domain.HeadRangeResult, error) {
	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	out, err := c.raw.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: head-range %s/%s: %v", domain.ErrS3, bucket, object, err)
	}
	defer out.Body.Close()

	result := &domain.HeadRangeResult{}
	if out.ContentLength != nil {
		result.ContentLength = *out.ContentLength
	}
	if out.ContentRange != nil {
		result.ContentRange = *out.ContentRange
		result.TotalSize = parseTotalSize(*out.ContentRange)
	}
	if out.ContentType != nil {
		result.ContentType = *out.ContentType
	}
	return result, nil
}

func (c *Client) GetRange(ctx context.Context, bucket, object string, offset, length int64) (io.ReadCloser, error) {
	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	out, err := c.raw.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get-range %s/%s: %v", domain.ErrS3, bucket, object, err)
	}
	return out.Body, nil
}

func (c *Client) MultipartCreate(ctx context.Context, bucket, object, contentType string) (string, error) {
	out, err := c.raw.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(object),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("%w: create multipart upload %s/%s: %v", domain.ErrS3, bucket, object, err)
	}
	return *out.UploadId, nil
}

func (c *Client) MultipartListParts(ctx context.Context, bucket, object, mpuID string) ([]domain.PartDescriptor, error) {
	var parts []domain.PartDescriptor
	var marker *int32

	for {
		out, err := c.raw.ListParts(ctx, &s3.ListPartsInput{
			Bucket:           aws.String(bucket),
			Key:              aws.String(object),
			UploadId:         aws.String(mpuID),
			PartNumberMarker: marker,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: list parts %s/%s: %v", domain.ErrS3, bucket, object, err)
		}
		for _, p := range out.Parts {
			pd := domain.PartDescriptor{}
			if p.PartNumber != nil {
				pd.PartNumber = int(*p.PartNumber)
			}
			if p.ETag != nil {
				pd.ETag = *p.ETag
			}
			if p.Size != nil {
				pd.Size = *p.Size
			}
			parts = append(parts, pd)
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		marker = out.NextPartNumberMarker
	}

	return parts, nil
}

func (c *Client) MultipartUploadPart(ctx context.Context, bucket, object, mpuID string, partNumber int, data []byte) (string, error) {
	out, err := c.raw.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(object),
		UploadId:   aws.String(mpuID),
		PartNumber: aws.Int32(int32(partNumber)),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("%w: upload part %d of %s/%s: %v", domain.ErrS3, partNumber, bucket, object, err)
	}
	return aws.ToString(out.ETag), nil
}

func (c *Client) MultipartComplete(ctx context.Context, bucket, object, mpuID string, parts []domain.PartDescriptor) (*domain.MultipartCompleteResult, error) {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			PartNumber: aws.Int32(int32(p.PartNumber)),
			ETag:       aws.String(p.ETag),
		}
	}

	out, err := c.raw.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(object),
		UploadId:        aws.String(mpuID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: complete multipart upload %s/%s: %v", domain.ErrS3, bucket, object, err)
	}

	return &domain.MultipartCompleteResult{
		Bucket:   bucket,
		Key:      object,
		Location: aws.ToString(out.Location),
		ETag:     aws.ToString(out.ETag),
	}, nil
}

func (c *Client) MultipartAbort(ctx context.Context, bucket, object, mpuID string) error {
	_, err := c.raw.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(object),
		UploadId: aws.String(mpuID),
	})
	if err != nil {
		return fmt.Errorf("%w: abort multipart upload %s/%s: %v", domain.ErrS3, bucket, object, err)
	}
	return nil
}

func (c *Client) MultipartAbortAll(ctx context.Context, bucket string) error {
	out, err := c.raw.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{Bucket: aws.String(bucket)})
	if err != nil {
		return fmt.Errorf("%w: list multipart uploads %s: %v", domain.ErrS3, bucket, err)
	}

	for _, u := range out.Uploads {
		_, err := c.raw.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(bucket),
			Key:      u.Key,
			UploadId: u.UploadId,
		})
		if err != nil {
			return fmt.Errorf("%w: abort multipart upload %s/%s: %v", domain.ErrS3, bucket, aws.ToString(u.Key), err)
		}
	}
	return nil
}

func (c *Client) RemoveObject(ctx context.Context, bucket, object string) error {
	_, err := c.raw.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	})
	if err != nil {
		return fmt.Errorf("%w: remove object %s/%s: %v", domain.ErrS3, bucket, object, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404")
}

// parseTotalSize extracts the total size suffix from a content-range
// header of the form "bytes 0-0/104857600", matching the original
// Python implementation's ContentRange[rindex('/')+1:] convention.
func parseTotalSize(contentRange string) int64 {
	idx := strings.LastIndex(contentRange, "/")
	if idx < 0 || idx+1 >= len(contentRange) {
		return 0
	}
	total, err := strconv.ParseInt(contentRange[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return total
}
