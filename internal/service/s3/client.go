package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const defaultTimeout = 30 * time.Second

var _ Storage = (*Client)(nil)

// Client talks to an S3-compatible bucket.
type Client struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	publicURL string
}

func NewClient(ctx context.Context, conf *Config) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid s3 configuration: %w", err)
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	opts := s3.Options{
		Region:           conf.Region,
		Credentials:      creds,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
		UsePathStyle:     conf.UsePathStyle,
	}
	if conf.Endpoint != "" {
		opts.BaseEndpoint = aws.String(conf.Endpoint)
	}
	client := s3.New(opts)

	c := &Client{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    conf.Bucket,
		publicURL: strings.TrimRight(conf.PublicBaseURL, "/"),
	}

	if conf.VerifyBucket {
		ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
		if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(conf.Bucket)}); err != nil {
			return nil, fmt.Errorf("unable to access bucket %s: %w", conf.Bucket, err)
		}
	}

	return c, nil
}

// Put uploads with If-None-Match so two writers can never replace each other's object.
func (c *Client) Put(ctx context.Context, path string, data []byte, contentType string) error {
	if path == "" {
		return fmt.Errorf("key is required")
	}

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		if hasErrorCode(err, "PreconditionFailed", "ConditionalRequestConflict") {
			return fmt.Errorf("%w: %s", ErrObjectExists, path)
		}
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}
	return nil
}

func hasErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}

func (c *Client) Modified(ctx context.Context, path string) (time.Time, error) {
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) || hasErrorCode(err, "NotFound", "NoSuchKey") {
			return time.Time{}, fmt.Errorf("%w: %s", ErrObjectNotFound, path)
		}
		return time.Time{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return aws.ToTime(out.LastModified), nil
}

// Remove deletes the given keys in one batch. Missing keys count as removed.
func (c *Client) Remove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	objects := make([]types.ObjectIdentifier, 0, len(paths))
	for _, p := range paths {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(p)})
	}

	out, err := c.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(c.bucket),
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("failed to delete objects: %w", err)
	}
	if len(out.Errors) == 0 {
		return nil
	}

	failed := &RemoveError{Failed: make(map[string]string, len(out.Errors))}
	for _, e := range out.Errors {
		if aws.ToString(e.Code) == "NoSuchKey" {
			continue
		}
		failed.Failed[aws.ToString(e.Key)] = aws.ToString(e.Message)
	}
	if len(failed.Failed) == 0 {
		return nil
	}
	return failed
}

func (c *Client) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", path, err)
	}
	return req.URL, nil
}

func (c *Client) PublicURL(path string) string {
	if c.publicURL == "" {
		return ""
	}
	return c.publicURL + "/" + strings.TrimLeft(path, "/")
}
