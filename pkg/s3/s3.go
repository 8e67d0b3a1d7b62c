package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

const presignExpiry = 15 * time.Minute

// ItfS3 stores annotated images. UploadImage returns the object key; the other
// methods accept that key or a full object URL.
type ItfS3 interface {
	UploadImage(ctx context.Context, key string, data []byte, contentType string) (string, error)
	PresignUrl(fileUrl string) (string, error)
	DeleteFile(fileName string) error
}

type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// Endpoint targets S3-compatible stores such as MinIO. Empty means AWS.
	Endpoint string
}

type s3Client struct {
	client     *s3.S3
	session    *session.Session
	bucketName string
}

func New(cfg Config) (ItfS3, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("s3 bucket name not configured")
	}

	sess, err := newSession(cfg)
	if err != nil {
		return nil, err
	}

	return &s3Client{
		client:     s3.New(sess),
		session:    sess,
		bucketName: cfg.BucketName,
	}, nil
}

func (s *s3Client) UploadImage(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	uploader := s3manager.NewUploader(s.session)

	_, err := uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}

	return key, nil
}

func (s *s3Client) PresignUrl(fileUrl string) (string, error) {
	key := extractKeyFromS3Url(s.bucketName, fileUrl)

	decodedKey, err := url.QueryUnescape(key)
	if err != nil {
		return "", fmt.Errorf("failed to decode S3 key: %w", err)
	}

	_, err = s.client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(decodedKey),
	})
	if err != nil {
		return "", fmt.Errorf("file does not exist: %w", err)
	}

	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(decodedKey),
	})

	urlStr, err := req.Presign(presignExpiry)
	if err != nil {
		return "", err
	}

	return urlStr, nil
}

// extractKeyFromS3Url accepts a full object URL or a bare key. Path-style
// URLs carry the bucket as the first path segment; virtual-hosted URLs carry
// it in the host.
func extractKeyFromS3Url(bucket, fileUrl string) string {
	u, err := url.Parse(fileUrl)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fileUrl
	}

	path := strings.TrimPrefix(u.EscapedPath(), "/")
	if strings.HasPrefix(u.Hostname(), bucket+".") {
		return path
	}
	if rest, ok := strings.CutPrefix(path, bucket+"/"); ok {
		return rest
	}
	return path
}

func (s *s3Client) DeleteFile(fileName string) error {
	decodedFileName, err := url.QueryUnescape(extractKeyFromS3Url(s.bucketName, fileName))
	if err != nil {
		return fmt.Errorf("failed to decode filename: %w", err)
	}

	_, err = s.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(decodedFileName),
	})

	return err
}

func newSession(cfg Config) (*session.Session, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}

	return sess, nil
}
