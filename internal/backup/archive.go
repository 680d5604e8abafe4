package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/practice-records/pkg/logging"
)

const archivePrefix = "backups/v1/"

// ErrNoArchive is returned when the bucket holds no backups.
var ErrNoArchive = errors.New("backup: no archived backups")

// S3API is the subset of the S3 client used by Archive.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Archive keeps backup files in S3. With no bucket every call is a no-op.
type Archive struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewArchive creates an Archive.
func NewArchive(s3Client S3API, bucket string, logger *logging.Logger) *Archive {
	if logger == nil {
		logger = logging.Default()
	}
	return &Archive{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if a bucket is configured.
func (a *Archive) Enabled() bool {
	return a != nil && a.bucket != "" && a.s3Client != nil
}

// Key returns the object key for a backup exported at t.
func Key(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%d/%02d/%02d/%s.json", archivePrefix, t.Year(), t.Month(), t.Day(), t.Format("20060102T150405Z"))
}

// Put uploads f and returns its key.
func (a *Archive) Put(ctx context.Context, f File) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	var buf bytes.Buffer
	if err := Encode(&buf, f); err != nil {
		return "", err
	}
	key := Key(f.ExportDate)
	_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("backup: s3 put %s: %w", key, err)
	}
	a.logger.Info("archived backup to S3", "s3_key", key, "records", len(f.Records), "patients", len(f.Patients))
	return key, nil
}

// Get downloads and decodes the backup at key.
func (a *Archive) Get(ctx context.Context, key string) (File, error) {
	if !a.Enabled() {
		return File{}, ErrNoArchive
	}
	out, err := a.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return File{}, fmt.Errorf("backup: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return File{}, fmt.Errorf("backup: read %s: %w", key, err)
	}
	return Decode(bytes.NewReader(data))
}

// List returns every archived key, oldest first.
func (a *Archive) List(ctx context.Context) ([]string, error) {
	if !a.Enabled() {
		return nil, nil
	}
	var (
		keys  []string
		token *string
	)
	for {
		out, err := a.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(archivePrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("backup: s3 list: %w", err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	// keys embed the export timestamp, so lexical order is chronological
	sort.Strings(keys)
	return keys, nil
}

// Latest returns the most recent archived backup and its key.
func (a *Archive) Latest(ctx context.Context) (File, string, error) {
	keys, err := a.List(ctx)
	if err != nil {
		return File{}, "", err
	}
	if len(keys) == 0 {
		return File{}, "", ErrNoArchive
	}
	key := keys[len(keys)-1]
	f, err := a.Get(ctx, key)
	return f, key, err
}
