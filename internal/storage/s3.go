package storage

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/paveg/ecomlake/internal/version"
)

// deleteBatchSize is the most keys one DeleteObjects call accepts.
const deleteBatchSize = 1000

// S3Options configures the S3 backend. Credentials come from the default
// AWS chain (environment, shared config, instance role).
type S3Options struct {
	Bucket   string
	Region   string
	Endpoint string // optional, for S3-compatible services; implies path-style
}

// S3 stores files as objects. Namespace paths map to keys without the
// leading slash; directories are key prefixes and need no creation.
type S3 struct {
	client s3iface.S3API
	bucket string
	logger *slog.Logger
}

// NewS3 returns a Store over client.
func NewS3(client s3iface.S3API, bucket string, logger *slog.Logger) *S3 {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &S3{client: client, bucket: bucket, logger: logger}
}

// NewS3FromOptions builds an S3 client from opts.
func NewS3FromOptions(opts S3Options, logger *slog.Logger) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires a bucket")
	}
	cfg := &aws.Config{}
	if opts.Region != "" {
		cfg.Region = aws.String(opts.Region)
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}
	client := s3.New(sess)
	client.Handlers.Build.PushBack(request.MakeAddToUserAgentFreeFormHandler(version.UserAgent()))
	return NewS3(client, opts.Bucket, logger), nil
}

// Backend implements Store.
func (s *S3) Backend() string { return BackendS3 }

// URI implements Store.
func (s *S3) URI(p string) string { return "s3://" + s.bucket + "/" + s.key(p) }

func (s *S3) key(p string) string {
	return strings.TrimPrefix(p, "/")
}

func (s *S3) prefix(p string) string {
	k := strings.TrimSuffix(s.key(p), "/")
	if k == "" {
		return ""
	}
	return k + "/"
}

// MkdirAll implements Store. Prefixes exist implicitly.
func (s *S3) MkdirAll(context.Context, string) error {
	return nil
}

// Put implements Store.
func (s *S3) Put(ctx context.Context, src, dst string, overwrite bool) error {
	if !overwrite {
		exists, err := s.Exists(ctx, dst)
		if err != nil {
			return fmt.Errorf("put %s: %w", dst, err)
		}
		if exists {
			return fmt.Errorf("put %s: %w", dst, fs.ErrExist)
		}
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("put %s: %w", src, err)
	}
	defer f.Close()

	if err := s.putObject(ctx, dst, f); err != nil {
		return fmt.Errorf("put %s: %w", dst, err)
	}
	return nil
}

func (s *S3) putObject(ctx context.Context, p string, body io.ReadSeeker) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
		Body:   body,
	})
	if err != nil {
		return err
	}
	s.logger.Debug("uploaded object", "bucket", s.bucket, "key", s.key(p))
	return nil
}

// Open implements Store.
func (s *S3) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("open %s: %w", p, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	return out.Body, nil
}

// Create implements Store. The object is uploaded on Close.
func (s *S3) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	return &s3Writer{ctx: ctx, s: s, path: p}, nil
}

type s3Writer struct {
	ctx    context.Context
	s      *S3
	path   string
	buf    bytes.Buffer
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fs.ErrClosed
	}
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	if w.closed {
		return fs.ErrClosed
	}
	w.closed = true
	if err := w.s.putObject(w.ctx, w.path, bytes.NewReader(w.buf.Bytes())); err != nil {
		return fmt.Errorf("create %s: %w", w.path, err)
	}
	return nil
}

// Exists implements Store. p exists as an object or as a non-empty prefix.
func (s *S3) Exists(ctx context.Context, p string) (bool, error) {
	if key := s.key(p); key != "" {
		_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			return true, nil
		}
		if !isNotFound(err) {
			return false, fmt.Errorf("head %s: %w", p, err)
		}
	}

	out, err := s.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.prefix(p)),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return false, fmt.Errorf("list %s: %w", p, err)
	}
	return len(out.Contents) > 0, nil
}

// RemoveAll implements Store.
func (s *S3) RemoveAll(ctx context.Context, p string) error {
	var keys []*s3.ObjectIdentifier
	if key := s.key(p); key != "" {
		keys = append(keys, &s3.ObjectIdentifier{Key: aws.String(key)})
	}
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix(p)),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, &s3.ObjectIdentifier{Key: obj.Key})
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{Objects: keys[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("remove %s: %w", p, err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("remove %s: deleting %s: %s", p, aws.StringValue(first.Key), aws.StringValue(first.Message))
		}
	}
	s.logger.Debug("removed objects", "bucket", s.bucket, "prefix", s.prefix(p), "count", len(keys))
	return nil
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !stderrors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	default:
		return false
	}
}
