// Package source resolves a document reference to PDF bytes. Supported:
// s3://bucket/key, http(s)://... and file://path (each of the last two only
// when enabled) and bare keys in a default bucket.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnsupportedRef  = errors.New("unsupported source reference")
	ErrTooLarge        = errors.New("source exceeds size limit")
	ErrS3NotConfigured = errors.New("no default S3 bucket configured")
)

// S3Options configures S3 access. Empty credentials fall back to the
// default AWS chain (env, shared config, instance role).
type S3Options struct {
	Region        string
	AccessKey     string
	SecretKey     string
	Endpoint      string
	DefaultBucket string
}

// Options configures a Fetcher.
type Options struct {
	AllowFile   bool
	AllowHTTP   bool
	HTTPClient  *http.Client
	HTTPTimeout time.Duration
	MaxBytes    int64
	S3          S3Options
}

// Document is fetched content plus a display name.
type Document struct {
	Name string
	Data []byte
}

// Fetcher downloads referenced documents.
type Fetcher struct {
	opts Options
	http *http.Client

	s3Mu    sync.Mutex
	s3      *s3.Client
	buildS3 func(context.Context) (*s3.Client, error)
}

func New(opts Options) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.HTTPTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	f := &Fetcher{opts: opts, http: client}
	f.buildS3 = f.newS3Client
	return f
}

// Fetch resolves ref and returns its content.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*Document, error) {
	ref = strings.TrimSpace(ref)
	// Strip optional #page fragment
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: empty", ErrUnsupportedRef)
	}

	switch {
	case strings.HasPrefix(ref, "s3://"):
		bucket, key, err := parseS3Ref(ref)
		if err != nil {
			return nil, err
		}
		return f.fetchS3(ctx, bucket, key)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		if !f.opts.AllowHTTP {
			return nil, fmt.Errorf("%w: http references are disabled", ErrUnsupportedRef)
		}
		return f.fetchHTTP(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		if !f.opts.AllowFile {
			return nil, fmt.Errorf("%w: file references are disabled", ErrUnsupportedRef)
		}
		return f.fetchFile(strings.TrimPrefix(ref, "file://"))
	case strings.Contains(ref, "://"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRef, ref)
	case f.opts.S3.DefaultBucket != "":
		return f.fetchS3(ctx, f.opts.S3.DefaultBucket, strings.TrimPrefix(ref, "/"))
	case f.opts.AllowFile:
		return f.fetchFile(ref)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRef, ref)
	}
}

func parseS3Ref(ref string) (bucket, key string, err error) {
	p := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(p, "/")
	if slash <= 0 || slash == len(p)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", ref)
	}
	return p[:slash], p[slash+1:], nil
}

func (f *Fetcher) tooLarge(n int64) bool {
	return f.opts.MaxBytes > 0 && n > f.opts.MaxBytes
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: http %d", rawURL, resp.StatusCode)
	}
	if f.tooLarge(resp.ContentLength) {
		return nil, ErrTooLarge
	}

	var body io.Reader = resp.Body
	if f.opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.opts.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if f.tooLarge(int64(len(data))) {
		return nil, ErrTooLarge
	}

	name := "download.pdf"
	if u, err := url.Parse(rawURL); err == nil {
		if b := path.Base(u.Path); b != "/" && b != "." {
			name = b
		}
	}
	log.Info().Str("url", rawURL).Int("bytes", len(data)).Msg("downloaded http source")
	return &Document{Name: name, Data: data}, nil
}

func (f *Fetcher) fetchFile(p string) (*Document, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", p)
	}
	if f.tooLarge(info.Size()) {
		return nil, ErrTooLarge
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return &Document{Name: filepath.Base(p), Data: data}, nil
}

// client lazily builds the S3 client so deployments without S3 never
// touch the AWS config chain. Only a successful build is cached; a failed
// one is retried on the next call.
func (f *Fetcher) client() (*s3.Client, error) {
	f.s3Mu.Lock()
	defer f.s3Mu.Unlock()
	if f.s3 != nil {
		return f.s3, nil
	}
	// The client outlives the request that triggered it.
	cli, err := f.buildS3(context.Background())
	if err != nil {
		return nil, err
	}
	f.s3 = cli
	return cli, nil
}

func (f *Fetcher) newS3Client(ctx context.Context) (*s3.Client, error) {
	var loadOpts []func(*awscfg.LoadOptions) error
	if f.opts.S3.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(f.opts.S3.Region))
	}
	if f.opts.S3.AccessKey != "" && f.opts.S3.SecretKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(f.opts.S3.AccessKey, f.opts.S3.SecretKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	endpoint := f.opts.S3.Endpoint
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (f *Fetcher) fetchS3(ctx context.Context, bucket, key string) (*Document, error) {
	cli, err := f.client()
	if err != nil {
		return nil, err
	}

	head, err := cli.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("head s3://%s/%s: %w", bucket, key, err)
	}
	if head.ContentLength != nil && f.tooLarge(*head.ContentLength) {
		return nil, ErrTooLarge
	}

	buf := manager.NewWriteAtBuffer(nil)
	n, err := manager.NewDownloader(cli).Download(ctx, buf, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}

	name := path.Base(key)
	if head.Metadata != nil {
		if v, ok := head.Metadata["name"]; ok && v != "" {
			name = v
		}
	}
	log.Info().Str("bucket", bucket).Str("key", key).Int64("bytes", n).Msg("downloaded s3 source")
	return &Document{Name: name, Data: buf.Bytes()}, nil
}

// CheckS3 verifies the default bucket is reachable. It returns
// ErrS3NotConfigured when no default bucket is set.
func (f *Fetcher) CheckS3(ctx context.Context) error {
	if f.opts.S3.DefaultBucket == "" {
		return ErrS3NotConfigured
	}
	cli, err := f.client()
	if err != nil {
		return err
	}
	_, err = cli.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(f.opts.S3.DefaultBucket)})
	return err
}
