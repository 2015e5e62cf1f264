package backup

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
)

const defaultS3Region = "us-east-1"

// S3Config holds upload parameters. Credentials come from the aws CLI's own
// chain (environment, profile or instance role).
type S3Config struct {
	BucketURL string
	Endpoint  string
	Region    string
	UseSSL    bool
}

// s3Target is a parsed s3://bucket/prefix location.
type s3Target struct {
	bucket string
	prefix string
}

func parseS3Target(raw string) (s3Target, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return s3Target{}, fmt.Errorf("s3: parse bucket url: %w", err)
	}
	if u.Scheme != "s3" {
		return s3Target{}, fmt.Errorf("s3: bucket url %q must use the s3:// scheme", raw)
	}
	if u.Host == "" {
		return s3Target{}, fmt.Errorf("s3: bucket url %q is missing the bucket name", raw)
	}
	return s3Target{bucket: u.Host, prefix: strings.Trim(u.Path, "/")}, nil
}

func (t s3Target) objectURL(name string) string {
	return "s3://" + path.Join(t.bucket, t.prefix, name)
}

// endpointURL adds a scheme to a bare host:port endpoint.
func endpointURL(endpoint string, useSSL bool) string {
	endpoint = strings.TrimSpace(endpoint)
	switch {
	case endpoint == "":
		return ""
	case strings.Contains(endpoint, "://"):
		return endpoint
	case useSSL:
		return "https://" + endpoint
	default:
		return "http://" + endpoint
	}
}

// S3Uploader copies snapshot files to a bucket with `aws s3 cp`.
type S3Uploader struct {
	target   s3Target
	region   string
	endpoint string
	run      func(ctx context.Context, args ...string) ([]byte, error)
}

// NewS3Uploader fails when the aws CLI is not on PATH.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	return newS3Uploader(cfg, exec.LookPath)
}

func newS3Uploader(cfg S3Config, lookPath func(string) (string, error)) (*S3Uploader, error) {
	target, err := parseS3Target(cfg.BucketURL)
	if err != nil {
		return nil, err
	}
	bin, err := lookPath("aws")
	if err != nil {
		return nil, fmt.Errorf("s3: aws cli not found in PATH: %w", err)
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultS3Region
	}
	return &S3Uploader{
		target:   target,
		region:   region,
		endpoint: endpointURL(cfg.Endpoint, cfg.UseSSL),
		run: func(ctx context.Context, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, bin, args...).CombinedOutput()
		},
	}, nil
}

// Destination returns the object URL for a local snapshot file.
func (u *S3Uploader) Destination(localPath string) string {
	return u.target.objectURL(filepath.Base(localPath))
}

func (u *S3Uploader) command(localPath string) []string {
	args := []string{"s3", "cp", localPath, u.Destination(localPath), "--region", u.region, "--only-show-errors"}
	if u.endpoint != "" {
		args = append(args, "--endpoint-url", u.endpoint)
	}
	return args
}

// UploadFile copies localPath to the bucket.
func (u *S3Uploader) UploadFile(ctx context.Context, localPath string) error {
	if out, err := u.run(ctx, u.command(localPath)...); err != nil {
		return fmt.Errorf("s3: upload %s: %w: %s", filepath.Base(localPath), err, strings.TrimSpace(string(out)))
	}
	return nil
}
