// Package secrets resolves the shared signing secret from a reference such
// as "env:NAME", "file:/path", "s3://bucket/key" or "ssm:/parameter/name".
package secrets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

var ErrEmptySecret = errors.New("secret resolved to an empty value")

// S3API is the subset of the S3 client used here.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SSMAPI is the subset of the SSM client used here.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Loader resolves references. AWS clients are only required for s3:// and
// ssm: references.
type Loader struct {
	S3  S3API
	SSM SSMAPI
}

// NeedsAWS reports whether ref can only be resolved with AWS credentials.
func NeedsAWS(ref string) bool {
	return strings.HasPrefix(ref, "s3://") || strings.HasPrefix(ref, "ssm:")
}

// NewAWSLoader builds a Loader from the default AWS credential chain (the
// instance profile on a worker-tier host).
func NewAWSLoader(ctx context.Context) (*Loader, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Loader{
		S3:  s3.NewFromConfig(cfg),
		SSM: ssm.NewFromConfig(cfg),
	}, nil
}

// Load resolves ref. Trailing newlines are trimmed from file and object
// contents since secrets are usually written with one.
func (l *Loader) Load(ctx context.Context, ref string) ([]byte, error) {
	var (
		secret []byte
		err    error
	)
	switch {
	case strings.HasPrefix(ref, "env:"):
		secret = []byte(os.Getenv(strings.TrimPrefix(ref, "env:")))
	case strings.HasPrefix(ref, "file:"):
		secret, err = os.ReadFile(strings.TrimPrefix(ref, "file:"))
	case strings.HasPrefix(ref, "s3://"):
		secret, err = l.loadS3(ctx, strings.TrimPrefix(ref, "s3://"))
	case strings.HasPrefix(ref, "ssm:"):
		secret, err = l.loadSSM(ctx, strings.TrimPrefix(ref, "ssm:"))
	default:
		return nil, fmt.Errorf("unsupported secret reference %q", scheme(ref))
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s secret: %w", scheme(ref), err)
	}
	secret = bytes.TrimRight(secret, "\r\n")
	if len(secret) == 0 {
		return nil, fmt.Errorf("resolve %s secret: %w", scheme(ref), ErrEmptySecret)
	}
	return secret, nil
}

func (l *Loader) loadS3(ctx context.Context, location string) ([]byte, error) {
	if l.S3 == nil {
		return nil, errors.New("s3 client not configured")
	}
	bucket, key, ok := strings.Cut(location, "/")
	if !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("expected s3://bucket/key, got s3://%s", location)
	}
	out, err := l.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (l *Loader) loadSSM(ctx context.Context, name string) ([]byte, error) {
	if l.SSM == nil {
		return nil, errors.New("ssm client not configured")
	}
	if name == "" {
		return nil, errors.New("expected ssm:/parameter/name")
	}
	out, err := l.SSM.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Parameter == nil {
		return nil, nil
	}
	return []byte(aws.ToString(out.Parameter.Value)), nil
}

// scheme returns the reference kind without the location, so errors never
// echo anything that could be the secret itself.
func scheme(ref string) string {
	if strings.HasPrefix(ref, "s3://") {
		return "s3"
	}
	if i := strings.Index(ref, ":"); i > 0 {
		return ref[:i]
	}
	return "literal"
}
