package content

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/siteedge/internal/cryptoutil"
	"github.com/keithlinneman/siteedge/internal/log"
	"github.com/keithlinneman/siteedge/internal/xerrors"
)

// SignatureSuffix is appended to a bundle key to find its detached signature.
const SignatureSuffix = ".sig"

type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type LoaderOptions struct {
	Logger log.Logger

	// SSMParam holds the sha256 of the bundle to serve.
	SSMParam string

	// Bundles live at s3://{S3Bucket}/{S3Prefix}/{sha256}.tar.gz.
	S3Bucket string
	S3Prefix string

	// Verifier checks {key}.sig over the compressed bundle bytes when set.
	Verifier cryptoutil.Verifier
	// RequireSignature fails bundles without a signature object. Requires Verifier.
	RequireSignature bool

	// AWSConfig defaults to config.LoadDefaultConfig.
	AWSConfig *aws.Config
}

// Loader fetches verified bundles from S3. It satisfies BundleFetcher.
type Loader struct {
	opts   LoaderOptions
	ssm    ssmAPI
	s3     s3API
	logger log.Logger
}

func NewLoader(ctx context.Context, opts LoaderOptions) (*Loader, error) {
	var awsCfg aws.Config
	if opts.AWSConfig != nil {
		awsCfg = *opts.AWSConfig
	} else {
		c, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
		awsCfg = c
	}
	return newLoader(opts, ssm.NewFromConfig(awsCfg), s3.NewFromConfig(awsCfg))
}

func newLoader(opts LoaderOptions, ssmc ssmAPI, s3c s3API) (*Loader, error) {
	if opts.SSMParam == "" {
		return nil, xerrors.New("SSMParam is required")
	}
	if opts.S3Bucket == "" {
		return nil, xerrors.New("S3Bucket is required")
	}
	if opts.RequireSignature && opts.Verifier == nil {
		return nil, xerrors.New("RequireSignature needs a Verifier")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	opts.S3Prefix = strings.Trim(opts.S3Prefix, "/")
	return &Loader{opts: opts, ssm: ssmc, s3: s3c, logger: opts.Logger}, nil
}

// FetchCurrentBundleHash reads the published bundle digest from SSM.
func (l *Loader) FetchCurrentBundleHash(ctx context.Context) (string, error) {
	out, err := l.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(l.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", l.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", l.opts.SSMParam)
	}
	hash := strings.ToLower(strings.TrimSpace(*out.Parameter.Value))
	if !cryptoutil.IsSHA256Hex(hash) {
		return "", xerrors.Newf("SSM parameter %s is not a sha256 digest", l.opts.SSMParam)
	}
	return hash, nil
}

func (l *Loader) bundleKey(hash string) string {
	if l.opts.S3Prefix == "" {
		return hash + ".tar.gz"
	}
	return l.opts.S3Prefix + "/" + hash + ".tar.gz"
}

func (l *Loader) getObject(ctx context.Context, key string, limit int64) ([]byte, string, error) {
	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.opts.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", err
	}
	defer out.Body.Close()
	return readWithHash(out.Body, limit)
}

// verify checks the detached signature. It returns the signing key ARN, or ""
// when no signature exists and none is required.
func (l *Loader) verify(ctx context.Context, key string, bundle []byte) (string, error) {
	if l.opts.Verifier == nil {
		return "", nil
	}
	sig, _, err := l.getObject(ctx, key+SignatureSuffix, maxSignatureSize)
	var missing *s3types.NoSuchKey
	if errors.As(err, &missing) && !l.opts.RequireSignature {
		l.logger.Warn(ctx, "content bundle is unsigned", "key", key)
		return "", nil
	}
	if err != nil {
		return "", xerrors.Wrapf(err, "get signature s3://%s/%s%s", l.opts.S3Bucket, key, SignatureSuffix)
	}
	if err := l.opts.Verifier.VerifySignature(ctx, bundle, sig); err != nil {
		return "", xerrors.Wrapf(err, "verify signature of %s", key)
	}
	signer := "verified"
	if k, ok := l.opts.Verifier.(interface{ KeyARN() string }); ok {
		signer = k.KeyARN()
	}
	return signer, nil
}

// LoadHash downloads the bundle named by hash, checks its digest and
// signature, and extracts it into memory.
func (l *Loader) LoadHash(ctx context.Context, hash string) (*Snapshot, error) {
	loadedAt := time.Now().UTC()
	key := l.bundleKey(hash)
	l.logger.Info(ctx, "downloading content bundle", "bucket", l.opts.S3Bucket, "key", key)

	data, actual, err := l.getObject(ctx, key, maxBundleSize)
	if err != nil {
		return nil, xerrors.Wrapf(err, "get bundle s3://%s/%s", l.opts.S3Bucket, key)
	}
	if !cryptoutil.HashEqual(actual, hash) {
		return nil, xerrors.Newf("checksum mismatch: expected %s, got %s", hash, actual)
	}

	signer, err := l.verify(ctx, key, data)
	if err != nil {
		return nil, err
	}

	mfs, err := extractTarGz(data)
	if err != nil {
		return nil, xerrors.Wrap(err, "extract bundle")
	}
	meta := Meta{SHA256: hash, Source: SourceS3, VerifiedAt: time.Now().UTC(), SignedBy: signer}
	rel, err := readRelease(mfs)
	if err != nil {
		return nil, err
	}
	rel.apply(&meta)

	l.logger.Info(ctx, "content bundle loaded",
		"hash", truncHash(hash),
		"bytes", len(data),
		"files", len(mfs),
		"version", meta.Version,
		"signed", signer != "",
	)
	return &Snapshot{FS: mfs, Meta: meta, LoadedAt: loadedAt}, nil
}

// Load fetches whatever bundle SSM currently points at.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	hash, err := l.FetchCurrentBundleHash(ctx)
	if err != nil {
		return nil, err
	}
	return l.LoadHash(ctx, hash)
}
