package content

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

// ssmAPI is the subset of the SSM client the loader uses.
type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// s3API is the subset of the S3 client the loader uses.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SignatureVerifier checks a detached signature over a release archive.
// *cryptoutil.KMSVerifier implements it.
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, message, signature []byte) error
}

type LoaderOptions struct {
	Logger log.Logger

	// SSM parameter containing the release SHA256 hash
	SSMParam string

	// S3 location for releases: s3://{bucket}/{prefix}/{hash}.tar.gz
	S3Bucket string
	S3Prefix string

	// Verifier, when set, requires {hash}.tar.gz.sig next to every release
	Verifier SignatureVerifier

	// AWS config (uses default if nil)
	AWSConfig *aws.Config

	// clients override the ones built from AWSConfig
	SSMClient ssmAPI
	S3Client  s3API
}

type Loader struct {
	opts      LoaderOptions
	ssmClient ssmAPI
	s3Client  s3API
	logger    log.Logger
}

// NewLoader creates a new content Loader with the given options
func NewLoader(ctx context.Context, opts LoaderOptions) (*Loader, error) {
	if opts.SSMParam == "" {
		return nil, xerrors.New("SSMParam is required")
	}
	if opts.S3Bucket == "" {
		return nil, xerrors.New("S3Bucket is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	l := &Loader{
		opts:      opts,
		ssmClient: opts.SSMClient,
		s3Client:  opts.S3Client,
		logger:    opts.Logger,
	}
	if l.ssmClient != nil && l.s3Client != nil {
		return l, nil
	}

	var awsCfg aws.Config
	if opts.AWSConfig != nil {
		awsCfg = *opts.AWSConfig
	} else {
		var err error
		awsCfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
	}
	if l.ssmClient == nil {
		l.ssmClient = ssm.NewFromConfig(awsCfg)
	}
	if l.s3Client == nil {
		l.s3Client = s3.NewFromConfig(awsCfg)
	}
	return l, nil
}

// FetchCurrentBundleHash gets the current release hash from SSM.
// Values may carry a "sha256:" prefix.
func (l *Loader) FetchCurrentBundleHash(ctx context.Context) (string, error) {
	out, err := l.ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(l.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", l.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", l.opts.SSMParam)
	}

	hash, err := cryptoutil.ParseSHA256(*out.Parameter.Value)
	if err != nil {
		return "", xerrors.Wrapf(err, "SSM parameter %s", l.opts.SSMParam)
	}
	return hash, nil
}

// s3Key returns the S3 object key for a given hash
func (l *Loader) s3Key(hash string) string {
	if l.opts.S3Prefix != "" {
		return fmt.Sprintf("%s/%s.tar.gz", strings.TrimSuffix(l.opts.S3Prefix, "/"), hash)
	}
	return fmt.Sprintf("%s.tar.gz", hash)
}

func (l *Loader) getObject(ctx context.Context, key string, maxSize int64) ([]byte, string, error) {
	out, err := l.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.opts.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", xerrors.Wrapf(err, "get S3 object s3://%s/%s", l.opts.S3Bucket, key)
	}
	defer out.Body.Close()

	data, sum, err := readWithHash(out.Body, maxSize)
	if err != nil {
		return nil, "", xerrors.Wrapf(err, "read s3://%s/%s", l.opts.S3Bucket, key)
	}
	return data, sum, nil
}

// Load fetches the current release and returns a Snapshot
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	hash, err := l.FetchCurrentBundleHash(ctx)
	if err != nil {
		return nil, err
	}
	return l.LoadHash(ctx, hash)
}

// LoadHash fetches a specific release by hash, verifies it and extracts it
// into memory. The snapshot still needs Prepare before it can be served.
func (l *Loader) LoadHash(ctx context.Context, hash string) (*Snapshot, error) {
	loadedAt := time.Now().UTC()
	key := l.s3Key(hash)

	l.logger.Info(ctx, "downloading content release",
		"bucket", l.opts.S3Bucket,
		"key", key,
		"expected_hash", hash,
	)

	data, actualHash, err := l.getObject(ctx, key, maxReleaseSize)
	if err != nil {
		return nil, err
	}

	// always compare hashes in constant time
	if !cryptoutil.HashEqual(actualHash, hash) {
		return nil, xerrors.Newf("checksum mismatch: expected %s, got %s", hash, actualHash)
	}

	signed := false
	if l.opts.Verifier != nil {
		sig, _, err := l.getObject(ctx, key+".sig", maxSignatureSize)
		if err != nil {
			return nil, xerrors.Wrap(err, "fetch release signature")
		}
		if err := l.opts.Verifier.VerifySignature(ctx, data, sig); err != nil {
			return nil, xerrors.Wrapf(err, "verify release signature for %s", truncHash(hash))
		}
		signed = true
	}

	fsys, err := extractTarGzToMem(data)
	if err != nil {
		return nil, xerrors.Wrap(err, "extract release")
	}

	l.logger.Info(ctx, "loaded content release",
		"hash", truncHash(hash),
		"bytes", len(data),
		"signed", signed,
	)

	return &Snapshot{
		FS: fsys,
		Meta: Meta{
			SHA256:     hash,
			Source:     SourceS3,
			VerifiedAt: time.Now().UTC(),
			Signed:     signed,
		},
		LoadedAt: loadedAt,
	}, nil
}
