package cryptoutil

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"errors"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"golang.org/x/sync/singleflight"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

// ErrBadSignature is returned when a release signature does not match.
var ErrBadSignature = errors.New("release signature mismatch")

type publicKeyAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// checkFunc verifies sig over msg with one resolved public key.
type checkFunc func(msg, sig []byte) error

type signingKey struct {
	pub   crypto.PublicKey
	check checkFunc
}

// KMSVerifier checks detached release signatures against the public half of
// a KMS asymmetric key. The key is fetched lazily and cached once it has
// been validated; failed fetches are retried on the next call.
type KMSVerifier struct {
	api   publicKeyAPI
	keyID string
	pkcs1 bool

	key   atomic.Pointer[signingKey]
	fetch singleflight.Group
}

// VerifierOption configures a KMSVerifier.
type VerifierOption func(*KMSVerifier)

// WithPKCS1v15Fallback accepts RSA PKCS#1 v1.5 signatures when PSS does not
// verify. Off by default.
func WithPKCS1v15Fallback() VerifierOption {
	return func(v *KMSVerifier) { v.pkcs1 = true }
}

// NewKMSVerifier returns a verifier for release signatures made with keyID.
func NewKMSVerifier(client *kms.Client, keyID string, opts ...VerifierOption) *KMSVerifier {
	var api publicKeyAPI
	if client != nil {
		api = client
	}
	return newKMSVerifier(api, keyID, opts...)
}

func newKMSVerifier(api publicKeyAPI, keyID string, opts ...VerifierOption) *KMSVerifier {
	v := &KMSVerifier{api: api, keyID: keyID}
	for _, o := range opts {
		o(v)
	}
	return v
}

// PublicKey returns the signing key's public half.
func (v *KMSVerifier) PublicKey(ctx context.Context) (crypto.PublicKey, error) {
	k, err := v.signingKey(ctx)
	if err != nil {
		return nil, err
	}
	return k.pub, nil
}

// VerifySignature verifies a detached signature over message.
func (v *KMSVerifier) VerifySignature(ctx context.Context, message, signature []byte) error {
	k, err := v.signingKey(ctx)
	if err != nil {
		return err
	}
	return k.check(message, signature)
}

func (v *KMSVerifier) signingKey(ctx context.Context) (*signingKey, error) {
	if k := v.key.Load(); k != nil {
		return k, nil
	}
	res, err, _ := v.fetch.Do(v.keyID, func() (any, error) {
		if k := v.key.Load(); k != nil {
			return k, nil
		}
		k, err := v.load(ctx)
		if err != nil {
			return nil, err
		}
		v.key.Store(k)
		return k, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*signingKey), nil
}

func (v *KMSVerifier) load(ctx context.Context) (*signingKey, error) {
	if v.api == nil || v.keyID == "" {
		return nil, xerrors.New("kms verifier: client or key id not configured")
	}
	out, err := v.api.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(v.keyID)})
	if err != nil {
		return nil, xerrors.Wrapf(err, "kms get public key %s", v.keyID)
	}
	if out.KeyUsage != kmstypes.KeyUsageTypeSignVerify {
		return nil, xerrors.Newf("kms key %s: usage %s cannot verify signatures", v.keyID, out.KeyUsage)
	}
	pub, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, xerrors.Wrap(err, "kms public key is not PKIX DER")
	}
	check, err := checkerFor(pub, v.pkcs1)
	if err != nil {
		return nil, err
	}
	return &signingKey{pub: pub, check: check}, nil
}

// checkerFor binds the verification scheme to the key type. ECDSA digests
// follow the curve (P-256 with SHA-256, P-384 with SHA-384); RSA uses
// SHA-256 with PSS.
func checkerFor(pub crypto.PublicKey, pkcs1 bool) (checkFunc, error) {
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		var sum func([]byte) []byte
		switch key.Curve {
		case elliptic.P256():
			sum = func(b []byte) []byte { d := sha256.Sum256(b); return d[:] }
		case elliptic.P384():
			sum = func(b []byte) []byte { d := sha512.Sum384(b); return d[:] }
		default:
			return nil, xerrors.Newf("unsupported ECDSA curve %s", key.Curve.Params().Name)
		}
		return func(msg, sig []byte) error {
			if !ecdsa.VerifyASN1(key, sum(msg), sig) {
				return xerrors.Wrapf(ErrBadSignature, "ecdsa %s", key.Curve.Params().Name)
			}
			return nil
		}, nil

	case *rsa.PublicKey:
		return func(msg, sig []byte) error {
			d := sha256.Sum256(msg)
			err := rsa.VerifyPSS(key, crypto.SHA256, d[:], sig, nil)
			if err != nil && pkcs1 {
				err = rsa.VerifyPKCS1v15(key, crypto.SHA256, d[:], sig)
			}
			if err != nil {
				return xerrors.Wrap(ErrBadSignature, "rsa")
			}
			return nil
		}, nil

	default:
		return nil, xerrors.Newf("unsupported public key type %T", pub)
	}
}
