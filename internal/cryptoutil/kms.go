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
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/keithlinneman/siteedge/internal/xerrors"
)

// Verifier checks a detached signature over message.
type Verifier interface {
	VerifySignature(ctx context.Context, message, signature []byte) error
}

// KMSPublicKeyAPI is the one KMS call the verifier makes. *kms.Client satisfies it.
type KMSPublicKeyAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// KMSVerifier fetches the public half of a KMS signing key once and verifies
// locally from then on.
type KMSVerifier struct {
	client KMSPublicKeyAPI
	keyARN string

	// AllowPKCS1v15 accepts RSA PKCS#1 v1.5 when PSS fails. Off by default.
	AllowPKCS1v15 bool

	mu     sync.Mutex
	pubKey crypto.PublicKey
}

var _ Verifier = (*KMSVerifier)(nil)

func NewKMSVerifier(client KMSPublicKeyAPI, keyARN string) *KMSVerifier {
	return &KMSVerifier{client: client, keyARN: keyARN}
}

func (v *KMSVerifier) KeyARN() string { return v.keyARN }

// PublicKey returns the cached key, fetching it on first use. A failed fetch
// is not cached.
func (v *KMSVerifier) PublicKey(ctx context.Context) (crypto.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pubKey != nil {
		return v.pubKey, nil
	}
	if v.client == nil {
		return nil, xerrors.New("kms client is not configured")
	}

	out, err := v.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(v.keyARN)})
	if err != nil {
		return nil, xerrors.Wrapf(err, "kms get public key %s", v.keyARN)
	}
	if out.KeyUsage != kmstypes.KeyUsageTypeSignVerify {
		return nil, xerrors.Newf("kms key %s has KeyUsage=%s, expected SIGN_VERIFY", v.keyARN, out.KeyUsage)
	}
	pub, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse kms public key DER")
	}
	v.pubKey = pub
	return pub, nil
}

// VerifySignature supports ECDSA P-256 (SHA-256), ECDSA P-384 (SHA-384) and
// RSA (SHA-256, PSS unless AllowPKCS1v15).
func (v *KMSVerifier) VerifySignature(ctx context.Context, message, signature []byte) error {
	if len(signature) == 0 {
		return xerrors.New("empty signature")
	}
	pub, err := v.PublicKey(ctx)
	if err != nil {
		return err
	}
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		return verifyECDSA(key, message, signature)
	case *rsa.PublicKey:
		return verifyRSA(key, message, signature, v.AllowPKCS1v15)
	default:
		return xerrors.Newf("unsupported public key type %T", pub)
	}
}

func verifyECDSA(key *ecdsa.PublicKey, message, signature []byte) error {
	var digest []byte
	switch key.Curve {
	case elliptic.P256():
		d := sha256.Sum256(message)
		digest = d[:]
	case elliptic.P384():
		d := sha512.Sum384(message)
		digest = d[:]
	default:
		return xerrors.Newf("unsupported ECDSA curve %s", key.Curve.Params().Name)
	}
	if !ecdsa.VerifyASN1(key, digest, signature) {
		return xerrors.Newf("ECDSA %s signature verification failed", key.Curve.Params().Name)
	}
	return nil
}

func verifyRSA(key *rsa.PublicKey, message, signature []byte, allowPKCS1v15 bool) error {
	digest := sha256.Sum256(message)
	pssErr := rsa.VerifyPSS(key, crypto.SHA256, digest[:], signature, nil)
	if pssErr == nil {
		return nil
	}
	if !allowPKCS1v15 {
		return xerrors.Wrap(pssErr, "RSA-PSS verification failed")
	}
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature); err != nil {
		return xerrors.Wrap(err, "RSA verification failed (PSS and PKCS1v15)")
	}
	return nil
}
