package cryptoutil

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
)

type fakeKMS struct {
	der   []byte
	usage kmstypes.KeyUsageType
	err   error
	calls atomic.Int32
}

func (f *fakeKMS) GetPublicKey(ctx context.Context, in *kms.GetPublicKeyInput, _ ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &kms.GetPublicKeyOutput{KeyId: in.KeyId, PublicKey: f.der, KeyUsage: f.usage}, nil
}

func newFakeKMS(t *testing.T, pub crypto.PublicKey) *fakeKMS {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return &fakeKMS{der: der, usage: kmstypes.KeyUsageTypeSignVerify}
}

const testKeyARN = "arn:aws:kms:us-east-2:000000000000:key/test"

func signECDSA(t *testing.T, key *ecdsa.PrivateKey, msg []byte) []byte {
	t.Helper()
	var digest []byte
	if key.Curve == elliptic.P384() {
		d := sha512.Sum384(msg)
		digest = d[:]
	} else {
		d := sha256.Sum256(msg)
		digest = d[:]
	}
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func TestVerifySignature_ECDSA(t *testing.T) {
	for _, curve := range []elliptic.Curve{elliptic.P256(), elliptic.P384()} {
		t.Run(curve.Params().Name, func(t *testing.T) {
			key, err := ecdsa.GenerateKey(curve, rand.Reader)
			if err != nil {
				t.Fatal(err)
			}
			v := NewKMSVerifier(newFakeKMS(t, &key.PublicKey), testKeyARN)
			msg := []byte("bundle bytes")
			sig := signECDSA(t, key, msg)

			if err := v.VerifySignature(context.Background(), msg, sig); err != nil {
				t.Fatalf("valid signature rejected: %v", err)
			}
			if err := v.VerifySignature(context.Background(), []byte("tampered"), sig); err == nil {
				t.Fatal("signature over other message accepted")
			}
			bad := append([]byte{}, sig...)
			bad[len(bad)-1] ^= 0xff
			if err := v.VerifySignature(context.Background(), msg, bad); err == nil {
				t.Fatal("corrupted signature accepted")
			}
		})
	}
}

func TestVerifySignature_RSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("bundle bytes")
	digest := sha256.Sum256(msg)
	pss, _ := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], nil)
	pkcs, _ := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])

	v := NewKMSVerifier(newFakeKMS(t, &key.PublicKey), testKeyARN)
	if err := v.VerifySignature(context.Background(), msg, pss); err != nil {
		t.Fatalf("PSS rejected: %v", err)
	}
	if err := v.VerifySignature(context.Background(), msg, pkcs); err == nil {
		t.Fatal("PKCS1v15 accepted without opting in")
	}
	v.AllowPKCS1v15 = true
	if err := v.VerifySignature(context.Background(), msg, pkcs); err != nil {
		t.Fatalf("PKCS1v15 rejected with fallback enabled: %v", err)
	}
}

func TestVerifySignature_Errors(t *testing.T) {
	key, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	edPub, _, _ := ed25519.GenerateKey(rand.Reader)

	tests := []struct {
		name   string
		client KMSPublicKeyAPI
		sig    []byte
	}{
		{"empty signature", newFakeKMS(t, &key.PublicKey), nil},
		{"nil client", nil, []byte{1}},
		{"kms error", &fakeKMS{err: errors.New("throttled")}, []byte{1}},
		{"wrong usage", &fakeKMS{der: newFakeKMS(t, &key.PublicKey).der, usage: kmstypes.KeyUsageTypeEncryptDecrypt}, []byte{1}},
		{"bad der", &fakeKMS{der: []byte("nope"), usage: kmstypes.KeyUsageTypeSignVerify}, []byte{1}},
		{"unsupported key", newFakeKMS(t, edPub), []byte{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewKMSVerifier(tt.client, testKeyARN)
			if err := v.VerifySignature(context.Background(), []byte("m"), tt.sig); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPublicKey_Cached(t *testing.T) {
	key, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	client := newFakeKMS(t, &key.PublicKey)
	v := NewKMSVerifier(client, testKeyARN)

	for i := 0; i < 3; i++ {
		if _, err := v.PublicKey(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if n := client.calls.Load(); n != 1 {
		t.Fatalf("GetPublicKey called %d times, want 1", n)
	}
}

func TestPublicKey_ErrorNotCached(t *testing.T) {
	client := &fakeKMS{err: errors.New("down")}
	v := NewKMSVerifier(client, testKeyARN)
	_, _ = v.PublicKey(context.Background())
	_, _ = v.PublicKey(context.Background())
	if n := client.calls.Load(); n != 2 {
		t.Fatalf("calls = %d, want a retry after failure", n)
	}
}
