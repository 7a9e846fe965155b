package kmssign

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/keithlinneman/glue-artifact-store/internal/hashutil"
)

// fakeKMS signs digests with a local ECDSA key so the signer/verifier
// pair can be exercised without AWS credentials.
type fakeKMS struct {
	key      *ecdsa.PrivateKey
	keyUsage kmstypes.KeyUsageType
	pubCalls int
}

func newFakeKMS(t *testing.T) *fakeKMS {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return &fakeKMS{key: key, keyUsage: kmstypes.KeyUsageTypeSignVerify}
}

func (f *fakeKMS) Sign(_ context.Context, in *kms.SignInput, _ ...func(*kms.Options)) (*kms.SignOutput, error) {
	sig, err := ecdsa.SignASN1(rand.Reader, f.key, in.Message)
	if err != nil {
		return nil, err
	}
	return &kms.SignOutput{Signature: sig}, nil
}

func (f *fakeKMS) GetPublicKey(_ context.Context, _ *kms.GetPublicKeyInput, _ ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	f.pubCalls++
	der, err := x509.MarshalPKIXPublicKey(&f.key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &kms.GetPublicKeyOutput{
		PublicKey: der,
		KeyUsage:  f.keyUsage,
	}, nil
}

const testKeyARN = "arn:aws:kms:us-east-2:111122223333:key/test"

func TestSignAndVerifyDigest(t *testing.T) {
	ctx := context.Background()
	fk := newFakeKMS(t)
	signer := NewSigner(fk, testKeyARN, "")
	verifier := NewVerifier(fk, testKeyARN)

	digest := hashutil.SHA256Hex([]byte("artifact payload"))
	sig, err := signer.SignDigest(ctx, digest)
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}
	if err := verifier.VerifyDigest(ctx, digest, sig); err != nil {
		t.Fatalf("VerifyDigest: %v", err)
	}
}

func TestVerifyDigestRejectsMismatch(t *testing.T) {
	ctx := context.Background()
	fk := newFakeKMS(t)
	signer := NewSigner(fk, testKeyARN, "")
	verifier := NewVerifier(fk, testKeyARN)

	sig, err := signer.SignDigest(ctx, hashutil.SHA256Hex([]byte("original")))
	if err != nil {
		t.Fatal(err)
	}
	if err := verifier.VerifyDigest(ctx, hashutil.SHA256Hex([]byte("tampered")), sig); err == nil {
		t.Fatal("expected verification failure for mismatched digest")
	}
}

func TestSignDigestRejectsBadDigest(t *testing.T) {
	ctx := context.Background()
	signer := NewSigner(newFakeKMS(t), testKeyARN, "")

	if _, err := signer.SignDigest(ctx, "not-hex"); err == nil {
		t.Fatal("expected error for non-hex digest")
	}
	if _, err := signer.SignDigest(ctx, "abcd"); err == nil {
		t.Fatal("expected error for short digest")
	}
}

func TestVerifierCachesPublicKey(t *testing.T) {
	ctx := context.Background()
	fk := newFakeKMS(t)
	verifier := NewVerifier(fk, testKeyARN)

	for i := 0; i < 3; i++ {
		if _, err := verifier.PublicKey(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if fk.pubCalls != 1 {
		t.Fatalf("GetPublicKey called %d times, want 1", fk.pubCalls)
	}
}

func TestVerifierRejectsEncryptionKey(t *testing.T) {
	ctx := context.Background()
	fk := newFakeKMS(t)
	fk.keyUsage = kmstypes.KeyUsageTypeEncryptDecrypt
	verifier := NewVerifier(fk, testKeyARN)

	if _, err := verifier.PublicKey(ctx); err == nil {
		t.Fatal("expected error for ENCRYPT_DECRYPT key usage")
	}
}
