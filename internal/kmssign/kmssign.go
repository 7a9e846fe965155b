// Package kmssign signs artifact digests with an asymmetric KMS key and
// verifies those signatures locally against the key's public half.
// Signing happens at publish time; verification never needs kms:Sign
// permission, only kms:GetPublicKey (and that only once, the key is
// cached).
package kmssign

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/keithlinneman/glue-artifact-store/internal/xerrors"
)

// KMSAPI is the subset of the KMS API the signer and verifier need.
// Extracted as an interface to enable unit testing without live AWS
// credentials.
type KMSAPI interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// Signer produces signatures over artifact sha256 digests using a KMS
// SIGN_VERIFY key.
type Signer struct {
	client KMSAPI
	keyARN string
	alg    kmstypes.SigningAlgorithmSpec
}

func NewSigner(client KMSAPI, keyARN string, alg kmstypes.SigningAlgorithmSpec) *Signer {
	if alg == "" {
		alg = kmstypes.SigningAlgorithmSpecEcdsaSha256
	}
	return &Signer{client: client, keyARN: keyARN, alg: alg}
}

func (s *Signer) KeyARN() string { return s.keyARN }

// SignDigest signs a hex-encoded sha256 digest. The raw digest bytes are
// sent with MessageType=DIGEST so the payload itself never leaves the
// caller.
func (s *Signer) SignDigest(ctx context.Context, sha256Hex string) ([]byte, error) {
	digest, err := decodeDigest(sha256Hex)
	if err != nil {
		return nil, err
	}
	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyARN),
		Message:          digest,
		MessageType:      kmstypes.MessageTypeDigest,
		SigningAlgorithm: s.alg,
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "kms sign with key %s", s.keyARN)
	}
	return out.Signature, nil
}

// Verifier checks artifact digest signatures locally. The KMS public key
// is fetched once and cached; ECDSA P-256/P-384 and RSA-PSS keys are
// supported.
type Verifier struct {
	client KMSAPI
	keyARN string

	mu     sync.RWMutex
	pubKey crypto.PublicKey
}

func NewVerifier(client KMSAPI, keyARN string) *Verifier {
	return &Verifier{client: client, keyARN: keyARN}
}

// PublicKey fetches and caches the KMS public key. First call hits the
// KMS API, subsequent calls return the cached key.
func (v *Verifier) PublicKey(ctx context.Context) (crypto.PublicKey, error) {
	v.mu.RLock()
	if v.pubKey != nil {
		defer v.mu.RUnlock()
		return v.pubKey, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	// double-check after acquiring write lock
	if v.pubKey != nil {
		return v.pubKey, nil
	}

	if v.client == nil {
		return nil, xerrors.New("kms client is not configured")
	}

	out, err := v.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(v.keyARN),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "kms get public key")
	}
	if out.KeyUsage != kmstypes.KeyUsageTypeSignVerify {
		return nil, xerrors.Newf("kms key %s has KeyUsage=%s, expected SIGN_VERIFY", v.keyARN, out.KeyUsage)
	}

	pub, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse kms public key DER")
	}

	v.pubKey = pub
	return v.pubKey, nil
}

// VerifyDigest checks a signature over a hex-encoded sha256 digest.
func (v *Verifier) VerifyDigest(ctx context.Context, sha256Hex string, signature []byte) error {
	digest, err := decodeDigest(sha256Hex)
	if err != nil {
		return err
	}
	pub, err := v.PublicKey(ctx)
	if err != nil {
		return err
	}

	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		if key.Curve != elliptic.P256() && key.Curve != elliptic.P384() {
			return xerrors.Newf("unsupported ECDSA curve: %v", key.Curve.Params().Name)
		}
		if !ecdsa.VerifyASN1(key, digest, signature) {
			return xerrors.Newf("ECDSA signature verification failed for key %s", v.keyARN)
		}
		return nil
	case *rsa.PublicKey:
		if err := rsa.VerifyPSS(key, crypto.SHA256, digest, signature, nil); err != nil {
			return xerrors.Wrapf(err, "RSA-PSS signature verification failed for key %s", v.keyARN)
		}
		return nil
	default:
		return xerrors.Newf("unsupported public key type: %T", pub)
	}
}

func decodeDigest(sha256Hex string) ([]byte, error) {
	digest, err := hex.DecodeString(sha256Hex)
	if err != nil {
		return nil, xerrors.Wrap(err, "decode sha256 digest")
	}
	if len(digest) != 32 {
		return nil, xerrors.Newf("sha256 digest is %d bytes, want 32", len(digest))
	}
	return digest, nil
}
