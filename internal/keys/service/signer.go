package service

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	keysDomain "github.com/allisson/provenance/internal/keys/domain"
)

const (
	privateKeyPEMType = "PRIVATE KEY"
	publicKeyPEMType  = "PUBLIC KEY"
)

// GenerateKeyPair creates a signing key pair and returns it as PKCS#8 and PKIX PEM blocks.
func GenerateKeyPair(alg keysDomain.Algorithm) (privatePEM, publicPEM []byte, err error) {
	var private crypto.Signer
	switch alg {
	case keysDomain.Ed25519:
		_, key, genErr := ed25519.GenerateKey(rand.Reader)
		if genErr != nil {
			return nil, nil, fmt.Errorf("generate ed25519 key: %w", genErr)
		}
		private = key
	case keysDomain.ECDSAP256:
		key, genErr := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if genErr != nil {
			return nil, nil, fmt.Errorf("generate ecdsa key: %w", genErr)
		}
		private = key
	default:
		return nil, nil, fmt.Errorf("%w: %q", keysDomain.ErrUnsupportedKeyAlgorithm, alg)
	}

	der, err := x509.MarshalPKCS8PrivateKey(private)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	privatePEM = pem.EncodeToMemory(&pem.Block{Type: privateKeyPEMType, Bytes: der})
	keysDomain.Zero(der)

	publicPEM, err = encodePublicKey(private.Public())
	if err != nil {
		return nil, nil, err
	}
	return privatePEM, publicPEM, nil
}

func encodePublicKey(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: publicKeyPEMType, Bytes: der}), nil
}

// NewSigner parses a PKCS#8 PEM private key.
func NewSigner(privatePEM []byte) (Signer, error) {
	block, _ := pem.Decode(privatePEM)
	if block == nil || block.Type != privateKeyPEMType {
		return nil, fmt.Errorf("%w: expected %s PEM block", keysDomain.ErrInvalidKeyMaterial, privateKeyPEMType)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keysDomain.ErrInvalidKeyMaterial, err)
	}

	switch key := parsed.(type) {
	case ed25519.PrivateKey:
		return &Ed25519Signer{private: key, public: key.Public().(ed25519.PublicKey)}, nil
	case *ecdsa.PrivateKey:
		if key.Curve != elliptic.P256() {
			return nil, fmt.Errorf("%w: ecdsa curve %s", keysDomain.ErrUnsupportedKeyAlgorithm, key.Curve.Params().Name)
		}
		return &ECDSASigner{private: key, public: &key.PublicKey}, nil
	default:
		return nil, fmt.Errorf("%w: %T", keysDomain.ErrUnsupportedKeyAlgorithm, parsed)
	}
}

// NewVerifier parses a PKIX PEM public key. The returned Signer cannot sign.
func NewVerifier(publicPEM []byte) (Signer, error) {
	block, _ := pem.Decode(publicPEM)
	if block == nil || block.Type != publicKeyPEMType {
		return nil, fmt.Errorf("%w: expected %s PEM block", keysDomain.ErrInvalidKeyMaterial, publicKeyPEMType)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keysDomain.ErrInvalidKeyMaterial, err)
	}

	switch key := parsed.(type) {
	case ed25519.PublicKey:
		return &Ed25519Signer{public: key}, nil
	case *ecdsa.PublicKey:
		if key.Curve != elliptic.P256() {
			return nil, fmt.Errorf("%w: ecdsa curve %s", keysDomain.ErrUnsupportedKeyAlgorithm, key.Curve.Params().Name)
		}
		return &ECDSASigner{public: key}, nil
	default:
		return nil, fmt.Errorf("%w: %T", keysDomain.ErrUnsupportedKeyAlgorithm, parsed)
	}
}

// VerifyWithPublicKey verifies sig over data with a PEM public key. Unparseable keys
// yield false.
func VerifyWithPublicKey(publicPEM, data, sig []byte) bool {
	verifier, err := NewVerifier(publicPEM)
	if err != nil {
		return false
	}
	return verifier.Verify(data, sig)
}

// Ed25519Signer signs with Ed25519.
type Ed25519Signer struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// Sign implements Signer.
func (s *Ed25519Signer) Sign(data []byte) ([]byte, error) {
	if s.private == nil {
		return nil, fmt.Errorf("%w: verifier has no private key", keysDomain.ErrInvalidKeyMaterial)
	}
	return ed25519.Sign(s.private, data), nil
}

// Verify implements Signer.
func (s *Ed25519Signer) Verify(data, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(s.public, data, sig)
}

// Algorithm implements Signer.
func (s *Ed25519Signer) Algorithm() keysDomain.Algorithm {
	return keysDomain.Ed25519
}

// PublicKeyPEM implements Signer.
func (s *Ed25519Signer) PublicKeyPEM() ([]byte, error) {
	return encodePublicKey(s.public)
}

// ECDSASigner signs with ECDSA P-256 over SHA-256, ASN.1 encoded.
type ECDSASigner struct {
	private *ecdsa.PrivateKey
	public  *ecdsa.PublicKey
}

// Sign implements Signer.
func (s *ECDSASigner) Sign(data []byte) ([]byte, error) {
	if s.private == nil {
		return nil, fmt.Errorf("%w: verifier has no private key", keysDomain.ErrInvalidKeyMaterial)
	}
	digest := sha256.Sum256(data)
	return ecdsa.SignASN1(rand.Reader, s.private, digest[:])
}

// Verify implements Signer.
func (s *ECDSASigner) Verify(data, sig []byte) bool {
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(s.public, digest[:], sig)
}

// Algorithm implements Signer.
func (s *ECDSASigner) Algorithm() keysDomain.Algorithm {
	return keysDomain.ECDSAP256
}

// PublicKeyPEM implements Signer.
func (s *ECDSASigner) PublicKeyPEM() ([]byte, error) {
	return encodePublicKey(s.public)
}
