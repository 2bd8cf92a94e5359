// Package service verifies anchor signatures without access to the key manager.
package service

import (
	anchorDomain "github.com/allisson/provenance/internal/anchor/domain"
	keysService "github.com/allisson/provenance/internal/keys/service"
)

// Verify reports whether the anchor signature verifies under the PEM public key.
// Malformed anchors and signatures yield false.
func Verify(a *anchorDomain.AnchorRecord, publicKeyPEM []byte) bool {
	if a == nil {
		return false
	}
	payload, err := a.SigningPayload()
	if err != nil {
		return false
	}
	sig, err := a.SignatureBytes()
	if err != nil {
		return false
	}
	return keysService.VerifyWithPublicKey(publicKeyPEM, payload, sig)
}

// VerifyWithKeys looks up the anchor's signing key in publicKeys (key id to PEM) and
// verifies the signature.
func VerifyWithKeys(a *anchorDomain.AnchorRecord, publicKeys map[string]string) bool {
	if a == nil {
		return false
	}
	pem, ok := publicKeys[a.SigningKeyID]
	if !ok {
		return false
	}
	return Verify(a, []byte(pem))
}
