package domain

import (
	"github.com/allisson/provenance/internal/errors"
)

// Key lifecycle errors.
var (
	// ErrKeyNotFound indicates no key exists with the requested id.
	ErrKeyNotFound = errors.Wrap(errors.ErrNotFound, "key not found")

	// ErrNoActiveKey indicates no active key exists for the requested purpose.
	ErrNoActiveKey = errors.Wrap(errors.ErrNotFound, "no active key")

	// ErrKeyExists indicates a key with the same id was already generated.
	ErrKeyExists = errors.Wrap(errors.ErrConflict, "key already exists")

	// ErrActiveKeyExists indicates the purpose already has an active key of that type.
	ErrActiveKeyExists = errors.Wrap(errors.ErrConflict, "purpose already has an active key")

	// ErrInvalidTransition indicates a lifecycle change the key's status does not allow.
	ErrInvalidTransition = errors.Wrap(errors.ErrConflict, "invalid key status transition")

	// ErrKeyExpired indicates the key is past its expiry.
	ErrKeyExpired = errors.Wrap(errors.ErrExpired, "key expired")

	// ErrKeyRevoked indicates the key was revoked and may not be used.
	ErrKeyRevoked = errors.Wrap(errors.ErrRevoked, "key revoked")

	// ErrKeyNotActive indicates a private-key operation on a key that is not active.
	ErrKeyNotActive = errors.Wrap(errors.ErrForbidden, "key not active")

	// ErrKeyMaterialPurged indicates the private material was deleted after retirement.
	ErrKeyMaterialPurged = errors.Wrap(errors.ErrForbidden, "key material purged")

	// ErrUnsupportedKeyAlgorithm indicates an unknown signing or wrapping algorithm.
	ErrUnsupportedKeyAlgorithm = errors.Wrap(errors.ErrUnsupported, "unsupported key algorithm")

	// ErrInvalidKeyMaterial indicates key material that cannot be parsed.
	ErrInvalidKeyMaterial = errors.Wrap(errors.ErrInvalidInput, "invalid key material")

	// ErrInvalidKeySize indicates a symmetric key of the wrong length.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrUnwrapFailed indicates wrapped key material could not be authenticated or decrypted.
	ErrUnwrapFailed = errors.Wrap(errors.ErrInvalidInput, "key unwrap failed")

	// ErrInvalidKey indicates key metadata failed validation.
	ErrInvalidKey = errors.Wrap(errors.ErrInvalidInput, "invalid key")
)
