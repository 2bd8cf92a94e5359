package canonical

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"slices"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Algorithm names a hash function by its wire identifier.
type Algorithm string

// Supported hash algorithms. SHA256 is the mandatory baseline.
const (
	SHA256     Algorithm = "sha256"
	SHA512     Algorithm = "sha512"
	SHA3_256   Algorithm = "sha3-256"
	BLAKE2b256 Algorithm = "blake2b-256"
)

// DefaultAlgorithm is used when a policy or configuration does not name one.
const DefaultAlgorithm = SHA256

var hashers = map[Algorithm]func() (hash.Hash, error){
	SHA256: func() (hash.Hash, error) { return sha256.New(), nil },
	SHA512: func() (hash.Hash, error) { return sha512.New(), nil },
	SHA3_256: func() (hash.Hash, error) {
		return sha3.New256(), nil
	},
	BLAKE2b256: func() (hash.Hash, error) {
		return blake2b.New256(nil)
	},
}

// AvailableAlgorithms returns the algorithms usable at runtime, sorted by name.
func AvailableAlgorithms() []Algorithm {
	algs := make([]Algorithm, 0, len(hashers))
	for alg := range hashers {
		algs = append(algs, alg)
	}
	slices.Sort(algs)
	return algs
}

// ParseAlgorithm maps a case-insensitive name to an Algorithm. An empty name selects the default.
func ParseAlgorithm(name string) (Algorithm, error) {
	if name == "" {
		return DefaultAlgorithm, nil
	}
	alg := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := hashers[alg]; !ok {
		return "", &UnsupportedAlgorithmError{Requested: name, Available: AvailableAlgorithms()}
	}
	return alg, nil
}

func (a Algorithm) String() string {
	return string(a)
}

// New returns a fresh hash.Hash for the algorithm.
func (a Algorithm) New() (hash.Hash, error) {
	fn, ok := hashers[a]
	if !ok {
		return nil, &UnsupportedAlgorithmError{Requested: string(a), Available: AvailableAlgorithms()}
	}
	return fn()
}

// Size returns the digest length in bytes.
func (a Algorithm) Size() (int, error) {
	h, err := a.New()
	if err != nil {
		return 0, err
	}
	return h.Size(), nil
}

// HexLen returns the length of a hex-encoded digest.
func (a Algorithm) HexLen() (int, error) {
	size, err := a.Size()
	if err != nil {
		return 0, err
	}
	return size * 2, nil
}

// Sum hashes the concatenation of parts and returns the raw digest.
func Sum(alg Algorithm, parts ...[]byte) ([]byte, error) {
	h, err := alg.New()
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil), nil
}

// Hash returns the lowercase hex digest of data.
func Hash(data []byte, alg Algorithm) (string, error) {
	sum, err := Sum(alg, data)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

// HashValue canonicalizes v and hashes the result. It returns the canonical bytes as well
// so callers can persist exactly what was hashed.
func HashValue(v any, alg Algorithm) ([]byte, string, error) {
	data, err := Canonicalize(v)
	if err != nil {
		return nil, "", err
	}
	digest, err := Hash(data, alg)
	if err != nil {
		return nil, "", err
	}
	return data, digest, nil
}

// IsHexDigest reports whether s is a lowercase hex digest of the algorithm's width.
func IsHexDigest(s string, alg Algorithm) bool {
	n, err := alg.HexLen()
	if err != nil || len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
