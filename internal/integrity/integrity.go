// Package integrity computes and checks salted Argon2id digests over artifact
// content. Content is first reduced with BLAKE3 so large archives and compiler
// trees are read once; Argon2id then makes the recorded digest expensive to
// forge.
package integrity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/argon2"
)

const (
	saltLen = 16
	keyLen  = 32
)

// ErrMalformedDigest reports a digest string that is not a PHC argon2id hash.
var ErrMalformedDigest = errors.New("malformed digest")

// Digest is a PHC-formatted argon2id hash:
// $argon2id$v=19$m=19456,t=2,p=1$<salt>$<hash>.
type Digest string

// Params are the Argon2id cost parameters.
type Params struct {
	Memory  uint32 // KiB
	Time    uint32
	Threads uint8
}

// DefaultParams mirrors the OWASP minimum recommendation for argon2id.
var DefaultParams = Params{Memory: 19456, Time: 2, Threads: 1}

// Hasher produces digests with fixed parameters. The zero value uses
// DefaultParams and crypto/rand.
type Hasher struct {
	Params Params
	Rand   io.Reader
}

var defaultHasher Hasher

// Hash digests data with the default parameters.
func Hash(data []byte) (Digest, error) {
	return defaultHasher.Hash(data)
}

// Verify recomputes the digest of data using the salt and parameters embedded
// in expected.
func Verify(data []byte, expected Digest) (bool, error) {
	return verifySum(blake3.Sum256(data), expected)
}

// Hash digests data.
func (h Hasher) Hash(data []byte) (Digest, error) {
	return h.digest(blake3.Sum256(data))
}

func (h Hasher) params() Params {
	if h.Params.Memory == 0 || h.Params.Time == 0 || h.Params.Threads == 0 {
		return DefaultParams
	}
	return h.Params
}

func (h Hasher) digest(sum [32]byte) (Digest, error) {
	r := h.Rand
	if r == nil {
		r = rand.Reader
	}
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(r, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	p := h.params()
	key := argon2.IDKey(sum[:], salt, p.Time, p.Memory, p.Threads, keyLen)
	return format(p, salt, key), nil
}

func verifySum(sum [32]byte, expected Digest) (bool, error) {
	p, salt, want, err := parse(expected)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey(sum[:], salt, p.Time, p.Memory, p.Threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func format(p Params, salt, key []byte) Digest {
	return Digest(fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	))
}

func parse(d Digest) (Params, []byte, []byte, error) {
	parts := strings.Split(string(d), "$")
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, hash
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, fmt.Errorf("%w: %q", ErrMalformedDigest, d)
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return Params{}, nil, nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedDigest, parts[2])
	}

	var p Params
	for _, kv := range strings.Split(parts[3], ",") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return Params{}, nil, nil, fmt.Errorf("%w: parameter %q", ErrMalformedDigest, kv)
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return Params{}, nil, nil, fmt.Errorf("%w: parameter %q", ErrMalformedDigest, kv)
		}
		switch key {
		case "m":
			p.Memory = uint32(n)
		case "t":
			p.Time = uint32(n)
		case "p":
			if n > 255 {
				return Params{}, nil, nil, fmt.Errorf("%w: parameter %q", ErrMalformedDigest, kv)
			}
			p.Threads = uint8(n)
		}
	}
	if p.Memory == 0 || p.Time == 0 || p.Threads == 0 {
		return Params{}, nil, nil, fmt.Errorf("%w: missing cost parameters", ErrMalformedDigest)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("%w: salt: %v", ErrMalformedDigest, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Params{}, nil, nil, fmt.Errorf("%w: hash", ErrMalformedDigest)
	}
	return p, salt, key, nil
}
