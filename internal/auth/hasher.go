// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// MinSaltLength is the shortest server-wide salt accepted (RFC 9106 minimum).
const MinSaltLength = 8

// Argon2Params are the argon2id cost parameters written into every hash.
type Argon2Params struct {
	Memory  uint32 // KiB
	Time    uint32 // iterations
	Threads uint8
	KeyLen  uint32 // output length in bytes
}

// DefaultArgon2Params returns the RFC 9106 low-memory profile.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:  64 * 1024,
		Time:    3,
		Threads: 4,
		KeyLen:  32,
	}
}

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces an encoded argon2id hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)
}

// Argon2idHasher implements PasswordHasher using argon2id with a server-wide salt.
type Argon2idHasher struct {
	salt   []byte
	params Argon2Params
}

// NewArgon2idHasher creates a hasher. The salt is shared by every hash this
// process produces; Verify reads the salt back from the encoded hash, so a
// rotated salt does not invalidate existing hashes.
func NewArgon2idHasher(salt []byte, params Argon2Params) (*Argon2idHasher, error) {
	if len(salt) < MinSaltLength {
		return nil, oops.Code("AUTH_SALT_TOO_SHORT").
			With("min", MinSaltLength).
			With("length", len(salt)).
			Errorf("password salt must be at least %d bytes", MinSaltLength)
	}
	if params.Memory == 0 || params.Time == 0 || params.Threads == 0 || params.KeyLen == 0 {
		return nil, oops.Code("AUTH_INVALID_ARGON2_PARAMS").
			With("memory", params.Memory).
			With("time", params.Time).
			With("threads", params.Threads).
			With("key_len", params.KeyLen).
			Errorf("argon2 parameters must be positive")
	}
	return &Argon2idHasher{
		salt:   append([]byte(nil), salt...),
		params: params,
	}, nil
}

// Hash produces an argon2id hash of the password in PHC string format:
// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	key := argon2.IDKey([]byte(password), h.salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the hash. Every malformed-hash
// error wraps ErrHashingFault.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, invalidHash("format", nil)
	}

	if parts[1] != "argon2id" {
		return false, invalidHash("algorithm", fmt.Errorf("unsupported hash algorithm: %s", parts[1]))
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, invalidHash("version", err)
	}
	if version != argon2.Version {
		return false, invalidHash("version", fmt.Errorf("unsupported argon2 version %d", version))
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, invalidHash("params", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, invalidHash("salt", err)
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, invalidHash("hash", err)
	}

	// threads must fit in uint8 to prevent silent truncation
	if threads == 0 || threads > 255 {
		return false, invalidHash("params", fmt.Errorf("threads value %d out of range", threads))
	}
	if memory == 0 || iterations == 0 {
		return false, invalidHash("params", fmt.Errorf("argon2 cost parameters must be positive"))
	}

	keyLen := len(expectedHash)
	if keyLen == 0 || keyLen > 1<<30 {
		return false, invalidHash("hash", fmt.Errorf("invalid hash key length: %d", keyLen))
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, uint8(threads), uint32(keyLen))

	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1, nil
}

func invalidHash(part string, cause error) error {
	b := oops.Code("AUTH_INVALID_HASH").With("part", part)
	if cause != nil {
		b = b.With("cause", cause.Error())
	}
	return b.Wrapf(ErrHashingFault, "invalid password hash")
}
