// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package auth

import (
	"context"
	"time"
)

// SessionRegistry maps live refresh handles to the fingerprint of the access
// token issued with them. Entries expire after their TTL; deleting one
// revokes the session.
type SessionRegistry interface {
	Put(ctx context.Context, handle, fingerprint string, ttl time.Duration) error

	// Get returns found=false with a nil error when the handle is unknown
	// or expired.
	Get(ctx context.Context, handle string) (fingerprint string, found bool, err error)

	// Delete removes the handle. A missing handle is not an error.
	Delete(ctx context.Context, handle string) error

	Ping(ctx context.Context) error
}

// handleTag is a short, non-reversible label for a refresh handle, safe to log.
func handleTag(handle string) string {
	return Fingerprint(handle)[:12]
}
