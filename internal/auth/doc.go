// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

// Package auth turns credentials into identity records, signed access
// tokens and opaque refresh handles.
//
// # Stores
//
// Two stores fail independently:
//   - AccountStore - identities, profiles and passports in PostgreSQL,
//     written inside a Transactor transaction
//   - SessionRegistry - live refresh handles in Redis, each mapped to the
//     fingerprint of the access token issued with it
//
// Registry writes after a commit are best-effort: they are retried, logged
// and never fail registration, authorization or logout. Refresh is the one
// protocol that reads the registry, so a registry failure rejects it.
//
// # Services
//
// CredentialService implements Register, Authorize, Refresh, Logout and
// Authenticate. Errors carry oops codes and wrap the sentinels in errors.go;
// transports map them with Classify.
package auth
