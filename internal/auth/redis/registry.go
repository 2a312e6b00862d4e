// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

// Package redis implements auth.SessionRegistry on Redis.
package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/lawdesk/lawdesk/internal/auth"
	"github.com/lawdesk/lawdesk/pkg/errutil"
)

// DefaultKeyPrefix namespaces refresh handle keys.
const DefaultKeyPrefix = "lawdesk:refresh:"

// Options configures a Redis client.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// connectPingTimeout bounds the startup PING.
const connectPingTimeout = 2 * time.Second

// Connect creates a client and pings it once. An unreachable server is
// logged at warn level and the client is still returned: connections are
// dialed on demand, so the registry recovers when Redis comes back.
func Connect(ctx context.Context, opts Options, logger *slog.Logger) *goredis.Client {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		errutil.LogWarn(ctx, logger, "session registry unreachable, continuing without it",
			unavailable("SESSION_REGISTRY_CONNECT_FAILED", "ping", err),
			"addr", opts.Addr)
	}
	return client
}

// SessionRegistry stores refresh handles as plain keys with a TTL.
type SessionRegistry struct {
	client goredis.Cmdable
	prefix string
}

// NewSessionRegistry wraps client. An empty prefix uses DefaultKeyPrefix.
func NewSessionRegistry(client goredis.Cmdable, prefix string) *SessionRegistry {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &SessionRegistry{client: client, prefix: prefix}
}

func (r *SessionRegistry) key(handle string) string {
	return r.prefix + handle
}

// Put stores fingerprint under handle, replacing any previous value.
func (r *SessionRegistry) Put(ctx context.Context, handle, fingerprint string, ttl time.Duration) error {
	if ttl <= 0 {
		return oops.Code("SESSION_REGISTRY_INVALID_TTL").
			With("ttl", ttl.String()).
			Errorf("session ttl must be positive")
	}
	if err := r.client.Set(ctx, r.key(handle), fingerprint, ttl).Err(); err != nil {
		return unavailable("SESSION_REGISTRY_PUT_FAILED", "set", err)
	}
	return nil
}

// Get returns the fingerprint stored for handle.
func (r *SessionRegistry) Get(ctx context.Context, handle string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.key(handle)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("SESSION_REGISTRY_GET_FAILED", "get", err)
	}
	return val, true, nil
}

// Delete removes handle. Deleting a missing handle succeeds.
func (r *SessionRegistry) Delete(ctx context.Context, handle string) error {
	if err := r.client.Del(ctx, r.key(handle)).Err(); err != nil {
		return unavailable("SESSION_REGISTRY_DELETE_FAILED", "del", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *SessionRegistry) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable("SESSION_REGISTRY_PING_FAILED", "ping", err)
	}
	return nil
}

func unavailable(code, command string, err error) error {
	return oops.Code(code).
		With("command", command).
		With("cause", err.Error()).
		Wrap(auth.ErrRegistryUnavailable)
}
