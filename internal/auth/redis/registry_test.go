// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package redis_test

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lawdesk/lawdesk/internal/auth"
	"github.com/lawdesk/lawdesk/internal/auth/redis"
	"github.com/lawdesk/lawdesk/pkg/errutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newRegistry(t *testing.T) (*redis.SessionRegistry, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewSessionRegistry(client, "test:refresh:"), srv
}

func TestSessionRegistry_PutGet(t *testing.T) {
	reg, srv := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Put(ctx, "handle-1", "fp-1", time.Hour))

	assert.True(t, srv.Exists("test:refresh:handle-1"))
	assert.Equal(t, time.Hour, srv.TTL("test:refresh:handle-1"))

	fp, found, err := reg.Get(ctx, "handle-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "fp-1", fp)
}

func TestSessionRegistry_PutReplaces(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Put(ctx, "h", "old", time.Hour))
	require.NoError(t, reg.Put(ctx, "h", "new", time.Hour))

	fp, found, err := reg.Get(ctx, "h")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "new", fp)
}

func TestSessionRegistry_RejectsNonPositiveTTL(t *testing.T) {
	reg, _ := newRegistry(t)
	err := reg.Put(context.Background(), "h", "fp", 0)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SESSION_REGISTRY_INVALID_TTL")
}

func TestSessionRegistry_GetMissing(t *testing.T) {
	reg, _ := newRegistry(t)
	fp, found, err := reg.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, fp)
}

func TestSessionRegistry_Expiry(t *testing.T) {
	reg, srv := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Put(ctx, "h", "fp", time.Minute))
	srv.FastForward(2 * time.Minute)

	_, found, err := reg.Get(ctx, "h")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSessionRegistry_DeleteIsIdempotent(t *testing.T) {
	reg, srv := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Put(ctx, "h", "fp", time.Hour))
	require.NoError(t, reg.Delete(ctx, "h"))
	assert.False(t, srv.Exists("test:refresh:h"))
	require.NoError(t, reg.Delete(ctx, "h"))
}

func TestSessionRegistry_DefaultPrefix(t *testing.T) {
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reg := redis.NewSessionRegistry(client, "")
	require.NoError(t, reg.Put(context.Background(), "h", "fp", time.Hour))
	assert.True(t, srv.Exists(redis.DefaultKeyPrefix+"h"))
}

func TestSessionRegistry_Unavailable(t *testing.T) {
	reg, srv := newRegistry(t)
	ctx := context.Background()
	srv.SetError("LOADING Redis is loading the dataset in memory")

	tests := []struct {
		name string
		call func() error
		code string
	}{
		{"put", func() error { return reg.Put(ctx, "h", "fp", time.Hour) }, "SESSION_REGISTRY_PUT_FAILED"},
		{"get", func() error { _, _, err := reg.Get(ctx, "h"); return err }, "SESSION_REGISTRY_GET_FAILED"},
		{"delete", func() error { return reg.Delete(ctx, "h") }, "SESSION_REGISTRY_DELETE_FAILED"},
		{"ping", func() error { return reg.Ping(ctx) }, "SESSION_REGISTRY_PING_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.ErrorIs(t, err, auth.ErrRegistryUnavailable)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestConnect(t *testing.T) {
	srv := miniredis.RunT(t)
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	client := redis.Connect(context.Background(), redis.Options{Addr: srv.Addr()}, logger)
	require.NoError(t, client.Ping(context.Background()).Err())
	require.NoError(t, client.Close())
	assert.Empty(t, logs.String())
}

func TestConnect_UnreachableStillReturnsClient(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	client := redis.Connect(context.Background(), redis.Options{Addr: "127.0.0.1:1"}, logger)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	assert.Contains(t, logs.String(), `"level":"WARN"`)
	assert.Contains(t, logs.String(), "SESSION_REGISTRY_CONNECT_FAILED")
	assert.Contains(t, logs.String(), "127.0.0.1:1")

	reg := redis.NewSessionRegistry(client, "")
	err := reg.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrRegistryUnavailable)
}

func TestConnect_RecoversWhenServerReturns(t *testing.T) {
	srv := miniredis.NewMiniRedis()
	addr := "127.0.0.1:" + freePort(t)

	client := redis.Connect(context.Background(), redis.Options{Addr: addr}, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, srv.StartAddr(addr))
	t.Cleanup(srv.Close)

	reg := redis.NewSessionRegistry(client, "")
	require.NoError(t, reg.Put(context.Background(), "late", "fp", time.Minute))
	assert.True(t, srv.Exists(redis.DefaultKeyPrefix+"late"))
}

func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	require.NoError(t, l.Close())
	return port
}
