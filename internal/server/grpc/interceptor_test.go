package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/notesync/internal/blobrpc"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func newTestServer(rl RateLimit) *GRPCServer {
	return NewGRPCServer("127.0.0.1:0", logging.Nop{}, newFakeUsers(), newFakeBlobs(), rl, 0)
}

func withToken(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(common.AccessTokenHeaderName, token))
}

func TestInterceptor_PublicMethod_AllowsWithoutToken(t *testing.T) {
	s := newTestServer(RateLimit{})

	called := false
	h := func(ctx context.Context, req any) (any, error) {
		called = true
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: blobrpc.MethodLogin}, h)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "ok", resp)
}

func TestInterceptor_Tokens(t *testing.T) {
	s := newTestServer(RateLimit{})
	info := &grpc.UnaryServerInfo{FullMethod: blobrpc.MethodGet}

	valid, err := auth.GenerateToken("user-123", testSecret, time.Hour)
	require.NoError(t, err)
	expired, err := auth.GenerateToken("user-123", testSecret, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name    string
		ctx     context.Context
		code    codes.Code
		message string
	}{
		{"missing", context.Background(), codes.Unauthenticated, "missing token"},
		{"invalid", withToken("not-a-valid-jwt"), codes.Unauthenticated, "invalid token"},
		{"expired", withToken(expired), codes.Unauthenticated, "token expired"},
		{"valid", withToken(valid), codes.OK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser any
			h := func(ctx context.Context, req any) (any, error) {
				gotUser = ctx.Value(UserIDKey)
				return "ok", nil
			}

			_, err := s.accessTokenInterceptor(tt.ctx, nil, info, h)
			assert.Equal(t, tt.code, status.Code(err))
			if tt.code != codes.OK {
				assert.Equal(t, tt.message, status.Convert(err).Message())
				assert.Nil(t, gotUser)
				return
			}
			assert.Equal(t, "user-123", gotUser)
		})
	}
}

func withPeer(host string) context.Context {
	return peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP(host), Port: 4242}})
}

func TestRateLimitInterceptor(t *testing.T) {
	s := newTestServer(RateLimit{Rate: 1, Burst: 2})
	now := time.Unix(1000, 0)
	s.limiter.now = func() time.Time { return now }

	h := func(ctx context.Context, req any) (any, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: blobrpc.MethodPing}

	for i := 0; i < 2; i++ {
		_, err := s.rateLimitInterceptor(withPeer("10.0.0.1"), nil, info, h)
		require.NoError(t, err)
	}
	_, err := s.rateLimitInterceptor(withPeer("10.0.0.1"), nil, info, h)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	_, err = s.rateLimitInterceptor(withPeer("10.0.0.2"), nil, info, h)
	assert.NoError(t, err, "other peers have their own bucket")

	now = now.Add(time.Second)
	_, err = s.rateLimitInterceptor(withPeer("10.0.0.1"), nil, info, h)
	assert.NoError(t, err, "bucket refills over time")
}

func TestPeerLimiter_Disabled(t *testing.T) {
	l := newPeerLimiter(RateLimit{}, time.Minute)
	for i := 0; i < 100; i++ {
		assert.True(t, l.allow("h"))
	}
	assert.Empty(t, l.peers)
}

func TestPeerLimiter_SweepsIdlePeers(t *testing.T) {
	l := newPeerLimiter(RateLimit{Rate: 1, Burst: 1}, time.Minute)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	l.allow("a")
	now = now.Add(2 * time.Minute)
	l.allow("b")

	assert.NotContains(t, l.peers, "a")
	assert.Contains(t, l.peers, "b")
}

func TestPeerHost(t *testing.T) {
	assert.Equal(t, "10.0.0.1", peerHost(withPeer("10.0.0.1")))
	assert.Equal(t, "", peerHost(context.Background()))
}
