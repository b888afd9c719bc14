package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/remote"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relay struct {
	srv   *GRPCServer
	users *fakeUsers
	blobs *fakeBlobs
	addr  string
}

func startRelay(t *testing.T, rl RateLimit) *relay {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	r := &relay{users: newFakeUsers(), blobs: newFakeBlobs(), addr: lis.Addr().String()}
	r.srv = NewGRPCServer(r.addr, logging.Nop{}, r.users, r.blobs, rl, 1<<20)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.srv.Serve(ctx, lis) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return r
}

func dial(t *testing.T, addr string) *remote.GRPCStore {
	t.Helper()
	s, err := remote.NewGRPCStore(addr)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRelay_RoundTrip(t *testing.T) {
	ctx := context.Background()
	r := startRelay(t, RateLimit{})
	c := dial(t, r.addr)

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Register(ctx, "alice", "password1"))
	assert.ErrorIs(t, c.Register(ctx, "alice", "password1"), common.ErrAlreadyExists)
	require.NoError(t, c.Login(ctx, "alice", "password1"))

	meta := map[string]string{"checksum": "abc", "version": "3"}
	require.NoError(t, c.Put(ctx, "snapshot.json", []byte("payload"), meta))
	require.NoError(t, c.Put(ctx, "media/a.png", []byte("img"), nil))

	data, info, err := c.Get(ctx, "snapshot.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, meta, info.Meta)

	st, err := c.Stat(ctx, "snapshot.json")
	require.NoError(t, err)
	assert.Equal(t, int64(7), st.Size)
	assert.Equal(t, "abc", st.Meta["checksum"])
	assert.False(t, st.ModifiedAt.IsZero())

	list, err := c.List(ctx, "media/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "media/a.png", list[0].Key)

	require.NoError(t, c.Delete(ctx, "media/a.png"))
	_, err = c.Stat(ctx, "media/a.png")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRelay_AccountsAreIsolated(t *testing.T) {
	ctx := context.Background()
	r := startRelay(t, RateLimit{})

	alice := dial(t, r.addr)
	require.NoError(t, alice.Register(ctx, "alice", "password1"))
	require.NoError(t, alice.Login(ctx, "alice", "password1"))
	require.NoError(t, alice.Put(ctx, "snapshot.json", []byte("a"), nil))

	bob := dial(t, r.addr)
	require.NoError(t, bob.Register(ctx, "bob", "password2"))
	require.NoError(t, bob.Login(ctx, "bob", "password2"))

	_, _, err := bob.Get(ctx, "snapshot.json")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRelay_RequiresLogin(t *testing.T) {
	ctx := context.Background()
	r := startRelay(t, RateLimit{})
	c := dial(t, r.addr)

	_, err := c.Stat(ctx, "snapshot.json")
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	assert.ErrorIs(t, c.Login(ctx, "ghost", "password1"), common.ErrUnauthorized)
}

func TestRelay_ExpiredTokenIsRenewed(t *testing.T) {
	ctx := context.Background()
	r := startRelay(t, RateLimit{})
	c := dial(t, r.addr)

	require.NoError(t, c.Register(ctx, "alice", "password1"))
	r.users.setTTL(-time.Minute)
	require.NoError(t, c.Login(ctx, "alice", "password1"))
	r.users.setTTL(time.Hour)

	require.NoError(t, c.Put(ctx, "k", []byte("v"), nil))
}

func TestRelay_ExpiredTokenWithoutRenewal(t *testing.T) {
	ctx := context.Background()
	r := startRelay(t, RateLimit{})
	c := dial(t, r.addr)

	require.NoError(t, c.Register(ctx, "alice", "password1"))
	r.users.setTTL(-time.Minute)
	require.NoError(t, c.Login(ctx, "alice", "password1"))

	_, err := c.Stat(ctx, "k")
	assert.ErrorIs(t, err, common.ErrAuthExpired)
}

func TestRelay_InternalErrorsAreOpaque(t *testing.T) {
	ctx := context.Background()
	r := startRelay(t, RateLimit{})
	c := dial(t, r.addr)
	require.NoError(t, c.Register(ctx, "alice", "password1"))
	require.NoError(t, c.Login(ctx, "alice", "password1"))

	r.blobs.mu.Lock()
	r.blobs.err = errors.New("disk on fire")
	r.blobs.mu.Unlock()

	_, err := c.List(ctx, "")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "disk on fire")
}

func TestRelay_RateLimited(t *testing.T) {
	ctx := context.Background()
	r := startRelay(t, RateLimit{Rate: 0.001, Burst: 1})
	c := dial(t, r.addr)

	require.NoError(t, c.Ping(ctx))
	assert.Error(t, c.Ping(ctx))
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop{}, newFakeUsers(), newFakeBlobs(), RateLimit{}, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.Error(t, srv.Run(ctx))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Nop{}, newFakeUsers(), newFakeBlobs(), RateLimit{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}
