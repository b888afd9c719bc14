// Package grpc exposes the relay's blob store over gRPC.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/notesync/internal/blobrpc"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/server/models"
	"google.golang.org/grpc"
)

// UserService is the account side of the relay.
type UserService interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (string, error)
	UserIDFromToken(token string) (string, error)
}

// BlobService is the storage side of the relay. Every call is scoped to the
// authenticated user.
type BlobService interface {
	Put(ctx context.Context, userID, key string, data []byte, meta map[string]string) (*models.Blob, error)
	Get(ctx context.Context, userID, key string) (*models.Blob, error)
	Stat(ctx context.Context, userID, key string) (*models.Blob, error)
	Delete(ctx context.Context, userID, key string) error
	List(ctx context.Context, userID, prefix string) ([]*models.Blob, error)
}

// RateLimit bounds requests per peer. A non-positive Rate disables it.
type RateLimit struct {
	Rate  float64
	Burst int
}

type GRPCServer struct {
	address     string
	users       UserService
	blobs       BlobService
	limiter     *peerLimiter
	logger      logging.Logger
	maxRecvSize int
}

func NewGRPCServer(a string, l logging.Logger, us UserService, bs BlobService, rl RateLimit, maxBlobSize int64) *GRPCServer {
	maxRecv := 0
	if maxBlobSize > 0 {
		// headroom for metadata and framing
		maxRecv = int(maxBlobSize) + 1<<20
	}
	return &GRPCServer{
		address:     a,
		logger:      l.With("module", "grpc_server"),
		users:       us,
		blobs:       bs,
		limiter:     newPeerLimiter(rl, 10*time.Minute),
		maxRecvSize: maxRecv,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.rateLimitInterceptor, s.accessTokenInterceptor),
	}
	if s.maxRecvSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(s.maxRecvSize))
	}
	srv := grpc.NewServer(opts...)
	blobrpc.RegisterBlobStoreServer(srv, s)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
