package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/notesync/internal/blobrpc"
	"github.com/dmitrijs2005/notesync/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// GRPCStore talks to the notesync relay server. Objects are scoped to the
// logged-in account on the server side.
type GRPCStore struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      blobrpc.BlobStoreClient

	mu          sync.RWMutex
	accessToken string
	username    string
	password    string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func NewGRPCStore(endpointURL string) (*GRPCStore, error) {
	s := &GRPCStore{endpointURL: endpointURL}
	conn, err := grpc.NewClient(endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor))
	if err != nil {
		return nil, err
	}
	s.conn = conn
	s.client = blobrpc.NewBlobStoreClient(conn)
	return s, nil
}

func (s *GRPCStore) token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// SetAccessToken installs a previously obtained token.
func (s *GRPCStore) SetAccessToken(token string) {
	s.mu.Lock()
	s.accessToken = token
	s.mu.Unlock()
}

func (s *GRPCStore) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if blobrpc.PublicMethods[method] {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	err := invoker(withAccessToken(ctx, s.token()), method, req, reply, cc, opts...)
	if !isTokenExpired(err) {
		return err
	}

	s.mu.RLock()
	user, pass := s.username, s.password
	s.mu.RUnlock()
	if user == "" {
		return err
	}

	// token expired, logging in again with the remembered credentials
	if lerr := s.Login(ctx, user, pass); lerr != nil {
		return err
	}
	return invoker(withAccessToken(ctx, s.token()), method, req, reply, cc, opts...)
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	if !ok || err == nil {
		return false
	}
	return st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

func (s *GRPCStore) Register(ctx context.Context, username, password string) error {
	_, err := s.client.Register(ctx, blobrpc.Credentials(username, password))
	return mapError(err)
}

// Login obtains an access token. The credentials are kept in memory so that
// an expired token can be renewed transparently.
func (s *GRPCStore) Login(ctx context.Context, username, password string) error {
	resp, err := s.client.Login(ctx, blobrpc.Credentials(username, password))
	if err != nil {
		return mapError(err)
	}

	s.mu.Lock()
	s.accessToken = resp.GetValue()
	s.username = username
	s.password = password
	s.mu.Unlock()
	return nil
}

func (s *GRPCStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCStore) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &emptypb.Empty{})
	if err != nil {
		return mapError(err)
	}
	if resp.GetValue() != "OK" {
		return common.ErrUnavailable
	}
	return nil
}

func (s *GRPCStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	resp, err := s.client.Stat(ctx, wrapperspb.String(key))
	if err != nil {
		return nil, mapError(err)
	}
	o, err := blobrpc.ObjectFromStruct(resp)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	info := ObjectInfo(o)
	return &info, nil
}

func (s *GRPCStore) Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error) {
	var header metadata.MD
	resp, err := s.client.Get(ctx, wrapperspb.String(key), grpc.Header(&header))
	if err != nil {
		return nil, nil, mapError(err)
	}
	_, meta := blobrpc.MetaFromMD(header)
	data := resp.GetValue()
	return data, &ObjectInfo{Key: key, Size: int64(len(data)), Meta: meta}, nil
}

func (s *GRPCStore) Put(ctx context.Context, key string, data []byte, meta map[string]string) error {
	ctx = metadata.NewOutgoingContext(ctx, metadata.Join(outgoing(ctx), blobrpc.MetaToMD(key, meta)))
	_, err := s.client.Put(ctx, wrapperspb.Bytes(data))
	return mapError(err)
}

func outgoing(ctx context.Context) metadata.MD {
	md, _ := metadata.FromOutgoingContext(ctx)
	return md
}

func (s *GRPCStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.Delete(ctx, wrapperspb.String(key))
	return mapError(err)
}

func (s *GRPCStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	resp, err := s.client.List(ctx, wrapperspb.String(prefix))
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]ObjectInfo, 0, len(resp.GetValues()))
	for _, v := range resp.GetValues() {
		o, err := blobrpc.ObjectFromStruct(v.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		out = append(out, ObjectInfo(o))
	}
	return out, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated:
		if st.Message() == common.ErrTokenExpired.Error() {
			return common.ErrAuthExpired
		}
		return common.ErrUnauthorized
	case codes.PermissionDenied:
		return common.ErrUnauthorized
	case codes.NotFound:
		return common.ErrNotFound
	case codes.AlreadyExists:
		return common.ErrAlreadyExists
	case codes.Unavailable, codes.DeadlineExceeded:
		return common.ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
