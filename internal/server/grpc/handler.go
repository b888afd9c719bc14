package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/notesync/internal/blobrpc"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var _ blobrpc.BlobStoreServer = (*GRPCServer)(nil)

// toStatus maps service errors to gRPC codes. Unexpected errors are logged
// and reported as Internal without details.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, common.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	default:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}

func toObject(b *models.Blob) blobrpc.Object {
	return blobrpc.Object{Key: b.Key, Size: b.Size, ModifiedAt: b.ModifiedAt, Meta: b.Meta}
}

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	username, password := blobrpc.ParseCredentials(req)

	u, err := s.users.Register(ctx, username, password)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Registered", "username", u.UserName, "id", u.ID)
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	username, password := blobrpc.ParseCredentials(req)

	token, err := s.users.Login(ctx, username, password)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return wrapperspb.String(token), nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String("OK"), nil
}

func (s *GRPCServer) Stat(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	b, err := s.blobs.Stat(ctx, userID, req.GetValue())
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	out, err := toObject(b).ToStruct()
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return out, nil
}

// Get returns the content; user metadata travels in the response header.
func (s *GRPCServer) Get(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	b, err := s.blobs.Get(ctx, userID, req.GetValue())
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	if err := grpc.SetHeader(ctx, blobrpc.MetaToMD("", b.Meta)); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return wrapperspb.Bytes(b.Data), nil
}

// Put stores the request body under the key given in the request header.
func (s *GRPCServer) Put(ctx context.Context, req *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	md, _ := metadata.FromIncomingContext(ctx)
	key, meta := blobrpc.MetaFromMD(md)

	if _, err := s.blobs.Put(ctx, userID, key, req.GetValue(), meta); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) Delete(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.blobs.Delete(ctx, userID, req.GetValue()); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) List(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	items, err := s.blobs.List(ctx, userID, req.GetValue())
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(items))}
	for _, b := range items {
		st, err := toObject(b).ToStruct()
		if err != nil {
			return nil, s.toStatus(ctx, err)
		}
		out.Values = append(out.Values, structpb.NewStructValue(st))
	}
	return out, nil
}
