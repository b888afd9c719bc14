package blobrpc

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/notesync/internal/common"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Object describes a stored blob without its content.
type Object struct {
	Key        string
	Size       int64
	ModifiedAt time.Time
	Meta       map[string]string
}

// ToStruct encodes the object description for Stat and List responses.
func (o Object) ToStruct() (*structpb.Struct, error) {
	meta := make(map[string]any, len(o.Meta))
	for k, v := range o.Meta {
		meta[k] = v
	}
	return structpb.NewStruct(map[string]any{
		"key":         o.Key,
		"size":        float64(o.Size),
		"modified_at": o.ModifiedAt.UTC().Format(time.RFC3339Nano),
		"meta":        meta,
	})
}

// ObjectFromStruct is the inverse of ToStruct.
func ObjectFromStruct(s *structpb.Struct) (Object, error) {
	f := s.GetFields()
	o := Object{
		Key:  f["key"].GetStringValue(),
		Size: int64(f["size"].GetNumberValue()),
		Meta: map[string]string{},
	}
	if o.Key == "" {
		return Object{}, fmt.Errorf("object description without key")
	}
	if ts := f["modified_at"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Object{}, fmt.Errorf("modified_at: %w", err)
		}
		o.ModifiedAt = t
	}
	for k, v := range f["meta"].GetStructValue().GetFields() {
		o.Meta[k] = v.GetStringValue()
	}
	return o, nil
}

// Credentials builds the Register/Login request.
func Credentials(username, password string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"username": structpb.NewStringValue(username),
		"password": structpb.NewStringValue(password),
	}}
}

// ParseCredentials extracts username and password from a Register/Login
// request.
func ParseCredentials(s *structpb.Struct) (username, password string) {
	f := s.GetFields()
	return f["username"].GetStringValue(), f["password"].GetStringValue()
}

// MetaToMD encodes the object key and user metadata as gRPC headers.
func MetaToMD(key string, meta map[string]string) metadata.MD {
	md := metadata.MD{}
	if key != "" {
		md.Set(common.BlobKeyHeaderName, key)
	}
	for k, v := range meta {
		md.Set(common.BlobMetaHeaderPrefix+strings.ToLower(k), v)
	}
	return md
}

// MetaFromMD reverses MetaToMD.
func MetaFromMD(md metadata.MD) (key string, meta map[string]string) {
	if v := md.Get(common.BlobKeyHeaderName); len(v) > 0 {
		key = v[0]
	}
	meta = map[string]string{}
	for k, v := range md {
		if name, ok := strings.CutPrefix(k, common.BlobMetaHeaderPrefix); ok && len(v) > 0 {
			meta[name] = v[0]
		}
	}
	return key, meta
}
