// Package remote abstracts the third-party storage holding the shared
// snapshot blob and the media collection.
package remote

import (
	"context"
	"strconv"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

const (
	// SnapshotKey is the single snapshot blob per account.
	SnapshotKey = "snapshot.json"
	// MediaPrefix holds attachment files, keyed by asset ID.
	MediaPrefix = "media/"

	MetaVersion   = "version"
	MetaEncrypted = "encrypted"
	MetaChecksum  = "checksum"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key        string
	Size       int64
	ModifiedAt time.Time
	Meta       map[string]string
}

// Store is a flat key/value blob store. Missing objects are reported as
// common.ErrNotFound; credential problems as common.ErrAuthExpired or
// common.ErrUnauthorized; connectivity problems as common.ErrUnavailable.
type Store interface {
	Ping(ctx context.Context) error
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error)
	Put(ctx context.Context, key string, data []byte, meta map[string]string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// DocumentMeta is the object metadata written alongside the snapshot so that
// its version and encryption state can be read without downloading it.
func DocumentMeta(doc *models.RemoteDocument) map[string]string {
	return map[string]string{
		MetaVersion:   strconv.FormatInt(doc.Version, 10),
		MetaEncrypted: strconv.FormatBool(doc.Encrypted),
		MetaChecksum:  doc.Checksum,
	}
}

// InfoFromObject reads DocumentMeta back. ok is false when the metadata is
// absent or unparsable and the document header has to be read instead.
func InfoFromObject(o *ObjectInfo) (info models.RemoteInfo, ok bool) {
	info = models.RemoteInfo{Exists: true, Size: o.Size, Checksum: o.Meta[MetaChecksum]}
	v, err := strconv.ParseInt(o.Meta[MetaVersion], 10, 64)
	if err != nil {
		return info, false
	}
	enc, err := strconv.ParseBool(o.Meta[MetaEncrypted])
	if err != nil {
		return info, false
	}
	info.Version = v
	info.Encrypted = enc
	return info, true
}
