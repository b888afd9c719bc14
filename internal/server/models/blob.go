package models

import "time"

// Blob is an object stored on behalf of a user. Keys are scoped to the owner.
type Blob struct {
	UserID     string            `db:"user_id"`
	Key        string            `db:"key"`
	Data       []byte            `db:"data"`
	Meta       map[string]string `db:"meta"`
	Size       int64             `db:"size"`
	ModifiedAt time.Time         `db:"modified_at"`
}
